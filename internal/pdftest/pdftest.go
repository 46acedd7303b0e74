// Package pdftest builds minimal uncompressed PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

var textEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)

// Build returns a PDF with one page per entry of pages, each page showing its
// text as a single string. pageLabels, when not empty, is written verbatim as
// the catalog /PageLabels value, for example "<< /Nums [0 << /S /r >>] >>".
func Build(pages []string, pageLabels string) []byte {
	var buf bytes.Buffer
	objects := 2 + 2*len(pages)
	offsets := make([]int, objects+1)

	buf.WriteString("%PDF-1.4\n")

	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R")
	if pageLabels != "" {
		buf.WriteString(" /PageLabels " + pageLabels)
	}
	buf.WriteString(" >>\nendobj\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	offsets[2] = buf.Len()
	fmt.Fprintf(&buf, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), len(pages))

	for i, text := range pages {
		pageObj, contentObj := 3+2*i, 4+2*i
		offsets[pageObj] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R >>\nendobj\n", pageObj, contentObj)

		content := fmt.Sprintf("BT 72 712 Td (%s) Tj ET", textEscaper.Replace(text))
		offsets[contentObj] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(content), content)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", objects+1)
	for i := 1; i <= objects; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objects+1, xref)
	return buf.Bytes()
}
