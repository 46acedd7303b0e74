package parser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

const maxLabelTreeDepth = 32

// labelRange is one /PageLabels entry, applying from page index start (0-based)
// until the next range.
type labelRange struct {
	start  int
	style  string
	prefix string
	first  int
}

type pageLabels []labelRange

// readPageLabels collects the catalog /PageLabels number tree. A document
// without labels, or with a broken tree, yields no labels.
func readPageLabels(r *pdf.Reader) (labels pageLabels) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Interface("panic", rec).Msg("Ignoring malformed page labels")
			labels = nil
		}
	}()

	root := r.Trailer().Key("Root").Key("PageLabels")
	if root.IsNull() {
		return nil
	}
	collectLabels(root, 0, &labels)
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].start < labels[j].start })
	return labels
}

func collectLabels(node pdf.Value, depth int, out *pageLabels) {
	if depth > maxLabelTreeDepth || node.IsNull() {
		return
	}
	nums := node.Key("Nums")
	for i := 0; i+1 < nums.Len(); i += 2 {
		dict := nums.Index(i + 1)
		first := 1
		if st := dict.Key("St"); st.Kind() == pdf.Integer {
			first = int(st.Int64())
		}
		*out = append(*out, labelRange{
			start:  int(nums.Index(i).Int64()),
			style:  dict.Key("S").Name(),
			prefix: dict.Key("P").Text(),
			first:  first,
		})
	}
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		collectLabels(kids.Index(i), depth+1, out)
	}
}

// label returns the label of the page at the 0-based index.
func (l pageLabels) label(index int) string {
	i := sort.Search(len(l), func(i int) bool { return l[i].start > index }) - 1
	if i < 0 {
		return ""
	}
	rng := l[i]
	n := rng.first + index - rng.start
	return rng.prefix + formatLabelNumber(rng.style, n)
}

func formatLabelNumber(style string, n int) string {
	switch style {
	case "D":
		return strconv.Itoa(n)
	case "R":
		return toRoman(n)
	case "r":
		return strings.ToLower(toRoman(n))
	case "A":
		return toLetters(n)
	case "a":
		return strings.ToLower(toLetters(n))
	default:
		return ""
	}
}

var romanNumerals = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

func toRoman(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	var b strings.Builder
	for _, r := range romanNumerals {
		for n >= r.value {
			b.WriteString(r.symbol)
			n -= r.value
		}
	}
	return b.String()
}

// toLetters renders 1..26 as A..Z, then 27 as AA, 53 as AAA and so on.
func toLetters(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	letter := byte('A' + (n-1)%26)
	return strings.Repeat(string(letter), (n-1)/26+1)
}
