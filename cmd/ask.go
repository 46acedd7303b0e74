package main

import (
	"bytes"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"

	"pdf-rag/internal/models"
	"pdf-rag/internal/rag"
)

var (
	askChat bool
	askHTML bool
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askChat, "chat", false, "answer without retrieval")
	askCmd.Flags().BoolVar(&askHTML, "html", false, "render the answer as HTML")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed PDFs",
	Long: `Answer a question from the indexed PDFs and list the pages used.
The answer streams to stdout as it is generated, unless --html is set.

Examples:
  pdf-rag ask "What is the refund policy?"
  pdf-rag ask --chat "Say hello"
  pdf-rag ask --html "What is the refund policy?" > answer.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	messages := []models.Message{{Role: models.RoleUser, Content: strings.Join(args, " ")}}
	var answer iter.Seq[string]
	if askChat {
		answer = rag.NewChat(a.llm).Answer(ctx, messages)
	} else {
		answer = rag.NewAgent(a.db, a.embedder, a.llm).Answer(ctx, messages, cfg.Store.Table)
	}

	if askHTML {
		return writeHTML(cmd.OutOrStdout(), answer)
	}
	out := cmd.OutOrStdout()
	for fragment := range answer {
		if _, err := io.WriteString(out, fragment); err != nil {
			return err
		}
	}
	_, err = io.WriteString(out, "\n")
	return err
}

// writeHTML buffers the whole markdown answer and renders it once.
func writeHTML(w io.Writer, answer iter.Seq[string]) error {
	var md strings.Builder
	for fragment := range answer {
		md.WriteString(fragment)
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &buf); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
