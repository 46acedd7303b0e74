package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
)

var (
	addFileID   string
	searchLimit int
)

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(dropTableCmd)
	addCmd.Flags().StringVar(&addFileID, "file-id", "", "id to store the file under, generated when empty")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", models.DefaultSearchLimit, "number of pages to return")
}

var addCmd = &cobra.Command{
	Use:   "add <file.pdf>",
	Short: "Index a single PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

var removeCmd = &cobra.Command{
	Use:   "remove <file_id>",
	Short: "Remove every chunk of an indexed PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "List the indexed pages nearest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var dropTableCmd = &cobra.Command{
	Use:   "drop-table [table]",
	Short: "Delete a table and everything indexed in it",
	Long: `Delete a table and everything indexed in it. Without an argument the
configured table is dropped. A table must be dropped before it can be
reused with an embedding model of another dimension.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDropTable,
}

func runAdd(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	fileID := addFileID
	if fileID == "" {
		fileID = helper.NewFileID()
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.db.Ingest(cmd.Context(), data, filepath.Base(args[0]), fileID, cfg.Store.Table)
	if err != nil {
		return err
	}
	cmd.Printf("%s: %d chunks\n", fileID, n)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.db.Remove(cmd.Context(), args[0], cfg.Store.Table)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.db.QueryText(cmd.Context(), strings.Join(args, " "), cfg.Store.Table, searchLimit)
	if err != nil {
		return err
	}
	for _, r := range results {
		cmd.Printf("%.4f  %s  p. %d  %s\n", r.Distance, r.FileName, r.PageIndex, r.FileID)
	}
	return nil
}

func runDropTable(cmd *cobra.Command, args []string) error {
	table := cfg.Store.Table
	if len(args) == 1 {
		table = args[0]
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.db.DropTable(cmd.Context(), table)
}
