// Command pdf-rag indexes PDF files into a vector store and answers questions
// about them, from the command line or over HTTP.
package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	configPath string
	logLevel   string
	version    = "dev"

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pdf-rag",
	Short: "Retrieval-augmented question answering over PDF files",
	Long: `pdf-rag splits PDF files into page chunks, embeds them into a vector
store and answers questions with citations to the pages it used.

Examples:
  # Index every PDF of a directory
  pdf-rag ingest ./pdfs db_semantic/

  # Ask a question
  pdf-rag ask "What is the refund policy?"

  # Serve /chat and /rag
  pdf-rag serve`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config file")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	c, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	helper.SetupLogger(c.Log.Level, c.Log.Pretty)
	log.Debug().Str("config", configPath).Str("command", cmd.Name()).Msg("Loaded config")

	cfg = c
	return nil
}
