package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdf-rag/internal/helper"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/server"
)

const defaultShutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat, retrieval and document endpoints",
	Long: `Serve the HTTP API:

  POST   /chat                 answer the latest message directly
  POST   /rag                  answer from the indexed PDFs with references
  POST   /documents            index an uploaded PDF (multipart field "file")
  DELETE /documents/:file_id   remove an indexed PDF
  GET    /health               liveness
  GET    /metrics              Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.NewServer(rag.NewAgent(a.db, a.embedder, a.llm), rag.NewChat(a.llm), a.db, &server.Config{
		Addr:      cfg.Server.Addr,
		Table:     cfg.Store.Table,
		NewFileID: helper.NewFileID,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
		return err
	}
	return nil
}
