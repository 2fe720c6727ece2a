// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litflow/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workflow runs over HTTP with SSE progress streams",
	Long: `Serve starts the HTTP surface:

  POST /api/workflows              start a run, returns {"run_id"}
  GET  /api/workflows/{id}         current snapshot
  GET  /api/workflows/{id}/events  SSE progress, replayed on reconnect
  POST /api/search/stream          single query streamed on the request
  POST /api/queries                preview the query generated for an intent
  GET  /api/models                 models offered by the AI backend
  GET  /health, GET /metrics

Runs started with POST /api/workflows keep going when the client
disconnects. Finished runs stay available for replay for server.run_retention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []server.Option{
			server.WithMetrics(a.metrics.Handler()),
			server.WithConfigSnapshot(cfg.Redacted()),
			server.WithQueries(a.queries, cfg.Retrieval.Source),
			server.WithModels(a),
			server.WithLogger(logger),
		}
		if a.ledger != nil {
			opts = append(opts, server.WithLedger(a.ledger))
		}
		if a.mirror != nil {
			opts = append(opts, server.WithMirror(a.mirror))
		}
		srv := server.New(ctx, a.coordinator, cfg.Server.RunRetention, opts...)

		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")

	rootCmd.AddCommand(serveCmd)
}
