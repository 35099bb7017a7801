package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"polyglot/internal/web"
)

var serveAddr string

// serveCmd runs the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the translation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer application.close()

		server := web.New(web.Options{
			Engine:  application.engine,
			Faults:  application.faults,
			Logger:  application.logger,
			Version: Version,
		})
		return server.ListenAndServe(ctx, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "Listen address")
}
