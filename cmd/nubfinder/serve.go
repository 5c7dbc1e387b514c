package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aryannaik/nubfinder/internal/server"
)

func serveCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Seed the catalog, keep it refreshed and serve the search API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Nothing can be served without an initial corpus.
			if err := a.sched.Seed(ctx); err != nil {
				a.logger.Error("seed failed", "error", err)
				return err
			}

			go a.sched.Run(ctx)

			handlers := server.NewHandlers(a.searcher, a.sched, a.index, a.store)
			srv := server.New(addr, handlers, a.metrics, a.logger)
			if err := srv.Start(ctx); err != nil {
				a.logger.Error("server", "error", err)
				return err
			}
			a.logger.Info("goodbye")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.listen)")
	return cmd
}
