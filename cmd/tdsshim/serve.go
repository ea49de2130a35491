package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tomyedwab/tdsshim/sqlproxy/host"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sqlproxy cursor protocol over HTTP",
		Long: `Serve opens one connection to the configured database and accepts sqlproxy
requests on POST /sql. Clients point proxy_url at it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if cfg.ProxyURL != "" {
				return fmt.Errorf("serve needs a direct database connection, not proxy_url")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := root.logger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cl, err := cfg.OpenClient(ctx)
			if err != nil {
				return err
			}
			defer cl.Close()

			mux := http.NewServeMux()
			mux.Handle("/sql", host.NewSQLHost(cl, host.WithLogger(logger)))
			srv := &http.Server{Addr: cfg.Listen, Handler: mux}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("serving sqlproxy", zap.String("addr", cfg.Listen), zap.String("driver", cfg.Driver))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on, overrides the config")
	return cmd
}
