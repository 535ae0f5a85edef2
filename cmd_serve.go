package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"moveforge/internal/config"
	"moveforge/internal/logging"
	"moveforge/internal/report"
	"moveforge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve session ledgers and metrics to the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log := logging.New(cfg.LogFile, true, cfg.Debug)
		defer log.Close()

		ledger, err := store.Open(cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		srv := report.NewServer(cfg.ListenAddr, ledger, log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			log.Info("shutting down report server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	},
}
