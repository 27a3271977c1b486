package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/SimplyPrint/lpa-bridge/internal/api"
	"github.com/SimplyPrint/lpa-bridge/internal/logging"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "host to bind to")
	serveCmd.Flags().Int("port", 0, "port to listen on")
	serveCmd.Flags().String("lpac", "", "path to the lpac binary")
	_ = v.BindPFlag("host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("lpac.path", serveCmd.Flags().Lookup("lpac"))
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()
	defer logging.RecoverAndLog("main", true)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info(logging.CatSystem, "LPA bridge starting", map[string]any{
		"version":  api.Version,
		"settings": a.store.Path(),
		"lpac":     a.cfg.LPACPath,
	})

	opts := api.Options{
		Dispatcher: a.router,
		Cards:      a.router,
		Gatherer:   a.registry,
		Shutdown:   stop,
	}
	if a.cfg.UpdateCheck {
		opts.Updates = a.updateChecker()
	}
	srv := api.NewServer(opts)
	a.router.OnProgress(srv.BroadcastProgress)

	httpServer := &http.Server{
		Addr:              a.cfg.Address(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		srv.Hub().Run(ctx)
	})
	lifecycle.Go(func() {
		<-ctx.Done()
		logging.Info(logging.CatSystem, "Shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn(logging.CatSystem, "HTTP shutdown incomplete", map[string]any{
				"error": err.Error(),
			})
		}
	})

	logging.Info(logging.CatSystem, "Server started", map[string]any{
		"address":   a.cfg.Address(),
		"websocket": fmt.Sprintf("ws://%s/v1/ws", a.cfg.Address()),
	})

	serveErr := httpServer.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	stop()
	lifecycle.Wait()
	a.notifier.Wait()

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}
