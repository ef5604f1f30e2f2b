package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mroshb/rallypoint/internal/handlers"
	"github.com/mroshb/rallypoint/internal/middleware"
	"github.com/mroshb/rallypoint/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run a queue worker in this process")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.startBackground(ctx); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(a.cfg.RateLimitPerAccount, a.cfg.RateLimitPerAccount, time.Minute)
	defer limiter.Stop()
	e := handlers.NewHandlerManager(a.cfg, a.db, a.movements, a.waves, limiter).NewServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API listening", "port", a.cfg.AppPort, "env", a.cfg.AppEnv)
		if err := e.Start(":" + a.cfg.AppPort); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if serveWithWorker {
		w := a.newWorker()
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}
