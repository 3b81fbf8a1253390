package main

import (
	"context"
	"errors"
	"net/http"

	"financeflow/internal/cli"
	apphttp "financeflow/internal/http"
	"financeflow/internal/log"
	"financeflow/internal/worker"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var flagWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, serve)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume transaction events and raise budget alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			if a.events == nil {
				return errors.New("worker needs a reachable AMQP_URL")
			}
			ctx, stop := cli.GracefulShutdown(ctx, a.logger)
			defer stop()
			return ignoreCanceled(consume(ctx, a))
		})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&flagWithWorker, "with-worker", false, "Also consume events in this process")
	rootCmd.AddCommand(serveCmd, workerCmd)
}

func serve(ctx context.Context, a *app) error {
	ctx, stop := cli.GracefulShutdown(ctx, a.logger)
	defer stop()

	srv := apphttp.NewServer(":"+a.cfg.Port, a.svc, a.logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting financeflow server", "port", a.cfg.Port, "backend", a.cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server shutdown error", "error", err)
			return err
		}
		a.logger.Info("Server stopped gracefully")
		return nil
	})
	if flagWithWorker && a.events != nil {
		g.Go(func() error { return ignoreCanceled(consume(gctx, a)) })
	}

	return g.Wait()
}

func consume(ctx context.Context, a *app) error {
	logger := a.logger.WithComponent(log.ComponentAMQP)
	w := worker.NewBudgetWorker(a.svc.Engine(), worker.LogNotifier{Logger: logger.Logger})
	logger.Info("Starting budget worker", "queue", a.cfg.AMQPQueue)
	return a.events.Consume(ctx, w.HandleEvent)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
