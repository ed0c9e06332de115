package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/listing-autoposter/internal/api"
	"github.com/maltedev/listing-autoposter/internal/config"
	"github.com/maltedev/listing-autoposter/internal/events"
	"github.com/maltedev/listing-autoposter/internal/jobs"
	"github.com/maltedev/listing-autoposter/internal/runlog"
	"github.com/maltedev/listing-autoposter/internal/watcher"
)

var (
	envFile   string
	withWatch bool
)

var rootCmd = &cobra.Command{
	Use:           "autoposter",
	Short:         "Post inventory listings to Craigslist and Facebook Marketplace",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API that triggers automation runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), serve)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the store and post every Pending listing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), watch)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <listing-id>",
	Short: "Post a single listing and print its run log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return runOne(ctx, a, args[0])
		})
	},
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Post listings as their Pending status events arrive on the lifecycle stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), consume)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	serveCmd.Flags().BoolVar(&withWatch, "watch", false, "Also poll the store for Pending listings")

	rootCmd.AddCommand(serveCmd, watchCmd, runCmd, consumeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	return fn(ctx, a)
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	a.startRelay(ctx)

	manager := jobs.NewManager(a.runner, a.jobLogFactory(), a.logger)
	go manager.StartWorker(ctx)
	defer manager.Stop()

	if withWatch {
		w := watcher.New(a.store, a.runner, a.newLog("watch"), cfg.Watch.Interval, a.logger)
		go w.Run(ctx)
	}

	var outbox api.OutboxStats
	if a.relay != nil {
		outbox = a.relay
	}
	handlers := api.NewHandlers(a.store, manager, outbox, a.logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}

func watch(ctx context.Context, a *app) error {
	a.startRelay(ctx)

	w := watcher.New(a.store, a.runner, a.newLog("watch"), a.cfg.Watch.Interval, a.logger)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func consume(ctx context.Context, a *app) error {
	if a.relay == nil {
		return fmt.Errorf("consume requires STORE_BACKEND=%s", config.StorePostgres)
	}
	a.startRelay(ctx)

	w := watcher.New(a.store, a.runner, a.newLog("consume"), a.cfg.Watch.Interval, a.logger)

	consumer := events.NewConsumer(a.redis, events.DefaultConsumerConfig(), w.HandleEvent, a.logger)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runOne(ctx context.Context, a *app, id string) error {
	listing, err := a.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading listing %s: %w", id, err)
	}

	log := runlog.NewMemoryLog(0)
	report, runErr := a.runner.Run(ctx, listing, log)

	for _, line := range log.Entries() {
		fmt.Println(line)
	}
	if report != nil {
		for _, site := range report.Sites {
			fmt.Println(site.Summary())
		}
	}
	return runErr
}
