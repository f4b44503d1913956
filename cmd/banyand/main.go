// Command banyand is the Banyan coordinator server: it wires the store,
// lock registry, continuation/execrecord/coordinator engines, notifier,
// availability checker, and HTTP API together and serves spec.md §6's API
// until it receives SIGINT/SIGTERM.
//
// The signal-driven shutdown loop — a goroutine that closes a "signaled"
// channel on the first os.Signal, a cancellable context, and a select over
// "signaled" vs. "completed" — is adapted directly from the teacher
// example's cmd/coordinator/coordinator.go main(), with cobra/viper
// replacing its flag-based argument parsing (SPEC_FULL.md §2.3).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/banyan/banyan/internal/auth"
	"github.com/banyan/banyan/internal/availability"
	"github.com/banyan/banyan/internal/config"
	"github.com/banyan/banyan/internal/continuation"
	"github.com/banyan/banyan/internal/coordinator"
	"github.com/banyan/banyan/internal/execrecord"
	"github.com/banyan/banyan/internal/httpapi"
	"github.com/banyan/banyan/internal/lock"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/metrics"
	"github.com/banyan/banyan/internal/notifier"
	"github.com/banyan/banyan/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "banyand",
		Short: "Banyan compute-task orchestrator server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "banyand: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logx.New("banyand")
	defer log.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr(),
		DB:   cfg.RedisDB,
	})
	defer rdb.Close()

	taskStore := store.NewRedisStore(rdb)
	locks := lock.NewRegistry()

	contEngine := continuation.New(taskStore, cfg, log.With("engine", "continuation"))
	execEngine := execrecord.New(taskStore, contEngine, cfg, log.With("engine", "execrecord"))
	coord := coordinator.New(taskStore, locks, contEngine, execEngine, log.With("component", "coordinator"))

	m := metrics.New()
	contEngine.SetMetrics(m)
	execEngine.SetMetrics(m)
	coord.SetMetrics(m)

	notifLog := log.With("component", "notifier")
	notif, err := notifier.New(notifLog, func(workerID string) {
		coord.CancelTasksForWorker(context.Background(), workerID)
	})
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}
	notif.SetMetricsHooks(
		func(t notifier.FrameType) { m.NotifierFramesSent.WithLabelValues(t.String()).Inc() },
		func(t notifier.FrameType) { m.NotifierFramesFailed.WithLabelValues(t.String()).Inc() },
	)

	checker := availability.New(taskStore, locks, contEngine, notif, cfg.UsageUpdatePoll, log.With("component", "availability"))

	identities := auth.NewIdentityStore(taskStore)
	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL)

	router := httpapi.NewRouter(httpapi.Deps{
		Coordinator: coord,
		Identities:  identities,
		Sessions:    sessions,
		Notifier:    notif,
		Metrics:     m,
		Log:         log.With("component", "httpapi"),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())

	checkerCompleted := make(chan struct{})
	go checker.Start(ctx, checkerCompleted)

	serverCompleted := make(chan struct{})
	go func() {
		defer close(serverCompleted)
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
		}
	}()

	signaled := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(signaled)
		sig := <-sigCh
		log.Infof("terminating banyand on signal %v...", sig)
	}()

	for {
		select {
		case <-signaled:
			signaled = nil
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			shutdownCancel()
		case <-checkerCompleted:
			checkerCompleted = nil
		case <-serverCompleted:
			return nil
		}
	}
}
