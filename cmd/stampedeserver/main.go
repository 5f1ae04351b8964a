// Command stampedeserver runs the demo HTTP server exercising every cache
// strategy side-by-side.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/js0507dev/cache-stampede-test/cache"
	"github.com/js0507dev/cache-stampede-test/internal/httpapi"
	"github.com/js0507dev/cache-stampede-test/internal/product"
	"github.com/js0507dev/cache-stampede-test/internal/revalpool"
	"github.com/js0507dev/cache-stampede-test/metrics/prom"
)

func main() {
	os.Exit(run())
}

func run() int {
	app := createApp()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "stampedeserver: %v\n", err)
		return 1
	}
	return 0
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:  "stampedeserver",
		Usage: "demo HTTP server comparing cache-stampede strategies",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "redis-addr", Value: "", Usage: "Redis address; empty uses the in-memory store instead"},
			&cli.StringFlag{Name: "config", Value: "", Usage: "path to a YAML/JSON config file overlaying the defaults"},
			&cli.DurationFlag{Name: "origin-latency", Value: 50 * time.Millisecond, Usage: "artificial latency of the simulated origin repository"},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	log := slog.Default()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, closeStore, err := buildStore(cmd)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer closeStore()

	breakerStore, err := cache.NewBreakerStore(store, cache.BreakerStoreOptions{Name: "stampedeserver"})
	if err != nil {
		return fmt.Errorf("build breaker store: %w", err)
	}

	lock, err := cache.NewLock(breakerStore, cfg.LockTimeout,
		cache.WithLockRetryInterval(cfg.LockRetryInterval),
	)
	if err != nil {
		return fmt.Errorf("build lock: %w", err)
	}

	pool, err := revalpool.New(8, 1024, revalpool.WithName("stampedeserver"), revalpool.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build revalidation pool: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(shutdownCtx)
	}()

	metrics := prom.New(prometheus.DefaultRegisterer, "stampede", "cache")

	registry, err := cache.NewRegistry(cache.RegistryOptions{
		Store:   breakerStore,
		Lock:    lock,
		Config:  cfg,
		Metrics: metrics,
		Logger:  log,
		Pool:    pool,
	})
	if err != nil {
		return fmt.Errorf("build strategy registry: %w", err)
	}

	repo := product.NewSlowRepository(cmd.Duration("origin-latency"))

	mux := http.NewServeMux()
	httpapi.NewServer(registry, repo, log).Routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{Addr: cmd.String("addr"), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("stampedeserver: listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func loadConfig(cmd *cli.Command) (cache.Config, error) {
	path := cmd.String("config")
	if path == "" {
		return cache.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cache.Config{}, err
	}
	return cache.LoadConfig(data, cache.ConfigFormatYAML, nil)
}

// buildStore returns a Store backed by Redis when --redis-addr is set, or
// the in-memory ristretto-backed store otherwise — useful for running the
// demo with no external dependencies at all.
func buildStore(cmd *cli.Command) (cache.Store, func(), error) {
	addr := cmd.String("redis-addr")
	if addr == "" {
		mem, err := cache.NewMemoryStore(cache.MemoryStoreOptions{})
		if err != nil {
			return nil, nil, err
		}
		return mem, func() { _ = mem.Close() }, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	store, err := cache.NewRedisStore(client)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}
