// Command loadgen fires concurrent requests at a running stampedeserver
// instance and, in burst mode, schedules periodic mass-invalidation bursts
// to exercise the jitter de-synchronization rationale.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

func main() {
	os.Exit(run())
}

func run() int {
	app := createApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "loadgen: %v\n", err)
		return 1
	}
	return 0
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:  "loadgen",
		Usage: "load generator for the stampedeserver demo",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Value: "http://localhost:8080", Usage: "stampedeserver base URL"},
			&cli.StringFlag{Name: "strategy", Value: "jitter-lock", Usage: "strategy name to hit"},
			&cli.IntFlag{Name: "concurrency", Value: 10, Usage: "number of concurrent callers"},
			&cli.IntFlag{Name: "product-count", Value: 5, Usage: "number of distinct product ids to seed and cycle through"},
			&cli.StringFlag{Name: "burst-schedule", Value: "", Usage: "cron schedule for periodic mass-invalidation bursts; empty disables burst mode"},
		},
		Action: runLoadgen,
	}
}

func runLoadgen(ctx context.Context, cmd *cli.Command) error {
	log := slog.Default()
	client := &http.Client{Timeout: 5 * time.Second}

	baseURL := cmd.String("base-url")
	strategy := cmd.String("strategy")
	productCount := cmd.Int("product-count")

	ids := make([]uuid.UUID, productCount)
	for i := range ids {
		ids[i] = uuid.New()
		if err := seed(ctx, client, baseURL, ids[i], fmt.Sprintf("product-%d", i)); err != nil {
			return fmt.Errorf("seed product %d: %w", i, err)
		}
	}

	schedule := cmd.String("burst-schedule")
	if schedule == "" {
		return fireOnce(ctx, client, baseURL, strategy, ids, int(cmd.Int("concurrency")))
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		log.Info("loadgen: mass invalidation burst starting")
		for _, id := range ids {
			if err := invalidate(context.Background(), client, baseURL, id); err != nil {
				log.Warn("loadgen: invalidate failed", "id", id, "error", err)
			}
		}
		if err := fireOnce(context.Background(), client, baseURL, strategy, ids, int(cmd.Int("concurrency"))); err != nil {
			log.Warn("loadgen: burst fire failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule burst: %w", err)
	}

	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return nil
}

func seed(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, name string) error {
	body := fmt.Sprintf(`{"id":%q,"name":%q,"price_cents":1999}`, id, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/admin/seed", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func invalidate(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID) error {
	url := fmt.Sprintf("%s/admin/invalidate/%s", baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// fireOnce fans out concurrency concurrent GETs across ids, cycling
// round-robin, and reports a simple success/failure count.
func fireOnce(ctx context.Context, client *http.Client, baseURL, strategy string, ids []uuid.UUID, concurrency int) error {
	var successes, failures atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ids[i%len(ids)]
			url := fmt.Sprintf("%s/products/%s/%s", baseURL, id, strategy)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				failures.Add(1)
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				failures.Add(1)
				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				successes.Add(1)
			} else {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()

	slog.Default().Info("loadgen: fire complete", "successes", successes.Load(), "failures", failures.Load())
	return nil
}
