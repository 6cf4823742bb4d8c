package cli

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowbothq/flowbot/internal/config"
	"github.com/flowbothq/flowbot/server"
)

func runServe(ctx context.Context, args []string) {
	addr := config.Getenv("FLOWBOT_ADDR", "127.0.0.1:8080")
	tickInterval := config.ParseDurationEnv("FLOWBOT_TICK_INTERVAL", time.Minute)
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--addr="):
			addr = strings.TrimSpace(strings.TrimPrefix(arg, "--addr="))
		case strings.HasPrefix(arg, "--tick-interval="):
			if d, err := time.ParseDuration(strings.TrimPrefix(arg, "--tick-interval=")); err == nil {
				tickInterval = d
			}
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		log.Fatalf("[cli] %v", err)
	}
	defer a.Close()

	srv := server.NewServer(server.Config{
		Addr:      addr,
		Store:     a.store,
		Pipeline:  a.pipeline,
		Scheduler: a.scheduler,
	})

	if tickInterval > 0 {
		go runTicker(ctx, a, tickInterval)
	}

	if err := srv.ListenAndServe(ctx); err != nil && err != context.Canceled {
		log.Fatalf("[cli] server error: %v", err)
	}
}

// runTicker drives the scheduler while the server is up. Deployments
// with an external cron can disable it with FLOWBOT_TICK_INTERVAL=0 and
// hit POST /v1/scheduler/tick instead.
func runTicker(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := a.scheduler.Tick(ctx, now.UTC()); err != nil {
				log.Printf("[cli] tick failed: %v", err)
			}
		}
	}
}
