// cmd/bridge/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	bmodbus "github.com/tamzrod/modbus-bridge/internal/bridge/modbus"
	"github.com/tamzrod/modbus-bridge/internal/channel"
	"github.com/tamzrod/modbus-bridge/internal/config"
	"github.com/tamzrod/modbus-bridge/internal/cycle"
	"github.com/tamzrod/modbus-bridge/internal/device"
	"github.com/tamzrod/modbus-bridge/internal/logger"
	"github.com/tamzrod/modbus-bridge/internal/scheduler"
	"github.com/tamzrod/modbus-bridge/internal/writer"
)

const statusInterval = time.Second

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: bridge <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(logger.Options{Level: level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Build one worker per bus
	// --------------------

	store := channel.NewStore()
	cycleTime := cfg.CycleTime()

	var (
		buses   []*device.Bus
		workers []cycle.Worker
	)
	for _, b := range cfg.Bridges {
		bus, err := device.BuildBus(b, cycleTime, store, lg, nil)
		if err != nil {
			lg.Error("bridge build failed", "bridge", b.ID, "err", err)
			os.Exit(1)
		}
		defer bus.Client.Close()

		// an unreachable bus is not fatal: the worker keeps retrying
		if err := bus.Client.Open(ctx); err != nil {
			lg.Warn("bridge not connected", "bridge", bus.ID, "err", err)
		}

		buses = append(buses, bus)
		workers = append(workers, bus.Worker)
	}

	driver, err := cycle.New(cycle.Config{
		Interval: cycleTime,
		Swap:     store.SwapProcessImage,
		Logger:   lg,
	}, workers...)
	if err != nil {
		lg.Error("cycle setup failed", "err", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return driver.Run(gctx) })

	// --------------------
	// Status memory (optional)
	// --------------------

	if plans := writer.BuildStatusPlans(cfg); len(plans) > 0 {
		sm := cfg.StatusMemory
		statusClient, err := bmodbus.New(bmodbus.Config{
			Endpoint: sm.Endpoint,
			Timeout:  time.Duration(sm.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			lg.Error("status memory setup failed", "err", err)
			os.Exit(1)
		}
		defer statusClient.Close()

		pub := writer.NewPublisher(plans, writer.TransportClient{T: statusClient}, health(buses), lg.With("status_memory", sm.Endpoint))
		g.Go(func() error {
			pub.Run(gctx, statusInterval)
			return nil
		})
		lg.Info("status publishing enabled", "endpoint", sm.Endpoint, "devices", pub.Len())
	}

	if err := g.Wait(); err != nil {
		lg.Error("bridge stopped", "err", err)
	}
}

// health looks a component up on every bus.
func health(buses []*device.Bus) writer.HealthSource {
	return func(component string) (scheduler.ComponentState, bool) {
		for _, b := range buses {
			if st, ok := b.Worker.ComponentHealth(component); ok {
				return st, true
			}
		}
		return scheduler.ComponentState{}, false
	}
}
