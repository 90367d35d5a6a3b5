// Package cycle drives all bus workers through the control cycle.
//
// One cycle is: write phase on every worker, process image swap, controllers,
// read phase on every worker. Workers of different buses run each phase in
// parallel; the driver waits for all of them before moving on, so a phase
// never overlaps with itself or with the other phase.
package cycle

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/modbus-bridge/internal/logger"
)

// Worker is one bus scheduler.
type Worker interface {
	ID() string
	OnExecuteWrite(ctx context.Context)
	OnBeforeProcessImage(ctx context.Context)
}

// Result describes one completed cycle.
type Result struct {
	Cycle    uint64
	Started  time.Time
	Duration time.Duration
	// Overrun is true when the cycle took longer than the configured interval.
	Overrun bool
}

// Config configures a Driver.
type Config struct {
	Interval time.Duration

	// Swap moves every channel's next value into the process image.
	Swap func()

	// OnProcessImage runs after the swap, before the read phase. Control
	// logic reads the process image and sets next write values here.
	OnProcessImage func(ctx context.Context)

	// OnCycle runs after every completed cycle.
	OnCycle func(Result)

	Logger logger.Logger
	Now    func() time.Time
}

// Driver runs the cycle.
type Driver struct {
	cfg     Config
	log     logger.Logger
	workers []Worker
	count   uint64
}

func New(cfg Config, workers ...Worker) (*Driver, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("cycle: interval must be positive")
	}
	if cfg.Swap == nil {
		return nil, errors.New("cycle: swap function required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Driver{cfg: cfg, log: cfg.Logger, workers: workers}, nil
}

// RunOnce executes a single cycle.
func (d *Driver) RunOnce(ctx context.Context) Result {
	start := d.cfg.Now()

	d.phase(ctx, func(w Worker) { w.OnExecuteWrite(ctx) })

	d.cfg.Swap()
	if d.cfg.OnProcessImage != nil {
		d.cfg.OnProcessImage(ctx)
	}

	d.phase(ctx, func(w Worker) { w.OnBeforeProcessImage(ctx) })

	d.count++
	res := Result{
		Cycle:    d.count,
		Started:  start,
		Duration: d.cfg.Now().Sub(start),
	}
	res.Overrun = res.Duration > d.cfg.Interval

	if res.Overrun {
		d.log.Warn("cycle overrun", "cycle", res.Cycle, "duration", res.Duration, "interval", d.cfg.Interval)
	}
	if d.cfg.OnCycle != nil {
		d.cfg.OnCycle(res)
	}
	return res
}

// phase runs fn on every worker in parallel and waits for all of them.
func (d *Driver) phase(ctx context.Context, fn func(Worker)) {
	var g errgroup.Group
	for _, w := range d.workers {
		w := w
		g.Go(func() error {
			fn(w)
			return nil
		})
	}
	_ = g.Wait()
}

// Run starts the ticker loop. It returns when ctx is done.
// A slow cycle delays the next one; missed ticks are dropped.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.log.Info("cycle started", "interval", d.cfg.Interval, "workers", len(d.workers))

	for {
		select {
		case <-ctx.Done():
			d.log.Info("cycle stopped", "cycles", d.count)
			return nil
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}
