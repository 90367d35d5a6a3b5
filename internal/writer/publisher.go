// internal/writer/publisher.go
package writer

import (
	"context"
	"errors"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/logger"
	"github.com/tamzrod/modbus-bridge/internal/scheduler"
	"github.com/tamzrod/modbus-bridge/internal/status"
)

// HealthSource returns the scheduling state of a component. Workers satisfy
// it through ComponentHealth.
type HealthSource func(component string) (scheduler.ComponentState, bool)

// Publisher writes the status block of every opted-in device.
type Publisher struct {
	writers []*deviceStatusWriter
	source  HealthSource
	now     func() time.Time
	log     logger.Logger
}

// NewPublisher creates one status writer per plan, all sharing cli.
func NewPublisher(plans []StatusPlan, cli endpointClient, source HealthSource, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	p := &Publisher{source: source, now: time.Now, log: log}
	for _, plan := range plans {
		p.writers = append(p.writers, newDeviceStatusWriter(plan, cli))
	}
	return p
}

// Len returns the number of published devices.
func (p *Publisher) Len() int { return len(p.writers) }

// Publish writes one snapshot per device. A device that is not registered
// on any bus is reported as disabled.
func (p *Publisher) Publish(ctx context.Context) error {
	now := p.now()

	var errs []error
	for _, w := range p.writers {
		snap := status.Disabled
		if st, ok := p.source(w.plan.Component); ok {
			snap = status.FromState(st, now)
		}
		if err := w.WriteStatus(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run publishes at every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.log.Warn("status publish failed", "err", err)
			}
		}
	}
}
