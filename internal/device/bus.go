// internal/device/bus.go
package device

import (
	"time"

	bmodbus "github.com/tamzrod/modbus-bridge/internal/bridge/modbus"
	"github.com/tamzrod/modbus-bridge/internal/channel"
	cfg "github.com/tamzrod/modbus-bridge/internal/config"
	"github.com/tamzrod/modbus-bridge/internal/defective"
	"github.com/tamzrod/modbus-bridge/internal/logger"
	"github.com/tamzrod/modbus-bridge/internal/protocol"
	"github.com/tamzrod/modbus-bridge/internal/scheduler"
)

// Bus is one configured bridge: its transport and its worker.
type Bus struct {
	ID        string
	Client    *bmodbus.Client
	Worker    *scheduler.Worker
	Protocols int

	// SunSpec devices still walking or done walking, by device id.
	SunSpec map[string]*SunSpec
}

// BuildBus wires transport, worker and the protocols of every enabled device.
// Layout errors of single tasks are logged and do not fail the bus.
// SunSpec devices start with their discovery task and build their register
// map while the bus runs.
// The config must be validated and normalized.
func BuildBus(b cfg.BridgeConfig, cycle time.Duration, store *channel.Store, log logger.Logger, onTask func(scheduler.TaskResult)) (*Bus, error) {
	t := b.Transport
	client, err := bmodbus.New(bmodbus.Config{
		Protocol:    t.Protocol,
		Endpoint:    t.Endpoint,
		Timeout:     t.Timeout(),
		IdleTimeout: time.Duration(t.IdleTimeoutMs) * time.Millisecond,
		BaudRate:    t.BaudRate,
		DataBits:    t.DataBits,
		StopBits:    t.StopBits,
		Parity:      t.Parity,
		RS485:       t.RS485,

		// never wait longer than one cycle before retrying a dead line
		ReconnectMax: cycle,
	})
	if err != nil {
		return nil, err
	}

	sunspec := make(map[string]*SunSpec)
	observe := func(res scheduler.TaskResult) {
		if res.Task != nil {
			if s, ok := sunspec[res.Task.Component()]; ok {
				s.Observe(res)
			}
		}
		if onTask != nil {
			onTask(res)
		}
	}

	w, err := scheduler.New(scheduler.Config{
		BridgeID:         b.ID,
		CycleTime:        cycle,
		LowTasksPerCycle: b.LowTasksPerCycle,
		Defective: defective.Config{
			Threshold: b.Defective.Threshold,
			Backoff:   b.Defective.Backoff(),
		},
		Logger: log,
		OnTask: observe,
	}, client, store)
	if err != nil {
		return nil, err
	}

	bus := &Bus{ID: b.ID, Client: client, Worker: w, SunSpec: sunspec}
	blog := log.With("bridge", b.ID)

	for _, d := range b.Devices {
		if d.Disabled {
			blog.Info("device disabled", "device", d.ID)
			continue
		}

		var (
			p  *protocol.Protocol
			id *SunSpec
		)
		if d.SunSpec != nil {
			id = NewSunSpec(d, w, store, blog.With("device", d.ID))
			p, err = id.Start()
		} else {
			p, err = BuildProtocol(d)
		}
		if err != nil {
			blog.Warn("register map rejected in part", "device", d.ID, "err", err)
		}
		if p == nil {
			continue
		}
		if err := w.AddProtocol(p); err != nil {
			blog.Error("device not registered", "device", d.ID, "err", err)
			continue
		}
		if id != nil {
			sunspec[d.ID] = id
		}
		bus.Protocols++
		blog.Info("device registered", "device", d.ID, "unit_id", d.UnitID, "tasks", p.Len())
	}

	return bus, nil
}
