// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/element"
	"github.com/tamzrod/modbus-bridge/internal/logger"
	"github.com/tamzrod/modbus-bridge/internal/status"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
//
// Register map layout (gaps, overlaps, function code limits) is checked when
// the protocols are built; a bad task is rejected there without stopping the
// other devices.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	if cfg.Cycle.TimeMs < 0 {
		return fmt.Errorf("cycle.time_ms must not be negative, got %d", cfg.Cycle.TimeMs)
	}
	if len(cfg.Bridges) == 0 {
		return errors.New("at least one bridge is required")
	}
	if _, err := logger.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	switch cfg.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging: format must be json or console, got %q", cfg.Logging.Format)
	}

	cycle := cfg.CycleTime()

	bridgeIDs := make(map[string]struct{})
	// device ids are channel owners and must be unique process-wide
	deviceOwner := make(map[string]string)

	for bi, b := range cfg.Bridges {
		name := b.ID
		if name == "" {
			name = fmt.Sprintf("#%d", bi)
		} else {
			if _, dup := bridgeIDs[b.ID]; dup {
				return fmt.Errorf("bridge %q: duplicate id", b.ID)
			}
			bridgeIDs[b.ID] = struct{}{}
		}

		if err := validateTransport(b.Transport, cycle); err != nil {
			return fmt.Errorf("bridge %s: %w", name, err)
		}
		if b.Defective.Threshold < 0 || b.Defective.BackoffMs < 0 {
			return fmt.Errorf("bridge %s: defective threshold and backoff_ms must not be negative", name)
		}
		if b.LowTasksPerCycle < 0 {
			return fmt.Errorf("bridge %s: low_tasks_per_cycle must not be negative", name)
		}

		for _, d := range b.Devices {
			if d.ID == "" {
				return fmt.Errorf("bridge %s: device id required", name)
			}
			if prev, dup := deviceOwner[d.ID]; dup {
				return fmt.Errorf("device %q: duplicate id (bridges %s and %s)", d.ID, prev, name)
			}
			deviceOwner[d.ID] = name

			if b.Transport.Protocol == "rtu" && (d.UnitID < 1 || d.UnitID > 247) {
				return fmt.Errorf("device %q: rtu unit_id must be 1..247, got %d", d.ID, d.UnitID)
			}

			if s := d.SunSpec; s != nil {
				if len(d.Tasks) > 0 {
					return fmt.Errorf("device %q: sunspec devices build their own tasks", d.ID)
				}
				if s.CommonBlock < 0 {
					return fmt.Errorf("device %q: sunspec common_block must not be negative", d.ID)
				}
				if int(s.Base)+4 > 1<<16 {
					return fmt.Errorf("device %q: sunspec base %d leaves no room for a header", d.ID, s.Base)
				}
			}

			for ti, t := range d.Tasks {
				if err := validateTask(t); err != nil {
					return fmt.Errorf("device %q task #%d: %w", d.ID, ti, err)
				}
			}
		}
	}

	return validateStatus(cfg)
}

func validateTransport(t TransportConfig, cycle time.Duration) error {
	switch t.Protocol {
	case "", "tcp":
	case "rtu":
		if t.BaudRate <= 0 {
			return errors.New("transport: rtu requires baud_rate")
		}
		switch t.Parity {
		case "", "N", "E", "O":
		default:
			return fmt.Errorf("transport: parity must be N, E or O, got %q", t.Parity)
		}
	default:
		return fmt.Errorf("transport: unknown protocol %q", t.Protocol)
	}

	if t.Endpoint == "" {
		return errors.New("transport: endpoint required")
	}
	if t.TimeoutMs < 0 || t.IdleTimeoutMs < 0 {
		return errors.New("transport: timeouts must not be negative")
	}

	// a hung transaction is bounded only by this timeout
	if t.Timeout() >= cycle {
		return fmt.Errorf("transport: timeout %s must be smaller than the cycle time %s", t.Timeout(), cycle)
	}
	return nil
}

func validateTask(t TaskConfig) error {
	fc := task.FunctionCode(t.FC)
	if !fc.Valid() {
		return fmt.Errorf("unsupported fc %d", t.FC)
	}
	if fc.Kind() == task.Write && t.Priority != "" {
		return fmt.Errorf("%s: priority applies to reads only", fc)
	}
	if _, err := task.ParsePriority(t.Priority); err != nil {
		return err
	}
	if len(t.Elements) == 0 {
		return fmt.Errorf("%s: no elements", fc)
	}

	for _, e := range t.Elements {
		typ, err := element.ParseType(e.Type)
		if err != nil {
			return fmt.Errorf("element @%d: %w", e.Address, err)
		}
		if _, err := element.ParseWordOrder(e.WordOrder); err != nil {
			return fmt.Errorf("element @%d: %w", e.Address, err)
		}
		if _, err := element.ParseByteOrder(e.ByteOrder); err != nil {
			return fmt.Errorf("element @%d: %w", e.Address, err)
		}
		if _, err := element.ParseConverter(e.Converter); err != nil {
			return fmt.Errorf("element @%d: %w", e.Address, err)
		}
		if typ != element.Dummy && e.Channel == "" {
			return fmt.Errorf("element @%d: channel required", e.Address)
		}
	}
	return nil
}

// validateStatus checks device status block settings.
func validateStatus(cfg *Config) error {
	// key = status_slot
	statusOwner := make(map[uint16]string)

	for _, b := range cfg.Bridges {
		for _, d := range b.Devices {
			// device_name sanity (ASCII only)
			for i := 0; i < len(d.DeviceName); i++ {
				if d.DeviceName[i] > 0x7F {
					return fmt.Errorf("device %q: device_name must contain ASCII characters only", d.ID)
				}
			}

			// status is opt-in
			if d.StatusSlot == nil {
				continue
			}

			if cfg.StatusMemory == nil || cfg.StatusMemory.Endpoint == "" {
				return fmt.Errorf("device %q: status_slot is set but no status_memory endpoint is defined", d.ID)
			}

			slot := *d.StatusSlot
			if (uint32(slot)+1)*status.SlotsPerDevice > 1<<16 {
				return fmt.Errorf("device %q: status_slot %d exceeds the register space", d.ID, slot)
			}

			if prev, exists := statusOwner[slot]; exists {
				return fmt.Errorf(
					"status_slot collision: endpoint=%s unit_id=%d slot=%d used by devices %q and %q",
					cfg.StatusMemory.Endpoint,
					cfg.StatusMemory.UnitID,
					slot,
					prev,
					d.ID,
				)
			}
			statusOwner[slot] = d.ID
		}
	}
	return nil
}
