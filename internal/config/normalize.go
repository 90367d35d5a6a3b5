// internal/config/normalize.go
package config

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultCycleTimeMs      = 1000
	DefaultTimeoutMs        = 500
	DefaultThreshold        = 3
	DefaultBackoffMs        = 5000
	DefaultLowTasksPerCycle = 1
	DefaultProtocol         = "tcp"
	DefaultStatusTimeoutMs  = 1000
	DefaultRTUDataBits      = 8
	DefaultRTUStopBits      = 1
	DefaultRTUParity        = "N"
	DeviceNameMaxChars      = 16
	DefaultSunSpecBase      = 40000
	DefaultSunSpecCommon    = 1
)

// Normalize applies defaults and generated ids.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Cycle.TimeMs <= 0 {
		cfg.Cycle.TimeMs = DefaultCycleTimeMs
	}
	if cfg.StatusMemory != nil && cfg.StatusMemory.TimeoutMs <= 0 {
		cfg.StatusMemory.TimeoutMs = DefaultStatusTimeoutMs
	}

	for bi := range cfg.Bridges {
		b := &cfg.Bridges[bi]

		if b.ID == "" {
			b.ID = "bridge-" + uuid.NewString()
		}

		t := &b.Transport
		if t.Protocol == "" {
			t.Protocol = DefaultProtocol
		}
		if t.TimeoutMs <= 0 {
			t.TimeoutMs = DefaultTimeoutMs
		}
		if t.Protocol == "rtu" {
			if t.DataBits == 0 {
				t.DataBits = DefaultRTUDataBits
			}
			if t.StopBits == 0 {
				t.StopBits = DefaultRTUStopBits
			}
			if t.Parity == "" {
				t.Parity = DefaultRTUParity
			}
		}

		if b.Defective.Threshold <= 0 {
			b.Defective.Threshold = DefaultThreshold
		}
		if b.Defective.BackoffMs <= 0 {
			b.Defective.BackoffMs = DefaultBackoffMs
		}
		if b.LowTasksPerCycle <= 0 {
			b.LowTasksPerCycle = DefaultLowTasksPerCycle
		}

		for di := range b.Devices {
			d := &b.Devices[di]

			if s := d.SunSpec; s != nil {
				if s.Base == 0 {
					s.Base = DefaultSunSpecBase
				}
				if s.CommonBlock == 0 {
					s.CommonBlock = DefaultSunSpecCommon
				}
			}

			// Skip devices that did not opt in to status
			if d.StatusSlot == nil {
				continue
			}

			// ASCII already validated; name defaults to the id
			if d.DeviceName == "" {
				d.DeviceName = d.ID
			}
			if len(d.DeviceName) > DeviceNameMaxChars {
				d.DeviceName = d.DeviceName[:DeviceNameMaxChars]
			}
		}
	}
}

// CycleTime returns the configured cycle as a duration.
func (c *Config) CycleTime() time.Duration {
	return ms(c.Cycle.TimeMs, DefaultCycleTimeMs)
}

// Timeout returns the transport timeout as a duration.
func (t TransportConfig) Timeout() time.Duration {
	return ms(t.TimeoutMs, DefaultTimeoutMs)
}

// Backoff returns the suspension window as a duration.
func (d DefectiveConfig) Backoff() time.Duration {
	return ms(d.BackoffMs, DefaultBackoffMs)
}

func ms(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}
