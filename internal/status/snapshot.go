// internal/status/snapshot.go
package status

import (
	"time"

	bmodbus "github.com/tamzrod/modbus-bridge/internal/bridge/modbus"
	"github.com/tamzrod/modbus-bridge/internal/scheduler"
)

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}

// Disabled is the snapshot of a device that is not registered.
var Disabled = Snapshot{Health: HealthDisabled}

// FromState derives the snapshot of one component at now.
//
//	no result yet           -> Unknown
//	failing, not suspended  -> Error
//	suspended               -> Suspended
//	otherwise               -> OK
func FromState(st scheduler.ComponentState, now time.Time) Snapshot {
	if st.Failures == 0 {
		if st.LastSuccess.IsZero() {
			return Snapshot{Health: HealthUnknown}
		}
		return Snapshot{Health: HealthOK}
	}

	s := Snapshot{
		Health:         HealthError,
		LastErrorCode:  bmodbus.ErrorCode(st.LastErr),
		SecondsInError: secondsSince(st.FailingSince, now),
	}
	if st.Suspended {
		s.Health = HealthSuspended
	}
	return s
}

func secondsSince(since, now time.Time) uint16 {
	if since.IsZero() || now.Before(since) {
		return 0
	}
	secs := now.Sub(since) / time.Second
	if secs > MaxSecondsInError {
		return MaxSecondsInError
	}
	return uint16(secs)
}
