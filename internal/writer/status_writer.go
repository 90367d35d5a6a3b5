// internal/writer/status_writer.go
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/modbus-bridge/internal/status"
)

// endpointClient is the exact contract the status writer uses.
type endpointClient interface {
	WriteRegisters(ctx context.Context, unitID uint8, addr uint16, regs []uint16) error
}

// StatusPlan is where one device's status block lives.
type StatusPlan struct {
	Component  string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// deviceStatusWriter keeps the status block of one device in sync with its
// snapshots. The first write and the first write after a failure send the
// whole block; otherwise only changed slots are written.
type deviceStatusWriter struct {
	plan StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
}

func newDeviceStatusWriter(plan StatusPlan, cli endpointClient) *deviceStatusWriter {
	return &deviceStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{Health: status.HealthUnknown},
	}
}

// WriteStatus writes s into status memory.
func (sw *deviceStatusWriter) WriteStatus(ctx context.Context, s status.Snapshot) error {
	if sw.cli == nil {
		return errors.New("status writer: no client")
	}

	baseAddr := sw.baseAddr()

	if sw.needFull {
		if err := sw.cli.WriteRegisters(ctx, sw.plan.UnitID, baseAddr, status.Encode(s, sw.plan.DeviceName)); err != nil {
			return fmt.Errorf("status writer: %s: full block: %w", sw.plan.Component, err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []string
	for _, f := range fields(&sw.last, &s) {
		if *f.last == f.next {
			continue
		}
		if err := sw.cli.WriteRegisters(ctx, sw.plan.UnitID, baseAddr+f.slot, []uint16{f.next}); err != nil {
			errs = append(errs, fmt.Sprintf("%s (slot %d): %v", f.name, f.slot, err))
			continue
		}
		*f.last = f.next
	}

	if len(errs) > 0 {
		// the block may be half written now
		sw.needFull = true
		return fmt.Errorf("status writer: %s: %s", sw.plan.Component, strings.Join(errs, "; "))
	}
	return nil
}

type field struct {
	slot uint16
	name string
	last *uint16
	next uint16
}

// fields pairs every incrementally written slot of last with its value in next.
func fields(last, next *status.Snapshot) []field {
	return []field{
		{status.SlotHealthCode, "health", &last.Health, next.Health},
		{status.SlotLastErrorCode, "last_error", &last.LastErrorCode, next.LastErrorCode},
		{status.SlotSecondsInError, "seconds_in_error", &last.SecondsInError, next.SecondsInError},
	}
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	return sw.plan.BaseSlot * status.SlotsPerDevice
}
