// internal/writer/status_writer_test.go
package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/bridge"
	cfg "github.com/tamzrod/modbus-bridge/internal/config"
	"github.com/tamzrod/modbus-bridge/internal/scheduler"
	"github.com/tamzrod/modbus-bridge/internal/status"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

type regWrite struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeEndpointClient struct {
	writes []regWrite
	err    error
}

func (f *fakeEndpointClient) WriteRegisters(_ context.Context, unitID uint8, addr uint16, regs []uint16) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, regWrite{unitID: unitID, addr: addr, regs: append([]uint16(nil), regs...)})
	return nil
}

func (f *fakeEndpointClient) last() regWrite {
	return f.writes[len(f.writes)-1]
}

func TestDeviceNameWrittenOnFullAssertOnly(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newDeviceStatusWriter(StatusPlan{Component: "dev", UnitID: 1, BaseSlot: 2, DeviceName: "DEV-01"}, cli)
	ctx := context.Background()

	if err := sw.WriteStatus(ctx, status.Snapshot{Health: status.HealthOK}); err != nil {
		t.Fatalf("initial full assert failed: %v", err)
	}

	full := cli.last()
	if len(full.regs) != status.SlotsPerDevice {
		t.Fatalf("expected full block write (%d regs), got %d", status.SlotsPerDevice, len(full.regs))
	}
	if full.addr != 2*status.SlotsPerDevice {
		t.Fatalf("unexpected block addr: got=%d want=%d", full.addr, 2*status.SlotsPerDevice)
	}
	if full.unitID != 1 {
		t.Fatalf("unexpected unit id: %d", full.unitID)
	}

	name := status.EncodeDeviceName("DEV-01")
	for i := 0; i < status.SlotDeviceNameSlots; i++ {
		slot := status.SlotDeviceNameStart + i
		if full.regs[slot] != name[i] {
			t.Fatalf("device name slot %d mismatch: got=%d want=%d", slot, full.regs[slot], name[i])
		}
	}

	second := status.Snapshot{Health: status.HealthError, LastErrorCode: 7, SecondsInError: 1}
	if err := sw.WriteStatus(ctx, second); err != nil {
		t.Fatalf("incremental write failed: %v", err)
	}

	// three changed slots, one register each
	if len(cli.writes) != 4 {
		t.Fatalf("expected 3 incremental writes, got %d", len(cli.writes)-1)
	}
	for _, w := range cli.writes[1:] {
		if len(w.regs) != 1 {
			t.Fatalf("device name should not be rewritten on incremental update")
		}
	}
}

func TestUnchangedSnapshotWritesNothing(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newDeviceStatusWriter(StatusPlan{Component: "dev", UnitID: 1}, cli)
	ctx := context.Background()

	s := status.Snapshot{Health: status.HealthOK}
	if err := sw.WriteStatus(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteStatus(ctx, s); err != nil {
		t.Fatal(err)
	}
	if len(cli.writes) != 1 {
		t.Fatalf("expected only the full assert, got %d writes", len(cli.writes))
	}
}

func TestSecondsInErrorResetOnRecovery(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newDeviceStatusWriter(StatusPlan{Component: "dev", UnitID: 1}, cli)
	ctx := context.Background()

	if err := sw.WriteStatus(ctx, status.Snapshot{Health: status.HealthError, LastErrorCode: 42, SecondsInError: 3}); err != nil {
		t.Fatalf("error snapshot write failed: %v", err)
	}
	// keep the error code so only health and seconds change
	if err := sw.WriteStatus(ctx, status.Snapshot{Health: status.HealthOK, LastErrorCode: 42}); err != nil {
		t.Fatalf("recovery snapshot write failed: %v", err)
	}

	w := cli.last()
	if w.addr != status.SlotSecondsInError {
		t.Fatalf("unexpected write addr: got=%d want=%d", w.addr, status.SlotSecondsInError)
	}
	if len(w.regs) != 1 || w.regs[0] != 0 {
		t.Fatalf("seconds_in_error not reset: %v", w.regs)
	}
}

func TestFailedWriteForcesFullReassert(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw := newDeviceStatusWriter(StatusPlan{Component: "dev", UnitID: 1}, cli)
	ctx := context.Background()

	if err := sw.WriteStatus(ctx, status.Snapshot{Health: status.HealthOK}); err != nil {
		t.Fatal(err)
	}

	cli.err = errors.New("connection reset")
	if err := sw.WriteStatus(ctx, status.Snapshot{Health: status.HealthError, LastErrorCode: 1}); err == nil {
		t.Fatalf("expected write error")
	}

	cli.err = nil
	if err := sw.WriteStatus(ctx, status.Snapshot{Health: status.HealthError, LastErrorCode: 1}); err != nil {
		t.Fatal(err)
	}
	if got := len(cli.last().regs); got != status.SlotsPerDevice {
		t.Fatalf("expected full block after failure, got %d regs", got)
	}
}

func TestNilClient(t *testing.T) {
	sw := newDeviceStatusWriter(StatusPlan{Component: "dev"}, nil)
	if err := sw.WriteStatus(context.Background(), status.Snapshot{}); err == nil {
		t.Fatalf("expected error without client")
	}
}

func TestPublisher(t *testing.T) {
	cli := &fakeEndpointClient{}
	now := time.Unix(1000, 0)

	states := map[string]scheduler.ComponentState{
		"ok":  {Component: "ok", LastSuccess: now},
		"bad": {Component: "bad", Failures: 3, FailingSince: now.Add(-10 * time.Second), LastErr: errors.New("timeout"), Suspended: true},
	}
	source := func(component string) (scheduler.ComponentState, bool) {
		st, ok := states[component]
		return st, ok
	}

	plans := []StatusPlan{
		{Component: "ok", UnitID: 9, BaseSlot: 0},
		{Component: "bad", UnitID: 9, BaseSlot: 1},
		{Component: "gone", UnitID: 9, BaseSlot: 2},
	}
	p := NewPublisher(plans, cli, source, nil)
	p.now = func() time.Time { return now }

	if p.Len() != 3 {
		t.Fatalf("expected 3 writers, got %d", p.Len())
	}
	if err := p.Publish(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(cli.writes) != 3 {
		t.Fatalf("expected 3 full blocks, got %d", len(cli.writes))
	}

	want := []struct {
		health  uint16
		errCode uint16
		seconds uint16
	}{
		{status.HealthOK, 0, 0},
		{status.HealthSuspended, 1, 10},
		{status.HealthDisabled, 0, 0},
	}
	for i, w := range want {
		regs := cli.writes[i].regs
		if cli.writes[i].addr != uint16(i)*status.SlotsPerDevice {
			t.Fatalf("block %d at addr %d", i, cli.writes[i].addr)
		}
		if regs[status.SlotHealthCode] != w.health ||
			regs[status.SlotLastErrorCode] != w.errCode ||
			regs[status.SlotSecondsInError] != w.seconds {
			t.Fatalf("block %d: got %v", i, regs[:3])
		}
	}
}

func TestPublisherJoinsErrors(t *testing.T) {
	cli := &fakeEndpointClient{err: errors.New("refused")}
	source := func(string) (scheduler.ComponentState, bool) { return scheduler.ComponentState{}, false }

	p := NewPublisher([]StatusPlan{{Component: "a"}, {Component: "b", BaseSlot: 1}}, cli, source, nil)
	err := p.Publish(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, cli.err) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

type recordingTransport struct {
	reqs []bridge.Request
}

func (r *recordingTransport) Execute(_ context.Context, req bridge.Request) (bridge.Response, error) {
	r.reqs = append(r.reqs, req)
	return bridge.Response{}, nil
}

func TestTransportClientIssuesFC16(t *testing.T) {
	tr := &recordingTransport{}
	c := TransportClient{T: tr}

	if err := c.WriteRegisters(context.Background(), 4, 40, []uint16{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if len(tr.reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(tr.reqs))
	}
	req := tr.reqs[0]
	if req.Function != task.WriteMultipleRegisters || req.UnitID != 4 || req.Address != 40 || req.Quantity != 3 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestBuildStatusPlans(t *testing.T) {
	slot := uint16(3)
	c := &cfg.Config{
		StatusMemory: &cfg.StatusMemoryConfig{Endpoint: "127.0.0.1:1502", UnitID: 7},
		Bridges: []cfg.BridgeConfig{{
			Devices: []cfg.DeviceConfig{
				{ID: "plc1", StatusSlot: &slot, DeviceName: "PLC-1"},
				{ID: "plc2"},
			},
		}},
	}

	plans := BuildStatusPlans(c)
	if len(plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(plans))
	}
	want := StatusPlan{Component: "plc1", UnitID: 7, BaseSlot: 3, DeviceName: "PLC-1"}
	if plans[0] != want {
		t.Fatalf("got %+v want %+v", plans[0], want)
	}

	c.StatusMemory = nil
	if BuildStatusPlans(c) != nil {
		t.Fatalf("no status memory means no plans")
	}
}
