// Package scheduler executes the tasks of one bus, one cycle at a time.
//
// A Worker owns a Registry of protocols, a defective-component tracker and a
// transport. The cycle driver calls OnExecuteWrite and then, after the process
// image swap, OnBeforeProcessImage. The two calls must never overlap for the
// same Worker.
//
// Write phase: every write task of every non-suspended component, in
// registration order.
//
// Read phase: one pending ONCE task, then LowTasksPerCycle LOW tasks from a
// rotating cursor, then every HIGH task. Tasks of suspended components are
// skipped and do not consume a LOW slot.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/bridge"
	"github.com/tamzrod/modbus-bridge/internal/channel"
	"github.com/tamzrod/modbus-bridge/internal/defective"
	"github.com/tamzrod/modbus-bridge/internal/element"
	"github.com/tamzrod/modbus-bridge/internal/logger"
	"github.com/tamzrod/modbus-bridge/internal/protocol"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

// Phase is one half of a cycle.
type Phase uint8

const (
	WritePhase Phase = iota + 1
	ReadPhase
)

func (p Phase) String() string {
	switch p {
	case WritePhase:
		return "write"
	case ReadPhase:
		return "read"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Config is the per-bus worker configuration.
type Config struct {
	BridgeID string

	// CycleTime is the external cycle length. Zero disables the
	// cycle-too-short check.
	CycleTime time.Duration

	// LowTasksPerCycle is the number of LOW slots per read phase. Default 1.
	LowTasksPerCycle int

	Defective defective.Config

	Logger logger.Logger

	// Now is the clock for the tracker and all timings. Default time.Now.
	Now func() time.Time

	// OnTask, if set, is called on the worker goroutine after every task
	// visit. It must not block.
	OnTask func(TaskResult)
}

// TaskResult describes one task visit.
type TaskResult struct {
	BridgeID string
	Phase    Phase
	Task     *task.Task
	Duration time.Duration
	Err      error

	// Idle is true for a write task without pending values: it was visited
	// but nothing was sent.
	Idle bool
}

// Worker schedules the tasks of one bus.
type Worker struct {
	cfg       Config
	log       logger.Logger
	transport bridge.Transport
	store     *channel.Store

	registry *protocol.Registry
	tracker  *defective.Tracker

	low      rotation
	once     rotation
	onceDone map[*task.Task]struct{}

	lastSuccess map[string]time.Time
	components  map[string]struct{}

	qmu     sync.Mutex
	pending []func(*protocol.Registry)

	cycleStart time.Time
	current    Stats

	mu     sync.Mutex
	stats  Stats
	health map[string]ComponentState
}

// New creates a worker. The store may be shared with workers of other buses.
func New(cfg Config, transport bridge.Transport, store *channel.Store) (*Worker, error) {
	if transport == nil {
		return nil, errors.New("scheduler: transport required")
	}
	if store == nil {
		return nil, errors.New("scheduler: channel store required")
	}
	if cfg.LowTasksPerCycle <= 0 {
		cfg.LowTasksPerCycle = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}

	return &Worker{
		cfg:         cfg,
		log:         cfg.Logger.With("bridge", cfg.BridgeID),
		transport:   transport,
		store:       store,
		registry:    protocol.NewRegistry(),
		tracker:     defective.New(cfg.Defective, cfg.Now),
		onceDone:    make(map[*task.Task]struct{}),
		lastSuccess: make(map[string]time.Time),
		components:  make(map[string]struct{}),
		health:      make(map[string]ComponentState),
	}, nil
}

func (w *Worker) ID() string { return w.cfg.BridgeID }

// AddProtocol registers p after all other protocols.
// Call it before the first cycle or from the driving goroutine; use Enqueue
// from anywhere else.
func (w *Worker) AddProtocol(p *protocol.Protocol) error {
	if err := w.registry.Add(p); err != nil {
		return err
	}
	w.reconcile()
	return nil
}

// RemoveProtocol unregisters a component and drops its failure record and
// its channels.
// Same goroutine rule as AddProtocol.
func (w *Worker) RemoveProtocol(component string) bool {
	_, ok := w.registry.Remove(component)
	if ok {
		w.reconcile()
	}
	return ok
}

// ReplaceProtocol swaps in a new protocol for p's component, keeping its
// position. Same goroutine rule as AddProtocol.
func (w *Worker) ReplaceProtocol(p *protocol.Protocol) {
	w.registry.Replace(p)
	w.reconcile()
}

// Enqueue schedules a registry mutation. It is safe for concurrent use; fn
// runs on the worker goroutine at the start of the next write phase.
func (w *Worker) Enqueue(fn func(*protocol.Registry)) {
	w.qmu.Lock()
	w.pending = append(w.pending, fn)
	w.qmu.Unlock()
}

func (w *Worker) drain() {
	w.qmu.Lock()
	fns := w.pending
	w.pending = nil
	w.qmu.Unlock()

	if len(fns) == 0 {
		return
	}
	for _, fn := range fns {
		fn(w.registry)
	}
	w.reconcile()
}

// reconcile garbage-collects state of components and tasks that are no
// longer registered. The channels of a removed component leave the store;
// a replaced protocol keeps them.
func (w *Worker) reconcile() {
	components := make(map[string]struct{})
	tasks := make(map[*task.Task]struct{})
	for _, p := range w.registry.Protocols() {
		components[p.Component()] = struct{}{}
		for _, t := range p.ReadTasks(task.Once) {
			tasks[t] = struct{}{}
		}
	}

	for _, c := range w.tracker.Defective() {
		if _, ok := components[c]; !ok {
			w.tracker.Forget(c)
		}
	}
	for c := range w.lastSuccess {
		if _, ok := components[c]; !ok {
			delete(w.lastSuccess, c)
		}
	}
	for t := range w.onceDone {
		if _, ok := tasks[t]; !ok {
			delete(w.onceDone, t)
		}
	}
	for c := range w.components {
		if _, ok := components[c]; !ok {
			w.store.RemoveComponent(c)
		}
	}
	w.components = components
}

// OnExecuteWrite runs the write phase.
func (w *Worker) OnExecuteWrite(ctx context.Context) {
	w.drain()

	now := w.cfg.Now()
	w.cycleStart = now
	w.current = Stats{}

	for _, s := range w.collect(func(p *protocol.Protocol) []*task.Task { return p.Tasks(task.Write) }) {
		if ctx.Err() != nil {
			break
		}
		if w.tracker.IsSuspended(s.task.Component()) {
			w.current.Skipped++
			continue
		}
		w.visit(ctx, WritePhase, s)
	}

	w.current.WritePhase = w.cfg.Now().Sub(now)
}

// OnBeforeProcessImage runs the read phase.
func (w *Worker) OnBeforeProcessImage(ctx context.Context) {
	now := w.cfg.Now()
	if w.cycleStart.IsZero() {
		w.cycleStart = now
	}

	// ONCE: one pending task per phase
	var once []scheduled
	for _, s := range w.collect(func(p *protocol.Protocol) []*task.Task { return p.ReadTasks(task.Once) }) {
		if _, done := w.onceDone[s.task]; !done {
			once = append(once, s)
		}
	}
	w.runRotation(ctx, &w.once, once, 1)

	// LOW: rotating cursor
	low := w.collect(func(p *protocol.Protocol) []*task.Task { return p.ReadTasks(task.Low) })
	w.runRotation(ctx, &w.low, low, w.cfg.LowTasksPerCycle)

	// HIGH: all of them
	for _, s := range w.collect(func(p *protocol.Protocol) []*task.Task { return p.ReadTasks(task.High) }) {
		if ctx.Err() != nil {
			break
		}
		if w.tracker.IsSuspended(s.task.Component()) {
			w.current.Skipped++
			continue
		}
		w.visit(ctx, ReadPhase, s)
	}

	end := w.cfg.Now()
	w.current.ReadPhase = end.Sub(now)
	w.current.Duration = end.Sub(w.cycleStart)
	w.current.CycleTooShort = w.cfg.CycleTime > 0 && w.current.Duration > w.cfg.CycleTime
	w.cycleStart = time.Time{}

	if w.current.CycleTooShort {
		w.log.Warn("cycle too short",
			"measured", w.current.Duration,
			"cycle_time", w.cfg.CycleTime,
			"executed", w.current.Executed,
			"failed", w.current.Failed,
		)
	}

	w.publish()
}

// runRotation executes up to slots eligible tasks starting at the cursor.
// Suspended tasks are passed over without consuming a slot.
func (w *Worker) runRotation(ctx context.Context, r *rotation, list []scheduled, slots int) {
	n := len(list)
	if n == 0 {
		return
	}

	start := r.start(list)
	used := 0
	for i := 0; i < n && used < slots; i++ {
		if ctx.Err() != nil {
			return
		}
		idx := (start + i) % n
		s := list[idx]
		if w.tracker.IsSuspended(s.task.Component()) {
			w.current.Skipped++
			continue
		}
		w.visit(ctx, ReadPhase, s)
		r.advance(s.task)
		used++
	}
	if used > 0 {
		r.remember(list)
	}
}

// scheduled is a task together with the unit address of its protocol.
type scheduled struct {
	unitID uint8
	task   *task.Task
}

func (w *Worker) collect(tasks func(*protocol.Protocol) []*task.Task) []scheduled {
	var out []scheduled
	for _, p := range w.registry.Protocols() {
		for _, t := range tasks(p) {
			out = append(out, scheduled{unitID: p.UnitID(), task: t})
		}
	}
	return out
}

// visit executes one task, records its outcome and notifies the observer.
func (w *Worker) visit(ctx context.Context, phase Phase, s scheduled) {
	t := s.task
	start := w.cfg.Now()

	var (
		sent bool
		err  error
	)
	if phase == WritePhase {
		sent, err = w.safely(t, func() (bool, error) { return w.write(ctx, s) })
	} else {
		sent, err = w.safely(t, func() (bool, error) { return true, w.read(ctx, s) })
	}
	d := w.cfg.Now().Sub(start)

	if sent {
		w.current.Executed++
		w.record(t, err)
	}

	w.log.Debug("task executed", "phase", phase, "task", t.String(), "duration", d, "idle", !sent)

	if w.cfg.OnTask != nil {
		w.cfg.OnTask(TaskResult{
			BridgeID: w.cfg.BridgeID,
			Phase:    phase,
			Task:     t,
			Duration: d,
			Err:      err,
			Idle:     !sent,
		})
	}
}

// safely runs fn and turns a panic into a failed transaction.
func (w *Worker) safely(t *task.Task, fn func() (bool, error)) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			sent = true
			err = fmt.Errorf("scheduler: panic executing %s: %v", t, r)
		}
	}()
	return fn()
}

func (w *Worker) record(t *task.Task, err error) {
	component := t.Component()

	if err == nil {
		if w.tracker.State(component).Failures > 0 {
			w.log.Info("component recovered", "component", component)
		}
		w.tracker.RecordResult(component, nil)
		w.lastSuccess[component] = w.cfg.Now()
		if t.Priority() == task.Once && t.Kind() == task.Read {
			w.onceDone[t] = struct{}{}
		}
		return
	}

	w.current.Failed++
	w.log.Warn("task failed", "component", component, "task", t.String(), "err", err)

	if w.tracker.RecordResult(component, err) {
		st := w.tracker.State(component)
		w.log.Warn("component suspended",
			"component", component,
			"failures", st.Failures,
			"until", st.SuspendedUntil,
		)
	}
}

// read executes a read task and sets the next value of every element that
// decoded. On a transport error no channel is touched.
func (w *Worker) read(ctx context.Context, s scheduled) error {
	t := s.task

	resp, err := w.transport.Execute(ctx, bridge.ReadRequest(s.unitID, t))
	if err != nil {
		return err
	}

	var values []task.Value
	if t.Function().IsBits() {
		values, err = t.DecodeBits(resp.Coils)
	} else {
		values, err = t.DecodeRegisters(resp.Registers)
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, v := range values {
		if v.Err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", v.Element, v.Err))
			continue
		}
		w.store.Channel(channel.ID{Component: t.Component(), Channel: v.Element.Channel}).SetNextValue(v.Value)
	}
	return errors.Join(errs...)
}

// write sends every contiguous run of pending values. It reports sent=false
// when nothing was pending. Values that cannot be encoded are logged and left
// out; they are a channel problem, not a device failure.
func (w *Worker) write(ctx context.Context, s scheduled) (bool, error) {
	t := s.task

	runs, encErrs := t.EncodeWrites(func(e element.Element) (any, bool) {
		ch, ok := w.store.Lookup(channel.ID{Component: t.Component(), Channel: e.Channel})
		if !ok {
			return nil, false
		}
		return ch.NextWriteValue()
	})
	for _, err := range encErrs {
		w.log.Warn("write value dropped", "component", t.Component(), "task", t.String(), "err", err)
	}
	if len(runs) == 0 {
		return false, nil
	}

	for _, run := range runs {
		if _, err := w.transport.Execute(ctx, bridge.WriteRequest(s.unitID, t, run)); err != nil {
			return true, err
		}
	}
	return true, nil
}

// rotation is a cursor over an ordered task list that survives registry
// changes: it resumes after the task it ran last or, when that task is gone,
// at its first successor that is still listed.
type rotation struct {
	last *task.Task
	seen []*task.Task // list as of the last run
}

func (r *rotation) start(list []scheduled) int {
	if r.last == nil {
		return 0
	}
	pos := make(map[*task.Task]int, len(list))
	for i, s := range list {
		pos[s.task] = i
	}
	if i, ok := pos[r.last]; ok {
		return (i + 1) % len(list)
	}

	at := -1
	for i, t := range r.seen {
		if t == r.last {
			at = i
			break
		}
	}
	if at < 0 {
		return 0
	}
	for k := 1; k < len(r.seen); k++ {
		if i, ok := pos[r.seen[(at+k)%len(r.seen)]]; ok {
			return i
		}
	}
	return 0
}

func (r *rotation) advance(t *task.Task) {
	r.last = t
}

func (r *rotation) remember(list []scheduled) {
	r.seen = r.seen[:0]
	for _, s := range list {
		r.seen = append(r.seen, s.task)
	}
}
