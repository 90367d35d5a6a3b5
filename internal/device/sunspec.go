// internal/device/sunspec.go
package device

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/tamzrod/modbus-bridge/internal/channel"
	cfg "github.com/tamzrod/modbus-bridge/internal/config"
	"github.com/tamzrod/modbus-bridge/internal/element"
	"github.com/tamzrod/modbus-bridge/internal/logger"
	"github.com/tamzrod/modbus-bridge/internal/protocol"
	"github.com/tamzrod/modbus-bridge/internal/scheduler"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

const (
	sunspecMarker = 0x53756e53 // "SunS"
	sunspecEnd    = 0xFFFF
	sunspecCommon = 1
)

// Discovery channels. They leave the store once the walk is over.
const (
	chMarker = "sunspec_marker"
	chModel  = "sunspec_model"
	chLength = "sunspec_length"
)

// Registrar queues registry mutations for the worker goroutine.
type Registrar interface {
	Enqueue(fn func(*protocol.Registry))
}

type sunspecStep uint8

const (
	stepMarker sunspecStep = iota + 1
	stepHeader
	stepBody
)

type sunspecBlock struct {
	model   sunspecModel
	start   uint16 // first body register
	length  uint16
	defined map[string]bool
}

// SunSpec builds the register map of a SunSpec device from the device itself.
//
// The device starts with a single ONCE task reading the "SunS" marker and the
// first model header. Every successful read moves the walk one step along the
// model chain: header, then the body of a wanted model, then the next header.
// Each step swaps the component's protocol through the worker queue, so the
// walk advances at most one step per cycle. At the end-of-map header the
// final protocol replaces the discovery task: one FC3 task per supported
// model, with points the device reports as not implemented left out.
//
// Observe must be called from the worker's OnTask hook.
type SunSpec struct {
	component string
	unitID    uint8
	conf      cfg.SunSpecConfig
	wanted    map[uint16]bool

	reg   Registrar
	store *channel.Store
	log   logger.Logger

	current *task.Task
	step    sunspecStep
	next    uint32 // header address of the next step
	body    *sunspecBlock
	commons int
	blocks  []sunspecBlock

	done atomic.Bool
}

// NewSunSpec prepares the walk for d. d.SunSpec must be set and normalized.
func NewSunSpec(d cfg.DeviceConfig, reg Registrar, store *channel.Store, log logger.Logger) *SunSpec {
	s := &SunSpec{
		component: d.ID,
		unitID:    d.UnitID,
		conf:      *d.SunSpec,
		reg:       reg,
		store:     store,
		log:       log,
	}
	if len(s.conf.Models) > 0 {
		s.wanted = make(map[uint16]bool, len(s.conf.Models))
		for _, m := range s.conf.Models {
			if _, ok := sunspecModels[m]; !ok {
				log.Warn("sunspec model not supported", "model", m)
			}
			s.wanted[m] = true
		}
	}
	return s
}

// Start returns the discovery protocol to register.
func (s *SunSpec) Start() (*protocol.Protocol, error) {
	base := s.conf.Base
	t, err := task.NewRead(s.component, task.ReadHoldingRegisters, task.Once,
		element.Element{Address: base, Type: element.Uint32, Channel: chMarker},
		element.Element{Address: base + 2, Type: element.Uint16, Channel: chModel},
		element.Element{Address: base + 3, Type: element.Uint16, Channel: chLength},
	)
	if err != nil {
		return nil, err
	}
	s.current, s.step = t, stepMarker
	return protocol.New(s.component, s.unitID, t)
}

// Done reports whether the walk is over, successfully or not.
func (s *SunSpec) Done() bool { return s.done.Load() }

// Models returns the ids of the models found so far.
func (s *SunSpec) Models() []uint16 {
	ids := make([]uint16, 0, len(s.blocks))
	for _, b := range s.blocks {
		ids = append(ids, b.model.id)
	}
	return ids
}

// Observe advances the walk when res is a successful read of the current
// discovery task. Anything else is ignored; a failed read is retried by the
// scheduler.
func (s *SunSpec) Observe(res scheduler.TaskResult) {
	if s.done.Load() || res.Err != nil || res.Task == nil || res.Task != s.current {
		return
	}

	switch s.step {
	case stepMarker:
		if v := s.reading(chMarker); v != sunspecMarker {
			s.log.Error("not a sunspec device", "marker", fmt.Sprintf("%#x", v), "base", s.conf.Base)
			s.abandon()
			return
		}
		s.header(uint32(s.conf.Base) + 2)
	case stepHeader:
		s.header(s.next)
	case stepBody:
		s.closeBody()
		s.readHeader(s.next)
	}
}

// header handles the model header that was just read at addr.
func (s *SunSpec) header(addr uint32) {
	id := s.reading(chModel)
	length := s.reading(chLength)
	if id < 0 || length < 0 {
		s.log.Error("sunspec header unreadable", "address", addr)
		s.finish()
		return
	}
	if id == sunspecEnd {
		s.finish()
		return
	}
	if id == sunspecCommon {
		s.commons++
	}
	next := addr + 2 + uint32(length)

	if s.commons == s.conf.CommonBlock && s.wants(uint16(id)) {
		m, ok := sunspecModels[uint16(id)]
		if !ok {
			s.log.Warn("sunspec model skipped", "model", id, "address", addr, "reason", "not supported")
			s.readHeader(next)
			return
		}
		start := uint16(addr + 2)
		els := m.elements(start, uint16(length))
		if len(els) == 0 {
			s.log.Warn("sunspec model skipped", "model", id, "address", addr, "reason", "empty body")
			s.readHeader(next)
			return
		}
		t, err := task.NewRead(s.component, task.ReadHoldingRegisters, task.Once, els...)
		if err != nil {
			s.log.Warn("sunspec model skipped", "model", id, "address", addr, "err", err)
			s.readHeader(next)
			return
		}
		s.body = &sunspecBlock{model: m, start: start, length: uint16(length)}
		s.next = next
		s.swap(stepBody, t)
		return
	}

	s.readHeader(next)
}

func (s *SunSpec) readHeader(addr uint32) {
	if addr+2 > 1<<16 {
		s.log.Warn("sunspec model chain runs past the register space", "address", addr)
		s.finish()
		return
	}
	a := uint16(addr)
	t, err := task.NewRead(s.component, task.ReadHoldingRegisters, task.Once,
		element.Element{Address: a, Type: element.Uint16, Channel: chModel},
		element.Element{Address: a + 1, Type: element.Uint16, Channel: chLength},
	)
	if err != nil {
		s.log.Error("sunspec header task rejected", "address", addr, "err", err)
		s.finish()
		return
	}
	s.next = addr
	s.swap(stepHeader, t)
}

// closeBody records which points of the body just read are implemented and
// drops the channels of the others.
func (s *SunSpec) closeBody() {
	b := s.body
	s.body = nil
	b.defined = make(map[string]bool)

	for _, e := range b.model.elements(b.start, b.length) {
		if e.IsDummy() {
			continue
		}
		id := channel.ID{Component: s.component, Channel: e.Channel}
		if ch, ok := s.store.Lookup(id); ok && implemented(ch.NextValue()) {
			b.defined[e.Channel] = true
			continue
		}
		s.store.Remove(id)
	}

	s.blocks = append(s.blocks, *b)
	s.log.Info("sunspec model found",
		"model", b.model.id,
		"label", b.model.label,
		"address", b.start-2,
		"points", len(b.defined),
	)
}

func (s *SunSpec) finish() {
	s.done.Store(true)
	s.dropDiscoveryChannels()

	var tasks []*task.Task
	for _, b := range s.blocks {
		els := b.model.elements(b.start, b.length)
		first, used := -1, 0
		for i, e := range els {
			if e.IsDummy() {
				continue
			}
			if !b.defined[e.Channel] {
				els[i] = element.Element{Address: e.Address, Type: element.Dummy, Length: e.Width()}
				continue
			}
			if first < 0 {
				first = i
			}
			used = i + 1
		}
		if first < 0 {
			continue
		}
		t, err := task.NewRead(s.component, task.ReadHoldingRegisters, b.model.priority, els[first:used]...)
		if err != nil {
			s.log.Warn("sunspec model task rejected", "model", b.model.id, "err", err)
			continue
		}
		tasks = append(tasks, t)
	}

	if len(tasks) == 0 {
		s.log.Error("sunspec device offers no supported model")
		s.remove()
		return
	}

	p, err := protocol.New(s.component, s.unitID, tasks...)
	if err != nil {
		s.log.Warn("sunspec register map rejected in part", "err", err)
	}
	s.current = nil
	s.replace(p)

	models := s.Models()
	sort.Slice(models, func(i, j int) bool { return models[i] < models[j] })
	s.log.Info("sunspec identified", "models", models, "tasks", p.Len())
}

func (s *SunSpec) abandon() {
	s.done.Store(true)
	s.current = nil
	s.remove()
}

func (s *SunSpec) swap(step sunspecStep, t *task.Task) {
	p, err := protocol.New(s.component, s.unitID, t)
	if err != nil {
		s.log.Error("sunspec step rejected", "task", t, "err", err)
		s.done.Store(true)
		return
	}
	s.step, s.current = step, t
	s.replace(p)
}

// replace swaps in p unless the component was removed meanwhile.
func (s *SunSpec) replace(p *protocol.Protocol) {
	s.reg.Enqueue(func(r *protocol.Registry) {
		if _, ok := r.Get(s.component); ok {
			r.Replace(p)
		}
	})
}

// remove unregisters the component; its channels go with it.
func (s *SunSpec) remove() {
	s.reg.Enqueue(func(r *protocol.Registry) { r.Remove(s.component) })
}

func (s *SunSpec) dropDiscoveryChannels() {
	for _, name := range []string{chMarker, chModel, chLength} {
		s.store.Remove(channel.ID{Component: s.component, Channel: name})
	}
}

func (s *SunSpec) wants(id uint16) bool {
	return s.wanted == nil || s.wanted[id]
}

// reading returns the integer a discovery channel was just given, or -1.
func (s *SunSpec) reading(name string) int64 {
	ch, ok := s.store.Lookup(channel.ID{Component: s.component, Channel: name})
	if !ok {
		return -1
	}
	v, ok := ch.NextValue().(int64)
	if !ok {
		return -1
	}
	return v
}

func implemented(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	}
	return true
}
