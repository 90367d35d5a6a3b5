// internal/device/builder.go
package device

import (
	"errors"
	"fmt"

	cfg "github.com/tamzrod/modbus-bridge/internal/config"
	"github.com/tamzrod/modbus-bridge/internal/element"
	"github.com/tamzrod/modbus-bridge/internal/protocol"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

// BuildProtocol converts one device's register map into a Protocol.
// Tasks that cannot be built or that overlap an earlier task are reported in
// the returned error and left out; the protocol keeps the rest.
func BuildProtocol(d cfg.DeviceConfig) (*protocol.Protocol, error) {
	if d.ID == "" {
		return nil, errors.New("device: id required")
	}

	var (
		tasks []*task.Task
		errs  []error
	)
	for i, tc := range d.Tasks {
		t, err := BuildTask(d.ID, tc)
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s task #%d: %w", d.ID, i, err))
			continue
		}
		tasks = append(tasks, t)
	}

	p, err := protocol.New(d.ID, d.UnitID, tasks...)
	if err != nil {
		errs = append(errs, err)
	}
	return p, errors.Join(errs...)
}

// BuildTask builds one read or write task. The kind follows from the
// function code.
func BuildTask(component string, tc cfg.TaskConfig) (*task.Task, error) {
	fc := task.FunctionCode(tc.FC)
	if !fc.Valid() {
		return nil, fmt.Errorf("%w: unsupported fc %d", task.ErrInvalidLayout, tc.FC)
	}

	els := make([]element.Element, 0, len(tc.Elements))
	for _, ec := range tc.Elements {
		e, err := BuildElement(ec)
		if err != nil {
			return nil, err
		}
		els = append(els, e)
	}

	if fc.Kind() == task.Write {
		return task.NewWrite(component, fc, els...)
	}

	prio, err := task.ParsePriority(tc.Priority)
	if err != nil {
		return nil, err
	}
	return task.NewRead(component, fc, prio, els...)
}

// BuildElement parses one element descriptor.
func BuildElement(ec cfg.ElementConfig) (element.Element, error) {
	typ, err := element.ParseType(ec.Type)
	if err != nil {
		return element.Element{}, err
	}
	wo, err := element.ParseWordOrder(ec.WordOrder)
	if err != nil {
		return element.Element{}, err
	}
	bo, err := element.ParseByteOrder(ec.ByteOrder)
	if err != nil {
		return element.Element{}, err
	}
	conv, err := element.ParseConverter(ec.Converter)
	if err != nil {
		return element.Element{}, err
	}

	e := element.Element{
		Address:   ec.Address,
		Type:      typ,
		Length:    ec.Length,
		WordOrder: wo,
		ByteOrder: bo,
		Converter: conv,
		Channel:   ec.Channel,
	}
	if err := e.Validate(); err != nil {
		return element.Element{}, err
	}
	return e, nil
}
