// Package bridge defines the transport contract the scheduler executes tasks on.
// One Transport is one physical bus: requests are executed one at a time.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/tamzrod/modbus-bridge/internal/task"
)

// ErrNotConnected is returned while the transport waits to reconnect.
var ErrNotConnected = errors.New("bridge: not connected")

// Request is one wire transaction.
type Request struct {
	UnitID   uint8
	Function task.FunctionCode
	Address  uint16
	Quantity uint16

	// Write payload. Exactly one is used depending on Function.
	Registers []uint16
	Coils     []bool
}

func (r Request) String() string {
	return fmt.Sprintf("%s unit=%d addr=%d qty=%d", r.Function, r.UnitID, r.Address, r.Quantity)
}

// Response is the raw result of a read. Writes return an empty Response.
type Response struct {
	Registers []uint16
	Coils     []bool
}

// Transport executes one request and blocks until the device answered or the
// transport's own timeout expired.
type Transport interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// Lifecycle is implemented by transports that hold a connection.
type Lifecycle interface {
	Open(ctx context.Context) error
	Close() error
}

// ReadRequest builds the request for a read task.
func ReadRequest(unitID uint8, t *task.Task) Request {
	return Request{
		UnitID:   unitID,
		Function: t.Function(),
		Address:  t.Start(),
		Quantity: t.Length(),
	}
}

// WriteRequest builds the request for one run of a write task.
func WriteRequest(unitID uint8, t *task.Task, run task.Run) Request {
	return Request{
		UnitID:    unitID,
		Function:  t.Function(),
		Address:   run.Start,
		Quantity:  run.Quantity(),
		Registers: run.Registers,
		Coils:     run.Coils,
	}
}
