// internal/writer/client.go
package writer

import (
	"context"

	"github.com/tamzrod/modbus-bridge/internal/bridge"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

// TransportClient writes status registers through a bridge transport with
// FC16 requests.
type TransportClient struct {
	T bridge.Transport
}

func (c TransportClient) WriteRegisters(ctx context.Context, unitID uint8, addr uint16, regs []uint16) error {
	_, err := c.T.Execute(ctx, bridge.Request{
		UnitID:    unitID,
		Function:  task.WriteMultipleRegisters,
		Address:   addr,
		Quantity:  uint16(len(regs)),
		Registers: regs,
	})
	return err
}
