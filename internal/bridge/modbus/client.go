package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"

	"github.com/tamzrod/modbus-bridge/internal/bridge"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

// Config is minimal transport config.
type Config struct {
	Protocol    string // "tcp" or "rtu"
	Endpoint    string // host:port for tcp, serial device for rtu
	Timeout     time.Duration
	IdleTimeout time.Duration

	// Serial line, rtu only.
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	RS485    bool

	// Reconnect pacing after the connection died.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// errInvalidRequest marks requests rejected before anything was sent.
var errInvalidRequest = errors.New("invalid request")

// conn is one live connection: the goburrow handler plus the client on top of it.
type conn struct {
	handler interface {
		Connect() error
		Close() error
	}
	client  modbus.Client
	setUnit func(uint8)
}

// Client implements bridge.Transport on one Modbus TCP connection or serial line.
//
// The connection is reused while healthy. When the transport dies the client
// discards it and dials again on a later request, paced by an exponential
// backoff so a dead line costs one quick error per request instead of a
// connect timeout.
type Client struct {
	mu      sync.Mutex
	cfg     Config
	dial    func() (*conn, error)
	conn    *conn
	backoff backoff.BackOff
	retryAt time.Time
	now     func() time.Time
}

var _ bridge.Transport = (*Client)(nil)
var _ bridge.Lifecycle = (*Client)(nil)

// New creates a client. It does not connect; call Open or let the first
// request connect.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus client: endpoint required")
	}
	switch cfg.Protocol {
	case "", "tcp":
		cfg.Protocol = "tcp"
	case "rtu":
		if cfg.BaudRate <= 0 {
			return nil, errors.New("modbus client: rtu needs a baud rate")
		}
	default:
		return nil, fmt.Errorf("modbus client: unknown protocol %q", cfg.Protocol)
	}
	return newClient(cfg, dialer(cfg)), nil
}

func newClient(cfg Config, dial func() (*conn, error)) *Client {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReconnectMin
	bo.MaxInterval = cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // never give up
	bo.Reset()

	return &Client{
		cfg:     cfg,
		dial:    dial,
		backoff: bo,
		now:     time.Now,
	}
}

func dialer(cfg Config) func() (*conn, error) {
	return func() (*conn, error) {
		if cfg.Protocol == "rtu" {
			h := modbus.NewRTUClientHandler(cfg.Endpoint)
			h.BaudRate = cfg.BaudRate
			h.DataBits = cfg.DataBits
			h.StopBits = cfg.StopBits
			h.Parity = cfg.Parity
			h.Timeout = cfg.Timeout
			h.IdleTimeout = cfg.IdleTimeout
			h.RS485 = serial.RS485Config{Enabled: cfg.RS485}
			if err := h.Connect(); err != nil {
				return nil, err
			}
			return &conn{
				handler: h,
				client:  modbus.NewClient(h),
				setUnit: func(id uint8) { h.SlaveId = id },
			}, nil
		}

		h := modbus.NewTCPClientHandler(cfg.Endpoint)
		h.Timeout = cfg.Timeout
		h.IdleTimeout = cfg.IdleTimeout
		if err := h.Connect(); err != nil {
			return nil, err
		}
		return &conn{
			handler: h,
			client:  modbus.NewClient(h),
			setUnit: func(id uint8) { h.SlaveId = id },
		}, nil
	}
}

// Open connects now. A failed attempt also arms the reconnect backoff.
func (c *Client) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	return c.connectLocked()
}

// Close closes the connection. The client may be reopened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.handler.Close()
	c.conn = nil
	return err
}

// Connected reports whether a connection is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) connectLocked() error {
	cn, err := c.dial()
	if err != nil {
		c.retryAt = c.now().Add(c.nextBackoff())
		return fmt.Errorf("modbus client: connect %s: %w", c.cfg.Endpoint, err)
	}
	c.conn = cn
	c.backoff.Reset()
	c.retryAt = time.Time{}
	return nil
}

func (c *Client) nextBackoff() time.Duration {
	d := c.backoff.NextBackOff()
	if d == backoff.Stop {
		d = c.cfg.ReconnectMax
	}
	return d
}

// dropLocked discards a dead connection.
func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	_ = c.conn.handler.Close()
	c.conn = nil
	c.retryAt = c.now().Add(c.nextBackoff())
}

// Execute performs one transaction. Modbus exceptions leave the connection up;
// any other error is treated as transport death.
func (c *Client) Execute(ctx context.Context, req bridge.Request) (bridge.Response, error) {
	if err := ctx.Err(); err != nil {
		return bridge.Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if c.now().Before(c.retryAt) {
			return bridge.Response{}, fmt.Errorf("%w: %s, next attempt in %s",
				bridge.ErrNotConnected, c.cfg.Endpoint, c.retryAt.Sub(c.now()).Round(time.Millisecond))
		}
		if err := c.connectLocked(); err != nil {
			return bridge.Response{}, err
		}
	}

	c.conn.setUnit(req.UnitID)

	resp, err := c.do(req)
	if err != nil {
		var mbErr *modbus.ModbusError
		if !errors.As(err, &mbErr) && !errors.Is(err, errInvalidRequest) {
			c.dropLocked()
		}
		return bridge.Response{}, fmt.Errorf("modbus: %s: %w", req, err)
	}
	return resp, nil
}

func (c *Client) do(req bridge.Request) (bridge.Response, error) {
	cl := c.conn.client
	addr, qty := req.Address, req.Quantity

	switch req.Function {
	case task.ReadCoils:
		b, err := cl.ReadCoils(addr, qty)
		if err != nil {
			return bridge.Response{}, err
		}
		return bridge.Response{Coils: unpackBits(b, int(qty))}, nil

	case task.ReadDiscreteInputs:
		b, err := cl.ReadDiscreteInputs(addr, qty)
		if err != nil {
			return bridge.Response{}, err
		}
		return bridge.Response{Coils: unpackBits(b, int(qty))}, nil

	case task.ReadHoldingRegisters:
		b, err := cl.ReadHoldingRegisters(addr, qty)
		if err != nil {
			return bridge.Response{}, err
		}
		return registerResponse(b, qty)

	case task.ReadInputRegisters:
		b, err := cl.ReadInputRegisters(addr, qty)
		if err != nil {
			return bridge.Response{}, err
		}
		return registerResponse(b, qty)

	case task.WriteSingleCoil:
		if len(req.Coils) != 1 {
			return bridge.Response{}, fmt.Errorf("%w: write single coil needs exactly one coil", errInvalidRequest)
		}
		var v uint16
		if req.Coils[0] {
			v = 0xFF00
		}
		_, err := cl.WriteSingleCoil(addr, v)
		return bridge.Response{}, err

	case task.WriteSingleRegister:
		if len(req.Registers) != 1 {
			return bridge.Response{}, fmt.Errorf("%w: write single register needs exactly one register", errInvalidRequest)
		}
		_, err := cl.WriteSingleRegister(addr, req.Registers[0])
		return bridge.Response{}, err

	case task.WriteMultipleCoils:
		_, err := cl.WriteMultipleCoils(addr, uint16(len(req.Coils)), packBits(req.Coils))
		return bridge.Response{}, err

	case task.WriteMultipleRegisters:
		_, err := cl.WriteMultipleRegisters(addr, uint16(len(req.Registers)), packRegisters(req.Registers))
		return bridge.Response{}, err
	}

	return bridge.Response{}, fmt.Errorf("%w: unsupported function code %d", errInvalidRequest, uint8(req.Function))
}

func registerResponse(b []byte, qty uint16) (bridge.Response, error) {
	if len(b) < 2*int(qty) {
		return bridge.Response{}, fmt.Errorf("short register payload: %d bytes for %d registers", len(b), qty)
	}
	return bridge.Response{Registers: unpackRegisters(b[:2*int(qty)])}, nil
}

// ErrorCode extracts a best-effort uint16 code from an error: the Modbus
// exception code when the device answered with one, 0 for nil, 1 otherwise.
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return uint16(mbErr.ExceptionCode)
	}
	return 1
}

// ---- helpers (pure geometry) ----

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		if byteIdx >= len(data) {
			break
		}
		out[i] = data[byteIdx]&(1<<(i%8)) != 0
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
