package bms_modbus

import (
	"fmt"
	"sync"
)

// TestClient is an in-memory register file.
type TestClient struct {
	mu      sync.Mutex
	input   map[uint16]uint16
	holding map[uint16]uint16
	writes  []RegisterWrite
	fail    error
	opened  bool
	// OnWrite lets tests emulate the device reacting to a command.
	OnWrite func(c *TestClient, addr uint16, value uint16)
}

type RegisterWrite struct {
	Addr  uint16
	Value uint16
}

func NewTestClient() *TestClient {
	return &TestClient{
		input:   map[uint16]uint16{},
		holding: map[uint16]uint16{},
	}
}

func (c *TestClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = true
	return nil
}

func (c *TestClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	return nil
}

func (c *TestClient) ReadInputRegister(addr uint16) (uint16, error) {
	return c.read(c.input, addr)
}

func (c *TestClient) ReadHoldingRegister(addr uint16) (uint16, error) {
	return c.read(c.holding, addr)
}

func (c *TestClient) read(regs map[uint16]uint16, addr uint16) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return 0, c.fail
	}
	v, ok := regs[addr]
	if !ok {
		return 0, fmt.Errorf("illegal data address 0x%04x", addr)
	}
	return v, nil
}

func (c *TestClient) WriteRegister(addr uint16, value uint16) error {
	c.mu.Lock()
	if c.fail != nil {
		c.mu.Unlock()
		return c.fail
	}
	c.holding[addr] = value
	c.writes = append(c.writes, RegisterWrite{Addr: addr, Value: value})
	hook := c.OnWrite
	c.mu.Unlock()
	if hook != nil {
		hook(c, addr, value)
	}
	return nil
}

func (c *TestClient) SetInput(addr uint16, value uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input[addr] = value
}

func (c *TestClient) SetHolding(addr uint16, value uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holding[addr] = value
}

// Fail makes every following call return err. nil restores normal operation.
func (c *TestClient) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *TestClient) Writes() []RegisterWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RegisterWrite(nil), c.writes...)
}

func (c *TestClient) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// ensure interface compliance
var _ RegisterClient = (*TestClient)(nil)
