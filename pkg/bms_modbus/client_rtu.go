package bms_modbus

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

// RTUClient talks Modbus RTU over a serial RS485 line.
type RTUClient struct {
	handler    *modbus.RTUClientHandler
	client     modbus.Client
	instrument []ModbusInstrument
}

func CreateRTUClient(device string, baudRate int, slaveId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) *RTUClient {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = slaveId
	handler.Timeout = timeout

	return &RTUClient{
		handler:    handler,
		client:     modbus.NewClient(handler),
		instrument: instruments(logger.With(zap.String("target", "battery"), zap.Uint8("slave", slaveId)), instrumentation),
	}
}

func (c *RTUClient) Open() error {
	return c.handler.Connect()
}

func (c *RTUClient) Close() error {
	return c.handler.Close()
}

func (c *RTUClient) ReadInputRegister(addr uint16) (uint16, error) {
	defer RecordTimer("ReadInputRegister", c.instrument)()
	return wordResult(c.client.ReadInputRegisters(addr, 1))
}

func (c *RTUClient) ReadHoldingRegister(addr uint16) (uint16, error) {
	defer RecordTimer("ReadHoldingRegister", c.instrument)()
	return wordResult(c.client.ReadHoldingRegisters(addr, 1))
}

func (c *RTUClient) WriteRegister(addr uint16, value uint16) error {
	defer RecordTimer("WriteRegister", c.instrument)()
	_, err := c.client.WriteSingleRegister(addr, value)
	return err
}

// registers come back as big endian words
func wordResult(results []byte, err error) (uint16, error) {
	if err != nil {
		return 0, err
	}
	if len(results) < 2 {
		return 0, fmt.Errorf("modbus rtu: short response of %d bytes", len(results))
	}
	return binary.BigEndian.Uint16(results), nil
}

// ensure interface compliance
var _ RegisterClient = (*RTUClient)(nil)
