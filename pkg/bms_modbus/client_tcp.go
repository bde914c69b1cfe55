package bms_modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// ModbusClient talks Modbus TCP. The underlying client serializes requests.
type ModbusClient struct {
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

func CreateModbusClient(host string, port uint, unitId uint8, timeout time.Duration,
	logger *zap.Logger, instrumentation *ModbusInstrument) (*ModbusClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	err = client.SetUnitId(unitId)
	if err != nil {
		return nil, err
	}
	return &ModbusClient{
		client:     client,
		instrument: instruments(logger.With(zap.String("target", "battery"), zap.Uint8("unit", unitId)), instrumentation),
	}, nil
}

func (c *ModbusClient) Open() error {
	return c.client.Open()
}

func (c *ModbusClient) Close() error {
	return c.client.Close()
}

func (c *ModbusClient) ReadInputRegister(addr uint16) (uint16, error) {
	defer RecordTimer("ReadInputRegister", c.instrument)()
	return c.client.ReadRegister(addr, modbus.INPUT_REGISTER)
}

func (c *ModbusClient) ReadHoldingRegister(addr uint16) (uint16, error) {
	defer RecordTimer("ReadHoldingRegister", c.instrument)()
	return c.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (c *ModbusClient) WriteRegister(addr uint16, value uint16) error {
	defer RecordTimer("WriteRegister", c.instrument)()
	return c.client.WriteRegister(addr, value)
}

// ensure interface compliance
var _ RegisterClient = (*ModbusClient)(nil)
