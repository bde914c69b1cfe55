package bms_modbus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRecordTimer(t *testing.T) {

	assert := assert.New(t)

	var names []string
	inst := []ModbusInstrument{{
		RecordTime: func(fnName string, readTime time.Duration) {
			names = append(names, fnName)
			assert.GreaterOrEqual(readTime, time.Duration(0))
		},
	}}

	RecordTimer("ReadInputRegister", inst)()
	RecordTimer("WriteRegister", nil)()

	assert.Equal([]string{"ReadInputRegister"}, names)
}

func TestInstrumentsSkipDebugLoggerAboveDebug(t *testing.T) {

	assert := assert.New(t)

	extra := &ModbusInstrument{RecordTime: func(string, time.Duration) {}}

	assert.Len(instruments(zap.NewNop(), extra), 1)
	assert.Len(instruments(zap.Must(zap.NewDevelopment()), extra), 2)
	assert.Empty(instruments(zap.NewNop(), nil))
}

func TestWordResult(t *testing.T) {

	assert := assert.New(t)

	v, err := wordResult([]byte{0x10, 0x17}, nil)
	assert.NoError(err)
	assert.Equal(uint16(0x1017), v)

	_, err = wordResult([]byte{0x01}, nil)
	assert.Error(err)

	_, err = wordResult(nil, errors.New("timeout"))
	assert.EqualError(err, "timeout")
}

func TestTestClient(t *testing.T) {

	assert := assert.New(t)

	client := NewTestClient()
	assert.NoError(client.Open())
	assert.True(client.Opened())

	_, err := client.ReadInputRegister(1000)
	assert.Error(err)

	client.SetInput(1000, 4)
	v, err := client.ReadInputRegister(1000)
	assert.NoError(err)
	assert.Equal(uint16(4), v)

	client.OnWrite = func(c *TestClient, addr uint16, value uint16) {
		c.SetInput(1000, value)
	}
	assert.NoError(client.WriteRegister(1400, 0))
	v, _ = client.ReadInputRegister(1000)
	assert.Equal(uint16(0), v)
	v, _ = client.ReadHoldingRegister(1400)
	assert.Equal(uint16(0), v)
	assert.Equal([]RegisterWrite{{Addr: 1400, Value: 0}}, client.Writes())

	client.Fail(errors.New("connection reset"))
	assert.Error(client.WriteRegister(1400, 4))
	_, err = client.ReadHoldingRegister(1400)
	assert.Error(err)
	assert.Len(client.Writes(), 1)

	assert.NoError(client.Close())
	assert.False(client.Opened())
}
