package bms_modbus

import (
	"time"

	"go.uber.org/zap"
)

// RegisterClient is the register level access the battery devices need.
type RegisterClient interface {
	Open() error
	Close() error
	ReadInputRegister(addr uint16) (uint16, error)
	ReadHoldingRegister(addr uint16) (uint16, error)
	WriteRegister(addr uint16, value uint16) error
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func debugLoggerInstrumentation(logger *zap.Logger) *ModbusInstrument {
	if logger == nil || !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return &ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus: call finished", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}

func instruments(logger *zap.Logger, instrumentation *ModbusInstrument) []ModbusInstrument {
	var inst []ModbusInstrument
	if logInst := debugLoggerInstrumentation(logger); logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return inst
}
