package device

import (
	"context"
	"fmt"

	"github.com/berfenger/battseq/internal/core/port"
	"github.com/berfenger/battseq/pkg/bms_modbus"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	BMW_REG_BATTERY_STATE  = 1000 // input
	BMW_REG_ERROR_BITS_1   = 1001 // input
	BMW_REG_ERROR_BITS_2   = 1002 // input
	BMW_REG_WARNING_BITS_1 = 1003 // input
	BMW_REG_WARNING_BITS_2 = 1004 // input
	BMW_REG_STATE_COMMAND  = 1400 // holding
)

type BMWBatteryState int32

const (
	BMW_STATE_UNDEFINED BMWBatteryState = -1
	BMW_STATE_OFF       BMWBatteryState = 0
	BMW_STATE_INIT      BMWBatteryState = 1
	BMW_STATE_READY     BMWBatteryState = 2
	BMW_STATE_OPERATION BMWBatteryState = 4
	BMW_STATE_ERROR     BMWBatteryState = 5
)

func (s BMWBatteryState) String() string {
	switch s {
	case BMW_STATE_OFF:
		return "OFF"
	case BMW_STATE_INIT:
		return "INIT"
	case BMW_STATE_READY:
		return "READY"
	case BMW_STATE_OPERATION:
		return "OPERATION"
	case BMW_STATE_ERROR:
		return "ERROR"
	default:
		return "UNDEFINED"
	}
}

func bmwBatteryState(raw uint16) BMWBatteryState {
	switch s := BMWBatteryState(raw); s {
	case BMW_STATE_OFF, BMW_STATE_INIT, BMW_STATE_READY, BMW_STATE_OPERATION, BMW_STATE_ERROR:
		return s
	}
	return BMW_STATE_UNDEFINED
}

const (
	BMW_COMMAND_OPEN_CONTACTORS  uint16 = 0
	BMW_COMMAND_CLOSE_CONTACTORS uint16 = 4
)

// BMWDevice is a BMW battery on Modbus. Its power state and inverter release
// handshake runs over the HTTP bridge, not through this type.
type BMWDevice struct {
	*Target
	mirror registerMirror
	logger *zap.Logger

	synced      atomic.Bool
	state       atomic.Int32
	errorBits   atomic.Uint32
	warningBits atomic.Uint32
}

func NewBMWDevice(client bms_modbus.RegisterClient, target *Target, logger *zap.Logger) *BMWDevice {
	d := &BMWDevice{
		Target: target,
		mirror: registerMirror{client: client},
		logger: logger.With(zap.String("device", "bmw")),
	}
	d.state.Store(int32(BMW_STATE_UNDEFINED))
	return d
}

func (d *BMWDevice) Open() error {
	return d.mirror.client.Open()
}

func (d *BMWDevice) Close() error {
	return d.mirror.client.Close()
}

func (d *BMWDevice) Sync(ctx context.Context) (err error) {
	// stale readings are worse than none
	defer func() {
		if err != nil {
			d.synced.Store(false)
		}
	}()
	if err := d.mirror.flush(ctx); err != nil {
		return err
	}
	regs := []uint16{BMW_REG_BATTERY_STATE, BMW_REG_ERROR_BITS_1, BMW_REG_ERROR_BITS_2,
		BMW_REG_WARNING_BITS_1, BMW_REG_WARNING_BITS_2}
	values := make([]uint16, len(regs))
	for i, reg := range regs {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := d.mirror.client.ReadInputRegister(reg)
		if err != nil {
			return fmt.Errorf("read input register %d: %w", reg, err)
		}
		values[i] = v
	}
	state := bmwBatteryState(values[0])
	if prev := BMWBatteryState(d.state.Swap(int32(state))); prev != state {
		d.logger.Info("bmw: battery state changed", zap.Stringer("from", prev), zap.Stringer("to", state))
	}
	d.errorBits.Store(uint32(values[1])<<16 | uint32(values[2]))
	d.warningBits.Store(uint32(values[3])<<16 | uint32(values[4]))
	d.synced.Store(true)
	return nil
}

func (d *BMWDevice) BatteryState() BMWBatteryState {
	return BMWBatteryState(d.state.Load())
}

func (d *BMWDevice) ErrorBits() uint32 {
	return d.errorBits.Load()
}

func (d *BMWDevice) WarningBits() uint32 {
	return d.warningBits.Load()
}

func (d *BMWDevice) HasFaults() bool {
	if !d.synced.Load() {
		return false
	}
	return d.BatteryState() == BMW_STATE_ERROR || d.ErrorBits() != 0
}

func (d *BMWDevice) IsRunning() bool {
	return d.synced.Load() && d.BatteryState() == BMW_STATE_OPERATION
}

// IsShutdown also holds for state values outside the documented set.
func (d *BMWDevice) IsShutdown() bool {
	if !d.synced.Load() {
		return false
	}
	switch d.BatteryState() {
	case BMW_STATE_OFF, BMW_STATE_READY, BMW_STATE_UNDEFINED:
		return true
	}
	return false
}

func (d *BMWDevice) StartDevice() error {
	d.mirror.write(BMW_REG_STATE_COMMAND, BMW_COMMAND_CLOSE_CONTACTORS)
	return nil
}

func (d *BMWDevice) StopDevice() error {
	d.mirror.write(BMW_REG_STATE_COMMAND, BMW_COMMAND_OPEN_CONTACTORS)
	return nil
}

// ClearFaults is a no-op: the BMS drops its error bits by itself once the
// contactors are open.
func (d *BMWDevice) ClearFaults() error {
	return nil
}

// ensure interface compliance
var _ port.Battery = (*BMWDevice)(nil)
