package device

import (
	"context"
	"fmt"

	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/port"
	"github.com/berfenger/battseq/pkg/bms_modbus"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	SOLTARO_REG_RESET           = 0x1004
	SOLTARO_REG_START_STOP      = 0x1017
	SOLTARO_REG_RACK_USAGE_BASE = 0x1018 // rack 1, one register per rack
	SOLTARO_REG_RUNNING_STATE   = 0x1048
	SOLTARO_REG_MASTER_ALARM    = 0x1081
	SOLTARO_REG_RACK_ALARM_BASE = 0x1082 // + rack index

	SOLTARO_RACK_OFFSET_BASE        = 0x2000 // rack 1
	SOLTARO_RACK_OFFSET_STEP        = 0x1000
	SOLTARO_RACK_RESET_OFFSET       = 0x0004
	SOLTARO_RACK_CONTACTOR_OFFSET   = 0x0010
	SOLTARO_RACK_COUNT              = 5
	SOLTARO_MASTER_ALARM_FAULT_MASK = 0b10111 // bit 3 is a level 1 warning
)

const (
	SOLTARO_START uint16 = 1
	SOLTARO_STOP  uint16 = 2

	SOLTARO_CONTACTOR_CUT_OFF uint16 = 0
	SOLTARO_CONTACTOR_ON_GRID uint16 = 3
)

func soltaroRackOffset(rack int) uint16 {
	return uint16(SOLTARO_RACK_OFFSET_BASE + (rack-1)*SOLTARO_RACK_OFFSET_STEP)
}

// SoltaroClusterDevice is a Soltaro version B rack cluster. Running and
// shutdown are read from the contactor control of every configured rack.
type SoltaroClusterDevice struct {
	*Target
	mirror registerMirror
	racks  []domain.SubUnit
	logger *zap.Logger

	synced       atomic.Bool
	contactors   [SOLTARO_RACK_COUNT]atomic.Uint32
	rackAlarms   [SOLTARO_RACK_COUNT]atomic.Uint32
	masterAlarm  atomic.Uint32
	runningState atomic.Uint32
}

// NewSoltaroClusterDevice takes the 1-based indexes of the racks installed.
func NewSoltaroClusterDevice(client bms_modbus.RegisterClient, configured []int, target *Target, logger *zap.Logger) (*SoltaroClusterDevice, error) {
	d := &SoltaroClusterDevice{
		Target: target,
		mirror: registerMirror{client: client},
		logger: logger.With(zap.String("device", "soltaro")),
	}
	used := map[int]bool{}
	for _, rack := range configured {
		if rack < 1 || rack > SOLTARO_RACK_COUNT {
			return nil, fmt.Errorf("soltaro: rack %d out of range 1..%d", rack, SOLTARO_RACK_COUNT)
		}
		used[rack] = true
	}
	if len(used) == 0 {
		return nil, fmt.Errorf("soltaro: no rack configured")
	}
	for i := 1; i <= SOLTARO_RACK_COUNT; i++ {
		d.racks = append(d.racks, domain.SubUnit{Index: i, Configured: used[i]})
	}
	return d, nil
}

func (d *SoltaroClusterDevice) Open() error {
	return d.mirror.client.Open()
}

func (d *SoltaroClusterDevice) Close() error {
	return d.mirror.client.Close()
}

func (d *SoltaroClusterDevice) Sync(ctx context.Context) (err error) {
	// stale readings are worse than none
	defer func() {
		if err != nil {
			d.synced.Store(false)
		}
	}()
	if err := d.mirror.flush(ctx); err != nil {
		return err
	}
	read := func(addr uint16) (uint16, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v, err := d.mirror.client.ReadHoldingRegister(addr)
		if err != nil {
			return 0, fmt.Errorf("read holding register 0x%04x: %w", addr, err)
		}
		return v, nil
	}

	for _, rack := range d.configuredRacks() {
		contactor, err := read(soltaroRackOffset(rack.Index) + SOLTARO_RACK_CONTACTOR_OFFSET)
		if err != nil {
			return err
		}
		alarm, err := read(uint16(SOLTARO_REG_RACK_ALARM_BASE + rack.Index))
		if err != nil {
			return err
		}
		d.contactors[rack.Index-1].Store(uint32(contactor))
		d.rackAlarms[rack.Index-1].Store(uint32(alarm))
	}
	master, err := read(SOLTARO_REG_MASTER_ALARM)
	if err != nil {
		return err
	}
	running, err := read(SOLTARO_REG_RUNNING_STATE)
	if err != nil {
		return err
	}
	d.masterAlarm.Store(uint32(master))
	d.runningState.Store(uint32(running))
	d.synced.Store(true)
	return nil
}

func (d *SoltaroClusterDevice) configuredRacks() []domain.SubUnit {
	var out []domain.SubUnit
	for _, rack := range d.racks {
		if rack.Configured {
			out = append(out, rack)
		}
	}
	return out
}

func (d *SoltaroClusterDevice) allContactors(value uint16) bool {
	if !d.synced.Load() {
		return false
	}
	for _, rack := range d.configuredRacks() {
		if d.contactors[rack.Index-1].Load() != uint32(value) {
			return false
		}
	}
	return true
}

// RunningState is the raw system running state of the master.
func (d *SoltaroClusterDevice) RunningState() uint16 {
	return uint16(d.runningState.Load())
}

func (d *SoltaroClusterDevice) HasFaults() bool {
	if !d.synced.Load() {
		return false
	}
	if d.masterAlarm.Load()&SOLTARO_MASTER_ALARM_FAULT_MASK != 0 {
		return true
	}
	for _, rack := range d.configuredRacks() {
		if d.rackAlarms[rack.Index-1].Load() != 0 {
			return true
		}
	}
	return false
}

func (d *SoltaroClusterDevice) IsRunning() bool {
	return d.allContactors(SOLTARO_CONTACTOR_ON_GRID)
}

func (d *SoltaroClusterDevice) IsShutdown() bool {
	return d.allContactors(SOLTARO_CONTACTOR_CUT_OFF)
}

func (d *SoltaroClusterDevice) StartDevice() error {
	d.mirror.write(SOLTARO_REG_START_STOP, SOLTARO_START)
	return nil
}

func (d *SoltaroClusterDevice) StopDevice() error {
	d.mirror.write(SOLTARO_REG_START_STOP, SOLTARO_STOP)
	return nil
}

// ClearFaults resets the master and every configured rack.
func (d *SoltaroClusterDevice) ClearFaults() error {
	d.mirror.write(SOLTARO_REG_RESET, 1)
	for _, rack := range d.configuredRacks() {
		d.mirror.write(soltaroRackOffset(rack.Index)+SOLTARO_RACK_RESET_OFFSET, 1)
	}
	return nil
}

func (d *SoltaroClusterDevice) SubUnits() []domain.SubUnit {
	return append([]domain.SubUnit(nil), d.racks...)
}

func (d *SoltaroClusterDevice) SetSubUnitUsage(unit domain.SubUnit, usage domain.SubUnitUsage) error {
	if unit.Index < 1 || unit.Index > SOLTARO_RACK_COUNT {
		return fmt.Errorf("soltaro: rack %d out of range", unit.Index)
	}
	d.mirror.write(uint16(SOLTARO_REG_RACK_USAGE_BASE+unit.Index-1), uint16(usage))
	return nil
}

// ensure interface compliance
var _ port.Battery = (*SoltaroClusterDevice)(nil)
var _ port.ClusterDevice = (*SoltaroClusterDevice)(nil)
