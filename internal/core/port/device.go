package port

import (
	"context"

	"github.com/berfenger/battseq/internal/core/domain"
)

// Device is the facade over one physical battery. Implementations are owned
// by the surrounding component; the sequencer only queries and commands it.
type Device interface {
	HasFaults() bool
	IsRunning() bool
	IsShutdown() bool
	StartStopTarget() domain.StartStop
	StartDevice() error
	StopDevice() error
	ClearFaults() error
	// MarkStartStop publishes the settled start/stop status.
	MarkStartStop(domain.StartStop)
}

// ClusterDevice is a Device made of racks that can be enabled one by one.
type ClusterDevice interface {
	Device
	SubUnits() []domain.SubUnit
	SetSubUnitUsage(unit domain.SubUnit, usage domain.SubUnitUsage) error
}

// Battery is a Device together with its connection lifecycle and operator
// target. Device methods only touch memory; Sync does the I/O.
type Battery interface {
	Device
	Open() error
	Close() error
	// Sync flushes queued commands and refreshes readings. It blocks and must
	// not run inside a control cycle.
	Sync(ctx context.Context) error
	// SetStartStopTarget records the operator request and reports whether the
	// effective target changed.
	SetStartStopTarget(domain.StartStop) bool
	// StartStop is the last value passed to MarkStartStop.
	StartStop() domain.StartStop
}
