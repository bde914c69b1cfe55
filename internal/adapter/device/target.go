package device

import (
	"github.com/berfenger/battseq/internal/core/domain"

	"go.uber.org/atomic"
)

// Target keeps the operator start/stop request and the settled status. Both
// are read from the sequencer actor and from status queries.
type Target struct {
	mode      domain.StartStopMode
	requested atomic.Int32
	marked    atomic.Int32
}

func NewTarget(mode domain.StartStopMode, initial domain.StartStop) *Target {
	if !mode.Valid() {
		mode = domain.START_STOP_MODE_AUTO
	}
	t := &Target{mode: mode}
	t.requested.Store(int32(initial))
	t.marked.Store(int32(domain.START_STOP_UNDEFINED))
	return t
}

func (t *Target) Mode() domain.StartStopMode {
	return t.mode
}

// StartStopTarget is the effective target after the configured mode.
func (t *Target) StartStopTarget() domain.StartStop {
	return t.mode.Apply(t.Requested())
}

func (t *Target) Requested() domain.StartStop {
	return domain.StartStop(t.requested.Load())
}

func (t *Target) SetStartStopTarget(value domain.StartStop) bool {
	before := t.StartStopTarget()
	t.requested.Store(int32(value))
	return t.StartStopTarget() != before
}

func (t *Target) MarkStartStop(value domain.StartStop) {
	t.marked.Store(int32(value))
}

func (t *Target) StartStop() domain.StartStop {
	return domain.StartStop(t.marked.Load())
}
