package domain

import (
	"fmt"
	"strings"
)

// StartStop is both the desired target of a device and the status it
// reports once a start or stop sequence has settled.
type StartStop int

const (
	START_STOP_UNDEFINED StartStop = iota
	START_STOP_START
	START_STOP_STOP
)

func (s StartStop) String() string {
	switch s {
	case START_STOP_START:
		return "START"
	case START_STOP_STOP:
		return "STOP"
	default:
		return "UNDEFINED"
	}
}

func ParseStartStop(value string) (StartStop, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "START", "ON":
		return START_STOP_START, nil
	case "STOP", "OFF":
		return START_STOP_STOP, nil
	case "UNDEFINED", "":
		return START_STOP_UNDEFINED, nil
	}
	return START_STOP_UNDEFINED, fmt.Errorf("invalid start/stop value %q", value)
}

// StartStopMode overrides the operator target when not AUTO.
type StartStopMode string

const (
	START_STOP_MODE_AUTO  StartStopMode = "auto"
	START_STOP_MODE_START StartStopMode = "start"
	START_STOP_MODE_STOP  StartStopMode = "stop"
)

func (m StartStopMode) Valid() bool {
	switch m {
	case START_STOP_MODE_AUTO, START_STOP_MODE_START, START_STOP_MODE_STOP:
		return true
	}
	return false
}

// Apply resolves the effective target for the given operator request.
func (m StartStopMode) Apply(requested StartStop) StartStop {
	switch m {
	case START_STOP_MODE_START:
		return START_STOP_START
	case START_STOP_MODE_STOP:
		return START_STOP_STOP
	default:
		return requested
	}
}

// SubUnit is one addressable rack of a cluster.
type SubUnit struct {
	Index      int
	Configured bool
}

type SubUnitUsage uint16

const (
	SUB_UNIT_USED   SubUnitUsage = 1
	SUB_UNIT_UNUSED SubUnitUsage = 2
)

func (u SubUnitUsage) String() string {
	if u == SUB_UNIT_USED {
		return "USED"
	}
	return "UNUSED"
}
