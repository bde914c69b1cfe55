package statemachine

// State is one of the outer lifecycle states of a battery. The numeric code
// is what gets published on the status channel.
type State int

const (
	Undefined State = -1
	GoRunning State = 10
	Running   State = 11
	GoStopped State = 20
	Stopped   State = 21
	Error     State = 30
)

var allStates = []State{Undefined, GoRunning, Running, GoStopped, Stopped, Error}

func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

func (s State) Code() int {
	return int(s)
}

func (s State) Valid() bool {
	for _, v := range allStates {
		if v == s {
			return true
		}
	}
	return false
}

func (s State) String() string {
	switch s {
	case Undefined:
		return "UNDEFINED"
	case GoRunning:
		return "GO_RUNNING"
	case Running:
		return "RUNNING"
	case GoStopped:
		return "GO_STOPPED"
	case Stopped:
		return "STOPPED"
	case Error:
		return "ERROR"
	}
	return "INVALID"
}
