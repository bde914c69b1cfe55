package statemachine

import (
	"fmt"
	"time"

	"github.com/berfenger/battseq/internal/core/domain"

	"go.uber.org/zap"
)

// TransitionObserver is notified after every state change.
type TransitionObserver interface {
	OnTransition(from, to State)
}

type Option func(*Machine)

func WithInitialState(s State) Option {
	return func(m *Machine) {
		m.current = s
	}
}

func WithObserver(o TransitionObserver) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, o)
	}
}

// Machine drives one device through its lifecycle. It is not safe for
// concurrent use except for Status and Flags.
type Machine struct {
	handlers       map[State]Handler
	current        State
	entered        bool
	forced         *State
	flags          *Flags
	observers      []TransitionObserver
	lastTransition time.Time
	logger         *zap.Logger
}

type Status struct {
	State          State
	SubState       string
	Flags          domain.SequencerFlags
	LastTransition time.Time
}

func New(handlers map[State]Handler, logger *zap.Logger, opts ...Option) (*Machine, error) {
	for _, s := range allStates {
		if handlers[s] == nil {
			return nil, fmt.Errorf("%w for state %s", ErrMissingHandler, s)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		handlers: handlers,
		current:  Undefined,
		flags:    &Flags{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.current.Valid() {
		return nil, fmt.Errorf("statemachine: invalid initial state %d", m.current)
	}
	return m, nil
}

func (m *Machine) Current() State {
	return m.current
}

func (m *Machine) Flags() *Flags {
	return m.flags
}

func (m *Machine) Status() Status {
	st := Status{
		State:          m.current,
		Flags:          m.flags.Snapshot(),
		LastTransition: m.lastTransition,
	}
	if sub, ok := m.handlers[m.current].(SubStater); ok && m.entered {
		st.SubState = sub.SubState()
	}
	return st
}

// ForceNextState makes the next Advance leave the current state for s. The
// current handler gets its OnExit and that Advance returns without stepping;
// s is entered on the call after.
func (m *Machine) ForceNextState(s State) {
	if !s.Valid() {
		return
	}
	m.forced = &s
}

// Advance runs one control cycle and returns the resulting state. It never
// panics and never returns an error: step failures become ERROR.
func (m *Machine) Advance(ctx *Context) State {
	c := m.bind(ctx)

	if m.forced != nil {
		next := *m.forced
		m.forced = nil
		if next != m.current {
			m.logger.Info("statemachine: forced transition", zap.Stringer("from", m.current), zap.Stringer("to", next))
			m.transition(c, next)
			return m.current
		}
	}

	handler := m.handlers[m.current]
	if !m.entered {
		m.entered = true
		if err := m.hook(c, "entry", handler.OnEntry); err != nil {
			m.logger.Warn("statemachine: entry failed", zap.Stringer("state", m.current), zap.Error(err))
		}
	}

	next, err := m.step(c, handler)
	if err == nil && !next.Valid() {
		err = NewStepError(UnexpectedState, m.current, fmt.Errorf("invalid next state %d", next))
	}
	if err != nil {
		m.logger.Error("statemachine: step failed", zap.Stringer("state", m.current), zap.Error(err))
		m.flags.Set(FlagRunFailed, true)
		next = Error
	} else {
		m.flags.Set(FlagRunFailed, false)
	}

	if next != m.current {
		m.transition(c, next)
	}
	return m.current
}

// Close exits the current state if it has been entered, so its handler
// releases subscriptions and pending commands. A later Advance enters the
// state again.
func (m *Machine) Close(ctx *Context) {
	if !m.entered {
		return
	}
	c := m.bind(ctx)
	if err := m.hook(c, "exit", m.handlers[m.current].OnExit); err != nil {
		m.logger.Warn("statemachine: exit failed", zap.Stringer("state", m.current), zap.Error(err))
	}
	m.entered = false
	m.logger.Debug("statemachine: closed", zap.Stringer("state", m.current))
}

func (m *Machine) bind(ctx *Context) *Context {
	c := *ctx
	c.Flags = m.flags
	if c.Logger == nil {
		c.Logger = m.logger
	}
	return &c
}

// transition exits the current handler and marks next as not yet entered.
func (m *Machine) transition(c *Context, next State) {
	from := m.current
	if m.entered {
		if err := m.hook(c, "exit", m.handlers[from].OnExit); err != nil {
			m.logger.Warn("statemachine: exit failed", zap.Stringer("state", from), zap.Error(err))
		}
	}
	m.current = next
	m.entered = false
	m.lastTransition = c.now()
	m.logger.Debug("statemachine: transition", zap.Stringer("from", from), zap.Stringer("to", next))
	for _, o := range m.observers {
		o.OnTransition(from, next)
	}
}

func (m *Machine) hook(c *Context, name string, fn func(*Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s hook panic: %v", name, r)
		}
	}()
	return fn(c)
}

func (m *Machine) step(c *Context, h Handler) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = Error
			err = NewStepError(HandlerPanic, m.current, fmt.Errorf("%v", r))
		}
	}()
	return h.Step(c)
}
