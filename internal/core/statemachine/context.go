package statemachine

import (
	"time"

	"github.com/berfenger/battseq/internal/core/port"

	"go.uber.org/zap"
)

// Config holds the static sequencing parameters.
type Config struct {
	PollInterval  time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
	// StartTimeout and StopTimeout bound a composite state from entry.
	// Zero disables the bound.
	StartTimeout  time.Duration
	StopTimeout   time.Duration
	ErrorCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  2 * time.Second,
		RetryInterval: 10 * time.Second,
		MaxAttempts:   5,
		StartTimeout:  2 * time.Minute,
		StopTimeout:   2 * time.Minute,
		ErrorCooldown: 2 * time.Minute,
	}
}

func (c Config) startPolicy() attemptPolicy {
	return attemptPolicy{retryInterval: c.RetryInterval, maxAttempts: c.MaxAttempts, timeout: c.StartTimeout}
}

func (c Config) stopPolicy() attemptPolicy {
	return attemptPolicy{retryInterval: c.RetryInterval, maxAttempts: c.MaxAttempts, timeout: c.StopTimeout}
}

// Context is rebuilt by the caller for every control cycle. Handlers must not
// keep it past the hook call they received it in.
type Context struct {
	Device port.Device
	Clock  port.Clock
	Bridge port.IOBridge
	Config Config

	// Set by the Machine before every hook call.
	Flags  *Flags
	Logger *zap.Logger
}

func (c *Context) now() time.Time {
	return c.Clock.Now()
}

// Handler is the behaviour of one State.
type Handler interface {
	OnEntry(ctx *Context) error
	Step(ctx *Context) (State, error)
	OnExit(ctx *Context) error
}

// SubStater is implemented by composite handlers to expose their private
// progress for diagnostics.
type SubStater interface {
	SubState() string
}

// AttemptCounter is implemented by handlers that keep a retry budget.
type AttemptCounter interface {
	Attempts() int
}
