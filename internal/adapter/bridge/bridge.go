package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/berfenger/battseq/internal/core/port"

	"github.com/primetalk/goio/io"
	"go.uber.org/zap"
)

var (
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrWriteSubscription   = errors.New("write requests cannot be polled")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Exchanger performs a single request against the remote end.
type Exchanger interface {
	Exchange(ctx context.Context, req port.Request) (port.Response, error)
}

// Instrument receives the outcome of every exchange.
type Instrument func(endpoint string, write bool, elapsed time.Duration, err error)

type Option func(*Bridge)

func WithInstrument(fn Instrument) Option {
	return func(b *Bridge) {
		b.instrument = fn
	}
}

// Bridge implements port.IOBridge on top of a Poller and an Exchanger.
type Bridge struct {
	poller     *Poller
	exchanger  Exchanger
	timeout    time.Duration
	instrument Instrument
	logger     *zap.Logger
}

func NewBridge(poller *Poller, exchanger Exchanger, timeout time.Duration, logger *zap.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		poller:    poller,
		exchanger: exchanger,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "bridge")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) Subscribe(interval time.Duration, req port.Request, onSuccess func(port.Response), onError func(error)) (port.SubscriptionHandle, error) {
	if req.Write {
		return "", ErrWriteSubscription
	}
	return b.poller.Schedule(interval, func(ctx context.Context) error {
		resp, err := b.exchange(ctx, req)
		if err != nil {
			onError(err)
			return err
		}
		onSuccess(resp)
		return nil
	})
}

func (b *Bridge) Unsubscribe(handle port.SubscriptionHandle) error {
	return b.poller.Cancel(handle)
}

// SendCommand returns at once. The future completes from a background
// goroutine, bounded by the bridge timeout.
func (b *Bridge) SendCommand(req port.Request) *port.Future {
	future := port.NewFuture()
	go func() {
		resp, err := b.exchange(context.Background(), req)
		if err != nil {
			b.logger.Warn("bridge: command failed", zap.String("endpoint", req.Endpoint), zap.Int("value", req.Value), zap.Error(err))
		}
		future.Complete(resp, err)
	}()
	return future
}

func (b *Bridge) exchange(ctx context.Context, req port.Request) (port.Response, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	task := io.WithTimeout[port.Response](b.timeout)(io.Eval(func() (port.Response, error) {
		return b.exchanger.Exchange(ctx, req)
	}))
	result := io.RunSync(task)

	if b.instrument != nil {
		b.instrument(req.Endpoint, req.Write, time.Since(start), result.Error)
	}
	if result.Error != nil {
		return port.Response{}, result.Error
	}
	return result.Value, nil
}

// ensure interface compliance
var _ port.IOBridge = (*Bridge)(nil)
