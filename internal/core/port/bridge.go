package port

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrFuturePending = errors.New("future: result not available yet")

type Request struct {
	Endpoint string
	Write    bool
	Value    int
}

type Response struct {
	Value int
}

type SubscriptionHandle string

// IOBridge hides the transport used to confirm and command hardware
// conditions. Callbacks run on the bridge's own goroutines.
type IOBridge interface {
	Subscribe(interval time.Duration, req Request, onSuccess func(Response), onError func(error)) (SubscriptionHandle, error)
	Unsubscribe(handle SubscriptionHandle) error
	SendCommand(req Request) *Future
}

type Clock interface {
	Now() time.Time
}

// Future is the one-shot result of a SendCommand call.
type Future struct {
	once sync.Once
	done chan struct{}
	resp Response
	err  error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func CompletedFuture(resp Response, err error) *Future {
	f := NewFuture()
	f.Complete(resp, err)
	return f
}

// Complete sets the result. Only the first call has effect.
func (f *Future) Complete(resp Response, err error) {
	f.once.Do(func() {
		f.resp = resp
		f.err = err
		close(f.done)
	})
}

func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result never blocks. It returns ErrFuturePending while the command runs.
func (f *Future) Result() (Response, error) {
	if !f.Done() {
		return Response{}, ErrFuturePending
	}
	return f.resp, f.err
}

func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
