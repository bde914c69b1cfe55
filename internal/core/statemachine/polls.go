package statemachine

import (
	"errors"
	"fmt"

	"github.com/berfenger/battseq/internal/core/port"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	EndpointPowerState    = "bcsPowerState"
	EndpointReleaseStatus = "releaseStatus"
)

// polledValue is the only state shared with bridge goroutines. A fresh set
// is allocated for every activation, so late callbacks from a cancelled
// subscription write into values nobody reads anymore.
type polledValue struct {
	endpoint string
	value    atomic.Int64
	received atomic.Bool
	errCount atomic.Int64
	lastErr  atomic.Error
	seenErrs int64
}

type pollSet struct {
	endpoints []string
	values    map[string]*polledValue
	handles   []port.SubscriptionHandle
}

func newPollSet(endpoints ...string) *pollSet {
	return &pollSet{endpoints: endpoints}
}

func (p *pollSet) open(ctx *Context) error {
	p.values = make(map[string]*polledValue, len(p.endpoints))
	var errs []error
	for _, endpoint := range p.endpoints {
		v := &polledValue{endpoint: endpoint}
		p.values[endpoint] = v
		handle, err := ctx.Bridge.Subscribe(ctx.Config.PollInterval, port.Request{Endpoint: endpoint},
			func(resp port.Response) {
				v.value.Store(int64(resp.Value))
				v.received.Store(true)
			}, func(err error) {
				v.lastErr.Store(err)
				v.errCount.Inc()
			})
		if err != nil {
			errs = append(errs, fmt.Errorf("subscribe %s: %w", endpoint, err))
			continue
		}
		p.handles = append(p.handles, handle)
	}
	return errors.Join(errs...)
}

func (p *pollSet) close(ctx *Context) error {
	var errs []error
	for _, handle := range p.handles {
		if err := ctx.Bridge.Unsubscribe(handle); err != nil {
			errs = append(errs, err)
		}
	}
	p.handles = nil
	return errors.Join(errs...)
}

func (p *pollSet) get(endpoint string) (int, bool) {
	v, ok := p.values[endpoint]
	if !ok || !v.received.Load() {
		return 0, false
	}
	return int(v.value.Load()), true
}

// logErrors reports poll failures seen since the previous call. They are
// transient: only the attempt tracker decides when to give up.
func (p *pollSet) logErrors(ctx *Context, prefix string) {
	for _, v := range p.values {
		n := v.errCount.Load()
		if n > v.seenErrs {
			ctx.Logger.Debug(prefix+": poll failed", zap.String("endpoint", v.endpoint),
				zap.Int64("failures", n-v.seenErrs), zap.Error(v.lastErr.Load()))
			v.seenErrs = n
		}
	}
}

func (p *pollSet) openCount() int {
	return len(p.handles)
}
