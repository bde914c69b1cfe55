package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/battseq/internal/core/port"

	"github.com/google/uuid"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// Poller runs periodic functions on a quartz scheduler. Each schedule is a
// separate job keyed by its subscription handle.
type Poller struct {
	scheduler quartz.Scheduler
	logger    *zap.Logger

	mu   sync.Mutex
	jobs map[port.SubscriptionHandle]*quartz.JobKey
}

func NewPoller(logger *zap.Logger) *Poller {
	return &Poller{
		scheduler: quartz.NewStdScheduler(),
		logger:    logger.With(zap.String("component", "poller")),
		jobs:      map[port.SubscriptionHandle]*quartz.JobKey{},
	}
}

func (p *Poller) Start(ctx context.Context) {
	p.scheduler.Start(ctx)
}

func (p *Poller) Stop() {
	p.scheduler.Stop()
}

// Schedule runs fn every interval, first one interval from now.
func (p *Poller) Schedule(interval time.Duration, fn func(ctx context.Context) error) (port.SubscriptionHandle, error) {
	if interval <= 0 {
		return "", fmt.Errorf("poller: invalid interval %s", interval)
	}
	handle := port.SubscriptionHandle(uuid.NewString())
	key := quartz.NewJobKey(string(handle))

	pollJob := job.NewFunctionJob[int](func(ctx context.Context) (result int, err error) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("poller: job panic", zap.String("handle", string(handle)), zap.Any("panic", r))
				err = fmt.Errorf("poll panic: %v", r)
			}
		}()
		return 0, fn(ctx)
	})

	if err := p.scheduler.ScheduleJob(quartz.NewJobDetail(pollJob, key), quartz.NewSimpleTrigger(interval)); err != nil {
		return "", fmt.Errorf("poller: schedule: %w", err)
	}

	p.mu.Lock()
	p.jobs[handle] = key
	p.mu.Unlock()
	p.logger.Debug("poller: scheduled", zap.String("handle", string(handle)), zap.Duration("interval", interval))
	return handle, nil
}

func (p *Poller) Cancel(handle port.SubscriptionHandle) error {
	p.mu.Lock()
	key, ok := p.jobs[handle]
	delete(p.jobs, handle)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, handle)
	}
	if err := p.scheduler.DeleteJob(key); err != nil {
		return fmt.Errorf("poller: delete %s: %w", handle, err)
	}
	p.logger.Debug("poller: cancelled", zap.String("handle", string(handle)))
	return nil
}

// Active is the number of live schedules.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}
