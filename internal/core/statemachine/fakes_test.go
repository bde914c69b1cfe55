package statemachine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/battseq/internal/core/domain"
	"github.com/berfenger/battseq/internal/core/port"
	"github.com/berfenger/battseq/internal/util/clock"

	"go.uber.org/zap"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeDevice

type fakeDevice struct {
	faults   bool
	running  bool
	shutdown bool
	target   domain.StartStop

	// start makes the device run, stop shuts it down
	runOnStart     bool
	shutdownOnStop bool
	startErr       error
	stopErr        error

	startCalls int
	stopCalls  int
	clearCalls int
	marked     domain.StartStop
	calls      []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		shutdown:       true,
		runOnStart:     true,
		shutdownOnStop: true,
	}
}

func (d *fakeDevice) HasFaults() bool                   { return d.faults }
func (d *fakeDevice) IsRunning() bool                   { return d.running }
func (d *fakeDevice) IsShutdown() bool                  { return d.shutdown }
func (d *fakeDevice) StartStopTarget() domain.StartStop { return d.target }
func (d *fakeDevice) MarkStartStop(v domain.StartStop)  { d.marked = v }

func (d *fakeDevice) StartDevice() error {
	d.startCalls++
	d.calls = append(d.calls, "start")
	if d.startErr != nil {
		return d.startErr
	}
	if d.runOnStart {
		d.running = true
		d.shutdown = false
	}
	return nil
}

func (d *fakeDevice) StopDevice() error {
	d.stopCalls++
	d.calls = append(d.calls, "stop")
	if d.stopErr != nil {
		return d.stopErr
	}
	if d.shutdownOnStop {
		d.running = false
		d.shutdown = true
	}
	return nil
}

func (d *fakeDevice) ClearFaults() error {
	d.clearCalls++
	return nil
}

// fakeClusterDevice

type usageWrite struct {
	unit  int
	usage domain.SubUnitUsage
}

type fakeClusterDevice struct {
	*fakeDevice
	units  []domain.SubUnit
	writes []usageWrite
}

func newFakeClusterDevice(configured ...int) *fakeClusterDevice {
	d := &fakeClusterDevice{fakeDevice: newFakeDevice()}
	for i := 1; i <= 3; i++ {
		unit := domain.SubUnit{Index: i}
		for _, c := range configured {
			if c == i {
				unit.Configured = true
			}
		}
		d.units = append(d.units, unit)
	}
	return d
}

func (d *fakeClusterDevice) SubUnits() []domain.SubUnit {
	return d.units
}

func (d *fakeClusterDevice) SetSubUnitUsage(unit domain.SubUnit, usage domain.SubUnitUsage) error {
	d.writes = append(d.writes, usageWrite{unit: unit.Index, usage: usage})
	return nil
}

// fakeBridge delivers polls only when the test calls Poll.

type responder func(poll int) (int, error)

type fakeSub struct {
	req       port.Request
	onSuccess func(port.Response)
	onError   func(error)
	polls     int
}

type fakeBridge struct {
	mu         sync.Mutex
	seq        int
	subs       map[port.SubscriptionHandle]*fakeSub
	responders map[string]responder
	commands   []port.Request
	commandErr error

	subscribed   int
	unsubscribed int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		subs:       map[port.SubscriptionHandle]*fakeSub{},
		responders: map[string]responder{},
	}
}

func (b *fakeBridge) respond(endpoint string, r responder) {
	b.responders[endpoint] = r
}

func (b *fakeBridge) Subscribe(interval time.Duration, req port.Request, onSuccess func(port.Response), onError func(error)) (port.SubscriptionHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	handle := port.SubscriptionHandle(fmt.Sprintf("sub-%d", b.seq))
	b.subs[handle] = &fakeSub{req: req, onSuccess: onSuccess, onError: onError}
	b.subscribed++
	return handle, nil
}

func (b *fakeBridge) Unsubscribe(handle port.SubscriptionHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[handle]; !ok {
		return errors.New("unknown subscription")
	}
	delete(b.subs, handle)
	b.unsubscribed++
	return nil
}

func (b *fakeBridge) SendCommand(req port.Request) *port.Future {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, req)
	return port.CompletedFuture(port.Response{Value: req.Value}, b.commandErr)
}

func (b *fakeBridge) Poll() {
	b.mu.Lock()
	var handles []string
	for h := range b.subs {
		handles = append(handles, string(h))
	}
	sort.Strings(handles)
	var subs []*fakeSub
	for _, h := range handles {
		subs = append(subs, b.subs[port.SubscriptionHandle(h)])
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.polls++
		r, ok := b.responders[s.req.Endpoint]
		if !ok {
			s.onError(errors.New("no responder"))
			continue
		}
		v, err := r(s.polls)
		if err != nil {
			s.onError(err)
		} else {
			s.onSuccess(port.Response{Value: v})
		}
	}
}

func (b *fakeBridge) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func constant(v int) responder {
	return func(int) (int, error) { return v, nil }
}

// afterPolls answers 0 until the n-th poll, then 1.
func afterPolls(n int) responder {
	return func(poll int) (int, error) {
		if poll >= n {
			return 1, nil
		}
		return 0, nil
	}
}

// harness

type harness struct {
	t      *testing.T
	clock  *clock.Fake
	bridge *fakeBridge
	device port.Device
	cfg    Config
	m      *Machine
}

func newHarness(t *testing.T, device port.Device, handlers map[State]Handler, cfg Config, opts ...Option) *harness {
	logger := zap.Must(zap.NewDevelopment())
	m, err := New(handlers, logger, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{
		t:      t,
		clock:  clock.NewFake(testEpoch),
		bridge: newFakeBridge(),
		device: device,
		cfg:    cfg,
		m:      m,
	}
}

func (h *harness) ctx() *Context {
	return &Context{
		Device: h.device,
		Clock:  h.clock,
		Bridge: h.bridge,
		Config: h.cfg,
	}
}

// cycle advances simulated time, delivers pending polls and runs one
// control cycle.
func (h *harness) cycle(d time.Duration) State {
	h.clock.Advance(d)
	h.bridge.Poll()
	return h.m.Advance(h.ctx())
}

func testConfig() Config {
	return Config{
		PollInterval:  time.Second,
		RetryInterval: 5 * time.Second,
		MaxAttempts:   5,
		StartTimeout:  10 * time.Minute,
		StopTimeout:   10 * time.Minute,
		ErrorCooldown: 2 * time.Minute,
	}
}
