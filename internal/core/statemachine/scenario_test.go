package statemachine

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/battseq/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// untilPolls answers 1 until the n-th poll, then 0.
func untilPolls(n int) responder {
	return func(poll int) (int, error) {
		if poll >= n {
			return 0, nil
		}
		return 1, nil
	}
}

func startTarget(dev *fakeDevice) *fakeDevice {
	dev.target = domain.START_STOP_START
	return dev
}

func assertSubscriptionHygiene(t *testing.T, h *harness) {
	if s := h.m.Current(); s != GoRunning && s != GoStopped {
		assert.Equal(t, 0, h.bridge.Open(), "open subscriptions in %s", s)
	}
}

func TestStartSequenceReachesRunning(t *testing.T) {

	assert := assert.New(t)

	dev := startTarget(newFakeDevice())
	h := newHarness(t, dev, NewPolledHandlers(), testConfig())
	h.bridge.respond(EndpointPowerState, afterPolls(2))
	h.bridge.respond(EndpointReleaseStatus, constant(1))

	var states []State
	for i := 0; i < 5; i++ {
		states = append(states, h.cycle(time.Second))
		assertSubscriptionHygiene(t, h)
	}

	assert.Equal([]State{GoRunning, GoRunning, GoRunning, GoRunning, Running}, states)
	assert.Equal(1, dev.startCalls)
	assert.Equal(0, dev.stopCalls)
	require.Len(t, h.bridge.commands, 1)
	assert.Equal(EndpointPowerState, h.bridge.commands[0].Endpoint)
	assert.True(h.bridge.commands[0].Write)
	assert.Equal(1, h.bridge.commands[0].Value)
	assert.Equal(2, h.bridge.subscribed)
	assert.Equal(2, h.bridge.unsubscribed)

	// RUNNING confirms the target on every cycle
	assert.Equal(Running, h.cycle(time.Second))
	assert.Equal(domain.START_STOP_START, dev.marked)
	assert.False(h.m.Flags().Get(FlagRunFailed))
}

func TestStartSequenceSubStates(t *testing.T) {

	assert := assert.New(t)

	handlers := NewPolledHandlers()
	goRunning := handlers[GoRunning].(*PolledHandler)
	dev := startTarget(newFakeDevice())
	h := newHarness(t, dev, handlers, testConfig())
	h.bridge.respond(EndpointPowerState, afterPolls(2))
	h.bridge.respond(EndpointReleaseStatus, constant(1))

	h.cycle(time.Second)
	assert.Equal("", h.m.Status().SubState)

	h.cycle(time.Second)
	assert.Equal(SubCheckPowerState, h.m.Status().SubState)
	assert.Equal(2, goRunning.OpenSubscriptions())

	h.cycle(time.Second)
	assert.Equal(SubActivatePowerState, h.m.Status().SubState)

	h.cycle(time.Second)
	assert.Equal(SubStartDevice, h.m.Status().SubState)

	h.cycle(time.Second)
	assert.Equal(Running, h.m.Current())
	assert.Equal(SubFinished, goRunning.SubState())
	assert.Equal(0, goRunning.OpenSubscriptions())
}

func TestStartExhaustionLandsInUndefined(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	cfg.MaxAttempts = 3
	handlers := NewPolledHandlers()
	goRunning := handlers[GoRunning].(*PolledHandler)
	dev := startTarget(newFakeDevice())
	h := newHarness(t, dev, handlers, cfg)
	h.bridge.respond(EndpointPowerState, constant(0))
	h.bridge.respond(EndpointReleaseStatus, constant(0))

	lastAttempts := 0
	for i := 1; i <= 20; i++ {
		state := h.cycle(time.Second)
		assertSubscriptionHygiene(t, h)
		if state == GoRunning {
			// attempts never decrease within one activation
			assert.GreaterOrEqual(goRunning.Attempts(), lastAttempts)
			assert.LessOrEqual(goRunning.Attempts(), cfg.MaxAttempts)
			lastAttempts = goRunning.Attempts()
		}
		switch {
		case i < 18:
			assert.Equal(GoRunning, state, "cycle %d", i)
		default:
			assert.Equal(Undefined, state, "cycle %d", i)
		}
	}

	assert.True(h.m.Flags().Get(FlagMaxStartAttempts))
	assert.False(h.m.Flags().Get(FlagRunFailed))
	assert.Equal(0, dev.startCalls)
	assert.Len(h.bridge.commands, 3)
	assert.Equal(0, h.bridge.Open())
}

func TestExhaustedDirectionIsHeldForCooldown(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	cfg.MaxAttempts = 1
	dev := startTarget(newFakeDevice())
	h := newHarness(t, dev, NewPolledHandlers(), cfg)
	h.bridge.respond(EndpointPowerState, constant(0))
	h.bridge.respond(EndpointReleaseStatus, constant(0))

	for h.m.Current() != Undefined || !h.m.Flags().Get(FlagMaxStartAttempts) {
		h.cycle(time.Second)
	}
	// UNDEFINED entry happens on the next cycle
	assert.Equal(Undefined, h.cycle(time.Second))
	assert.Equal(Undefined, h.cycle(cfg.ErrorCooldown-2*time.Second))
	assert.True(h.m.Flags().Get(FlagMaxStartAttempts))

	assert.Equal(GoRunning, h.cycle(2*time.Second))
	assert.False(h.m.Flags().Get(FlagMaxStartAttempts))
}

func TestExhaustedStartDoesNotHoldStop(t *testing.T) {

	assert := assert.New(t)

	dev := newFakeDevice()
	dev.target = domain.START_STOP_STOP
	h := newHarness(t, dev, NewPolledHandlers(), testConfig())
	h.m.Flags().Set(FlagMaxStartAttempts, true)

	assert.Equal(GoStopped, h.cycle(time.Second))
	assert.True(h.m.Flags().Get(FlagMaxStartAttempts))
}

func TestRunningFaultGoesThroughUndefinedToError(t *testing.T) {

	assert := assert.New(t)

	dev := startTarget(newFakeDevice())
	dev.running = true
	dev.shutdown = false
	h := newHarness(t, dev, NewPolledHandlers(), testConfig(), WithInitialState(Running))

	assert.Equal(Running, h.cycle(time.Second))

	dev.faults = true
	assert.Equal(Undefined, h.cycle(time.Second))
	assert.Equal(Error, h.cycle(time.Second))

	// ERROR entry attempts an emergency stop
	assert.Equal(Error, h.cycle(time.Second))
	assert.Equal(1, dev.stopCalls)
	assert.Equal(1, dev.clearCalls)
	assert.Equal(domain.START_STOP_UNDEFINED, dev.marked)
}

func TestRunningLeavesOnTargetChangeOrStop(t *testing.T) {

	assert := assert.New(t)

	dev := startTarget(newFakeDevice())
	dev.running = true
	dev.shutdown = false
	h := newHarness(t, dev, NewPolledHandlers(), testConfig(), WithInitialState(Running))
	assert.Equal(Running, h.cycle(time.Second))

	dev.target = domain.START_STOP_STOP
	assert.Equal(Undefined, h.cycle(time.Second))

	dev2 := startTarget(newFakeDevice())
	h2 := newHarness(t, dev2, NewPolledHandlers(), testConfig(), WithInitialState(Running))
	assert.Equal(Undefined, h2.cycle(time.Second))
}

func TestFaultsDominateCompositeStates(t *testing.T) {

	assert := assert.New(t)

	dev := startTarget(newFakeDevice())
	h := newHarness(t, dev, NewPolledHandlers(), testConfig())
	h.bridge.respond(EndpointPowerState, constant(0))
	h.bridge.respond(EndpointReleaseStatus, constant(0))

	assert.Equal(GoRunning, h.cycle(time.Second))
	assert.Equal(GoRunning, h.cycle(time.Second))
	assert.Equal(GoRunning, h.cycle(time.Second))

	dev.faults = true
	assert.Equal(Error, h.cycle(time.Second))
	assert.False(h.m.Flags().Get(FlagRunFailed))
	assert.Equal(0, h.bridge.Open())

	stopped := newFakeDevice()
	stopped.faults = true
	h2 := newHarness(t, stopped, NewPolledHandlers(), testConfig(), WithInitialState(Stopped))
	assert.Equal(Error, h2.cycle(time.Second))
}

func TestStartWithFaultsIsRefused(t *testing.T) {

	assert := assert.New(t)

	dev := startTarget(newFakeDevice())
	dev.faults = true
	h := newHarness(t, dev, NewPolledHandlers(), testConfig())
	assert.Equal(Error, h.cycle(time.Second))

	// a stop request with faults is still honoured
	dev2 := newFakeDevice()
	dev2.faults = true
	dev2.target = domain.START_STOP_STOP
	h2 := newHarness(t, dev2, NewPolledHandlers(), testConfig())
	assert.Equal(GoStopped, h2.cycle(time.Second))
}

func TestStartTimeoutIsDeterministic(t *testing.T) {

	run := func() (int, *harness) {
		cfg := testConfig()
		cfg.StartTimeout = 30 * time.Second
		cfg.MaxAttempts = 100
		h := newHarness(t, startTarget(newFakeDevice()), NewPolledHandlers(), cfg)
		h.bridge.respond(EndpointPowerState, constant(0))
		h.bridge.respond(EndpointReleaseStatus, constant(0))
		for i := 1; i <= 60; i++ {
			if h.cycle(time.Second) == Error {
				return i, h
			}
		}
		return -1, h
	}

	assert := assert.New(t)

	first, h := run()
	second, _ := run()

	// GO_RUNNING is entered on cycle 2
	assert.Equal(32, first)
	assert.Equal(first, second)
	assert.True(h.m.Flags().Get(FlagTimeoutStart))
	assert.True(h.m.Flags().Get(FlagRunFailed))
	assert.False(h.m.Flags().Get(FlagMaxStartAttempts))
	assert.Equal(0, h.bridge.Open())
}

func TestUnexpectedStoppedState(t *testing.T) {

	assert := assert.New(t)

	dev := newFakeDevice()
	dev.target = domain.START_STOP_STOP
	h := newHarness(t, dev, NewPolledHandlers(), testConfig(), WithInitialState(Stopped))

	assert.Equal(Stopped, h.cycle(time.Second))
	assert.Equal(domain.START_STOP_STOP, dev.marked)

	dev.shutdown = false
	assert.Equal(Error, h.cycle(time.Second))
	assert.True(h.m.Flags().Get(FlagUnexpectedStoppedState))
}

func TestStoppedLeavesOnStartTarget(t *testing.T) {

	assert := assert.New(t)

	dev := newFakeDevice()
	dev.target = domain.START_STOP_START
	h := newHarness(t, dev, NewPolledHandlers(), testConfig(), WithInitialState(Stopped))

	assert.Equal(Undefined, h.cycle(time.Second))
	assert.Equal(GoRunning, h.cycle(time.Second))
}

func TestErrorCooldown(t *testing.T) {

	assert := assert.New(t)

	dev := newFakeDevice()
	h := newHarness(t, dev, NewPolledHandlers(), testConfig(), WithInitialState(Error))
	h.m.Flags().Set(FlagMaxStartAttempts, true)
	h.m.Flags().Set(FlagMaxStopAttempts, true)

	// entered at t=10s, cool-down of 2m ends at t=130s
	for i := 1; i <= 12; i++ {
		assert.Equal(Error, h.cycle(10*time.Second), "cycle %d", i)
		assert.True(h.m.Flags().Get(FlagMaxStartAttempts))
	}
	assert.Equal(Undefined, h.cycle(10*time.Second))

	assert.Equal(1, dev.stopCalls)
	assert.Equal(13, dev.clearCalls)
	assert.False(h.m.Flags().Get(FlagMaxStartAttempts))
	assert.False(h.m.Flags().Get(FlagMaxStopAttempts))
}

func TestStopSequenceRunsInReverseOrder(t *testing.T) {

	assert := assert.New(t)

	dev := newFakeDevice()
	dev.running = true
	dev.shutdown = false
	dev.target = domain.START_STOP_STOP
	h := newHarness(t, dev, NewPolledHandlers(), testConfig())
	h.bridge.respond(EndpointReleaseStatus, untilPolls(2))
	h.bridge.respond(EndpointPowerState, untilPolls(3))

	var states []State
	for i := 0; i < 5; i++ {
		states = append(states, h.cycle(time.Second))
		assertSubscriptionHygiene(t, h)
	}

	assert.Equal([]State{GoStopped, GoStopped, GoStopped, GoStopped, Stopped}, states)
	assert.Equal([]string{"stop"}, dev.calls)
	require.Len(t, h.bridge.commands, 2)
	assert.Equal(EndpointReleaseStatus, h.bridge.commands[0].Endpoint)
	assert.Equal(0, h.bridge.commands[0].Value)
	assert.Equal(EndpointPowerState, h.bridge.commands[1].Endpoint)
	assert.Equal(0, h.bridge.commands[1].Value)
}

func TestFailedCommandIsRetried(t *testing.T) {

	assert := assert.New(t)

	dev := startTarget(newFakeDevice())
	h := newHarness(t, dev, NewPolledHandlers(), testConfig())
	h.bridge.respond(EndpointPowerState, constant(0))
	h.bridge.respond(EndpointReleaseStatus, constant(0))
	h.bridge.commandErr = errors.New("command failed")

	for i := 0; i < 8; i++ {
		h.cycle(time.Second)
	}

	// attempts at t=3s and t=8s
	assert.Equal(GoRunning, h.m.Current())
	assert.Len(h.bridge.commands, 2)
	assert.False(h.m.Flags().Get(FlagRunFailed))
}

func TestPollErrorsAreTransient(t *testing.T) {

	assert := assert.New(t)

	dev := startTarget(newFakeDevice())
	h := newHarness(t, dev, NewPolledHandlers(), testConfig())
	// no responders: every poll fails

	for i := 0; i < 10; i++ {
		assert.Equal(GoRunning, h.cycle(time.Second))
	}
	assert.Empty(h.bridge.commands)
	assert.False(h.m.Flags().Get(FlagRunFailed))
}

func TestMissingPollDataExhaustsWithoutTimeout(t *testing.T) {

	assert := assert.New(t)

	cfg := testConfig()
	cfg.StartTimeout = 0
	cfg.MaxAttempts = 3
	handlers := NewPolledHandlers()
	goRunning := handlers[GoRunning].(*PolledHandler)
	h := newHarness(t, startTarget(newFakeDevice()), handlers, cfg)
	// no responders: every poll fails

	assert.Equal(GoRunning, h.cycle(time.Second))
	left := -1
	for i := 2; i <= 3600; i++ {
		if h.cycle(time.Second) != GoRunning {
			left = i
			break
		}
	}

	// entered at t=2s, one attempt per 5s without data, exhausted at t=22s
	assert.Equal(22, left)
	assert.Equal(Undefined, h.m.Current())
	assert.Equal(3, goRunning.Attempts())
	assert.True(h.m.Flags().Get(FlagMaxStartAttempts))
	assert.False(h.m.Flags().Get(FlagTimeoutStart))
	assert.Empty(h.bridge.commands)
	assert.Equal(0, h.bridge.Open())
}
