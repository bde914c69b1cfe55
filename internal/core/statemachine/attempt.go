package statemachine

import "time"

type attemptPolicy struct {
	retryInterval time.Duration
	maxAttempts   int
	timeout       time.Duration
}

// AttemptTracker is the retry budget of one composite state activation.
// The counter only grows while the state is current; Arm resets it.
type AttemptTracker struct {
	policy         attemptPolicy
	entryTime      time.Time
	lastAttempt    time.Time
	attemptCounter int
}

func (t *AttemptTracker) Arm(now time.Time, policy attemptPolicy) {
	t.policy = policy
	t.entryTime = now
	t.lastAttempt = time.Time{}
	t.attemptCounter = 0
}

// Due reports whether the retry interval has elapsed since the last attempt.
func (t *AttemptTracker) Due(now time.Time) bool {
	return t.attemptCounter == 0 || now.Sub(t.lastAttempt) >= t.policy.retryInterval
}

func (t *AttemptTracker) Exhausted() bool {
	return t.policy.maxAttempts > 0 && t.attemptCounter >= t.policy.maxAttempts
}

func (t *AttemptTracker) Attempt(now time.Time) int {
	t.attemptCounter++
	t.lastAttempt = now
	return t.attemptCounter
}

func (t *AttemptTracker) TimedOut(now time.Time) bool {
	return t.policy.timeout > 0 && now.Sub(t.entryTime) >= t.policy.timeout
}

func (t *AttemptTracker) Attempts() int {
	return t.attemptCounter
}

func (t *AttemptTracker) MaxAttempts() int {
	return t.policy.maxAttempts
}
