package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Fixed question-window policy.
const (
	QuestionTimeLimit = 20 * time.Second
	MaxQuestionPoints = 1000
	MinAwardedPoints  = 50
)

// questionTimer is the one-shot countdown owned by a session. At most
// one timer is live at a time: arming replaces and fully cancels any
// prior timer before the new one is scheduled.
type questionTimer struct {
	clock clockwork.Clock

	mu    sync.Mutex
	timer clockwork.Timer
	stop  chan struct{}
}

func newQuestionTimer(clock clockwork.Clock) *questionTimer {
	return &questionTimer{clock: clock}
}

// Arm schedules onExpire to run once after d, cancelling any timer
// armed earlier. onExpire runs on its own goroutine; callers must
// treat it as concurrent with everything else.
func (t *questionTimer) Arm(d time.Duration, onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()

	timer := t.clock.NewTimer(d)
	stop := make(chan struct{})
	t.timer, t.stop = timer, stop

	go func() {
		select {
		case <-timer.Chan():
			onExpire()
		case <-stop:
		}
	}()
}

// Cancel prevents a scheduled expiry from firing. No-op when nothing
// is armed.
func (t *questionTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
}

func (t *questionTimer) cancelLocked() {
	if t.stop == nil {
		return
	}

	// Stop the timer before releasing the goroutine so an expiry that
	// became ready in the meantime cannot still be delivered. An
	// expiry whose callback already started is past cancelling; the
	// session's index guard makes it a no-op.
	stopAndDrainTimer(t.timer)
	close(t.stop)
	t.timer, t.stop = nil, nil
}

// stopAndDrainTimer stops a timer and drains its channel so the
// waiting goroutine never leaks, per the time.Timer.Stop contract.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
