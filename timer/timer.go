// Package timer arms a single cancellable, wall-clock-absolute deadline per
// table seat, driven by a quartz.Clock so tests can advance time
// deterministically instead of sleeping.
package timer

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

const DefaultActionDuration = 30 * time.Second

// TurnTimer arms at most one deadline at a time. Arming a new deadline
// implicitly cancels any previous one, matching the rule that reconnects
// never extend a deadline already in flight.
type TurnTimer struct {
	clock quartz.Clock

	mu       sync.Mutex
	timer    *quartz.Timer
	chair    uint16
	deadline time.Time
	armed    bool
}

// New returns a TurnTimer driven by clock. Pass quartz.NewReal() in
// production and quartz.NewMock(t) in tests.
func New(clock quartz.Clock) *TurnTimer {
	return &TurnTimer{clock: clock}
}

// Arm cancels any pending deadline and starts a new one for chair, calling
// onExpire exactly once if the duration elapses before Cancel or another
// Arm call. It returns the absolute deadline so callers can broadcast it
// (e.g. in a TurnChanged event).
func (tt *TurnTimer) Arm(chair uint16, d time.Duration, onExpire func(chair uint16)) time.Time {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.armLocked(chair, tt.clock.Now().Add(d), onExpire)
}

// ArmAt re-arms a previously persisted absolute deadline, e.g. after a
// process restart. Unlike Arm it never extends the deadline: if it has
// already passed, onExpire fires on the next tick instead of being pushed
// another full duration into the future.
func (tt *TurnTimer) ArmAt(chair uint16, deadline time.Time, onExpire func(chair uint16)) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.armLocked(chair, deadline, onExpire)
}

func (tt *TurnTimer) armLocked(chair uint16, deadline time.Time, onExpire func(chair uint16)) time.Time {
	tt.cancelLocked()

	d := deadline.Sub(tt.clock.Now())
	if d < 0 {
		d = 0
	}
	tt.chair = chair
	tt.deadline = deadline
	tt.armed = true
	tt.timer = tt.clock.AfterFunc(d, func() {
		tt.mu.Lock()
		stillArmed := tt.armed && tt.chair == chair
		if stillArmed {
			tt.armed = false
		}
		tt.mu.Unlock()
		if stillArmed {
			onExpire(chair)
		}
	})
	return deadline
}

// Cancel disarms any pending deadline. It is idempotent and safe to call
// even when nothing is armed -- every accepted action, phase transition,
// or hand completion calls it unconditionally.
func (tt *TurnTimer) Cancel() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.cancelLocked()
}

func (tt *TurnTimer) cancelLocked() {
	if tt.timer != nil {
		tt.timer.Stop()
		tt.timer = nil
	}
	tt.armed = false
}

// Deadline reports the absolute deadline currently armed for chair, if
// any.
func (tt *TurnTimer) Deadline() (time.Time, uint16, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.deadline, tt.chair, tt.armed
}
