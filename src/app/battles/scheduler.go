package battles

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/streamhub/pkbattle/src/domain/shared"
)

// ExpiryScheduler arms one timer per active battle and calls onDue once the
// battle's end time has passed. It never fires before endsAt: a timer that
// wakes early is re-armed for the remainder.
type ExpiryScheduler struct {
	clock  clockwork.Clock
	onDue  func(id shared.BattleID)
	logger *zap.Logger

	mu     sync.Mutex
	timers map[shared.BattleID]*expiryTimer

	closed atomic.Bool
	fired  atomic.Int64
}

type expiryTimer struct {
	endsAt time.Time

	mu      sync.Mutex
	timer   clockwork.Timer
	stopped bool
}

func (t *expiryTimer) attach(timer clockwork.Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		timer.Stop()
		return
	}
	t.timer = timer
}

func (t *expiryTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func NewExpiryScheduler(clock clockwork.Clock, logger *zap.Logger, onDue func(id shared.BattleID)) *ExpiryScheduler {
	return &ExpiryScheduler{
		clock:  clock,
		onDue:  onDue,
		logger: logger,
		timers: make(map[shared.BattleID]*expiryTimer),
	}
}

// Schedule arms (or re-arms) the expiry timer for a battle.
func (e *ExpiryScheduler) Schedule(id shared.BattleID, endsAt time.Time) {
	if e.closed.Load() {
		return
	}
	et := &expiryTimer{endsAt: endsAt}

	e.mu.Lock()
	if old, ok := e.timers[id]; ok {
		old.stop()
	}
	e.timers[id] = et
	e.mu.Unlock()

	delay := endsAt.Sub(e.clock.Now())
	if delay < 0 {
		delay = 0
	}
	et.attach(e.clock.AfterFunc(delay, func() { e.fire(id, et) }))
}

// Cancel disarms a battle's timer. Cancelling an unknown or already fired
// timer is a no-op.
func (e *ExpiryScheduler) Cancel(id shared.BattleID) {
	e.mu.Lock()
	et, ok := e.timers[id]
	if ok {
		delete(e.timers, id)
	}
	e.mu.Unlock()
	if ok {
		et.stop()
	}
}

// Stop disarms every timer; later Schedule calls are ignored.
func (e *ExpiryScheduler) Stop() {
	e.closed.Store(true)

	e.mu.Lock()
	pending := make([]*expiryTimer, 0, len(e.timers))
	for id, et := range e.timers {
		pending = append(pending, et)
		delete(e.timers, id)
	}
	e.mu.Unlock()

	for _, et := range pending {
		et.stop()
	}
}

// Pending reports how many timers are armed.
func (e *ExpiryScheduler) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Fired reports how many timers reached their battle's end time.
func (e *ExpiryScheduler) Fired() int64 {
	return e.fired.Load()
}

func (e *ExpiryScheduler) fire(id shared.BattleID, et *expiryTimer) {
	e.mu.Lock()
	if e.timers[id] != et {
		// canceled or replaced while the timer was in flight
		e.mu.Unlock()
		return
	}
	delete(e.timers, id)
	e.mu.Unlock()

	if now := e.clock.Now(); now.Before(et.endsAt) {
		e.logger.Debug("expiry timer woke early, re-arming",
			zap.String("battle_id", string(id)),
			zap.Duration("remaining", et.endsAt.Sub(now)),
		)
		e.Schedule(id, et.endsAt)
		return
	}
	e.fired.Inc()
	e.onDue(id)
}
