package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
)

var (
	ErrQueueFull   = errors.New("resolution queue is full")
	ErrQueueClosed = errors.New("resolution queue is closed")
)

const deliveryTimeout = 10 * time.Second

// AsyncSink decouples resolution from delivery: BattleEnded enqueues and a
// fixed pool of workers hands snapshots to the wrapped sink.
type AsyncSink struct {
	next   battles.ResolutionSink
	logger *zap.Logger
	queue  chan battle.Battle
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewAsyncSink(next battles.ResolutionSink, logger *zap.Logger, size, workers int) *AsyncSink {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	s := &AsyncSink{
		next:   next,
		logger: logger,
		queue:  make(chan battle.Battle, size),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

func (s *AsyncSink) BattleEnded(ctx context.Context, b battle.Battle) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrQueueClosed
	}
	select {
	case s.queue <- b:
		return nil
	default:
		s.dropped.Inc()
		return ErrQueueFull
	}
}

// Close stops accepting snapshots and waits for queued ones to drain.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AsyncSink) Delivered() int64 { return s.delivered.Load() }
func (s *AsyncSink) Failed() int64    { return s.failed.Load() }
func (s *AsyncSink) Dropped() int64   { return s.dropped.Load() }

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for b := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err := s.next.BattleEnded(ctx, b)
		cancel()
		if err != nil {
			s.failed.Inc()
			s.logger.Error("battle result delivery failed",
				zap.String("battle_id", string(b.ID)),
				zap.Error(err),
			)
			continue
		}
		s.delivered.Inc()
	}
}
