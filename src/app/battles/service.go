package battles

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/domain/shared"
)

// Trigger names what caused a battle to end.
type Trigger string

const (
	TriggerExplicit Trigger = "explicit"
	TriggerExpiry   Trigger = "expiry"
	TriggerCancel   Trigger = "cancel"
)

// DurationPolicy bounds the contest length a challenger may ask for.
type DurationPolicy struct {
	Default time.Duration
	Max     time.Duration
}

var DefaultDurationPolicy = DurationPolicy{
	Default: 300 * time.Second,
	Max:     time.Hour,
}

const expiryResolveTimeout = 5 * time.Second

// Service runs the battle lifecycle: challenge, acceptance, scoring and
// resolution. Every write is a single Store.Mutate call.
type Service struct {
	Store     battle.Store
	Clock     clockwork.Clock
	Logger    *zap.Logger
	Metrics   Metrics
	Sink      ResolutionSink
	Listeners []UpdateListener
	Policy    DurationPolicy
	NewID     func() shared.BattleID

	expiry *ExpiryScheduler
}

// Option configures a Service.
type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.Clock = clock
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(s *Service) {
		if metrics != nil {
			s.Metrics = metrics
		}
	}
}

func WithSink(sink ResolutionSink) Option {
	return func(s *Service) { s.Sink = sink }
}

func WithListener(listener UpdateListener) Option {
	return func(s *Service) {
		if listener != nil {
			s.Listeners = append(s.Listeners, listener)
		}
	}
}

func WithDurationPolicy(policy DurationPolicy) Option {
	return func(s *Service) { s.Policy = policy }
}

func WithIDGenerator(fn func() shared.BattleID) Option {
	return func(s *Service) {
		if fn != nil {
			s.NewID = fn
		}
	}
}

func NewService(store battle.Store, opts ...Option) *Service {
	s := &Service{
		Store:   store,
		Clock:   clockwork.NewRealClock(),
		Logger:  zap.NewNop(),
		Metrics: nopMetrics{},
		Policy:  DefaultDurationPolicy,
		NewID:   newBattleID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.expiry = NewExpiryScheduler(s.Clock, s.Logger, s.expire)
	return s
}

// Expiry exposes the scheduler for inspection.
func (s *Service) Expiry() *ExpiryScheduler {
	return s.expiry
}

// Close disarms all expiry timers. Open battles are left as they are.
func (s *Service) Close() {
	s.expiry.Stop()
}

type ChallengeCommand struct {
	ChallengerID    shared.PlayerID
	ChallengedID    shared.PlayerID
	DurationSeconds int64
}

type ChallengeResult struct {
	BattleID shared.BattleID
}

// Challenge opens a pending battle between two participants.
func (s *Service) Challenge(ctx context.Context, cmd ChallengeCommand) (ChallengeResult, error) {
	duration, err := s.resolveDuration(cmd.DurationSeconds)
	if err != nil {
		return ChallengeResult{}, err
	}
	aggregate, err := battle.NewBattle(s.NewID(), cmd.ChallengerID, cmd.ChallengedID, duration, s.Clock.Now())
	if err != nil {
		return ChallengeResult{}, err
	}
	if err := s.Store.Create(ctx, aggregate); err != nil {
		return ChallengeResult{}, err
	}
	s.Metrics.BattleCreated()
	s.Logger.Info("battle challenged",
		zap.String("battle_id", string(aggregate.ID)),
		zap.String("challenger", string(aggregate.Challenger)),
		zap.String("challenged", string(aggregate.Challenged)),
		zap.Duration("duration", duration),
	)
	s.notifyUpdate(*aggregate)
	return ChallengeResult{BattleID: aggregate.ID}, nil
}

type AcceptCommand struct {
	BattleID shared.BattleID
	// ActorID, when set, must be the challenged participant.
	ActorID shared.PlayerID
}

// Accept starts a pending battle and arms its expiry timer.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (battle.Battle, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return battle.Battle{}, err
	}
	b, err := s.Store.Mutate(ctx, cmd.BattleID, func(b *battle.Battle) error {
		if cmd.ActorID != "" && cmd.ActorID != b.Challenged {
			return battle.ErrNotParticipant
		}
		return b.Accept(s.Clock.Now())
	})
	if err != nil {
		return battle.Battle{}, err
	}
	s.expiry.Schedule(b.ID, b.EndsAt)
	// An end that committed before the timer was armed found nothing to
	// cancel; disarm it here instead.
	if cur, err := s.Store.Get(ctx, b.ID); err != nil || cur.State != battle.StateActive {
		s.expiry.Cancel(b.ID)
	}
	s.Metrics.BattleAccepted()
	s.Logger.Info("battle accepted",
		zap.String("battle_id", string(b.ID)),
		zap.Time("ends_at", b.EndsAt),
	)
	s.notifyUpdate(b)
	return b, nil
}

type CancelCommand struct {
	BattleID shared.BattleID
	// ActorID, when set, must be one of the participants. The challenger
	// withdraws; the challenged declines.
	ActorID shared.PlayerID
}

// Cancel ends a pending battle without a winner.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (battle.Battle, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return battle.Battle{}, err
	}
	b, err := s.Store.Mutate(ctx, cmd.BattleID, func(b *battle.Battle) error {
		if cmd.ActorID != "" && !b.Involves(cmd.ActorID) {
			return battle.ErrNotParticipant
		}
		return b.Cancel(s.Clock.Now())
	})
	if err != nil {
		return battle.Battle{}, err
	}
	s.finish(ctx, b, TriggerCancel)
	return b, nil
}

type ScoreCommand struct {
	BattleID      shared.BattleID
	ParticipantID shared.PlayerID
	Delta         int64
}

// ApplyScore adds delta to the participant's running total. Concurrent calls
// commute: each is one atomic add inside Store.Mutate.
func (s *Service) ApplyScore(ctx context.Context, cmd ScoreCommand) (battle.Battle, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return battle.Battle{}, err
	}
	if cmd.Delta <= 0 {
		s.Metrics.ScoreRejected(battle.ErrInvalidDelta)
		return battle.Battle{}, battle.ErrInvalidDelta
	}
	var due bool
	b, err := s.Store.Mutate(ctx, cmd.BattleID, func(b *battle.Battle) error {
		if b.Due(s.Clock.Now()) {
			due = true
			return battle.ErrNotActive
		}
		return b.AddScore(cmd.ParticipantID, cmd.Delta)
	})
	if err != nil {
		s.Metrics.ScoreRejected(err)
		if due {
			// The timer has not caught up yet; settle the battle now.
			if _, rerr := s.Resolve(ctx, cmd.BattleID, TriggerExpiry); rerr != nil && !errors.Is(rerr, battle.ErrNotDue) {
				s.Logger.Warn("late resolution failed", zap.String("battle_id", string(cmd.BattleID)), zap.Error(rerr))
			}
		}
		return battle.Battle{}, err
	}
	side := SideChallenger
	if cmd.ParticipantID == b.Challenged {
		side = SideChallenged
	}
	s.Metrics.ScoreApplied(side)
	s.notifyUpdate(b)
	return b, nil
}

type EndCommand struct {
	BattleID shared.BattleID
	// ActorID, when set, must be one of the participants.
	ActorID shared.PlayerID
}

// End resolves an active battle on request of a participant or operator.
func (s *Service) End(ctx context.Context, cmd EndCommand) (battle.Battle, error) {
	if err := cmd.BattleID.Validate(); err != nil {
		return battle.Battle{}, err
	}
	return s.resolve(ctx, cmd.BattleID, TriggerExplicit, cmd.ActorID)
}

// Resolve computes the winner and ends the battle. It is idempotent: an
// already ended battle is returned unchanged. Expiry-triggered resolution
// refuses with ErrNotDue before the battle's end time.
func (s *Service) Resolve(ctx context.Context, id shared.BattleID, trigger Trigger) (battle.Battle, error) {
	return s.resolve(ctx, id, trigger, "")
}

func (s *Service) resolve(ctx context.Context, id shared.BattleID, trigger Trigger, actor shared.PlayerID) (battle.Battle, error) {
	var changed bool
	b, err := s.Store.Mutate(ctx, id, func(b *battle.Battle) error {
		if actor != "" && !b.Involves(actor) {
			return battle.ErrNotParticipant
		}
		now := s.Clock.Now()
		if trigger == TriggerExpiry && b.State == battle.StateActive && !b.Due(now) {
			return battle.ErrNotDue
		}
		var err error
		changed, err = b.Resolve(now)
		return err
	})
	if err != nil {
		return battle.Battle{}, err
	}
	if changed {
		s.finish(ctx, b, trigger)
	}
	return b, nil
}

// View renders b against the service clock.
func (s *Service) View(b battle.Battle) View {
	return NewView(b, s.Clock.Now())
}

type GetQuery struct {
	BattleID shared.BattleID
}

func (s *Service) Get(ctx context.Context, query GetQuery) (battle.Battle, error) {
	if err := query.BattleID.Validate(); err != nil {
		return battle.Battle{}, err
	}
	return s.Store.Get(ctx, query.BattleID)
}

// GetActiveBattleFor returns the participant's pending or active battle.
func (s *Service) GetActiveBattleFor(ctx context.Context, player shared.PlayerID) (battle.Battle, bool, error) {
	if err := player.Validate(); err != nil {
		return battle.Battle{}, false, err
	}
	return s.Store.FindActiveFor(ctx, player)
}

// finish runs once per battle, by whichever caller committed the terminal
// transition.
func (s *Service) finish(ctx context.Context, b battle.Battle, trigger Trigger) {
	s.expiry.Cancel(b.ID)
	s.Metrics.BattleEnded(trigger, b.Outcome)
	s.Logger.Info("battle ended",
		zap.String("battle_id", string(b.ID)),
		zap.String("trigger", string(trigger)),
		zap.String("outcome", string(b.Outcome)),
		zap.String("winner", string(b.Winner)),
		zap.Int64("challenger_score", b.ChallengerScore),
		zap.Int64("challenged_score", b.ChallengedScore),
	)
	s.notifyUpdate(b)
	if s.Sink == nil {
		return
	}
	if err := s.Sink.BattleEnded(context.WithoutCancel(ctx), b); err != nil {
		s.Metrics.SinkFailed()
		s.Logger.Warn("resolution sink failed", zap.String("battle_id", string(b.ID)), zap.Error(err))
	}
}

func (s *Service) notifyUpdate(b battle.Battle) {
	for _, l := range s.Listeners {
		l.BattleUpdated(b)
	}
}

func (s *Service) expire(id shared.BattleID) {
	ctx, cancel := context.WithTimeout(context.Background(), expiryResolveTimeout)
	defer cancel()

	_, err := s.Resolve(ctx, id, TriggerExpiry)
	switch {
	case err == nil:
		return
	case errors.Is(err, battle.ErrNotDue):
		if cur, gerr := s.Store.Get(ctx, id); gerr == nil {
			s.expiry.Schedule(id, cur.EndsAt)
		}
	case errors.Is(err, shared.ErrNotFound):
		// evicted before the timer fired
	default:
		s.Logger.Error("expiry resolution failed", zap.String("battle_id", string(id)), zap.Error(err))
	}
}

func (s *Service) resolveDuration(seconds int64) (time.Duration, error) {
	if seconds == 0 {
		return s.Policy.Default, nil
	}
	limit := int64(math.MaxInt64 / int64(time.Second))
	if s.Policy.Max > 0 {
		limit = int64(s.Policy.Max / time.Second)
	}
	if seconds < 0 || seconds > limit {
		return 0, battle.ErrInvalidDuration
	}
	return time.Duration(seconds) * time.Second, nil
}

func newBattleID() shared.BattleID {
	return shared.BattleID(uuid.Must(uuid.NewV4()).String())
}
