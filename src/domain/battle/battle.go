package battle

import (
	"math"
	"time"

	"github.com/streamhub/pkbattle/src/domain/shared"
)

// State is the lifecycle position of a battle. It only moves forward.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

// Outcome describes how an ended battle finished.
type Outcome string

const (
	OutcomeUndecided     Outcome = ""
	OutcomeChallengerWon Outcome = "challenger_won"
	OutcomeChallengedWon Outcome = "challenged_won"
	OutcomeTie           Outcome = "tie"
	OutcomeCanceled      Outcome = "canceled"
)

// Battle is a timed two-participant scoring contest. Values are snapshots;
// the store owns the authoritative copy and hands out copies.
type Battle struct {
	ID              shared.BattleID
	Challenger      shared.PlayerID
	Challenged      shared.PlayerID
	State           State
	ChallengerScore int64
	ChallengedScore int64
	Duration        time.Duration
	CreatedAt       time.Time
	StartedAt       time.Time
	EndsAt          time.Time
	EndedAt         time.Time
	Outcome         Outcome
	// Winner is empty for ties and canceled battles.
	Winner  shared.PlayerID
	Version uint64
}

func NewBattle(id shared.BattleID, challenger, challenged shared.PlayerID, duration time.Duration, now time.Time) (*Battle, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := challenger.Validate(); err != nil {
		return nil, err
	}
	if err := challenged.Validate(); err != nil {
		return nil, err
	}
	if challenger == challenged {
		return nil, ErrSelfChallenge
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	return &Battle{
		ID:         id,
		Challenger: challenger,
		Challenged: challenged,
		State:      StatePending,
		Duration:   duration,
		CreatedAt:  now,
		Version:    1,
	}, nil
}

// Accept starts the contest clock.
func (b *Battle) Accept(now time.Time) error {
	if b.State != StatePending {
		return ErrNotPending
	}
	b.State = StateActive
	b.StartedAt = now
	b.EndsAt = now.Add(b.Duration)
	return nil
}

// Cancel withdraws a challenge that was never accepted.
func (b *Battle) Cancel(now time.Time) error {
	if b.State != StatePending {
		return ErrNotPending
	}
	b.State = StateEnded
	b.Outcome = OutcomeCanceled
	b.EndedAt = now
	return nil
}

// AddScore credits delta points to participant.
func (b *Battle) AddScore(participant shared.PlayerID, delta int64) error {
	if delta <= 0 {
		return ErrInvalidDelta
	}
	if b.State != StateActive {
		return ErrNotActive
	}
	switch participant {
	case b.Challenger:
		if delta > math.MaxInt64-b.ChallengerScore {
			return ErrScoreOverflow
		}
		b.ChallengerScore += delta
	case b.Challenged:
		if delta > math.MaxInt64-b.ChallengedScore {
			return ErrScoreOverflow
		}
		b.ChallengedScore += delta
	default:
		return ErrNotParticipant
	}
	return nil
}

// Resolve decides the winner from the current scores and ends the battle.
// It reports false without error when the battle had already ended.
func (b *Battle) Resolve(now time.Time) (bool, error) {
	switch b.State {
	case StateEnded:
		return false, nil
	case StatePending:
		return false, ErrNotActive
	}
	switch {
	case b.ChallengerScore > b.ChallengedScore:
		b.Outcome = OutcomeChallengerWon
		b.Winner = b.Challenger
	case b.ChallengedScore > b.ChallengerScore:
		b.Outcome = OutcomeChallengedWon
		b.Winner = b.Challenged
	default:
		b.Outcome = OutcomeTie
	}
	b.State = StateEnded
	b.EndedAt = now
	return true, nil
}

// Due reports whether an active battle has reached its end time.
func (b *Battle) Due(now time.Time) bool {
	return b.State == StateActive && !now.Before(b.EndsAt)
}

func (b *Battle) Involves(player shared.PlayerID) bool {
	return player == b.Challenger || player == b.Challenged
}

func (b *Battle) IsOpen() bool {
	return b.State != StateEnded
}

func (b *Battle) Remaining(now time.Time) time.Duration {
	if b.State != StateActive {
		return 0
	}
	if d := b.EndsAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
