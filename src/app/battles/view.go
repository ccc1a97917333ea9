package battles

import (
	"time"

	"github.com/streamhub/pkbattle/src/domain/battle"
)

// View is the wire form of a battle snapshot shared by the HTTP API, the
// live stream and the Nakama RPCs.
type View struct {
	BattleID        string     `json:"battle_id"`
	ChallengerID    string     `json:"challenger_id"`
	ChallengedID    string     `json:"challenged_id"`
	State           string     `json:"state"`
	ChallengerScore int64      `json:"challenger_score"`
	ChallengedScore int64      `json:"challenged_score"`
	DurationSeconds int64      `json:"duration_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Outcome         string     `json:"outcome,omitempty"`
	WinnerID        string     `json:"winner_id,omitempty"`
	Version         uint64     `json:"version"`
	// RemainingSeconds counts down while the battle is active, else 0.
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// NewView renders b as seen at now.
func NewView(b battle.Battle, now time.Time) View {
	v := View{
		BattleID:        string(b.ID),
		ChallengerID:    string(b.Challenger),
		ChallengedID:    string(b.Challenged),
		State:           string(b.State),
		ChallengerScore: b.ChallengerScore,
		ChallengedScore: b.ChallengedScore,
		DurationSeconds: int64(b.Duration / time.Second),
		CreatedAt:       b.CreatedAt,
		Outcome:         string(b.Outcome),
		WinnerID:        string(b.Winner),
		Version:         b.Version,

		RemainingSeconds: int64(b.Remaining(now) / time.Second),
	}
	if !b.StartedAt.IsZero() {
		startedAt, endsAt := b.StartedAt, b.EndsAt
		v.StartedAt = &startedAt
		v.EndsAt = &endsAt
	}
	if !b.EndedAt.IsZero() {
		endedAt := b.EndedAt
		v.EndedAt = &endedAt
	}
	return v
}
