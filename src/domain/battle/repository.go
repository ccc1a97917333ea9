package battle

import (
	"context"
	"time"

	"github.com/streamhub/pkbattle/src/domain/shared"
)

// MutateFunc transforms a private copy of a battle. Returning an error
// discards the copy and leaves the stored battle untouched.
type MutateFunc func(b *Battle) error

// Store owns every battle record. All writes go through Mutate, which is
// atomic per battle and never blocks mutations of other battles.
type Store interface {
	// Create inserts a pending battle, failing with ErrParticipantBusy when
	// either participant already has an open battle.
	Create(ctx context.Context, b *Battle) error
	Get(ctx context.Context, id shared.BattleID) (Battle, error)
	// FindActiveFor returns the participant's open battle, if any.
	FindActiveFor(ctx context.Context, player shared.PlayerID) (Battle, bool, error)
	Mutate(ctx context.Context, id shared.BattleID, fn MutateFunc) (Battle, error)
	// Evict drops ended battles whose EndedAt is before the cutoff.
	Evict(ctx context.Context, before time.Time) (int, error)
}
