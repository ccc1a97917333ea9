package battle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/domain/shared"
)

var stateRank = map[battle.State]int{
	battle.StatePending: 0,
	battle.StateActive:  1,
	battle.StateEnded:   2,
}

// record holds one battle. mu serializes writers of this battle only;
// readers load the published snapshot without taking it.
type record struct {
	mu   sync.Mutex
	snap atomic.Pointer[battle.Battle]
}

// MemoryStore implements battle.Store using in-memory storage.
type MemoryStore struct {
	// mu guards the maps, and is also held while a battle is published in
	// its terminal state so the open index never disagrees with a snapshot.
	mu      sync.RWMutex
	battles map[shared.BattleID]*record
	open    map[shared.PlayerID]shared.BattleID
}

// NewMemoryStore creates a new in-memory battle store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		battles: make(map[shared.BattleID]*record),
		open:    make(map[shared.PlayerID]shared.BattleID),
	}
}

// Create stores a new pending battle.
func (s *MemoryStore) Create(ctx context.Context, b *battle.Battle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.State != battle.StatePending {
		return battle.ErrNotPending
	}
	if b.Challenger == b.Challenged {
		return battle.ErrSelfChallenge
	}
	cp := *b
	rec := &record{}
	rec.snap.Store(&cp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.battles[cp.ID]; exists {
		return battle.ErrDuplicateBattle
	}
	if _, busy := s.open[cp.Challenger]; busy {
		return battle.ErrParticipantBusy
	}
	if _, busy := s.open[cp.Challenged]; busy {
		return battle.ErrParticipantBusy
	}
	s.battles[cp.ID] = rec
	s.open[cp.Challenger] = cp.ID
	s.open[cp.Challenged] = cp.ID
	return nil
}

// Get retrieves a battle snapshot by ID.
func (s *MemoryStore) Get(ctx context.Context, id shared.BattleID) (battle.Battle, error) {
	if err := ctx.Err(); err != nil {
		return battle.Battle{}, err
	}
	rec := s.lookup(id)
	if rec == nil {
		return battle.Battle{}, battle.ErrBattleNotFound
	}
	return *rec.snap.Load(), nil
}

// FindActiveFor returns the open battle a player participates in.
func (s *MemoryStore) FindActiveFor(ctx context.Context, player shared.PlayerID) (battle.Battle, bool, error) {
	if err := ctx.Err(); err != nil {
		return battle.Battle{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.open[player]
	if !ok {
		return battle.Battle{}, false, nil
	}
	rec, ok := s.battles[id]
	if !ok {
		return battle.Battle{}, false, nil
	}
	b := *rec.snap.Load()
	if !b.IsOpen() {
		return battle.Battle{}, false, nil
	}
	return b, true, nil
}

// Mutate applies fn to a copy of the battle and publishes the result
// atomically. Concurrent calls for the same battle run one at a time.
func (s *MemoryStore) Mutate(ctx context.Context, id shared.BattleID, fn battle.MutateFunc) (battle.Battle, error) {
	if err := ctx.Err(); err != nil {
		return battle.Battle{}, err
	}
	rec := s.lookup(id)
	if rec == nil {
		return battle.Battle{}, battle.ErrBattleNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	cur := rec.snap.Load()
	next := *cur
	if err := fn(&next); err != nil {
		return battle.Battle{}, err
	}
	if next == *cur {
		return next, nil
	}
	if err := checkTransition(cur, &next); err != nil {
		return battle.Battle{}, err
	}
	next.Version = cur.Version + 1

	if cur.IsOpen() && !next.IsOpen() {
		s.mu.Lock()
		rec.snap.Store(&next)
		for _, p := range []shared.PlayerID{next.Challenger, next.Challenged} {
			if s.open[p] == next.ID {
				delete(s.open, p)
			}
		}
		s.mu.Unlock()
		return next, nil
	}
	rec.snap.Store(&next)
	return next, nil
}

// Evict removes ended battles that finished before the cutoff.
func (s *MemoryStore) Evict(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, rec := range s.battles {
		b := rec.snap.Load()
		if b.State == battle.StateEnded && b.EndedAt.Before(before) {
			delete(s.battles, id)
			evicted++
		}
	}
	return evicted, nil
}

// Len reports the number of stored battles, ended ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.battles)
}

func (s *MemoryStore) lookup(id shared.BattleID) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.battles[id]
}

func checkTransition(cur, next *battle.Battle) error {
	if cur.State == battle.StateEnded {
		return battle.ErrNotActive
	}
	if stateRank[next.State] < stateRank[cur.State] {
		return shared.ErrInvalidState
	}
	if next.ID != cur.ID || next.Challenger != cur.Challenger || next.Challenged != cur.Challenged {
		return shared.ErrInvalidArgument
	}
	if next.ChallengerScore < cur.ChallengerScore || next.ChallengedScore < cur.ChallengedScore {
		return shared.ErrInvalidArgument
	}
	if !cur.StartedAt.IsZero() && (!next.StartedAt.Equal(cur.StartedAt) || !next.EndsAt.Equal(cur.EndsAt)) {
		return shared.ErrInvalidState
	}
	return nil
}
