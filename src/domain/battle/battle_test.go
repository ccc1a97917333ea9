package battle_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/domain/shared"
)

func newPending(t *testing.T, now time.Time) *battle.Battle {
	t.Helper()
	b, err := battle.NewBattle("battle-1", "alice", "bob", 300*time.Second, now)
	if err != nil {
		t.Fatalf("NewBattle() error = %v", err)
	}
	return b
}

func TestNewBattle(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		id         shared.BattleID
		challenger shared.PlayerID
		challenged shared.PlayerID
		duration   time.Duration
		wantErr    bool
		wantKind   error
	}{
		{name: "valid battle", id: "battle-1", challenger: "alice", challenged: "bob", duration: time.Minute},
		{name: "empty id", id: "", challenger: "alice", challenged: "bob", duration: time.Minute, wantErr: true},
		{name: "empty challenger", id: "battle-1", challenger: " ", challenged: "bob", duration: time.Minute, wantErr: true},
		{name: "self challenge", id: "battle-1", challenger: "alice", challenged: "alice", duration: time.Minute, wantErr: true, wantKind: shared.ErrInvalidArgument},
		{name: "zero duration", id: "battle-1", challenger: "alice", challenged: "bob", duration: 0, wantErr: true, wantKind: shared.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := battle.NewBattle(tt.id, tt.challenger, tt.challenged, tt.duration, now)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("NewBattle() unexpected error = %v", err)
				}
				if b.State != battle.StatePending {
					t.Errorf("expected pending state, got %s", b.State)
				}
				if b.ChallengerScore != 0 || b.ChallengedScore != 0 {
					t.Errorf("expected zero scores, got %d/%d", b.ChallengerScore, b.ChallengedScore)
				}
				if !b.StartedAt.IsZero() || !b.EndsAt.IsZero() {
					t.Errorf("timing must be unset before acceptance")
				}
				return
			}
			if err == nil {
				t.Fatalf("NewBattle() expected error")
			}
			if tt.wantKind != nil && !errors.Is(err, tt.wantKind) {
				t.Errorf("NewBattle() error = %v, want %v", err, tt.wantKind)
			}
		})
	}
}

func TestBattle_Accept(t *testing.T) {
	now := time.Now()
	b := newPending(t, now)

	start := now.Add(5 * time.Second)
	if err := b.Accept(start); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if b.State != battle.StateActive {
		t.Errorf("expected active, got %s", b.State)
	}
	if !b.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", b.StartedAt, start)
	}
	if want := start.Add(300 * time.Second); !b.EndsAt.Equal(want) {
		t.Errorf("EndsAt = %v, want %v", b.EndsAt, want)
	}

	if err := b.Accept(start.Add(time.Second)); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("second Accept() error = %v, want invalid state", err)
	}
	if !b.StartedAt.Equal(start) {
		t.Errorf("StartedAt changed on rejected accept")
	}
}

func TestBattle_Cancel(t *testing.T) {
	now := time.Now()

	b := newPending(t, now)
	if err := b.Cancel(now); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if b.State != battle.StateEnded || b.Outcome != battle.OutcomeCanceled {
		t.Errorf("expected ended/canceled, got %s/%s", b.State, b.Outcome)
	}
	if b.Winner != "" {
		t.Errorf("canceled battle must have no winner, got %q", b.Winner)
	}
	if !b.StartedAt.IsZero() {
		t.Errorf("canceled battle must never have started")
	}

	active := newPending(t, now)
	_ = active.Accept(now)
	if err := active.Cancel(now); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("Cancel() on active error = %v, want invalid state", err)
	}
}

func TestBattle_AddScore(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		accept      bool
		end         bool
		participant shared.PlayerID
		delta       int64
		wantErr     error
	}{
		{name: "challenger scores", accept: true, participant: "alice", delta: 10},
		{name: "challenged scores", accept: true, participant: "bob", delta: 7},
		{name: "zero delta", accept: true, participant: "alice", delta: 0, wantErr: shared.ErrInvalidArgument},
		{name: "negative delta", accept: true, participant: "alice", delta: -3, wantErr: shared.ErrInvalidArgument},
		{name: "pending battle", accept: false, participant: "alice", delta: 1, wantErr: shared.ErrInvalidState},
		{name: "ended battle", accept: true, end: true, participant: "alice", delta: 1, wantErr: shared.ErrInvalidState},
		{name: "outsider", accept: true, participant: "mallory", delta: 1, wantErr: shared.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newPending(t, now)
			if tt.accept {
				_ = b.Accept(now)
			}
			if tt.end {
				_, _ = b.Resolve(now)
			}
			before := *b
			err := b.AddScore(tt.participant, tt.delta)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AddScore() error = %v, want %v", err, tt.wantErr)
				}
				if *b != before {
					t.Errorf("battle mutated on failed AddScore")
				}
				return
			}
			if err != nil {
				t.Fatalf("AddScore() error = %v", err)
			}
			got := b.ChallengerScore
			if tt.participant == b.Challenged {
				got = b.ChallengedScore
			}
			if got != tt.delta {
				t.Errorf("score = %d, want %d", got, tt.delta)
			}
		})
	}
}

func TestBattle_AddScoreOverflow(t *testing.T) {
	now := time.Now()
	b := newPending(t, now)
	_ = b.Accept(now)
	if err := b.AddScore("alice", math.MaxInt64); err != nil {
		t.Fatalf("AddScore() error = %v", err)
	}
	if err := b.AddScore("alice", 1); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("AddScore() overflow error = %v", err)
	}
	if b.ChallengerScore != math.MaxInt64 {
		t.Errorf("score changed on overflow")
	}
}

func TestBattle_Resolve(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		challenger  int64
		challenged  int64
		wantOutcome battle.Outcome
		wantWinner  shared.PlayerID
	}{
		{name: "challenger wins", challenger: 10, challenged: 7, wantOutcome: battle.OutcomeChallengerWon, wantWinner: "alice"},
		{name: "challenged wins", challenger: 3, challenged: 9, wantOutcome: battle.OutcomeChallengedWon, wantWinner: "bob"},
		{name: "tie", challenger: 10, challenged: 10, wantOutcome: battle.OutcomeTie, wantWinner: ""},
		{name: "scoreless tie", wantOutcome: battle.OutcomeTie, wantWinner: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newPending(t, now)
			_ = b.Accept(now)
			if tt.challenger > 0 {
				_ = b.AddScore("alice", tt.challenger)
			}
			if tt.challenged > 0 {
				_ = b.AddScore("bob", tt.challenged)
			}

			changed, err := b.Resolve(now.Add(time.Minute))
			if err != nil || !changed {
				t.Fatalf("Resolve() = %v, %v", changed, err)
			}
			if b.Outcome != tt.wantOutcome || b.Winner != tt.wantWinner {
				t.Errorf("got %s/%q, want %s/%q", b.Outcome, b.Winner, tt.wantOutcome, tt.wantWinner)
			}

			final := *b
			changed, err = b.Resolve(now.Add(time.Hour))
			if err != nil || changed {
				t.Fatalf("second Resolve() = %v, %v", changed, err)
			}
			if *b != final {
				t.Errorf("second Resolve() modified the battle")
			}
		})
	}
}

func TestBattle_ResolvePending(t *testing.T) {
	b := newPending(t, time.Now())
	if _, err := b.Resolve(time.Now()); !errors.Is(err, shared.ErrInvalidState) {
		t.Errorf("Resolve() on pending error = %v", err)
	}
}

func TestBattle_Due(t *testing.T) {
	now := time.Now()
	b := newPending(t, now)
	if b.Due(now.Add(time.Hour)) {
		t.Errorf("pending battle can never be due")
	}
	_ = b.Accept(now)
	if b.Due(b.EndsAt.Add(-time.Nanosecond)) {
		t.Errorf("battle due before EndsAt")
	}
	if !b.Due(b.EndsAt) {
		t.Errorf("battle not due at EndsAt")
	}
	if got := b.Remaining(now.Add(100 * time.Second)); got != 200*time.Second {
		t.Errorf("Remaining() = %v", got)
	}
}
