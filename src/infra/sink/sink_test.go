package sink_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/infra/sink"
)

type mockSink struct {
	mu      sync.Mutex
	got     []battle.Battle
	err     error
	entered chan struct{}
	release chan struct{}
}

func (m *mockSink) BattleEnded(ctx context.Context, b battle.Battle) error {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, b)
	return m.err
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.got)
}

type mockExecer struct {
	execFunc func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return m.execFunc(ctx, sql, args...)
}

func endedBattle() battle.Battle {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return battle.Battle{
		ID:              "b1",
		Challenger:      "alice",
		Challenged:      "bob",
		State:           battle.StateEnded,
		ChallengerScore: 10,
		ChallengedScore: 7,
		Duration:        300 * time.Second,
		StartedAt:       start,
		EndsAt:          start.Add(300 * time.Second),
		EndedAt:         start.Add(300 * time.Second),
		Outcome:         battle.OutcomeChallengerWon,
		Winner:          "alice",
	}
}

func TestAsyncSink_DeliversAndDrains(t *testing.T) {
	next := &mockSink{}
	s := sink.NewAsyncSink(next, zap.NewNop(), 8, 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.BattleEnded(context.Background(), endedBattle()))
	}
	s.Close()

	assert.Equal(t, 5, next.count())
	assert.Equal(t, int64(5), s.Delivered())
	assert.ErrorIs(t, s.BattleEnded(context.Background(), endedBattle()), sink.ErrQueueClosed)
	s.Close()
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	next := &mockSink{entered: make(chan struct{}, 4), release: make(chan struct{})}
	s := sink.NewAsyncSink(next, zap.NewNop(), 1, 1)

	// One snapshot is held by the worker, one waits in the queue.
	require.NoError(t, s.BattleEnded(context.Background(), endedBattle()))
	<-next.entered
	require.NoError(t, s.BattleEnded(context.Background(), endedBattle()))

	err := s.BattleEnded(context.Background(), endedBattle())
	assert.ErrorIs(t, err, sink.ErrQueueFull)
	assert.Equal(t, int64(1), s.Dropped())

	close(next.release)
	s.Close()
	assert.Equal(t, 2, next.count())
}

func TestAsyncSink_CountsFailures(t *testing.T) {
	next := &mockSink{err: errors.New("down")}
	s := sink.NewAsyncSink(next, zap.NewNop(), 4, 1)
	require.NoError(t, s.BattleEnded(context.Background(), endedBattle()))
	s.Close()
	assert.Equal(t, int64(1), s.Failed())
	assert.Zero(t, s.Delivered())
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &mockSink{}
	bad := &mockSink{err: errors.New("bad")}
	err := sink.Multi{ok, bad}.BattleEnded(context.Background(), endedBattle())
	assert.EqualError(t, err, "bad")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())

	assert.NoError(t, sink.Multi{ok}.BattleEnded(context.Background(), endedBattle()))
}

func TestPostgresSink_BattleEnded(t *testing.T) {
	tests := []struct {
		name       string
		battle     battle.Battle
		execErr    error
		wantWinner any
		wantErr    bool
	}{
		{name: "win", battle: endedBattle(), wantWinner: "alice"},
		{
			name: "tie has null winner",
			battle: func() battle.Battle {
				b := endedBattle()
				b.ChallengedScore = 10
				b.Outcome = battle.OutcomeTie
				b.Winner = ""
				return b
			}(),
			wantWinner: nil,
		},
		{name: "exec failure", battle: endedBattle(), execErr: errors.New("conn reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotArgs []any
			db := &mockExecer{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				gotArgs = args
				return pgconn.NewCommandTag("INSERT 0 1"), tt.execErr
			}}

			err := sink.NewPostgresSink(db).BattleEnded(context.Background(), tt.battle)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, gotArgs, 10)
			assert.Equal(t, "b1", gotArgs[0])
			assert.Equal(t, tt.wantWinner, gotArgs[6])
			assert.Equal(t, int64(300), gotArgs[7])
		})
	}
}

func TestPostgresSink_Migrate(t *testing.T) {
	var gotSQL string
	db := &mockExecer{execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		gotSQL = sql
		return pgconn.CommandTag{}, nil
	}}
	require.NoError(t, sink.NewPostgresSink(db).Migrate(context.Background()))
	assert.Contains(t, gotSQL, "CREATE TABLE IF NOT EXISTS pk_battle_results")
}

func TestWebhookSink_PostsResult(t *testing.T) {
	var (
		gotAuth string
		gotKey  string
		gotBody struct {
			Type   string       `json:"type"`
			Battle battles.View `json:"battle"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth, _, _ = r.BasicAuth()
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := endedBattle()
	require.NoError(t, sink.NewWebhookSink(srv.URL, "secret").BattleEnded(context.Background(), b))
	assert.Equal(t, "secret", gotAuth)
	assert.Equal(t, string(b.ID), gotKey)
	assert.Equal(t, "battle.ended", gotBody.Type)
	assert.Equal(t, string(b.Winner), gotBody.Battle.WinnerID)
}

func TestWebhookSink_RejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := sink.NewWebhookSink(srv.URL, "").WithHTTPClient(srv.Client()).BattleEnded(context.Background(), endedBattle())
	assert.ErrorIs(t, err, sink.ErrWebhookRejected)
}
