package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/streamhub/pkbattle/src/domain/battle"
)

const createResultsTable = `
CREATE TABLE IF NOT EXISTS pk_battle_results (
    battle_id        TEXT PRIMARY KEY,
    challenger_id    TEXT NOT NULL,
    challenged_id    TEXT NOT NULL,
    challenger_score BIGINT NOT NULL,
    challenged_score BIGINT NOT NULL,
    outcome          TEXT NOT NULL,
    winner_id        TEXT,
    duration_seconds BIGINT NOT NULL,
    started_at       TIMESTAMPTZ,
    ended_at         TIMESTAMPTZ NOT NULL
)`

const insertResult = `
INSERT INTO pk_battle_results (
    battle_id, challenger_id, challenged_id, challenger_score, challenged_score,
    outcome, winner_id, duration_seconds, started_at, ended_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (battle_id) DO NOTHING`

// Execer is the subset of pgxpool.Pool the sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink records final battle results.
type PostgresSink struct {
	DB Execer
}

func NewPostgresSink(db Execer) *PostgresSink {
	return &PostgresSink{DB: db}
}

// Migrate creates the results table if it does not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, createResultsTable); err != nil {
		return fmt.Errorf("create pk_battle_results: %w", err)
	}
	return nil
}

func (s *PostgresSink) BattleEnded(ctx context.Context, b battle.Battle) error {
	var winner, startedAt any
	if b.Winner != "" {
		winner = string(b.Winner)
	}
	if !b.StartedAt.IsZero() {
		startedAt = b.StartedAt
	}
	_, err := s.DB.Exec(ctx, insertResult,
		string(b.ID),
		string(b.Challenger),
		string(b.Challenged),
		b.ChallengerScore,
		b.ChallengedScore,
		string(b.Outcome),
		winner,
		int64(b.Duration.Seconds()),
		startedAt,
		b.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert battle result %s: %w", b.ID, err)
	}
	return nil
}
