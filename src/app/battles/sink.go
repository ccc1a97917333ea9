package battles

import (
	"context"

	"github.com/streamhub/pkbattle/src/domain/battle"
)

// ResolutionSink receives the final snapshot of every battle that ends,
// whether by resolution or cancellation. It is called once per battle.
type ResolutionSink interface {
	BattleEnded(ctx context.Context, b battle.Battle) error
}

// UpdateListener observes every committed change. Snapshots may arrive out
// of order under concurrent scoring; Battle.Version orders them.
type UpdateListener interface {
	BattleUpdated(b battle.Battle)
}

// Metrics records engine activity.
type Metrics interface {
	BattleCreated()
	BattleAccepted()
	ScoreApplied(participant Side)
	ScoreRejected(err error)
	BattleEnded(trigger Trigger, outcome battle.Outcome)
	SinkFailed()
}

// Side names which participant a score was credited to.
type Side string

const (
	SideChallenger Side = "challenger"
	SideChallenged Side = "challenged"
)

type nopMetrics struct{}

func (nopMetrics) BattleCreated()                      {}
func (nopMetrics) BattleAccepted()                     {}
func (nopMetrics) ScoreApplied(Side)                   {}
func (nopMetrics) ScoreRejected(error)                 {}
func (nopMetrics) BattleEnded(Trigger, battle.Outcome) {}
func (nopMetrics) SinkFailed()                         {}
