package sink

import (
	"context"
	"errors"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
)

// Multi delivers to every sink and joins their errors.
type Multi []battles.ResolutionSink

func (m Multi) BattleEnded(ctx context.Context, b battle.Battle) error {
	var errs []error
	for _, s := range m {
		if err := s.BattleEnded(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
