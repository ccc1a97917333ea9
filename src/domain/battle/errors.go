package battle

import (
	"fmt"

	"github.com/streamhub/pkbattle/src/domain/shared"
)

var (
	ErrBattleNotFound  = fmt.Errorf("%w: battle does not exist", shared.ErrNotFound)
	ErrParticipantBusy = fmt.Errorf("%w: participant already has an open battle", shared.ErrConflict)
	ErrDuplicateBattle = fmt.Errorf("%w: battle id already registered", shared.ErrConflict)
	ErrNotPending      = fmt.Errorf("%w: battle is not pending", shared.ErrInvalidState)
	ErrNotActive       = fmt.Errorf("%w: battle is not active", shared.ErrInvalidState)
	ErrNotDue          = fmt.Errorf("%w: battle has not reached its end time", shared.ErrInvalidState)
	ErrSelfChallenge   = fmt.Errorf("%w: challenger and challenged must differ", shared.ErrInvalidArgument)
	ErrInvalidDelta    = fmt.Errorf("%w: score delta must be positive", shared.ErrInvalidArgument)
	ErrScoreOverflow   = fmt.Errorf("%w: score delta overflows total", shared.ErrInvalidArgument)
	ErrInvalidDuration = fmt.Errorf("%w: duration out of range", shared.ErrInvalidArgument)
	ErrNotParticipant  = fmt.Errorf("%w: player is not a participant", shared.ErrForbidden)
)
