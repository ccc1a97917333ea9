package shared

import (
	"fmt"
	"strings"
)

// ID types keep domain entities distinct while remaining simple strings at runtime.
type (
	PlayerID string
	BattleID string
)

// Validate ensures IDs are not blank.
func (id PlayerID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: player id is required", ErrInvalidArgument)
	}
	return nil
}

func (id BattleID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: battle id is required", ErrInvalidArgument)
	}
	return nil
}
