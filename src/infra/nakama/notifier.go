package nakama

import (
	"context"
	"errors"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
)

// SubjectBattleEnded is the notification subject sent to both participants.
const SubjectBattleEnded = "pk_battle_ended"

const notificationCode = 101

// notificationSender is the slice of runtime.NakamaModule the sink needs.
type notificationSender interface {
	NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error
}

// NotificationSink delivers resolved battles as persistent Nakama
// notifications.
type NotificationSink struct {
	nk notificationSender
}

var _ battles.ResolutionSink = (*NotificationSink)(nil)

func NewNotificationSink(nk notificationSender) *NotificationSink {
	return &NotificationSink{nk: nk}
}

func (s *NotificationSink) BattleEnded(ctx context.Context, b battle.Battle) error {
	content := map[string]interface{}{
		"battle_id":        string(b.ID),
		"challenger_id":    string(b.Challenger),
		"challenged_id":    string(b.Challenged),
		"challenger_score": b.ChallengerScore,
		"challenged_score": b.ChallengedScore,
		"outcome":          string(b.Outcome),
		"winner_id":        string(b.Winner),
	}
	var errs []error
	for _, user := range []string{string(b.Challenger), string(b.Challenged)} {
		if err := s.nk.NotificationSend(ctx, user, SubjectBattleEnded, content, notificationCode, "", true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
