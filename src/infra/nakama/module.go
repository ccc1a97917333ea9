package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/heroiclabs/nakama-common/runtime"
	"go.uber.org/zap"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/domain/shared"
	infra "github.com/streamhub/pkbattle/src/infra/battle"
	"github.com/streamhub/pkbattle/src/infra/config"
	"github.com/streamhub/pkbattle/src/infra/logging"
	"github.com/streamhub/pkbattle/src/infra/sink"
)

// RPC identifiers registered with the Nakama runtime.
const (
	RPCChallenge = "pk_challenge"
	RPCAccept    = "pk_accept"
	RPCCancel    = "pk_cancel"
	RPCScore     = "pk_score"
	RPCEnd       = "pk_end"
	RPCActive    = "pk_active"
)

// gRPC status codes understood by Nakama clients.
const (
	codeInvalidArgument    = 3
	codeNotFound           = 5
	codeAlreadyExists      = 6
	codePermissionDenied   = 7
	codeFailedPrecondition = 9
	codeInternal           = 13
)

type rpcFunc func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)

// InitModule wires a battle engine into a Nakama server. Battle endings are
// pushed to both participants as notifications.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	zl, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	sinks := sink.Multi{NewNotificationSink(nk)}
	if cfg.Sink.WebhookURL != "" {
		sinks = append(sinks, sink.NewWebhookSink(cfg.Sink.WebhookURL, cfg.Sink.WebhookAPIKey))
	}
	notifier := sink.NewAsyncSink(sinks, zl, cfg.Sink.QueueSize, cfg.Sink.Workers)
	svc := battles.NewService(infra.NewMemoryStore(),
		battles.WithLogger(zl),
		battles.WithSink(notifier),
		battles.WithDurationPolicy(battles.DurationPolicy{
			Default: cfg.Battle.DefaultDuration,
			Max:     cfg.Battle.MaxDuration,
		}),
	)
	if err := NewModule(svc).Register(initializer); err != nil {
		return err
	}
	zl.Info("pk battle runtime module registered",
		zap.Duration("default_duration", cfg.Battle.DefaultDuration),
		zap.Bool("webhook", cfg.Sink.WebhookURL != ""),
	)
	return nil
}

// Module exposes battle operations as Nakama RPCs. The calling user, when
// present, acts as the participant for challenge, accept, cancel, end and
// active lookups. Scoring is server-to-server only: gift handling in the
// host runtime calls pk_score without a user session.
type Module struct {
	Service *battles.Service
}

func NewModule(svc *battles.Service) *Module {
	return &Module{Service: svc}
}

func (m *Module) Register(initializer runtime.Initializer) error {
	rpcs := []struct {
		id string
		fn rpcFunc
	}{
		{RPCChallenge, m.challenge},
		{RPCAccept, m.accept},
		{RPCCancel, m.cancel},
		{RPCScore, m.score},
		{RPCEnd, m.end},
		{RPCActive, m.active},
	}
	for _, rpc := range rpcs {
		if err := initializer.RegisterRpc(rpc.id, rpc.fn); err != nil {
			return err
		}
	}
	return nil
}

type challengeRequest struct {
	ChallengerID    string `json:"challenger_id"`
	ChallengedID    string `json:"challenged_id"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type battleRequest struct {
	BattleID string `json:"battle_id"`
}

type scoreRequest struct {
	BattleID      string `json:"battle_id"`
	ParticipantID string `json:"participant_id"`
	Delta         int64  `json:"delta"`
}

type activeRequest struct {
	PlayerID string `json:"player_id"`
}

type activeResponse struct {
	Battle *battles.View `json:"battle"`
}

func (m *Module) challenge(ctx context.Context, _ runtime.Logger, _ *sql.DB, _ runtime.NakamaModule, payload string) (string, error) {
	var req challengeRequest
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	challenger := shared.PlayerID(req.ChallengerID)
	if caller := callerID(ctx); caller != "" {
		challenger = caller
	}
	res, err := m.Service.Challenge(ctx, battles.ChallengeCommand{
		ChallengerID:    challenger,
		ChallengedID:    shared.PlayerID(req.ChallengedID),
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		return "", toRuntimeError(err)
	}
	b, err := m.Service.Get(ctx, battles.GetQuery{BattleID: res.BattleID})
	if err != nil {
		return "", toRuntimeError(err)
	}
	return encode(m.Service.View(b))
}

func (m *Module) accept(ctx context.Context, _ runtime.Logger, _ *sql.DB, _ runtime.NakamaModule, payload string) (string, error) {
	var req battleRequest
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	b, err := m.Service.Accept(ctx, battles.AcceptCommand{
		BattleID: shared.BattleID(req.BattleID),
		ActorID:  callerID(ctx),
	})
	return m.respond(b, err)
}

func (m *Module) cancel(ctx context.Context, _ runtime.Logger, _ *sql.DB, _ runtime.NakamaModule, payload string) (string, error) {
	var req battleRequest
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	b, err := m.Service.Cancel(ctx, battles.CancelCommand{
		BattleID: shared.BattleID(req.BattleID),
		ActorID:  callerID(ctx),
	})
	return m.respond(b, err)
}

func (m *Module) score(ctx context.Context, _ runtime.Logger, _ *sql.DB, _ runtime.NakamaModule, payload string) (string, error) {
	if callerID(ctx) != "" {
		return "", runtime.NewError("scores are applied by the server", codePermissionDenied)
	}
	var req scoreRequest
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	b, err := m.Service.ApplyScore(ctx, battles.ScoreCommand{
		BattleID:      shared.BattleID(req.BattleID),
		ParticipantID: shared.PlayerID(req.ParticipantID),
		Delta:         req.Delta,
	})
	return m.respond(b, err)
}

func (m *Module) end(ctx context.Context, _ runtime.Logger, _ *sql.DB, _ runtime.NakamaModule, payload string) (string, error) {
	var req battleRequest
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	b, err := m.Service.End(ctx, battles.EndCommand{
		BattleID: shared.BattleID(req.BattleID),
		ActorID:  callerID(ctx),
	})
	return m.respond(b, err)
}

func (m *Module) active(ctx context.Context, _ runtime.Logger, _ *sql.DB, _ runtime.NakamaModule, payload string) (string, error) {
	var req activeRequest
	if err := decode(payload, &req); err != nil {
		return "", err
	}
	player := shared.PlayerID(req.PlayerID)
	if player == "" {
		player = callerID(ctx)
	}
	b, ok, err := m.Service.GetActiveBattleFor(ctx, player)
	if err != nil {
		return "", toRuntimeError(err)
	}
	var out activeResponse
	if ok {
		view := m.Service.View(b)
		out.Battle = &view
	}
	return encode(out)
}

func callerID(ctx context.Context) shared.PlayerID {
	id, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	return shared.PlayerID(id)
}

func decode(payload string, dst any) error {
	if payload == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return runtime.NewError("malformed payload", codeInvalidArgument)
	}
	return nil
}

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", runtime.NewError("encode response", codeInternal)
	}
	return string(raw), nil
}

func (m *Module) respond(b battle.Battle, err error) (string, error) {
	if err != nil {
		return "", toRuntimeError(err)
	}
	return encode(m.Service.View(b))
}

func toRuntimeError(err error) error {
	code := codeInternal
	switch {
	case errors.Is(err, shared.ErrInvalidArgument):
		code = codeInvalidArgument
	case errors.Is(err, shared.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, shared.ErrConflict):
		code = codeAlreadyExists
	case errors.Is(err, shared.ErrForbidden):
		code = codePermissionDenied
	case errors.Is(err, shared.ErrInvalidState):
		code = codeFailedPrecondition
	}
	return runtime.NewError(err.Error(), code)
}
