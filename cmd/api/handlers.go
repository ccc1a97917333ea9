package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/streamhub/pkbattle/src/app/battles"
	"github.com/streamhub/pkbattle/src/domain/battle"
	"github.com/streamhub/pkbattle/src/domain/shared"
)

type ChallengeRequest struct {
	ChallengerID    string `json:"challenger_id"`
	ChallengedID    string `json:"challenged_id"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type ChallengeResponse struct {
	BattleID string `json:"battle_id"`
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := s.cfg.BattleService.Challenge(r.Context(), battles.ChallengeCommand{
		ChallengerID:    shared.PlayerID(req.ChallengerID),
		ChallengedID:    shared.PlayerID(req.ChallengedID),
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ChallengeResponse{BattleID: string(out.BattleID)})
}

func (s *Server) handleGetBattle(w http.ResponseWriter, r *http.Request) {
	b, err := s.cfg.BattleService.Get(r.Context(), battles.GetQuery{BattleID: battleID(r)})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.BattleService.View(b))
}

// ActorRequest is the optional body of accept, cancel and end.
type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := s.cfg.BattleService.Accept(r.Context(), battles.AcceptCommand{
		BattleID: battleID(r),
		ActorID:  shared.PlayerID(req.ActorID),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.BattleService.View(b))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := s.cfg.BattleService.Cancel(r.Context(), battles.CancelCommand{
		BattleID: battleID(r),
		ActorID:  shared.PlayerID(req.ActorID),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.BattleService.View(b))
}

type ScoreRequest struct {
	ParticipantID string `json:"participant_id"`
	Delta         int64  `json:"delta"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := s.cfg.BattleService.ApplyScore(r.Context(), battles.ScoreCommand{
		BattleID:      battleID(r),
		ParticipantID: shared.PlayerID(req.ParticipantID),
		Delta:         req.Delta,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.BattleService.View(b))
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := decodeOptional(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := s.cfg.BattleService.End(r.Context(), battles.EndCommand{
		BattleID: battleID(r),
		ActorID:  shared.PlayerID(req.ActorID),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.BattleService.View(b))
}

var errNoActiveBattle = errors.New("player has no open battle")

func (s *Server) handleActiveBattle(w http.ResponseWriter, r *http.Request) {
	player := shared.PlayerID(mux.Vars(r)["id"])
	b, ok, err := s.cfg.BattleService.GetActiveBattleFor(r.Context(), player)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, errNoActiveBattle)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.BattleService.View(b))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := battleID(r)
	err := s.cfg.Hub.Serve(w, r, id, func() (battle.Battle, error) {
		return s.cfg.BattleService.Get(r.Context(), battles.GetQuery{BattleID: id})
	})
	if err != nil {
		s.writeServiceError(w, err)
	}
}

func battleID(r *http.Request) shared.BattleID {
	return shared.BattleID(mux.Vars(r)["id"])
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
