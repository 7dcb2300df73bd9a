// internal/handlers/game.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/game"
	"github.com/jason-s-yu/blackjack/internal/models"
)

type dealRequest struct {
	BetAmount int64 `json:"bet_amount"`
}

type actionRequest struct {
	// GameID of 0 targets the user's round in play.
	GameID int64 `json:"game_id"`
}

// conflictResponse carries the round in question alongside the error so the client can resync.
type conflictResponse struct {
	models.GameState
	Error string `json:"error"`
}

// DealHandler starts a round. Request payload: {"bet_amount": 50}
func (s *GameServer) DealHandler(w http.ResponseWriter, r *http.Request) {
	var req dealRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.Deal(r.Context(), userIDFrom(r.Context()), req.BetAmount)
	if errors.Is(err, ErrRoundInProgress) {
		writeJSON(w, http.StatusConflict, conflictResponse{GameState: st, Error: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *GameServer) HitHandler(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.Hit)
}

func (s *GameServer) StandHandler(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.Stand)
}

func (s *GameServer) DoubleHandler(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, s.Double)
}

type actionFunc func(ctx context.Context, userID uuid.UUID, gameID int64) (models.GameState, error)

// handleAction decodes {"game_id": n} and applies the action to that round.
func (s *GameServer) handleAction(w http.ResponseWriter, r *http.Request, act actionFunc) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.GameID < 0 {
		s.writeError(w, r, badRequest("invalid game_id"))
		return
	}

	st, err := act(r.Context(), userIDFrom(r.Context()), req.GameID)
	if errors.Is(err, game.ErrGameOver) {
		writeJSON(w, http.StatusConflict, conflictResponse{GameState: st, Error: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GameStateHandler resyncs a round: GET /api/game/{id}, or /api/game/current for the round in play.
func (s *GameServer) GameStateHandler(w http.ResponseWriter, r *http.Request) {
	var gameID int64
	if idStr := chi.URLParam(r, "id"); idStr != "current" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id < 1 {
			s.writeError(w, r, badRequest("invalid game id"))
			return
		}
		gameID = id
	}

	st, err := s.Current(r.Context(), userIDFrom(r.Context()), gameID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
