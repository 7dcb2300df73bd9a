package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// GameStore tracks the rounds currently in play, at most one per user.
type GameStore struct {
	mu      sync.Mutex
	games   map[int64]*BlackjackGame
	byUser  map[uuid.UUID]int64
	pending map[uuid.UUID]struct{}
}

func NewGameStore() *GameStore {
	return &GameStore{
		games:   make(map[int64]*BlackjackGame),
		byUser:  make(map[uuid.UUID]int64),
		pending: make(map[uuid.UUID]struct{}),
	}
}

// Reserve claims the user's single round slot while a deal is being persisted.
// It returns false if the user already has a round in play or a deal in flight.
func (s *GameStore) Reserve(userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser[userID]; ok {
		return false
	}
	if _, ok := s.pending[userID]; ok {
		return false
	}
	s.pending[userID] = struct{}{}
	return true
}

// Release drops a reservation that did not turn into a round.
func (s *GameStore) Release(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
}

// AddGame registers a persisted round and clears the owner's reservation.
func (s *GameStore) AddGame(game *BlackjackGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game
	s.byUser[game.UserID] = game.ID
	delete(s.pending, game.UserID)
}

func (s *GameStore) GetGame(id int64) (*BlackjackGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.games[id]
	return g, exists
}

// GetGameByUser returns the round the user currently has in play.
func (s *GameStore) GetGameByUser(userID uuid.UUID) (*BlackjackGame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	g, exists := s.games[id]
	return g, exists
}

func (s *GameStore) DeleteGame(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return
	}
	delete(s.games, id)
	if s.byUser[g.UserID] == id {
		delete(s.byUser, g.UserID)
	}
}

// Idle returns the rounds whose last action is older than maxIdle.
// Game locks are taken only after the store lock is released.
func (s *GameStore) Idle(maxIdle time.Duration, now time.Time) []*BlackjackGame {
	s.mu.Lock()
	all := make([]*BlackjackGame, 0, len(s.games))
	for _, g := range s.games {
		all = append(all, g)
	}
	s.mu.Unlock()

	var idle []*BlackjackGame
	for _, g := range all {
		if now.Sub(g.LastAction()) > maxIdle {
			idle = append(idle, g)
		}
	}
	return idle
}

func (s *GameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}
