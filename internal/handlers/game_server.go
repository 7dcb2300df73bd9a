// internal/handlers/game_server.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/cache"
	"github.com/jason-s-yu/blackjack/internal/database"
	"github.com/jason-s-yu/blackjack/internal/game"
	"github.com/jason-s-yu/blackjack/internal/models"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var (
	// ErrGameNotFound covers unknown rounds and rounds owned by someone else.
	ErrGameNotFound = errors.New("game not found")
	// ErrRoundInProgress is returned by Deal while the user still has an unfinished round.
	ErrRoundInProgress = errors.New("finish your current hand first")
	// ErrDealInFlight is returned by Deal while another deal for the same user is being stored.
	ErrDealInFlight = errors.New("a deal is already in progress")
)

const (
	publishTimeout = 2 * time.Second
	settleTimeout  = 5 * time.Second
	// recentTTL is how long a settled round stays readable after it leaves the store.
	recentTTL      = 15 * time.Minute
)

// ActionPublisher ships action records to the historian queue.
type ActionPublisher interface {
	PublishGameAction(ctx context.Context, rec models.GameActionRecord) error
}

// TokenRevoker is the logout denylist keyed by token id.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// GameServer ties the in-memory rounds to the persistent wallet and the
// per-user event feeds.
type GameServer struct {
	Store database.Store
	Games *game.GameStore
	Hub   *game.Hub
	Rules game.Rules

	// Publisher is optional; without it actions are not recorded.
	Publisher ActionPublisher
	Revoker   TokenRevoker

	Logger       *logrus.Logger
	CookieSecure bool

	// WSOriginPatterns are the host patterns allowed to open the event feed cross-origin.
	WSOriginPatterns []string

	// NewDeck builds the shoe for each round. Tests replace it with stacked decks.
	NewDeck func(rules game.Rules) *game.Deck

	// recent holds the final state of settled rounds keyed by game id.
	recent *gocache.Cache
}

type recentRound struct {
	UserID uuid.UUID
	State  models.GameState
}

func NewGameServer(store database.Store, rules game.Rules, logger *logrus.Logger) *GameServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GameServer{
		Store:   store,
		Games:   game.NewGameStore(),
		Hub:     game.NewHub(),
		Rules:   rules,
		Revoker: cache.NewMemoryDenylist(),
		Logger:  logger,
		NewDeck: func(r game.Rules) *game.Deck { return game.NewDeck(r.Decks, nil) },
		recent:  gocache.New(recentTTL, recentTTL),
	}
}

// Deal debits the bet and starts a new round for the user.
//
// If the user already has a round in play, its state is returned together
// with ErrRoundInProgress so the client can resume it.
func (s *GameServer) Deal(ctx context.Context, userID uuid.UUID, bet int64) (models.GameState, error) {
	if err := s.Rules.CheckBet(bet); err != nil {
		return models.GameState{}, err
	}

	if !s.Games.Reserve(userID) {
		existing, ok := s.Games.GetGameByUser(userID)
		if !ok {
			return models.GameState{}, ErrDealInFlight
		}
		existing.Mu.Lock()
		// a finished round whose settlement failed earlier gets another try here
		settleErr := s.settleLocked(ctx, existing)
		st := existing.State()
		settled := existing.Settled
		existing.Mu.Unlock()
		if !settled {
			if settleErr != nil {
				return st, settleErr
			}
			return st, ErrRoundInProgress
		}
		if !s.Games.Reserve(userID) {
			return models.GameState{}, ErrDealInFlight
		}
	}

	g := game.NewBlackjackGame(userID, bet, s.Rules, s.NewDeck(s.Rules))
	gameID, balance, err := s.Store.StartGame(ctx, userID, bet, g.InitialSnapshot())
	if err != nil {
		s.Games.Release(userID)
		return models.GameState{}, err
	}
	g.ID = gameID
	g.Balance = balance
	g.BroadcastFn = func(ev game.GameEvent) { s.Hub.Publish(userID, ev) }
	g.PublishActionFn = s.publishAction

	g.Mu.Lock()
	defer g.Mu.Unlock()
	s.Games.AddGame(g)

	if err := g.Deal(); err != nil {
		return g.State(), fmt.Errorf("deal game %d: %w", g.ID, err)
	}
	s.Logger.WithFields(logrus.Fields{
		"game_id": g.ID,
		"user_id": userID,
		"bet":     bet,
	}).Debug("round dealt")

	if err := s.settleLocked(ctx, g); err != nil {
		return g.State(), err
	}
	return g.State(), nil
}

// Hit draws a card for the player.
func (s *GameServer) Hit(ctx context.Context, userID uuid.UUID, gameID int64) (models.GameState, error) {
	return s.play(ctx, userID, gameID, func(g *game.BlackjackGame) error {
		return g.Hit()
	})
}

// Stand ends the player's turn.
func (s *GameServer) Stand(ctx context.Context, userID uuid.UUID, gameID int64) (models.GameState, error) {
	return s.play(ctx, userID, gameID, func(g *game.BlackjackGame) error {
		return g.Stand()
	})
}

// Double debits a second stake equal to the bet, then draws one card and stands.
func (s *GameServer) Double(ctx context.Context, userID uuid.UUID, gameID int64) (models.GameState, error) {
	return s.play(ctx, userID, gameID, func(g *game.BlackjackGame) error {
		if err := g.CanDouble(); err != nil {
			return err
		}
		balance, err := s.Store.RaiseBet(ctx, g.ID, userID, g.Bet)
		if errors.Is(err, database.ErrGameNotActive) {
			g.Abandon()
			return game.ErrGameOver
		}
		if err != nil {
			return err
		}
		g.Balance = balance
		return g.Double()
	})
}

// Current returns the state of the given round. A gameID of 0 means the user's
// round in play, or failing that the one settled most recently.
func (s *GameServer) Current(ctx context.Context, userID uuid.UUID, gameID int64) (models.GameState, error) {
	g, err := s.lookup(userID, gameID)
	if err != nil {
		if st, ok := s.recentState(userID, gameID); ok {
			return st, nil
		}
		return models.GameState{}, err
	}
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if err := s.settleLocked(ctx, g); err != nil {
		s.Logger.WithError(err).WithField("game_id", g.ID).Warn("settlement retry failed")
	}
	return g.State(), nil
}

func (s *GameServer) lookup(userID uuid.UUID, gameID int64) (*game.BlackjackGame, error) {
	var (
		g  *game.BlackjackGame
		ok bool
	)
	if gameID == 0 {
		g, ok = s.Games.GetGameByUser(userID)
	} else {
		g, ok = s.Games.GetGame(gameID)
	}
	if !ok || g.UserID != userID {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// play runs one player action under the round's lock and settles the round if it ended.
func (s *GameServer) play(ctx context.Context, userID uuid.UUID, gameID int64, action func(g *game.BlackjackGame) error) (models.GameState, error) {
	g, err := s.lookup(userID, gameID)
	if err != nil {
		if st, ok := s.recentState(userID, gameID); ok {
			return st, game.ErrGameOver
		}
		return models.GameState{}, err
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Settled {
		return g.State(), game.ErrGameOver
	}
	if !g.Status.Finished() && !s.touchLocked(ctx, g) {
		if err := s.settleLocked(ctx, g); err != nil {
			return g.State(), err
		}
		return g.State(), game.ErrGameOver
	}
	if err := action(g); err != nil {
		if errors.Is(err, game.ErrGameOver) {
			// the round ended but its settlement has not been written yet
			if settleErr := s.settleLocked(ctx, g); settleErr != nil {
				return g.State(), settleErr
			}
		}
		return g.State(), err
	}
	if err := s.settleLocked(ctx, g); err != nil {
		return g.State(), err
	}
	return g.State(), nil
}

// touchLocked records activity on a round still in play. It returns false when
// the store already closed the round, which is then marked abandoned.
// Assumes lock is held by caller.
func (s *GameServer) touchLocked(ctx context.Context, g *game.BlackjackGame) bool {
	err := s.Store.TouchGame(ctx, g.ID)
	switch {
	case errors.Is(err, database.ErrGameNotActive):
		g.Abandon()
		return false
	case err != nil:
		// the round stays playable; the historian may close it early
		s.Logger.WithError(err).WithField("game_id", g.ID).Warn("failed to record round activity")
	}
	return true
}

// settleLocked writes the outcome of a finished round to the store and drops it
// from memory. A failed write leaves the round in place to be retried.
// Assumes lock is held by caller.
func (s *GameServer) settleLocked(ctx context.Context, g *game.BlackjackGame) error {
	if !g.Status.Finished() || g.Settled {
		return nil
	}

	// settlement must not be cut short by the client going away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	log := s.Logger.WithFields(logrus.Fields{
		"game_id": g.ID,
		"user_id": g.UserID,
		"status":  g.Status,
	})

	var (
		balance int64
		err     error
	)
	if g.Status != models.StatusAbandoned {
		balance, err = s.Store.FinishGame(ctx, database.Settlement{
			GameID:     g.ID,
			UserID:     g.UserID,
			Status:     g.Status,
			Payout:     g.Payout(),
			FinalState: g.FinalSnapshot(),
		})
	}
	switch {
	case g.Status == models.StatusAbandoned:
		// closed and refunded in the store already; only the balance is stale
		s.refreshBalance(ctx, g)
		log.Info("round was abandoned")
	case errors.Is(err, database.ErrGameNotActive):
		// abandoned by the historian; the refund stands and the local outcome is void
		log.Warn("round was already closed in the database")
		g.Abandon()
		s.refreshBalance(ctx, g)
	case err != nil:
		log.WithError(err).Error("failed to settle round")
		return fmt.Errorf("settle game %d: %w", g.ID, err)
	default:
		g.Balance = balance
		log.WithField("payout", g.Payout()).Info("round settled")
	}

	g.Settled = true
	s.Games.DeleteGame(g.ID)
	rr := recentRound{UserID: g.UserID, State: g.State()}
	s.recent.Set(recentKey(g.ID), rr, gocache.DefaultExpiration)
	s.recent.Set(lastSettledKey(g.UserID), rr, gocache.DefaultExpiration)
	return nil
}

// refreshBalance reloads the wallet after the store settled the round on its own.
// Assumes lock is held by caller.
func (s *GameServer) refreshBalance(ctx context.Context, g *game.BlackjackGame) {
	u, err := s.Store.GetUserByID(ctx, g.UserID)
	if err != nil {
		s.Logger.WithError(err).WithField("game_id", g.ID).Warn("failed to reload balance")
		return
	}
	g.Balance = u.Money
}

// recentState returns the final state of a round settled within recentTTL.
// A gameID of 0 means the user's most recently settled round.
func (s *GameServer) recentState(userID uuid.UUID, gameID int64) (models.GameState, bool) {
	key := recentKey(gameID)
	if gameID == 0 {
		key = lastSettledKey(userID)
	}
	v, ok := s.recent.Get(key)
	if !ok {
		return models.GameState{}, false
	}
	rr := v.(recentRound)
	if rr.UserID != userID {
		return models.GameState{}, false
	}
	return rr.State, true
}

func recentKey(id int64) string { return strconv.FormatInt(id, 10) }

func lastSettledKey(userID uuid.UUID) string { return "user:" + userID.String() }

// publishAction forwards a record to the historian without blocking the round.
func (s *GameServer) publishAction(rec models.GameActionRecord) {
	if s.Publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.Publisher.PublishGameAction(ctx, rec); err != nil {
			s.Logger.WithError(err).WithFields(logrus.Fields{
				"game_id":      rec.GameID,
				"action_index": rec.ActionIndex,
			}).Warn("failed to publish game action")
		}
	}()
}
