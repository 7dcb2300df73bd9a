// internal/game/game.go
package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/models"
)

var (
	// ErrGameOver is returned for any action on a round that has already been settled.
	ErrGameOver = errors.New("game is already over")
	// ErrInvalidBet is returned when a bet falls outside the table limits.
	ErrInvalidBet = errors.New("invalid bet")
	// ErrCannotDouble is returned when doubling is attempted after the first two cards.
	ErrCannotDouble = errors.New("can only double down on the first two cards")
	// ErrNotDealt is returned when hitting or standing before the initial deal.
	ErrNotDealt = errors.New("cards have not been dealt")
)

// GameEventType is an enum-like type for events pushed to the player's event feed.
type GameEventType string

const (
	EventGameDealt    GameEventType = "game_dealt"
	EventPlayerHit    GameEventType = "player_hit"
	EventPlayerDouble GameEventType = "player_double"
	EventPlayerStand  GameEventType = "player_stand"
	EventDealerReveal GameEventType = "dealer_reveal"
	EventDealerDraw   GameEventType = "dealer_draw"
	EventGameEnd      GameEventType = "game_end"
)

// GameEvent holds data about a round transition in a consistent format.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	GameID  int64                  `json:"game_id"`
	Card    *models.Card           `json:"card,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// BlackjackGame holds the entire state for a single round in memory.
type BlackjackGame struct {
	ID     int64
	UserID uuid.UUID
	Rules  Rules

	Deck   *Deck
	Player Hand
	Dealer Hand

	Bet     int64
	Balance int64 // wallet balance last reported by the store
	Status  models.GameStatus
	Message string
	Doubled bool
	Natural bool // player won on a two-card 21
	Settled bool // payout has been written to the store

	dealt       bool
	actionIndex int
	lastAction  time.Time
	Mu          sync.Mutex

	// BroadcastFn is used to send events to the owning user. If nil, no broadcast is done.
	BroadcastFn func(ev GameEvent)

	// PublishActionFn receives an action record for the historian. If nil, nothing is published.
	PublishActionFn func(rec models.GameActionRecord)
}

// NewBlackjackGame creates an undealt round for the given user and bet.
func NewBlackjackGame(userID uuid.UUID, bet int64, rules Rules, deck *Deck) *BlackjackGame {
	if deck == nil {
		deck = NewDeck(rules.Decks, nil)
	}
	return &BlackjackGame{
		UserID:     userID,
		Rules:      rules,
		Deck:       deck,
		Bet:        bet,
		Status:     models.StatusActive,
		lastAction: time.Now(),
	}
}

// Deal hands two cards each to the player and the dealer, alternating,
// and settles immediately when either side holds a natural.
// Assumes lock is held by caller.
func (g *BlackjackGame) Deal() error {
	if g.dealt {
		return fmt.Errorf("game %d: cards already dealt", g.ID)
	}
	if err := g.Rules.CheckBet(g.Bet); err != nil {
		return err
	}
	g.dealt = true
	g.touch()

	for i := 0; i < 2; i++ {
		g.Player = append(g.Player, g.Deck.Draw())
		g.Dealer = append(g.Dealer, g.Deck.Draw())
	}
	up := g.Dealer[0]
	g.Message = "Cards dealt. Hit or stand?"
	g.logAction("action_deal", map[string]interface{}{
		"bet":         g.Bet,
		"player_hand": g.Player.Cards(),
		"dealer_card": up,
	})
	g.fireEvent(GameEvent{
		Type: EventGameDealt,
		Card: &up,
		Payload: map[string]interface{}{
			"player_hand":  g.Player.Cards(),
			"player_score": g.Player.Value(),
			"bet":          g.Bet,
		},
	})

	switch playerBJ, dealerBJ := g.Player.IsBlackjack(), g.Dealer.IsBlackjack(); {
	case playerBJ && dealerBJ:
		g.finish(models.StatusPush, "Both have blackjack. Push.")
	case playerBJ:
		g.Natural = true
		g.finish(models.StatusPlayerWin, "Blackjack! You win.")
	case dealerBJ:
		g.finish(models.StatusDealerWin, "Dealer has blackjack. Dealer wins.")
	}
	return nil
}

// Hit draws one card for the player. A bust ends the round; reaching 21 stands automatically.
// Assumes lock is held by caller.
func (g *BlackjackGame) Hit() error {
	if err := g.checkPlayable(); err != nil {
		return err
	}
	g.touch()

	c := g.Deck.Draw()
	g.Player = append(g.Player, c)
	score := g.Player.Value()
	g.logAction("action_hit", map[string]interface{}{"card": c, "player_score": score})
	g.fireEvent(GameEvent{
		Type:    EventPlayerHit,
		Card:    &c,
		Payload: map[string]interface{}{"player_score": score},
	})

	switch {
	case g.Player.IsBust():
		g.finish(models.StatusDealerWin, "Bust! Dealer wins.")
	case score == blackjackTotal:
		g.playDealer()
	default:
		g.Message = fmt.Sprintf("You drew the %s. Hit or stand?", c)
	}
	return nil
}

// CanDouble reports whether the player may still double down.
// Assumes lock is held by caller.
func (g *BlackjackGame) CanDouble() error {
	if err := g.checkPlayable(); err != nil {
		return err
	}
	if len(g.Player) != 2 {
		return ErrCannotDouble
	}
	return nil
}

// Double doubles the bet, draws exactly one card and stands.
// The caller must have already debited the extra stake from the wallet.
// Assumes lock is held by caller.
func (g *BlackjackGame) Double() error {
	if err := g.CanDouble(); err != nil {
		return err
	}
	g.touch()

	g.Bet *= 2
	g.Doubled = true
	c := g.Deck.Draw()
	g.Player = append(g.Player, c)
	score := g.Player.Value()
	g.logAction("action_double", map[string]interface{}{"card": c, "bet": g.Bet, "player_score": score})
	g.fireEvent(GameEvent{
		Type:    EventPlayerDouble,
		Card:    &c,
		Payload: map[string]interface{}{"player_score": score, "bet": g.Bet},
	})

	if g.Player.IsBust() {
		g.finish(models.StatusDealerWin, "Bust! Dealer wins.")
		return nil
	}
	g.playDealer()
	return nil
}

// Stand ends the player's turn and lets the dealer play out its hand.
// Assumes lock is held by caller.
func (g *BlackjackGame) Stand() error {
	if !g.dealt {
		return ErrNotDealt
	}
	if g.Status.Finished() {
		return ErrGameOver
	}
	g.touch()
	g.logAction("action_stand", map[string]interface{}{"player_score": g.Player.Value()})
	g.fireEvent(GameEvent{
		Type:    EventPlayerStand,
		Payload: map[string]interface{}{"player_score": g.Player.Value()},
	})
	g.playDealer()
	return nil
}

// playDealer draws for the dealer until 17 (optionally hitting soft 17) and scores the round.
// Assumes lock is held by caller.
func (g *BlackjackGame) playDealer() {
	hole := g.Dealer[1]
	g.fireEvent(GameEvent{
		Type:    EventDealerReveal,
		Card:    &hole,
		Payload: map[string]interface{}{"dealer_score": g.Dealer.Value()},
	})

	for g.dealerShouldHit() {
		c := g.Deck.Draw()
		g.Dealer = append(g.Dealer, c)
		g.logAction("action_dealer_draw", map[string]interface{}{"card": c, "dealer_score": g.Dealer.Value()})
		g.fireEvent(GameEvent{
			Type:    EventDealerDraw,
			Card:    &c,
			Payload: map[string]interface{}{"dealer_score": g.Dealer.Value()},
		})
	}

	player, dealer := g.Player.Value(), g.Dealer.Value()
	switch {
	case g.Dealer.IsBust():
		g.finish(models.StatusPlayerWin, "Dealer busts! You win.")
	case player > dealer:
		g.finish(models.StatusPlayerWin, fmt.Sprintf("You win %d to %d.", player, dealer))
	case dealer > player:
		g.finish(models.StatusDealerWin, fmt.Sprintf("Dealer wins %d to %d.", dealer, player))
	default:
		g.finish(models.StatusPush, fmt.Sprintf("Push at %d.", player))
	}
}

func (g *BlackjackGame) dealerShouldHit() bool {
	total, soft := g.Dealer.total()
	if total < 17 {
		return true
	}
	return total == 17 && soft && g.Rules.DealerHitsSoft17
}

// finish records the outcome. Assumes lock is held by caller.
func (g *BlackjackGame) finish(status models.GameStatus, msg string) {
	g.Status = status
	g.Message = msg
	payout := g.Payout()
	g.logAction("action_end_game", map[string]interface{}{
		"status":       status,
		"payout":       payout,
		"player_score": g.Player.Value(),
		"dealer_score": g.Dealer.Value(),
		"dealer_hand":  g.Dealer.Cards(),
	})
	g.fireEvent(GameEvent{
		Type: EventGameEnd,
		Payload: map[string]interface{}{
			"status":       status,
			"message":      msg,
			"payout":       payout,
			"player_score": g.Player.Value(),
			"dealer_score": g.Dealer.Value(),
			"dealer_hand":  g.Dealer.Cards(),
		},
	})
}

// Abandon marks a round that was closed elsewhere for inactivity. The bet was
// refunded there, so no action record is logged. Assumes lock is held by caller.
func (g *BlackjackGame) Abandon() {
	g.Status = models.StatusAbandoned
	g.Message = "Round closed for inactivity. Your bet was refunded."
	g.fireEvent(GameEvent{
		Type: EventGameEnd,
		Payload: map[string]interface{}{
			"status":  g.Status,
			"message": g.Message,
			"payout":  g.Payout(),
		},
	})
}

func (g *BlackjackGame) checkPlayable() error {
	if !g.dealt {
		return ErrNotDealt
	}
	if g.Status.Finished() {
		return ErrGameOver
	}
	if g.Doubled {
		return ErrGameOver
	}
	return nil
}

// Payout is what the wallet is credited with once the round is over.
func (g *BlackjackGame) Payout() int64 {
	return g.Rules.Payout(g.Bet, g.Status, g.Natural)
}

// State builds the client view of the round. The hole card stays hidden while active.
// Assumes lock is held by caller.
func (g *BlackjackGame) State() models.GameState {
	st := models.GameState{
		GameID:      g.ID,
		PlayerHand:  g.Player.Cards(),
		PlayerScore: g.Player.Value(),
		UserMoney:   g.Balance,
		Bet:         g.Bet,
		Status:      g.Status,
		Message:     g.Message,
	}
	if len(g.Dealer) == 0 {
		return st
	}
	if g.Status.Finished() {
		st.DealerHand = g.Dealer.Cards()
		score := g.Dealer.Value()
		st.DealerScore = &score
	} else {
		up := g.Dealer[0]
		st.DealerCard = &up
	}
	return st
}

// InitialSnapshot captures the shoe order and rules so the round can be replayed.
func (g *BlackjackGame) InitialSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"shoe":  g.Deck.Cards(),
		"rules": g.Rules,
		"bet":   g.Bet,
	}
}

// FinalSnapshot captures both hands and the result.
// Assumes lock is held by caller.
func (g *BlackjackGame) FinalSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"player_hand":  g.Player.Cards(),
		"dealer_hand":  g.Dealer.Cards(),
		"player_score": g.Player.Value(),
		"dealer_score": g.Dealer.Value(),
		"bet":          g.Bet,
		"doubled":      g.Doubled,
		"natural":      g.Natural,
		"status":       g.Status,
		"payout":       g.Payout(),
	}
}

// LastAction returns the time of the most recent player action.
func (g *BlackjackGame) LastAction() time.Time {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.lastAction
}

func (g *BlackjackGame) touch() {
	g.lastAction = time.Now()
}

func (g *BlackjackGame) fireEvent(ev GameEvent) {
	if g.BroadcastFn == nil {
		return
	}
	ev.GameID = g.ID
	g.BroadcastFn(ev)
}

// logAction hands the action details to the historian publisher.
// Assumes lock is held by caller.
func (g *BlackjackGame) logAction(actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if g.PublishActionFn == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	g.PublishActionFn(models.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   g.UserID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	})
}
