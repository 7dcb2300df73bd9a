// internal/game/game_test.go
package game

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster collects events and action records instead of sending them anywhere.
type mockBroadcaster struct {
	mu      sync.Mutex
	events  []GameEvent
	actions []models.GameActionRecord
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = append(mb.events, ev)
}

func (mb *mockBroadcaster) publishActionFn(rec models.GameActionRecord) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.actions = append(mb.actions, rec)
}

func (mb *mockBroadcaster) eventTypes() []GameEventType {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	types := make([]GameEventType, len(mb.events))
	for i, ev := range mb.events {
		types[i] = ev.Type
	}
	return types
}

func (mb *mockBroadcaster) lastEvent() *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.events) == 0 {
		return nil
	}
	return &mb.events[len(mb.events)-1]
}

func card(rank string) models.Card {
	return models.Card{Rank: rank, Suit: "Spades"}
}

func stack(ranks ...string) *Deck {
	cards := make([]models.Card, len(ranks))
	for i, r := range ranks {
		cards[i] = card(r)
	}
	return NewStackedDeck(cards)
}

// setupTestGame deals a round from a stacked shoe. Deal order is player, dealer, player, dealer.
func setupTestGame(t *testing.T, rules *Rules, ranks ...string) (*BlackjackGame, *mockBroadcaster) {
	t.Helper()
	r := DefaultRules()
	if rules != nil {
		r = *rules
	}
	g := NewBlackjackGame(uuid.New(), 10, r, stack(ranks...))
	g.ID = 42
	mb := &mockBroadcaster{}
	g.BroadcastFn = mb.broadcastFn
	g.PublishActionFn = mb.publishActionFn
	require.NoError(t, g.Deal())
	return g, mb
}

func TestHandValue(t *testing.T) {
	tests := []struct {
		name  string
		hand  Hand
		value int
		soft  bool
	}{
		{"king and five", Hand{card("King"), card("5")}, 15, false},
		{"ace as one", Hand{card("Ace"), card("9"), card("5")}, 15, false},
		{"ace as eleven", Hand{card("Ace"), card("6")}, 17, true},
		{"two aces", Hand{card("Ace"), card("Ace")}, 12, true},
		{"three aces and nine", Hand{card("Ace"), card("Ace"), card("Ace"), card("9")}, 12, false},
		{"blackjack", Hand{card("Ace"), card("Queen")}, 21, true},
		{"bust", Hand{card("King"), card("Queen"), card("2")}, 22, false},
		{"empty", Hand{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.value, tt.hand.Value())
			assert.Equal(t, tt.soft, tt.hand.IsSoft())
		})
	}

	assert.True(t, Hand{card("Ace"), card("King")}.IsBlackjack())
	assert.False(t, Hand{card("7"), card("7"), card("7")}.IsBlackjack(), "three-card 21 is not a natural")
	assert.True(t, Hand{card("King"), card("Queen"), card("2")}.IsBust())
}

func TestDealHidesHoleCard(t *testing.T) {
	g, mb := setupTestGame(t, nil, "10", "9", "7", "8")

	st := g.State()
	assert.Equal(t, models.StatusActive, st.Status)
	assert.Equal(t, int64(42), st.GameID)
	assert.Equal(t, []models.Card{card("10"), card("7")}, st.PlayerHand)
	assert.Equal(t, 17, st.PlayerScore)
	require.NotNil(t, st.DealerCard)
	assert.Equal(t, card("9"), *st.DealerCard)
	assert.Nil(t, st.DealerHand, "hole card must stay hidden while active")
	assert.Nil(t, st.DealerScore)

	assert.Equal(t, []GameEventType{EventGameDealt}, mb.eventTypes())
	require.Len(t, mb.actions, 1)
	assert.Equal(t, "action_deal", mb.actions[0].ActionType)
	assert.Equal(t, int64(42), mb.actions[0].GameID)
	assert.Equal(t, 1, mb.actions[0].ActionIndex)
}

func TestDealNaturals(t *testing.T) {
	t.Run("player natural pays three to two", func(t *testing.T) {
		g, mb := setupTestGame(t, nil, "Ace", "9", "King", "7")
		assert.Equal(t, models.StatusPlayerWin, g.Status)
		assert.True(t, g.Natural)
		assert.Equal(t, int64(25), g.Payout())
		assert.Equal(t, "Blackjack! You win.", g.Message)
		assert.Equal(t, EventGameEnd, mb.lastEvent().Type)

		st := g.State()
		assert.Len(t, st.DealerHand, 2)
		require.NotNil(t, st.DealerScore)
		assert.Equal(t, 16, *st.DealerScore)
		assert.Nil(t, st.DealerCard)
	})

	t.Run("both natural push", func(t *testing.T) {
		g, _ := setupTestGame(t, nil, "Ace", "Ace", "King", "Queen")
		assert.Equal(t, models.StatusPush, g.Status)
		assert.Equal(t, int64(10), g.Payout())
	})

	t.Run("dealer natural", func(t *testing.T) {
		g, _ := setupTestGame(t, nil, "9", "Ace", "7", "King")
		assert.Equal(t, models.StatusDealerWin, g.Status)
		assert.Equal(t, int64(0), g.Payout())
		assert.ErrorIs(t, g.Hit(), ErrGameOver)
	})
}

func TestHitBust(t *testing.T) {
	g, mb := setupTestGame(t, nil, "10", "9", "6", "7", "King")

	require.NoError(t, g.Hit())
	assert.Equal(t, models.StatusDealerWin, g.Status)
	assert.Equal(t, "Bust! Dealer wins.", g.Message)
	assert.Equal(t, 26, g.Player.Value())
	assert.Len(t, g.Dealer, 2, "dealer does not draw after a player bust")
	assert.Equal(t, []GameEventType{EventGameDealt, EventPlayerHit, EventGameEnd}, mb.eventTypes())

	assert.ErrorIs(t, g.Hit(), ErrGameOver)
	assert.ErrorIs(t, g.Stand(), ErrGameOver)
}

func TestHitKeepsRoundActive(t *testing.T) {
	g, _ := setupTestGame(t, nil, "2", "10", "3", "7", "4")

	require.NoError(t, g.Hit())
	assert.Equal(t, models.StatusActive, g.Status)
	assert.Equal(t, 9, g.Player.Value())
	assert.Equal(t, "You drew the 4 of Spades. Hit or stand?", g.Message)
}

func TestHitToTwentyOneStands(t *testing.T) {
	g, _ := setupTestGame(t, nil, "10", "10", "5", "7", "6")

	require.NoError(t, g.Hit())
	assert.Equal(t, models.StatusPlayerWin, g.Status)
	assert.Equal(t, "You win 21 to 17.", g.Message)
	assert.Equal(t, int64(20), g.Payout())
}

func TestStandDealerDraws(t *testing.T) {
	g, mb := setupTestGame(t, nil, "10", "10", "7", "6", "5")

	require.NoError(t, g.Stand())
	assert.Equal(t, models.StatusDealerWin, g.Status)
	assert.Equal(t, "Dealer wins 21 to 17.", g.Message)
	assert.Len(t, g.Dealer, 3)
	assert.Equal(t,
		[]GameEventType{EventGameDealt, EventPlayerStand, EventDealerReveal, EventDealerDraw, EventGameEnd},
		mb.eventTypes())

	// action indices are strictly increasing so the historian can order them
	for i, rec := range mb.actions {
		assert.Equal(t, i+1, rec.ActionIndex)
	}
	assert.Equal(t, "action_end_game", mb.actions[len(mb.actions)-1].ActionType)
}

func TestStandOutcomes(t *testing.T) {
	t.Run("dealer busts", func(t *testing.T) {
		g, _ := setupTestGame(t, nil, "10", "10", "2", "6", "King")
		require.NoError(t, g.Stand())
		assert.Equal(t, models.StatusPlayerWin, g.Status)
		assert.Equal(t, "Dealer busts! You win.", g.Message)
	})

	t.Run("push", func(t *testing.T) {
		g, _ := setupTestGame(t, nil, "10", "10", "8", "8")
		require.NoError(t, g.Stand())
		assert.Equal(t, models.StatusPush, g.Status)
		assert.Equal(t, "Push at 18.", g.Message)
		assert.Equal(t, int64(10), g.Payout())
	})

	t.Run("player higher", func(t *testing.T) {
		g, _ := setupTestGame(t, nil, "10", "10", "9", "7")
		require.NoError(t, g.Stand())
		assert.Equal(t, models.StatusPlayerWin, g.Status)
		assert.Equal(t, int64(20), g.Payout())
	})
}

func TestDealerSoft17(t *testing.T) {
	t.Run("stands on soft 17", func(t *testing.T) {
		g, _ := setupTestGame(t, nil, "10", "Ace", "8", "6", "3")
		require.NoError(t, g.Stand())
		assert.Len(t, g.Dealer, 2)
		assert.Equal(t, models.StatusPlayerWin, g.Status)
	})

	t.Run("hits soft 17", func(t *testing.T) {
		rules := DefaultRules()
		rules.DealerHitsSoft17 = true
		g, _ := setupTestGame(t, &rules, "10", "Ace", "8", "6", "3")
		require.NoError(t, g.Stand())
		assert.Len(t, g.Dealer, 3)
		assert.Equal(t, 20, g.Dealer.Value())
		assert.Equal(t, models.StatusDealerWin, g.Status)
	})
}

func TestDouble(t *testing.T) {
	g, _ := setupTestGame(t, nil, "5", "10", "6", "7", "10")

	require.NoError(t, g.CanDouble())
	require.NoError(t, g.Double())
	assert.True(t, g.Doubled)
	assert.Equal(t, int64(20), g.Bet)
	assert.Len(t, g.Player, 3)
	assert.Equal(t, models.StatusPlayerWin, g.Status)
	assert.Equal(t, int64(40), g.Payout())
	assert.ErrorIs(t, g.Double(), ErrGameOver)
}

func TestDoubleOnlyOnFirstTwoCards(t *testing.T) {
	g, _ := setupTestGame(t, nil, "2", "10", "3", "7", "4")

	require.NoError(t, g.Hit())
	assert.ErrorIs(t, g.CanDouble(), ErrCannotDouble)
	assert.ErrorIs(t, g.Double(), ErrCannotDouble)
}

func TestDealRejectsBetOutsideLimits(t *testing.T) {
	g := NewBlackjackGame(uuid.New(), 5, DefaultRules(), nil)
	assert.ErrorIs(t, g.Deal(), ErrInvalidBet)

	g = NewBlackjackGame(uuid.New(), 10, DefaultRules(), nil)
	assert.ErrorIs(t, g.Hit(), ErrNotDealt)
	assert.ErrorIs(t, g.Stand(), ErrNotDealt)
	require.NoError(t, g.Deal())
	assert.Error(t, g.Deal(), "dealing twice must fail")
}

func TestSnapshots(t *testing.T) {
	deck := stack("10", "10", "7", "8", "5")
	g := NewBlackjackGame(uuid.New(), 10, DefaultRules(), deck)

	initial := g.InitialSnapshot()
	assert.Len(t, initial["shoe"], 5)
	assert.Equal(t, int64(10), initial["bet"])

	require.NoError(t, g.Deal())
	require.NoError(t, g.Stand())
	final := g.FinalSnapshot()
	assert.Equal(t, models.StatusDealerWin, final["status"])
	assert.Equal(t, 17, final["player_score"])
	assert.Equal(t, int64(0), final["payout"])
}

func TestAbandon(t *testing.T) {
	g, mb := setupTestGame(t, nil, "10", "9", "King", "7")
	before := len(mb.actions)

	g.Abandon()
	assert.Equal(t, models.StatusAbandoned, g.Status)
	assert.Equal(t, int64(10), g.Payout(), "the bet comes back")
	assert.Equal(t, EventGameEnd, mb.lastEvent().Type)
	assert.Len(t, mb.actions, before, "nothing is logged for a round closed elsewhere")
	assert.ErrorIs(t, g.Hit(), ErrGameOver)

	st := g.State()
	assert.Len(t, st.DealerHand, 2, "a closed round shows the hole card")
	assert.Nil(t, st.DealerCard)
}
