package game

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeck(t *testing.T) {
	d := NewDeck(2, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, 104, d.Remaining())

	counts := make(map[models.Card]int)
	for _, c := range d.Cards() {
		counts[c]++
	}
	assert.Len(t, counts, 52)
	for c, n := range counts {
		assert.Equal(t, 2, n, "card %s", c)
	}
}

func TestDeckSeededShuffleIsDeterministic(t *testing.T) {
	a := NewDeck(1, rand.New(rand.NewPCG(7, 7)))
	b := NewDeck(1, rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, a.Cards(), b.Cards())
}

func TestStackedDeckRefillsWhenEmpty(t *testing.T) {
	d := NewStackedDeck([]models.Card{card("Ace")})
	assert.Equal(t, card("Ace"), d.Draw())
	assert.Equal(t, 0, d.Remaining())

	d.Draw()
	assert.Equal(t, 51, d.Remaining(), "an empty shoe reshuffles a fresh deck")
}

func TestRankValue(t *testing.T) {
	assert.Equal(t, 11, RankValue("Ace"))
	assert.Equal(t, 10, RankValue("King"))
	assert.Equal(t, 10, RankValue("10"))
	assert.Equal(t, 7, RankValue("7"))
	assert.Equal(t, 0, RankValue("Joker"))
}

func TestRules(t *testing.T) {
	r := DefaultRules()
	require.NoError(t, r.Validate())

	assert.ErrorIs(t, r.CheckBet(r.MinBet-1), ErrInvalidBet)
	assert.ErrorIs(t, r.CheckBet(r.MaxBet+1), ErrInvalidBet)
	assert.NoError(t, r.CheckBet(50))

	assert.Equal(t, int64(100), r.Payout(50, models.StatusPlayerWin, false))
	assert.Equal(t, int64(125), r.Payout(50, models.StatusPlayerWin, true))
	assert.Equal(t, int64(37), r.Payout(15, models.StatusPlayerWin, true), "fractional chips round down")
	assert.Equal(t, int64(50), r.Payout(50, models.StatusPush, false))
	assert.Equal(t, int64(0), r.Payout(50, models.StatusDealerWin, false))
	assert.Equal(t, int64(0), r.Payout(50, models.StatusActive, false))
	assert.Equal(t, int64(50), r.Payout(50, models.StatusAbandoned, false), "an abandoned bet is refunded")

	bad := r
	bad.Decks = 0
	assert.Error(t, bad.Validate())
	bad = r
	bad.MaxBet = 1
	assert.Error(t, bad.Validate())
	bad = r
	bad.BlackjackPayout.Den = 0
	assert.Error(t, bad.Validate())
}

func TestGameStoreReserve(t *testing.T) {
	s := NewGameStore()
	uid := uuid.New()

	require.True(t, s.Reserve(uid))
	assert.False(t, s.Reserve(uid), "a second deal in flight is refused")

	s.Release(uid)
	require.True(t, s.Reserve(uid))

	g := NewBlackjackGame(uid, 10, DefaultRules(), nil)
	g.ID = 7
	s.AddGame(g)
	assert.False(t, s.Reserve(uid), "a user with a round in play cannot deal again")

	got, ok := s.GetGameByUser(uid)
	require.True(t, ok)
	assert.Same(t, g, got)

	got, ok = s.GetGame(7)
	require.True(t, ok)
	assert.Same(t, g, got)
	assert.Equal(t, 1, s.Len())

	s.DeleteGame(7)
	_, ok = s.GetGameByUser(uid)
	assert.False(t, ok)
	assert.True(t, s.Reserve(uid))
}

func TestGameStoreIdle(t *testing.T) {
	s := NewGameStore()
	g1 := NewBlackjackGame(uuid.New(), 10, DefaultRules(), nil)
	g1.ID = 1
	g2 := NewBlackjackGame(uuid.New(), 10, DefaultRules(), nil)
	g2.ID = 2
	s.AddGame(g1)
	s.AddGame(g2)

	g1.Mu.Lock()
	g1.lastAction = time.Now().Add(-time.Hour)
	g1.Mu.Unlock()

	idle := s.Idle(time.Minute, time.Now())
	require.Len(t, idle, 1)
	assert.Equal(t, int64(1), idle[0].ID)
}

func TestHub(t *testing.T) {
	h := NewHub()
	uid := uuid.New()
	other := uuid.New()

	ch, cancel := h.Subscribe(uid, 1)
	assert.Equal(t, 1, h.Subscribers(uid))

	h.Publish(other, GameEvent{Type: EventGameDealt})
	h.Publish(uid, GameEvent{Type: EventGameDealt, GameID: 3})
	h.Publish(uid, GameEvent{Type: EventGameEnd}) // buffer full, dropped

	ev := <-ch
	assert.Equal(t, EventGameDealt, ev.Type)
	assert.Equal(t, int64(3), ev.GameID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %v", extra)
	default:
	}

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers(uid))
	_, open := <-ch
	assert.False(t, open)
}
