package game

import "github.com/jason-s-yu/blackjack/internal/models"

const blackjackTotal = 21

// Hand is the ordered sequence of cards held by the player or the dealer.
type Hand []models.Card

func (h Hand) total() (int, bool) {
	total, aces := 0, 0
	for _, c := range h {
		if c.Rank == RankAce {
			aces++
		}
		total += RankValue(c.Rank)
	}
	// demote aces from 11 to 1 one at a time until the hand fits
	for total > blackjackTotal && aces > 0 {
		total -= 10
		aces--
	}
	return total, aces > 0
}

// Value is the best total of the hand.
func (h Hand) Value() int {
	v, _ := h.total()
	return v
}

// IsSoft reports whether an Ace is still being counted as 11.
func (h Hand) IsSoft() bool {
	_, soft := h.total()
	return soft
}

func (h Hand) IsBust() bool {
	return h.Value() > blackjackTotal
}

// IsBlackjack is a two-card 21.
func (h Hand) IsBlackjack() bool {
	return len(h) == 2 && h.Value() == blackjackTotal
}

// Cards returns a copy safe to hand to encoders outside the game lock.
func (h Hand) Cards() []models.Card {
	cp := make([]models.Card, len(h))
	copy(cp, h)
	return cp
}
