// internal/game/rules.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/blackjack/internal/models"
)

// Ratio is a payout multiplier expressed as Num/Den so chip math stays integral.
type Ratio struct {
	Num int64 `yaml:"num" json:"num"`
	Den int64 `yaml:"den" json:"den"`
}

// Rules captures the table configuration a round is played under.
type Rules struct {
	Decks            int   `yaml:"decks" json:"decks"`                             // number of 52-card decks in the shoe
	MinBet           int64 `yaml:"min_bet" json:"min_bet"`                         // smallest accepted bet
	MaxBet           int64 `yaml:"max_bet" json:"max_bet"`                         // largest accepted bet
	StartingMoney    int64 `yaml:"starting_money" json:"starting_money"`           // wallet balance of a freshly registered user
	DealerHitsSoft17 bool  `yaml:"dealer_hits_soft_17" json:"dealer_hits_soft_17"` // if false the dealer stands on every 17
	BlackjackPayout  Ratio `yaml:"blackjack_payout" json:"blackjack_payout"`       // winnings paid on a natural, on top of the returned bet
	PlayerHitBelow   int   `yaml:"player_hit_below" json:"player_hit_below"`       // simulator strategy: hit while the hand is below this
}

// DefaultRules mirrors a single-deck table with the usual 3:2 natural.
func DefaultRules() Rules {
	return Rules{
		Decks:            1,
		MinBet:           10,
		MaxBet:           500,
		StartingMoney:    1000,
		DealerHitsSoft17: false,
		BlackjackPayout:  Ratio{Num: 3, Den: 2},
		PlayerHitBelow:   17,
	}
}

// Validate rejects tables that cannot be dealt or paid.
func (r Rules) Validate() error {
	switch {
	case r.Decks < 1 || r.Decks > 8:
		return fmt.Errorf("decks must be between 1 and 8, got %d", r.Decks)
	case r.MinBet < 1:
		return fmt.Errorf("min_bet must be positive, got %d", r.MinBet)
	case r.MaxBet < r.MinBet:
		return fmt.Errorf("max_bet (%d) must not be below min_bet (%d)", r.MaxBet, r.MinBet)
	case r.StartingMoney < 0:
		return fmt.Errorf("starting_money must not be negative, got %d", r.StartingMoney)
	case r.BlackjackPayout.Num < 1 || r.BlackjackPayout.Den < 1:
		return fmt.Errorf("blackjack_payout must be a positive ratio, got %d/%d", r.BlackjackPayout.Num, r.BlackjackPayout.Den)
	case r.PlayerHitBelow < 0 || r.PlayerHitBelow > 21:
		return fmt.Errorf("player_hit_below must be between 0 and 21, got %d", r.PlayerHitBelow)
	}
	return nil
}

// CheckBet returns ErrInvalidBet if the amount is outside the table limits.
func (r Rules) CheckBet(bet int64) error {
	if bet < r.MinBet || bet > r.MaxBet {
		return fmt.Errorf("%w: bet must be between %d and %d", ErrInvalidBet, r.MinBet, r.MaxBet)
	}
	return nil
}

// Payout is the amount credited back at settlement. The bet itself was
// already debited when the round was dealt, so a push returns exactly the bet.
func (r Rules) Payout(bet int64, status models.GameStatus, natural bool) int64 {
	switch status {
	case models.StatusPlayerWin:
		if natural {
			return bet + bet*r.BlackjackPayout.Num/r.BlackjackPayout.Den
		}
		return bet * 2
	case models.StatusPush, models.StatusAbandoned:
		return bet
	default:
		return 0
	}
}
