package models

import "time"

// GameStatus is the lifecycle state of a single blackjack round.
type GameStatus string

const (
	StatusActive    GameStatus = "active"
	StatusPlayerWin GameStatus = "player_win"
	StatusDealerWin GameStatus = "dealer_win"
	StatusPush      GameStatus = "push"
	// StatusAbandoned marks a round the historian closed out after inactivity; the bet is refunded.
	StatusAbandoned GameStatus = "abandoned"
)

// Finished reports whether the round has been settled.
func (s GameStatus) Finished() bool {
	return s == StatusPlayerWin || s == StatusDealerWin || s == StatusPush || s == StatusAbandoned
}

// GameState is the response body of every game action.
//
// While the round is active only the dealer's up card is exposed through
// DealerCard; DealerHand and DealerScore are filled once it is settled.
type GameState struct {
	GameID      int64      `json:"game_id"`
	PlayerHand  []Card     `json:"player_hand"`
	DealerHand  []Card     `json:"dealer_hand,omitempty"`
	DealerCard  *Card      `json:"dealer_card,omitempty"`
	PlayerScore int        `json:"player_score"`
	DealerScore *int       `json:"dealer_score,omitempty"`
	UserMoney   int64      `json:"user_money"`
	Bet         int64      `json:"bet"`
	Status      GameStatus `json:"status"`
	Message     string     `json:"message"`
}

// GameRecord is one row of a user's game history.
type GameRecord struct {
	GameID     int64      `json:"game_id"`
	Bet        int64      `json:"bet"`
	Payout     int64      `json:"payout"`
	Status     GameStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
