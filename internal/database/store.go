// internal/database/store.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/auth"
	"github.com/jason-s-yu/blackjack/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrGameNotActive      = errors.New("game is not active")
)

// Settlement is the outcome of a finished round, applied atomically by FinishGame.
type Settlement struct {
	GameID     int64
	UserID     uuid.UUID
	Status     models.GameStatus
	Payout     int64
	FinalState map[string]interface{}
}

// Store persists users, their wallets, and the rounds they play.
type Store interface {
	Migrate(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)

	// StartGame debits bet and inserts an active round, returning its id and the new balance.
	StartGame(ctx context.Context, userID uuid.UUID, bet int64, initial map[string]interface{}) (int64, int64, error)
	// RaiseBet debits amount and adds it to the active round's bet, returning the new balance.
	RaiseBet(ctx context.Context, gameID int64, userID uuid.UUID, amount int64) (int64, error)
	// TouchGame records activity on an active round so it is not abandoned.
	TouchGame(ctx context.Context, gameID int64) error
	// FinishGame credits the payout and closes the round, returning the new balance.
	FinishGame(ctx context.Context, s Settlement) (int64, error)
	ListGames(ctx context.Context, userID uuid.UUID, limit int) ([]models.GameRecord, error)

	InsertGameActions(ctx context.Context, recs []models.GameActionRecord) error
	// AbandonStaleGames closes active rounds with no activity since olderThan and refunds their bets.
	AbandonStaleGames(ctx context.Context, olderThan time.Time) (int, error)

	Close()
}

// Open connects to the backend named by driver ("postgres" or "sqlite") and runs migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "postgres", "pgx":
		s, err = NewPostgresStore(ctx, dsn)
	case "sqlite":
		s, err = NewSQLiteStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// prepareUser assigns an id and replaces the plaintext password with its hash.
func prepareUser(user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}
	if user.Money < 0 {
		return fmt.Errorf("starting money must not be negative")
	}

	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return nil
}

// authenticate is shared by both backends. Unknown users and wrong passwords
// return the same error.
func authenticate(ctx context.Context, s Store, username, password string) (*models.User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// outcomeCounters returns the wins/losses increments for a settled status.
func outcomeCounters(status models.GameStatus) (wins, losses int) {
	switch status {
	case models.StatusPlayerWin:
		return 1, 0
	case models.StatusDealerWin:
		return 0, 1
	}
	return 0, 0
}

func validateSettlement(s Settlement) error {
	if !s.Status.Finished() || s.Status == models.StatusAbandoned {
		return fmt.Errorf("cannot settle game %d with status %q", s.GameID, s.Status)
	}
	if s.Payout < 0 {
		return fmt.Errorf("negative payout %d for game %d", s.Payout, s.GameID)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 100)
}
