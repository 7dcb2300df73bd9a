// internal/database/postgres.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/blackjack/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresStore is the production Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a pool for connStr and verifies it with a ping.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying pool for health checks.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, stmt := range postgresSchema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := prepareUser(user); err != nil {
		return err
	}

	q := `INSERT INTO users (id, username, password, money, created_at)
	      VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q, user.ID, user.Username, user.Password, user.Money, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const pgUserColumns = `id, username, password, money, wins, losses, created_at`

func scanPgUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Money, &u.Wins, &u.Losses, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanPgUser(s.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE username=$1`, username))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanPgUser(s.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id=$1`, id))
}

func (s *PostgresStore) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	return authenticate(ctx, s, username, password)
}

// pgDebit takes amount from the wallet unless that would make it negative.
func pgDebit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		`UPDATE users SET money = money - $1 WHERE id = $2 AND money >= $1 RETURNING money`,
		amount, userID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if e := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&exists); e != nil {
			return 0, e
		}
		if !exists {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientFunds
	}
	return balance, err
}

func (s *PostgresStore) StartGame(ctx context.Context, userID uuid.UUID, bet int64, initial map[string]interface{}) (int64, int64, error) {
	js, err := json.Marshal(initial)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal initial snapshot: %w", err)
	}

	var gameID, balance int64
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var e error
		if balance, e = pgDebit(ctx, tx, userID, bet); e != nil {
			return e
		}
		return tx.QueryRow(ctx,
			`INSERT INTO games (user_id, bet, status, initial_state) VALUES ($1, $2, 'active', $3) RETURNING id`,
			userID, bet, js,
		).Scan(&gameID)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("start game: %w", err)
	}
	return gameID, balance, nil
}

func (s *PostgresStore) RaiseBet(ctx context.Context, gameID int64, userID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx,
			`UPDATE games SET bet = bet + $1, updated_at = NOW() WHERE id = $2 AND user_id = $3 AND status = 'active'`,
			amount, gameID, userID,
		)
		if e != nil {
			return e
		}
		if tag.RowsAffected() == 0 {
			return ErrGameNotActive
		}
		balance, e = pgDebit(ctx, tx, userID, amount)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("raise bet: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) TouchGame(ctx context.Context, gameID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE games SET updated_at = NOW() WHERE id = $1 AND status = 'active'`, gameID)
	if err != nil {
		return fmt.Errorf("touch game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotActive
	}
	return nil
}

func (s *PostgresStore) FinishGame(ctx context.Context, st Settlement) (int64, error) {
	if err := validateSettlement(st); err != nil {
		return 0, err
	}
	js, err := json.Marshal(st.FinalState)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal final snapshot: %w", err)
	}
	wins, losses := outcomeCounters(st.Status)

	var balance int64
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, e := tx.Exec(ctx, `
			UPDATE games
			SET status = $1, payout = $2, final_state = $3, finished_at = NOW()
			WHERE id = $4 AND user_id = $5 AND status = 'active'`,
			string(st.Status), st.Payout, js, st.GameID, st.UserID,
		)
		if e != nil {
			return e
		}
		if tag.RowsAffected() == 0 {
			return ErrGameNotActive
		}
		return tx.QueryRow(ctx, `
			UPDATE users
			SET money = money + $1, wins = wins + $2, losses = losses + $3
			WHERE id = $4
			RETURNING money`,
			st.Payout, wins, losses, st.UserID,
		).Scan(&balance)
	})
	if err != nil {
		return 0, fmt.Errorf("finish game %d: %w", st.GameID, err)
	}
	return balance, nil
}

func (s *PostgresStore) ListGames(ctx context.Context, userID uuid.UUID, limit int) ([]models.GameRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, bet, payout, status, created_at, finished_at
		FROM games
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		userID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	out := []models.GameRecord{}
	for rows.Next() {
		var r models.GameRecord
		var status string
		if err := rows.Scan(&r.GameID, &r.Bet, &r.Payout, &status, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Status = models.GameStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertGameActions writes a historian batch in one transaction. Records
// already stored (same game and index) are skipped so a replayed batch is harmless.
func (s *PostgresStore) InsertGameActions(ctx context.Context, recs []models.GameActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	const q = `
		INSERT INTO game_actions (game_id, action_index, actor_user_id, action_type, action_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id, action_index) DO NOTHING`

	batch := &pgx.Batch{}
	for _, rec := range recs {
		payload, err := json.Marshal(rec.ActionPayload)
		if err != nil {
			return fmt.Errorf("marshal payload for game %d: %w", rec.GameID, err)
		}
		batch.Queue(q, rec.GameID, rec.ActionIndex, rec.ActorUserID, rec.ActionType, payload, time.UnixMilli(rec.Timestamp))
	}

	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PostgresStore) AbandonStaleGames(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, e := tx.Query(ctx, `
			UPDATE games
			SET status = 'abandoned', payout = bet, finished_at = NOW()
			WHERE status = 'active' AND updated_at < $1
			RETURNING user_id, bet`,
			olderThan,
		)
		if e != nil {
			return e
		}
		refunds := make(map[uuid.UUID]int64)
		for rows.Next() {
			var uid uuid.UUID
			var bet int64
			if e := rows.Scan(&uid, &bet); e != nil {
				rows.Close()
				return e
			}
			refunds[uid] += bet
			n++
		}
		rows.Close()
		if e := rows.Err(); e != nil {
			return e
		}

		for uid, amount := range refunds {
			if _, e := tx.Exec(ctx, `UPDATE users SET money = money + $1 WHERE id = $2`, amount, uid); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("abandon stale games: %w", err)
	}
	return n, nil
}
