// internal/database/sqlite.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore is a single-file Store for local development and tests.
// ":memory:" gives a private in-memory database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and shared between calls.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() { s.db.Close() }

// withTx runs f in a transaction, rolling back if it returns an error.
func (s *SQLiteStore) withTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range sqliteSchema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := prepareUser(user); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password, money, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.Password, user.Money, user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const sqliteUserColumns = `id, username, password, money, wins, losses, created_at`

func scanSQLiteUser(row *sql.Row) (*models.User, error) {
	var (
		u       models.User
		id      string
		created int64
	)
	err := row.Scan(&id, &u.Username, &u.Password, &u.Money, &u.Wins, &u.Losses, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", id, err)
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	return &u, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE username = ?`, username))
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id.String()))
}

func (s *SQLiteStore) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	return authenticate(ctx, s, username, password)
}

func sqliteDebit(ctx context.Context, tx *sql.Tx, userID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`UPDATE users SET money = money - ?1 WHERE id = ?2 AND money >= ?1 RETURNING money`,
		amount, userID.String(),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var n int
		if e := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, userID.String()).Scan(&n); e != nil {
			return 0, e
		}
		if n == 0 {
			return 0, ErrUserNotFound
		}
		return 0, ErrInsufficientFunds
	}
	return balance, err
}

func (s *SQLiteStore) StartGame(ctx context.Context, userID uuid.UUID, bet int64, initial map[string]interface{}) (int64, int64, error) {
	js, err := json.Marshal(initial)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal initial snapshot: %w", err)
	}

	now := time.Now().UnixMilli()
	var gameID, balance int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var e error
		if balance, e = sqliteDebit(ctx, tx, userID, bet); e != nil {
			return e
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO games (user_id, bet, status, initial_state, created_at, updated_at) VALUES (?, ?, 'active', ?, ?, ?) RETURNING id`,
			userID.String(), bet, string(js), now, now,
		).Scan(&gameID)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("start game: %w", err)
	}
	return gameID, balance, nil
}

func (s *SQLiteStore) RaiseBet(ctx context.Context, gameID int64, userID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, e := tx.ExecContext(ctx,
			`UPDATE games SET bet = bet + ?, updated_at = ? WHERE id = ? AND user_id = ? AND status = 'active'`,
			amount, time.Now().UnixMilli(), gameID, userID.String(),
		)
		if e != nil {
			return e
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrGameNotActive
		}
		balance, e = sqliteDebit(ctx, tx, userID, amount)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("raise bet: %w", err)
	}
	return balance, nil
}

func (s *SQLiteStore) TouchGame(ctx context.Context, gameID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET updated_at = ? WHERE id = ? AND status = 'active'`,
		time.Now().UnixMilli(), gameID,
	)
	if err != nil {
		return fmt.Errorf("touch game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGameNotActive
	}
	return nil
}

func (s *SQLiteStore) FinishGame(ctx context.Context, st Settlement) (int64, error) {
	if err := validateSettlement(st); err != nil {
		return 0, err
	}
	js, err := json.Marshal(st.FinalState)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal final snapshot: %w", err)
	}
	wins, losses := outcomeCounters(st.Status)

	var balance int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, e := tx.ExecContext(ctx, `
			UPDATE games
			SET status = ?, payout = ?, final_state = ?, finished_at = ?
			WHERE id = ? AND user_id = ? AND status = 'active'`,
			string(st.Status), st.Payout, string(js), time.Now().UnixMilli(), st.GameID, st.UserID.String(),
		)
		if e != nil {
			return e
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrGameNotActive
		}
		return tx.QueryRowContext(ctx, `
			UPDATE users
			SET money = money + ?, wins = wins + ?, losses = losses + ?
			WHERE id = ?
			RETURNING money`,
			st.Payout, wins, losses, st.UserID.String(),
		).Scan(&balance)
	})
	if err != nil {
		return 0, fmt.Errorf("finish game %d: %w", st.GameID, err)
	}
	return balance, nil
}

func (s *SQLiteStore) ListGames(ctx context.Context, userID uuid.UUID, limit int) ([]models.GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bet, payout, status, created_at, finished_at
		FROM games
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		userID.String(), clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	out := []models.GameRecord{}
	for rows.Next() {
		var (
			r        models.GameRecord
			status   string
			created  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.GameID, &r.Bet, &r.Payout, &status, &created, &finished); err != nil {
			return nil, err
		}
		r.Status = models.GameStatus(status)
		r.CreatedAt = time.UnixMilli(created).UTC()
		if finished.Valid {
			t := time.UnixMilli(finished.Int64).UTC()
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertGameActions(ctx context.Context, recs []models.GameActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO game_actions (game_id, action_index, actor_user_id, action_type, action_payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (game_id, action_index) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, rec := range recs {
			payload, err := json.Marshal(rec.ActionPayload)
			if err != nil {
				return fmt.Errorf("marshal payload for game %d: %w", rec.GameID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				rec.GameID, rec.ActionIndex, rec.ActorUserID.String(), rec.ActionType, string(payload), rec.Timestamp,
			); err != nil {
				return fmt.Errorf("insert action %d of game %d: %w", rec.ActionIndex, rec.GameID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) AbandonStaleGames(ctx context.Context, olderThan time.Time) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, e := tx.QueryContext(ctx, `
			UPDATE games
			SET status = 'abandoned', payout = bet, finished_at = ?
			WHERE status = 'active' AND updated_at < ?
			RETURNING user_id, bet`,
			time.Now().UnixMilli(), olderThan.UnixMilli(),
		)
		if e != nil {
			return e
		}
		refunds := make(map[string]int64)
		for rows.Next() {
			var uid string
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
			if _, e := tx.ExecContext(ctx, `UPDATE users SET money = money + ? WHERE id = ?`, amount, uid); e != nil {
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
