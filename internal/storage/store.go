package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate")

// UserRow represents an account in the database.
type UserRow struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// ResultPlayer is one roster entry of a finished match.
type ResultPlayer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TurnsRemaining int    `json:"turnsRemaining"`
}

// ResultRow represents a finished match.
type ResultRow struct {
	ID         string
	WinnerID   string
	WinnerName string
	Players    []ResultPlayer
	FinishedAt time.Time
}

// LeaderboardRow aggregates wins per player id.
type LeaderboardRow struct {
	PlayerID string
	Name     string
	Wins     int
}

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS match_results (
			id           TEXT PRIMARY KEY,
			winner_id    TEXT NOT NULL,
			winner_name  TEXT NOT NULL,
			players_json TEXT NOT NULL,
			finished_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS match_results_finished_at ON match_results(finished_at);
	`)
	return err
}

// CreateUser inserts a new account and returns it. A taken username
// (case-insensitive) yields ErrDuplicate.
func (s *Store) CreateUser(username, passwordHash string) (*UserRow, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)",
		id, username, passwordHash,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("user %q: %w", username, ErrDuplicate)
		}
		return nil, err
	}
	return s.GetUserByID(id)
}

// GetUserByUsername retrieves an account by case-insensitive username.
func (s *Store) GetUserByUsername(username string) (*UserRow, error) {
	return s.getUser("SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username)
}

// GetUserByID retrieves an account by id.
func (s *Store) GetUserByID(id string) (*UserRow, error) {
	return s.getUser("SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id)
}

func (s *Store) getUser(query, arg string) (*UserRow, error) {
	var u UserRow
	if err := s.db.QueryRow(query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveResult records a finished match. Empty ID and zero FinishedAt are
// filled in.
func (s *Store) SaveResult(r ResultRow) (*ResultRow, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Players == nil {
		r.Players = []ResultPlayer{}
	}
	players, err := json.Marshal(r.Players)
	if err != nil {
		return nil, fmt.Errorf("encode players: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO match_results (id, winner_id, winner_name, players_json, finished_at) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.WinnerID, r.WinnerName, string(players), r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResults returns the most recent finished matches, newest first.
func (s *Store) ListResults(limit int) ([]ResultRow, error) {
	rows, err := s.db.Query(
		"SELECT id, winner_id, winner_name, players_json, finished_at FROM match_results ORDER BY finished_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ResultRow
	for rows.Next() {
		var r ResultRow
		var players string
		if err := rows.Scan(&r.ID, &r.WinnerID, &r.WinnerName, &players, &r.FinishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(players), &r.Players); err != nil {
			return nil, fmt.Errorf("decode players of %s: %w", r.ID, err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Leaderboard returns players ordered by number of matches won.
func (s *Store) Leaderboard(limit int) ([]LeaderboardRow, error) {
	rows, err := s.db.Query(`
		SELECT winner_id, winner_name, COUNT(*) AS wins
		FROM match_results
		GROUP BY winner_id
		ORDER BY wins DESC, MAX(finished_at) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.PlayerID, &r.Name, &r.Wins); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
