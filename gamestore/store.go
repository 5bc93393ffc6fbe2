// Package gamestore archives finished games in a SQLite database so
// match runs can be tallied and re-exported later.
package gamestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id TEXT PRIMARY KEY,
	white TEXT NOT NULL,
	black TEXT NOT NULL,
	result TEXT NOT NULL,
	termination TEXT NOT NULL,
	plies INTEGER NOT NULL,
	start_fen TEXT NOT NULL,
	pgn TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS games_white_idx ON games (white);
CREATE INDEX IF NOT EXISTS games_black_idx ON games (black);
`

// Record is one archived game.
type Record struct {
	ID          string
	White       string
	Black       string
	Result      string
	Termination string
	Plies       int
	StartFen    string
	PGN         string
	CreatedAt   time.Time
}

// Results aggregates one engine's score line across archived games.
type Results struct {
	Wins   int
	Losses int
	Draws  int
}

// Store wraps the archive database. It keeps a single connection so
// concurrent match workers serialize their inserts instead of
// tripping over SQLITE_BUSY.
type Store struct {
	db *sql.DB
}

// Open opens the archive at path, creating the file and schema as
// needed. The special path ":memory:" opens a throwaway in-memory
// archive.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("opened-game-archive")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertGame archives one finished game. A zero CreatedAt is stamped
// with the current time.
func (s *Store) InsertGame(ctx context.Context, rec Record) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (id, white, black, result, termination, plies, start_fen, pgn, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.White, rec.Black, rec.Result, rec.Termination,
		rec.Plies, rec.StartFen, rec.PGN, created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting game %s: %w", rec.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var created string
	err := row.Scan(&rec.ID, &rec.White, &rec.Black, &rec.Result,
		&rec.Termination, &rec.Plies, &rec.StartFen, &rec.PGN, &created)
	if err != nil {
		return Record{}, err
	}
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Record{}, fmt.Errorf("bad created_at %q: %w", created, err)
	}
	return rec, nil
}

// Game fetches one archived game by id.
func (s *Store) Game(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, white, black, result, termination, plies, start_fen, pgn, created_at
		 FROM games WHERE id = ?`, id)
	return scanRecord(row)
}

// Recent returns up to limit archived games, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, white, black, result, termination, plies, start_fen, pgn, created_at
		 FROM games ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// EngineResults tallies wins, losses and draws for one engine across
// both colors.
func (s *Store) EngineResults(ctx context.Context, engine string) (Results, error) {
	var res Results
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN (white = ?1 AND result = '1-0') OR (black = ?1 AND result = '0-1') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN (white = ?1 AND result = '0-1') OR (black = ?1 AND result = '1-0') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN (white = ?1 OR black = ?1) AND result = '1/2-1/2' THEN 1 ELSE 0 END), 0)
		FROM games`, engine).Scan(&res.Wins, &res.Losses, &res.Draws)
	if err != nil {
		return Results{}, fmt.Errorf("tallying results for %s: %w", engine, err)
	}
	return res, nil
}
