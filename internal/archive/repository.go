// Package archive stores finished games in Postgres. It is optional: the server runs without it
// when no DATABASE_URL is configured.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/ttt-rooms/internal/domain"
	"github.com/park285/ttt-rooms/internal/game"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS ttt_games (
	game_id      TEXT PRIMARY KEY,
	room_id      TEXT NOT NULL,
	is_public    BOOLEAN NOT NULL,
	player_x     TEXT NOT NULL,
	player_o     TEXT NOT NULL,
	match_no     INTEGER NOT NULL,
	result       TEXT NOT NULL,
	winning_line TEXT NOT NULL,
	board        JSONB NOT NULL,
	started_at   TIMESTAMPTZ,
	ended_at     TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS ttt_games_room_idx ON ttt_games (room_id, ended_at DESC);`

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record is one row of ttt_games.
type Record struct {
	GameID      string
	RoomID      string
	IsPublic    bool
	PlayerX     string
	PlayerO     string
	MatchNo     int
	Result      string
	WinningLine string
	Board       []byte
	StartedAt   *time.Time
	EndedAt     time.Time
	DurationMS  int64
}

// NewRecord builds the row for a game that ended with outcome. Only Win and Draw are archived.
func NewRecord(room *domain.Room, outcome game.Outcome, endedAt time.Time) (Record, error) {
	if room == nil {
		return Record{}, errors.New("room is nil")
	}
	rec := Record{
		RoomID:   room.ID,
		IsPublic: room.IsPublic,
		PlayerX:  room.Players[domain.X],
		PlayerO:  room.Players[domain.O],
		MatchNo:  room.Stats.Matches,
		EndedAt:  endedAt.UTC(),
	}
	switch v := outcome.(type) {
	case game.Win:
		rec.Result = string(v.Winner)
		rec.WinningLine = formatLine(v.Line)
	case game.Draw:
		rec.Result = "draw"
	default:
		return Record{}, fmt.Errorf("%w: archive non-terminal outcome %T", game.ErrContract, outcome)
	}

	board := make(map[string]string, len(room.Board))
	for pos, sym := range room.Board {
		board[strconv.Itoa(pos)] = string(sym)
	}
	raw, err := json.Marshal(board)
	if err != nil {
		return Record{}, fmt.Errorf("marshal board: %w", err)
	}
	rec.Board = raw

	started := room.GameStartedAt
	if started.IsZero() {
		rec.GameID = fmt.Sprintf("%s-%d", room.ID, rec.EndedAt.UnixNano())
		return rec, nil
	}
	started = started.UTC()
	rec.StartedAt = &started
	rec.GameID = fmt.Sprintf("%s-%d", room.ID, started.UnixNano())
	if d := rec.EndedAt.Sub(started).Milliseconds(); d > 0 {
		rec.DurationMS = d
	}
	return rec, nil
}

func formatLine(l game.Line) string {
	parts := make([]string, len(l))
	for i, pos := range l {
		parts[i] = strconv.Itoa(pos)
	}
	return strings.Join(parts, ",")
}

// SaveResult upserts rec, keyed by game id.
func (r *Repository) SaveResult(ctx context.Context, rec Record) error {
	if r == nil || r.db == nil {
		return nil
	}
	q := `INSERT INTO ttt_games (
		game_id, room_id, is_public, player_x, player_o, match_no,
		result, winning_line, board, started_at, ended_at, duration_ms
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	ON CONFLICT (game_id) DO UPDATE SET
		match_no=EXCLUDED.match_no,
		result=EXCLUDED.result,
		winning_line=EXCLUDED.winning_line,
		board=EXCLUDED.board,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`
	_, err := r.db.ExecContext(ctx, q,
		rec.GameID, rec.RoomID, rec.IsPublic, rec.PlayerX, rec.PlayerO, rec.MatchNo,
		rec.Result, rec.WinningLine, string(rec.Board), rec.StartedAt, rec.EndedAt, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.GameID, err)
	}
	return nil
}

// Archive implements session.Archiver.
func (r *Repository) Archive(ctx context.Context, room *domain.Room, outcome game.Outcome, endedAt time.Time) error {
	if r == nil || r.db == nil {
		return nil
	}
	rec, err := NewRecord(room, outcome, endedAt)
	if err != nil {
		return err
	}
	return r.SaveResult(ctx, rec)
}

// RoomHistory returns the latest finished games of a room, newest first.
func (r *Repository) RoomHistory(ctx context.Context, roomID string, limit int) ([]Record, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT game_id, room_id, is_public, player_x, player_o, match_no,
		result, winning_line, board, started_at, ended_at, duration_ms
		FROM ttt_games WHERE room_id = $1 ORDER BY ended_at DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var started sql.NullTime
		var board string
		if err := rows.Scan(&rec.GameID, &rec.RoomID, &rec.IsPublic, &rec.PlayerX, &rec.PlayerO, &rec.MatchNo,
			&rec.Result, &rec.WinningLine, &board, &started, &rec.EndedAt, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Board = []byte(board)
		if started.Valid {
			t := started.Time
			rec.StartedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
