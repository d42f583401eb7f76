package transport

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/park285/ttt-rooms/internal/archive"
	"github.com/park285/ttt-rooms/internal/domain"
	"github.com/park285/ttt-rooms/internal/game"
	"github.com/park285/ttt-rooms/internal/msgcat"
	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/internal/session"
	"github.com/park285/ttt-rooms/pkg/tttdto"
	"go.uber.org/zap"
)

// presenter turns coordinator results into wire envelopes.
type presenter struct {
	cat *msgcat.Catalog
}

func (p presenter) envelope(event string, data any) tttdto.Envelope {
	env, err := tttdto.NewEnvelope(event, data)
	if err != nil {
		// payloads are plain structs; a failure here is a programming error
		obslog.L().Error("ws_encode_error", zap.String("event", event), zap.Error(err))
	}
	return env
}

func (p presenter) rejection(r *session.Rejection) tttdto.Envelope {
	return p.envelope(tttdto.EventError, p.domainError(r))
}

func (p presenter) domainError(r *session.Rejection) tttdto.DomainError {
	return tttdto.DomainError{Code: r.Code, Message: p.cat.Text("error."+r.Key, nil)}
}

func (p presenter) ack(code int, key string, data any) tttdto.Envelope {
	return p.envelope(tttdto.EventSuccess, tttdto.Ack{Code: code, Message: p.cat.Text("success."+key, data)})
}

func (p presenter) playerAssigned(sym domain.Symbol) tttdto.Envelope {
	return p.envelope(tttdto.EventPlayerAssigned, tttdto.PlayerAssigned{Symbol: string(sym)})
}

func (p presenter) gameStarted(r *domain.Room) tttdto.Envelope {
	return p.envelope(tttdto.EventGameStarted, tttdto.GameStarted{Board: boardDTO(r.Board)})
}

func (p presenter) gameState(r *domain.Room) tttdto.Envelope {
	return p.envelope(tttdto.EventGameState, tttdto.GameState{Board: boardDTO(r.Board), Turn: string(r.Turn)})
}

func (p presenter) gameEnded(o game.Outcome) tttdto.Envelope {
	ended := tttdto.GameEnded{WinningLine: []int{}}
	if w, ok := o.(game.Win); ok {
		ended.Winner = string(w.Winner)
		ended.WinningLine = w.Line[:]
	}
	return p.envelope(tttdto.EventGameEnded, ended)
}

func (p presenter) stats(r *domain.Room) tttdto.Envelope {
	return p.envelope(tttdto.EventStats, statsDTO(r.Stats))
}

func boardDTO(board map[int]domain.Symbol) tttdto.Board {
	out := make(tttdto.Board, len(board))
	for pos, sym := range board {
		out[strconv.Itoa(pos)] = string(sym)
	}
	return out
}

func statsDTO(s domain.Stats) tttdto.Stats {
	out := tttdto.Stats{Wins: tttdto.Wins{X: s.Wins.X, O: s.Wins.O}, Matches: s.Matches}
	if s.PlayedSince != nil {
		v := s.PlayedSince.UTC().Format(time.RFC3339)
		out.PlayedSince = &v
	}
	return out
}

func roomStateDTO(r *domain.Room) tttdto.RoomState {
	players := make(map[string]bool, len(domain.Symbols))
	for _, sym := range domain.Symbols {
		players[string(sym)] = r.Occupied(sym)
	}
	return tttdto.RoomState{
		RoomID:   r.ID,
		IsPublic: r.IsPublic,
		Players:  players,
		Started:  r.Started,
		Turn:     string(r.Turn),
		Board:    boardDTO(r.Board),
		Stats:    statsDTO(r.Stats),
	}
}

func gameRecordDTO(rec archive.Record) tttdto.GameRecord {
	out := tttdto.GameRecord{
		GameID:      rec.GameID,
		Match:       rec.MatchNo,
		Result:      rec.Result,
		WinningLine: []int{},
		Board:       tttdto.Board{},
		EndedAt:     rec.EndedAt.UTC().Format(time.RFC3339),
		DurationMS:  rec.DurationMS,
	}
	if rec.WinningLine != "" {
		for _, part := range strings.Split(rec.WinningLine, ",") {
			if pos, err := strconv.Atoi(part); err == nil {
				out.WinningLine = append(out.WinningLine, pos)
			}
		}
	}
	if err := json.Unmarshal(rec.Board, &out.Board); err != nil {
		obslog.L().Warn("history_board_decode_error", zap.String("game_id", rec.GameID), zap.Error(err))
	}
	if rec.StartedAt != nil {
		v := rec.StartedAt.UTC().Format(time.RFC3339)
		out.StartedAt = &v
	}
	return out
}
