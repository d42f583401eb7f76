package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/park285/ttt-rooms/internal/archive"
	"github.com/park285/ttt-rooms/internal/domain"
	"github.com/park285/ttt-rooms/internal/msgcat"
	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/internal/roomstore"
	"github.com/park285/ttt-rooms/internal/schedule"
	"github.com/park285/ttt-rooms/internal/session"
	"github.com/park285/ttt-rooms/pkg/tttdto"
	"go.uber.org/zap"
)

// BoardRenderer draws a room as a PNG.
type BoardRenderer interface {
	RenderPNG(ctx context.Context, r *domain.Room) ([]byte, error)
}

// GameHistory lists archived games of a room, newest first.
type GameHistory interface {
	RoomHistory(ctx context.Context, roomID string, limit int) ([]archive.Record, error)
}

type Deps struct {
	Coordinator    *session.Coordinator
	Scheduler      *schedule.Scheduler
	Catalog        *msgcat.Catalog
	Renderer       BoardRenderer
	History        GameHistory
	RestartDelay   time.Duration
	AllowedOrigins []string
}

// Server is the HTTP and websocket adapter in front of the session coordinator.
type Server struct {
	router  *chi.Mux
	coord   *session.Coordinator
	sched   *schedule.Scheduler
	render  BoardRenderer
	history GameHistory
	hub     *Hub
	present presenter

	restartDelay time.Duration
	origins      []string
}

func New(d Deps) *Server {
	cat := d.Catalog
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	s := &Server{
		router:       chi.NewRouter(),
		coord:        d.Coordinator,
		sched:        d.Scheduler,
		render:       d.Renderer,
		history:      d.History,
		hub:          NewHub(),
		present:      presenter{cat: cat},
		restartDelay: d.RestartDelay,
		origins:      d.AllowedOrigins,
	}

	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(chimw.Recoverer)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	s.router.Route("/ttt", func(r chi.Router) {
		r.Get("/ws", s.handleWS)
		r.Route("/api", func(r chi.Router) {
			r.Use(chimw.Timeout(10 * time.Second))
			r.Post("/join", s.handleJoin)
			r.Post("/watch", s.handleWatch)
			r.Get("/rooms/{roomID}", s.handleRoom)
			r.Get("/rooms/{roomID}/board.png", s.handleBoard)
			r.Get("/rooms/{roomID}/history", s.handleHistory)
		})
	})
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, tttdto.DomainError{Code: http.StatusNotFound, Message: "not found: " + r.URL.Path})
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Close drops every websocket connection; their handlers then run the usual disconnect path.
func (s *Server) Close() { s.hub.CloseAll() }

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req tttdto.JoinRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeHTTPError(w, http.StatusBadRequest, "http.bad_request")
		return
	}
	tk, err := s.coord.RequestRoom(r.Context(), req.IsPublic)
	if err != nil {
		obslog.L().Error("room_request_error", zap.Bool("public", req.IsPublic), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, tttdto.DomainError{Code: http.StatusServiceUnavailable, Message: err.Error()})
		return
	}
	status := http.StatusOK
	if tk.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, tttdto.RoomTicket{Result: "success", RoomID: tk.RoomID, IsPublic: req.IsPublic})
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPError(w, http.StatusNotImplemented, "http.watch_unavailable")
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.lookupRoom(w, chi.URLParam(r, "roomID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, roomStateDTO(room))
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	room, ok := s.lookupRoom(w, chi.URLParam(r, "roomID"))
	if !ok {
		return
	}
	if s.render == nil {
		s.writeHTTPError(w, http.StatusNotImplemented, "http.render_failed")
		return
	}
	png, err := s.render.RenderPNG(r.Context(), room)
	if err != nil {
		obslog.L().Warn("render_error", zap.String("room_id", room.ID), zap.Error(err))
		s.writeHTTPError(w, http.StatusInternalServerError, "http.render_failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// handleHistory serves archived games. Rooms removed by the sweep keep their history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeHTTPError(w, http.StatusNotImplemented, "http.history_unavailable")
		return
	}
	roomID := chi.URLParam(r, "roomID")
	if !domain.ValidRoomID(roomID) {
		writeJSON(w, http.StatusNotFound, s.present.domainError(session.ErrRoomNotFound))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 100 {
		limit = 100
	}
	recs, err := s.history.RoomHistory(r.Context(), roomID, limit)
	if err != nil {
		obslog.L().Warn("history_error", zap.String("room_id", roomID), zap.Error(err))
		s.writeHTTPError(w, http.StatusServiceUnavailable, "http.history_failed")
		return
	}
	out := make([]tttdto.GameRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gameRecordDTO(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookupRoom(w http.ResponseWriter, roomID string) (*domain.Room, bool) {
	room, err := s.coord.Room(roomID)
	if errors.Is(err, roomstore.ErrRoomNotFound) {
		writeJSON(w, http.StatusNotFound, s.present.domainError(session.ErrRoomNotFound))
		return nil, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, tttdto.DomainError{Code: http.StatusInternalServerError, Message: err.Error()})
		return nil, false
	}
	return room, true
}

func (s *Server) writeHTTPError(w http.ResponseWriter, status int, key string) {
	writeJSON(w, status, tttdto.DomainError{Code: status, Message: s.present.cat.Text(key, nil)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
