package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/ttt-rooms/internal/domain"
	"github.com/park285/ttt-rooms/internal/game"
	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/internal/roomstore"
	"go.uber.org/zap"
)

const archiveTimeout = 5 * time.Second

// Archiver receives every finished game. Failures are logged and otherwise ignored.
type Archiver interface {
	Archive(ctx context.Context, room *domain.Room, outcome game.Outcome, endedAt time.Time) error
}

type JoinStatus int

const (
	JoinSuccess JoinStatus = iota
	JoinRejoin
	JoinFull
	JoinInvalid
)

func (s JoinStatus) String() string {
	switch s {
	case JoinSuccess:
		return "success"
	case JoinRejoin:
		return "rejoin"
	case JoinFull:
		return "full"
	case JoinInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("JoinStatus(%d)", int(s))
	}
}

// JoinResult carries Symbol for success and rejoin, Reject for full and invalid.
type JoinResult struct {
	Status   JoinStatus
	Symbol   domain.Symbol
	RoomFull bool
	Reject   *Rejection
}

// Ticket is the answer to a find-a-game request.
type Ticket struct {
	RoomID  string
	Created bool
}

// MoveRequest is one inbound move. Field is nil when the client sent none.
type MoveRequest struct {
	RoomID   string
	ClientID string
	Field    *int
}

// MoveReport describes what Play did.
//
// Reject is set for every refused move. For occupied and out-of-range fields Outcome is Redo and
// Room holds the unchanged state for a resync; for other refusals Outcome and Room are nil.
type MoveReport struct {
	Symbol  domain.Symbol
	Result  game.MoveResult
	Outcome game.Outcome
	Room    *domain.Room
	Reject  *Rejection
}

// Coordinator sequences room store and game engine calls into per-room atomic operations.
type Coordinator struct {
	store    *roomstore.Store
	archiver Archiver
	now      func() time.Time

	mu      sync.Mutex
	clients map[string]string
}

type Option func(*Coordinator)

func WithArchiver(a Archiver) Option { return func(c *Coordinator) { c.archiver = a } }

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCoordinator(store *roomstore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{store: store, now: time.Now, clients: make(map[string]string)}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Coordinator) RequestRoom(ctx context.Context, public bool) (Ticket, error) {
	id, created, err := c.store.RequestRoom(ctx, public)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{RoomID: id, Created: created}, nil
}

// JoinRoom seats clientID in the first free slot, x before o. A client that already sits in the
// room gets JoinRejoin and keeps its slot. A client seated in a second room leaves the first; a
// rejected join leaves it where it was.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID, clientID string) (JoinResult, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return JoinResult{Status: JoinInvalid, Reject: ErrRoomIDMissing}, nil
	}
	if clientID == "" {
		return JoinResult{}, fmt.Errorf("%w: join without client id", game.ErrContract)
	}

	var res JoinResult
	err := c.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		if sym := r.OccupantOf(clientID); sym != domain.NoSymbol {
			res = JoinResult{Status: JoinRejoin, Symbol: sym, RoomFull: r.Full()}
			return false, nil
		}
		for _, sym := range domain.Symbols {
			if !r.Occupied(sym) {
				r.Players[sym] = clientID
				res = JoinResult{Status: JoinSuccess, Symbol: sym, RoomFull: r.Full()}
				return true, nil
			}
		}
		res = JoinResult{Status: JoinFull, Reject: ErrRoomFull}
		return false, nil
	})
	if errors.Is(err, roomstore.ErrRoomNotFound) {
		return JoinResult{Status: JoinInvalid, Reject: ErrRoomNotFound}, nil
	}
	if err != nil {
		return JoinResult{}, err
	}

	if res.Status == JoinRejoin {
		// A reconnect counts as activity for the inactivity sweep.
		if err := c.store.Touch(ctx, roomID); err != nil && !errors.Is(err, roomstore.ErrRoomNotFound) {
			return JoinResult{}, err
		}
	}
	if res.Status == JoinSuccess {
		if prev := c.RoomOf(clientID); prev != "" && prev != roomID {
			if err := c.Leave(ctx, prev, clientID); err != nil && !errors.Is(err, roomstore.ErrRoomNotFound) {
				return JoinResult{}, err
			}
		}
	}
	if res.Status == JoinSuccess || res.Status == JoinRejoin {
		c.mu.Lock()
		c.clients[clientID] = roomID
		c.mu.Unlock()
	}
	obslog.L().Info("room_join",
		zap.String("room_id", roomID),
		zap.String("client_id", clientID),
		zap.Stringer("result", res.Status),
		zap.String("symbol", string(res.Symbol)),
	)
	return res, nil
}

// RoomFull reports whether both slots of roomID are occupied.
func (c *Coordinator) RoomFull(roomID string) bool {
	r, err := c.store.Get(roomID)
	return err == nil && r.Full()
}

// Leave frees the slot clientID holds. The room, its board and its stats stay; a running game is
// suspended until the slot is taken again.
func (c *Coordinator) Leave(ctx context.Context, roomID, clientID string) error {
	c.mu.Lock()
	if c.clients[clientID] == roomID {
		delete(c.clients, clientID)
	}
	c.mu.Unlock()

	var freed domain.Symbol
	err := c.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		freed = r.OccupantOf(clientID)
		if freed == domain.NoSymbol {
			return false, nil
		}
		delete(r.Players, freed)
		r.Started = false
		r.Turn = domain.NoSymbol
		return true, nil
	})
	if err != nil {
		return err
	}
	if freed != domain.NoSymbol {
		obslog.L().Info("room_leave", zap.String("room_id", roomID), zap.String("client_id", clientID), zap.String("symbol", string(freed)))
	}
	return nil
}

// Disconnect leaves whatever room clientID joined. Returns the room id, empty when none.
func (c *Coordinator) Disconnect(ctx context.Context, clientID string) (string, error) {
	roomID := c.RoomOf(clientID)
	if roomID == "" {
		return "", nil
	}
	err := c.Leave(ctx, roomID, clientID)
	if errors.Is(err, roomstore.ErrRoomNotFound) {
		err = nil
	}
	return roomID, err
}

// RoomOf returns the room clientID joined last.
func (c *Coordinator) RoomOf(clientID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clients[clientID]
}

// MakeMove places the caller's symbol. Membership must already be checked: a caller outside the
// room is a contract violation.
func (c *Coordinator) MakeMove(ctx context.Context, roomID, clientID string, field int) (game.MoveResult, error) {
	var res game.MoveResult
	err := c.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		var err error
		res, err = game.Place(r, clientID, field)
		return res == game.MovePlaced, err
	})
	return res, c.contract("make_move", roomID, err)
}

// AfterMove evaluates the board for the mover and advances turn or stats.
func (c *Coordinator) AfterMove(ctx context.Context, roomID, clientID string) (game.Outcome, error) {
	var (
		out  game.Outcome
		done *domain.Room
	)
	err := c.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		var err error
		if out, err = game.CheckOutcome(r, clientID); err != nil {
			return false, err
		}
		if err := game.Advance(out, r, clientID); err != nil {
			return false, err
		}
		if game.Terminal(out) {
			done = r.Clone()
		}
		return true, nil
	})
	if err := c.contract("after_move", roomID, err); err != nil {
		return nil, err
	}
	if done != nil {
		c.finish(ctx, done, out)
	}
	return out, nil
}

// StartGame clears board and turn and marks the room started. Both slots must be occupied.
func (c *Coordinator) StartGame(ctx context.Context, roomID string) error {
	err := c.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		if !r.Full() {
			return false, fmt.Errorf("%w: start %s without two players", game.ErrContract, roomID)
		}
		game.Reset(r, c.now())
		return true, nil
	})
	if err := c.contract("start_game", roomID, err); err != nil {
		return err
	}
	obslog.L().Info("game_start", zap.String("room_id", roomID))
	return nil
}

// RestartIfReady starts a new game when the room is full and idle. Used for the first game after
// the second join and for the delayed restart after a finished game, which may find a player gone.
func (c *Coordinator) RestartIfReady(ctx context.Context, roomID string) (*domain.Room, bool, error) {
	var started *domain.Room
	err := c.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		if !r.Full() || r.Started {
			return false, nil
		}
		game.Reset(r, c.now())
		started = r.Clone()
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}
	if started == nil {
		return nil, false, nil
	}
	obslog.L().Info("game_start", zap.String("room_id", roomID))
	return started, true, nil
}

// Play runs a whole inbound move under one room lock: membership, game state, turn, field, then
// place, evaluate and advance.
func (c *Coordinator) Play(ctx context.Context, req MoveRequest) (MoveReport, error) {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return MoveReport{Reject: ErrRoomIDMissing}, nil
	}
	if c.RoomOf(req.ClientID) != roomID {
		return MoveReport{Reject: ErrNotInRoom}, nil
	}

	var (
		rep  MoveReport
		done *domain.Room
	)
	err := c.store.Update(ctx, roomID, func(r *domain.Room) (bool, error) {
		sym := r.OccupantOf(req.ClientID)
		if sym == domain.NoSymbol {
			rep.Reject = ErrNotInRoom
			return false, nil
		}
		rep.Symbol = sym
		if !r.Started {
			rep.Reject = ErrGameNotStarted
			return false, nil
		}
		ok, err := game.IsPlayersTurn(r, req.ClientID)
		if err != nil {
			return false, err
		}
		if !ok {
			rep.Reject = ErrNotYourTurn
			return false, nil
		}
		if req.Field == nil {
			rep.Reject = ErrFieldMissing
			return false, nil
		}

		if rep.Result, err = game.Place(r, req.ClientID, *req.Field); err != nil {
			return false, err
		}
		switch rep.Result {
		case game.MoveOccupied:
			rep.Reject = ErrFieldOccupied
		case game.MoveOutOfRange:
			rep.Reject = ErrFieldRange
		}
		if rep.Reject != nil {
			rep.Outcome = game.Redo{}
			if err := game.Advance(rep.Outcome, r, req.ClientID); err != nil {
				return false, err
			}
			rep.Room = r.Clone()
			return false, nil
		}

		if rep.Outcome, err = game.CheckOutcome(r, req.ClientID); err != nil {
			return false, err
		}
		if err := game.Advance(rep.Outcome, r, req.ClientID); err != nil {
			return false, err
		}
		rep.Room = r.Clone()
		if game.Terminal(rep.Outcome) {
			done = rep.Room
		}
		return true, nil
	})
	if errors.Is(err, roomstore.ErrRoomNotFound) {
		return MoveReport{Reject: ErrRoomNotFound}, nil
	}
	if err := c.contract("play", roomID, err); err != nil {
		return MoveReport{}, err
	}

	if rep.Reject == nil {
		obslog.L().Debug("game_move",
			zap.String("room_id", roomID),
			zap.String("symbol", string(rep.Symbol)),
			zap.Int("field", *req.Field),
		)
	}
	if done != nil {
		c.finish(ctx, done, rep.Outcome)
	}
	return rep, nil
}

// Room returns a copy of the room state.
func (c *Coordinator) Room(roomID string) (*domain.Room, error) {
	return c.store.Get(roomID)
}

func (c *Coordinator) finish(ctx context.Context, r *domain.Room, out game.Outcome) {
	fields := []zap.Field{
		zap.String("room_id", r.ID),
		zap.Int("matches", r.Stats.Matches),
		zap.Int("wins_x", r.Stats.Wins.X),
		zap.Int("wins_o", r.Stats.Wins.O),
	}
	if w, ok := out.(game.Win); ok {
		fields = append(fields, zap.String("winner", string(w.Winner)), zap.Ints("line", w.Line[:]))
	} else {
		fields = append(fields, zap.String("winner", "draw"))
	}
	obslog.L().Info("game_end", fields...)

	if c.archiver == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := c.archiver.Archive(actx, r, out, c.now()); err != nil {
		obslog.L().Warn("archive_error", zap.String("room_id", r.ID), zap.Error(err))
	}
}

// contract logs coordination bugs loudly; the caller drops the event.
func (c *Coordinator) contract(op, roomID string, err error) error {
	if err != nil && errors.Is(err, game.ErrContract) {
		obslog.L().Error("contract_violation", zap.String("op", op), zap.String("room_id", roomID), zap.Error(err))
	}
	return err
}
