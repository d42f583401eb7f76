package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/park285/ttt-rooms/internal/game"
	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/internal/session"
	"github.com/park285/ttt-rooms/pkg/tttdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.origins,
		InsecureSkipVerify: len(s.origins) == 0,
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := newClient(uuid.NewString(), conn)
	s.hub.add(c)
	obslog.L().Info("ws_connect", zap.String("client_id", c.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx)

	defer func() {
		s.hub.remove(c.id)
		c.close(websocket.StatusNormalClosure, "bye")
		roomID, err := s.coord.Disconnect(context.WithoutCancel(ctx), c.id)
		if err != nil {
			obslog.L().Warn("ws_disconnect_error", zap.String("client_id", c.id), zap.Error(err))
		}
		obslog.L().Info("ws_disconnect", zap.String("client_id", c.id), zap.String("room_id", roomID))
	}()

	for {
		var env tttdto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		s.dispatch(ctx, c.id, env)
	}
}

func (s *Server) dispatch(ctx context.Context, clientID string, env tttdto.Envelope) {
	switch env.Event {
	case tttdto.EventJoinGame:
		var req tttdto.JoinGame
		decodeData(clientID, env, &req)
		s.onJoin(ctx, clientID, req)
	case tttdto.EventMakeMove:
		var req tttdto.MakeMove
		decodeData(clientID, env, &req)
		s.onMove(ctx, clientID, req)
	default:
		obslog.L().Debug("ws_unknown_event", zap.String("client_id", clientID), zap.String("event", env.Event))
	}
}

// decodeData fills out from the frame payload. A malformed payload leaves out zero, so the handler
// answers with the matching missing-field error.
func decodeData(clientID string, env tttdto.Envelope, out any) {
	if len(env.Data) == 0 {
		return
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		obslog.L().Debug("ws_decode_error", zap.String("client_id", clientID), zap.String("event", env.Event), zap.Error(err))
	}
}

func (s *Server) onJoin(ctx context.Context, clientID string, req tttdto.JoinGame) {
	req.RoomID = strings.TrimSpace(req.RoomID)
	res, err := s.coord.JoinRoom(ctx, req.RoomID, clientID)
	if err != nil {
		obslog.L().Error("ws_join_error", zap.String("client_id", clientID), zap.String("room_id", req.RoomID), zap.Error(err))
		return
	}
	switch res.Status {
	case session.JoinSuccess:
		s.hub.subscribe(req.RoomID, clientID)
		s.hub.SendTo(clientID, s.present.ack(tttdto.CodeOK, "joined", map[string]string{"RoomID": req.RoomID}))
		s.hub.SendTo(clientID, s.present.playerAssigned(res.Symbol))
		if res.RoomFull {
			s.startGame(ctx, req.RoomID)
		}
	case session.JoinRejoin:
		s.hub.subscribe(req.RoomID, clientID)
		s.hub.SendTo(clientID, s.present.ack(tttdto.CodeRejoin, "rejoin", nil))
	default:
		s.hub.SendTo(clientID, s.present.rejection(res.Reject))
	}
}

func (s *Server) onMove(ctx context.Context, clientID string, req tttdto.MakeMove) {
	req.RoomID = strings.TrimSpace(req.RoomID)
	rep, err := s.coord.Play(ctx, session.MoveRequest{RoomID: req.RoomID, ClientID: clientID, Field: req.ParseField()})
	if err != nil {
		if !errors.Is(err, game.ErrContract) {
			obslog.L().Error("ws_move_error", zap.String("client_id", clientID), zap.String("room_id", req.RoomID), zap.Error(err))
		}
		return
	}
	if rep.Reject != nil {
		s.hub.SendTo(clientID, s.present.rejection(rep.Reject))
		if rep.Room != nil {
			s.hub.Broadcast(req.RoomID, s.present.gameState(rep.Room))
		}
		return
	}

	s.hub.SendTo(clientID, s.present.ack(tttdto.CodeOK, "field_placed", nil))
	s.hub.Broadcast(req.RoomID, s.present.gameState(rep.Room))
	if !game.Terminal(rep.Outcome) {
		return
	}
	s.hub.Broadcast(req.RoomID, s.present.gameEnded(rep.Outcome))
	s.hub.Broadcast(req.RoomID, s.present.stats(rep.Room))
	s.scheduleRestart(req.RoomID)
}

func (s *Server) scheduleRestart(roomID string) {
	if s.sched == nil {
		return
	}
	s.sched.After("restart:"+roomID, s.restartDelay, func(ctx context.Context) {
		s.startGame(ctx, roomID)
	})
}

// startGame begins a game if the room is full and idle and tells every member.
func (s *Server) startGame(ctx context.Context, roomID string) {
	room, started, err := s.coord.RestartIfReady(ctx, roomID)
	if err != nil {
		obslog.L().Warn("game_start_error", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	if started {
		s.hub.Broadcast(roomID, s.present.gameStarted(room))
	}
}
