package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/park285/ttt-rooms/internal/archive"
	"github.com/park285/ttt-rooms/internal/domain"
	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/internal/persist"
	"github.com/park285/ttt-rooms/internal/roomstore"
	"github.com/park285/ttt-rooms/internal/schedule"
	"github.com/park285/ttt-rooms/internal/session"
	"github.com/park285/ttt-rooms/internal/tttclient"
	"github.com/park285/ttt-rooms/pkg/tttdto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubRenderer struct{}

func (stubRenderer) RenderPNG(_ context.Context, r *domain.Room) ([]byte, error) {
	return []byte("\x89PNG" + r.ID), nil
}

type stubHistory struct {
	recs []archive.Record
	err  error
}

func (h *stubHistory) RoomHistory(_ context.Context, roomID string, limit int) ([]archive.Record, error) {
	if h.err != nil {
		return nil, h.err
	}
	var out []archive.Record
	for _, r := range h.recs {
		if r.RoomID == roomID && (limit <= 0 || len(out) < limit) {
			out = append(out, r)
		}
	}
	return out, nil
}

type harness struct {
	ts     *httptest.Server
	srv    *Server
	client *tttclient.Client
	coord  *session.Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, history GameHistory) *harness {
	t.Helper()
	fs, err := persist.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store, err := roomstore.Open(context.Background(), fs)
	if err != nil {
		t.Fatalf("roomstore.Open: %v", err)
	}
	coord := session.NewCoordinator(store)
	sched := schedule.New()
	srv := New(Deps{
		Coordinator:  coord,
		Scheduler:    sched,
		Renderer:     stubRenderer{},
		History:      history,
		RestartDelay: 20 * time.Millisecond,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		sched.Stop()
		_ = store.Close(context.Background())
	})
	return &harness{ts: ts, srv: srv, client: tttclient.NewClient(ts.URL), coord: coord}
}

func (h *harness) dial(t *testing.T) *tttclient.Conn {
	t.Helper()
	c, err := tttclient.Dial(context.Background(), h.client.WebsocketURL())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func expect(t *testing.T, c *tttclient.Conn, event string, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Expect(ctx, event, out); err != nil {
		t.Fatalf("expect %s: %v", event, err)
	}
}

func TestFullGameOverWebsocket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tk, created, err := h.client.RequestRoom(ctx, true)
	if err != nil || !created || !tk.IsPublic || tk.Result != "success" {
		t.Fatalf("first RequestRoom: %+v created=%v err=%v", tk, created, err)
	}
	again, created, err := h.client.RequestRoom(ctx, true)
	if err != nil || created || again.RoomID != tk.RoomID {
		t.Fatalf("second RequestRoom should match: %+v created=%v err=%v", again, created, err)
	}

	a, b := h.dial(t), h.dial(t)
	if err := a.Join(ctx, tk.RoomID); err != nil {
		t.Fatalf("join a: %v", err)
	}
	var ack tttdto.Ack
	expect(t, a, tttdto.EventSuccess, &ack)
	if ack.Code != tttdto.CodeOK {
		t.Fatalf("join ack: %+v", ack)
	}
	var pa tttdto.PlayerAssigned
	expect(t, a, tttdto.EventPlayerAssigned, &pa)
	if pa.Symbol != "x" {
		t.Fatalf("a symbol %q", pa.Symbol)
	}

	if err := b.Join(ctx, tk.RoomID); err != nil {
		t.Fatalf("join b: %v", err)
	}
	expect(t, b, tttdto.EventPlayerAssigned, &pa)
	if pa.Symbol != "o" {
		t.Fatalf("b symbol %q", pa.Symbol)
	}
	var started tttdto.GameStarted
	expect(t, a, tttdto.EventGameStarted, &started)
	expect(t, b, tttdto.EventGameStarted, &started)
	if len(started.Board) != 0 {
		t.Fatalf("fresh board not empty: %v", started.Board)
	}

	if err := a.Join(ctx, tk.RoomID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	expect(t, a, tttdto.EventSuccess, &ack)
	if ack.Code != tttdto.CodeRejoin {
		t.Fatalf("rejoin ack: %+v", ack)
	}

	moves := []struct {
		c     *tttclient.Conn
		field any
	}{{a, 1}, {b, 4}, {a, "2"}, {b, 5}, {a, 3}}
	for _, m := range moves {
		if err := m.c.Move(ctx, tk.RoomID, m.field); err != nil {
			t.Fatalf("move %v: %v", m.field, err)
		}
		expect(t, m.c, tttdto.EventSuccess, &ack)
		if ack.Code != tttdto.CodeOK {
			t.Fatalf("move %v ack: %+v", m.field, ack)
		}
	}

	var ended tttdto.GameEnded
	expect(t, b, tttdto.EventGameEnded, &ended)
	if ended.Winner != "x" || len(ended.WinningLine) != 3 || ended.WinningLine[0] != 1 || ended.WinningLine[2] != 3 {
		t.Fatalf("game_ended %+v", ended)
	}
	var stats tttdto.Stats
	expect(t, b, tttdto.EventStats, &stats)
	if stats.Wins.X != 1 || stats.Wins.O != 0 || stats.Matches != 1 || stats.PlayedSince == nil {
		t.Fatalf("stats %+v", stats)
	}

	expect(t, a, tttdto.EventGameStarted, &started)
	if err := a.Move(ctx, tk.RoomID, 10); err != nil {
		t.Fatalf("move 10: %v", err)
	}
	var derr tttdto.DomainError
	expect(t, a, tttdto.EventError, &derr)
	if derr.Code != session.CodeFieldRange || derr.Message == "" {
		t.Fatalf("range error %+v", derr)
	}
	var state tttdto.GameState
	expect(t, a, tttdto.EventGameState, &state)
	if len(state.Board) != 0 || state.Turn != "" {
		t.Fatalf("rejected move changed state: %+v", state)
	}

	st, err := h.client.RoomState(ctx, tk.RoomID)
	if err != nil {
		t.Fatalf("RoomState: %v", err)
	}
	if !st.Players["x"] || !st.Players["o"] || !st.Started || st.Stats.Matches != 1 {
		t.Fatalf("room state %+v", st)
	}

	_ = b.Close()
	deadline := time.Now().Add(3 * time.Second)
	for {
		st, err = h.client.RoomState(ctx, tk.RoomID)
		if err == nil && !st.Players["o"] {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("disconnect did not free the slot: %+v %v", st, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st.Started {
		t.Fatalf("room still started after leave")
	}
}

func TestJoinErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.dial(t)

	var derr tttdto.DomainError
	if err := c.Join(ctx, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	expect(t, c, tttdto.EventError, &derr)
	if derr.Code != session.CodeRoomIDMissing {
		t.Fatalf("missing id: %+v", derr)
	}

	if err := c.Join(ctx, "nope00"); err != nil {
		t.Fatalf("join: %v", err)
	}
	expect(t, c, tttdto.EventError, &derr)
	if derr.Code != session.CodeRoomNotFound {
		t.Fatalf("unknown room: %+v", derr)
	}

	tk, _, _ := h.client.RequestRoom(ctx, false)
	for i := 0; i < 2; i++ {
		p := h.dial(t)
		if err := p.Join(ctx, tk.RoomID); err != nil {
			t.Fatalf("join: %v", err)
		}
		expect(t, p, tttdto.EventPlayerAssigned, nil)
	}
	if err := c.Join(ctx, tk.RoomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	expect(t, c, tttdto.EventError, &derr)
	if derr.Code != session.CodeRoomFull {
		t.Fatalf("full room: %+v", derr)
	}

	if err := c.Move(ctx, tk.RoomID, 1); err != nil {
		t.Fatalf("move: %v", err)
	}
	expect(t, c, tttdto.EventError, &derr)
	if derr.Code != session.CodeNotInRoom {
		t.Fatalf("outsider move: %+v", derr)
	}
}

func TestMalformedPayloadIsLogged(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.DebugLevel)
	defer obslog.Set(zap.New(core))()

	ctx := context.Background()
	h.srv.dispatch(ctx, "c1", tttdto.Envelope{Event: tttdto.EventJoinGame, Data: json.RawMessage(`{"roomId":5}`)})
	h.srv.dispatch(ctx, "c1", tttdto.Envelope{Event: tttdto.EventMakeMove, Data: json.RawMessage(`[1]`)})
	h.srv.dispatch(ctx, "c1", tttdto.Envelope{Event: tttdto.EventJoinGame})

	decoded := logs.FilterMessage("ws_decode_error").All()
	if len(decoded) != 2 {
		t.Fatalf("decode errors logged: %d", len(decoded))
	}
	if ev := decoded[1].ContextMap()["event"]; ev != tttdto.EventMakeMove {
		t.Fatalf("event field %v", ev)
	}
}

func TestHTTPRoutes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	resp, err := http.Post(h.ts.URL+"/ttt/api/watch", "application/json", nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("watch status %d", resp.StatusCode)
	}

	resp, err = http.Post(h.ts.URL+"/ttt/api/join", "application/json", bytes.NewBufferString("{oops"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body status %d", resp.StatusCode)
	}

	resp, err = http.Post(h.ts.URL+"/ttt/api/join", "application/json", nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("empty body should create a private room, status %d", resp.StatusCode)
	}

	_, err = h.client.RoomState(ctx, "zzzzzz")
	var se *tttclient.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound || se.Domain.Code != session.CodeRoomNotFound {
		t.Fatalf("unknown room state: %v", err)
	}

	tk, _, _ := h.client.RequestRoom(ctx, false)
	resp, err = http.Get(h.ts.URL + "/ttt/api/rooms/" + tk.RoomID + "/board.png")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("board status=%d type=%s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestHistoryRoute(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hist := &stubHistory{recs: []archive.Record{
		{GameID: "Ab12cd-2", RoomID: "Ab12cd", MatchNo: 2, Result: "draw", Board: []byte(`{"1":"x","2":"o"}`), EndedAt: started.Add(time.Minute)},
		{GameID: "Ab12cd-1", RoomID: "Ab12cd", MatchNo: 1, Result: "x", WinningLine: "1,5,9", Board: []byte(`{"1":"x","5":"x","9":"x"}`), StartedAt: &started, EndedAt: started.Add(30 * time.Second), DurationMS: 30000},
	}}
	h := newHarnessWith(t, hist)

	recs, err := h.client.RoomHistory(ctx, "Ab12cd", 0)
	if err != nil {
		t.Fatalf("RoomHistory: %v", err)
	}
	if len(recs) != 2 || recs[0].Result != "draw" || len(recs[0].WinningLine) != 0 || recs[0].StartedAt != nil {
		t.Fatalf("history %+v", recs)
	}
	win := recs[1]
	if win.Match != 1 || len(win.WinningLine) != 3 || win.WinningLine[1] != 5 || win.Board["9"] != "x" || win.StartedAt == nil || win.DurationMS != 30000 {
		t.Fatalf("win record %+v", win)
	}

	recs, err = h.client.RoomHistory(ctx, "Ab12cd", 1)
	if err != nil || len(recs) != 1 {
		t.Fatalf("limited history %v %v", recs, err)
	}

	_, err = h.client.RoomHistory(ctx, "bad id!", 0)
	var se *tttclient.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("invalid id: %v", err)
	}

	hist.err = errors.New("db down")
	_, err = h.client.RoomHistory(ctx, "Ab12cd", 0)
	if !errors.As(err, &se) || se.Status != http.StatusServiceUnavailable {
		t.Fatalf("db failure: %v", err)
	}

	plain := newHarness(t)
	_, err = plain.client.RoomHistory(ctx, "Ab12cd", 0)
	if !errors.As(err, &se) || se.Status != http.StatusNotImplemented {
		t.Fatalf("history without archive: %v", err)
	}
}
