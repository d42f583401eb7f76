package tttclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/park285/ttt-rooms/pkg/tttdto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Conn is one player's websocket session.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens the websocket endpoint, e.g. Client.WebsocketURL().
func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) send(ctx context.Context, event string, data any) error {
	env, err := tttdto.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	return wsjson.Write(ctx, c.ws, env)
}

func (c *Conn) Join(ctx context.Context, roomID string) error {
	return c.send(ctx, tttdto.EventJoinGame, tttdto.JoinGame{RoomID: roomID})
}

// Move sends make_move. field is usually an int; any JSON value is passed through as is.
func (c *Conn) Move(ctx context.Context, roomID string, field any) error {
	raw, err := json.Marshal(field)
	if err != nil {
		return err
	}
	return c.send(ctx, tttdto.EventMakeMove, tttdto.MakeMove{RoomID: roomID, Field: raw})
}

// Next blocks for the next frame.
func (c *Conn) Next(ctx context.Context) (tttdto.Envelope, error) {
	var env tttdto.Envelope
	err := wsjson.Read(ctx, c.ws, &env)
	return env, err
}

// Expect reads frames until one named event arrives and decodes its data into out (when non-nil).
// Frames before it are returned in skipped.
func (c *Conn) Expect(ctx context.Context, event string, out any) (skipped []tttdto.Envelope, err error) {
	for {
		env, err := c.Next(ctx)
		if err != nil {
			return skipped, fmt.Errorf("waiting for %s: %w", event, err)
		}
		if env.Event != event {
			skipped = append(skipped, env)
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return skipped, fmt.Errorf("decode %s: %w", event, err)
			}
		}
		return skipped, nil
	}
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}
