package tttdto

import "encoding/json"

// Websocket event names.
const (
	EventJoinGame       = "join_game"
	EventMakeMove       = "make_move"
	EventSuccess        = "success"
	EventPlayerAssigned = "player_assigned"
	EventGameStarted    = "game_started"
	EventGameState      = "game_state"
	EventGameEnded      = "game_ended"
	EventStats          = "stats"
	EventError          = "error"
)

// Success codes carried by EventSuccess.
const (
	CodeOK     = 2001
	CodeRejoin = 2002
)

// Envelope is every websocket frame: {"event": name, "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}
