package tttdto

import "encoding/json"

// JoinGame is the inbound join_game payload.
type JoinGame struct {
	RoomID string `json:"roomId"`
}

// MakeMove is the inbound make_move payload. Field accepts 5 or "5"; see ParseField.
type MakeMove struct {
	RoomID string          `json:"roomId"`
	Field  json.RawMessage `json:"field,omitempty"`
}

type Ack struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type PlayerAssigned struct {
	Symbol string `json:"symbol"`
}

// Board maps "1".."9" to "x" or "o"; empty cells are absent.
type Board map[string]string

type GameStarted struct {
	Board Board `json:"board"`
}

type GameState struct {
	Board Board  `json:"board"`
	Turn  string `json:"turn"`
}

// GameEnded has an empty Winner and no line for a draw.
type GameEnded struct {
	Winner      string `json:"winner"`
	WinningLine []int  `json:"winningLine"`
}

type Wins struct {
	X int `json:"x"`
	O int `json:"o"`
}

type Stats struct {
	Wins        Wins    `json:"wins"`
	Matches     int     `json:"matches"`
	PlayedSince *string `json:"playedSince,omitempty"`
}
