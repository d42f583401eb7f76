package tttdto

// JoinRequest is the body of POST /ttt/api/join.
type JoinRequest struct {
	IsPublic bool `json:"isPublic"`
}

// RoomTicket answers POST /ttt/api/join: 201 for a new room, 200 for a matched one.
type RoomTicket struct {
	Result   string `json:"result"`
	RoomID   string `json:"roomId"`
	IsPublic bool   `json:"isPublic"`
}

// RoomState answers GET /ttt/api/rooms/{roomID}. Players maps each symbol to whether it is taken.
type RoomState struct {
	RoomID   string          `json:"roomId"`
	IsPublic bool            `json:"isPublic"`
	Players  map[string]bool `json:"players"`
	Started  bool            `json:"started"`
	Turn     string          `json:"turn"`
	Board    Board           `json:"board"`
	Stats    Stats           `json:"stats"`
}

// GameRecord is one finished game in GET /ttt/api/rooms/{roomID}/history. Result is "x", "o" or
// "draw"; WinningLine is empty for draws.
type GameRecord struct {
	GameID      string  `json:"gameId"`
	Match       int     `json:"match"`
	Result      string  `json:"result"`
	WinningLine []int   `json:"winningLine"`
	Board       Board   `json:"board"`
	StartedAt   *string `json:"startedAt"`
	EndedAt     string  `json:"endedAt"`
	DurationMS  int64   `json:"durationMs"`
}
