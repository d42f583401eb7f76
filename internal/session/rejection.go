package session

import "fmt"

// Rejection codes sent to clients. Stable: the web client switches on them.
const (
	CodeRoomIDMissing  = 1001
	CodeRoomNotFound   = 1002
	CodeRoomFull       = 1003
	CodeNotYourTurn    = 1004
	CodeFieldRange     = 1005
	CodeFieldOccupied  = 1006
	CodeFieldMissing   = 1007
	CodeNotInRoom      = 1008
	CodeGameNotStarted = 1009
)

// Rejection is a client-caused validation failure. Key selects the message in the catalog.
type Rejection struct {
	Code int
	Key  string
}

func (r *Rejection) Error() string { return fmt.Sprintf("rejected %d: %s", r.Code, r.Key) }

var (
	ErrRoomIDMissing  = &Rejection{Code: CodeRoomIDMissing, Key: "room_id_missing"}
	ErrRoomNotFound   = &Rejection{Code: CodeRoomNotFound, Key: "room_not_found"}
	ErrRoomFull       = &Rejection{Code: CodeRoomFull, Key: "room_full"}
	ErrNotYourTurn    = &Rejection{Code: CodeNotYourTurn, Key: "not_your_turn"}
	ErrFieldRange     = &Rejection{Code: CodeFieldRange, Key: "field_out_of_range"}
	ErrFieldOccupied  = &Rejection{Code: CodeFieldOccupied, Key: "field_occupied"}
	ErrFieldMissing   = &Rejection{Code: CodeFieldMissing, Key: "field_missing"}
	ErrNotInRoom      = &Rejection{Code: CodeNotInRoom, Key: "not_in_room"}
	ErrGameNotStarted = &Rejection{Code: CodeGameNotStarted, Key: "game_not_started"}
)
