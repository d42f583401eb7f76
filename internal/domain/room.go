package domain

import (
	"errors"
	"fmt"
	"time"
)

// Symbol identifies one of the two player slots.
type Symbol string

const (
	X        Symbol = "x"
	O        Symbol = "o"
	NoSymbol Symbol = ""
)

// Symbols lists slots in assignment order.
var Symbols = [2]Symbol{X, O}

func (s Symbol) Valid() bool { return s == X || s == O }

// Opponent returns the other slot; NoSymbol for anything but x/o.
func (s Symbol) Opponent() Symbol {
	switch s {
	case X:
		return O
	case O:
		return X
	default:
		return NoSymbol
	}
}

const (
	RoomIDLength = 6
	RoomIDChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	BoardCells   = 9
)

// Wins counts games won per symbol.
type Wins struct {
	X int `json:"x"`
	O int `json:"o"`
}

// Stats accumulate across all games played in a room.
type Stats struct {
	Wins        Wins       `json:"wins"`
	Matches     int        `json:"matches"`
	PlayedSince *time.Time `json:"played_since"`
}

// Room is the persisted state of one matchmaking unit.
//
// Players: a missing key is an open slot, a present key with an empty id is a slot reserved by
// matchmaking for the next joiner, and a present key with an id is an occupied slot.
type Room struct {
	ID            string            `json:"id"`
	IsPublic      bool              `json:"is_public"`
	Players       map[Symbol]string `json:"players"`
	Started       bool              `json:"started"`
	Turn          Symbol            `json:"turn"`
	Board         map[int]Symbol    `json:"fields"`
	Stats         Stats             `json:"stats"`
	LastActivity  time.Time         `json:"last_change"`
	GameStartedAt time.Time         `json:"game_started_at,omitempty"`
}

// NewRoom returns an empty lobby room.
func NewRoom(id string, public bool, now time.Time) *Room {
	return &Room{
		ID:           id,
		IsPublic:     public,
		Players:      make(map[Symbol]string),
		Board:        make(map[int]Symbol),
		LastActivity: now,
	}
}

// Claimed counts reserved plus occupied slots.
func (r *Room) Claimed() int { return len(r.Players) }

// Occupied reports whether sym has an occupant id.
func (r *Room) Occupied(sym Symbol) bool { return r.Players[sym] != "" }

// Full reports whether both slots are occupied.
func (r *Room) Full() bool { return r.Occupied(X) && r.Occupied(O) }

// OccupantOf returns the slot held by clientID, NoSymbol when absent.
func (r *Room) OccupantOf(clientID string) Symbol {
	if clientID == "" {
		return NoSymbol
	}
	for _, sym := range Symbols {
		if r.Players[sym] == clientID {
			return sym
		}
	}
	return NoSymbol
}

// Clone returns a deep copy.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Players = make(map[Symbol]string, len(r.Players))
	for k, v := range r.Players {
		cp.Players[k] = v
	}
	cp.Board = make(map[int]Symbol, len(r.Board))
	for k, v := range r.Board {
		cp.Board[k] = v
	}
	if r.Stats.PlayedSince != nil {
		t := *r.Stats.PlayedSince
		cp.Stats.PlayedSince = &t
	}
	return &cp
}

var ErrInvalidRoom = errors.New("invalid room record")

// Validate checks the record shape and invariants. Run once when a snapshot is loaded.
func (r *Room) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil", ErrInvalidRoom)
	}
	if !ValidRoomID(r.ID) {
		return fmt.Errorf("%w: bad id %q", ErrInvalidRoom, r.ID)
	}
	if len(r.Players) > 2 {
		return fmt.Errorf("%w: %s has %d players", ErrInvalidRoom, r.ID, len(r.Players))
	}
	for sym := range r.Players {
		if !sym.Valid() {
			return fmt.Errorf("%w: %s has slot %q", ErrInvalidRoom, r.ID, sym)
		}
	}
	if id := r.Players[X]; id != "" && id == r.Players[O] {
		return fmt.Errorf("%w: %s client %s holds both slots", ErrInvalidRoom, r.ID, id)
	}
	for pos, sym := range r.Board {
		if pos < 1 || pos > BoardCells {
			return fmt.Errorf("%w: %s field %d out of range", ErrInvalidRoom, r.ID, pos)
		}
		if !sym.Valid() {
			return fmt.Errorf("%w: %s field %d holds %q", ErrInvalidRoom, r.ID, pos, sym)
		}
	}
	if r.Started && !r.Full() {
		return fmt.Errorf("%w: %s started without two players", ErrInvalidRoom, r.ID)
	}
	if r.Turn != NoSymbol && (!r.Turn.Valid() || !r.Occupied(r.Turn)) {
		return fmt.Errorf("%w: %s turn %q has no occupant", ErrInvalidRoom, r.ID, r.Turn)
	}
	return nil
}

// ValidRoomID reports whether id is RoomIDLength alphanumeric characters.
func ValidRoomID(id string) bool {
	if len(id) != RoomIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
