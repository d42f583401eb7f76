package game

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/park285/ttt-rooms/internal/domain"
)

// ErrContract marks a coordination bug: the caller skipped a membership check or passed an
// outcome the engine does not know. Never reported to clients as a normal reply.
var ErrContract = errors.New("contract violation")

// Line is a set of three board positions.
type Line [3]int

// WinningLines are the 8 lines of a 3x3 board.
var WinningLines = [8]Line{
	{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, // rows
	{1, 4, 7}, {2, 5, 8}, {3, 6, 9}, // columns
	{1, 5, 9}, {3, 5, 7},             // diagonals
}

// minFilledForWin is the fewest filled cells for any line to be complete (3 moves + 2 replies).
const minFilledForWin = 5

// MoveResult is the outcome of placing a symbol.
type MoveResult int

const (
	MovePlaced MoveResult = iota
	MoveOccupied
	MoveOutOfRange
)

func (m MoveResult) String() string {
	switch m {
	case MovePlaced:
		return "success"
	case MoveOccupied:
		return "occupied"
	case MoveOutOfRange:
		return "range"
	default:
		return fmt.Sprintf("MoveResult(%d)", int(m))
	}
}

// Outcome is the evaluation of a move. The concrete types are Continue, Redo, Win and Draw.
type Outcome interface{ outcome() }

// Continue: the game goes on with the other player.
type Continue struct{}

// Redo: a rejected move; nothing changes, clients just resync.
type Redo struct{}

// Win: Winner completed Line.
type Win struct {
	Winner domain.Symbol
	Line   Line
}

// Draw: the board is full without a line.
type Draw struct{}

func (Continue) outcome() {}
func (Redo) outcome()     {}
func (Win) outcome()      {}
func (Draw) outcome()     {}

// Terminal reports whether o ends the current game.
func Terminal(o Outcome) bool {
	switch o.(type) {
	case Win, Draw:
		return true
	default:
		return false
	}
}

// SymbolOf returns the slot clientID occupies in r.
func SymbolOf(r *domain.Room, clientID string) (domain.Symbol, error) {
	if sym := r.OccupantOf(clientID); sym != domain.NoSymbol {
		return sym, nil
	}
	return domain.NoSymbol, fmt.Errorf("%w: player %q not in room %s", ErrContract, clientID, r.ID)
}

// IsPlayersTurn is true when no move has been made yet in this game or turn is the caller's symbol.
func IsPlayersTurn(r *domain.Room, clientID string) (bool, error) {
	sym, err := SymbolOf(r, clientID)
	if err != nil {
		return false, err
	}
	return r.Turn == domain.NoSymbol || r.Turn == sym, nil
}

// Place puts the caller's symbol on field when it is free and in range.
func Place(r *domain.Room, clientID string, field int) (MoveResult, error) {
	if field < 1 || field > domain.BoardCells {
		return MoveOutOfRange, nil
	}
	if _, taken := r.Board[field]; taken {
		return MoveOccupied, nil
	}
	sym, err := SymbolOf(r, clientID)
	if err != nil {
		return 0, err
	}
	if r.Board == nil {
		r.Board = make(map[int]domain.Symbol)
	}
	r.Board[field] = sym
	return MovePlaced, nil
}

// CheckOutcome evaluates the board after clientID moved. Only the mover's symbol can have
// completed a line.
func CheckOutcome(r *domain.Room, clientID string) (Outcome, error) {
	sym, err := SymbolOf(r, clientID)
	if err != nil {
		return nil, err
	}
	if len(r.Board) >= minFilledForWin {
		mine := make(map[int]bool, len(r.Board))
		for pos, s := range r.Board {
			if s == sym {
				mine[pos] = true
			}
		}
		for _, line := range WinningLines {
			if mine[line[0]] && mine[line[1]] && mine[line[2]] {
				return Win{Winner: sym, Line: line}, nil
			}
		}
	}
	if len(r.Board) == domain.BoardCells {
		return Draw{}, nil
	}
	return Continue{}, nil
}

// Advance applies o to the room: toggles the turn, or closes the game and updates stats.
func Advance(o Outcome, r *domain.Room, clientID string) error {
	switch v := o.(type) {
	case Continue:
		if r.Turn != domain.NoSymbol {
			r.Turn = r.Turn.Opponent()
			return nil
		}
		sym, err := SymbolOf(r, clientID)
		if err != nil {
			return err
		}
		r.Turn = sym.Opponent()
		return nil
	case Redo:
		return nil
	case Win:
		switch v.Winner {
		case domain.X:
			r.Stats.Wins.X++
		case domain.O:
			r.Stats.Wins.O++
		default:
			return fmt.Errorf("%w: win for %q", ErrContract, v.Winner)
		}
	case Draw:
	default:
		return fmt.Errorf("%w: unknown outcome %T", ErrContract, o)
	}
	r.Stats.Matches++
	r.Started = false
	return nil
}

// Reset clears turn and board and marks the game started.
func Reset(r *domain.Room, now time.Time) {
	r.Turn = domain.NoSymbol
	r.Board = make(map[int]domain.Symbol)
	r.Started = true
	r.GameStartedAt = now
	if r.Stats.PlayedSince == nil {
		t := now
		r.Stats.PlayedSince = &t
	}
}

// Positions returns the board's filled positions in ascending order.
func Positions(board map[int]domain.Symbol) []int {
	out := make([]int, 0, len(board))
	for pos := range board {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}
