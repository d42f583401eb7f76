package game

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/ttt-rooms/internal/domain"
)

func newStartedRoom(t *testing.T) *domain.Room {
	t.Helper()
	r := domain.NewRoom("abc123", true, time.Now())
	r.Players[domain.X] = "cx"
	r.Players[domain.O] = "co"
	Reset(r, time.Now())
	return r
}

func boardOf(cells map[int]domain.Symbol) map[int]domain.Symbol {
	out := make(map[int]domain.Symbol, len(cells))
	for k, v := range cells {
		out[k] = v
	}
	return out
}

func TestCheckOutcome_WinTopRow(t *testing.T) {
	r := newStartedRoom(t)
	r.Board = boardOf(map[int]domain.Symbol{1: domain.X, 2: domain.X, 3: domain.X, 4: domain.O, 5: domain.O})
	got, err := CheckOutcome(r, "cx")
	if err != nil {
		t.Fatalf("CheckOutcome: %v", err)
	}
	win, ok := got.(Win)
	if !ok {
		t.Fatalf("expected Win, got %T", got)
	}
	if win.Winner != domain.X || win.Line != (Line{1, 2, 3}) {
		t.Fatalf("unexpected win: %+v", win)
	}
}

func TestCheckOutcome_OnlyMoverCounts(t *testing.T) {
	r := newStartedRoom(t)
	r.Board = boardOf(map[int]domain.Symbol{1: domain.X, 2: domain.X, 3: domain.X, 4: domain.O, 5: domain.O})
	got, err := CheckOutcome(r, "co")
	if err != nil {
		t.Fatalf("CheckOutcome: %v", err)
	}
	if _, ok := got.(Continue); !ok {
		t.Fatalf("expected Continue for non-completing mover, got %T", got)
	}
}

func TestCheckOutcome_BelowFiveFilledNeverWins(t *testing.T) {
	r := newStartedRoom(t)
	// not reachable in play, but the engine must not look before 5 cells are filled
	r.Board = boardOf(map[int]domain.Symbol{1: domain.X, 2: domain.X, 3: domain.X})
	got, err := CheckOutcome(r, "cx")
	if err != nil {
		t.Fatalf("CheckOutcome: %v", err)
	}
	if _, ok := got.(Continue); !ok {
		t.Fatalf("expected Continue, got %T", got)
	}
}

func TestCheckOutcome_Draw(t *testing.T) {
	r := newStartedRoom(t)
	// x o x
	// x o o
	// o x x
	r.Board = boardOf(map[int]domain.Symbol{
		1: domain.X, 2: domain.O, 3: domain.X,
		4: domain.X, 5: domain.O, 6: domain.O,
		7: domain.O, 8: domain.X, 9: domain.X,
	})
	got, err := CheckOutcome(r, "cx")
	if err != nil {
		t.Fatalf("CheckOutcome: %v", err)
	}
	if _, ok := got.(Draw); !ok {
		t.Fatalf("expected Draw, got %T", got)
	}
	if err := Advance(got, r, "cx"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if r.Stats.Matches != 1 || r.Stats.Wins.X != 0 || r.Stats.Wins.O != 0 {
		t.Fatalf("unexpected stats after draw: %+v", r.Stats)
	}
	if r.Started {
		t.Fatalf("draw must return the room to lobby")
	}
}

// Every board of x/o/empty cells: a win is reported iff the mover owns a full line.
func TestCheckOutcome_ExhaustiveBoards(t *testing.T) {
	r := newStartedRoom(t)
	cells := [3]domain.Symbol{domain.NoSymbol, domain.X, domain.O}
	total := 1
	for i := 0; i < domain.BoardCells; i++ {
		total *= 3
	}
	for n := 0; n < total; n++ {
		board := make(map[int]domain.Symbol)
		v := n
		for pos := 1; pos <= domain.BoardCells; pos++ {
			if s := cells[v%3]; s != domain.NoSymbol {
				board[pos] = s
			}
			v /= 3
		}
		if len(board) < 5 {
			continue
		}
		r.Board = board
		for _, mover := range domain.Symbols {
			want := false
			for _, line := range WinningLines {
				if board[line[0]] == mover && board[line[1]] == mover && board[line[2]] == mover {
					want = true
					break
				}
			}
			got, err := CheckOutcome(r, r.Players[mover])
			if err != nil {
				t.Fatalf("CheckOutcome: %v", err)
			}
			win, isWin := got.(Win)
			if isWin != want {
				t.Fatalf("board %v mover %s: win=%v want %v", board, mover, isWin, want)
			}
			if isWin {
				for _, pos := range win.Line {
					if board[pos] != mover {
						t.Fatalf("reported line %v not owned by %s", win.Line, mover)
					}
				}
			}
		}
	}
}

func TestAdvance_TurnAlternates(t *testing.T) {
	r := newStartedRoom(t)
	if ok, _ := IsPlayersTurn(r, "co"); !ok {
		t.Fatalf("either player may open the game")
	}
	if res, err := Place(r, "co", 5); err != nil || res != MovePlaced {
		t.Fatalf("Place: %v %v", res, err)
	}
	if err := Advance(Continue{}, r, "co"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if r.Turn != domain.X {
		t.Fatalf("turn after o opened = %q, want x", r.Turn)
	}
	if ok, _ := IsPlayersTurn(r, "co"); ok {
		t.Fatalf("o must wait for x")
	}
	if res, _ := Place(r, "cx", 1); res != MovePlaced {
		t.Fatalf("Place x: %v", res)
	}
	if err := Advance(Continue{}, r, "cx"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if r.Turn != domain.O {
		t.Fatalf("turn = %q, want o", r.Turn)
	}
}

func TestPlace_RejectsRangeAndOccupied(t *testing.T) {
	r := newStartedRoom(t)
	if res, err := Place(r, "cx", 10); err != nil || res != MoveOutOfRange {
		t.Fatalf("field 10: %v %v", res, err)
	}
	if res, _ := Place(r, "cx", 0); res != MoveOutOfRange {
		t.Fatalf("field 0: %v", res)
	}
	if len(r.Board) != 0 {
		t.Fatalf("rejected move changed the board: %v", r.Board)
	}
	if res, _ := Place(r, "cx", 3); res != MovePlaced {
		t.Fatalf("field 3: %v", res)
	}
	if res, _ := Place(r, "co", 3); res != MoveOccupied {
		t.Fatalf("occupied field 3: %v", res)
	}
	if r.Board[3] != domain.X {
		t.Fatalf("occupied cell overwritten: %v", r.Board)
	}
	turn := r.Turn
	if err := Advance(Redo{}, r, "co"); err != nil || r.Turn != turn {
		t.Fatalf("redo changed state: turn=%q err=%v", r.Turn, err)
	}
}

func TestAdvance_WinUpdatesStats(t *testing.T) {
	r := newStartedRoom(t)
	if err := Advance(Win{Winner: domain.O, Line: Line{3, 5, 7}}, r, "co"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if r.Stats.Wins.O != 1 || r.Stats.Wins.X != 0 || r.Stats.Matches != 1 || r.Started {
		t.Fatalf("unexpected room after win: %+v started=%v", r.Stats, r.Started)
	}
}

type bogusOutcome struct{ Continue }

func TestContractViolations(t *testing.T) {
	r := newStartedRoom(t)
	if _, err := SymbolOf(r, "stranger"); !errors.Is(err, ErrContract) {
		t.Fatalf("SymbolOf stranger: %v", err)
	}
	if _, err := CheckOutcome(r, "stranger"); !errors.Is(err, ErrContract) {
		t.Fatalf("CheckOutcome stranger: %v", err)
	}
	if err := Advance(nil, r, "cx"); !errors.Is(err, ErrContract) {
		t.Fatalf("Advance nil: %v", err)
	}
	if err := Advance(bogusOutcome{}, r, "cx"); !errors.Is(err, ErrContract) {
		t.Fatalf("Advance unknown: %v", err)
	}
	if err := Advance(Win{Winner: domain.NoSymbol}, r, "cx"); !errors.Is(err, ErrContract) {
		t.Fatalf("Advance empty winner: %v", err)
	}
	if r.Stats.Matches != 0 {
		t.Fatalf("failed advance mutated stats: %+v", r.Stats)
	}
}
