package engine

import (
	"slices"

	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

func NewGame() State {
	return State{Current: 0}
}

// Rules adapts the package functions to the client replica's collaborator interface.
type Rules struct{}

func (Rules) New() State { return NewGame() }

func (Rules) Apply(s State, t turn.Turn) ([]Event, State, error) { return Apply(s, t) }

func (Rules) Probe(s State, t turn.Turn) ([]turn.Position, error) { return Probe(s, t) }

// ContainsEvent reports whether any event has the given type.
func ContainsEvent(events []Event, eventType EventType) bool {
	return slices.ContainsFunc(events, func(e Event) bool { return e.Type == eventType })
}

func IsOver(s State) bool { return s.Current == turn.NoSeat }

// Occupant returns the seat covering a cell, if any.
func Occupant(s State, row, col int) (turn.Seat, bool) {
	if !inBounds(row, col) || s.Board[row][col] == 0 {
		return turn.NoSeat, false
	}
	return turn.Seat(s.Board[row][col] - 1), true
}

// Remaining is the number of cells in a seat's unplaced pieces; lower is better.
func Remaining(s State, player turn.Seat) int {
	if !player.Valid() {
		return 0
	}
	total := 0
	for id := range NumPieces {
		if !s.Used[player][id] {
			total += PieceSize(id)
		}
	}
	return total
}

func AvailablePieces(s State, player turn.Seat) []int {
	if !player.Valid() {
		return nil
	}
	var out []int
	for id := range NumPieces {
		if !s.Used[player][id] {
			out = append(out, id)
		}
	}
	return out
}

// LegalPlacements lists every legal placement for the seat to move, largest
// pieces first. Orientations that produce the same footprint are listed once.
func LegalPlacements(s State) []turn.Turn {
	if IsOver(s) {
		return nil
	}
	player := s.Current
	pieces := AvailablePieces(s, player)
	var out []turn.Turn
	for i := len(pieces) - 1; i >= 0; i-- {
		piece := pieces[i]
		seen := map[string]bool{}
		for _, flipped := range []bool{false, true} {
			for rot := range 4 {
				key := shapeKey(orient(piece, flipped, rot))
				if seen[key] {
					continue
				}
				seen[key] = true
				for row := range BoardSize {
					for col := range BoardSize {
						t := turn.Place(player, piece, flipped, rot, turn.Position{Row: row, Col: col})
						if _, err := footprint(s, t); err == nil {
							out = append(out, t)
						}
					}
				}
			}
		}
	}
	return out
}

func shapeKey(sh shape) string {
	var grid [5][5]byte
	for _, o := range sh {
		grid[o.row][o.col] = 1
	}
	return string(grid[0][:]) + string(grid[1][:]) + string(grid[2][:]) + string(grid[3][:]) + string(grid[4][:])
}
