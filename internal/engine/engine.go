package engine

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

var ErrWrongTurn = errors.New("not this player's turn")
var ErrUnknownPiece = errors.New("unknown piece")
var ErrPieceUsed = errors.New("piece already used")
var ErrIllegalPlacement = errors.New("illegal placement")
var ErrGameOver = errors.New("game already over")

const (
	BoardSize = 20
	NumPieces = 21
)

// Starting corner each seat's first piece must cover.
var startCorners = [turn.MaxSeats]turn.Position{
	{Row: 0, Col: 0},
	{Row: 0, Col: BoardSize - 1},
	{Row: BoardSize - 1, Col: BoardSize - 1},
	{Row: BoardSize - 1, Col: 0},
}

// State is a plain value: copying it copies the whole game.
type State struct {
	// Board holds seat+1 per cell; 0 is empty.
	Board   [BoardSize][BoardSize]int8
	Used    [turn.MaxSeats][NumPieces]bool
	Placed  [turn.MaxSeats]int
	Passed  [turn.MaxSeats]bool
	Current turn.Seat
	Applied int
}

type EventType string

const (
	EvtPiecePlaced   EventType = "PiecePlaced"
	EvtPlayerPassed  EventType = "PlayerPassed"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtGameCompleted EventType = "GameCompleted"
)

type Event struct {
	Type      EventType
	Player    turn.Seat
	Piece     int
	Positions []turn.Position
}

// Apply validates t against s and returns the resulting state. s is never modified.
func Apply(s State, t turn.Turn) ([]Event, State, error) {
	if err := t.Validate(); err != nil {
		return nil, s, err
	}
	if s.Current == turn.NoSeat {
		return nil, s, ErrGameOver
	}
	if t.Player != s.Current {
		return nil, s, fmt.Errorf("%w: seat %d to move, got %d", ErrWrongTurn, s.Current, t.Player)
	}

	newState := s
	var events []Event

	if t.Pass {
		newState.Passed[t.Player] = true
		events = append(events, Event{Type: EvtPlayerPassed, Player: t.Player})
	} else {
		cells, err := footprint(s, t)
		if err != nil {
			return nil, s, err
		}
		for _, p := range cells {
			newState.Board[p.Row][p.Col] = int8(t.Player) + 1
		}
		newState.Used[t.Player][t.Piece] = true
		newState.Placed[t.Player]++
		// Nothing left to place: the seat is finished.
		if newState.Placed[t.Player] == NumPieces {
			newState.Passed[t.Player] = true
		}
		events = append(events, Event{Type: EvtPiecePlaced, Player: t.Player, Piece: t.Piece, Positions: cells})
	}

	newState.Applied++
	newState.Current = nextSeat(newState, t.Player)
	events = append(events, Event{Type: EvtTurnAdvanced, Player: newState.Current})
	if newState.Current == turn.NoSeat {
		events = append(events, Event{Type: EvtGameCompleted})
	}
	return events, newState, nil
}

// Probe evaluates t without committing it and returns the cells it would cover.
func Probe(s State, t turn.Turn) ([]turn.Position, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if s.Current == turn.NoSeat {
		return nil, ErrGameOver
	}
	if t.Player != s.Current {
		return nil, fmt.Errorf("%w: seat %d to move, got %d", ErrWrongTurn, s.Current, t.Player)
	}
	if t.Pass {
		return nil, nil
	}
	return footprint(s, t)
}

// Replay applies turns from the initial position. Rejected turns leave the
// state untouched and their indexes are returned.
func Replay(turns turn.Log) (State, []int) {
	s := NewGame()
	var rejected []int
	for i, t := range turns {
		_, next, err := Apply(s, t)
		if err != nil {
			rejected = append(rejected, i)
			continue
		}
		s = next
	}
	return s, rejected
}

func footprint(s State, t turn.Turn) ([]turn.Position, error) {
	if t.Piece < 0 || t.Piece >= NumPieces {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPiece, t.Piece)
	}
	if s.Used[t.Player][t.Piece] {
		return nil, fmt.Errorf("%w: %d", ErrPieceUsed, t.Piece)
	}

	sh := orient(t.Piece, t.Flipped, t.Rotations)
	cells := make([]turn.Position, 0, len(sh))
	for _, o := range sh {
		cells = append(cells, turn.Position{Row: t.Position.Row + o.row, Col: t.Position.Col + o.col})
	}
	if err := checkCells(s, t.Player, cells); err != nil {
		return nil, err
	}
	return cells, nil
}

func checkCells(s State, player turn.Seat, cells []turn.Position) error {
	mine := int8(player) + 1
	first := s.Placed[player] == 0
	touchesCorner := false
	coversStart := false

	for _, p := range cells {
		if !inBounds(p.Row, p.Col) {
			return fmt.Errorf("%w: (%d,%d) off board", ErrIllegalPlacement, p.Row, p.Col)
		}
		if s.Board[p.Row][p.Col] != 0 {
			return fmt.Errorf("%w: (%d,%d) occupied", ErrIllegalPlacement, p.Row, p.Col)
		}
		if p == startCorners[player] {
			coversStart = true
		}
		for _, d := range [4]offset{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			r, c := p.Row+d.row, p.Col+d.col
			if inBounds(r, c) && s.Board[r][c] == mine {
				return fmt.Errorf("%w: (%d,%d) shares an edge with own piece", ErrIllegalPlacement, p.Row, p.Col)
			}
		}
		for _, d := range [4]offset{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
			r, c := p.Row+d.row, p.Col+d.col
			if inBounds(r, c) && s.Board[r][c] == mine {
				touchesCorner = true
			}
		}
	}

	if first && !coversStart {
		return fmt.Errorf("%w: first piece must cover the starting corner", ErrIllegalPlacement)
	}
	if !first && !touchesCorner {
		return fmt.Errorf("%w: must touch a corner of an own piece", ErrIllegalPlacement)
	}
	return nil
}

func nextSeat(s State, from turn.Seat) turn.Seat {
	for i := 1; i <= turn.MaxSeats; i++ {
		next := turn.Seat((int(from) + i) % turn.MaxSeats)
		if !s.Passed[next] {
			return next
		}
	}
	return turn.NoSeat
}

func inBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}
