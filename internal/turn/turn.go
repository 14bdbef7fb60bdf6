package turn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrMalformedTurn = errors.New("malformed turn")

// MaxSeats is the number of player slots in a game.
const MaxSeats = 4

// Seat is a player slot in [0, MaxSeats). NoSeat marks a spectator.
type Seat int

const NoSeat Seat = -1

func (s Seat) Valid() bool { return s >= 0 && s < MaxSeats }

func (s Seat) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(s))), nil
}

func (s *Seat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = NoSeat
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = Seat(n)
	return nil
}

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Turn is either a placement or a pass. The zero value of the placement
// fields is meaningful only when Pass is false.
type Turn struct {
	Player    Seat
	Pass      bool
	Piece     int
	Flipped   bool
	Rotations int
	Position  Position
}

func Place(player Seat, piece int, flipped bool, rotations int, pos Position) Turn {
	return Turn{Player: player, Piece: piece, Flipped: flipped, Rotations: rotations, Position: pos}
}

func PassTurn(player Seat) Turn {
	return Turn{Player: player, Pass: true}
}

func (t Turn) String() string {
	if t.Pass {
		return fmt.Sprintf("pass(p%d)", t.Player)
	}
	return fmt.Sprintf("place(p%d piece=%d flip=%t rot=%d @%d,%d)",
		t.Player, t.Piece, t.Flipped, t.Rotations, t.Position.Row, t.Position.Col)
}

// Validate checks the variant shape only; legality is the rules engine's job.
func (t Turn) Validate() error {
	if !t.Player.Valid() {
		return fmt.Errorf("%w: player %d out of range", ErrMalformedTurn, t.Player)
	}
	if t.Pass {
		if t != PassTurn(t.Player) {
			return fmt.Errorf("%w: pass carries placement fields", ErrMalformedTurn)
		}
		return nil
	}
	if t.Piece < 0 {
		return fmt.Errorf("%w: piece %d", ErrMalformedTurn, t.Piece)
	}
	if t.Rotations < 0 || t.Rotations > 3 {
		return fmt.Errorf("%w: rotations %d", ErrMalformedTurn, t.Rotations)
	}
	return nil
}

type placementWire struct {
	Player    Seat     `json:"player"`
	Piece     int      `json:"piece"`
	Flipped   bool     `json:"flipped"`
	Rotations int      `json:"rotations"`
	Position  Position `json:"position"`
}

type passWire struct {
	Player Seat `json:"player"`
	IsPass bool `json:"isPass"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	if t.Pass {
		return json.Marshal(passWire{Player: t.Player, IsPass: true})
	}
	return json.Marshal(placementWire{
		Player:    t.Player,
		Piece:     t.Piece,
		Flipped:   t.Flipped,
		Rotations: t.Rotations,
		Position:  t.Position,
	})
}

// inbound uses pointers so missing required fields can be told apart from zeros.
type inbound struct {
	Player    *int `json:"player"`
	IsPass    bool `json:"isPass"`
	Piece     *int `json:"piece"`
	Flipped   bool `json:"flipped"`
	Rotations int  `json:"rotations"`
	Position  *struct {
		Row *int `json:"row"`
		Col *int `json:"col"`
	} `json:"position"`
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTurn, err)
	}
	if in.Player == nil {
		return fmt.Errorf("%w: missing player", ErrMalformedTurn)
	}

	var out Turn
	if in.IsPass {
		if in.Piece != nil || in.Position != nil {
			return fmt.Errorf("%w: pass carries placement fields", ErrMalformedTurn)
		}
		out = PassTurn(Seat(*in.Player))
	} else {
		if in.Piece == nil {
			return fmt.Errorf("%w: missing piece", ErrMalformedTurn)
		}
		if in.Position == nil || in.Position.Row == nil || in.Position.Col == nil {
			return fmt.Errorf("%w: missing position", ErrMalformedTurn)
		}
		out = Place(Seat(*in.Player), *in.Piece, in.Flipped, in.Rotations,
			Position{Row: *in.Position.Row, Col: *in.Position.Col})
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*t = out
	return nil
}
