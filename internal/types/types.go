package types

import (
	"encoding/json"

	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

// Event names. The misspelled nonexistant:game is what deployed clients listen for.
const (
	EvtCreateGame      = "create:game"
	EvtJoinGame        = "join:game"
	EvtJoinedGame      = "joined:game"
	EvtNonexistentGame = "nonexistant:game"
	EvtTakeTurn        = "take:turn"
	EvtLeaveGame       = "leave:game"
	EvtRejectedTurn    = "rejected:turn"
	EvtError           = "error"
)

// Rejection reasons carried by rejected:turn.
const (
	ReasonMalformed = "malformed"
	ReasonDivergent = "divergent"
)

// ClientMessage keeps turns raw so malformed turns can be told apart from bad JSON.
type ClientMessage struct {
	Type   string          `json:"type"`
	GameID string          `json:"gameID,omitempty"`
	Turns  json.RawMessage `json:"turns,omitempty"`
}

type ServerMessage struct {
	Type   string     `json:"type"`
	GameID string     `json:"gameID,omitempty"`
	Player *turn.Seat `json:"player,omitempty"`
	Turns  *turn.Log  `json:"turns,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Joined always carries the player key; a spectator gets null.
func Joined(seat turn.Seat) ServerMessage {
	return ServerMessage{Type: EvtJoinedGame, Player: &seat}
}

func Snapshot(log turn.Log) ServerMessage {
	l := log.Clone()
	return ServerMessage{Type: EvtTakeTurn, Turns: &l}
}

func Nonexistent(gameID string) ServerMessage {
	return ServerMessage{Type: EvtNonexistentGame, GameID: gameID}
}

func Rejected(reason string, err error, canonical turn.Log) ServerMessage {
	msg := ServerMessage{Type: EvtRejectedTurn, Reason: reason}
	if err != nil {
		msg.Error = err.Error()
	}
	if canonical != nil {
		l := canonical.Clone()
		msg.Turns = &l
	}
	return msg
}

func Error(text string) ServerMessage {
	return ServerMessage{Type: EvtError, Error: text}
}
