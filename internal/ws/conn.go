package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/hub"
	"github.com/DoyleJ11/blokus-relay/internal/lobby"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
	"github.com/DoyleJ11/blokus-relay/internal/types"
)

// connState is the per-connection room state. Leaving returns to unbound;
// closed is terminal.
type connState int

const (
	stateUnbound connState = iota
	stateJoined
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnbound:
		return "unbound"
	case stateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// leaveTimeout bounds how long a connection waits for its old lobby to let go.
const leaveTimeout = 2 * time.Second

type room struct {
	gameID string
	lobby  *lobby.Lobby
	seat   turn.Seat
}

// connection is driven only from its read loop, so state needs no lock.
// The lobby and the read loop both write to out; the write loop drains it.
type connection struct {
	id     string
	hub    *hub.Hub
	out    chan types.ServerMessage
	cancel context.CancelFunc
	log    *zap.Logger

	state connState
	room  room
}

func (c *connection) handle(ctx context.Context, cm types.ClientMessage) {
	if c.state == stateClosed {
		return
	}
	switch cm.Type {
	case types.EvtCreateGame:
		c.createGame(ctx, cm.GameID)
	case types.EvtJoinGame:
		c.joinGame(ctx, cm.GameID)
	case types.EvtLeaveGame:
		c.leaveGame()
	case types.EvtTakeTurn:
		c.takeTurn(ctx, cm)
	default:
		c.reply(types.Error("unknown type"))
	}
}

func (c *connection) createGame(ctx context.Context, gameID string) {
	if gameID == "" {
		c.reply(types.Error("missing gameID"))
		return
	}
	if _, err := c.hub.Ensure(ctx, gameID); err != nil {
		c.log.Warn("create game failed", zap.String("game_id", gameID), zap.Error(err))
		c.reply(types.Error("create failed"))
	}
}

func (c *connection) joinGame(ctx context.Context, gameID string) {
	if gameID == "" {
		c.reply(types.Error("missing gameID"))
		return
	}
	c.leaveGame()

	lb, err := c.hub.Lookup(ctx, gameID)
	if err != nil {
		c.log.Warn("lookup failed", zap.String("game_id", gameID), zap.Error(err))
		c.reply(types.Error("join failed"))
		return
	}
	if lb == nil {
		c.reply(types.Nonexistent(gameID))
		return
	}

	reply := make(chan turn.Seat, 1)
	if !lb.Send(ctx, lobby.Join{ClientID: c.id, Outbox: c.out, Drop: c.cancel, Reply: reply}) {
		// Evicted between lookup and join.
		c.reply(types.Nonexistent(gameID))
		return
	}
	select {
	case seat := <-reply:
		c.state = stateJoined
		c.room = room{gameID: gameID, lobby: lb, seat: seat}
		c.log.Debug("joined game", zap.String("game_id", gameID), zap.Int("seat", int(seat)))
	case <-lb.Done():
		c.reply(types.Nonexistent(gameID))
	case <-ctx.Done():
		// The join may already hold a seat; give it back.
		lb.Send(context.Background(), lobby.Leave{ClientID: c.id})
	}
}

func (c *connection) leaveGame() {
	if c.state != stateJoined {
		return
	}
	// Wait until the lobby has dropped us so none of its broadcasts can
	// follow a later join into another room.
	lb, done := c.room.lobby, make(chan struct{})
	if lb.Send(context.Background(), lobby.Leave{ClientID: c.id, Done: done}) {
		timer := time.NewTimer(leaveTimeout)
		select {
		case <-done:
		case <-lb.Done():
		case <-timer.C:
			c.log.Warn("lobby did not confirm leave", zap.String("game_id", c.room.gameID))
		}
		timer.Stop()
	}
	c.log.Debug("left game", zap.String("game_id", c.room.gameID), zap.Int("seat", int(c.room.seat)))
	c.room = room{}
	c.state = stateUnbound
}

func (c *connection) takeTurn(ctx context.Context, cm types.ClientMessage) {
	if c.state != stateJoined {
		c.log.Debug("take:turn while unbound ignored")
		return
	}
	turns, err := turn.DecodeLog(cm.Turns)
	if err != nil {
		c.reply(types.Rejected(types.ReasonMalformed, err, nil))
		return
	}
	c.room.lobby.Send(ctx, lobby.SubmitTurns{ClientID: c.id, Turns: turns})
}

func (c *connection) disconnect() {
	c.leaveGame()
	c.state = stateClosed
	c.log.Info("client disconnected")
}

// reply queues a message for this connection only. A full outbox means the
// client is not reading; tear it down.
func (c *connection) reply(msg types.ServerMessage) {
	select {
	case c.out <- msg:
	default:
		c.log.Warn("outbox full, dropping client")
		c.cancel()
	}
}
