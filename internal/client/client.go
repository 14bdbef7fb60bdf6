package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/replica"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
	"github.com/DoyleJ11/blokus-relay/internal/types"
)

// Update is what Run reports for each relay message.
type Update struct {
	Type   string
	GameID string
	// Seat is set for joined:game; NoSeat means spectator.
	Seat turn.Seat
	// Outcome is set for take:turn.
	Outcome replica.Outcome
	Reason  string
	Error   string
}

type Client struct {
	conn    *websocket.Conn
	replica *replica.Replica
	log     *zap.Logger
	updates chan Update

	mu      sync.Mutex
	joining string
}

func Dial(ctx context.Context, url string, rules replica.Rules, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{
		conn:    conn,
		replica: replica.New(rules, logger),
		log:     logger.Named("client"),
		updates: make(chan Update, 32),
	}, nil
}

func (c *Client) Replica() *replica.Replica { return c.replica }

// Updates is closed when Run returns. Run blocks while it is full.
func (c *Client) Updates() <-chan Update { return c.updates }

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) CreateGame(ctx context.Context, gameID string) error {
	return c.send(ctx, types.ClientMessage{Type: types.EvtCreateGame, GameID: gameID})
}

// JoinGame asks for a seat. The replica is reset once the relay confirms.
func (c *Client) JoinGame(ctx context.Context, gameID string) error {
	c.mu.Lock()
	c.joining = gameID
	c.mu.Unlock()
	return c.send(ctx, types.ClientMessage{Type: types.EvtJoinGame, GameID: gameID})
}

func (c *Client) LeaveGame(ctx context.Context) error {
	if err := c.send(ctx, types.ClientMessage{Type: types.EvtLeaveGame}); err != nil {
		return err
	}
	c.replica.Reset("")
	return nil
}

// Submit probes t locally and sends the extended log. It returns the cells t
// would cover; the replica only changes when the relay broadcasts.
func (c *Client) Submit(ctx context.Context, t turn.Turn) ([]turn.Position, error) {
	candidate, cells, err := c.replica.Prepare(t)
	if err != nil {
		return nil, err
	}
	raw, err := candidate.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := c.send(ctx, types.ClientMessage{Type: types.EvtTakeTurn, Turns: raw}); err != nil {
		return nil, err
	}
	return cells, nil
}

func (c *Client) Place(ctx context.Context, piece int, flipped bool, rotations int, pos turn.Position) ([]turn.Position, error) {
	return c.Submit(ctx, turn.Place(c.replica.Seat(), piece, flipped, rotations, pos))
}

func (c *Client) Pass(ctx context.Context) error {
	_, err := c.Submit(ctx, turn.PassTurn(c.replica.Seat()))
	return err
}

func (c *Client) send(ctx context.Context, msg types.ClientMessage) error {
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Run reads relay messages until ctx ends or the connection closes.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)
	for {
		var msg types.ServerMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		u, ok := c.handle(msg)
		if !ok {
			continue
		}
		select {
		case c.updates <- u:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) handle(msg types.ServerMessage) (Update, bool) {
	u := Update{Type: msg.Type, GameID: msg.GameID, Seat: turn.NoSeat, Reason: msg.Reason, Error: msg.Error}

	switch msg.Type {
	case types.EvtJoinedGame:
		c.mu.Lock()
		gameID := c.joining
		c.mu.Unlock()
		// A null player decodes to a nil pointer.
		if msg.Player != nil {
			u.Seat = *msg.Player
		}
		c.replica.Reset(gameID)
		c.replica.SetSeat(u.Seat)
		u.GameID = gameID
		c.log.Debug("joined", zap.String("game_id", gameID), zap.Int("seat", int(u.Seat)))

	case types.EvtTakeTurn:
		// Frames from a room already left can still be in flight.
		if c.replica.GameID() == "" {
			c.log.Debug("snapshot outside a game dropped")
			return Update{}, false
		}
		var snapshot turn.Log
		if msg.Turns != nil {
			snapshot = *msg.Turns
		}
		u.Outcome = c.replica.Reconcile(snapshot)
		u.GameID = c.replica.GameID()
		if len(u.Outcome.Rejected) > 0 {
			c.log.Warn("snapshot contained turns the engine rejected", zap.Ints("indexes", u.Outcome.Rejected))
		}

	case types.EvtRejectedTurn:
		// A divergent rejection carries the canonical log; catch up with it.
		if msg.Turns != nil && c.replica.GameID() != "" {
			u.Outcome = c.replica.Reconcile(*msg.Turns)
		}

	case types.EvtNonexistentGame, types.EvtError:

	default:
		c.log.Debug("unknown message type", zap.String("type", msg.Type))
		return Update{}, false
	}
	return u, true
}
