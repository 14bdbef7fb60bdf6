package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/engine"
	"github.com/DoyleJ11/blokus-relay/internal/hub"
	"github.com/DoyleJ11/blokus-relay/internal/lobby"
	"github.com/DoyleJ11/blokus-relay/internal/replica"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
	"github.com/DoyleJ11/blokus-relay/internal/types"
	"github.com/DoyleJ11/blokus-relay/internal/ws"
)

func relayURL(t *testing.T, opts lobby.Options) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, hub.Options{Lobby: opts})
	srv := httptest.NewServer(ws.Handler(h, ws.Options{}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := Dial(ctx, url, engine.Rules{}, nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
		<-done
	})
	return c
}

func next(t *testing.T, c *Client, typ string) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-c.Updates():
			require.True(t, ok, "updates closed waiting for %s", typ)
			if u.Type == typ {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func join(t *testing.T, c *Client, gameID string) turn.Seat {
	t.Helper()
	require.NoError(t, c.JoinGame(context.Background(), gameID))
	u := next(t, c, types.EvtJoinedGame)
	next(t, c, types.EvtTakeTurn)
	return u.Seat
}

func TestClient_PlayersConverge(t *testing.T) {
	url := relayURL(t, lobby.Options{})
	ctx := context.Background()
	a, b := connect(t, url), connect(t, url)

	require.NoError(t, a.CreateGame(ctx, "g1"))
	assert.Equal(t, turn.Seat(0), join(t, a, "g1"))
	assert.Equal(t, turn.Seat(1), join(t, b, "g1"))

	cells, err := a.Place(ctx, 0, false, 0, turn.Position{Row: 0, Col: 0})
	require.NoError(t, err)
	assert.Equal(t, []turn.Position{{Row: 0, Col: 0}}, cells)

	ua := next(t, a, types.EvtTakeTurn)
	assert.Equal(t, replica.Incremental, ua.Outcome.Mode)
	assert.True(t, ua.Outcome.Landed)
	ub := next(t, b, types.EvtTakeTurn)
	assert.Equal(t, replica.Incremental, ub.Outcome.Mode)

	assert.Equal(t, a.Replica().Log(), b.Replica().Log())
	assert.Equal(t, a.Replica().State(), b.Replica().State())
	assert.Equal(t, turn.Seat(1), b.Replica().State().Current)
}

func TestClient_LateJoinerRebuilds(t *testing.T) {
	url := relayURL(t, lobby.Options{})
	ctx := context.Background()
	a, b := connect(t, url), connect(t, url)

	require.NoError(t, a.CreateGame(ctx, "g1"))
	join(t, a, "g1")
	join(t, b, "g1")
	_, err := a.Place(ctx, 0, false, 0, turn.Position{Row: 0, Col: 0})
	require.NoError(t, err)
	next(t, a, types.EvtTakeTurn)
	next(t, b, types.EvtTakeTurn)
	_, err = b.Place(ctx, 1, false, 0, turn.Position{Row: 0, Col: 18})
	require.NoError(t, err)
	next(t, a, types.EvtTakeTurn)

	late := connect(t, url)
	require.NoError(t, late.JoinGame(ctx, "g1"))
	u := next(t, late, types.EvtJoinedGame)
	assert.Equal(t, turn.Seat(2), u.Seat)
	assert.Equal(t, "g1", u.GameID)

	snap := next(t, late, types.EvtTakeTurn)
	assert.Equal(t, replica.Rebuild, snap.Outcome.Mode)
	assert.Equal(t, 2, snap.Outcome.Applied)
	assert.Equal(t, a.Replica().State(), late.Replica().State())
}

func TestClient_OutOfTurnSubmitIsRefusedLocally(t *testing.T) {
	url := relayURL(t, lobby.Options{})
	ctx := context.Background()
	a, b := connect(t, url), connect(t, url)

	require.NoError(t, a.CreateGame(ctx, "g1"))
	join(t, a, "g1")
	join(t, b, "g1")

	err := b.Pass(ctx)
	assert.ErrorIs(t, err, replica.ErrProbeFailed)
	assert.ErrorIs(t, err, engine.ErrWrongTurn)
}

func TestClient_NonexistentGame(t *testing.T) {
	url := relayURL(t, lobby.Options{})
	a := connect(t, url)

	require.NoError(t, a.JoinGame(context.Background(), "missing"))
	u := next(t, a, types.EvtNonexistentGame)
	assert.Equal(t, "missing", u.GameID)
}

func TestClient_DivergentRejectionCatchesUp(t *testing.T) {
	url := relayURL(t, lobby.Options{NotifyRejections: true})
	ctx := context.Background()
	a, b := connect(t, url), connect(t, url)

	require.NoError(t, a.CreateGame(ctx, "g1"))
	join(t, a, "g1")
	join(t, b, "g1")

	// Both seat 0 candidates are built on the empty log; only the first lands.
	_, err := a.Place(ctx, 0, false, 0, turn.Position{Row: 0, Col: 0})
	require.NoError(t, err)
	first := next(t, a, types.EvtTakeTurn)
	require.True(t, first.Outcome.Landed)

	stale := turn.Log{turn.Place(0, 1, false, 0, turn.Position{Row: 0, Col: 0})}
	raw, err := stale.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, a.send(ctx, types.ClientMessage{Type: types.EvtTakeTurn, Turns: raw}))

	u := next(t, a, types.EvtRejectedTurn)
	assert.Equal(t, types.ReasonDivergent, u.Reason)
	assert.Equal(t, replica.Noop, u.Outcome.Mode)
	assert.Len(t, a.Replica().Log(), 1)
}

func TestClient_DropsSnapshotsOutsideAGame(t *testing.T) {
	c := &Client{replica: replica.New(engine.Rules{}, nil), log: zap.NewNop()}
	late := turn.Log{turn.PassTurn(0)}

	_, ok := c.handle(types.Snapshot(late))
	assert.False(t, ok)
	assert.Empty(t, c.Replica().Log())

	c.joining = "g1"
	_, ok = c.handle(types.Joined(0))
	require.True(t, ok)
	u, ok := c.handle(types.Snapshot(late))
	require.True(t, ok)
	assert.Equal(t, replica.Incremental, u.Outcome.Mode)
	assert.Equal(t, late, c.Replica().Log())
}

func TestClient_LeaveThenJoinAnotherRoom(t *testing.T) {
	url := relayURL(t, lobby.Options{})
	ctx := context.Background()
	a, b := connect(t, url), connect(t, url)

	require.NoError(t, a.CreateGame(ctx, "g1"))
	require.NoError(t, a.CreateGame(ctx, "g2"))
	join(t, a, "g1")
	join(t, b, "g1")
	_, err := a.Place(ctx, 0, false, 0, turn.Position{Row: 0, Col: 0})
	require.NoError(t, err)
	next(t, b, types.EvtTakeTurn)

	require.NoError(t, b.LeaveGame(ctx))
	assert.Equal(t, turn.Seat(0), join(t, b, "g2"))
	assert.Equal(t, "g2", b.Replica().GameID())
	assert.Empty(t, b.Replica().Log())
}
