package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/blokus-relay/internal/lobby"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
	"github.com/DoyleJ11/blokus-relay/internal/types"
)

func newHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, opts)
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newHub(t, Options{})
	reply := make(chan *lobby.Lobby, 1)

	h.Inbox() <- CreateLobby{Code: "ZED123", Reply: reply}
	lb1 := <-reply

	h.Inbox() <- GetLobby{Code: "ZED123", Reply: reply}
	lb2 := <-reply

	if lb1 == nil || lb2 == nil || lb1 != lb2 {
		t.Fatalf("expected same lobby pointer")
	}
}

func TestHub_EnsureIsIdempotent(t *testing.T) {
	h := newHub(t, Options{})
	ctx := context.Background()

	lb1, err := h.Ensure(ctx, "abc123")
	require.NoError(t, err)
	lb2, err := h.Ensure(ctx, "abc123")
	require.NoError(t, err)
	assert.Same(t, lb1, lb2)
}

func TestHub_CreateRejectsCollision(t *testing.T) {
	h := newHub(t, Options{})
	ctx := context.Background()

	_, err := h.Create(ctx, "abc123")
	require.NoError(t, err)
	_, err = h.Create(ctx, "abc123")
	assert.ErrorIs(t, err, ErrLobbyExists)
}

func TestHub_LookupMissingIsNil(t *testing.T) {
	h := newHub(t, Options{})
	lb, err := h.Lookup(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, lb)
}

func TestHub_NeverEvictKeepsEmptyLobbies(t *testing.T) {
	h := newHub(t, Options{SweepEvery: 5 * time.Millisecond})
	ctx := context.Background()

	lb, err := h.Ensure(ctx, "abc123")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	again, err := h.Lookup(ctx, "abc123")
	require.NoError(t, err)
	assert.Same(t, lb, again)
}

func TestHub_IdleTTLEvictsOnlyEmptyLobbies(t *testing.T) {
	h := newHub(t, Options{Eviction: IdleTTL(10 * time.Millisecond), SweepEvery: 5 * time.Millisecond})
	ctx := context.Background()

	empty, err := h.Ensure(ctx, "empty")
	require.NoError(t, err)
	occupied, err := h.Ensure(ctx, "occupied")
	require.NoError(t, err)

	out := make(chan types.ServerMessage, 8)
	reply := make(chan turn.Seat, 1)
	occupied.Inbox() <- lobby.Join{ClientID: "c", Outbox: out, Reply: reply}
	<-reply

	require.Eventually(t, func() bool {
		lb, err := h.Lookup(ctx, "empty")
		return err == nil && lb == nil
	}, time.Second, 5*time.Millisecond)

	select {
	case <-empty.Done():
	case <-time.After(time.Second):
		t.Fatalf("evicted lobby was not shut down")
	}

	lb, err := h.Lookup(ctx, "occupied")
	require.NoError(t, err)
	assert.Same(t, occupied, lb)
}

func TestHub_RemoveAndList(t *testing.T) {
	h := newHub(t, Options{})
	ctx := context.Background()

	for _, code := range []string{"b", "a", "c"} {
		_, err := h.Ensure(ctx, code)
		require.NoError(t, err)
	}
	h.Inbox() <- RemoveLobby{Code: "b"}

	entries, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Code)
	assert.Equal(t, "c", entries[1].Code)
}

func TestHub_ShutdownStopsLobbiesAndRequests(t *testing.T) {
	h := newHub(t, Options{})
	ctx := context.Background()

	lb, err := h.Ensure(ctx, "abc123")
	require.NoError(t, err)

	h.Shutdown()
	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby still running after hub shutdown")
	}
	<-h.Done()

	_, err = h.Lookup(ctx, "abc123")
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestIdleTTL(t *testing.T) {
	now := time.Now()
	ttl := IdleTTL(time.Minute)

	assert.False(t, ttl.Evict("x", lobby.Stats{LastActivity: now.Add(-30 * time.Second)}, now))
	assert.True(t, ttl.Evict("x", lobby.Stats{LastActivity: now.Add(-2 * time.Minute)}, now))
	assert.IsType(t, NeverEvict{}, PolicyFor(0))
	assert.Equal(t, IdleTTL(time.Minute), PolicyFor(time.Minute))
}
