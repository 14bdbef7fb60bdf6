package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/blokus-relay/internal/engine"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

func at(row, col int) turn.Position { return turn.Position{Row: row, Col: col} }

func openingLog() turn.Log {
	return turn.Log{
		turn.Place(0, 0, false, 0, at(0, 0)),
		turn.Place(1, 1, false, 0, at(0, 18)),
		turn.Place(2, 7, false, 0, at(18, 18)),
		turn.Place(3, 2, false, 1, at(17, 0)),
	}
}

func joined(t *testing.T, seat turn.Seat) *Replica {
	t.Helper()
	r := New(engine.Rules{}, nil)
	r.Reset("g1")
	r.SetSeat(seat)
	return r
}

func replayed(t *testing.T, log turn.Log) engine.State {
	t.Helper()
	s, _ := engine.Replay(log)
	return s
}

func TestReconcile_FirstMoveIsIncremental(t *testing.T) {
	r := joined(t, 0)

	out := r.Reconcile(turn.Log{})
	assert.Equal(t, Noop, out.Mode)

	first := openingLog()[0]
	candidate, cells, err := r.Prepare(first)
	require.NoError(t, err)
	assert.Equal(t, turn.Log{first}, candidate)
	assert.Len(t, cells, 1)

	// Nothing is displayed until the relay echoes the turn back.
	assert.Empty(t, r.Log())
	assert.Equal(t, engine.NewGame(), r.State())

	out = r.Reconcile(candidate)
	assert.Equal(t, Incremental, out.Mode)
	assert.Equal(t, 1, out.Applied)
	assert.True(t, out.Landed)
	assert.False(t, out.Superseded)
	assert.True(t, engine.ContainsEvent(out.Events, engine.EvtPiecePlaced))
	assert.Equal(t, turn.Seat(1), r.State().Current)
}

func TestReconcile_ReconnectRebuilds(t *testing.T) {
	full := openingLog()
	r := joined(t, 2)
	r.Reconcile(full[:1])
	r.Reconcile(full[:2])

	out := r.Reconcile(full)
	assert.Equal(t, Rebuild, out.Mode)
	assert.Equal(t, 4, out.Applied)
	assert.Empty(t, out.Rejected)
	assert.Equal(t, full, r.Log())
	assert.Equal(t, replayed(t, full), r.State())
}

func TestReconcile_ShorterSnapshotRebuilds(t *testing.T) {
	full := openingLog()
	r := joined(t, 0)
	r.Reconcile(full[:1])
	r.Reconcile(full[:2])

	out := r.Reconcile(turn.Log{})
	assert.Equal(t, Rebuild, out.Mode)
	assert.Equal(t, engine.NewGame(), r.State())
}

func TestReconcile_RaceSupersedesPendingTurn(t *testing.T) {
	r := joined(t, 0)
	mine := turn.Place(0, 0, false, 0, at(0, 0))
	_, _, err := r.Prepare(mine)
	require.NoError(t, err)

	// Another connection holding seat 0 got there first.
	theirs := turn.Place(0, 1, false, 0, at(0, 0))
	out := r.Reconcile(turn.Log{theirs})
	assert.Equal(t, Incremental, out.Mode)
	assert.True(t, out.Superseded)
	assert.False(t, out.Landed)

	out = r.Reconcile(turn.Log{theirs})
	assert.Equal(t, Noop, out.Mode)
	assert.False(t, out.Superseded)
}

func TestReconcile_PassIsIncremental(t *testing.T) {
	full := openingLog()
	r := joined(t, 0)
	r.Reconcile(full)

	pass, _, err := r.Prepare(turn.PassTurn(0))
	require.NoError(t, err)
	out := r.Reconcile(pass)
	assert.Equal(t, Incremental, out.Mode)
	assert.True(t, engine.ContainsEvent(out.Events, engine.EvtPlayerPassed))
	assert.True(t, r.State().Passed[0])
	assert.Equal(t, turn.Seat(1), r.State().Current)
}

func TestReconcile_ReplayIsIdempotent(t *testing.T) {
	full := openingLog()

	incremental := joined(t, 0)
	for i := range full {
		out := incremental.Reconcile(full[:i+1])
		require.Equal(t, Incremental, out.Mode)
	}

	rebuilt := joined(t, 0)
	rebuilt.Reconcile(turn.Log{turn.PassTurn(0)})
	out := rebuilt.Reconcile(full)
	require.Equal(t, Rebuild, out.Mode)

	again := joined(t, 0)
	again.Reconcile(full)

	assert.Equal(t, incremental.State(), rebuilt.State())
	assert.Equal(t, rebuilt.State(), again.State())
}

func TestReconcile_SkipsRejectedTurns(t *testing.T) {
	full := openingLog()
	// Seat 3 out of order, then the real opening.
	snapshot := turn.Log{full[0], turn.PassTurn(3), full[1]}

	r := joined(t, 0)
	out := r.Reconcile(snapshot)
	assert.Equal(t, Rebuild, out.Mode)
	assert.Equal(t, []int{1}, out.Rejected)
	assert.Equal(t, 2, out.Applied)
	assert.Equal(t, snapshot, r.Log())
	assert.Equal(t, replayed(t, snapshot), r.State())

	// An incremental turn the engine refuses is skipped too.
	bad := snapshot.Append(turn.Place(2, 0, false, 0, at(5, 5)))
	out = r.Reconcile(bad)
	assert.Equal(t, Incremental, out.Mode)
	assert.Equal(t, []int{3}, out.Rejected)
	assert.Equal(t, replayed(t, bad), r.State())
}

func TestPrepare_Errors(t *testing.T) {
	fresh := New(engine.Rules{}, nil)
	_, _, err := fresh.Prepare(turn.PassTurn(0))
	assert.ErrorIs(t, err, ErrNotJoined)

	spectator := joined(t, turn.NoSeat)
	_, _, err = spectator.Prepare(turn.PassTurn(0))
	assert.ErrorIs(t, err, ErrNotSeated)

	seated := joined(t, 1)
	_, _, err = seated.Prepare(turn.PassTurn(0))
	assert.ErrorIs(t, err, ErrWrongSeat)

	_, _, err = seated.Prepare(turn.PassTurn(1))
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.ErrorIs(t, err, engine.ErrWrongTurn)

	first := joined(t, 0)
	_, _, err = first.Prepare(turn.Place(0, 0, false, 0, at(5, 5)))
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.ErrorIs(t, err, engine.ErrIllegalPlacement)
}

func TestReset_ClearsEverything(t *testing.T) {
	r := joined(t, 0)
	r.Reconcile(openingLog())
	r.Reset("g2")

	assert.Equal(t, "g2", r.GameID())
	assert.Equal(t, turn.NoSeat, r.Seat())
	assert.Empty(t, r.Log())
	assert.Equal(t, engine.NewGame(), r.State())
}
