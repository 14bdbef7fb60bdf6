// Package replica keeps a client's copy of a game: the last turn log the
// relay broadcast and the engine state derived from it.
//
// Every snapshot is reconciled one of three ways. A snapshot equal to the
// local log is a no-op. A snapshot that extends the local log by exactly one
// turn applies that turn alone. Anything else rebuilds the state from the
// initial position by replaying the whole snapshot. Turns the engine rejects
// are skipped on every client alike, so replicas still converge.
package replica

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/engine"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

var (
	ErrNotJoined   = errors.New("not joined to a game")
	ErrNotSeated   = errors.New("spectators cannot submit turns")
	ErrWrongSeat   = errors.New("turn is for another seat")
	ErrProbeFailed = errors.New("turn rejected by probe")
)

// Rules is the game engine as the replica sees it. Apply and Probe must not
// modify the state they are given.
type Rules interface {
	New() engine.State
	Apply(s engine.State, t turn.Turn) ([]engine.Event, engine.State, error)
	Probe(s engine.State, t turn.Turn) ([]turn.Position, error)
}

type Mode int

const (
	Noop Mode = iota
	Incremental
	Rebuild
)

func (m Mode) String() string {
	switch m {
	case Noop:
		return "noop"
	case Incremental:
		return "incremental"
	case Rebuild:
		return "rebuild"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

type Outcome struct {
	Mode Mode
	// Applied counts turns the engine accepted during this reconcile.
	Applied int
	// Rejected holds snapshot indexes the engine refused.
	Rejected []int
	// Events from the turns applied, in order.
	Events []engine.Event
	// Landed and Superseded resolve the last Prepare once the snapshot
	// reaches its index. At most one is true.
	Landed     bool
	Superseded bool
}

type pending struct {
	index int
	turn  turn.Turn
}

type Replica struct {
	mu      sync.Mutex
	rules   Rules
	logger  *zap.Logger
	gameID  string
	seat    turn.Seat
	log     turn.Log
	state   engine.State
	pending *pending
}

func New(rules Rules, logger *zap.Logger) *Replica {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replica{
		rules:  rules,
		logger: logger.Named("replica"),
		seat:   turn.NoSeat,
		log:    turn.Log{},
		state:  rules.New(),
	}
}

// Reset starts over for gameID with an empty log and no seat.
func (r *Replica) Reset(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gameID = gameID
	r.seat = turn.NoSeat
	r.log = turn.Log{}
	r.state = r.rules.New()
	r.pending = nil
}

func (r *Replica) SetSeat(seat turn.Seat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seat = seat
}

func (r *Replica) Seat() turn.Seat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seat
}

func (r *Replica) GameID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameID
}

func (r *Replica) Log() turn.Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Clone()
}

func (r *Replica) State() engine.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reconcile brings the replica up to snapshot.
func (r *Replica) Reconcile(snapshot turn.Log) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out Outcome
	switch {
	case snapshot.Equal(r.log):
		out.Mode = Noop

	case snapshot.Extends(r.log):
		out.Mode = Incremental
		last, _ := snapshot.Last()
		events, next, err := r.rules.Apply(r.state, last)
		if err != nil {
			out.Rejected = append(out.Rejected, len(snapshot)-1)
			r.logger.Warn("broadcast turn rejected by engine",
				zap.Int("turn_index", len(snapshot)-1), zap.Stringer("turn", last), zap.Error(err))
		} else {
			r.state = next
			out.Applied = 1
			out.Events = events
		}

	default:
		out.Mode = Rebuild
		state := r.rules.New()
		for i, t := range snapshot {
			events, next, err := r.rules.Apply(state, t)
			if err != nil {
				out.Rejected = append(out.Rejected, i)
				r.logger.Warn("turn rejected during replay",
					zap.Int("turn_index", i), zap.Stringer("turn", t), zap.Error(err))
				continue
			}
			state = next
			out.Applied++
			out.Events = append(out.Events, events...)
		}
		r.state = state
		r.logger.Debug("replica rebuilt", zap.String("game_id", r.gameID),
			zap.Int("turns", len(snapshot)), zap.Int("rejected", len(out.Rejected)))
	}

	if out.Mode != Noop {
		r.log = snapshot.Clone()
	}

	if p := r.pending; p != nil && len(snapshot) > p.index {
		out.Landed = snapshot[p.index] == p.turn
		out.Superseded = !out.Landed
		r.pending = nil
	}
	return out
}

// Prepare probes t against the displayed state and returns the log to submit
// along with the cells t would cover. The replica itself does not change
// until the relay broadcasts the result.
func (r *Replica) Prepare(t turn.Turn) (turn.Log, []turn.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gameID == "" {
		return nil, nil, ErrNotJoined
	}
	if !r.seat.Valid() {
		return nil, nil, ErrNotSeated
	}
	if t.Player != r.seat {
		return nil, nil, fmt.Errorf("%w: holding seat %d, turn for %d", ErrWrongSeat, r.seat, t.Player)
	}
	cells, err := r.rules.Probe(r.state, t)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	r.pending = &pending{index: len(r.log), turn: t}
	return r.log.Append(t), cells, nil
}
