package lobby

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/turn"
	"github.com/DoyleJ11/blokus-relay/internal/types"
)

type Msg interface{ isLobbyMsg() }

// Join admits a connection. The lobby writes joined:game and the catch-up
// snapshot to Outbox before any later broadcast, then answers on Reply.
type Join struct {
	ClientID string
	Outbox   chan<- types.ServerMessage
	// Drop is called if the lobby gives up on a client whose outbox is full.
	Drop func()
	// Reply, if set, must have room for one value.
	Reply chan turn.Seat
}

func (Join) isLobbyMsg() {}

// Leave releases the client's seat. Done, if set, is closed once the lobby
// has dropped the client; nothing is written to its outbox after that.
type Leave struct {
	ClientID string
	Done     chan struct{}
}

func (Leave) isLobbyMsg() {}

// SubmitTurns carries a client's full log: the canonical log plus one new turn.
type SubmitTurns struct {
	ClientID string
	Turns    turn.Log
}

func (SubmitTurns) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	GameID     string
	Seats      [turn.MaxSeats]bool
	Spectators int
	Turns      turn.Log
}

// Stats is readable from any goroutine without going through the inbox.
type Stats struct {
	Occupants    int
	Turns        int
	LastActivity time.Time
}

// TurnSink receives every accepted turn. It must not block.
type TurnSink interface {
	TurnAccepted(gameID, sessionID string, index int, t turn.Turn)
}

type Options struct {
	// NotifyRejections sends rejected:turn to the submitter of a divergent log
	// instead of dropping it silently.
	NotifyRejections bool
	Sink             TurnSink
	Logger           *zap.Logger
}

type member struct {
	outbox chan<- types.ServerMessage
	drop   func()
	seat   turn.Seat
}

type Lobby struct {
	id        string
	sessionID string
	inbox     chan Msg
	log       turn.Log
	seats     [turn.MaxSeats]string
	clients   map[string]*member
	opts      Options
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	occupants    atomic.Int32
	turns        atomic.Int32
	lastActivity atomic.Int64
}

func NewLobby(parent context.Context, gameID string, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	sessionID := uuid.NewString()

	l := &Lobby{
		id:        gameID,
		sessionID: sessionID,
		inbox:     make(chan Msg, 64), // Small buffer
		log:       turn.Log{},
		clients:   make(map[string]*member),
		opts:      opts,
		logger:    opts.Logger.With(zap.String("game_id", gameID), zap.String("session_id", sessionID)),
		ctx:       ctx,
		cancel:    cancel,
	}
	l.touch()

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			l.touch()
			switch msg := m.(type) {
			case Join:
				l.join(msg)

			case Leave:
				l.leave(msg.ClientID)
				if msg.Done != nil {
					close(msg.Done)
				}

			case SubmitTurns:
				l.submit(msg)

			case GetState:
				msg.Reply <- l.view()

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) join(msg Join) {
	// A repeated join from the same client starts over with a fresh seat.
	if _, ok := l.clients[msg.ClientID]; ok {
		l.leave(msg.ClientID)
	}

	seat := turn.NoSeat
	for i, holder := range l.seats {
		if holder == "" {
			seat = turn.Seat(i)
			l.seats[i] = msg.ClientID
			break
		}
	}

	m := &member{outbox: msg.Outbox, drop: msg.Drop, seat: seat}
	l.clients[msg.ClientID] = m
	l.occupants.Store(int32(len(l.clients)))

	delivered := l.send(msg.ClientID, m, types.Joined(seat)) &&
		l.send(msg.ClientID, m, types.Snapshot(l.log))
	if !delivered {
		seat = turn.NoSeat
	}
	if msg.Reply != nil {
		msg.Reply <- seat
	}
	if delivered {
		l.logger.Info("client joined", zap.String("client_id", msg.ClientID), zap.Int("seat", int(seat)))
	}
}

func (l *Lobby) leave(clientID string) {
	m, ok := l.clients[clientID]
	if !ok {
		return
	}
	if m.seat.Valid() && l.seats[m.seat] == clientID {
		l.seats[m.seat] = ""
	}
	delete(l.clients, clientID)
	l.occupants.Store(int32(len(l.clients)))
	l.logger.Info("client left", zap.String("client_id", clientID), zap.Int("seat", int(m.seat)))
}

// submit is the append protocol: accept iff everything but the last turn
// equals the canonical log.
func (l *Lobby) submit(msg SubmitTurns) {
	m, ok := l.clients[msg.ClientID]
	if !ok {
		return
	}

	if !msg.Turns.Extends(l.log) {
		l.logger.Debug("divergent submission dropped",
			zap.String("client_id", msg.ClientID),
			zap.Int("submitted_len", len(msg.Turns)),
			zap.Int("canonical_len", len(l.log)))
		if l.opts.NotifyRejections {
			l.send(msg.ClientID, m, types.Rejected(types.ReasonDivergent, nil, l.log))
		}
		return
	}

	l.log = msg.Turns.Clone()
	l.turns.Store(int32(len(l.log)))
	last, _ := l.log.Last()
	if l.opts.Sink != nil {
		l.opts.Sink.TurnAccepted(l.id, l.sessionID, len(l.log)-1, last)
	}
	l.logger.Debug("turn accepted", zap.Int("turn_index", len(l.log)-1), zap.Stringer("turn", last))
	l.broadcast(types.Snapshot(l.log))
}

func (l *Lobby) view() View {
	v := View{GameID: l.id, Turns: l.log.Clone()}
	for i, holder := range l.seats {
		v.Seats[i] = holder != ""
	}
	for _, m := range l.clients {
		if !m.seat.Valid() {
			v.Spectators++
		}
	}
	return v
}

func (l *Lobby) shutdown() {
	for id, m := range l.clients {
		if m.drop != nil {
			m.drop() // Tell client no more snapshots
		}
		delete(l.clients, id)
	}
	l.seats = [turn.MaxSeats]string{}
	l.occupants.Store(0)
	l.cancel()
}

func (l *Lobby) broadcast(msg types.ServerMessage) {
	for id, m := range l.clients {
		l.send(id, m, msg)
	}
}

// send never blocks the lobby. A client that cannot keep up is removed and torn down.
func (l *Lobby) send(clientID string, m *member, msg types.ServerMessage) bool {
	select {
	case m.outbox <- msg:
		return true
	default:
		l.logger.Warn("client outbox full, dropping client", zap.String("client_id", clientID))
		l.leave(clientID)
		if m.drop != nil {
			m.drop()
		}
		return false
	}
}

func (l *Lobby) touch() { l.lastActivity.Store(time.Now().UnixNano()) }

// Inbox exposes the raw inbox for tests. Prefer Send from other goroutines.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers msg unless ctx ends or the lobby has shut down first.
func (l *Lobby) Send(ctx context.Context, msg Msg) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- msg:
		return true
	case <-l.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) ID() string { return l.id }

func (l *Lobby) Stats() Stats {
	return Stats{
		Occupants:    int(l.occupants.Load()),
		Turns:        int(l.turns.Load()),
		LastActivity: time.Unix(0, l.lastActivity.Load()),
	}
}
