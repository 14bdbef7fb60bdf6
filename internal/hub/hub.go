package hub

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/lobby"
)

var ErrLobbyExists = errors.New("lobby already exists")
var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// CreateLobby replies nil if the code is already taken.
type CreateLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// EnsureLobby creates the lobby if absent and replies with it either way.
type EnsureLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type ListLobbies struct {
	Reply chan []Entry
}

type Entry struct {
	Code  string
	Stats lobby.Stats
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Lobby lobby.Options
	// Eviction defaults to NeverEvict.
	Eviction EvictionPolicy
	// SweepEvery is how often Eviction is consulted. Zero disables sweeping.
	SweepEvery time.Duration
	Logger     *zap.Logger
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Eviction == nil {
		opts.Eviction = NeverEvict{}
	}
	if opts.Lobby.Logger == nil {
		opts.Lobby.Logger = opts.Logger
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		opts:    opts,
		log:     opts.Logger.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	var sweep <-chan time.Time
	if h.opts.SweepEvery > 0 {
		if _, never := h.opts.Eviction.(NeverEvict); !never {
			ticker := time.NewTicker(h.opts.SweepEvery)
			defer ticker.Stop()
			sweep = ticker.C
		}
	}

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-sweep:
			h.sweep()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.create(msg.Code)

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.create(msg.Code)

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					lb.Send(h.ctx, lobby.Shutdown{})
					delete(h.lobbies, msg.Code)
				}

			case ListLobbies:
				entries := make([]Entry, 0, len(h.lobbies))
				for code, lb := range h.lobbies {
					entries = append(entries, Entry{Code: code, Stats: lb.Stats()})
				}
				sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })
				msg.Reply <- entries

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(code string) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, code, h.opts.Lobby)
	h.lobbies[code] = lb
	h.log.Info("lobby created", zap.String("game_id", code), zap.Int("lobbies", len(h.lobbies)))
	return lb
}

func (h *Hub) sweep() {
	now := time.Now()
	for code, lb := range h.lobbies {
		st := lb.Stats()
		if st.Occupants > 0 || !h.opts.Eviction.Evict(code, st, now) {
			continue
		}
		lb.Send(h.ctx, lobby.Shutdown{})
		delete(h.lobbies, code)
		h.log.Info("lobby evicted", zap.String("game_id", code), zap.Int("turns", st.Turns))
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(h.ctx, lobby.Shutdown{})
	}
	clear(h.lobbies)
	h.cancel()
}

// request sends msg and waits for the reply, giving up if ctx ends or the hub stops.
func request[T any](ctx context.Context, h *Hub, msg HubMsg, reply chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Lookup returns the lobby for code, or nil if none exists.
func (h *Hub) Lookup(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return request(ctx, h, GetLobby{Code: code, Reply: reply}, reply)
}

// Ensure returns the lobby for code, creating an empty one if needed.
func (h *Hub) Ensure(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return request(ctx, h, EnsureLobby{Code: code, Reply: reply}, reply)
}

// Create fails with ErrLobbyExists instead of returning an existing lobby.
func (h *Hub) Create(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	lb, err := request(ctx, h, CreateLobby{Code: code, Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, ErrLobbyExists
	}
	return lb, nil
}

func (h *Hub) List(ctx context.Context) ([]Entry, error) {
	reply := make(chan []Entry, 1)
	return request(ctx, h, ListLobbies{Reply: reply}, reply)
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}
