package hub

import (
	"time"

	"github.com/DoyleJ11/blokus-relay/internal/lobby"
)

// EvictionPolicy decides whether an empty lobby may be dropped. The hub only
// asks about lobbies with no occupants.
type EvictionPolicy interface {
	Evict(code string, stats lobby.Stats, now time.Time) bool
}

// NeverEvict keeps every lobby for the life of the process.
type NeverEvict struct{}

func (NeverEvict) Evict(string, lobby.Stats, time.Time) bool { return false }

// IdleTTL evicts lobbies untouched for longer than the duration.
type IdleTTL time.Duration

func (ttl IdleTTL) Evict(_ string, stats lobby.Stats, now time.Time) bool {
	return now.Sub(stats.LastActivity) > time.Duration(ttl)
}

// PolicyFor picks IdleTTL for a positive ttl and NeverEvict otherwise.
func PolicyFor(ttl time.Duration) EvictionPolicy {
	if ttl <= 0 {
		return NeverEvict{}
	}
	return IdleTTL(ttl)
}
