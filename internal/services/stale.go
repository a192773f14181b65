package services

import (
	"strings"
	"sync"
)

// StaleGuard discards results of superseded requests. Each Begin for a
// (session, view) pair invalidates the tickets issued before it.
type StaleGuard struct {
	mu   sync.Mutex
	gens map[string]uint64
}

type Ticket struct {
	guard *StaleGuard
	key   string
	gen   uint64
}

func NewStaleGuard() *StaleGuard {
	return &StaleGuard{gens: make(map[string]uint64)}
}

func (g *StaleGuard) Begin(session, view string) Ticket {
	key := session + "\x00" + view
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[key]++
	return Ticket{guard: g, key: key, gen: g.gens[key]}
}

// Current reports whether no newer request for the same view has started.
func (t Ticket) Current() bool {
	if t.guard == nil {
		return true
	}
	t.guard.mu.Lock()
	defer t.guard.mu.Unlock()
	return t.guard.gens[t.key] == t.gen
}

// Forget drops every generation held for session.
func (g *StaleGuard) Forget(session string) {
	prefix := session + "\x00"
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.gens {
		if strings.HasPrefix(k, prefix) {
			delete(g.gens, k)
		}
	}
}
