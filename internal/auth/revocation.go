package auth

import (
	"sync"
	"time"
)

// RevocationList remembers revoked token ids until their expiry.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewRevocationList() *RevocationList {
	return &RevocationList{entries: make(map[string]time.Time)}
}

func (l *RevocationList) Revoke(jti string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[jti] = expiresAt
}

func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[jti]
	return ok
}

// CleanExpired drops entries whose tokens have expired and returns how
// many were removed.
func (l *RevocationList) CleanExpired(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for jti, exp := range l.entries {
		if now.After(exp) {
			delete(l.entries, jti)
			removed++
		}
	}
	return removed
}

func (l *RevocationList) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
