package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// ErrNotAuthenticated is returned when an operation needs a user id and the
// request carries no session. Callers must never fall back to a shared scope.
var ErrNotAuthenticated = errors.New("not authenticated")

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	EmailKey  contextKey = "email"
	ClaimsKey contextKey = "claims"
)

// WithClaims stores the session claims on ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, c.UserID)
	ctx = context.WithValue(ctx, EmailKey, c.Email)
	return context.WithValue(ctx, ClaimsKey, c)
}

// GetUserID returns the authenticated user id or "".
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(ClaimsKey).(*Claims)
	return c
}

// RequireUserID returns the session's user id or ErrNotAuthenticated.
func RequireUserID(ctx context.Context) (string, error) {
	if id := GetUserID(ctx); id != "" {
		return id, nil
	}
	return "", ErrNotAuthenticated
}

type EventType string

const (
	EventSignedUp  EventType = "signed_up"
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

type AuthEvent struct {
	Type EventType
	User core.User
	At   time.Time
}

type Listener func(ctx context.Context, ev AuthEvent) error

type UserReader interface {
	GetUser(ctx context.Context, id string) (core.User, error)
}

// Identity resolves the current user and fans out session lifecycle events.
type Identity struct {
	users UserReader

	mu        sync.RWMutex
	listeners []registration
	nextID    int
}

type registration struct {
	id int
	fn Listener
}

func NewIdentity(users UserReader) *Identity {
	return &Identity{users: users}
}

// CurrentUser loads the user bound to ctx's session.
func (i *Identity) CurrentUser(ctx context.Context) (*core.User, error) {
	id, err := RequireUserID(ctx)
	if err != nil {
		return nil, err
	}
	u, err := i.users.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load current user: %w", err)
	}
	return &u, nil
}

// OnAuthStateChange registers fn for every future event and returns a
// function that unregisters it.
func (i *Identity) OnAuthStateChange(fn Listener) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := i.nextID
	i.nextID++
	i.listeners = append(i.listeners, registration{id: id, fn: fn})
	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		i.listeners = slices.DeleteFunc(i.listeners, func(r registration) bool { return r.id == id })
	}
}

// Emit delivers ev to every listener in registration order. Listener
// failures are logged and do not stop delivery.
func (i *Identity) Emit(ctx context.Context, ev AuthEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	i.mu.RLock()
	regs := slices.Clone(i.listeners)
	i.mu.RUnlock()

	for _, r := range regs {
		if err := r.fn(ctx, ev); err != nil {
			slog.ErrorContext(ctx, "Auth listener failed",
				"event", ev.Type,
				"user_id", ev.User.ID,
				"error", err)
		}
	}
}
