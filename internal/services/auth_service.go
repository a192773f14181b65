package services

import (
	"context"
	"fmt"
	"log/slog"

	"kharcha/internal/auth"
	"kharcha/internal/core"
)

// Session is what sign-up and log-in hand back to the client.
type Session struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

type AuthService struct {
	passwords *auth.PasswordAuthenticator
	tokens    *auth.JWTManager
	identity  *auth.Identity
}

func NewAuthService(passwords *auth.PasswordAuthenticator, tokens *auth.JWTManager, identity *auth.Identity) *AuthService {
	return &AuthService{passwords: passwords, tokens: tokens, identity: identity}
}

// SignUp registers a user, notifies auth listeners (default provisioning
// among them) and opens a session.
func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.passwords.Register(ctx, email, displayName, password)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.session(user)
	if err != nil {
		return Session{}, err
	}
	slog.InfoContext(ctx, "User signed up", "user_id", user.ID)
	s.identity.Emit(ctx, auth.AuthEvent{Type: auth.EventSignedUp, User: user})
	return sess, nil
}

func (s *AuthService) LogIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.session(user)
	if err != nil {
		return Session{}, err
	}
	s.identity.Emit(ctx, auth.AuthEvent{Type: auth.EventSignedIn, User: user})
	return sess, nil
}

// LogOut revokes the token carried by ctx.
func (s *AuthService) LogOut(ctx context.Context) error {
	claims := auth.GetClaims(ctx)
	if claims == nil {
		return auth.ErrNotAuthenticated
	}
	s.tokens.Revoke(claims)
	s.identity.Emit(ctx, auth.AuthEvent{Type: auth.EventSignedOut, User: core.User{ID: claims.UserID, Email: claims.Email}})
	return nil
}

func (s *AuthService) Me(ctx context.Context) (*core.User, error) {
	return s.identity.CurrentUser(ctx)
}

func (s *AuthService) session(user core.User) (Session, error) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, User: user}, nil
}
