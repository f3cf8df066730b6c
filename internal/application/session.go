package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNoCredentials is returned when a session is built without a usable token.
var ErrNoCredentials = errors.New("session: no credentials")

// Session is the identity supplied by the host application.
// The token is opaque to the delivery layer; when it happens to be a JWT the
// subject and expiry are read (unverified) for logging and display only.
type Session struct {
	UserID    string
	ExpiresAt time.Time
	Tokens    oauth2.TokenSource
}

// NewSession builds a session from a token source. The first token is fetched
// eagerly so a broken source fails here rather than on the first dial.
func NewSession(ts oauth2.TokenSource) (*Session, error) {
	if ts == nil {
		return nil, ErrNoCredentials
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrNoCredentials
	}

	s := &Session{Tokens: oauth2.ReuseTokenSource(tok, ts), ExpiresAt: tok.Expiry}
	s.readClaims(tok.AccessToken)
	return s, nil
}

// SessionFromToken wraps a bearer token handed over by the UI.
func SessionFromToken(accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrNoCredentials
	}
	return NewSession(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

// Expired reports whether the known expiry has passed. Unknown expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

func (s *Session) readClaims(raw string) {
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return
	}
	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return
	}
	if sub, err := claims.GetSubject(); err == nil {
		s.UserID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && s.ExpiresAt.IsZero() {
		s.ExpiresAt = exp.Time
	}
}
