// Package session holds the client's authentication session: the Session
// value, the events that move it and the Manager that owns it.
package session

import (
	"errors"

	"github.com/jrsteele09/go-rail-auth/authmodel"
)

var (
	ErrNoRefreshToken = errors.New("no refresh token available")
	ErrIncompleteAuth = errors.New("incomplete authentication response")
)

// Session is the authentication state seen by the rest of the application.
// Authenticated is true exactly when User, AccessToken and RefreshToken are
// all set.
type Session struct {
	User          *authmodel.User
	AccessToken   string
	RefreshToken  string
	Authenticated bool
	Loading       bool
	Error         string
}

// Initial is the session before the credential store has been read.
func Initial() Session {
	return Session{Loading: true}
}

// Tokens returns the session's token pair.
func (s Session) Tokens() authmodel.Tokens {
	return authmodel.Tokens{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    authmodel.TokenTypeBearer,
	}
}

// Consistent reports whether Authenticated agrees with the presence of the
// user and both tokens.
func (s Session) Consistent() bool {
	complete := s.User != nil && s.AccessToken != "" && s.RefreshToken != ""
	return s.Authenticated == complete
}

func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		if u.Address != nil {
			addr := *u.Address
			u.Address = &addr
		}
		s.User = &u
	}
	return s
}
