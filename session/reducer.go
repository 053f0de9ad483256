package session

import "github.com/jrsteele09/go-rail-auth/authmodel"

const msgAuthFailed = "Authentication failed"

// Reduce returns the session that results from applying ev to s. It has no
// side effects.
func Reduce(s Session, ev Event) Session {
	switch e := ev.(type) {
	case Start:
		s.Loading = true
		s.Error = ""
		return s

	case Success:
		if !e.Auth.Tokens().Complete() || e.Auth.UserID == "" {
			return Reduce(s, Failure{Message: ErrIncompleteAuth.Error()})
		}
		user := authmodel.UserFromAuth(e.Auth, e.At)
		return Session{
			User:          &user,
			AccessToken:   e.Auth.AccessToken,
			RefreshToken:  e.Auth.RefreshToken,
			Authenticated: true,
		}

	case Failure:
		msg := e.Message
		if msg == "" {
			msg = msgAuthFailed
		}
		return Session{Error: msg}

	case Logout:
		return Session{}

	case ClearError:
		s.Error = ""
		return s

	case SetLoading:
		s.Loading = e.Loading
		return s

	default:
		return s
	}
}
