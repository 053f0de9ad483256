// Package guard decides whether a route may render for the current session.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-rail-auth/session"
	"github.com/rs/zerolog/log"
)

// FromParam carries the originally requested location through the login
// page.
const FromParam = "from"

type Action int

const (
	// Pending means the session is still being established; nothing should
	// be decided yet.
	Pending Action = iota
	Render
	Redirect
)

func (a Action) String() string {
	switch a {
	case Pending:
		return "pending"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a guard check. Location is set for redirects,
// From when the redirect should bring the user back after login.
type Decision struct {
	Action   Action
	Location string
	From     string
}

// Guard routes between the login entry point and guarded content.
type Guard struct {
	LoginPath string
	HomePath  string
}

func Default() Guard {
	return Guard{LoginPath: "/login", HomePath: "/"}
}

// Check decides what to do with a navigation to location. requiresAuth
// false marks a guest-only entry point such as the login page.
func (g Guard) Check(requiresAuth bool, s session.Session, location string) Decision {
	if s.Loading {
		return Decision{Action: Pending}
	}

	if requiresAuth && !s.Authenticated {
		return Decision{
			Action:   Redirect,
			Location: g.loginURL(location),
			From:     location,
		}
	}

	if !requiresAuth && s.Authenticated {
		target := g.HomePath
		if u, err := url.Parse(location); err == nil {
			target = g.ReturnPath(u.Query())
		}
		return Decision{Action: Redirect, Location: target}
	}

	return Decision{Action: Render}
}

// ReturnPath returns the post-login destination carried in query, or
// HomePath when it is missing or points off-site.
func (g Guard) ReturnPath(query url.Values) string {
	from := query.Get(FromParam)
	if !isLocalPath(from) || strings.HasPrefix(from, g.LoginPath) {
		return g.HomePath
	}
	return from
}

func (g Guard) loginURL(from string) string {
	if !isLocalPath(from) {
		return g.LoginPath
	}
	return g.LoginPath + "?" + url.Values{FromParam: {from}}.Encode()
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}

// Source supplies the current session.
type Source interface {
	State() session.Session
}

// Middleware guards a server-rendered route. While the session is pending
// it answers 503 with Retry-After instead of redirecting.
func (g Guard) Middleware(src Source, requiresAuth bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(requiresAuth, src.State(), r.URL.RequestURI())
			switch d.Action {
			case Render:
				next.ServeHTTP(w, r)
			case Redirect:
				log.Debug().Str("path", r.URL.Path).Str("location", d.Location).Msg("Guard redirect")
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Loading", http.StatusServiceUnavailable)
			}
		})
	}
}
