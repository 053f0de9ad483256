package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-rail-auth/authapi"
	"github.com/jrsteele09/go-rail-auth/authmodel"
	"github.com/jrsteele09/go-rail-auth/client"
	"github.com/jrsteele09/go-rail-auth/notify"
	"github.com/jrsteele09/go-rail-auth/store"
	"github.com/rs/zerolog/log"
)

// Manager owns the process-wide session. It is the only writer of the
// credential store and the session handler of the client it was built with.
//
// Operations are not serialised against each other: two overlapping calls
// each apply their transition when their request resolves, and the last one
// wins.
type Manager struct {
	client   *client.Client
	api      *authapi.API
	creds    *store.Credentials
	notifier notify.Notifier
	nowTime  func() time.Time

	mu         sync.Mutex
	state      Session
	subs       map[int]func(Session)
	nextSub    int
	pending    []Session
	delivering bool
}

type Option func(*Manager)

// WithNotifier sets the sink for success notifications. Failure
// notifications are raised by the client.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates the session manager and registers it as c's session
// handler. Call Init before use and Close at shutdown.
func NewManager(c *client.Client, creds *store.Credentials, options ...Option) (*Manager, error) {
	if c == nil {
		return nil, errors.New("[NewManager] client is required")
	}
	if creds == nil {
		return nil, errors.New("[NewManager] credentials are required")
	}

	m := &Manager{
		client:   c,
		api:      authapi.New(c),
		creds:    creds,
		notifier: notify.Nop{},
		nowTime:  time.Now,
		state:    Initial(),
		subs:     make(map[int]func(Session)),
	}
	for _, opt := range options {
		opt(m)
	}

	c.SetSessionHandler(m)
	return m, nil
}

// API returns the auth endpoints bound to the manager's client.
func (m *Manager) API() *authapi.API {
	return m.api
}

// State returns a copy of the current session.
func (m *Manager) State() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn to be called with the new session after every
// transition. Sessions are delivered one at a time in transition order, so the
// last one fn sees matches State once the manager is idle. The returned func
// unsubscribes.
func (m *Manager) Subscribe(fn func(Session)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}
}

// Init rehydrates the session from the credential store. Stored tokens are
// confirmed by fetching the profile; if that fails the session is logged out
// and the cause returned. A cancelled ctx leaves the store untouched.
func (m *Manager) Init(ctx context.Context) error {
	if _, ok := m.creds.Tokens(ctx); !ok {
		// Without a pair the session is logged out; drop any lone token.
		m.clearStore(ctx)
		m.dispatch(ctx, SetLoading{Loading: false})
		return nil
	}

	profile, err := m.api.Profile(ctx)
	if err != nil && ctx.Err() != nil {
		m.dispatch(ctx, SetLoading{Loading: false})
		return fmt.Errorf("[Init] fetch profile: %w", err)
	}
	if err != nil {
		log.Debug().Err(err).Msg("Stored session could not be confirmed")
		m.dispatch(ctx, Logout{})
		return fmt.Errorf("[Init] fetch profile: %w", err)
	}

	// The profile call may have rotated the tokens.
	tokens, ok := m.creds.Tokens(ctx)
	if !ok {
		m.dispatch(ctx, Logout{})
		return fmt.Errorf("[Init] %w", ErrNoRefreshToken)
	}

	next := m.dispatch(ctx, Success{Auth: authmodel.AuthFromProfile(tokens, profile), At: m.nowTime()})
	if !next.Authenticated {
		return fmt.Errorf("[Init] %w", ErrIncompleteAuth)
	}
	return nil
}

// Close detaches the manager from its client and drops all subscribers. The
// credential store is left as is.
func (m *Manager) Close() {
	m.client.SetSessionHandler(nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = make(map[int]func(Session))
}

// RequestOTP asks the server to email a one-time password. It does not
// change the authentication status.
func (m *Manager) RequestOTP(ctx context.Context, email, firstName, lastName string) error {
	m.dispatch(ctx, Start{})
	_, err := m.api.RequestOTP(ctx, authmodel.AuthRequest{Email: email, FirstName: firstName, LastName: lastName})
	if err != nil {
		m.dispatch(ctx, Failure{Message: errorMessage(err, "Failed to send OTP")})
		return err
	}
	notify.Success(m.notifier, "OTP sent to "+email)
	m.dispatch(ctx, SetLoading{Loading: false})
	return nil
}

// VerifyOTP exchanges the emailed code for a session.
func (m *Manager) VerifyOTP(ctx context.Context, email, otp string) error {
	m.dispatch(ctx, Start{})
	resp, err := m.api.VerifyOTP(ctx, authmodel.OTPRequest{Email: email, OTP: otp})
	if err != nil {
		m.dispatch(ctx, Failure{Message: errorMessage(err, "Invalid OTP")})
		return err
	}
	if next := m.dispatch(ctx, Success{Auth: resp, At: m.nowTime()}); !next.Authenticated {
		return ErrIncompleteAuth
	}
	notify.Success(m.notifier, "Login successful!")
	return nil
}

// Logout ends the session. The server is told when the session is
// authenticated; a failure there is logged and the local session is cleared
// regardless.
func (m *Manager) Logout(ctx context.Context) {
	if m.State().Authenticated {
		if _, err := m.api.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("Server logout failed, clearing local session")
		}
	}
	m.dispatch(ctx, Logout{})
	notify.Success(m.notifier, "Logged out successfully")
}

// RefreshSession rotates the token pair using the stored refresh token and
// returns the new access token. Without a refresh token the session is
// logged out and ErrNoRefreshToken returned; a rejected refresh clears the
// session with the server's message. A refresh abandoned by ctx changes
// nothing.
func (m *Manager) RefreshSession(ctx context.Context) (string, error) {
	refreshToken, ok := m.creds.RefreshToken(ctx)
	if !ok {
		m.dispatch(ctx, Logout{})
		return "", ErrNoRefreshToken
	}

	resp, err := m.api.RefreshToken(ctx, refreshToken)
	if err != nil && ctx.Err() != nil {
		return "", fmt.Errorf("[RefreshSession] %w", err)
	}
	if err != nil {
		m.dispatch(ctx, Failure{Message: errorMessage(err, "Token refresh failed")})
		return "", fmt.Errorf("[RefreshSession] %w", err)
	}

	if next := m.dispatch(ctx, Success{Auth: resp, At: m.nowTime()}); !next.Authenticated {
		return "", fmt.Errorf("[RefreshSession] %w", ErrIncompleteAuth)
	}
	return resp.AccessToken, nil
}

// EndSession logs the session out after the server rejected a freshly
// refreshed token.
func (m *Manager) EndSession(ctx context.Context, cause error) {
	log.Warn().Err(cause).Msg("Refreshed credentials rejected, ending session")
	m.dispatch(ctx, Logout{})
}

func (m *Manager) ClearError() {
	m.dispatch(context.Background(), ClearError{})
}

// dispatch applies ev and mirrors any token change in the credential store
// before subscribers see the new session.
func (m *Manager) dispatch(ctx context.Context, ev Event) Session {
	m.mu.Lock()
	next := Reduce(m.state, ev)
	m.state = next
	if clearsOrSetsTokens(ev) {
		m.persist(ctx, next)
	}
	m.pending = append(m.pending, next)
	m.mu.Unlock()

	m.deliver()
	return next
}

// deliver hands pending sessions to subscribers in the order they were
// produced. One goroutine delivers at a time; a dispatch that finds delivery
// under way, including one made from inside a subscriber, leaves its session
// queued for that goroutine.
func (m *Manager) deliver() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true

	done := false
	defer func() {
		// A panicking subscriber must not wedge delivery.
		if !done {
			m.mu.Lock()
			m.delivering = false
			m.mu.Unlock()
		}
	}()

	for len(m.pending) > 0 {
		next := m.pending[0]
		m.pending = m.pending[1:]
		subs := make([]func(Session), 0, len(m.subs))
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
		m.mu.Unlock()

		for _, fn := range subs {
			fn(next.clone())
		}
		m.mu.Lock()
	}
	m.delivering = false
	done = true
	m.mu.Unlock()
}

func (m *Manager) clearStore(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds.Clear(ctx)
}

func (m *Manager) persist(ctx context.Context, s Session) {
	if !s.Authenticated {
		m.creds.Clear(ctx)
		return
	}
	m.creds.SaveTokens(ctx, s.Tokens())
	m.creds.SaveUser(ctx, *s.User)
}

func errorMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
