package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-rail-auth/authmodel"
	"github.com/jrsteele09/go-rail-auth/client"
	"github.com/jrsteele09/go-rail-auth/notify"
	"github.com/jrsteele09/go-rail-auth/session"
	"github.com/jrsteele09/go-rail-auth/store"
	"github.com/stretchr/testify/require"
)

// backend is a scriptable stand-in for the railway API.
type backend struct {
	mu    sync.Mutex
	calls map[string]int
	mux   *http.ServeMux
}

func newBackend() *backend {
	return &backend{calls: make(map[string]int), mux: http.NewServeMux()}
}

func (b *backend) handle(pattern string, fn http.HandlerFunc) {
	b.mux.HandleFunc(pattern, fn)
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	b.mu.Unlock()
	b.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func dropConnection(w http.ResponseWriter, _ *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("hijacking not supported")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(err)
	}
	_ = conn.Close()
}

type testFixture struct {
	backend  *backend
	creds    *store.Credentials
	client   *client.Client
	manager  *session.Manager
	notifier *notify.Recorder
}

func setupTestFixture(t *testing.T, s store.Store) *testFixture {
	t.Helper()
	b := newBackend()
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)

	if s == nil {
		s = store.NewMemory()
	}
	creds := store.NewCredentials(s)
	rec := &notify.Recorder{}

	c, err := client.New(client.Config{BaseURL: server.URL, Timeout: 2 * time.Second}, creds, client.WithNotifier(rec))
	require.NoError(t, err)

	m, err := session.NewManager(c, creds,
		session.WithNotifier(rec),
		session.WithNowTime(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return &testFixture{backend: b, creds: creds, client: c, manager: m, notifier: rec}
}

func (f *testFixture) seed(t *testing.T, access, refresh string) {
	t.Helper()
	require.True(t, f.creds.SaveTokens(context.Background(), authmodel.Tokens{AccessToken: access, RefreshToken: refresh}))
}

// login puts the manager into an authenticated session for tok1/ref1.
func (f *testFixture) login(t *testing.T) {
	t.Helper()
	f.seed(t, "tok1", "ref1")
	f.backend.handle("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, authmodel.User{ID: "1", Email: "a@b.com", FullName: "A B", AadhaarVerified: true})
	})
	require.NoError(t, f.manager.Init(context.Background()))
	require.True(t, f.manager.State().Authenticated)
}

func (f *testFixture) storedTokens(t *testing.T) (string, string) {
	t.Helper()
	access, _ := f.creds.AccessToken(context.Background())
	refresh, _ := f.creds.RefreshToken(context.Background())
	return access, refresh
}

func TestNewManager_Validation(t *testing.T) {
	creds := store.NewCredentials(store.NewMemory())
	c, err := client.New(client.DefaultConfig(), creds)
	require.NoError(t, err)

	_, err = session.NewManager(nil, creds)
	require.Error(t, err)
	_, err = session.NewManager(c, nil)
	require.Error(t, err)

	m, err := session.NewManager(c, creds)
	require.NoError(t, err)
	require.True(t, m.State().Loading)
	require.False(t, m.State().Authenticated)
}

func TestManager_InitRehydratesFromStore(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.seed(t, "tok1", "ref1")
	f.backend.handle("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
		writeJSON(w, authmodel.User{ID: "1", Email: "a@b.com", FullName: "A B", AadhaarVerified: true})
	})

	require.NoError(t, f.manager.Init(context.Background()))

	s := f.manager.State()
	require.True(t, s.Authenticated)
	require.False(t, s.Loading)
	require.Equal(t, "A", s.User.FirstName)
	require.Equal(t, "B", s.User.LastName)
	require.True(t, s.User.AadhaarVerified)
	require.Equal(t, "tok1", s.AccessToken)

	cached, ok := f.creds.CachedUser(context.Background())
	require.True(t, ok)
	require.Equal(t, "1", cached.ID)
}

func TestManager_InitWithEmptyStoreSettles(t *testing.T) {
	f := setupTestFixture(t, nil)

	require.NoError(t, f.manager.Init(context.Background()))

	require.Equal(t, session.Session{}, f.manager.State())
	require.Zero(t, f.backend.count("/auth/profile"))
}

func TestManager_InitDropsLoneToken(t *testing.T) {
	for _, key := range []string{store.KeyAccessToken, store.KeyRefreshToken} {
		t.Run(key, func(t *testing.T) {
			f := setupTestFixture(t, nil)
			ctx := context.Background()
			require.NoError(t, f.creds.Store().Set(ctx, key, "lone"))

			var authHeader string
			f.backend.handle("/trains", func(w http.ResponseWriter, r *http.Request) {
				authHeader = r.Header.Get("Authorization")
				writeJSON(w, map[string]bool{"ok": true})
			})

			require.NoError(t, f.manager.Init(ctx))
			s := f.manager.State()
			require.False(t, s.Authenticated)
			require.False(t, s.Loading)
			require.Zero(t, f.backend.count("/auth/profile"))

			for _, k := range []string{store.KeyAccessToken, store.KeyRefreshToken} {
				_, ok, err := f.creds.Store().Get(ctx, k)
				require.NoError(t, err)
				require.False(t, ok, k)
			}

			require.NoError(t, f.client.Get(ctx, "/trains", nil))
			require.Empty(t, authHeader)
		})
	}
}

func TestManager_InitCanceledKeepsStore(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.seed(t, "tok1", "ref1")
	f.backend.handle("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.manager.Init(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	s := f.manager.State()
	require.False(t, s.Authenticated)
	require.False(t, s.Loading)
	require.Empty(t, s.Error)
	require.Empty(t, f.notifier.All())

	access, refresh := f.storedTokens(t)
	require.Equal(t, "tok1", access)
	require.Equal(t, "ref1", refresh)
}

func TestManager_InitWithExpiredSessionLogsOut(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.seed(t, "tok1", "ref1")
	f.backend.handle("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f.backend.handle("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Token refresh failed: Invalid or expired refresh token", http.StatusBadRequest)
	})

	err := f.manager.Init(context.Background())
	require.ErrorIs(t, err, client.ErrAuthentication)

	s := f.manager.State()
	require.False(t, s.Authenticated)
	require.False(t, s.Loading)
	require.Empty(t, s.Error, "routine expiry is not reported as an error")

	access, refresh := f.storedTokens(t)
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestManager_InitPicksUpRotatedTokens(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.seed(t, "expired", "ref1")
	f.backend.handle("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, authmodel.User{ID: "1", Email: "a@b.com", FullName: "A B"})
	})
	f.backend.handle("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, authmodel.AuthResponse{AccessToken: "tok2", RefreshToken: "ref2", UserID: "1", Email: "a@b.com", FullName: "A B"})
	})

	require.NoError(t, f.manager.Init(context.Background()))

	s := f.manager.State()
	require.True(t, s.Authenticated)
	require.Equal(t, "tok2", s.AccessToken)
	require.Equal(t, "ref2", s.RefreshToken)
}

func TestManager_VerifyOTP(t *testing.T) {
	f := setupTestFixture(t, nil)
	require.NoError(t, f.manager.Init(context.Background()))
	f.backend.handle("/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.OTPRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, authmodel.OTPRequest{Email: "a@b.com", OTP: "123456"}, req)
		writeJSON(w, authmodel.AuthResponse{
			AccessToken:  "new",
			RefreshToken: "newR",
			UserID:       "1",
			Email:        "a@b.com",
			FullName:     "Jane Doe",
		})
	})

	require.NoError(t, f.manager.VerifyOTP(context.Background(), "a@b.com", "123456"))

	access, refresh := f.storedTokens(t)
	require.Equal(t, "new", access)
	require.Equal(t, "newR", refresh)

	s := f.manager.State()
	require.True(t, s.Authenticated)
	require.Equal(t, "Jane Doe", s.User.FullName)
	require.Equal(t, "Jane", s.User.FirstName)
	require.Equal(t, "Doe", s.User.LastName)

	notes := f.notifier.All()
	require.Len(t, notes, 1)
	require.Equal(t, notify.Notification{Level: notify.LevelSuccess, Message: "Login successful!"}, notes[0])
}

func TestManager_VerifyOTPFailure(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.backend.handle("/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "OTP verification failed: Invalid or expired OTP", http.StatusBadRequest)
	})

	err := f.manager.VerifyOTP(context.Background(), "a@b.com", "000000")
	require.ErrorIs(t, err, client.ErrBadRequest)

	s := f.manager.State()
	require.False(t, s.Authenticated)
	require.False(t, s.Loading)
	require.Equal(t, "OTP verification failed: Invalid or expired OTP", s.Error)
	require.Equal(t, []string{"OTP verification failed: Invalid or expired OTP"}, f.notifier.Errors())

	f.manager.ClearError()
	require.Empty(t, f.manager.State().Error)
}

func TestManager_VerifyOTPIncompleteResponse(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.backend.handle("/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, authmodel.AuthResponse{AccessToken: "new", UserID: "1"})
	})

	err := f.manager.VerifyOTP(context.Background(), "a@b.com", "123456")
	require.ErrorIs(t, err, session.ErrIncompleteAuth)
	require.False(t, f.manager.State().Authenticated)

	access, _ := f.storedTokens(t)
	require.Empty(t, access)
}

func TestManager_RequestOTP(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.backend.handle("/auth/otp-login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OTP sent successfully to a@b.com"))
	})

	var seen []session.Session
	unsubscribe := f.manager.Subscribe(func(s session.Session) { seen = append(seen, s) })
	defer unsubscribe()

	require.NoError(t, f.manager.RequestOTP(context.Background(), "a@b.com", "A", "B"))

	s := f.manager.State()
	require.False(t, s.Loading)
	require.False(t, s.Authenticated)
	require.Empty(t, s.Error)

	require.Len(t, seen, 2)
	require.True(t, seen[0].Loading)
	require.False(t, seen[1].Loading)

	require.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "OTP sent to a@b.com"}}, f.notifier.All())
}

func TestManager_RequestOTPFailure(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.backend.handle("/auth/otp-login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := f.manager.RequestOTP(context.Background(), "a@b.com", "A", "B")
	require.ErrorIs(t, err, client.ErrRateLimited)
	require.Equal(t, "Too many requests. Please try again later.", f.manager.State().Error)
	require.Len(t, f.notifier.All(), 1)
}

func TestManager_LogoutSurvivesNetworkError(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.handle("/auth/logout", dropConnection)

	f.manager.Logout(context.Background())

	require.Equal(t, 1, f.backend.count("/auth/logout"))
	s := f.manager.State()
	require.False(t, s.Authenticated)
	require.Empty(t, s.Error)

	access, refresh := f.storedTokens(t)
	require.Empty(t, access)
	require.Empty(t, refresh)
	_, ok := f.creds.CachedUser(context.Background())
	require.False(t, ok)

	require.Equal(t, []string{"Network error. Please check your connection."}, f.notifier.Errors())
}

func TestManager_LogoutWhenNotAuthenticatedSkipsServer(t *testing.T) {
	f := setupTestFixture(t, nil)
	require.NoError(t, f.manager.Init(context.Background()))

	f.manager.Logout(context.Background())

	require.Zero(t, f.backend.count("/auth/logout"))
	require.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "Logged out successfully"}}, f.notifier.All())
}

func TestManager_RefreshOnUnauthorizedRequest(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.handle("/trains", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		access, refresh := f.storedTokens(t)
		require.Equal(t, "new", access)
		require.Equal(t, "newR", refresh)
		writeJSON(w, []string{"12951 Rajdhani"})
	})
	f.backend.handle("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.RefreshTokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "ref1", req.RefreshToken)
		writeJSON(w, authmodel.AuthResponse{AccessToken: "new", RefreshToken: "newR", UserID: "1", Email: "a@b.com", FullName: "A B"})
	})

	var trains []string
	require.NoError(t, f.client.Get(context.Background(), "/trains", &trains))
	require.Equal(t, []string{"12951 Rajdhani"}, trains)

	require.Equal(t, 2, f.backend.count("/trains"))
	require.Equal(t, 1, f.backend.count("/auth/refresh-token"))

	s := f.manager.State()
	require.True(t, s.Authenticated)
	require.Equal(t, "new", s.AccessToken)
	require.Equal(t, "newR", s.RefreshToken)
	require.Empty(t, f.notifier.Errors())
}

func TestManager_RefreshRejectedClearsStore(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.handle("/trains", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f.backend.handle("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := f.client.Get(context.Background(), "/trains", nil)
	require.ErrorIs(t, err, client.ErrAuthentication)

	require.Equal(t, 1, f.backend.count("/trains"))
	access, refresh := f.storedTokens(t)
	require.Empty(t, access)
	require.Empty(t, refresh)
	require.False(t, f.manager.State().Authenticated)
	require.Equal(t, []string{"Session expired. Please log in again."}, f.notifier.Errors())
}

func TestManager_UnauthorizedAfterRefreshEndsSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.handle("/trains", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f.backend.handle("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, authmodel.AuthResponse{AccessToken: "new", RefreshToken: "newR", UserID: "1", Email: "a@b.com", FullName: "A B"})
	})

	err := f.client.Get(context.Background(), "/trains", nil)
	require.ErrorIs(t, err, client.ErrAuthentication)

	require.Equal(t, 2, f.backend.count("/trains"))
	s := f.manager.State()
	require.False(t, s.Authenticated)
	require.Empty(t, s.Error)
	access, refresh := f.storedTokens(t)
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestManager_ForbiddenKeepsSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.handle("/bookings/PNR1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	err := f.client.Get(context.Background(), "/bookings/PNR1", nil)
	require.ErrorIs(t, err, client.ErrAuthorization)
	require.True(t, f.manager.State().Authenticated)
	access, _ := f.storedTokens(t)
	require.Equal(t, "tok1", access)
}

func TestManager_RefreshSessionCanceledKeepsSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.manager.RefreshSession(ctx)
	require.ErrorIs(t, err, context.Canceled)

	s := f.manager.State()
	require.True(t, s.Authenticated)
	require.Empty(t, s.Error)
	access, refresh := f.storedTokens(t)
	require.Equal(t, "tok1", access)
	require.Equal(t, "ref1", refresh)
}

func TestManager_RefreshSessionWithoutRefreshToken(t *testing.T) {
	f := setupTestFixture(t, nil)

	_, err := f.manager.RefreshSession(context.Background())
	require.ErrorIs(t, err, session.ErrNoRefreshToken)
	require.Zero(t, f.backend.count("/auth/refresh-token"))
	require.Equal(t, session.Session{}, f.manager.State())
}

func TestManager_SubscribeAndUnsubscribe(t *testing.T) {
	f := setupTestFixture(t, nil)

	var mu sync.Mutex
	var seen []session.Session
	unsubscribe := f.manager.Subscribe(func(s session.Session) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	require.NoError(t, f.manager.Init(context.Background()))
	unsubscribe()
	unsubscribe()
	f.manager.ClearError()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	require.False(t, seen[0].Loading)
}

// recorder collects every session a subscriber is handed.
type recorder struct {
	mu   sync.Mutex
	seen []session.Session
}

func (r *recorder) record(s session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) sessions() []session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Session(nil), r.seen...)
}

func TestManager_SubscriberCallingBackSeesOrderedSessions(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.backend.handle("/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "OTP verification failed: Invalid or expired OTP", http.StatusBadRequest)
	})

	rec := &recorder{}
	f.manager.Subscribe(rec.record)
	cleared := false
	f.manager.Subscribe(func(s session.Session) {
		if s.Error != "" && !cleared {
			cleared = true
			f.manager.ClearError()
		}
	})

	require.Error(t, f.manager.VerifyOTP(context.Background(), "a@b.com", "000000"))

	seen := rec.sessions()
	require.Len(t, seen, 3)
	require.True(t, seen[0].Loading)
	require.Equal(t, "OTP verification failed: Invalid or expired OTP", seen[1].Error)
	require.Equal(t, f.manager.State(), seen[2])
	require.Empty(t, seen[2].Error)
}

func TestManager_ConcurrentTransitionsDeliverLatestLast(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.backend.handle("/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.OTPRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		http.Error(w, "rejected "+req.OTP, http.StatusBadRequest)
	})

	rec := &recorder{}
	f.manager.Subscribe(rec.record)

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = f.manager.VerifyOTP(context.Background(), "a@b.com", fmt.Sprintf("%06d", i))
		}(i)
	}
	wg.Wait()

	seen := rec.sessions()
	require.Len(t, seen, 2*callers)
	require.Equal(t, f.manager.State(), seen[len(seen)-1])
}

func TestManager_SubscribersGetCopies(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.manager.Subscribe(func(s session.Session) {
		if s.User != nil {
			s.User.FullName = "mutated"
		}
	})
	f.login(t)

	require.Equal(t, "A B", f.manager.State().User.FullName)
}

func TestManager_CloseDetachesFromClient(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.login(t)
	f.backend.handle("/trains", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	f.manager.Close()

	err := f.client.Get(context.Background(), "/trains", nil)
	require.ErrorIs(t, err, client.ErrNoSessionHandler)
	require.Zero(t, f.backend.count("/auth/refresh-token"))
}

// quotaStore rejects every write, like a full browser storage.
type quotaStore struct {
	store.Store
}

func (quotaStore) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (quotaStore) Remove(context.Context, string) error      { return errors.New("quota exceeded") }

func TestManager_StoreWriteFailureKeepsSessionAuthoritative(t *testing.T) {
	f := setupTestFixture(t, quotaStore{Store: store.NewMemory()})
	f.backend.handle("/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, authmodel.AuthResponse{AccessToken: "new", RefreshToken: "newR", UserID: "1", Email: "a@b.com", FullName: "Jane Doe"})
	})

	require.NoError(t, f.manager.VerifyOTP(context.Background(), "a@b.com", "123456"))
	require.True(t, f.manager.State().Authenticated)

	access, _ := f.storedTokens(t)
	require.Empty(t, access)
}
