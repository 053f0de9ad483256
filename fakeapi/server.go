// Package fakeapi is an in-process stand-in for the railway auth backend. It
// issues emailed one-time passwords, signs JWT access tokens, rotates refresh
// tokens and serves the profile endpoints, answering errors in plain text the
// way the real backend does.
package fakeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-rail-auth/authmodel"
	"github.com/jrsteele09/go-rail-auth/internal/config"
	apperrors "github.com/jrsteele09/go-rail-auth/internal/errors"
	"github.com/jrsteele09/go-rail-auth/internal/utils"
	"github.com/rs/zerolog/log"
)

const (
	msgInvalidOTP          = "Invalid or expired OTP"
	msgInvalidRefreshToken = "Invalid or expired refresh token"
)

type contextKey string

const claimsKey contextKey = "claims"

type Server struct {
	router    chi.Router
	users     userRepo
	tokens    *tokenIssuer
	otpExpiry time.Duration
	otpSink   OTPSink
	nowFunc   func() time.Time
}

type Option func(*Server)

// WithNowFunc sets the clock used for OTP and token expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

// WithOTPSink receives every issued OTP. By default they are logged.
func WithOTPSink(sink OTPSink) Option {
	return func(s *Server) {
		s.otpSink = sink
	}
}

func New(cfg config.DevServerConfig, options ...Option) *Server {
	s := &Server{
		users:     newMemoryUserRepo(),
		otpExpiry: cfg.GetOTPExpiry(),
		nowFunc:   time.Now,
		otpSink: func(email, code string) {
			log.Info().Str("email", email).Str("otp", code).Msg("OTP issued")
		},
	}
	for _, opt := range options {
		opt(s)
	}
	s.tokens = newTokenIssuer(cfg.GetSigningSecret(), cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry(), s.now)
	s.router = s.routes(cfg.GetRoutePrefix())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) now() time.Time {
	return s.nowFunc()
}

func (s *Server) routes(prefix string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})

	api := chi.NewRouter()
	api.Route("/auth", func(r chi.Router) {
		r.Post("/otp-login", s.requestOTP)
		r.Post("/verify-otp", s.verifyOTP)
		r.Post("/refresh-token", s.refreshToken)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/logout", s.logout)
			r.Get("/profile", s.getProfile)
			r.Put("/profile", s.updateProfile)
		})
	})

	prefix = "/" + strings.Trim(prefix, "/")
	r.Mount(prefix, api)
	return r
}

func (s *Server) requestOTP(w http.ResponseWriter, r *http.Request) {
	var req authmodel.AuthRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeText(w, http.StatusBadRequest, "Failed to send OTP: "+err.Error())
		return
	}

	acc, err := s.users.GetByEmail(req.Email)
	if err != nil {
		now := s.now()
		acc = &account{User: authmodel.User{
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			FullName:  req.FirstName + " " + req.LastName,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		log.Info().Str("email", req.Email).Msg("Registered new user")
	}

	code, err := generateOTP()
	if err == nil {
		err = acc.setOTP(code, s.now().Add(s.otpExpiry))
	}
	if err == nil {
		err = s.users.Upsert(acc)
	}
	if err != nil {
		log.Err(err).Str("email", req.Email).Msg("Error issuing OTP")
		writeText(w, http.StatusBadRequest, "Failed to send OTP: "+err.Error())
		return
	}

	otpIssuedTotal.Inc()
	s.otpSink(req.Email, code)
	writeText(w, http.StatusOK, "OTP sent successfully to "+req.Email)
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req authmodel.OTPRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeText(w, http.StatusBadRequest, "OTP verification failed: "+err.Error())
		return
	}

	acc, err := s.users.GetByEmail(req.Email)
	if err == nil {
		err = acc.checkOTP(req.OTP, s.now())
	}
	if err != nil {
		loginsTotal.WithLabelValues("rejected").Inc()
		log.Warn().Err(err).Str("email", req.Email).Msg("OTP verification failed")
		writeText(w, http.StatusBadRequest, "OTP verification failed: "+msgInvalidOTP)
		return
	}
	if err := s.users.Upsert(acc); err != nil {
		writeText(w, http.StatusBadRequest, "OTP verification failed: "+err.Error())
		return
	}

	resp, err := s.authResponse(acc)
	if err != nil {
		writeText(w, http.StatusBadRequest, "OTP verification failed: "+err.Error())
		return
	}
	loginsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req authmodel.RefreshTokenRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeText(w, http.StatusBadRequest, "Token refresh failed: "+err.Error())
		return
	}

	userID, err := s.tokens.redeem(req.RefreshToken)
	var acc *account
	if err == nil {
		acc, err = s.users.GetByID(userID)
	}
	if err != nil {
		refreshTotal.WithLabelValues("rejected").Inc()
		log.Warn().Err(err).Msg("Token refresh failed")
		writeText(w, http.StatusBadRequest, "Token refresh failed: "+msgInvalidRefreshToken)
		return
	}

	resp, err := s.authResponse(acc)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Token refresh failed: "+err.Error())
		return
	}
	refreshTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	s.tokens.revoke(claims)
	log.Info().Str("user_id", claims.Subject).Msg("User logged out")
	writeText(w, http.StatusOK, "Logged out successfully")
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	acc, err := s.users.GetByID(claimsFromContext(r.Context()).Subject)
	if err != nil {
		writeText(w, http.StatusNotFound, "")
		return
	}
	writeJSON(w, http.StatusOK, acc.User)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var update authmodel.ProfileUpdate
	if err := decodeAndValidate(r, &update); err != nil {
		writeText(w, http.StatusBadRequest, "Profile update failed: "+err.Error())
		return
	}

	acc, err := s.users.GetByID(claimsFromContext(r.Context()).Subject)
	if err != nil {
		writeText(w, http.StatusNotFound, "")
		return
	}

	if update.FirstName != nil {
		acc.FirstName = utils.Value(update.FirstName)
	}
	if update.LastName != nil {
		acc.LastName = utils.Value(update.LastName)
	}
	if update.PhoneNumber != nil {
		acc.PhoneNumber = utils.Value(update.PhoneNumber)
	}
	if update.Address != nil {
		acc.Address = utils.Ptr(*update.Address)
	}
	acc.FullName = strings.TrimSpace(acc.FirstName + " " + acc.LastName)
	acc.UpdatedAt = s.now()

	if err := s.users.Upsert(acc); err != nil {
		writeText(w, http.StatusBadRequest, "Profile update failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, acc.User)
}

func (s *Server) authResponse(acc *account) (authmodel.AuthResponse, error) {
	access, refresh, err := s.tokens.issue(acc.ID, acc.Email)
	if err != nil {
		return authmodel.AuthResponse{}, err
	}
	return authmodel.AuthResponse{
		AccessToken:     access,
		RefreshToken:    refresh,
		UserID:          acc.ID,
		Email:           acc.Email,
		FullName:        acc.FullName,
		AadhaarVerified: acc.AadhaarVerified,
		TokenType:       authmodel.TokenTypeBearer,
	}, nil
}

// requireAuth admits requests carrying a valid, unrevoked bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			writeText(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := s.tokens.verify(token)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected access token")
			msg := "Unauthorized"
			if apperrors.Is(err, apperrors.ErrTokenExpired) {
				msg = "Token expired"
			}
			writeText(w, http.StatusUnauthorized, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func claimsFromContext(ctx context.Context) *accessClaims {
	claims, _ := ctx.Value(claimsKey).(*accessClaims)
	if claims == nil {
		return &accessClaims{}
	}
	return claims
}

func decodeAndValidate(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrapf(err, "invalid request body")
	}
	return authmodel.Validate(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Error encoding response")
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
