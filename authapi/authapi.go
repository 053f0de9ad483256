// Package authapi exposes the railway API's /auth endpoints on top of the
// authenticated request client.
package authapi

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-rail-auth/authmodel"
	"github.com/jrsteele09/go-rail-auth/client"
)

const (
	PathOTPLogin     = "/auth/otp-login"
	PathVerifyOTP    = "/auth/verify-otp"
	PathRefreshToken = "/auth/refresh-token"
	PathLogout       = "/auth/logout"
	PathProfile      = "/auth/profile"
)

// Doer is the part of *client.Client the API needs.
type Doer interface {
	DoDecode(ctx context.Context, req client.Request, out any) error
}

type API struct {
	client Doer
}

func New(c Doer) *API {
	return &API{client: c}
}

// RequestOTP asks the server to email a one-time code. The server answers
// with a confirmation text.
func (a *API) RequestOTP(ctx context.Context, req authmodel.AuthRequest) (string, error) {
	var text string
	err := a.client.DoDecode(ctx, client.Request{Method: http.MethodPost, Path: PathOTPLogin, Body: req}, &text)
	return text, err
}

// VerifyOTP exchanges an email and code for a token pair and user summary.
func (a *API) VerifyOTP(ctx context.Context, req authmodel.OTPRequest) (authmodel.AuthResponse, error) {
	var resp authmodel.AuthResponse
	err := a.client.DoDecode(ctx, client.Request{Method: http.MethodPost, Path: PathVerifyOTP, Body: req}, &resp)
	return resp, err
}

// RefreshToken rotates the token pair. It never triggers a nested refresh
// and raises no notification; the caller decides what a failure means.
func (a *API) RefreshToken(ctx context.Context, refreshToken string) (authmodel.AuthResponse, error) {
	var resp authmodel.AuthResponse
	err := a.client.DoDecode(ctx, client.Request{
		Method:          http.MethodPost,
		Path:            PathRefreshToken,
		Body:            authmodel.RefreshTokenRequest{RefreshToken: refreshToken},
		SkipAuthRefresh: true,
		Quiet:           true,
	}, &resp)
	return resp, err
}

// Logout revokes the session server side.
func (a *API) Logout(ctx context.Context) (string, error) {
	var text string
	err := a.client.DoDecode(ctx, client.Request{Method: http.MethodPost, Path: PathLogout}, &text)
	return text, err
}

func (a *API) Profile(ctx context.Context) (authmodel.User, error) {
	var user authmodel.User
	err := a.client.DoDecode(ctx, client.Request{Method: http.MethodGet, Path: PathProfile}, &user)
	return user, err
}

func (a *API) UpdateProfile(ctx context.Context, update authmodel.ProfileUpdate) (authmodel.User, error) {
	var user authmodel.User
	err := a.client.DoDecode(ctx, client.Request{Method: http.MethodPut, Path: PathProfile, Body: update}, &user)
	return user, err
}
