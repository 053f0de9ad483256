package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-rail-auth/authmodel"
	"github.com/jrsteele09/go-rail-auth/session"
	"github.com/spf13/pflag"
)

var errNotSignedIn = errors.New("not signed in")

type app struct {
	manager *session.Manager
	stdout  io.Writer
	stderr  io.Writer
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"request-otp": requestOTPCommand,
	"verify":      verifyCommand,
	"status":      statusCommand,
	"profile":     profileCommand,
	"refresh":     refreshCommand,
	"logout":      logoutCommand,
}

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// validate reports DTO validation failures field by field before anything
// is sent.
func (a *app) validate(v any) error {
	err := authmodel.Validate(v)
	var verr *authmodel.ValidationError
	if errors.As(err, &verr) {
		for field, msg := range verr.Fields() {
			fmt.Fprintf(a.stderr, "  %s: %s\n", field, msg)
		}
	}
	return err
}

func requestOTPCommand(ctx context.Context, a *app, args []string) error {
	var req authmodel.AuthRequest
	fs := a.flagSet("request-otp")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.FirstName, "first-name", "", "first name")
	fs.StringVar(&req.LastName, "last-name", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.validate(req); err != nil {
		return err
	}

	if err := a.manager.RequestOTP(ctx, req.Email, req.FirstName, req.LastName); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "A one-time password was sent to %s\n", req.Email)
	return nil
}

func verifyCommand(ctx context.Context, a *app, args []string) error {
	var req authmodel.OTPRequest
	fs := a.flagSet("verify")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.OTP, "otp", "", "one-time password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.validate(req); err != nil {
		return err
	}

	if err := a.manager.VerifyOTP(ctx, req.Email, req.OTP); err != nil {
		return err
	}
	s := a.manager.State()
	fmt.Fprintf(a.stdout, "Signed in as %s <%s>\n", s.User.FullName, s.User.Email)
	return nil
}

func statusCommand(_ context.Context, a *app, _ []string) error {
	s := a.manager.State()
	if !s.Authenticated {
		fmt.Fprintln(a.stdout, "Not signed in")
		return nil
	}

	fmt.Fprintf(a.stdout, "Signed in as %s <%s>\n", s.User.FullName, s.User.Email)
	fmt.Fprintf(a.stdout, "Aadhaar verified: %t\n", s.User.AadhaarVerified)
	if tok := s.Tokens().OAuth2(); !tok.Expiry.IsZero() {
		fmt.Fprintf(a.stdout, "Access token expires %s (in %s)\n",
			tok.Expiry.Local().Format(time.RFC1123), time.Until(tok.Expiry).Round(time.Second))
	}
	return nil
}

func profileCommand(ctx context.Context, a *app, args []string) error {
	var firstName, lastName, phone string
	fs := a.flagSet("profile")
	fs.StringVar(&firstName, "first-name", "", "new first name")
	fs.StringVar(&lastName, "last-name", "", "new last name")
	fs.StringVar(&phone, "phone", "", "new phone number in E.164 form")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !a.manager.State().Authenticated {
		return errNotSignedIn
	}

	var update authmodel.ProfileUpdate
	if fs.Changed("first-name") {
		update.FirstName = &firstName
	}
	if fs.Changed("last-name") {
		update.LastName = &lastName
	}
	if fs.Changed("phone") {
		update.PhoneNumber = &phone
	}

	var (
		profile authmodel.User
		err     error
	)
	if update == (authmodel.ProfileUpdate{}) {
		profile, err = a.manager.API().Profile(ctx)
	} else {
		if err := a.validate(update); err != nil {
			return err
		}
		profile, err = a.manager.API().UpdateProfile(ctx, update)
	}
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, string(out))
	return nil
}

func refreshCommand(ctx context.Context, a *app, _ []string) error {
	if _, err := a.manager.RefreshSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Session refreshed")
	return nil
}

func logoutCommand(ctx context.Context, a *app, _ []string) error {
	a.manager.Logout(ctx)
	fmt.Fprintln(a.stdout, "Signed out")
	return nil
}
