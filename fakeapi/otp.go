package fakeapi

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	apperrors "github.com/jrsteele09/go-rail-auth/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

const otpDigits = 6

// OTPSink delivers an issued one-time password, standing in for email.
type OTPSink func(email, code string)

func generateOTP() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("[generateOTP] %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// setOTP stores a hash of code on the account, replacing any previous one.
func (a *account) setOTP(code string, expiresAt time.Time) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("[setOTP] hash otp: %w", err)
	}
	a.otpHash = hash
	a.otpExpiresAt = expiresAt
	return nil
}

// checkOTP verifies code and, if it matches, consumes it.
func (a *account) checkOTP(code string, now time.Time) error {
	if len(a.otpHash) == 0 {
		return apperrors.ErrInvalidOTP
	}
	if now.After(a.otpExpiresAt) {
		return apperrors.ErrOTPExpired
	}
	if err := bcrypt.CompareHashAndPassword(a.otpHash, []byte(code)); err != nil {
		return apperrors.ErrInvalidOTP
	}
	a.otpHash = nil
	a.otpExpiresAt = time.Time{}
	return nil
}
