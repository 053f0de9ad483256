package authmodel

import "time"

// AuthRequest asks the backend to issue a one-time password to Email,
// registering the user on first use.
type AuthRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required,max=50"`
	LastName  string `json:"lastName" validate:"required,max=50"`
}

// OTPRequest exchanges a one-time password for a token pair.
type OTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// RefreshTokenRequest mints a new token pair from a refresh token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// AuthResponse is returned by both /auth/verify-otp and /auth/refresh-token.
type AuthResponse struct {
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	UserID          string `json:"userId"`
	Email           string `json:"email"`
	FullName        string `json:"fullName"`
	AadhaarVerified bool   `json:"aadhaarVerified"`
	TokenType       string `json:"tokenType,omitempty"`
}

// Tokens returns the credential half of the response.
func (r AuthResponse) Tokens() Tokens {
	return Tokens{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// User is the profile of the signed-in traveller. It is both the body of
// GET /auth/profile and the user held by the client session.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	FullName        string    `json:"fullName"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	AadhaarVerified bool      `json:"aadhaarVerified"`
	Address         *Address  `json:"address,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`
}

// ProfileUpdate is the body of PUT /auth/profile. Nil fields are left
// unchanged by the backend.
type ProfileUpdate struct {
	FirstName   *string  `json:"firstName,omitempty" validate:"omitempty,max=50"`
	LastName    *string  `json:"lastName,omitempty" validate:"omitempty,max=50"`
	PhoneNumber *string  `json:"phoneNumber,omitempty" validate:"omitempty,e164"`
	Address     *Address `json:"address,omitempty"`
}
