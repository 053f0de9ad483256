package authmodel

import (
	"strings"
	"time"
	"unicode"
)

// SplitFullName splits a display name on its first whitespace run. The
// remainder, however many words, becomes the last name.
func SplitFullName(fullName string) (first, last string) {
	fullName = strings.TrimSpace(fullName)
	idx := strings.IndexFunc(fullName, unicode.IsSpace)
	if idx < 0 {
		return fullName, ""
	}
	return fullName[:idx], strings.TrimSpace(fullName[idx:])
}

// UserFromAuth derives the session user from an authentication response.
func UserFromAuth(resp AuthResponse, now time.Time) User {
	first, last := SplitFullName(resp.FullName)
	return User{
		ID:              resp.UserID,
		Email:           resp.Email,
		FirstName:       first,
		LastName:        last,
		FullName:        resp.FullName,
		AadhaarVerified: resp.AadhaarVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AuthFromProfile rebuilds an authentication response from a stored token
// pair and a freshly fetched profile. Used when rehydrating a session.
func AuthFromProfile(tokens Tokens, profile User) AuthResponse {
	fullName := profile.FullName
	if fullName == "" {
		fullName = strings.TrimSpace(profile.FirstName + " " + profile.LastName)
	}
	tokenType := tokens.TokenType
	if tokenType == "" {
		tokenType = TokenTypeBearer
	}
	return AuthResponse{
		AccessToken:     tokens.AccessToken,
		RefreshToken:    tokens.RefreshToken,
		UserID:          profile.ID,
		Email:           profile.Email,
		FullName:        fullName,
		AadhaarVerified: profile.AadhaarVerified,
		TokenType:       tokenType,
	}
}
