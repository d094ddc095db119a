// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package session mints the signed session token handed out when a
// login challenge completes. Tokens are HMAC-signed (and optionally
// AES-encrypted) values, not server-side sessions.
package session

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gorilla/securecookie"
)

const tokenName = "veriflow_session"

// User is the identity carried inside a session token.
type User struct {
	ID       int64     `json:"id"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	IssuedAt time.Time `json:"issued_at"`
}

type Service struct {
	sc     *securecookie.SecureCookie
	maxAge time.Duration
}

// NewService creates a session service. hashKey must be a 32-byte hex
// string; blockKey is optional and enables encryption when set.
func NewService(hashKey, blockKey string, maxAge time.Duration) (*Service, error) {
	hk, err := hex.DecodeString(hashKey)
	if err != nil || len(hk) != 32 {
		return nil, fmt.Errorf("session hash key must be a 32-byte hex string")
	}

	var bk []byte
	if blockKey != "" {
		bk, err = hex.DecodeString(blockKey)
		if err != nil || len(bk) != 32 {
			return nil, fmt.Errorf("session block key must be a 32-byte hex string")
		}
	}

	sc := securecookie.New(hk, bk)
	sc.MaxAge(int(maxAge.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	return &Service{sc: sc, maxAge: maxAge}, nil
}

// Issue mints a signed token for the given user.
func (s *Service) Issue(id int64, email, role string) (string, error) {
	user := User{ID: id, Email: email, Role: role, IssuedAt: time.Now().UTC()}
	token, err := s.sc.Encode(tokenName, user)
	if err != nil {
		return "", fmt.Errorf("failed to encode session token: %w", err)
	}
	return token, nil
}

// Decode validates a token and returns the identity it carries.
func (s *Service) Decode(token string) (*User, error) {
	var user User
	if err := s.sc.Decode(tokenName, token, &user); err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	return &user, nil
}
