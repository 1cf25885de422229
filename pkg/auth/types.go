package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrMissingToken is returned when no bearer token is present
	ErrMissingToken = errors.New("missing bearer token")
	// ErrMalformedHeader is returned for a non-Bearer Authorization header
	ErrMalformedHeader = errors.New("invalid authorization header format")
	// ErrInvalidToken is returned when token verification fails
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrMissingClaims is returned when a verified token lacks identity claims
	ErrMissingClaims = errors.New("token is missing required identity claims")
)

// Identity is the authenticated caller as asserted by a verified token
type Identity struct {
	UserID string
	OrgID  string
	Role   string
	Name   string
}

// Authenticator turns a raw bearer token into an identity
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*Identity, error)
}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>"
// header value. An empty header yields ErrMissingToken.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedHeader
	}
	return token, nil
}
