// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderAuthorization = "Authorization"
	schemeBearer        = "Bearer"
)

// ErrMissingCredential is returned when no upstream token was configured.
var ErrMissingCredential = errors.New("upstream credential is not configured")

// Bearer injects a static bearer token into upstream requests.
type Bearer struct {
	token string
}

// NewBearer constructs a Bearer for the given token. An empty token is
// accepted; Attach reports it on use.
func NewBearer(token string) *Bearer {
	return &Bearer{token: strings.TrimSpace(token)}
}

// Configured reports whether a token is available.
func (b *Bearer) Configured() bool {
	return b != nil && b.token != ""
}

// Attach sets the Authorization header on req, replacing any value the
// caller may have supplied.
func (b *Bearer) Attach(req *http.Request) error {
	if !b.Configured() {
		return ErrMissingCredential
	}
	req.Header.Set(HeaderAuthorization, schemeBearer+" "+b.token)
	return nil
}

// Redact replaces every occurrence of the token in s.
func (b *Bearer) Redact(s string) string {
	if !b.Configured() {
		return s
	}
	return strings.ReplaceAll(s, b.token, "[REDACTED]")
}

// String never exposes the token, so a Bearer is safe to log.
func (b *Bearer) String() string {
	if !b.Configured() {
		return "bearer(unset)"
	}
	return "bearer(set)"
}
