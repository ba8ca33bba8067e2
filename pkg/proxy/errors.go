// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for the failure classes a forwarded request can end in. They
// match any *Error of the same class via errors.Is.
var (
	ErrConfig     = errors.New("config error")
	ErrBadRequest = errors.New("bad request")
	ErrUpstream   = errors.New("upstream error")
)

const (
	msgMissingCredential = "API token is not configured; set the REPLICATE_API_TOKEN environment variable"
	msgInvalidBody       = "invalid request data; provide a valid JSON body"
	msgBodyTooLarge      = "request body exceeds the configured size limit"
	msgUpstreamFailed    = "error while processing request"
)

// Error carries the HTTP status and client-facing message for a failed
// request alongside the cause that is only logged or echoed as details.
type Error struct {
	Kind    error  // Kind is one of ErrConfig, ErrBadRequest, ErrUpstream.
	Status  int    // Status is the HTTP status emitted downstream.
	Message string // Message is safe to show to the client.
	Err     error  // Err retains the original cause.
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As checks.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error class sentinel.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func configError(err error) *Error {
	return &Error{Kind: ErrConfig, Status: http.StatusInternalServerError, Message: msgMissingCredential, Err: err}
}

func badRequestError(msg string, err error) *Error {
	return &Error{Kind: ErrBadRequest, Status: http.StatusBadRequest, Message: msg, Err: err}
}

func upstreamError(err error) *Error {
	return &Error{Kind: ErrUpstream, Status: http.StatusInternalServerError, Message: msgUpstreamFailed, Err: err}
}

// errorBody is the JSON shape of every error the proxy itself produces.
// Details is only filled for upstream failures.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
