// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package cors holds the fixed cross-origin header set attached to every
// proxy response.
package cors

import "net/http"

const (
	AllowOrigin  = "*"
	AllowMethods = "GET, POST, OPTIONS"
	AllowHeaders = "Content-Type, Authorization, Prefer"
	MaxAge       = "86400"
)

var headers = map[string]string{
	"Access-Control-Allow-Origin":  AllowOrigin,
	"Access-Control-Allow-Methods": AllowMethods,
	"Access-Control-Allow-Headers": AllowHeaders,
	"Access-Control-Max-Age":       MaxAge,
}

// Apply sets the CORS headers on h, overwriting existing values.
func Apply(h http.Header) {
	for k, v := range headers {
		h.Set(k, v)
	}
}

// Headers returns a copy of the CORS header set.
func Headers() http.Header {
	h := make(http.Header, len(headers))
	Apply(h)
	return h
}
