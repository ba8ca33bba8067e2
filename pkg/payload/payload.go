// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package payload rewrites inbound prediction requests into the body sent
// upstream. Bodies stay as raw JSON and are edited by key, so fields the
// proxy does not know about pass through untouched.
package payload

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// FieldPrefer and FieldWait are proxy-only signals and never reach the upstream.
	FieldPrefer = "prefer"
	FieldWait   = "wait"
	// FieldVersion selects the upstream model version.
	FieldVersion = "version"

	preferWait = "wait"
)

// ErrInvalidJSON is returned when the inbound body cannot be parsed.
var ErrInvalidJSON = errors.New("body is not valid JSON")

// Prepared is the upstream-ready form of an inbound body.
type Prepared struct {
	Body []byte
	// Wait is set when the caller asked the upstream to hold the response
	// until the prediction finishes.
	Wait bool
}

// Prepare validates body, extracts the wait signal and strips the proxy-only
// fields. When defaultVersion is non-empty and the body is an object without
// a version, it is added.
func Prepare(body []byte, defaultVersion string) (Prepared, error) {
	if !gjson.ValidBytes(body) {
		return Prepared{}, ErrInvalidJSON
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		// Nothing to inspect; forwarded as-is and left for the upstream to reject.
		return Prepared{Body: body}, nil
	}

	out := Prepared{
		Body: body,
		Wait: wantsWait(root),
	}

	var err error
	for _, field := range []string{FieldPrefer, FieldWait} {
		out.Body, err = deleteAll(out.Body, field)
		if err != nil {
			return Prepared{}, err
		}
	}

	if defaultVersion != "" && !root.Get(FieldVersion).Exists() {
		out.Body, err = sjson.SetBytes(out.Body, FieldVersion, defaultVersion)
		if err != nil {
			return Prepared{}, fmt.Errorf("set %q: %w", FieldVersion, err)
		}
	}

	return out, nil
}

// wantsWait reads the last occurrence of each signal field, matching how
// JSON.parse resolves repeated keys.
func wantsWait(root gjson.Result) bool {
	var prefer, wait gjson.Result
	root.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case FieldPrefer:
			prefer = value
		case FieldWait:
			wait = value
		}
		return true
	})
	if prefer.Type == gjson.String && prefer.Str == preferWait {
		return true
	}
	return truthy(wait)
}

// deleteAll removes every top-level occurrence of field.
func deleteAll(body []byte, field string) ([]byte, error) {
	for gjson.GetBytes(body, field).Exists() {
		next, err := sjson.DeleteBytes(body, field)
		if err != nil {
			return nil, fmt.Errorf("strip %q: %w", field, err)
		}
		if len(next) >= len(body) {
			return nil, fmt.Errorf("strip %q: key not removed", field)
		}
		body = next
	}
	return body, nil
}

// truthy follows JavaScript semantics, which is what browser clients of the
// proxy send: false, null, 0 and "" are falsy, objects and arrays are not.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		return true
	default:
		return false
	}
}
