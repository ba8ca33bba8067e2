// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareWaitSignals(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantWait bool
		wantBody string
	}{
		{
			name:     "no signal",
			body:     `{"version":"v1","input":{"prompt":"cat"}}`,
			wantBody: `{"version":"v1","input":{"prompt":"cat"}}`,
		},
		{
			name:     "wait true",
			body:     `{"wait":true,"input":{"prompt":"cat"}}`,
			wantWait: true,
			wantBody: `{"input":{"prompt":"cat"}}`,
		},
		{
			name:     "wait false is stripped without waiting",
			body:     `{"input":{"prompt":"cat"},"wait":false}`,
			wantBody: `{"input":{"prompt":"cat"}}`,
		},
		{
			name:     "wait zero",
			body:     `{"wait":0,"input":{}}`,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "wait number",
			body:     `{"wait":30,"input":{}}`,
			wantWait: true,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "wait empty string",
			body:     `{"wait":"","input":{}}`,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "wait null",
			body:     `{"wait":null,"input":{}}`,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "wait empty object is truthy",
			body:     `{"wait":{},"input":{}}`,
			wantWait: true,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "prefer wait",
			body:     `{"prefer":"wait","input":{}}`,
			wantWait: true,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "prefer other value",
			body:     `{"prefer":"respond-async","input":{}}`,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "both fields",
			body:     `{"prefer":"wait","wait":true,"input":{"n":1}}`,
			wantWait: true,
			wantBody: `{"input":{"n":1}}`,
		},
		{
			name:     "repeated wait uses last value",
			body:     `{"wait":false,"wait":true,"input":{}}`,
			wantWait: true,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "repeated wait last falsy",
			body:     `{"wait":true,"input":{},"wait":0}`,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "repeated prefer uses last value",
			body:     `{"prefer":"x","prefer":"wait"}`,
			wantWait: true,
			wantBody: `{}`,
		},
		{
			name:     "escaped key",
			body:     `{"w\u0061it":true,"input":{}}`,
			wantWait: true,
			wantBody: `{"input":{}}`,
		},
		{
			name:     "nested wait is untouched",
			body:     `{"input":{"wait":true}}`,
			wantBody: `{"input":{"wait":true}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Prepare([]byte(tt.body), "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantWait, got.Wait)
			assert.JSONEq(t, tt.wantBody, string(got.Body))
		})
	}
}

func TestPrepareInvalidJSON(t *testing.T) {
	for _, body := range []string{"", "not-json", `{"foo":`, `{"a":1}}`} {
		_, err := Prepare([]byte(body), "")
		assert.ErrorIs(t, err, ErrInvalidJSON, "body %q", body)
	}
}

func TestPrepareNonObjectPassesThrough(t *testing.T) {
	got, err := Prepare([]byte(`["wait"]`), "v1")
	require.NoError(t, err)
	assert.False(t, got.Wait)
	assert.Equal(t, `["wait"]`, string(got.Body))
}

func TestPrepareDefaultVersion(t *testing.T) {
	got, err := Prepare([]byte(`{"input":{"prompt":"cat"}}`), "d1d6ea8c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"d1d6ea8c","input":{"prompt":"cat"}}`, string(got.Body))

	got, err = Prepare([]byte(`{"version":"mine","input":{}}`), "d1d6ea8c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"mine","input":{}}`, string(got.Body))
}
