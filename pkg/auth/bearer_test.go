// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerAttach(t *testing.T) {
	u, err := url.Parse("https://example.com/v1/predictions")
	require.NoError(t, err)

	req := &http.Request{
		Method: http.MethodPost,
		URL:    u,
		Header: http.Header{HeaderAuthorization: []string{"Bearer client-supplied"}},
	}

	b := NewBearer(" r8_secret ")
	require.NoError(t, b.Attach(req))

	assert.Equal(t, "Bearer r8_secret", req.Header.Get(HeaderAuthorization))
	assert.Len(t, req.Header.Values(HeaderAuthorization), 1)
}

func TestBearerAttachWithoutToken(t *testing.T) {
	req := &http.Request{Header: make(http.Header)}

	b := NewBearer("")
	assert.False(t, b.Configured())
	assert.ErrorIs(t, b.Attach(req), ErrMissingCredential)
	assert.Empty(t, req.Header.Get(HeaderAuthorization))

	var nilBearer *Bearer
	assert.ErrorIs(t, nilBearer.Attach(req), ErrMissingCredential)
}

func TestBearerRedact(t *testing.T) {
	b := NewBearer("r8_secret")
	assert.Equal(t, "token [REDACTED] leaked", b.Redact("token r8_secret leaked"))
	assert.Equal(t, "bearer(set)", b.String())

	assert.Equal(t, "unchanged", NewBearer("").Redact("unchanged"))
}
