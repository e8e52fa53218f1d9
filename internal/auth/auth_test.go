package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/notegraph/internal/config"
)

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, ok := BearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "Basic abc")
	_, ok = BearerToken(r)
	assert.False(t, ok)

	r.Header.Set("Authorization", "bearer  tok-1 ")
	token, ok := BearerToken(r)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
}

func TestSupabaseVerifier(t *testing.T) {
	v := &SupabaseVerifier{lookup: func(token string) (string, error) {
		if token == "good" {
			return "user-1", nil
		}
		return "", errors.New("invalid JWT")
	}}

	r := httptest.NewRequest("GET", "/", nil)
	_, err := v.Verify(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	r.Header.Set("Authorization", "Bearer bad")
	_, err = v.Verify(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	r.Header.Set("Authorization", "Bearer good")
	id, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestHeaderVerifier(t *testing.T) {
	v, err := New(config.AuthConfig{Provider: "header", UserHeader: "X-Forwarded-User"})
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	_, err = v.Verify(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	r.Header.Set("X-Forwarded-User", "u1")
	id, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = New(config.AuthConfig{Provider: "ldap"})
	assert.Error(t, err)
}
