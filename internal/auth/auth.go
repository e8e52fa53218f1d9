// Package auth turns an incoming request into the id of the calling user.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/supabase-community/supabase-go"

	"github.com/agenthands/notegraph/internal/config"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Verifier interface {
	// Verify returns the user id of the request or ErrUnauthenticated.
	Verify(r *http.Request) (string, error)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SupabaseVerifier validates bearer tokens against Supabase Auth with the
// service role key.
type SupabaseVerifier struct {
	lookup func(token string) (string, error)
}

func NewSupabaseVerifier(url, serviceKey string) (*SupabaseVerifier, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create supabase client: %w", err)
	}
	return &SupabaseVerifier{
		lookup: func(token string) (string, error) {
			user, err := client.Auth.WithToken(token).GetUser()
			if err != nil {
				return "", err
			}
			return user.ID.String(), nil
		},
	}, nil
}

func (v *SupabaseVerifier) Verify(r *http.Request) (string, error) {
	token, ok := BearerToken(r)
	if !ok {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}
	userID, err := v.lookup(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return userID, nil
}

// HeaderVerifier trusts a user id header set by an authenticating gateway.
type HeaderVerifier struct {
	Header string
}

func (v HeaderVerifier) Verify(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(v.Header))
	if userID == "" {
		return "", fmt.Errorf("%w: missing %s header", ErrUnauthenticated, v.Header)
	}
	return userID, nil
}

func New(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Provider {
	case "supabase":
		return NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseKey)
	case "", "header":
		header := cfg.UserHeader
		if header == "" {
			header = "X-User-ID"
		}
		return HeaderVerifier{Header: header}, nil
	default:
		return nil, fmt.Errorf("unsupported auth provider: %s", cfg.Provider)
	}
}
