package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/credentials"
	agentvaulterrors "github.com/agentvault/agentvault-go/pkg/errors"
)

func cardWithScheme(scheme a2a.AgentAuthentication) *a2a.AgentCard {
	return &a2a.AgentCard{
		HumanReadableID: "acme_vault",
		URL:             "http://example.invalid/rpc",
		AuthSchemes:     []a2a.AgentAuthentication{scheme},
	}
}

func newReq(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://example.invalid/rpc", nil)
	require.NoError(t, err)
	return req
}

func TestApplyAuthNoneSchemeLeavesRequestUntouched(t *testing.T) {
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthSchemeNone})
	req := newReq(t)

	require.NoError(t, s.applyAuth(context.Background(), card, req))
	assert.Empty(t, req.Header.Get("X-Api-Key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestApplyAuthMissingSchemesLeavesRequestUntouched(t *testing.T) {
	s := New(credentials.New(""))
	card := &a2a.AgentCard{HumanReadableID: "acme_vault", URL: "http://example.invalid/rpc"}
	req := newReq(t)

	require.NoError(t, s.applyAuth(context.Background(), card, req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestApplyAuthSetsAPIKeyHeader(t *testing.T) {
	t.Setenv("AGENTVAULT_KEY_ACME_VAULT", "shhh")
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthSchemeAPIKey})
	req := newReq(t)

	require.NoError(t, s.applyAuth(context.Background(), card, req))
	assert.Equal(t, "shhh", req.Header.Get("X-Api-Key"))
}

func TestApplyAuthMissingAPIKeyFails(t *testing.T) {
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthSchemeAPIKey})
	req := newReq(t)

	err := s.applyAuth(context.Background(), card, req)
	require.Error(t, err)
	assert.IsType(t, &agentvaulterrors.A2AAuthenticationError{}, err)
}

func TestApplyAuthSetsBearerHeader(t *testing.T) {
	t.Setenv("AGENTVAULT_KEY_ACME_VAULT", "opaque-token-value")
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthSchemeBearer})
	req := newReq(t)

	require.NoError(t, s.applyAuth(context.Background(), card, req))
	assert.Equal(t, "Bearer opaque-token-value", req.Header.Get("Authorization"))
}

func TestApplyAuthRejectsExpiredBearerJWT(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	t.Setenv("AGENTVAULT_KEY_ACME_VAULT", signed)
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthSchemeBearer})
	req := newReq(t)

	err = s.applyAuth(context.Background(), card, req)
	require.Error(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestApplyAuthAcceptsUnexpiredBearerJWT(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	t.Setenv("AGENTVAULT_KEY_ACME_VAULT", signed)
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthSchemeBearer})
	req := newReq(t)

	require.NoError(t, s.applyAuth(context.Background(), card, req))
	assert.Equal(t, "Bearer "+signed, req.Header.Get("Authorization"))
}

func TestApplyAuthOAuth2FetchesAndCachesToken(t *testing.T) {
	var tokenRequests int
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"minted-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	t.Setenv("AGENTVAULT_OAUTH_ACME_VAULT_CLIENT_ID", "client-id")
	t.Setenv("AGENTVAULT_OAUTH_ACME_VAULT_CLIENT_SECRET", "client-secret")
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthSchemeOAuth2, TokenURL: tokenServer.URL})

	req1 := newReq(t)
	require.NoError(t, s.applyAuth(context.Background(), card, req1))
	assert.Equal(t, "Bearer minted-token", req1.Header.Get("Authorization"))

	req2 := newReq(t)
	require.NoError(t, s.applyAuth(context.Background(), card, req2))
	assert.Equal(t, "Bearer minted-token", req2.Header.Get("Authorization"))

	assert.Equal(t, 1, tokenRequests, "second applyAuth call should reuse the cached token")
}

func TestApplyAuthUnsupportedSchemeFails(t *testing.T) {
	s := New(credentials.New(""))
	card := cardWithScheme(a2a.AgentAuthentication{Scheme: a2a.AuthScheme("smartcard")})
	req := newReq(t)

	err := s.applyAuth(context.Background(), card, req)
	require.Error(t, err)
}
