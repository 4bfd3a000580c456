package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nftmarket/crypto"
)

func testAccount(t *testing.T) crypto.Address {
	t.Helper()
	addr, err := crypto.NewAddress(crypto.MarketPrefix, bytes.Repeat([]byte{0x01}, 20))
	require.NoError(t, err)
	return addr
}

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(crypto.FormatAddress(crypto.MarketPrefix, caller)))
	})
}

func TestAuthenticatorBindsCaller(t *testing.T) {
	account := testAccount(t)
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: "secret", Issuer: "marketd", AllowAnonymous: true}, nil)
	handler := auth.Middleware()(callerEcho())

	token, err := IssueToken("secret", "marketd", "", account, []string{"market:trade"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, account.String(), res.Body.String())

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	require.Equal(t, "anonymous", res.Body.String())
}

func TestAuthenticatorRejections(t *testing.T) {
	account := testAccount(t)
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: "secret", Issuer: "marketd"}, nil)

	wrongSecret, err := IssueToken("other", "marketd", "", account, nil, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := IssueToken("secret", "someone", "", account, nil, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("secret", "marketd", "", account, nil, -time.Hour)
	require.NoError(t, err)
	noScope, err := IssueToken("secret", "marketd", "", account, nil, time.Hour)
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		scopes []string
		status int
	}{
		"missing token": {status: http.StatusUnauthorized},
		"wrong secret":  {header: "Bearer " + wrongSecret, status: http.StatusUnauthorized},
		"wrong issuer":  {header: "Bearer " + wrongIssuer, status: http.StatusUnauthorized},
		"expired":       {header: "Bearer " + expired, status: http.StatusUnauthorized},
		"missing scope": {header: "Bearer " + noScope, scopes: []string{"market:admin"}, status: http.StatusForbidden},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			auth.Middleware(tc.scopes...)(callerEcho()).ServeHTTP(res, req)
			require.Equal(t, tc.status, res.Code)
		})
	}
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	require.False(t, auth.Enabled())
	res := httptest.NewRecorder()
	auth.Middleware()(callerEcho()).ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "anonymous", res.Body.String())
}
