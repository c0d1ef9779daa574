package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sapliy/staff-notify/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	a := NewAuthenticator("secret", "staff-notify")
	tok, err := a.Issue(Principal{Subject: "u1", Name: "Alice Jones", Roles: []policy.Role{policy.RoleManager}}, time.Hour)
	require.NoError(t, err)

	p, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.Subject)
	assert.Equal(t, "Alice Jones", p.Name)
	assert.True(t, p.HasRole(policy.RoleManager))
	assert.False(t, p.HasRole(policy.RoleAdmin))
}

func TestVerifyRejects(t *testing.T) {
	a := NewAuthenticator("secret", "staff-notify")

	expired, err := a.Issue(Principal{Subject: "u1"}, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewAuthenticator("other", "staff-notify").Issue(Principal{Subject: "u1"}, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewAuthenticator("secret", "someone-else").Issue(Principal{Subject: "u1"}, time.Hour)
	require.NoError(t, err)

	noSubject, err := a.Issue(Principal{}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "iss": "staff-notify"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no subject":   noSubject,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyDefaultsNameToSubject(t *testing.T) {
	a := NewAuthenticator("secret", "")
	tok, err := a.Issue(Principal{Subject: "bob"}, time.Hour)
	require.NoError(t, err)

	p, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Name)
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator("secret", "staff-notify")
	valid, err := a.Issue(Principal{Subject: "u1", Name: "Alice"}, time.Hour)
	require.NoError(t, err)

	var seen *Principal
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer", "Bearer " + valid, "", http.StatusNoContent},
		{"query token", "", "?access_token=" + valid, http.StatusNoContent},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, "", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/notifications"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "Alice", seen.Name)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
