package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminSecret = "inbox-secret"

func issue(t *testing.T, secret, role string, ttl time.Duration) string {
	t.Helper()
	token, err := IssueAdminToken(secret, "owner@studio.test", role, ttl)
	require.NoError(t, err)
	return token
}

func signWith(t *testing.T, method jwt.SigningMethod, claims AdminClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(adminSecret))
	require.NoError(t, err)
	return token
}

func TestAdminJWT(t *testing.T) {
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"auth disabled", "", "Bearer " + issue(t, adminSecret, "admin", time.Hour), http.StatusUnauthorized},
		{"no header", adminSecret, "", http.StatusUnauthorized},
		{"not bearer", adminSecret, "Basic YWRtaW46YWRtaW4=", http.StatusUnauthorized},
		{"garbage", adminSecret, "Bearer not.a.jwt", http.StatusUnauthorized},
		{"wrong secret", adminSecret, "Bearer " + issue(t, "other-secret", "admin", time.Hour), http.StatusUnauthorized},
		{"expired", adminSecret, "Bearer " + issue(t, adminSecret, "admin", -time.Hour), http.StatusUnauthorized},
		{"no expiry", adminSecret, "Bearer " + signWith(t, jwt.SigningMethodHS256, AdminClaims{Role: "admin"}), http.StatusUnauthorized},
		{"other alg", adminSecret, "Bearer " + signWith(t, jwt.SigningMethodHS512, AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}), http.StatusUnauthorized},
		{"guest role", adminSecret, "Bearer " + issue(t, adminSecret, "guest", time.Hour), http.StatusForbidden},
		{"admin role", adminSecret, "Bearer " + issue(t, adminSecret, "admin", time.Hour), http.StatusOK},
		{"studio role", adminSecret, "Bearer " + issue(t, adminSecret, "studio", time.Hour), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var claims AdminClaims
			var called bool
			h := AdminJWT(tt.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				claims, _ = AdminClaimsFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/admin/bookings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
			if called {
				assert.Equal(t, "owner@studio.test", claims.Subject)
			}
		})
	}
}

func TestAdminClaimsFromContextEmpty(t *testing.T) {
	_, ok := AdminClaimsFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
