package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, subject string, scopes ...string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func serve(h http.Handler, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(GetPlayerID(r.Context())))
})

func TestAuth(t *testing.T) {
	h := Auth(secret)(RequirePlayer(ok))

	rec := serve(h, sign(t, jwt.SigningMethodHS256, []byte(secret), "alice"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	tests := []struct {
		name   string
		bearer string
	}{
		{"missing header", ""},
		{"garbage", "abc"},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), "alice")},
		{"no subject", sign(t, jwt.SigningMethodHS256, []byte(secret), "")},
		{"subject with wildcard", sign(t, jwt.SigningMethodHS256, []byte(secret), "alice.*")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(h, tt.bearer).Code)
		})
	}
}

func TestAuthRejectsNonBearerScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic "+sign(t, jwt.SigningMethodHS256, []byte(secret), "alice"))
	rec := httptest.NewRecorder()
	Auth(secret)(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope(t *testing.T) {
	h := Auth(secret)(RequireScope(ScopeMarketplace)(ok))

	assert.Equal(t, http.StatusOK, serve(h, sign(t, jwt.SigningMethodHS256, []byte(secret), "svc", ScopeMarketplace)).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, sign(t, jwt.SigningMethodHS256, []byte(secret), "svc", ScopeIdentity)).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, sign(t, jwt.SigningMethodHS256, []byte(secret), "alice")).Code)
}

func TestPlayerRateLimit(t *testing.T) {
	h := Auth(secret)(PlayerRateLimit(2, time.Hour)(ok))
	alice := sign(t, jwt.SigningMethodHS256, []byte(secret), "alice")
	bob := sign(t, jwt.SigningMethodHS256, []byte(secret), "bob")

	assert.Equal(t, http.StatusOK, serve(h, alice).Code)
	assert.Equal(t, http.StatusOK, serve(h, alice).Code)

	rec := serve(h, alice)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(h, bob).Code)
}

func TestLoggingCorrelationAndPlayer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	h := Logging(log)(Auth(secret)(inner))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, []byte(secret), "alice"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "corr-1", fields["correlation_id"])
	assert.Equal(t, "alice", fields["player_id"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
}

func TestLoggingGeneratesCorrelationID(t *testing.T) {
	h := Logging(logger.Nop())(ok)
	rec := serve(h, "")
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestValidatePlayerID(t *testing.T) {
	assert.NoError(t, ValidatePlayerID("player-42"))
	assert.Error(t, ValidatePlayerID(""))
	assert.Error(t, ValidatePlayerID(strings.Repeat("a", 65)))
	for _, bad := range []string{"a.b", "a*", "a>", "a/b", "a b"} {
		assert.Error(t, ValidatePlayerID(bad), bad)
	}
}

func TestValidateConversationID(t *testing.T) {
	assert.NoError(t, ValidateConversationID("0190a6e2-7c4f-7a52-9b7e-0d4b2f1c3a11"))
	assert.Error(t, ValidateConversationID("id-1"))
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent(""))
	assert.NoError(t, ValidateMessageContent("Ahoj, je puzzle ještě k mání?"))
	assert.Error(t, ValidateMessageContent(string([]byte{0xff, 0xfe})))
	assert.Error(t, ValidateMessageContent(strings.Repeat("x", MaxContentBytes+1)))
}
