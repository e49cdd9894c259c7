package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-social/internal/credential"
	"github.com/ovaphlow/pitchfork/service-social/internal/middleware"
)

type pingGroup struct {
	pattern string
	seen    []string
}

func (p *pingGroup) Register(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle(p.pattern, authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.IdentityFrom(r.Context())
		p.seen = append(p.seen, RequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(string(id.Role)))
	})))
}

func newRouter(t *testing.T, limiter middleware.Limiter) (http.Handler, *credential.TokenIssuer, *pingGroup, *pingGroup) {
	t.Helper()
	tokens := credential.NewTokenIssuer("secret", time.Hour)
	user := &pingGroup{pattern: "GET /api/user/ping"}
	admin := &pingGroup{pattern: "GET /api/admin/ping"}
	h := RegisterRoutes(Deps{
		Logger:       zap.NewNop().Sugar(),
		Tokens:       tokens,
		Limiter:      limiter,
		RateLimitMax: 2,
		Social:       user,
		Admin:        admin,
	})
	return h, tokens, user, admin
}

func get(h http.Handler, path, token string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndHeaders(t *testing.T) {
	h, _, _, _ := newRouter(t, nil)
	rec := get(h, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	hdr := rec.Header()
	assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
	assert.Equal(t, "cross-origin", hdr.Get("Cross-Origin-Resource-Policy"))
	assert.NotEmpty(t, hdr.Get("Content-Security-Policy"))
	assert.Empty(t, hdr.Get("Strict-Transport-Security"), "plain HTTP gets no HSTS")
	assert.Len(t, hdr.Get("X-Request-ID"), 27, "ksuid")

	assert.Equal(t, http.StatusNotFound, get(h, "/nope", "").Code)
}

func TestRequestIDPropagates(t *testing.T) {
	h, tokens, user, _ := newRouter(t, nil)
	tok, _, err := tokens.Generate(1, "USER")
	require.NoError(t, err)

	rec := get(h, "/api/user/ping", tok, "X-Request-ID", "req-123")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"req-123"}, user.seen)
}

func TestAuthGroups(t *testing.T) {
	h, tokens, _, _ := newRouter(t, nil)
	userTok, _, _ := tokens.Generate(1, "USER")
	adminTok, _, _ := tokens.Generate(2, "ADMIN")

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/user/ping", "").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/api/user/ping", "garbage").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/api/admin/ping", userTok).Code)

	rec := get(h, "/api/admin/ping", adminTok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ADMIN", rec.Body.String())
}

func TestRateLimitApplies(t *testing.T) {
	limiter := middleware.NewMemoryLimiter(2, time.Minute)
	t.Cleanup(limiter.Close)
	h, _, _, _ := newRouter(t, limiter)

	for i := 0; i < 2; i++ {
		rec := get(h, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("RateLimit-Limit"))
	}
	rec := get(h, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "outer middleware still runs")
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core).Sugar()
	h := RequestIDMiddleware()(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("hello"))
	})))

	get(h, "/hello", "", "X-Request-ID", "abc")
	get(h, "/boom", "")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, "abc", first["request_id"])
	assert.EqualValues(t, http.StatusOK, first["status"])
	assert.EqualValues(t, 5, first["size"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusInternalServerError, entries[1].ContextMap()["status"])
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}
