package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/pkg/jwtutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// countingRedis implements the two commands the limiter issues.
type countingRedis struct {
	redis.UniversalClient
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newCountingRedis() *countingRedis {
	return &countingRedis{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (r *countingRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "incr", key)
	if r.err != nil {
		cmd.SetErr(r.err)
		return cmd
	}
	r.counts[key]++
	cmd.SetVal(r.counts[key])
	return cmd
}

func (r *countingRedis) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	r.expires[key] = ttl
	cmd := redis.NewBoolCmd(ctx, "expire", key)
	cmd.SetVal(true)
	return cmd
}

func limitedRouter(rdb redis.UniversalClient, requests int) *gin.Engine {
	r := gin.New()
	r.POST("/api/chat", RateLimiter(rdb, RateLimit{Name: "chat", Requests: requests, Window: time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rdb := newCountingRedis()
	r := limitedRouter(rdb, 2)

	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
		codes = append(codes, rec.Code)
		if i == 2 {
			assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	require.Len(t, rdb.expires, 1)
	for key, ttl := range rdb.expires {
		assert.Contains(t, key, "ratelimit:chat:")
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	rdb := newCountingRedis()
	rdb.err = errors.New("connection refused")
	r := limitedRouter(rdb, 1)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestAuthJWTAndRole(t *testing.T) {
	const secret = "test-secret"
	r := gin.New()
	r.GET("/admin", AuthJWT(secret), RequireRole("admin"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsernameKey))
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)

	viewer, err := jwtutil.GenerateToken(secret, "bob", "viewer", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call("Bearer "+viewer).Code)

	admin, err := jwtutil.GenerateToken(secret, "alice", "admin", time.Hour)
	require.NoError(t, err)
	rec := call("Bearer " + admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestRequestIDEchoesHeader(t *testing.T) {
	r := gin.New()
	r.GET("/", RequestID(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}
