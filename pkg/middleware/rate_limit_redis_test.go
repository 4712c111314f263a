package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// redisLimitedRouter limits content edits per principal; the X-Sub header
// stands in for verified claims.
func redisLimitedRouter(client *redis.Client, burst int) *gin.Engine {
	g := gin.New()
	g.Use(func(c *gin.Context) {
		if sub := c.GetHeader("X-Sub"); sub != "" {
			c.Set("claims", map[string]interface{}{"sub": sub, "roles": []interface{}{"ROLE_EDITOR"}})
		}
		c.Next()
	})
	g.Use(PrincipalMiddleware(nil), RedisRateLimitMiddleware(client, 0, burst, time.Hour))
	g.POST("/api/content/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return g
}

func saveAs(g *gin.Engine, sub string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/content/1", nil)
	if sub != "" {
		req.Header.Set("X-Sub", sub)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w.Code
}

func TestRedisRateLimitMiddleware_BucketsPerPrincipal(t *testing.T) {
	m := mr.RunT(t)
	g := redisLimitedRouter(redis.NewClient(&redis.Options{Addr: m.Addr()}), 2)

	require.Equal(t, http.StatusOK, saveAs(g, "alice"))
	require.Equal(t, http.StatusOK, saveAs(g, "alice"))
	require.Equal(t, http.StatusTooManyRequests, saveAs(g, "alice"))
	require.Equal(t, http.StatusOK, saveAs(g, "bob"), "another editor has its own bucket")

	var aliceKey string
	for _, k := range m.Keys() {
		if strings.HasPrefix(k, "rl:sub:alice:") {
			aliceKey = k
		}
	}
	require.NotEmpty(t, aliceKey, "keys: %v", m.Keys())
	count, err := m.Get(aliceKey)
	require.NoError(t, err)
	require.Equal(t, "3", count)
	require.Equal(t, time.Hour+time.Second, m.TTL(aliceKey))

	// the bucket expires with its window
	m.FastForward(2 * time.Hour)
	require.Equal(t, http.StatusOK, saveAs(g, "alice"))
}

func TestRedisRateLimitMiddleware_AnonymousUsesClientIP(t *testing.T) {
	m := mr.RunT(t)
	g := redisLimitedRouter(redis.NewClient(&redis.Options{Addr: m.Addr()}), 1)

	require.Equal(t, http.StatusOK, saveAs(g, ""))
	require.Equal(t, http.StatusTooManyRequests, saveAs(g, ""))
	for _, k := range m.Keys() {
		require.False(t, strings.HasPrefix(k, "rl:sub:"), k)
	}
}

func TestRedisRateLimitMiddleware_NilClientFallsBack(t *testing.T) {
	g := redisLimitedRouter(nil, 1)
	require.Equal(t, http.StatusOK, saveAs(g, "alice"))
	require.Equal(t, http.StatusTooManyRequests, saveAs(g, "alice"))
}
