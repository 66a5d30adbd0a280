package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func correlationRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Correlation(), RateLimit(config.RateLimitSettings{Enabled: true, MaxRequests: 1, Window: time.Minute}))
	r.GET("/cid", func(c *gin.Context) {
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.String(http.StatusOK, cid)
	})
	return r
}

func TestCorrelationKeepsCallerId(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cid", nil)
	req.Header.Set(CorrelationHeader, "run-42")
	w := httptest.NewRecorder()
	correlationRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-42", w.Body.String())
	assert.Equal(t, "run-42", w.Header().Get(CorrelationHeader))
}

func TestCorrelationGeneratesId(t *testing.T) {
	w := httptest.NewRecorder()
	correlationRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cid", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(CorrelationHeader))
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	config.SetRedisClient(nil)
	r := correlationRouter()
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cid", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	}
}
