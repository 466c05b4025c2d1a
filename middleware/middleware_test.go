package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/seo-optimizer/signal-engine/errs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	statuses := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	assert.Equal(t, []int{200, 200, 200, 429, 429}, statuses)
}

func TestRateLimitIsPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = fmt.Sprintf("10.0.0.%d:1234", i+1)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestErrorHandlerRecoversPanics(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(nil))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "unexpected error")
}

func TestErrorHandlerMapsContextErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(nil))
	r.GET("/bad", func(c *gin.Context) {
		c.Error(errs.Invalid("bad input"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(errs.Invalid("x")))
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(errs.ErrRateLimited))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(errs.ErrTimeout))
	assert.Equal(t, http.StatusBadGateway, StatusFor(errs.ErrAuthError))
	assert.Equal(t, http.StatusBadGateway, StatusFor(errs.Malformedf("p", "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("other")))
}
