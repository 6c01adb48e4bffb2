package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestResourceFromRoute(t *testing.T) {
	tests := map[string]string{
		"/api/v1/imports":             "imports",
		"/api/v1/imports/:id/preview": "imports",
		"/api/v2/schemas":             "schemas",
		"/health":                     "health",
		"/api/v1/:id":                 "",
		"/api/version/imports":        "version",
	}
	for route, want := range tests {
		assert.Equal(t, want, resourceFromRoute(route), route)
	}
}

func TestProfiling(t *testing.T) {
	gin.SetMode(gin.TestMode)

	labels := map[string]string{}
	engine := gin.New()
	engine.Use(Profiling(DefaultProfilingConfig()))
	capture := func(c *gin.Context) {
		pprof.ForLabels(c.Request.Context(), func(k, v string) bool {
			labels[k] = v
			return true
		})
		c.Status(http.StatusOK)
	}
	engine.GET("/api/v1/imports/:id", capture)
	engine.GET("/health", capture)

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/imports/abc", nil))
	assert.Equal(t, "GET", labels["method"])
	assert.Equal(t, "/api/v1/imports/:id", labels["route"])
	assert.Equal(t, "imports", labels["resource"])

	clear(labels)
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, labels)
}

func TestProfiling_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Profiling(ProfilingConfig{}))
	var labelled bool
	engine.GET("/api/v1/imports", func(c *gin.Context) {
		_, labelled = pprof.Label(c.Request.Context(), "route")
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/imports", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, labelled)
}
