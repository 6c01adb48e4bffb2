package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func fieldMap(e observer.LoggedEntry) map[string]any {
	return e.ContextMap()
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	assert.NotNil(t, l)

	path := filepath.Join(t.TempDir(), "ingest.log")
	l, err = New(&Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	l.Info("hello", zap.String("k", "v"))
	require.NoError(t, l.Sync())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, err = New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestContextHelpers(t *testing.T) {
	base, logs := observed(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), base)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSessionID(ctx, "sess-9")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "sess-9", GetSessionID(ctx))

	L(ctx).Info("batch done")
	require.Equal(t, 1, logs.Len())
	fields := fieldMap(logs.All()[0])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "sess-9", fields["session_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
	assert.Equal(t, "", GetSessionID(context.Background()))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	base, logs := observed(zapcore.DebugLevel)

	r := gin.New()
	r.Use(Recovery(base), GinMiddleware(base))
	r.GET("/imports/:id", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { panic("kaput") })

	req := httptest.NewRequest(http.MethodGet, "/imports/abc?limit=5", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))
	inside := logs.FilterMessage("inside handler").All()
	require.Len(t, inside, 1)
	assert.Equal(t, "abc", fieldMap(inside[0])["session_id"])
	access := logs.FilterMessage("HTTP Request").All()
	require.Len(t, access, 1)
	assert.Equal(t, "limit=5", fieldMap(access[0])["query"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestGormLogger_Trace(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)
	gl := NewGormLogger(base, "info", 50*time.Millisecond)
	ctx := WithSessionID(context.Background(), "sess-1")
	sql := func() (string, int64) { return "INSERT INTO products ...", 100 }

	gl.Trace(ctx, time.Now(), sql, nil)
	gl.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	gl.Trace(ctx, time.Now(), sql, errors.New("unique violation"))
	gl.Trace(ctx, time.Now(), sql, gormlogger.ErrRecordNotFound)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "SQL", entries[0].Message)
	assert.Equal(t, "sess-1", fieldMap(entries[0])["session_id"])
	assert.Equal(t, "Slow SQL", entries[1].Message)
	assert.Equal(t, "SQL error", entries[2].Message)
	// not-found falls through to the debug statement log
	assert.Equal(t, "SQL", entries[3].Message)

	silent := gl.LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), sql, errors.New("x"))
	assert.Equal(t, 4, logs.Len())
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
