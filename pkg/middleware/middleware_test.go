package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/logger"
	"bindery/pkg/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type logEntry struct {
	level string
	msg   string
}

type capturingLogger struct {
	logger.Logger
	mu      sync.Mutex
	entries []logEntry
}

func newCapturingLogger() *capturingLogger {
	return &capturingLogger{Logger: logger.NopLogger()}
}

func (l *capturingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *capturingLogger) InfowCtx(_ context.Context, msg string, _ ...interface{}) {
	l.record("info", msg)
}

func (l *capturingLogger) ErrorwCtx(_ context.Context, msg string, _ ...interface{}) {
	l.record("error", msg)
}

func (l *capturingLogger) last() logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[len(l.entries)-1]
}

func TestRequestIDMiddlewareGenerates(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())

	var ctxRequestID string
	router.GET("/ping", func(c *gin.Context) {
		ctxRequestID = logging.GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, ctxRequestID)
	assert.Equal(t, ctxRequestID, w.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddlewarePropagates(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())

	var ctxRequestID string
	router.GET("/ping", func(c *gin.Context) {
		ctxRequestID = logging.GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", ctxRequestID)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestLoggerMiddlewareLevels(t *testing.T) {
	log := newCapturingLogger()
	router := gin.New()
	router.Use(LoggerMiddleware(log))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Len(t, log.entries, 1)
	assert.Equal(t, logEntry{level: "info", msg: "HTTP request"}, log.last())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Len(t, log.entries, 2)
	assert.Equal(t, logEntry{level: "error", msg: "HTTP request"}, log.last())
}

func TestRecoveryMiddleware(t *testing.T) {
	log := newCapturingLogger()
	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	// The stack trace is logged, never returned to the client.
	assert.NotContains(t, w.Body.String(), "stack_trace")
	assert.Equal(t, logEntry{level: "error", msg: "Panic recovered"}, log.last())
}
