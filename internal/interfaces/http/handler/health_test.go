package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func serveReady(t *testing.T, h *HealthHandler) (int, readinessResponse) {
	t.Helper()
	engine := gin.New()
	engine.GET("/health/ready", h.Ready)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestReady_AllHealthy(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	code, resp := serveReady(t, NewHealthHandler("1.0.0",
		Dependency{Name: "postgres", Checker: ok},
		Dependency{Name: "redis", Checker: ok},
	))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["postgres"].Status)
	assert.Equal(t, "ok", resp.Checks["redis"].Status)
}

func TestReady_RequiredFailure(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("connection refused") })
	code, resp := serveReady(t, NewHealthHandler("1.0.0",
		Dependency{Name: "postgres", Checker: ok},
		Dependency{Name: "redis", Checker: down},
	))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "error", resp.Checks["redis"].Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"].Error)
}

func TestReady_OptionalFailureDegrades(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("no servers") })
	code, resp := serveReady(t, NewHealthHandler("1.0.0",
		Dependency{Name: "postgres", Checker: ok},
		Dependency{Name: "nats", Checker: down, Optional: true},
	))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", resp.Checks["nats"].Status)
}

func TestReady_MissingRequired(t *testing.T) {
	code, resp := serveReady(t, NewHealthHandler("1.0.0", Dependency{Name: "postgres"}))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "missing", resp.Checks["postgres"].Status)
}

func TestHealthAndLive(t *testing.T) {
	h := NewHealthHandler("1.2.3")
	engine := gin.New()
	engine.GET("/health", h.Health)
	engine.GET("/health/live", h.Live)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3"}`, w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
