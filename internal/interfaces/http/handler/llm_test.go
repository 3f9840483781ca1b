package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/domain/service"
	"llm-gateway/internal/infrastructure/llm"
)

type staticCatalog []llm.ModelInfo

func (s staticCatalog) Models() []llm.ModelInfo { return s }

type staticStatus []service.ProviderStatus

func (s staticStatus) Statuses() []service.ProviderStatus { return s }

func TestListModels(t *testing.T) {
	h := NewLLMHandler(staticCatalog{
		{ID: "gpt-4o", Provider: "openai", ContextWindow: 128000},
		{ID: "claude-sonnet", Provider: "anthropic", ContextWindow: 200000},
	}, staticStatus(nil))
	engine := gin.New()
	engine.GET("/v1/llm/models", h.ListModels)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/llm/models", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Models []llm.ModelInfo `json:"models"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Models, 2)
	assert.Equal(t, "anthropic", body.Data.Models[1].Provider)
}

func TestListProviders(t *testing.T) {
	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewLLMHandler(staticCatalog(nil), staticStatus{
		{Provider: "openai", Configured: true, Available: true, Models: []string{"gpt-4o"}, LastChecked: &checked},
		{Provider: "google", Configured: false, Error: "missing api key"},
	})
	engine := gin.New()
	engine.GET("/v1/llm/providers", h.ListProviders)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/llm/providers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Providers []map[string]any `json:"providers"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Providers, 2)

	openai := body.Data.Providers[0]
	assert.Equal(t, true, openai["healthy"])
	assert.Equal(t, "2026-01-02T03:04:05Z", openai["last_checked"])

	google := body.Data.Providers[1]
	assert.Equal(t, false, google["configured"])
	assert.Equal(t, "missing api key", google["last_error"])
	assert.Equal(t, []any{}, google["models"])
}
