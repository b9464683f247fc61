package enrich

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewExecutor_RequiresAPIURL(t *testing.T) {
	_, err := NewExecutor(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_url")
}

func TestExecute_QueriesAPI(t *testing.T) {
	var (
		gotQuery string
		gotAuth  string
		calls    int
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reputation_score":0.85,"first_seen":"2026-01-04","tags":["botnet"]}`))
	}))
	defer server.Close()

	executor, err := NewExecutor(map[string]any{
		"api_url": server.URL,
		"api_key": "feed-token",
	})
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), map[string]any{
		"type":  "ip",
		"value": "203.0.113.7",
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "type=ip&value=203.0.113.7", gotQuery)
	assert.Equal(t, "Bearer feed-token", gotAuth)

	assert.Equal(t, 0.85, output["reputation_score"])
	assert.Equal(t, false, output["cache_hit"])
	assert.NotEmpty(t, output["enriched_at"])
}

func TestExecute_MissingValue(t *testing.T) {
	executor, err := NewExecutor(map[string]any{"api_url": "http://127.0.0.1:0"})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), map[string]any{"type": "ip"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value field")
}

func TestExecute_APIErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	executor, err := NewExecutor(map[string]any{"api_url": server.URL})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), map[string]any{
		"type":  "ip",
		"value": "203.0.113.7",
	}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestExecute_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	executor, err := NewExecutor(map[string]any{"api_url": server.URL})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), map[string]any{
		"type":  "domain",
		"value": "evil.example.com",
	}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode enrichment response")
}
