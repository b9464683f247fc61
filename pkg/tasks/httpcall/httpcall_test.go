package httpcall

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

func TestNewExecutor_RequiresURL(t *testing.T) {
	_, err := NewExecutor(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestExecute_PostWithRenderedBody(t *testing.T) {
	var (
		gotMethod      string
		gotBody        string
		gotContentType string
		gotAuth        string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method

		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticket_id":"INC-42"}`))
	}))
	defer server.Close()

	executor, err := NewExecutor(map[string]any{
		"url":    server.URL,
		"method": "post",
		"body":   `{"indicator":"{{value}}"}`,
		"headers": map[string]any{
			"Authorization": "Bearer {{token}}",
		},
	})
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), map[string]any{
		"value": "203.0.113.7",
		"token": "secret",
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"indicator":"203.0.113.7"}`, gotBody)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer secret", gotAuth)

	assert.Equal(t, http.StatusOK, output["status_code"])

	decoded, ok := output["json"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INC-42", decoded["ticket_id"])
}

func TestExecute_URLTemplating(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	executor, err := NewExecutor(map[string]any{
		"url": server.URL + "/indicators/{{value}}",
	})
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), map[string]any{
		"value": "evil.example.com",
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "/indicators/evil.example.com", gotPath)
	assert.Equal(t, "ok", output["body"])
	assert.NotContains(t, output, "json")
}

func TestExecute_ErrorStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	executor, err := NewExecutor(map[string]any{"url": server.URL})
	require.NoError(t, err)

	output, err := executor.Execute(context.Background(), map[string]any{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	// The failing response is still surfaced for fallback steps.
	require.NotNil(t, output)
	assert.Equal(t, http.StatusBadGateway, output["status_code"])
	assert.Equal(t, "upstream down", output["body"])
}

func TestExecute_UnresolvedTemplateVariable(t *testing.T) {
	executor, err := NewExecutor(map[string]any{
		"url": "http://127.0.0.1:0/{{missing}}",
	})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), map[string]any{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render url")
}
