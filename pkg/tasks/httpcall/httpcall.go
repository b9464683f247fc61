// Package httpcall implements the generic outbound HTTP task used by action
// and integration steps.
package httpcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nocturnelabs/vigil/pkg/template"
)

const defaultTimeout = 30 * time.Second

// Executor performs one HTTP request per invocation. URL, headers and body
// support {{var}} substitution against the step input.
type Executor struct {
	url     string
	method  string
	headers map[string]string
	body    string
	client  *http.Client
}

func NewExecutor(config map[string]any) (*Executor, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http call requires a url setting")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)

	if raw, ok := config["headers"].(map[string]any); ok {
		for key, value := range raw {
			if s, ok := value.(string); ok {
				headers[key] = s
			}
		}
	}

	body, _ := config["body"].(string)

	timeout := defaultTimeout
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Executor{
		url:     url,
		method:  strings.ToUpper(method),
		headers: headers,
		body:    body,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (e *Executor) Execute(ctx context.Context, input map[string]any, logger *slog.Logger) (map[string]any, error) {
	url, err := template.Render(e.url, input)
	if err != nil {
		return nil, fmt.Errorf("render url: %w", err)
	}

	var bodyReader io.Reader

	if e.body != "" {
		rendered, err := template.Render(e.body, input)
		if err != nil {
			return nil, fmt.Errorf("render body: %w", err)
		}

		bodyReader = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, e.method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for key, value := range e.headers {
		rendered, err := template.Render(value, input)
		if err != nil {
			return nil, fmt.Errorf("render header %q: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	if e.body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Debug("Dispatching HTTP call", "method", e.method, "url", url)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(raw),
	}

	// Structured responses are also exposed decoded for downstream mapping.
	var decoded map[string]any
	if json.Unmarshal(raw, &decoded) == nil {
		output["json"] = decoded
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return output, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	return output, nil
}
