// Package enrich implements the IOC enrichment task: it queries an external
// enrichment API and fronts it with a Redis cache keyed by indicator value.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL    = time.Hour
	defaultHTTPTimeout = 20 * time.Second
)

// Executor enriches one indicator per invocation.
type Executor struct {
	apiURL   string
	apiKey   string
	cache    *redis.Client
	cacheTTL time.Duration
	client   *http.Client
}

// NewExecutor creates an enrichment executor. A redis_addr setting enables
// caching; without it every invocation hits the API.
func NewExecutor(config map[string]any) (*Executor, error) {
	apiURL, _ := config["api_url"].(string)
	if apiURL == "" {
		return nil, fmt.Errorf("enrichment requires an api_url setting")
	}

	apiKey, _ := config["api_key"].(string)

	executor := &Executor{
		apiURL:   apiURL,
		apiKey:   apiKey,
		cacheTTL: defaultCacheTTL,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
	}

	if addr, _ := config["redis_addr"].(string); addr != "" {
		executor.cache = redis.NewClient(&redis.Options{Addr: addr})
	}

	if ttl, ok := config["cache_ttl_seconds"].(float64); ok && ttl > 0 {
		executor.cacheTTL = time.Duration(ttl) * time.Second
	}

	return executor, nil
}

// Execute looks the indicator up in the cache, falling back to the API.
// The output carries the enrichment payload plus cache_hit and enriched_at.
func (e *Executor) Execute(ctx context.Context, input map[string]any, logger *slog.Logger) (map[string]any, error) {
	value, _ := input["value"].(string)
	if value == "" {
		return nil, fmt.Errorf("enrichment input has no value field")
	}

	iocType, _ := input["type"].(string)
	cacheKey := "vigil:enrich:" + iocType + ":" + value

	if cached, ok := e.fromCache(ctx, cacheKey, logger); ok {
		cached["cache_hit"] = true

		return cached, nil
	}

	enrichment, err := e.query(ctx, iocType, value)
	if err != nil {
		return nil, err
	}

	enrichment["cache_hit"] = false
	enrichment["enriched_at"] = time.Now().UTC().Format(time.RFC3339)

	e.toCache(ctx, cacheKey, enrichment, logger)

	logger.Debug("Indicator enriched", "type", iocType, "value", value)

	return enrichment, nil
}

func (e *Executor) fromCache(ctx context.Context, key string, logger *slog.Logger) (map[string]any, bool) {
	if e.cache == nil {
		return nil, false
	}

	raw, err := e.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Enrichment cache read failed", "error", err)
		}

		return nil, false
	}

	var cached map[string]any
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		logger.Warn("Enrichment cache entry corrupt", "key", key, "error", err)

		return nil, false
	}

	return cached, true
}

func (e *Executor) toCache(ctx context.Context, key string, enrichment map[string]any, logger *slog.Logger) {
	if e.cache == nil {
		return
	}

	raw, err := json.Marshal(enrichment)
	if err != nil {
		return
	}

	if err := e.cache.Set(ctx, key, raw, e.cacheTTL).Err(); err != nil {
		logger.Warn("Enrichment cache write failed", "error", err)
	}
}

func (e *Executor) query(ctx context.Context, iocType, value string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s?type=%s&value=%s", e.apiURL, url.QueryEscape(iocType), url.QueryEscape(value))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build enrichment request: %w", err)
	}

	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment API: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("enrichment API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read enrichment response: %w", err)
	}

	var enrichment map[string]any
	if err := json.Unmarshal(body, &enrichment); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}

	return enrichment, nil
}
