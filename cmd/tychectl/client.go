package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// apiClient is a thin client for the Tyche HTTP API
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx response
type apiError struct {
	Status int
	Body   map[string]interface{}
}

func (e *apiError) Error() string {
	if msg, ok := e.Body["error"].(string); ok {
		return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), msg)
	}
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

func (c *apiClient) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, &apiErr.Body)
		return nil, apiErr
	}
	return data, nil
}

func (c *apiClient) listRaffles(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/raffles", nil)
}

func (c *apiClient) showRaffle(ctx context.Context, name string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/raffles/"+url.PathEscape(name), nil)
}

func (c *apiClient) enter(ctx context.Context, name, participant, amount string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/raffles/"+url.PathEscape(name)+"/entries", map[string]string{
		"participant": participant,
		"amount":      amount,
	})
}

func (c *apiClient) checkUpkeep(ctx context.Context, name string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/v1/raffles/"+url.PathEscape(name)+"/upkeep", nil)
}

func (c *apiClient) performUpkeep(ctx context.Context, name string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/raffles/"+url.PathEscape(name)+"/upkeep", nil)
}

func (c *apiClient) fulfill(ctx context.Context, name string, requestID uint64, words []string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/v1/raffles/"+url.PathEscape(name)+"/fulfillments", map[string]interface{}{
		"request_id":   requestID,
		"random_words": words,
	})
}

func (c *apiClient) winners(ctx context.Context, name string, limit int) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/raffles/%s/winners?limit=%d", url.PathEscape(name), limit), nil)
}
