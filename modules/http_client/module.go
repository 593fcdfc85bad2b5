// Package http_client provides task functions that make HTTP requests with a
// shared, pooled client.
package http_client

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/specialistvlad/taskgrid/internal/registry"
)

// DefaultTimeout bounds a single request when the module has no Client.
const DefaultTimeout = 30 * time.Second

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client is shared by every request. Nil means a client with
	// DefaultTimeout and a pooling transport.
	Client *http.Client
}

// Register registers the http_request function with the registry.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = newClient(DefaultTimeout)
	}
	r.RegisterFunc("http_request", func(args ...any) (any, error) {
		return Request(client, args...)
	})
}

func newClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Request performs a request for args (url[, method]) and returns two
// outputs: the status code and the response body.
func Request(client *http.Client, args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("http_request: expected 1 or 2 arguments, got %d", len(args))
	}
	url, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("http_request: url must be a string, got %T", args[0])
	}
	method := http.MethodGet
	if len(args) == 2 {
		m, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("http_request: method must be a string, got %T", args[1])
		}
		method = strings.ToUpper(m)
	}

	slog.Info("Making HTTP request", "method", method, "url", url)

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	slog.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return []any{resp.StatusCode, string(bodyBytes)}, nil
}
