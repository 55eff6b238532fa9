package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vesaa/netgraph/internal/config"
)

// ForegroundFetcher satisfies CategoryFetcher by calling the internal
// command-execution HTTP service once per category. It is used from request
// handlers: devices are swept sequentially inside the calling request, and
// each Fetch suspends on the HTTP round-trip.
type ForegroundFetcher struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewForegroundFetcher builds a fetcher against the configured exec endpoint.
func NewForegroundFetcher(cfg *config.Config) *ForegroundFetcher {
	return &ForegroundFetcher{
		baseURL: cfg.ExecEndpoint,
		token:   cfg.ExecToken,
		client:  &http.Client{Timeout: time.Duration(cfg.ExecTimeoutSeconds) * time.Second},
	}
}

type execRequest struct {
	DeviceID string `json:"device_id"`
	Host     string `json:"host"`
	Command  string `json:"command"`
	Parser   string `json:"parser"`
}

type execResponse struct {
	Success bool             `json:"success"`
	Output  []map[string]any `json:"output"`
	Error   string           `json:"error,omitempty"`
}

// Fetch posts the category's command to the exec service and returns the
// parsed rows. Every request carries "Authorization: Bearer <exec_token>".
func (f *ForegroundFetcher) Fetch(ctx context.Context, ident *Identity, category Category) ([]map[string]any, error) {
	body, err := json.Marshal(execRequest{
		DeviceID: ident.DeviceID,
		Host:     ident.PrimaryIP,
		Command:  category.Command(),
		Parser:   ident.NetworkDriver,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/exec", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exec call for %s: %w", ident.DeviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("exec service rejected token (401) — check exec_token in config")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("exec service returned %d", resp.StatusCode)
	}

	var out execResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding exec response: %w", err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "command execution failed"
		}
		return nil, fmt.Errorf("%s on %s: %s", category.Command(), ident.DeviceID, out.Error)
	}
	return out.Output, nil
}
