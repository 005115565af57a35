package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiClient is a thin HTTP client for the daemon control API.
type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newAPIClient(address, token string) *apiClient {
	base := strings.TrimSpace(address)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL:    strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type daemonStatus struct {
	Running          bool               `json:"running"`
	ActiveRecordings int                `json:"active_recordings"`
	DatabasePath     string             `json:"database_path"`
	LockFilePath     string             `json:"lock_file_path"`
	SessionCounts    map[string]int     `json:"session_counts"`
	Dependencies     []dependencyStatus `json:"dependencies"`
}

type dependencyStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail"`
}

type sessionView struct {
	ID                     string `json:"id"`
	GuildID                int64  `json:"guild_id"`
	Name                   string `json:"name"`
	Status                 string `json:"status"`
	StartedAt              string `json:"started_at"`
	EndedAt                string `json:"ended_at"`
	DurationSeconds        int64  `json:"duration_seconds"`
	ErrorMessage           string `json:"error_message"`
	MergedAudioPath        string `json:"merged_audio_path"`
	TranscriptionCostCents int64  `json:"transcription_cost_cents"`
	LLMCostCents           int64  `json:"llm_cost_cents"`
}

func (c *apiClient) status(ctx context.Context) (*daemonStatus, error) {
	var out daemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) listSessions(ctx context.Context, status string) ([]sessionView, error) {
	path := "/api/sessions"
	if status != "" {
		path += "?status=" + status
	}
	var out []sessionView
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *apiClient) getSession(ctx context.Context, id string) (*sessionView, error) {
	var out sessionView
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) processSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/"+id+"/process", struct{}{}, nil)
}

func (c *apiClient) recordingAction(ctx context.Context, action string, body any, out any) error {
	return c.do(ctx, http.MethodPost, "/api/recording/"+action, body, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is chronicled running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
