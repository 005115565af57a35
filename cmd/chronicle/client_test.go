package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *apiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return newAPIClient(strings.TrimPrefix(server.URL, "http://"), "token-123")
}

func TestClientStatus(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("auth = %q", got)
		}
		json.NewEncoder(w).Encode(daemonStatus{Running: true, ActiveRecordings: 1})
	})

	status, err := client.status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running || status.ActiveRecordings != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "a recording is already active"})
	})

	err := client.processSession(context.Background(), "abc")
	if err == nil || !strings.Contains(err.Error(), "already active") {
		t.Fatalf("expected the daemon error message, got %v", err)
	}
}

func TestClientListSessionsFilter(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "failed" {
			t.Errorf("status filter = %q", got)
		}
		json.NewEncoder(w).Encode([]sessionView{{ID: "s1", Status: "failed"}})
	})

	sessions, err := client.listSessions(context.Background(), "failed")
	if err != nil {
		t.Fatalf("listSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestSessionsListCommandOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]sessionView{{
			ID:                     "11111111-2222-3333-4444-555555555555",
			Name:                   "Friday Session",
			Status:                 "completed",
			DurationSeconds:        3700,
			TranscriptionCostCents: 90,
			LLMCostCents:           10,
		}})
	}))
	defer server.Close()

	api := strings.TrimPrefix(server.URL, "http://")
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--api", api, "sessions", "list"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	rendered := out.String()
	for _, want := range []string{"11111111", "Friday Session", "completed", "1h01m40s", "$1.00"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("output missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderTableAlignment(t *testing.T) {
	rendered := renderTable(
		[]string{"Name", "Count"},
		[][]string{{"alpha", "1"}, {"beta", "22"}},
		1,
	)
	if !strings.Contains(rendered, "alpha") || !strings.Contains(rendered, "22") {
		t.Errorf("table missing rows:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Name") {
		t.Errorf("table missing header:\n%s", rendered)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatCents(125); got != "$1.25" {
		t.Errorf("formatCents = %q", got)
	}
	if got := formatSeconds(3700); got != "1h01m40s" {
		t.Errorf("formatSeconds = %q", got)
	}
	if got := formatSeconds(0); got != "-" {
		t.Errorf("formatSeconds(0) = %q", got)
	}
	if got := shortID("11111111-2222"); got != "11111111" {
		t.Errorf("shortID = %q", got)
	}
}
