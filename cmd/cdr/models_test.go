package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestModelsCmd_MarksPulledAndDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[{"name":"phi4:latest"},{"name":"mistral:latest"}]}`))
	}))
	defer srv.Close()

	path := writeTestConfig(t, t.TempDir(), srv.URL)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"models", "--config", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("models failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "phi4:latest (default)") {
		t.Errorf("expected default marker on phi4:latest, got: %s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "phi4:latest") && !strings.Contains(line, "yes") {
			t.Errorf("expected phi4:latest marked pulled, got: %s", line)
		}
	}
}

func TestModelsCmd_BackendDown(t *testing.T) {
	// Grab an address nothing is listening on.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	path := writeTestConfig(t, t.TempDir(), url)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"models", "--config", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("models should print the catalog even when the backend is down: %v", err)
	}
	if !strings.Contains(buf.String(), "phi4:latest") {
		t.Errorf("expected catalog in output, got: %s", buf.String())
	}
}
