package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"catalogbrowser/internal/config"
)

func writeCatalogs(t *testing.T, dashboards, queries string) string {
	t.Helper()
	dir := t.TempDir()
	if dashboards != "" {
		if err := os.WriteFile(filepath.Join(dir, config.DashboardsFile), []byte(dashboards), 0o644); err != nil {
			t.Fatalf("write dashboards: %v", err)
		}
	}
	if queries != "" {
		if err := os.WriteFile(filepath.Join(dir, config.QueriesFile), []byte(queries), 0o644); err != nil {
			t.Fatalf("write queries: %v", err)
		}
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckReportsCounts(t *testing.T) {
	dir := writeCatalogs(t, "Nombre Dashboard;Gerencia\nA;X\nB;Y\n", "")
	t.Setenv("CATALOG_DATA_DIR", dir)
	t.Setenv("CATALOG_LOG_LEVEL", "error")

	out, err := runCLI(t, "check")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "dashboards ok") || !strings.Contains(out, "(2 records)") {
		t.Fatalf("unexpected dashboards line:\n%s", out)
	}
	if !strings.Contains(out, "queries    missing") {
		t.Fatalf("expected missing queries file:\n%s", out)
	}
}

func TestCheckFailsOnMalformedFile(t *testing.T) {
	dir := writeCatalogs(t, "", "Nombre;Tags\nA;b;extra\n")
	t.Setenv("CATALOG_DATA_DIR", dir)
	t.Setenv("CATALOG_LOG_LEVEL", "error")

	out, err := runCLI(t, "check")
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("expected check failure, got %v", err)
	}
	if !strings.Contains(out, "queries    ERROR") {
		t.Fatalf("expected error line:\n%s", out)
	}
}

func TestInvalidConfigurationIsRejected(t *testing.T) {
	t.Setenv("CATALOG_SOURCE_DRIVER", "ftp")
	if _, err := runCLI(t, "check"); err == nil || !strings.Contains(err.Error(), "ftp") {
		t.Fatalf("expected config error, got %v", err)
	}
	t.Setenv("CATALOG_SOURCE_DRIVER", "")
	if _, err := runCLI(t, "check", "--log-level", "loud"); err == nil {
		t.Fatalf("expected log level error")
	}
}

func TestServeAnswersAndShutsDown(t *testing.T) {
	dir := writeCatalogs(t, "Nombre Dashboard;Gerencia\nSales Overview;Finance\n", "Nombre;Tags\nTop;a|b\n")
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		if k == "CATALOG_DATA_DIR" {
			return dir, true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.ClientDist = filepath.Join(dir, "no-client")
	a := &app{cfg: cfg, log: zaptest.NewLogger(t)}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serveOn(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	var health map[string]any
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/api/health")
		if err == nil {
			decodeErr := json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
			if decodeErr == nil {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("service did not answer: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if health["dashboards"] != float64(1) || health["queries"] != float64(1) {
		t.Fatalf("unexpected health: %v", health)
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
