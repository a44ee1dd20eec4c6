package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"catalogbrowser/internal/blob"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Fatalf("expected addr %s, got %s", DefaultAddr, cfg.Addr)
	}
	if cfg.DashboardsPath != filepath.Join("data", DashboardsFile) {
		t.Fatalf("unexpected dashboards path %s", cfg.DashboardsPath)
	}
	if cfg.QueriesPath != filepath.Join("data", QueriesFile) {
		t.Fatalf("unexpected queries path %s", cfg.QueriesPath)
	}
	if cfg.Driver != blob.DriverFilesystem || cfg.PollInterval != DefaultPollInterval {
		t.Fatalf("unexpected driver defaults: %+v", cfg)
	}
	if cfg.DevOrigin != DefaultDevOrigin || cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLegacyVariables(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"PORT":           "8080",
		"DASHBOARDS_CSV": "/srv/a.csv",
		"QUERIES_CSV":    "/srv/b.csv",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Addr)
	}
	if cfg.DashboardsPath != "/srv/a.csv" || cfg.QueriesPath != "/srv/b.csv" {
		t.Fatalf("legacy paths not honoured: %+v", cfg)
	}
}

func TestPrefixedVariablesWin(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"PORT":                   "8080",
		"CATALOG_ADDR":           "127.0.0.1:9000",
		"DASHBOARDS_CSV":         "/legacy.csv",
		"CATALOG_DASHBOARDS_CSV": "/new.csv",
		"CATALOG_DATA_DIR":       "/var/catalog",
		"CATALOG_LOG_LEVEL":      "DEBUG",
		"CATALOG_POLL_INTERVAL":  "5s",
		"CATALOG_SOURCE_DRIVER":  "S3",
		"CATALOG_S3_BUCKET":      "exports",
		"CATALOG_S3_PATH_STYLE":  "true",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" || cfg.DashboardsPath != "/new.csv" {
		t.Fatalf("prefixed variables should win: %+v", cfg)
	}
	if cfg.QueriesPath != filepath.Join("/var/catalog", QueriesFile) {
		t.Fatalf("queries path should follow data dir, got %s", cfg.QueriesPath)
	}
	if cfg.LogLevel != "debug" || cfg.PollInterval != 5*time.Second {
		t.Fatalf("unexpected parsed values: %+v", cfg)
	}
	if cfg.Driver != blob.DriverS3 || cfg.S3.Bucket != "exports" || !cfg.S3.PathStyle {
		t.Fatalf("unexpected s3 settings: %+v", cfg.S3)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := FromLookup(lookupFrom(map[string]string{"CATALOG_POLL_INTERVAL": "often"})); err == nil {
		t.Fatalf("expected poll interval error")
	}
	if _, err := FromLookup(lookupFrom(map[string]string{"CATALOG_S3_PATH_STYLE": "maybe"})); err == nil {
		t.Fatalf("expected path style error")
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := FromLookup(lookupFrom(nil))
	cfg.Driver = "ftp"
	cfg.PollInterval = 0
	cfg.LogLevel = "loud"
	cfg.LogFormat = "xml"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"ftp", "poll interval", "loud", "xml"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}

	cfg, _ = FromLookup(lookupFrom(map[string]string{"CATALOG_SOURCE_DRIVER": "s3"}))
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "CATALOG_S3_BUCKET") {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.env")
	if err := os.WriteFile(path, []byte("CATALOG_DEV_ORIGIN=http://example.test\nCATALOG_ADDR=:7000\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CATALOG_ADDR", ":6000")
	t.Setenv("CATALOG_DEV_ORIGIN", "")
	os.Unsetenv("CATALOG_DEV_ORIGIN")

	if err := LoadEnvFiles(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load env files: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DevOrigin != "http://example.test" {
		t.Fatalf("expected origin from env file, got %s", cfg.DevOrigin)
	}
	if cfg.Addr != ":6000" {
		t.Fatalf("existing variables must not be overridden, got %s", cfg.Addr)
	}
}
