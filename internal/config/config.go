// Package config resolves runtime settings from the environment.
//
// Every variable carries the CATALOG_ prefix. PORT, DASHBOARDS_CSV and
// QUERIES_CSV are still honoured when the prefixed name is unset.
//
//	CATALOG_ADDR: listen address (default :3000, or :$PORT)
//	CATALOG_DATA_DIR: directory of the default catalog files (default ./data)
//	CATALOG_DASHBOARDS_CSV: dashboards file (default <data>/dashboards.csv)
//	CATALOG_QUERIES_CSV: queries file (default <data>/queries.csv)
//	CATALOG_SOURCE_DRIVER: fs|s3|memory (default fs)
//	CATALOG_S3_BUCKET, CATALOG_S3_REGION, CATALOG_S3_ENDPOINT, CATALOG_S3_PATH_STYLE
//	CATALOG_POLL_INTERVAL: s3 poll period (default 30s)
//	CATALOG_CLIENT_DIST: built UI bundle (default ./client/dist)
//	CATALOG_DEV_ORIGIN: CORS origin (default http://localhost:5173)
//	CATALOG_LOG_LEVEL: debug|info|warn|error (default info)
//	CATALOG_LOG_FORMAT: json|console (default json)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"catalogbrowser/internal/blob"
)

const (
	DefaultAddr         = ":3000"
	DefaultDataDir      = "./data"
	DefaultClientDist   = "./client/dist"
	DefaultDevOrigin    = "http://localhost:5173"
	DefaultPollInterval = 30 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"

	DashboardsFile = "dashboards.csv"
	QueriesFile    = "queries.csv"
)

// Config is the resolved service configuration.
type Config struct {
	Addr           string
	DashboardsPath string
	QueriesPath    string
	Driver         blob.Driver
	S3             blob.S3Config
	PollInterval   time.Duration
	ClientDist     string
	DevOrigin      string
	LogLevel       string
	LogFormat      string
}

// LoadEnvFiles loads the given dotenv files into the process environment
// without overriding variables that are already set. With no arguments it
// loads ./.env. Missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves the configuration through lookup, which has the
// os.LookupEnv signature.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(names ...string) string {
		for _, n := range names {
			if v, ok := lookup(n); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	or := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	cfg := Config{
		Addr:       get("CATALOG_ADDR"),
		Driver:     blob.Driver(strings.ToLower(or(get("CATALOG_SOURCE_DRIVER"), string(blob.DriverFilesystem)))),
		ClientDist: or(get("CATALOG_CLIENT_DIST"), DefaultClientDist),
		DevOrigin:  or(get("CATALOG_DEV_ORIGIN"), DefaultDevOrigin),
		LogLevel:   strings.ToLower(or(get("CATALOG_LOG_LEVEL"), DefaultLogLevel)),
		LogFormat:  strings.ToLower(or(get("CATALOG_LOG_FORMAT"), DefaultLogFormat)),
		S3: blob.S3Config{
			Bucket:   get("CATALOG_S3_BUCKET"),
			Region:   get("CATALOG_S3_REGION", "AWS_REGION"),
			Endpoint: get("CATALOG_S3_ENDPOINT"),
		},
	}
	if cfg.Addr == "" {
		if port := get("PORT"); port != "" {
			cfg.Addr = ":" + strings.TrimPrefix(port, ":")
		} else {
			cfg.Addr = DefaultAddr
		}
	}

	dataDir := or(get("CATALOG_DATA_DIR"), DefaultDataDir)
	cfg.DashboardsPath = or(get("CATALOG_DASHBOARDS_CSV", "DASHBOARDS_CSV"), filepath.Join(dataDir, DashboardsFile))
	cfg.QueriesPath = or(get("CATALOG_QUERIES_CSV", "QUERIES_CSV"), filepath.Join(dataDir, QueriesFile))

	if raw := get("CATALOG_S3_PATH_STYLE"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("CATALOG_S3_PATH_STYLE: %w", err)
		}
		cfg.S3.PathStyle = v
	}

	cfg.PollInterval = DefaultPollInterval
	if raw := get("CATALOG_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("CATALOG_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	switch c.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 driver requires CATALOG_S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source driver %q", c.Driver))
	}
	if c.DashboardsPath == "" || c.QueriesPath == "" {
		errs = append(errs, errors.New("catalog file paths must not be empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
