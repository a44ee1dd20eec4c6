package blob

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Options selects and configures the backend holding catalog files.
type Options struct {
	Driver Driver
	S3     S3Config
	// Memory is reused when Driver is memory; a fresh store is created when nil.
	Memory *Memory
}

// Location addresses one catalog file inside a blob store.
type Location struct {
	Store Store
	Key   string
	// Path is the address reported to clients (file path or s3:// URL).
	Path string
}

// Dir returns the local directory holding the file when the location is
// filesystem backed.
func (l Location) Dir() (string, bool) {
	if l.Store == nil || l.Store.Driver() != DriverFilesystem {
		return "", false
	}
	return filepath.Dir(l.Path), true
}

// OpenFiles resolves every path to a Location. For the filesystem driver each
// file gets a store rooted at its own directory, since the two catalog files
// may live apart; s3 and memory share one store and use the path as key.
func OpenFiles(ctx context.Context, opts Options, paths ...string) ([]Location, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	locations := make([]Location, 0, len(paths))
	switch driver {
	case DriverFilesystem:
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", p, err)
			}
			store, err := NewFilesystem(filepath.Dir(abs))
			if err != nil {
				return nil, err
			}
			key := filepath.Base(abs)
			locations = append(locations, Location{Store: store, Key: key, Path: store.Locate(key)})
		}
	case DriverS3:
		store, err := NewS3(ctx, opts.S3)
		if err != nil {
			return nil, fmt.Errorf("open s3 driver: %w", err)
		}
		locations = appendShared(locations, store, paths)
	case DriverMemory:
		mem := opts.Memory
		if mem == nil {
			mem = NewMemory()
		}
		locations = appendShared(locations, mem, paths)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
	return locations, nil
}

func appendShared(dst []Location, store Store, paths []string) []Location {
	for _, p := range paths {
		key := strings.TrimLeft(filepath.ToSlash(filepath.Clean(p)), "/")
		dst = append(dst, Location{Store: store, Key: key, Path: store.Locate(key)})
	}
	return dst
}
