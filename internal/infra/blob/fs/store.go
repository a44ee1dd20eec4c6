package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"catalogbrowser/internal/blob/core"
)

// Store implements core.Store on a local directory.
// Keys are mapped to relative file paths under the root. Files are read as-is;
// there is no metadata sidecar because catalog files are maintained by hand.
type Store struct {
	root string
}

// New returns a filesystem-backed blob store rooted at path. The directory is
// not created: a missing directory behaves like a directory without files.
func New(root string) (*Store, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (s *Store) Root() string { return s.root }

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sanitizeKey ensures key doesn't escape root and forbids path traversal and absolute paths.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	for _, segment := range strings.Split(strings.ReplaceAll(key, `\`, "/"), "/") {
		if segment == ".." {
			return "", fmt.Errorf("invalid key contains '..' segment")
		}
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	// normalize separators
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Locate returns the absolute file path for key.
func (s *Store) Locate(key string) string {
	p, err := s.pathFor(key)
	if err != nil {
		return filepath.Join(s.root, key)
	}
	return p
}

// Get opens the file for key. The ETag is the sha256 of the content, so the
// file is hashed before the reader is handed back.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	if st.IsDir() {
		_ = file.Close()
		return core.Info{}, nil, fmt.Errorf("blob %s is a directory: %w", key, core.ErrNotFound)
	}
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	info := s.infoFor(key, st)
	info.ETag = hex.EncodeToString(h.Sum(nil))
	return info, file, nil
}

// Head stats the file for key. The ETag is derived from size and
// modification time so Head never reads content.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return core.Info{}, notFound(key, err)
	}
	if st.IsDir() {
		return core.Info{}, fmt.Errorf("blob %s is a directory: %w", key, core.ErrNotFound)
	}
	info := s.infoFor(key, st)
	info.ETag = fmt.Sprintf("%x-%x", st.Size(), st.ModTime().UnixNano())
	return info, nil
}

func (s *Store) infoFor(key string, st os.FileInfo) core.Info {
	return core.Info{
		Key:          key,
		Size:         st.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(key)),
		LastModified: st.ModTime().UTC(),
	}
}

func notFound(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", key, errors.Join(core.ErrNotFound, err))
	}
	return err
}
