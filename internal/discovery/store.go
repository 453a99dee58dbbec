package discovery

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store persists the last known good broker address.
//
// Implementations are best-effort: failures are logged, never returned.
type Store interface {
	// Load returns the cached address, or "" if none is known.
	Load() string

	// Save records host as the last known good address.
	Save(host string)
}

// FileStore keeps the address in a plain-text file.
type FileStore struct {
	path   string
	logger Logger
}

// NewFileStore creates a store backed by path. logger may be nil.
func NewFileStore(path string, logger Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cached address. A missing or unreadable file yields "".
func (s *FileStore) Load() string {
	if s.path == "" {
		return ""
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && s.logger != nil {
			s.logger.Warn("failed to read address cache", "path", s.path, "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Save writes host to the file, creating parent directories as needed.
func (s *FileStore) Save(host string) {
	if s.path == "" || host == "" {
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			s.warn("failed to create address cache directory", err)
			return
		}
	}
	if err := os.WriteFile(s.path, []byte(host), 0o600); err != nil {
		s.warn("failed to write address cache", err)
		return
	}
	if s.logger != nil {
		s.logger.Info("cached broker address", "host", host, "path", s.path)
	}
}

func (s *FileStore) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, "path", s.path, "error", err)
	}
}
