package billing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	dombilling "github.com/Zhima-Mochi/freshcut/internal/domain/billing"
)

// FileStorage writes artifacts into dir; the HTTP layer serves them under
// baseURL.
type FileStorage struct {
	dir     string
	baseURL string
}

func NewFileStorage(dir, baseURL string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", dombilling.ErrStorage, dir, err)
	}
	return &FileStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FileStorage) Dir() string { return s.dir }

func (s *FileStorage) Upload(ctx context.Context, name string, body []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	// Write then rename so readers never see a partial receipt.
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", dombilling.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write %s: %w", dombilling.ErrStorage, name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", dombilling.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("%w: %w", dombilling.ErrStorage, err)
	}
	return s.baseURL + "/" + name, nil
}

// Object reads back a stored artifact.
func (s *FileStorage) Object(name string) ([]byte, bool) {
	if validName(name) != nil {
		return nil, false
	}
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, false
	}
	return b, true
}

// MemoryStorage keeps artifacts in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (s *MemoryStorage) Upload(ctx context.Context, name string, body []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[name] = append([]byte(nil), body...)
	s.mu.Unlock()
	return s.baseURL + "/" + name, nil
}

func (s *MemoryStorage) Object(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[name]
	return b, ok
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: invalid artifact name %q", dombilling.ErrStorage, name)
	}
	return nil
}
