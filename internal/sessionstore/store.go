// Package sessionstore keeps session tokens. The client side persists the
// token it presents in Handshake; the server side tracks which tokens it has
// seen. Tokens are UUIDs; anything else is treated as no token at all.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("sessionstore: token is not a uuid")

// Store loads and saves the client's session token.
type Store interface {
	Load(ctx context.Context) (*string, error)
	Save(ctx context.Context, token string) error
}

// NewToken returns a fresh random token.
func NewToken() string {
	return uuid.NewString()
}

// ValidToken reports whether token is a well-formed UUID.
func ValidToken(token string) bool {
	_, err := uuid.Parse(token)
	return err == nil
}

// FileStore keeps the token in a single file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load returns nil when the file is missing or does not hold a valid token.
func (f *FileStore) Load(ctx context.Context) (*string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("sessionstore: read %s: %w", f.Path, err)
	}
	token := strings.TrimSpace(string(raw))
	if !ValidToken(token) {
		return nil, nil
	}
	return &token, nil
}

func (f *FileStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidToken(token) {
		return fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("sessionstore: create dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("sessionstore: write %s: %w", f.Path, err)
	}
	return nil
}

// MemoryStore is a Store for callers without a filesystem.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryStore) Load(ctx context.Context) (*string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !ValidToken(m.token) {
		return nil, nil
	}
	token := m.token
	return &token, nil
}

func (m *MemoryStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidToken(token) {
		return fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}
