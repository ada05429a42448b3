package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dropDatabas3/persona/internal/util/atomicwrite"
)

// fileClient guarda cada key en su propio archivo JSON dentro de dir.
// El nombre del archivo es el hex de la key para no depender de qué
// caracteres acepta el filesystem.
type fileClient struct {
	dir    string
	prefix string
	mu     sync.RWMutex
}

type fileEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewFile crea un cliente de cache respaldado por archivos.
func NewFile(dir, prefix string) (Client, error) {
	if dir == "" {
		return nil, errors.New("cache: file driver requires a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: mkdir %s: %w", dir, err)
	}
	return &fileClient{dir: dir, prefix: prefix}, nil
}

func (c *fileClient) path(key string) string {
	return filepath.Join(c.dir, hex.EncodeToString([]byte(prefixed(c.prefix, key)))+".json")
}

func (c *fileClient) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := os.ReadFile(c.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var e fileEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return "", fmt.Errorf("cache: corrupt entry %q: %w", key, err)
	}
	if !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt) {
		return "", ErrNotFound
	}
	return e.Value, nil
}

func (c *fileClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := fileEntry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = time.Now().Add(ttl)
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return atomicwrite.AtomicWriteFile(c.path(key), b, 0o600)
}

func (c *fileClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *fileClient) Ping(context.Context) error {
	_, err := os.Stat(c.dir)
	return err
}

func (c *fileClient) Close() error { return nil }
