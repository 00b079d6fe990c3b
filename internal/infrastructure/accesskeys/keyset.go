// Package accesskeys validates caller credentials against a newline-separated
// key file. The file is re-read lazily so keys can be rotated without a
// restart.
package accesskeys

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mhduong/docsorter/internal/core/ports"
)

type KeySet struct {
	path string
	ttl  time.Duration

	mu       sync.RWMutex
	keys     map[string]struct{}
	loadedAt time.Time
}

var _ ports.AccessKeys = (*KeySet)(nil)

func NewFromFile(path string, ttl time.Duration) *KeySet {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &KeySet{path: path, ttl: ttl}
}

// NewStatic wraps a fixed key list, used when keys come from the
// environment instead of a file.
func NewStatic(keys []string) *KeySet {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	return &KeySet{keys: set, loadedAt: time.Now(), ttl: 100 * 365 * 24 * time.Hour}
}

func (s *KeySet) Contains(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	if err := s.refresh(ctx); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

func (s *KeySet) refresh(ctx context.Context) error {
	s.mu.RLock()
	fresh := s.keys != nil && time.Since(s.loadedAt) < s.ttl
	s.mu.RUnlock()
	if fresh || s.path == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys != nil && time.Since(s.loadedAt) < s.ttl {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open key file: %w", err)
	}
	defer f.Close()

	keys := map[string]struct{}{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read key file: %w", err)
	}

	s.keys = keys
	s.loadedAt = time.Now()
	return nil
}
