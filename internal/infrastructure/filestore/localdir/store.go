// Package localdir implements the remote file store contract on a local
// directory tree. It backs the CLI and the tests; deployments against a
// cloud drive plug in their own implementation of the same port.
//
// Folder references are slash-separated paths relative to the base
// directory. File references are stable IDs kept in a hidden index file, so
// a rename or move does not invalidate handles the pipeline already holds.
package localdir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

const indexFileName = ".docsorter-index.json"

type Store struct {
	base string

	mu    sync.Mutex
	index storeIndex
}

var _ ports.FileStore = (*Store)(nil)

type storeIndex struct {
	Seq   int                   `json:"seq"`
	Files map[string]*fileEntry `json:"files"`
}

type fileEntry struct {
	Path string               `json:"path"`
	Tag  *domain.ProcessedTag `json:"tag,omitempty"`
}

func New(base string) (*Store, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	s := &Store{base: base, index: storeIndex{Files: map[string]*fileEntry{}}}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadIndex() error {
	raw, err := os.ReadFile(filepath.Join(s.base, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}
	if err := json.Unmarshal(raw, &s.index); err != nil {
		return fmt.Errorf("parse index: %w", err)
	}
	if s.index.Files == nil {
		s.index.Files = map[string]*fileEntry{}
	}
	return nil
}

// saveIndexLocked persists the index. Callers hold s.mu.
func (s *Store) saveIndexLocked() error {
	raw, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	tmp := filepath.Join(s.base, indexFileName+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.base, indexFileName))
}

func (s *Store) abs(folder domain.FolderRef) string {
	return filepath.Join(s.base, filepath.FromSlash(string(folder)))
}

func (s *Store) relPath(folder domain.FolderRef, name string) string {
	if folder == "" {
		return name
	}
	return string(folder) + "/" + name
}

// idForLocked returns the stable ID of a path, assigning one on first sight.
func (s *Store) idForLocked(rel string) domain.FileRef {
	for id, entry := range s.index.Files {
		if entry.Path == rel {
			return domain.FileRef(id)
		}
	}
	s.index.Seq++
	id := fmt.Sprintf("f-%06d", s.index.Seq)
	s.index.Files[id] = &fileEntry{Path: rel}
	return domain.FileRef(id)
}

func (s *Store) ListDocuments(_ context.Context, folder domain.FolderRef, onlyUnprocessed bool) ([]domain.Document, error) {
	entries, err := os.ReadDir(s.abs(folder))
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", folder, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Document
	changed := false
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rel := s.relPath(folder, e.Name())
		before := s.index.Seq
		id := s.idForLocked(rel)
		if s.index.Seq != before {
			changed = true
		}
		if onlyUnprocessed && s.index.Files[string(id)].Tag != nil {
			continue
		}
		out = append(out, domain.Document{
			ID:        id,
			Name:      e.Name(),
			MimeClass: domain.MimeClassFromName(e.Name()),
			Parent:    folder,
		})
	}
	if changed {
		if err := s.saveIndexLocked(); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListFolders(_ context.Context, parent domain.FolderRef) ([]ports.FolderEntry, error) {
	entries, err := os.ReadDir(s.abs(parent))
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", parent, err)
	}
	var out []ports.FolderEntry
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, ports.FolderEntry{
			ID:   domain.FileRef(s.relPath(parent, e.Name())),
			Name: e.Name(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListFiles(ctx context.Context, parent domain.FolderRef) ([]ports.FolderEntry, error) {
	docs, err := s.ListDocuments(ctx, parent, false)
	if err != nil {
		return nil, err
	}
	out := make([]ports.FolderEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, ports.FolderEntry{ID: d.ID, Name: d.Name})
	}
	return out, nil
}

func (s *Store) FindFolder(_ context.Context, parent domain.FolderRef, name string) (domain.FolderRef, bool, error) {
	rel := s.relPath(parent, name)
	info, err := os.Stat(filepath.Join(s.base, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat folder %q: %w", rel, err)
	}
	if !info.IsDir() {
		return "", false, nil
	}
	return domain.FolderRef(rel), true, nil
}

func (s *Store) CreateFolder(_ context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error) {
	rel := s.relPath(parent, name)
	if err := os.MkdirAll(filepath.Join(s.base, filepath.FromSlash(rel)), 0o755); err != nil {
		return "", fmt.Errorf("create folder %q: %w", rel, err)
	}
	return domain.FolderRef(rel), nil
}

func (s *Store) Download(_ context.Context, id domain.FileRef) (io.ReadCloser, error) {
	s.mu.Lock()
	entry, ok := s.index.Files[string(id)]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown file %s", id)
	}
	f, err := os.Open(filepath.Join(s.base, filepath.FromSlash(entry.Path)))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", entry.Path, err)
	}
	return f, nil
}

func (s *Store) Upload(_ context.Context, parent domain.FolderRef, name, _ string, body io.Reader) (domain.FileRef, error) {
	rel := s.relPath(parent, name)
	abs := filepath.Join(s.base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", rel, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("write %q: %w", rel, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %q: %w", rel, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idForLocked(rel)
	if err := s.saveIndexLocked(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) RenameMove(_ context.Context, id domain.FileRef, newName string, _, to domain.FolderRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index.Files[string(id)]
	if !ok {
		return fmt.Errorf("unknown file %s", id)
	}
	newRel := s.relPath(to, newName)
	oldAbs := filepath.Join(s.base, filepath.FromSlash(entry.Path))
	newAbs := filepath.Join(s.base, filepath.FromSlash(newRel))
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("move %q to %q: %w", entry.Path, newRel, err)
	}
	entry.Path = newRel
	return s.saveIndexLocked()
}

func (s *Store) SetProcessedTag(_ context.Context, id domain.FileRef, tag domain.ProcessedTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index.Files[string(id)]
	if !ok {
		return fmt.Errorf("unknown file %s", id)
	}
	entry.Tag = &tag
	return s.saveIndexLocked()
}
