package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

// fakeStore is an in-memory file tree implementing ports.FileStore.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int
	folders map[domain.FolderRef]*fakeFolder
	files   map[domain.FileRef]*fakeFile
}

type fakeFolder struct {
	id     domain.FolderRef
	name   string
	parent domain.FolderRef
}

type fakeFile struct {
	id      domain.FileRef
	name    string
	parent  domain.FolderRef
	content []byte
	tag     *domain.ProcessedTag
}

const fakeRootID = domain.FolderRef("root")

func newFakeStore() *fakeStore {
	return &fakeStore{
		folders: map[domain.FolderRef]*fakeFolder{fakeRootID: {id: fakeRootID, name: ""}},
		files:   map[domain.FileRef]*fakeFile{},
	}
}

func (s *fakeStore) addFolder(parent domain.FolderRef, name string) domain.FolderRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFolderLocked(parent, name)
}

func (s *fakeStore) addFolderLocked(parent domain.FolderRef, name string) domain.FolderRef {
	s.nextID++
	id := domain.FolderRef(fmt.Sprintf("d%d", s.nextID))
	s.folders[id] = &fakeFolder{id: id, name: name, parent: parent}
	return id
}

func (s *fakeStore) addFile(parent domain.FolderRef, name, content string) domain.FileRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := domain.FileRef(fmt.Sprintf("f%d", s.nextID))
	s.files[id] = &fakeFile{id: id, name: name, parent: parent, content: []byte(content)}
	return id
}

// pathOf renders the folder chain of a file for assertions.
func (s *fakeStore) pathOf(id domain.FileRef) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ""
	}
	segments := []string{f.name}
	for cur := f.parent; cur != fakeRootID && cur != ""; {
		folder, ok := s.folders[cur]
		if !ok {
			break
		}
		segments = append([]string{folder.name}, segments...)
		cur = folder.parent
	}
	return strings.Join(segments, "/")
}

func (s *fakeStore) findFileIn(folder domain.FolderRef, name string) *fakeFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.parent == folder && f.name == name {
			return f
		}
	}
	return nil
}

func (s *fakeStore) ListDocuments(_ context.Context, folder domain.FolderRef, onlyUnprocessed bool) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Document
	for _, f := range s.files {
		if f.parent != folder {
			continue
		}
		if onlyUnprocessed && f.tag != nil {
			continue
		}
		out = append(out, domain.Document{
			ID:        f.id,
			Name:      f.name,
			MimeClass: domain.MimeClassFromName(f.name),
			Parent:    f.parent,
		})
	}
	// Deterministic order for assertions.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Name < out[i].Name {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ListFolders(_ context.Context, parent domain.FolderRef) ([]ports.FolderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.FolderEntry
	for _, f := range s.folders {
		if f.parent == parent {
			out = append(out, ports.FolderEntry{ID: domain.FileRef(f.id), Name: f.name})
		}
	}
	return out, nil
}

func (s *fakeStore) ListFiles(_ context.Context, parent domain.FolderRef) ([]ports.FolderEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.FolderEntry
	for _, f := range s.files {
		if f.parent == parent {
			out = append(out, ports.FolderEntry{ID: f.id, Name: f.name})
		}
	}
	return out, nil
}

func (s *fakeStore) FindFolder(_ context.Context, parent domain.FolderRef, name string) (domain.FolderRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.folders {
		if f.parent == parent && f.name == name {
			return f.id, true, nil
		}
	}
	return "", false, nil
}

func (s *fakeStore) CreateFolder(_ context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFolderLocked(parent, name), nil
}

func (s *fakeStore) Download(_ context.Context, id domain.FileRef) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("no such file %s", id)
	}
	return io.NopCloser(bytes.NewReader(f.content)), nil
}

func (s *fakeStore) Upload(_ context.Context, parent domain.FolderRef, name, _ string, body io.Reader) (domain.FileRef, error) {
	content, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := domain.FileRef(fmt.Sprintf("f%d", s.nextID))
	s.files[id] = &fakeFile{id: id, name: name, parent: parent, content: content}
	return id, nil
}

func (s *fakeStore) RenameMove(_ context.Context, id domain.FileRef, newName string, _, to domain.FolderRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return fmt.Errorf("no such file %s", id)
	}
	f.name = newName
	f.parent = to
	return nil
}

func (s *fakeStore) SetProcessedTag(_ context.Context, id domain.FileRef, tag domain.ProcessedTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return fmt.Errorf("no such file %s", id)
	}
	f.tag = &tag
	return nil
}

func readFile(p string) (string, error) {
	b, err := os.ReadFile(p)
	return string(b), err
}

// fakeExtractor returns the downloaded bytes as text.
type fakeExtractor struct {
	source string
	err    error
}

func (e *fakeExtractor) Extract(_ context.Context, localPath string, _ domain.Document) (ports.Extraction, error) {
	if e.err != nil {
		return ports.Extraction{}, e.err
	}
	content, err := readFile(localPath)
	if err != nil {
		return ports.Extraction{}, err
	}
	source := e.source
	if source == "" {
		source = ports.SourceOCR
	}
	return ports.Extraction{Text: content, Source: source}, nil
}

// failingExtractor fails for one document and extracts the rest.
type failingExtractor struct {
	failOn string
	inner  fakeExtractor
}

func (e *failingExtractor) Extract(ctx context.Context, localPath string, doc domain.Document) (ports.Extraction, error) {
	if doc.Name == e.failOn {
		return ports.Extraction{}, fmt.Errorf("ocr backend unavailable")
	}
	return e.inner.Extract(ctx, localPath, doc)
}

// fakeProposer replays canned proposals keyed by original filename.
type fakeProposer struct {
	mu        sync.Mutex
	proposals map[string]domain.Proposal
	err       error
	calls     []ports.ProposalRequest
}

func (p *fakeProposer) Propose(_ context.Context, req ports.ProposalRequest) (domain.Proposal, domain.LLMInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return domain.Proposal{}, domain.LLMInfo{}, p.err
	}
	if prop, ok := p.proposals[req.OriginalName]; ok {
		return prop, domain.LLMInfo{Model: "test-model", LatencyMS: 5}, nil
	}
	return domain.Proposal{}, domain.LLMInfo{}, domain.ErrBadClassification
}

// fakePlanWriter collects plan records in order.
type fakePlanWriter struct {
	mu      sync.Mutex
	records []domain.PlanRecord
}

func (w *fakePlanWriter) WritePlan(_ context.Context, _ string, rec domain.PlanRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return nil
}

// fakeRunStore keeps status documents and logs in memory and implements the
// merge-not-replace meta contract.
type fakeRunStore struct {
	mu       sync.Mutex
	statuses map[string]domain.RunRecord
	logs     map[string][]domain.LogEntry
	presign  string
	readErr  error
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		statuses: map[string]domain.RunRecord{},
		logs:     map[string][]domain.LogEntry{},
		presign:  "https://blob.test/signed",
	}
}

func (s *fakeRunStore) WriteStatus(_ context.Context, runID string, rec domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.statuses[runID]; ok && rec.Meta == nil {
		rec.Meta = prev.Meta
	}
	s.statuses[runID] = rec
	return nil
}

func (s *fakeRunStore) ReadStatus(_ context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	rec, ok := s.statuses[runID]
	if !ok {
		return nil, fmt.Errorf("status %s: %w", runID, domain.ErrRunNotFound)
	}
	out := rec
	return &out, nil
}

func (s *fakeRunStore) AppendLog(_ context.Context, runID string, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[runID] = append(s.logs[runID], entry)
	return nil
}

func (s *fakeRunStore) ListStatuses(_ context.Context, limit int) ([]domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RunRecord
	for _, rec := range s.statuses {
		out = append(out, rec)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRunStore) PresignStatus(_ context.Context, runID string, _ time.Duration) (string, error) {
	return s.presign + "/runs/" + runID + "/status.json", nil
}

func (s *fakeRunStore) PresignLogs(_ context.Context, runID string, _ time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs[runID]) == 0 {
		return "", false, nil
	}
	return s.presign + "/runs/" + runID + "/logs.ndjson", true, nil
}

// fakeProfileStore serves a single profile.
type fakeProfileStore struct {
	profile   *domain.ConfigProfile
	defaultID string
}

func (s *fakeProfileStore) SaveProfile(_ context.Context, profile domain.ConfigProfile) error {
	s.profile = &profile
	return nil
}

func (s *fakeProfileStore) LoadProfile(_ context.Context, ownerHash, profileID string) (*domain.ConfigProfile, error) {
	if s.profile == nil || s.profile.OwnerHash != ownerHash || s.profile.ProfileID != profileID {
		return nil, fmt.Errorf("profile %s/%s: %w", ownerHash, profileID, domain.ErrConfigNotFound)
	}
	out := *s.profile
	return &out, nil
}

func (s *fakeProfileStore) SetDefaultProfile(_ context.Context, _, profileID string) error {
	s.defaultID = profileID
	return nil
}

func (s *fakeProfileStore) DefaultProfile(_ context.Context, _ string) (string, error) {
	if s.defaultID == "" {
		return "", domain.ErrConfigNotFound
	}
	return s.defaultID, nil
}

// fakeLauncher records launched run IDs without executing them unless an
// executor is attached.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
	executor ports.RunExecutor
}

func (l *fakeLauncher) Launch(ctx context.Context, runID string) error {
	l.mu.Lock()
	l.launched = append(l.launched, runID)
	executor := l.executor
	l.mu.Unlock()
	if executor != nil {
		return executor.ExecuteRun(ctx, runID)
	}
	return nil
}

// fakeDupIndex is an in-memory durable duplicate index.
type fakeDupIndex struct {
	mu      sync.Mutex
	entries map[string]domain.DuplicateRef
	seenErr error
}

func newFakeDupIndex() *fakeDupIndex {
	return &fakeDupIndex{entries: map[string]domain.DuplicateRef{}}
}

func (i *fakeDupIndex) key(root domain.FolderRef, hash string) string {
	return string(root) + "|" + hash
}

func (i *fakeDupIndex) Seen(_ context.Context, root domain.FolderRef, hash string) (*domain.DuplicateRef, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seenErr != nil {
		return nil, i.seenErr
	}
	if ref, ok := i.entries[i.key(root, hash)]; ok {
		out := ref
		return &out, nil
	}
	return nil, nil
}

func (i *fakeDupIndex) Remember(_ context.Context, root domain.FolderRef, hash string, ref domain.DuplicateRef) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[i.key(root, hash)] = ref
	return nil
}
