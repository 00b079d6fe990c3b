package ports

import (
	"context"
	"io"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
)

// FolderEntry is one child of a folder listing.
type FolderEntry struct {
	ID   domain.FileRef
	Name string
}

// FileStore is the remote document store (cloud drive or local directory
// tree). Folder resolution is by exact name under a parent; creation is
// get-or-create without cross-process atomicity.
type FileStore interface {
	ListDocuments(ctx context.Context, folder domain.FolderRef, onlyUnprocessed bool) ([]domain.Document, error)
	ListFolders(ctx context.Context, parent domain.FolderRef) ([]FolderEntry, error)
	ListFiles(ctx context.Context, parent domain.FolderRef) ([]FolderEntry, error)
	FindFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, bool, error)
	CreateFolder(ctx context.Context, parent domain.FolderRef, name string) (domain.FolderRef, error)
	Download(ctx context.Context, id domain.FileRef) (io.ReadCloser, error)
	Upload(ctx context.Context, parent domain.FolderRef, name, contentType string, body io.Reader) (domain.FileRef, error)
	RenameMove(ctx context.Context, id domain.FileRef, newName string, from, to domain.FolderRef) error
	SetProcessedTag(ctx context.Context, id domain.FileRef, tag domain.ProcessedTag) error
}

// Extraction is the outcome of text extraction for one document.
type Extraction struct {
	Text   string
	Source string
}

// Extraction sources reported in summaries and sidecars.
const (
	SourceOCR      = "ocr"
	SourcePDFText  = "pdf-text"
	SourceXLSX     = "xlsx"
	SourceFilename = "filename"
)

// TextExtractor turns a downloaded document into plain text. Implementations
// branch on the document's media class (embedded PDF text, OCR service,
// spreadsheet cells, filename-only).
type TextExtractor interface {
	Extract(ctx context.Context, localPath string, doc domain.Document) (Extraction, error)
}

// ProposalRequest is the input of one classification call.
type ProposalRequest struct {
	Text         string
	OriginalName string
	Inventory    string
	Settings     domain.SortSettings
}

// ProposalProvider asks the LLM collaborator for a rename/placement
// proposal. A response that cannot be parsed into a Proposal surfaces as
// domain.ErrBadClassification.
type ProposalProvider interface {
	Propose(ctx context.Context, req ProposalRequest) (domain.Proposal, domain.LLMInfo, error)
}

// RunStore persists run status documents and append-only logs.
// WriteStatus must preserve previously recorded meta when the new record
// carries none (merge-not-replace).
type RunStore interface {
	WriteStatus(ctx context.Context, runID string, rec domain.RunRecord) error
	ReadStatus(ctx context.Context, runID string) (*domain.RunRecord, error)
	AppendLog(ctx context.Context, runID string, entry domain.LogEntry) error
	ListStatuses(ctx context.Context, limit int) ([]domain.RunRecord, error)
	PresignStatus(ctx context.Context, runID string, ttl time.Duration) (string, error)
	PresignLogs(ctx context.Context, runID string, ttl time.Duration) (string, bool, error)
}

// PlanWriter receives the dry-run plan export, one record per document.
type PlanWriter interface {
	WritePlan(ctx context.Context, runID string, rec domain.PlanRecord) error
}

// ProfileStore persists per-owner configuration profiles.
type ProfileStore interface {
	SaveProfile(ctx context.Context, profile domain.ConfigProfile) error
	LoadProfile(ctx context.Context, ownerHash, profileID string) (*domain.ConfigProfile, error)
	SetDefaultProfile(ctx context.Context, ownerHash, profileID string) error
	DefaultProfile(ctx context.Context, ownerHash string) (string, error)
}

// AccessKeys validates raw access credentials against the secret-backed
// key store.
type AccessKeys interface {
	Contains(ctx context.Context, key string) (bool, error)
}

// RunLauncher hands a persisted run over for background execution. The
// in-process implementation uses a bounded task runner; the distributed one
// publishes to the worker queue.
type RunLauncher interface {
	Launch(ctx context.Context, runID string) error
}

// DuplicateIndex is the durable, cross-run duplicate store keyed by content
// hash and scoped per target root.
type DuplicateIndex interface {
	Seen(ctx context.Context, root domain.FolderRef, hash string) (*domain.DuplicateRef, error)
	Remember(ctx context.Context, root domain.FolderRef, hash string, ref domain.DuplicateRef) error
}
