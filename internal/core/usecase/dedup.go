package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

// HashText fingerprints extracted text for duplicate detection. Empty text
// hashes too: two unreadable scans are deliberately treated as duplicates of
// each other.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DedupEngine tracks content hashes within one run and consults the durable
// cross-run index when one is configured. Index failures degrade to
// run-scoped detection instead of failing the document.
type DedupEngine struct {
	root    domain.FolderRef
	index   ports.DuplicateIndex
	seen    map[string]domain.DuplicateRef
	logger  *slog.Logger
	degrade bool
}

func NewDedupEngine(root domain.FolderRef, index ports.DuplicateIndex, logger *slog.Logger) *DedupEngine {
	return &DedupEngine{
		root:   root,
		index:  index,
		seen:   make(map[string]domain.DuplicateRef),
		logger: logger,
	}
}

// Lookup returns the first occurrence of the hash, if any.
func (d *DedupEngine) Lookup(ctx context.Context, hash string) (*domain.DuplicateRef, error) {
	if ref, ok := d.seen[hash]; ok {
		return &ref, nil
	}
	if d.index == nil || d.degrade {
		return nil, nil
	}
	ref, err := d.index.Seen(ctx, d.root, hash)
	if err != nil {
		d.degrade = true
		d.logger.Warn("duplicate index unavailable, falling back to run-scoped dedup", "error", err)
		return nil, nil
	}
	return ref, nil
}

// RememberLocal records the hash for the rest of the run only. Dry runs use
// this so they never write the durable index.
func (d *DedupEngine) RememberLocal(hash string, ref domain.DuplicateRef) {
	d.seen[hash] = ref
}

// Remember records the hash for the rest of the run and, best effort, in the
// durable index.
func (d *DedupEngine) Remember(ctx context.Context, hash string, ref domain.DuplicateRef) {
	d.seen[hash] = ref
	if d.index == nil || d.degrade {
		return
	}
	if err := d.index.Remember(ctx, d.root, hash, ref); err != nil {
		d.degrade = true
		d.logger.Warn("duplicate index write failed", "error", err)
	}
}
