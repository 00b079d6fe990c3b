package ports

import (
	"context"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
)

// RunRequest identifies whose configuration a run should use and how the
// caller is fingerprinted for later artifact access.
type RunRequest struct {
	Email         string
	ProfileID     string
	OwnerHash     string
	AccessKeyHash string
}

// StartResult is returned by run creation; Summary is set for synchronous
// dry runs only.
type StartResult struct {
	RunID   string
	Summary *domain.Summary
}

// RunService is the inbound contract of the run lifecycle.
type RunService interface {
	StartDryRun(ctx context.Context, req RunRequest) (*StartResult, error)
	StartRun(ctx context.Context, req RunRequest) (*StartResult, error)
	GetStatus(ctx context.Context, runID string) (*domain.RunRecord, error)
	ListRuns(ctx context.Context, ownerFingerprint string, limit int) ([]domain.RunRecord, error)
	ArtifactURLs(ctx context.Context, runID string, ttl time.Duration, accessKeyHash string) (*domain.ArtifactURLs, error)
}

// RunExecutor executes an already persisted run to completion. Used by the
// worker side of the dispatch queue.
type RunExecutor interface {
	ExecuteRun(ctx context.Context, runID string) error
}
