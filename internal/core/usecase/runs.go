package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

// TTL bounds for signed artifact links.
const (
	minArtifactTTL = time.Minute
	maxArtifactTTL = 24 * time.Hour
)

const defaultListLimit = 50

// RunManager owns the run lifecycle: it creates status documents, executes
// or dispatches pipelines and answers status, listing and artifact queries.
type RunManager struct {
	pipeline *SortingPipeline
	runs     ports.RunStore
	profiles ports.ProfileStore
	launcher ports.RunLauncher
	logger   *slog.Logger
	clock    func() time.Time
}

var (
	_ ports.RunService  = (*RunManager)(nil)
	_ ports.RunExecutor = (*RunManager)(nil)
)

func NewRunManager(
	pipeline *SortingPipeline,
	runs ports.RunStore,
	profiles ports.ProfileStore,
	launcher ports.RunLauncher,
	logger *slog.Logger,
	clock func() time.Time,
) *RunManager {
	if clock == nil {
		clock = time.Now
	}
	return &RunManager{
		pipeline: pipeline,
		runs:     runs,
		profiles: profiles,
		launcher: launcher,
		logger:   logger,
		clock:    clock,
	}
}

// SetLauncher binds the launcher after construction. The in-process runner
// executes through the manager itself, so the two are built in sequence.
func (m *RunManager) SetLauncher(launcher ports.RunLauncher) {
	m.launcher = launcher
}

// StartDryRun executes the pipeline synchronously in planning mode and
// returns the summary with the response.
func (m *RunManager) StartDryRun(ctx context.Context, req ports.RunRequest) (*ports.StartResult, error) {
	profile, err := m.resolveProfile(ctx, req)
	if err != nil {
		return nil, err
	}
	runID := m.newRunID()
	if err := m.writeInitial(ctx, runID, domain.ModeDry, req); err != nil {
		return nil, err
	}
	summary := m.execute(ctx, runID, *profile, domain.ModeDry, req)
	return &ports.StartResult{RunID: runID, Summary: summary}, nil
}

// StartRun persists the initial status and hands the run to the launcher.
// The caller polls or streams the status document for progress.
func (m *RunManager) StartRun(ctx context.Context, req ports.RunRequest) (*ports.StartResult, error) {
	if m.launcher == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "runs.launch", fmt.Errorf("no launcher configured"))
	}
	if _, err := m.resolveProfile(ctx, req); err != nil {
		return nil, err
	}
	runID := m.newRunID()
	if err := m.writeInitial(ctx, runID, domain.ModeReal, req); err != nil {
		return nil, err
	}
	if err := m.launcher.Launch(ctx, runID); err != nil {
		m.finalize(context.WithoutCancel(ctx), runID, domain.ModeReal, nil, err)
		return nil, domain.WrapError(domain.ErrTemporary, "runs.launch", err)
	}
	return &ports.StartResult{RunID: runID}, nil
}

// ExecuteRun runs an already persisted run to completion. The worker and the
// in-process launcher both end up here.
func (m *RunManager) ExecuteRun(ctx context.Context, runID string) error {
	rec, err := m.readStatus(ctx, "runs.execute", runID)
	if err != nil {
		return err
	}
	if rec.State.Terminal() {
		m.logger.Info("run already terminal, skipping", "run_id", runID, "state", rec.State)
		return nil
	}
	meta := rec.Meta
	if meta == nil {
		meta = &domain.RunMeta{}
	}
	req := ports.RunRequest{
		Email:         meta.Email,
		ProfileID:     meta.ProfileID,
		OwnerHash:     meta.OwnerHash,
		AccessKeyHash: meta.AccessKeyHash,
	}
	profile, err := m.resolveProfile(ctx, req)
	if err != nil {
		m.finalize(context.WithoutCancel(ctx), runID, rec.Mode, nil, err)
		return err
	}
	m.execute(ctx, runID, *profile, rec.Mode, req)
	return nil
}

// execute drives the pipeline with a status-persisting event consumer and
// always writes a terminal state.
func (m *RunManager) execute(ctx context.Context, runID string, profile domain.ConfigProfile, mode domain.RunMode, req ports.RunRequest) *domain.Summary {
	events := NewEmitter(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.consume(context.WithoutCancel(ctx), runID, mode, events)
	}()

	summary, err := m.pipeline.Execute(ctx, runID, profile, mode, events)
	events.Close()
	wg.Wait()

	if dropped := events.Dropped(); dropped > 0 {
		m.logger.Warn("event buffer overflow", "run_id", runID, "dropped", dropped)
	}
	m.finalize(context.WithoutCancel(ctx), runID, mode, summary, err)
	return summary
}

// consume drains pipeline events into the run store. Progress events update
// the status document; log events append to the run log.
func (m *RunManager) consume(ctx context.Context, runID string, mode domain.RunMode, events *Emitter) {
	for ev := range events.Events() {
		switch ev.Kind {
		case EventProgress:
			progress := ev.Progress
			rec := domain.RunRecord{
				OK:        true,
				RunID:     runID,
				State:     domain.RunRunning,
				Mode:      mode,
				Progress:  &progress,
				UpdatedAt: m.clock().UTC(),
			}
			if err := m.runs.WriteStatus(ctx, runID, rec); err != nil {
				m.logger.Warn("progress write failed", "run_id", runID, "error", err)
			}
		case EventLog:
			if err := m.runs.AppendLog(ctx, runID, ev.Log); err != nil {
				m.logger.Warn("log append failed", "run_id", runID, "error", err)
			}
		}
	}
}

func (m *RunManager) writeInitial(ctx context.Context, runID string, mode domain.RunMode, req ports.RunRequest) error {
	rec := domain.RunRecord{
		OK:    true,
		RunID: runID,
		State: domain.RunRunning,
		Mode:  mode,
		Meta: &domain.RunMeta{
			Email:         req.Email,
			OwnerHash:     req.OwnerHash,
			ProfileID:     req.ProfileID,
			AccessKeyHash: req.AccessKeyHash,
		},
		UpdatedAt: m.clock().UTC(),
	}
	if err := m.runs.WriteStatus(ctx, runID, rec); err != nil {
		return domain.WrapError(domain.ErrTemporary, "runs.init", err)
	}
	return nil
}

func (m *RunManager) finalize(ctx context.Context, runID string, mode domain.RunMode, summary *domain.Summary, runErr error) {
	rec := domain.RunRecord{
		OK:        runErr == nil,
		RunID:     runID,
		State:     domain.RunSucceeded,
		Mode:      mode,
		Summary:   summary,
		UpdatedAt: m.clock().UTC(),
	}
	if runErr != nil {
		rec.State = domain.RunFailed
		rec.Error = runErr.Error()
	}
	if err := m.runs.WriteStatus(ctx, runID, rec); err != nil {
		m.logger.Error("terminal status write failed", "run_id", runID, "error", err)
	}
}

func (m *RunManager) resolveProfile(ctx context.Context, req ports.RunRequest) (*domain.ConfigProfile, error) {
	profileID := req.ProfileID
	if profileID == "" {
		def, err := m.profiles.DefaultProfile(ctx, req.OwnerHash)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfigNotFound, "runs.profile", err)
		}
		profileID = def
	}
	profile, err := m.profiles.LoadProfile(ctx, req.OwnerHash, profileID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfigNotFound, "runs.profile", err)
	}
	return profile, nil
}

// GetStatus returns the persisted status document of a run.
func (m *RunManager) GetStatus(ctx context.Context, runID string) (*domain.RunRecord, error) {
	return m.readStatus(ctx, "runs.status", runID)
}

// readStatus loads a run record and keeps the store's error kind. A store
// outage or a corrupt status document must not be answered as if the run
// never existed.
func (m *RunManager) readStatus(ctx context.Context, op, runID string) (*domain.RunRecord, error) {
	rec, err := m.runs.ReadStatus(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// ListRuns returns the caller's runs, newest first. Ownership is matched on
// the access-key fingerprint with the owner hash as fallback for records
// written before keys were fingerprinted.
func (m *RunManager) ListRuns(ctx context.Context, ownerFingerprint string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	all, err := m.runs.ListStatuses(ctx, limit*4)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "runs.list", err)
	}
	var out []domain.RunRecord
	for _, rec := range all {
		if !ownsRun(rec, ownerFingerprint) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func ownsRun(rec domain.RunRecord, fingerprint string) bool {
	if fingerprint == "" || rec.Meta == nil {
		return false
	}
	return rec.Meta.AccessKeyHash == fingerprint || rec.Meta.OwnerHash == fingerprint
}

// ArtifactURLs issues signed read links for a run's status and log
// documents. The ownership check runs before any URL is produced so a
// forbidden caller learns nothing about the artifacts.
func (m *RunManager) ArtifactURLs(ctx context.Context, runID string, ttl time.Duration, accessKeyHash string) (*domain.ArtifactURLs, error) {
	if ttl < minArtifactTTL {
		ttl = minArtifactTTL
	}
	if ttl > maxArtifactTTL {
		ttl = maxArtifactTTL
	}

	rec, err := m.readStatus(ctx, "runs.artifacts", runID)
	if err != nil {
		return nil, err
	}
	if rec.Meta == nil || rec.Meta.AccessKeyHash == "" || rec.Meta.AccessKeyHash != accessKeyHash {
		return nil, domain.WrapError(domain.ErrForbidden, "runs.artifacts", fmt.Errorf("run %s not owned by caller", runID))
	}

	statusURL, err := m.runs.PresignStatus(ctx, runID, ttl)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "runs.presign", err)
	}
	urls := &domain.ArtifactURLs{StatusURL: statusURL}

	logsURL, ok, err := m.runs.PresignLogs(ctx, runID, ttl)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "runs.presign", err)
	}
	if ok {
		urls.LogsURL = logsURL
	}
	return urls, nil
}

// newRunID combines a sortable timestamp with a short random tail.
func (m *RunManager) newRunID() string {
	ts := m.clock().UTC().Format("20060102T150405Z")
	tail := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run_%s_%s", ts, tail)
}
