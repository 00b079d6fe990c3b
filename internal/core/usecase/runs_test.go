package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

type runFixture struct {
	store    *fakeStore
	runs     *fakeRunStore
	profiles *fakeProfileStore
	launcher *fakeLauncher
	manager  *RunManager
	source   domain.FolderRef
	target   domain.FolderRef
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"scan0001.pdf": {NewFilename: "rechnung.pdf", TargetFolder: "Rechnungen"},
	}}
	pipeline := NewSortingPipeline(store, &fakeExtractor{}, proposer, &fakePlanWriter{}, newFakeDupIndex(), testLogger(), fixedClock())

	profile := testProfile(source, target)
	profiles := &fakeProfileStore{profile: &profile, defaultID: "default"}
	runs := newFakeRunStore()
	launcher := &fakeLauncher{}
	manager := NewRunManager(pipeline, runs, profiles, launcher, testLogger(), fixedClock())
	launcher.executor = manager

	return &runFixture{
		store:    store,
		runs:     runs,
		profiles: profiles,
		launcher: launcher,
		manager:  manager,
		source:   source,
		target:   target,
	}
}

func (f *runFixture) request() ports.RunRequest {
	return ports.RunRequest{
		Email:         "user@example.com",
		ProfileID:     "default",
		OwnerHash:     domain.OwnerHash("user@example.com"),
		AccessKeyHash: domain.HashAccessKey("secret-key"),
	}
}

func TestStartDryRunReturnsSummary(t *testing.T) {
	f := newRunFixture(t)
	f.store.addFile(f.source, "scan0001.pdf", "Rechnung Datum: 15.08.2024")

	res, err := f.manager.StartDryRun(context.Background(), f.request())
	if err != nil {
		t.Fatalf("StartDryRun: %v", err)
	}
	if res.Summary == nil || res.Summary.Processed != 1 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if !strings.HasPrefix(res.RunID, "run_") {
		t.Fatalf("run id = %q", res.RunID)
	}

	rec, err := f.manager.GetStatus(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if rec.State != domain.RunSucceeded || rec.Mode != domain.ModeDry {
		t.Fatalf("record = %+v", rec)
	}
}

func TestStartRunDispatchesAndCompletes(t *testing.T) {
	f := newRunFixture(t)
	f.store.addFile(f.source, "scan0001.pdf", "Rechnung Datum: 15.08.2024")

	res, err := f.manager.StartRun(context.Background(), f.request())
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if res.Summary != nil {
		t.Fatal("real runs must not return an inline summary")
	}
	if len(f.launcher.launched) != 1 || f.launcher.launched[0] != res.RunID {
		t.Fatalf("launched = %v", f.launcher.launched)
	}

	// The fixture launcher executes synchronously via the manager.
	rec, err := f.manager.GetStatus(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if rec.State != domain.RunSucceeded {
		t.Fatalf("state = %s, error = %q", rec.State, rec.Error)
	}
	if rec.Summary == nil || rec.Summary.Moved != 1 {
		t.Fatalf("summary = %+v", rec.Summary)
	}
	// Identity stamped at creation survives progress and terminal writes.
	if rec.Meta == nil || rec.Meta.OwnerHash != f.request().OwnerHash {
		t.Fatalf("meta = %+v", rec.Meta)
	}
}

func TestRunStateIsMonotonic(t *testing.T) {
	f := newRunFixture(t)
	f.store.addFile(f.source, "scan0001.pdf", "Rechnung")

	res, err := f.manager.StartRun(context.Background(), f.request())
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	// Re-executing a terminal run is a no-op instead of a state regression.
	if err := f.manager.ExecuteRun(context.Background(), res.RunID); err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}
	rec, _ := f.manager.GetStatus(context.Background(), res.RunID)
	if rec.State != domain.RunSucceeded {
		t.Fatalf("state regressed to %s", rec.State)
	}
}

func TestStartRunUnknownProfile(t *testing.T) {
	f := newRunFixture(t)
	req := f.request()
	req.ProfileID = "missing"

	_, err := f.manager.StartRun(context.Background(), req)
	if !domain.IsKind(err, domain.ErrConfigNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestGetStatusUnknownRun(t *testing.T) {
	f := newRunFixture(t)
	_, err := f.manager.GetStatus(context.Background(), "run_does_not_exist")
	if !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestStatusReadKeepsStoreErrorKind(t *testing.T) {
	f := newRunFixture(t)
	f.store.addFile(f.source, "scan0001.pdf", "Rechnung")

	res, err := f.manager.StartDryRun(context.Background(), f.request())
	if err != nil {
		t.Fatalf("StartDryRun: %v", err)
	}

	// A store outage is not a missing run.
	f.runs.readErr = domain.WrapError(domain.ErrTemporary, "blob.read_status", errors.New("connection reset"))
	_, err = f.manager.GetStatus(context.Background(), res.RunID)
	if domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("outage reported as missing run: %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("err = %v", err)
	}
	if err := f.manager.ExecuteRun(context.Background(), res.RunID); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("ExecuteRun err = %v", err)
	}

	// A corrupt status document keeps its own kind too.
	f.runs.readErr = domain.WrapError(domain.ErrInvalidStatus, "blob.read_status", errors.New("unexpected end of JSON input"))
	_, err = f.manager.ArtifactURLs(context.Background(), res.RunID, time.Hour, f.request().AccessKeyHash)
	if domain.IsKind(err, domain.ErrRunNotFound) || !domain.IsKind(err, domain.ErrInvalidStatus) {
		t.Fatalf("err = %v", err)
	}
}

func TestListRunsFiltersByOwner(t *testing.T) {
	f := newRunFixture(t)
	f.store.addFile(f.source, "scan0001.pdf", "Rechnung")

	mine, err := f.manager.StartDryRun(context.Background(), f.request())
	if err != nil {
		t.Fatalf("StartDryRun: %v", err)
	}

	// A run stamped with a different key must not show up.
	other := domain.RunRecord{
		OK:    true,
		RunID: "run_other",
		State: domain.RunSucceeded,
		Mode:  domain.ModeDry,
		Meta:  &domain.RunMeta{AccessKeyHash: domain.HashAccessKey("someone-else")},
	}
	f.runs.WriteStatus(context.Background(), "run_other", other)

	runs, err := f.manager.ListRuns(context.Background(), f.request().AccessKeyHash, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != mine.RunID {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestArtifactURLs(t *testing.T) {
	f := newRunFixture(t)
	f.store.addFile(f.source, "scan0001.pdf", "Rechnung")

	res, err := f.manager.StartDryRun(context.Background(), f.request())
	if err != nil {
		t.Fatalf("StartDryRun: %v", err)
	}

	urls, err := f.manager.ArtifactURLs(context.Background(), res.RunID, time.Hour, f.request().AccessKeyHash)
	if err != nil {
		t.Fatalf("ArtifactURLs: %v", err)
	}
	if urls.StatusURL == "" {
		t.Fatal("status url missing")
	}
	if urls.LogsURL == "" {
		t.Fatal("logs url missing for a run that wrote logs")
	}
}

func TestArtifactURLsForbiddenLeaksNothing(t *testing.T) {
	f := newRunFixture(t)
	f.store.addFile(f.source, "scan0001.pdf", "Rechnung")

	res, err := f.manager.StartDryRun(context.Background(), f.request())
	if err != nil {
		t.Fatalf("StartDryRun: %v", err)
	}

	urls, err := f.manager.ArtifactURLs(context.Background(), res.RunID, time.Hour, domain.HashAccessKey("wrong-key"))
	if !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("err = %v", err)
	}
	if urls != nil {
		t.Fatal("forbidden caller received URLs")
	}
	// A missing run is distinguishable from a forbidden one.
	_, err = f.manager.ArtifactURLs(context.Background(), "run_missing", time.Hour, f.request().AccessKeyHash)
	if !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("err = %v", err)
	}
}
