package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/mhduong/docsorter/internal/core/domain"
)

func testProfile(source, target domain.FolderRef) domain.ConfigProfile {
	return domain.ConfigProfile{
		OwnerHash:    domain.OwnerHash("user@example.com"),
		ProfileID:    "default",
		SourceFolder: source,
		TargetRoot:   target,
		Settings:     domain.DefaultSortSettings(),
	}
}

func newTestPipeline(store *fakeStore, proposer *fakeProposer, plans *fakePlanWriter, index *fakeDupIndex) *SortingPipeline {
	return NewSortingPipeline(store, &fakeExtractor{}, proposer, plans, index, testLogger(), fixedClock())
}

func drain(events *Emitter) {
	go func() {
		for range events.Events() {
		}
	}()
}

func TestPipelinePlacesDocument(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	docID := store.addFile(source, "scan0001.pdf",
		"Stadtwerke Musterstadt GmbH\nRechnung\nRechnungsnummer: 12345\nDatum: 15.08.2024\n")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"scan0001.pdf": {NewFilename: "Rechnung Stadtwerke.pdf", TargetFolder: "Rechnungen"},
	}}
	plans := &fakePlanWriter{}
	pipeline := newTestPipeline(store, proposer, plans, newFakeDupIndex())

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if summary.Processed != 1 || summary.Moved != 1 || summary.Errors != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	got := store.pathOf(docID)
	want := "Archiv/2024/Rechnungen/Scan/rechnung-stadtwerke-2024-08-15.pdf"
	if got != want {
		t.Fatalf("placed at %q, want %q", got, want)
	}

	// Transcript and sidecar land in the Texttranskript folder.
	ctx := context.Background()
	year, ok, _ := store.FindFolder(ctx, target, "2024")
	if !ok {
		t.Fatal("year folder missing")
	}
	sub, ok, _ := store.FindFolder(ctx, year, "Rechnungen")
	if !ok {
		t.Fatal("subfolder missing")
	}
	transcripts, ok, _ := store.FindFolder(ctx, sub, domain.TranscriptFolderName)
	if !ok {
		t.Fatal("transcript folder missing")
	}
	if store.findFileIn(transcripts, "rechnung-stadtwerke-2024-08-15.txt") == nil {
		t.Fatal("transcript missing")
	}
	if store.findFileIn(transcripts, "rechnung-stadtwerke-2024-08-15.meta.json") == nil {
		t.Fatal("sidecar missing")
	}

	// Processed documents disappear from the next listing.
	docs, _ := store.ListDocuments(ctx, source, true)
	if len(docs) != 0 {
		t.Fatalf("expected empty source listing, got %d", len(docs))
	}
}

func TestPipelineDryRunWritesPlansOnly(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	docID := store.addFile(source, "scan0001.pdf", "Rechnung\nDatum: 15.08.2024\n")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"scan0001.pdf": {NewFilename: "rechnung.pdf", TargetFolder: "Rechnungen"},
	}}
	plans := &fakePlanWriter{}
	pipeline := newTestPipeline(store, proposer, plans, newFakeDupIndex())

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeDry, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Moved != 0 {
		t.Fatalf("dry run moved files: %+v", summary)
	}
	if len(plans.records) != 1 {
		t.Fatalf("plan records = %d", len(plans.records))
	}

	rec := plans.records[0]
	if rec.Plan == nil || rec.Plan.WouldMove != "2024/Rechnungen/Scan/rechnung-2024-08-15.pdf" {
		t.Fatalf("plan = %+v", rec.Plan)
	}
	if !strings.HasSuffix(rec.Plan.WouldUploadTxt, ".txt") {
		t.Fatalf("transcript path = %q", rec.Plan.WouldUploadTxt)
	}
	for _, segment := range rec.Plan.Ensure {
		if rec.Exists[segment] {
			t.Fatalf("segment %q should not exist yet", segment)
		}
	}

	// The source file is untouched.
	if store.pathOf(docID) != "Eingang/scan0001.pdf" {
		t.Fatalf("dry run moved the file to %q", store.pathOf(docID))
	}
}

func TestPipelineDuplicateSkip(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	store.addFile(source, "a-first.pdf", "identical content")
	dupID := store.addFile(source, "b-second.pdf", "identical content")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"a-first.pdf":  {NewFilename: "erste.pdf", TargetFolder: "Sonstiges"},
		"b-second.pdf": {NewFilename: "zweite.pdf", TargetFolder: "Sonstiges"},
	}}
	pipeline := newTestPipeline(store, proposer, &fakePlanWriter{}, newFakeDupIndex())

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Duplicates != 1 || summary.Moved != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	// Skipped duplicate stays in the source folder.
	if got := store.pathOf(dupID); got != "Eingang/b-second.pdf" {
		t.Fatalf("duplicate at %q", got)
	}
}

func TestPipelineDuplicateMove(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	store.addFile(source, "a-first.pdf", "identical content Datum: 15.08.2024")
	dupID := store.addFile(source, "b-second.pdf", "identical content Datum: 15.08.2024")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"a-first.pdf":  {NewFilename: "erste.pdf", TargetFolder: "Sonstiges"},
		"b-second.pdf": {NewFilename: "zweite.pdf", TargetFolder: "Sonstiges"},
	}}
	pipeline := newTestPipeline(store, proposer, &fakePlanWriter{}, newFakeDupIndex())

	profile := testProfile(source, target)
	profile.Settings.Duplicates.Policy = domain.DuplicateMove

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", profile, domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Duplicates != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	got := store.pathOf(dupID)
	hash := HashText("identical content Datum: 15.08.2024")
	dupName := "b-second-dup-" + hash[:8]
	want := "Archiv/2024/Duplikate/Scan/" + dupName + ".pdf"
	if got != want {
		t.Fatalf("duplicate at %q, want %q", got, want)
	}

	// A parked duplicate keeps its transcript next to the file.
	ctx := context.Background()
	year, ok, _ := store.FindFolder(ctx, target, "2024")
	if !ok {
		t.Fatal("year folder missing")
	}
	dupFolder, ok, _ := store.FindFolder(ctx, year, "Duplikate")
	if !ok {
		t.Fatal("duplicate subfolder missing")
	}
	transcripts, ok, _ := store.FindFolder(ctx, dupFolder, domain.TranscriptFolderName)
	if !ok {
		t.Fatal("transcript folder missing")
	}
	txt := store.findFileIn(transcripts, dupName+".txt")
	if txt == nil {
		t.Fatal("transcript missing for moved duplicate")
	}
	if string(txt.content) != "identical content Datum: 15.08.2024" {
		t.Fatalf("transcript content = %q", txt.content)
	}
}

func TestPipelineCrossRunDuplicate(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	store.addFile(source, "wieder.pdf", "already archived content")

	index := newFakeDupIndex()
	index.Remember(context.Background(), target, HashText("already archived content"),
		domain.DuplicateRef{ID: "old-file", Name: "archiviert.pdf"})

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"wieder.pdf": {NewFilename: "wieder.pdf", TargetFolder: "Sonstiges"},
	}}
	pipeline := newTestPipeline(store, proposer, &fakePlanWriter{}, index)

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Duplicates != 1 {
		t.Fatalf("cross-run duplicate not detected: %+v", summary)
	}
	if len(summary.Details) != 1 || summary.Details[0].DuplicateOf != "old-file" {
		t.Fatalf("details = %+v", summary.Details)
	}
}

func TestPipelineFallsBackOnBadClassification(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	docID := store.addFile(source, "scan0002.pdf",
		"Stadtwerke Musterstadt GmbH\nRechnung\nRechnungsnummer: 12345\nDatum: 15.08.2024\n")

	// No canned proposal: the fake answers ErrBadClassification and the
	// pipeline builds the name from text heuristics.
	proposer := &fakeProposer{}
	pipeline := newTestPipeline(store, proposer, &fakePlanWriter{}, newFakeDupIndex())

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Errors != 0 || summary.Moved != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	got := store.pathOf(docID)
	if !strings.HasPrefix(got, "Archiv/2024/Rechnungen/Scan/") {
		t.Fatalf("fallback placement = %q", got)
	}
}

func TestPipelineTaxYearOverride(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	docID := store.addFile(source, "bescheid.pdf",
		"Finanzamt Musterstadt\nBescheid für das Steuerjahr 2023\nDatum: 2024-01-01\n")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"bescheid.pdf": {NewFilename: "steuerbescheid.pdf", TargetFolder: "Steuern", Year: "2024"},
	}}
	pipeline := newTestPipeline(store, proposer, &fakePlanWriter{}, newFakeDupIndex())

	events := NewEmitter(0)
	drain(events)
	_, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// The filing year beats both the LLM hint and the issue date, and the
	// Jan-1 issue date is treated as a placeholder.
	got := store.pathOf(docID)
	want := "Archiv/2023/Steuern/Scan/steuerbescheid-2023.pdf"
	if got != want {
		t.Fatalf("placed at %q, want %q", got, want)
	}
}

func TestPipelineContinuesAfterDocumentError(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	store.addFile(source, "a-kaputt.pdf", "whatever")
	okID := store.addFile(source, "b-gut.pdf", "Rechnung Datum: 15.08.2024")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"b-gut.pdf": {NewFilename: "gut.pdf", TargetFolder: "Rechnungen"},
	}}
	plans := &fakePlanWriter{}
	pipeline := NewSortingPipeline(store, &failingExtractor{failOn: "a-kaputt.pdf"}, proposer, plans, newFakeDupIndex(), testLogger(), fixedClock())

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Errors != 1 || summary.Moved != 1 || summary.Processed != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if store.pathOf(okID) == "Eingang/b-gut.pdf" {
		t.Fatal("healthy document was not processed")
	}
}

func TestPipelineEmptyTextIsHashable(t *testing.T) {
	store := newFakeStore()
	source := store.addFolder(fakeRootID, "Eingang")
	target := store.addFolder(fakeRootID, "Archiv")
	store.addFile(source, "leer-a.pdf", "")
	store.addFile(source, "leer-b.pdf", "")

	proposer := &fakeProposer{proposals: map[string]domain.Proposal{
		"leer-a.pdf": {NewFilename: "leer.pdf", TargetFolder: "Sonstiges"},
		"leer-b.pdf": {NewFilename: "leer.pdf", TargetFolder: "Sonstiges"},
	}}
	pipeline := newTestPipeline(store, proposer, &fakePlanWriter{}, newFakeDupIndex())

	events := NewEmitter(0)
	drain(events)
	summary, err := pipeline.Execute(context.Background(), "run_test", testProfile(source, target), domain.ModeReal, events)
	events.Close()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Two unreadable scans count as duplicates of each other.
	if summary.Duplicates != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}
