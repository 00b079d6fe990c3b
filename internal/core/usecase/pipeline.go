package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/mhduong/docsorter/internal/core/classify"
	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/naming"
	"github.com/mhduong/docsorter/internal/core/ports"
)

// SortingPipeline drives one run over the source folder: extract, dedup,
// classify, place. Per-document failures are recorded in the summary and the
// run continues; only listing the source folder or a cancelled context abort
// the whole run.
type SortingPipeline struct {
	store      ports.FileStore
	extractor  ports.TextExtractor
	proposer   ports.ProposalProvider
	plans      ports.PlanWriter
	dupIndex   ports.DuplicateIndex
	classifier *classify.Classifier
	logger     *slog.Logger
	clock      func() time.Time
}

func NewSortingPipeline(
	store ports.FileStore,
	extractor ports.TextExtractor,
	proposer ports.ProposalProvider,
	plans ports.PlanWriter,
	dupIndex ports.DuplicateIndex,
	logger *slog.Logger,
	clock func() time.Time,
) *SortingPipeline {
	if clock == nil {
		clock = time.Now
	}
	return &SortingPipeline{
		store:      store,
		extractor:  extractor,
		proposer:   proposer,
		plans:      plans,
		dupIndex:   dupIndex,
		classifier: classify.New(),
		logger:     logger,
		clock:      clock,
	}
}

// Execute processes every pending document of the profile's source folder.
// The returned summary is complete even when individual documents failed.
func (p *SortingPipeline) Execute(
	ctx context.Context,
	runID string,
	profile domain.ConfigProfile,
	mode domain.RunMode,
	events *Emitter,
) (*domain.Summary, error) {
	settings := profile.Settings.Normalize()

	docs, err := p.store.ListDocuments(ctx, profile.SourceFolder, true)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "pipeline.list", err)
	}

	inventory := NewInventoryBuilder(p.store).Build(ctx, profile.TargetRoot, settings)
	dedup := NewDedupEngine(profile.TargetRoot, p.dupIndex, p.logger)
	resolver := NewPathResolver(p.store, profile.TargetRoot)
	sidecars := NewSidecarWriter(p.store, profile.TargetRoot, p.clock)

	summary := &domain.Summary{}
	events.Log("info", "run started", fmt.Sprintf("documents=%d mode=%s", len(docs), mode))

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return summary, domain.WrapError(domain.ErrTemporary, "pipeline.cancelled", err)
		}
		events.Progress(domain.Progress{Index: i + 1, Total: len(docs), File: doc.Name, Stage: "processing"})

		detail, err := p.processDocument(ctx, docCtx{
			runID:     runID,
			doc:       doc,
			mode:      mode,
			settings:  settings,
			inventory: inventory,
			dedup:     dedup,
			resolver:  resolver,
			sidecars:  sidecars,
			summary:   summary,
			events:    events,
		})
		summary.Processed++
		if err != nil {
			summary.Errors++
			summary.Details = append(summary.Details, domain.SummaryDetail{File: doc.Name, Error: err.Error()})
			events.Log("error", "document failed", fmt.Sprintf("file=%s error=%v", doc.Name, err))
			p.logger.Error("document failed", "run_id", runID, "file", doc.Name, "error", err)
			continue
		}
		summary.Details = append(summary.Details, detail)
	}

	events.Log("info", "run finished", fmt.Sprintf(
		"processed=%d moved=%d duplicates=%d errors=%d",
		summary.Processed, summary.Moved, summary.Duplicates, summary.Errors))
	return summary, nil
}

type docCtx struct {
	runID     string
	doc       domain.Document
	mode      domain.RunMode
	settings  domain.SortSettings
	inventory string
	dedup     *DedupEngine
	resolver  *PathResolver
	sidecars  *SidecarWriter
	summary   *Summary
	events    *Emitter
}

// Summary aliases the domain type so docCtx reads naturally.
type Summary = domain.Summary

func (p *SortingPipeline) processDocument(ctx context.Context, dc docCtx) (domain.SummaryDetail, error) {
	localPath, cleanup, err := p.download(ctx, dc.doc)
	if err != nil {
		return domain.SummaryDetail{}, err
	}
	defer cleanup()

	extraction, err := p.extractor.Extract(ctx, localPath, dc.doc)
	if err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.extract", err)
	}
	dc.summary.CountOCRSource(extraction.Source)

	hash := HashText(extraction.Text)
	dup, err := dc.dedup.Lookup(ctx, hash)
	if err != nil {
		return domain.SummaryDetail{}, err
	}
	if dup != nil {
		return p.handleDuplicate(ctx, dc, extraction, hash, *dup)
	}

	proposal, llm := p.propose(ctx, dc, extraction)
	textMeta := naming.ExtractMeta(extraction.Text)
	plan := p.buildPlan(dc, proposal, extraction.Text, textMeta)

	if dc.mode == domain.ModeDry {
		return p.recordPlan(ctx, dc, extraction, hash, proposal, llm, plan)
	}
	return p.place(ctx, dc, extraction, hash, proposal, llm, plan, textMeta)
}

func (p *SortingPipeline) download(ctx context.Context, doc domain.Document) (string, func(), error) {
	rc, err := p.store.Download(ctx, doc.ID)
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrTemporary, "pipeline.download", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "docsorter-*"+path.Ext(doc.Name))
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrTemporary, "pipeline.tempfile", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, domain.WrapError(domain.ErrTemporary, "pipeline.download", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, domain.WrapError(domain.ErrTemporary, "pipeline.tempfile", err)
	}
	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}

// propose asks the LLM and falls back to the regex scanners when the answer
// is unusable. The fallback keeps the run moving with a lower quality name.
func (p *SortingPipeline) propose(ctx context.Context, dc docCtx, extraction ports.Extraction) (domain.Proposal, domain.LLMInfo) {
	proposal, llm, err := p.proposer.Propose(ctx, ports.ProposalRequest{
		Text:         extraction.Text,
		OriginalName: dc.doc.Name,
		Inventory:    dc.inventory,
		Settings:     dc.settings,
	})
	if err == nil && strings.TrimSpace(proposal.NewFilename) != "" {
		return proposal, llm
	}
	if err != nil && !errors.Is(err, domain.ErrBadClassification) {
		dc.events.Log("warn", "classification unavailable, using text heuristics", err.Error())
	} else {
		dc.events.Log("warn", "unusable classification answer, using text heuristics", dc.doc.Name)
	}
	meta := naming.ExtractMeta(extraction.Text)
	return domain.Proposal{
		NewFilename:  naming.BuildFilename(dc.doc.Name, meta),
		TargetFolder: meta.Category,
	}, domain.LLMInfo{}
}

var yearRe = regexp.MustCompile(`^\d{4}$`)

func (p *SortingPipeline) buildPlan(dc docCtx, proposal domain.Proposal, text string, meta naming.TextMeta) domain.PlacementPlan {
	subfolder := p.classifier.Normalize(proposal.TargetFolder, dc.settings)

	ext := path.Ext(proposal.NewFilename)
	if ext == "" {
		ext = path.Ext(dc.doc.Name)
	}
	base := naming.SanitizeBase(strings.TrimSuffix(proposal.NewFilename, ext))
	if base == "" {
		base = naming.SanitizeBase(strings.TrimSuffix(dc.doc.Name, path.Ext(dc.doc.Name)))
	}
	name := naming.EnrichWithDate(base+ext, meta.DateISO)

	taxYear := naming.TaxYearFromText(text)
	if subfolder == "Steuern" {
		name = naming.FinalizeForTaxCategory(name, taxYear, meta.DateISO)
	}

	year := p.resolveYear(taxYear, proposal.Year, meta.DateISO)

	return domain.PlacementPlan{
		Year:               year,
		Subfolder:          subfolder,
		FinalFilename:      name,
		TranscriptFilename: transcriptName(name),
	}
}

// resolveYear picks the year folder: an explicit filing-year phrase beats
// the LLM hint, which beats the first date in the text, which beats now.
func (p *SortingPipeline) resolveYear(taxYear, hint, dateISO string) string {
	if yearRe.MatchString(taxYear) {
		return taxYear
	}
	if yearRe.MatchString(hint) {
		return hint
	}
	if len(dateISO) >= 4 && yearRe.MatchString(dateISO[:4]) {
		return dateISO[:4]
	}
	return p.clock().UTC().Format("2006")
}

func (p *SortingPipeline) recordPlan(
	ctx context.Context,
	dc docCtx,
	extraction ports.Extraction,
	hash string,
	proposal domain.Proposal,
	llm domain.LLMInfo,
	plan domain.PlacementPlan,
) (domain.SummaryDetail, error) {
	exists, err := dc.resolver.CheckExists(ctx, plan)
	if err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.check", err)
	}

	rec := newPlanRecord(dc.doc, extraction, hash)
	rec.Proposal = &proposal
	rec.Plan = &domain.PlanPaths{
		Ensure:         plan.EnsureList(),
		WouldMove:      plan.ScanPath(),
		WouldUploadTxt: plan.TranscriptPath(),
	}
	rec.Exists = exists
	if llm.Model != "" {
		rec.LLM = &llm
	}
	if err := p.plans.WritePlan(ctx, dc.runID, rec); err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.plan", err)
	}

	dc.dedup.RememberLocal(hash, domain.DuplicateRef{ID: dc.doc.ID, Name: plan.FinalFilename})
	dc.events.Log("info", "planned", plan.ScanPath())
	return domain.SummaryDetail{File: dc.doc.Name, Planned: plan.ScanPath()}, nil
}

func (p *SortingPipeline) place(
	ctx context.Context,
	dc docCtx,
	extraction ports.Extraction,
	hash string,
	proposal domain.Proposal,
	llm domain.LLMInfo,
	plan domain.PlacementPlan,
	meta naming.TextMeta,
) (domain.SummaryDetail, error) {
	if err := dc.resolver.Ensure(ctx, &plan); err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.ensure", err)
	}

	if _, err := p.store.Upload(ctx, plan.TranscriptFolder, plan.TranscriptFilename,
		"text/plain; charset=utf-8", strings.NewReader(extraction.Text)); err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.transcript", err)
	}

	if err := p.store.RenameMove(ctx, dc.doc.ID, plan.FinalFilename, dc.doc.Parent, plan.ScanFolder); err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.move", err)
	}

	sidecar := domain.SidecarMeta{
		FileID:        dc.doc.ID,
		OriginalName:  dc.doc.Name,
		NewFilename:   plan.FinalFilename,
		YearFolder:    plan.Year,
		Subfolder:     plan.Subfolder,
		ScanPath:      plan.ScanPath(),
		TranscriptRel: plan.TranscriptPath(),
		DocumentDate:  meta.DateISO,
		Sender:        meta.Sender,
		InvoiceNumber: meta.InvoiceNumber,
		ContentHash:   hash,
		OCRSource:     extraction.Source,
		LLMModel:      llm.Model,
		LLMLatencyMS:  llm.LatencyMS,
		ProcessedAt:   p.clock().UTC(),
	}
	if err := dc.sidecars.WriteMeta(ctx, plan.TranscriptFolder, sidecar); err != nil {
		dc.events.Log("warn", "sidecar write failed", err.Error())
	}
	if err := dc.sidecars.WriteRegistryEntry(ctx, sidecar); err != nil {
		dc.events.Log("warn", "registry write failed", err.Error())
	}

	tag := domain.ProcessedTag{
		Year:      plan.Year,
		Subfolder: plan.Subfolder,
		NewName:   plan.FinalFilename,
		Version:   domain.TagVersion,
	}
	if err := p.store.SetProcessedTag(ctx, dc.doc.ID, tag); err != nil {
		dc.events.Log("warn", "processed tag failed", err.Error())
	}

	dc.dedup.Remember(ctx, hash, domain.DuplicateRef{ID: dc.doc.ID, Name: plan.FinalFilename})
	dc.summary.Moved++
	dc.events.Log("info", "moved", plan.ScanPath())
	return domain.SummaryDetail{File: dc.doc.Name, PlacedAt: plan.ScanPath()}, nil
}

// handleDuplicate applies the configured policy to a document whose content
// hash was already seen.
func (p *SortingPipeline) handleDuplicate(
	ctx context.Context,
	dc docCtx,
	extraction ports.Extraction,
	hash string,
	dup domain.DuplicateRef,
) (domain.SummaryDetail, error) {
	dc.summary.Duplicates++
	policy := dc.settings.Duplicates.Policy

	if dc.mode == domain.ModeDry {
		rec := newPlanRecord(dc.doc, extraction, hash)
		rec.DuplicateOf = &dup
		rec.Policy = string(policy)
		if err := p.plans.WritePlan(ctx, dc.runID, rec); err != nil {
			return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.plan", err)
		}
		dc.events.Log("info", "duplicate detected", fmt.Sprintf("file=%s of=%s policy=%s", dc.doc.Name, dup.Name, policy))
		return domain.SummaryDetail{File: dc.doc.Name, DuplicateOf: dup.ID}, nil
	}

	if policy == domain.DuplicateSkip {
		dc.events.Log("info", "duplicate skipped", fmt.Sprintf("file=%s of=%s", dc.doc.Name, dup.Name))
		return domain.SummaryDetail{File: dc.doc.Name, DuplicateOf: dup.ID}, nil
	}

	// Move policy: park the file under {year}/{Duplikate}/Scan with a marked
	// name and its transcript alongside. The year comes from the duplicate's
	// own text date, not the original's.
	meta := naming.ExtractMeta(extraction.Text)
	year := p.clock().UTC().Format("2006")
	if len(meta.DateISO) >= 4 && yearRe.MatchString(meta.DateISO[:4]) {
		year = meta.DateISO[:4]
	}

	name := duplicateName(dc.doc.Name, dc.settings.Duplicates.RenameSuffix, hash)
	plan := domain.PlacementPlan{
		Year:               year,
		Subfolder:          dc.settings.Duplicates.SubfolderName,
		FinalFilename:      name,
		TranscriptFilename: transcriptName(name),
	}
	if err := dc.resolver.Ensure(ctx, &plan); err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.ensure", err)
	}

	if _, err := p.store.Upload(ctx, plan.TranscriptFolder, plan.TranscriptFilename,
		"text/plain; charset=utf-8", strings.NewReader(extraction.Text)); err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.transcript", err)
	}
	if err := p.store.RenameMove(ctx, dc.doc.ID, name, dc.doc.Parent, plan.ScanFolder); err != nil {
		return domain.SummaryDetail{}, domain.WrapError(domain.ErrTemporary, "pipeline.move", err)
	}

	tag := domain.ProcessedTag{
		Year:      year,
		Subfolder: dc.settings.Duplicates.SubfolderName,
		NewName:   name,
		Version:   domain.TagVersion,
	}
	if err := p.store.SetProcessedTag(ctx, dc.doc.ID, tag); err != nil {
		dc.events.Log("warn", "processed tag failed", err.Error())
	}
	dc.summary.Moved++
	dc.events.Log("info", "duplicate moved", plan.ScanPath())
	return domain.SummaryDetail{File: dc.doc.Name, PlacedAt: plan.ScanPath(), DuplicateOf: dup.ID}, nil
}

func newPlanRecord(doc domain.Document, extraction ports.Extraction, hash string) domain.PlanRecord {
	var rec domain.PlanRecord
	rec.File.ID = doc.ID
	rec.File.Name = doc.Name
	rec.File.Mime = doc.MimeClass
	rec.Transcript = &struct {
		Chars  int    `json:"chars"`
		SHA256 string `json:"sha256"`
	}{Chars: len(extraction.Text), SHA256: hash}
	rec.OCRSource = extraction.Source
	return rec
}

func transcriptName(finalFilename string) string {
	ext := path.Ext(finalFilename)
	return strings.TrimSuffix(finalFilename, ext) + ".txt"
}

// duplicateName marks a parked duplicate with the configured suffix and the
// first 8 hex characters of its content hash.
func duplicateName(originalName, suffix, hash string) string {
	ext := path.Ext(originalName)
	base := naming.SanitizeBase(strings.TrimSuffix(originalName, ext))
	short := hash
	if len(short) > 8 {
		short = short[:8]
	}
	return base + "-" + suffix + "-" + short + ext
}
