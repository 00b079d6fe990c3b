package domain

import "time"

// Proposal is the structured answer of the classification LLM for one
// document. It is consumed immediately and never stored raw.
type Proposal struct {
	NewFilename  string `json:"new_filename"`
	TargetFolder string `json:"target_folder"`
	Year         string `json:"year,omitempty"`
}

// ScanFolderName and TranscriptFolderName are the fixed leaf folders of the
// {year}/{subfolder} hierarchy.
const (
	ScanFolderName       = "Scan"
	TranscriptFolderName = "Texttranskript"
)

// PlacementPlan is the fully resolved target of one document. It is computed
// once per document and immutable afterwards.
type PlacementPlan struct {
	Year               string    `json:"year"`
	Subfolder          string    `json:"subfolder"`
	FinalFilename      string    `json:"final_filename"`
	TranscriptFilename string    `json:"transcript_filename"`
	ScanFolder         FolderRef `json:"-"`
	TranscriptFolder   FolderRef `json:"-"`
}

// ScanPath returns the human-readable placement path used in plans and logs.
func (p PlacementPlan) ScanPath() string {
	return p.Year + "/" + p.Subfolder + "/" + ScanFolderName + "/" + p.FinalFilename
}

func (p PlacementPlan) TranscriptPath() string {
	return p.Year + "/" + p.Subfolder + "/" + TranscriptFolderName + "/" + p.TranscriptFilename
}

// EnsureList enumerates the folder segments the placement would create,
// outermost first.
func (p PlacementPlan) EnsureList() []string {
	base := p.Year + "/" + p.Subfolder
	return []string{p.Year, base, base + "/" + ScanFolderName, base + "/" + TranscriptFolderName}
}

// SidecarMeta is the provenance record written next to a placed document's
// transcript and mirrored into the registry journal.
type SidecarMeta struct {
	FileID        FileRef   `json:"file_id"`
	OriginalName  string    `json:"original_name"`
	NewFilename   string    `json:"new_filename"`
	YearFolder    string    `json:"year_folder"`
	Subfolder     string    `json:"subfolder"`
	ScanPath      string    `json:"scan_path"`
	TranscriptRel string    `json:"transcript_path"`
	DocumentDate  string    `json:"document_date,omitempty"`
	Sender        string    `json:"sender,omitempty"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	ContentHash   string    `json:"sha256,omitempty"`
	OCRSource     string    `json:"ocr_source,omitempty"`
	LLMModel      string    `json:"llm_model,omitempty"`
	LLMLatencyMS  int64     `json:"llm_latency_ms,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// PlanRecord is one NDJSON line of the dry-run plan export.
type PlanRecord struct {
	File struct {
		ID   FileRef   `json:"id"`
		Name string    `json:"name"`
		Mime MimeClass `json:"mime"`
	} `json:"file"`
	Transcript *struct {
		Chars  int    `json:"chars"`
		SHA256 string `json:"sha256"`
	} `json:"transcript,omitempty"`
	Proposal    *Proposal       `json:"proposal,omitempty"`
	Plan        *PlanPaths      `json:"plan,omitempty"`
	Exists      map[string]bool `json:"exists,omitempty"`
	DuplicateOf *DuplicateRef   `json:"duplicate_of,omitempty"`
	Policy      string          `json:"duplicate_policy,omitempty"`
	LLM         *LLMInfo        `json:"llm,omitempty"`
	OCRSource   string          `json:"ocr_source,omitempty"`
}

type PlanPaths struct {
	Ensure         []string `json:"ensure"`
	WouldMove      string   `json:"wouldMove"`
	WouldUploadTxt string   `json:"wouldUploadTxt"`
}

type LLMInfo struct {
	Model     string `json:"model"`
	LatencyMS int64  `json:"latency_ms"`
}

// DuplicateRef points at the first occurrence of a content hash within a run.
type DuplicateRef struct {
	ID   FileRef `json:"id"`
	Name string  `json:"name"`
}
