package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type DuplicatePolicy string

const (
	DuplicateSkip DuplicatePolicy = "skip"
	DuplicateMove DuplicatePolicy = "move"
)

// DuplicateSettings controls what happens with a document whose extracted
// text hash was already seen in the same run.
type DuplicateSettings struct {
	Policy        DuplicatePolicy `json:"policy" yaml:"policy"`
	RenameSuffix  string          `json:"rename_suffix" yaml:"rename_suffix"`
	SubfolderName string          `json:"subfolder_name" yaml:"subfolder_name"`
}

// SortSettings are the classification knobs of one profile.
type SortSettings struct {
	AllowedSubfolders []string          `json:"allowed_subfolders" yaml:"allowed_subfolders"`
	AllowNew          bool              `json:"allow_new_subfolders" yaml:"allow_new_subfolders"`
	Synonyms          map[string]string `json:"subfolder_synonyms" yaml:"subfolder_synonyms"`
	Duplicates        DuplicateSettings `json:"duplicates" yaml:"duplicates"`
	KnownInstitutions []string          `json:"company_terms,omitempty" yaml:"company_terms"`
	DisallowedTerms   []string          `json:"disallowed_terms,omitempty" yaml:"disallowed_terms"`
}

// FallbackSubfolder is where documents land when nothing else matches.
const FallbackSubfolder = "Sonstiges"

// DefaultSortSettings mirrors the stock allow-list shipped with the service.
func DefaultSortSettings() SortSettings {
	return SortSettings{
		AllowedSubfolders: []string{
			"Rechnungen", "Steuern", "Bank", "Versicherungen",
			"Verträge", "Medizin", "Quittungen", "Behörden", FallbackSubfolder,
		},
		AllowNew: false,
		Synonyms: map[string]string{},
		Duplicates: DuplicateSettings{
			Policy:        DuplicateSkip,
			RenameSuffix:  "dup",
			SubfolderName: "Duplikate",
		},
	}
}

// Normalize fills zero-valued fields from the defaults so a partially
// specified profile still behaves.
func (s SortSettings) Normalize() SortSettings {
	def := DefaultSortSettings()
	out := s
	if len(out.AllowedSubfolders) == 0 {
		out.AllowedSubfolders = def.AllowedSubfolders
	}
	if out.Synonyms == nil {
		out.Synonyms = map[string]string{}
	}
	if out.Duplicates.Policy == "" {
		out.Duplicates.Policy = def.Duplicates.Policy
	}
	if out.Duplicates.RenameSuffix == "" {
		out.Duplicates.RenameSuffix = def.Duplicates.RenameSuffix
	}
	if out.Duplicates.SubfolderName == "" {
		out.Duplicates.SubfolderName = def.Duplicates.SubfolderName
	}
	return out
}

// ConfigProfile resolves a run request to a source/target pair plus the
// sorting settings. Profiles are stored per owner in the blob store and
// consumed read-only by the run manager.
type ConfigProfile struct {
	Email        string       `json:"email,omitempty"`
	OwnerHash    string       `json:"owner_hash"`
	ProfileID    string       `json:"profile_id"`
	SourceFolder FolderRef    `json:"source_folder"`
	TargetRoot   FolderRef    `json:"target_root"`
	Settings     SortSettings `json:"settings"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// OwnerHash derives the stable ownership fingerprint from an account email.
func OwnerHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// HashAccessKey fingerprints an access credential for run-ownership checks.
func HashAccessKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
