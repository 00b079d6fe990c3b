package domain

import (
	"path"
	"strings"
)

// FolderRef identifies a folder inside the remote file store. The store
// decides what the value means (an opaque ID for cloud drives, a relative
// path for the local-directory store).
type FolderRef string

// FileRef identifies a single document inside the remote file store.
type FileRef string

type MimeClass string

const (
	MimePDF         MimeClass = "application/pdf"
	MimeImage       MimeClass = "image"
	MimeSpreadsheet MimeClass = "spreadsheet"
	MimeOther       MimeClass = "application/octet-stream"
)

// Document is a file waiting in the source folder, as reported by the
// remote store listing.
type Document struct {
	ID        FileRef   `json:"id"`
	Name      string    `json:"name"`
	MimeClass MimeClass `json:"mime_class"`
	Parent    FolderRef `json:"parent"`
}

// MimeClassFromName derives the coarse media class used for extraction
// branching from the file extension alone.
func MimeClassFromName(name string) MimeClass {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return MimePDF
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".tif", ".tiff":
		return MimeImage
	case ".xlsx", ".xlsm", ".xltx":
		return MimeSpreadsheet
	default:
		return MimeOther
	}
}

// ProcessedTag is stamped onto a document after successful placement so a
// later run can exclude it from the listing.
type ProcessedTag struct {
	Year      string `json:"year"`
	Subfolder string `json:"subfolder"`
	NewName   string `json:"new_name"`
	Version   string `json:"version"`
}

// TagVersion marks the pipeline revision that produced a ProcessedTag.
const TagVersion = "2025-09-07"
