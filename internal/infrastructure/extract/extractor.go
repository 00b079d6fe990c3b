// Package extract chooses the extraction path for a document by media
// class: embedded PDF text when present, the OCR service for scans and
// images, spreadsheet cells for xlsx, and the bare filename for everything
// else.
package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

// OCRClient is the scan-to-text collaborator.
type OCRClient interface {
	Recognize(ctx context.Context, localPath string) (string, error)
}

// PDFTextExtractor reads an embedded text layer, reporting ok=false when
// the PDF has none.
type PDFTextExtractor interface {
	Extract(ctx context.Context, localPath string) (text string, ok bool, err error)
}

// SpreadsheetExtractor renders spreadsheet cells as text.
type SpreadsheetExtractor interface {
	Extract(ctx context.Context, localPath string) (string, error)
}

type Composite struct {
	pdf    PDFTextExtractor
	ocr    OCRClient
	sheets SpreadsheetExtractor
	logger *slog.Logger
}

var _ ports.TextExtractor = (*Composite)(nil)

func NewComposite(pdf PDFTextExtractor, ocr OCRClient, sheets SpreadsheetExtractor, logger *slog.Logger) *Composite {
	return &Composite{pdf: pdf, ocr: ocr, sheets: sheets, logger: logger}
}

func (c *Composite) Extract(ctx context.Context, localPath string, doc domain.Document) (ports.Extraction, error) {
	switch doc.MimeClass {
	case domain.MimePDF:
		return c.extractPDF(ctx, localPath, doc)
	case domain.MimeImage:
		text, err := c.ocr.Recognize(ctx, localPath)
		if err != nil {
			return ports.Extraction{}, err
		}
		return ports.Extraction{Text: text, Source: ports.SourceOCR}, nil
	case domain.MimeSpreadsheet:
		text, err := c.sheets.Extract(ctx, localPath)
		if err != nil {
			return ports.Extraction{}, err
		}
		return ports.Extraction{Text: text, Source: ports.SourceXLSX}, nil
	default:
		return ports.Extraction{Text: filenameText(doc.Name), Source: ports.SourceFilename}, nil
	}
}

// extractPDF prefers the embedded text layer and falls back to OCR. A
// failed text-layer read is not fatal; scanned PDFs routinely trip it.
func (c *Composite) extractPDF(ctx context.Context, localPath string, doc domain.Document) (ports.Extraction, error) {
	text, ok, err := c.pdf.Extract(ctx, localPath)
	if err != nil {
		c.logger.Debug("pdf text layer unreadable, falling back to ocr", "file", doc.Name, "error", err)
	}
	if ok {
		return ports.Extraction{Text: text, Source: ports.SourcePDFText}, nil
	}

	out, err := c.ocr.Recognize(ctx, localPath)
	if err != nil {
		return ports.Extraction{}, err
	}
	return ports.Extraction{Text: out, Source: ports.SourceOCR}, nil
}

// filenameText turns a filename into pseudo-text so unsupported formats
// still get a classification attempt.
func filenameText(name string) string {
	base := name
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(base)
}
