// Package pdftext pulls embedded text out of digital PDFs. Scanned PDFs
// yield little or nothing here and fall through to OCR.
package pdftext

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MinUsableChars is the threshold below which an embedded text layer is
// treated as absent.
const MinUsableChars = 40

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract returns the embedded text layer of a PDF. ok is false when the
// file has no usable text layer.
func (e *Extractor) Extract(_ context.Context, localPath string) (text string, ok bool, err error) {
	f, reader, err := pdf.Open(localPath)
	if err != nil {
		return "", false, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", false, fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", false, fmt.Errorf("read pdf text: %w", err)
	}

	out := strings.TrimSpace(string(raw))
	if len(out) < MinUsableChars {
		return "", false, nil
	}
	return out, true, nil
}
