// Package naming builds and normalizes target filenames for placed
// documents: sanitizing LLM proposals, enriching them with detected dates
// and applying the tax-notice finalization rule.
package naming

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxBaseLength = 120

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	disallowedRe    = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)
	hyphenRunRe     = regexp.MustCompile(`-+`)
	leadingDotsRe   = regexp.MustCompile(`^\.+`)
	yearTokenRe     = regexp.MustCompile(`\b\d{4}(-\d{2}){0,2}\b`)
	trailingDateRe  = regexp.MustCompile(`-\d{4}(-\d{2}){0,2}$`)
	fullDateRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	yearMonthRe     = regexp.MustCompile(`^\d{4}-\d{2}$`)
	yearOnlyRe      = regexp.MustCompile(`^\d{4}$`)
	dottedDateRe    = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	isoDateRe       = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	taxYearPhraseRe = regexp.MustCompile(`(?i)(steuerjahr|veranlagung|tax\s*year)[^\d]{0,10}(\d{4})`)
)

var diacriticsStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// StripDiacritics removes combining marks after NFKD decomposition so
// locale variants compare uniformly.
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticsStripper, s)
	if err != nil {
		return s
	}
	return out
}

// SanitizeBase normalizes a filename base: diacritics stripped, spaces to
// hyphens, charset restricted to [A-Za-z0-9-_.], hyphen runs collapsed,
// leading dots removed, lowercased and truncated to 120 characters.
// The function is idempotent.
func SanitizeBase(text string) string {
	s := StripDiacritics(text)
	s = whitespaceRe.ReplaceAllString(s, "-")
	s = disallowedRe.ReplaceAllString(s, "")
	s = hyphenRunRe.ReplaceAllString(s, "-")
	s = leadingDotsRe.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	if len(s) > maxBaseLength {
		s = s[:maxBaseLength]
	}
	return s
}

// EnrichWithDate appends the detected date (-YYYY, -YYYY-MM or -YYYY-MM-DD)
// to the base name unless the base already carries a year-like token.
func EnrichWithDate(name, detected string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if yearTokenRe.MatchString(base) {
		return name
	}
	if detected == "" {
		return name
	}
	switch {
	case fullDateRe.MatchString(detected), yearMonthRe.MatchString(detected), yearOnlyRe.MatchString(detected):
		return base + "-" + detected + ext
	}
	return name
}

// FinalizeForTaxCategory rebuilds the date suffix of a tax document. Any
// already-appended trailing date is stripped first. When the issue date's
// year differs from the tax year both are encoded
// ({base}-{taxYear}-bescheid-{issueDate}); otherwise the issue date or the
// tax year alone is appended. An issue date on January 1st is treated as a
// null-date placeholder and discarded: many source systems emit Jan-1 when
// the real date is unknown.
func FinalizeForTaxCategory(name, taxYear, issueDateISO string) string {
	ext := path.Ext(name)
	base := trailingDateRe.ReplaceAllString(strings.TrimSuffix(name, ext), "")

	issue := issueDateISO
	if fullDateRe.MatchString(issue) && strings.HasSuffix(issue, "-01-01") {
		issue = ""
	}

	switch {
	case taxYear == "" && issue == "":
		return base + ext
	case taxYear == "":
		return base + "-" + issue + ext
	case issue != "" && !strings.HasPrefix(issue, taxYear):
		return base + "-" + taxYear + "-bescheid-" + issue + ext
	case issue != "":
		return base + "-" + issue + ext
	default:
		return base + "-" + taxYear + ext
	}
}

// TaxYearFromText scans for an explicit filing-year phrase. Tax documents
// commonly reference a different year than their issue date, so this wins
// over every other year signal.
func TaxYearFromText(text string) string {
	m := taxYearPhraseRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[2]
}

// TextMeta is what the regex scanners recover from extracted text.
type TextMeta struct {
	DateISO       string
	InvoiceNumber string
	Sender        string
	Category      string
}

// ExtractDateISO finds the first dd.mm.yyyy or yyyy-mm-dd date.
func ExtractDateISO(text string) string {
	if m := dottedDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], pad2(m[2]), pad2(m[1]))
	}
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
	}
	return ""
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

var invoiceNumberRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Rechnungsnummer\s*[:#]?\s*([A-Za-z0-9\-/]{3,})`),
	regexp.MustCompile(`(?i)Rechnung(?:s)?\s*Nr\.?\s*[:#]?\s*([A-Za-z0-9\-/]{3,})`),
	regexp.MustCompile(`(?i)Invoice\s*(?:No\.?|Number)\s*[:#]?\s*([A-Za-z0-9\-/]{3,})`),
	regexp.MustCompile(`(?i)Belegnummer\s*[:#]?\s*([A-Za-z0-9\-/]{3,})`),
}

// ExtractInvoiceNumber matches the usual German/English invoice number
// labels.
func ExtractInvoiceNumber(text string) string {
	for _, re := range invoiceNumberRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

const companySuffixPattern = `(?:GmbH|AG|UG|e\.V\.|KG|OHG|GmbH & Co\.|Ltd\.|LLC)`

var (
	senderAfterInvoiceRe = regexp.MustCompile(`Rechnung[^\n]{0,50}?([A-Z][A-Za-z0-9&.,\- ]{2,}?\s` + companySuffixPattern + `)`)
	senderCompanyRe      = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&.,\- ]{2,}?\s` + companySuffixPattern + `)\b`)
	senderCandidateRe    = regexp.MustCompile(`[A-Z][A-Za-z]+`)
)

// ExtractSender looks for a company name (legal-form suffix) in the first
// lines of the document, falling back to the first plausible header line.
func ExtractSender(text string) string {
	lines := strings.Split(text, "\n")
	head := lines
	if len(head) > 10 {
		head = head[:10]
	}
	firstLines := strings.Join(head, "\n")

	if m := senderAfterInvoiceRe.FindStringSubmatch(firstLines); m != nil {
		return m[1]
	}
	if m := senderCompanyRe.FindStringSubmatch(firstLines); m != nil {
		return m[1]
	}
	for _, l := range lines {
		l = strings.TrimRight(l, "\r")
		if len(l) < 80 && senderCandidateRe.MatchString(l) {
			return strings.TrimSpace(l)
		}
	}
	return ""
}

var categoryRules = []struct {
	re       *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)(rechnung|invoice|zahlung|ust|mwst|iban|betrag)`), "Rechnungen"},
	{regexp.MustCompile(`(?i)(versicherung|police|schadennummer)`), "Versicherungen"},
	{regexp.MustCompile(`(?i)(kontoauszug|bank|überweisung|ueberweisung|sepa|lastschrift)`), "Bank"},
	{regexp.MustCompile(`(?i)(vertrag|vereinbarung|kündigung|kuendigung)`), "Verträge"},
	{regexp.MustCompile(`(?i)(steuer|finanzamt|ekst|umsatzsteuer)`), "Steuern"},
	{regexp.MustCompile(`(?i)(quittung|beleg|kassenbon)`), "Quittungen"},
	{regexp.MustCompile(`(?i)(arzt|praxis|rezept|befund|krankenhaus)`), "Medizin"},
}

// ClassifyCategory is the regex-only fallback classification used when no
// LLM proposal is available.
func ClassifyCategory(text string) string {
	for _, rule := range categoryRules {
		if rule.re.MatchString(text) {
			return rule.category
		}
	}
	return "Sonstiges"
}

// ExtractMeta runs all scanners over the extracted text.
func ExtractMeta(text string) TextMeta {
	return TextMeta{
		DateISO:       ExtractDateISO(text),
		InvoiceNumber: ExtractInvoiceNumber(text),
		Sender:        ExtractSender(text),
		Category:      ClassifyCategory(text),
	}
}

// BuildFilename assembles a descriptive filename from extracted metadata,
// keeping the original extension.
func BuildFilename(originalName string, meta TextMeta) string {
	ext := path.Ext(originalName)
	if ext == "" {
		ext = ".pdf"
	}
	category := strings.ToLower(meta.Category)
	if category == "" {
		category = "dokument"
	}
	parts := []string{category}
	if meta.Sender != "" {
		parts = append(parts, SanitizeBase(meta.Sender))
	}
	if meta.DateISO != "" {
		parts = append(parts, meta.DateISO)
	}
	if meta.InvoiceNumber != "" {
		parts = append(parts, SanitizeBase(meta.InvoiceNumber))
	}
	base := SanitizeBase(strings.Join(parts, "-"))
	if base == "" {
		base = "dokument"
	}
	return base + ext
}
