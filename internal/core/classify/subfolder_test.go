package classify

import (
	"testing"

	"github.com/mhduong/docsorter/internal/core/domain"
)

func TestNormalizeKeywordRules(t *testing.T) {
	c := New()
	settings := domain.DefaultSortSettings()

	cases := []struct {
		in   string
		want string
	}{
		{"Lohnabrechnung Mai", "Lohnabrechnungen"},
		{"Gehaltsabrechnung", "Lohnabrechnungen"},
		{"Lohnausweis 2023", "Lohnausweise"},
		{"Rechnung Stadtwerke", "Rechnungen"},
		{"Invoice 2024-03", "Rechnungen"},
		{"Versicherungspolice", "Versicherungen"},
		{"Kontoauszug Januar", "Bank"},
		{"Mietvertrag", "Verträge"},
		{"Steuerbescheid", "Steuern"},
		{"Quittung Baumarkt", "Quittungen"},
		{"Arztrechnung", "Rechnungen"},
	}
	for _, tc := range cases {
		if got := c.Normalize(tc.in, settings); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePayrollBeforeInvoice(t *testing.T) {
	c := New()
	settings := domain.DefaultSortSettings()

	// "Lohnabrechnung" also matches the generic "abrechnung" invoice rule;
	// the payroll rule must win.
	if got := c.Normalize("Lohnabrechnung April 2024", settings); got != "Lohnabrechnungen" {
		t.Fatalf("payroll precedence broken: got %q", got)
	}
}

func TestNormalizeSynonyms(t *testing.T) {
	c := New()
	settings := domain.DefaultSortSettings()
	settings.Synonyms = map[string]string{
		"Stromanbieter":     "Rechnungen",
		"Energieabrechnung": "Rechnungen",
	}

	// The synonym key matches case- and diacritics-insensitively as a
	// substring of the proposal.
	if got := c.Normalize("Strömanbieter Wechsel", settings); got != "Rechnungen" {
		t.Fatalf("synonym match failed: got %q", got)
	}
	if got := c.Normalize("Energieabrechnung 2024", settings); got != "Rechnungen" {
		t.Fatalf("Energieabrechnung: got %q", got)
	}
}

func TestNormalizeAllowListSubstring(t *testing.T) {
	c := New()
	settings := domain.DefaultSortSettings()

	if got := c.Normalize("Unterlagen Behörden 2022", settings); got != "Behörden" {
		t.Fatalf("allow-list substring match failed: got %q", got)
	}
}

func TestNormalizeInventWhenAllowed(t *testing.T) {
	c := New()
	settings := domain.DefaultSortSettings()
	settings.AllowNew = true

	if got := c.Normalize("CustomX", settings); got != "CustomX" {
		t.Fatalf("invented subfolder not kept verbatim: got %q", got)
	}
	// Path separators are stripped from invented names.
	if got := c.Normalize("Cus/tom\\X", settings); got != "CustomX" {
		t.Fatalf("separators not stripped: got %q", got)
	}
}

func TestNormalizeSimilarityFallback(t *testing.T) {
	c := New()
	settings := domain.DefaultSortSettings()
	settings.AllowNew = false

	// No keyword, no synonym, no allow-list hit: the closest allow-list
	// entry wins, never "unknown".
	got := c.Normalize("Doktorbesuch", settings)
	if got == "" || got == "unknown" {
		t.Fatalf("fallback returned %q", got)
	}
	found := false
	for _, a := range settings.AllowedSubfolders {
		if a == got {
			found = true
		}
	}
	if !found {
		t.Fatalf("fallback %q not in allow-list", got)
	}
}

func TestNormalizeEmptyProposal(t *testing.T) {
	c := New()
	if got := c.Normalize("  ", domain.DefaultSortSettings()); got != domain.FallbackSubfolder {
		t.Fatalf("empty proposal: got %q", got)
	}
}

func TestBestScoring(t *testing.T) {
	allowed := []string{"Rechnungen", "Steuern", "Bank"}

	if got := Best("steuer unterlagen", allowed); got != "Steuern" {
		t.Fatalf("Best = %q, want Steuern", got)
	}
	// Nothing shared: shortest length difference decides.
	if got := Best("xyz", allowed); got != "Bank" {
		t.Fatalf("Best = %q, want Bank", got)
	}
}
