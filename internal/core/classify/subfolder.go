// Package classify maps free-text category proposals to canonical
// subfolder names. Resolution runs through an explicit, ordered list of
// strategies so the precedence between built-in keyword rules, configured
// synonyms and the allow-list is a visible artifact instead of implicit
// code order.
package classify

import (
	"regexp"
	"strings"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/naming"
)

// Strategy attempts one resolution step. It returns the canonical subfolder
// and whether it decided.
type Strategy interface {
	Name() string
	Resolve(proposal string, settings domain.SortSettings) (string, bool)
}

// Classifier holds the ordered strategy chain. The final strategy always
// decides, so Normalize never returns "unknown".
type Classifier struct {
	strategies []Strategy
}

// New builds the default chain: fixed domain keyword rules, configured
// synonyms, allow-list matching, optional invention, similarity fallback.
func New() *Classifier {
	return &Classifier{strategies: []Strategy{
		keywordStrategy{},
		synonymStrategy{},
		allowListStrategy{},
		inventStrategy{},
		similarityStrategy{},
	}}
}

// Normalize resolves a proposal through the chain; first match wins.
func (c *Classifier) Normalize(proposal string, settings domain.SortSettings) string {
	if strings.TrimSpace(proposal) == "" {
		return domain.FallbackSubfolder
	}
	for _, s := range c.strategies {
		if out, ok := s.Resolve(proposal, settings); ok {
			return out
		}
	}
	return domain.FallbackSubfolder
}

func fold(s string) string {
	return strings.ToLower(naming.StripDiacritics(s))
}

// Fixed domain vocabulary. These precede configured synonyms: the payroll
// rules must fire before the generic invoice rule, and none of them should
// be overridable by a profile.
var keywordRules = []struct {
	re     *regexp.Regexp
	target string
}{
	{regexp.MustCompile(`(?i)(lohnabrechnung|gehaltsabrechnung|payslip|pay\s*slip|wage\s*slip|salary\s*slip|payroll)`), "Lohnabrechnungen"},
	{regexp.MustCompile(`(?i)(lohnausweis|lohnausweise|wage\s*statement|salary\s*statement|income\s*statement)`), "Lohnausweise"},
	{regexp.MustCompile(`(?i)(rechnung|abrechnung|invoice|zahlung|mwst|\bbetrag\b)`), "Rechnungen"},
	{regexp.MustCompile(`(?i)(versicherung|police|schadennummer)`), "Versicherungen"},
	{regexp.MustCompile(`(?i)(kontoauszug|bank|ueberweisung|überweisung|sepa|lastschrift)`), "Bank"},
	{regexp.MustCompile(`(?i)(vertrag|vereinbarung|kündigung|kuendigung)`), "Verträge"},
	{regexp.MustCompile(`(?i)(steuer|finanzamt|umsatzsteuer|ekst)`), "Steuern"},
	{regexp.MustCompile(`(?i)(quittung|receipt|beleg|kassenbon)`), "Quittungen"},
	{regexp.MustCompile(`(?i)(arzt|praxis|rezept|befund|krankenhaus|medizin)`), "Medizin"},
}

type keywordStrategy struct{}

func (keywordStrategy) Name() string { return "keywords" }

func (keywordStrategy) Resolve(proposal string, _ domain.SortSettings) (string, bool) {
	for _, rule := range keywordRules {
		if rule.re.MatchString(proposal) {
			return rule.target, true
		}
	}
	return "", false
}

type synonymStrategy struct{}

func (synonymStrategy) Name() string { return "synonyms" }

func (synonymStrategy) Resolve(proposal string, settings domain.SortSettings) (string, bool) {
	n := fold(proposal)
	for key, target := range settings.Synonyms {
		if key != "" && strings.Contains(n, fold(key)) {
			return target, true
		}
	}
	return "", false
}

type allowListStrategy struct{}

func (allowListStrategy) Name() string { return "allow-list" }

func (allowListStrategy) Resolve(proposal string, settings domain.SortSettings) (string, bool) {
	n := fold(proposal)
	for _, allowed := range settings.AllowedSubfolders {
		an := fold(allowed)
		if n == an || strings.Contains(n, an) {
			return allowed, true
		}
	}
	return "", false
}

var pathSeparatorsRe = regexp.MustCompile(`[\\/]+`)

type inventStrategy struct{}

func (inventStrategy) Name() string { return "invent" }

func (inventStrategy) Resolve(proposal string, settings domain.SortSettings) (string, bool) {
	if !settings.AllowNew {
		return "", false
	}
	cleaned := strings.TrimSpace(pathSeparatorsRe.ReplaceAllString(proposal, ""))
	if cleaned == "" {
		return domain.FallbackSubfolder, true
	}
	return cleaned, true
}

type similarityStrategy struct{}

func (similarityStrategy) Name() string { return "similarity" }

func (similarityStrategy) Resolve(proposal string, settings domain.SortSettings) (string, bool) {
	return Best(proposal, settings.AllowedSubfolders), true
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// Best picks the allow-list entry maximizing
// sharedTokens*10 - |lengthDifference|; ties keep the earlier entry.
func Best(name string, allowed []string) string {
	n := fold(name)
	tokens := nonEmpty(tokenSplitRe.Split(n, -1))

	best := domain.FallbackSubfolder
	bestScore := -1 << 30
	for _, candidate := range allowed {
		cn := fold(candidate)
		common := 0
		for _, t := range tokens {
			if strings.Contains(cn, t) {
				common++
			}
		}
		diff := len(cn) - len(n)
		if diff < 0 {
			diff = -diff
		}
		score := common*10 - diff
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
