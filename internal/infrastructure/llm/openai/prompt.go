package openai

import (
	"fmt"
	"strings"

	"github.com/mhduong/docsorter/internal/core/ports"
)

const maxSnippet = 6000

const systemPrompt = `You are a filing assistant for personal documents.
You answer with a single strict JSON object and nothing else.`

func buildProposalPrompt(req ports.ProposalRequest) string {
	var sb strings.Builder

	sb.WriteString(`Propose how to file the document below.
Return strict JSON with keys:
new_filename (string, descriptive, keep the original file extension),
target_folder (string, a category name),
year (string, four digits, the year the document belongs to, empty if unsure).
No markdown, no extra keys.

`)

	fmt.Fprintf(&sb, "Allowed categories: %s\n", strings.Join(req.Settings.AllowedSubfolders, ", "))
	if req.Settings.AllowNew {
		sb.WriteString("A new category may be proposed when none of the allowed ones fits.\n")
	} else {
		sb.WriteString("Only the allowed categories may be used.\n")
	}
	if len(req.Settings.Synonyms) > 0 {
		sb.WriteString("Category synonyms:\n")
		for from, to := range req.Settings.Synonyms {
			fmt.Fprintf(&sb, "  %s -> %s\n", from, to)
		}
	}
	if len(req.Settings.KnownInstitutions) > 0 {
		fmt.Fprintf(&sb, "Known institutions: %s\n", strings.Join(req.Settings.KnownInstitutions, ", "))
	}
	if len(req.Settings.DisallowedTerms) > 0 {
		fmt.Fprintf(&sb, "Never use these terms in the filename: %s\n", strings.Join(req.Settings.DisallowedTerms, ", "))
	}

	fmt.Fprintf(&sb, "\nOriginal filename: %s\n", req.OriginalName)

	if strings.TrimSpace(req.Inventory) != "" {
		sb.WriteString("\nExisting archive structure (recent years):\n")
		sb.WriteString(req.Inventory)
	}

	sb.WriteString("\nDocument text:\n")
	sb.WriteString(snippet(req.Text))
	return sb.String()
}

func snippet(text string) string {
	if len(text) <= maxSnippet {
		return text
	}
	return text[:maxSnippet]
}
