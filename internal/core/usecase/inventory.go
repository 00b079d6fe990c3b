package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

const (
	inventoryMaxYears       = 3
	inventoryMaxSubfolders  = 20
	inventoryMaxFilesPerDir = 15
)

var yearFolderRe = regexp.MustCompile(`^\d{4}$`)

// InventoryBuilder renders a compact text view of the target hierarchy for
// the classification prompt: the most recent year folders, their subfolders
// in allow-list order, and a capped file sample per subfolder. Listing
// failures yield a partial inventory, never an error.
type InventoryBuilder struct {
	store ports.FileStore
}

func NewInventoryBuilder(store ports.FileStore) *InventoryBuilder {
	return &InventoryBuilder{store: store}
}

func (b *InventoryBuilder) Build(ctx context.Context, root domain.FolderRef, settings domain.SortSettings) string {
	var sb strings.Builder

	years, err := b.store.ListFolders(ctx, root)
	if err != nil {
		return ""
	}

	var yearDirs []ports.FolderEntry
	for _, f := range years {
		if yearFolderRe.MatchString(f.Name) {
			yearDirs = append(yearDirs, f)
		}
	}
	sort.Slice(yearDirs, func(i, j int) bool { return yearDirs[i].Name > yearDirs[j].Name })
	if len(yearDirs) > inventoryMaxYears {
		yearDirs = yearDirs[:inventoryMaxYears]
	}

	for _, year := range yearDirs {
		fmt.Fprintf(&sb, "%s/\n", year.Name)
		subs, err := b.store.ListFolders(ctx, domain.FolderRef(year.ID))
		if err != nil {
			continue
		}
		for _, sub := range orderByAllowList(subs, settings.AllowedSubfolders) {
			fmt.Fprintf(&sb, "  %s/\n", sub.Name)
			b.writeFileSample(ctx, &sb, domain.FolderRef(sub.ID))
		}
	}
	return sb.String()
}

func (b *InventoryBuilder) writeFileSample(ctx context.Context, sb *strings.Builder, folder domain.FolderRef) {
	files, err := b.store.ListFiles(ctx, folder)
	if err != nil {
		return
	}
	shown := files
	if len(shown) > inventoryMaxFilesPerDir {
		shown = shown[:inventoryMaxFilesPerDir]
	}
	for _, f := range shown {
		fmt.Fprintf(sb, "    %s\n", f.Name)
	}
	if omitted := len(files) - len(shown); omitted > 0 {
		fmt.Fprintf(sb, "    (+%d omitted)\n", omitted)
	}
}

// orderByAllowList sorts folders so allow-list entries come first, in their
// configured order, with unknown folders alphabetically after. The total is
// capped.
func orderByAllowList(folders []ports.FolderEntry, allowed []string) []ports.FolderEntry {
	rank := make(map[string]int, len(allowed))
	for i, a := range allowed {
		rank[strings.ToLower(a)] = i
	}
	out := append([]ports.FolderEntry(nil), folders...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[strings.ToLower(out[i].Name)]
		rj, jok := rank[strings.ToLower(out[j].Name)]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return out[i].Name < out[j].Name
		}
	})
	if len(out) > inventoryMaxSubfolders {
		out = out[:inventoryMaxSubfolders]
	}
	return out
}
