package usecase

import (
	"context"
	"strings"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

// PathResolver materializes {year}/{subfolder}/{Scan,Texttranskript} target
// paths. Resolved folders are cached per run so repeated placements into the
// same subfolder cost one remote round trip.
type PathResolver struct {
	store ports.FileStore
	root  domain.FolderRef
	cache map[string]domain.FolderRef
}

func NewPathResolver(store ports.FileStore, root domain.FolderRef) *PathResolver {
	return &PathResolver{store: store, root: root, cache: make(map[string]domain.FolderRef)}
}

// Ensure resolves the scan and transcript folders of a placement, creating
// missing segments on the way down.
func (r *PathResolver) Ensure(ctx context.Context, plan *domain.PlacementPlan) error {
	base, err := r.ensureChain(ctx, []string{plan.Year, plan.Subfolder})
	if err != nil {
		return err
	}
	scan, err := r.ensureChild(ctx, base, plan.Year+"/"+plan.Subfolder, domain.ScanFolderName)
	if err != nil {
		return err
	}
	transcript, err := r.ensureChild(ctx, base, plan.Year+"/"+plan.Subfolder, domain.TranscriptFolderName)
	if err != nil {
		return err
	}
	plan.ScanFolder = scan
	plan.TranscriptFolder = transcript
	return nil
}

// CheckExists reports for each path segment of the plan whether it already
// exists, without creating anything. Used by dry runs.
func (r *PathResolver) CheckExists(ctx context.Context, plan domain.PlacementPlan) (map[string]bool, error) {
	exists := make(map[string]bool, 4)
	parent := r.root
	found := true
	for _, segPath := range plan.EnsureList() {
		name := segPath
		if i := strings.LastIndex(segPath, "/"); i >= 0 {
			name = segPath[i+1:]
		}
		if !found {
			exists[segPath] = false
			continue
		}
		id, ok, err := r.store.FindFolder(ctx, parent, name)
		if err != nil {
			return nil, err
		}
		exists[segPath] = ok
		if ok {
			parent = id
		} else {
			found = false
		}
	}
	return exists, nil
}

func (r *PathResolver) ensureChain(ctx context.Context, names []string) (domain.FolderRef, error) {
	parent := r.root
	key := ""
	for _, name := range names {
		if key == "" {
			key = name
		} else {
			key = key + "/" + name
		}
		next, err := r.ensureChild(ctx, parent, key[:len(key)-len(name)], name)
		if err != nil {
			return "", err
		}
		parent = next
	}
	return parent, nil
}

func (r *PathResolver) ensureChild(ctx context.Context, parent domain.FolderRef, prefix, name string) (domain.FolderRef, error) {
	key := strings.TrimSuffix(prefix, "/")
	if key == "" {
		key = name
	} else {
		key = key + "/" + name
	}
	if id, ok := r.cache[key]; ok {
		return id, nil
	}
	id, ok, err := r.store.FindFolder(ctx, parent, name)
	if err != nil {
		return "", err
	}
	if !ok {
		id, err = r.store.CreateFolder(ctx, parent, name)
		if err != nil {
			return "", err
		}
	}
	r.cache[key] = id
	return id, nil
}
