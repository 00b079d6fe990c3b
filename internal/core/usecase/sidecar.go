package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

const registryFolderName = "_registry"

// SidecarWriter uploads the provenance sidecar next to a placed transcript
// and mirrors it into the registry folder under the target root. Registry
// entries are individual timestamp-prefixed files because the remote store
// has no append primitive.
type SidecarWriter struct {
	store ports.FileStore
	root  domain.FolderRef
	clock func() time.Time

	registry domain.FolderRef
}

func NewSidecarWriter(store ports.FileStore, root domain.FolderRef, clock func() time.Time) *SidecarWriter {
	if clock == nil {
		clock = time.Now
	}
	return &SidecarWriter{store: store, root: root, clock: clock}
}

// WriteMeta places <transcript base>.meta.json into the transcript folder.
func (w *SidecarWriter) WriteMeta(ctx context.Context, folder domain.FolderRef, meta domain.SidecarMeta) error {
	name := metaName(meta.NewFilename)
	body, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "sidecar.marshal", err)
	}
	if _, err := w.store.Upload(ctx, folder, name, "application/json", bytes.NewReader(body)); err != nil {
		return domain.WrapError(domain.ErrTemporary, "sidecar.upload", err)
	}
	return nil
}

// WriteRegistryEntry mirrors the sidecar into the run-independent registry
// journal under the target root.
func (w *SidecarWriter) WriteRegistryEntry(ctx context.Context, meta domain.SidecarMeta) error {
	folder, err := w.registryFolder(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "registry.marshal", err)
	}
	name := fmt.Sprintf("%s_%s.json", w.clock().UTC().Format("20060102T150405"), shortRef(meta.FileID))
	if _, err := w.store.Upload(ctx, folder, name, "application/json", bytes.NewReader(body)); err != nil {
		return domain.WrapError(domain.ErrTemporary, "registry.upload", err)
	}
	return nil
}

func (w *SidecarWriter) registryFolder(ctx context.Context) (domain.FolderRef, error) {
	if w.registry != "" {
		return w.registry, nil
	}
	id, ok, err := w.store.FindFolder(ctx, w.root, registryFolderName)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "registry.find", err)
	}
	if !ok {
		id, err = w.store.CreateFolder(ctx, w.root, registryFolderName)
		if err != nil {
			return "", domain.WrapError(domain.ErrTemporary, "registry.create", err)
		}
	}
	w.registry = id
	return id, nil
}

func metaName(newFilename string) string {
	base := newFilename
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base + ".meta.json"
}

func shortRef(id domain.FileRef) string {
	s := string(id)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, s)
	if len(s) > 16 {
		s = s[:16]
	}
	return s
}
