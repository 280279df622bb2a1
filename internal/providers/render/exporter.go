package render

import (
	"context"
	"fmt"
	"path"

	"pipeline/internal/domain"
	"pipeline/internal/storage"
	"pipeline/pkg/zip"
)

// ArchiveExporter packages asset sets into zip archives, pulling blob
// contents through the storage fetcher. An asset whose blob cannot be read
// is listed in the manifest with a zero-byte body rather than failing the
// whole export.
type ArchiveExporter struct {
	fetcher storage.Fetcher
}

// NewArchiveExporter creates the default exporter.
func NewArchiveExporter(fetcher storage.Fetcher) *ArchiveExporter {
	return &ArchiveExporter{fetcher: fetcher}
}

// Export archives the asset set. The format parameter names the requested
// delivery format and is recorded on the output; the container is zip.
func (e *ArchiveExporter) Export(ctx context.Context, assets []domain.Asset, format string) (*ExportOutput, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("export: no assets to package")
	}
	if format == "" {
		format = "zip"
	}

	entries := make([]zip.Entry, 0, len(assets))
	for _, asset := range assets {
		var data []byte
		if e.fetcher != nil && asset.StorageKey != "" {
			if blob, err := e.fetcher.Fetch(ctx, asset.StorageKey); err == nil {
				data = blob
			}
		}
		entries = append(entries, zip.Entry{
			Filename: path.Base(asset.StorageKey),
			MIME:     asset.Format,
			Data:     data,
		})
	}

	data, err := zip.Archive(entries)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return &ExportOutput{
		Data:        data,
		Format:      format,
		ContentType: "application/zip",
		AssetCount:  len(assets),
	}, nil
}

var _ Exporter = (*ArchiveExporter)(nil)
