package domain

import "time"

// AssetKind enumerates asset types produced by the pipeline.
type AssetKind string

const (
	AssetKindGenerated AssetKind = "generated"
	AssetKindProcessed AssetKind = "processed"
	AssetKindExport    AssetKind = "export"
)

// Asset represents a stored artifact belonging to a design.
type Asset struct {
	ID         string
	DesignID   string
	Kind       AssetKind
	StorageKey string
	URL        string
	Format     string
	Width      int
	Height     int
	Bytes      int64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// GeneratedImage is the pre-persistence form returned by the generation
// collaborator.
type GeneratedImage struct {
	Data   []byte
	Format string
	Width  int
	Height int
}
