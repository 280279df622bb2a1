package domain

import "time"

// RenderType enumerates supported render paths.
type RenderType string

const (
	RenderType2D      RenderType = "2d"
	RenderType3D      RenderType = "3d"
	RenderTypePreview RenderType = "preview"
	RenderTypeExport  RenderType = "export"
)

// RenderStatus enumerates the render lifecycle states.
type RenderStatus string

const (
	RenderStatusQueued     RenderStatus = "QUEUED"
	RenderStatusProcessing RenderStatus = "PROCESSING"
	RenderStatusCompleted  RenderStatus = "COMPLETED"
	RenderStatusFailed     RenderStatus = "FAILED"
)

// RenderOptions carries per-render tuning parameters.
type RenderOptions struct {
	Quality      DesignQuality `json:"quality,omitempty"`
	Width        int           `json:"width,omitempty"`
	Height       int           `json:"height,omitempty"`
	Antialiasing bool          `json:"antialiasing,omitempty"`
	Shadows      bool          `json:"shadows,omitempty"`
	Format       string        `json:"format,omitempty"`
	CameraAngle  string        `json:"cameraAngle,omitempty"`
}

// Render is the entity a render job operates on.
type Render struct {
	ID        string
	DesignID  string
	ProductID string
	Type      RenderType
	Status    RenderStatus
	Options   RenderOptions
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RenderResult is appended once per finished render and never updated.
type RenderResult struct {
	RenderID   string        `json:"renderId"`
	Status     string        `json:"status"`
	StorageKey string        `json:"storageKey,omitempty"`
	URL        string        `json:"url,omitempty"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
	Format     string        `json:"format,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// ExportResult is appended once per finished asset export.
type ExportResult struct {
	RenderID   string    `json:"renderId"`
	DesignID   string    `json:"designId,omitempty"`
	ProductID  string    `json:"productId,omitempty"`
	Format     string    `json:"format"`
	StorageKey string    `json:"storageKey"`
	URL        string    `json:"url,omitempty"`
	Bytes      int64     `json:"bytes"`
	AssetCount int       `json:"assetCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BatchItemResult records the outcome of one item inside a render batch.
type BatchItemResult struct {
	RenderID string `json:"renderId"`
	Type     RenderType `json:"type"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}
