package storage

import "context"

// UploadOptions carries content metadata alongside an uploaded buffer.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Uploader persists binary artifacts and returns a resolvable URL. All
// pipeline uploads (generated assets, renders, exports, production bundles,
// instruction documents) go through this contract.
type Uploader interface {
	UploadBuffer(ctx context.Context, data []byte, key string, opts UploadOptions) (string, error)
}

// Fetcher reads back a stored artifact by key. Export and bundle assembly
// use it to pull design assets into archives.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}
