package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry is one file placed into an archive.
type Entry struct {
	Filename string
	MIME     string
	Data     []byte
}

// Archive packs entries into a zip and appends a manifest.json describing
// every entry, so the receiving side can verify completeness without
// extracting blobs.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	type manifestEntry struct {
		Filename string `json:"filename"`
		MIME     string `json:"mime,omitempty"`
		Bytes    int    `json:"bytes"`
	}
	manifest := make([]manifestEntry, 0, len(entries))

	for _, entry := range entries {
		w, err := zw.Create(entry.Filename)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", entry.Filename, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", entry.Filename, err)
		}
		manifest = append(manifest, manifestEntry{Filename: entry.Filename, MIME: entry.MIME, Bytes: len(entry.Data)})
	}

	mw, err := zw.Create("manifest.json")
	if err != nil {
		return nil, fmt.Errorf("zip: create manifest: %w", err)
	}
	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("zip: encode manifest: %w", err)
	}
	if _, err := mw.Write(body); err != nil {
		return nil, fmt.Errorf("zip: write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
