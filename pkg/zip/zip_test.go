package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestArchiveIncludesManifest(t *testing.T) {
	data, err := Archive([]Entry{
		{Filename: "assets/01.png", MIME: "image/png", Data: []byte("first")},
		{Filename: "spec.json", MIME: "application/json", Data: []byte(`{}`)},
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	files := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = body
	}

	if string(files["assets/01.png"]) != "first" {
		t.Fatalf("entry body = %q", files["assets/01.png"])
	}
	manifest, ok := files["manifest.json"]
	if !ok {
		t.Fatal("archive missing manifest.json")
	}
	var entries []struct {
		Filename string `json:"filename"`
		MIME     string `json:"mime"`
		Bytes    int    `json:"bytes"`
	}
	if err := json.Unmarshal(manifest, &entries); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("manifest entries = %d, want 2", len(entries))
	}
	if entries[0].Filename != "assets/01.png" || entries[0].Bytes != 5 {
		t.Fatalf("manifest entry = %+v", entries[0])
	}
}

func TestArchiveEmptySet(t *testing.T) {
	data, err := Archive(nil)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "manifest.json" {
		t.Fatalf("empty archive files = %v, want only the manifest", zr.File)
	}
}
