package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

// ArchiveEntry is a single file inside a bundle.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// ZIPExporter bundles rendered files into a DEFLATE compressed archive.
type ZIPExporter struct {
	now func() time.Time
}

// NewZIPExporter constructs a ZIP exporter.
func NewZIPExporter() *ZIPExporter {
	return &ZIPExporter{now: time.Now}
}

// Render writes the entries in order. Duplicate names are rejected.
func (e *ZIPExporter) Render(entries []ArchiveEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("zip requires at least one entry")
	}
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(entries))
	modified := e.now()
	for _, entry := range entries {
		if entry.Name == "" {
			return nil, fmt.Errorf("zip entry name required")
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("duplicate zip entry %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry.Name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("create zip entry %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("write zip entry %s: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
