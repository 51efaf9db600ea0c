// Package artifact checks delivered website builds before an order may complete.
package artifact

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/webforge/backend/internal/models"
)

// MaxUncompressedBytes bounds the declared size of an archive's contents.
const MaxUncompressedBytes = 512 << 20

// Manifest summarizes a valid archive.
type Manifest struct {
	Files             int
	UncompressedBytes uint64
	HasIndex          bool
}

// Inspect parses data as a zip archive and reads every entry so that truncated
// or corrupted members are rejected. Errors wrap models.ErrArtifactFormat.
func Inspect(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", models.ErrArtifactFormat)
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrArtifactFormat, err)
	}
	m := &Manifest{}
	for _, f := range r.File {
		if err := checkName(f.Name); err != nil {
			return nil, err
		}
		m.UncompressedBytes += f.UncompressedSize64
		if m.UncompressedBytes > MaxUncompressedBytes {
			return nil, fmt.Errorf("%w: contents exceed %d bytes", models.ErrArtifactFormat, MaxUncompressedBytes)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if err := readEntry(f); err != nil {
			return nil, err
		}
		m.Files++
		if path.Base(f.Name) == "index.html" {
			m.HasIndex = true
		}
	}
	if m.Files == 0 {
		return nil, fmt.Errorf("%w: archive has no files", models.ErrArtifactFormat)
	}
	return m, nil
}

func checkName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: illegal entry name %q", models.ErrArtifactFormat, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("%w: entry %q escapes archive root", models.ErrArtifactFormat, name)
		}
	}
	return nil
}

// readEntry drains one member; the zip reader verifies its checksum at EOF.
func readEntry(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", models.ErrArtifactFormat, f.Name, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, io.LimitReader(rc, MaxUncompressedBytes+1)); err != nil {
		return fmt.Errorf("%w: read %q: %v", models.ErrArtifactFormat, f.Name, err)
	}
	return nil
}
