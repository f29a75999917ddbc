package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/magiconair/properties"
)

// metadataName is the archive entry holding the artifact's metadata
// record.
const metadataName = "artifact.properties"

// maxMetadataSize caps how much metadata we are willing to read out of
// an archive.
const maxMetadataSize = 1 << 20

// EmbeddedVersion returns the version recorded inside an artifact
// archive, read from the version key of its artifact.properties entry.
func EmbeddedVersion(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != metadataName {
			continue
		}
		if f.UncompressedSize64 > maxMetadataSize {
			return "", fmt.Errorf("%s in %s is implausibly large (%d bytes)", metadataName, path, f.UncompressedSize64)
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("opening %s in %s: %w", metadataName, path, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxMetadataSize))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("reading %s from %s: %w", metadataName, path, err)
		}

		l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
		p, err := l.LoadBytes(data)
		if err != nil {
			return "", fmt.Errorf("parsing %s from %s: %w", metadataName, path, err)
		}
		v, ok := p.Get("version")
		if !ok || v == "" {
			return "", fmt.Errorf("%s in %s has no version", metadataName, path)
		}
		return v, nil
	}

	return "", fmt.Errorf("%s has no %s entry", path, metadataName)
}
