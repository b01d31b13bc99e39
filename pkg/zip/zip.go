// Package zip bundles generated images into a single downloadable archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

type Image struct {
	Filename string
	Data     []byte
}

// ArchiveImages writes the images into an in-memory zip archive.
func ArchiveImages(images []Image) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, img := range images {
		w, err := zw.Create(img.Filename)
		if err != nil {
			return nil, fmt.Errorf("zip: create entry %s: %w", img.Filename, err)
		}
		if _, err := w.Write(img.Data); err != nil {
			return nil, fmt.Errorf("zip: write entry %s: %w", img.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
