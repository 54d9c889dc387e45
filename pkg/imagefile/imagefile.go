// Package imagefile wraps an image payload for multipart uploads.
package imagefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultFileName is sent when the payload has no name of its own.
	DefaultFileName = "image.jpg"
	// DefaultContentType is sent when the content type is unknown.
	DefaultContentType = "image/jpeg"

	sniffBytes = 3072
)

// Image is a single-use image payload. Its reader is consumed by the first
// request that sends it.
type Image struct {
	Name        string
	ContentType string

	reader io.Reader
	closer io.Closer
}

// Open opens the file at path. A missing file fails here, before any request
// is made; the error wraps fs.ErrNotExist.
func Open(path string) (*Image, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("image file not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("image path %s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return &Image{Name: filepath.Base(path), reader: f, closer: f}, nil
}

// FromBytes wraps an in-memory image.
func FromBytes(data []byte) *Image {
	return &Image{reader: bytes.NewReader(data)}
}

// FromReader wraps r. The caller keeps ownership of r; Close does not close it.
func FromReader(r io.Reader, name string) *Image {
	return &Image{Name: name, reader: r}
}

// Reader returns the payload reader.
func (i *Image) Reader() io.Reader {
	if i == nil {
		return nil
	}
	return i.reader
}

// FileName returns Name or DefaultFileName.
func (i *Image) FileName() string {
	if i == nil || i.Name == "" {
		return DefaultFileName
	}
	return i.Name
}

// DetectContentType fills ContentType by sniffing the leading bytes when it is
// empty. The sniffed bytes are pushed back in front of the reader.
func (i *Image) DetectContentType() (string, error) {
	if i == nil || i.reader == nil {
		return "", errors.New("image has no payload")
	}
	if i.ContentType != "" {
		return i.ContentType, nil
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(i.reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read image header: %w", err)
	}
	head = head[:n]
	i.reader = io.MultiReader(bytes.NewReader(head), i.reader)

	i.ContentType = DefaultContentType
	if n > 0 {
		if mt := mimetype.Detect(head); mt != nil && mt.String() != "application/octet-stream" {
			i.ContentType = mt.String()
		}
	}
	return i.ContentType, nil
}

// Close releases the file opened by Open. It is a no-op for other sources.
func (i *Image) Close() error {
	if i == nil || i.closer == nil {
		return nil
	}
	err := i.closer.Close()
	i.closer = nil
	return err
}
