package workflow

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxPreviewBytes caps the size of a file the workflow will inline as a
// preview. Larger files are still uploadable, they just have no preview.
const MaxPreviewBytes = 10 << 20

// File is a locally chosen photograph. Content is reopened for every read so
// a failed submission can be retried with the same File.
type File struct {
	Name        string
	ContentType string
	Size        int64

	open func() (io.ReadCloser, error)
}

// Open returns a fresh reader over the file content.
func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %q has no content", f.Name)
	}
	return f.open()
}

// FileFromPath describes the file at path. The content type comes from the
// extension, falling back to sniffing the first bytes.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	ct := typeByExtension(path)
	if ct == "" {
		f, err := os.Open(path)
		if err != nil {
			return File{}, fmt.Errorf("opening %s: %w", path, err)
		}
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		f.Close()
		ct = http.DetectContentType(head[:n])
	}

	return File{
		Name:        filepath.Base(path),
		ContentType: ct,
		Size:        info.Size(),
		open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// FileFromBytes wraps in-memory content as a File.
func FileFromBytes(name string, data []byte) File {
	ct := typeByExtension(name)
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return File{
		Name:        name,
		ContentType: ct,
		Size:        int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func typeByExtension(name string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		return ""
	}
	// Drop parameters such as "; charset=utf-8".
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// dataURI reads f and encodes it as a data: URI.
func dataURI(f File) (string, error) {
	if f.Size > MaxPreviewBytes {
		return "", fmt.Errorf("%s is %d bytes, preview limit is %d", f.Name, f.Size, MaxPreviewBytes)
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxPreviewBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.Name, err)
	}
	if len(data) > MaxPreviewBytes {
		return "", fmt.Errorf("%s exceeds preview limit of %d bytes", f.Name, MaxPreviewBytes)
	}

	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
