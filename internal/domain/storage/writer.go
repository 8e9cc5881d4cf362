package storage

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

const filePerm os.FileMode = 0o644

// Writer replaces files atomically. Content is written to a uniquely named
// sibling temp file, synced, closed and renamed over the target, so readers
// of the target only ever observe the previous or the new complete content.
type Writer struct {
	fs fileSystem
}

// NewWriter returns a Writer backed by the operating system.
func NewWriter() *Writer {
	return newWriter(osFS{})
}

func newWriter(fsys fileSystem) *Writer {
	return &Writer{fs: fsys}
}

// WriteFile atomically replaces path with data.
func (w *Writer) WriteFile(path string, data []byte) error {
	_, err := w.WriteFrom(path, bytes.NewReader(data))
	return err
}

// WriteFrom atomically replaces path with everything read from r and returns
// the number of bytes written. If r fails part way the target is untouched.
func (w *Writer) WriteFrom(path string, r io.Reader) (n int64, err error) {
	tmp := tempPath(path)

	f, err := w.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return 0, ioError("create", tmp, err)
	}
	defer func() {
		if err != nil {
			_ = w.fs.Remove(tmp)
		}
	}()

	if n, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return n, ioError("write", tmp, err)
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return n, ioError("sync", tmp, err)
	}
	if err = f.Close(); err != nil {
		return n, ioError("close", tmp, err)
	}
	if err = w.fs.Rename(tmp, path); err != nil {
		return n, ioError("rename", path, err)
	}
	return n, nil
}

func tempPath(path string) string {
	return path + "." + strings.ReplaceAll(uuid.NewString(), "-", "")
}
