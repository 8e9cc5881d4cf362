package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// faultFS wraps the real file system with injectable delays and failures and
// records the order of file operations.
type faultFS struct {
	osFS

	readDelay  time.Duration
	writeDelay time.Duration
	renameErr  error
	// slow limits delays to files whose base name matches; empty means all.
	slow string

	mu     sync.Mutex
	events []string
}

func (f *faultFS) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *faultFS) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *faultFS) delayed(name string) bool {
	return f.slow == "" || filepath.Base(name) == f.slow
}

func (f *faultFS) ReadFile(name string) ([]byte, error) {
	if f.readDelay > 0 && f.delayed(name) {
		time.Sleep(f.readDelay)
	}
	data, err := f.osFS.ReadFile(name)
	f.record("read " + filepath.Base(name))
	return data, err
}

func (f *faultFS) OpenFile(name string, flag int, perm os.FileMode) (file, error) {
	if f.writeDelay > 0 {
		time.Sleep(f.writeDelay)
	}
	return f.osFS.OpenFile(name, flag, perm)
}

func (f *faultFS) Rename(oldpath, newpath string) error {
	if f.renameErr != nil {
		f.record("rename-failed " + filepath.Base(newpath))
		return f.renameErr
	}
	err := f.osFS.Rename(oldpath, newpath)
	f.record("rename " + filepath.Base(newpath))
	return err
}

// dirEntries lists the base names in dir.
func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}
