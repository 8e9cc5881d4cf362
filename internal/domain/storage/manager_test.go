package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	m, err := NewManager(dir, opts...)
	require.NoError(t, err)
	return m, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestCreateStorageWritesInitialState(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()

	result, err := m.CreateStorage(ctx,
		Config{Name: "settings", InitialState: map[string]any{"theme": "dark"}},
		Config{Name: "empty"},
	)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, StatusCreated, result.Outcomes[0].Status)
	assert.Equal(t, filepath.Join(dir, "settings.json"), result.Outcomes[0].Path)
	assert.Equal(t, "{\n  \"theme\": \"dark\"\n}", readFile(t, filepath.Join(dir, "settings.json")))
	assert.Equal(t, "{}", readFile(t, filepath.Join(dir, "empty.json")))
	assert.Equal(t, []string{"empty", "settings"}, m.Names())
	assert.ElementsMatch(t, []string{"settings", "empty"}, result.Succeeded())

	value, warm, err := m.Cached("settings")
	require.NoError(t, err)
	assert.False(t, warm)
	assert.Equal(t, map[string]any{"theme": "dark"}, value)
}

func TestCreateStorageIsIdempotent(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()
	path := filepath.Join(dir, "settings.json")

	_, err := m.CreateStorage(ctx, Config{Name: "settings", InitialState: map[string]any{"v": 1}})
	require.NoError(t, err)
	_, err = m.Write(ctx, "settings", map[string]any{"v": 2})
	require.NoError(t, err)

	result, err := m.CreateStorage(ctx, Config{Name: "settings", InitialState: map[string]any{"v": 3}})
	require.NoError(t, err)
	assert.Equal(t, StatusExisting, result.Outcomes[0].Status)
	assert.Equal(t, path, result.Outcomes[0].Path)
	assert.Equal(t, `{"v":2}`, readFile(t, path))

	// A fresh manager finds the file on disk and leaves it alone.
	other, err := NewManager(dir)
	require.NoError(t, err)
	result, err = other.CreateStorage(ctx, Config{Name: "settings", InitialState: map[string]any{"v": 4}})
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, result.Outcomes[0].Status)
	assert.Equal(t, `{"v":2}`, readFile(t, path))

	value, err := other.Read(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(2)}, value)
}

func TestUnknownResourceHasNoSideEffects(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	m, err := NewManager(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.Read(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownResource)
	_, err = m.Write(ctx, "ghost", map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrUnknownResource)
	_, _, err = m.Cached("ghost")
	assert.ErrorIs(t, err, ErrUnknownResource)
	assert.Empty(t, m.Path("ghost"))

	_, err = os.Stat(dir)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLastWriteWinsScenario(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateStorage(ctx, Config{Name: "settings"})
	require.NoError(t, err)
	r, err := m.Resource("settings")
	require.NoError(t, err)

	w1 := r.WriteAsync(map[string]any{"address": "#66"})
	w2 := r.WriteAsync(map[string]any{"address": "#67"})
	read := r.ReadAsync()

	require.NoError(t, (<-w1).Err)
	require.NoError(t, (<-w2).Err)
	res := <-read
	require.NoError(t, res.Err)

	assert.Equal(t, map[string]any{"address": "#67"}, res.Value)
	assert.Equal(t, `{"address":"#67"}`, readFile(t, filepath.Join(dir, "settings.json")))
}

func TestDuplicateNameInBatch(t *testing.T) {
	m, dir := newTestManager(t)

	result, err := m.CreateStorage(context.Background(), Config{Name: "a"}, Config{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"a"}, m.Names())
	assert.Equal(t, []string{"a.json"}, dirEntries(t, dir))
	for _, o := range result.Outcomes {
		assert.Contains(t, []Status{StatusCreated, StatusExisting}, o.Status)
	}
}

func TestConcurrentCreateSameName(t *testing.T) {
	m, dir := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateStorage(context.Background(), Config{Name: "shared"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"shared"}, m.Names())
	assert.Equal(t, []string{"shared.json"}, dirEntries(t, dir))
}

func TestCreateStoragePartialFailure(t *testing.T) {
	m, _ := newTestManager(t)

	result, err := m.CreateStorage(context.Background(), Config{Name: "ok"}, Config{Name: "bad/name"})
	require.NoError(t, err)

	batchErr := result.Err()
	require.Error(t, batchErr)
	assert.ErrorIs(t, batchErr, ErrPartialBatch)
	assert.ErrorIs(t, batchErr, ErrInvalidName)

	var partial *PartialBatchError
	require.True(t, errors.As(batchErr, &partial))
	assert.Equal(t, 2, partial.Total)
	require.Len(t, partial.Failed, 1)
	assert.Equal(t, "bad/name", partial.Failed[0].Name)
	assert.Equal(t, StatusFailed, result.Outcomes[1].Status)
	assert.Equal(t, []string{"ok"}, m.Names())
}

func TestCreateStorageAllFailed(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateStorage(ctx, Config{Name: "con"})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.NotErrorIs(t, err, ErrPartialBatch)

	_, err = m.CreateStorage(ctx, Config{Name: ""}, Config{Name: "x", Extension: ".json"})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.ErrorContains(t, err, "all 2 configs failed")

	assert.Empty(t, m.Names())
	assert.Empty(t, dirEntries(t, dir))
}

func TestCreateStorageEmptyBatch(t *testing.T) {
	m, _ := newTestManager(t)

	result, err := m.CreateStorage(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
	assert.NoError(t, result.Err())
}

func TestCreateStorageCanceledContext(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.CreateStorage(ctx, Config{Name: "late"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.Names())
}

func TestCreateStorageLocation(t *testing.T) {
	m, dir := newTestManager(t)
	location := filepath.Join(t.TempDir(), "nested", "deeper")

	result, err := m.CreateStorage(context.Background(), Config{Name: "cache", Location: location})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(location, "cache.json"), result.Outcomes[0].Path)
	assert.Equal(t, filepath.Join(location, "cache.json"), m.Path("cache"))
	assert.FileExists(t, filepath.Join(location, "cache.json"))
	assert.Empty(t, dirEntries(t, dir))
}

func TestReadAfterWrite(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.CreateStorage(ctx, Config{Name: "prefs"})
	require.NoError(t, err)

	value := map[string]any{
		"list":   []any{"a", float64(2), true},
		"nested": map[string]any{"n": nil},
	}
	written, err := m.Write(ctx, "prefs", value)
	require.NoError(t, err)
	assert.Equal(t, value, written)

	read, err := m.Read(ctx, "prefs")
	require.NoError(t, err)
	assert.Equal(t, value, read)

	cached, warm, err := m.Cached("prefs")
	require.NoError(t, err)
	assert.True(t, warm)
	assert.Equal(t, value, cached)
}

func TestRawFormat(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateStorage(ctx, Config{Name: "notes", Extension: "txt"})
	require.NoError(t, err)
	assert.Equal(t, "", readFile(t, filepath.Join(dir, "notes.txt")))

	_, err = m.Write(ctx, "notes", "hello")
	require.NoError(t, err)
	value, err := m.Read(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), value)

	_, err = m.Write(ctx, "notes", 42)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, "hello", readFile(t, filepath.Join(dir, "notes.txt")))
	cached, _, _ := m.Cached("notes")
	assert.Equal(t, []byte("hello"), cached)
}

func TestCacheDoesNotAliasCallerValues(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	initial := map[string]any{"address": "#65"}
	_, err := m.CreateStorage(ctx, Config{Name: "settings", InitialState: initial}, Config{Name: "blob", Extension: "bin"})
	require.NoError(t, err)
	initial["address"] = "changed"

	cached, warm, err := m.Cached("settings")
	require.NoError(t, err)
	assert.False(t, warm)
	assert.Equal(t, map[string]any{"address": "#65"}, cached)

	value := map[string]any{"address": "#66"}
	written, err := m.Write(ctx, "settings", value)
	require.NoError(t, err)
	value["address"] = "#99"
	written.(map[string]any)["address"] = "#98"

	cached, warm, err = m.Cached("settings")
	require.NoError(t, err)
	assert.True(t, warm)
	assert.Equal(t, map[string]any{"address": "#66"}, cached)

	cached.(map[string]any)["address"] = "#97"
	again, _, _ := m.Cached("settings")
	assert.Equal(t, map[string]any{"address": "#66"}, again)

	read, err := m.Read(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, again, read)

	raw := []byte("abc")
	_, err = m.Write(ctx, "blob", raw)
	require.NoError(t, err)
	raw[0] = 'x'
	blob, _, _ := m.Cached("blob")
	assert.Equal(t, []byte("abc"), blob)
}

func TestWriteReturnsValueAsRead(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.CreateStorage(ctx, Config{Name: "notes", Extension: "txt"}, Config{Name: "prefs"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"notes", "hello", []byte("hello")},
		{"notes", []byte("bytes"), []byte("bytes")},
		{"prefs", map[string]any{"zoom": 2}, map[string]any{"zoom": float64(2)}},
	}
	for _, tt := range tests {
		written, err := m.Write(ctx, tt.name, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, written)

		read, err := m.Read(ctx, tt.name)
		require.NoError(t, err)
		assert.Equal(t, written, read)

		cached, _, _ := m.Cached(tt.name)
		assert.Equal(t, written, cached)
	}
}

func TestSameNameDifferentPathsInBatch(t *testing.T) {
	fsys := &faultFS{writeDelay: 200 * time.Millisecond}
	m, dir := newTestManager(t, withFileSystem(fsys))

	result, err := m.CreateStorage(context.Background(),
		Config{Name: "a"},
		Config{Name: "a", Extension: "txt"},
	)
	require.NoError(t, err)
	require.NoError(t, result.Err())

	require.Len(t, dirEntries(t, dir), 1)
	registered := m.Path("a")
	for _, o := range result.Outcomes {
		assert.Equal(t, registered, o.Path)
		assert.FileExists(t, o.Path)
	}
}

func TestReadErrors(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()
	_, err := m.CreateStorage(ctx, Config{Name: "gone"}, Config{Name: "broken"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.json")))
	_, err = m.Read(ctx, "gone")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	_, err = m.Read(ctx, "broken")
	assert.ErrorIs(t, err, ErrSerialization)
	_, warm, _ := m.Cached("broken")
	assert.False(t, warm)
}

func TestWriteRenameFailureLeavesFileUnchanged(t *testing.T) {
	fsys := &faultFS{}
	m, dir := newTestManager(t, withFileSystem(fsys))
	ctx := context.Background()
	path := filepath.Join(dir, "settings.json")

	_, err := m.CreateStorage(ctx, Config{Name: "settings", InitialState: map[string]any{"v": 1}})
	require.NoError(t, err)
	before := readFile(t, path)

	fsys.renameErr = errors.New("rename refused")
	_, err = m.Write(ctx, "settings", map[string]any{"v": 2})
	require.ErrorIs(t, err, ErrIO)

	assert.Equal(t, before, readFile(t, path))
	assert.Equal(t, []string{"settings.json"}, dirEntries(t, dir))
	cached, warm, _ := m.Cached("settings")
	assert.False(t, warm)
	assert.Equal(t, map[string]any{"v": float64(1)}, cached)

	fsys.renameErr = nil
	value, err := m.Read(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(1)}, value)
}

func TestSlowReadCompletesBeforeFastWrite(t *testing.T) {
	fsys := &faultFS{readDelay: 50 * time.Millisecond}
	m, _ := newTestManager(t, withFileSystem(fsys))
	ctx := context.Background()
	_, err := m.CreateStorage(ctx, Config{Name: "settings"})
	require.NoError(t, err)
	r, err := m.Resource("settings")
	require.NoError(t, err)

	read := r.ReadAsync()
	write := r.WriteAsync(map[string]any{"v": 2})

	readRes := <-read
	writeRes := <-write
	require.NoError(t, readRes.Err)
	require.NoError(t, writeRes.Err)

	assert.Equal(t, map[string]any{}, readRes.Value)
	assert.Equal(t, []string{
		"rename settings.json",
		"read settings.json",
		"rename settings.json",
	}, fsys.Events())
}

func TestResourcesAreIndependent(t *testing.T) {
	fsys := &faultFS{readDelay: 200 * time.Millisecond, slow: "slow.json"}
	m, _ := newTestManager(t, withFileSystem(fsys))
	ctx := context.Background()
	_, err := m.CreateStorage(ctx, Config{Name: "slow"}, Config{Name: "fast"})
	require.NoError(t, err)

	slowRead := make(chan error, 1)
	go func() {
		_, err := m.Read(ctx, "slow")
		slowRead <- err
	}()
	require.Eventually(t, func() bool {
		r, _ := m.Resource("slow")
		return r.Pending() == 1
	}, time.Second, time.Millisecond)

	_, err = m.Write(ctx, "fast", map[string]any{"done": true})
	require.NoError(t, err)

	select {
	case <-slowRead:
		t.Fatal("slow read finished before the independent write")
	default:
	}
	require.NoError(t, <-slowRead)
}

func TestAbandonedWriteStillRuns(t *testing.T) {
	fsys := &faultFS{}
	m, _ := newTestManager(t, withFileSystem(fsys))
	_, err := m.CreateStorage(context.Background(), Config{Name: "settings"})
	require.NoError(t, err)

	fsys.writeDelay = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Write(ctx, "settings", map[string]any{"v": "abandoned"})
	assert.ErrorIs(t, err, context.Canceled)

	value, err := m.Read(context.Background(), "settings")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": "abandoned"}, value)
}

type recordingObserver struct {
	mu        sync.Mutex
	ops       []string
	resources int
}

func (o *recordingObserver) ObserveStorageOp(op, status string, _ time.Duration) {
	o.mu.Lock()
	o.ops = append(o.ops, op+":"+status)
	o.mu.Unlock()
}

func (o *recordingObserver) SetStorageQueueDepth(string, int) {}

func (o *recordingObserver) SetStorageResources(count int) {
	o.mu.Lock()
	o.resources = count
	o.mu.Unlock()
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	m, _ := newTestManager(t, WithObserver(obs))
	ctx := context.Background()

	_, err := m.CreateStorage(ctx, Config{Name: "a"}, Config{Name: "b"})
	require.NoError(t, err)
	_, err = m.Write(ctx, "a", map[string]any{})
	require.NoError(t, err)
	_, err = m.Write(ctx, "b", make(chan int))
	require.Error(t, err)
	_, err = m.Read(ctx, "a")
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 2, obs.resources)
	assert.Equal(t, []string{"write:ok", "write:error", "read:ok"}, obs.ops)
}

func TestNewManagerDefaultDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	m, err := NewManager("")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(m.Dir()))
	assert.Equal(t, "storage", filepath.Base(m.Dir()))
	assert.Equal(t, "hostkit", filepath.Base(filepath.Dir(m.Dir())))
}
