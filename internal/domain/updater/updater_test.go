package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/hostkit/internal/infrastructure/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testFeed struct {
	srv       *httptest.Server
	release   Release
	artifact  []byte
	feedCalls atomic.Int32

	feedStatus int
	started    chan struct{}
	unblock    chan struct{}
}

// newTestFeed serves latest.json and the artifact. When blocking, the
// artifact handler sends half the body and waits until unblocked or the
// client goes away.
func newTestFeed(t *testing.T, version string, artifact []byte, blocking bool) *testFeed {
	t.Helper()

	sum := sha256.Sum256(artifact)
	f := &testFeed{
		artifact:   artifact,
		feedStatus: http.StatusOK,
		started:    make(chan struct{}),
		unblock:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/latest.json", func(w http.ResponseWriter, r *http.Request) {
		f.feedCalls.Add(1)
		if f.feedStatus != http.StatusOK {
			w.WriteHeader(f.feedStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.release)
	})
	mux.HandleFunc("/app-"+version+".bin", func(w http.ResponseWriter, r *http.Request) {
		if !blocking {
			_, _ = w.Write(f.artifact)
			return
		}
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write(make([]byte, 512))
		w.(http.Flusher).Flush()
		close(f.started)
		select {
		case <-f.unblock:
			_, _ = w.Write(make([]byte, 512))
		case <-r.Context().Done():
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	t.Cleanup(func() {
		select {
		case <-f.unblock:
		default:
			close(f.unblock)
		}
	})

	f.release = Release{
		Version: version,
		URL:     f.srv.URL + "/app-" + version + ".bin",
		Notes:   "fixes",
		SHA256:  hex.EncodeToString(sum[:]),
	}
	return f
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
	bytes  int64
}

func (o *recordingObserver) RecordUpdateEvent(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) AddUpdateDownloadBytes(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bytes += n
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (b *recordingBroadcaster) Broadcast(channel string, args ...any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if channel == EventChannel && len(args) == 1 {
		if ev, ok := args[0].(Event); ok {
			b.events = append(b.events, ev)
		}
	}
	return 1
}

type mockInstaller struct {
	mock.Mock
}

func (m *mockInstaller) Install(ctx context.Context, path string, release Release) error {
	args := m.Called(ctx, path, release)
	return args.Error(0)
}

func newTestUpdater(t *testing.T, feed *testFeed, opts ...Option) *Updater {
	t.Helper()

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	u, err := New(Config{
		FeedURL:        feed.srv.URL,
		CurrentVersion: "1.0.0",
		DownloadDir:    t.TempDir(),
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u
}

func drain(ch <-chan Event, unsubscribe func()) []EventType {
	unsubscribe()
	var types []EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}
	return types
}

func TestNewRejectsInvalidVersion(t *testing.T) {
	_, err := New(Config{CurrentVersion: "not-a-version"})
	assert.Error(t, err)

	_, err = New(Config{CurrentVersion: ""})
	assert.Error(t, err)
}

func TestCheckAvailable(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", []byte("artifact"), false)
	obs := &recordingObserver{}
	u := newTestUpdater(t, feed, WithObserver(obs))
	events, unsubscribe := u.Subscribe()

	release, err := u.Check(context.Background())
	require.NoError(t, err)

	assert.Equal(t, feed.release, release)
	assert.Equal(t, []EventType{EventChecking, EventAvailable}, drain(events, unsubscribe))
	assert.Equal(t, []string{"checking", "available"}, obs.events)
	require.NotNil(t, u.Status().Latest)
	assert.Equal(t, "1.2.0", u.Status().Latest.Version)
}

func TestCheckNotNewer(t *testing.T) {
	for _, version := range []string{"1.0.0", "v1.0.0", "0.9.9"} {
		t.Run(version, func(t *testing.T) {
			feed := newTestFeed(t, version, []byte("artifact"), false)
			u := newTestUpdater(t, feed)
			events, unsubscribe := u.Subscribe()

			_, err := u.Check(context.Background())
			assert.ErrorIs(t, err, ErrNoUpdate)
			assert.Equal(t, []EventType{EventChecking, EventNotAvailable}, drain(events, unsubscribe))
			assert.Nil(t, u.Status().Latest)
		})
	}
}

func TestCheckInvalidRelease(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", []byte("artifact"), false)
	feed.release.Version = "banana"
	u := newTestUpdater(t, feed)

	_, err := u.Check(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRelease)
}

func TestCheckBreakerOpens(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", []byte("artifact"), false)
	feed.feedStatus = http.StatusInternalServerError
	u := newTestUpdater(t, feed)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := u.Check(ctx)
		require.Error(t, err)
	}
	calls := feed.feedCalls.Load()

	_, err := u.Check(ctx)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, calls, feed.feedCalls.Load(), "open breaker must not reach the feed")
	assert.Equal(t, "open", u.Status().Breaker)
}

func TestDisabledInDevelopment(t *testing.T) {
	u, err := New(Config{CurrentVersion: "1.0.0", IsDev: true})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = u.Check(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = u.Download(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, u.Install(ctx), ErrDisabled)
	_, err = u.EnableAuto(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestDownload(t *testing.T) {
	artifact := []byte("new build contents")
	feed := newTestFeed(t, "1.2.0", artifact, false)
	obs := &recordingObserver{}
	bc := &recordingBroadcaster{}
	u := newTestUpdater(t, feed, WithObserver(obs), WithBroadcaster(bc))
	events, unsubscribe := u.Subscribe()

	path, err := u.Download(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "app-1.2.0.bin", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, artifact, data)

	assert.Equal(t, []EventType{EventChecking, EventAvailable, EventProgress, EventDownloaded},
		drain(events, unsubscribe))
	assert.Equal(t, int64(len(artifact)), obs.bytes)
	require.Len(t, bc.events, 4)
	assert.Equal(t, path, bc.events[3].Path)

	st := u.Status()
	assert.Equal(t, path, st.Downloaded)
	assert.False(t, st.Downloading)
}

func TestDownloadChecksumMismatch(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", []byte("tampered"), false)
	feed.release.SHA256 = hex.EncodeToString(make([]byte, sha256.Size))
	u := newTestUpdater(t, feed)
	events, unsubscribe := u.Subscribe()

	_, err := u.Download(context.Background())
	require.ErrorIs(t, err, ErrChecksumMismatch)

	entries, err := os.ReadDir(u.cfg.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, drain(events, unsubscribe), EventError)
	assert.Empty(t, u.Status().Downloaded)
}

func TestDownloadNotFound(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", []byte("x"), false)
	feed.release.URL = feed.srv.URL + "/missing.bin"
	u := newTestUpdater(t, feed)

	_, err := u.Download(context.Background())
	assert.ErrorContains(t, err, "unexpected status")
}

func TestDownloadInProgressAndCancel(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", nil, true)
	feed.release.SHA256 = ""
	u := newTestUpdater(t, feed)
	ctx := context.Background()

	_, err := u.Check(ctx)
	require.NoError(t, err)
	events, unsubscribe := u.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := u.Download(ctx)
		done <- err
	}()

	select {
	case <-feed.started:
	case <-time.After(5 * time.Second):
		t.Fatal("download did not start")
	}

	assert.True(t, u.Status().Downloading)
	_, err = u.Download(ctx)
	assert.ErrorIs(t, err, ErrDownloadInProgress)
	assert.ErrorIs(t, u.Install(ctx), ErrNoInstaller)

	assert.True(t, u.Cancel())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("download was not cancelled")
	}

	assert.False(t, u.Cancel())
	assert.False(t, u.Status().Downloading)
	entries, err := os.ReadDir(u.cfg.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Contains(t, drain(events, unsubscribe), EventCancelled)
}

func TestInstall(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", []byte("build"), false)
	installer := &mockInstaller{}
	u := newTestUpdater(t, feed, WithInstaller(installer))
	ctx := context.Background()

	assert.ErrorIs(t, u.Install(ctx), ErrNotDownloaded)

	path, err := u.Download(ctx)
	require.NoError(t, err)

	installer.On("Install", mock.Anything, path, feed.release).Return(nil).Once()
	require.NoError(t, u.Install(ctx))
	installer.AssertExpectations(t)
}

func TestInstallWithoutInstaller(t *testing.T) {
	feed := newTestFeed(t, "1.2.0", []byte("build"), false)
	u := newTestUpdater(t, feed)

	assert.ErrorIs(t, u.Install(context.Background()), ErrNoInstaller)
}

func TestEnableAuto(t *testing.T) {
	feed := newTestFeed(t, "2.0.0", []byte("auto build"), false)
	installer := &mockInstaller{}
	installer.On("Install", mock.Anything, mock.AnythingOfType("string"), feed.release).Return(nil).Once()
	u := newTestUpdater(t, feed, WithInstaller(installer))

	path, err := u.EnableAuto(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.True(t, u.Status().Auto)
	installer.AssertExpectations(t)
}

func TestEnableAutoNoUpdate(t *testing.T) {
	feed := newTestFeed(t, "1.0.0", []byte("same"), false)
	u := newTestUpdater(t, feed)

	_, err := u.EnableAuto(context.Background())
	assert.ErrorIs(t, err, ErrNoUpdate)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	f := newFanout()
	a, unsubA := f.subscribe()
	b, unsubB := f.subscribe()

	f.publish(Event{Type: EventChecking})
	unsubA()
	unsubA()
	f.publish(Event{Type: EventAvailable})
	f.close()
	unsubB()

	assert.Equal(t, []EventType{EventChecking}, collect(a))
	assert.Equal(t, []EventType{EventChecking, EventAvailable}, collect(b))

	late, _ := f.subscribe()
	_, open := <-late
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	f := newFanout()
	ch, unsubscribe := f.subscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		f.publish(Event{Type: EventProgress})
	}
	unsubscribe()

	assert.Len(t, collect(ch), subscriberBuffer)
}

func collect(ch <-chan Event) []EventType {
	var types []EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}
	return types
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "v1.2.3", canonical("1.2.3"))
	assert.Equal(t, "v1.2.3", canonical(" v1.2.3 "))
	assert.Equal(t, "", canonical(""))
}
