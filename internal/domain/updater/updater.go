package updater

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/hostkit/internal/domain/storage"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/tracing"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

var (
	ErrDisabled           = errors.New("updater is disabled in development mode")
	ErrNoUpdate           = errors.New("no update available")
	ErrDownloadInProgress = errors.New("download already in progress")
	ErrNotDownloaded      = errors.New("no update has been downloaded")
	ErrNoInstaller        = errors.New("no installer configured")
	ErrInvalidRelease     = errors.New("invalid release")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrCancelled          = errors.New("download cancelled")
)

const (
	feedFile     = "latest.json"
	progressStep = 256 << 10
)

// Release describes the newest build published on the feed.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	Notes   string `json:"notes,omitempty"`
	SHA256  string `json:"sha256,omitempty"`
}

// Installer applies a downloaded update. The desktop shell provides it;
// installing usually restarts the application.
type Installer interface {
	Install(ctx context.Context, path string, release Release) error
}

// Broadcaster relays events to IPC targets.
type Broadcaster interface {
	Broadcast(channel string, args ...any) int
}

// Observer receives updater metrics.
type Observer interface {
	RecordUpdateEvent(event string)
	AddUpdateDownloadBytes(n int64)
}

// Config configures the update feed and download location.
type Config struct {
	FeedURL        string
	CurrentVersion string
	DownloadDir    string
	IsDev          bool
}

// Status is a point-in-time view of the updater.
type Status struct {
	CurrentVersion string   `json:"current_version"`
	Latest         *Release `json:"latest,omitempty"`
	Downloading    bool     `json:"downloading"`
	Downloaded     string   `json:"downloaded,omitempty"`
	Auto           bool     `json:"auto"`
	Breaker        string   `json:"breaker"`
}

// Updater checks the feed, downloads releases and hands them to the
// installer. It mirrors the desktop auto-update flow: every step is
// reported as an Event.
type Updater struct {
	cfg     Config
	current string

	feed    *resty.Client
	http    *retryablehttp.Client
	breaker *resilience.Breaker
	writer  *storage.Writer

	installer   Installer
	broadcaster Broadcaster
	observer    Observer
	tracer      *tracing.Tracer
	logger      *zap.Logger
	events      *fanout

	mu          sync.Mutex
	auto        bool
	latest      *Release
	downloading bool
	cancel      context.CancelFunc
	downloaded  string
}

// Option configures an Updater.
type Option func(*Updater)

// WithInstaller sets the collaborator that applies downloaded updates.
func WithInstaller(i Installer) Option {
	return func(u *Updater) { u.installer = i }
}

// WithBroadcaster relays events to IPC targets, typically an *ipc.Hub.
func WithBroadcaster(b Broadcaster) Option {
	return func(u *Updater) { u.broadcaster = b }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(u *Updater) { u.observer = o }
}

// WithTracer records a span for each check and download.
func WithTracer(t *tracing.Tracer) Option {
	return func(u *Updater) { u.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// New creates an updater for the given feed.
func New(cfg Config, opts ...Option) (*Updater, error) {
	current := canonical(cfg.CurrentVersion)
	if !semver.IsValid(current) {
		return nil, fmt.Errorf("invalid current version %q", cfg.CurrentVersion)
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = filepath.Join(os.TempDir(), "hostkit-updates")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	feed := resty.New().
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", "hostkit-updater/1.0").
		SetHeader("Accept", "application/json")
	feed.SetTransport(retryClient.HTTPClient.Transport)

	u := &Updater{
		cfg:     cfg,
		current: current,
		feed:    feed,
		http:    retryClient,
		writer:  storage.NewWriter(),
		logger:  zap.NewNop(),
		events:  newFanout(),
	}
	u.breaker = resilience.New("update-feed", resilience.Settings{
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoUpdate)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			u.logger.Warn("Update feed breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	for _, opt := range opts {
		opt(u)
	}

	if cfg.IsDev {
		u.logger.Warn("Updater is disabled in development mode")
	}
	return u, nil
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (u *Updater) Subscribe() (<-chan Event, func()) {
	return u.events.subscribe()
}

// Close ends every subscription and cancels a running download.
func (u *Updater) Close() {
	u.Cancel()
	u.events.close()
}

// Status reports the updater state.
func (u *Updater) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	st := Status{
		CurrentVersion: u.cfg.CurrentVersion,
		Downloading:    u.downloading,
		Downloaded:     u.downloaded,
		Auto:           u.auto,
		Breaker:        u.breaker.State().String(),
	}
	if u.latest != nil {
		r := *u.latest
		st.Latest = &r
	}
	return st
}

// Check asks the feed for the latest release. It returns ErrNoUpdate when
// the feed does not offer anything newer than the running version.
func (u *Updater) Check(ctx context.Context) (release Release, err error) {
	if u.cfg.IsDev {
		return Release{}, ErrDisabled
	}

	ctx, finish := u.span(ctx, "updater.check")
	defer func() { finish(err) }()

	u.emit(Event{Type: EventChecking})

	release, err = resilience.Do(ctx, u.breaker, u.fetchLatest)
	switch {
	case errors.Is(err, ErrNoUpdate):
		u.emit(Event{Type: EventNotAvailable, Version: release.Version})
		u.logger.Info("No updates available", zap.String("current", u.cfg.CurrentVersion))
		return Release{}, err
	case err != nil:
		u.fail("check", err)
		return Release{}, fmt.Errorf("check for updates: %w", err)
	}

	u.mu.Lock()
	u.latest = &release
	u.mu.Unlock()

	u.emit(Event{Type: EventAvailable, Version: release.Version})
	u.logger.Info("Update available",
		zap.String("current", u.cfg.CurrentVersion),
		zap.String("version", release.Version))
	return release, nil
}

func (u *Updater) fetchLatest(ctx context.Context) (Release, error) {
	feedURL := strings.TrimRight(u.cfg.FeedURL, "/") + "/" + feedFile

	resp, err := u.feed.R().SetContext(ctx).Get(feedURL)
	if err != nil {
		return Release{}, err
	}
	if resp.IsError() {
		return Release{}, fmt.Errorf("feed returned %s", resp.Status())
	}

	var release Release
	if err := sonic.Unmarshal(resp.Body(), &release); err != nil {
		return Release{}, fmt.Errorf("%w: %w", ErrInvalidRelease, err)
	}
	if release.URL == "" {
		return Release{}, fmt.Errorf("%w: missing url", ErrInvalidRelease)
	}

	latest := canonical(release.Version)
	if !semver.IsValid(latest) {
		return Release{}, fmt.Errorf("%w: version %q", ErrInvalidRelease, release.Version)
	}
	if semver.Compare(latest, u.current) <= 0 {
		return release, ErrNoUpdate
	}
	return release, nil
}

// Download fetches the latest release into the download directory,
// checking the feed first if needed, and returns the file path. The file
// only appears once it is complete and its checksum matches.
func (u *Updater) Download(ctx context.Context) (string, error) {
	if u.cfg.IsDev {
		return "", ErrDisabled
	}

	u.mu.Lock()
	if u.downloading {
		u.mu.Unlock()
		return "", ErrDownloadInProgress
	}
	u.downloading = true
	ctx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	latest := u.latest
	u.mu.Unlock()

	defer func() {
		cancel()
		u.mu.Lock()
		u.downloading = false
		u.cancel = nil
		u.mu.Unlock()
	}()

	var release Release
	if latest != nil {
		release = *latest
	} else {
		r, err := u.Check(ctx)
		if err != nil {
			return "", err
		}
		release = r
	}

	target, err := u.download(ctx, release)
	if err != nil {
		if ctx.Err() != nil {
			u.emit(Event{Type: EventCancelled, Version: release.Version})
			u.logger.Info("Update download cancelled", zap.String("version", release.Version))
			return "", fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		u.fail("download", err)
		return "", err
	}

	u.mu.Lock()
	u.downloaded = target
	auto := u.auto
	u.mu.Unlock()

	u.emit(Event{Type: EventDownloaded, Version: release.Version, Path: target})
	u.logger.Info("Update downloaded",
		zap.String("version", release.Version),
		zap.String("path", target))

	if auto && u.installer != nil {
		if err := u.installer.Install(ctx, target, release); err != nil {
			u.fail("install", err)
			return target, fmt.Errorf("install update: %w", err)
		}
	}
	return target, nil
}

func (u *Updater) download(ctx context.Context, release Release) (target string, err error) {
	ctx, finish := u.span(ctx, "updater.download")
	defer func() { finish(err) }()

	name, err := artifactName(release)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(u.cfg.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	target = filepath.Join(u.cfg.DownloadDir, name)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, release.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRelease, err)
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", release.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", release.URL, resp.Status)
	}

	body := &progressReader{
		r:     resp.Body,
		total: resp.ContentLength,
		report: func(transferred, total, delta int64) {
			if u.observer != nil {
				u.observer.AddUpdateDownloadBytes(delta)
			}
			ev := Event{Type: EventProgress, Version: release.Version, Transferred: transferred, Total: total}
			if total > 0 {
				ev.Percent = float64(transferred) * 100 / float64(total)
			}
			u.emit(ev)
		},
	}
	var src io.Reader = body
	if release.SHA256 != "" {
		src = newVerifyingReader(body, release.SHA256)
	}

	if _, err := u.writer.WriteFrom(target, src); err != nil {
		return "", fmt.Errorf("save update: %w", err)
	}
	return target, nil
}

// Cancel stops a running download. It reports whether there was one.
func (u *Updater) Cancel() bool {
	u.mu.Lock()
	cancel := u.cancel
	u.mu.Unlock()

	if cancel == nil {
		u.logger.Debug("No update download to cancel")
		return false
	}
	cancel()
	return true
}

// Install hands the downloaded update to the installer.
func (u *Updater) Install(ctx context.Context) error {
	if u.cfg.IsDev {
		return ErrDisabled
	}
	if u.installer == nil {
		return ErrNoInstaller
	}

	u.mu.Lock()
	downloading, target, latest := u.downloading, u.downloaded, u.latest
	u.mu.Unlock()

	if downloading {
		return ErrDownloadInProgress
	}
	if target == "" || latest == nil {
		return ErrNotDownloaded
	}

	u.logger.Info("Installing update", zap.String("version", latest.Version), zap.String("path", target))
	if err := u.installer.Install(ctx, target, *latest); err != nil {
		u.fail("install", err)
		return fmt.Errorf("install update: %w", err)
	}
	return nil
}

// EnableAuto turns on automatic updates: the latest release is checked,
// downloaded and installed as soon as it is available.
func (u *Updater) EnableAuto(ctx context.Context) (string, error) {
	if u.cfg.IsDev {
		return "", ErrDisabled
	}

	u.mu.Lock()
	u.auto = true
	u.mu.Unlock()

	if _, err := u.Check(ctx); err != nil {
		return "", err
	}
	return u.Download(ctx)
}

func (u *Updater) emit(ev Event) {
	if u.observer != nil {
		u.observer.RecordUpdateEvent(string(ev.Type))
	}
	if u.broadcaster != nil {
		u.broadcaster.Broadcast(EventChannel, ev)
	}
	u.events.publish(ev)
}

func (u *Updater) fail(step string, err error) {
	u.logger.Error("Update failed", zap.String("step", step), zap.Error(err))
	u.emit(Event{Type: EventError, Error: err.Error()})
}

func (u *Updater) span(ctx context.Context, name string) (context.Context, func(error)) {
	if u.tracer == nil {
		return ctx, func(error) {}
	}
	span, ctx := u.tracer.StartSpan(ctx, name)
	return ctx, func(err error) {
		if err != nil && !errors.Is(err, ErrNoUpdate) {
			span.SetError(err)
		}
		span.Finish()
		u.tracer.Submit(span)
	}
}

// canonical adds the "v" prefix semver expects.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func artifactName(release Release) (string, error) {
	parsed, err := url.Parse(release.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRelease, err)
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		name = "update-" + strings.TrimPrefix(canonical(release.Version), "v")
	}
	return name, nil
}

// progressReader reports transferred bytes every progressStep and at EOF.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	reported int64
	report   func(transferred, total, delta int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.read-p.reported >= progressStep || (err == io.EOF && p.read > p.reported) {
		p.report(p.read, p.total, p.read-p.reported)
		p.reported = p.read
	}
	return n, err
}

// verifyingReader fails in place of io.EOF when the digest does not match,
// so a corrupt artifact never replaces the target file.
type verifyingReader struct {
	r    io.Reader
	h    hash.Hash
	want string
}

func newVerifyingReader(r io.Reader, sum string) *verifyingReader {
	h := sha256.New()
	return &verifyingReader{r: io.TeeReader(r, h), h: h, want: strings.ToLower(sum)}
}

func (v *verifyingReader) Read(b []byte) (int, error) {
	n, err := v.r.Read(b)
	if err == io.EOF {
		if got := hex.EncodeToString(v.h.Sum(nil)); got != v.want {
			return n, fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, v.want)
		}
	}
	return n, err
}
