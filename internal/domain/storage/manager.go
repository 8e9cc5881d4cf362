package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultParallelism bounds how many configs of one CreateStorage batch are
// processed at once.
const DefaultParallelism = 8

// Config describes one storage resource to create or register.
type Config struct {
	Name         string `json:"name"`
	Extension    string `json:"extension,omitempty"`
	InitialState any    `json:"initialState,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Status reports what CreateStorage did for one config.
type Status string

const (
	// StatusCreated means the file was missing and has been written.
	StatusCreated Status = "created"
	// StatusRegistered means the file already existed and was left as is.
	StatusRegistered Status = "registered"
	// StatusExisting means the name was already registered with the manager.
	StatusExisting Status = "existing"
	// StatusFailed means the config was rejected; see Outcome.Err.
	StatusFailed Status = "failed"
)

// Outcome is the per-config result of CreateStorage.
type Outcome struct {
	Name   string `json:"name"`
	Path   string `json:"path,omitempty"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// BatchResult holds one Outcome per config, in input order.
type BatchResult struct {
	Outcomes []Outcome
}

// Succeeded returns the names of configs that did not fail.
func (b *BatchResult) Succeeded() []string {
	var names []string
	for _, o := range b.Outcomes {
		if o.Err == nil {
			names = append(names, o.Name)
		}
	}
	return names
}

// Failed returns the outcomes of configs that failed.
func (b *BatchResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err returns nil when every config succeeded, a *PartialBatchError when only
// some failed, and the failures joined when all of them failed.
func (b *BatchResult) Err() error {
	failed := b.Failed()
	switch {
	case len(failed) == 0:
		return nil
	case len(failed) < len(b.Outcomes):
		return &PartialBatchError{Total: len(b.Outcomes), Failed: failed}
	case len(failed) == 1:
		return failed[0].Err
	default:
		errs := make([]error, len(failed))
		for i, o := range failed {
			errs[i] = fmt.Errorf("%s: %w", o.Name, o.Err)
		}
		return fmt.Errorf("create storage: all %d configs failed: %w", len(failed), errors.Join(errs...))
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver sets the metrics observer. A nil observer is ignored.
func WithObserver(observer StorageObserver) Option {
	return func(m *Manager) {
		if observer != nil {
			m.observer = observer
		}
	}
}

// WithParallelism bounds concurrent config processing in CreateStorage.
func WithParallelism(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

func withFileSystem(fsys fileSystem) Option {
	return func(m *Manager) {
		m.fs = fsys
	}
}

// Manager owns the registry of named resources. It is safe for concurrent use.
type Manager struct {
	dir string

	mu        sync.RWMutex
	resources map[string]*Resource
	creating  singleflight.Group

	fs          fileSystem
	writer      *Writer
	logger      *zap.Logger
	observer    StorageObserver
	parallelism int
}

// NewManager creates a manager whose resources default to dir. An empty dir
// selects "hostkit/storage" under the user config directory.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default storage directory: %w", err)
		}
		dir = filepath.Join(base, "hostkit", "storage")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory %s: %w", dir, err)
	}

	m := &Manager{
		dir:         abs,
		resources:   make(map[string]*Resource),
		fs:          osFS{},
		logger:      zap.NewNop(),
		observer:    nopObserver{},
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.writer = newWriter(m.fs)
	return m, nil
}

// Dir returns the default storage directory.
func (m *Manager) Dir() string {
	return m.dir
}

// CreateStorage registers every config, creating missing files with their
// initial state. Configs are processed concurrently and independently.
//
// The returned error is non-nil only when every config failed. When some
// failed, the failures are logged and reported through BatchResult.Err.
func (m *Manager) CreateStorage(ctx context.Context, configs ...Config) (*BatchResult, error) {
	result := &BatchResult{Outcomes: make([]Outcome, len(configs))}
	if len(configs) == 0 {
		return result, nil
	}

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for i, cfg := range configs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				result.Outcomes[i] = Outcome{Name: cfg.Name, Status: StatusFailed, Err: err}
				return nil
			}
			result.Outcomes[i] = m.create(cfg)
			return nil
		})
	}
	_ = g.Wait()

	failed := result.Failed()
	if len(failed) == len(configs) {
		return result, result.Err()
	}
	for _, o := range failed {
		m.logger.Warn("Failed to create storage",
			zap.String("name", o.Name),
			zap.Int("failed", len(failed)),
			zap.Int("total", len(configs)),
			zap.Error(o.Err))
	}
	return result, nil
}

func (m *Manager) create(cfg Config) Outcome {
	out := Outcome{Name: cfg.Name, Status: StatusFailed}

	if err := ValidateName(cfg.Name); err != nil {
		out.Err = err
		return out
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	if err := validateExtension(cfg.Extension); err != nil {
		out.Err = err
		return out
	}
	format := FormatForExtension(cfg.Extension)
	if cfg.InitialState == nil {
		cfg.InitialState = defaultInitialState(format)
	}

	path, err := m.pathFor(cfg)
	if err != nil {
		out.Err = err
		return out
	}
	out.Path = path

	v, err, shared := m.creating.Do(cfg.Name, func() (any, error) {
		return m.register(cfg, path, format)
	})
	if err != nil {
		out.Err = err
		return out
	}
	out.Status = v.(Status)
	if shared || out.Status == StatusExisting {
		out.Path = m.Path(cfg.Name)
	}
	return out
}

func (m *Manager) pathFor(cfg Config) (string, error) {
	dir := m.dir
	if cfg.Location != "" {
		abs, err := filepath.Abs(cfg.Location)
		if err != nil {
			return "", fmt.Errorf("%w: resolve location %s: %w", ErrIO, cfg.Location, err)
		}
		dir = abs
	}
	return filepath.Join(dir, cfg.Name+"."+cfg.Extension), nil
}

// register runs at most once at a time per name.
func (m *Manager) register(cfg Config, path string, format Format) (Status, error) {
	m.mu.RLock()
	existing, ok := m.resources[cfg.Name]
	m.mu.RUnlock()
	if ok {
		if existing.Path() != path {
			m.logger.Debug("Storage already registered at another path",
				zap.String("name", cfg.Name),
				zap.String("registered", existing.Path()),
				zap.String("requested", path))
		}
		return StatusExisting, nil
	}

	initial, err := encode(format, cfg.InitialState, true)
	if err != nil {
		return "", err
	}

	_, err = m.fs.Stat(path)
	switch {
	case err == nil:
		m.add(newResource(cfg.Name, path, format, initial, m.fs, m.logger, m.observer))
		m.logger.Info("Storage registered", zap.String("name", cfg.Name), zap.String("path", path))
		return StatusRegistered, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", ioError("stat", path, err)
	}

	if err := m.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", ioError("mkdir", filepath.Dir(path), err)
	}
	if err := m.writer.WriteFile(path, initial); err != nil {
		return "", err
	}

	m.add(newResource(cfg.Name, path, format, initial, m.fs, m.logger, m.observer))
	m.logger.Info("Storage created", zap.String("name", cfg.Name), zap.String("path", path))
	return StatusCreated, nil
}

func (m *Manager) add(r *Resource) {
	m.mu.Lock()
	m.resources[r.name] = r
	count := len(m.resources)
	m.mu.Unlock()
	m.observer.SetStorageResources(count)
}

// Resource returns the handle registered under name.
func (m *Manager) Resource(name string) (*Resource, error) {
	m.mu.RLock()
	r, ok := m.resources[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return r, nil
}

// Read returns the current content of the named resource.
func (m *Manager) Read(ctx context.Context, name string) (any, error) {
	r, err := m.Resource(name)
	if err != nil {
		return nil, err
	}
	return r.Read(ctx)
}

// Write replaces the content of the named resource and returns the value
// that was persisted.
func (m *Manager) Write(ctx context.Context, name string, value any) (any, error) {
	r, err := m.Resource(name)
	if err != nil {
		return nil, err
	}
	return r.Write(ctx, value)
}

// Names returns the registered resource names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.resources))
	for name := range m.resources {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Path returns the file path of a registered resource, or "" if unknown.
func (m *Manager) Path(name string) string {
	r, err := m.Resource(name)
	if err != nil {
		return ""
	}
	return r.Path()
}

// Cached returns the last known value of a resource without touching disk.
func (m *Manager) Cached(name string) (value any, warm bool, err error) {
	r, err := m.Resource(name)
	if err != nil {
		return nil, false, err
	}
	value, warm = r.Cached()
	return value, warm, nil
}
