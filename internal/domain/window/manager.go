package window

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/hostkit/internal/shared/id"
	"go.uber.org/zap"
)

// ErrWindowNotFound indicates an unknown window ID.
var ErrWindowNotFound = errors.New("window not found")

// Opener shows a registered window on the host. The desktop shell provides
// it; without one windows are only tracked.
type Opener interface {
	Open(ctx context.Context, w *Window) error
}

// Observer receives window registry metrics.
type Observer interface {
	SetWindowsOpen(count int)
	IncWindowsTotal()
}

// Config configures window URL resolution.
type Config struct {
	// StartURL is the base for windows created by name only.
	StartURL string
	// IsDev enables dev tools by default and allows loading a localhost
	// StartURL over http.
	IsDev bool
}

// Manager tracks open windows by ID and name.
type Manager struct {
	cfg      Config
	opener   Opener
	observer Observer
	logger   *zap.Logger

	mu      sync.RWMutex
	windows map[id.WindowID]*Window
	order   []id.WindowID // registration order
	seq     int
}

// Option configures a Manager.
type Option func(*Manager)

// WithOpener sets the host collaborator that shows windows.
func WithOpener(o Opener) Option {
	return func(m *Manager) { m.opener = o }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a window manager
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		logger:  zap.NewNop(),
		windows: make(map[id.WindowID]*Window),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new window and asks the opener to show it. When the
// opener fails the window is not registered.
func (m *Manager) Create(ctx context.Context, opts Options) (*Window, error) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	w := &Window{
		ID:        id.NewWindowID(),
		Name:      opts.Name,
		URL:       opts.URL,
		DevTools:  opts.DevTools,
		CreatedAt: time.Now(),
		Options: mergeOptions(map[string]any{
			"webPreferences": map[string]any{"devTools": m.cfg.IsDev},
		}, opts.Options),
	}
	if w.URL == "" && opts.Name != "" {
		w.URL = m.resolveURL(opts.Name)
	}
	if w.Name == "" {
		w.Name = fmt.Sprintf("window_%d", seq)
	}

	if m.opener != nil {
		if err := m.opener.Open(ctx, w.clone()); err != nil {
			return nil, fmt.Errorf("open window %s: %w", w.Name, err)
		}
	}

	m.mu.Lock()
	m.windows[w.ID] = w
	m.order = append(m.order, w.ID)
	count := len(m.windows)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.IncWindowsTotal()
		m.observer.SetWindowsOpen(count)
	}
	m.logger.Info("Window created",
		zap.String("id", w.ID.String()),
		zap.String("name", w.Name),
		zap.String("url", w.URL))

	return w.clone(), nil
}

// resolveURL maps a window name to its page. A localhost start URL is used
// as is in development; otherwise the start URL is a directory of pages.
func (m *Manager) resolveURL(name string) string {
	page := m.cfg.StartURL + "/" + name + ".html"
	if m.cfg.IsDev && strings.Contains(page, "localhost") {
		return page
	}
	dir := strings.TrimPrefix(m.cfg.StartURL, "file://")
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(dir, name+".html"))}
	return u.String()
}

// Get returns the earliest registered window with the given name.
func (m *Manager) Get(name string) (*Window, bool) {
	if name == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, wid := range m.order {
		if w := m.windows[wid]; w.Name == name {
			return w.clone(), true
		}
	}
	return nil, false
}

// GetByID returns the window with the given ID.
func (m *Manager) GetByID(wid id.WindowID) (*Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.windows[wid]
	if !ok {
		return nil, false
	}
	return w.clone(), true
}

// GetAll returns every window with the given name in registration order.
func (m *Manager) GetAll(name string) []*Window {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Window
	for _, wid := range m.order {
		if w := m.windows[wid]; w.Name == name {
			out = append(out, w.clone())
		}
	}
	return out
}

// IDs returns the IDs of every window with the given name.
func (m *Manager) IDs(name string) []id.WindowID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := []id.WindowID{}
	for _, wid := range m.order {
		if m.windows[wid].Name == name {
			ids = append(ids, wid)
		}
	}
	return ids
}

// AllIDs returns every registered window ID.
func (m *Manager) AllIDs() []id.WindowID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]id.WindowID{}, m.order...)
}

// Names returns the name of every registered window, duplicates included.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.order))
	for _, wid := range m.order {
		names = append(names, m.windows[wid].Name)
	}
	return names
}

// Close unregisters a window.
func (m *Manager) Close(wid id.WindowID) error {
	m.mu.Lock()
	w, ok := m.windows[wid]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWindowNotFound, wid)
	}
	delete(m.windows, wid)
	for i, other := range m.order {
		if other == wid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	count := len(m.windows)
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.SetWindowsOpen(count)
	}
	m.logger.Info("Window closed", zap.String("id", wid.String()), zap.String("name", w.Name))
	return nil
}

// Count returns the number of registered windows.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.windows)
}
