package window

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/GriffinCanCode/hostkit/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOpener struct {
	mock.Mock
}

func (m *mockOpener) Open(ctx context.Context, w *Window) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

type countingObserver struct {
	open, total int
}

func (o *countingObserver) SetWindowsOpen(n int) { o.open = n }
func (o *countingObserver) IncWindowsTotal()     { o.total++ }

func TestCreateDefaults(t *testing.T) {
	m := NewManager(Config{StartURL: "http://localhost:3000", IsDev: true})
	ctx := context.Background()

	w, err := m.Create(ctx, Options{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(w.ID.String(), "win_"))
	assert.True(t, id.IsValid(w.ID.String()))
	assert.Equal(t, "window_1", w.Name)
	assert.Empty(t, w.URL)
	assert.Equal(t, map[string]any{"webPreferences": map[string]any{"devTools": true}}, w.Options)
	assert.False(t, w.CreatedAt.IsZero())

	w2, err := m.Create(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, "window_2", w2.Name)
}

func TestCreateResolvesURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		opts Options
		want string
	}{
		{
			name: "explicit url",
			cfg:  Config{StartURL: "http://localhost:3000", IsDev: true},
			opts: Options{Name: "main", URL: "https://example.com"},
			want: "https://example.com",
		},
		{
			name: "dev localhost",
			cfg:  Config{StartURL: "http://localhost:3000", IsDev: true},
			opts: Options{Name: "main"},
			want: "http://localhost:3000/main.html",
		},
		{
			name: "production directory",
			cfg:  Config{StartURL: "/opt/app/build"},
			opts: Options{Name: "main"},
			want: "file:///opt/app/build/main.html",
		},
		{
			name: "dev without localhost",
			cfg:  Config{StartURL: "file:///opt/app/build", IsDev: true},
			opts: Options{Name: "about"},
			want: "file:///opt/app/build/about.html",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewManager(tt.cfg).Create(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.URL)
		})
	}
}

func TestCreateMergesOptions(t *testing.T) {
	m := NewManager(Config{IsDev: false})

	w, err := m.Create(context.Background(), Options{
		Name: "main",
		Options: map[string]any{
			"width":          800,
			"webPreferences": map[string]any{"sandbox": true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"width": 800,
		"webPreferences": map[string]any{
			"devTools": false,
			"sandbox":  true,
		},
	}, w.Options)
}

func TestCreateWithOpener(t *testing.T) {
	opener := &mockOpener{}
	obs := &countingObserver{}
	m := NewManager(Config{}, WithOpener(opener), WithObserver(obs))
	ctx := context.Background()

	opener.On("Open", ctx, mock.MatchedBy(func(w *Window) bool { return w.Name == "main" })).Return(nil).Once()
	opener.On("Open", ctx, mock.MatchedBy(func(w *Window) bool { return w.Name == "broken" })).Return(errors.New("no display")).Once()

	_, err := m.Create(ctx, Options{Name: "main"})
	require.NoError(t, err)

	_, err = m.Create(ctx, Options{Name: "broken"})
	assert.ErrorContains(t, err, "no display")

	assert.Equal(t, 1, m.Count())
	assert.Equal(t, []string{"main"}, m.Names())
	assert.Equal(t, 1, obs.total)
	assert.Equal(t, 1, obs.open)
	opener.AssertExpectations(t)
}

func TestLookupByName(t *testing.T) {
	m := NewManager(Config{})
	ctx := context.Background()

	first, _ := m.Create(ctx, Options{Name: "editor"})
	_, _ = m.Create(ctx, Options{Name: "settings"})
	second, _ := m.Create(ctx, Options{Name: "editor"})

	got, ok := m.Get("editor")
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID)

	_, ok = m.Get("missing")
	assert.False(t, ok)
	_, ok = m.Get("")
	assert.False(t, ok)

	all := m.GetAll("editor")
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[1].ID)

	assert.Equal(t, []id.WindowID{first.ID, second.ID}, m.IDs("editor"))
	assert.Equal(t, []id.WindowID{}, m.IDs("missing"))
	assert.Equal(t, []string{"editor", "settings", "editor"}, m.Names())
	assert.Len(t, m.AllIDs(), 3)
}

func TestClose(t *testing.T) {
	obs := &countingObserver{}
	m := NewManager(Config{}, WithObserver(obs))
	ctx := context.Background()

	a, _ := m.Create(ctx, Options{Name: "a"})
	b, _ := m.Create(ctx, Options{Name: "b"})

	require.NoError(t, m.Close(a.ID))
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 1, obs.open)
	_, ok := m.GetByID(a.ID)
	assert.False(t, ok)
	got, ok := m.GetByID(b.ID)
	require.True(t, ok)
	assert.Equal(t, "b", got.Name)

	err := m.Close(a.ID)
	assert.ErrorIs(t, err, ErrWindowNotFound)
}

func TestReturnedWindowsAreCopies(t *testing.T) {
	m := NewManager(Config{})
	w, err := m.Create(context.Background(), Options{Name: "main", Options: map[string]any{"x": 1}})
	require.NoError(t, err)

	w.Name = "changed"
	w.Options["x"] = 2

	got, _ := m.GetByID(w.ID)
	assert.Equal(t, "main", got.Name)
	assert.Equal(t, 1, got.Options["x"])
}
