package window

import (
	"time"

	"github.com/GriffinCanCode/hostkit/internal/shared/id"
)

// Options describes a window to create.
type Options struct {
	Name     string         `json:"name,omitempty"`
	URL      string         `json:"url,omitempty"`
	DevTools bool           `json:"devTools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// Window is a registered window handle.
type Window struct {
	ID        id.WindowID    `json:"id"`
	Name      string         `json:"name"`
	URL       string         `json:"url,omitempty"`
	DevTools  bool           `json:"devTools"`
	Options   map[string]any `json:"options,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (w *Window) clone() *Window {
	c := *w
	c.Options = cloneOptions(w.Options)
	return &c
}

func cloneOptions(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			v = cloneOptions(nested)
		}
		dst[k] = v
	}
	return dst
}

// mergeOptions deep-merges src over dst. Nested maps merge key by key; any
// other value in src replaces the one in dst.
func mergeOptions(dst, src map[string]any) map[string]any {
	out := cloneOptions(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := out[k].(map[string]any)
		if srcIsMap && dstIsMap {
			out[k] = mergeOptions(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			v = cloneOptions(srcMap)
		}
		out[k] = v
	}
	return out
}
