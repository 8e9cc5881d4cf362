package http

import (
	"bytes"
	"net/http"

	"github.com/GriffinCanCode/hostkit/internal/domain/storage"
	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

type outcomeView struct {
	Name   string         `json:"name"`
	Path   string         `json:"path,omitempty"`
	Status storage.Status `json:"status"`
	Error  string         `json:"error,omitempty"`
}

type resourceView struct {
	Name    string         `json:"name"`
	Path    string         `json:"path"`
	Format  storage.Format `json:"format"`
	Pending int            `json:"pending"`
}

// ListStorage lists registered resources
func (h *Handlers) ListStorage(c *gin.Context) {
	names := h.storage.Names()
	resources := make([]resourceView, 0, len(names))
	for _, name := range names {
		r, err := h.storage.Resource(name)
		if err != nil {
			continue
		}
		resources = append(resources, resourceView{
			Name:    r.Name(),
			Path:    r.Path(),
			Format:  r.Format(),
			Pending: r.Pending(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"dir":       h.storage.Dir(),
		"resources": resources,
	})
}

// CreateStorage creates or registers resources. The body is one config
// object, an array of them or {"configs": [...]}. A batch where only some configs fail answers
// 207 with the per-config outcomes.
func (h *Handlers) CreateStorage(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}

	configs, err := decodeConfigs(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.storage.CreateStorage(c.Request.Context(), configs...)
	if err != nil {
		abort(c, err)
		return
	}

	views := make([]outcomeView, len(result.Outcomes))
	for i, o := range result.Outcomes {
		views[i] = outcomeView{Name: o.Name, Path: o.Path, Status: o.Status}
		if o.Err != nil {
			views[i].Error = o.Err.Error()
		}
	}

	status := http.StatusOK
	if len(result.Failed()) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"outcomes": views})
}

func decodeConfigs(body []byte) ([]storage.Config, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errEmptyBody
	}

	switch body[0] {
	case '[':
		var configs []storage.Config
		if err := sonic.Unmarshal(body, &configs); err != nil {
			return nil, errInvalidConfig
		}
		return configs, nil
	case '{':
		var req struct {
			Configs []storage.Config `json:"configs"`
			storage.Config
		}
		if err := sonic.Unmarshal(body, &req); err != nil {
			return nil, errInvalidConfig
		}
		if req.Configs != nil {
			return req.Configs, nil
		}
		return []storage.Config{req.Config}, nil
	default:
		return nil, errInvalidConfig
	}
}

// ReadStorage returns the current content of a resource. Raw resources are
// returned as is with a sniffed content type; JSON resources as
// {"name", "value"}.
func (h *Handlers) ReadStorage(c *gin.Context) {
	r, err := h.storage.Resource(c.Param("name"))
	if err != nil {
		abort(c, err)
		return
	}

	value, err := r.Read(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	if r.Format() == storage.FormatRaw {
		data, _ := value.([]byte)
		c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": r.Name(), "value": value})
}

// WriteStorage replaces the content of a resource with the request body.
// For JSON resources the body must be a JSON document.
func (h *Handlers) WriteStorage(c *gin.Context) {
	r, err := h.storage.Resource(c.Param("name"))
	if err != nil {
		abort(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}

	if r.Format() == storage.FormatRaw {
		if _, err := r.Write(c.Request.Context(), body); err != nil {
			abort(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": r.Name(), "bytes": len(body)})
		return
	}

	var value any
	if err := sonic.Unmarshal(body, &value); err != nil {
		badRequest(c, "body is not valid JSON")
		return
	}
	written, err := r.Write(c.Request.Context(), value)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": r.Name(), "value": written})
}
