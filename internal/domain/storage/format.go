package storage

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
)

// Format selects how values are encoded in a resource file.
type Format string

const (
	FormatJSON Format = "json"
	FormatRaw  Format = "raw"
)

// DefaultExtension is used when a Config leaves Extension empty.
const DefaultExtension = "json"

// sonic in std-compatible mode: sorted map keys, HTML escaping, float64 numbers.
var codec = sonic.ConfigStd

// FormatForExtension maps a file extension to its storage format.
func FormatForExtension(ext string) Format {
	if ext == DefaultExtension {
		return FormatJSON
	}
	return FormatRaw
}

func encode(format Format, value any, pretty bool) ([]byte, error) {
	if format == FormatJSON {
		var (
			data []byte
			err  error
		)
		if pretty {
			data, err = codec.MarshalIndent(value, "", "  ")
		} else {
			data, err = codec.Marshal(value)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: encode json: %w", ErrSerialization, err)
		}
		return data, nil
	}

	switch v := value.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return bytes.Clone(v), nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%w: raw storage accepts []byte or string, got %T", ErrSerialization, value)
	}
}

func decode(format Format, data []byte) (any, error) {
	if format == FormatJSON {
		var v any
		if err := codec.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: decode json: %w", ErrSerialization, err)
		}
		return v, nil
	}
	return append([]byte(nil), data...), nil
}

func defaultInitialState(format Format) any {
	if format == FormatJSON {
		return map[string]any{}
	}
	return []byte{}
}
