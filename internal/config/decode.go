package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ohler55/ojg/oj"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/etch/internal/coerce"
)

// Format is a config document encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the decoder by file extension, defaulting to TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

func decode(data []byte, format Format) (map[string]interface{}, error) {
	var (
		raw interface{}
		err error
	)

	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatJSON:
		if strings.TrimSpace(string(data)) == "" {
			break
		}
		raw, err = oj.Parse(data)
	default:
		var doc map[string]interface{}
		err = toml.Unmarshal(data, &doc)
		raw = doc
	}
	if err != nil {
		return nil, err
	}

	switch tree := coerce.Normalize(raw).(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return tree, nil
	default:
		return nil, fmt.Errorf("document root must be a table, got %s", describe(tree))
	}
}
