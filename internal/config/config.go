// Package config loads an etch configuration document, validates it against
// the schema and binds it into typed settings.
//
// Documents may be TOML (the default), YAML or JSON. Decoding produces a
// generic value tree which is checked before binding, so problems are
// reported against a path within the document (for example
// "context.cli.version.commands[0]") instead of as raw decode errors.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"

	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/resolver"
)

// DefaultPath is the config location used when none is given, relative to
// the render root.
const DefaultPath = "./etch.config.toml"

// Config is the resolved configuration of a single render run.
type Config struct {
	Context       resolver.Sources `mapstructure:"context" json:"context"`
	Exclude       []string         `mapstructure:"exclude" json:"exclude"`
	Engine        EngineConfig     `mapstructure:"engine" json:"engine"`
	IgnoreFiles   []string         `mapstructure:"ignore_files" json:"ignore_files"`
	SetupCommands []string         `mapstructure:"setup_commands" json:"setup_commands"`

	// Root and Path are absolute; they are filled in by Load.
	Root string `mapstructure:"-" json:"-"`
	Path string `mapstructure:"-" json:"-"`
}

// EngineConfig controls the template engine syntax and behaviour.
type EngineConfig struct {
	BlockStart          string   `mapstructure:"block_start" json:"block_start"`
	BlockEnd            string   `mapstructure:"block_end" json:"block_end"`
	VariableStart       string   `mapstructure:"variable_start" json:"variable_start"`
	VariableEnd         string   `mapstructure:"variable_end" json:"variable_end"`
	CommentStart        string   `mapstructure:"comment_start" json:"comment_start"`
	CommentEnd          string   `mapstructure:"comment_end" json:"comment_end"`
	KeepTrailingNewline bool     `mapstructure:"keep_trailing_newline" json:"keep_trailing_newline"`
	AllowUndefined      bool     `mapstructure:"allow_undefined" json:"allow_undefined"`
	CustomExtensions    []string `mapstructure:"custom_extensions" json:"custom_extensions"`
}

// DefaultEngine returns jinja style delimiters, keeping trailing newlines and
// rejecting undefined variables.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		BlockStart:          "{%",
		BlockEnd:            "%}",
		VariableStart:       "{{",
		VariableEnd:         "}}",
		CommentStart:        "{#",
		CommentEnd:          "#}",
		KeepTrailingNewline: true,
		AllowUndefined:      false,
	}
}

// Default returns an empty configuration with engine defaults applied.
func Default() *Config {
	return &Config{
		Context: resolver.Sources{
			Static: map[string]resolver.StaticSource{},
			Env:    map[string]resolver.EnvSource{},
			Cli:    map[string]resolver.CliSource{},
		},
		Exclude:       []string{},
		Engine:        DefaultEngine(),
		IgnoreFiles:   []string{},
		SetupCommands: []string{},
	}
}

// ResolvePath returns path made absolute against root. An empty path means
// DefaultPath.
func ResolvePath(root, path string) string {
	if path == "" {
		path = DefaultPath
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(root, path)
}

// Load reads, validates and binds the config document at path. Relative paths
// resolve against root, which must already be absolute.
func Load(fs afero.Fs, root, path string) (*Config, error) {
	path = ResolvePath(root, path)

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, etcherrors.WrapConfig(err, etcherrors.ErrCodeConfigRead, fmt.Sprintf("Error reading config file from '%s'.", path))
	}

	cfg, err := Parse(data, FormatFromPath(path))
	if err != nil {
		var ee *etcherrors.EtchError
		if errors.As(err, &ee) {
			return nil, ee.WithPath(path)
		}
		return nil, err
	}

	cfg.Root = root
	cfg.Path = path
	if err := postValidate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes data in the given format, validates it against the schema and
// binds it onto Default(). Path dependent normalisation is left to Load.
func Parse(data []byte, format Format) (*Config, error) {
	tree, err := decode(data, format)
	if err != nil {
		return nil, etcherrors.WrapConfig(err, etcherrors.ErrCodeConfigDecode, fmt.Sprintf("Failed to decode %s config", format))
	}

	if err := ValidateTree(tree); err != nil {
		return nil, etcherrors.WrapConfig(err, etcherrors.ErrCodeConfigSchema, "Config does not match the schema")
	}

	cfg := Default()
	if err := bind(tree, cfg); err != nil {
		return nil, etcherrors.WrapConfig(err, etcherrors.ErrCodeConfigInvalid, "Failed to bind config")
	}

	return cfg, nil
}

func bind(tree map[string]interface{}, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		TagName:     "mapstructure",
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(tree)
}
