package config

import (
	"fmt"
	"path/filepath"
	"strings"

	etcherrors "github.com/conneroisu/etch/internal/errors"
	"github.com/conneroisu/etch/internal/resolver"
)

// postValidate runs the checks that need the bound config or the root.
func postValidate(cfg *Config) error {
	if dups := cfg.Context.Duplicates(); len(dups) > 0 {
		dup := dups[0]
		kinds := make([]string, len(dup.Kinds))
		for i, kind := range dup.Kinds {
			kinds[i] = string(kind)
		}
		return etcherrors.NewConfigError(
			etcherrors.ErrCodeDuplicateKey,
			fmt.Sprintf("Context key '%s' is defined by more than one source: %s.", dup.Key, strings.Join(kinds, ", ")),
		).WithPath(cfg.Path).WithContext("key", dup.Key)
	}

	for i, pattern := range cfg.Exclude {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" || trimmed == "!" {
			return etcherrors.NewConfigError(
				etcherrors.ErrCodeConfigInvalid,
				fmt.Sprintf("exclude[%d]: empty pattern", i),
			).WithPath(cfg.Path)
		}
		cfg.Exclude[i] = trimmed
	}

	for i, file := range cfg.IgnoreFiles {
		if !filepath.IsAbs(file) {
			cfg.IgnoreFiles[i] = filepath.Join(cfg.Root, file)
		}
	}

	ensureMaps(&cfg.Context)

	return nil
}

func ensureMaps(s *resolver.Sources) {
	if s.Static == nil {
		s.Static = map[string]resolver.StaticSource{}
	}
	if s.Env == nil {
		s.Env = map[string]resolver.EnvSource{}
	}
	if s.Cli == nil {
		s.Cli = map[string]resolver.CliSource{}
	}
}
