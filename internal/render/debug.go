package render

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/conneroisu/etch/internal/config"
	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// debugConfig is the config as the run saw it: the declared context sources
// are replaced by their resolved values.
type debugConfig struct {
	*config.Config
	Context map[string]interface{} `json:"context"`
}

type debugSnapshot struct {
	Config           debugConfig       `json:"config"`
	Written          []string          `json:"written"`
	Identical        []string          `json:"identical"`
	LockfileModified bool              `json:"lockfile_modified"`
	Lockfile         map[string]string `json:"lockfile"`
}

func writeDebug(fs afero.Fs, root string, result *Result, lockFiles map[string]string) error {
	snapshot := debugSnapshot{
		Config:           debugConfig{Config: result.Config, Context: result.Context},
		Written:          result.Written,
		Identical:        result.Identical,
		LockfileModified: result.LockfileModified,
		Lockfile:         lockFiles,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return etcherrors.NewLockfileError(etcherrors.ErrCodeOutputWrite, "Failed to encode debug snapshot", err)
	}

	path := filepath.Join(root, DebugFileName)
	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
		return etcherrors.NewLockfileError(etcherrors.ErrCodeOutputWrite, "Failed to write debug snapshot", err).WithPath(path)
	}

	return nil
}
