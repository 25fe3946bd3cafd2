package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// Starter is the commented config written by `etch init`.
const Starter = `# etch configuration.
#
# Any file named like "name.etch.ext" or "name.etch" under this directory is
# rendered to "name.ext" / "name". Values declared below are available to
# every template.

# Commands run, in order, before any context is resolved.
setup_commands = []

# Patterns (gitignore syntax) that are never treated as templates.
exclude = []

# Additional ignore files, relative to this directory.
ignore_files = []

[engine]
block_start = "{%"
block_end = "%}"
variable_start = "{{"
variable_end = "}}"
comment_start = "{#"
comment_end = "#}"
keep_trailing_newline = true
allow_undefined = false
# Starlark scripts registering extra template functions.
custom_extensions = []

[context.static]
project = { value = "example" }

[context.env]
user = { env_name = "USER", default = "unknown" }

[context.cli]
today = { commands = ["date +%Y-%m-%d"] }
`

// WriteStarter creates DefaultPath inside dir. It refuses to overwrite an
// existing file and returns the path written.
func WriteStarter(fs afero.Fs, dir string) (string, error) {
	path := ResolvePath(dir, "")

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return "", etcherrors.NewConfigError(etcherrors.ErrCodeConfigRead, fmt.Sprintf("Could not check '%s'.", path)).
			WithCause(err)
	}
	if exists {
		return "", etcherrors.NewConfigError(
			etcherrors.ErrCodeConfigInvalid,
			fmt.Sprintf("Config file already exists at '%s'.", path),
		)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", etcherrors.NewConfigError(etcherrors.ErrCodeConfigInvalid, "Could not create config directory").
			WithCause(err)
	}
	if err := afero.WriteFile(fs, path, []byte(Starter), os.FileMode(0o644)); err != nil {
		return "", etcherrors.NewConfigError(etcherrors.ErrCodeConfigInvalid, "Could not write config file").
			WithCause(err)
	}

	return path, nil
}
