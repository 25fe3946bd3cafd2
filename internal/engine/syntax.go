package engine

import (
	"fmt"
	"strings"

	gonjacfg "github.com/nikolalohinski/gonja/config"

	"github.com/conneroisu/etch/internal/config"
	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// buildConfig turns engine settings into a gonja config. Autoescaping is
// always off: outputs are arbitrary text files, not HTML.
func buildConfig(settings config.EngineConfig) (*gonjacfg.Config, error) {
	if err := validateSyntax(settings); err != nil {
		return nil, err
	}

	cfg := gonjacfg.NewConfig()
	cfg.BlockStartString = settings.BlockStart
	cfg.BlockEndString = settings.BlockEnd
	cfg.VariableStartString = settings.VariableStart
	cfg.VariableEndString = settings.VariableEnd
	cfg.CommentStartString = settings.CommentStart
	cfg.CommentEndString = settings.CommentEnd
	cfg.Autoescape = false
	cfg.StrictUndefined = !settings.AllowUndefined

	return cfg, nil
}

type delimiter struct {
	name  string
	value string
}

// validateSyntax rejects delimiter sets the lexer cannot tell apart. The
// lexer matches opening delimiters by prefix, so no start may be a prefix of
// another, and block and variable ends must differ.
func validateSyntax(s config.EngineConfig) error {
	all := []delimiter{
		{"block_start", s.BlockStart}, {"block_end", s.BlockEnd},
		{"variable_start", s.VariableStart}, {"variable_end", s.VariableEnd},
		{"comment_start", s.CommentStart}, {"comment_end", s.CommentEnd},
	}
	for _, d := range all {
		if d.value == "" {
			return syntaxError(fmt.Sprintf("Delimiter '%s' must not be empty.", d.name))
		}
		if strings.TrimSpace(d.value) != d.value {
			return syntaxError(fmt.Sprintf("Delimiter '%s' must not contain surrounding whitespace.", d.name))
		}
	}

	starts := []delimiter{all[0], all[2], all[4]}
	for i, a := range starts {
		for j, b := range starts {
			if i == j {
				continue
			}
			if strings.HasPrefix(b.value, a.value) {
				return syntaxError(fmt.Sprintf(
					"Delimiters '%s' (%q) and '%s' (%q) are ambiguous.", a.name, a.value, b.name, b.value,
				))
			}
		}
	}

	if s.BlockEnd == s.VariableEnd {
		return syntaxError(fmt.Sprintf("Delimiters 'block_end' and 'variable_end' are both %q.", s.BlockEnd))
	}

	return nil
}

func syntaxError(msg string) error {
	return etcherrors.NewEngineError(etcherrors.ErrCodeSyntaxInvalid, msg)
}
