package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/nikolalohinski/gonja/exec"
	"github.com/nikolalohinski/gonja/parser"
	"github.com/nikolalohinski/gonja/tokens"
	"github.com/spf13/afero"

	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// ErrTemplateNotFound is the cause of every failed lookup of a missing
// template, so include lookups can tell it apart from I/O errors.
var ErrTemplateNotFound = errors.New("no such template")

// Loader resolves template names to files under root. Compiled templates are
// cached for the life of the engine.
type Loader struct {
	fs                  afero.Fs
	root                string
	env                 *exec.EvalConfig
	keepTrailingNewline bool

	mu    sync.Mutex
	cache map[string]*exec.Template
}

func newLoader(fs afero.Fs, root string, env *exec.EvalConfig, keepTrailingNewline bool) *Loader {
	return &Loader{
		fs:                  fs,
		root:                root,
		env:                 env,
		keepTrailingNewline: keepTrailingNewline,
		cache:               make(map[string]*exec.Template),
	}
}

// Path returns the file a template name maps to.
func (l *Loader) Path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("template name '%s' escapes the root: %w", name, ErrTemplateNotFound)
	}

	return filepath.Join(l.root, clean), nil
}

// GetTemplate returns the compiled template for name. A missing file yields
// an error wrapping ErrTemplateNotFound.
func (l *Loader) GetTemplate(name string) (*exec.Template, error) {
	l.mu.Lock()
	tpl, ok := l.cache[name]
	l.mu.Unlock()
	if ok {
		return tpl, nil
	}

	path, err := l.Path(name)
	if err != nil {
		return nil, notFound(name, err)
	}

	info, err := l.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(name, ErrTemplateNotFound)
		}
		return nil, etcherrors.NewRenderError(etcherrors.ErrCodeTemplateNotFound, fmt.Sprintf("Could not read template '%s'", name), err)
	}
	if info.IsDir() {
		return nil, notFound(name, ErrTemplateNotFound)
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, etcherrors.NewRenderError(etcherrors.ErrCodeTemplateNotFound, fmt.Sprintf("Could not read template '%s'", name), err)
	}

	source := string(data)
	if !l.keepTrailingNewline {
		source = trimTrailingNewline(source)
	}

	tpl, err = compile(name, source, l.env)
	if err != nil {
		return nil, etcherrors.NewRenderError(
			etcherrors.ErrCodeTemplateParse,
			fmt.Sprintf("Failed to parse template '%s'", name),
			err,
		)
	}

	l.mu.Lock()
	l.cache[name] = tpl
	l.mu.Unlock()

	return tpl, nil
}

func notFound(name string, cause error) error {
	return etcherrors.NewRenderError(
		etcherrors.ErrCodeTemplateNotFound,
		fmt.Sprintf("Template '%s' not found", name),
		cause,
	)
}

func trimTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		s = strings.TrimSuffix(s, "\n")
		s = strings.TrimSuffix(s, "\r")
	}

	return s
}

// compile lexes with env's delimiters; tokens.Lex always uses the defaults.
func compile(name, source string, env *exec.EvalConfig) (*exec.Template, error) {
	blockStart := regexp.QuoteMeta(env.Config.BlockStartString)

	lexer := tokens.NewLexer(source)
	lexer.Config = env.Config
	lexer.RawStatements["raw"] = regexp.MustCompile(blockStart + `-?\s*endraw`)
	lexer.RawStatements["comment"] = regexp.MustCompile(blockStart + `-?\s*endcomment`)

	go lexer.Run()
	var toks []*tokens.Token
	for tok := range lexer.Tokens {
		toks = append(toks, tok)
	}

	stream := tokens.NewStream(toks)
	p := parser.NewParser(name, env.Config, stream)
	p.Statements = *env.Statements
	p.TemplateParser = env.GetTemplate

	root, err := p.Parse()
	if err != nil {
		return nil, err
	}

	return &exec.Template{
		Name:   name,
		Source: source,
		Env:    env,
		Loader: env.Loader,
		Tokens: stream,
		Parser: p,
		Root:   root,
	}, nil
}
