package extension

import (
	"context"
	"fmt"

	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// Loader discovers extension functions from a reference declared in the
// engine's custom_extensions list.
type Loader interface {
	// Accepts reports whether the loader handles ref.
	Accepts(ref string) bool

	// Load registers every function defined by ref into reg.
	Load(ctx context.Context, ref string, reg *Registry) error
}

// LoadAll hands each reference to the first loader accepting it.
func LoadAll(ctx context.Context, loaders []Loader, refs []string, reg *Registry) error {
	for _, ref := range refs {
		loader := pick(loaders, ref)
		if loader == nil {
			return etcherrors.NewEngineError(
				etcherrors.ErrCodeExtensionLoad,
				fmt.Sprintf("No extension loader accepts '%s'.", ref),
			).WithContext("extension", ref)
		}
		if err := loader.Load(ctx, ref, reg); err != nil {
			return etcherrors.WrapEngine(err, etcherrors.ErrCodeExtensionLoad, fmt.Sprintf("Failed to load extension '%s'", ref))
		}
	}

	return nil
}

func pick(loaders []Loader, ref string) Loader {
	for _, loader := range loaders {
		if loader.Accepts(ref) {
			return loader
		}
	}

	return nil
}
