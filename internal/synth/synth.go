// Package synth turns a resolved function into a self-contained build
// unit: a single-file program, a dependency manifest, a container
// descriptor, and runtime support files.
package synth

import (
	"context"
	"strings"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/function"
)

// Transformer synthesizes build units for one source ecosystem.
type Transformer interface {
	// Language returns the ecosystem this transformer handles.
	Language() string

	// Synthesize writes the complete build unit for ctx.Function into
	// ctx.BuildPath. Any I/O failure is fatal to this one function's
	// build, never to sibling functions.
	Synthesize(ctx context.Context, bctx *function.BuildContext) error
}

// Registry resolves transformers by language.
type Registry struct {
	transformers map[string]Transformer
}

func NewRegistry(transformers ...Transformer) *Registry {
	r := &Registry{transformers: make(map[string]Transformer, len(transformers))}
	for _, t := range transformers {
		r.transformers[t.Language()] = t
	}
	return r
}

func (r *Registry) ForLanguage(language string) (Transformer, error) {
	t, ok := r.transformers[strings.ToLower(language)]
	if !ok {
		return nil, apperr.Validation("unsupported_language", "no transformer for language %q", language)
	}
	return t, nil
}
