package ai

import (
	"context"
	"fmt"
	"sort"

	"github.com/kiranshivaraju/medialens/internal/config"
	"github.com/kiranshivaraju/medialens/pkg/models"
)

// Registry maps each media kind to the provider selected for it. It is built
// once at startup and read-only afterwards.
type Registry struct {
	byKind map[models.MediaKind]models.AnalysisProvider
}

// NewRegistry builds every distinct provider named by the per-kind selection.
// Kinds sharing a provider name share one instance. A kind with no selection
// stays unconfigured.
func NewRegistry(ctx context.Context, cfg config.AIConfig) (*Registry, error) {
	built := map[string]models.AnalysisProvider{}
	selection := map[models.MediaKind]models.AnalysisProvider{}

	for _, kind := range models.MediaKinds {
		name := cfg.ProviderFor(string(kind))
		if name == "" {
			continue
		}
		p, ok := built[name]
		if !ok {
			var err error
			p, err = NewProvider(ctx, name, cfg)
			if err != nil {
				return nil, fmt.Errorf("build %s provider for %s: %w", name, kind, err)
			}
			built[name] = p
		}
		selection[kind] = p
	}

	return NewRegistryFrom(selection)
}

// NewRegistryFrom wraps an explicit selection, rejecting any provider that
// does not support the kind it was assigned to.
func NewRegistryFrom(selection map[models.MediaKind]models.AnalysisProvider) (*Registry, error) {
	byKind := make(map[models.MediaKind]models.AnalysisProvider, len(selection))
	for kind, p := range selection {
		if p == nil {
			continue
		}
		if !p.Capabilities().Supports(kind) {
			return nil, fmt.Errorf("provider %q does not support %s analysis", p.Name(), kind)
		}
		byKind[kind] = p
	}
	return &Registry{byKind: byKind}, nil
}

// ProviderFor returns the provider configured for kind.
func (r *Registry) ProviderFor(kind models.MediaKind) (models.AnalysisProvider, bool) {
	p, ok := r.byKind[kind]
	return p, ok
}

// Names returns the distinct configured provider names, sorted.
func (r *Registry) Names() []string {
	seen := map[string]bool{}
	var names []string
	for _, p := range r.byKind {
		if seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// Analyze dispatches to the provider entry point for kind.
func Analyze(ctx context.Context, p models.AnalysisProvider, kind models.MediaKind, data []byte, contentType, prompt string) (models.AnalysisOutput, error) {
	switch kind {
	case models.MediaKindImage:
		return p.AnalyzeImage(ctx, data, contentType, prompt)
	case models.MediaKindVideo:
		return p.AnalyzeVideo(ctx, data, contentType, prompt)
	case models.MediaKindAudio:
		return p.AnalyzeAudio(ctx, data, contentType, prompt)
	}
	return models.AnalysisOutput{}, fmt.Errorf("%w: media kind %q", ErrUnsupportedMedia, kind)
}
