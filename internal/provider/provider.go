package provider

import (
	"context"

	"github.com/conneroisu/vellum/internal/jscontext"
	"github.com/conneroisu/vellum/internal/metrics"
)

// Provider is the surface host applications embed. One call per render takes
// the leaf template and the render context map and returns the head markup:
// version-tokened asset links plus, when the context map carries tagged
// values, the finalized payload wiring for client script.
type Provider struct {
	builder  *Builder
	contexts *jscontext.Registry
	prefix   string
	metrics  *metrics.Metrics
}

// NewProvider wires a provider. metrics may be nil.
func NewProvider(builder *Builder, contexts *jscontext.Registry, staticPrefix string, m *metrics.Metrics) *Provider {
	return &Provider{
		builder:  builder,
		contexts: contexts,
		prefix:   staticPrefix,
		metrics:  m,
	}
}

// Links resolves the link set for the leaf template and finalizes the tagged
// portion of the render context under the given request identifier. When the
// context map holds no tagged values no payload is created and the markup
// carries asset links only. A serialization failure fails the whole call;
// nothing is published.
func (p *Provider) Links(ctx context.Context, requestID, leaf string, renderContext map[string]interface{}) (Links, error) {
	set, err := p.builder.Build(ctx, leaf)
	if err != nil {
		return Links{}, err
	}
	links := NewLinks(set, p.prefix)

	tagged := jscontext.Collect(renderContext)
	if len(tagged) == 0 {
		return links, nil
	}

	id, err := p.contexts.Finalize(requestID, tagged)
	if err != nil {
		return Links{}, err
	}
	if p.metrics != nil {
		p.metrics.PayloadsFinalized.Inc()
	}
	payload, err := p.contexts.Retrieve(id)
	if err != nil {
		// Only reachable if the request scope was ended concurrently with
		// the render that opened it.
		return Links{}, err
	}
	return links.WithContext(id, payload.JSON()), nil
}

// Contexts returns the payload registry, for request-scope middleware and
// the retrieval endpoint.
func (p *Provider) Contexts() *jscontext.Registry {
	return p.contexts
}
