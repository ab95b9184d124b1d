// Package lineage resolves template inheritance chains.
//
// A template may name one parent; following parents from a leaf yields its
// lineage. The walker returns chains root-first so that anything derived
// from a chain (asset links in particular) lists ancestral contributions
// before descendant ones.
package lineage

import (
	"github.com/conneroisu/vellum/internal/errors"
	"github.com/conneroisu/vellum/internal/types"
)

// TemplateSource is the lookup surface the walker reads templates through.
// The registry satisfies it; tests substitute map-backed fakes.
type TemplateSource interface {
	Lookup(qualified string) (*types.TemplateInfo, bool)
}

// Walker computes inheritance chains over a TemplateSource.
type Walker struct {
	source TemplateSource
}

// NewWalker creates a walker reading from source.
func NewWalker(source TemplateSource) *Walker {
	return &Walker{source: source}
}

// Chain resolves the inheritance chain of the template named by qualified.
// The result is ordered root-first: index 0 is the most ancestral template
// and the last element is the queried template itself. A template without a
// parent yields a single-element chain.
//
// Errors: the leaf not being registered is a TemplateNotFoundError; a parent
// reference to an unregistered template is a MissingParentError naming both
// ends; a cycle in the parent relation is a CyclicInheritanceError naming
// the full loop.
func (w *Walker) Chain(qualified string) ([]*types.TemplateInfo, error) {
	leaf, ok := w.source.Lookup(qualified)
	if !ok {
		return nil, errors.NewTemplateNotFoundError(qualified)
	}

	// Walk leaf to root, recording visit order for cycle reporting.
	visited := make(map[string]int)
	order := []string{}
	chain := []*types.TemplateInfo{leaf}

	current := leaf
	for {
		name := current.Qualified()
		if at, seen := visited[name]; seen {
			cycle := append(order[at:], name)
			return nil, errors.NewCyclicInheritanceError(cycle)
		}
		visited[name] = len(order)
		order = append(order, name)

		if current.Extends == "" {
			break
		}

		parent, ok := w.source.Lookup(current.Extends)
		if !ok {
			return nil, errors.NewMissingParentError(name, current.Extends)
		}
		chain = append(chain, parent)
		current = parent
	}

	reverse(chain)
	return chain, nil
}

// Root resolves the chain and returns its most ancestral template.
func (w *Walker) Root(qualified string) (*types.TemplateInfo, error) {
	chain, err := w.Chain(qualified)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

func reverse(chain []*types.TemplateInfo) {
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
}
