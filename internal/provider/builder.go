// Package provider assembles the per-template link sets and renders them as
// markup. It sits on top of the lineage walker, the asset locator, and the
// token cache: given a leaf template it produces the ordered, deduplicated,
// version-tokened list of stylesheet and script links the rendered page must
// carry, plus the context payload wiring for client script.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/vellum/internal/errors"
	"github.com/conneroisu/vellum/internal/logging"
	"github.com/conneroisu/vellum/internal/metrics"
	"github.com/conneroisu/vellum/internal/types"
)

// ChainSource resolves inheritance chains. The lineage walker satisfies it.
type ChainSource interface {
	Chain(qualified string) ([]*types.TemplateInfo, error)
}

// AssetSource locates conventional assets. The assets locator satisfies it.
type AssetSource interface {
	Locate(t *types.TemplateInfo, kind types.AssetKind) (types.AssetRef, bool)
}

// TokenSource computes version tokens. The token cache satisfies it.
type TokenSource interface {
	TokenFor(path string) (string, error)
}

// Builder produces link sets for leaf templates.
type Builder struct {
	chains  ChainSource
	locator AssetSource
	tokens  TokenSource
	base    string
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewBuilder wires a builder. base optionally names the site-wide base
// template; chains not rooted there produce a warning at build time.
// metrics may be nil.
func NewBuilder(chains ChainSource, locator AssetSource, tokens TokenSource, base string, logger logging.Logger, m *metrics.Metrics) *Builder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Builder{
		chains:  chains,
		locator: locator,
		tokens:  tokens,
		base:    base,
		logger:  logger.WithComponent("provider"),
		metrics: m,
	}
}

type dedupKey struct {
	kind types.AssetKind
	path string
}

// Build resolves the link set for the given leaf template. Entries are
// grouped by kind with stylesheets before scripts; within a kind they run
// root-first along the inheritance chain, so ancestral styling loads before
// descendant overrides and ancestral script executes first. An asset
// reached through several chain members appears once, at its most ancestral
// position. Unchanged inputs always produce the identical link set.
func (b *Builder) Build(ctx context.Context, leaf string) (types.LinkSet, error) {
	started := time.Now()
	set, err := b.build(ctx, leaf)
	if b.metrics != nil {
		b.metrics.LinkBuildDuration.Observe(time.Since(started).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		b.metrics.LinkBuilds.WithLabelValues(outcome).Inc()
	}
	return set, err
}

func (b *Builder) build(ctx context.Context, leaf string) (types.LinkSet, error) {
	chain, err := b.chains.Chain(leaf)
	if err != nil {
		return nil, err
	}

	if b.base != "" && chain[0].Qualified() != b.base {
		// Non-fatal: a page outside the site-wide base renders fine, it
		// just will not inherit the base assets the author may expect.
		b.logger.Warn(ctx, nil, "template chain does not reach the configured base",
			"template", leaf,
			"base", b.base,
			"root", chain[0].Qualified(),
		)
	}

	var set types.LinkSet
	seen := make(map[dedupKey]struct{})

	for _, kind := range types.Kinds {
		for _, t := range chain {
			ref, ok := b.locator.Locate(t, kind)
			if !ok {
				continue
			}

			key := dedupKey{kind: kind, path: ref.AbsolutePath}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			token, err := b.tokenWithRetry(ctx, t, kind, ref)
			if err != nil {
				return nil, err
			}
			if token == "" {
				// The asset vanished and did not come back: treat as absent.
				delete(seen, key)
				continue
			}

			set = append(set, types.LinkEntry{Ref: ref, Token: token})
			if b.metrics != nil {
				b.metrics.LinksEmitted.WithLabelValues(kind.String()).Inc()
			}
		}
	}

	return set, nil
}

// tokenWithRetry computes the version token for a located asset, retrying
// once through re-resolution when the file vanished between discovery and
// hashing. A clean disappearance (the asset is simply gone) returns an
// empty token with no error; a second vanish mid-race surfaces the error.
func (b *Builder) tokenWithRetry(ctx context.Context, t *types.TemplateInfo, kind types.AssetKind, ref types.AssetRef) (string, error) {
	token, err := b.tokens.TokenFor(ref.AbsolutePath)
	if err == nil {
		return token, nil
	}
	if !errors.IsAssetVanished(err) {
		return "", err
	}

	b.logger.Debug(ctx, "asset vanished, re-resolving",
		"path", ref.AbsolutePath,
		"template", t.Qualified(),
	)

	again, ok := b.locator.Locate(t, kind)
	if !ok {
		return "", nil
	}

	token, err = b.tokens.TokenFor(again.AbsolutePath)
	if err != nil {
		if errors.IsAssetVanished(err) {
			return "", fmt.Errorf("asset for %s flapping during build: %w", t.Qualified(), err)
		}
		return "", err
	}
	return token, nil
}
