//go:build property
// +build property

package provider

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/vellum/internal/types"
)

// assetPlan describes which assets exist along a generated chain and which
// chain members share an ancestor's file instead of owning one.
type assetPlan struct {
	depth int
	// css[i]/js[i]: -2 absent, -1 own file, j >= 0 shares member j's file
	css []int
	js  []int
}

func planGen() gopter.Gen {
	return gen.IntRange(1, 10).FlatMap(func(v interface{}) gopter.Gen {
		depth := v.(int)
		return gen.SliceOfN(2*depth, gen.IntRange(-2, depth-1)).Map(func(raw []int) assetPlan {
			plan := assetPlan{depth: depth, css: make([]int, depth), js: make([]int, depth)}
			for i := 0; i < depth; i++ {
				plan.css[i] = clampShare(raw[i], i)
				plan.js[i] = clampShare(raw[depth+i], i)
			}
			return plan
		})
	}, reflect.TypeOf(assetPlan{}))
}

// clampShare keeps share targets ancestral: member i may only share with a
// strict ancestor j < i.
func clampShare(raw, i int) int {
	if raw >= i {
		return -1
	}
	return raw
}

func buildFixtures(plan assetPlan) (*fakeChains, *fakeLocator, *fakeTokens, string) {
	chain := make([]*types.TemplateInfo, plan.depth)
	for i := range chain {
		extends := ""
		if i > 0 {
			extends = chain[i-1].Qualified()
		}
		chain[i] = &types.TemplateInfo{
			App:     fmt.Sprintf("app%d", i),
			Name:    fmt.Sprintf("t%d.html", i),
			Extends: extends,
		}
	}
	leaf := chain[plan.depth-1].Qualified()

	refs := make(map[string]map[types.AssetKind]types.AssetRef)
	for i, t := range chain {
		byKind := make(map[types.AssetKind]types.AssetRef)
		if owner := resolveOwner(plan.css, i); owner >= 0 {
			byKind[types.AssetCSS] = ref(chain[owner], types.AssetCSS)
		}
		if owner := resolveOwner(plan.js, i); owner >= 0 {
			byKind[types.AssetJS] = ref(chain[owner], types.AssetJS)
		}
		refs[t.Qualified()] = byKind
	}

	chains := &fakeChains{chains: map[string][]*types.TemplateInfo{leaf: chain}}
	locator := &fakeLocator{refs: refs}
	tokens := &fakeTokens{tokens: tokensFor(refs)}
	return chains, locator, tokens, leaf
}

// resolveOwner follows share links until the owning member, or -1 when the
// member (or its share target, transitively) has no asset.
func resolveOwner(plan []int, i int) int {
	for {
		switch plan[i] {
		case -2:
			return -1
		case -1:
			return i
		default:
			i = plan[i]
		}
	}
}

// TestBuilderProperties tests invariant properties of link set assembly
func TestBuilderProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no duplicate (kind, path) pairs", prop.ForAll(
		func(plan assetPlan) bool {
			chains, locator, tokens, leaf := buildFixtures(plan)
			set, err := NewBuilder(chains, locator, tokens, "", nil, nil).Build(context.Background(), leaf)
			if err != nil {
				return false
			}
			seen := make(map[string]bool)
			for _, e := range set {
				key := e.Ref.Kind.String() + "|" + e.Ref.AbsolutePath
				if seen[key] {
					return false
				}
				seen[key] = true
			}
			return true
		},
		planGen(),
	))

	properties.Property("stylesheets precede scripts, each kind chain-ordered", prop.ForAll(
		func(plan assetPlan) bool {
			chains, locator, tokens, leaf := buildFixtures(plan)
			builder := NewBuilder(chains, locator, tokens, "", nil, nil)
			set, err := builder.Build(context.Background(), leaf)
			if err != nil {
				return false
			}
			sawJS := false
			lastPos := map[types.AssetKind]int{types.AssetCSS: -1, types.AssetJS: -1}
			for _, e := range set {
				if e.Ref.Kind == types.AssetJS {
					sawJS = true
				} else if sawJS {
					return false
				}
				pos := chainPos(e.Ref.Template)
				if pos < lastPos[e.Ref.Kind] {
					return false
				}
				lastPos[e.Ref.Kind] = pos
			}
			return true
		},
		planGen(),
	))

	properties.Property("every reachable asset appears exactly once with a token", prop.ForAll(
		func(plan assetPlan) bool {
			chains, locator, tokens, leaf := buildFixtures(plan)
			set, err := NewBuilder(chains, locator, tokens, "", nil, nil).Build(context.Background(), leaf)
			if err != nil {
				return false
			}

			want := make(map[string]bool)
			for i := 0; i < plan.depth; i++ {
				if owner := resolveOwner(plan.css, i); owner >= 0 {
					want["css|"+fmt.Sprintf("app%d", owner)] = true
				}
				if owner := resolveOwner(plan.js, i); owner >= 0 {
					want["js|"+fmt.Sprintf("app%d", owner)] = true
				}
			}

			got := make(map[string]bool)
			for _, e := range set {
				if e.Token == "" {
					return false
				}
				got[e.Ref.Kind.String()+"|"+e.Ref.App] = true
			}
			return len(got) == len(want) && allIn(got, want)
		},
		planGen(),
	))

	properties.Property("rebuilding yields the identical set", prop.ForAll(
		func(plan assetPlan) bool {
			chains, locator, tokens, leaf := buildFixtures(plan)
			builder := NewBuilder(chains, locator, tokens, "", nil, nil)

			first, err1 := builder.Build(context.Background(), leaf)
			second, err2 := builder.Build(context.Background(), leaf)
			if err1 != nil || err2 != nil || len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i] != second[i] {
					return false
				}
			}
			return true
		},
		planGen(),
	))

	properties.TestingRun(t)
}

// chainPos recovers the chain index from the synthetic template name appN/tN.html.
func chainPos(qualified string) int {
	var pos int
	fmt.Sscanf(qualified, "app%d/", &pos)
	return pos
}

func allIn(got, want map[string]bool) bool {
	for k := range got {
		if !want[k] {
			return false
		}
	}
	return true
}
