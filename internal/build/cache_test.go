// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"sort"
	"testing"

	"strata/pkg/recipe"
)

func TestCachePruneKeepsReferencedLayers(t *testing.T) {
	exec := newFakeExecutor()
	cache := NewCache(exec, nil)

	base := NewBaseLayer("sha256:aaaa")
	if err := exec.Materialize(context.Background(), base); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	step := func(name string) PlannedStep {
		return PlannedStep{Step: recipe.Step{Name: name, Commands: []string{"true"}}}
	}

	keep, _, err := cache.LookupOrApply(context.Background(), base, step("keep"), "hash-keep", nil, false)
	if err != nil {
		t.Fatalf("LookupOrApply() error = %v", err)
	}
	stale, _, err := cache.LookupOrApply(context.Background(), base, step("stale"), "hash-stale", nil, false)
	if err != nil {
		t.Fatalf("LookupOrApply() error = %v", err)
	}

	removed, err := cache.Prune(context.Background(), []Layer{base, keep})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	if len(removed) != 1 || removed[0] != exec.Ref(stale) {
		t.Errorf("removed = %v, want [%s]", removed, exec.Ref(stale))
	}
	if !exec.store[exec.Ref(keep)] {
		t.Error("kept layer was pruned")
	}
	if !exec.store[exec.Ref(base)] {
		t.Error("base layer was pruned")
	}
	if exec.store[exec.Ref(stale)] {
		t.Error("stale layer survived prune")
	}
}

func TestCachePruneNothingWithoutGarbage(t *testing.T) {
	exec := newFakeExecutor()
	cache := NewCache(exec, nil)

	base := NewBaseLayer("sha256:aaaa")
	if err := exec.Materialize(context.Background(), base); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	removed, err := cache.Prune(context.Background(), []Layer{base})
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
}

func TestCacheStatsCount(t *testing.T) {
	exec := newFakeExecutor()
	cache := NewCache(exec, nil)

	base := NewBaseLayer("sha256:aaaa")
	st := PlannedStep{Step: recipe.Step{Name: "s", Commands: []string{"true"}}}

	if _, hit, err := cache.LookupOrApply(context.Background(), base, st, "h", nil, false); err != nil || hit {
		t.Fatalf("first lookup: hit=%t err=%v, want miss", hit, err)
	}
	if _, hit, err := cache.LookupOrApply(context.Background(), base, st, "h", nil, false); err != nil || !hit {
		t.Fatalf("second lookup: hit=%t err=%v, want hit", hit, err)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}

	// Sanity: both lookups derived the same layer, so the store holds one
	// child plus nothing else.
	refs, _ := exec.List(context.Background())
	sort.Strings(refs)
	if len(refs) != 1 {
		t.Errorf("store refs = %v, want exactly one layer", refs)
	}
}
