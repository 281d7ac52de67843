// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"

	"github.com/charmbracelet/log"
)

type (
	// Cache answers "does the layer this step would produce already
	// exist?" before any work runs, and applies the step only on a miss.
	// It never evicts: reclamation happens exclusively through Prune.
	Cache struct {
		exec   Executor
		logger *log.Logger
		stats  CacheStats
	}

	// CacheStats counts lookup outcomes for one build.
	CacheStats struct {
		Hits   int
		Misses int
	}
)

// NewCache creates a cache over the given executor.
func NewCache(exec Executor, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{exec: exec, logger: logger}
}

// LookupOrApply returns the layer derived from (parent, stepHash), reusing
// the stored artifact when one exists and applying the step otherwise. The
// returned bool reports a cache hit. With force set, the lookup is skipped
// and the step always re-applies.
func (c *Cache) LookupOrApply(ctx context.Context, parent Layer, step PlannedStep, stepHash string, env map[string]string, force bool) (Layer, bool, error) {
	layer := ChildLayer(parent, step.Name, stepHash)

	if !force {
		exists, err := c.exec.Has(ctx, layer)
		if err != nil {
			return Layer{}, false, err
		}
		if exists {
			c.stats.Hits++
			c.logger.Debug("layer cache hit", "step", step.Name, "layer", layer.ShortID())
			return layer, true, nil
		}
	}

	c.stats.Misses++
	c.logger.Debug("layer cache miss", "step", step.Name, "layer", layer.ShortID())
	if err := c.exec.Apply(ctx, parent, layer, step.Step, env); err != nil {
		return Layer{}, false, err
	}
	return layer, false, nil
}

// Stats returns the lookup counters accumulated so far.
func (c *Cache) Stats() CacheStats { return c.stats }

// Prune removes every stored layer artifact not present in keep and
// returns the removed references. This is the only reclamation path.
func (c *Cache) Prune(ctx context.Context, keep []Layer) ([]string, error) {
	keepRefs := make(map[string]bool, len(keep))
	for _, l := range keep {
		keepRefs[c.exec.Ref(l)] = true
	}

	refs, err := c.exec.List(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, ref := range refs {
		if keepRefs[ref] {
			continue
		}
		if err := c.exec.Remove(ctx, ref); err != nil {
			return removed, err
		}
		c.logger.Info("pruned layer", "ref", ref)
		removed = append(removed, ref)
	}
	return removed, nil
}
