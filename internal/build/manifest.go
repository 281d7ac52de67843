// SPDX-License-Identifier: MPL-2.0

package build

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LockFileName is the manifest written beside the recipe after a
// successful build.
const LockFileName = "strata.lock.toml"

type (
	// LockFile records what a build produced: the pinned base, every layer
	// in chain order and the finished artifact reference. A later build
	// reads it to report drift and prune uses it as the keep set.
	LockFile struct {
		Version     int         `toml:"version"`
		GeneratedAt time.Time   `toml:"generated_at"`
		Recipe      string      `toml:"recipe"`
		Base        LockBase    `toml:"base"`
		Layers      []LockLayer `toml:"layers,omitempty"`
		Image       string      `toml:"image,omitempty"`
	}

	// LockBase is the pinned base image the chain descends from.
	LockBase struct {
		Reference string `toml:"reference"`
		Digest    string `toml:"digest"`
	}

	// LockLayer is one chain entry in execution order.
	LockLayer struct {
		Name        string `toml:"name"`
		ID          string `toml:"id"`
		StepHash    string `toml:"step_hash"`
		Synthesized bool   `toml:"synthesized,omitempty"`
		CacheHit    bool   `toml:"cache_hit,omitempty"`
	}
)

// lockFileVersion is bumped on incompatible manifest changes.
const lockFileVersion = 1

// WriteLockFile writes the manifest to path.
func WriteLockFile(path string, lock *LockFile) error {
	lock.Version = lockFileVersion
	data, err := toml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to encode lock file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadLockFile reads a manifest from path.
func ReadLockFile(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lock LockFile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to decode lock file: %w", err)
	}
	if lock.Version != lockFileVersion {
		return nil, fmt.Errorf("unsupported lock file version %d", lock.Version)
	}
	return &lock, nil
}

// KeepLayers reconstructs the layer chain a lock file describes, for use
// as a prune keep set.
func (l *LockFile) KeepLayers() []Layer {
	layers := make([]Layer, 0, len(l.Layers)+1)
	parent := NewBaseLayer(l.Base.Digest)
	layers = append(layers, parent)
	for _, entry := range l.Layers {
		parent = ChildLayer(parent, entry.Name, entry.StepHash)
		layers = append(layers, parent)
	}
	return layers
}
