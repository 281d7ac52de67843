// SPDX-License-Identifier: MPL-2.0

// Package build turns a validated recipe into an ordered chain of cached
// layers. Each layer is the committed result of exactly one provisioning
// step applied on top of its parent; layer identity is a pure function of
// (parent identity, step content hash), so two builds that share a prefix
// of identical steps share the corresponding layer artifacts.
package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// shortIDLen is how many hex digits of a layer ID appear in image tags and
// log lines. 12 matches what container engines display for image IDs.
const shortIDLen = 12

// Layer is one node in the build chain. The zero value is not meaningful;
// layers are constructed with NewBaseLayer and ChildLayer so the ID is
// always derived, never assigned.
type Layer struct {
	// ID is the content-addressed identity (64 hex digits).
	ID string

	// Parent is the parent layer's ID; empty for the base layer.
	Parent string

	// StepName names the step that produced this layer ("base" for the
	// base layer).
	StepName string

	// StepHash is the content hash of the producing step; for the base
	// layer it is the pinned image digest.
	StepHash string
}

// NewBaseLayer derives the root of a layer chain from a pinned base image
// digest. The same digest always yields the same base layer.
func NewBaseLayer(imageDigest string) Layer {
	return Layer{
		ID:       layerID("", imageDigest),
		StepName: "base",
		StepHash: imageDigest,
	}
}

// ChildLayer derives the layer a step would produce on top of parent. The
// derivation is pure: no build has to run for the ID to be known, which is
// what makes cache lookups possible before any work happens.
func ChildLayer(parent Layer, stepName, stepHash string) Layer {
	return Layer{
		ID:       layerID(parent.ID, stepHash),
		Parent:   parent.ID,
		StepName: stepName,
		StepHash: stepHash,
	}
}

// ShortID returns the abbreviated layer ID used in tags and logs.
func (l Layer) ShortID() string {
	if len(l.ID) < shortIDLen {
		return l.ID
	}
	return l.ID[:shortIDLen]
}

// IsBase reports whether this is the root of the chain.
func (l Layer) IsBase() bool { return l.Parent == "" }

func layerID(parent, stepHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", parent, stepHash)
	return hex.EncodeToString(h.Sum(nil))
}
