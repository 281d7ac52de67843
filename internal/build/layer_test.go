// SPDX-License-Identifier: MPL-2.0

package build

import "testing"

func TestNewBaseLayerDeterministic(t *testing.T) {
	a := NewBaseLayer("sha256:aaaa")
	b := NewBaseLayer("sha256:aaaa")
	if a.ID != b.ID {
		t.Errorf("NewBaseLayer() not deterministic: %s != %s", a.ID, b.ID)
	}
	if !a.IsBase() {
		t.Error("IsBase() = false for base layer")
	}
	if a.StepName != "base" {
		t.Errorf("StepName = %q, want base", a.StepName)
	}

	c := NewBaseLayer("sha256:bbbb")
	if a.ID == c.ID {
		t.Error("different digests produced the same base layer ID")
	}
}

func TestChildLayerIdentity(t *testing.T) {
	base := NewBaseLayer("sha256:aaaa")

	l1 := ChildLayer(base, "install", "hash-1")
	l2 := ChildLayer(base, "install", "hash-1")
	if l1.ID != l2.ID {
		t.Errorf("ChildLayer() not deterministic: %s != %s", l1.ID, l2.ID)
	}
	if l1.Parent != base.ID {
		t.Errorf("Parent = %s, want %s", l1.Parent, base.ID)
	}
	if l1.IsBase() {
		t.Error("IsBase() = true for child layer")
	}

	// A different step hash on the same parent is a different layer.
	l3 := ChildLayer(base, "install", "hash-2")
	if l3.ID == l1.ID {
		t.Error("different step hashes produced the same layer ID")
	}

	// The same step hash on a different parent is a different layer.
	other := NewBaseLayer("sha256:bbbb")
	l4 := ChildLayer(other, "install", "hash-1")
	if l4.ID == l1.ID {
		t.Error("different parents produced the same layer ID")
	}
}

func TestLayerShortID(t *testing.T) {
	l := NewBaseLayer("sha256:aaaa")
	if len(l.ShortID()) != shortIDLen {
		t.Errorf("ShortID() length = %d, want %d", len(l.ShortID()), shortIDLen)
	}
	if l.ID[:shortIDLen] != l.ShortID() {
		t.Errorf("ShortID() = %s is not a prefix of ID %s", l.ShortID(), l.ID)
	}
}
