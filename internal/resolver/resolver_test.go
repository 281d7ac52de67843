// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"strata/pkg/recipe"
)

const testDigest = "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// fakeImages is an in-memory ImageService.
type fakeImages struct {
	present map[string]bool
	digests map[string]string
	pullErr error
	pulls   []string
}

func (f *fakeImages) Pull(_ context.Context, ref string) error {
	f.pulls = append(f.pulls, ref)
	if f.pullErr != nil {
		return f.pullErr
	}
	if f.present == nil {
		f.present = make(map[string]bool)
	}
	f.present[ref] = true
	return nil
}

func (f *fakeImages) ImageExists(_ context.Context, ref string) (bool, error) {
	return f.present[ref], nil
}

func (f *fakeImages) ImageDigest(_ context.Context, ref string) (string, error) {
	d, ok := f.digests[ref]
	if !ok {
		return "", errors.New("no digest recorded")
	}
	return d, nil
}

func TestResolvePinnedSpec(t *testing.T) {
	images := &fakeImages{}
	spec := recipe.BaseSpec{Runtime: "python", Version: "3.9-slim", Digest: testDigest}

	base, err := NewResolver(images).Resolve(context.Background(), spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if base.Digest.String() != testDigest {
		t.Errorf("Digest = %s, want %s", base.Digest, testDigest)
	}
	if base.Reference != "python:3.9-slim@"+testDigest {
		t.Errorf("Reference = %q", base.Reference)
	}
	if len(images.pulls) != 1 {
		t.Errorf("expected exactly one pull, got %v", images.pulls)
	}

	// Already-present images are not fetched again.
	if _, err := NewResolver(images).Resolve(context.Background(), spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images.pulls) != 1 {
		t.Errorf("expected no second pull, got %v", images.pulls)
	}
}

func TestResolveUnpinnedSpecPinsDigest(t *testing.T) {
	images := &fakeImages{
		present: map[string]bool{"python:3.9-slim": true},
		digests: map[string]string{"python:3.9-slim": testDigest},
	}
	spec := recipe.BaseSpec{Runtime: "python", Version: "3.9-slim"}

	base, err := NewResolver(images).Resolve(context.Background(), spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.Digest.String() != testDigest {
		t.Errorf("Digest = %s, want %s", base.Digest, testDigest)
	}
	if !strings.HasSuffix(base.Reference, "@"+testDigest) {
		t.Errorf("Reference should carry the pinned digest: %q", base.Reference)
	}
}

func TestResolveDeterministic(t *testing.T) {
	images := &fakeImages{}
	spec := recipe.BaseSpec{Runtime: "python", Version: "3.9-slim", Digest: testDigest}
	r := NewResolver(images)

	a, err := r.Resolve(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	if *a != *b {
		t.Errorf("resolution is not deterministic: %+v vs %+v", a, b)
	}
}

func TestResolveUnavailableImage(t *testing.T) {
	images := &fakeImages{pullErr: errors.New("manifest unknown")}
	spec := recipe.BaseSpec{Runtime: "python", Version: "3.9-slim", Digest: testDigest}

	_, err := NewResolver(images).Resolve(context.Background(), spec)
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("expected ErrResolution, got %v", err)
	}

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %T", err)
	}
	if resErr.Reason != "image unavailable" {
		t.Errorf("Reason = %q", resErr.Reason)
	}
}

func TestValidateSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    recipe.BaseSpec
		wantErr bool
	}{
		{"plain semver tag", recipe.BaseSpec{Runtime: "python", Version: "3.9"}, false},
		{"variant suffix", recipe.BaseSpec{Runtime: "python", Version: "3.9-slim"}, false},
		{"v-prefixed", recipe.BaseSpec{Runtime: "golang", Version: "v1.25.0"}, false},
		{"registry path", recipe.BaseSpec{Runtime: "ghcr.io/acme/base", Version: "1.0"}, false},
		{"empty runtime", recipe.BaseSpec{Version: "1.0"}, true},
		{"empty version", recipe.BaseSpec{Runtime: "python"}, true},
		{"non-numeric version", recipe.BaseSpec{Runtime: "python", Version: "latest"}, true},
		{"malformed digest", recipe.BaseSpec{Runtime: "python", Version: "3.9", Digest: "sha256:short"}, true},
		{"uppercase runtime", recipe.BaseSpec{Runtime: "Python", Version: "3.9"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpec(tt.spec)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if err != nil && !errors.Is(err, ErrResolution) {
				t.Errorf("validation errors must wrap ErrResolution: %v", err)
			}
		})
	}
}
