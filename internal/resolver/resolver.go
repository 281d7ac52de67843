// SPDX-License-Identifier: MPL-2.0

// Package resolver pins recipe base specs to immutable base images. Given a
// (runtime, version, digest) triple it validates the reference, fetches the
// image when needed, and returns a digest-pinned BaseImage that forms the
// root of the layer graph. Resolution is deterministic: the same pinned
// triple always yields the same BaseImage.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/distribution/reference"
	digest "github.com/opencontainers/go-digest"

	"strata/pkg/recipe"
)

// ErrResolution is the sentinel error wrapped by ResolutionError.
var ErrResolution = errors.New("base image resolution failed")

// versionPrefix extracts the numeric version from an image tag, ignoring a
// variant suffix ("3.9-slim" -> "3.9").
var versionPrefix = regexp.MustCompile(`^v?(\d+(?:\.\d+){0,2})`)

type (
	// ImageService is the engine subset the resolver needs.
	ImageService interface {
		Pull(ctx context.Context, ref string) error
		ImageExists(ctx context.Context, ref string) (bool, error)
		ImageDigest(ctx context.Context, ref string) (string, error)
	}

	// BaseImage is an immutable, digest-pinned root snapshot.
	BaseImage struct {
		// Reference is the canonical pinned reference ("repo:tag@sha256:...").
		Reference string
		// Runtime is the image repository the recipe requested.
		Runtime string
		// Version is the requested tag.
		Version string
		// Digest is the content digest all layers trace ownership to.
		Digest digest.Digest
	}

	// ResolutionError is returned when a base spec cannot be pinned.
	ResolutionError struct {
		Spec   recipe.BaseSpec
		Reason string
		Cause  error
	}

	// Resolver pins base specs using a container engine for fetches.
	Resolver struct {
		images ImageService
	}
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot resolve base %s: %s: %v", e.Spec.Reference(), e.Reason, e.Cause)
	}
	return fmt.Sprintf("cannot resolve base %s: %s", e.Spec.Reference(), e.Reason)
}

// Unwrap returns ErrResolution so callers can use errors.Is; the underlying
// cause remains reachable through the error chain.
func (e *ResolutionError) Unwrap() error { return ErrResolution }

// NewResolver creates a Resolver backed by the given image service.
func NewResolver(images ImageService) *Resolver {
	return &Resolver{images: images}
}

// Resolve pins a base spec to an immutable BaseImage. A digest-pinned spec
// is fetched by digest; an unpinned spec is fetched by tag and then pinned
// to whatever digest the fetch produced.
func (r *Resolver) Resolve(ctx context.Context, spec recipe.BaseSpec) (*BaseImage, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	ref := spec.Reference()
	exists, err := r.images.ImageExists(ctx, ref)
	if err != nil {
		return nil, &ResolutionError{Spec: spec, Reason: "engine query failed", Cause: err}
	}
	if !exists {
		if err := r.images.Pull(ctx, ref); err != nil {
			return nil, &ResolutionError{Spec: spec, Reason: "image unavailable", Cause: err}
		}
	}

	if spec.Pinned() {
		return &BaseImage{
			Reference: ref,
			Runtime:   spec.Runtime,
			Version:   spec.Version,
			Digest:    digest.Digest(spec.Digest),
		}, nil
	}

	raw, err := r.images.ImageDigest(ctx, ref)
	if err != nil {
		return nil, &ResolutionError{Spec: spec, Reason: "cannot pin digest", Cause: err}
	}
	dgst, err := digest.Parse(raw)
	if err != nil {
		return nil, &ResolutionError{Spec: spec, Reason: "engine reported malformed digest", Cause: err}
	}

	pinned := spec
	pinned.Digest = dgst.String()
	return &BaseImage{
		Reference: pinned.Reference(),
		Runtime:   spec.Runtime,
		Version:   spec.Version,
		Digest:    dgst,
	}, nil
}

// ValidateSpec checks the triple before any fetch happens: the repository
// must be a well-formed reference, the version must follow the runtime's
// published (semver-style) version scheme, and a digest pin must parse.
func ValidateSpec(spec recipe.BaseSpec) error {
	if spec.Runtime == "" {
		return &ResolutionError{Spec: spec, Reason: "runtime is empty"}
	}
	if spec.Version == "" {
		return &ResolutionError{Spec: spec, Reason: "version is empty"}
	}

	if _, err := reference.ParseNormalizedNamed(spec.Runtime); err != nil {
		return &ResolutionError{Spec: spec, Reason: "malformed runtime reference", Cause: err}
	}

	m := versionPrefix.FindStringSubmatch(spec.Version)
	if m == nil {
		return &ResolutionError{Spec: spec, Reason: fmt.Sprintf("version %q does not match the runtime's version scheme", spec.Version)}
	}
	if _, err := semver.ParseTolerant(m[1]); err != nil {
		return &ResolutionError{Spec: spec, Reason: fmt.Sprintf("version %q does not match the runtime's version scheme", spec.Version), Cause: err}
	}

	if spec.Digest != "" {
		if _, err := digest.Parse(spec.Digest); err != nil {
			return &ResolutionError{Spec: spec, Reason: "malformed digest", Cause: err}
		}
	}

	// Tags may not contain the separators a full reference uses.
	if strings.ContainsAny(spec.Version, "@/") {
		return &ResolutionError{Spec: spec, Reason: fmt.Sprintf("version %q is not a valid tag", spec.Version)}
	}

	return nil
}
