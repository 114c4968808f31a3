package port

import (
	"context"
	"image"
)

type Backend interface {
	// Name returns the canonical backend name used in tier tables and
	// diagnostics.
	Name() string
	// IsAvailable reports whether the backend can run in the current
	// environment (dependencies present, endpoint configured). A nil
	// return means available; the check may be repeated per call since
	// availability can change between calls.
	IsAvailable(ctx context.Context) error
	// ScaleRange returns the inclusive range of scale factors the
	// backend supports.
	ScaleRange() (min, max float64)
	// Upscale magnifies the image by the given linear factor and
	// returns the result. Availability is necessary but not sufficient:
	// an invocation may still fail and the caller must treat any error
	// as non-fatal.
	Upscale(ctx context.Context, img image.Image, scale float64) (image.Image, error)
}

type BackendRegistry interface {
	// Register adds a backend to the registry under its Name.
	Register(backend Backend)
	// Get retrieves a registered backend by name or returns an error if
	// not found.
	Get(name string) (Backend, error)
	// ListBackends returns the names of all registered backends.
	ListBackends() []string
}
