package port

import (
	"context"
	"image"

	"upscaler/internal/core/domain"
)

type Dispatcher interface {
	// Upscale produces an upscaled image using the best available
	// backend for the requested tier. It returns an error only for
	// invalid input; backend failures are recorded in the result's
	// attempt trail instead.
	Upscale(ctx context.Context, img image.Image, req domain.UpscaleRequest) (*domain.UpscaleResult, error)
}

type Tracker interface {
	// Win counts a successful invocation for the named backend.
	Win(backend string)
	// Failure counts a failed invocation for the named backend.
	Failure(backend string)
	// Snapshot returns a copy of the per-backend counters.
	Snapshot() map[string]domain.Stat
}

type Diagnoser interface {
	// Report runs fresh availability checks on every registered backend
	// and bundles them with the usage stats and tier tables.
	Report(ctx context.Context) domain.DiagnosticsReport
}
