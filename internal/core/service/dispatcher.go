package service

import (
	"context"
	"fmt"
	"image"
	"math"

	"upscaler/internal/core/domain"
	"upscaler/internal/core/port"

	"github.com/rs/zerolog/log"
)

// UpscaleDispatcher tries the backends of the requested quality tier in
// priority order and returns the first valid result. Backend failures
// never propagate; the only surfaced error is domain.ErrInvalidInput.
type UpscaleDispatcher struct {
	tiers        Tiers
	pipeline     *Pipeline
	tracker      port.Tracker
	maxDimension int
	maxScale     float64
}

func NewUpscaleDispatcher(tiers Tiers, pipeline *Pipeline, tracker port.Tracker,
	maxDimension int, maxScale float64) *UpscaleDispatcher {
	if maxDimension <= 0 {
		maxDimension = domain.DefaultMaxDimension
	}
	if maxScale <= 1.0 {
		maxScale = domain.DefaultMaxScale
	}

	return &UpscaleDispatcher{tiers: tiers, pipeline: pipeline, tracker: tracker,
		maxDimension: maxDimension, maxScale: maxScale}
}

func (d *UpscaleDispatcher) Upscale(ctx context.Context, img image.Image,
	req domain.UpscaleRequest) (*domain.UpscaleResult, error) {
	if err := d.validate(img, req.Scale); err != nil {
		return nil, err
	}

	candidates, ok := d.tiers.Candidates(req.Tier)
	if !ok {
		return nil, fmt.Errorf("%w: unknown quality tier %q", domain.ErrInvalidInput, req.Tier)
	}

	l := log.With().
		Float64("scale", req.Scale).
		Str("tier", string(req.Tier)).
		Logger()

	var attempts []domain.Attempt

	for _, b := range candidates {
		name := b.Name()

		if min, max := b.ScaleRange(); req.Scale < min || req.Scale > max {
			reason := fmt.Sprintf("scale %.2f outside supported range [%.1f, %.1f]", req.Scale, min, max)
			l.Debug().Str("backend", name).Msg(reason)
			attempts = append(attempts, domain.Attempt{Backend: name, Reason: reason})
			continue
		}

		if err := checkAvailable(ctx, b); err != nil {
			l.Debug().Str("backend", name).Err(err).Msg("backend unavailable, skipping")
			attempts = append(attempts, domain.Attempt{Backend: name, Reason: err.Error()})
			continue
		}

		out, err := invoke(ctx, b, img, req.Scale)
		if err == nil {
			err = validateOutput(img, out, req.Scale)
		}
		if err != nil {
			l.Warn().Str("backend", name).Err(err).Msg("backend failed, trying next candidate")
			d.tracker.Failure(name)
			attempts = append(attempts, domain.Attempt{Backend: name, Reason: err.Error()})
			continue
		}

		d.tracker.Win(name)
		l.Info().Str("backend", name).Msg("upscale successful")

		if req.PostProcess {
			out = d.postProcess(out, req.Steps)
		}

		return &domain.UpscaleResult{Image: out, Backend: name, Attempts: attempts}, nil
	}

	// Unreachable when the tier table ends with the baseline backend;
	// the registry enforces that at startup.
	return nil, fmt.Errorf("%w: all %d candidates failed", domain.ErrBackendFailed, len(candidates))
}

func (d *UpscaleDispatcher) validate(img image.Image, scale float64) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", domain.ErrInvalidInput)
	}

	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return fmt.Errorf("%w: zero-area image", domain.ErrInvalidInput)
	}
	if bounds.Dx() > d.maxDimension || bounds.Dy() > d.maxDimension {
		return fmt.Errorf("%w: image exceeds maximum dimension of %d px", domain.ErrInvalidInput, d.maxDimension)
	}

	if math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: scale factor must be finite", domain.ErrInvalidInput)
	}
	if scale <= 1.0 || scale > d.maxScale {
		return fmt.Errorf("%w: scale factor %.2f not in (1.0, %.1f]", domain.ErrInvalidInput, scale, d.maxScale)
	}

	return nil
}

// postProcess never fails the call: a pipeline error or panic logs a
// warning and the unprocessed backend output is returned, never a
// half-applied chain.
func (d *UpscaleDispatcher) postProcess(img image.Image, steps *domain.PostProcessConfig) (out image.Image) {
	out = img
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("post-processing panicked, returning raw backend output")
			out = img
		}
	}()

	cfg := d.pipeline.Defaults()
	if steps != nil {
		cfg = *steps
	}

	processed, err := d.pipeline.Apply(img, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("post-processing failed, returning raw backend output")
		return img
	}

	return processed
}

// checkAvailable isolates panics in a backend's availability check.
func checkAvailable(ctx context.Context, b port.Backend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: availability check panicked: %v", domain.ErrBackendUnavailable, r)
		}
	}()

	return b.IsAvailable(ctx)
}

// invoke isolates panics in a backend invocation.
func invoke(ctx context.Context, b port.Backend, img image.Image, scale float64) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrBackendFailed, r)
		}
	}()

	return b.Upscale(ctx, img, scale)
}

// validateOutput rejects malformed backend output: nil images or
// dimensions off by more than one pixel from round(dim*scale).
func validateOutput(in, out image.Image, scale float64) error {
	if out == nil {
		return fmt.Errorf("%w: backend returned nil image", domain.ErrBackendFailed)
	}

	wantW := int(math.Round(float64(in.Bounds().Dx()) * scale))
	wantH := int(math.Round(float64(in.Bounds().Dy()) * scale))
	gotW := out.Bounds().Dx()
	gotH := out.Bounds().Dy()

	if abs(gotW-wantW) > 1 || abs(gotH-wantH) > 1 {
		return fmt.Errorf("%w: backend returned %dx%d, expected %dx%d",
			domain.ErrBackendFailed, gotW, gotH, wantW, wantH)
	}

	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
