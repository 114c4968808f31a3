package service

import (
	"fmt"
	"image"

	"upscaler/internal/core/domain"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// sharpenRadius is the unsharp-mask blur radius; the strength knob is
// the configurable factor.
const sharpenRadius = 2.0

// Pipeline applies the post-processing filter chain after a successful
// upscale: median denoise, CLAHE, bilateral smoothing, sharpening.
// Every step is individually toggleable and the order is fixed.
type Pipeline struct {
	defaults domain.PostProcessConfig
}

func NewPipeline(defaults domain.PostProcessConfig) *Pipeline {
	return &Pipeline{defaults: defaults}
}

func (p *Pipeline) Defaults() domain.PostProcessConfig {
	return p.defaults
}

// Apply runs the enabled steps in sequence. With every step disabled
// the input is returned unchanged. On an invalid configuration no step
// runs at all.
func (p *Pipeline) Apply(img image.Image, cfg domain.PostProcessConfig) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", domain.ErrInvalidInput)
	}
	if err := validatePostProcess(cfg); err != nil {
		return nil, err
	}

	out := img

	if cfg.Denoise {
		kernel := oddKernel(cfg.DenoiseKernel)
		out = effect.Median(out, float64(kernel))
	}

	if cfg.CLAHE {
		out = claheLuma(imaging.Clone(out), cfg.CLAHEClip, cfg.CLAHETiles)
	}

	if cfg.Bilateral {
		out = bilateralFilter(imaging.Clone(out), cfg.BilateralDiameter, cfg.SigmaColor, cfg.SigmaSpace)
	}

	if cfg.Sharpen && cfg.SharpenFactor > 1.0 {
		out = effect.UnsharpMask(out, sharpenRadius, cfg.SharpenFactor-1.0)
	}

	return out, nil
}

func validatePostProcess(cfg domain.PostProcessConfig) error {
	if cfg.Denoise && cfg.DenoiseKernel < 2 {
		return fmt.Errorf("%w: median kernel size must be at least 2", domain.ErrInvalidInput)
	}
	if cfg.CLAHE && (cfg.CLAHEClip <= 0 || cfg.CLAHETiles < 1) {
		return fmt.Errorf("%w: CLAHE clip limit must be positive and tile grid at least 1", domain.ErrInvalidInput)
	}
	if cfg.Bilateral && (cfg.BilateralDiameter < 1 || cfg.SigmaColor <= 0 || cfg.SigmaSpace <= 0) {
		return fmt.Errorf("%w: bilateral diameter and sigmas must be positive", domain.ErrInvalidInput)
	}
	if cfg.Sharpen && cfg.SharpenFactor < 1.0 {
		return fmt.Errorf("%w: sharpen factor must be at least 1.0", domain.ErrInvalidInput)
	}

	return nil
}

// oddKernel bumps even kernel sizes to the next odd value, as the
// median filter requires odd sizes.
func oddKernel(size int) int {
	if size%2 == 0 {
		return size + 1
	}
	return size
}
