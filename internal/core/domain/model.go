package domain

import (
	"fmt"
	"image"
	"strings"
)

type QualityTier string

const (
	TierFast    QualityTier = "fast"
	TierHigh    QualityTier = "high"
	TierHighest QualityTier = "highest"
)

// ParseQualityTier maps a user-supplied tier name to a QualityTier.
func ParseQualityTier(s string) (QualityTier, error) {
	switch QualityTier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFast:
		return TierFast, nil
	case TierHigh:
		return TierHigh, nil
	case TierHighest:
		return TierHighest, nil
	default:
		return "", fmt.Errorf("%w: unknown quality tier %q", ErrInvalidInput, s)
	}
}

// UpscaleRequest carries the per-call parameters for the dispatcher.
type UpscaleRequest struct {
	Scale       float64
	Tier        QualityTier
	PostProcess bool
	// Steps overrides the configured post-processing defaults when set.
	Steps *PostProcessConfig
}

// Attempt records a candidate backend that did not produce the result,
// and why.
type Attempt struct {
	Backend string `json:"backend"`
	Reason  string `json:"reason"`
}

// UpscaleResult is the dispatcher output: the upscaled image, the name
// of the backend that produced it, and the trail of candidates tried
// before it.
type UpscaleResult struct {
	Image    image.Image
	Backend  string
	Attempts []Attempt
}

// PostProcessConfig holds the per-step toggles and parameters of the
// post-processing pipeline. Steps apply in declaration order.
type PostProcessConfig struct {
	Denoise       bool
	DenoiseKernel int

	CLAHE     bool
	CLAHEClip float64
	// CLAHETiles is the tile grid size per axis.
	CLAHETiles int

	Bilateral         bool
	BilateralDiameter int
	SigmaColor        float64
	SigmaSpace        float64

	Sharpen       bool
	SharpenFactor float64
}

func DefaultPostProcessConfig() PostProcessConfig {
	return PostProcessConfig{
		Denoise:           true,
		DenoiseKernel:     3,
		CLAHE:             true,
		CLAHEClip:         2.0,
		CLAHETiles:        10,
		Bilateral:         true,
		BilateralDiameter: 9,
		SigmaColor:        75,
		SigmaSpace:        75,
		Sharpen:           true,
		SharpenFactor:     1.1,
	}
}

// Stat counts outcomes for one backend over the process lifetime.
type Stat struct {
	Wins     uint64 `json:"wins"`
	Failures uint64 `json:"failures"`
}

// BackendStatus is a point-in-time availability report for one backend.
type BackendStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// DiagnosticsReport is the payload served by the diagnostics endpoint.
type DiagnosticsReport struct {
	Backends []BackendStatus          `json:"backends"`
	Stats    map[string]Stat          `json:"stats"`
	Tiers    map[QualityTier][]string `json:"tiers"`
}
