package domain

import "errors"

var (
	// ErrInvalidInput is the only error the dispatcher surfaces to
	// callers: malformed image, zero-area image, or an out-of-range
	// scale factor.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBackendUnavailable marks a backend that cannot run in the
	// current environment. Contained by the dispatcher.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendFailed marks a failure during a backend invocation.
	// Contained by the dispatcher.
	ErrBackendFailed = errors.New("backend invocation failed")
)

// Canonical backend names, shared between adapters, tier tables and
// diagnostics.
const (
	BackendClassical   = "classical"
	BackendOpenCV      = "opencv"
	BackendONNX        = "onnx"
	BackendRealESRGAN  = "realesrgan-api"
	BackendWaifu2x     = "waifu2x"
	BackendHuggingFace = "huggingface"
)

const (
	// DefaultMaxDimension bounds input images per side.
	DefaultMaxDimension = 4096
	// DefaultMaxScale bounds the requested magnification.
	DefaultMaxScale = 8.0
	DefaultScale    = 2.0
)
