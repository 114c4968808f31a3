package backend

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"upscaler/internal/core/domain"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxInputName  = "input"
	onnxOutputName = "output"
)

// ortEnvOnce guards the process-wide onnxruntime environment, which
// may be initialized at most once.
var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

// ONNX runs a local super-resolution model (Real-ESRGAN export) through
// onnxruntime. The session is heavyweight, so it is lazily created at
// most once under a mutex and reused across calls.
type ONNX struct {
	modelPath   string
	libraryPath string
	modelScale  int

	mutex   sync.Mutex
	session *ort.DynamicAdvancedSession
}

func NewONNX(modelPath, libraryPath string, modelScale int) *ONNX {
	if modelScale < 1 {
		modelScale = 4
	}

	return &ONNX{modelPath: modelPath, libraryPath: libraryPath, modelScale: modelScale}
}

func (o *ONNX) Name() string {
	return domain.BackendONNX
}

func (o *ONNX) IsAvailable(_ context.Context) error {
	if o.modelPath == "" {
		return fmt.Errorf("%w: no ONNX model configured", domain.ErrBackendUnavailable)
	}

	if _, err := os.Stat(o.modelPath); err != nil {
		return fmt.Errorf("%w: model weights not found: %v", domain.ErrBackendUnavailable, err)
	}

	if o.libraryPath != "" {
		if _, err := os.Stat(o.libraryPath); err != nil {
			return fmt.Errorf("%w: onnxruntime library not found: %v", domain.ErrBackendUnavailable, err)
		}
	}

	return nil
}

func (o *ONNX) ScaleRange() (float64, float64) {
	return 1.0, float64(o.modelScale)
}

// Upscale runs the model at its fixed factor and resamples down to the
// exact requested dimensions when the request is fractional.
func (o *ONNX) Upscale(ctx context.Context, img image.Image, scale float64) (image.Image, error) {
	session, err := o.ensureSession()
	if err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(h), int64(w)), imageToCHW(src))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}

	o.mutex.Lock()
	err = session.Run([]ort.Value{input}, outputs)
	o.mutex.Unlock()
	if err != nil {
		return nil, fmt.Errorf("error running ONNX session: %w", err)
	}

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected ONNX output type", domain.ErrBackendFailed)
	}
	defer tensor.Destroy()

	out, err := chwToImage(tensor.GetShape(), tensor.GetData())
	if err != nil {
		return nil, err
	}

	tw, th := targetSize(img, scale)
	return normalizeSize(out, tw, th), nil
}

// ensureSession lazily initializes the runtime environment and the
// model session, at most once under concurrent first use.
func (o *ONNX) ensureSession() (*ort.DynamicAdvancedSession, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.session != nil {
		return o.session, nil
	}

	ortEnvOnce.Do(func() {
		if o.libraryPath != "" {
			ort.SetSharedLibraryPath(o.libraryPath)
		}
		ortEnvErr = ort.InitializeEnvironment()
	})
	if ortEnvErr != nil {
		return nil, fmt.Errorf("%w: onnxruntime environment: %v", domain.ErrBackendUnavailable, ortEnvErr)
	}

	log.Info().Str("model", o.modelPath).Msg("loading ONNX model")

	session, err := ort.NewDynamicAdvancedSession(o.modelPath,
		[]string{onnxInputName}, []string{onnxOutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating ONNX session: %w", err)
	}

	o.session = session
	return session, nil
}

// imageToCHW packs pixels as a normalized NCHW float32 tensor.
func imageToCHW(img *image.NRGBA) []float32 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	plane := w * h

	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(img.Bounds().Min.X+x, img.Bounds().Min.Y+y)
			p := y*w + x
			data[p] = float32(img.Pix[i]) / 255.0
			data[plane+p] = float32(img.Pix[i+1]) / 255.0
			data[2*plane+p] = float32(img.Pix[i+2]) / 255.0
		}
	}

	return data
}

func chwToImage(shape ort.Shape, data []float32) (*image.NRGBA, error) {
	if len(shape) != 4 || shape[1] != 3 {
		return nil, fmt.Errorf("%w: unexpected ONNX output shape %v", domain.ErrBackendFailed, shape)
	}

	h := int(shape[2])
	w := int(shape[3])
	plane := w * h
	if len(data) < 3*plane {
		return nil, fmt.Errorf("%w: short ONNX output buffer", domain.ErrBackendFailed)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*w + x
			i := img.PixOffset(x, y)
			img.Pix[i] = clampFloat(data[p])
			img.Pix[i+1] = clampFloat(data[plane+p])
			img.Pix[i+2] = clampFloat(data[2*plane+p])
			img.Pix[i+3] = 255
		}
	}

	return img, nil
}

func clampFloat(v float32) uint8 {
	scaled := math.Round(float64(v) * 255.0)
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}
