//go:build opencv

package backend

import (
	"context"
	"fmt"
	"image"

	"upscaler/internal/core/domain"

	"gocv.io/x/gocv"
)

// OpenCV resizes with the OpenCV interpolation kernels via gocv. It is
// compiled in only with the opencv build tag since gocv needs the
// OpenCV shared libraries at build time.
type OpenCV struct {
	interpolation gocv.InterpolationFlags
}

// NewOpenCV builds the OpenCV classical backend. Recognized methods are
// lanczos4 (default) and cubic.
func NewOpenCV(method string) *OpenCV {
	interp := gocv.InterpolationLanczos4
	if method == "cubic" {
		interp = gocv.InterpolationCubic
	}

	return &OpenCV{interpolation: interp}
}

func (o *OpenCV) Name() string {
	return domain.BackendOpenCV
}

func (o *OpenCV) IsAvailable(_ context.Context) error {
	m := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	defer m.Close()

	if m.Empty() {
		return fmt.Errorf("%w: OpenCV mat allocation failed", domain.ErrBackendUnavailable)
	}

	return nil
}

func (o *OpenCV) ScaleRange() (float64, float64) {
	return 1.0, 16.0
}

func (o *OpenCV) Upscale(_ context.Context, img image.Image, scale float64) (image.Image, error) {
	src, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("error converting image to mat: %w", err)
	}
	defer src.Close()

	w, h := targetSize(img, scale)

	dst := gocv.NewMat()
	defer dst.Close()

	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, o.interpolation)

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("error converting mat to image: %w", err)
	}

	return out, nil
}
