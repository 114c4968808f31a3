package backend

import (
	"context"
	"image"
	"image/draw"

	"upscaler/internal/core/domain"

	"github.com/disintegration/imaging"
)

const (
	classicalMinScale = 1.0
	classicalMaxScale = 16.0
)

// Classical is the baseline backend: high-quality resampling with no
// external dependencies. It terminates every tier's candidate list and
// cannot fail for valid input.
type Classical struct {
	filter imaging.ResampleFilter
}

// NewClassical builds the baseline resizer. Recognized filters are
// lanczos, bicubic, bilinear and nearest; anything else falls back to
// lanczos.
func NewClassical(filter string) *Classical {
	f := imaging.Lanczos
	switch filter {
	case "bicubic":
		f = imaging.CatmullRom
	case "bilinear":
		f = imaging.Linear
	case "nearest":
		f = imaging.NearestNeighbor
	}

	return &Classical{filter: f}
}

func (c *Classical) Name() string {
	return domain.BackendClassical
}

func (c *Classical) IsAvailable(_ context.Context) error {
	return nil
}

func (c *Classical) ScaleRange() (float64, float64) {
	return classicalMinScale, classicalMaxScale
}

func (c *Classical) Upscale(_ context.Context, img image.Image, scale float64) (image.Image, error) {
	w, h := targetSize(img, scale)
	out := imaging.Resize(img, w, h, c.filter)

	// imaging always yields NRGBA; grayscale input keeps its channel
	// layout.
	if _, ok := img.(*image.Gray); ok {
		gray := image.NewGray(out.Bounds())
		draw.Draw(gray, gray.Bounds(), out, out.Bounds().Min, draw.Src)
		return gray, nil
	}

	return out, nil
}
