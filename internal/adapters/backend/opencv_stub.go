//go:build !opencv

package backend

import (
	"context"
	"fmt"
	"image"

	"upscaler/internal/core/domain"
)

// OpenCV placeholder for builds without the opencv tag. It registers
// like the real backend but always reports unavailable, so the
// dispatcher skips it and tier tables keep working unchanged.
type OpenCV struct{}

func NewOpenCV(_ string) *OpenCV {
	return &OpenCV{}
}

func (o *OpenCV) Name() string {
	return domain.BackendOpenCV
}

func (o *OpenCV) IsAvailable(_ context.Context) error {
	return fmt.Errorf("%w: built without opencv support", domain.ErrBackendUnavailable)
}

func (o *OpenCV) ScaleRange() (float64, float64) {
	return 1.0, 16.0
}

func (o *OpenCV) Upscale(_ context.Context, _ image.Image, _ float64) (image.Image, error) {
	return nil, fmt.Errorf("%w: built without opencv support", domain.ErrBackendUnavailable)
}
