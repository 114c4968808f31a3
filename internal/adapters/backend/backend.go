// Package backend contains the concrete upscaling implementations: the
// always-available classical resampler, the optional OpenCV and ONNX
// local backends, and the remote web-API backends.
package backend

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// targetSize computes the output dimensions for a scale factor,
// rounding rather than rejecting non-integer factors.
func targetSize(img image.Image, scale float64) (int, int) {
	w := int(math.Round(float64(img.Bounds().Dx()) * scale))
	h := int(math.Round(float64(img.Bounds().Dy()) * scale))
	return w, h
}

// normalizeSize resizes a backend result to the exact requested
// dimensions. Remote APIs with fixed integral factors return larger
// frames for fractional requests; resampling them down keeps the
// dimension contract.
func normalizeSize(img image.Image, w, h int) image.Image {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func encodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("error encoding image to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding backend output: %w", err)
	}
	return img, nil
}
