package service

import (
	"image"
	"math"
)

// bilateralFilter smooths noise while preserving edges by weighting
// each neighbor with the product of a spatial gaussian and a color
// gaussian, matching the cv2.bilateralFilter parameterization
// (diameter, sigma color, sigma space).
func bilateralFilter(img *image.NRGBA, diameter int, sigmaColor, sigmaSpace float64) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	radius := diameter / 2
	// The sampled window is always odd-sided, regardless of whether the
	// configured diameter is even.
	side := 2*radius + 1

	spatial := make([]float64, side*side)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			spatial[(dy+radius)*side+(dx+radius)] = math.Exp(-d2 / (2 * sigmaSpace * sigmaSpace))
		}
	}

	// Color weights indexed by the summed per-channel difference, the
	// same exp table OpenCV precomputes for 8-bit input.
	var colorWeight [3*255 + 1]float64
	for d := range colorWeight {
		colorWeight[d] = math.Exp(-float64(d*d) / (2 * sigmaColor * sigmaColor))
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ci := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			cr := int(img.Pix[ci])
			cg := int(img.Pix[ci+1])
			cb := int(img.Pix[ci+2])

			var sumR, sumG, sumB, sumW float64

			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}

					ni := img.PixOffset(bounds.Min.X+nx, bounds.Min.Y+ny)
					nr := int(img.Pix[ni])
					ng := int(img.Pix[ni+1])
					nb := int(img.Pix[ni+2])

					diff := abs(nr-cr) + abs(ng-cg) + abs(nb-cb)
					weight := spatial[(dy+radius)*side+(dx+radius)] * colorWeight[diff]

					sumR += weight * float64(nr)
					sumG += weight * float64(ng)
					sumB += weight * float64(nb)
					sumW += weight
				}
			}

			di := out.PixOffset(x, y)
			out.Pix[di] = clampByte(sumR / sumW)
			out.Pix[di+1] = clampByte(sumG / sumW)
			out.Pix[di+2] = clampByte(sumB / sumW)
			out.Pix[di+3] = img.Pix[ci+3]
		}
	}

	return out
}
