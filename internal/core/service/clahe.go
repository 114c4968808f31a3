package service

import (
	"image"
	"math"
)

// claheLuma applies contrast-limited adaptive histogram equalization to
// the luma channel, leaving chroma ratios intact. Parameterized like
// OpenCV's CLAHE: a clip limit and a square tile grid. Luma is BT.601.
func claheLuma(img *image.NRGBA, clip float64, tiles int) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if tiles > w {
		tiles = w
	}
	if tiles > h {
		tiles = h
	}
	if tiles < 1 {
		tiles = 1
	}

	luma := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			r := int(img.Pix[i])
			g := int(img.Pix[i+1])
			b := int(img.Pix[i+2])
			luma[y*w+x] = uint8((299*r + 587*g + 114*b) / 1000)
		}
	}

	luts := buildTileLUTs(luma, w, h, tiles, clip)

	tileW := float64(w) / float64(tiles)
	tileH := float64(h) / float64(tiles)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			oldY := luma[y*w+x]
			newY := interpolateLUT(luts, tiles, tileW, tileH, x, y, oldY)

			src := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			dst := out.PixOffset(x, y)
			scaleLuma(img.Pix[src:src+4], out.Pix[dst:dst+4], oldY, newY)
		}
	}

	return out
}

// buildTileLUTs computes a clipped equalization lookup table per tile.
// Histogram excess above the clip limit is redistributed evenly, which
// is what bounds the contrast amplification.
func buildTileLUTs(luma []uint8, w, h, tiles int, clip float64) [][256]uint8 {
	luts := make([][256]uint8, tiles*tiles)

	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			x0 := tx * w / tiles
			x1 := (tx + 1) * w / tiles
			y0 := ty * h / tiles
			y1 := (ty + 1) * h / tiles
			area := (x1 - x0) * (y1 - y0)

			var hist [256]int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[luma[y*w+x]]++
				}
			}

			limit := int(clip * float64(area) / 256.0)
			if limit < 1 {
				limit = 1
			}

			excess := 0
			for v := 0; v < 256; v++ {
				if hist[v] > limit {
					excess += hist[v] - limit
					hist[v] = limit
				}
			}
			share := excess / 256
			remainder := excess % 256
			for v := 0; v < 256; v++ {
				hist[v] += share
				if v < remainder {
					hist[v]++
				}
			}

			cdf := 0
			lut := &luts[ty*tiles+tx]
			for v := 0; v < 256; v++ {
				cdf += hist[v]
				lut[v] = uint8(math.Round(float64(cdf) * 255.0 / float64(area)))
			}
		}
	}

	return luts
}

// interpolateLUT bilinearly blends the mappings of the four tiles whose
// centers surround the pixel, avoiding visible tile seams.
func interpolateLUT(luts [][256]uint8, tiles int, tileW, tileH float64, x, y int, v uint8) uint8 {
	fx := (float64(x)+0.5)/tileW - 0.5
	fy := (float64(y)+0.5)/tileH - 0.5

	tx0 := int(math.Floor(fx))
	ty0 := int(math.Floor(fy))
	wx := fx - float64(tx0)
	wy := fy - float64(ty0)

	tx1 := clampTile(tx0+1, tiles)
	ty1 := clampTile(ty0+1, tiles)
	tx0 = clampTile(tx0, tiles)
	ty0 = clampTile(ty0, tiles)

	top := (1-wx)*float64(luts[ty0*tiles+tx0][v]) + wx*float64(luts[ty0*tiles+tx1][v])
	bottom := (1-wx)*float64(luts[ty1*tiles+tx0][v]) + wx*float64(luts[ty1*tiles+tx1][v])

	return uint8(math.Round((1-wy)*top + wy*bottom))
}

func clampTile(t, tiles int) int {
	if t < 0 {
		return 0
	}
	if t >= tiles {
		return tiles - 1
	}
	return t
}

// scaleLuma rewrites a pixel so its luma becomes newY while keeping the
// chroma ratios of the original.
func scaleLuma(src, dst []uint8, oldY, newY uint8) {
	if oldY == 0 {
		dst[0], dst[1], dst[2] = newY, newY, newY
		dst[3] = src[3]
		return
	}

	ratio := float64(newY) / float64(oldY)
	for c := 0; c < 3; c++ {
		dst[c] = clampByte(float64(src[c]) * ratio)
	}
	dst[3] = src[3]
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}
