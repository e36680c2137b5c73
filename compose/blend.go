// Package compose applies a per-face perturbation to the full image
// with a feathered transition so the cloaked region fades smoothly
// into the untouched background rather than showing a hard edge.
package compose

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/nullface/cloak/imageio"
)

// minFeather is the smallest feather radius used regardless of face
// size, so even a tiny face gets some transition softening.
const minFeather = 5

// FeatherWidth derives the feather radius from a face box: an eighth
// of its shorter side, floored at minFeather.
func FeatherWidth(box image.Rectangle) int {
	f := min(box.Dx(), box.Dy()) / 8
	if f < minFeather {
		return minFeather
	}
	return f
}

// mask returns a full-image single-channel [0,1] feather mask: 1.0
// inside box, blurred out over featherPx pixels on every side.
func mask(width, height int, box image.Rectangle, featherPx int) gocv.Mat {
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV64FC1)
	roi := box.Intersect(image.Rect(0, 0, width, height))
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			m.SetDoubleAt(y, x, 1.0)
		}
	}
	if featherPx <= 0 {
		return m
	}

	ksize := featherPx*2 + 1
	blurred := gocv.NewMat()
	sigma := float64(featherPx) / 2.0
	gocv.GaussianBlur(m, &blurred, image.Pt(ksize, ksize), sigma, sigma, gocv.BorderDefault)
	m.Close()
	return blurred
}

// Apply composites delta onto base within box: it first adds delta to
// base additively (clipped to [0,1]) at every pixel inside box, then
// cross-fades that result against the original base using a feathered
// mask. The cross-fade runs last so that every pixel with mask value
// 0 ends up exactly equal to the original — the additive step never
// has the final write.
func Apply(base *imageio.FloatImage, delta *imageio.FloatImage, box image.Rectangle) *imageio.FloatImage {
	feather := FeatherWidth(box)
	m := mask(base.Width, base.Height, box, feather)
	defer m.Close()

	added := base.Clone()
	for y := box.Min.Y; y < box.Max.Y && y < base.Height; y++ {
		if y < 0 {
			continue
		}
		for x := box.Min.X; x < box.Max.X && x < base.Width; x++ {
			if x < 0 {
				continue
			}
			br, bg, bb := base.At(x, y)
			dr, dg, db := delta.At(x-box.Min.X, y-box.Min.Y)
			added.Set(x, y, clip01(br+dr), clip01(bg+dg), clip01(bb+db))
		}
	}

	out := imageio.NewFloatImage(base.Width, base.Height)
	for y := 0; y < base.Height; y++ {
		for x := 0; x < base.Width; x++ {
			alpha := float32(m.GetDoubleAt(y, x))
			br, bg, bb := base.At(x, y)
			ar, ag, ab := added.At(x, y)
			out.Set(x, y,
				br*(1-alpha)+ar*alpha,
				bg*(1-alpha)+ag*alpha,
				bb*(1-alpha)+ab*alpha,
			)
		}
	}
	return out
}

func clip01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
