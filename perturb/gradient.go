package perturb

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Gradient-shaping constants. Grounded line-for-line on the reference
// cloaking engine this package reimplements: a strong post-estimate
// blur converts pixel-level SPSA noise into broad colour gradients,
// edge weighting concentrates signal on hair/eyebrows rather than
// smooth skin, and luminance suppression prefers colour shifts over
// brightness changes (both are far less visible to the human eye).
const (
	gradSmoothSigma   = 4.0
	luminanceSuppress = 0.55
	edgeFloor         = 0.20
	deltaSmoothSigma  = 3.5
	finalSmoothRatio  = 80.0
	lumR, lumG, lumB  = 0.299, 0.587, 0.114
)

// plane is a single-channel w*h float64 working buffer, row-major.
type plane struct {
	w, h int
	data []float64
}

func newPlane(w, h int) plane {
	return plane{w: w, h: h, data: make([]float64, w*h)}
}

func (p plane) at(x, y int) float64      { return p.data[y*p.w+x] }
func (p *plane) set(x, y int, v float64) { p.data[y*p.w+x] = v }

// blur returns a Gaussian-blurred copy of p with the given sigma,
// using an auto-derived kernel size (ksize 0 tells OpenCV to derive
// it from sigma).
func (p plane) blur(sigma float64) plane {
	mat := gocv.NewMatWithSize(p.h, p.w, gocv.MatTypeCV64FC1)
	defer mat.Close()
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			mat.SetDoubleAt(y, x, p.at(x, y))
		}
	}

	out := gocv.NewMat()
	defer out.Close()
	gocv.GaussianBlur(mat, &out, image.Pt(0, 0), sigma, sigma, gocv.BorderDefault)

	res := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			res.set(x, y, out.GetDoubleAt(y, x))
		}
	}
	return res
}

// sobelMagnitude returns the gradient magnitude of a grayscale plane
// (expected range [0,255]) via a 3x3 Sobel operator on each axis.
func (p plane) sobelMagnitude() plane {
	mat := gocv.NewMatWithSize(p.h, p.w, gocv.MatTypeCV64FC1)
	defer mat.Close()
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			mat.SetDoubleAt(y, x, p.at(x, y))
		}
	}

	sx := gocv.NewMat()
	defer sx.Close()
	gocv.Sobel(mat, &sx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)

	sy := gocv.NewMat()
	defer sy.Close()
	gocv.Sobel(mat, &sy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	res := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			gx := sx.GetDoubleAt(y, x)
			gy := sy.GetDoubleAt(y, x)
			res.set(x, y, math.Sqrt(gx*gx+gy*gy))
		}
	}
	return res
}

func (p plane) maxAbs() float64 {
	m := 0.0
	for _, v := range p.data {
		if av := math.Abs(v); av > m {
			m = av
		}
	}
	return m
}

// edgeWeightMap computes a [edgeFloor, 1.0] weight per pixel from a
// grayscale plane: high on textured regions (hair, eyebrows, eyes),
// near edgeFloor on smooth skin, so the optimizer is steered away from
// perceptible flat-area noise.
func edgeWeightMap(gray plane) plane {
	edges := gray.sobelMagnitude()
	if m := edges.maxAbs(); m > 0 {
		for i := range edges.data {
			edges.data[i] /= m
		}
	}
	edges = edges.blur(5.0)
	if m := edges.maxAbs(); m > 0 {
		for i := range edges.data {
			edges.data[i] /= m
		}
	}

	out := newPlane(gray.w, gray.h)
	for i, v := range edges.data {
		out.data[i] = edgeFloor + (1.0-edgeFloor)*v
	}
	return out
}

// rgbChannels is a 3-plane RGB working buffer for the SPSA optimizer,
// values in [0,1].
type rgbChannels struct {
	w, h    int
	r, g, b plane
}

func newRGBChannels(w, h int) rgbChannels {
	return rgbChannels{w: w, h: h, r: newPlane(w, h), g: newPlane(w, h), b: newPlane(w, h)}
}

func (c rgbChannels) blurEach(sigma float64) rgbChannels {
	return rgbChannels{w: c.w, h: c.h, r: c.r.blur(sigma), g: c.g.blur(sigma), b: c.b.blur(sigma)}
}

func (c rgbChannels) clip(lo, hi float64) rgbChannels {
	out := newRGBChannels(c.w, c.h)
	clipPlane := func(src, dst plane) {
		for i, v := range src.data {
			if v < lo {
				v = lo
			} else if v > hi {
				v = hi
			}
			dst.data[i] = v
		}
	}
	clipPlane(c.r, out.r)
	clipPlane(c.g, out.g)
	clipPlane(c.b, out.b)
	return out
}

// luminanceSuppressed subtracts luminanceSuppress times the luma of
// the gradient from every channel, biasing updates toward colour
// shifts rather than brightness changes.
func (c rgbChannels) luminanceSuppressed() rgbChannels {
	out := newRGBChannels(c.w, c.h)
	for i := range c.r.data {
		lum := lumR*c.r.data[i] + lumG*c.g.data[i] + lumB*c.b.data[i]
		out.r.data[i] = c.r.data[i] - luminanceSuppress*lum
		out.g.data[i] = c.g.data[i] - luminanceSuppress*lum
		out.b.data[i] = c.b.data[i] - luminanceSuppress*lum
	}
	return out
}

func (c rgbChannels) multiplyByWeight(w plane) rgbChannels {
	out := newRGBChannels(c.w, c.h)
	for i := range c.r.data {
		out.r.data[i] = c.r.data[i] * w.data[i]
		out.g.data[i] = c.g.data[i] * w.data[i]
		out.b.data[i] = c.b.data[i] * w.data[i]
	}
	return out
}

func signPlane(p plane) plane {
	out := newPlane(p.w, p.h)
	for i, v := range p.data {
		switch {
		case v > 0:
			out.data[i] = 1
		case v < 0:
			out.data[i] = -1
		default:
			out.data[i] = 0
		}
	}
	return out
}

func (c rgbChannels) sign() rgbChannels {
	return rgbChannels{w: c.w, h: c.h, r: signPlane(c.r), g: signPlane(c.g), b: signPlane(c.b)}
}
