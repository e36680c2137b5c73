package imageio

import (
	"image"

	"gocv.io/x/gocv"
)

// Interpolation selects the resampling method Resize uses, mirroring
// the two kinds the perturbation engine needs: area averaging when
// shrinking (avoids aliasing on downsized faces) and bilinear when
// growing (keeps the upsampled perturbation smooth).
type Interpolation int

const (
	InterpArea Interpolation = iota
	InterpLinear
)

// Crop returns the sub-image of f within bounds, clamped to f's
// extent.
func (f *FloatImage) Crop(bounds image.Rectangle) *FloatImage {
	b := bounds.Intersect(image.Rect(0, 0, f.Width, f.Height))
	out := NewFloatImage(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, bl := f.At(b.Min.X+x, b.Min.Y+y)
			out.Set(x, y, r, g, bl)
		}
	}
	return out
}

// Resize returns a copy of f scaled to width x height.
func (f *FloatImage) Resize(width, height int, interp Interpolation) *FloatImage {
	mat := f.toRGBMat32F()
	defer mat.Close()

	flag := gocv.InterpolationArea
	if interp == InterpLinear {
		flag = gocv.InterpolationLinear
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(width, height), 0, 0, flag)

	return fromRGBMat32F(resized)
}

// toRGBMat32F converts f to a 3-channel float32 Mat with RGB channel
// order, values in [0,1].
func (f *FloatImage) toRGBMat32F() gocv.Mat {
	mat := gocv.NewMatWithSize(f.Height, f.Width, gocv.MatTypeCV32FC3)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.At(x, y)
			mat.SetFloatAt3(y, x, 0, r)
			mat.SetFloatAt3(y, x, 1, g)
			mat.SetFloatAt3(y, x, 2, b)
		}
	}
	return mat
}

func fromRGBMat32F(mat gocv.Mat) *FloatImage {
	h, w := mat.Rows(), mat.Cols()
	out := NewFloatImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y,
				mat.GetFloatAt3(y, x, 0),
				mat.GetFloatAt3(y, x, 1),
				mat.GetFloatAt3(y, x, 2),
			)
		}
	}
	return out
}
