// Package imageio decodes arbitrary container bytes into the
// floating-point RGB representation the rest of the cloaking pipeline
// operates on, applying EXIF orientation correction and alpha
// flattening along the way, and encodes the result back out.
package imageio

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// FloatImage is a 3-channel RGB image with values in [0,1]. It is the
// working representation for every stage of the cloaking pipeline and
// is never mutated in place by callers; operations return a new copy.
type FloatImage struct {
	Width, Height int
	// Pix is row-major, channel-interleaved RGB: Pix[(y*Width+x)*3+c].
	Pix []float32
}

// NewFloatImage allocates a zeroed image of the given size.
func NewFloatImage(width, height int) *FloatImage {
	return &FloatImage{Width: width, Height: height, Pix: make([]float32, width*height*3)}
}

// Clone returns an independent copy.
func (f *FloatImage) Clone() *FloatImage {
	out := NewFloatImage(f.Width, f.Height)
	copy(out.Pix, f.Pix)
	return out
}

// At returns the RGB triple at (x,y).
func (f *FloatImage) At(x, y int) (r, g, b float32) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Set writes the RGB triple at (x,y).
func (f *FloatImage) Set(x, y int, r, g, b float32) {
	i := (y*f.Width + x) * 3
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// DecodeError wraps an unreadable input image, per the cloaking
// error taxonomy: it is always surfaced to the caller, never
// downgraded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("imageio: decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads an image container (JPEG, PNG, GIF, BMP, TIFF), applies
// its EXIF orientation so pixel rows/columns match the intended
// viewing orientation, and flattens any alpha channel over black.
func Decode(data []byte) (*FloatImage, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return fromImage(src), nil
}

// fromImage converts a decoded, already-oriented image.Image into a
// FloatImage, flattening alpha over black as the source's 4th channel
// (mobile screenshots and stickers are the common source of alpha).
func fromImage(src image.Image) *FloatImage {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := NewFloatImage(w, h)

	nrgba, ok := src.(*image.NRGBA)
	if ok {
		for y := 0; y < h; y++ {
			srcY := bounds.Min.Y + y
			rowOff := nrgba.PixOffset(bounds.Min.X, srcY)
			row := nrgba.Pix[rowOff : rowOff+w*4]
			for x := 0; x < w; x++ {
				px := row[x*4 : x*4+4]
				a := float32(px[3]) / 255.0
				out.Set(x, y,
					float32(px[0])/255.0*a,
					float32(px[1])/255.0*a,
					float32(px[2])/255.0*a,
				)
			}
		}
		return out
	}

	// color.Color.RGBA returns alpha-premultiplied channels, which are
	// already the colour flattened over black.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Set(x, y,
				float32(r)/65535.0,
				float32(g)/65535.0,
				float32(b)/65535.0,
			)
		}
	}
	return out
}

// EncodeError wraps a failure to encode the output image.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("imageio: encode: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// Format selects the output container.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
)

// Encode writes f out as JPEG (quality in [50,100]) or PNG.
func Encode(f *FloatImage, format Format, quality int) ([]byte, error) {
	img := toNRGBA(f)
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		if quality < 50 {
			quality = 50
		} else if quality > 100 {
			quality = 100
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return buf.Bytes(), nil
}

func toNRGBA(f *FloatImage) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.At(x, y)
			off := img.PixOffset(x, y)
			img.Pix[off] = clampByte(r)
			img.Pix[off+1] = clampByte(g)
			img.Pix[off+2] = clampByte(b)
			img.Pix[off+3] = 255
		}
	}
	return img
}

func clampByte(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255.0 + 0.5)
}

// ToBGRMat converts f to an 8-bit 3-channel BGR gocv.Mat, the format
// the OpenCV-backed detectors and recognizer expect as input. Callers
// must Close the returned Mat.
func (f *FloatImage) ToBGRMat() gocv.Mat {
	mat := gocv.NewMatWithSize(f.Height, f.Width, gocv.MatTypeCV8UC3)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.At(x, y)
			mat.SetUCharAt3(y, x, 0, clampByte(b))
			mat.SetUCharAt3(y, x, 1, clampByte(g))
			mat.SetUCharAt3(y, x, 2, clampByte(r))
		}
	}
	return mat
}
