package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeSolidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture PNG: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeSolidColorRoundTrips(t *testing.T) {
	data := encodeSolidPNG(t, 30, 20, color.RGBA{R: 40, G: 120, B: 200, A: 255})

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width != 30 || img.Height != 20 {
		t.Fatalf("dims = %dx%d, want 30x20", img.Width, img.Height)
	}

	r, g, b := img.At(5, 5)
	wantR, wantG, wantB := float32(40)/255.0, float32(120)/255.0, float32(200)/255.0
	const tol = 1.0 / 255.0
	if abs(r-wantR) > tol || abs(g-wantG) > tol || abs(b-wantB) > tol {
		t.Fatalf("pixel = (%v,%v,%v), want (%v,%v,%v)", r, g, b, wantR, wantG, wantB)
	}
}

func TestDecodeInvalidBytesReturnsDecodeError(t *testing.T) {
	_, err := Decode([]byte("not an image"))
	if err == nil {
		t.Fatalf("expected DecodeError for garbage input")
	}
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("error %v is not a *DecodeError", err)
	}
}

func TestEncodeDecodeJPEGRoundTrip(t *testing.T) {
	original := NewFloatImage(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			original.Set(x, y, float32(x)/15.0, float32(y)/15.0, 0.5)
		}
	}

	encoded, err := Encode(original, FormatJPEG, 95)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode after Encode: %v", err)
	}
	if decoded.Width != 16 || decoded.Height != 16 {
		t.Fatalf("round-tripped dims = %dx%d, want 16x16", decoded.Width, decoded.Height)
	}
}

func TestEncodePNGIsLossless(t *testing.T) {
	original := solidFloatImage(12, 12, 0.25, 0.5, 0.75)
	encoded, err := Encode(original, FormatPNG, 0)
	if err != nil {
		t.Fatalf("Encode PNG: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode PNG: %v", err)
	}
	r, g, b := decoded.At(6, 6)
	wr, wg, wb := original.At(6, 6)
	// PNG is lossless; only the float<->byte quantization step (1/255)
	// can introduce any difference.
	const tol = 1.0 / 255.0
	if abs(r-wr) > tol || abs(g-wg) > tol || abs(b-wb) > tol {
		t.Fatalf("PNG round trip changed pixel: got (%v,%v,%v) want (%v,%v,%v)", r, g, b, wr, wg, wb)
	}
}

func TestClampByte(t *testing.T) {
	cases := []struct {
		in   float32
		want byte
	}{
		{-1, 0}, {0, 0}, {0.5, 128}, {1, 255}, {2, 255},
	}
	for _, c := range cases {
		if got := clampByte(c.in); got != c.want {
			t.Fatalf("clampByte(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func solidFloatImage(w, h int, r, g, b float32) *FloatImage {
	img := NewFloatImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, r, g, b)
		}
	}
	return img
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
