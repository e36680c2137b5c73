package compose

import (
	"image"
	"testing"

	"github.com/nullface/cloak/imageio"
)

func solidImage(w, h int, r, g, b float32) *imageio.FloatImage {
	img := imageio.NewFloatImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, r, g, b)
		}
	}
	return img
}

func TestFeatherWidthFloorsAtMinimum(t *testing.T) {
	tiny := image.Rect(0, 0, 10, 10) // 10/8 = 1, below the floor of 5
	if got := FeatherWidth(tiny); got != minFeather {
		t.Fatalf("FeatherWidth(tiny) = %d, want %d", got, minFeather)
	}

	big := image.Rect(0, 0, 80, 80) // 80/8 = 10
	if got := FeatherWidth(big); got != 10 {
		t.Fatalf("FeatherWidth(big) = %d, want 10", got)
	}
}

func TestApplyLeavesOutsideMaskBitIdentical(t *testing.T) {
	base := solidImage(60, 60, 0.2, 0.4, 0.6)
	box := image.Rect(20, 20, 40, 40)

	delta := imageio.NewFloatImage(box.Dx(), box.Dy())
	for y := 0; y < delta.Height; y++ {
		for x := 0; x < delta.Width; x++ {
			delta.Set(x, y, 0.5, 0.5, 0.5)
		}
	}

	out := Apply(base, delta, box)

	// Far from the box (well outside any feather radius) pixels must
	// be exactly unchanged.
	corners := [][2]int{{0, 0}, {59, 0}, {0, 59}, {59, 59}}
	for _, c := range corners {
		gotR, gotG, gotB := out.At(c[0], c[1])
		wantR, wantG, wantB := base.At(c[0], c[1])
		if gotR != wantR || gotG != wantG || gotB != wantB {
			t.Fatalf("pixel (%d,%d) changed outside the feather radius: got (%v,%v,%v) want (%v,%v,%v)",
				c[0], c[1], gotR, gotG, gotB, wantR, wantG, wantB)
		}
	}
}

func TestApplyStaysWithinUnitRange(t *testing.T) {
	base := solidImage(40, 40, 0.9, 0.9, 0.9)
	box := image.Rect(10, 10, 30, 30)
	delta := imageio.NewFloatImage(box.Dx(), box.Dy())
	for y := 0; y < delta.Height; y++ {
		for x := 0; x < delta.Width; x++ {
			delta.Set(x, y, 1.0, 1.0, 1.0) // would overflow without clipping
		}
	}

	out := Apply(base, delta, box)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, b := out.At(x, y)
			if r < 0 || r > 1 || g < 0 || g > 1 || b < 0 || b > 1 {
				t.Fatalf("pixel (%d,%d) out of [0,1]: (%v,%v,%v)", x, y, r, g, b)
			}
		}
	}
}

func TestApplyCenterMatchesAdditiveClip(t *testing.T) {
	base := solidImage(60, 60, 0.1, 0.1, 0.1)
	box := image.Rect(10, 10, 50, 50) // large box relative to feather, center mask ~= 1
	delta := imageio.NewFloatImage(box.Dx(), box.Dy())
	for y := 0; y < delta.Height; y++ {
		for x := 0; x < delta.Width; x++ {
			delta.Set(x, y, 0.05, 0.05, 0.05)
		}
	}

	out := Apply(base, delta, box)
	cx, cy := box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2
	r, g, b := out.At(cx, cy)
	wantR, wantG, wantB := float32(0.15), float32(0.15), float32(0.15)
	const tol = 0.01
	if abs32(r-wantR) > tol || abs32(g-wantG) > tol || abs32(b-wantB) > tol {
		t.Fatalf("center pixel = (%v,%v,%v), want close to (%v,%v,%v)", r, g, b, wantR, wantG, wantB)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
