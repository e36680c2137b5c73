package perturb

import (
	"math/rand"
	"testing"

	"github.com/nullface/cloak/faceembed"
	"github.com/nullface/cloak/imageio"
)

func solidFace(w, h int, v float32) *imageio.FloatImage {
	img := imageio.NewFloatImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, v, v, v)
		}
	}
	return img
}

func TestGenerateFallsBackWithoutModel(t *testing.T) {
	disabled := faceembed.NewExtractor("") // no model path: never loads a net
	face := solidFace(64, 64, 0.5)
	rng := rand.New(rand.NewSource(1))

	res := Generate(face, disabled, Params{Epsilon: 12.0 / 255.0, Steps: 10, Samples: 2}, rng)

	if res.ModelGuided {
		t.Fatalf("ModelGuided = true, want false with no extractor")
	}
	if res.Distance != 0 {
		t.Fatalf("Distance = %v, want 0 for untargeted fallback", res.Distance)
	}
	if res.Delta.Width != face.Width || res.Delta.Height != face.Height {
		t.Fatalf("delta size %dx%d != face size %dx%d", res.Delta.Width, res.Delta.Height, face.Width, face.Height)
	}
}

func TestUntargetedRespectsEpsilonBound(t *testing.T) {
	eps := float32(6.0 / 255.0)
	rng := rand.New(rand.NewSource(42))
	face := solidFace(50, 50, 0.4)

	delta := untargeted(face, Params{Epsilon: eps, Steps: 40, Samples: 1}, rng)

	for y := 0; y < delta.Height; y++ {
		for x := 0; x < delta.Width; x++ {
			r, g, b := delta.At(x, y)
			if abs32(r) > eps+1e-6 || abs32(g) > eps+1e-6 || abs32(b) > eps+1e-6 {
				t.Fatalf("pixel (%d,%d) = (%v,%v,%v) exceeds epsilon %v", x, y, r, g, b, eps)
			}
		}
	}
}

func TestUntargetedDeterministicWithFixedSeed(t *testing.T) {
	face := solidFace(40, 40, 0.3)
	params := Params{Epsilon: 8.0 / 255.0, Steps: 20, Samples: 1}

	a := untargeted(face, params, rand.New(rand.NewSource(7)))
	b := untargeted(face, params, rand.New(rand.NewSource(7)))

	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			ar, ag, ab := a.At(x, y)
			br, bg, bb := b.At(x, y)
			if ar != br || ag != bg || ab != bb {
				t.Fatalf("same-seed runs diverged at (%d,%d)", x, y)
			}
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
