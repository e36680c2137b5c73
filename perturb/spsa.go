// Package perturb synthesizes an epsilon-bounded adversarial
// perturbation for a single face crop: a constrained SPSA optimizer
// when an embedding extractor is available, a structured-noise
// fallback when it is not.
package perturb

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/nullface/cloak/faceembed"
	"github.com/nullface/cloak/imageio"
)

// modelInputSize is the embedding network's expected input size; the
// optimizer always works at this resolution and upscales its result.
const modelInputSize = 112

// Params are the per-call SPSA hyperparameters, one triple per
// strength preset.
type Params struct {
	Epsilon float32 // L-infinity bound, in [0,1] units
	Steps   int
	Samples int
}

// Result carries the perturbation (same size as the input crop,
// values added directly to the original pixels) plus diagnostics.
type Result struct {
	Delta       *imageio.FloatImage
	Distance    float64
	ModelGuided bool
}

// Generate produces a perturbation for face. When extractor is
// enabled and yields an embedding, it runs the embedding-guided SPSA
// optimizer; otherwise it falls back to untargeted structured noise.
func Generate(face *imageio.FloatImage, extractor *faceembed.Extractor, p Params, rng *rand.Rand) Result {
	if extractor.Enabled() {
		if res, ok := modelGuided(face, extractor, p, rng); ok {
			return res
		}
		slog.Warn("perturb: no embedding for face, falling back to untargeted")
	}
	return Result{Delta: untargeted(face, p, rng), Distance: 0, ModelGuided: false}
}

func modelGuided(face *imageio.FloatImage, extractor *faceembed.Extractor, p Params, rng *rand.Rand) (Result, bool) {
	S := modelInputSize

	face112 := face.Resize(S, S, imageio.InterpArea)
	origEmb, ok := embedAt(face112, extractor)
	if !ok {
		return Result{}, false
	}
	faceRGB := toChannels(face112)

	pert := newRGBChannels(S, S)

	probeC := math.Max(4.0/255.0, float64(p.Epsilon)*0.30)
	stepLR := float64(p.Epsilon) * 2.0 / math.Sqrt(math.Max(float64(p.Steps), 1))

	edgeW := edgeWeightMap(grayscale(faceRGB))

	bestDist := 0.0
	logEvery := max(1, p.Steps/4)

	for k := 0; k < p.Steps; k++ {
		gradAcc := newRGBChannels(S, S)
		nValid := 0

		for s := 0; s < p.Samples; s++ {
			delta := smoothSignDirection(S, S, rng)

			plusImg := addClipped(faceRGB, pert, delta, probeC)
			minusImg := addClipped(faceRGB, pert, delta, -probeC)

			embP, okP := embedAt(fromChannels(plusImg), extractor)
			embM, okM := embedAt(fromChannels(minusImg), extractor)
			if !okP || !okM {
				continue
			}

			simP := faceembed.CosineSimilarity(origEmb, embP)
			simM := faceembed.CosineSimilarity(origEmb, embM)
			coeff := (simP - simM) / (2.0 * probeC)

			accumulate(&gradAcc, delta, coeff)
			nValid++
		}

		if nValid == 0 {
			continue
		}
		gradient := scaleChannels(gradAcc, 1.0/float64(nValid))

		gradient = gradient.blurEach(gradSmoothSigma)
		gradient = gradient.multiplyByWeight(edgeW)
		gradient = gradient.luminanceSuppressed()

		update := gradient.sign()
		pert = subtractScaled(pert, update, stepLR)
		pert = pert.clip(-float64(p.Epsilon), float64(p.Epsilon))

		if (k+1)%logEvery == 0 {
			chk := addPert(faceRGB, pert)
			if emb, ok := embedAt(fromChannels(chk), extractor); ok {
				d := faceembed.CosineDistance(origEmb, emb)
				bestDist = math.Max(bestDist, d)
				slog.Debug("perturb: SPSA progress", "step", k+1, "of", p.Steps, "distance", d)
			}
		}
	}

	final := addPert(faceRGB, pert)
	if emb, ok := embedAt(fromChannels(final), extractor); ok {
		bestDist = faceembed.CosineDistance(origEmb, emb)
	}

	pertImg := fromChannels(pert)
	if face.Width != S || face.Height != S {
		pertImg = pertImg.Resize(face.Width, face.Height, imageio.InterpLinear)
	}

	finalSigma := math.Max(2.0, float64(face.Width)/finalSmoothRatio)
	pertImg = smoothFloatImage(pertImg, finalSigma)
	pertImg = clipFloatImage(pertImg, float32(p.Epsilon))

	slog.Debug("perturb: SPSA complete",
		"distance", bestDist, "steps", p.Steps, "samples", p.Samples,
		"evals", p.Steps*p.Samples*2, "final_smooth_sigma", finalSigma)

	return Result{Delta: pertImg, Distance: bestDist, ModelGuided: true}, true
}

// untargeted applies smooth Gaussian noise patterns with no embedding
// feedback, used when no recognizer is available.
func untargeted(face *imageio.FloatImage, p Params, rng *rand.Rand) *imageio.FloatImage {
	w, h := face.Width, face.Height
	stepSize := float64(p.Epsilon) * 1.2 / math.Max(float64(p.Steps), 1)
	sigma := math.Max(1.5, float64(min(h, w))/20.0)

	pert := newRGBChannels(w, h)
	for i := 0; i < p.Steps; i++ {
		noise := randomNoise(w, h, rng).blurEach(sigma)
		norm := noise.l2Norm()
		if norm > 1e-8 {
			noise = scaleChannels(noise, 1.0/norm)
		}
		pert = addScaled(pert, noise, stepSize)
		pert = pert.clip(-float64(p.Epsilon), float64(p.Epsilon))
	}
	return fromChannels(pert)
}

// embedAt converts face to BGR uint8 and extracts its embedding
// (Extract resizes to the network input; face is already that size in
// practice).
func embedAt(face *imageio.FloatImage, extractor *faceembed.Extractor) ([]float32, bool) {
	mat := face.ToBGRMat()
	defer mat.Close()
	return extractor.Extract(mat)
}

func toChannels(f *imageio.FloatImage) rgbChannels {
	c := newRGBChannels(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.At(x, y)
			c.r.set(x, y, float64(r))
			c.g.set(x, y, float64(g))
			c.b.set(x, y, float64(b))
		}
	}
	return c
}

func fromChannels(c rgbChannels) *imageio.FloatImage {
	f := imageio.NewFloatImage(c.w, c.h)
	for y := 0; y < c.h; y++ {
		for x := 0; x < c.w; x++ {
			f.Set(x, y, float32(c.r.at(x, y)), float32(c.g.at(x, y)), float32(c.b.at(x, y)))
		}
	}
	return f
}

func grayscale(c rgbChannels) plane {
	out := newPlane(c.w, c.h)
	for i := range out.data {
		out.data[i] = (lumR*c.r.data[i] + lumG*c.g.data[i] + lumB*c.b.data[i]) * 255.0
	}
	return out
}

func smoothSignDirection(w, h int, rng *rand.Rand) rgbChannels {
	raw := randomNoise(w, h, rng).blurEach(deltaSmoothSigma)
	return raw.sign()
}

func randomNoise(w, h int, rng *rand.Rand) rgbChannels {
	c := newRGBChannels(w, h)
	for i := range c.r.data {
		c.r.data[i] = rng.NormFloat64()
		c.g.data[i] = rng.NormFloat64()
		c.b.data[i] = rng.NormFloat64()
	}
	return c
}

// addClipped computes clip(face + pert +/- probeC*delta, 0, 1).
func addClipped(face, pert, delta rgbChannels, probeC float64) rgbChannels {
	out := newRGBChannels(face.w, face.h)
	combine := func(f, p, d, o plane) {
		for i := range f.data {
			v := f.data[i] + p.data[i] + probeC*d.data[i]
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			o.data[i] = v
		}
	}
	combine(face.r, pert.r, delta.r, out.r)
	combine(face.g, pert.g, delta.g, out.g)
	combine(face.b, pert.b, delta.b, out.b)
	return out
}

func addPert(face, pert rgbChannels) rgbChannels {
	out := newRGBChannels(face.w, face.h)
	combine := func(f, p, o plane) {
		for i := range f.data {
			v := f.data[i] + p.data[i]
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			o.data[i] = v
		}
	}
	combine(face.r, pert.r, out.r)
	combine(face.g, pert.g, out.g)
	combine(face.b, pert.b, out.b)
	return out
}

func accumulate(acc *rgbChannels, delta rgbChannels, coeff float64) {
	for i := range acc.r.data {
		acc.r.data[i] += coeff * delta.r.data[i]
		acc.g.data[i] += coeff * delta.g.data[i]
		acc.b.data[i] += coeff * delta.b.data[i]
	}
}

func scaleChannels(c rgbChannels, factor float64) rgbChannels {
	out := newRGBChannels(c.w, c.h)
	for i := range c.r.data {
		out.r.data[i] = c.r.data[i] * factor
		out.g.data[i] = c.g.data[i] * factor
		out.b.data[i] = c.b.data[i] * factor
	}
	return out
}

func subtractScaled(a, b rgbChannels, factor float64) rgbChannels {
	out := newRGBChannels(a.w, a.h)
	for i := range a.r.data {
		out.r.data[i] = a.r.data[i] - factor*b.r.data[i]
		out.g.data[i] = a.g.data[i] - factor*b.g.data[i]
		out.b.data[i] = a.b.data[i] - factor*b.b.data[i]
	}
	return out
}

func addScaled(a, b rgbChannels, factor float64) rgbChannels {
	out := newRGBChannels(a.w, a.h)
	for i := range a.r.data {
		out.r.data[i] = a.r.data[i] + factor*b.r.data[i]
		out.g.data[i] = a.g.data[i] + factor*b.g.data[i]
		out.b.data[i] = a.b.data[i] + factor*b.b.data[i]
	}
	return out
}

func (c rgbChannels) l2Norm() float64 {
	var sum float64
	for i := range c.r.data {
		sum += c.r.data[i]*c.r.data[i] + c.g.data[i]*c.g.data[i] + c.b.data[i]*c.b.data[i]
	}
	return math.Sqrt(sum)
}

func smoothFloatImage(f *imageio.FloatImage, sigma float64) *imageio.FloatImage {
	c := toChannels(f)
	return fromChannels(c.blurEach(sigma))
}

func clipFloatImage(f *imageio.FloatImage, eps float32) *imageio.FloatImage {
	out := imageio.NewFloatImage(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.At(x, y)
			out.Set(x, y, clampEps(r, eps), clampEps(g, eps), clampEps(b, eps))
		}
	}
	return out
}

func clampEps(v, eps float32) float32 {
	if v < -eps {
		return -eps
	}
	if v > eps {
		return eps
	}
	return v
}
