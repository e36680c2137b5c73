// Package faceembed extracts a fixed-length face embedding vector used
// to compare two face crops for identity similarity.
package faceembed

import (
	"image"
	"log/slog"
	"math"

	"gocv.io/x/gocv"
)

const (
	inputSize = 112
	embedDim  = 128
)

// Extractor wraps a bundled face-embedding network. Unlike the
// general-purpose ArcFace/FaceNet wrapper it is adapted from, it takes
// BGR uint8 input directly with no mean/std normalization and no
// BGR→RGB conversion, matching the recognizer it is bundled with.
type Extractor struct {
	net     gocv.Net
	enabled bool
}

// NewExtractor loads the embedding network from modelPath. A load
// failure disables the extractor; callers then fall back to untargeted
// perturbation rather than treating it as fatal.
func NewExtractor(modelPath string) *Extractor {
	if modelPath == "" {
		return &Extractor{enabled: false}
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		slog.Warn("faceembed: failed to load embedding model", "path", modelPath)
		return &Extractor{enabled: false}
	}

	if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err == nil {
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err == nil {
			slog.Debug("faceembed: backend set to CUDA")
			return &Extractor{net: net, enabled: true}
		}
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	slog.Debug("faceembed: backend set to CPU")
	return &Extractor{net: net, enabled: true}
}

// Close releases the underlying network.
func (e *Extractor) Close() {
	if e != nil && e.enabled {
		e.net.Close()
		e.enabled = false
	}
}

// Enabled reports whether the model loaded successfully.
func (e *Extractor) Enabled() bool {
	return e != nil && e.enabled
}

// Extract returns an L2-normalized embedding for a BGR uint8 face
// crop of any size (it is resized to the network's expected input),
// and false if extraction failed for any reason.
func (e *Extractor) Extract(faceBGR gocv.Mat) ([]float32, bool) {
	if !e.Enabled() || faceBGR.Empty() {
		return nil, false
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(faceBGR, &resized, image.Pt(inputSize, inputSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0, image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	defer output.Close()

	flat := output.Reshape(1, 1)
	defer flat.Close()

	n := flat.Cols()
	if n == 0 {
		return nil, false
	}
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = flat.GetFloatAt(0, i)
	}

	normalized, ok := normalize(vec)
	if !ok {
		slog.Debug("faceembed: embedding had near-zero norm")
		return nil, false
	}
	return normalized, true
}

func normalize(v []float32) ([]float32, bool) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-8 {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// CosineSimilarity returns the cosine similarity of two equal-length
// already-normalized vectors, in [-1, 1]. Mismatched lengths or a
// near-zero vector yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var na, nb, dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	na, nb = math.Sqrt(na), math.Sqrt(nb)
	if na < 1e-8 || nb < 1e-8 {
		return 0
	}
	return dot / (na * nb)
}

// CosineDistance is 1 minus CosineSimilarity: higher means more
// different, the quantity the perturbation engine maximizes.
func CosineDistance(a, b []float32) float64 {
	return 1.0 - CosineSimilarity(a, b)
}
