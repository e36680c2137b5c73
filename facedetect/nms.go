// Package facedetect locates faces in a decoded image using a two-tier
// strategy: a DNN SSD detector first, a classical Haar cascade fallback
// second, both feeding a shared padding and non-maximum-suppression
// step before results reach the rest of the pipeline.
package facedetect

import "image"

// Face is a detected face region, already padded and clipped to the
// source image bounds.
type Face struct {
	Box        image.Rectangle
	Confidence float32 // 0 for detections with no meaningful score (Haar)
}

// padFraction is how much each side of a raw detection box is grown
// before clipping, so the recognizer and perturbation engine see some
// context around the tight face box rather than a crop of skin only.
const padFraction = 0.25

// padAndClip grows box by padFraction on every side and clips it to
// bounds.
func padAndClip(box image.Rectangle, bounds image.Rectangle) image.Rectangle {
	w, h := box.Dx(), box.Dy()
	padX := int(float64(w) * padFraction)
	padY := int(float64(h) * padFraction)
	padded := image.Rect(box.Min.X-padX, box.Min.Y-padY, box.Max.X+padX, box.Max.Y+padY)
	return padded.Intersect(bounds)
}

// area returns the pixel area of r, 0 if degenerate.
func area(r image.Rectangle) int {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return 0
	}
	return r.Dx() * r.Dy()
}

// iou returns the intersection-over-union of a and b.
func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	interArea := area(inter)
	if interArea == 0 {
		return 0
	}
	union := area(a) + area(b) - interArea
	if union <= 0 {
		return 0
	}
	return float64(interArea) / float64(union)
}

// iouThreshold is the overlap at or above which two detections are
// considered the same face.
const iouThreshold = 0.35

// nms suppresses overlapping detections, keeping the larger box of
// any overlapping pair rather than the higher-confidence one: Haar
// cascades carry no comparable confidence score, and a bigger box
// from a dual-tier detector is more often the correctly-scaled one
// (a partial/profile match tends to produce a tighter, wrong-scale
// box around a sub-region of the true face).
func nms(faces []Face) []Face {
	if len(faces) <= 1 {
		return faces
	}

	ordered := make([]Face, len(faces))
	copy(ordered, faces)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if area(ordered[j].Box) > area(ordered[i].Box) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	kept := make([]Face, 0, len(ordered))
	suppressed := make([]bool, len(ordered))
	for i := range ordered {
		if suppressed[i] {
			continue
		}
		kept = append(kept, ordered[i])
		for j := i + 1; j < len(ordered); j++ {
			if suppressed[j] {
				continue
			}
			if iou(ordered[i].Box, ordered[j].Box) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
