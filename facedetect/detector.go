package facedetect

import "gocv.io/x/gocv"

// Detector is the two-tier face locator: a DNN detector tried at a
// primary confidence threshold, retried once at a relaxed threshold,
// then a Haar cascade fallback if both DNN passes come up empty.
type Detector struct {
	dnn              *DNNDetector
	haar             *HaarDetector
	primaryThreshold float32
	retryThreshold   float32
}

// NewDetector builds a combined detector. Either tier may be nil/disabled;
// Detect degrades gracefully as each tier is unavailable, and reports
// no faces only once every available tier has been tried.
func NewDetector(dnn *DNNDetector, haar *HaarDetector, primaryThreshold, retryThreshold float32) *Detector {
	return &Detector{
		dnn:              dnn,
		haar:             haar,
		primaryThreshold: primaryThreshold,
		retryThreshold:   retryThreshold,
	}
}

// Detect runs the DNN tier at the primary threshold, retries at the
// relaxed threshold if nothing was found, and falls back to the Haar
// cascades only when the DNN tier found nothing at either threshold
// (or is unavailable).
func (d *Detector) Detect(img gocv.Mat) []Face {
	if d.dnn.Enabled() {
		if faces := d.dnn.Detect(img, d.primaryThreshold); len(faces) > 0 {
			return faces
		}
		if faces := d.dnn.Detect(img, d.retryThreshold); len(faces) > 0 {
			return faces
		}
	}
	return d.haar.Detect(img)
}
