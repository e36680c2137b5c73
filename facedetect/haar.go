package facedetect

import (
	"image"
	"log/slog"

	"gocv.io/x/gocv"
)

// haarParams is one (cascade, scaleFactor, minNeighbors, minSize) pass.
// The five default-orientation passes mirror progressively looser
// settings: the first two catch well-lit frontal faces cheaply, the
// alt2 passes catch faces the default cascade misses, and the profile
// pass catches left-facing profiles. A sixth pass runs the profile
// cascade again against a horizontally flipped frame to catch
// right-facing profiles, since the cascade itself is orientation-biased.
type haarParams struct {
	cascadeIdx   int
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
}

const (
	cascadeDefault = iota
	cascadeAlt2
	cascadeProfile
	numCascades
)

var haarPasses = []haarParams{
	{cascadeDefault, 1.1, 4, image.Pt(30, 30)},
	{cascadeDefault, 1.05, 3, image.Pt(20, 20)},
	{cascadeAlt2, 1.05, 3, image.Pt(20, 20)},
	{cascadeAlt2, 1.03, 2, image.Pt(15, 15)},
	{cascadeProfile, 1.1, 3, image.Pt(30, 30)},
}

// HaarDetector is the classical fallback tier: three cascades run
// across five parameter combinations plus a mirrored profile pass, all
// feeding the same padding and NMS step as the DNN tier.
type HaarDetector struct {
	cascades [numCascades]gocv.CascadeClassifier
	loaded   bool
}

// NewHaarDetector loads the three bundled cascade XML files. A missing
// or unreadable file disables the detector; the caller then has no
// fallback left and must surface a NoFaces condition honestly.
func NewHaarDetector(defaultPath, alt2Path, profilePath string) *HaarDetector {
	d := &HaarDetector{}

	d.cascades[cascadeDefault] = gocv.NewCascadeClassifier()
	d.cascades[cascadeAlt2] = gocv.NewCascadeClassifier()
	d.cascades[cascadeProfile] = gocv.NewCascadeClassifier()

	paths := [numCascades]string{defaultPath, alt2Path, profilePath}
	for i, path := range paths {
		if !d.cascades[i].Load(path) {
			slog.Warn("facedetect: failed to load Haar cascade", "path", path)
			d.Close()
			return &HaarDetector{loaded: false}
		}
	}
	d.loaded = true
	return d
}

// Close releases the cascade classifiers.
func (d *HaarDetector) Close() {
	if d == nil {
		return
	}
	for i := range d.cascades {
		d.cascades[i].Close()
	}
}

// Enabled reports whether every cascade loaded successfully.
func (d *HaarDetector) Enabled() bool {
	return d != nil && d.loaded
}

// Detect runs all cascade/parameter combinations against img (BGR) and
// returns padded, clipped, NMS-reduced faces.
func (d *HaarDetector) Detect(img gocv.Mat) []Face {
	if !d.Enabled() || img.Empty() {
		return nil
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	eq := gocv.NewMat()
	defer eq.Close()
	gocv.EqualizeHist(gray, &eq)

	var boxes []image.Rectangle

	for _, pass := range haarPasses {
		rects := d.cascades[pass.cascadeIdx].DetectMultiScaleWithParams(
			eq, pass.scaleFactor, pass.minNeighbors, 0, pass.minSize, image.Point{},
		)
		boxes = append(boxes, rects...)
	}

	flipped := gocv.NewMat()
	defer flipped.Close()
	gocv.Flip(eq, &flipped, 1)

	flippedRects := d.cascades[cascadeProfile].DetectMultiScaleWithParams(
		flipped, 1.1, 3, 0, image.Pt(30, 30), image.Point{},
	)
	w := eq.Cols()
	for _, r := range flippedRects {
		boxes = append(boxes, image.Rect(w-r.Max.X, r.Min.Y, w-r.Min.X, r.Max.Y))
	}

	if len(boxes) == 0 {
		return nil
	}

	faces := make([]Face, 0, len(boxes))
	for _, b := range boxes {
		faces = append(faces, Face{Box: padAndClip(b, bounds)})
	}

	reduced := nms(faces)
	slog.Debug("facedetect: Haar pass complete", "raw_boxes", len(boxes), "after_nms", len(reduced))
	return reduced
}
