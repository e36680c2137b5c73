// Package analysis renders the diagnostic "AI view" visualization: a
// perturbation heatmap over a Sobel edge map of the cloaked image,
// annotated with face boxes and per-face disruption labels.
package analysis

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	"gocv.io/x/gocv"

	"github.com/nullface/cloak/facedetect"
	"github.com/nullface/cloak/imageio"
)

// heatAmplify scales the raw pixel difference before clipping to
// [0,1], so even a perturbation of one or two 8-bit levels shows up
// as a visible heat signature rather than being lost to rounding.
const heatAmplify = 50.0

// edge channel weights, logical RGB (R,G,B), matching the spec's
// green/cyan-tinted edge overlay.
const (
	edgeWeightR = 0.05
	edgeWeightG = 0.80
	edgeWeightB = 0.35
)

var (
	colorBoxCore  = color.RGBA{R: 0, G: 255, B: 148, A: 0}
	colorBoxGlow  = color.RGBA{R: 0, G: 180, B: 100, A: 0}
	colorDisrupt  = color.RGBA{R: 0, G: 255, B: 100, A: 0}
	colorPartial  = color.RGBA{R: 255, G: 200, B: 0, A: 0}
	colorWeak     = color.RGBA{R: 255, G: 80, B: 80, A: 0}
	colorNA       = color.RGBA{R: 180, G: 180, B: 180, A: 0}
	colorHeader   = color.RGBA{R: 0, G: 255, B: 148, A: 0}
	colorStatusHi = color.RGBA{R: 0, G: 255, B: 100, A: 0}
	colorStatusMd = color.RGBA{R: 255, G: 200, B: 0, A: 0}
	colorStatusLo = color.RGBA{R: 255, G: 120, B: 50, A: 0}
	colorDim      = color.RGBA{R: 180, G: 180, B: 180, A: 0}
)

// Error wraps any failure inside rendering. Per the cloaking error
// taxonomy, an analysis failure is never fatal to the overall call;
// the caller drops the analysis bytes and keeps the cloaked image.
type Error struct{ Err error }

func (e *Error) Error() string { return fmt.Sprintf("analysis: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Render builds the JPEG-encoded diagnostic visualization from the
// original and cloaked images, the detected+cloaked face boxes, and
// the per-face embedding distance recorded for each (0 where no
// distance applies, e.g. a tiny-face skip).
func Render(original, cloaked *imageio.FloatImage, faces []facedetect.Face, distances []float64) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	w, h := original.Width, original.Height

	heat := perturbationHeatmap(original, cloaked)
	defer heat.Close()

	edges := cloakedEdgeMap(cloaked)
	defer edges.Close()

	canvas := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	edgeOverlay := tintedEdges(edges)
	defer edgeOverlay.Close()
	gocv.AddWeighted(canvas, 1.0, edgeOverlay, 0.7, 0, &canvas)
	gocv.AddWeighted(canvas, 1.0, heat, 0.5, 0, &canvas)

	fontScale := math.Max(0.4, float64(w)/1200.0)
	drawFaces(&canvas, faces, distances, fontScale)
	applyScanLines(&canvas)
	avgDist := drawHeader(&canvas, distances, fontScale)
	slog.Debug("analysis: rendered", "faces", len(faces), "avg_distance", avgDist)

	buf, encErr := gocv.IMEncodeWithParams(gocv.JPEGFileExt, canvas, []int{gocv.IMWriteJpegQuality, 90})
	if encErr != nil {
		return nil, &Error{Err: encErr}
	}
	defer buf.Close()

	// The buffer's backing memory is freed on Close; hand back a copy.
	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// perturbationHeatmap returns an 8-bit 3-channel (OpenCV BGR-ordered)
// Inferno-colormapped Mat of the amplified per-pixel difference
// between original and cloaked, mean-reduced across channels.
func perturbationHeatmap(original, cloaked *imageio.FloatImage) gocv.Mat {
	w, h := original.Width, original.Height
	gray := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	defer gray.Close()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			or, og, ob := original.At(x, y)
			cr, cg, cb := cloaked.At(x, y)
			dr := clip01(float64(abs32(cr-or)) * heatAmplify)
			dg := clip01(float64(abs32(cg-og)) * heatAmplify)
			db := clip01(float64(abs32(cb-ob)) * heatAmplify)
			mean := (dr + dg + db) / 3.0
			gray.SetUCharAt(y, x, uint8(mean*255.0+0.5))
		}
	}

	heat := gocv.NewMat()
	gocv.ApplyColorMap(gray, &heat, gocv.ColormapInferno)
	return heat
}

// cloakedEdgeMap returns the normalized [0,1] Sobel gradient magnitude
// of the cloaked image's grayscale, as a float64 single-channel Mat.
func cloakedEdgeMap(cloaked *imageio.FloatImage) gocv.Mat {
	w, h := cloaked.Width, cloaked.Height
	gray := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	defer gray.Close()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := cloaked.At(x, y)
			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			gray.SetUCharAt(y, x, uint8(clip01(lum)*255.0+0.5))
		}
	}

	grayF := gocv.NewMat()
	defer grayF.Close()
	gray.ConvertTo(&grayF, gocv.MatTypeCV64F)

	sx := gocv.NewMat()
	defer sx.Close()
	gocv.Sobel(grayF, &sx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)

	sy := gocv.NewMat()
	defer sy.Close()
	gocv.Sobel(grayF, &sy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	mag := gocv.NewMatWithSize(h, w, gocv.MatTypeCV64FC1)
	maxVal := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := sx.GetDoubleAt(y, x)
			gy := sy.GetDoubleAt(y, x)
			m := math.Sqrt(gx*gx + gy*gy)
			mag.SetDoubleAt(y, x, m)
			if m > maxVal {
				maxVal = m
			}
		}
	}
	if maxVal > 0 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				mag.SetDoubleAt(y, x, mag.GetDoubleAt(y, x)/maxVal)
			}
		}
	}
	return mag
}

// tintedEdges converts a normalized [0,1] edge-magnitude Mat into the
// green/cyan-tinted 8-bit BGR overlay the analysis composite blends
// against the heatmap.
func tintedEdges(edges gocv.Mat) gocv.Mat {
	h, w := edges.Rows(), edges.Cols()
	out := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := edges.GetDoubleAt(y, x)
			out.SetUCharAt3(y, x, 0, uint8(clip01(v*edgeWeightB)*255.0+0.5)) // B
			out.SetUCharAt3(y, x, 1, uint8(clip01(v*edgeWeightG)*255.0+0.5)) // G
			out.SetUCharAt3(y, x, 2, uint8(clip01(v*edgeWeightR)*255.0+0.5)) // R
		}
	}
	return out
}

// drawFaces draws each face's core box, a slightly inflated low-
// opacity "glow" box, and a disruption-status label derived from its
// embedding distance.
func drawFaces(canvas *gocv.Mat, faces []facedetect.Face, distances []float64, fontScale float64) {
	w, h := canvas.Cols(), canvas.Rows()
	for i, face := range faces {
		box := face.Box
		gocv.Rectangle(canvas, box, colorBoxCore, 2)

		glow := image.Rect(
			max(0, box.Min.X-2), max(0, box.Min.Y-2),
			min(w-1, box.Max.X+2), min(h-1, box.Max.Y+2),
		)
		glowLayer := canvas.Clone()
		gocv.Rectangle(&glowLayer, glow, colorBoxGlow, 1)
		gocv.AddWeighted(glowLayer, 0.5, *canvas, 0.5, 0, canvas)
		glowLayer.Close()

		if i >= len(distances) {
			continue
		}
		label, col := statusLabel(distances[i])
		org := image.Pt(box.Min.X, max(box.Min.Y-8, 15))
		gocv.PutText(canvas, label, org, gocv.FontHersheySimplex, fontScale*0.65, col, 1)
	}
}

// statusLabel maps an embedding distance to the spec's four-tier
// disruption label and color.
func statusLabel(d float64) (string, color.RGBA) {
	switch {
	case d >= 0.40:
		return fmt.Sprintf("DISRUPTED %d%%", int(d*100+0.5)), colorDisrupt
	case d >= 0.20:
		return fmt.Sprintf("PARTIAL %d%%", int(d*100+0.5)), colorPartial
	case d > 0:
		return fmt.Sprintf("WEAK %d%%", int(d*100+0.5)), colorWeak
	default:
		return "N/A", colorNA
	}
}

// applyScanLines dims every third row by 20%, the CRT-flavored
// "AI analysis" texture the diagnostic view is going for.
func applyScanLines(canvas *gocv.Mat) {
	w, h := canvas.Cols(), canvas.Rows()
	for y := 0; y < h; y += 3 {
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				v := canvas.GetUCharAt3(y, x, c)
				canvas.SetUCharAt3(y, x, c, uint8(float64(v)*0.8))
			}
		}
	}
}

// drawHeader writes the "AI FEATURE ANALYSIS" title, a status line
// derived from the mean of strictly-positive distances, and an
// embedding-shift percentage line when that mean is positive. It
// returns the computed average for logging.
func drawHeader(canvas *gocv.Mat, distances []float64, fontScale float64) float64 {
	yTxt := int(28*fontScale + 10)
	gocv.PutText(canvas, "AI FEATURE ANALYSIS", image.Pt(12, yTxt), gocv.FontHersheySimplex, fontScale, colorHeader, 1)

	var sum float64
	var n int
	for _, d := range distances {
		if d > 0 {
			sum += d
			n++
		}
	}
	avg := 0.0
	if n > 0 {
		avg = sum / float64(n)
	}

	var status string
	var statusColor color.RGBA
	switch {
	case avg >= 0.30:
		status, statusColor = "IDENTITY DISRUPTED", colorStatusHi
	case avg >= 0.15:
		status, statusColor = "PARTIALLY DISRUPTED", colorStatusMd
	case avg > 0:
		status, statusColor = "PERTURBATION APPLIED", colorStatusLo
	default:
		status, statusColor = "PERTURBATION DETECTED", colorStatusLo
	}
	gocv.PutText(canvas, status, image.Pt(12, int(float64(yTxt)+22*fontScale)), gocv.FontHersheySimplex, fontScale*0.7, statusColor, 1)

	if avg > 0 {
		line := fmt.Sprintf("Embedding Shift: %.1f%%", avg*100.0)
		gocv.PutText(canvas, line, image.Pt(12, int(float64(yTxt)+42*fontScale)), gocv.FontHersheySimplex, fontScale*0.55, colorDim, 1)
	}
	return avg
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
