package facedetect

import (
	"image"
	"log/slog"

	"gocv.io/x/gocv"
)

// DNNDetector wraps a Caffe SSD face detector. It is the primary
// detection tier; callers fall back to Haar cascades when it reports
// no faces.
type DNNDetector struct {
	net     gocv.Net
	enabled bool

	inputSize   image.Point
	scaleFactor float64
	meanVal     gocv.Scalar
}

// NewDNNDetector loads an SSD face model from configPath/modelPath.
// A failure to load disables the detector rather than returning an
// error: the caller degrades to the Haar tier, per the detector's
// graceful-degradation design.
func NewDNNDetector(configPath, modelPath string) *DNNDetector {
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		slog.Warn("facedetect: failed to load DNN model", "config", configPath, "model", modelPath)
		return &DNNDetector{enabled: false}
	}

	if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err == nil {
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err == nil {
			slog.Debug("facedetect: DNN backend set to CUDA")
			return newDNNDetector(net)
		}
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	slog.Debug("facedetect: DNN backend set to CPU")
	return newDNNDetector(net)
}

func newDNNDetector(net gocv.Net) *DNNDetector {
	return &DNNDetector{
		net:         net,
		enabled:     true,
		inputSize:   image.Pt(300, 300),
		scaleFactor: 1.0,
		meanVal:     gocv.NewScalar(104.0, 177.0, 123.0, 0),
	}
}

// Close releases the underlying network.
func (d *DNNDetector) Close() {
	if d != nil && d.enabled {
		d.net.Close()
		d.enabled = false
	}
}

// Enabled reports whether the model loaded successfully.
func (d *DNNDetector) Enabled() bool {
	return d != nil && d.enabled
}

// Detect runs the SSD forward pass at the given confidence threshold
// and returns padded, clipped, NMS-reduced faces. A nil/disabled
// detector or empty Mat yields no faces, not an error.
func (d *DNNDetector) Detect(img gocv.Mat, confThreshold float32) []Face {
	if !d.Enabled() || img.Empty() {
		return nil
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	imgW, imgH := float32(img.Cols()), float32(img.Rows())

	blob := gocv.BlobFromImage(img, d.scaleFactor, d.inputSize, d.meanVal, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) < 4 {
		slog.Warn("facedetect: unexpected DNN output shape", "sizes", sizes)
		return nil
	}
	numDetections := sizes[2]
	if numDetections == 0 {
		return nil
	}

	flat := out.Reshape(1, numDetections*sizes[3])
	defer flat.Close()
	rows := flat.Reshape(1, numDetections)
	defer rows.Close()

	var faces []Face
	for i := 0; i < numDetections; i++ {
		confidence := rows.GetFloatAt(i, 2)
		if confidence < confThreshold {
			continue
		}

		xMin := rows.GetFloatAt(i, 3) * imgW
		yMin := rows.GetFloatAt(i, 4) * imgH
		xMax := rows.GetFloatAt(i, 5) * imgW
		yMax := rows.GetFloatAt(i, 6) * imgH

		xMin = max(0, xMin)
		yMin = max(0, yMin)
		xMax = min(imgW, xMax)
		yMax = min(imgH, yMax)
		if xMax <= xMin || yMax <= yMin {
			continue
		}

		box := image.Rect(int(xMin), int(yMin), int(xMax), int(yMax))
		faces = append(faces, Face{
			Box:        padAndClip(box, bounds),
			Confidence: confidence,
		})
	}

	return nms(faces)
}
