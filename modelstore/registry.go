package modelstore

import (
	"log/slog"
	"sync"

	"github.com/nullface/cloak/facedetect"
	"github.com/nullface/cloak/faceembed"
)

const (
	prototxtName    = "deploy.prototxt"
	caffemodelName  = "res10_300x300_ssd_iter_140000.caffemodel"
	sfaceName       = "face_recognition_sface_2021dec.onnx"
	haarDefaultName = "haarcascade_frontalface_default.xml"
	haarAlt2Name    = "haarcascade_frontalface_alt2.xml"
	haarProfileName = "haarcascade_profileface.xml"
)

// defaultMinSFaceBytes rejects a truncated/placeholder SFace download
// (a Git-LFS pointer file is a few hundred bytes).
const defaultMinSFaceBytes = 1_000_000

var (
	prototxtURLs = []string{
		"https://raw.githubusercontent.com/opencv/opencv/master/samples/dnn/face_detector/deploy.prototxt",
	}
	caffemodelURLs = []string{
		"https://raw.githubusercontent.com/opencv/opencv_3rdparty/dnn_samples_face_detector_20170830/res10_300x300_ssd_iter_140000.caffemodel",
	}
	sfaceURLs = []string{
		"https://github.com/opencv/opencv_zoo/raw/main/models/face_recognition_sface/face_recognition_sface_2021dec.onnx",
	}
	haarDefaultURLs = []string{
		"https://raw.githubusercontent.com/opencv/opencv/master/data/haarcascades/haarcascade_frontalface_default.xml",
	}
	haarAlt2URLs = []string{
		"https://raw.githubusercontent.com/opencv/opencv/master/data/haarcascades/haarcascade_frontalface_alt2.xml",
	}
	haarProfileURLs = []string{
		"https://raw.githubusercontent.com/opencv/opencv/master/data/haarcascades/haarcascade_profileface.xml",
	}
)

// Settings tunes a Registry. Zero-valued thresholds and size limit
// fall back to the defaults the pipeline was validated against; an
// empty ModelsDir is used as is (files land in the working directory).
type Settings struct {
	ModelsDir string

	// DetectorConfThreshold is the primary DNN confidence cutoff;
	// DetectorConfThresholdRetry is the relaxed cutoff used when the
	// primary pass finds nothing.
	DetectorConfThreshold      float32
	DetectorConfThresholdRetry float32

	// FRMinValidBytes rejects a downloaded FR model smaller than this
	// as a truncated or placeholder file.
	FRMinValidBytes int64
}

// Registry is the process-wide, read-only-after-init set of model
// handles the pipeline depends on. Each handle is constructed exactly
// once, guarded by sync.Once, the first time Detector or Extractor is
// called — safe under concurrent first-touch from parallel Cloak calls.
type Registry struct {
	settings Settings

	detectorOnce sync.Once
	detector     *facedetect.Detector

	extractorOnce sync.Once
	extractor     *faceembed.Extractor
}

// New returns a registry rooted at modelsDir with default thresholds.
// Construction is lazy: no file I/O happens until the first
// Detector()/Extractor() call.
func New(modelsDir string) *Registry {
	return NewWithSettings(Settings{ModelsDir: modelsDir})
}

// NewWithSettings returns a registry with explicit tuning, filling in
// defaults for any zero-valued threshold or size limit.
func NewWithSettings(s Settings) *Registry {
	if s.DetectorConfThreshold == 0 {
		s.DetectorConfThreshold = 0.5
	}
	if s.DetectorConfThresholdRetry == 0 {
		s.DetectorConfThresholdRetry = 0.3
	}
	if s.FRMinValidBytes == 0 {
		s.FRMinValidBytes = defaultMinSFaceBytes
	}
	return &Registry{settings: s}
}

// Detector returns the shared two-tier face detector, constructing it
// (and fetching its model files) on first call. A detector tier that
// fails to load or fetch is simply disabled; Detector never returns
// nil or an error — the caller always gets something that can Detect,
// even if every tier came up empty.
func (r *Registry) Detector() *facedetect.Detector {
	r.detectorOnce.Do(func() {
		dnn := r.loadDNN()
		haar := r.loadHaar()
		r.detector = facedetect.NewDetector(dnn, haar,
			r.settings.DetectorConfThreshold, r.settings.DetectorConfThresholdRetry)
	})
	return r.detector
}

// Extractor returns the shared embedding extractor, constructing it
// (and fetching its model file) on first call. A failed fetch or load
// disables the extractor; Extractor().Enabled() then reports false
// and callers fall back to untargeted perturbation.
func (r *Registry) Extractor() *faceembed.Extractor {
	r.extractorOnce.Do(func() {
		path, err := ensureFile(r.settings.ModelsDir, sfaceName, sfaceURLs, r.settings.FRMinValidBytes)
		if err != nil {
			slog.Warn("modelstore: SFace model unavailable", "error", err)
			r.extractor = faceembed.NewExtractor("")
			return
		}
		r.extractor = faceembed.NewExtractor(path)
		if r.extractor.Enabled() {
			slog.Info("modelstore: embedding model loaded, model-guided cloaking active")
		}
	})
	return r.extractor
}

func (r *Registry) loadDNN() *facedetect.DNNDetector {
	configPath, err := ensureFile(r.settings.ModelsDir, prototxtName, prototxtURLs, 0)
	if err != nil {
		slog.Warn("modelstore: DNN detector config unavailable", "error", err)
		return facedetect.NewDNNDetector("", "")
	}
	modelPath, err := ensureFile(r.settings.ModelsDir, caffemodelName, caffemodelURLs, 0)
	if err != nil {
		slog.Warn("modelstore: DNN detector weights unavailable", "error", err)
		return facedetect.NewDNNDetector("", "")
	}
	return facedetect.NewDNNDetector(configPath, modelPath)
}

func (r *Registry) loadHaar() *facedetect.HaarDetector {
	defaultPath, err := ensureFile(r.settings.ModelsDir, haarDefaultName, haarDefaultURLs, 0)
	if err != nil {
		slog.Warn("modelstore: Haar default cascade unavailable", "error", err)
		return facedetect.NewHaarDetector("", "", "")
	}
	alt2Path, err := ensureFile(r.settings.ModelsDir, haarAlt2Name, haarAlt2URLs, 0)
	if err != nil {
		slog.Warn("modelstore: Haar alt2 cascade unavailable", "error", err)
		return facedetect.NewHaarDetector("", "", "")
	}
	profilePath, err := ensureFile(r.settings.ModelsDir, haarProfileName, haarProfileURLs, 0)
	if err != nil {
		slog.Warn("modelstore: Haar profile cascade unavailable", "error", err)
		return facedetect.NewHaarDetector("", "", "")
	}
	return facedetect.NewHaarDetector(defaultPath, alt2Path, profilePath)
}
