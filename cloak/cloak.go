// Package cloak implements the model-guided adversarial face-cloaking
// pipeline: decode, detect, per-face embedding-guided perturbation,
// feathered blend, diagnostic analysis render, re-encode. It is a
// pure in-memory function with no I/O beyond the one-time model-file
// acquisition modelstore performs on first use.
package cloak

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nullface/cloak/analysis"
	"github.com/nullface/cloak/compose"
	"github.com/nullface/cloak/config"
	"github.com/nullface/cloak/facedetect"
	"github.com/nullface/cloak/imageio"
	"github.com/nullface/cloak/modelstore"
	"github.com/nullface/cloak/perturb"
)

// defaultQuality is used whenever Options.OutputQuality is left at
// its zero value.
const defaultQuality = 95

// Options configures a single Cloak call.
type Options struct {
	Strength      Strength     // Subtle | Standard | Maximum; "" defaults to Standard.
	OutputFormat  OutputFormat // FormatJPEG | FormatPNG; "" defaults to FormatJPEG.
	OutputQuality int          // [50,100]; 0 defaults to 95. Ignored for PNG.

	// Seed makes a call's SPSA randomness reproducible. 0 means
	// nondeterministic (seeded from wall-clock time), matching the
	// spec's note that production traffic need not fix a seed while
	// tests should.
	Seed int64
}

func (o Options) normalized() Options {
	if o.Strength == "" || !o.Strength.Valid() {
		o.Strength = Standard
	}
	if o.OutputFormat == "" {
		o.OutputFormat = FormatJPEG
	}
	if o.OutputQuality == 0 {
		o.OutputQuality = defaultQuality
	}
	if o.OutputQuality < 50 {
		o.OutputQuality = 50
	}
	if o.OutputQuality > 100 {
		o.OutputQuality = 100
	}
	return o
}

// Result is what a single Cloak call returns.
type Result struct {
	Image    []byte // re-encoded cloaked (or, if no faces, original) image
	Analysis []byte // nil on AnalysisFailure or when there were no faces to annotate
	Metadata Metadata
}

// Pipeline binds a model Registry to the cloaking operation. Callers
// that want a registry of their own (pointed at a different model
// directory or with different Settings) construct their own; the
// package-level Cloak function uses a lazily-constructed process-wide
// default.
type Pipeline struct {
	registry *modelstore.Registry
}

// NewPipeline builds a Pipeline around an explicit registry.
func NewPipeline(registry *modelstore.Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

var (
	defaultOnce     sync.Once
	defaultPipeline *Pipeline
)

func defaultPipelineInstance() *Pipeline {
	defaultOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			slog.Error("cloak: failed to load config, using ./models", "error", err)
			cfg.ModelsDir = "./models"
		}
		defaultPipeline = NewPipeline(modelstore.NewWithSettings(modelstore.Settings{
			ModelsDir:                  cfg.ModelsDir,
			DetectorConfThreshold:      float32(cfg.DetectorConfThreshold),
			DetectorConfThresholdRetry: float32(cfg.DetectorConfThresholdRetry),
			FRMinValidBytes:            int64(cfg.FRMinValidBytes),
		}))
	})
	return defaultPipeline
}

// Cloak runs the full pipeline against the process-wide default
// Pipeline (models cached under the configured MODELS_DIR).
func Cloak(ctx context.Context, imageBytes []byte, opts Options) (Result, error) {
	return defaultPipelineInstance().Cloak(ctx, imageBytes, opts)
}

// Cloak runs the full pipeline: decode, detect, per-face perturb,
// blend, analyze, re-encode. ctx is observed only between faces — the
// optimizer itself does not poll for cancellation mid-SPSA-step, per
// the spec's no-cancellation-within-a-call concurrency model.
func (p *Pipeline) Cloak(ctx context.Context, imageBytes []byte, opts Options) (Result, error) {
	start := time.Now()
	opts = opts.normalized()
	if err := opts.OutputFormat.validate(); err != nil {
		return Result{}, &InvalidOptionsError{Err: err}
	}

	callID := uuid.NewString()
	logger := slog.With("call_id", callID, "strength", opts.Strength)

	original, err := imageio.Decode(imageBytes)
	if err != nil {
		return Result{}, &DecodeError{Err: err}
	}
	imageio.LogCameraInfo(logger, imageBytes)
	logger.Info("cloak: decoded", "width", original.Width, "height", original.Height)

	bgr := original.ToBGRMat()
	defer bgr.Close()

	detector := p.registry.Detector()
	faces := detector.Detect(bgr)
	logger.Info("cloak: detection complete", "faces_detected", len(faces))

	preset := opts.Strength.Preset()

	if len(faces) == 0 {
		encoded, err := imageio.Encode(original, toImageioFormat(opts.OutputFormat), opts.OutputQuality)
		if err != nil {
			return Result{}, &EncodeError{Err: err}
		}
		return Result{
			Image: encoded,
			Metadata: Metadata{
				Strength:              opts.Strength,
				Epsilon:               preset.Epsilon,
				PGDSteps:              preset.Steps,
				Width:                 original.Width,
				Height:                original.Height,
				ProcessingTimeSeconds: time.Since(start).Seconds(),
			},
		}, nil
	}

	extractor := p.registry.Extractor()
	modelGuided := extractor.Enabled()
	logger.Info("cloak: embedding model", "model_guided", modelGuided)

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	result := original.Clone()
	distances := make([]float64, 0, len(faces))
	facesCloaked := 0
	anyModelGuided := false

	for i, face := range faces {
		select {
		case <-ctx.Done():
			logger.Warn("cloak: context canceled mid-pipeline, returning partial result", "face", i, "of", len(faces))
			return finalize(logger, original, result, faces, distances, opts, preset, anyModelGuided, facesCloaked, start)
		default:
		}

		w, h := face.Box.Dx(), face.Box.Dy()
		if w < 10 || h < 10 {
			logger.Warn("cloak: skipping tiny face", "width", w, "height", h)
			distances = append(distances, 0)
			continue
		}

		crop := original.Crop(face.Box)
		spsaParams := perturb.Params{Epsilon: preset.Epsilon, Steps: preset.Steps, Samples: preset.Samples}
		pr := perturb.Generate(crop, extractor, spsaParams, rng)
		if pr.ModelGuided {
			anyModelGuided = true
		}

		result = compose.Apply(result, pr.Delta, face.Box)
		distances = append(distances, pr.Distance)
		facesCloaked++

		logger.Info("cloak: face cloaked", "index", i, "of", len(faces),
			"distance", pr.Distance, "model_guided", pr.ModelGuided)
	}

	return finalize(logger, original, result, faces, distances, opts, preset, anyModelGuided, facesCloaked, start)
}

func finalize(
	logger *slog.Logger,
	original, result *imageio.FloatImage,
	faces []facedetect.Face,
	distances []float64,
	opts Options,
	preset Preset,
	modelGuided bool,
	facesCloaked int,
	start time.Time,
) (Result, error) {
	var analysisBytes []byte
	rendered, err := analysis.Render(original, result, faces, distances)
	if err != nil {
		logger.Warn("cloak: analysis render failed, continuing without it", "error", err)
	} else {
		analysisBytes = rendered
	}

	encoded, err := imageio.Encode(result, toImageioFormat(opts.OutputFormat), opts.OutputQuality)
	if err != nil {
		return Result{}, &EncodeError{Err: err}
	}

	return Result{
		Image:    encoded,
		Analysis: analysisBytes,
		Metadata: Metadata{
			FacesDetected:         len(faces),
			FacesCloaked:          facesCloaked,
			Strength:              opts.Strength,
			Epsilon:               preset.Epsilon,
			PGDSteps:              preset.Steps,
			Width:                 original.Width,
			Height:                original.Height,
			ModelGuided:           modelGuided,
			EmbeddingDistances:    distances,
			AvgEmbeddingDistance:  avgPositive(distances),
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		},
	}, nil
}

func toImageioFormat(f OutputFormat) imageio.Format {
	if f == FormatPNG {
		return imageio.FormatPNG
	}
	return imageio.FormatJPEG
}
