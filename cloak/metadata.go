package cloak

// Metadata mirrors the spec's CloakMetadata dictionary exactly: field
// names below are the Go-idiomatic spelling of the spec's snake_case
// keys, but every key spec.md/SPEC_FULL.md names is represented.
type Metadata struct {
	FacesDetected int      `json:"faces_detected"`
	FacesCloaked  int      `json:"faces_cloaked"`
	Strength      Strength `json:"strength"`
	Epsilon       float32  `json:"epsilon"`
	PGDSteps      int      `json:"pgd_steps"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`

	// ModelGuided is the authoritative signal for whether optimization
	// ran embedding-guided SPSA; Strength always echoes the requested
	// value even when the model was unavailable, per the spec's open
	// question on field semantics.
	ModelGuided bool `json:"model_guided"`

	EmbeddingDistances    []float64 `json:"embedding_distances"`
	AvgEmbeddingDistance  float64   `json:"avg_embedding_distance"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
}

// avgPositive returns the mean of the strictly-positive entries of
// dists, or 0 when there are none.
func avgPositive(dists []float64) float64 {
	var sum float64
	var n int
	for _, d := range dists {
		if d > 0 {
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
