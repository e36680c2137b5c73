package cloak

import "testing"

func TestAvgPositive(t *testing.T) {
	cases := []struct {
		name string
		in   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"all zero", []float64{0, 0, 0}, 0},
		{"mixed", []float64{0, 0.4, 0.2}, 0.3},
		{"all positive", []float64{0.1, 0.3, 0.5}, 0.3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := avgPositive(c.in)
			if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("avgPositive(%v) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestOptionsNormalizedDefaults(t *testing.T) {
	o := Options{}.normalized()
	if o.Strength != Standard {
		t.Fatalf("default strength = %q, want %q", o.Strength, Standard)
	}
	if o.OutputFormat != FormatJPEG {
		t.Fatalf("default format = %q, want %q", o.OutputFormat, FormatJPEG)
	}
	if o.OutputQuality != defaultQuality {
		t.Fatalf("default quality = %d, want %d", o.OutputQuality, defaultQuality)
	}
}

func TestOptionsNormalizedClampsQuality(t *testing.T) {
	low := Options{OutputQuality: 10}.normalized()
	if low.OutputQuality != 50 {
		t.Fatalf("low quality clamp = %d, want 50", low.OutputQuality)
	}
	high := Options{OutputQuality: 1000}.normalized()
	if high.OutputQuality != 100 {
		t.Fatalf("high quality clamp = %d, want 100", high.OutputQuality)
	}
}

func TestOptionsNormalizedRejectsUnknownStrength(t *testing.T) {
	o := Options{Strength: "nonsense"}.normalized()
	if o.Strength != Standard {
		t.Fatalf("unknown strength should normalize to Standard, got %q", o.Strength)
	}
}
