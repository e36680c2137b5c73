package cloak

import "testing"

func TestPresetValues(t *testing.T) {
	cases := []struct {
		strength Strength
		epsilon  float32
		steps    int
		samples  int
	}{
		{Subtle, 6.0 / 255.0, 40, 4},
		{Standard, 12.0 / 255.0, 60, 6},
		{Maximum, 24.0 / 255.0, 100, 8},
	}
	for _, c := range cases {
		p := c.strength.Preset()
		if p.Epsilon != c.epsilon || p.Steps != c.steps || p.Samples != c.samples {
			t.Fatalf("%s.Preset() = %+v, want eps=%v steps=%d samples=%d", c.strength, p, c.epsilon, c.steps, c.samples)
		}
	}
}

func TestUnknownStrengthFallsBackToStandard(t *testing.T) {
	var s Strength = "extreme"
	if s.Valid() {
		t.Fatalf("%q should not be a valid strength", s)
	}
	if got, want := s.Preset(), Standard.Preset(); got != want {
		t.Fatalf("unknown strength preset = %+v, want Standard's %+v", got, want)
	}
}

func TestStrengthMonotonicEpsilon(t *testing.T) {
	subtle := Subtle.Preset()
	standard := Standard.Preset()
	maximum := Maximum.Preset()
	if !(subtle.Epsilon < standard.Epsilon && standard.Epsilon < maximum.Epsilon) {
		t.Fatalf("epsilon should increase monotonically: subtle=%v standard=%v maximum=%v",
			subtle.Epsilon, standard.Epsilon, maximum.Epsilon)
	}
	if !(subtle.Steps < standard.Steps && standard.Steps < maximum.Steps) {
		t.Fatalf("steps should increase monotonically")
	}
}

func TestOutputFormatValidate(t *testing.T) {
	for _, f := range []OutputFormat{FormatJPEG, FormatPNG, ""} {
		if err := f.validate(); err != nil {
			t.Fatalf("validate(%q) = %v, want nil", f, err)
		}
	}
	if err := OutputFormat("bmp").validate(); err == nil {
		t.Fatalf("validate(bmp) should error")
	}
}
