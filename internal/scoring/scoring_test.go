package scoring

import (
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	c := DefaultConverter()
	for theta := -6.0; theta <= 6.0; theta += 0.013 {
		got := c.ToTheta(c.ToScore(theta))
		if math.Abs(got-theta) > 1e-6 {
			t.Errorf("ToTheta(ToScore(%v)) = %v", theta, got)
		}
	}

	odd, err := NewConverter(-3.7, 0.021, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	for _, theta := range []float64{-4, -0.5, 0, 1e-9, 2.25, 4} {
		if got := odd.ToTheta(odd.ToScore(theta)); math.Abs(got-theta) > 1e-6 {
			t.Errorf("odd scale round trip of %v = %v", theta, got)
		}
	}
}

func TestMonotonic(t *testing.T) {
	c := DefaultConverter()
	prev := math.Inf(-1)
	for theta := -4.0; theta <= 4.0; theta += 0.05 {
		s := c.ToScore(theta)
		if s <= prev {
			t.Fatalf("score not increasing at θ=%v", theta)
		}
		prev = s
	}
}

func TestZForLevel(t *testing.T) {
	tests := []struct {
		level, want float64
	}{
		{0.95, 1.959964},
		{0.90, 1.644854},
		{0.99, 2.575829},
		{0.6827, 1.0},
	}
	for _, tt := range tests {
		if got := ZForLevel(tt.level); math.Abs(got-tt.want) > 1e-4 {
			t.Errorf("ZForLevel(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestConvert(t *testing.T) {
	c := DefaultConverter()
	s := c.Convert(1.0, 0.3)
	if s.Value != 115 {
		t.Errorf("Value = %v, want 115", s.Value)
	}
	half := 1.959964 * 0.3 * 15
	if math.Abs(s.Lower-(115-half)) > 1e-4 || math.Abs(s.Upper-(115+half)) > 1e-4 {
		t.Errorf("interval = [%v, %v], want 115±%v", s.Lower, s.Upper, half)
	}
	if s.Level != 0.95 {
		t.Errorf("Level = %v", s.Level)
	}
	if mid := (s.Lower + s.Upper) / 2; math.Abs(mid-s.Value) > 1e-9 {
		t.Errorf("interval not symmetric: mid %v", mid)
	}

	zero := c.Convert(-0.4, 0)
	if zero.Lower != zero.Value || zero.Upper != zero.Value {
		t.Errorf("zero SE should collapse the interval: %+v", zero)
	}
}

func TestNewConverterRejects(t *testing.T) {
	cases := []struct {
		base, scale, level float64
	}{
		{100, 0, 0.95},
		{100, -15, 0.95},
		{100, math.Inf(1), 0.95},
		{math.NaN(), 15, 0.95},
		{100, 15, 0},
		{100, 15, 1},
		{100, 15, 1.2},
	}
	for _, tc := range cases {
		if _, err := NewConverter(tc.base, tc.scale, tc.level); err == nil {
			t.Errorf("NewConverter(%v, %v, %v) should fail", tc.base, tc.scale, tc.level)
		}
	}
}

func TestRound(t *testing.T) {
	if got := Round(114.8349, 1); got != 114.8 {
		t.Errorf("Round = %v", got)
	}
	if got := Round(-2.005, 0); got != -2 {
		t.Errorf("Round = %v", got)
	}
}
