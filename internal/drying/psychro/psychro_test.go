package psychro

import (
	"errors"
	"math"
	"testing"

	"github.com/restoros/drylog/internal/drying/dryerr"
)

// 标准焓湿表抽样点（GPP，允许±1.5格令偏差）
func TestGPPAgainstPsychrometricTable(t *testing.T) {
	cases := []struct {
		tempF, rh, want float64
	}{
		{70, 50, 54.4},
		{70, 100, 110.5},
		{80, 50, 77.2},
		{90, 30, 63.0},
		{60, 60, 46.3},
		{32, 100, 26.5},
	}

	for _, c := range cases {
		got, err := GPP(c.tempF, c.rh)
		if err != nil {
			t.Fatalf("GPP(%.0f, %.0f) returned error: %v", c.tempF, c.rh, err)
		}
		if math.Abs(got-c.want) > 1.5 {
			t.Errorf("GPP(%.0f, %.0f) = %.2f, want %.1f ±1.5", c.tempF, c.rh, got, c.want)
		}
	}
}

func TestGPPMonotonicInRH(t *testing.T) {
	for tempF := 30.0; tempF <= 100.0; tempF += 5 {
		prev := -1.0
		for rh := 0.0; rh <= 100.0; rh += 2 {
			got, err := GPP(tempF, rh)
			if err != nil {
				t.Fatalf("GPP(%.0f, %.0f) returned error: %v", tempF, rh, err)
			}
			if got < prev {
				t.Fatalf("GPP not monotonic in RH at temp=%.0f rh=%.0f: %.4f < %.4f", tempF, rh, got, prev)
			}
			prev = got
		}
	}
}

func TestGPPMonotonicInTemp(t *testing.T) {
	for rh := 2.0; rh <= 100.0; rh += 7 {
		prev := -1.0
		for tempF := 30.0; tempF <= 100.0; tempF += 1 {
			got, err := GPP(tempF, rh)
			if err != nil {
				t.Fatalf("GPP(%.0f, %.0f) returned error: %v", tempF, rh, err)
			}
			if got < prev {
				t.Fatalf("GPP not monotonic in temp at temp=%.0f rh=%.0f: %.4f < %.4f", tempF, rh, got, prev)
			}
			prev = got
		}
	}
}

func TestGPPDomainErrors(t *testing.T) {
	cases := []struct {
		name         string
		tempF, rh    float64
	}{
		{"rh above 100", 70, 100.5},
		{"negative rh", 70, -1},
		{"temp too low", -100, 50},
		{"temp too high", 300, 50},
		{"nan rh", 70, math.NaN()},
	}
	for _, c := range cases {
		_, err := GPP(c.tempF, c.rh)
		var domainErr *dryerr.CalculationDomainError
		if !errors.As(err, &domainErr) {
			t.Errorf("%s: expected CalculationDomainError, got %v", c.name, err)
		}
	}
}

func TestGPPZeroRH(t *testing.T) {
	got, err := GPP(75, 0)
	if err != nil {
		t.Fatalf("GPP(75, 0) returned error: %v", err)
	}
	if got != 0 {
		t.Errorf("GPP at 0%% RH = %.4f, want 0", got)
	}
}

func TestDelta(t *testing.T) {
	if d := Delta(55, nil); d != nil {
		t.Errorf("Delta with no prior = %v, want nil", *d)
	}
	prior := 60.0
	d := Delta(55, &prior)
	if d == nil || *d != -5.0 {
		t.Errorf("Delta(55, 60) = %v, want -5", d)
	}
}

func TestGrainDepression(t *testing.T) {
	if gd := GrainDepression(70, 55); gd != 15 {
		t.Errorf("GrainDepression(70, 55) = %.1f, want 15", gd)
	}
}
