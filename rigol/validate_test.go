package rigol_test

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-awg/rigol"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func kindOf(t *testing.T, err error) rigol.ErrorKind {
	t.Helper()
	var ve *rigol.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a *ValidationError, got %v", err)
	}
	return ve.Kind
}

func TestValidateDutyCycle(t *testing.T) {
	f := rigol.V(1e6) // 1 µs period, duty spans 0.4 % to 99.2 %
	tbl := []struct {
		duty float64
		ok   bool
	}{
		{0.4, true},
		{0.39, false},
		{50, true},
		{99.2, true},
		{99.3, false},
		{math.NaN(), false},
	}
	for _, tt := range tbl {
		err := rigol.ValidateDutyCycle(rigol.CH1, tt.duty, f)
		if (err == nil) != tt.ok {
			t.Errorf("duty %v at 1 MHz: expected ok=%v, got %v", tt.duty, tt.ok, err)
		}
	}
}

func TestValidateDutyCycleUnknownPeriod(t *testing.T) {
	err := rigol.ValidateDutyCycle(rigol.CH1, 50, rigol.Maximum)
	if err == nil {
		t.Fatal("expected duty cycle with a MAX frequency to be refused")
	}
	if k := kindOf(t, err); k != rigol.Inconsistent {
		t.Errorf("expected Inconsistent, got %s", k)
	}
}

func TestValidatePulseWidth(t *testing.T) {
	f := rigol.V(1e6)
	tbl := []struct {
		width float64
		ok    bool
	}{
		{4e-9, true},
		{3e-9, false},
		{500e-9, true},
		{992e-9, true},
		{995e-9, false},
	}
	for _, tt := range tbl {
		err := rigol.ValidatePulseWidth(rigol.CH2, tt.width, f)
		if (err == nil) != tt.ok {
			t.Errorf("width %v at 1 MHz: expected ok=%v, got %v", tt.width, tt.ok, err)
		}
	}
}

func TestClampEdge(t *testing.T) {
	adj, err := rigol.ClampEdge(rigol.CH1, "leading edge", 1e-6, 500e-9)
	if err != nil {
		t.Fatal(err)
	}
	if !adj.Adjusted {
		t.Error("expected an edge longer than 0.625 × width to be adjusted")
	}
	if !approx(adj.Applied, 0.625*500e-9) {
		t.Errorf("expected edge clamped to %v, got %v", 0.625*500e-9, adj.Applied)
	}
	if adj.Requested != 1e-6 {
		t.Errorf("expected the request to be reported, got %v", adj.Requested)
	}

	adj, err = rigol.ClampEdge(rigol.CH1, "leading edge", 20e-9, 500e-9)
	if err != nil {
		t.Fatal(err)
	}
	if adj.Adjusted || adj.Applied != 20e-9 {
		t.Errorf("short edge was modified: %+v", adj)
	}

	if _, err = rigol.ClampEdge(rigol.CH1, "leading edge", -1e-9, 500e-9); err == nil {
		t.Error("negative edge accepted")
	}
}

func TestValidatePhaseWraps(t *testing.T) {
	tbl := []struct {
		in, out float64
	}{
		{0, 0},
		{90, 90},
		{360, 0},
		{450, 90},
		{-90, 270},
		{-720, 0},
	}
	for _, tt := range tbl {
		out, err := rigol.ValidatePhase(rigol.CH1, "phase", tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if out != tt.out {
			t.Errorf("phase %v: expected %v, got %v", tt.in, tt.out, out)
		}
	}
	if _, err := rigol.ValidatePhase(rigol.CH1, "phase", math.Inf(1)); err == nil {
		t.Error("infinite phase accepted")
	}
}

func TestValidateFrequency(t *testing.T) {
	lim := rigol.DefaultLimits()
	tbl := []struct {
		name string
		w    rigol.Waveform
		f    rigol.Value
		ok   bool
	}{
		{"sine 1 kHz", rigol.Sine, rigol.V(1e3), true},
		{"sine 200 MHz", rigol.Sine, rigol.V(200e6), false},
		{"ramp 5 MHz", rigol.Ramp, rigol.V(5e6), false},
		{"zero", rigol.Sine, rigol.V(0), false},
		{"negative", rigol.Square, rigol.V(-1), false},
		{"MAX passes through", rigol.Sine, rigol.Maximum, true},
		{"MIN passes through", rigol.Pulse, rigol.Minimum, true},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			err := rigol.ValidateFrequency(rigol.CH1, tt.w, tt.f, lim)
			if (err == nil) != tt.ok {
				t.Errorf("expected ok=%v, got %v", tt.ok, err)
			}
		})
	}
}

func TestValidateLevels(t *testing.T) {
	if err := rigol.ValidateLevels(rigol.CH1, rigol.V(1), rigol.V(1)); err == nil {
		t.Error("high equal to low accepted")
	}
	if err := rigol.ValidateLevels(rigol.CH1, rigol.V(1), rigol.V(-1)); err != nil {
		t.Error(err)
	}
	if err := rigol.ValidateLevels(rigol.CH1, rigol.Maximum, rigol.V(3)); err != nil {
		t.Errorf("MAX high level should pass through, got %v", err)
	}
}

func TestValidateImpedance(t *testing.T) {
	tbl := []struct {
		z  rigol.Impedance
		ok bool
	}{
		{rigol.HighZ, true},
		{50, true},
		{1, true},
		{10e3, true},
		{0.5, false},
		{20e3, false},
	}
	for _, tt := range tbl {
		if err := rigol.ValidateImpedance(rigol.CH1, tt.z); (err == nil) != tt.ok {
			t.Errorf("%s Ω: expected ok=%v, got %v", tt.z, tt.ok, err)
		}
	}
}

func TestValidateHarmonicOrder(t *testing.T) {
	table := rigol.DefaultHarmonicTable()
	tbl := []struct {
		name     string
		order    int
		z        rigol.Impedance
		f        rigol.Value
		ok       bool
		verified bool
	}{
		{"50 Ω order 16", 16, 50, rigol.V(1e3), true, true},
		{"high Z order 2", 2, rigol.HighZ, rigol.V(1e3), true, true},
		{"order 17", 17, 50, rigol.V(1e3), false, true},
		{"order 1", 1, 50, rigol.V(1e3), false, true},
		{"unknown load uses fallback", 8, 600, rigol.V(1e3), true, false},
		{"unknown load beyond fallback", 9, 600, rigol.V(1e3), false, false},
		{"beyond bandwidth", 3, 50, rigol.V(80e6), false, true},
		{"MAX frequency skips bandwidth", 16, 50, rigol.Maximum, true, true},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			verified, err := rigol.ValidateHarmonicOrder(rigol.CH1, tt.order, tt.z, tt.f, table)
			if (err == nil) != tt.ok {
				t.Errorf("expected ok=%v, got %v", tt.ok, err)
			}
			if verified != tt.verified {
				t.Errorf("expected verified=%v, got %v", tt.verified, verified)
			}
		})
	}
}

func TestValidateUserMaskLength(t *testing.T) {
	if _, err := rigol.ValidateUserMask(rigol.CH1, make([]bool, 14)); err == nil {
		t.Error("14 entry mask accepted")
	}
	if _, err := rigol.ValidateUserMask(rigol.CH1, make([]bool, 16)); err == nil {
		t.Error("16 entry mask accepted")
	}
	if _, err := rigol.ValidateUserMask(rigol.CH1, make([]bool, rigol.UserMaskLen)); err != nil {
		t.Error(err)
	}
}

func TestParseChannel(t *testing.T) {
	for _, s := range []string{"1", "ch1", "CH1"} {
		ch, err := rigol.ParseChannel(s)
		if err != nil || ch != rigol.CH1 {
			t.Errorf("%q: expected CH1, got %v %v", s, ch, err)
		}
	}
	_, err := rigol.ParseChannel("3")
	if err == nil {
		t.Fatal("channel 3 accepted")
	}
	if k := kindOf(t, err); k != rigol.InvalidChannel {
		t.Errorf("expected InvalidChannel, got %s", k)
	}
}

func TestParseWaveformShortForms(t *testing.T) {
	for _, s := range []string{"sine", "SIN", "SINusoid", "sinusoid"} {
		w, err := rigol.ParseWaveform(s)
		if err != nil || w != rigol.Sine {
			t.Errorf("%q: expected sine, got %v %v", s, w, err)
		}
	}
	if _, err := rigol.ParseWaveform("triangle"); err == nil {
		t.Error("unknown waveform accepted")
	}
}
