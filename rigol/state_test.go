package rigol_test

import (
	"reflect"
	"testing"

	"github.com/nasa-jpl/golaborate-awg/rigol"
)

func pulseAt(t *testing.T, f float64) rigol.ChannelState {
	t.Helper()
	s, err := rigol.DefaultChannelState().ApplyWaveform(rigol.WaveformRequest{
		Waveform:  rigol.Pulse,
		Frequency: rigol.V(f),
		Amplitude: rigol.V(5),
		Offset:    rigol.V(0),
	}, rigol.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestWidthDutyRoundTrip(t *testing.T) {
	tbl := []struct {
		f, width float64
	}{
		{1e3, 100e-6},
		{1e3, 4e-9},
		{1e5, 2.5e-6},
		{1e6, 500e-9},
		{20e6, 10e-9},
	}
	for _, tt := range tbl {
		s := pulseAt(t, tt.f)
		s, err := s.SetPulseWidth(tt.width)
		if err != nil {
			t.Fatalf("width %v at %v Hz: %v", tt.width, tt.f, err)
		}
		duty := 100 * tt.width * tt.f
		if !approx(s.Pulse.DutyCycle, duty) {
			t.Errorf("width %v at %v Hz: expected duty %v, got %v", tt.width, tt.f, duty, s.Pulse.DutyCycle)
		}
		s, err = s.SetDutyCycle(s.Pulse.DutyCycle)
		if err != nil {
			t.Fatal(err)
		}
		if !approx(s.Pulse.Width, tt.width) {
			t.Errorf("duty %v at %v Hz: expected width %v, got %v", duty, tt.f, tt.width, s.Pulse.Width)
		}
	}
}

func TestDutyFiftyAtOneMegahertz(t *testing.T) {
	s, err := pulseAt(t, 1e6).SetDutyCycle(50)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(s.Pulse.Width, 500e-9) {
		t.Errorf("expected 500 ns, got %v", s.Pulse.Width)
	}
}

func TestAmplitudeModeExclusive(t *testing.T) {
	s := rigol.DefaultChannelState()
	s, err := s.SetAmplitudeMode(rigol.HighLow, rigol.V(1), rigol.V(-1))
	if err != nil {
		t.Fatal(err)
	}
	if s.AmplitudeMode != rigol.HighLow {
		t.Fatalf("expected high-low to be authoritative, got %s", s.AmplitudeMode)
	}
	s, err = s.SetVpp(rigol.V(2))
	if err != nil {
		t.Fatal(err)
	}
	if s.AmplitudeMode != rigol.VppOffset {
		t.Errorf("expected vpp-offset to be authoritative after SetVpp, got %s", s.AmplitudeMode)
	}
	if s.High != rigol.V(1) || s.Low != rigol.V(-1) {
		t.Errorf("high/low family was not retained: %v %v", s.High, s.Low)
	}
	s, err = s.SetLow(rigol.V(-2))
	if err != nil {
		t.Fatal(err)
	}
	if s.AmplitudeMode != rigol.HighLow {
		t.Errorf("expected high-low to be authoritative after SetLow, got %s", s.AmplitudeMode)
	}
}

func TestRejectedTransitionLeavesStateAlone(t *testing.T) {
	s, err := rigol.DefaultChannelState().ApplyWaveform(rigol.WaveformRequest{
		Waveform: rigol.Harmonic, Frequency: rigol.V(1e3), Amplitude: rigol.V(1), Offset: rigol.V(0),
	}, rigol.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	s, err = s.SetHarmonicAmplitude(3, rigol.V(0.5))
	if err != nil {
		t.Fatal(err)
	}
	before := s.Clone()
	if _, err = s.SetHarmonicAmplitude(17, rigol.V(1)); err == nil {
		t.Fatal("harmonic 17 accepted")
	}
	if _, err = s.SetHarmonicAmplitude(4, rigol.V(-1)); err == nil {
		t.Fatal("negative harmonic amplitude accepted")
	}
	if !reflect.DeepEqual(s, before) {
		t.Errorf("rejected transitions modified the state\nbefore %+v\nafter  %+v", before, s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := rigol.DefaultChannelState()
	a.Harmonic.Amplitude[2] = rigol.V(1)
	b := a.Clone()
	b.Harmonic.Amplitude[2] = rigol.V(2)
	b.Harmonic.Phase[3] = 45
	if a.Harmonic.Amplitude[2] != rigol.V(1) {
		t.Error("clone shares the amplitude map")
	}
	if _, ok := a.Harmonic.Phase[3]; ok {
		t.Error("clone shares the phase map")
	}
}

func TestSubParameterNeedsMatchingWaveform(t *testing.T) {
	s := rigol.DefaultChannelState()
	tbl := []struct {
		name string
		fcn  func() error
	}{
		{"pulse width", func() error { _, err := s.SetPulseWidth(1e-6); return err }},
		{"duty cycle", func() error { _, err := s.SetDutyCycle(50); return err }},
		{"leading edge", func() error { _, _, err := s.SetRisingEdge(1e-8); return err }},
		{"ramp symmetry", func() error { _, err := s.SetRampSymmetry(25); return err }},
		{"harmonic type", func() error { _, err := s.SetHarmonicType(rigol.HarmonicOdd); return err }},
		{"harmonic order", func() error { _, _, err := s.SetHarmonicOrder(4, rigol.DefaultHarmonicTable()); return err }},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fcn()
			if err == nil {
				t.Fatal("accepted on an unset channel")
			}
			if k := kindOf(t, err); k != rigol.WrongWaveform {
				t.Errorf("expected WrongWaveform, got %s", k)
			}
		})
	}
}

func TestWidthChangeReclampsEdges(t *testing.T) {
	s := pulseAt(t, 1e3)
	s, _, err := s.SetRisingEdge(1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if s.Pulse.RisingEdge != 1e-6 {
		t.Fatalf("edge shorter than the limit was changed to %v", s.Pulse.RisingEdge)
	}
	s, err = s.SetPulseWidth(1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if !approx(s.Pulse.RisingEdge, 0.625e-6) {
		t.Errorf("expected edge re-clamped to 625 ns, got %v", s.Pulse.RisingEdge)
	}
	if s.Pulse.FallingEdge != 20e-9 {
		t.Errorf("trailing edge within the limit was changed to %v", s.Pulse.FallingEdge)
	}
}

func TestApplyPulseHoldWidth(t *testing.T) {
	s := pulseAt(t, 1e3)
	s, err := s.SetPulseWidth(100e-6)
	if err != nil {
		t.Fatal(err)
	}
	s, err = s.SetPulseHold(rigol.HoldWidth)
	if err != nil {
		t.Fatal(err)
	}
	s, err = s.ApplyWaveform(rigol.WaveformRequest{Waveform: rigol.Pulse, Frequency: rigol.V(2e3), Amplitude: rigol.V(5), Offset: rigol.V(0)}, rigol.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if !approx(s.Pulse.Width, 100e-6) || !approx(s.Pulse.DutyCycle, 20) {
		t.Errorf("hold width: expected 100 µs at 20 %%, got %v at %v %%", s.Pulse.Width, s.Pulse.DutyCycle)
	}
}

func TestApplyPulseHoldDuty(t *testing.T) {
	s := pulseAt(t, 1e3)
	s, err := s.SetDutyCycle(20)
	if err != nil {
		t.Fatal(err)
	}
	s, err = s.ApplyWaveform(rigol.WaveformRequest{Waveform: rigol.Pulse, Frequency: rigol.V(4e3), Amplitude: rigol.V(5), Offset: rigol.V(0)}, rigol.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if !approx(s.Pulse.DutyCycle, 20) || !approx(s.Pulse.Width, 50e-6) {
		t.Errorf("hold duty: expected 50 µs at 20 %%, got %v at %v %%", s.Pulse.Width, s.Pulse.DutyCycle)
	}
}

func TestApplyPulseHoldWidthRefusedWhenWidthNoLongerFits(t *testing.T) {
	s := pulseAt(t, 1e3) // 500 µs wide
	s, err := s.SetPulseHold(rigol.HoldWidth)
	if err != nil {
		t.Fatal(err)
	}
	before := s.Clone()
	_, err = s.ApplyWaveform(rigol.WaveformRequest{Waveform: rigol.Pulse, Frequency: rigol.V(2e3), Amplitude: rigol.V(5), Offset: rigol.V(0)}, rigol.DefaultLimits())
	if err == nil {
		t.Fatal("500 µs pulse accepted in a 500 µs period")
	}
	if !reflect.DeepEqual(s, before) {
		t.Error("refused apply modified the state")
	}
}

func TestNoiseHasNoPhase(t *testing.T) {
	s, err := rigol.DefaultChannelState().ApplyWaveform(rigol.WaveformRequest{Waveform: rigol.Noise, Amplitude: rigol.V(1), Offset: rigol.V(0)}, rigol.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.SetPhase(90); err == nil {
		t.Error("phase accepted on noise")
	}
}

func TestApplyUnsetRefused(t *testing.T) {
	_, err := rigol.DefaultChannelState().ApplyWaveform(rigol.WaveformRequest{Frequency: rigol.V(1e3), Amplitude: rigol.V(1)}, rigol.DefaultLimits())
	if err == nil {
		t.Error("apply without a waveform accepted")
	}
}

func TestCopyFromKeepsOutput(t *testing.T) {
	src := pulseAt(t, 1e3).SetOutput(false)
	dst := rigol.DefaultChannelState().SetOutput(true)
	got := dst.CopyFrom(src)
	if !got.OutputEnabled {
		t.Error("copy changed the destination output")
	}
	got.OutputEnabled = false
	if !reflect.DeepEqual(got, src) {
		t.Errorf("copy differs from source\nsrc %+v\ngot %+v", src, got)
	}
}
