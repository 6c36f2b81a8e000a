package rigol_test

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-awg/rigol"
)

func TestEncodeGolden(t *testing.T) {
	tbl := []struct {
		ch     rigol.Channel
		op     rigol.Op
		params []string
		want   string
	}{
		{rigol.System, rigol.OpReset, nil, "*RST"},
		{rigol.System, rigol.OpIdentify, nil, "*IDN?"},
		{rigol.CH2, rigol.OpOutput, []string{"ON"}, ":OUTPut2 ON"},
		{rigol.CH1, rigol.OpImpedance, []string{"INFinity"}, ":OUTPut1:IMPedance INFinity"},
		{rigol.CH1, rigol.OpAmplitude, []string{"5"}, ":SOURce1:VOLTage 5"},
		{rigol.CH2, rigol.OpHighLevel, []string{"MAXimum"}, ":SOURce2:VOLTage:HIGH MAXimum"},
		{rigol.CH1, rigol.OpLowLevel, []string{"-1"}, ":SOURce1:VOLTage:LOW -1"},
		{rigol.CH1, rigol.OpOffset, []string{"0.5"}, ":SOURce1:VOLTage:OFFSet 0.5"},
		{rigol.CH1, rigol.OpApplySine, []string{"1000", "5", "0", "0"}, ":SOURce1:APPLy:SINusoid 1000,5,0,0"},
		{rigol.CH2, rigol.OpApplySquare, nil, ":SOURce2:APPLy:SQUare"},
		{rigol.CH1, rigol.OpApplyCustom, []string{"1000", "1", "0", "0"}, ":SOURce1:APPLy:CUSTom 1000,1,0,0"},
		{rigol.CH2, rigol.OpApplyNoise, []string{"2", "0.5"}, ":SOURce2:APPLy:NOISe 2,0.5"},
		{rigol.CH1, rigol.OpPulseDutyCycle, []string{"50"}, ":SOURce1:PULSe:DCYCle 50"},
		{rigol.CH1, rigol.OpPulseHold, []string{"WIDTh"}, ":SOURce1:PULSe:HOLD WIDTh"},
		{rigol.CH1, rigol.OpPulseLeading, []string{"2E-08"}, ":SOURce1:PULSe:TRANsition:LEADing 2E-08"},
		{rigol.CH1, rigol.OpPulseTrailing, []string{"2E-08"}, ":SOURce1:PULSe:TRANsition:TRAiling 2E-08"},
		{rigol.CH1, rigol.OpPulseWidth, []string{"5E-07"}, ":SOURce1:PULSe:WIDTh 5E-07"},
		{rigol.CH2, rigol.OpRampSymmetry, []string{"25"}, ":SOURce2:FUNCtion:RAMP:SYMMetry 25"},
		{rigol.CH1, rigol.OpHarmonicType, []string{"ODD"}, ":SOURce1:HARMonic:TYPe ODD"},
		{rigol.CH1, rigol.OpHarmonicOrder, []string{"8"}, ":SOURce1:HARMonic:ORDEr 8"},
		{rigol.CH1, rigol.OpHarmonicAmplitude, []string{"3", "1.5"}, ":SOURce1:HARMonic:AMPL 3,1.5"},
		{rigol.CH2, rigol.OpHarmonicPhase, []string{"3", "90"}, ":SOURce2:HARMonic:PHASe 3, 90"},
		{rigol.CH1, rigol.OpHarmonicUser, []string{"X100000000000001"}, ":SOURce1:HARMonic:USER X100000000000001"},
		{rigol.CH1, rigol.OpPhase, []string{"90"}, ":SOURce1:PHASe:ADJust 90"},
		{rigol.System, rigol.OpCopyChannel, []string{"CH1", "CH2"}, ":SYSTem:CSCopy CH1,CH2"},
		{rigol.System, rigol.OpReferenceClock, []string{"EXTernal"}, ":SYSTem:ROSCillator:SOURce EXTernal"},
	}
	for _, tt := range tbl {
		got, err := rigol.Encode(tt.ch, tt.op, tt.params...)
		if err != nil {
			t.Errorf("%s: %v", tt.op, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %q got %q", tt.op, tt.want, got)
		}
	}
}

func TestEncodeGrammarErrors(t *testing.T) {
	tbl := []struct {
		name   string
		ch     rigol.Channel
		op     rigol.Op
		params []string
	}{
		{"unknown op", rigol.CH1, rigol.Op(999), nil},
		{"system op on a channel", rigol.CH1, rigol.OpReset, nil},
		{"channel op without a channel", rigol.System, rigol.OpOutput, []string{"ON"}},
		{"channel 3", rigol.Channel(3), rigol.OpOutput, []string{"ON"}},
		{"missing parameter", rigol.CH1, rigol.OpOutput, nil},
		{"too many apply parameters", rigol.CH1, rigol.OpApplySine, []string{"1", "2", "3", "4", "5"}},
		{"noise with phase", rigol.CH1, rigol.OpApplyNoise, []string{"1", "0", "0"}},
		{"empty parameter", rigol.CH1, rigol.OpAmplitude, []string{""}},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rigol.Encode(tt.ch, tt.op, tt.params...)
			var pge *rigol.ProtocolGrammarError
			if !errors.As(err, &pge) {
				t.Errorf("expected a *ProtocolGrammarError, got %v", err)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tbl := []struct {
		v    rigol.Value
		want string
	}{
		{rigol.V(1000), "1000"},
		{rigol.V(5e-7), "5E-07"},
		{rigol.V(0.5), "0.5"},
		{rigol.V(-2.5), "-2.5"},
		{rigol.Minimum, "MINimum"},
		{rigol.Maximum, "MAXimum"},
	}
	for _, tt := range tbl {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("expected %s got %s", tt.want, got)
		}
	}
}

func TestParseValue(t *testing.T) {
	tbl := []struct {
		in   string
		want rigol.Value
	}{
		{"1e3", rigol.V(1000)},
		{"min", rigol.Minimum},
		{"MAXimum", rigol.Maximum},
	}
	for _, tt := range tbl {
		got, err := rigol.ParseValue(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %v got %v", tt.in, tt.want, got)
		}
	}
	if _, err := rigol.ParseValue("lots"); err == nil {
		t.Error("expected lots to be rejected")
	}
}
