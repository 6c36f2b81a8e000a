package rigol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nasa-jpl/golaborate-awg/util"
)

// Op is a command the encoder knows the grammar of
type Op int

const (
	OpReset Op = iota
	OpIdentify
	OpOutput
	OpImpedance
	OpAmplitude
	OpHighLevel
	OpLowLevel
	OpOffset
	OpApplySine
	OpApplySquare
	OpApplyPulse
	OpApplyRamp
	OpApplyCustom
	OpApplyUser
	OpApplyHarmonic
	OpApplyNoise
	OpPulseDutyCycle
	OpPulseDelay
	OpPulseHold
	OpPulseLeading
	OpPulseTrailing
	OpPulseWidth
	OpRampSymmetry
	OpHarmonicType
	OpHarmonicOrder
	OpHarmonicAmplitude
	OpHarmonicPhase
	OpHarmonicUser
	OpPhase
	OpCopyChannel
	OpReferenceClock
)

// grammar describes one command.  header holds {n} where the channel number
// goes; system commands have no channel.
type grammar struct {
	name     string
	header   string
	system   bool
	min, max int
	sep      string
}

var grammars = map[Op]grammar{
	OpReset:             {name: "reset", header: "*RST", system: true},
	OpIdentify:          {name: "identify", header: "*IDN?", system: true},
	OpOutput:            {name: "output", header: ":OUTPut{n}", min: 1, max: 1},
	OpImpedance:         {name: "impedance", header: ":OUTPut{n}:IMPedance", min: 1, max: 1},
	OpAmplitude:         {name: "amplitude", header: ":SOURce{n}:VOLTage", min: 1, max: 1},
	OpHighLevel:         {name: "high level", header: ":SOURce{n}:VOLTage:HIGH", min: 1, max: 1},
	OpLowLevel:          {name: "low level", header: ":SOURce{n}:VOLTage:LOW", min: 1, max: 1},
	OpOffset:            {name: "offset", header: ":SOURce{n}:VOLTage:OFFSet", min: 1, max: 1},
	OpApplySine:         {name: "apply sine", header: ":SOURce{n}:APPLy:SINusoid", max: 4, sep: ","},
	OpApplySquare:       {name: "apply square", header: ":SOURce{n}:APPLy:SQUare", max: 4, sep: ","},
	OpApplyPulse:        {name: "apply pulse", header: ":SOURce{n}:APPLy:PULSe", max: 4, sep: ","},
	OpApplyRamp:         {name: "apply ramp", header: ":SOURce{n}:APPLy:RAMP", max: 4, sep: ","},
	OpApplyCustom:       {name: "apply custom", header: ":SOURce{n}:APPLy:CUSTom", max: 4, sep: ","},
	OpApplyUser:         {name: "apply user", header: ":SOURce{n}:APPLy:USER", max: 4, sep: ","},
	OpApplyHarmonic:     {name: "apply harmonic", header: ":SOURce{n}:APPLy:HARMonic", max: 4, sep: ","},
	OpApplyNoise:        {name: "apply noise", header: ":SOURce{n}:APPLy:NOISe", max: 2, sep: ","},
	OpPulseDutyCycle:    {name: "pulse duty cycle", header: ":SOURce{n}:PULSe:DCYCle", min: 1, max: 1},
	OpPulseDelay:        {name: "pulse delay", header: ":SOURce{n}:PULSe:DELay", min: 1, max: 1},
	OpPulseHold:         {name: "pulse hold", header: ":SOURce{n}:PULSe:HOLD", min: 1, max: 1},
	OpPulseLeading:      {name: "pulse leading edge", header: ":SOURce{n}:PULSe:TRANsition:LEADing", min: 1, max: 1},
	OpPulseTrailing:     {name: "pulse trailing edge", header: ":SOURce{n}:PULSe:TRANsition:TRAiling", min: 1, max: 1},
	OpPulseWidth:        {name: "pulse width", header: ":SOURce{n}:PULSe:WIDTh", min: 1, max: 1},
	OpRampSymmetry:      {name: "ramp symmetry", header: ":SOURce{n}:FUNCtion:RAMP:SYMMetry", min: 1, max: 1},
	OpHarmonicType:      {name: "harmonic type", header: ":SOURce{n}:HARMonic:TYPe", min: 1, max: 1},
	OpHarmonicOrder:     {name: "harmonic order", header: ":SOURce{n}:HARMonic:ORDEr", min: 1, max: 1},
	OpHarmonicAmplitude: {name: "harmonic amplitude", header: ":SOURce{n}:HARMonic:AMPL", min: 2, max: 2, sep: ","},
	OpHarmonicPhase:     {name: "harmonic phase", header: ":SOURce{n}:HARMonic:PHASe", min: 2, max: 2, sep: ", "}, // the instrument documents a space here
	OpHarmonicUser:      {name: "harmonic user", header: ":SOURce{n}:HARMonic:USER", min: 1, max: 1},
	OpPhase:             {name: "phase", header: ":SOURce{n}:PHASe:ADJust", min: 1, max: 1},
	OpCopyChannel:       {name: "copy channel", header: ":SYSTem:CSCopy", system: true, min: 2, max: 2, sep: ","},
	OpReferenceClock:    {name: "reference clock", header: ":SYSTem:ROSCillator:SOURce", system: true, min: 1, max: 1},
}

func (o Op) String() string {
	if g, ok := grammars[o]; ok {
		return g.name
	}
	return "Op(" + strconv.Itoa(int(o)) + ")"
}

// Encode formats op for channel ch with the given parameters, already in
// their textual form.  System commands take ch == System.  Encode does no
// I/O and does not validate values, only the shape of the command.
func Encode(ch Channel, op Op, params ...string) (string, error) {
	g, ok := grammars[op]
	if !ok {
		return "", &ProtocolGrammarError{Op: op, Reason: "unknown operation"}
	}
	if g.system && ch != System {
		return "", &ProtocolGrammarError{Op: op, Reason: fmt.Sprintf("system command addressed to %s", ch)}
	}
	if !g.system && !ch.Valid() {
		return "", &ProtocolGrammarError{Op: op, Reason: fmt.Sprintf("channel command addressed to %s", ch)}
	}
	if len(params) < g.min || len(params) > g.max {
		return "", &ProtocolGrammarError{Op: op, Reason: fmt.Sprintf("%d parameters given, %d to %d accepted", len(params), g.min, g.max)}
	}
	for i, p := range params {
		if p == "" {
			return "", &ProtocolGrammarError{Op: op, Reason: fmt.Sprintf("parameter %d is empty", i+1)}
		}
	}
	hdr := g.header
	if !g.system {
		hdr = strings.Replace(hdr, "{n}", strconv.Itoa(int(ch)), 1)
	}
	if len(params) == 0 {
		return hdr, nil
	}
	return hdr + " " + strings.Join(params, g.sep), nil
}

var applyOps = map[Waveform]Op{
	Sine:     OpApplySine,
	Square:   OpApplySquare,
	Pulse:    OpApplyPulse,
	Ramp:     OpApplyRamp,
	Custom:   OpApplyCustom,
	User:     OpApplyUser,
	Harmonic: OpApplyHarmonic,
	Noise:    OpApplyNoise,
}

// applyOp is the APPLy operation for waveform w
func applyOp(w Waveform) (Op, bool) {
	op, ok := applyOps[w]
	return op, ok
}

// applyParams is the parameter list of APPLy for a channel already in state s
func applyParams(s ChannelState) []string {
	if s.Waveform == Noise {
		return []string{s.Vpp.String(), s.Offset.String()}
	}
	last := s.Phase
	if s.Waveform == Pulse {
		last = s.Pulse.Delay
	}
	return []string{s.Frequency.String(), s.Vpp.String(), s.Offset.String(), formatFloat(last)}
}

// encodeUserMask renders a user harmonic selection.  The fundamental is
// always on and is written as a literal X ahead of harmonics 2 through 16.
func encodeUserMask(mask [UserMaskLen]bool) string {
	return "X" + util.BitString(mask[:])
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
