package rigol

import (
	"math"

	"github.com/nasa-jpl/golaborate-awg/util"
)

const (
	// MinPulseWidth is the narrowest pulse the DG4000 can produce, in seconds
	MinPulseWidth = 4e-9

	// EdgeWidthRatio bounds the rising and falling edge times as a fraction of the pulse width
	EdgeWidthRatio = 0.625

	// MinImpedance and MaxImpedance bound the numeric output load setting, in ohms
	MinImpedance = 1.
	MaxImpedance = 10e3

	// MinHarmonic and MaxHarmonic bound the harmonic numbers that can be addressed
	MinHarmonic = 2
	MaxHarmonic = 16

	// UserMaskLen is the number of user-selectable harmonics, 2nd through 16th
	UserMaskLen = MaxHarmonic - MinHarmonic + 1

	// tol absorbs floating point error at the edges of the ranges, which are
	// computed from periods that are rarely exact in binary
	tol = 1e-9
)

// Limits holds the instrument dependent ranges used during validation
type Limits struct {
	// MinFrequency is the lowest output frequency of any waveform, in Hz
	MinFrequency float64

	// MaxFrequency is the highest output frequency of each waveform, in Hz.
	// A waveform missing from the map is only required to be positive.
	MaxFrequency map[Waveform]float64

	// Harmonics bounds the harmonic order for each output impedance
	Harmonics HarmonicTable
}

// DefaultLimits returns the limits of the DG4162, the top model of the series
func DefaultLimits() Limits {
	return Limits{
		MinFrequency: 1e-6,
		MaxFrequency: map[Waveform]float64{
			Sine:     160e6,
			Square:   50e6,
			Pulse:    40e6,
			Ramp:     4e6,
			Custom:   40e6,
			User:     40e6,
			Harmonic: 80e6,
		},
		Harmonics: DefaultHarmonicTable(),
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// above reports whether x exceeds limit by more than the rounding tolerance
func above(x, limit float64) bool {
	return x > limit+tol*math.Abs(limit)
}

// below reports whether x is under limit by more than the rounding tolerance
func below(x, limit float64) bool {
	return x < limit-tol*math.Abs(limit)
}

func validateChannel(ch Channel) error {
	if !ch.Valid() {
		return invalid(ch, "channel", InvalidChannel, "channel %d is not 1 or 2", int(ch))
	}
	return nil
}

// requireWaveform refuses sub-parameters of a waveform the channel is not producing
func requireWaveform(ch Channel, s ChannelState, want Waveform, param string) error {
	if s.Waveform != want {
		return invalid(ch, param, WrongWaveform, "channel is producing %s, %s applies only to %s", s.Waveform, param, want)
	}
	return nil
}

// period returns 1/f for a numeric frequency
func period(f Value) (float64, bool) {
	if !f.IsNumeric() || !finite(f.Num) || f.Num <= 0 {
		return 0, false
	}
	return 1 / f.Num, true
}

// ValidateFrequency checks a numeric frequency against the range of waveform
// w.  MINimum and MAXimum are left to the instrument.
func ValidateFrequency(ch Channel, w Waveform, f Value, lim Limits) error {
	if !f.IsNumeric() {
		return nil
	}
	if !finite(f.Num) || f.Num <= 0 {
		return invalid(ch, "frequency", OutOfRange, "%s Hz is not a positive frequency", formatFloat(f.Num))
	}
	if lim.MinFrequency > 0 && below(f.Num, lim.MinFrequency) {
		return invalid(ch, "frequency", OutOfRange, "%s Hz is below the %s Hz minimum", formatFloat(f.Num), formatFloat(lim.MinFrequency))
	}
	if max, ok := lim.MaxFrequency[w]; ok && max > 0 && above(f.Num, max) {
		return invalid(ch, "frequency", OutOfRange, "%s Hz is above the %s Hz maximum for %s", formatFloat(f.Num), formatFloat(max), w)
	}
	return nil
}

// ValidateAmplitude checks a numeric peak-to-peak amplitude is positive
func ValidateAmplitude(ch Channel, vpp Value) error {
	if !vpp.IsNumeric() {
		return nil
	}
	if !finite(vpp.Num) || vpp.Num <= 0 {
		return invalid(ch, "amplitude", OutOfRange, "%s Vpp is not a positive amplitude", formatFloat(vpp.Num))
	}
	return nil
}

// ValidateOffset checks a numeric offset is a finite voltage
func ValidateOffset(ch Channel, offset Value) error {
	if offset.IsNumeric() && !finite(offset.Num) {
		return invalid(ch, "offset", OutOfRange, "%v is not a voltage", offset.Num)
	}
	return nil
}

// ValidateLevels checks a high/low pair; when both are numeric high must exceed low
func ValidateLevels(ch Channel, high, low Value) error {
	if high.IsNumeric() && !finite(high.Num) {
		return invalid(ch, "high level", OutOfRange, "%v is not a voltage", high.Num)
	}
	if low.IsNumeric() && !finite(low.Num) {
		return invalid(ch, "low level", OutOfRange, "%v is not a voltage", low.Num)
	}
	if high.IsNumeric() && low.IsNumeric() && high.Num <= low.Num {
		return invalid(ch, "levels", Inconsistent, "high level %s V must exceed low level %s V", formatFloat(high.Num), formatFloat(low.Num))
	}
	return nil
}

// ValidatePhase checks deg is a finite angle and returns it wrapped into [0, 360)
func ValidatePhase(ch Channel, param string, deg float64) (float64, error) {
	if !finite(deg) {
		return 0, invalid(ch, param, OutOfRange, "%v is not an angle", deg)
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 { // -tiny + 360 rounds to 360
		deg = 0
	}
	return deg, nil
}

// ValidateDutyCycle checks
//	100 × MinPulseWidth / period ≤ duty ≤ 100 × (1 − 2 × MinPulseWidth / period)
// Out of range requests are rejected, the instrument does not adjust them.
func ValidateDutyCycle(ch Channel, duty float64, f Value) error {
	p, ok := period(f)
	if !ok {
		return invalid(ch, "duty cycle", Inconsistent, "the pulse period is unknown while the frequency is %s", f)
	}
	lo := 100 * MinPulseWidth / p
	hi := 100 * (1 - 2*MinPulseWidth/p)
	if !finite(duty) || below(duty, lo) {
		return invalid(ch, "duty cycle", OutOfRange, "%s %% is below the %s %% minimum for a %s s period", formatFloat(duty), formatFloat(lo), formatFloat(p))
	}
	if above(duty, hi) {
		return invalid(ch, "duty cycle", OutOfRange, "%s %% is above the %s %% maximum for a %s s period", formatFloat(duty), formatFloat(hi), formatFloat(p))
	}
	return nil
}

// ValidatePulseWidth checks MinPulseWidth ≤ width ≤ period − 2 × MinPulseWidth
func ValidatePulseWidth(ch Channel, width float64, f Value) error {
	p, ok := period(f)
	if !ok {
		return invalid(ch, "pulse width", Inconsistent, "the pulse period is unknown while the frequency is %s", f)
	}
	hi := p - 2*MinPulseWidth
	if !finite(width) || below(width, MinPulseWidth) {
		return invalid(ch, "pulse width", OutOfRange, "%s s is below the %s s minimum", formatFloat(width), formatFloat(MinPulseWidth))
	}
	if above(width, hi) {
		return invalid(ch, "pulse width", OutOfRange, "%s s is above the %s s maximum for a %s s period", formatFloat(width), formatFloat(hi), formatFloat(p))
	}
	return nil
}

// ClampEdge limits a rising or falling edge time to EdgeWidthRatio × width.
// The instrument adjusts such edges instead of rejecting them, so an
// oversized request is accepted and the returned Adjustment says so.
// Negative edges are rejected.
func ClampEdge(ch Channel, param string, edge, width float64) (Adjustment, error) {
	if !finite(edge) || edge < 0 {
		return Adjustment{}, invalid(ch, param, OutOfRange, "%v s is not an edge time", edge)
	}
	max := EdgeWidthRatio * width
	applied := util.Clamp(edge, 0, max)
	return Adjustment{Param: param, Requested: edge, Applied: applied, Adjusted: applied != edge}, nil
}

// ValidatePulseDelay checks the delay is a finite, non-negative time
func ValidatePulseDelay(ch Channel, delay float64) error {
	if !finite(delay) || delay < 0 {
		return invalid(ch, "pulse delay", OutOfRange, "%v s is not a delay", delay)
	}
	return nil
}

// ValidateSymmetry checks a ramp symmetry percentage
func ValidateSymmetry(ch Channel, pct float64) error {
	if !finite(pct) || pct < 0 || pct > 100 {
		return invalid(ch, "ramp symmetry", OutOfRange, "%v %% is outside 0 to 100 %%", pct)
	}
	return nil
}

// ValidateImpedance checks a load setting is HighZ or within MinImpedance..MaxImpedance
func ValidateImpedance(ch Channel, z Impedance) error {
	if z.IsHighZ() {
		return nil
	}
	f := float64(z)
	if math.IsNaN(f) || f < MinImpedance || f > MaxImpedance {
		return invalid(ch, "impedance", OutOfRange, "%v Ω is outside %s to %s Ω", f, formatFloat(MinImpedance), formatFloat(MaxImpedance))
	}
	return nil
}

// ValidateHarmonicNumber checks sn addresses one of harmonics 2 through 16
func ValidateHarmonicNumber(ch Channel, sn int) error {
	if sn < MinHarmonic || sn > MaxHarmonic {
		return invalid(ch, "harmonic number", OutOfRange, "%d is outside %d to %d", sn, MinHarmonic, MaxHarmonic)
	}
	return nil
}

// ValidateHarmonicAmplitude checks a numeric harmonic amplitude is non-negative
func ValidateHarmonicAmplitude(ch Channel, amp Value) error {
	if amp.IsNumeric() && (!finite(amp.Num) || amp.Num < 0) {
		return invalid(ch, "harmonic amplitude", OutOfRange, "%v Vpp is not an amplitude", amp.Num)
	}
	return nil
}

// ValidateUserMask checks a user harmonic selection holds exactly UserMaskLen
// entries, harmonics 2 through 16.  The fundamental is always on and has no entry.
func ValidateUserMask(ch Channel, mask []bool) ([UserMaskLen]bool, error) {
	var out [UserMaskLen]bool
	if len(mask) != UserMaskLen {
		return out, invalid(ch, "harmonic user mask", Malformed, "%d entries given, exactly %d (harmonics 2 to 16) are required", len(mask), UserMaskLen)
	}
	copy(out[:], mask)
	return out, nil
}
