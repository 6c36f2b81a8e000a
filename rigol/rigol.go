/*Package rigol provides control of Rigol DG4000 series dual channel arbitrary
waveform generators (DG4062, DG4102, DG4162) through their SCPI interface.

The package keeps a logical model of each output channel and refuses, before
anything is transmitted, requests the instrument would reject or silently
misapply.  The link itself is an external collaborator satisfying Transport;
package scpi provides one over TCP, serial, or USBTMC.

	pool := comm.NewPool(1, 10*time.Second, comm.BackoffTCPMaker("192.168.1.20:5555", 3*time.Second))
	awg := rigol.NewDG4000(scpi.New(pool, false), rigol.DefaultLimits())
	defer awg.Close()
	err := awg.Apply(rigol.CH1, rigol.WaveformRequest{
		Waveform:  rigol.Sine,
		Frequency: rigol.V(1e3),
		Amplitude: rigol.V(5),
		Offset:    rigol.V(0),
	})
*/
package rigol

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Channel is an output channel of the generator
type Channel int

const (
	// System addresses instrument-wide commands, which have no channel
	System Channel = 0

	// CH1 is output channel 1
	CH1 Channel = 1

	// CH2 is output channel 2
	CH2 Channel = 2
)

// Valid reports whether c is CH1 or CH2
func (c Channel) Valid() bool {
	return c == CH1 || c == CH2
}

func (c Channel) String() string {
	if c == System {
		return "SYSTem"
	}
	return "CH" + strconv.Itoa(int(c))
}

// ParseChannel accepts "1", "2", "ch1", "CH2" and the like
func ParseChannel(s string) (Channel, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "ch")
	n, err := strconv.Atoi(s)
	if err != nil || !Channel(n).Valid() {
		return 0, &ValidationError{Param: "channel", Kind: InvalidChannel, Reason: strconv.Quote(s) + " is not 1 or 2"}
	}
	return Channel(n), nil
}

// enum is the shared text form of the small enumerations in this package.
// names are the human (JSON, config) forms, mnemonics the SCPI forms.
type enum struct {
	what      string
	names     []string
	mnemonics []string
}

func (e enum) name(i int) string {
	if i < 0 || i >= len(e.names) {
		return e.what + "(" + strconv.Itoa(i) + ")"
	}
	return e.names[i]
}

func (e enum) mnemonic(i int) string {
	if i < 0 || i >= len(e.mnemonics) {
		return ""
	}
	return e.mnemonics[i]
}

// parse matches s, case insensitive, against the names, the full mnemonics,
// and the SCPI short forms (the upper case prefix of each mnemonic)
func (e enum) parse(s string) (int, error) {
	ls := strings.ToLower(strings.TrimSpace(s))
	for i := range e.names {
		if ls == e.names[i] {
			return i, nil
		}
		if i < len(e.mnemonics) && e.mnemonics[i] != "" {
			m := e.mnemonics[i]
			if ls == strings.ToLower(m) || ls == strings.ToLower(shortForm(m)) {
				return i, nil
			}
		}
	}
	return 0, errors.Errorf("unknown %s %q", e.what, s)
}

// shortForm returns the upper case prefix of a SCPI mnemonic, "SINusoid" => "SIN"
func shortForm(m string) string {
	for i, r := range m {
		if r >= 'a' && r <= 'z' {
			return m[:i]
		}
	}
	return m
}

// Waveform is the family of signal a channel produces
type Waveform int

const (
	// Unset is the state of a channel that has not been given a waveform
	Unset Waveform = iota
	Sine
	Square
	Pulse
	Ramp
	Custom
	User
	Harmonic
	Noise
)

var waveforms = enum{
	what:      "waveform",
	names:     []string{"unset", "sine", "square", "pulse", "ramp", "custom", "user", "harmonic", "noise"},
	mnemonics: []string{"", "SINusoid", "SQUare", "PULSe", "RAMP", "CUSTom", "USER", "HARMonic", "NOISe"},
}

func (w Waveform) String() string { return waveforms.name(int(w)) }

// Mnemonic is the APPLy keyword for the waveform
func (w Waveform) Mnemonic() string { return waveforms.mnemonic(int(w)) }

// MarshalText satisfies encoding.TextMarshaler
func (w Waveform) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// UnmarshalText satisfies encoding.TextUnmarshaler
func (w *Waveform) UnmarshalText(b []byte) error {
	i, err := waveforms.parse(string(b))
	*w = Waveform(i)
	return err
}

// ParseWaveform converts "sine", "SIN", "SINusoid" and so on to a Waveform
func ParseWaveform(s string) (Waveform, error) {
	var w Waveform
	err := w.UnmarshalText([]byte(s))
	return w, err
}

// AmplitudeMode is the authoritative representation of a channel's levels
type AmplitudeMode int

const (
	// VppOffset describes the output as peak-to-peak amplitude about an offset
	VppOffset AmplitudeMode = iota

	// HighLow describes the output by its high and low levels
	HighLow
)

var amplitudeModes = enum{what: "amplitude mode", names: []string{"vpp-offset", "high-low"}}

func (m AmplitudeMode) String() string { return amplitudeModes.name(int(m)) }

// MarshalText satisfies encoding.TextMarshaler
func (m AmplitudeMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText satisfies encoding.TextUnmarshaler
func (m *AmplitudeMode) UnmarshalText(b []byte) error {
	i, err := amplitudeModes.parse(string(b))
	*m = AmplitudeMode(i)
	return err
}

// HoldMode selects which of pulse width and duty cycle survives a frequency change
type HoldMode int

const (
	// HoldDuty keeps the duty cycle and recomputes the width
	HoldDuty HoldMode = iota

	// HoldWidth keeps the width and recomputes the duty cycle
	HoldWidth
)

var holdModes = enum{what: "hold mode", names: []string{"duty", "width"}, mnemonics: []string{"DUTY", "WIDTh"}}

func (h HoldMode) String() string { return holdModes.name(int(h)) }

// Mnemonic is the SCPI form of the hold mode
func (h HoldMode) Mnemonic() string { return holdModes.mnemonic(int(h)) }

// MarshalText satisfies encoding.TextMarshaler
func (h HoldMode) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText satisfies encoding.TextUnmarshaler
func (h *HoldMode) UnmarshalText(b []byte) error {
	i, err := holdModes.parse(string(b))
	*h = HoldMode(i)
	return err
}

// HarmonicType selects which harmonics are added to the fundamental
type HarmonicType int

const (
	HarmonicEven HarmonicType = iota
	HarmonicOdd
	HarmonicAll
	HarmonicUser
)

var harmonicTypes = enum{
	what:      "harmonic type",
	names:     []string{"even", "odd", "all", "user"},
	mnemonics: []string{"EVEN", "ODD", "ALL", "USER"},
}

func (h HarmonicType) String() string { return harmonicTypes.name(int(h)) }

// Mnemonic is the SCPI form of the harmonic type
func (h HarmonicType) Mnemonic() string { return harmonicTypes.mnemonic(int(h)) }

// MarshalText satisfies encoding.TextMarshaler
func (h HarmonicType) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText satisfies encoding.TextUnmarshaler
func (h *HarmonicType) UnmarshalText(b []byte) error {
	i, err := harmonicTypes.parse(string(b))
	*h = HarmonicType(i)
	return err
}

// ClockSource is the reference oscillator of the instrument
type ClockSource int

const (
	Internal ClockSource = iota
	External
)

var clockSources = enum{what: "clock source", names: []string{"internal", "external"}, mnemonics: []string{"INTernal", "EXTernal"}}

func (c ClockSource) String() string { return clockSources.name(int(c)) }

// Mnemonic is the SCPI form of the clock source
func (c ClockSource) Mnemonic() string { return clockSources.mnemonic(int(c)) }

// MarshalText satisfies encoding.TextMarshaler
func (c ClockSource) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText satisfies encoding.TextUnmarshaler
func (c *ClockSource) UnmarshalText(b []byte) error {
	i, err := clockSources.parse(string(b))
	*c = ClockSource(i)
	return err
}

// ParseClockSource converts "internal", "INT", "EXTernal" and so on to a ClockSource
func ParseClockSource(s string) (ClockSource, error) {
	var c ClockSource
	err := c.UnmarshalText([]byte(s))
	return c, err
}
