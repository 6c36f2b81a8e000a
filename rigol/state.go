package rigol

// PulseParams are the sub-parameters of the pulse waveform.  Width and
// DutyCycle describe the same quantity and are kept consistent with the
// channel frequency.
type PulseParams struct {
	Width       float64  `json:"width"`
	DutyCycle   float64  `json:"duty"`
	Delay       float64  `json:"delay"`
	RisingEdge  float64  `json:"leading"`
	FallingEdge float64  `json:"trailing"`
	Hold        HoldMode `json:"hold"`
}

// HarmonicConfig holds the sub-parameters of the harmonic waveform
type HarmonicConfig struct {
	Type      HarmonicType      `json:"type"`
	Order     int               `json:"order"`
	Amplitude map[int]Value     `json:"amplitude"`
	Phase     map[int]float64   `json:"phase"`
	UserMask  [UserMaskLen]bool `json:"user"`
}

// ChannelState is the logical model of one output channel.  Its methods are
// transitions that return a new state and leave the receiver untouched, so a
// rejected request never modifies a channel.
type ChannelState struct {
	Waveform      Waveform       `json:"waveform"`
	AmplitudeMode AmplitudeMode  `json:"amplitudeMode"`
	Vpp           Value          `json:"vpp"`
	Offset        Value          `json:"offset"`
	High          Value          `json:"high"`
	Low           Value          `json:"low"`
	Frequency     Value          `json:"frequency"`
	Phase         float64        `json:"phase"`
	Impedance     Impedance      `json:"impedance"`
	Pulse         PulseParams    `json:"pulse"`
	RampSymmetry  float64        `json:"rampSymmetry"`
	Harmonic      HarmonicConfig `json:"harmonic"`
	OutputEnabled bool           `json:"output"`
}

// DefaultChannelState is the state of a channel after construction or *RST
func DefaultChannelState() ChannelState {
	return ChannelState{
		Waveform:      Unset,
		AmplitudeMode: VppOffset,
		Vpp:           V(5),
		Offset:        V(0),
		High:          V(2.5),
		Low:           V(-2.5),
		Frequency:     V(1e3),
		Impedance:     50,
		Pulse: PulseParams{
			Width:       500e-6,
			DutyCycle:   50,
			RisingEdge:  20e-9,
			FallingEdge: 20e-9,
			Hold:        HoldDuty,
		},
		RampSymmetry: 50,
		Harmonic: HarmonicConfig{
			Type:      HarmonicEven,
			Order:     2,
			Amplitude: map[int]Value{},
			Phase:     map[int]float64{},
		},
	}
}

// Clone returns a deep copy of s
func (s ChannelState) Clone() ChannelState {
	amp := make(map[int]Value, len(s.Harmonic.Amplitude))
	for k, v := range s.Harmonic.Amplitude {
		amp[k] = v
	}
	phs := make(map[int]float64, len(s.Harmonic.Phase))
	for k, v := range s.Harmonic.Phase {
		phs[k] = v
	}
	s.Harmonic.Amplitude = amp
	s.Harmonic.Phase = phs
	return s
}

// Period is 1/Frequency.  ok is false when the frequency is a MIN/MAX keyword
// and the period is therefore unknown.
func (s ChannelState) Period() (p float64, ok bool) {
	return period(s.Frequency)
}

// WaveformRequest is the argument list of APPLy.  Phase is used by every
// waveform but pulse, which takes Delay in the same position.  Noise uses
// Amplitude and Offset only.
type WaveformRequest struct {
	Waveform  Waveform `json:"waveform"`
	Frequency Value    `json:"frequency"`
	Amplitude Value    `json:"amplitude"`
	Offset    Value    `json:"offset"`
	Phase     float64  `json:"phase"`
	Delay     float64  `json:"delay"`
}

// ApplyWaveform switches the channel to req.Waveform.  Applying also makes
// Vpp/Offset the authoritative amplitude representation.
//
// A pulse keeps the quantity named by its Hold mode across the frequency
// change and recomputes the other; if the kept quantity is illegal at the
// new frequency the whole request is refused.  Harmonic requests are
// checked against the current order.
func (s ChannelState) ApplyWaveform(req WaveformRequest, lim Limits) (ChannelState, error) {
	if req.Waveform <= Unset || req.Waveform > Noise {
		return s, invalid(System, "waveform", Malformed, "%s cannot be applied", req.Waveform)
	}
	if err := ValidateAmplitude(System, req.Amplitude); err != nil {
		return s, err
	}
	if err := ValidateOffset(System, req.Offset); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Waveform = req.Waveform
	next.AmplitudeMode = VppOffset
	next.Vpp = req.Amplitude
	next.Offset = req.Offset
	if req.Waveform == Noise {
		return next, nil
	}

	if err := ValidateFrequency(System, req.Waveform, req.Frequency, lim); err != nil {
		return s, err
	}
	next.Frequency = req.Frequency

	switch req.Waveform {
	case Pulse:
		if err := ValidatePulseDelay(System, req.Delay); err != nil {
			return s, err
		}
		next.Pulse.Delay = req.Delay
		if p, ok := next.Period(); ok {
			if next.Pulse.Hold == HoldWidth {
				if err := ValidatePulseWidth(System, next.Pulse.Width, next.Frequency); err != nil {
					return s, err
				}
				next.Pulse.DutyCycle = 100 * next.Pulse.Width / p
			} else {
				if err := ValidateDutyCycle(System, next.Pulse.DutyCycle, next.Frequency); err != nil {
					return s, err
				}
				next.Pulse.Width = next.Pulse.DutyCycle / 100 * p
			}
			next.clampEdges()
		}
	case Harmonic:
		if _, err := ValidateHarmonicOrder(System, next.Harmonic.Order, next.Impedance, next.Frequency, lim.Harmonics); err != nil {
			return s, err
		}
		fallthrough
	default:
		phase, err := ValidatePhase(System, "phase", req.Phase)
		if err != nil {
			return s, err
		}
		next.Phase = phase
	}
	return next, nil
}

// clampEdges re-applies the edge limit after a width change
func (s *ChannelState) clampEdges() {
	max := EdgeWidthRatio * s.Pulse.Width
	if s.Pulse.RisingEdge > max {
		s.Pulse.RisingEdge = max
	}
	if s.Pulse.FallingEdge > max {
		s.Pulse.FallingEdge = max
	}
}

// SetAmplitudeMode sets both values of one amplitude family and makes it
// authoritative.  a and b are Vpp and Offset, or High and Low.
func (s ChannelState) SetAmplitudeMode(mode AmplitudeMode, a, b Value) (ChannelState, error) {
	next := s.Clone()
	switch mode {
	case VppOffset:
		if err := ValidateAmplitude(System, a); err != nil {
			return s, err
		}
		if err := ValidateOffset(System, b); err != nil {
			return s, err
		}
		next.Vpp, next.Offset = a, b
	case HighLow:
		if err := ValidateLevels(System, a, b); err != nil {
			return s, err
		}
		next.High, next.Low = a, b
	default:
		return s, invalid(System, "amplitude mode", Malformed, "unknown mode %d", int(mode))
	}
	next.AmplitudeMode = mode
	return next, nil
}

// SetVpp sets the amplitude alone, keeping the offset
func (s ChannelState) SetVpp(v Value) (ChannelState, error) {
	return s.SetAmplitudeMode(VppOffset, v, s.Offset)
}

// SetOffset sets the offset alone, keeping the amplitude
func (s ChannelState) SetOffset(v Value) (ChannelState, error) {
	return s.SetAmplitudeMode(VppOffset, s.Vpp, v)
}

// SetHigh sets the high level alone, keeping the low level
func (s ChannelState) SetHigh(v Value) (ChannelState, error) {
	return s.SetAmplitudeMode(HighLow, v, s.Low)
}

// SetLow sets the low level alone, keeping the high level
func (s ChannelState) SetLow(v Value) (ChannelState, error) {
	return s.SetAmplitudeMode(HighLow, s.High, v)
}

// SetPulseWidth sets the width and recomputes the duty cycle
func (s ChannelState) SetPulseWidth(width float64) (ChannelState, error) {
	if err := requireWaveform(System, s, Pulse, "pulse width"); err != nil {
		return s, err
	}
	if err := ValidatePulseWidth(System, width, s.Frequency); err != nil {
		return s, err
	}
	p, _ := s.Period()
	next := s.Clone()
	next.Pulse.Width = width
	next.Pulse.DutyCycle = 100 * width / p
	next.clampEdges()
	return next, nil
}

// SetDutyCycle sets the duty cycle and recomputes the width
func (s ChannelState) SetDutyCycle(duty float64) (ChannelState, error) {
	if err := requireWaveform(System, s, Pulse, "duty cycle"); err != nil {
		return s, err
	}
	if err := ValidateDutyCycle(System, duty, s.Frequency); err != nil {
		return s, err
	}
	p, _ := s.Period()
	next := s.Clone()
	next.Pulse.DutyCycle = duty
	next.Pulse.Width = duty / 100 * p
	next.clampEdges()
	return next, nil
}

// SetPulseDelay sets the pulse delay
func (s ChannelState) SetPulseDelay(delay float64) (ChannelState, error) {
	if err := requireWaveform(System, s, Pulse, "pulse delay"); err != nil {
		return s, err
	}
	if err := ValidatePulseDelay(System, delay); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Pulse.Delay = delay
	return next, nil
}

// SetPulseHold selects which of width and duty survives a frequency change
func (s ChannelState) SetPulseHold(h HoldMode) (ChannelState, error) {
	if err := requireWaveform(System, s, Pulse, "pulse hold"); err != nil {
		return s, err
	}
	if h != HoldDuty && h != HoldWidth {
		return s, invalid(System, "pulse hold", Malformed, "unknown hold mode %d", int(h))
	}
	next := s.Clone()
	next.Pulse.Hold = h
	return next, nil
}

// SetRisingEdge sets the leading edge time, clamped to the width limit
func (s ChannelState) SetRisingEdge(edge float64) (ChannelState, Adjustment, error) {
	return s.setEdge("leading edge", edge, func(p *PulseParams, v float64) { p.RisingEdge = v })
}

// SetFallingEdge sets the trailing edge time, clamped to the width limit
func (s ChannelState) SetFallingEdge(edge float64) (ChannelState, Adjustment, error) {
	return s.setEdge("trailing edge", edge, func(p *PulseParams, v float64) { p.FallingEdge = v })
}

func (s ChannelState) setEdge(param string, edge float64, set func(*PulseParams, float64)) (ChannelState, Adjustment, error) {
	if err := requireWaveform(System, s, Pulse, param); err != nil {
		return s, Adjustment{}, err
	}
	adj, err := ClampEdge(System, param, edge, s.Pulse.Width)
	if err != nil {
		return s, Adjustment{}, err
	}
	next := s.Clone()
	set(&next.Pulse, adj.Applied)
	return next, adj, nil
}

// SetRampSymmetry sets the ramp symmetry, in percent
func (s ChannelState) SetRampSymmetry(pct float64) (ChannelState, error) {
	if err := requireWaveform(System, s, Ramp, "ramp symmetry"); err != nil {
		return s, err
	}
	if err := ValidateSymmetry(System, pct); err != nil {
		return s, err
	}
	next := s.Clone()
	next.RampSymmetry = pct
	return next, nil
}

// SetHarmonicType selects the harmonic family
func (s ChannelState) SetHarmonicType(t HarmonicType) (ChannelState, error) {
	if err := requireWaveform(System, s, Harmonic, "harmonic type"); err != nil {
		return s, err
	}
	if t < HarmonicEven || t > HarmonicUser {
		return s, invalid(System, "harmonic type", Malformed, "unknown harmonic type %d", int(t))
	}
	next := s.Clone()
	next.Harmonic.Type = t
	return next, nil
}

// SetHarmonicOrder sets the highest harmonic.  verified is false when the
// channel's load was not in the table and the fallback range was used.
func (s ChannelState) SetHarmonicOrder(order int, t HarmonicTable) (next ChannelState, verified bool, err error) {
	if err := requireWaveform(System, s, Harmonic, "harmonic order"); err != nil {
		return s, false, err
	}
	verified, err = ValidateHarmonicOrder(System, order, s.Impedance, s.Frequency, t)
	if err != nil {
		return s, verified, err
	}
	next = s.Clone()
	next.Harmonic.Order = order
	return next, verified, nil
}

// SetHarmonicAmplitude sets the amplitude of harmonic sn
func (s ChannelState) SetHarmonicAmplitude(sn int, amp Value) (ChannelState, error) {
	if err := requireWaveform(System, s, Harmonic, "harmonic amplitude"); err != nil {
		return s, err
	}
	if err := ValidateHarmonicNumber(System, sn); err != nil {
		return s, err
	}
	if err := ValidateHarmonicAmplitude(System, amp); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Harmonic.Amplitude[sn] = amp
	return next, nil
}

// SetHarmonicPhase sets the phase of harmonic sn
func (s ChannelState) SetHarmonicPhase(sn int, deg float64) (ChannelState, error) {
	if err := requireWaveform(System, s, Harmonic, "harmonic phase"); err != nil {
		return s, err
	}
	if err := ValidateHarmonicNumber(System, sn); err != nil {
		return s, err
	}
	deg, err := ValidatePhase(System, "harmonic phase", deg)
	if err != nil {
		return s, err
	}
	next := s.Clone()
	next.Harmonic.Phase[sn] = deg
	return next, nil
}

// SetHarmonicUserMask selects harmonics 2 through 16 for the user harmonic type
func (s ChannelState) SetHarmonicUserMask(mask []bool) (ChannelState, error) {
	if err := requireWaveform(System, s, Harmonic, "harmonic user mask"); err != nil {
		return s, err
	}
	m, err := ValidateUserMask(System, mask)
	if err != nil {
		return s, err
	}
	next := s.Clone()
	next.Harmonic.UserMask = m
	return next, nil
}

// SetPhase sets the channel phase.  Noise has no phase.
func (s ChannelState) SetPhase(deg float64) (ChannelState, error) {
	if s.Waveform == Noise {
		return s, invalid(System, "phase", WrongWaveform, "noise has no phase")
	}
	deg, err := ValidatePhase(System, "phase", deg)
	if err != nil {
		return s, err
	}
	next := s.Clone()
	next.Phase = deg
	return next, nil
}

// SetImpedance sets the output load
func (s ChannelState) SetImpedance(z Impedance) (ChannelState, error) {
	if err := ValidateImpedance(System, z); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Impedance = z
	return next, nil
}

// SetOutput turns the output on or off
func (s ChannelState) SetOutput(on bool) ChannelState {
	next := s.Clone()
	next.OutputEnabled = on
	return next
}

// CopyFrom returns a copy of src's waveform configuration.  The output
// switch is not part of the configuration and keeps its value from s.
func (s ChannelState) CopyFrom(src ChannelState) ChannelState {
	next := src.Clone()
	next.OutputEnabled = s.OutputEnabled
	return next
}
