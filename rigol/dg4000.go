package rigol

import (
	"log"
	"strconv"

	"github.com/pkg/errors"
)

// Transport carries commands to the instrument.  scpi.SCPI satisfies it.
type Transport interface {
	// Send writes one command
	Send(cmd string) error

	// Query writes one command and returns the reply without its terminator
	Query(cmd string) (string, error)

	// Close releases the link
	Close() error
}

// DG4000 controls a DG4000 series generator.  Each setter validates the
// request, computes the next channel state, encodes the command(s), sends
// them, and only then commits the new state; a refused or failed request
// leaves the model as it was.
//
// A DG4000 is not safe for concurrent use.
type DG4000 struct {
	tr     Transport
	limits Limits
	state  [2]ChannelState
	clock  ClockSource
	closed bool
}

// NewDG4000 returns a controller with both channels in their default state
func NewDG4000(tr Transport, lim Limits) *DG4000 {
	d := &DG4000{tr: tr, limits: lim}
	d.resetState()
	return d
}

func (d *DG4000) resetState() {
	d.state[0] = DefaultChannelState()
	d.state[1] = DefaultChannelState()
	d.clock = Internal
}

// onChannel fills in the channel of a validation error raised by a
// ChannelState transition, which does not know which channel it models
func onChannel(ch Channel, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Channel == System {
		ve.Channel = ch
	}
	return err
}

func (d *DG4000) ready(ch Channel) error {
	if d.closed {
		return ErrClosed
	}
	return validateChannel(ch)
}

func (d *DG4000) send(cmds ...string) error {
	for _, c := range cmds {
		if err := d.tr.Send(c); err != nil {
			return err
		}
	}
	return nil
}

// commit sends cmds and, once all were accepted, installs next as the state of ch
func (d *DG4000) commit(ch Channel, next ChannelState, cmds ...string) error {
	if err := d.send(cmds...); err != nil {
		return err
	}
	d.state[ch-1] = next
	return nil
}

// update is the common path of the single command setters
func (d *DG4000) update(ch Channel, op Op, transition func(ChannelState) (ChannelState, error), params ...string) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	next, err := transition(d.state[ch-1])
	if err != nil {
		return onChannel(ch, err)
	}
	cmd, err := Encode(ch, op, params...)
	if err != nil {
		return err
	}
	return d.commit(ch, next, cmd)
}

// logEdges reports edges the instrument will have shortened after a width change
func logEdges(ch Channel, prev, next ChannelState) {
	if next.Pulse.RisingEdge != prev.Pulse.RisingEdge {
		log.Printf("%s leading edge %s s adjusted to %s s to fit the pulse width\n", ch, formatFloat(prev.Pulse.RisingEdge), formatFloat(next.Pulse.RisingEdge))
	}
	if next.Pulse.FallingEdge != prev.Pulse.FallingEdge {
		log.Printf("%s trailing edge %s s adjusted to %s s to fit the pulse width\n", ch, formatFloat(prev.Pulse.FallingEdge), formatFloat(next.Pulse.FallingEdge))
	}
}

// Reset restores the factory configuration and the default model of both channels
func (d *DG4000) Reset() error {
	if d.closed {
		return ErrClosed
	}
	cmd, err := Encode(System, OpReset)
	if err != nil {
		return err
	}
	if err := d.send(cmd); err != nil {
		return err
	}
	d.resetState()
	return nil
}

// Identify returns the *IDN? reply exactly as the instrument sent it
func (d *DG4000) Identify() (string, error) {
	if d.closed {
		return "", ErrClosed
	}
	cmd, err := Encode(System, OpIdentify)
	if err != nil {
		return "", err
	}
	return d.tr.Query(cmd)
}

// Close releases the transport.  Closing more than once is a no-op.
func (d *DG4000) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.tr.Close()
}

// State returns a copy of the model of channel ch
func (d *DG4000) State(ch Channel) (ChannelState, error) {
	if err := d.ready(ch); err != nil {
		return ChannelState{}, err
	}
	return d.state[ch-1].Clone(), nil
}

// ReferenceClock returns the reference oscillator last selected
func (d *DG4000) ReferenceClock() ClockSource {
	return d.clock
}

// SetReferenceClock selects the internal or external reference oscillator
func (d *DG4000) SetReferenceClock(c ClockSource) error {
	if d.closed {
		return ErrClosed
	}
	if c != Internal && c != External {
		return invalid(System, "reference clock", Malformed, "unknown clock source %d", int(c))
	}
	cmd, err := Encode(System, OpReferenceClock, c.Mnemonic())
	if err != nil {
		return err
	}
	if err := d.send(cmd); err != nil {
		return err
	}
	d.clock = c
	return nil
}

// SetOutput turns the output of ch on or off
func (d *DG4000) SetOutput(ch Channel, on bool) error {
	return d.update(ch, OpOutput, func(s ChannelState) (ChannelState, error) {
		return s.SetOutput(on), nil
	}, onOff(on))
}

// EnableOutput turns the output of ch on
func (d *DG4000) EnableOutput(ch Channel) error {
	return d.SetOutput(ch, true)
}

// DisableOutput turns the output of ch off
func (d *DG4000) DisableOutput(ch Channel) error {
	return d.SetOutput(ch, false)
}

// SetImpedance sets the load the output of ch is matched to
func (d *DG4000) SetImpedance(ch Channel, z Impedance) error {
	return d.update(ch, OpImpedance, func(s ChannelState) (ChannelState, error) {
		return s.SetImpedance(z)
	}, z.String())
}

// SetVpp sets the peak-to-peak amplitude of ch
func (d *DG4000) SetVpp(ch Channel, vpp Value) error {
	return d.update(ch, OpAmplitude, func(s ChannelState) (ChannelState, error) {
		return s.SetVpp(vpp)
	}, vpp.String())
}

// SetOffset sets the DC offset of ch
func (d *DG4000) SetOffset(ch Channel, offset Value) error {
	return d.update(ch, OpOffset, func(s ChannelState) (ChannelState, error) {
		return s.SetOffset(offset)
	}, offset.String())
}

// SetHighLevel sets the high level of ch
func (d *DG4000) SetHighLevel(ch Channel, high Value) error {
	return d.update(ch, OpHighLevel, func(s ChannelState) (ChannelState, error) {
		return s.SetHigh(high)
	}, high.String())
}

// SetLowLevel sets the low level of ch
func (d *DG4000) SetLowLevel(ch Channel, low Value) error {
	return d.update(ch, OpLowLevel, func(s ChannelState) (ChannelState, error) {
		return s.SetLow(low)
	}, low.String())
}

// SetVppOffset sets amplitude and offset together
func (d *DG4000) SetVppOffset(ch Channel, vpp, offset Value) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	next, err := d.state[ch-1].SetAmplitudeMode(VppOffset, vpp, offset)
	if err != nil {
		return onChannel(ch, err)
	}
	c1, err := Encode(ch, OpAmplitude, vpp.String())
	if err != nil {
		return err
	}
	c2, err := Encode(ch, OpOffset, offset.String())
	if err != nil {
		return err
	}
	return d.commit(ch, next, c1, c2)
}

// SetHighLow sets the high and low levels together.  The two commands are
// ordered so the instrument never sees a low level above its high level.
func (d *DG4000) SetHighLow(ch Channel, high, low Value) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	prev := d.state[ch-1]
	next, err := prev.SetAmplitudeMode(HighLow, high, low)
	if err != nil {
		return onChannel(ch, err)
	}
	hi, err := Encode(ch, OpHighLevel, high.String())
	if err != nil {
		return err
	}
	lo, err := Encode(ch, OpLowLevel, low.String())
	if err != nil {
		return err
	}
	if lowFirst(prev, high) {
		return d.commit(ch, next, lo, hi)
	}
	return d.commit(ch, next, hi, lo)
}

// lowFirst is true when writing the new high level first would put it at or
// below the low level currently in effect
func lowFirst(prev ChannelState, high Value) bool {
	_, low, ok := prev.levels()
	return ok && high.IsNumeric() && high.Num <= low
}

// levels is the high and low level in effect, whichever family is authoritative
func (s ChannelState) levels() (high, low float64, ok bool) {
	if s.AmplitudeMode == HighLow {
		if !s.High.IsNumeric() || !s.Low.IsNumeric() {
			return 0, 0, false
		}
		return s.High.Num, s.Low.Num, true
	}
	if !s.Vpp.IsNumeric() || !s.Offset.IsNumeric() {
		return 0, 0, false
	}
	return s.Offset.Num + s.Vpp.Num/2, s.Offset.Num - s.Vpp.Num/2, true
}

// Apply switches ch to a waveform with one APPLy command.  Every waveform,
// custom included, is transmitted.  Noise takes amplitude and offset only.
func (d *DG4000) Apply(ch Channel, req WaveformRequest) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	prev := d.state[ch-1]
	next, err := prev.ApplyWaveform(req, d.limits)
	if err != nil {
		return onChannel(ch, err)
	}
	op, ok := applyOp(next.Waveform)
	if !ok {
		return &ProtocolGrammarError{Op: -1, Reason: "no APPLy command for " + next.Waveform.String()}
	}
	cmd, err := Encode(ch, op, applyParams(next)...)
	if err != nil {
		return err
	}
	if err := d.commit(ch, next, cmd); err != nil {
		return err
	}
	logEdges(ch, prev, next)
	return nil
}

// SetPhase sets the phase of ch, wrapped into [0, 360)
func (d *DG4000) SetPhase(ch Channel, deg float64) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	next, err := d.state[ch-1].SetPhase(deg)
	if err != nil {
		return onChannel(ch, err)
	}
	cmd, err := Encode(ch, OpPhase, formatFloat(next.Phase))
	if err != nil {
		return err
	}
	return d.commit(ch, next, cmd)
}

// SetPulseDutyCycle sets the duty cycle of a pulse, in percent.  The width follows.
func (d *DG4000) SetPulseDutyCycle(ch Channel, duty float64) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	prev := d.state[ch-1]
	next, err := prev.SetDutyCycle(duty)
	if err != nil {
		return onChannel(ch, err)
	}
	cmd, err := Encode(ch, OpPulseDutyCycle, formatFloat(duty))
	if err != nil {
		return err
	}
	if err := d.commit(ch, next, cmd); err != nil {
		return err
	}
	logEdges(ch, prev, next)
	return nil
}

// SetPulseWidth sets the width of a pulse, in seconds.  The duty cycle follows.
func (d *DG4000) SetPulseWidth(ch Channel, width float64) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	prev := d.state[ch-1]
	next, err := prev.SetPulseWidth(width)
	if err != nil {
		return onChannel(ch, err)
	}
	cmd, err := Encode(ch, OpPulseWidth, formatFloat(width))
	if err != nil {
		return err
	}
	if err := d.commit(ch, next, cmd); err != nil {
		return err
	}
	logEdges(ch, prev, next)
	return nil
}

// SetPulseDelay sets the delay of a pulse, in seconds
func (d *DG4000) SetPulseDelay(ch Channel, delay float64) error {
	return d.update(ch, OpPulseDelay, func(s ChannelState) (ChannelState, error) {
		return s.SetPulseDelay(delay)
	}, formatFloat(delay))
}

// SetPulseHold selects whether width or duty cycle is kept when the frequency changes
func (d *DG4000) SetPulseHold(ch Channel, h HoldMode) error {
	return d.update(ch, OpPulseHold, func(s ChannelState) (ChannelState, error) {
		return s.SetPulseHold(h)
	}, h.Mnemonic())
}

// SetPulseRisingEdge sets the leading edge time of a pulse.  Edges longer
// than EdgeWidthRatio × width are shortened, not refused; the Adjustment
// says which happened.
func (d *DG4000) SetPulseRisingEdge(ch Channel, edge float64) (Adjustment, error) {
	return d.setEdge(ch, OpPulseLeading, edge, ChannelState.SetRisingEdge)
}

// SetPulseFallingEdge sets the trailing edge time of a pulse, as SetPulseRisingEdge
func (d *DG4000) SetPulseFallingEdge(ch Channel, edge float64) (Adjustment, error) {
	return d.setEdge(ch, OpPulseTrailing, edge, ChannelState.SetFallingEdge)
}

func (d *DG4000) setEdge(ch Channel, op Op, edge float64, transition func(ChannelState, float64) (ChannelState, Adjustment, error)) (Adjustment, error) {
	if err := d.ready(ch); err != nil {
		return Adjustment{}, err
	}
	next, adj, err := transition(d.state[ch-1], edge)
	if err != nil {
		return Adjustment{}, onChannel(ch, err)
	}
	cmd, err := Encode(ch, op, formatFloat(adj.Applied))
	if err != nil {
		return Adjustment{}, err
	}
	if err := d.commit(ch, next, cmd); err != nil {
		return Adjustment{}, err
	}
	if adj.Adjusted {
		log.Printf("%s %s\n", ch, adj)
	}
	return adj, nil
}

// SetRampSymmetry sets the symmetry of a ramp, in percent
func (d *DG4000) SetRampSymmetry(ch Channel, pct float64) error {
	return d.update(ch, OpRampSymmetry, func(s ChannelState) (ChannelState, error) {
		return s.SetRampSymmetry(pct)
	}, formatFloat(pct))
}

// SetHarmonicType selects even, odd, all, or user chosen harmonics
func (d *DG4000) SetHarmonicType(ch Channel, t HarmonicType) error {
	return d.update(ch, OpHarmonicType, func(s ChannelState) (ChannelState, error) {
		return s.SetHarmonicType(t)
	}, t.Mnemonic())
}

// SetHarmonicOrder sets the highest harmonic.  verified is false when the
// channel's load is not in the harmonic table and only the conservative
// fallback range could be checked.
func (d *DG4000) SetHarmonicOrder(ch Channel, order int) (verified bool, err error) {
	if err := d.ready(ch); err != nil {
		return false, err
	}
	next, verified, err := d.state[ch-1].SetHarmonicOrder(order, d.limits.Harmonics)
	if err != nil {
		return verified, onChannel(ch, err)
	}
	cmd, err := Encode(ch, OpHarmonicOrder, strconv.Itoa(order))
	if err != nil {
		return verified, err
	}
	if err := d.commit(ch, next, cmd); err != nil {
		return verified, err
	}
	if !verified {
		log.Printf("%s harmonic order %d checked against fallback limits only, %s Ω load is not in the harmonic table\n", ch, order, next.Impedance)
	}
	return verified, nil
}

// SetHarmonicAmplitude sets the amplitude of harmonic sn
func (d *DG4000) SetHarmonicAmplitude(ch Channel, sn int, amp Value) error {
	return d.update(ch, OpHarmonicAmplitude, func(s ChannelState) (ChannelState, error) {
		return s.SetHarmonicAmplitude(sn, amp)
	}, strconv.Itoa(sn), amp.String())
}

// SetHarmonicPhase sets the phase of harmonic sn, wrapped into [0, 360)
func (d *DG4000) SetHarmonicPhase(ch Channel, sn int, deg float64) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	next, err := d.state[ch-1].SetHarmonicPhase(sn, deg)
	if err != nil {
		return onChannel(ch, err)
	}
	cmd, err := Encode(ch, OpHarmonicPhase, strconv.Itoa(sn), formatFloat(next.Harmonic.Phase[sn]))
	if err != nil {
		return err
	}
	return d.commit(ch, next, cmd)
}

// SetHarmonicUserMask selects which of harmonics 2 through 16 are output
// when the harmonic type is user.  mask must have exactly 15 entries.
func (d *DG4000) SetHarmonicUserMask(ch Channel, mask []bool) error {
	if err := d.ready(ch); err != nil {
		return err
	}
	next, err := d.state[ch-1].SetHarmonicUserMask(mask)
	if err != nil {
		return onChannel(ch, err)
	}
	cmd, err := Encode(ch, OpHarmonicUser, encodeUserMask(next.Harmonic.UserMask))
	if err != nil {
		return err
	}
	return d.commit(ch, next, cmd)
}

// CopyChannel copies the configuration of src onto dst.  The output switch
// of dst is not changed.
func (d *DG4000) CopyChannel(src, dst Channel) error {
	if err := d.ready(src); err != nil {
		return err
	}
	if err := validateChannel(dst); err != nil {
		return err
	}
	if src == dst {
		return invalid(dst, "copy", Inconsistent, "cannot copy %s onto itself", src)
	}
	cmd, err := Encode(System, OpCopyChannel, src.String(), dst.String())
	if err != nil {
		return err
	}
	next := d.state[dst-1].CopyFrom(d.state[src-1])
	return d.commit(dst, next, cmd)
}
