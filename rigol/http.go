package rigol

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/golaborate-awg/generichttp"
	"github.com/nasa-jpl/golaborate-awg/server"
	"github.com/nasa-jpl/golaborate-awg/util"
)

// RawCommunicator passes a command the model does not know about straight
// to the instrument.  scpi.SCPI and MockTransport satisfy it.
type RawCommunicator interface {
	Raw(string) (string, error)
}

// HTTPWrapper provides HTTP bindings on top of a DG4000.  All requests are
// serialized, the controller itself is not safe for concurrent use.
type HTTPWrapper struct {
	mu sync.Mutex

	// AWG is the underlying controller
	AWG *DG4000

	// Raw, if not nil, backs the /raw route
	Raw RawCommunicator

	// RouteTable maps method+path combinations to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(awg *DG4000, raw RawCommunicator) *HTTPWrapper {
	h := &HTTPWrapper{AWG: awg, Raw: raw}
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/reset"}:                      h.reset,
		{Method: http.MethodGet, Path: "/idn"}:                         generichttp.GetString(h.identify),
		{Method: http.MethodGet, Path: "/clock"}:                       generichttp.GetString(h.clock),
		{Method: http.MethodPost, Path: "/clock"}:                      generichttp.SetString(h.setClock),
		{Method: http.MethodPost, Path: "/copy"}:                       h.copy,
		{Method: http.MethodGet, Path: "/ch/{ch}/state"}:               h.state,
		{Method: http.MethodGet, Path: "/ch/{ch}/output"}:              h.output,
		{Method: http.MethodPost, Path: "/ch/{ch}/output"}:             h.setOutput,
		{Method: http.MethodPost, Path: "/ch/{ch}/impedance"}:          h.impedance,
		{Method: http.MethodPost, Path: "/ch/{ch}/apply"}:              h.apply,
		{Method: http.MethodPost, Path: "/ch/{ch}/vpp"}:                h.value((*DG4000).SetVpp),
		{Method: http.MethodPost, Path: "/ch/{ch}/offset"}:             h.value((*DG4000).SetOffset),
		{Method: http.MethodPost, Path: "/ch/{ch}/high"}:               h.value((*DG4000).SetHighLevel),
		{Method: http.MethodPost, Path: "/ch/{ch}/low"}:                h.value((*DG4000).SetLowLevel),
		{Method: http.MethodPost, Path: "/ch/{ch}/vpp-offset"}:         h.vppOffset,
		{Method: http.MethodPost, Path: "/ch/{ch}/high-low"}:           h.highLow,
		{Method: http.MethodPost, Path: "/ch/{ch}/phase"}:              h.float((*DG4000).SetPhase),
		{Method: http.MethodPost, Path: "/ch/{ch}/pulse/width"}:        h.float((*DG4000).SetPulseWidth),
		{Method: http.MethodPost, Path: "/ch/{ch}/pulse/duty"}:         h.float((*DG4000).SetPulseDutyCycle),
		{Method: http.MethodPost, Path: "/ch/{ch}/pulse/delay"}:        h.float((*DG4000).SetPulseDelay),
		{Method: http.MethodPost, Path: "/ch/{ch}/pulse/hold"}:         h.hold,
		{Method: http.MethodPost, Path: "/ch/{ch}/pulse/leading"}:      h.edge((*DG4000).SetPulseRisingEdge),
		{Method: http.MethodPost, Path: "/ch/{ch}/pulse/trailing"}:     h.edge((*DG4000).SetPulseFallingEdge),
		{Method: http.MethodPost, Path: "/ch/{ch}/ramp/symmetry"}:      h.float((*DG4000).SetRampSymmetry),
		{Method: http.MethodPost, Path: "/ch/{ch}/harmonic/type"}:      h.harmonicType,
		{Method: http.MethodPost, Path: "/ch/{ch}/harmonic/order"}:     h.harmonicOrder,
		{Method: http.MethodPost, Path: "/ch/{ch}/harmonic/amplitude"}: h.harmonicAmplitude,
		{Method: http.MethodPost, Path: "/ch/{ch}/harmonic/phase"}:     h.harmonicPhase,
		{Method: http.MethodPost, Path: "/ch/{ch}/harmonic/user"}:      h.harmonicUser,
	}
	if raw != nil {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}] = h.raw
	}
	h.RouteTable = rt
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// channel plucks the channel from the URL.  It replies with 400 and returns
// false if the channel is not 1 or 2.
func channel(w http.ResponseWriter, r *http.Request) (Channel, bool) {
	ch, err := ParseChannel(chi.URLParam(r, "ch"))
	if err != nil {
		generichttp.Error(w, err)
		return 0, false
	}
	return ch, true
}

// decode reads a JSON body into v, replying with 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// do runs fcn with the controller locked and replies 200 or the error
func (h *HTTPWrapper) do(w http.ResponseWriter, fcn func(*DG4000) error) {
	h.mu.Lock()
	err := fcn(h.AWG)
	h.mu.Unlock()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPWrapper) reset(w http.ResponseWriter, r *http.Request) {
	h.do(w, (*DG4000).Reset)
}

func (h *HTTPWrapper) identify() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.AWG.Identify()
}

func (h *HTTPWrapper) clock() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.AWG.ReferenceClock().String(), nil
}

func (h *HTTPWrapper) setClock(s string) error {
	c, err := ParseClockSource(s)
	if err != nil {
		return invalid(System, "reference clock", Malformed, "%v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.AWG.SetReferenceClock(c)
}

func (h *HTTPWrapper) raw(w http.ResponseWriter, r *http.Request) {
	s := server.StrT{}
	if !decode(w, r, &s) {
		return
	}
	h.mu.Lock()
	resp, err := h.Raw.Raw(s.Str)
	h.mu.Unlock()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	respondJSON(w, server.StrT{Str: resp})
}

func (h *HTTPWrapper) copy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Src Channel `json:"src"`
		Dst Channel `json:"dst"`
	}
	if !decode(w, r, &body) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.CopyChannel(body.Src, body.Dst) })
}

func (h *HTTPWrapper) state(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	h.mu.Lock()
	s, err := h.AWG.State(ch)
	h.mu.Unlock()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	respondJSON(w, s)
}

func (h *HTTPWrapper) output(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	h.mu.Lock()
	s, err := h.AWG.State(ch)
	h.mu.Unlock()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	respondJSON(w, server.BoolT{Bool: s.OutputEnabled})
}

func (h *HTTPWrapper) setOutput(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	b := server.BoolT{}
	if !decode(w, r, &b) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetOutput(ch, b.Bool) })
}

func (h *HTTPWrapper) impedance(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	var body struct {
		Ohms Impedance `json:"ohms"`
	}
	if !decode(w, r, &body) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetImpedance(ch, body.Ohms) })
}

// apply starts from the channel's current frequency, levels, phase and delay
// so the body only needs the fields that change
func (h *HTTPWrapper) apply(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	h.mu.Lock()
	s, err := h.AWG.State(ch)
	h.mu.Unlock()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	req := WaveformRequest{
		Waveform:  s.Waveform,
		Frequency: s.Frequency,
		Amplitude: s.Vpp,
		Offset:    s.Offset,
		Phase:     s.Phase,
		Delay:     s.Pulse.Delay,
	}
	if !decode(w, r, &req) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.Apply(ch, req) })
}

// value binds a setter taking a number or MIN/MAX, {"value": 1.5} or {"value": "MAX"}
func (h *HTTPWrapper) value(fcn func(*DG4000, Channel, Value) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, ok := channel(w, r)
		if !ok {
			return
		}
		var body struct {
			Value Value `json:"value"`
		}
		if !decode(w, r, &body) {
			return
		}
		h.do(w, func(d *DG4000) error { return fcn(d, ch, body.Value) })
	}
}

// float binds a setter taking a plain number, {"f64": 1.5}
func (h *HTTPWrapper) float(fcn func(*DG4000, Channel, float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, ok := channel(w, r)
		if !ok {
			return
		}
		f := server.FloatT{}
		if !decode(w, r, &f) {
			return
		}
		h.do(w, func(d *DG4000) error { return fcn(d, ch, f.F64) })
	}
}

func (h *HTTPWrapper) vppOffset(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	var body struct {
		Vpp    Value `json:"vpp"`
		Offset Value `json:"offset"`
	}
	if !decode(w, r, &body) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetVppOffset(ch, body.Vpp, body.Offset) })
}

func (h *HTTPWrapper) highLow(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	var body struct {
		High Value `json:"high"`
		Low  Value `json:"low"`
	}
	if !decode(w, r, &body) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetHighLow(ch, body.High, body.Low) })
}

func (h *HTTPWrapper) hold(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	s := server.StrT{}
	if !decode(w, r, &s) {
		return
	}
	var hm HoldMode
	if err := hm.UnmarshalText([]byte(s.Str)); err != nil {
		generichttp.Error(w, invalid(ch, "pulse hold", Malformed, "%v", err))
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetPulseHold(ch, hm) })
}

// edge replies with the Adjustment so the caller learns whether the edge was shortened
func (h *HTTPWrapper) edge(fcn func(*DG4000, Channel, float64) (Adjustment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, ok := channel(w, r)
		if !ok {
			return
		}
		f := server.FloatT{}
		if !decode(w, r, &f) {
			return
		}
		h.mu.Lock()
		adj, err := fcn(h.AWG, ch, f.F64)
		h.mu.Unlock()
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		respondJSON(w, adj)
	}
}

func (h *HTTPWrapper) harmonicType(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	s := server.StrT{}
	if !decode(w, r, &s) {
		return
	}
	var t HarmonicType
	if err := t.UnmarshalText([]byte(s.Str)); err != nil {
		generichttp.Error(w, invalid(ch, "harmonic type", Malformed, "%v", err))
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetHarmonicType(ch, t) })
}

func (h *HTTPWrapper) harmonicOrder(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	i := server.IntT{}
	if !decode(w, r, &i) {
		return
	}
	h.mu.Lock()
	verified, err := h.AWG.SetHarmonicOrder(ch, i.Int)
	h.mu.Unlock()
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	respondJSON(w, struct {
		Verified bool `json:"verified"`
	}{verified})
}

func (h *HTTPWrapper) harmonicAmplitude(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	var body struct {
		SN    int   `json:"sn"`
		Value Value `json:"value"`
	}
	if !decode(w, r, &body) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetHarmonicAmplitude(ch, body.SN, body.Value) })
}

func (h *HTTPWrapper) harmonicPhase(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	var body struct {
		SN  int     `json:"sn"`
		Deg float64 `json:"deg"`
	}
	if !decode(w, r, &body) {
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetHarmonicPhase(ch, body.SN, body.Deg) })
}

// harmonicUser takes the mask as a bit string, harmonic 2 first,
// {"str": "101000000000000"}.  A leading X for the fundamental is accepted.
func (h *HTTPWrapper) harmonicUser(w http.ResponseWriter, r *http.Request) {
	ch, ok := channel(w, r)
	if !ok {
		return
	}
	s := server.StrT{}
	if !decode(w, r, &s) {
		return
	}
	bits, ok := util.ParseBitString(strings.TrimPrefix(strings.ToUpper(s.Str), "X"))
	if !ok {
		generichttp.Error(w, invalid(ch, "harmonic user mask", Malformed, "%q is not a string of 0 and 1", s.Str))
		return
	}
	h.do(w, func(d *DG4000) error { return d.SetHarmonicUserMask(ch, bits) })
}
