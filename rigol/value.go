package rigol

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Bound distinguishes a plain number from the MINimum and MAXimum keywords
type Bound int

const (
	// Numeric is a plain number
	Numeric Bound = iota

	// Min asks the instrument for the smallest legal value
	Min

	// Max asks the instrument for the largest legal value
	Max
)

// Value is a numeric parameter, or one of the MINimum / MAXimum keywords
// whose meaning is left to the instrument
type Value struct {
	Bound Bound
	Num   float64
}

var (
	// Minimum is the MINimum keyword
	Minimum = Value{Bound: Min}

	// Maximum is the MAXimum keyword
	Maximum = Value{Bound: Max}
)

// V returns a numeric Value
func V(f float64) Value {
	return Value{Num: f}
}

// IsNumeric is true when v holds a number rather than a keyword
func (v Value) IsNumeric() bool {
	return v.Bound == Numeric
}

// String is the SCPI form of v
func (v Value) String() string {
	switch v.Bound {
	case Min:
		return "MINimum"
	case Max:
		return "MAXimum"
	default:
		return formatFloat(v.Num)
	}
}

// MarshalJSON encodes numbers as numbers and keywords as "MIN" / "MAX"
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Bound {
	case Min:
		return []byte(`"MIN"`), nil
	case Max:
		return []byte(`"MAX"`), nil
	default:
		return json.Marshal(v.Num)
	}
}

// UnmarshalJSON accepts a number, or a string holding a number or keyword
func (v *Value) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*v = V(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Errorf("value must be a number, \"MIN\" or \"MAX\", got %s", b)
	}
	pv, err := ParseValue(s)
	if err != nil {
		return err
	}
	*v = pv
	return nil
}

// ParseValue converts "1e3", "min", "MINimum", "MAX" and so on to a Value
func ParseValue(s string) (Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "minimum":
		return Minimum, nil
	case "max", "maximum":
		return Maximum, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Value{}, errors.Errorf("%q is not a number, MIN or MAX", s)
	}
	return V(f), nil
}

// formatFloat produces the shortest representation that round-trips,
// 1000 => "1000", 5e-7 => "5E-07"
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'G', -1, 64)
}

// Impedance is an output load setting in ohms.  HighZ is the high impedance setting.
type Impedance float64

// HighZ is the high impedance (INFinity) load setting
var HighZ = Impedance(math.Inf(1))

// IsHighZ is true for the high impedance setting
func (z Impedance) IsHighZ() bool {
	return math.IsInf(float64(z), 1)
}

// String is the SCPI form of z
func (z Impedance) String() string {
	if z.IsHighZ() {
		return "INFinity"
	}
	return formatFloat(float64(z))
}

// MarshalJSON encodes HighZ as "INF" and anything else as a number of ohms
func (z Impedance) MarshalJSON() ([]byte, error) {
	if z.IsHighZ() {
		return []byte(`"INF"`), nil
	}
	return json.Marshal(float64(z))
}

// UnmarshalJSON accepts a number of ohms, or a string understood by ParseImpedance
func (z *Impedance) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*z = Impedance(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Errorf("impedance must be a number or \"INF\", got %s", b)
	}
	pz, err := ParseImpedance(s)
	if err != nil {
		return err
	}
	*z = pz
	return nil
}

// ParseImpedance converts "50", "inf", "INFinity" or "highz" to an Impedance
func ParseImpedance(s string) (Impedance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inf", "infinity", "highz", "high-z":
		return HighZ, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Errorf("%q is not an impedance in ohms or INF", s)
	}
	return Impedance(f), nil
}
