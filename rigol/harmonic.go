package rigol

// HarmonicRange bounds the harmonic order at one output load
type HarmonicRange struct {
	MinOrder int `yaml:"MinOrder" koanf:"MinOrder"`
	MaxOrder int `yaml:"MaxOrder" koanf:"MaxOrder"`

	// Bandwidth is the highest frequency, in Hz, the highest harmonic may reach
	Bandwidth float64 `yaml:"Bandwidth" koanf:"Bandwidth"`
}

// HarmonicTable bounds the harmonic order by output impedance.  The bounds
// the instrument enforces depend on the load it drives; loads missing from
// ByImpedance fall back to the conservative Fallback range.
type HarmonicTable struct {
	ByImpedance map[Impedance]HarmonicRange
	Fallback    HarmonicRange
}

// DefaultHarmonicTable returns the DG4162 ranges for the two documented
// loads, high impedance and 50 Ω
func DefaultHarmonicTable() HarmonicTable {
	return HarmonicTable{
		ByImpedance: map[Impedance]HarmonicRange{
			HighZ: {MinOrder: 2, MaxOrder: 16, Bandwidth: 160e6},
			50:    {MinOrder: 2, MaxOrder: 16, Bandwidth: 160e6},
		},
		Fallback: HarmonicRange{MinOrder: 2, MaxOrder: 8, Bandwidth: 80e6},
	}
}

// Lookup returns the range for load z.  verified is false when z is not in
// the table and the fallback was used.
func (t HarmonicTable) Lookup(z Impedance) (r HarmonicRange, verified bool) {
	if r, ok := t.ByImpedance[z]; ok {
		return r, true
	}
	return t.Fallback, false
}

// ValidateHarmonicOrder checks order against the table range for load z and,
// when the fundamental freq is numeric, that the highest harmonic stays
// within the range's bandwidth.  verified reports whether z had an entry in
// the table; an unverified order passed the fallback bounds only.
func ValidateHarmonicOrder(ch Channel, order int, z Impedance, freq Value, t HarmonicTable) (verified bool, err error) {
	r, verified := t.Lookup(z)
	if order < r.MinOrder || order > r.MaxOrder {
		return verified, invalid(ch, "harmonic order", OutOfRange, "%d is outside %d to %d at a %s Ω load", order, r.MinOrder, r.MaxOrder, z)
	}
	if freq.IsNumeric() && r.Bandwidth > 0 && above(float64(order)*freq.Num, r.Bandwidth) {
		return verified, invalid(ch, "harmonic order", Inconsistent, "harmonic %d of %s Hz exceeds the %s Hz bandwidth", order, formatFloat(freq.Num), formatFloat(r.Bandwidth))
	}
	return verified, nil
}
