package initwfn

import G "gorgonia.org/gorgonia"

// ScaledConfig implements a configuration of the variance scaling
// initialization algorithms, which scale the spread of the initial
// weights by the fan in (He) or fan in and fan out (Glorot) of each
// weight tensor.
type ScaledConfig struct {
	Kind Type `json:"-"`
	Gain float64
}

// NewHeN returns a new He normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return newInitWFn(ScaledConfig{Kind: HeN, Gain: gain})
}

// NewHeU returns a new He uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return newInitWFn(ScaledConfig{Kind: HeU, Gain: gain})
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(ScaledConfig{Kind: GlorotN, Gain: gain})
}

// NewGlorotU returns a new Glorot uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(ScaledConfig{Kind: GlorotU, Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (s ScaledConfig) Type() Type {
	return s.Kind
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (s ScaledConfig) Create() G.InitWFn {
	switch s.Kind {
	case HeU:
		return G.HeU(s.Gain)
	case GlorotN:
		return G.GlorotN(s.Gain)
	case GlorotU:
		return G.GlorotU(s.Gain)
	default:
		return G.HeN(s.Gain)
	}
}
