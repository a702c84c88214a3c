package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// State is the hidden feature map of the recurrent bottleneck. A State
// is passed into every forward pass and replaced by the hidden state
// the pass produces. A fresh State, or one that has been Reset, is the
// all-zero state used at the start of an episode.
type State struct {
	hidden *tensor.Dense
}

// NewState returns the zero State of a network with Geometry geo
func NewState(geo Geometry) *State {
	return &State{
		hidden: tensor.New(
			tensor.WithShape(geo.HiddenShape()...),
			tensor.Of(tensor.Float64),
		),
	}
}

// Reset sets the State back to zero
func (s *State) Reset() {
	s.hidden.Zero()
}

// Clone returns a deep copy of the State
func (s *State) Clone() *State {
	return &State{hidden: s.hidden.Clone().(*tensor.Dense)}
}

// Value returns the hidden feature map
func (s *State) Value() *tensor.Dense {
	return s.hidden
}

// IsZero returns whether the State is the zero state
func (s *State) IsZero() bool {
	for _, v := range s.hidden.Data().([]float64) {
		if v != 0 {
			return false
		}
	}
	return true
}

// set copies a hidden state computed by a network into the State
func (s *State) set(v G.Value) error {
	dense, ok := v.(*tensor.Dense)
	if !ok {
		return fmt.Errorf("set: hidden state must be *tensor.Dense "+
			"\n\thave(%T)", v)
	}
	if !dense.Shape().Eq(s.hidden.Shape()) {
		return fmt.Errorf("set: invalid hidden state shape \n\twant(%v) "+
			"\n\thave(%v)", s.hidden.Shape(), dense.Shape())
	}
	copy(s.hidden.Data().([]float64), dense.Data().([]float64))
	return nil
}
