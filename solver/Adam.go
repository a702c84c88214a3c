package solver

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int) (*Solver,
	error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
	}

	return newSolver(Adam, adam)
}

// Create returns a new AdamSolver as described by the AdamConfig
func (a AdamConfig) Create() G.Solver {
	return &AdamSolver{config: a}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// AdamSolver implements the Adam solver with bias corrected step
// sizes. Unlike the Gorgonia Adam solver, the moment estimates of an
// AdamSolver can be saved and restored, so that training can resume
// from a checkpoint exactly where it stopped.
//
// The moments are stored in the order in which weights are passed to
// Step, so an AdamSolver must always be stepped with the same model.
type AdamSolver struct {
	config AdamConfig
	state  adamState
}

// adamState is the gob serializable internal state of an AdamSolver
type adamState struct {
	Iter int
	M, V [][]float64
}

// Iter returns the number of updates the solver has performed
func (a *AdamSolver) Iter() int {
	return a.state.Iter
}

// init allocates zero moments for the weights in model
func (a *AdamSolver) init(model []G.ValueGrad) error {
	a.state.M = make([][]float64, len(model))
	a.state.V = make([][]float64, len(model))
	for i, n := range model {
		w, ok := n.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("init: weights %v must be *tensor.Dense", i)
		}
		a.state.M[i] = make([]float64, w.Len())
		a.state.V[i] = make([]float64, w.Len())
	}
	return nil
}

// Step implements the gorgonia.Solver interface. The weights of model
// are updated in place and their gradients are zeroed, since a
// TapeMachine adds to bound gradients on every run.
func (a *AdamSolver) Step(model []G.ValueGrad) error {
	if a.state.M == nil {
		if err := a.init(model); err != nil {
			return errors.Wrap(err, "step")
		}
	}
	if len(model) != len(a.state.M) {
		return fmt.Errorf("step: solver state does not match model "+
			"\n\twant(%v weights) \n\thave(%v weights)", len(a.state.M),
			len(model))
	}

	a.state.Iter++
	t := float64(a.state.Iter)
	b1, b2 := a.config.Beta1, a.config.Beta2
	stepSize := a.config.StepSize * math.Sqrt(1-math.Pow(b2, t)) /
		(1 - math.Pow(b1, t))

	scale := 1.0
	if a.config.Batch > 1 {
		scale = 1.0 / float64(a.config.Batch)
	}

	for i, n := range model {
		weights, ok := n.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("step: weights %v must be *tensor.Dense", i)
		}
		g, err := n.Grad()
		if err != nil {
			return errors.Wrapf(err, "step: could not get gradient %v", i)
		}
		grad, ok := g.(*tensor.Dense)
		if !ok {
			return fmt.Errorf("step: gradient %v must be *tensor.Dense", i)
		}

		w := weights.Data().([]float64)
		dw := grad.Data().([]float64)
		m, v := a.state.M[i], a.state.V[i]
		if len(w) != len(m) || len(dw) != len(m) {
			return fmt.Errorf("step: weights %v changed size \n\twant(%v) "+
				"\n\thave(%v)", i, len(m), len(w))
		}

		for j := range w {
			d := dw[j] * scale
			if a.config.Clip > 0 {
				d = math.Max(-a.config.Clip, math.Min(a.config.Clip, d))
			}
			m[j] += (1 - b1) * (d - m[j])
			v[j] += (1 - b2) * (d*d - v[j])
			w[j] -= stepSize * m[j] / (math.Sqrt(v[j]) + a.config.Epsilon)
		}
		grad.Zero()
	}
	return nil
}

// GobEncode implements the gob.GobEncoder interface
func (a *AdamSolver) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a.state); err != nil {
		return nil, errors.Wrap(err, "gobencode: could not encode moments")
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (a *AdamSolver) GobDecode(in []byte) error {
	var state adamState
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&state); err != nil {
		return errors.Wrap(err, "gobdecode: could not decode moments")
	}
	if len(state.M) != len(state.V) {
		return fmt.Errorf("gobdecode: corrupt moments \n\thave(%v first "+
			"moments, %v second moments)", len(state.M), len(state.V))
	}
	a.state = state
	return nil
}
