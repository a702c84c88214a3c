// Package policy implements action selection policies over discrete
// action spaces
package policy

import (
	"fmt"

	ts "github.com/samuelfneumann/predictivenet/timestep"
	"golang.org/x/exp/rand"
)

// Uniform implements a policy that selects actions uniformly at
// random from the closed interval [low, high], ignoring the timestep
// it acts in
type Uniform struct {
	low, high int
	rng       *rand.Rand
}

// NewUniform creates and returns a new Uniform policy selecting
// actions in [low, high] using the random seed seed
func NewUniform(low, high int, seed uint64) (*Uniform, error) {
	if low < 0 {
		return nil, fmt.Errorf("newUniform: actions must be non-negative "+
			"\n\thave(%v)", low)
	}
	if high < low {
		return nil, fmt.Errorf("newUniform: empty action range \n\twant("+
			"low <= high) \n\thave(%v > %v)", low, high)
	}

	return &Uniform{
		low:  low,
		high: high,
		rng:  rand.New(rand.NewSource(seed)),
	}, nil
}

// SelectAction selects an action uniformly at random
func (u *Uniform) SelectAction(ts.TimeStep) int {
	return u.low + u.rng.Intn(u.high-u.low+1)
}

// Bounds returns the smallest and largest action the policy selects
func (u *Uniform) Bounds() (int, int) {
	return u.low, u.high
}
