// Package window implements a buffer of consecutive transitions that
// are replayed in order to backpropagate through time
package window

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Transition is a single step of prediction: a model saw Frame and
// Action and had to predict Target and TargetAction. Carry is false if
// the hidden state was reset before the step.
type Transition struct {
	Frame        *tensor.Dense
	Action       int
	Target       *tensor.Dense
	TargetAction int
	Carry        bool
}

// Window stores a fixed number of consecutive Transitions. Unlike an
// experience replay buffer, a Window is never sampled: it is read in
// full and in insertion order once it is full, and then cleared.
type Window struct {
	transitions []Transition
}

// New returns a new Window holding capacity transitions
func New(capacity int) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("new: capacity must be positive "+
			"\n\thave(%v)", capacity)
	}
	return &Window{transitions: make([]Transition, 0, capacity)}, nil
}

// Add adds a transition to the end of the Window
func (w *Window) Add(t Transition) error {
	if w.Full() {
		return &WindowError{Op: "add", Err: errFull}
	}
	w.transitions = append(w.transitions, t)
	return nil
}

// Transitions returns the transitions of a full Window in the order
// they were added
func (w *Window) Transitions() ([]Transition, error) {
	if !w.Full() {
		return nil, &WindowError{Op: "transitions", Err: errIncomplete}
	}
	return w.transitions, nil
}

// Clear removes all transitions from the Window
func (w *Window) Clear() {
	for i := range w.transitions {
		w.transitions[i] = Transition{}
	}
	w.transitions = w.transitions[:0]
}

// Len returns the number of transitions in the Window
func (w *Window) Len() int {
	return len(w.transitions)
}

// Empty returns whether the Window holds no transitions
func (w *Window) Empty() bool {
	return len(w.transitions) == 0
}

// Full returns whether the Window is full
func (w *Window) Full() bool {
	return len(w.transitions) == cap(w.transitions)
}

// Capacity returns the number of transitions a full Window holds
func (w *Window) Capacity() int {
	return cap(w.transitions)
}
