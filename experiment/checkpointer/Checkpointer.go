// Package checkpointer implements Checkpointers, which periodically
// save the state of an object during an experiment
package checkpointer

import (
	"time"

	ts "github.com/samuelfneumann/predictivenet/timestep"
)

// Saver is an object that can save its own state
type Saver interface {
	Save() (time.Time, error)
}

// Checkpointer checkpoints/saves Savers based on timestep.TimeSteps
type Checkpointer interface {
	Checkpoint(ts.TimeStep) error
}
