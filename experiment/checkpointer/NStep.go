package checkpointer

import (
	"fmt"

	"github.com/aunum/log"
	"github.com/pkg/errors"
	ts "github.com/samuelfneumann/predictivenet/timestep"
)

// NStep implements checkpointing every N environment steps. Steps are
// counted across episodes.
type NStep struct {
	interval int
	steps    int
	object   Saver // Object to save
}

// NewNStep returns a checkpointer that checkpoints every n steps.
func NewNStep(n int, object Saver) (*NStep, error) {
	if n < 1 {
		return nil, fmt.Errorf("newNStep: interval must be positive "+
			"\n\thave(%v)", n)
	}
	return &NStep{interval: n, object: object}, nil
}

// Checkpoint counts the step t and saves the Checkpointer's object by
// calling its Save() method on every n-th step
func (n *NStep) Checkpoint(t ts.TimeStep) error {
	n.steps++
	if n.steps%n.interval != 0 {
		return nil
	}

	saved, err := n.object.Save()
	if err != nil {
		return errors.Wrapf(err, "checkpoint: step %v", n.steps)
	}
	log.Infof("checkpoint at step %v saved %v", n.steps,
		saved.Format("15:04:05"))
	return nil
}
