package tracker

import (
	"github.com/pkg/errors"
	ts "github.com/samuelfneumann/predictivenet/timestep"
)

// LossReporter is a learner that reports the loss of its updates
type LossReporter interface {
	Updates() int
	LastUpdateLoss() float64
}

// Loss tracks and saves the loss of every update an agent makes. The
// loss is recorded on the first timestep tracked after each update.
type Loss struct {
	agent    LossReporter
	updates  int
	losses   []float64
	filename string
}

// NewLoss returns a new Loss Tracker recording the updates of agent
func NewLoss(filename string, agent LossReporter) *Loss {
	return &Loss{agent: agent, updates: agent.Updates(), filename: filename}
}

// Track records the loss of the agent's last update if the agent has
// updated since the last call
func (l *Loss) Track(ts.TimeStep) {
	if updates := l.agent.Updates(); updates != l.updates {
		l.updates = updates
		l.losses = append(l.losses, l.agent.LastUpdateLoss())
	}
}

// Losses returns the recorded losses
func (l *Loss) Losses() []float64 {
	return l.losses
}

// Save saves the data tracked by the Loss Tracker to disk.
func (l *Loss) Save() error {
	return errors.Wrap(save(l.filename, l.losses), "loss")
}
