// Package agent defines the interfaces of learning agents and the typed
// configurations used to construct them
package agent

import (
	"time"

	ts "github.com/samuelfneumann/predictivenet/timestep"
)

// Learner implements an online learning algorithm. A Learner both
// chooses the action to take in each timestep and updates its weights
// from the timesteps it observes.
type Learner interface {
	// ObserveFirst records the first timestep in an episode
	ObserveFirst(ts.TimeStep) error

	// Step observes the next timestep, performs any learning that is
	// due, and returns the action to take
	Step(ts.TimeStep) (int, error)

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Saver is a Learner whose learned weights and optimizer state can be
// persisted and restored
type Saver interface {
	Learner

	// Save writes the Learner's artifacts and returns the time of the
	// save
	Save() (time.Time, error)

	// Load restores the Learner's artifacts
	Load() error
}

// Policy selects actions
type Policy interface {
	SelectAction(ts.TimeStep) int
}
