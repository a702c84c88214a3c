// Package experiment implements functionality for running an experiment
package experiment

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/predictivenet/agent"
	"github.com/samuelfneumann/predictivenet/environment"
	"github.com/samuelfneumann/predictivenet/experiment/checkpointer"
	"github.com/samuelfneumann/predictivenet/experiment/tracker"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments will track environment TimeSteps, caching each TimeStep
// in RAM to be later saved to disk. The Save() function will then take
// all cached data and save it to disk. This is usually performed after
// an experiment has been run. The Run() method will run all episodes
// until the maximum timestep limit is reached or the context is done.
// The RunEpisode() function will run a single episode.
//
// In order to save data, Experiments use Trackers. Trackers determine
// which data generated during the experiment is saved. New Trackers can
// be registered with an Experiment through the constructor or through
// an Experiment's Register() function.
type Experiment interface {
	Run(context.Context) error

	// RunEpisode returns whether or not the experiment has finished
	RunEpisode(context.Context) (bool, error)

	// Save all tracked data to disk
	Save() error

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment. Useful if you want to track data only after a
	// specified event.
	Register(t tracker.Tracker)
}

// Config represents a configuration of an experiment.
type Config struct {
	MaxSteps int
	Agent    agent.TypedConfig

	CheckpointEvery int // Steps between agent checkpoints, 0 disables

	// Files to save tracked data to, empty disables tracking
	ReturnFile        string
	EpisodeLengthFile string
	LossFile          string
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("validate: maximum steps must be positive "+
			"\n\thave(%v)", c.MaxSteps)
	}
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("validate: checkpoint interval must not be "+
			"negative \n\thave(%v)", c.CheckpointEvery)
	}
	if c.Agent.Config == nil {
		return fmt.Errorf("validate: no agent configured")
	}
	return c.Agent.Validate()
}

// CreateExp creates the agent described by the Config in env and
// returns an online experiment running it
func (c Config) CreateExp(env environment.Environment,
	seed uint64) (*Online, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "createExp")
	}

	a, err := c.Agent.CreateAgent(env, seed)
	if err != nil {
		return nil, errors.Wrap(err, "createExp: could not create agent")
	}

	var trackers []tracker.Tracker
	if c.ReturnFile != "" {
		trackers = append(trackers, tracker.NewReturn(c.ReturnFile))
	}
	if c.EpisodeLengthFile != "" {
		trackers = append(trackers,
			tracker.NewEpisodeLength(c.EpisodeLengthFile))
	}
	if c.LossFile != "" {
		reporter, ok := a.(tracker.LossReporter)
		if !ok {
			return nil, fmt.Errorf("createExp: agent %T does not report "+
				"its loss", a)
		}
		trackers = append(trackers, tracker.NewLoss(c.LossFile, reporter))
	}

	var checkpointers []checkpointer.Checkpointer
	if c.CheckpointEvery > 0 {
		saver, ok := a.(checkpointer.Saver)
		if !ok {
			return nil, fmt.Errorf("createExp: agent %T cannot be "+
				"checkpointed", a)
		}
		n, err := checkpointer.NewNStep(c.CheckpointEvery, saver)
		if err != nil {
			return nil, errors.Wrap(err, "createExp")
		}
		checkpointers = append(checkpointers, n)
	}

	return NewOnline(env, a, c.MaxSteps, trackers, checkpointers), nil
}
