package experiment

import (
	"context"
	"io"

	"github.com/aunum/log"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/predictivenet/agent"
	env "github.com/samuelfneumann/predictivenet/environment"
	"github.com/samuelfneumann/predictivenet/experiment/checkpointer"
	"github.com/samuelfneumann/predictivenet/experiment/tracker"
	ts "github.com/samuelfneumann/predictivenet/timestep"
	"github.com/samuelfneumann/predictivenet/utils/progressbar"
)

// Online is an Experiment that runs an agent online only. No offline
// evaluation is performed.
type Online struct {
	env.Environment
	agent.Learner
	maxSteps      int
	currentSteps  int
	episodes      int
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
	bar           *progressbar.ProgressBar
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines how
// many timesteps the experiment is run for, t determines what data is
// saved, and c determines when the agent is checkpointed.
func NewOnline(e env.Environment, a agent.Learner, steps int,
	t []tracker.Tracker, c []checkpointer.Checkpointer) *Online {
	return &Online{
		Environment:   e,
		Learner:       a,
		maxSteps:      steps,
		trackers:      t,
		checkpointers: c,
	}
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// ShowProgress displays a progress bar of width characters on out
// while the experiment runs
func (o *Online) ShowProgress(out io.Writer, width int) {
	o.bar = progressbar.New(out, width, o.maxSteps)
}

// Steps returns the number of steps run so far
func (o *Online) Steps() int {
	return o.currentSteps
}

// RunEpisode runs a single episode of the experiment. The Noop action
// is taken in the first timestep of the episode, and the agent chooses
// the action of every following timestep. RunEpisode returns whether
// the maximum number of steps has been reached.
func (o *Online) RunEpisode(ctx context.Context) (bool, error) {
	step, err := o.Environment.Reset()
	if err != nil {
		return false, errors.Wrap(err, "runEpisode: could not reset")
	}
	if err := o.Learner.ObserveFirst(step); err != nil {
		return false, errors.Wrap(err, "runEpisode")
	}
	o.track(step)

	action := env.Noop
	for !step.Last() && o.currentSteps < o.maxSteps {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		o.currentSteps++

		if step, _, err = o.Environment.Step(action); err != nil {
			return false, errors.Wrapf(err, "runEpisode: step %v",
				o.currentSteps)
		}
		if action, err = o.Learner.Step(step); err != nil {
			return false, errors.Wrapf(err, "runEpisode: step %v",
				o.currentSteps)
		}

		o.track(step)
		if err := o.checkpoint(step); err != nil {
			return false, errors.Wrap(err, "runEpisode")
		}
		o.progress()
	}

	if step.Last() {
		o.Learner.EndEpisode()
		o.episodes++
		log.Debugf("episode %v finished after %v steps", o.episodes,
			step.Number)
	}

	// Return whether or not the max timestep limit has been reached
	return o.currentSteps >= o.maxSteps, nil
}

// Run runs the entire experiment for all timesteps or until ctx is
// done
func (o *Online) Run(ctx context.Context) error {
	if o.bar != nil {
		defer o.bar.Close()
	}

	for ended := false; !ended; {
		var err error
		if ended, err = o.RunEpisode(ctx); err != nil {
			return err
		}
	}

	log.Successf("experiment finished: %v steps, %v episodes",
		o.currentSteps, o.episodes)
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return errors.Wrap(err, "save")
		}
	}
	return nil
}

// track tracks the current timestep by caching its data in each Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tracker := range o.trackers {
		tracker.Track(t)
	}
}

// checkpoint passes the current timestep to each Checkpointer
func (o *Online) checkpoint(t ts.TimeStep) error {
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(t); err != nil {
			return err
		}
	}
	return nil
}

func (o *Online) progress() {
	if o.bar == nil {
		return
	}
	o.bar.Increment()
	if r, ok := o.Learner.(tracker.LossReporter); ok {
		o.bar.SetStatus("updates: %v loss: %.4f", r.Updates(),
			r.LastUpdateLoss())
	}
	o.bar.Display()
}
