// Package environment outlines the interfaces that environments
// producing RGB frames must implement to be used with a predictive
// agent, together with the action tables shared by those environments.
package environment

import ts "github.com/samuelfneumann/predictivenet/timestep"

// Environment implements a simulated environment with a discrete
// action space whose observations are RGB frames. Observations are
// flattened in height x width x channel order with values in [0, 1].
type Environment interface {
	// Reset starts a new episode and returns its first TimeStep
	Reset() (ts.TimeStep, error)

	// Step takes one action in the environment and returns the next
	// TimeStep and whether the episode ended
	Step(action int) (ts.TimeStep, bool, error)

	// CurrentTimeStep returns the last TimeStep of the environment
	CurrentTimeStep() ts.TimeStep

	// ActionMeanings returns the human-readable name of each action,
	// indexed by action
	ActionMeanings() []string

	// FrameSize returns the height and width of observed frames
	FrameSize() (int, int)

	// Close performs resource cleanup after the environment is no
	// longer needed
	Close() error
}

// Ender determines when episodes should end
type Ender interface {
	// End returns whether the episode should end at TimeStep t and if
	// so, marks t as the last step of the episode
	End(t *ts.TimeStep) bool
}

// StepLimit implements the Ender interface to end episodes at specific
// timestep limits
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit. Episodes are
// never cut off if episodeSteps is not positive.
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode temrination. If the episode
// should be ended End() will modify the timestep so that its StepType
// field is timestep.Last
func (s StepLimit) End(t *ts.TimeStep) bool {
	if s.episodeSteps > 0 && t.Number >= s.episodeSteps {
		t.StepType = ts.Last
		return true
	}
	return false
}

// AtariActionMeanings are the names of the full Atari 2600 action set
// in the order used by the Arcade Learning Environment
var AtariActionMeanings = []string{
	"NOOP", "FIRE", "UP", "RIGHT", "LEFT", "DOWN", "UPRIGHT", "UPLEFT",
	"DOWNRIGHT", "DOWNLEFT", "UPFIRE", "RIGHTFIRE", "LEFTFIRE",
	"DOWNFIRE", "UPRIGHTFIRE", "UPLEFTFIRE", "DOWNRIGHTFIRE",
	"DOWNLEFTFIRE",
}

// Noop is the action that does nothing. It is the action taken in the
// first timestep of every episode.
const Noop = 0
