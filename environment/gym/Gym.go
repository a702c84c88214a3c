// Package gym provides access to the Atari environments of OpenAI's
// Gym as RGB frame environments.
//
// This is made possible through the Go bindings for OpenAI Gym,
// found at https://github.com/samuelfneumann/GoGym, which require a
// Python installation with gym and its Atari extras.
package gym

import (
	"fmt"

	python "github.com/DataDog/go-python3"
	"github.com/aunum/log"
	"github.com/samuelfneumann/gogym"
	env "github.com/samuelfneumann/predictivenet/environment"
	ts "github.com/samuelfneumann/predictivenet/timestep"
	"gonum.org/v1/gonum/mat"
)

const (
	// Atari frames are 210 x 160 x 3 bytes
	Height   = 210
	Width    = 160
	Channels = 3

	maxPixel = 255.0
)

// AtariEnv implements access to an OpenAI Gym Atari environment
// using GoGym. Observations are rescaled from bytes to [0, 1].
type AtariEnv struct {
	gogym.Environment

	name        string
	meanings    []string
	currentStep ts.TimeStep
	discount    float64
}

// New returns a new AtariEnv with the given name, which must be the
// name of an Atari environment with RGB observations from the OpenAI
// Gym suite, such as "Breakout-v0". Action meanings default to those
// of the game if meanings is nil, or to the full Atari action set if
// the game does not provide them.
func New(name string, meanings []string, discount float64,
	seed uint64) (*AtariEnv, ts.TimeStep, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not create "+
			"environment: %v", err)
	}
	goGymEnv.Seed(int(seed))

	if meanings == nil {
		if meanings, err = actionMeanings(goGymEnv); err != nil {
			log.Warningf("new: using the full Atari action set: %v", err)
			meanings = env.AtariActionMeanings
		}
	}
	atari := &AtariEnv{
		Environment: goGymEnv,
		name:        name,
		meanings:    meanings,
		discount:    discount,
	}

	t, err := atari.Reset()
	if err != nil {
		goGymEnv.Close()
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	return atari, t, nil
}

// actionMeanings returns the names of the actions of a gym Atari game,
// as given by env.unwrapped.get_action_meanings()
func actionMeanings(e gogym.Environment) ([]string, error) {
	unwrapped := e.Env().GetAttrString("unwrapped")
	if unwrapped == nil {
		python.PyErr_Clear()
		return nil, fmt.Errorf("actionMeanings: no unwrapped environment")
	}
	defer unwrapped.DecRef()

	get := unwrapped.GetAttrString("get_action_meanings")
	if get == nil {
		python.PyErr_Clear()
		return nil, fmt.Errorf("actionMeanings: environment has no " +
			"action meanings")
	}
	defer get.DecRef()

	meanings := get.CallObject(nil)
	if meanings == nil {
		python.PyErr_Clear()
		return nil, fmt.Errorf("actionMeanings: could not get action " +
			"meanings")
	}
	defer meanings.DecRef()

	names, err := gogym.StringSliceFromIter(meanings)
	if err != nil {
		return nil, fmt.Errorf("actionMeanings: %v", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("actionMeanings: no actions")
	}
	return names, nil
}

// frame validates and rescales a raw Atari observation
func (a *AtariEnv) frame(obs *mat.VecDense) (*mat.VecDense, error) {
	if obs.Len() != Height*Width*Channels {
		return nil, fmt.Errorf("frame: %v does not produce RGB frames "+
			"\n\twant(%v values) \n\thave(%v values)", a.name,
			Height*Width*Channels, obs.Len())
	}
	scaled := mat.NewVecDense(obs.Len(), nil)
	scaled.ScaleVec(1/maxPixel, obs)
	return scaled, nil
}

// Step takes a single environmental step
func (a *AtariEnv) Step(action int) (ts.TimeStep, bool, error) {
	obs, reward, done, err := a.Environment.Step(
		mat.NewVecDense(1, []float64{float64(action)}))
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: could not step "+
			"GoGym environment: %v", err)
	}
	frame, err := a.frame(obs)
	if err != nil {
		return ts.TimeStep{}, true, fmt.Errorf("step: %v", err)
	}

	t := ts.New(ts.Mid, reward, a.discount, frame, a.currentStep.Number+1)
	if done {
		t.StepType = ts.Last
	}
	a.currentStep = t

	return t, done, nil
}

// Reset resets the environment to some starting state
func (a *AtariEnv) Reset() (ts.TimeStep, error) {
	obs, err := a.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: could not reset "+
			"environment: %v", err)
	}
	frame, err := a.frame(obs)
	if err != nil {
		return ts.TimeStep{}, fmt.Errorf("reset: %v", err)
	}

	t := ts.New(ts.First, 0, a.discount, frame, 0)
	a.currentStep = t

	return t, nil
}

// CurrentTimeStep returns the current timestep in the environment
func (a *AtariEnv) CurrentTimeStep() ts.TimeStep {
	return a.currentStep
}

// ActionMeanings returns the names of the actions of the environment
func (a *AtariEnv) ActionMeanings() []string {
	return a.meanings
}

// FrameSize returns the height and width of Atari frames
func (a *AtariEnv) FrameSize() (int, int) {
	return Height, Width
}

// Close performs resource cleanup after the environment is no longer
// needed
func (a *AtariEnv) Close() error {
	a.Environment.Close()
	return nil
}

// Shutdown releases the Python interpreter used by all environments
// of this package. No environment may be used afterwards.
func Shutdown() {
	gogym.Close()
}
