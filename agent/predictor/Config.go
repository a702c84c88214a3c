package predictor

import (
	"fmt"

	"github.com/samuelfneumann/predictivenet/agent"
	"github.com/samuelfneumann/predictivenet/environment"
	"github.com/samuelfneumann/predictivenet/initwfn"
	"github.com/samuelfneumann/predictivenet/network"
	"github.com/samuelfneumann/predictivenet/solver"
)

func init() {
	// Register the Config type so that it can be typed using
	// agent.TypedConfig to help with serialization/deserialization.
	agent.Register(agent.PredictiveAutoencoder, Config{})
}

// Defaults
const (
	DefaultName             = "predictive_autoencoder"
	DefaultClassifierWeight = 0.5
	DefaultBackpropRounds   = 10
	DefaultActionSpace      = 18
	DefaultActionLow        = 1
	DefaultActionHigh       = 6
	DefaultStepSize         = 1e-3

	// CPU selects the CPU as the device for the computational graphs
	CPU = -1

	// GPU runs operations with a CUDA implementation on the GPU
	GPU = 0
)

// Config implements a configuration for a Predictor agent
type Config struct {
	SaveDir   string // Directory of the model and optimizer files
	Name      string // Base name of the model and optimizer files
	LoadSaved bool   // Restore saved artifacts on construction if present

	// Weight of the image loss, the action loss is weighted by
	// 1 - ClassifierWeight
	ClassifierWeight float64

	// Number of steps between updates, which is also the number of
	// steps gradients are propagated back through time
	BackpropRounds int

	Device int // CPU or GPU

	ActionSpace    int      // Number of actions the model predicts
	ActionMeanings []string // Taken from the environment if empty

	// Actions are selected uniformly from [ActionLow, ActionHigh]
	ActionLow  int
	ActionHigh int

	// Frame size, taken from the environment if zero
	FrameHeight int
	FrameWidth  int

	// Whether the loss accumulator is zeroed after each update
	ResetLossAfterUpdate bool

	Solver  *solver.Solver
	InitWFn *initwfn.InitWFn
}

// DefaultConfig returns the default Config, saving into saveDir
func DefaultConfig(saveDir string) Config {
	var c Config
	c.SetDefaults()
	c.SaveDir = saveDir
	return c
}

// SetDefaults sets each field of the Config to its default value
func (c *Config) SetDefaults() {
	adam, err := solver.NewDefaultAdam(DefaultStepSize, 1)
	if err != nil {
		panic(fmt.Sprintf("setDefaults: %v", err))
	}

	*c = Config{
		Name:                 DefaultName,
		LoadSaved:            true,
		ClassifierWeight:     DefaultClassifierWeight,
		BackpropRounds:       DefaultBackpropRounds,
		Device:               CPU,
		ActionSpace:          DefaultActionSpace,
		ActionLow:            DefaultActionLow,
		ActionHigh:           DefaultActionHigh,
		ResetLossAfterUpdate: true,
		Solver:               adam,
		InitWFn:              initwfn.Default(),
	}
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.PredictiveAutoencoder
}

// Validate checks a Config to ensure it is a valid configuration of a
// Predictor agent.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("validate: name must not be empty")
	}

	if c.ClassifierWeight < 0 || c.ClassifierWeight > 1 {
		return fmt.Errorf("validate: classifier weight must be in [0, 1] "+
			"\n\thave(%v)", c.ClassifierWeight)
	}

	if c.BackpropRounds < 1 {
		return fmt.Errorf("validate: backprop rounds must be positive "+
			"\n\twant(>0) \n\thave(%v)", c.BackpropRounds)
	}

	// Gorgonia places CUDA operations itself, so a device index other
	// than GPU cannot be honoured
	if c.Device != CPU && c.Device != GPU {
		return fmt.Errorf("validate: invalid device \n\twant(%v or %v) "+
			"\n\thave(%v)", CPU, GPU, c.Device)
	}

	if c.ActionSpace < 1 {
		return fmt.Errorf("validate: action space must be positive "+
			"\n\thave(%v)", c.ActionSpace)
	}

	if c.ActionLow < 0 || c.ActionLow > c.ActionHigh ||
		c.ActionHigh >= c.ActionSpace {
		return fmt.Errorf("validate: invalid action range \n\twant("+
			"0 <= low <= high < %v) \n\thave([%v, %v])", c.ActionSpace,
			c.ActionLow, c.ActionHigh)
	}

	if (c.FrameHeight == 0) != (c.FrameWidth == 0) {
		return fmt.Errorf("validate: frame height and width must both be "+
			"set or both be zero \n\thave(%v, %v)", c.FrameHeight,
			c.FrameWidth)
	}
	if c.FrameHeight != 0 {
		if _, err := network.NewGeometry(c.FrameHeight, c.FrameWidth); err != nil {
			return fmt.Errorf("validate: %v", err)
		}
	}

	if c.Solver == nil {
		return fmt.Errorf("validate: no solver specified")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer specified")
	}

	return nil
}

// CreateAgent creates a new Predictor agent based on the configuration
func (c Config) CreateAgent(e environment.Environment,
	seed uint64) (agent.Learner, error) {
	return New(e, c, seed)
}
