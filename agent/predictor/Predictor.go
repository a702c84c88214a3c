// Package predictor implements an agent that learns a predictive model
// of its environment online. At every step the agent predicts the
// frame it will observe next together with the action it will take
// next, and every BackpropRounds steps it updates the model by
// backpropagating the prediction losses of those steps through time.
package predictor

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aunum/log"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/predictivenet/agent/policy"
	"github.com/samuelfneumann/predictivenet/buffer/window"
	"github.com/samuelfneumann/predictivenet/classifier"
	"github.com/samuelfneumann/predictivenet/environment"
	"github.com/samuelfneumann/predictivenet/network"
	"github.com/samuelfneumann/predictivenet/solver"
	ts "github.com/samuelfneumann/predictivenet/timestep"
	"github.com/samuelfneumann/predictivenet/utils/tensorutils"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrNotStarted is returned when a Predictor is stepped before it has
// observed the first timestep of an episode
var ErrNotStarted = errors.New("predictor not started: call ObserveFirst")

// Predictor implements an online predictive autoencoder agent.
//
// Two copies of the model are kept. The inference network is unrolled
// over a single step and predicts online. The training network is
// unrolled over BackpropRounds steps and replays the transitions of the
// last window, starting from the hidden state the window started from,
// to compute the gradient of the summed window loss. After each update
// the learned weights are copied to the inference network.
type Predictor struct {
	config   Config
	geometry network.Geometry
	meanings classifier.ActionMeanings
	policy   *policy.Uniform

	// Online prediction
	net         *network.PredictiveAutoencoder
	inference   *classifier.Classifier
	inferenceVM G.VM

	// Backpropagation through time over the update window
	trainNet *network.PredictiveAutoencoder
	trainer  *classifier.Classifier
	trainVM  G.VM
	solver   *solver.Solver

	// Recurrent state
	state       *network.State // Hidden state after the last step
	windowState *network.State // Hidden state entering the window
	carry       bool           // Whether state carries into the next step
	window      *window.Window

	started    bool
	lastFrame  *tensor.Dense
	lastAction int

	steps          int
	updates        int
	loss           float64 // Loss accumulator
	lastUpdateLoss float64

	predictedImage  *mat.VecDense
	predictedAction []float64
	errorMask       *mat.VecDense
}

// New creates and returns a new Predictor agent acting in env. If the
// Config requests it and saved artifacts exist, they are restored
// before the agent is returned.
func New(env environment.Environment, c Config, seed uint64) (*Predictor,
	error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}

	// Frame size and action names default to the environment's
	if c.FrameHeight == 0 {
		c.FrameHeight, c.FrameWidth = env.FrameSize()
	}
	geo, err := network.NewGeometry(c.FrameHeight, c.FrameWidth)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	if envHeight, envWidth := env.FrameSize(); envHeight != geo.Height ||
		envWidth != geo.Width {
		return nil, fmt.Errorf("new: frame size does not match environment "+
			"\n\twant(%v, %v) \n\thave(%v, %v)", envHeight, envWidth,
			geo.Height, geo.Width)
	}
	meanings := classifier.ActionMeanings(c.ActionMeanings)
	if len(meanings) == 0 {
		meanings = env.ActionMeanings()
	}

	uniform, err := policy.NewUniform(c.ActionLow, c.ActionHigh, seed)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	opts, err := vmOpts(c.Device)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	init := c.InitWFn.InitWFn()

	// Inference graph
	net, err := network.NewPredictiveAutoencoder(G.NewGraph(), geo,
		c.ActionSpace, 1, init)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create inference network")
	}
	inference, err := classifier.New(net, c.ClassifierWeight, meanings)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create inference network")
	}
	inferenceVM := G.NewTapeMachine(net.Graph(), opts...)

	// Training graph
	trainNet, err := network.NewPredictiveAutoencoder(G.NewGraph(), geo,
		c.ActionSpace, c.BackpropRounds, init)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create training network")
	}
	trainer, err := classifier.New(trainNet, c.ClassifierWeight, meanings)
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create training network")
	}
	if _, err := G.Grad(trainer.Cost(), trainNet.Learnables()...); err != nil {
		return nil, errors.Wrap(err, "new: could not compute gradient")
	}
	trainOpts := append([]G.VMOpt{G.BindDualValues(trainNet.Learnables()...)},
		opts...)
	trainVM := G.NewTapeMachine(trainNet.Graph(), trainOpts...)

	// Both networks start from the same weights
	if err := net.Set(trainNet); err != nil {
		return nil, errors.Wrap(err, "new")
	}

	w, err := window.New(c.BackpropRounds)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	s, err := c.Solver.Clone()
	if err != nil {
		return nil, errors.Wrap(err, "new: could not create solver")
	}

	predictor := &Predictor{
		config:   c,
		geometry: geo,
		meanings: meanings,
		policy:   uniform,

		net:         net,
		inference:   inference,
		inferenceVM: inferenceVM,

		trainNet: trainNet,
		trainer:  trainer,
		trainVM:  trainVM,
		solver:   s,

		state:       network.NewState(geo),
		windowState: network.NewState(geo),
		window:      w,
	}

	if c.LoadSaved {
		if _, err := os.Stat(predictor.modelFilename()); err == nil {
			if err := predictor.Load(); err != nil {
				return nil, errors.Wrap(err, "new")
			}
			log.Infof("restored %v from %v", c.Name, c.SaveDir)
		} else {
			log.Warningf("no saved model at %v, starting from scratch",
				predictor.modelFilename())
		}
	}

	return predictor, nil
}

// ObserveFirst records the first timestep of an episode. The frame of
// the timestep, together with the Noop action taken in it, is the input
// of the first prediction of the episode.
func (p *Predictor) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		log.Warningf("ObserveFirst() should only be called on the first "+
			"timestep (current timestep = %d)", t.Number)
	}

	frame, err := p.frame(t)
	if err != nil {
		return errors.Wrap(err, "observeFirst")
	}
	p.lastFrame = frame
	p.lastAction = environment.Noop
	p.started = true
	return nil
}

// Step observes the next timestep and returns the action to take in
// it. The model predicts the frame of t and the returned action from
// the previous frame and action. The loss of the prediction is added
// to the loss accumulator and, every BackpropRounds steps, the model is
// updated. The reward of t is not used.
func (p *Predictor) Step(t ts.TimeStep) (int, error) {
	if !p.started {
		return 0, ErrNotStarted
	}

	frame, err := p.frame(t)
	if err != nil {
		return 0, errors.Wrap(err, "step")
	}
	action := p.policy.SelectAction(t)

	if p.window.Empty() {
		p.windowState = p.state.Clone()
	}
	if err := p.predict(frame, action); err != nil {
		return 0, errors.Wrap(err, "step")
	}
	err = p.window.Add(window.Transition{
		Frame:        p.lastFrame,
		Action:       p.lastAction,
		Target:       frame,
		TargetAction: action,
		Carry:        p.carry,
	})
	if err != nil {
		return 0, errors.Wrap(err, "step")
	}

	p.carry = true
	p.lastFrame = frame
	p.lastAction = action
	p.steps++

	if p.window.Full() {
		if err := p.update(); err != nil {
			return 0, errors.Wrap(err, "step")
		}
	}

	return action, nil
}

// predict runs the inference network on the last frame and action,
// scoring its prediction against frame and action
func (p *Predictor) predict(frame *tensor.Dense, action int) error {
	var err error
	if err = p.net.SetInput(0, p.lastFrame, p.lastAction); err != nil {
		return errors.Wrap(err, "predict")
	}
	if err = p.net.SetCarry(0, p.carry); err != nil {
		return errors.Wrap(err, "predict")
	}
	if err = p.net.SetState(p.state); err != nil {
		return errors.Wrap(err, "predict")
	}
	if err = p.inference.SetTarget(0, frame, action); err != nil {
		return errors.Wrap(err, "predict")
	}

	defer p.inferenceVM.Reset()
	if err = p.inferenceVM.RunAll(); err != nil {
		return errors.Wrap(err, "predict: could not run inference network")
	}

	p.loss += p.inference.Loss(0)
	p.inference.Report(0)

	image, ok := p.net.PredictedImage(0).(*tensor.Dense)
	if !ok {
		return fmt.Errorf("predict: predicted image is %T",
			p.net.PredictedImage(0))
	}
	if p.predictedImage, err = tensorutils.CHWToFrame(image); err != nil {
		return errors.Wrap(err, "predict")
	}
	mask, err := classifier.ErrorMask(image, frame)
	if err != nil {
		return errors.Wrap(err, "predict")
	}
	if p.errorMask, err = tensorutils.CHWToFrame(mask); err != nil {
		return errors.Wrap(err, "predict")
	}
	logits := p.net.PredictedAction(0).Data().([]float64)
	p.predictedAction = append(p.predictedAction[:0], logits...)

	return errors.Wrap(p.net.NextState(p.state), "predict")
}

// update backpropagates the summed loss of the window through time and
// performs one solver step
func (p *Predictor) update() error {
	transitions, err := p.window.Transitions()
	if err != nil {
		return errors.Wrap(err, "update")
	}

	for i, tr := range transitions {
		if err := p.trainNet.SetInput(i, tr.Frame, tr.Action); err != nil {
			return errors.Wrap(err, "update")
		}
		if err := p.trainNet.SetCarry(i, tr.Carry); err != nil {
			return errors.Wrap(err, "update")
		}
		if err := p.trainer.SetTarget(i, tr.Target, tr.TargetAction); err != nil {
			return errors.Wrap(err, "update")
		}
	}
	if err := p.trainNet.SetState(p.windowState); err != nil {
		return errors.Wrap(err, "update")
	}

	// The training VM adds to bound gradients, so only the gradient of
	// this window may be in them when backpropagating
	if err := zeroGrads(p.trainNet.Learnables()); err != nil {
		return errors.Wrap(err, "update")
	}

	defer p.trainVM.Reset()
	if err := p.trainVM.RunAll(); err != nil {
		return errors.Wrap(err, "update: could not run training network")
	}
	windowLoss := p.trainer.CostValue()
	if err := p.solver.Step(p.trainNet.Model()); err != nil {
		return errors.Wrap(err, "update: could not step solver")
	}
	if err := p.net.Set(p.trainNet); err != nil {
		return errors.Wrap(err, "update")
	}

	p.updates++
	p.lastUpdateLoss = p.loss
	log.Infof("update %d: loss %.6f (window %.6f)", p.updates, p.loss,
		windowLoss)

	if p.config.ResetLossAfterUpdate {
		p.loss = 0
	}
	p.window.Clear()
	return nil
}

// zeroGrads zeroes the gradients of the argument nodes
func zeroGrads(nodes G.Nodes) error {
	for _, n := range nodes {
		grad, err := n.Grad()
		if err != nil {
			return errors.Wrapf(err, "zeroGrads: could not get gradient "+
				"of %v", n.Name())
		}
		if z, ok := grad.(G.Zeroer); ok {
			z.Zero()
		}
	}
	return nil
}

// EndEpisode resets the hidden state at the end of an episode. Steps
// of the current window before the boundary keep their hidden state
// when the window is replayed.
func (p *Predictor) EndEpisode() {
	p.ResetState()
	p.started = false
}

// ResetState resets the hidden state without ending the episode
func (p *Predictor) ResetState() {
	p.state.Reset()
	p.carry = false
}

// frame converts the observation of t to the layout of the network
func (p *Predictor) frame(t ts.TimeStep) (*tensor.Dense, error) {
	if t.Observation == nil {
		return nil, fmt.Errorf("frame: timestep has no observation")
	}
	return tensorutils.FrameToCHW(t.Observation, p.geometry.Height,
		p.geometry.Width, network.FrameChannels)
}

// Loss returns the loss accumulated since the last update
func (p *Predictor) Loss() float64 {
	return p.loss
}

// LastUpdateLoss returns the accumulated loss at the time of the last
// update
func (p *Predictor) LastUpdateLoss() float64 {
	return p.lastUpdateLoss
}

// Updates returns the number of updates performed
func (p *Predictor) Updates() int {
	return p.updates
}

// Steps returns the number of steps taken
func (p *Predictor) Steps() int {
	return p.steps
}

// PredictedImage returns the last predicted frame in the layout of
// the environment, or nil if no prediction has been made
func (p *Predictor) PredictedImage() *mat.VecDense {
	return p.predictedImage
}

// PredictedAction returns the action logits of the last prediction
func (p *Predictor) PredictedAction() []float64 {
	return p.predictedAction
}

// ErrorMask returns the error mask of the last prediction in the
// layout of the environment
func (p *Predictor) ErrorMask() *mat.VecDense {
	return p.errorMask
}

// State returns the current hidden state
func (p *Predictor) State() *network.State {
	return p.state
}

// ActionMeanings returns the names of the agent's actions
func (p *Predictor) ActionMeanings() classifier.ActionMeanings {
	return p.meanings
}

// Network returns the inference network
func (p *Predictor) Network() *network.PredictiveAutoencoder {
	return p.net
}

func (p *Predictor) modelFilename() string {
	return filepath.Join(p.config.SaveDir, p.config.Name+".model")
}

func (p *Predictor) optimizerFilename() string {
	return filepath.Join(p.config.SaveDir, p.config.Name+".optimizer")
}

// Save writes the weights of the model and the state of the optimizer
// to <SaveDir>/<Name>.model and <SaveDir>/<Name>.optimizer, returning
// the time of the save
func (p *Predictor) Save() (time.Time, error) {
	if p.config.SaveDir != "" {
		if err := os.MkdirAll(p.config.SaveDir, 0755); err != nil {
			return time.Time{}, errors.Wrap(err, "save")
		}
	}
	if err := writeGob(p.modelFilename(), p.trainNet); err != nil {
		return time.Time{}, errors.Wrap(err, "save: could not save model")
	}
	if err := writeGob(p.optimizerFilename(), p.solver); err != nil {
		return time.Time{}, errors.Wrap(err, "save: could not save optimizer")
	}
	return time.Now(), nil
}

// Load restores the weights of the model and the state of the
// optimizer saved by Save
func (p *Predictor) Load() error {
	if err := readGob(p.modelFilename(), p.trainNet); err != nil {
		return errors.Wrap(err, "load: could not load model")
	}
	s := &solver.Solver{}
	if err := readGob(p.optimizerFilename(), s); err != nil {
		return errors.Wrap(err, "load: could not load optimizer")
	}
	p.solver = s
	return errors.Wrap(p.net.Set(p.trainNet), "load")
}

func writeGob(filename string, e interface{}) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(e); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readGob(filename string, e interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(e)
}
