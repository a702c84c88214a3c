package classifier

import (
	"fmt"
	"math"

	"github.com/aunum/log"
	"github.com/samuelfneumann/predictivenet/network"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"gonum.org/v1/gonum/floats"
)

// ActionMeanings holds the human-readable name of each action, indexed
// by action
type ActionMeanings []string

// Meaning returns the name of action. Actions beyond the table are
// named NOOP(action).
func (a ActionMeanings) Meaning(action int) string {
	if action >= 0 && action < len(a) {
		return a[action]
	}
	return fmt.Sprintf("NOOP(%d)", action)
}

// Classifier adds the training objective to the graph of a
// PredictiveAutoencoder. For every step t of the network, the
// prediction made at step t is compared against the target frame and
// target action of step t. The cost of the Classifier is the sum of the
// losses of all steps.
type Classifier struct {
	net      *network.PredictiveAutoencoder
	weight   float64
	meanings ActionMeanings

	targetFrames  []*G.Node
	targetActions []*G.Node
	targetLabels  []int

	imageLosses  []*G.Node
	actionLosses []*G.Node
	losses       []*G.Node
	cost         *G.Node

	imageLossVals  []G.Value
	actionLossVals []G.Value
	lossVals       []G.Value
	costVal        G.Value
}

// New adds the training objective of net to its graph. The loss of each
// step is weight * image loss + (1 - weight) * action loss.
func New(net *network.PredictiveAutoencoder, weight float64,
	meanings ActionMeanings) (*Classifier, error) {
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("new: weight must be in [0, 1] \n\thave(%v)",
			weight)
	}

	steps := net.Steps()
	c := &Classifier{
		net:            net,
		weight:         weight,
		meanings:       meanings,
		targetLabels:   make([]int, steps),
		imageLossVals:  make([]G.Value, steps),
		actionLossVals: make([]G.Value, steps),
		lossVals:       make([]G.Value, steps),
	}

	g := net.Graph()
	geo := net.Geometry()
	for t := 0; t < steps; t++ {
		frame := newTarget(g, geo.ImageShape(), fmt.Sprintf("targetFrame%d", t))
		action := newTarget(g, tensor.Shape{1, net.ActionSpace()},
			fmt.Sprintf("targetAction%d", t))

		imageLoss, err := ImageLoss(net.PredictedImageNode(t), frame)
		if err != nil {
			return nil, fmt.Errorf("new: step %v: %v", t, err)
		}
		actionLoss, err := ActionLoss(net.PredictedActionNode(t), action)
		if err != nil {
			return nil, fmt.Errorf("new: step %v: %v", t, err)
		}
		loss, err := Loss(imageLoss, actionLoss, weight)
		if err != nil {
			return nil, fmt.Errorf("new: step %v: %v", t, err)
		}

		G.Read(imageLoss, &c.imageLossVals[t])
		G.Read(actionLoss, &c.actionLossVals[t])
		G.Read(loss, &c.lossVals[t])

		c.targetFrames = append(c.targetFrames, frame)
		c.targetActions = append(c.targetActions, action)
		c.imageLosses = append(c.imageLosses, imageLoss)
		c.actionLosses = append(c.actionLosses, actionLoss)
		c.losses = append(c.losses, loss)
	}

	if steps == 1 {
		c.cost = c.losses[0]
	} else {
		c.cost = G.Must(G.ReduceAdd(c.losses))
	}
	G.Read(c.cost, &c.costVal)

	return c, nil
}

// Network returns the network the Classifier trains
func (c *Classifier) Network() *network.PredictiveAutoencoder {
	return c.net
}

// Weight returns the weight of the image loss
func (c *Classifier) Weight() float64 {
	return c.weight
}

// SetTarget sets the frame and action that the prediction of step t is
// compared against
func (c *Classifier) SetTarget(t int, frame *tensor.Dense, action int) error {
	if t < 0 || t >= len(c.targetFrames) {
		return fmt.Errorf("setTarget: step out of range \n\twant([0, %v)) "+
			"\n\thave(%v)", len(c.targetFrames), t)
	}
	geo := c.net.Geometry()
	if !frame.Shape().Eq(geo.ImageShape()) {
		return fmt.Errorf("setTarget: invalid frame shape \n\twant(%v) "+
			"\n\thave(%v)", geo.ImageShape(), frame.Shape())
	}
	oneHot, err := network.OneHot(action, c.net.ActionSpace())
	if err != nil {
		return fmt.Errorf("setTarget: %v", err)
	}

	if err := G.Let(c.targetFrames[t], frame); err != nil {
		return fmt.Errorf("setTarget: could not set frame: %v", err)
	}
	if err := G.Let(c.targetActions[t], oneHot); err != nil {
		return fmt.Errorf("setTarget: could not set action: %v", err)
	}
	c.targetLabels[t] = action
	return nil
}

// Cost returns the node holding the summed loss of all steps
func (c *Classifier) Cost() *G.Node {
	return c.cost
}

// CostValue returns the summed loss of all steps computed on the last
// run of the graph
func (c *Classifier) CostValue() float64 {
	return scalar(c.costVal)
}

// Loss returns the loss of step t computed on the last run of the graph
func (c *Classifier) Loss(t int) float64 {
	return scalar(c.lossVals[t])
}

// ImageLoss returns the image loss of step t computed on the last run
// of the graph
func (c *Classifier) ImageLoss(t int) float64 {
	return scalar(c.imageLossVals[t])
}

// ActionLoss returns the action loss of step t computed on the last
// run of the graph
func (c *Classifier) ActionLoss(t int) float64 {
	return scalar(c.actionLossVals[t])
}

// PredictedLabel returns the most likely action predicted at step t on
// the last run of the graph
func (c *Classifier) PredictedLabel(t int) int {
	logits := c.net.PredictedAction(t).Data().([]float64)
	return floats.MaxIdx(logits)
}

// Report logs the losses of step t. If the predicted action differs
// from the target action, both are logged by name.
func (c *Classifier) Report(t int) {
	predicted, actual := c.PredictedLabel(t), c.targetLabels[t]
	if predicted != actual {
		log.Debugf("Predicted action: %v it was actually %v",
			c.meanings.Meaning(predicted), c.meanings.Meaning(actual))
	}
	log.Debugf("Image loss: %.6f, action loss: %.6f", c.ImageLoss(t),
		c.ActionLoss(t))
}

// scalar returns the float64 held by a scalar gorgonia Value, or NaN
// if the graph has not been run
func scalar(v G.Value) float64 {
	switch v := v.(type) {
	case *G.F64:
		return float64(*v)
	case *tensor.Dense:
		switch data := v.Data().(type) {
		case float64:
			return data
		case []float64:
			return data[0]
		}
	}
	return math.NaN()
}
