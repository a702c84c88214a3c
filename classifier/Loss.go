// Package classifier implements the training objective of the
// predictive autoencoder: a weighted sum of an image reconstruction
// loss on the predicted frame and a classification loss on the
// predicted action, together with diagnostics derived from both.
package classifier

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ImageLoss adds the mean squared error between a predicted and a
// target frame to the graph
func ImageLoss(pred, target *G.Node) (*G.Node, error) {
	if !pred.Shape().Eq(target.Shape()) {
		return nil, fmt.Errorf("imageLoss: shapes differ \n\tpredicted(%v) "+
			"\n\ttarget(%v)", pred.Shape(), target.Shape())
	}
	diff, err := G.Sub(pred, target)
	if err != nil {
		return nil, fmt.Errorf("imageLoss: %v", err)
	}
	sq, err := G.Square(diff)
	if err != nil {
		return nil, fmt.Errorf("imageLoss: %v", err)
	}
	return G.Mean(sq)
}

// ActionLoss adds the softmax cross entropy between (1, actions)
// logits and a (1, actions) one-hot target to the graph. The loss is
// computed as logsumexp(logits) - logits[target], with logits shifted
// by their maximum so that the exponential cannot overflow.
func ActionLoss(logits, target *G.Node) (*G.Node, error) {
	if !logits.Shape().Eq(target.Shape()) {
		return nil, fmt.Errorf("actionLoss: shapes differ \n\tlogits(%v) "+
			"\n\ttarget(%v)", logits.Shape(), target.Shape())
	}

	largest, err := G.Max(logits, 1)
	if err != nil {
		return nil, fmt.Errorf("actionLoss: %v", err)
	}
	shifted, err := G.BroadcastSub(logits, largest, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("actionLoss: %v", err)
	}

	exp, err := G.Exp(shifted)
	if err != nil {
		return nil, fmt.Errorf("actionLoss: %v", err)
	}
	logSumExp := G.Must(G.Log(G.Must(G.Sum(exp))))

	picked := G.Must(G.Sum(G.Must(G.HadamardProd(shifted, target))))
	return G.Sub(logSumExp, picked)
}

// Loss adds weight * imageLoss + (1 - weight) * actionLoss to the
// graph holding both losses
func Loss(imageLoss, actionLoss *G.Node, weight float64) (*G.Node, error) {
	if weight < 0 || weight > 1 {
		return nil, fmt.Errorf("loss: weight must be in [0, 1] \n\thave(%v)",
			weight)
	}
	if imageLoss.Graph() != actionLoss.Graph() {
		return nil, fmt.Errorf("loss: image and action losses must be " +
			"in the same graph")
	}

	img, err := G.Mul(imageLoss, G.NewConstant(weight))
	if err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}
	act, err := G.Mul(actionLoss, G.NewConstant(1-weight))
	if err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}
	return G.Add(img, act)
}

// newTarget adds an input node for a target of the given shape to g
func newTarget(g *G.ExprGraph, shape tensor.Shape, name string) *G.Node {
	return G.NewTensor(
		g,
		tensor.Float64,
		len(shape),
		G.WithShape(shape...),
		G.WithName(name),
		G.WithInit(G.Zeroes()),
	)
}
