package network

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// embeddingConvLayer is a convolution whose filter and bias are looked
// up in an embedding table using the action taken. Each action thus
// owns its own spatial filter bank, and the one-hot action vector
// selects which bank is applied to the frame.
type embeddingConvLayer struct {
	filters *G.Node // (actions, out*in*kernel*kernel)
	biases  *G.Node // (actions, out)

	in, out, kernel, stride int
	act                     *Activation
}

// newEmbeddingConvLayer adds the embedding tables of an action
// conditioned convolution to the graph g. The filter table is drawn
// from a He normal distribution using the fan-in of a single filter
// bank.
func newEmbeddingConvLayer(g *G.ExprGraph, actions, in, out, kernel,
	stride int, gain float64, act *Activation,
	name string) *embeddingConvLayer {
	fanIn := float64(in * kernel * kernel)
	stddev := gain * math.Sqrt(2.0/fanIn)

	filters := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(actions, out*in*kernel*kernel),
		G.WithName(name+"Table"),
		G.WithInit(G.Gaussian(0, stddev)),
	)
	biases := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(actions, out),
		G.WithName(name+"BiasTable"),
		G.WithInit(G.Zeroes()),
	)

	return &embeddingConvLayer{
		filters: filters,
		biases:  biases,
		in:      in,
		out:     out,
		kernel:  kernel,
		stride:  stride,
		act:     act,
	}
}

// fwd convolves x with the filter bank selected by the (1, actions)
// one-hot action node
func (e *embeddingConvLayer) fwd(x, action *G.Node) (*G.Node, error) {
	if x.Shape()[1] != e.in {
		return nil, fmt.Errorf("fwd: invalid input channels to embedding "+
			"convolution \n\twant(%v) \n\thave(%v)", e.in, x.Shape()[1])
	}

	filter, err := G.Mul(action, e.filters)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not select filter: %v", err)
	}
	filter, err = G.Reshape(filter, tensor.Shape{e.out, e.in, e.kernel,
		e.kernel})
	if err != nil {
		return nil, err
	}

	out, err := conv2d(x, filter, e.kernel, e.stride)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not convolve: %v", err)
	}

	bias, err := G.Mul(action, e.biases)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not select bias: %v", err)
	}
	bias, err = G.Reshape(bias, tensor.Shape{1, e.out, 1, 1})
	if err != nil {
		return nil, err
	}

	if out, err = addChannelBias(out, bias); err != nil {
		return nil, err
	}
	return e.act.fwd(out)
}

// Learnables returns the filter and bias embedding tables
func (e *embeddingConvLayer) Learnables() G.Nodes {
	return G.Nodes{e.filters, e.biases}
}
