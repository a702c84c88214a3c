package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// convLayer implements a 2D convolution over NCHW inputs with no
// padding
type convLayer struct {
	filter *G.Node // (out, in, kernel, kernel)
	bias   *G.Node // (1, out, 1, 1), nil if the layer has no bias
	kernel int
	stride int
	act    *Activation
}

// newConvLayer adds the filter and bias of a convolutional layer to
// the graph g
func newConvLayer(g *G.ExprGraph, in, out, kernel, stride int,
	useBias bool, init G.InitWFn, act *Activation,
	name string) *convLayer {
	filter := G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(out, in, kernel, kernel),
		G.WithName(name+"F"),
		G.WithInit(init),
	)

	var bias *G.Node
	if useBias {
		bias = newChannelBias(g, out, name+"B")
	}

	return &convLayer{
		filter: filter,
		bias:   bias,
		kernel: kernel,
		stride: stride,
		act:    act,
	}
}

// newChannelBias returns a zero-initialised bias with one unit per
// channel
func newChannelBias(g *G.ExprGraph, channels int, name string) *G.Node {
	return G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(1, channels, 1, 1),
		G.WithName(name),
		G.WithInit(G.Zeroes()),
	)
}

// addChannelBias broadcasts a (1, C, 1, 1) bias over the spatial
// dimensions of a (1, C, H, W) feature map
func addChannelBias(x, bias *G.Node) (*G.Node, error) {
	return G.BroadcastAdd(x, bias, nil, []byte{2, 3})
}

// conv2d convolves x with the filter without padding or dilation
func conv2d(x, filter *G.Node, kernel, stride int) (*G.Node, error) {
	if x.Dims() != 4 {
		return nil, fmt.Errorf("conv2d: input must be NCHW \n\thave(%v)",
			x.Shape())
	}
	return G.Conv2d(
		x,
		filter,
		tensor.Shape{kernel, kernel},
		[]int{0, 0},
		[]int{stride, stride},
		[]int{1, 1},
	)
}

// fwd adds the forward pass of the convLayer to the computational graph
func (c *convLayer) fwd(x *G.Node) (*G.Node, error) {
	out, err := conv2d(x, c.filter, c.kernel, c.stride)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not convolve %v: %v",
			c.filter.Name(), err)
	}

	if c.bias != nil {
		if out, err = addChannelBias(out, c.bias); err != nil {
			return nil, err
		}
	}
	return c.act.fwd(out)
}

// Learnables returns the filter and, if present, the bias of the layer
func (c *convLayer) Learnables() G.Nodes {
	if c.bias == nil {
		return G.Nodes{c.filter}
	}
	return G.Nodes{c.filter, c.bias}
}
