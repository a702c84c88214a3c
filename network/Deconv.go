package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// deconvLayer implements a transposed 2D convolution with a fixed
// output size.
//
// The input is first spread onto a zero grid: input pixel (i, j) is
// placed at (k-1 + i*stride, k-1 + j*stride) of a grid of size
// (outH+k-1, outW+k-1). A valid stride 1 convolution over this grid
// then yields exactly (outH, outW) values. Spreading is linear and
// separable, so it is computed as two products with constant 0/1
// matrices. The convolution kernel is learned, so the kernel flip of a
// true transposed convolution is absorbed into the weights.
type deconvLayer struct {
	conv *convLayer

	spreadH *G.Node // (inH, outH+k-1)
	spreadW *G.Node // (inW, outW+k-1)

	inH, inW   int
	outH, outW int
	kernel     int
}

// newDeconvLayer adds a transposed convolution mapping (in, inH, inW)
// feature maps to (out, outH, outW) feature maps to the graph g
func newDeconvLayer(g *G.ExprGraph, in, out, kernel, stride, inH, inW,
	outH, outW int, init G.InitWFn, act *Activation,
	name string) (*deconvLayer, error) {
	if lo := (inH-1)*stride + kernel; outH < lo || outH >= lo+stride {
		return nil, fmt.Errorf("newDeconvLayer: output height %v "+
			"unreachable from input height %v \n\twant([%v, %v))", outH,
			inH, lo, lo+stride)
	}
	if lo := (inW-1)*stride + kernel; outW < lo || outW >= lo+stride {
		return nil, fmt.Errorf("newDeconvLayer: output width %v "+
			"unreachable from input width %v \n\twant([%v, %v))", outW,
			inW, lo, lo+stride)
	}

	spreadH := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(inH, outH+kernel-1),
		G.WithName(name+"SpreadH"),
		G.WithValue(spreadMatrix(inH, outH+kernel-1, kernel, stride)),
	)
	spreadW := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(inW, outW+kernel-1),
		G.WithName(name+"SpreadW"),
		G.WithValue(spreadMatrix(inW, outW+kernel-1, kernel, stride)),
	)

	return &deconvLayer{
		conv:    newConvLayer(g, in, out, kernel, 1, true, init, act, name),
		spreadH: spreadH,
		spreadW: spreadW,
		inH:     inH,
		inW:     inW,
		outH:    outH,
		outW:    outW,
		kernel:  kernel,
	}, nil
}

// spreadMatrix returns the (in, padded) matrix M such that for a row
// vector x, (x M)[k-1 + i*stride] = x[i] and all other entries are 0
func spreadMatrix(in, padded, kernel, stride int) *tensor.Dense {
	backing := make([]float64, in*padded)
	for i := 0; i < in; i++ {
		backing[i*padded+(kernel-1)+i*stride] = 1.0
	}
	return tensor.New(
		tensor.WithShape(in, padded),
		tensor.WithBacking(backing),
	)
}

// spread places the pixels of a (1, C, inH, inW) feature map onto the
// zero grid of the transposed convolution
func (d *deconvLayer) spread(x *G.Node) (*G.Node, error) {
	shape := x.Shape()
	if len(shape) != 4 || shape[2] != d.inH || shape[3] != d.inW {
		return nil, fmt.Errorf("spread: invalid input shape \n\twant("+
			"(1, C, %v, %v)) \n\thave(%v)", d.inH, d.inW, shape)
	}
	c := shape[1]
	padH := d.outH + d.kernel - 1
	padW := d.outW + d.kernel - 1

	// Spread along the width
	x = G.Must(G.Reshape(x, tensor.Shape{c * d.inH, d.inW}))
	x = G.Must(G.Mul(x, d.spreadW))

	// Move the height to the last axis and spread along it
	x = G.Must(G.Reshape(x, tensor.Shape{c, d.inH, padW}))
	x = G.Must(G.Transpose(x, 0, 2, 1))
	x = G.Must(G.Reshape(x, tensor.Shape{c * padW, d.inH}))
	x = G.Must(G.Mul(x, d.spreadH))

	// Restore NCHW
	x = G.Must(G.Reshape(x, tensor.Shape{c, padW, padH}))
	x = G.Must(G.Transpose(x, 0, 2, 1))
	return G.Reshape(x, tensor.Shape{1, c, padH, padW})
}

// fwd adds the forward pass of the deconvLayer to the computational
// graph
func (d *deconvLayer) fwd(x *G.Node) (*G.Node, error) {
	grid, err := d.spread(x)
	if err != nil {
		return nil, err
	}
	return d.conv.fwd(grid)
}

// Learnables returns the kernel and bias of the layer
func (d *deconvLayer) Learnables() G.Nodes {
	return d.conv.Learnables()
}
