package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// convGRULayer implements a gated recurrent unit where every affine
// transform is replaced by a stride 1 convolution:
//
//	z  = σ(Wz * x + Uz * h + bz)
//	r  = σ(Wr * x + Ur * h + br)
//	n  = tanh(Wn * x + Un * (r ⊙ h) + bn)
//	h' = h + z ⊙ (n - h)
//
// The layer does not hold its state. The previous hidden state is an
// input to fwd and the new hidden state is its output.
type convGRULayer struct {
	wz, wr, wn *convLayer // Input convolutions, with bias
	uz, ur, un *convLayer // Hidden state convolutions, without bias
	out        int
}

// newConvGRULayer adds the weights of a convolutional GRU with in
// input channels and out hidden channels to the graph g
func newConvGRULayer(g *G.ExprGraph, in, out, kernel int, init G.InitWFn,
	name string) (*convGRULayer, error) {
	// Convolutions are unpadded, so only pointwise kernels keep the
	// hidden state the same size as the input
	if kernel != 1 {
		return nil, fmt.Errorf("newConvGRULayer: only pointwise "+
			"recurrent convolutions are supported \n\thave(%v)", kernel)
	}

	return &convGRULayer{
		wz:  newConvLayer(g, in, out, kernel, 1, true, init, nil, name+"Wz"),
		wr:  newConvLayer(g, in, out, kernel, 1, true, init, nil, name+"Wr"),
		wn:  newConvLayer(g, in, out, kernel, 1, true, init, nil, name+"Wn"),
		uz:  newConvLayer(g, out, out, kernel, 1, false, init, nil, name+"Uz"),
		ur:  newConvLayer(g, out, out, kernel, 1, false, init, nil, name+"Ur"),
		un:  newConvLayer(g, out, out, kernel, 1, false, init, nil, name+"Un"),
		out: out,
	}, nil
}

// gate computes act(w * x + u * h)
func gate(w, u *convLayer, x, h *G.Node, act *Activation) (*G.Node, error) {
	wx, err := w.fwd(x)
	if err != nil {
		return nil, err
	}
	uh, err := u.fwd(h)
	if err != nil {
		return nil, err
	}
	sum, err := G.Add(wx, uh)
	if err != nil {
		return nil, err
	}
	return act.fwd(sum)
}

// fwd adds one recurrent step to the computational graph, returning
// the new hidden state
func (c *convGRULayer) fwd(x, h *G.Node) (*G.Node, error) {
	if h.Shape()[1] != c.out {
		return nil, fmt.Errorf("fwd: invalid hidden state channels "+
			"\n\twant(%v) \n\thave(%v)", c.out, h.Shape()[1])
	}

	z, err := gate(c.wz, c.uz, x, h, Sigmoid())
	if err != nil {
		return nil, fmt.Errorf("fwd: update gate: %v", err)
	}
	r, err := gate(c.wr, c.ur, x, h, Sigmoid())
	if err != nil {
		return nil, fmt.Errorf("fwd: reset gate: %v", err)
	}

	rh := G.Must(G.HadamardProd(r, h))
	n, err := gate(c.wn, c.un, x, rh, TanH())
	if err != nil {
		return nil, fmt.Errorf("fwd: candidate state: %v", err)
	}

	diff := G.Must(G.Sub(n, h))
	return G.Add(h, G.Must(G.HadamardProd(z, diff)))
}

// Learnables returns all weights of the recurrent unit
func (c *convGRULayer) Learnables() G.Nodes {
	var learnables G.Nodes
	for _, l := range []*convLayer{c.wz, c.uz, c.wr, c.ur, c.wn, c.un} {
		learnables = append(learnables, l.Learnables()...)
	}
	return learnables
}
