// Package network implements the predictive recurrent autoencoder: an
// action conditioned convolutional encoder, a convolutional GRU
// bottleneck, and two decoder heads predicting the next frame and the
// next action.
package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// PredictiveAutoencoder is the predictive model unrolled over a fixed
// number of steps on a single computational graph. All steps share the
// same weights. Step t receives a frame, the one-hot action taken in
// that frame, and a carry flag; the hidden state produced by step t is
// carried into step t+1 (scaled by the carry flag of step t+1) and the
// hidden state entering step 0 is an input to the graph.
//
// A PredictiveAutoencoder with a single step is used to predict online,
// while one unrolled over a whole window of steps is used to
// backpropagate through time.
type PredictiveAutoencoder struct {
	g           *G.ExprGraph
	geometry    Geometry
	actionSpace int
	steps       int

	conv1     *convLayer
	embedConv *embeddingConvLayer
	conv2     *convLayer
	conv3     *convLayer
	gru       *convGRULayer
	deconv1   *deconvLayer
	deconv2   *deconvLayer
	linear1   *fcLayer
	linear2   *fcLayer

	// Inputs, one per step
	frames  []*G.Node // (1, 3, H, W)
	actions []*G.Node // (1, actionSpace) one-hot
	carries []*G.Node // scalar, 0 resets the hidden state
	hidden  *G.Node   // hidden state entering step 0

	// Outputs, one per step
	encoded    []*G.Node // (1, 19, h1, w1)
	images     []*G.Node // (1, 3, H, W)
	logits     []*G.Node // (1, actionSpace)
	nextHidden *G.Node

	imageVals  []G.Value
	logitVals  []G.Value
	hiddenVal  G.Value
	learnables G.Nodes
	model      []G.ValueGrad
}

// NewPredictiveAutoencoder adds a predictive autoencoder unrolled over
// steps steps to the graph g. The network takes frames of the size
// described by geo and actions in [0, actionSpace). Weights are
// initialised using init, and biases are initialised to zero.
func NewPredictiveAutoencoder(g *G.ExprGraph, geo Geometry, actionSpace,
	steps int, init G.InitWFn) (*PredictiveAutoencoder, error) {
	if steps < 1 {
		return nil, fmt.Errorf("newPredictiveAutoencoder: must unroll at "+
			"least one step \n\thave(%v)", steps)
	}
	if actionSpace < 1 {
		return nil, fmt.Errorf("newPredictiveAutoencoder: action space "+
			"must be positive \n\thave(%v)", actionSpace)
	}
	if _, err := NewGeometry(geo.Height, geo.Width); err != nil {
		return nil, fmt.Errorf("newPredictiveAutoencoder: %v", err)
	}

	h1, w1 := geo.Encoded()
	h2, w2 := geo.Bottleneck()

	gru, err := newConvGRULayer(g, Conv3Channels, HiddenChannels, 1, init,
		"gru")
	if err != nil {
		return nil, fmt.Errorf("newPredictiveAutoencoder: %v", err)
	}
	deconv1, err := newDeconvLayer(g, HiddenChannels, Deconv1Out,
		Conv2Kernel, Conv2Stride, h2, w2, h1, w1, init, ReLU(), "deconv1")
	if err != nil {
		return nil, fmt.Errorf("newPredictiveAutoencoder: %v", err)
	}
	deconv2, err := newDeconvLayer(g, Deconv1Out, FrameChannels,
		Conv1Kernel, Conv1Stride, h1, w1, geo.Height, geo.Width, init,
		Identity(), "deconv2")
	if err != nil {
		return nil, fmt.Errorf("newPredictiveAutoencoder: %v", err)
	}

	net := &PredictiveAutoencoder{
		g:           g,
		geometry:    geo,
		actionSpace: actionSpace,
		steps:       steps,

		conv1: newConvLayer(g, FrameChannels, Conv1Channels, Conv1Kernel,
			Conv1Stride, true, init, ReLU(), "conv1"),
		embedConv: newEmbeddingConvLayer(g, actionSpace, FrameChannels,
			EmbedChannels, Conv1Kernel, Conv1Stride, 1.0, ReLU(), "embed"),
		conv2: newConvLayer(g, Conv1Channels+EmbedChannels, Conv2Channels,
			Conv2Kernel, Conv2Stride, true, init, ReLU(), "conv2"),
		conv3: newConvLayer(g, Conv2Channels, Conv3Channels, 1, 1, true,
			init, ReLU(), "conv3"),
		gru:     gru,
		deconv1: deconv1,
		deconv2: deconv2,
		linear1: newFCLayer(g, HiddenChannels*h2*w2, ActionHidden, init,
			ReLU(), "linear1"),
		linear2: newFCLayer(g, ActionHidden, actionSpace, init, Identity(),
			"linear2"),
	}

	// Read destinations must not move once the graph is built
	net.imageVals = make([]G.Value, steps)
	net.logitVals = make([]G.Value, steps)

	net.hidden = G.NewTensor(
		g,
		tensor.Float64,
		4,
		G.WithShape(geo.HiddenShape()...),
		G.WithName("hidden"),
		G.WithInit(G.Zeroes()),
	)

	h := net.hidden
	for t := 0; t < steps; t++ {
		if h, err = net.addStep(t, h); err != nil {
			return nil, fmt.Errorf("newPredictiveAutoencoder: step %v: %v",
				t, err)
		}
	}
	net.nextHidden = h
	G.Read(net.nextHidden, &net.hiddenVal)

	return net, nil
}

// addStep adds the inputs and forward pass of step t to the graph,
// given the hidden state produced by the previous step
func (p *PredictiveAutoencoder) addStep(t int, h *G.Node) (*G.Node, error) {
	frame := G.NewTensor(
		p.g,
		tensor.Float64,
		4,
		G.WithShape(p.geometry.ImageShape()...),
		G.WithName(fmt.Sprintf("frame%d", t)),
		G.WithInit(G.Zeroes()),
	)
	action := G.NewMatrix(
		p.g,
		tensor.Float64,
		G.WithShape(1, p.actionSpace),
		G.WithName(fmt.Sprintf("action%d", t)),
		G.WithInit(G.Zeroes()),
	)
	carry := G.NewScalar(
		p.g,
		tensor.Float64,
		G.WithName(fmt.Sprintf("carry%d", t)),
		G.WithValue(1.0),
	)
	p.frames = append(p.frames, frame)
	p.actions = append(p.actions, action)
	p.carries = append(p.carries, carry)

	// Encoder: pixel features glued to action conditioned features
	pixels, err := p.conv1.fwd(frame)
	if err != nil {
		return nil, err
	}
	conditioned, err := p.embedConv.fwd(frame, action)
	if err != nil {
		return nil, err
	}
	x, err := G.Concat(1, pixels, conditioned)
	if err != nil {
		return nil, fmt.Errorf("could not concatenate encoder features: %v",
			err)
	}

	p.encoded = append(p.encoded, x)

	// Bottleneck
	if x, err = p.conv2.fwd(x); err != nil {
		return nil, err
	}
	if x, err = p.conv3.fwd(x); err != nil {
		return nil, err
	}
	h, err = G.Mul(h, carry)
	if err != nil {
		return nil, err
	}
	if h, err = p.gru.fwd(x, h); err != nil {
		return nil, err
	}
	features, err := G.Rectify(h)
	if err != nil {
		return nil, err
	}

	// Image head
	img, err := p.deconv1.fwd(features)
	if err != nil {
		return nil, err
	}
	if img, err = p.deconv2.fwd(img); err != nil {
		return nil, err
	}

	// Action head
	flat, err := G.Reshape(features, tensor.Shape{1, p.geometry.Flattened()})
	if err != nil {
		return nil, err
	}
	logits, err := p.linear1.fwd(flat)
	if err != nil {
		return nil, err
	}
	if logits, err = p.linear2.fwd(logits); err != nil {
		return nil, err
	}

	p.images = append(p.images, img)
	p.logits = append(p.logits, logits)
	G.Read(img, &p.imageVals[t])
	G.Read(logits, &p.logitVals[t])

	return h, nil
}

// Graph returns the computational graph of the network
func (p *PredictiveAutoencoder) Graph() *G.ExprGraph {
	return p.g
}

// Geometry returns the feature map sizes of the network
func (p *PredictiveAutoencoder) Geometry() Geometry {
	return p.geometry
}

// ActionSpace returns the number of actions the network distinguishes
func (p *PredictiveAutoencoder) ActionSpace() int {
	return p.actionSpace
}

// Steps returns the number of steps the network is unrolled over
func (p *PredictiveAutoencoder) Steps() int {
	return p.steps
}

// OneHot returns the (1, actionSpace) one-hot encoding of action
func OneHot(action, actionSpace int) (*tensor.Dense, error) {
	if action < 0 || action >= actionSpace {
		return nil, fmt.Errorf("oneHot: action out of range \n\twant([0, "+
			"%v)) \n\thave(%v)", actionSpace, action)
	}
	backing := make([]float64, actionSpace)
	backing[action] = 1.0
	return tensor.New(
		tensor.WithShape(1, actionSpace),
		tensor.WithBacking(backing),
	), nil
}

// SetInput sets the frame and action of step t. The frame must be in
// NCHW layout with the shape of the network's Geometry.
func (p *PredictiveAutoencoder) SetInput(t int, frame *tensor.Dense,
	action int) error {
	if t < 0 || t >= p.steps {
		return fmt.Errorf("setInput: step out of range \n\twant([0, %v)) "+
			"\n\thave(%v)", p.steps, t)
	}
	if !frame.Shape().Eq(p.geometry.ImageShape()) {
		return fmt.Errorf("setInput: invalid frame shape \n\twant(%v) "+
			"\n\thave(%v)", p.geometry.ImageShape(), frame.Shape())
	}

	oneHot, err := OneHot(action, p.actionSpace)
	if err != nil {
		return fmt.Errorf("setInput: %v", err)
	}
	if err := G.Let(p.frames[t], frame); err != nil {
		return fmt.Errorf("setInput: could not set frame: %v", err)
	}
	return G.Let(p.actions[t], oneHot)
}

// SetCarry sets whether the hidden state is carried into step t. If
// carry is false, step t starts from the zero hidden state.
func (p *PredictiveAutoencoder) SetCarry(t int, carry bool) error {
	if t < 0 || t >= p.steps {
		return fmt.Errorf("setCarry: step out of range \n\twant([0, %v)) "+
			"\n\thave(%v)", p.steps, t)
	}
	value := 0.0
	if carry {
		value = 1.0
	}
	return G.Let(p.carries[t], value)
}

// SetState sets the hidden state entering step 0
func (p *PredictiveAutoencoder) SetState(s *State) error {
	if !s.Value().Shape().Eq(p.hidden.Shape()) {
		return fmt.Errorf("setState: invalid hidden state shape "+
			"\n\twant(%v) \n\thave(%v)", p.hidden.Shape(), s.Value().Shape())
	}
	return G.Let(p.hidden, s.Value().Clone().(*tensor.Dense))
}

// EncodedNode returns the node holding the fused encoder features of
// step t
func (p *PredictiveAutoencoder) EncodedNode(t int) *G.Node {
	return p.encoded[t]
}

// PredictedImageNode returns the node predicting the frame following
// step t
func (p *PredictiveAutoencoder) PredictedImageNode(t int) *G.Node {
	return p.images[t]
}

// PredictedActionNode returns the node predicting the logits of the
// action following step t
func (p *PredictiveAutoencoder) PredictedActionNode(t int) *G.Node {
	return p.logits[t]
}

// PredictedImage returns the predicted frame of step t, in NCHW
// layout, computed on the last run of the graph
func (p *PredictiveAutoencoder) PredictedImage(t int) G.Value {
	return p.imageVals[t]
}

// PredictedAction returns the predicted action logits of step t
// computed on the last run of the graph
func (p *PredictiveAutoencoder) PredictedAction(t int) G.Value {
	return p.logitVals[t]
}

// NextState stores the hidden state produced by the last step of the
// last run of the graph in s
func (p *PredictiveAutoencoder) NextState(s *State) error {
	if p.hiddenVal == nil {
		return fmt.Errorf("nextState: graph has not been run")
	}
	return s.set(p.hiddenVal)
}

// Learnables returns the learnable nodes of the network. The order is
// fixed and shared by all networks with the same Geometry and action
// space.
func (p *PredictiveAutoencoder) Learnables() G.Nodes {
	// Lazy instantiation
	if p.learnables == nil {
		layers := []Layer{p.conv1, p.embedConv, p.conv2, p.conv3, p.gru,
			p.deconv1, p.deconv2, p.linear1, p.linear2}
		for _, l := range layers {
			p.learnables = append(p.learnables, l.Learnables()...)
		}
	}
	return p.learnables
}

// Model returns the learnables nodes with their gradients.
func (p *PredictiveAutoencoder) Model() []G.ValueGrad {
	// Lazy instantiation
	if p.model == nil {
		for _, node := range p.Learnables() {
			p.model = append(p.model, node)
		}
	}
	return p.model
}

// compatible returns an error if two networks cannot share weights
func (p *PredictiveAutoencoder) compatible(other *PredictiveAutoencoder) error {
	if p.geometry != other.geometry {
		return fmt.Errorf("incompatible geometries \n\twant(%v) \n\thave(%v)",
			p.geometry, other.geometry)
	}
	if p.actionSpace != other.actionSpace {
		return fmt.Errorf("incompatible action spaces \n\twant(%v) "+
			"\n\thave(%v)", p.actionSpace, other.actionSpace)
	}
	return nil
}

// Set sets the weights of a PredictiveAutoencoder to be equal to the
// weights of another PredictiveAutoencoder
func (dest *PredictiveAutoencoder) Set(source *PredictiveAutoencoder) error {
	if err := dest.compatible(source); err != nil {
		return fmt.Errorf("set: %v", err)
	}

	sourceNodes := source.Learnables()
	for i, destLearnable := range dest.Learnables() {
		sourceValue := sourceNodes[i].Value().(*tensor.Dense)
		err := G.Let(destLearnable, sourceValue.Clone().(*tensor.Dense))
		if err != nil {
			return fmt.Errorf("set: could not set %v: %v",
				destLearnable.Name(), err)
		}
	}
	return nil
}

// header describes the network a set of gobbed weights belongs to
type header struct {
	Height, Width int
	ActionSpace   int
	Learnables    int
}

// GobEncode implements the gob.GobEncoder interface. Only the weights
// are encoded, since the architecture is fixed.
func (p *PredictiveAutoencoder) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	h := header{
		Height:      p.geometry.Height,
		Width:       p.geometry.Width,
		ActionSpace: p.actionSpace,
		Learnables:  len(p.Learnables()),
	}
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode header: %v", err)
	}

	for _, node := range p.Learnables() {
		weights, ok := node.Value().(*tensor.Dense)
		if !ok {
			return nil, fmt.Errorf("gobencode: %v has no dense value",
				node.Name())
		}
		if err := enc.Encode(weights); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode %v: %v",
				node.Name(), err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. GobDecode must be
// called on a network that has already been constructed with the same
// Geometry and action space as the encoded network; the decoded
// weights replace the current weights.
func (p *PredictiveAutoencoder) GobDecode(in []byte) error {
	if p.g == nil {
		return fmt.Errorf("gobdecode: network must be constructed before " +
			"decoding weights")
	}
	dec := gob.NewDecoder(bytes.NewReader(in))

	var h header
	if err := dec.Decode(&h); err != nil {
		return fmt.Errorf("gobdecode: could not decode header: %v", err)
	}
	if h.Height != p.geometry.Height || h.Width != p.geometry.Width ||
		h.ActionSpace != p.actionSpace ||
		h.Learnables != len(p.Learnables()) {
		return fmt.Errorf("gobdecode: saved network does not match "+
			"\n\twant(%vx%v, %v actions, %v learnables) "+
			"\n\thave(%vx%v, %v actions, %v learnables)",
			p.geometry.Height, p.geometry.Width, p.actionSpace,
			len(p.Learnables()), h.Height, h.Width, h.ActionSpace,
			h.Learnables)
	}

	for _, node := range p.Learnables() {
		weights := new(tensor.Dense)
		if err := dec.Decode(weights); err != nil {
			return fmt.Errorf("gobdecode: could not decode %v: %v",
				node.Name(), err)
		}
		if !weights.Shape().Eq(node.Shape()) {
			return fmt.Errorf("gobdecode: invalid shape for %v \n\twant(%v)"+
				" \n\thave(%v)", node.Name(), node.Shape(), weights.Shape())
		}
		if err := G.Let(node, weights); err != nil {
			return fmt.Errorf("gobdecode: could not set %v: %v",
				node.Name(), err)
		}
	}
	return nil
}
