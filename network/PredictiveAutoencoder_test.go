package network

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// smallGeometry keeps executed graphs cheap: 28x24 frames give 6x5
// encoder features and a 2x1 bottleneck
var smallGeometry = Geometry{Height: 28, Width: 24}

func newTestNet(t *testing.T, geo Geometry, actions, steps int) *PredictiveAutoencoder {
	t.Helper()
	net, err := NewPredictiveAutoencoder(G.NewGraph(), geo, actions, steps,
		G.HeN(1.0))
	if err != nil {
		t.Fatalf("could not construct network: %v", err)
	}
	return net
}

// rampFrame returns an NCHW frame with deterministic, non-constant
// pixel values
func rampFrame(geo Geometry, offset float64) *tensor.Dense {
	backing := make([]float64, geo.FrameSize())
	for i := range backing {
		backing[i] = math.Mod(float64(i)*0.013+offset, 1.0)
	}
	return tensor.New(
		tensor.WithShape(geo.ImageShape()...),
		tensor.WithBacking(backing),
	)
}

func run(t *testing.T, net *PredictiveAutoencoder) {
	t.Helper()
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}
}

func floats(t *testing.T, v G.Value) []float64 {
	t.Helper()
	dense, ok := v.(*tensor.Dense)
	if !ok {
		t.Fatalf("value is %T, not *tensor.Dense", v)
	}
	return append([]float64(nil), dense.Data().([]float64)...)
}

func TestGeometry(t *testing.T) {
	tests := []struct {
		h, w           int
		encH, encW     int
		bneckH, bneckW int
	}{
		{AtariHeight, AtariWidth, 51, 39, 24, 18},
		{28, 24, 6, 5, 2, 1},
		{20, 20, 4, 4, 1, 1},
		{84, 84, 20, 20, 9, 9},
	}

	for _, test := range tests {
		geo, err := NewGeometry(test.h, test.w)
		if err != nil {
			t.Errorf("newGeometry(%v, %v): %v", test.h, test.w, err)
			continue
		}
		if h, w := geo.Encoded(); h != test.encH || w != test.encW {
			t.Errorf("encoded(%v, %v): want(%v, %v) have(%v, %v)", test.h,
				test.w, test.encH, test.encW, h, w)
		}
		if h, w := geo.Bottleneck(); h != test.bneckH || w != test.bneckW {
			t.Errorf("bottleneck(%v, %v): want(%v, %v) have(%v, %v)",
				test.h, test.w, test.bneckH, test.bneckW, h, w)
		}
	}

	if _, err := NewGeometry(19, 160); err == nil {
		t.Error("newGeometry: expected error for frames smaller than 20")
	}
}

func TestSpreadMatrix(t *testing.T) {
	// 3 inputs, kernel 4, stride 2: inputs land at 3, 5, 7 of a grid of 11
	m := spreadMatrix(3, 11, 4, 2)
	for i := 0; i < 3; i++ {
		for j := 0; j < 11; j++ {
			v, err := m.At(i, j)
			if err != nil {
				t.Fatal(err)
			}
			want := 0.0
			if j == 3+2*i {
				want = 1.0
			}
			if v.(float64) != want {
				t.Errorf("spreadMatrix[%v, %v]: want(%v) have(%v)", i, j,
					want, v)
			}
		}
	}
}

func TestAtariShapes(t *testing.T) {
	net := newTestNet(t, AtariGeometry(), 18, 1)

	h1, w1 := AtariGeometry().Encoded()
	encoded := tensor.Shape{1, Conv1Channels + EmbedChannels, h1, w1}
	if !net.EncodedNode(0).Shape().Eq(encoded) {
		t.Errorf("encoder shape: want(%v) have(%v)", encoded,
			net.EncodedNode(0).Shape())
	}

	img := net.PredictedImageNode(0).Shape()
	if !img.Eq(AtariGeometry().ImageShape()) {
		t.Errorf("image head shape: want(%v) have(%v)",
			AtariGeometry().ImageShape(), img)
	}

	logits := net.PredictedActionNode(0).Shape()
	if !logits.Eq(tensor.Shape{1, 18}) {
		t.Errorf("action head shape: want((1, 18)) have(%v)", logits)
	}
}

func TestImageRoundTripShape(t *testing.T) {
	for _, size := range [][2]int{{20, 20}, {28, 24}, {33, 41}, {84, 84}} {
		geo, err := NewGeometry(size[0], size[1])
		if err != nil {
			t.Fatal(err)
		}
		net := newTestNet(t, geo, 6, 2)
		for step := 0; step < net.Steps(); step++ {
			have := net.PredictedImageNode(step).Shape()
			if !have.Eq(geo.ImageShape()) {
				t.Errorf("%v step %v: want(%v) have(%v)", geo, step,
					geo.ImageShape(), have)
			}
		}
	}
}

func TestForwardDeterministic(t *testing.T) {
	net := newTestNet(t, smallGeometry, 18, 1)
	if err := net.SetInput(0, rampFrame(smallGeometry, 0.1), 3); err != nil {
		t.Fatal(err)
	}
	if err := net.SetState(NewState(smallGeometry)); err != nil {
		t.Fatal(err)
	}

	run(t, net)
	firstImg := floats(t, net.PredictedImage(0))
	firstAct := floats(t, net.PredictedAction(0))

	run(t, net)
	secondImg := floats(t, net.PredictedImage(0))
	secondAct := floats(t, net.PredictedAction(0))

	for i := range firstImg {
		if firstImg[i] != secondImg[i] {
			t.Fatalf("image prediction not deterministic at %v: %v != %v",
				i, firstImg[i], secondImg[i])
		}
	}
	for i := range firstAct {
		if firstAct[i] != secondAct[i] {
			t.Fatalf("action prediction not deterministic at %v", i)
		}
	}
	if len(firstImg) != smallGeometry.FrameSize() {
		t.Errorf("image size: want(%v) have(%v)", smallGeometry.FrameSize(),
			len(firstImg))
	}
}

func TestActionConditionsPrediction(t *testing.T) {
	net := newTestNet(t, smallGeometry, 18, 1)
	frame := rampFrame(smallGeometry, 0.4)

	if err := net.SetInput(0, frame, 1); err != nil {
		t.Fatal(err)
	}
	run(t, net)
	first := floats(t, net.PredictedImage(0))

	if err := net.SetInput(0, frame, 2); err != nil {
		t.Fatal(err)
	}
	run(t, net)
	second := floats(t, net.PredictedImage(0))

	same := true
	for i := range first {
		if first[i] != second[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different actions produced identical predictions")
	}
}

func TestCarryResetsHidden(t *testing.T) {
	net := newTestNet(t, smallGeometry, 18, 1)
	if err := net.SetInput(0, rampFrame(smallGeometry, 0.2), 5); err != nil {
		t.Fatal(err)
	}

	// Reference prediction from the zero state
	run(t, net)
	reference := floats(t, net.PredictedAction(0))

	// A non-zero state that is not carried must give the same prediction
	state := NewState(smallGeometry)
	for i := range state.Value().Data().([]float64) {
		state.Value().Data().([]float64)[i] = 0.5
	}
	if err := net.SetState(state); err != nil {
		t.Fatal(err)
	}
	if err := net.SetCarry(0, false); err != nil {
		t.Fatal(err)
	}
	run(t, net)
	reset := floats(t, net.PredictedAction(0))
	for i := range reference {
		if math.Abs(reference[i]-reset[i]) > 1e-12 {
			t.Fatalf("uncarried state changed prediction: %v != %v",
				reference[i], reset[i])
		}
	}

	// Carrying the same state must change the prediction
	if err := net.SetCarry(0, true); err != nil {
		t.Fatal(err)
	}
	run(t, net)
	carried := floats(t, net.PredictedAction(0))
	same := true
	for i := range reference {
		if reference[i] != carried[i] {
			same = false
		}
	}
	if same {
		t.Error("carried hidden state had no effect on prediction")
	}
}

func TestNextState(t *testing.T) {
	net := newTestNet(t, smallGeometry, 18, 2)
	for step := 0; step < 2; step++ {
		err := net.SetInput(step, rampFrame(smallGeometry, float64(step)), 1)
		if err != nil {
			t.Fatal(err)
		}
	}

	state := NewState(smallGeometry)
	if err := net.NextState(state); err == nil {
		t.Error("nextState: expected error before running the graph")
	}

	run(t, net)
	if err := net.NextState(state); err != nil {
		t.Fatal(err)
	}
	if state.IsZero() {
		t.Error("nextState: hidden state still zero after two steps")
	}

	clone := state.Clone()
	state.Reset()
	if !state.IsZero() {
		t.Error("reset: state not zero")
	}
	if clone.IsZero() {
		t.Error("clone: reset of the original changed the clone")
	}
}

func TestSetInputValidation(t *testing.T) {
	net := newTestNet(t, smallGeometry, 6, 1)
	frame := rampFrame(smallGeometry, 0)

	if err := net.SetInput(0, frame, 6); err == nil {
		t.Error("setInput: expected error for action == action space")
	}
	if err := net.SetInput(0, frame, -1); err == nil {
		t.Error("setInput: expected error for negative action")
	}
	if err := net.SetInput(1, frame, 0); err == nil {
		t.Error("setInput: expected error for step out of range")
	}

	wrong := tensor.New(tensor.WithShape(1, 1, 28, 24),
		tensor.Of(tensor.Float64))
	if err := net.SetInput(0, wrong, 0); err == nil {
		t.Error("setInput: expected error for single channel frame")
	}
}

func TestSetAndGob(t *testing.T) {
	source := newTestNet(t, smallGeometry, 18, 1)
	dest := newTestNet(t, smallGeometry, 18, 3)

	if err := dest.Set(source); err != nil {
		t.Fatal(err)
	}
	assertSameWeights(t, source, dest)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(source); err != nil {
		t.Fatalf("could not encode: %v", err)
	}
	decoded := newTestNet(t, smallGeometry, 18, 1)
	if err := gob.NewDecoder(&buf).Decode(decoded); err != nil {
		t.Fatalf("could not decode: %v", err)
	}
	assertSameWeights(t, source, decoded)

	other := newTestNet(t, Geometry{Height: 32, Width: 24}, 18, 1)
	if err := other.Set(source); err == nil {
		t.Error("set: expected error for incompatible geometry")
	}
}

func assertSameWeights(t *testing.T, a, b *PredictiveAutoencoder) {
	t.Helper()
	aNodes, bNodes := a.Learnables(), b.Learnables()
	if len(aNodes) != len(bNodes) {
		t.Fatalf("learnables: want(%v) have(%v)", len(aNodes), len(bNodes))
	}
	for i := range aNodes {
		aw := aNodes[i].Value().Data().([]float64)
		bw := bNodes[i].Value().Data().([]float64)
		for j := range aw {
			if aw[j] != bw[j] {
				t.Fatalf("%v[%v]: want(%v) have(%v)", aNodes[i].Name(), j,
					aw[j], bw[j])
			}
		}
	}
}

func TestOneHot(t *testing.T) {
	v, err := OneHot(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, 1, 0}
	have := v.Data().([]float64)
	for i := range want {
		if want[i] != have[i] {
			t.Errorf("oneHot: want(%v) have(%v)", want, have)
			break
		}
	}

	if _, err := OneHot(4, 4); err == nil {
		t.Error("oneHot: expected error for action out of range")
	}
}
