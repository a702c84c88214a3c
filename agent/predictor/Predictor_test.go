package predictor

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/predictivenet/agent"
	"github.com/samuelfneumann/predictivenet/environment"
	"github.com/samuelfneumann/predictivenet/environment/billiards"
	"github.com/samuelfneumann/predictivenet/solver"
	ts "github.com/samuelfneumann/predictivenet/timestep"
	"gonum.org/v1/gonum/mat"
)

const (
	testHeight = 28
	testWidth  = 24
)

// zeroEnv is an environment whose frames are all black
type zeroEnv struct {
	step int
}

func (z *zeroEnv) timeStep(t ts.StepType) ts.TimeStep {
	obs := mat.NewVecDense(testHeight*testWidth*3, nil)
	return ts.New(t, 0, 1, obs, z.step)
}

func (z *zeroEnv) Reset() (ts.TimeStep, error) {
	z.step = 0
	return z.timeStep(ts.First), nil
}

func (z *zeroEnv) Step(int) (ts.TimeStep, bool, error) {
	z.step++
	return z.timeStep(ts.Mid), false, nil
}

func (z *zeroEnv) CurrentTimeStep() ts.TimeStep {
	return z.timeStep(ts.Mid)
}

func (z *zeroEnv) ActionMeanings() []string {
	return environment.AtariActionMeanings
}

func (z *zeroEnv) FrameSize() (int, int) {
	return testHeight, testWidth
}

func (z *zeroEnv) Close() error {
	return nil
}

func testConfig(t *testing.T, rounds int) Config {
	t.Helper()
	c := DefaultConfig(t.TempDir())
	c.BackpropRounds = rounds
	c.LoadSaved = false
	return c
}

func newTestAgent(t *testing.T, env environment.Environment,
	c Config) *Predictor {
	t.Helper()
	p, err := New(env, c, 1)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	return p
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"EmptyName", func(c *Config) { c.Name = "" }},
		{"NegativeWeight", func(c *Config) { c.ClassifierWeight = -0.1 }},
		{"LargeWeight", func(c *Config) { c.ClassifierWeight = 1.1 }},
		{"ZeroRounds", func(c *Config) { c.BackpropRounds = 0 }},
		{"Device", func(c *Config) { c.Device = -2 }},
		{"DeviceIndex", func(c *Config) { c.Device = 1 }},
		{"ActionSpace", func(c *Config) { c.ActionSpace = 0 }},
		{"ActionHigh", func(c *Config) { c.ActionHigh = 18 }},
		{"ActionRange", func(c *Config) { c.ActionLow, c.ActionHigh = 4, 3 }},
		{"HalfFrame", func(c *Config) { c.FrameHeight = 210 }},
		{"SmallFrame", func(c *Config) { c.FrameHeight, c.FrameWidth = 10, 10 }},
		{"Solver", func(c *Config) { c.Solver = nil }},
		{"InitWFn", func(c *Config) { c.InitWFn = nil }},
	}

	if err := DefaultConfig("").Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := DefaultConfig("")
			test.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("validate: expected error")
			}
		})
	}
}

func TestTypedConfig(t *testing.T) {
	data := []byte(`{
		"Type": "PredictiveAutoencoder",
		"Config": {
			"SaveDir": "models",
			"BackpropRounds": 4,
			"Solver": {"Type": "Adam", "Config": {"StepSize": 0.01,
				"Epsilon": 1e-8, "Beta1": 0.9, "Beta2": 0.999}},
			"InitWFn": {"Type": "GlorotU", "Config": {"Gain": 1}}
		}
	}`)

	var typed agent.TypedConfig
	if err := json.Unmarshal(data, &typed); err != nil {
		t.Fatal(err)
	}
	c, ok := typed.Config.(Config)
	if !ok {
		t.Fatalf("unmarshal: want Config have(%T)", typed.Config)
	}

	if c.BackpropRounds != 4 || c.SaveDir != "models" {
		t.Errorf("unmarshal: fields not set: %+v", c)
	}
	if c.Name != DefaultName || c.ClassifierWeight != DefaultClassifierWeight ||
		!c.ResetLossAfterUpdate || c.ActionHigh != DefaultActionHigh {
		t.Errorf("unmarshal: defaults lost: %+v", c)
	}
	if c.Solver.Type != solver.Adam {
		t.Errorf("unmarshal: solver want(%v) have(%v)", solver.Adam,
			c.Solver.Type)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

func TestStepBeforeObserveFirst(t *testing.T) {
	env := &zeroEnv{}
	p := newTestAgent(t, env, testConfig(t, 2))
	step, _, _ := env.Step(0)

	if _, err := p.Step(step); errors.Cause(err) != ErrNotStarted {
		t.Errorf("step: want(%v) have(%v)", ErrNotStarted, err)
	}
}

func TestWrongFrameLength(t *testing.T) {
	env := &zeroEnv{}
	p := newTestAgent(t, env, testConfig(t, 2))
	first, _ := env.Reset()
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	wrong := ts.New(ts.Mid, 0, 1, mat.NewVecDense(10, nil), 1)
	if _, err := p.Step(wrong); err == nil {
		t.Error("step: expected error for wrong frame length")
	}
	if p.Steps() != 0 {
		t.Errorf("steps: failed step was counted")
	}
}

func TestUpdateSchedule(t *testing.T) {
	env := &zeroEnv{}
	p := newTestAgent(t, env, testConfig(t, 2))
	first, _ := env.Reset()
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	step, _, _ := env.Step(0)
	action, err := p.Step(step)
	if err != nil {
		t.Fatal(err)
	}
	if action < DefaultActionLow || action > DefaultActionHigh {
		t.Errorf("step: action out of range \n\twant([1, 6]) \n\thave(%v)",
			action)
	}
	if p.Updates() != 0 {
		t.Errorf("updates after one step: want(0) have(%v)", p.Updates())
	}
	accumulated := p.Loss()
	if !(accumulated > 0) {
		t.Errorf("loss after one step: want(>0) have(%v)", accumulated)
	}

	step, _, _ = env.Step(action)
	if action, err = p.Step(step); err != nil {
		t.Fatal(err)
	}
	if action < DefaultActionLow || action > DefaultActionHigh {
		t.Errorf("step: action out of range \n\twant([1, 6]) \n\thave(%v)",
			action)
	}
	if p.Updates() != 1 {
		t.Errorf("updates after two steps: want(1) have(%v)", p.Updates())
	}
	if p.Loss() != 0 {
		t.Errorf("loss after update: want(0) have(%v)", p.Loss())
	}
	if p.LastUpdateLoss() <= accumulated {
		t.Errorf("last update loss: want(>%v) have(%v)", accumulated,
			p.LastUpdateLoss())
	}
	if math.IsNaN(p.LastUpdateLoss()) {
		t.Error("last update loss is NaN")
	}
}

func TestLossKeptAfterUpdate(t *testing.T) {
	env := &zeroEnv{}
	c := testConfig(t, 2)
	c.ResetLossAfterUpdate = false
	p := newTestAgent(t, env, c)
	first, _ := env.Reset()
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		step, _, _ := env.Step(0)
		if _, err := p.Step(step); err != nil {
			t.Fatal(err)
		}
	}
	if p.Updates() != 1 {
		t.Errorf("updates: want(1) have(%v)", p.Updates())
	}
	if p.Loss() <= p.LastUpdateLoss() {
		t.Errorf("loss: want(>%v) have(%v)", p.LastUpdateLoss(), p.Loss())
	}
}

func TestPredictions(t *testing.T) {
	env := &zeroEnv{}
	p := newTestAgent(t, env, testConfig(t, 3))
	first, _ := env.Reset()
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}
	if p.PredictedImage() != nil {
		t.Error("predictedImage: want nil before the first step")
	}

	step, _, _ := env.Step(0)
	if _, err := p.Step(step); err != nil {
		t.Fatal(err)
	}

	size := testHeight * testWidth * 3
	if p.PredictedImage().Len() != size {
		t.Errorf("predictedImage: want(%v) have(%v)", size,
			p.PredictedImage().Len())
	}
	if len(p.PredictedAction()) != DefaultActionSpace {
		t.Errorf("predictedAction: want(%v) have(%v)", DefaultActionSpace,
			len(p.PredictedAction()))
	}

	// Each channel of the mask sums to one
	mask := p.ErrorMask()
	for c := 0; c < 3; c++ {
		sum := 0.0
		for i := c; i < mask.Len(); i += 3 {
			sum += mask.AtVec(i)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("errorMask channel %v: want(1) have(%v)", c, sum)
		}
	}
}

func TestEndEpisode(t *testing.T) {
	env := &zeroEnv{}
	p := newTestAgent(t, env, testConfig(t, 5))
	first, _ := env.Reset()
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		step, _, _ := env.Step(0)
		if _, err := p.Step(step); err != nil {
			t.Fatal(err)
		}
	}

	p.EndEpisode()
	if !p.State().IsZero() {
		t.Error("endEpisode: hidden state not reset")
	}
	step, _, _ := env.Step(0)
	if _, err := p.Step(step); errors.Cause(err) != ErrNotStarted {
		t.Errorf("step after endEpisode: want(%v) have(%v)", ErrNotStarted,
			err)
	}

	// The window spans the episode boundary
	first, _ = env.Reset()
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		step, _, _ := env.Step(0)
		if _, err := p.Step(step); err != nil {
			t.Fatal(err)
		}
	}
	if p.Updates() != 1 {
		t.Errorf("updates: want(1) have(%v)", p.Updates())
	}
}

func TestSaveLoad(t *testing.T) {
	env := &zeroEnv{}
	c := testConfig(t, 2)
	p := newTestAgent(t, env, c)
	first, _ := env.Reset()
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		step, _, _ := env.Step(0)
		if _, err := p.Step(step); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.Save(); err != nil {
		t.Fatal(err)
	}

	c.LoadSaved = true
	loaded := newTestAgent(t, env, c)

	want, have := p.Network().Learnables(), loaded.Network().Learnables()
	for i := range want {
		w := want[i].Value().Data().([]float64)
		h := have[i].Value().Data().([]float64)
		for j := range w {
			if w[j] != h[j] {
				t.Fatalf("%v[%v]: want(%v) have(%v)", want[i].Name(), j, w[j],
					h[j])
			}
		}
	}

	adam, ok := loaded.solver.Solver.(*solver.AdamSolver)
	if !ok {
		t.Fatalf("load: want *solver.AdamSolver have(%T)",
			loaded.solver.Solver)
	}
	if adam.Iter() != 1 {
		t.Errorf("load: optimizer iterations want(1) have(%v)", adam.Iter())
	}
}

func TestLoadMissing(t *testing.T) {
	env := &zeroEnv{}
	c := testConfig(t, 2)
	c.LoadSaved = true

	// Missing artifacts on construction start a fresh model
	p := newTestAgent(t, env, c)

	// but an explicit load fails
	if err := p.Load(); err == nil {
		t.Error("load: expected error for missing artifacts")
	}
}

func TestFrameSizeMismatch(t *testing.T) {
	c := testConfig(t, 2)
	c.FrameHeight, c.FrameWidth = 32, 32
	if _, err := New(&zeroEnv{}, c, 0); err == nil {
		t.Error("new: expected error for frame size mismatch")
	}
}

func TestBilliards(t *testing.T) {
	env, first, err := billiards.New(billiards.Config{
		Height: testHeight,
		Width:  testWidth,
		Balls:  2,
	}, 0.99, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	p := newTestAgent(t, env, testConfig(t, 3))
	if err := p.ObserveFirst(first); err != nil {
		t.Fatal(err)
	}

	action := 0
	for i := 0; i < 6; i++ {
		step, _, err := env.Step(action)
		if err != nil {
			t.Fatal(err)
		}
		if action, err = p.Step(step); err != nil {
			t.Fatal(err)
		}
	}
	if p.Updates() != 2 {
		t.Errorf("updates: want(2) have(%v)", p.Updates())
	}
	if math.IsNaN(p.LastUpdateLoss()) || math.IsInf(p.LastUpdateLoss(), 0) {
		t.Errorf("last update loss not finite: %v", p.LastUpdateLoss())
	}
}
