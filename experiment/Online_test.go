package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/predictivenet/agent/predictor"
	"github.com/samuelfneumann/predictivenet/environment/billiards"
	"github.com/samuelfneumann/predictivenet/experiment/tracker"
)

func newTestTable(t *testing.T, cutoff int) *billiards.Billiards {
	t.Helper()
	env, _, err := billiards.New(billiards.Config{
		Height:        28,
		Width:         24,
		Balls:         2,
		EpisodeCutoff: cutoff,
	}, 0.99, 11)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func testConfig(t *testing.T, dir string) Config {
	t.Helper()
	data := fmt.Sprintf(`{
		"MaxSteps": 7,
		"CheckpointEvery": 3,
		"ReturnFile": %q,
		"EpisodeLengthFile": %q,
		"LossFile": %q,
		"Agent": {
			"Type": "PredictiveAutoencoder",
			"Config": {"SaveDir": %q, "BackpropRounds": 2,
				"LoadSaved": false}
		}
	}`, filepath.Join(dir, "return.bin"), filepath.Join(dir, "length.bin"),
		filepath.Join(dir, "loss.bin"), dir)

	var c Config
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOnline(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)
	env := newTestTable(t, 4)
	defer env.Close()

	exp, err := c.CreateExp(env, 5)
	if err != nil {
		t.Fatal(err)
	}
	exp.ShowProgress(os.Stderr, 20)
	if err := exp.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := exp.Save(); err != nil {
		t.Fatal(err)
	}

	if exp.Steps() != c.MaxSteps {
		t.Errorf("steps: want(%v) have(%v)", c.MaxSteps, exp.Steps())
	}

	// Episodes of 4 steps, the second cut short by the step limit
	lengths, err := tracker.LoadData(filepath.Join(dir, "length.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lengths) != 1 || lengths[0] != 4 {
		t.Errorf("episode lengths: want([4]) have(%v)", lengths)
	}

	// Updates every 2 steps
	losses, err := tracker.LoadData(filepath.Join(dir, "loss.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(losses) != 3 {
		t.Errorf("losses: want(3) have(%v)", len(losses))
	}

	// Checkpoints at steps 3 and 6
	name := predictor.DefaultName
	for _, ext := range []string{".model", ".optimizer"} {
		if _, err := os.Stat(filepath.Join(dir, name+ext)); err != nil {
			t.Errorf("checkpoint: %v", err)
		}
	}
}

func TestOnlineCancel(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)
	c.CheckpointEvery = 0
	env := newTestTable(t, 0)
	defer env.Close()

	exp, err := c.CreateExp(env, 5)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := exp.Run(ctx); err != context.Canceled {
		t.Errorf("run: want(%v) have(%v)", context.Canceled, err)
	}
	if exp.Steps() != 0 {
		t.Errorf("steps: want(0) have(%v)", exp.Steps())
	}
}

func TestValidate(t *testing.T) {
	c := testConfig(t, t.TempDir())
	c.MaxSteps = 0
	if err := c.Validate(); err == nil {
		t.Error("validate: expected error for zero steps")
	}

	var empty Config
	empty.MaxSteps = 1
	if err := empty.Validate(); err == nil {
		t.Error("validate: expected error for missing agent")
	}
}
