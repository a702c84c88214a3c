package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/predictivenet/experiment/tracker"
)

func writeConfig(t *testing.T, dir, env string) string {
	t.Helper()
	data := fmt.Sprintf(`{
		"Env": %v,
		"MaxSteps": 4,
		"LossFile": %q,
		"Agent": {"Type": "PredictiveAutoencoder",
			"Config": {"SaveDir": %q, "BackpropRounds": 2}}
	}`, env, filepath.Join(dir, "loss.bin"), dir)

	filename := filepath.Join(dir, "experiment.json")
	if err := os.WriteFile(filename, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	filename := writeConfig(t, dir, `{"Type": "Billiards",
		"Billiards": {"Height": 28, "Width": 24, "Balls": 2}}`)

	if err := run(filename, 1, false); err != nil {
		t.Fatal(err)
	}
	losses, err := tracker.LoadData(filepath.Join(dir, "loss.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(losses) != 2 {
		t.Errorf("losses: want(2) have(%v)", len(losses))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	filename := writeConfig(t, t.TempDir(), `{}`)
	c, err := loadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	if c.Env.Type != Billiards || c.Env.Discount != 0.99 {
		t.Errorf("loadConfig: environment defaults lost: %+v", c.Env)
	}
	if c.MaxSteps != 4 {
		t.Errorf("loadConfig: maxSteps want(4) have(%v)", c.MaxSteps)
	}
}

func TestUnknownEnvironment(t *testing.T) {
	if _, err := createEnv(EnvConfig{Type: "Pong"}, 0); err == nil {
		t.Error("createEnv: expected error for unknown environment")
	}
}
