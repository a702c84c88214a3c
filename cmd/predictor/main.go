// Command predictor trains a predictive autoencoder agent online in an
// RGB frame environment. The experiment is described by a JSON file:
//
//	{
//		"Env": {"Type": "Billiards", "Discount": 0.99,
//			"Billiards": {"Height": 210, "Width": 160, "Balls": 4}},
//		"MaxSteps": 10000,
//		"CheckpointEvery": 1000,
//		"ReturnFile": "return.bin",
//		"LossFile": "loss.bin",
//		"Agent": {"Type": "PredictiveAutoencoder",
//			"Config": {"SaveDir": "models", "BackpropRounds": 10}}
//	}
//
// Atari environments ("Type": "Atari", "Game": "Breakout-v0") are
// available when built with the gym tag.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/aunum/log"
	"github.com/pkg/errors"
	"github.com/samuelfneumann/predictivenet/environment"
	"github.com/samuelfneumann/predictivenet/environment/billiards"
	"github.com/samuelfneumann/predictivenet/experiment"

	// Registers the agent's configuration
	_ "github.com/samuelfneumann/predictivenet/agent/predictor"
)

// Environment types
const (
	Billiards = "Billiards"
	Atari     = "Atari"
)

// EnvConfig describes the environment of an experiment
type EnvConfig struct {
	Type      string
	Discount  float64
	Billiards billiards.Config
	Game      string // Gym name of an Atari game
}

// Config describes an experiment and its environment
type Config struct {
	Env EnvConfig
	experiment.Config
}

func loadConfig(filename string) (Config, error) {
	c := Config{Env: EnvConfig{
		Type:      Billiards,
		Discount:  0.99,
		Billiards: billiards.DefaultConfig(),
	}}

	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.Wrap(err, "loadConfig")
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrapf(err, "loadConfig: %v", filename)
	}
	return c, nil
}

func createEnv(c EnvConfig, seed uint64) (environment.Environment, error) {
	switch c.Type {
	case Billiards:
		env, _, err := billiards.New(c.Billiards, c.Discount, seed)
		return env, err
	case Atari:
		return newAtari(c.Game, c.Discount, seed)
	}
	return nil, fmt.Errorf("createEnv: unknown environment type %q", c.Type)
}

func run(configFile string, seed uint64, progress bool) error {
	c, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	env, err := createEnv(c.Env, seed)
	if err != nil {
		return err
	}
	defer env.Close()

	exp, err := c.CreateExp(env, seed)
	if err != nil {
		return err
	}
	if progress {
		exp.ShowProgress(os.Stdout, 40)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := exp.Run(ctx)
	if errors.Cause(runErr) == context.Canceled {
		log.Warningf("interrupted after %v steps, saving tracked data",
			exp.Steps())
		runErr = nil
	}
	if err := exp.Save(); err != nil {
		return err
	}
	return runErr
}

func main() {
	configFile := flag.String("config", "experiment.json",
		"JSON file describing the experiment")
	seed := flag.Uint64("seed", 0, "random seed")
	progress := flag.Bool("progress", true, "display a progress bar")
	flag.Parse()

	if err := run(*configFile, *seed, *progress); err != nil {
		log.Fatalf("predictor: %v", err)
	}
}
