//go:build gym
// +build gym

package main

import (
	"github.com/samuelfneumann/predictivenet/environment"
	"github.com/samuelfneumann/predictivenet/environment/gym"
)

// newAtari returns the Atari environment game
func newAtari(game string, discount float64,
	seed uint64) (environment.Environment, error) {
	env, _, err := gym.New(game, nil, discount, seed)
	if err != nil {
		return nil, err
	}
	return shutdown{env}, nil
}

// shutdown stops the Python interpreter when the environment is closed
type shutdown struct {
	*gym.AtariEnv
}

func (s shutdown) Close() error {
	err := s.AtariEnv.Close()
	gym.Shutdown()
	return err
}
