//go:build !gym
// +build !gym

package main

import (
	"fmt"

	"github.com/samuelfneumann/predictivenet/environment"
)

func newAtari(game string, discount float64,
	seed uint64) (environment.Environment, error) {
	return nil, fmt.Errorf("newAtari: %v requested but Atari support was "+
		"not compiled in (build with -tags gym)", game)
}
