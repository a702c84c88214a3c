//go:build cuda
// +build cuda

package predictor

import (
	G "gorgonia.org/gorgonia"
)

// vmOpts returns the options placing a VM on device. Operations with a
// CUDA implementation are run on the GPU when device is GPU.
func vmOpts(device int) ([]G.VMOpt, error) {
	if device == CPU {
		return nil, nil
	}
	return []G.VMOpt{G.UseCudaFor()}, nil
}
