//go:build !cuda
// +build !cuda

package predictor

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// vmOpts returns the options placing a VM on device. Only the CPU is
// available unless built with the cuda tag.
func vmOpts(device int) ([]G.VMOpt, error) {
	if device != CPU {
		return nil, fmt.Errorf("vmOpts: device %v requested but CUDA "+
			"support was not compiled in (build with -tags cuda)", device)
	}
	return nil, nil
}
