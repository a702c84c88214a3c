// Package tensorutils converts RGB frames between the layout
// environments produce them in and the layout networks consume.
//
// Environments produce frames flattened in height x width x channel
// (HWC) order. Networks consume tensors of shape (1, channel, height,
// width), that is NCHW order with a batch of one.
package tensorutils

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// FrameToCHW returns a (1, channels, height, width) tensor holding the
// HWC frame
func FrameToCHW(frame mat.Vector, height, width,
	channels int) (*tensor.Dense, error) {
	if frame.Len() != height*width*channels {
		return nil, fmt.Errorf("frameToCHW: invalid frame length "+
			"\n\twant(%v) \n\thave(%v)", height*width*channels, frame.Len())
	}

	backing := make([]float64, frame.Len())
	plane := height * width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				hwc := (y*width+x)*channels + c
				backing[c*plane+y*width+x] = frame.AtVec(hwc)
			}
		}
	}

	return tensor.New(
		tensor.WithShape(1, channels, height, width),
		tensor.WithBacking(backing),
	), nil
}

// CHWToFrame returns the HWC frame held by a (1, channels, height,
// width) tensor
func CHWToFrame(t *tensor.Dense) (*mat.VecDense, error) {
	shape := t.Shape()
	if len(shape) != 4 || shape[0] != 1 {
		return nil, fmt.Errorf("chwToFrame: want shape (1, C, H, W) "+
			"\n\thave(%v)", shape)
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("chwToFrame: want float64 tensor \n\thave(%v)",
			t.Dtype())
	}

	channels, height, width := shape[1], shape[2], shape[3]
	plane := height * width
	frame := make([]float64, len(data))
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				frame[(y*width+x)*channels+c] = data[c*plane+y*width+x]
			}
		}
	}

	return mat.NewVecDense(len(frame), frame), nil
}
