package classifier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// ErrorMask returns a heatmap of where a predicted frame differs from
// the target frame. The squared error of each pixel is exponentially
// normalised over the spatial extent of its channel, so the values of
// each channel of the mask sum to 1. Both frames must have shape
// (1, C, H, W).
func ErrorMask(pred, target *tensor.Dense) (*tensor.Dense, error) {
	if !pred.Shape().Eq(target.Shape()) {
		return nil, fmt.Errorf("errorMask: shapes differ \n\tpredicted(%v) "+
			"\n\ttarget(%v)", pred.Shape(), target.Shape())
	}
	shape := pred.Shape()
	if len(shape) != 4 || shape[0] != 1 {
		return nil, fmt.Errorf("errorMask: want shape (1, C, H, W) "+
			"\n\thave(%v)", shape)
	}

	p := pred.Data().([]float64)
	tg := target.Data().([]float64)
	mask := make([]float64, len(p))
	floats.SubTo(mask, p, tg)
	floats.Mul(mask, mask)

	plane := shape[2] * shape[3]
	for c := 0; c < shape[1]; c++ {
		channel := mask[c*plane : (c+1)*plane]
		floats.AddConst(-floats.LogSumExp(channel), channel)
		for i := range channel {
			channel[i] = math.Exp(channel[i])
		}
	}

	return tensor.New(
		tensor.WithShape(shape...),
		tensor.WithBacking(mask),
	), nil
}
