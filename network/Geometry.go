package network

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Channel counts and kernel geometry of the predictive autoencoder.
const (
	FrameChannels  = 3
	Conv1Channels  = 16
	EmbedChannels  = 3
	Conv2Channels  = 32
	Conv3Channels  = 32
	HiddenChannels = 64
	Deconv1Out     = 32
	ActionHidden   = 256

	// Encoder/decoder kernel sizes and strides
	Conv1Kernel = 8
	Conv1Stride = 4
	Conv2Kernel = 4
	Conv2Stride = 2
)

// Default frame size of the Atari environments
const (
	AtariHeight = 210
	AtariWidth  = 160
)

// minFrameSize is the smallest frame side for which the bottleneck
// still has a spatial extent of at least one
const minFrameSize = Conv1Kernel + Conv1Stride*(Conv2Kernel-1)

// Geometry describes the spatial sizes of every feature map in the
// predictive autoencoder. All sizes are derived from the frame size so
// that the decoder always restores exactly the size of the frame.
type Geometry struct {
	Height int
	Width  int
}

// NewGeometry returns the Geometry of a network taking frames of
// height h and width w
func NewGeometry(h, w int) (Geometry, error) {
	if h < minFrameSize || w < minFrameSize {
		return Geometry{}, fmt.Errorf("newGeometry: frame too small "+
			"\n\twant(>= %v x %v) \n\thave(%v x %v)", minFrameSize,
			minFrameSize, h, w)
	}
	return Geometry{Height: h, Width: w}, nil
}

// AtariGeometry returns the Geometry of 210 x 160 RGB frames
func AtariGeometry() Geometry {
	return Geometry{Height: AtariHeight, Width: AtariWidth}
}

// convOut returns the output size of a convolution without padding
func convOut(in, kernel, stride int) int {
	return (in-kernel)/stride + 1
}

// Encoded returns the spatial size of the encoder output, which is
// also the output size of the first deconvolution.
func (g Geometry) Encoded() (int, int) {
	return convOut(g.Height, Conv1Kernel, Conv1Stride),
		convOut(g.Width, Conv1Kernel, Conv1Stride)
}

// Bottleneck returns the spatial size of the recurrent hidden state
func (g Geometry) Bottleneck() (int, int) {
	h, w := g.Encoded()
	return convOut(h, Conv2Kernel, Conv2Stride),
		convOut(w, Conv2Kernel, Conv2Stride)
}

// FrameSize returns the number of values in a single frame
func (g Geometry) FrameSize() int {
	return g.Height * g.Width * FrameChannels
}

// ImageShape returns the NCHW shape of a frame inside the network
func (g Geometry) ImageShape() tensor.Shape {
	return tensor.Shape{1, FrameChannels, g.Height, g.Width}
}

// HiddenShape returns the shape of the recurrent hidden state
func (g Geometry) HiddenShape() tensor.Shape {
	h, w := g.Bottleneck()
	return tensor.Shape{1, HiddenChannels, h, w}
}

// Flattened returns the number of features the action head receives
func (g Geometry) Flattened() int {
	h, w := g.Bottleneck()
	return HiddenChannels * h * w
}

func (g Geometry) String() string {
	h1, w1 := g.Encoded()
	h2, w2 := g.Bottleneck()
	return fmt.Sprintf("Geometry{frame: %vx%v, encoded: %vx%v, "+
		"bottleneck: %vx%v}", g.Height, g.Width, h1, w1, h2, w2)
}
