// Package gpio exposes the appliance's buttons and status LED as simple
// digital lines.
package gpio

import "io"

// Input is a digital line that reads as active or inactive
type Input interface {
	Active() (bool, error)
}

// Output is a digital line that can be driven on or off
type Output interface {
	Set(on bool) error
}

// Chip hands out lines on one GPIO character device
type Chip interface {
	// Input requests offset as a pulled-down input
	Input(offset int) (Input, error)

	// Output requests offset as an output, initially off
	Output(offset int) (Output, error)

	// Close releases every requested line
	io.Closer
}
