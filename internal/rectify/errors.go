package rectify

import "errors"

var (
	// ErrShapeMismatch is returned when arrays that must share a shape do not.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrEmptyMask is returned when a stage leaves no valid pixel.
	ErrEmptyMask = errors.New("no valid pixels")

	// ErrNoDynamicRange is returned when every valid pixel has the same value.
	ErrNoDynamicRange = errors.New("no dynamic range")
)
