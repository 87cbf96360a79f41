package blit

import (
	"errors"
	"fmt"
)

// Common renderer errors.
var (
	// ErrNoTarget is returned when an output is repainted or captured
	// before a framebuffer target has been set.
	ErrNoTarget = errors.New("blit: output has no framebuffer target")

	// ErrUnsupportedCapture is returned for capture tasks the blitter
	// cannot service, such as non-writeback sources or offset areas.
	ErrUnsupportedCapture = errors.New("blit: unsupported capture task")

	// ErrDestroyed is returned when a destroyed renderer or output is used.
	ErrDestroyed = errors.New("blit: renderer destroyed")
)

func errInvalidSize(w, h int32) error {
	return fmt.Errorf("blit: invalid output size %dx%d", w, h)
}
