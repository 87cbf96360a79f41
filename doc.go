// Package blit is the compositing core of a fixed-function 2D blitter
// backend for a Wayland-style compositor.
//
// # Overview
//
// Given a set of on-screen views, each with its own buffer, transform, clip
// region and opacity, blit determines which screen pixels must be redrawn,
// clips each view's geometry against the damaged area, converts between
// surface-local and screen-global coordinates, and issues minimal
// rectangular blit and clear operations through the hal.Device interface.
// The hardware can only operate on axis-aligned rectangles, so
// polygon-shaped clip results degrade to bounding-box scissoring.
//
// # Quick start
//
//	import (
//	    "github.com/gogpu/blit"
//	    _ "github.com/gogpu/blit/hal/soft" // register the software device
//	)
//
//	r, err := blit.New()
//	out, err := r.CreateOutput(blit.OutputConfig{...})
//	r.SetOutputTarget(out, fbSurface)
//	r.RepaintOutput(out, damage, views)
//
// # Architecture
//
//   - Public API: Renderer, Output, View, Surface, Region, Matrix
//   - hal: the abstract blit/clear/fence engine and its device registry
//   - hal/soft: host-memory reference implementation used in tests
//   - internal/clip: convex polygon clipping against rectangles
//
// # Coordinate system
//
// Origin (0,0) at top-left, X right, Y down. Rect bounds are half-open.
// Destination rectangles handed to the device always lie within the bound
// framebuffer; the core clamps them and proportionally shrinks the paired
// source rectangles before drawing.
//
// # Concurrency
//
// A Renderer and everything it owns is confined to one goroutine. Repaint
// of one output runs to completion before the next begins; the only
// blocking points are acquire-fence waits and Device.Finish.
package blit
