package blit

import (
	"fmt"

	"github.com/gogpu/blit/hal"
)

// CaptureSource identifies where a capture task reads from.
type CaptureSource uint8

const (
	// CaptureFramebuffer reads back the composited framebuffer.
	CaptureFramebuffer CaptureSource = iota
	// CaptureWriteback asks the display engine for a writeback connector
	// snapshot. The blitter cannot service it.
	CaptureWriteback
)

// CaptureTask asks for a copy of the output's visible area from the next
// repainted frame into a shared-memory buffer. Tasks are queued on an
// output and serviced, at most one way, at the end of the next repaint.
type CaptureTask struct {
	Source CaptureSource

	// Dest receives the pixels, tightly packed rows of the output's
	// visible-area size. Its format must be XRGB8888 or ARGB8888 and its
	// stride a multiple of 4.
	Dest *SHMBuffer

	// Done, if non-nil, is called exactly once when the task is retired.
	// A nil error means Dest holds the frame.
	Done func(err error)

	retired bool
}

// retire completes the task. Safe to call once per task only; the output
// guards against double retirement.
func (t *CaptureTask) retire(err error) {
	if t.retired {
		return
	}
	t.retired = true
	if t.Done != nil {
		t.Done(err)
	}
}

// OutputConfig describes an output at creation time.
type OutputConfig struct {
	// X, Y is the output's origin in the global coordinate space.
	X, Y int32

	// Width, Height is the output size in logical (pre-transform) pixels.
	Width, Height int32

	// Area is the visible area within the framebuffer, in framebuffer
	// pixel coordinates. The zero Rect means the whole framebuffer.
	Area Rect

	// Transform is the output orientation.
	Transform Transform

	// OnFrame, if non-nil, runs after every completed repaint.
	OnFrame func()
}

// Output is one scanout target the renderer composites into. Created with
// Renderer.CreateOutput and destroyed with Renderer.DestroyOutput.
type Output struct {
	r *Renderer

	x, y          int32
	width, height int32
	area          Rect
	transform     Transform
	onFrame       func()

	// target describes the framebuffer currently bound for compositing.
	// Nil until SetOutputTarget.
	target *hal.Surface

	// ring holds the per-framebuffer damage history. The display cycles
	// through len(ring) buffers; slot frame%len(ring) is the one being
	// drawn this frame, and the others still show older frames.
	ring  []Region
	frame int

	// fence owns the completion fence of the last repaint.
	fence *hal.FenceRef

	captures []*CaptureTask

	destroyed bool
}

// Size returns the output size in framebuffer pixels, after the output
// transform.
func (o *Output) Size() (width, height int32) {
	return o.transform.Size(o.width, o.height)
}

// VisibleArea returns the part of the framebuffer the output presents, in
// framebuffer pixel coordinates. Captures read exactly this area.
func (o *Output) VisibleArea() Rect {
	return o.area
}

// QueueCapture schedules a capture of the next repainted frame. The task
// is retired when the frame completes, or immediately with an error if the
// output is already destroyed.
func (o *Output) QueueCapture(t *CaptureTask) {
	if o.destroyed {
		t.retire(ErrDestroyed)
		return
	}
	o.captures = append(o.captures, t)
}

// rotateDamage records damage for the frame being drawn, advancing the
// ring to the next buffer. The record it overwrites is the one whose frame
// the buffer being drawn still shows, so it has expired exactly now.
func (o *Output) rotateDamage(damage Region) {
	o.frame++
	o.ring[o.frame%len(o.ring)] = damage
}

// accumulateDamage returns the union of the ring after rotation: the new
// frame damage plus the damage of the frames the buffer being drawn has
// missed.
func (o *Output) accumulateDamage() Region {
	var acc Region
	for _, d := range o.ring {
		acc = acc.Union(d)
	}
	return acc
}

// CreateOutput registers a new output with the renderer. The output has no
// framebuffer target until SetOutputTarget.
func (r *Renderer) CreateOutput(cfg OutputConfig) (*Output, error) {
	if r.destroyed {
		return nil, ErrDestroyed
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errInvalidSize(cfg.Width, cfg.Height)
	}
	area, err := resolveArea(cfg.Width, cfg.Height, cfg.Transform, cfg.Area)
	if err != nil {
		return nil, err
	}
	o := &Output{
		r:         r,
		x:         cfg.X,
		y:         cfg.Y,
		width:     cfg.Width,
		height:    cfg.Height,
		area:      area,
		transform: cfg.Transform,
		onFrame:   cfg.OnFrame,
		ring:      make([]Region, r.opts.bufferCount),
		fence:     hal.NewFenceRef(),
	}
	r.outputs[o] = struct{}{}
	Logger().Debug("output created",
		"size", [2]int32{cfg.Width, cfg.Height},
		"origin", [2]int32{cfg.X, cfg.Y},
		"buffers", r.opts.bufferCount)
	return o, nil
}

// resolveArea validates a visible area against the post-transform
// framebuffer size. The zero Rect selects the whole framebuffer.
func resolveArea(width, height int32, t Transform, area Rect) (Rect, error) {
	fbWidth, fbHeight := t.Size(width, height)
	fb := Rect{Left: 0, Top: 0, Right: fbWidth, Bottom: fbHeight}
	if area == (Rect{}) {
		return fb, nil
	}
	if area.Empty() || !fb.Contains(area) {
		return Rect{}, fmt.Errorf("blit: visible area %v outside %dx%d framebuffer", area, fbWidth, fbHeight)
	}
	return area, nil
}

// ResizeOutput changes the output's logical size and visible area and
// resets its damage history, forcing the next repaint to redraw
// everything. A zero area selects the whole framebuffer.
func (r *Renderer) ResizeOutput(o *Output, width, height int32, area Rect) error {
	if o.destroyed {
		return ErrDestroyed
	}
	if width <= 0 || height <= 0 {
		return errInvalidSize(width, height)
	}
	resolved, err := resolveArea(width, height, o.transform, area)
	if err != nil {
		return err
	}
	o.width = width
	o.height = height
	o.area = resolved
	for i := range o.ring {
		o.ring[i] = Region{}
	}
	o.target = nil
	return nil
}

// SetOutputTarget binds the framebuffer the next repaint composites into.
// The display flips between several framebuffers; call this before every
// repaint with the descriptor of the buffer about to be drawn.
func (r *Renderer) SetOutputTarget(o *Output, target *hal.Surface) error {
	if o.destroyed {
		return ErrDestroyed
	}
	o.target = target
	return nil
}

// DestroyOutput retires the output's pending captures and releases its
// fence. The output must not be used afterwards.
func (r *Renderer) DestroyOutput(o *Output) {
	if o.destroyed {
		return
	}
	o.destroyed = true
	for _, t := range o.captures {
		t.retire(ErrDestroyed)
	}
	o.captures = nil
	o.fence.Clear()
	delete(r.outputs, o)
}
