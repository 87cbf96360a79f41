package blit

import (
	"fmt"

	"github.com/gogpu/blit/hal"
)

// Renderer composites client surfaces into output framebuffers through a
// fixed-function 2D blit engine. All methods must be called from the same
// goroutine.
type Renderer struct {
	dev  hal.Device
	opts options

	surfaces map[*Surface]*surfaceState
	outputs  map[*Output]struct{}

	destroyed bool
}

// New opens a blit device and creates a renderer on it. Without WithDevice
// the highest-priority registered device is used.
func New(opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var dev hal.Device
	var err error
	if o.device != "" {
		dev, err = hal.Open(o.device)
	} else {
		dev, err = hal.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("blit: open device: %w", err)
	}
	propagateLogger(dev, Logger())

	r := &Renderer{
		dev:      dev,
		opts:     o,
		surfaces: make(map[*Surface]*surfaceState),
		outputs:  make(map[*Output]struct{}),
	}
	if o.onActivate != nil {
		o.onActivate()
	}
	Logger().Info("renderer created", "device", dev.Name())
	return r, nil
}

// Device returns the name of the device the renderer draws through.
func (r *Renderer) Device() string { return r.dev.Name() }

// Destroy tears down all per-surface state and outputs and closes the
// device. The renderer must not be used afterwards.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}

	states := make([]*surfaceState, 0, len(r.surfaces))
	for _, st := range r.surfaces {
		states = append(states, st)
	}
	for _, st := range states {
		st.destroy()
	}

	outputs := make([]*Output, 0, len(r.outputs))
	for o := range r.outputs {
		outputs = append(outputs, o)
	}
	for _, o := range outputs {
		r.DestroyOutput(o)
	}

	r.destroyed = true
	if err := r.dev.Close(); err != nil {
		Logger().Warn("close device", "error", err)
	}
	if r.opts.onDeactivate != nil {
		r.opts.onDeactivate()
	}
}

// RepaintOutput composites views back-to-front into the output's bound
// framebuffer. damage is the frame-to-frame damage in global coordinates;
// the renderer widens it with the damage still visible in the output's
// older framebuffers, draws, services queued captures, and signals
// completion per the configured fence mode.
func (r *Renderer) RepaintOutput(o *Output, views []*View, damage Region) error {
	if r.destroyed || o.destroyed {
		return ErrDestroyed
	}
	if o.target == nil {
		return ErrNoTarget
	}

	o.rotateDamage(damage)
	total := o.accumulateDamage()

	for _, v := range views {
		r.drawView(o, v, total)
	}

	r.serviceCaptures(o)

	fd := -1
	if r.opts.fenceMode != FenceFinish {
		var err error
		fd, err = r.dev.CreateFence()
		if err != nil {
			fd = -1
			if r.opts.fenceMode == FenceFD {
				return fmt.Errorf("blit: export completion fence: %w", err)
			}
		}
	}
	r.updateReleaseFences(views, fd)
	o.fence.Adopt(fd)

	if fd == -1 {
		if err := r.dev.Finish(); err != nil {
			return fmt.Errorf("blit: finish: %w", err)
		}
	}

	if o.onFrame != nil {
		o.onFrame()
	}
	return nil
}

// updateReleaseFences hands each participating surface a dup of the
// completion fence. Without a fence any stale release fences are dropped,
// since the blocking Finish already ordered the work.
func (r *Renderer) updateReleaseFences(views []*View, fd int) {
	for _, v := range views {
		rel := v.Surface.Release
		if rel == nil {
			continue
		}
		if fd == -1 {
			rel.Clear()
			continue
		}
		if err := rel.Update(fd); err != nil {
			Logger().Warn("update release fence", "error", err)
		}
	}
}

func (r *Renderer) enable(c hal.Capability) {
	if err := r.dev.Enable(c); err != nil {
		Logger().Warn("enable capability", "cap", c, "error", err)
	}
}

func (r *Renderer) disable(c hal.Capability) {
	if err := r.dev.Disable(c); err != nil {
		Logger().Warn("disable capability", "cap", c, "error", err)
	}
}
