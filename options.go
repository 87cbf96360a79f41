package blit

import "time"

// FenceMode selects how a repaint signals completion.
type FenceMode uint8

const (
	// FenceAuto exports a completion fence when the device supports it and
	// falls back to a blocking Finish when it does not.
	FenceAuto FenceMode = iota
	// FenceFinish always blocks in Finish at the end of a repaint.
	FenceFinish
	// FenceFD requires fence export; repaint fails if the device has none.
	FenceFD
)

// Option configures a Renderer during creation.
//
// Example:
//
//	// Default device selection
//	r, err := blit.New()
//
//	// Pin the device and deepen the damage ring
//	r, err := blit.New(blit.WithDevice(hal.DeviceG2D), blit.WithBufferCount(4))
type Option func(*options)

// options holds optional configuration for Renderer creation.
type options struct {
	device                string
	bufferCount           int
	fenceMode             FenceMode
	acquireTimeout        time.Duration
	skipTranslucentXform  bool
	onActivate            func()
	onDeactivate          func()
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	return options{
		device:               "", // Highest-priority registered device
		bufferCount:          3,
		fenceMode:            FenceAuto,
		acquireTimeout:       2 * time.Second,
		skipTranslucentXform: true,
	}
}

// WithDevice pins the renderer to a named device instead of the
// highest-priority registered one.
func WithDevice(name string) Option {
	return func(o *options) {
		o.device = name
	}
}

// WithBufferCount sets the depth of the per-output damage ring. It must
// match the number of framebuffers the display cycles through; the default
// is 3.
func WithBufferCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferCount = n
		}
	}
}

// WithFenceMode sets how repaints signal completion. The default is
// FenceAuto.
func WithFenceMode(m FenceMode) Option {
	return func(o *options) {
		o.fenceMode = m
	}
}

// WithAcquireTimeout sets how long a repaint waits for a buffer's acquire
// fence before logging and waiting indefinitely. The default is 2s.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) {
		o.acquireTimeout = d
	}
}

// WithTranslucentTransforms makes the renderer draw views that are both
// translucent and freely transformed instead of skipping them. Such views
// need per-pixel resampling the engine approximates poorly; skipping them
// is the default.
func WithTranslucentTransforms() Option {
	return func(o *options) {
		o.skipTranslucentXform = false
	}
}

// WithActivationHooks registers callbacks invoked when the renderer comes
// up and when it is destroyed. Compositors use these to toggle external
// state that must only exist while the blitter owns the outputs.
func WithActivationHooks(onActivate, onDeactivate func()) Option {
	return func(o *options) {
		o.onActivate = onActivate
		o.onDeactivate = onDeactivate
	}
}
