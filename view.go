package blit

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/blit/hal"
)

// SHMFormat tags the pixel layout of a shared-memory buffer, using the
// wl_shm naming convention (byte order is little-endian word order).
type SHMFormat uint32

const (
	SHMFormatXRGB8888 SHMFormat = iota
	SHMFormatARGB8888
	SHMFormatRGB565
	SHMFormatYUYV
	SHMFormatNV12
	SHMFormatYUV420
)

// Buffer is the content a compositor attaches to a surface. The core
// references buffers, it never owns their backing memory.
type Buffer interface {
	// Dimensions returns the buffer size in pixels.
	Dimensions() (width, height int32)
}

// SHMBuffer is a client buffer in shared host memory. The core uploads it
// into a device-addressable staging buffer on damage flush.
type SHMBuffer struct {
	Width, Height int32
	// Stride is the plane-0 row pitch in bytes.
	Stride int32
	Format SHMFormat
	Data   []byte
}

// Dimensions returns the buffer size in pixels.
func (b *SHMBuffer) Dimensions() (int32, int32) { return b.Width, b.Height }

// DMABuffer is a DMA-backed buffer whose planes have already been resolved
// to device addresses by the importing collaborator.
type DMABuffer struct {
	Width, Height int32
	Format        hal.Format
	Tiling        hal.Tiling
	Planes        [3]uint64
	// Stride is the plane-0 row pitch in pixels.
	Stride int32
}

// Dimensions returns the buffer size in pixels.
func (b *DMABuffer) Dimensions() (int32, int32) { return b.Width, b.Height }

// ExternalBuffer is a GPU-opaque buffer produced outside the blitter, for
// example by a client rendering through the GPU stack. Its content and
// metadata may change out-of-band, so Refresh is invoked before every read
// and the surface descriptor is re-derived from the fields afterwards.
type ExternalBuffer struct {
	Width, Height int32
	// Format is the texture format the producing GPU stack reports; the
	// core maps it to the blitter's native format on attach.
	Format gputypes.TextureFormat
	Tiling hal.Tiling
	Planes [3]uint64
	// Stride is the plane-0 row pitch in pixels (the aligned width).
	Stride     int32
	TileStatus hal.TileStatus

	// Refresh synchronizes the fields above with the producer's current
	// state. Optional.
	Refresh func() error
}

// Dimensions returns the buffer size in pixels.
func (b *ExternalBuffer) Dimensions() (int32, int32) { return b.Width, b.Height }

// SolidBuffer is a single-color buffer. Non-alpha-capable solids are drawn
// with hardware clears instead of blits.
type SolidBuffer struct {
	Width, Height int32
	// R, G, B, A are the color components in [0, 1].
	R, G, B, A float32
	// AlphaFormat reports whether the underlying format carries alpha.
	// The hardware clear cannot write alpha, so alpha-capable solids take
	// the blit path.
	AlphaFormat bool
}

// Dimensions returns the buffer size in pixels.
func (b *SolidBuffer) Dimensions() (int32, int32) { return b.Width, b.Height }

// SourceRect is a fractional sample rectangle in buffer coordinates,
// pre-scale, as set by a buffer viewport.
type SourceRect struct {
	X, Y, Width, Height float64
}

// Surface is one client surface. It is owned by the compositor; the core
// keeps per-surface renderer state alive only while both the surface and
// the renderer exist.
type Surface struct {
	// Width and Height are the surface-local logical size.
	Width, Height int32

	// Opaque is the surface-local region known to be fully opaque.
	Opaque Region

	// Damage accumulates surface-local damage since the last flush.
	Damage Region

	// BufferTransform is the orientation of the attached buffer relative
	// to the surface.
	BufferTransform Transform

	// BufferScale is the integer buffer scale. Zero means 1.
	BufferScale int32

	// Source is the optional viewport sample rectangle.
	Source *SourceRect

	// AcquireFence is a file descriptor that signals when the buffer
	// producer has finished writing, or -1. NewSurface initializes it.
	AcquireFence int

	// Release, when non-nil, receives a dup of the completion fence for
	// each repaint the surface participates in.
	Release *hal.FenceRef

	destroyListeners map[int]func()
	nextListenerID   int
}

// NewSurface creates a surface of the given logical size.
func NewSurface(width, height int32) *Surface {
	return &Surface{
		Width:        width,
		Height:       height,
		AcquireFence: -1,
	}
}

// Destroy notifies all registered owners that the surface is going away.
// Renderer state attached to the surface is torn down exactly once, no
// matter whether the surface or the renderer is destroyed first.
func (s *Surface) Destroy() {
	for _, fn := range s.destroyListeners {
		fn()
	}
	s.destroyListeners = nil
}

// addDestroyListener registers fn to run on Destroy and returns a handle
// for removeDestroyListener.
func (s *Surface) addDestroyListener(fn func()) int {
	if s.destroyListeners == nil {
		s.destroyListeners = make(map[int]func())
	}
	s.nextListenerID++
	id := s.nextListenerID
	s.destroyListeners[id] = fn
	return id
}

func (s *Surface) removeDestroyListener(id int) {
	delete(s.destroyListeners, id)
}

// View is one on-screen placement of a surface's buffer. Views are owned by
// the compositor and handed to RepaintOutput back-to-front.
type View struct {
	Surface *Surface

	// Transform maps surface-local coordinates to global coordinates.
	Transform Matrix

	// TransformEnabled selects the general polygon clip path. When false
	// the view is axis-aligned and the cheap edge-clamp path is legal.
	TransformEnabled bool

	// Alpha is the view opacity in [0, 1].
	Alpha float64

	// Bounds is the view's bounding box in global coordinates.
	Bounds Rect

	// Clip is subtracted from the view's repaint region (global
	// coordinates): the parts of the view occluded by opaque content
	// above it.
	Clip Region

	// Scissor optionally restricts the view to a surface-local region.
	Scissor *Region
}
