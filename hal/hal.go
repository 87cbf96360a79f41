// Package hal abstracts the fixed-function 2D blit engine consumed by the
// compositing core. A Device can copy axis-aligned rectangles between
// surfaces with rotation, scaling and blending, fill rectangles with a solid
// color, and fence completion of submitted work. Implementations are
// registered by name (see registry.go); the core opens one at renderer
// creation and never talks to display or buffer-allocation APIs itself.
package hal

import "errors"

// Common device errors.
var (
	// ErrNotAvailable is returned when a requested device is not registered.
	ErrNotAvailable = errors.New("hal: device not available")

	// ErrUnsupportedFormat is returned for a pixel format the device cannot
	// sample from or write to.
	ErrUnsupportedFormat = errors.New("hal: unsupported pixel format")

	// ErrNoFence is returned by CreateFence on devices without completion
	// fence support. Callers fall back to a blocking Finish.
	ErrNoFence = errors.New("hal: completion fences not supported")

	// ErrClosed is returned when operations are called after Close.
	ErrClosed = errors.New("hal: device closed")
)

// Rect is an axis-aligned rectangle in pixel coordinates. Right and Bottom
// are exclusive. A Rect with Right <= Left or Bottom <= Top is empty;
// operations tolerate inverted rects and treat them as empty.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// NewRect creates a Rect from a position and size.
func NewRect(x, y, w, h int32) Rect {
	return Rect{Left: x, Top: y, Right: x + w, Bottom: y + h}
}

// Width returns the horizontal extent of the rect.
func (r Rect) Width() int32 { return r.Right - r.Left }

// Height returns the vertical extent of the rect.
func (r Rect) Height() int32 { return r.Bottom - r.Top }

// Empty reports whether the rect covers no pixels.
func (r Rect) Empty() bool { return r.Right <= r.Left || r.Bottom <= r.Top }

// Intersect returns the intersection of two rects. The result is empty if
// they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	if o.Left > r.Left {
		r.Left = o.Left
	}
	if o.Top > r.Top {
		r.Top = o.Top
	}
	if o.Right < r.Right {
		r.Right = o.Right
	}
	if o.Bottom < r.Bottom {
		r.Bottom = o.Bottom
	}
	return r
}

// Contains reports whether o lies entirely within r. An empty o is contained
// in any rect.
func (r Rect) Contains(o Rect) bool {
	if o.Empty() {
		return true
	}
	return o.Left >= r.Left && o.Top >= r.Top && o.Right <= r.Right && o.Bottom <= r.Bottom
}

// Translate returns the rect shifted by (dx, dy).
func (r Rect) Translate(dx, dy int32) Rect {
	return Rect{Left: r.Left + dx, Top: r.Top + dy, Right: r.Right + dx, Bottom: r.Bottom + dy}
}

// Format identifies a pixel format the blit engine understands. The byte
// order in the name is memory order.
type Format uint32

const (
	FormatInvalid Format = iota
	FormatRGB565
	FormatBGR565
	FormatRGBA8888
	FormatRGBX8888
	FormatBGRA8888
	FormatBGRX8888
	FormatARGB8888
	FormatABGR8888
	FormatXRGB8888
	FormatXBGR8888
	FormatNV12
	FormatI420
	FormatYV12
	FormatYUYV
)

// HasAlpha reports whether the format carries an alpha channel the engine
// blends with.
func (f Format) HasAlpha() bool {
	switch f {
	case FormatRGBA8888, FormatBGRA8888, FormatARGB8888, FormatABGR8888:
		return true
	}
	return false
}

// BytesPerPixel returns the bytes per pixel of the first plane.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGB565, FormatBGR565, FormatYUYV:
		return 2
	case FormatNV12, FormatI420, FormatYV12:
		return 1
	case FormatInvalid:
		return 0
	}
	return 4
}

// String returns the format name for diagnostics.
func (f Format) String() string {
	switch f {
	case FormatRGB565:
		return "RGB565"
	case FormatBGR565:
		return "BGR565"
	case FormatRGBA8888:
		return "RGBA8888"
	case FormatRGBX8888:
		return "RGBX8888"
	case FormatBGRA8888:
		return "BGRA8888"
	case FormatBGRX8888:
		return "BGRX8888"
	case FormatARGB8888:
		return "ARGB8888"
	case FormatABGR8888:
		return "ABGR8888"
	case FormatXRGB8888:
		return "XRGB8888"
	case FormatXBGR8888:
		return "XBGR8888"
	case FormatNV12:
		return "NV12"
	case FormatI420:
		return "I420"
	case FormatYV12:
		return "YV12"
	case FormatYUYV:
		return "YUYV"
	}
	return "invalid"
}

// Tiling describes the memory layout of a surface's pixel data.
type Tiling uint32

const (
	TilingLinear Tiling = iota
	TilingVendor
	TilingSplitVendor
	TilingAmphion
)

// TileStatus carries the fast-clear metadata block some tiled surfaces
// attach to their pixel data.
type TileStatus struct {
	Enabled    bool
	Addr       uint64
	FastClear  bool
	Value      uint32
	ValueUpper uint32
}

// Rotation selects how the engine reorients source pixels during a blit.
type Rotation uint8

const (
	Rot0 Rotation = iota
	Rot90
	Rot180
	Rot270
	FlipH
	FlipV
)

// String returns the rotation name for diagnostics.
func (r Rotation) String() string {
	switch r {
	case Rot0:
		return "0"
	case Rot90:
		return "90"
	case Rot180:
		return "180"
	case Rot270:
		return "270"
	case FlipH:
		return "flip-h"
	case FlipV:
		return "flip-v"
	}
	return "invalid"
}

// Capability is a toggleable engine feature.
type Capability uint8

const (
	// CapBlend enables per-pixel source-over blending.
	CapBlend Capability = iota
	// CapGlobalAlpha modulates the source by Surface.GlobalAlpha.
	CapGlobalAlpha
)

// Surface describes one blittable image: where its planes live, how they are
// laid out, and which sub-rectangle the next operation reads or writes.
// It is a plain descriptor; the pixel memory itself is owned elsewhere.
type Surface struct {
	Format Format
	Tiling Tiling

	// Planes holds up to three device addresses, one per pixel plane.
	Planes [3]uint64

	// Rect is the sample (source) or write (destination) rectangle of the
	// next operation, in pixels.
	Rect Rect

	// Stride is the plane-0 row pitch in pixels, not bytes.
	Stride int32

	Width  int32
	Height int32

	// Rotation applies to this surface when used as a blit source.
	Rotation Rotation

	// ClearColor is the packed fill color used by Clear.
	ClearColor uint32

	// GlobalAlpha modulates the source when CapGlobalAlpha is enabled.
	GlobalAlpha uint8

	TileStatus TileStatus
}

// SetRect sets the operation rectangle.
func (s *Surface) SetRect(r Rect) { s.Rect = r }

// Buffer is a device-addressable allocation returned by Device.Alloc.
// Data aliases the allocation when the device memory is host-visible.
type Buffer struct {
	Phys uint64
	Data []byte
	Size int
}

// Device is the hardware-service interface the compositing core draws
// through. All calls are issued from a single goroutine; implementations
// need not be safe for concurrent use.
//
// Blit and Clear failures are reported to the caller and must leave the
// device usable for subsequent operations.
type Device interface {
	// Name returns the device identifier (e.g. "g2d", "software").
	Name() string

	// Blit copies src.Rect into dst.Rect, applying src.Rotation, scaling
	// when the rects differ in size, and blending per the enabled
	// capabilities. Both rects must lie within their surfaces.
	Blit(src, dst *Surface) error

	// Clear fills dst.Rect with dst.ClearColor.
	Clear(dst *Surface) error

	// SetClip restricts subsequent draws to r in destination coordinates.
	SetClip(r Rect) error

	// Enable turns on a capability until the matching Disable.
	Enable(c Capability) error

	// Disable turns off a capability.
	Disable(c Capability) error

	// Finish blocks until all submitted operations have completed.
	Finish() error

	// CreateFence returns a file descriptor that signals when all
	// operations submitted so far have completed, or ErrNoFence.
	CreateFence() (int, error)

	// Alloc returns a device-addressable buffer of at least size bytes.
	Alloc(size int) (*Buffer, error)

	// Free releases a buffer returned by Alloc.
	Free(b *Buffer) error

	// Close releases the device. The device must not be used afterwards.
	Close() error
}
