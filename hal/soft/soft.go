// Package soft provides a pure-software hal.Device built on the image
// libraries. It exists so the compositing core runs, and is testable, on
// machines without the blit hardware; import it for its registration side
// effect:
//
//	import _ "github.com/gogpu/blit/hal/soft"
//
// Device memory is plain host memory behind synthetic device addresses, and
// completion is always synchronous, so the device has no fence support.
package soft

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/blit/hal"
)

func init() {
	hal.Register(hal.DeviceSoftware, func() (hal.Device, error) {
		return New(), nil
	})
}

// physBase keeps synthetic addresses out of the low range so a zero plane
// address never resolves to a buffer.
const physBase = 0x10000

// Device implements hal.Device in software. Not safe for concurrent use.
type Device struct {
	buffers  map[uint64]*hal.Buffer
	nextPhys uint64

	clip    hal.Rect
	clipSet bool

	blend       bool
	globalAlpha bool

	logger *slog.Logger
	closed bool
}

// New creates a software device.
func New() *Device {
	return &Device{
		buffers:  make(map[uint64]*hal.Buffer),
		nextPhys: physBase,
		logger:   slog.New(slog.DiscardHandler),
	}
}

// SetLogger routes the device's diagnostics to l.
func (d *Device) SetLogger(l *slog.Logger) {
	if l != nil {
		d.logger = l
	}
}

// Name returns "software".
func (d *Device) Name() string { return hal.DeviceSoftware }

// Alloc returns a host-memory buffer behind a synthetic device address.
func (d *Device) Alloc(size int) (*hal.Buffer, error) {
	if d.closed {
		return nil, hal.ErrClosed
	}
	if size <= 0 {
		return nil, fmt.Errorf("soft: invalid allocation size %d", size)
	}
	b := &hal.Buffer{
		Phys: d.nextPhys,
		Data: make([]byte, size),
		Size: size,
	}
	d.buffers[b.Phys] = b
	// Keep allocations disjoint in the synthetic address space.
	d.nextPhys += uint64((size + 0xFFF) &^ 0xFFF)
	return b, nil
}

// Free releases a buffer returned by Alloc.
func (d *Device) Free(b *hal.Buffer) error {
	if d.closed {
		return hal.ErrClosed
	}
	if b == nil {
		return nil
	}
	if _, ok := d.buffers[b.Phys]; !ok {
		return fmt.Errorf("soft: free of unknown buffer %#x", b.Phys)
	}
	delete(d.buffers, b.Phys)
	return nil
}

// ImportBuffer makes external host memory addressable by the device, for
// callers that build surface descriptors around memory the device did not
// allocate (framebuffers in tests, for example). The returned buffer's
// Phys goes into Surface.Planes.
func (d *Device) ImportBuffer(data []byte) *hal.Buffer {
	b := &hal.Buffer{
		Phys: d.nextPhys,
		Data: data,
		Size: len(data),
	}
	d.buffers[b.Phys] = b
	d.nextPhys += uint64((len(data) + 0xFFF) &^ 0xFFF)
	return b
}

// SetClip restricts subsequent draws to r.
func (d *Device) SetClip(r hal.Rect) error {
	if d.closed {
		return hal.ErrClosed
	}
	d.clip = r
	d.clipSet = true
	return nil
}

// Enable turns on a capability.
func (d *Device) Enable(c hal.Capability) error {
	return d.setCap(c, true)
}

// Disable turns off a capability.
func (d *Device) Disable(c hal.Capability) error {
	return d.setCap(c, false)
}

func (d *Device) setCap(c hal.Capability, on bool) error {
	if d.closed {
		return hal.ErrClosed
	}
	switch c {
	case hal.CapBlend:
		d.blend = on
	case hal.CapGlobalAlpha:
		d.globalAlpha = on
	default:
		return fmt.Errorf("soft: unknown capability %d", c)
	}
	return nil
}

// Finish is a no-op: every operation completes before returning.
func (d *Device) Finish() error {
	if d.closed {
		return hal.ErrClosed
	}
	return nil
}

// CreateFence always fails with ErrNoFence; completion is synchronous.
func (d *Device) CreateFence() (int, error) {
	if d.closed {
		return -1, hal.ErrClosed
	}
	return -1, hal.ErrNoFence
}

// Close releases all buffers.
func (d *Device) Close() error {
	if d.closed {
		return hal.ErrClosed
	}
	d.logger.Debug("software device closed", "buffers", len(d.buffers))
	d.closed = true
	d.buffers = nil
	return nil
}

// supported reports whether the device can touch a format. Only the
// single-plane 32-bit alpha-last layouts are implemented.
func supported(f hal.Format) bool {
	switch f {
	case hal.FormatRGBA8888, hal.FormatRGBX8888, hal.FormatBGRA8888, hal.FormatBGRX8888:
		return true
	}
	return false
}

// imageFor wraps a surface's plane-0 memory in an RGBA image. The channel
// order of BGRA-family surfaces is swapped relative to image.RGBA, which
// is harmless as long as source and destination agree: blending math is
// uniform across color channels and alpha stays in the last byte.
func (d *Device) imageFor(s *hal.Surface) (*image.RGBA, error) {
	if !supported(s.Format) {
		return nil, fmt.Errorf("soft: %v: %w", s.Format, hal.ErrUnsupportedFormat)
	}
	if s.Width <= 0 || s.Height <= 0 || s.Stride < s.Width {
		return nil, fmt.Errorf("soft: invalid surface %dx%d stride %d", s.Width, s.Height, s.Stride)
	}

	mem, off, err := d.resolve(s.Planes[0])
	if err != nil {
		return nil, err
	}
	stride := int(s.Stride) * 4
	need := off + stride*int(s.Height)
	if need > len(mem) {
		return nil, fmt.Errorf("soft: surface spans %d bytes past its buffer", need-len(mem))
	}
	return &image.RGBA{
		Pix:    mem[off:need],
		Stride: stride,
		Rect:   image.Rect(0, 0, int(s.Width), int(s.Height)),
	}, nil
}

// resolve maps a synthetic device address to the buffer containing it.
func (d *Device) resolve(phys uint64) (data []byte, off int, err error) {
	for _, b := range d.buffers {
		if phys >= b.Phys && phys < b.Phys+uint64(b.Size) {
			return b.Data, int(phys - b.Phys), nil
		}
	}
	return nil, 0, fmt.Errorf("soft: no buffer at address %#x", phys)
}

func toImageRect(r hal.Rect) image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
}

// Blit copies src.Rect into dst.Rect, rotating, scaling and blending as
// configured.
func (d *Device) Blit(src, dst *hal.Surface) error {
	if d.closed {
		return hal.ErrClosed
	}
	srcImg, err := d.imageFor(src)
	if err != nil {
		return err
	}
	dstImg, err := d.imageFor(dst)
	if err != nil {
		return err
	}

	srcRect := toImageRect(src.Rect)
	dstRect := toImageRect(dst.Rect)
	if srcRect.Empty() || dstRect.Empty() {
		return nil
	}

	// Reorient the source sub-image first, then scale the result onto the
	// destination rect.
	oriented := reorient(srcImg, srcRect, src.Rotation)

	tmp := image.NewRGBA(image.Rect(0, 0, dstRect.Dx(), dstRect.Dy()))
	xdraw.NearestNeighbor.Scale(tmp, tmp.Bounds(), oriented, oriented.Bounds(), xdraw.Src, nil)

	// Readback blits carry a flip on the destination descriptor.
	if dst.Rotation == hal.FlipV || dst.Rotation == hal.FlipH {
		tmp = reorient(tmp, tmp.Bounds(), dst.Rotation)
	}

	op := xdraw.Src
	if d.blend && src.Format.HasAlpha() {
		op = xdraw.Over
	}

	var mask image.Image
	if d.globalAlpha && src.GlobalAlpha < 0xFF {
		mask = image.NewUniform(color.Alpha{A: src.GlobalAlpha})
	}

	target := dstRect.Intersect(dstImg.Bounds())
	if d.clipSet {
		target = target.Intersect(toImageRect(d.clip))
	}
	if target.Empty() {
		return nil
	}
	offset := target.Min.Sub(dstRect.Min)
	xdraw.DrawMask(dstImg, target, tmp, offset, mask, image.Point{}, op)
	return nil
}

// reorient returns the content of rect within img, rotated or flipped per
// rot, as a standalone image anchored at the origin.
func reorient(img *image.RGBA, rect image.Rectangle, rot hal.Rotation) *image.RGBA {
	rect = rect.Intersect(img.Bounds())
	w, h := rect.Dx(), rect.Dy()

	ow, oh := w, h
	if rot == hal.Rot90 || rot == hal.Rot270 {
		ow, oh = h, w
	}
	out := image.NewRGBA(image.Rect(0, 0, ow, oh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(rect.Min.X+x, rect.Min.Y+y)
			var ox, oy int
			switch rot {
			case hal.Rot90:
				ox, oy = h-1-y, x
			case hal.Rot180:
				ox, oy = w-1-x, h-1-y
			case hal.Rot270:
				ox, oy = y, w-1-x
			case hal.FlipH:
				ox, oy = w-1-x, y
			case hal.FlipV:
				ox, oy = x, h-1-y
			default:
				ox, oy = x, y
			}
			out.SetRGBA(ox, oy, c)
		}
	}
	return out
}

// Clear fills dst.Rect with dst.ClearColor, honoring the clip. The packed
// color holds alpha in the top byte, then b, g, r.
func (d *Device) Clear(dst *hal.Surface) error {
	if d.closed {
		return hal.ErrClosed
	}
	dstImg, err := d.imageFor(dst)
	if err != nil {
		return err
	}

	target := toImageRect(dst.Rect).Intersect(dstImg.Bounds())
	if d.clipSet {
		target = target.Intersect(toImageRect(d.clip))
	}
	if target.Empty() {
		return nil
	}

	c := dst.ClearColor
	px := pixelBytes(dst.Format, uint8(c), uint8(c>>8), uint8(c>>16), uint8(c>>24))

	for y := target.Min.Y; y < target.Max.Y; y++ {
		row := dstImg.Pix[dstImg.PixOffset(target.Min.X, y):dstImg.PixOffset(target.Max.X, y)]
		for x := 0; x < len(row); x += 4 {
			copy(row[x:x+4], px[:])
		}
	}
	return nil
}

// pixelBytes lays one pixel out in the memory order of the format.
func pixelBytes(f hal.Format, r, g, b, a uint8) [4]byte {
	switch f {
	case hal.FormatBGRA8888:
		return [4]byte{b, g, r, a}
	case hal.FormatBGRX8888:
		return [4]byte{b, g, r, 0xFF}
	case hal.FormatRGBX8888:
		return [4]byte{r, g, b, 0xFF}
	}
	return [4]byte{r, g, b, a}
}
