package blit

import (
	"fmt"

	"github.com/gogpu/blit/hal"
)

// ReadPixels copies a rectangle of the output's composited framebuffer
// into dst, tightly packed rows in the given format. The framebuffer is
// sampled bottom-up, so the engine flips vertically during the readback
// blit. Blocks until the copy has completed.
func (r *Renderer) ReadPixels(o *Output, format hal.Format, dst []byte, x, y, width, height int32) error {
	if r.destroyed || o.destroyed {
		return ErrDestroyed
	}
	if o.target == nil {
		return ErrNoTarget
	}
	if format == hal.FormatInvalid {
		return hal.ErrUnsupportedFormat
	}

	buf, err := r.dev.Alloc(int(width) * int(height) * 4)
	if err != nil {
		return fmt.Errorf("blit: alloc readback buffer: %w", err)
	}

	read := hal.Surface{
		Planes:   [3]uint64{buf.Phys},
		Format:   format,
		Width:    width,
		Height:   height,
		Stride:   width,
		Rotation: hal.FlipV,
	}
	read.SetRect(Rect{Left: 0, Top: 0, Right: width, Bottom: height})

	src := *o.target
	src.SetRect(Rect{Left: x, Top: y, Right: x + width, Bottom: y + height})

	// The clip still points at the last repaint rect; widen it to the
	// whole read target.
	if err := r.dev.SetClip(Rect{Left: 0, Top: 0, Right: width, Bottom: height}); err != nil {
		Logger().Warn("set readback clip", "error", err)
	}

	// Readback swaps the usual roles: the framebuffer is the source and
	// the rotation lives on the destination descriptor.
	if err := r.dev.Blit(&src, &read); err != nil {
		if ferr := r.dev.Free(buf); ferr != nil {
			Logger().Warn("free readback buffer", "error", ferr)
		}
		return fmt.Errorf("blit: readback: %w", err)
	}
	if err := r.dev.Finish(); err != nil {
		if ferr := r.dev.Free(buf); ferr != nil {
			Logger().Warn("free readback buffer", "error", ferr)
		}
		return fmt.Errorf("blit: finish readback: %w", err)
	}

	n := int(width) * int(height) * format.BytesPerPixel()
	copy(dst, buf.Data[:n])

	if err := r.dev.Free(buf); err != nil {
		Logger().Warn("free readback buffer", "error", err)
	}
	return nil
}

// serviceCaptures retires every capture task queued on the output against
// the frame just composited. Each task is retired exactly once, completed
// or failed.
func (r *Renderer) serviceCaptures(o *Output) {
	if len(o.captures) == 0 {
		return
	}
	tasks := o.captures
	o.captures = nil

	for _, t := range tasks {
		err := r.doCapture(o, t)
		if err != nil {
			Logger().Warn("capture failed", "source", t.Source, "error", err)
		}
		t.retire(err)
	}
}

// doCapture reads the output's visible area back into one task's
// shared-memory destination. Only framebuffer sources and 32-bit
// destinations with a 4-byte-aligned stride can be serviced; the
// framebuffer's bottom-up storage means the area is addressed y-flipped
// and the rows are written out in reverse.
func (r *Renderer) doCapture(o *Output, t *CaptureTask) error {
	fbHeight := o.target.Height
	area := o.area

	var rect Rect
	switch t.Source {
	case CaptureFramebuffer:
		rect = area
		flippedTop := fbHeight - area.Top - area.Height()
		rect.Top = flippedTop
		rect.Bottom = flippedTop + area.Height()
	default:
		return fmt.Errorf("%w: source %d", ErrUnsupportedCapture, t.Source)
	}

	dest := t.Dest
	if dest == nil {
		return fmt.Errorf("%w: no destination buffer", ErrUnsupportedCapture)
	}
	if dest.Width != area.Width() || dest.Height != area.Height() {
		return fmt.Errorf("%w: destination is %dx%d, the visible area is %dx%d",
			ErrUnsupportedCapture, dest.Width, dest.Height, area.Width(), area.Height())
	}

	format, bpp, _, ok := shmLayout(dest.Format)
	if !ok || bpp != 4 {
		return fmt.Errorf("%w: destination format %d", ErrUnsupportedCapture, dest.Format)
	}
	if dest.Stride%4 != 0 {
		return fmt.Errorf("%w: stride %d not 4-byte aligned", ErrUnsupportedCapture, dest.Stride)
	}

	width, height := rect.Width(), rect.Height()
	tmp := make([]byte, int(width)*int(height)*4)
	if err := r.ReadPixels(o, format, tmp, rect.Left, rect.Top, width, height); err != nil {
		return err
	}

	rowLen := width * 4
	for y := int32(0); y < height; y++ {
		srcOff := (height - 1 - y) * rowLen
		dstOff := y * dest.Stride
		copy(dest.Data[dstOff:dstOff+rowLen], tmp[srcOff:srcOff+rowLen])
	}
	return nil
}
