package blit

import (
	"errors"
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/blit/hal"
	"github.com/gogpu/blit/internal/clip"
)

// fixedTrunc converts a coordinate to int through the 24.8 fixed-point
// protocol representation: round to the nearest 1/256 with ties to even,
// then truncate toward zero.
func fixedTrunc(v float64) int32 {
	f := int32(math.RoundToEven(v * 256))
	return f / 256
}

// drawView composites one view's contribution to the damaged part of the
// output. The opaque part of the surface is drawn without blending, the
// rest with blending; a view alpha below 1 additionally modulates the
// source by a global alpha.
func (r *Renderer) drawView(o *Output, v *View, damage Region) {
	st := r.stateFor(v.Surface)
	s := v.Surface

	repaint := NewRegion1(v.Bounds).Intersect(damage).Subtract(v.Clip)
	if repaint.Empty() {
		return
	}

	if v.Alpha < 1 && v.TransformEnabled && r.opts.skipTranslucentXform {
		Logger().Debug("skipping translucent transformed view", "alpha", v.Alpha)
		return
	}

	if err := r.ensureBufferReady(st); err != nil {
		Logger().Warn("surface buffer not ready", "error", err)
		return
	}

	// Blended part is the whole surface minus the opaque region, both in
	// surface coordinates and both restricted by the scissor if set.
	blend := NewRegion1(Rect{Left: 0, Top: 0, Right: s.Width, Bottom: s.Height})
	opaque := s.Opaque
	if v.Scissor != nil {
		blend = blend.Intersect(*v.Scissor)
		opaque = opaque.Intersect(*v.Scissor)
	}
	blend = blend.Subtract(s.Opaque)

	globalAlpha := v.Alpha < 1

	if !opaque.Empty() {
		if globalAlpha {
			r.enable(hal.CapBlend)
			r.enable(hal.CapGlobalAlpha)
			st.desc.GlobalAlpha = uint8(v.Alpha * 0xFF)
		}
		r.repaintRegion(o, v, st, repaint, opaque)
		r.disable(hal.CapGlobalAlpha)
		r.disable(hal.CapBlend)
	}

	if !blend.Empty() {
		r.enable(hal.CapBlend)
		if globalAlpha {
			r.enable(hal.CapGlobalAlpha)
			st.desc.GlobalAlpha = uint8(v.Alpha * 0xFF)
		}
		r.repaintRegion(o, v, st, repaint, blend)
		r.disable(hal.CapGlobalAlpha)
		r.disable(hal.CapBlend)
	}
}

// ensureBufferReady makes the surface's content safe to sample: external
// buffers are refreshed and their descriptor re-derived, and the acquire
// fence, if any, is waited for. A fence that misses the timeout is logged
// and then waited for without limit.
func (r *Renderer) ensureBufferReady(st *surfaceState) error {
	if st.buffer == nil {
		return nil
	}
	if ext, ok := st.buffer.(*ExternalBuffer); ok {
		if ext.Refresh != nil {
			if err := ext.Refresh(); err != nil {
				return err
			}
		}
		if err := st.refreshExternal(ext); err != nil {
			return err
		}
	}

	s := st.surface
	if s.AcquireFence < 0 {
		return nil
	}
	err := hal.WaitFD(s.AcquireFence, r.opts.acquireTimeout)
	if errors.Is(err, hal.ErrFenceTimeout) {
		Logger().Warn("wait for acquire fence", "fd", s.AcquireFence)
		err = hal.WaitFD(s.AcquireFence, -1)
	}
	return err
}

// repaintRegion draws the intersection of a global-coordinate repaint
// region with a surface-coordinate content region, one damage-rect by
// surface-rect pair at a time. Each pair yields a clip rectangle on the
// destination; the source and destination rects of the blit itself are
// computed once from the view's bounding box.
func (r *Renderer) repaintRegion(o *Output, v *View, st *surfaceState, region, surfRegion Region) {
	s := v.Surface
	dst := o.target

	if !st.solid {
		if st.desc.Width <= 0 || st.desc.Height <= 0 {
			return
		}
	}

	bb := v.Bounds
	if !st.attached && !st.solid {
		return
	}
	if bb.Empty() {
		return
	}

	scale := s.BufferScale
	if scale <= 0 {
		scale = 1
	}

	// Sample rect: the viewport source when one is set and sane, else the
	// descriptor's full rect.
	srcRect := st.desc.Rect
	if s.Source != nil {
		srcX := fixedTrunc(s.Source.X)
		srcY := fixedTrunc(s.Source.Y)
		srcW, srcH := s.BufferTransform.Size(fixedTrunc(s.Source.Width), fixedTrunc(s.Source.Height))
		if srcW > 0 && srcX >= 0 && srcY >= 0 && srcX < st.desc.Width && srcY < st.desc.Height {
			srcRect = Rect{
				Left:   srcX * scale,
				Top:    srcY * scale,
				Right:  min(st.desc.Width, (srcX+srcW)*scale),
				Bottom: min(st.desc.Height, (srcY+srcH)*scale),
			}
		}
	}

	fbWidth, fbHeight := dst.Width, dst.Height

	// Destination rect, computed once from the bounding box: shifted into
	// this output's space, then remapped to the framebuffer orientation.
	dstRect := bb
	if o.x > 0 {
		dstRect.Left -= o.x
		dstRect.Right -= o.x
	}
	dstRect = remapRect(fbWidth, fbHeight, o.transform, dstRect)

	srcDesc := st.desc
	srcDesc.Rotation = ResolveRotation(s.BufferTransform, o.transform)
	clipBlitRects(srcDesc.Rotation, &srcRect, &dstRect, fbWidth, fbHeight)

	for _, rect := range region.Rects() {
		for _, surfRect := range surfRegion.Rects() {
			poly := calculateEdges(v, rect, surfRect)
			if len(poly) < 3 {
				continue
			}

			minX, maxX := poly[0].X, poly[0].X
			minY, maxY := poly[0].Y, poly[0].Y
			for _, p := range poly[1:] {
				minX = math.Min(minX, p.X)
				maxX = math.Max(maxX, p.X)
				minY = math.Min(minY, p.Y)
				maxY = math.Max(maxY, p.Y)
			}

			clipRect := Rect{
				Left:   fixedTrunc(minX),
				Top:    fixedTrunc(minY),
				Right:  fixedTrunc(maxX),
				Bottom: fixedTrunc(maxY),
			}
			if o.x > 0 {
				clipRect.Left -= o.x
				clipRect.Right -= o.x
			}
			clipRect = remapRect(fbWidth, fbHeight, o.transform, clipRect)
			if clipRect.Left >= clipRect.Right || clipRect.Top >= clipRect.Bottom {
				return
			}
			if err := r.dev.SetClip(clipRect); err != nil {
				Logger().Warn("set clip", "rect", clipRect, "error", err)
				return
			}

			// The engine's clear cannot write alpha, so alpha-capable
			// solids take the blit path.
			if st.solid && !st.alphaFormat {
				r.clearSolid(dst, clipRect, st.clearColor)
			} else {
				r.blitSurface(&srcDesc, dst, srcRect, dstRect)
			}
		}
	}
}

// calculateEdges intersects the global-coordinate rect with the
// quadrilateral produced by mapping surfRect through the view transform.
// It returns the vertices of the intersection in clockwise winding, or
// fewer than three vertices when the intersection is degenerate.
func calculateEdges(v *View, rect, surfRect Rect) []clip.Point {
	corners := [4]Point{
		{X: float64(surfRect.Left), Y: float64(surfRect.Top)},
		{X: float64(surfRect.Right), Y: float64(surfRect.Top)},
		{X: float64(surfRect.Right), Y: float64(surfRect.Bottom)},
		{X: float64(surfRect.Left), Y: float64(surfRect.Bottom)},
	}
	var quad [4]clip.Point
	for i, c := range corners {
		p := v.Transform.TransformPoint(c)
		quad[i] = clip.Point{X: p.X, Y: p.Y}
	}

	cr := clip.Rect{
		X1: float64(rect.Left),
		Y1: float64(rect.Top),
		X2: float64(rect.Right),
		Y2: float64(rect.Bottom),
	}

	minX, maxX := quad[0].X, quad[0].X
	minY, maxY := quad[0].Y, quad[0].Y
	for _, p := range quad[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	if minX >= cr.X2 || maxX <= cr.X1 || minY >= cr.Y2 || maxY <= cr.Y1 {
		return nil
	}

	if !v.TransformEnabled {
		return clip.Simple(cr, quad[:])
	}
	return clip.Polygon(cr, quad[:])
}

// clipBlitRects clamps the destination rect to the framebuffer and walks
// the source rect back by the corresponding scaled amount, honoring the
// rotation between the two. Adjustments floor toward smaller sources;
// rects that degenerate on the way abort further clipping.
func clipBlitRects(rot hal.Rotation, src, dst *Rect, fbWidth, fbHeight int32) {
	srcW := src.Width()
	srcH := src.Height()

	var scaleH, scaleV float32
	if rot == hal.Rot90 || rot == hal.Rot270 {
		scaleH = float32(srcH) / float32(dst.Width())
		scaleV = float32(srcW) / float32(dst.Height())
	} else {
		scaleH = float32(srcW) / float32(dst.Width())
		scaleV = float32(srcH) / float32(dst.Height())
	}

	floorScaled := func(d int32, scale float32) int32 {
		return int32(math32.Floor(float32(d) * scale))
	}

	switch rot {
	case hal.Rot0:
		if dst.Left < 0 {
			src.Left += floorScaled(-dst.Left, scaleH)
			dst.Left = 0
			if src.Left >= src.Right {
				return
			}
		}
		if dst.Right > fbWidth {
			src.Right -= floorScaled(dst.Right-fbWidth, scaleH)
			dst.Right = fbWidth
			if src.Right <= src.Left {
				return
			}
		}
		if dst.Top < 0 {
			src.Top += floorScaled(-dst.Top, scaleV)
			dst.Top = 0
			if src.Top >= src.Bottom {
				return
			}
		}
		if dst.Bottom > fbHeight {
			src.Bottom -= floorScaled(dst.Bottom-fbHeight, scaleV)
			dst.Bottom = fbHeight
			if src.Bottom < 0 {
				return
			}
		}
	case hal.Rot270:
		if dst.Left < 0 {
			src.Bottom -= floorScaled(-dst.Left, scaleH)
			dst.Left = 0
			if src.Top >= src.Bottom {
				return
			}
		}
		if dst.Bottom > fbHeight {
			src.Right -= floorScaled(dst.Bottom-fbHeight, scaleV)
			dst.Bottom = fbHeight
			if src.Right < 0 {
				return
			}
		}
		if dst.Top < 0 {
			src.Left += floorScaled(-dst.Top, scaleV)
			dst.Top = 0
			if src.Left > src.Right {
				return
			}
		}
		if dst.Right > fbWidth {
			src.Top += floorScaled(dst.Right-fbWidth, scaleH)
			dst.Right = fbWidth
			if src.Top >= src.Bottom {
				return
			}
		}
	case hal.Rot90:
		if dst.Left < 0 {
			src.Top += floorScaled(-dst.Left, scaleH)
			dst.Left = 0
			if src.Top >= src.Bottom {
				return
			}
		}
		if dst.Top < 0 {
			src.Right -= floorScaled(-dst.Top, scaleV)
			dst.Top = 0
			if src.Left >= src.Right {
				return
			}
		}
		if dst.Bottom > fbHeight {
			src.Left += floorScaled(dst.Bottom-fbHeight, scaleV)
			dst.Bottom = fbHeight
			if src.Right <= src.Left {
				return
			}
		}
		if dst.Right > fbWidth {
			src.Bottom -= floorScaled(dst.Right-fbWidth, scaleH)
			dst.Right = fbWidth
			if src.Bottom <= src.Top {
				return
			}
		}
	case hal.Rot180:
		if dst.Left < 0 {
			src.Right -= floorScaled(-dst.Left, scaleH)
			dst.Left = 0
			if src.Left >= src.Right {
				return
			}
		}
		if dst.Right > fbWidth {
			src.Left += floorScaled(dst.Right-fbWidth, scaleH)
			dst.Right = fbWidth
			if src.Right <= src.Left {
				return
			}
		}
		if dst.Top < 0 {
			src.Bottom -= floorScaled(-dst.Top, scaleV)
			dst.Top = 0
			if src.Top >= src.Bottom {
				return
			}
		}
		if dst.Bottom > fbHeight {
			src.Top += floorScaled(dst.Bottom-fbHeight, scaleV)
			dst.Bottom = fbHeight
			if src.Top >= src.Bottom {
				return
			}
		}
	}
}

// blitSurface performs one engine blit. Sources without an alpha channel
// drop per-pixel blending for the duration of the operation.
func (r *Renderer) blitSurface(src, dst *hal.Surface, srcRect, dstRect Rect) {
	src.SetRect(srcRect)
	dst.SetRect(dstRect)
	if !src.Format.HasAlpha() {
		r.disable(hal.CapBlend)
	}
	if err := r.dev.Blit(src, dst); err != nil {
		logSurface("blit source", src)
		logSurface("blit destination", dst)
	}
}

// clearSolid fills rect with a solid color through the engine clear.
func (r *Renderer) clearSolid(dst *hal.Surface, rect Rect, color uint32) {
	dst.SetRect(rect)
	dst.ClearColor = color
	if err := r.dev.Clear(dst); err != nil {
		logSurface("clear destination", dst)
	}
}

func logSurface(msg string, s *hal.Surface) {
	Logger().Error(msg+" failed",
		"plane0", s.Planes[0],
		"rect", s.Rect,
		"stride", s.Stride,
		"tiling", s.Tiling,
		"format", s.Format,
		"rotation", s.Rotation)
}
