package blit

import "github.com/gogpu/blit/hal"

// Transform is a buffer or output orientation: a counter-clockwise rotation
// in 90-degree steps, optionally combined with a horizontal flip. The
// ordinals match the Wayland wl_output.transform values.
type Transform uint8

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// Size converts a logical width/height pair under the transform: 90/270
// variants swap the dimensions, everything else (including plain flips)
// leaves them unchanged.
func (t Transform) Size(w, h int32) (int32, int32) {
	switch t {
	case Transform90, Transform270, TransformFlipped90, TransformFlipped270:
		return h, w
	}
	return w, h
}

// rotationTable maps (view transform, output transform) to the single
// hardware rotation that composes the view's rotation with the inverse of
// the output's. The hardware rotation enum runs opposite to the transform
// direction, so a 90-degree view transform lands on Rot270. Flipped
// transforms resolve to no rotation.
var rotationTable = [4][4]hal.Rotation{
	{hal.Rot0, hal.Rot90, hal.Rot180, hal.Rot270},
	{hal.Rot270, hal.Rot0, hal.Rot90, hal.Rot180},
	{hal.Rot180, hal.Rot270, hal.Rot0, hal.Rot90},
	{hal.Rot90, hal.Rot180, hal.Rot270, hal.Rot0},
}

// ResolveRotation composes a view's buffer transform with an output
// transform into the rotation the blit engine applies. The result is always
// one of the four cardinal rotations; unknown combinations are never fatal
// and fall back to no rotation.
func ResolveRotation(view, output Transform) hal.Rotation {
	if view > Transform270 || output > Transform270 {
		return hal.Rot0
	}
	return rotationTable[view][output]
}

// remapRect re-expresses a rect given in the output's logical orientation
// in the destination framebuffer's orientation. Applied to destination and
// scissor rects after the multi-output origin offset has been subtracted.
func remapRect(fbWidth, fbHeight int32, t Transform, r Rect) Rect {
	tmp := r
	switch t {
	case Transform270:
		r.Right = fbWidth - tmp.Top
		r.Left = r.Right - tmp.Height()
		r.Top = tmp.Left
		r.Bottom = r.Top + tmp.Width()
	case Transform90:
		r.Left = tmp.Top
		r.Right = r.Left + tmp.Height()
		r.Bottom = fbHeight - tmp.Left
		r.Top = r.Bottom - tmp.Width()
	case Transform180:
		r.Left = fbWidth - tmp.Right
		r.Right = r.Left + tmp.Width()
		r.Bottom = fbHeight - tmp.Top
		r.Top = r.Bottom - tmp.Height()
	}
	return r
}
