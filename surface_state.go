package blit

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/blit/hal"
)

// alignTo16 rounds up to the next multiple of 16, the row alignment the
// blit engine requires for staging buffers.
func alignTo16(v int32) int32 { return (v + 15) &^ 15 }

// surfaceState is the per-surface renderer state, created lazily on first
// use and destroyed exactly once by whichever of the surface or the
// renderer is torn down first.
type surfaceState struct {
	r       *Renderer
	surface *Surface

	buffer   Buffer
	attached bool

	solid       bool
	color       [4]float32
	clearColor  uint32
	alphaFormat bool

	// desc is the hardware-surface descriptor for the attached buffer.
	desc hal.Surface

	// stage is the device-addressable staging buffer SHM content is
	// uploaded into. Reused across attaches while large enough.
	stage    *hal.Buffer
	stageLen int
	bpp      int32

	// texDamage accumulates surface damage between flushes.
	texDamage Region

	listenerID int
	destroyed  bool
}

// stateFor returns the renderer state for a surface, creating it on first
// access and registering the surface-side destroy listener.
func (r *Renderer) stateFor(s *Surface) *surfaceState {
	if st, ok := r.surfaces[s]; ok {
		return st
	}
	st := &surfaceState{r: r, surface: s}
	st.listenerID = s.addDestroyListener(st.destroy)
	r.surfaces[s] = st
	return st
}

// destroy tears the state down. Idempotent: the second owner's
// notification, if it still arrives, is a no-op.
func (st *surfaceState) destroy() {
	if st.destroyed {
		return
	}
	st.destroyed = true
	st.surface.removeDestroyListener(st.listenerID)
	delete(st.r.surfaces, st.surface)
	if st.stage != nil {
		if err := st.r.dev.Free(st.stage); err != nil {
			Logger().Warn("free staging buffer", "error", err)
		}
		st.stage = nil
	}
	st.buffer = nil
}

// AttachBuffer makes buf the surface's current content. A nil buf detaches.
// Staging allocation failures propagate; an unrecognized format is logged
// and leaves the surface without valid content.
func (r *Renderer) AttachBuffer(s *Surface, buf Buffer) error {
	st := r.stateFor(s)
	st.solid = false
	st.buffer = buf

	if buf == nil {
		st.attached = false
		return nil
	}

	var err error
	switch b := buf.(type) {
	case *SHMBuffer:
		err = st.attachSHM(b)
	case *DMABuffer:
		st.attachDMA(b)
	case *ExternalBuffer:
		err = st.refreshExternal(b)
	case *SolidBuffer:
		st.attachSolid(b)
	default:
		Logger().Warn("attach: unknown buffer kind", "buffer", fmt.Sprintf("%T", buf))
	}
	st.attached = true
	return err
}

// shmLayout describes the staging layout of one SHM format.
func shmLayout(f SHMFormat) (format hal.Format, bpp int32, alignHeight bool, ok bool) {
	switch f {
	case SHMFormatXRGB8888:
		return hal.FormatBGRX8888, 4, false, true
	case SHMFormatARGB8888:
		return hal.FormatBGRA8888, 4, false, true
	case SHMFormatRGB565:
		return hal.FormatRGB565, 2, false, true
	case SHMFormatYUYV:
		return hal.FormatYUYV, 2, true, true
	case SHMFormatNV12:
		return hal.FormatNV12, 1, true, true
	case SHMFormatYUV420:
		return hal.FormatI420, 1, true, true
	}
	return hal.FormatInvalid, 0, false, false
}

func (st *surfaceState) attachSHM(b *SHMBuffer) error {
	format, bpp, alignHeight, ok := shmLayout(b.Format)
	if !ok {
		Logger().Warn("attach: unknown shm buffer format", "format", b.Format)
		return nil
	}

	alignedWidth := alignTo16(b.Width)
	height := b.Height
	if alignHeight {
		height = alignTo16(b.Height)
	}
	var length int32
	switch b.Format {
	case SHMFormatNV12, SHMFormatYUV420:
		length = alignedWidth * height * 3 / 2
	default:
		length = alignedWidth * height * bpp
	}
	st.bpp = bpp

	// Only allocate a new staging buffer if the existing one is too small.
	if st.stage == nil || st.stage.Size < int(length) {
		if st.stage != nil {
			if err := st.r.dev.Free(st.stage); err != nil {
				Logger().Warn("free staging buffer", "error", err)
			}
			st.stage = nil
		}
		stage, err := st.r.dev.Alloc(int(length))
		if err != nil {
			return fmt.Errorf("blit: alloc %d byte staging buffer: %w", length, err)
		}
		st.stage = stage
	}
	st.stageLen = int(length)

	st.desc.Planes[0] = st.stage.Phys
	st.desc.Planes[1] = st.desc.Planes[0] + uint64(alignedWidth*height)
	st.desc.Planes[2] = st.desc.Planes[1] + uint64(alignedWidth*height/4)

	st.desc.Rect = Rect{Left: 0, Top: 0, Right: b.Width, Bottom: b.Height}
	st.desc.Stride = alignedWidth
	st.desc.Width = b.Width
	st.desc.Height = height
	st.desc.Rotation = hal.Rot0
	st.desc.Tiling = hal.TilingLinear
	st.desc.Format = format
	return nil
}

func (st *surfaceState) attachDMA(b *DMABuffer) {
	st.desc = hal.Surface{
		Format:   b.Format,
		Tiling:   b.Tiling,
		Planes:   b.Planes,
		Rect:     Rect{Left: 0, Top: 0, Right: b.Width, Bottom: b.Height},
		Stride:   b.Stride,
		Width:    b.Width,
		Height:   b.Height,
		Rotation: hal.Rot0,
	}
	st.bpp = int32(b.Format.BytesPerPixel())
}

// formatFromTexture maps the texture format a GPU producer reports to the
// blitter's native format.
func formatFromTexture(f gputypes.TextureFormat) (hal.Format, bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return hal.FormatRGBA8888, true
	case gputypes.TextureFormatBGRA8Unorm:
		return hal.FormatBGRA8888, true
	}
	return hal.FormatInvalid, false
}

// refreshExternal re-derives the surface descriptor from an external
// buffer's current state. Called on attach and again before every read,
// since the producer may update the buffer out-of-band.
func (st *surfaceState) refreshExternal(b *ExternalBuffer) error {
	if b.Width <= 0 || b.Height <= 0 {
		Logger().Warn("attach: invalid external buffer", "width", b.Width, "height", b.Height)
		return fmt.Errorf("blit: invalid external buffer %dx%d", b.Width, b.Height)
	}
	format, ok := formatFromTexture(b.Format)
	if !ok {
		Logger().Warn("attach: unsupported external buffer format", "format", b.Format)
		return fmt.Errorf("blit: external buffer: %w", hal.ErrUnsupportedFormat)
	}

	st.desc = hal.Surface{
		Format:   format,
		Tiling:   b.Tiling,
		Planes:   b.Planes,
		Rect:     Rect{Left: 0, Top: 0, Right: b.Width, Bottom: b.Height},
		Stride:   b.Stride,
		Width:    b.Width,
		Height:   b.Height,
		Rotation: hal.Rot0,
	}
	if b.TileStatus.Enabled {
		st.desc.TileStatus = b.TileStatus
	}
	st.bpp = int32(format.BytesPerPixel())
	return nil
}

// packColor packs a float color into the clear-color word: a in the top
// byte, then b, g, r.
func packColor(c [4]float32) uint32 {
	r := uint32(math.RoundToEven(float64(c[0]) * 255))
	g := uint32(math.RoundToEven(float64(c[1]) * 255))
	b := uint32(math.RoundToEven(float64(c[2]) * 255))
	a := uint32(math.RoundToEven(float64(c[3]) * 255))
	return a<<24 | b<<16 | g<<8 | r
}

func (st *surfaceState) attachSolid(b *SolidBuffer) {
	st.color = [4]float32{b.R, b.G, b.B, b.A}
	st.solid = true
	st.alphaFormat = b.AlphaFormat
	st.clearColor = packColor(st.color)
}

// FlushDamage folds the surface's pending damage into the renderer's
// accumulated texture damage and, for shared-memory content, uploads the
// damaged buffer into the staging buffer. Call after attach and damage
// reports, before repaint.
func (r *Renderer) FlushDamage(s *Surface) {
	st := r.stateFor(s)
	st.texDamage = st.texDamage.Union(s.Damage)
	s.Damage = Region{}

	if st.buffer == nil {
		return
	}
	if st.texDamage.Empty() {
		return
	}
	if shm, ok := st.buffer.(*SHMBuffer); ok {
		st.uploadSHM(shm)
	}
	st.texDamage = Region{}
}

// uploadSHM copies the client buffer into the staging buffer, plane by
// plane, repacking rows when the staging pitch differs from the client
// stride.
func (st *surfaceState) uploadSHM(b *SHMBuffer) {
	if st.stage == nil || st.stage.Data == nil {
		return
	}

	alignedWidth := alignTo16(b.Width)
	height := b.Height
	srcStride := b.Stride

	var planes int
	var planeSize [3]int32
	var srcPlaneOff, dstPlaneOff [3]int32
	var uvSrcStride, uvDstStride int32

	switch b.Format {
	case SHMFormatXRGB8888, SHMFormatARGB8888, SHMFormatRGB565:
		planes = 1
		planeSize[0] = srcStride * b.Height
	case SHMFormatYUYV:
		planes = 1
		height = alignTo16(b.Height)
		planeSize[0] = srcStride * b.Height
	case SHMFormatNV12:
		planes = 2
		height = alignTo16(b.Height)
		planeSize[0] = srcStride * b.Height
		planeSize[1] = srcStride * b.Height / 2
		srcPlaneOff[1] = planeSize[0]
		dstPlaneOff[1] = alignedWidth * height
		uvSrcStride = srcStride
		uvDstStride = alignedWidth
	case SHMFormatYUV420:
		planes = 3
		height = alignTo16(b.Height)
		planeSize[0] = srcStride * b.Height
		planeSize[1] = srcStride * b.Height / 4
		planeSize[2] = planeSize[1]
		srcPlaneOff[1] = planeSize[0]
		srcPlaneOff[2] = planeSize[0] + planeSize[1]
		dstPlaneOff[1] = alignedWidth * height
		dstPlaneOff[2] = dstPlaneOff[1] + alignedWidth*height/4
		uvSrcStride = srcStride / 2
		uvDstStride = alignedWidth / 2
	default:
		Logger().Warn("upload: unknown shm buffer format", "format", b.Format)
		return
	}

	src := b.Data
	dst := st.stage.Data

	if alignedWidth == b.Width && height == b.Height {
		for i := 0; i < planes; i++ {
			copy(dst[dstPlaneOff[i]:dstPlaneOff[i]+planeSize[i]], src[srcPlaneOff[i]:srcPlaneOff[i]+planeSize[i]])
		}
		return
	}

	dstStride := alignedWidth * st.bpp
	for row := int32(0); row < b.Height; row++ {
		copy(dst[dstPlaneOff[0]+dstStride*row:dstPlaneOff[0]+dstStride*row+srcStride],
			src[srcPlaneOff[0]+srcStride*row:srcPlaneOff[0]+srcStride*(row+1)])
	}
	for i := 1; i < planes; i++ {
		for row := int32(0); row < b.Height/2; row++ {
			copy(dst[dstPlaneOff[i]+uvDstStride*row:dstPlaneOff[i]+uvDstStride*row+uvSrcStride],
				src[srcPlaneOff[i]+uvSrcStride*row:srcPlaneOff[i]+uvSrcStride*(row+1)])
		}
	}
}
