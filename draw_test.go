package blit

import (
	"math"
	"testing"

	"github.com/gogpu/blit/hal"
)

func TestFixedTrunc(t *testing.T) {
	tests := []struct {
		in   float64
		want int32
	}{
		{0, 0},
		{0.4, 0},
		{0.9, 0},
		{1.0, 1},
		{2.5, 2},
		{89.999, 90},
		{100.0, 100},
		// Truncation is toward zero, not toward negative infinity.
		{-0.1, 0},
		{-0.5, 0},
		{-1.0, -1},
		{-1.5, -1},
		{-2.9, -2},
	}
	for _, tt := range tests {
		if got := fixedTrunc(tt.in); got != tt.want {
			t.Errorf("fixedTrunc(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClipBlitRectsIdentity(t *testing.T) {
	// Destination hanging off the top-left of an 80x80 framebuffer: the
	// destination clamps and the source walks in by the same amount.
	src := Rect{Left: 0, Top: 0, Right: 100, Bottom: 100}
	dst := Rect{Left: -10, Top: -10, Right: 90, Bottom: 90}

	clipBlitRects(hal.Rot0, &src, &dst, 80, 80)

	wantDst := Rect{Left: 0, Top: 0, Right: 80, Bottom: 80}
	wantSrc := Rect{Left: 10, Top: 10, Right: 90, Bottom: 90}
	if dst != wantDst {
		t.Errorf("dst = %v, want %v", dst, wantDst)
	}
	if src != wantSrc {
		t.Errorf("src = %v, want %v", src, wantSrc)
	}
}

func TestClipBlitRectsScaled(t *testing.T) {
	// 50x50 source stretched to 100x100: source adjustments are halved
	// and floored.
	src := Rect{Left: 0, Top: 0, Right: 50, Bottom: 50}
	dst := Rect{Left: -20, Top: 0, Right: 80, Bottom: 100}

	clipBlitRects(hal.Rot0, &src, &dst, 80, 100)

	wantDst := Rect{Left: 0, Top: 0, Right: 80, Bottom: 100}
	wantSrc := Rect{Left: 10, Top: 0, Right: 50, Bottom: 50}
	if dst != wantDst {
		t.Errorf("dst = %v, want %v", dst, wantDst)
	}
	if src != wantSrc {
		t.Errorf("src = %v, want %v", src, wantSrc)
	}
}

func TestClipBlitRectsInside(t *testing.T) {
	// Fully inside: nothing changes.
	src := Rect{Left: 0, Top: 0, Right: 64, Bottom: 64}
	dst := Rect{Left: 10, Top: 10, Right: 74, Bottom: 74}
	wantSrc, wantDst := src, dst

	clipBlitRects(hal.Rot0, &src, &dst, 100, 100)

	if src != wantSrc || dst != wantDst {
		t.Errorf("got src %v dst %v, want unchanged %v %v", src, dst, wantSrc, wantDst)
	}
}

func TestClipBlitRectsRotated(t *testing.T) {
	// Under a 90 degree rotation the horizontal destination overhang maps
	// to the vertical source axis.
	src := Rect{Left: 0, Top: 0, Right: 100, Bottom: 100}
	dst := Rect{Left: -10, Top: 0, Right: 90, Bottom: 100}

	clipBlitRects(hal.Rot90, &src, &dst, 80, 100)

	if dst.Left != 0 || dst.Right != 80 {
		t.Errorf("dst = %v, want clamped to [0, 80]", dst)
	}
	// Left overhang of 10 eats the source top; right overhang of 10 eats
	// the source bottom.
	if src.Top != 10 {
		t.Errorf("src.Top = %d, want 10", src.Top)
	}
	if src.Bottom != 90 {
		t.Errorf("src.Bottom = %d, want 90", src.Bottom)
	}
}

func TestClipBlitRectsDegenerate(t *testing.T) {
	// A destination entirely off-screen degenerates; clipping must stop
	// without panicking and leave an empty destination behind.
	src := Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}
	dst := Rect{Left: -100, Top: 0, Right: -20, Bottom: 10}

	clipBlitRects(hal.Rot0, &src, &dst, 80, 80)

	if src.Left < src.Right && !dst.Empty() {
		t.Errorf("expected a degenerate result, got src %v dst %v", src, dst)
	}
}

func TestCalculateEdgesAxisAligned(t *testing.T) {
	v := &View{Transform: Identity()}

	rect := Rect{Left: 50, Top: 50, Right: 200, Bottom: 200}
	surfRect := Rect{Left: 0, Top: 0, Right: 100, Bottom: 100}

	poly := calculateEdges(v, rect, surfRect)
	if len(poly) != 4 {
		t.Fatalf("calculateEdges() returned %d vertices, want 4", len(poly))
	}

	minX, maxX := poly[0].X, poly[0].X
	minY, maxY := poly[0].Y, poly[0].Y
	for _, p := range poly[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	if minX != 50 || minY != 50 || maxX != 100 || maxY != 100 {
		t.Errorf("intersection bounds = (%v,%v)-(%v,%v), want (50,50)-(100,100)", minX, minY, maxX, maxY)
	}
}

func TestCalculateEdgesDisjoint(t *testing.T) {
	v := &View{Transform: Translate(500, 500)}

	rect := Rect{Left: 0, Top: 0, Right: 100, Bottom: 100}
	surfRect := Rect{Left: 0, Top: 0, Right: 50, Bottom: 50}

	if poly := calculateEdges(v, rect, surfRect); len(poly) != 0 {
		t.Errorf("calculateEdges() on disjoint rects returned %d vertices, want 0", len(poly))
	}
}

func TestCalculateEdgesTransformed(t *testing.T) {
	// Rotate the surface rect 45 degrees about its center; every vertex
	// of the clipped polygon must stay within the clip rect.
	v := &View{
		Transform: Translate(50, 50).
			Multiply(Rotate(math.Pi / 4)).
			Multiply(Translate(-50, -50)),
		TransformEnabled: true,
	}

	rect := Rect{Left: 25, Top: 25, Right: 75, Bottom: 75}
	surfRect := Rect{Left: 0, Top: 0, Right: 100, Bottom: 100}

	poly := calculateEdges(v, rect, surfRect)
	if len(poly) < 3 {
		t.Fatalf("calculateEdges() returned %d vertices, want >= 3", len(poly))
	}
	const eps = 1e-9
	for i, p := range poly {
		if p.X < 25-eps || p.X > 75+eps || p.Y < 25-eps || p.Y > 75+eps {
			t.Errorf("vertex %d = %v outside clip rect", i, p)
		}
	}
}
