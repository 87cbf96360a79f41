package blit

import "github.com/gogpu/blit/hal"

// Rect is an axis-aligned pixel rectangle with half-open bounds. The same
// type describes surface-local source rectangles and screen-local
// destination rectangles; it is shared with the hal package, which carries
// it in surface descriptors.
type Rect = hal.Rect

// NewRect creates a Rect from a position and size.
func NewRect(x, y, w, h int32) Rect { return hal.NewRect(x, y, w, h) }

// Region is a set of pixels, stored as a list of non-overlapping rects.
// The zero value is the empty region. Regions are immutable: operations
// return new regions and never modify their receivers.
type Region struct {
	rects []Rect
}

// NewRegion builds a region covering the union of the given rects.
// Empty and inverted rects are ignored; overlapping rects are normalized.
func NewRegion(rects ...Rect) Region {
	var g Region
	for _, r := range rects {
		g = g.Union(NewRegion1(r))
	}
	return g
}

// NewRegion1 builds a region from a single rect without normalization cost.
func NewRegion1(r Rect) Region {
	if r.Empty() {
		return Region{}
	}
	return Region{rects: []Rect{r}}
}

// Empty reports whether the region covers no pixels.
func (g Region) Empty() bool { return len(g.rects) == 0 }

// Rects returns the region's rects. The slice must not be modified.
func (g Region) Rects() []Rect { return g.rects }

// Bounds returns the smallest rect containing the region.
func (g Region) Bounds() Rect {
	if len(g.rects) == 0 {
		return Rect{}
	}
	b := g.rects[0]
	for _, r := range g.rects[1:] {
		if r.Left < b.Left {
			b.Left = r.Left
		}
		if r.Top < b.Top {
			b.Top = r.Top
		}
		if r.Right > b.Right {
			b.Right = r.Right
		}
		if r.Bottom > b.Bottom {
			b.Bottom = r.Bottom
		}
	}
	return b
}

// Contains reports whether the pixel at (x, y) is inside the region.
func (g Region) Contains(x, y int32) bool {
	for _, r := range g.rects {
		if x >= r.Left && x < r.Right && y >= r.Top && y < r.Bottom {
			return true
		}
	}
	return false
}

// Area returns the number of pixels covered by the region.
func (g Region) Area() int64 {
	var a int64
	for _, r := range g.rects {
		a += int64(r.Width()) * int64(r.Height())
	}
	return a
}

// Union returns the region covering both g and o.
func (g Region) Union(o Region) Region {
	if g.Empty() {
		return o
	}
	if o.Empty() {
		return g
	}
	diff := g.Subtract(o)
	out := make([]Rect, 0, len(o.rects)+len(diff.rects))
	out = append(out, o.rects...)
	out = append(out, diff.rects...)
	return Region{rects: out}
}

// Intersect returns the region covered by both g and o.
func (g Region) Intersect(o Region) Region {
	var out []Rect
	for _, a := range g.rects {
		for _, b := range o.rects {
			if i := a.Intersect(b); !i.Empty() {
				out = append(out, i)
			}
		}
	}
	return Region{rects: out}
}

// Subtract returns the region covered by g but not by o.
func (g Region) Subtract(o Region) Region {
	if g.Empty() || o.Empty() {
		return g
	}
	pieces := make([]Rect, 0, len(g.rects))
	pieces = append(pieces, g.rects...)
	for _, b := range o.rects {
		next := pieces[:0:0]
		for _, a := range pieces {
			next = appendRectDiff(next, a, b)
		}
		pieces = next
	}
	return Region{rects: pieces}
}

// Translate returns the region shifted by (dx, dy).
func (g Region) Translate(dx, dy int32) Region {
	if g.Empty() {
		return g
	}
	out := make([]Rect, len(g.rects))
	for i, r := range g.rects {
		out[i] = r.Translate(dx, dy)
	}
	return Region{rects: out}
}

// appendRectDiff appends the up-to-four rects of a minus b to dst.
func appendRectDiff(dst []Rect, a, b Rect) []Rect {
	i := a.Intersect(b)
	if i.Empty() {
		return append(dst, a)
	}
	if i.Top > a.Top {
		dst = append(dst, Rect{Left: a.Left, Top: a.Top, Right: a.Right, Bottom: i.Top})
	}
	if i.Bottom < a.Bottom {
		dst = append(dst, Rect{Left: a.Left, Top: i.Bottom, Right: a.Right, Bottom: a.Bottom})
	}
	if i.Left > a.Left {
		dst = append(dst, Rect{Left: a.Left, Top: i.Top, Right: i.Left, Bottom: i.Bottom})
	}
	if i.Right < a.Right {
		dst = append(dst, Rect{Left: i.Right, Top: i.Top, Right: a.Right, Bottom: i.Bottom})
	}
	return dst
}
