// Package clip clips convex polygons against axis-aligned rectangles.
//
// The input is the quadrilateral produced by transforming a surface
// rectangle into global coordinates; the output is a convex polygon of 0 or
// 3..8 clockwise vertices. Clipping a quadrilateral against the four
// half-planes of a rectangle can add at most one vertex per polygon edge,
// so eight vertices suffice.
package clip

// Point is a 2D vertex in global coordinates.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned clip rectangle. X2 and Y2 are exclusive bounds.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// MaxVertices is the largest polygon a quad-against-rect clip can produce.
const MaxVertices = 8

// Simple clips a polygon whose edges are parallel to the clip rectangle by
// clamping each coordinate independently. It always yields exactly as many
// vertices as the input. Only valid for axis-aligned input; for arbitrary
// quads use Polygon.
func Simple(r Rect, poly []Point) []Point {
	out := make([]Point, len(poly))
	for i, p := range poly {
		out[i] = Point{
			X: clamp(p.X, r.X1, r.X2),
			Y: clamp(p.Y, r.Y1, r.Y2),
		}
	}
	return out
}

// Polygon clips an arbitrary convex polygon against the rectangle using
// Sutherland-Hodgman: the polygon is clipped successively against each of
// the four half-planes. Winding order is preserved. A result of fewer than
// three vertices is degenerate and returned as nil.
func Polygon(r Rect, poly []Point) []Point {
	var bufA, bufB [MaxVertices]Point
	n := copy(bufA[:], poly)

	n = clipHalfPlane(bufA[:n], bufB[:0],
		func(p Point) bool { return p.X >= r.X1 },
		func(a, b Point) Point { return intersectX(a, b, r.X1) })
	n = clipHalfPlane(bufB[:n], bufA[:0],
		func(p Point) bool { return p.X <= r.X2 },
		func(a, b Point) Point { return intersectX(a, b, r.X2) })
	n = clipHalfPlane(bufA[:n], bufB[:0],
		func(p Point) bool { return p.Y >= r.Y1 },
		func(a, b Point) Point { return intersectY(a, b, r.Y1) })
	n = clipHalfPlane(bufB[:n], bufA[:0],
		func(p Point) bool { return p.Y <= r.Y2 },
		func(a, b Point) Point { return intersectY(a, b, r.Y2) })

	if n < 3 {
		return nil
	}
	out := make([]Point, n)
	copy(out, bufA[:n])
	return out
}

// clipHalfPlane clips src against one half-plane, appending to dst and
// returning the new vertex count.
func clipHalfPlane(src []Point, dst []Point, inside func(Point) bool, cross func(a, b Point) Point) int {
	if len(src) == 0 {
		return 0
	}
	prev := src[len(src)-1]
	prevIn := inside(prev)
	for _, cur := range src {
		curIn := inside(cur)
		if curIn != prevIn {
			dst = append(dst, cross(prev, cur))
		}
		if curIn {
			dst = append(dst, cur)
		}
		prev, prevIn = cur, curIn
	}
	return len(dst)
}

// intersectX returns the point where segment a-b crosses the vertical line
// x = x0.
func intersectX(a, b Point, x0 float64) Point {
	t := (x0 - a.X) / (b.X - a.X)
	return Point{X: x0, Y: a.Y + t*(b.Y-a.Y)}
}

// intersectY returns the point where segment a-b crosses the horizontal
// line y = y0.
func intersectY(a, b Point, y0 float64) Point {
	t := (y0 - a.Y) / (b.Y - a.Y)
	return Point{X: a.X + t*(b.X-a.X), Y: y0}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
