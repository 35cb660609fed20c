package imaging

import "fmt"

// Point is a pixel position in the parent frame.
type Point struct {
	X, Y int
}

// Box is a pixel bounding box: Min is the first pixel, W and H the extent.
// A box with no area is empty.
type Box struct {
	Min  Point
	W, H int
}

// NewBox returns the box starting at (x0, y0) with the given extent.
func NewBox(x0, y0, w, h int) Box {
	if w < 0 || h < 0 {
		w, h = 0, 0
	}
	return Box{Min: Point{x0, y0}, W: w, H: h}
}

// Max returns the last pixel of b.
func (b Box) Max() Point { return Point{b.Min.X + b.W - 1, b.Min.Y + b.H - 1} }

func (b Box) Empty() bool { return b.W <= 0 || b.H <= 0 }

func (b Box) Area() int {
	if b.Empty() {
		return 0
	}
	return b.W * b.H
}

func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.Y >= b.Min.Y && p.X < b.Min.X+b.W && p.Y < b.Min.Y+b.H
}

// ContainsBox reports whether o lies inside b. An empty o is inside any box.
func (b Box) ContainsBox(o Box) bool {
	if o.Empty() {
		return true
	}
	return b.Contains(o.Min) && b.Contains(o.Max())
}

// Intersect returns the overlap of b and o, empty when they are disjoint.
func (b Box) Intersect(o Box) Box {
	x0, y0 := max(b.Min.X, o.Min.X), max(b.Min.Y, o.Min.Y)
	x1, y1 := min(b.Min.X+b.W, o.Min.X+o.W), min(b.Min.Y+b.H, o.Min.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Box{Min: Point{x0, y0}}
	}
	return Box{Min: Point{x0, y0}, W: x1 - x0, H: y1 - y0}
}

// Shift moves b by (dx, dy).
func (b Box) Shift(dx, dy int) Box {
	b.Min.X += dx
	b.Min.Y += dy
	return b
}

// Grow expands b by n pixels on every side; a negative n shrinks it.
func (b Box) Grow(n int) Box {
	return NewBox(b.Min.X-n, b.Min.Y-n, b.W+2*n, b.H+2*n)
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d)+%dx%d", b.Min.X, b.Min.Y, b.W, b.H)
}
