// Package imaging holds 2-D pixel containers: plain images, bit-plane masks
// and masked images that carry an image, a mask and a variance over one
// bounding box.
//
// Pixels are stored row-major with no padding between rows. Every container
// records xy0, the parent-frame position of its first pixel.
package imaging

import (
	"errors"
	"fmt"

	"github.com/samcharles93/fitskit/pkg/pixel"
)

var (
	ErrShape    = errors.New("imaging: dimensions mismatch")
	ErrOutside  = errors.New("imaging: box outside image")
	ErrNoPlane  = errors.New("imaging: no such mask plane")
	ErrTooMany  = errors.New("imaging: no free mask planes")
	ErrNegative = errors.New("imaging: negative dimension")
)

// Image is a dense row-major 2-D array of T positioned at xy0.
type Image[T pixel.Number] struct {
	pix    []T
	width  int
	height int
	xy0    Point
}

// NewImage allocates a zeroed width x height image at xy0 (0, 0).
func NewImage[T pixel.Number](width, height int) *Image[T] {
	if width < 0 || height < 0 {
		panic("imaging: negative image dimension")
	}
	return &Image[T]{pix: make([]T, width*height), width: width, height: height}
}

// NewImageBox allocates a zeroed image covering b.
func NewImageBox[T pixel.Number](b Box) *Image[T] {
	img := NewImage[T](b.W, b.H)
	img.xy0 = b.Min
	return img
}

// ImageFromArray wraps pix without copying. It must hold width*height values.
func ImageFromArray[T pixel.Number](pix []T, width, height int) (*Image[T], error) {
	if width < 0 || height < 0 {
		return nil, ErrNegative
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d", ErrShape, len(pix), width, height)
	}
	return &Image[T]{pix: pix, width: width, height: height}, nil
}

func (m *Image[T]) Array() []T  { return m.pix }
func (m *Image[T]) Width() int  { return m.width }
func (m *Image[T]) Height() int { return m.height }
func (m *Image[T]) X0() int     { return m.xy0.X }
func (m *Image[T]) Y0() int     { return m.xy0.Y }
func (m *Image[T]) XY0() Point  { return m.xy0 }

// SetXY0 moves the image in the parent frame without touching pixels.
func (m *Image[T]) SetXY0(p Point) { m.xy0 = p }

// BBox is the parent-frame box the image covers.
func (m *Image[T]) BBox() Box { return Box{Min: m.xy0, W: m.width, H: m.height} }

// At returns the pixel at local (x, y). Out of range indices panic.
func (m *Image[T]) At(x, y int) T { return m.pix[m.index(x, y)] }

// Set stores v at local (x, y).
func (m *Image[T]) Set(x, y int, v T) { m.pix[m.index(x, y)] = v }

// Row returns the pixels of local row y, sharing storage.
func (m *Image[T]) Row(y int) []T {
	return m.pix[y*m.width : (y+1)*m.width]
}

func (m *Image[T]) index(x, y int) int {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		panic(fmt.Sprintf("imaging: pixel (%d,%d) outside %dx%d image", x, y, m.width, m.height))
	}
	return y*m.width + x
}

func (m *Image[T]) Fill(v T) {
	for i := range m.pix {
		m.pix[i] = v
	}
}

// Clone returns a deep copy.
func (m *Image[T]) Clone() *Image[T] {
	c := *m
	c.pix = append([]T(nil), m.pix...)
	return &c
}

// Subimage copies the parent-frame box b out of m.
func (m *Image[T]) Subimage(b Box) (*Image[T], error) {
	if !m.BBox().ContainsBox(b) {
		return nil, fmt.Errorf("%w: %s not in %s", ErrOutside, b, m.BBox())
	}
	out := NewImageBox[T](b)
	for y := range b.H {
		src := m.Row(b.Min.Y - m.xy0.Y + y)
		x := b.Min.X - m.xy0.X
		copy(out.Row(y), src[x:x+b.W])
	}
	return out, nil
}

// Assign copies src into m where their boxes overlap.
func (m *Image[T]) Assign(src *Image[T]) {
	overlap := m.BBox().Intersect(src.BBox())
	for y := overlap.Min.Y; y < overlap.Min.Y+overlap.H; y++ {
		dst := m.Row(y - m.xy0.Y)[overlap.Min.X-m.xy0.X:]
		from := src.Row(y - src.xy0.Y)[overlap.Min.X-src.xy0.X:]
		copy(dst[:overlap.W], from[:overlap.W])
	}
}

type sized interface {
	Width() int
	Height() int
}

func (m *Image[T]) sameShape(o sized) error {
	if m.width != o.Width() || m.height != o.Height() {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShape, m.width, m.height, o.Width(), o.Height())
	}
	return nil
}
