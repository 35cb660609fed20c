// Package pixel implements arithmetic on masked pixels: an image value, a mask
// of bit planes and a variance, combined with mask OR and first order variance
// propagation.
//
// Expressions are built as Expr values and evaluated eagerly when built, so a
// chained expression assigned into a Ref never allocates.
package pixel

import (
	"fmt"
	"math"
)

// Number is any image or variance pixel type.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Bits is any mask pixel type.
type Bits interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Value is the accessor triple every pixel, view and expression exposes.
type Value[I Number, M Bits, V Number] interface {
	Image() I
	Mask() M
	Variance() V
}

// Single is a pixel held by value.
type Single[I Number, M Bits, V Number] struct {
	image    I
	mask     M
	variance V
}

// New returns a pixel with the given planes.
func New[I Number, M Bits, V Number](image I, mask M, variance V) Single[I, M, V] {
	return Single[I, M, V]{image: image, mask: mask, variance: variance}
}

// Padding returns the pixel used for areas outside an image: PadValue image,
// no mask bits and PadValue variance.
func Padding[I Number, M Bits, V Number]() Single[I, M, V] {
	return Single[I, M, V]{image: PadValue[I](), variance: PadValue[V]()}
}

func (p Single[I, M, V]) Image() I    { return p.image }
func (p Single[I, M, V]) Mask() M     { return p.mask }
func (p Single[I, M, V]) Variance() V { return p.variance }

func (p Single[I, M, V]) String() string { return String[I, M, V](p) }

// Ref is a pixel view over storage owned by an image, mask and variance plane.
type Ref[I Number, M Bits, V Number] struct {
	image    *I
	mask     *M
	variance *V
}

// NewRef returns a view over the three planes' storage for one pixel.
func NewRef[I Number, M Bits, V Number](image *I, mask *M, variance *V) Ref[I, M, V] {
	return Ref[I, M, V]{image: image, mask: mask, variance: variance}
}

func (r Ref[I, M, V]) Image() I    { return *r.image }
func (r Ref[I, M, V]) Mask() M     { return *r.mask }
func (r Ref[I, M, V]) Variance() V { return *r.variance }

func (r Ref[I, M, V]) String() string { return String[I, M, V](r) }

// Assign stores v into the view. The variance is read and stored before the
// image since an operand may alias the destination.
func (r Ref[I, M, V]) Assign(v Value[I, M, V]) {
	*r.variance = v.Variance()
	*r.image = v.Image()
	*r.mask = v.Mask()
}

// SetScalar stores x as the image with no mask bits and zero variance.
func (r Ref[I, M, V]) SetScalar(x I) {
	*r.variance = 0
	*r.image = x
	*r.mask = 0
}

func (r Ref[I, M, V]) AddAssign(v Value[I, M, V]) { r.Assign(Add[I, M, V](r, v)) }
func (r Ref[I, M, V]) SubAssign(v Value[I, M, V]) { r.Assign(Sub[I, M, V](r, v)) }
func (r Ref[I, M, V]) MulAssign(v Value[I, M, V]) { r.Assign(Mul[I, M, V](r, v)) }
func (r Ref[I, M, V]) DivAssign(v Value[I, M, V]) { r.Assign(Div[I, M, V](r, v)) }

func (r Ref[I, M, V]) AddScalarAssign(s float64) { r.Assign(AddScalar[I, M, V](r, s)) }
func (r Ref[I, M, V]) SubScalarAssign(s float64) { r.Assign(SubScalar[I, M, V](r, s)) }
func (r Ref[I, M, V]) MulScalarAssign(s float64) { r.Assign(MulScalar[I, M, V](r, s)) }
func (r Ref[I, M, V]) DivScalarAssign(s float64) { r.Assign(DivScalar[I, M, V](r, s)) }

// Equal compares all three planes exactly.
func Equal[I Number, M Bits, V Number](a, b Value[I, M, V]) bool {
	return a.Image() == b.Image() && a.Mask() == b.Mask() && a.Variance() == b.Variance()
}

// Hash combines the image, mask and variance as float64, so pixels that are
// numerically equal hash the same whatever their storage types.
func Hash[I Number, M Bits, V Number](v Value[I, M, V]) uint64 {
	h := uint64(17)
	for _, f := range [3]float64{float64(v.Image()), float64(v.Mask()), float64(v.Variance())} {
		// +0 folds negative zero onto zero
		h = combine(h, math.Float64bits(f+0))
	}
	return h
}

func combine(seed, v uint64) uint64 {
	return seed ^ (v + 0x9e3779b97f4a7c15 + seed<<6 + seed>>2)
}

// PadValue is NaN for floating point T and zero otherwise.
func PadValue[T Number]() T {
	half := 0.5
	if T(half) != 0 {
		return T(math.NaN())
	}
	var zero T
	return zero
}

// String renders v as (image, mask, variance).
func String[I Number, M Bits, V Number](v Value[I, M, V]) string {
	return fmt.Sprintf("(%v, %v, %v)", v.Image(), v.Mask(), v.Variance())
}
