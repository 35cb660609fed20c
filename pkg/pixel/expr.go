package pixel

import "math"

// Op names the operation that produced an Expr.
type Op uint8

const (
	OpNone Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpAddCorrelated
)

var opNames = [...]string{"none", "+", "-", "*", "/", "neg", "+cov"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Expr is the result of a pixel operation. Operands are read once when the
// Expr is built.
type Expr[I Number, M Bits, V Number] struct {
	Op       Op
	image    I
	mask     M
	variance V
}

func (e Expr[I, M, V]) Image() I    { return e.image }
func (e Expr[I, M, V]) Mask() M     { return e.mask }
func (e Expr[I, M, V]) Variance() V { return e.variance }

func (e Expr[I, M, V]) String() string { return String[I, M, V](e) }

// Single evaluates e into a pixel held by value.
func (e Expr[I, M, V]) Single() Single[I, M, V] {
	return Single[I, M, V]{image: e.image, mask: e.mask, variance: e.variance}
}

func expr[I Number, M Bits, V Number](op Op, image I, mask M, variance float64) Expr[I, M, V] {
	return Expr[I, M, V]{Op: op, image: image, mask: mask, variance: V(variance)}
}

// Of wraps v as an Expr without changing it.
func Of[I Number, M Bits, V Number](v Value[I, M, V]) Expr[I, M, V] {
	return Expr[I, M, V]{image: v.Image(), mask: v.Mask(), variance: v.Variance()}
}

func Add[I Number, M Bits, V Number](a, b Value[I, M, V]) Expr[I, M, V] {
	return expr[I, M, V](OpAdd, a.Image()+b.Image(), a.Mask()|b.Mask(),
		float64(a.Variance())+float64(b.Variance()))
}

func Sub[I Number, M Bits, V Number](a, b Value[I, M, V]) Expr[I, M, V] {
	return expr[I, M, V](OpSub, a.Image()-b.Image(), a.Mask()|b.Mask(),
		float64(a.Variance())+float64(b.Variance()))
}

// Mul propagates variance as x²·vy + y²·vx.
func Mul[I Number, M Bits, V Number](a, b Value[I, M, V]) Expr[I, M, V] {
	x, y := float64(a.Image()), float64(b.Image())
	v := x*x*float64(b.Variance()) + y*y*float64(a.Variance())
	return expr[I, M, V](OpMul, a.Image()*b.Image(), a.Mask()|b.Mask(), v)
}

// Div propagates variance as x²·vy/y⁴ + vx/y².
func Div[I Number, M Bits, V Number](a, b Value[I, M, V]) Expr[I, M, V] {
	x, y := float64(a.Image()), float64(b.Image())
	y2 := y * y
	v := x*x*float64(b.Variance())/(y2*y2) + float64(a.Variance())/y2
	return expr[I, M, V](OpDiv, divide(a.Image(), b.Image()), a.Mask()|b.Mask(), v)
}

// Neg flips the sign of the image and keeps mask and variance.
func Neg[I Number, M Bits, V Number](a Value[I, M, V]) Expr[I, M, V] {
	return Expr[I, M, V]{Op: OpNeg, image: -a.Image(), mask: a.Mask(), variance: a.Variance()}
}

// AddCorrelated adds two pixels whose errors have correlation coefficient
// alpha: vx + vy + 2·alpha·√(vx·vy).
func AddCorrelated[I Number, M Bits, V Number](a, b Value[I, M, V], alpha float64) Expr[I, M, V] {
	vx, vy := float64(a.Variance()), float64(b.Variance())
	v := vx + vy + 2*alpha*math.Sqrt(vx*vy)
	return expr[I, M, V](OpAddCorrelated, a.Image()+b.Image(), a.Mask()|b.Mask(), v)
}

// Scalar operands carry no mask bits and no variance.

func AddScalar[I Number, M Bits, V Number](a Value[I, M, V], s float64) Expr[I, M, V] {
	return Expr[I, M, V]{Op: OpAdd, image: I(float64(a.Image()) + s), mask: a.Mask(), variance: a.Variance()}
}

func SubScalar[I Number, M Bits, V Number](a Value[I, M, V], s float64) Expr[I, M, V] {
	return Expr[I, M, V]{Op: OpSub, image: I(float64(a.Image()) - s), mask: a.Mask(), variance: a.Variance()}
}

// ScalarSub computes s - a.
func ScalarSub[I Number, M Bits, V Number](s float64, a Value[I, M, V]) Expr[I, M, V] {
	return Expr[I, M, V]{Op: OpSub, image: I(s - float64(a.Image())), mask: a.Mask(), variance: a.Variance()}
}

func MulScalar[I Number, M Bits, V Number](a Value[I, M, V], s float64) Expr[I, M, V] {
	return expr[I, M, V](OpMul, I(float64(a.Image())*s), a.Mask(), float64(a.Variance())*s*s)
}

func DivScalar[I Number, M Bits, V Number](a Value[I, M, V], s float64) Expr[I, M, V] {
	return expr[I, M, V](OpDiv, I(float64(a.Image())/s), a.Mask(), float64(a.Variance())/(s*s))
}

// ScalarDiv computes s / a with variance s²·vx/x⁴.
func ScalarDiv[I Number, M Bits, V Number](s float64, a Value[I, M, V]) Expr[I, M, V] {
	x := float64(a.Image())
	x2 := x * x
	return expr[I, M, V](OpDiv, I(s/x), a.Mask(), s*s*float64(a.Variance())/(x2*x2))
}

// divide keeps integer images from panicking on a zero divisor.
func divide[I Number](x, y I) I {
	if y == 0 {
		return I(float64(x) / float64(y))
	}
	return x / y
}
