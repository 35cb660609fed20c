package pixel

import (
	"math"
	"testing"
)

type px = Single[float32, uint16, float32]

func TestArithmetic(t *testing.T) {
	t.Parallel()

	a := New[float32, uint16, float32](10, 0b01, 4)
	b := New[float32, uint16, float32](5, 0b10, 1)

	cases := []struct {
		name string
		got  Expr[float32, uint16, float32]
		want px
	}{
		{"sum", Add[float32, uint16, float32](a, b), New[float32, uint16, float32](15, 0b11, 5)},
		{"difference", Sub[float32, uint16, float32](a, b), New[float32, uint16, float32](5, 0b11, 5)},
		{"product", Mul[float32, uint16, float32](a, b), New[float32, uint16, float32](50, 0b11, 200)},
		{"quotient", Div[float32, uint16, float32](a, b), New[float32, uint16, float32](2, 0b11, 0.32)},
		{"scaled", DivScalar[float32, uint16, float32](a, 2), New[float32, uint16, float32](5, 0b01, 1)},
		{"times", MulScalar[float32, uint16, float32](a, 3), New[float32, uint16, float32](30, 0b01, 36)},
		{"offset", AddScalar[float32, uint16, float32](a, 1), New[float32, uint16, float32](11, 0b01, 4)},
		{"reversed", ScalarSub[float32, uint16, float32](1, a), New[float32, uint16, float32](-9, 0b01, 4)},
		{"negated", Neg[float32, uint16, float32](a), New[float32, uint16, float32](-10, 0b01, 4)},
		{"inverse", ScalarDiv[float32, uint16, float32](20, a), New[float32, uint16, float32](2, 0b01, 0.16)},
	}
	for _, tc := range cases {
		if tc.got.Image() != tc.want.Image() || tc.got.Mask() != tc.want.Mask() {
			t.Fatalf("%s mismatch: got %s want %s", tc.name, tc.got, tc.want)
		}
		if d := math.Abs(float64(tc.got.Variance() - tc.want.Variance())); d > 1e-5 {
			t.Fatalf("%s variance mismatch: got %v want %v", tc.name, tc.got.Variance(), tc.want.Variance())
		}
	}
}

func TestAddCorrelated(t *testing.T) {
	t.Parallel()

	a := New[float64, uint8, float64](1, 1, 4)
	b := New[float64, uint8, float64](2, 4, 9)
	for _, tc := range []struct{ alpha, want float64 }{{0, 13}, {1, 25}, {-1, 1}} {
		got := AddCorrelated[float64, uint8, float64](a, b, tc.alpha)
		if got.Variance() != tc.want || got.Image() != 3 || got.Mask() != 5 {
			t.Fatalf("alpha %v mismatch: got %s want (3, 5, %v)", tc.alpha, got, tc.want)
		}
		if got.Op != OpAddCorrelated {
			t.Fatalf("op mismatch: got %s", got.Op)
		}
	}
}

func TestRefAssignment(t *testing.T) {
	t.Parallel()

	image := []int32{10, 5}
	mask := []uint16{0b01, 0b10}
	variance := []float32{4, 1}
	r0 := NewRef(&image[0], &mask[0], &variance[0])
	r1 := NewRef(&image[1], &mask[1], &variance[1])

	r0.AddAssign(r1)
	if !Equal[int32, uint16, float32](r0, New[int32, uint16, float32](15, 0b11, 5)) {
		t.Fatalf("add assign mismatch: got %s", r0)
	}
	// the destination is both operands
	r1.MulAssign(r1)
	if image[1] != 25 || mask[1] != 0b10 || variance[1] != 50 {
		t.Fatalf("self multiply mismatch: got %s want (25, 2, 50)", r1)
	}
	r0.DivScalarAssign(5)
	if image[0] != 3 || variance[0] != 0.2 {
		t.Fatalf("divide mismatch: got %s", r0)
	}
	r0.Assign(Sub[int32, uint16, float32](Mul[int32, uint16, float32](r0, r1), r1))
	if image[0] != 50 || mask[0] != 0b11 {
		t.Fatalf("chained expression mismatch: got %s", r0)
	}
	r1.SetScalar(7)
	if !Equal[int32, uint16, float32](r1, New[int32, uint16, float32](7, 0, 0)) {
		t.Fatalf("scalar assignment mismatch: got %s", r1)
	}
}

func TestIntegerDivideByZero(t *testing.T) {
	t.Parallel()

	a := New[int16, uint8, float32](4, 0, 1)
	zero := New[int16, uint8, float32](0, 0, 1)
	got := Div[int16, uint8, float32](a, zero)
	if !math.IsInf(float64(got.Variance()), 1) {
		t.Fatalf("variance should be infinite, got %v", got.Variance())
	}
}

func TestHashAndEqual(t *testing.T) {
	t.Parallel()

	a := New[float32, uint16, float32](1.5, 3, 2)
	b := New[float32, uint16, float32](1.5, 3, 2)
	c := New[float32, uint16, float32](1.5, 2, 2)
	if !Equal[float32, uint16, float32](a, b) || Equal[float32, uint16, float32](a, c) {
		t.Fatalf("equality mismatch")
	}
	if Hash[float32, uint16, float32](a) != Hash[float32, uint16, float32](b) {
		t.Fatalf("equal pixels hash differently")
	}
	if Hash[float32, uint16, float32](a) == Hash[float32, uint16, float32](c) {
		t.Fatalf("mask does not contribute to the hash")
	}
	wide := New[float64, uint32, float64](1.5, 3, 2)
	if Hash[float64, uint32, float64](wide) != Hash[float32, uint16, float32](a) {
		t.Fatalf("hash depends on storage types")
	}
	neg := New[float64, uint8, float64](math.Copysign(0, -1), 0, 0)
	pos := New[float64, uint8, float64](0, 0, 0)
	if Hash[float64, uint8, float64](neg) != Hash[float64, uint8, float64](pos) {
		t.Fatalf("signed zeros hash differently")
	}
}

func TestPadding(t *testing.T) {
	t.Parallel()

	if v := PadValue[float32](); !math.IsNaN(float64(v)) {
		t.Fatalf("float pad should be NaN, got %v", v)
	}
	if v := PadValue[int32](); v != 0 {
		t.Fatalf("integer pad should be zero, got %v", v)
	}
	p := Padding[uint16, uint8, float32]()
	if p.Image() != 0 || p.Mask() != 0 || !math.IsNaN(float64(p.Variance())) {
		t.Fatalf("padding mismatch: got %s", p)
	}
	if s := New[int32, uint8, float32](1, 2, 0.5).String(); s != "(1, 2, 0.5)" {
		t.Fatalf("string mismatch: got %q", s)
	}
}
