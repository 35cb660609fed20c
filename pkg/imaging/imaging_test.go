package imaging

import (
	"errors"
	"maps"
	"slices"
	"testing"

	"github.com/samcharles93/fitskit/pkg/pixel"
)

func TestBoxGeometry(t *testing.T) {
	t.Parallel()

	b := NewBox(2, 3, 4, 5)
	if got := b.Max(); got != (Point{5, 7}) {
		t.Fatalf("max mismatch: got %v want {5 7}", got)
	}
	if !b.Contains(Point{5, 7}) || b.Contains(Point{6, 7}) {
		t.Fatalf("containment mismatch for %s", b)
	}
	if got := b.Intersect(NewBox(4, 0, 10, 5)); got != NewBox(4, 3, 2, 2) {
		t.Fatalf("intersection mismatch: got %s", got)
	}
	if got := b.Intersect(NewBox(20, 20, 1, 1)); !got.Empty() || got.Area() != 0 {
		t.Fatalf("disjoint boxes should not overlap: got %s", got)
	}
	if got := b.Grow(1); got != NewBox(1, 2, 6, 7) {
		t.Fatalf("grow mismatch: got %s", got)
	}
	if got := b.Grow(-3); !got.Empty() {
		t.Fatalf("over-shrunk box should be empty: got %s", got)
	}
	if got := b.Shift(-2, 1).String(); got != "(0,4)+4x5" {
		t.Fatalf("string mismatch: got %q", got)
	}
}

func TestImageSubimageKeepsParentFrame(t *testing.T) {
	t.Parallel()

	img := NewImageBox[int16](NewBox(10, 20, 4, 3))
	for y := range 3 {
		for x := range 4 {
			img.Set(x, y, int16(10*y+x))
		}
	}
	sub, err := img.Subimage(NewBox(11, 21, 2, 2))
	if err != nil {
		t.Fatalf("subimage: %v", err)
	}
	if sub.XY0() != (Point{11, 21}) {
		t.Fatalf("xy0 mismatch: got %v", sub.XY0())
	}
	if !slices.Equal(sub.Array(), []int16{11, 12, 21, 22}) {
		t.Fatalf("pixels mismatch: got %v", sub.Array())
	}
	sub.Set(0, 0, -1)
	if img.At(1, 1) != 11 {
		t.Fatalf("subimage shares storage with its parent")
	}
	if _, err := img.Subimage(NewBox(12, 20, 4, 1)); !errors.Is(err, ErrOutside) {
		t.Fatalf("expected ErrOutside, got: %v", err)
	}

	img.Assign(sub)
	if img.At(1, 1) != -1 || img.At(2, 2) != 22 {
		t.Fatalf("assign mismatch: got %v", img.Array())
	}
	if _, err := ImageFromArray([]float32{1, 2, 3}, 2, 2); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got: %v", err)
	}
}

func TestMaskPlanes(t *testing.T) {
	t.Parallel()

	m := NewMask(4, 2)
	if got := m.PlaneNames(); !slices.Equal(got, DefaultPlanes) {
		t.Fatalf("default planes mismatch: got %v", got)
	}
	bits, err := m.PlaneBitMask("BAD", "SAT", "NO_DATA")
	if err != nil {
		t.Fatalf("bit mask: %v", err)
	}
	if bits != 0b100000011 {
		t.Fatalf("bit mask mismatch: got %b want 100000011", bits)
	}
	if _, err := m.PlaneBitMask("BAD", "GHOST"); !errors.Is(err, ErrNoPlane) {
		t.Fatalf("expected ErrNoPlane, got: %v", err)
	}

	// planes added through a copy are visible in the original
	sub, err := m.Subimage(NewBox(0, 0, 2, 2))
	if err != nil {
		t.Fatalf("subimage: %v", err)
	}
	b, err := sub.AddMaskPlane("GHOST")
	if err != nil || b != len(DefaultPlanes) {
		t.Fatalf("new plane bit mismatch: got %d (%v) want %d", b, err, len(DefaultPlanes))
	}
	if again, _ := m.AddMaskPlane("GHOST"); again != b {
		t.Fatalf("re-adding a plane moved it: got %d want %d", again, b)
	}

	if err := m.SetMaskPlaneBox("GHOST", NewBox(1, 0, 10, 1)); err != nil {
		t.Fatalf("set box: %v", err)
	}
	if err := m.SetMaskPlaneBox("SAT", NewBox(0, 1, 1, 1)); err != nil {
		t.Fatalf("set box: %v", err)
	}
	if n, _ := m.CountPlane("GHOST"); n != 3 {
		t.Fatalf("GHOST count mismatch: got %d want 3", n)
	}
	if err := m.ClearMaskPlane("GHOST"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := m.CountPlane("GHOST"); n != 0 {
		t.Fatalf("GHOST survived clearing: %d pixels", n)
	}
	if m.At(0, 1) != 0b10 {
		t.Fatalf("clearing touched another plane: got %b", m.At(0, 1))
	}
	if err := m.RemoveMaskPlane("GHOST"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.RemoveMaskPlane("GHOST"); !errors.Is(err, ErrNoPlane) {
		t.Fatalf("expected ErrNoPlane on second remove, got: %v", err)
	}
	if _, ok := sub.MaskPlanes()["GHOST"]; ok {
		t.Fatalf("removal not shared with the subimage")
	}
}

func TestMaskRunsOutOfPlanes(t *testing.T) {
	t.Parallel()

	m := NewMask(1, 1)
	planes := map[string]int{}
	for i := range MaxPlanes {
		planes[string(rune('A'+i%26))+string(rune('a'+i/26))] = i
	}
	if err := m.SetMaskPlanes(planes); err != nil {
		t.Fatalf("set planes: %v", err)
	}
	if !maps.Equal(m.MaskPlanes(), planes) {
		t.Fatalf("planes not replaced")
	}
	if _, err := m.AddMaskPlane("EXTRA"); !errors.Is(err, ErrTooMany) {
		t.Fatalf("expected ErrTooMany, got: %v", err)
	}
	if err := m.SetMaskPlanes(map[string]int{"X": 32}); err == nil {
		t.Fatalf("expected error for bit 32")
	}
}

func TestMaskedImageArithmetic(t *testing.T) {
	t.Parallel()

	a := NewMaskedImageBox[float32](NewBox(5, 5, 2, 1))
	b := NewMaskedImage[float32](2, 1)
	a.Ref(0, 0).Assign(pixel.New[float32, MaskPixel, VariancePixel](10, 0b01, 4))
	a.Ref(1, 0).Assign(pixel.New[float32, MaskPixel, VariancePixel](3, 0, 1))
	b.Ref(0, 0).Assign(pixel.New[float32, MaskPixel, VariancePixel](5, 0b10, 1))
	b.Ref(1, 0).Assign(pixel.New[float32, MaskPixel, VariancePixel](1, 0, 1))

	sum := a.Clone()
	if err := sum.Add(b); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := sum.At(0, 0); got != pixel.New[float32, MaskPixel, VariancePixel](15, 0b11, 5) {
		t.Fatalf("sum mismatch: got %s want (15, 3, 5)", got)
	}
	prod := a.Clone()
	if err := prod.Mul(b); err != nil {
		t.Fatalf("mul: %v", err)
	}
	if got := prod.At(0, 0); got != pixel.New[float32, MaskPixel, VariancePixel](50, 0b11, 200) {
		t.Fatalf("product mismatch: got %s want (50, 3, 200)", got)
	}
	half := a.Clone()
	half.DivScalar(2)
	if got := half.At(0, 0); got != pixel.New[float32, MaskPixel, VariancePixel](5, 0b01, 1) {
		t.Fatalf("scaled mismatch: got %s want (5, 1, 1)", got)
	}
	scaled := a.Clone()
	if err := scaled.ScaledAdd(2, b); err != nil {
		t.Fatalf("scaled add: %v", err)
	}
	if got := scaled.At(1, 0); got != pixel.New[float32, MaskPixel, VariancePixel](5, 0, 5) {
		t.Fatalf("scaled add mismatch: got %s want (5, 0, 5)", got)
	}
	if a.At(0, 0).Image() != 10 {
		t.Fatalf("clone shares storage")
	}
	if sum.XY0() != (Point{5, 5}) || sum.Mask().XY0() != (Point{5, 5}) {
		t.Fatalf("xy0 lost by clone: %v", sum.XY0())
	}
	if err := a.Add(NewMaskedImage[float32](3, 1)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got: %v", err)
	}
}

func TestMakeMaskedImage(t *testing.T) {
	t.Parallel()

	img, _ := ImageFromArray([]int32{1, 2, 3, 4}, 2, 2)
	img.SetXY0(Point{3, 4})
	mi, err := MakeMaskedImage(img, nil, nil)
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	if mi.Variance().XY0() != (Point{3, 4}) || mi.Mask().Width() != 2 {
		t.Fatalf("allocated planes mismatch")
	}
	sub, err := mi.Subimage(NewBox(4, 4, 1, 2))
	if err != nil {
		t.Fatalf("subimage: %v", err)
	}
	if !slices.Equal(sub.Image().Array(), []int32{2, 4}) {
		t.Fatalf("subimage pixels mismatch: got %v", sub.Image().Array())
	}
	if _, err := MakeMaskedImage(img, NewMask(3, 2), nil); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for a mismatched mask, got: %v", err)
	}
}
