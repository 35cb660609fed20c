package imaging

import (
	"fmt"

	"github.com/samcharles93/fitskit/pkg/pixel"
)

// VariancePixel is the storage type of variance planes.
type VariancePixel = float32

// Pix is the pixel type of a MaskedImage.
type Pix[T pixel.Number] = pixel.Single[T, MaskPixel, VariancePixel]

// Ref is a view of one pixel of a MaskedImage.
type Ref[T pixel.Number] = pixel.Ref[T, MaskPixel, VariancePixel]

// NewPix returns a MaskedImage pixel by value.
func NewPix[T pixel.Number](image T, mask MaskPixel, variance VariancePixel) Pix[T] {
	return pixel.New(image, mask, variance)
}

// MaskedImage is an image, a mask and a variance sharing one bounding box.
type MaskedImage[T pixel.Number] struct {
	image    *Image[T]
	mask     *Mask
	variance *Image[VariancePixel]
}

// NewMaskedImage allocates zeroed planes of the given size.
func NewMaskedImage[T pixel.Number](width, height int) *MaskedImage[T] {
	return &MaskedImage[T]{
		image:    NewImage[T](width, height),
		mask:     NewMask(width, height),
		variance: NewImage[VariancePixel](width, height),
	}
}

// NewMaskedImageBox allocates zeroed planes covering b.
func NewMaskedImageBox[T pixel.Number](b Box) *MaskedImage[T] {
	mi := NewMaskedImage[T](b.W, b.H)
	mi.SetXY0(b.Min)
	return mi
}

// MakeMaskedImage assembles existing planes. A nil mask or variance is
// allocated zeroed. All planes take the image's xy0.
func MakeMaskedImage[T pixel.Number](image *Image[T], mask *Mask, variance *Image[VariancePixel]) (*MaskedImage[T], error) {
	if mask == nil {
		mask = NewMask(image.Width(), image.Height())
	} else if err := image.sameShape(mask); err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	if variance == nil {
		variance = NewImage[VariancePixel](image.Width(), image.Height())
	} else if err := image.sameShape(variance); err != nil {
		return nil, fmt.Errorf("variance: %w", err)
	}
	mi := &MaskedImage[T]{image: image, mask: mask, variance: variance}
	mi.SetXY0(image.XY0())
	return mi, nil
}

func (mi *MaskedImage[T]) Image() *Image[T]                { return mi.image }
func (mi *MaskedImage[T]) Mask() *Mask                     { return mi.mask }
func (mi *MaskedImage[T]) Variance() *Image[VariancePixel] { return mi.variance }

func (mi *MaskedImage[T]) Width() int  { return mi.image.Width() }
func (mi *MaskedImage[T]) Height() int { return mi.image.Height() }
func (mi *MaskedImage[T]) XY0() Point  { return mi.image.XY0() }
func (mi *MaskedImage[T]) BBox() Box   { return mi.image.BBox() }

// SetXY0 moves all three planes.
func (mi *MaskedImage[T]) SetXY0(p Point) {
	mi.image.SetXY0(p)
	mi.mask.SetXY0(p)
	mi.variance.SetXY0(p)
}

// At returns a copy of the pixel at local (x, y).
func (mi *MaskedImage[T]) At(x, y int) Pix[T] {
	return pixel.New(mi.image.At(x, y), mi.mask.At(x, y), mi.variance.At(x, y))
}

// Ref returns a view of the pixel at local (x, y).
func (mi *MaskedImage[T]) Ref(x, y int) Ref[T] {
	i := mi.image.index(x, y)
	return pixel.NewRef(&mi.image.pix[i], &mi.mask.pix[i], &mi.variance.pix[i])
}

// Each calls fn with a view of every pixel in row-major order.
func (mi *MaskedImage[T]) Each(fn func(x, y int, p Ref[T])) {
	w := mi.Width()
	for i := range mi.image.pix {
		fn(i%w, i/w, pixel.NewRef(&mi.image.pix[i], &mi.mask.pix[i], &mi.variance.pix[i]))
	}
}

// Clone deep copies all planes; the mask keeps its plane dictionary.
func (mi *MaskedImage[T]) Clone() *MaskedImage[T] {
	return &MaskedImage[T]{image: mi.image.Clone(), mask: mi.mask.Clone(), variance: mi.variance.Clone()}
}

// Subimage copies the parent-frame box b out of every plane.
func (mi *MaskedImage[T]) Subimage(b Box) (*MaskedImage[T], error) {
	image, err := mi.image.Subimage(b)
	if err != nil {
		return nil, err
	}
	mask, err := mi.mask.Subimage(b)
	if err != nil {
		return nil, err
	}
	variance, err := mi.variance.Subimage(b)
	if err != nil {
		return nil, err
	}
	return &MaskedImage[T]{image: image, mask: mask, variance: variance}, nil
}

type binary[T pixel.Number] func(a, b pixel.Value[T, MaskPixel, VariancePixel]) pixel.Expr[T, MaskPixel, VariancePixel]

func (mi *MaskedImage[T]) combine(o *MaskedImage[T], op binary[T]) error {
	if err := mi.image.sameShape(o.image); err != nil {
		return err
	}
	for i := range mi.image.pix {
		dst := pixel.NewRef(&mi.image.pix[i], &mi.mask.pix[i], &mi.variance.pix[i])
		src := pixel.NewRef(&o.image.pix[i], &o.mask.pix[i], &o.variance.pix[i])
		dst.Assign(op(dst, src))
	}
	return nil
}

// Add adds o pixel by pixel: images add, masks OR, variances add.
func (mi *MaskedImage[T]) Add(o *MaskedImage[T]) error {
	return mi.combine(o, pixel.Add[T, MaskPixel, VariancePixel])
}

func (mi *MaskedImage[T]) Sub(o *MaskedImage[T]) error {
	return mi.combine(o, pixel.Sub[T, MaskPixel, VariancePixel])
}

func (mi *MaskedImage[T]) Mul(o *MaskedImage[T]) error {
	return mi.combine(o, pixel.Mul[T, MaskPixel, VariancePixel])
}

func (mi *MaskedImage[T]) Div(o *MaskedImage[T]) error {
	return mi.combine(o, pixel.Div[T, MaskPixel, VariancePixel])
}

// ScaledAdd adds c*o, with o's variance scaled by c².
func (mi *MaskedImage[T]) ScaledAdd(c float64, o *MaskedImage[T]) error {
	return mi.combine(o, func(a, b pixel.Value[T, MaskPixel, VariancePixel]) pixel.Expr[T, MaskPixel, VariancePixel] {
		scaled := pixel.MulScalar[T, MaskPixel, VariancePixel](b, c)
		return pixel.Add[T, MaskPixel, VariancePixel](a, scaled)
	})
}

func (mi *MaskedImage[T]) AddScalar(s float64) {
	mi.Each(func(_, _ int, p Ref[T]) { p.AddScalarAssign(s) })
}

func (mi *MaskedImage[T]) MulScalar(s float64) {
	mi.Each(func(_, _ int, p Ref[T]) { p.MulScalarAssign(s) })
}

func (mi *MaskedImage[T]) DivScalar(s float64) {
	mi.Each(func(_, _ int, p Ref[T]) { p.DivScalarAssign(s) })
}
