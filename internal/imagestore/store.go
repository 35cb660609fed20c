// Package imagestore persists images, masks and masked images as FITS HDUs.
//
// A masked image is an empty primary HDU holding the caller's metadata followed
// by IMAGE, MASK and VARIANCE extensions. Each extension carries EXTTYPE and
// EXTNAME naming its plane and INHERIT = T so readers merge the primary header.
// Mask plane dictionaries are stored as MP_<name> = <bit> keywords.
package imagestore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samcharles93/fitskit/pkg/fits"
	"github.com/samcharles93/fitskit/pkg/imaging"
	"github.com/samcharles93/fitskit/pkg/pixel"
	"github.com/samcharles93/fitskit/pkg/props"
)

var (
	ErrNotImage = errors.New("imagestore: HDU is not a 2-D image")
	ErrType     = errors.New("imagestore: pixel type cannot hold image")
)

// Plane names an extension of a masked image file.
type Plane string

const (
	PlaneImage    Plane = "IMAGE"
	PlaneMask     Plane = "MASK"
	PlaneVariance Plane = "VARIANCE"
)

const maskPlanePrefix = "MP_"

// xy0Keys are written by fits.WriteImage and consumed when reading.
var xy0Keys = []string{"CRVAL1A", "CRVAL2A", "CRPIX1A", "CRPIX2A", "CTYPE1A", "CTYPE2A", "CUNIT1A", "CUNIT2A"}

// Options are the per-plane write options of a masked image.
type Options struct {
	Image    fits.ImageWriteOptions
	Mask     fits.ImageWriteOptions
	Variance fits.ImageWriteOptions
}

// DefaultOptions returns the default write options for each plane's type.
func DefaultOptions[T pixel.Number]() Options {
	return Options{
		Image:    fits.DefaultWriteOptions(fits.KindFor[T]()),
		Mask:     fits.DefaultWriteOptions(fits.Uint32),
		Variance: fits.DefaultWriteOptions(fits.Float32),
	}
}

// WriteImage appends img as a new HDU with md in its header.
func WriteImage[T pixel.Number](f *fits.Fits, img *imaging.Image[T], opts fits.ImageWriteOptions, md props.Container) error {
	return fits.WriteImage[T](f, img, opts, md, nil)
}

// WriteMask appends m as a new HDU, recording its plane dictionary.
func WriteMask(f *fits.Fits, m *imaging.Mask, opts fits.ImageWriteOptions, md props.Container) error {
	header := copyHeader(md)
	addMaskPlanes(header, m)
	return fits.WriteImage[imaging.MaskPixel](f, &m.Image, opts, header, nil)
}

// ReadImage reads the image at the cursor. From an empty primary HDU it moves
// to the first extension. The returned metadata includes the primary header
// when the HDU declares INHERIT = T.
func ReadImage[T pixel.Number](f *fits.Fits) (*imaging.Image[T], *props.List, error) {
	if err := skipEmptyPrimary(f); err != nil {
		return nil, nil, err
	}
	shape, err := f.ImageShape()
	if err != nil {
		return nil, nil, err
	}
	var width, height int
	switch len(shape) {
	case 0:
	case 2:
		height, width = shape[0], shape[1]
	default:
		return nil, nil, fmt.Errorf("%w: shape %v in HDU %d", ErrNotImage, shape, f.CurrentHDU())
	}
	ok, err := fits.CheckImageType[T](f)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		dtype, _ := f.ImageDType()
		return nil, nil, fmt.Errorf("%w: %s image read as %s", ErrType, dtype, fits.KindFor[T]())
	}

	img := imaging.NewImage[T](0, 0)
	if width*height > 0 {
		pix, err := fits.ReadImage[T](f)
		if err != nil {
			return nil, nil, err
		}
		if img, err = imaging.ImageFromArray(pix, width, height); err != nil {
			return nil, nil, err
		}
	}
	md, err := f.ReadInheritedMetadata(true)
	if err != nil {
		return nil, nil, err
	}
	img.SetXY0(takeXY0(md))
	return img, md, nil
}

// ReadMask reads the mask at the cursor. Planes found in the header replace
// the default dictionary.
func ReadMask(f *fits.Fits) (*imaging.Mask, *props.List, error) {
	img, md, err := ReadImage[imaging.MaskPixel](f)
	if err != nil {
		return nil, nil, err
	}
	m := imaging.NewMaskBox(img.BBox())
	copy(m.Array(), img.Array())
	planes, err := takeMaskPlanes(md)
	if err != nil {
		return nil, nil, err
	}
	if len(planes) > 0 {
		if err := m.SetMaskPlanes(planes); err != nil {
			return nil, nil, err
		}
	}
	return m, md, nil
}

// WriteMaskedImage appends mi. Into an empty file it first writes an empty
// primary HDU carrying md; otherwise md goes into the IMAGE extension.
func WriteMaskedImage[T pixel.Number](f *fits.Fits, mi *imaging.MaskedImage[T], opts Options, md props.Container) error {
	imageMD := props.Container(props.NewList())
	if f.CountHDUs() == 0 {
		if err := f.CreateImage(fits.Uint8); err != nil {
			return err
		}
		if md != nil {
			if err := f.WriteMetadata(md); err != nil {
				return err
			}
		}
	} else {
		imageMD = copyHeader(md)
	}

	if err := WriteImage(f, mi.Image(), opts.Image, planeHeader(imageMD, PlaneImage)); err != nil {
		return fmt.Errorf("write %s: %w", PlaneImage, err)
	}
	maskMD := planeHeader(props.NewList(), PlaneMask)
	addMaskPlanes(maskMD, mi.Mask())
	if err := fits.WriteImage[imaging.MaskPixel](f, &mi.Mask().Image, opts.Mask, maskMD, nil); err != nil {
		return fmt.Errorf("write %s: %w", PlaneMask, err)
	}
	if err := WriteImage(f, mi.Variance(), opts.Variance, planeHeader(props.NewList(), PlaneVariance)); err != nil {
		return fmt.Errorf("write %s: %w", PlaneVariance, err)
	}
	return nil
}

// ReadMaskedImage reads the masked image starting at the cursor. The mask and
// variance are taken from the following HDUs when their EXTTYPE matches, or
// when they carry no EXTTYPE at all; missing planes are allocated zeroed.
// The returned metadata is that of the image plane.
func ReadMaskedImage[T pixel.Number](f *fits.Fits) (*imaging.MaskedImage[T], *props.List, error) {
	img, md, err := ReadImage[T](f)
	if err != nil {
		return nil, nil, err
	}
	takePlaneKeys(md)
	start := f.CurrentHDU()

	var mask *imaging.Mask
	if ok, err := seekPlane(f, start+1, PlaneMask); err != nil {
		return nil, nil, err
	} else if ok {
		if mask, _, err = ReadMask(f); err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", PlaneMask, err)
		}
	}
	var variance *imaging.Image[imaging.VariancePixel]
	if ok, err := seekPlane(f, start+2, PlaneVariance); err != nil {
		return nil, nil, err
	} else if ok {
		if variance, _, err = ReadImage[imaging.VariancePixel](f); err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", PlaneVariance, err)
		}
	}
	mi, err := imaging.MakeMaskedImage(img, mask, variance)
	if err != nil {
		return nil, nil, err
	}
	return mi, md, nil
}

// SaveMaskedImage writes mi to a new file at path.
func SaveMaskedImage[T pixel.Number](path string, mi *imaging.MaskedImage[T], opts Options, md props.Container, fopts ...fits.Option) error {
	f, err := fits.Open(path, "w", fits.AutoCheck, fopts...)
	if err != nil {
		return err
	}
	if err := WriteMaskedImage(f, mi, opts, md); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadMaskedImage reads the masked image starting at HDU hdu of path.
// fits.DefaultHDU starts at the first extension when the primary is empty.
func LoadMaskedImage[T pixel.Number](path string, hdu int, fopts ...fits.Option) (*imaging.MaskedImage[T], *props.List, error) {
	f, err := fits.Open(path, "r", fits.AutoCheck, fopts...)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()
	if err := f.SetHDU(hdu, false); err != nil {
		return nil, nil, err
	}
	return ReadMaskedImage[T](f)
}

func skipEmptyPrimary(f *fits.Fits) error {
	if f.CurrentHDU() != 0 {
		return nil
	}
	if _, err := f.CheckCompressedImagePHU(); err != nil {
		return err
	}
	return f.SetHDU(fits.DefaultHDU, false)
}

// seekPlane moves to hdu and reports whether it holds plane.
func seekPlane(f *fits.Fits, hdu int, plane Plane) (bool, error) {
	if hdu >= f.CountHDUs() {
		return false, nil
	}
	if err := f.SetHDU(hdu, false); err != nil {
		return false, err
	}
	if !f.HasKey("EXTTYPE") {
		return true, nil
	}
	kind, err := fits.ReadKey[string](f, "EXTTYPE")
	if err != nil {
		return false, err
	}
	return Plane(strings.TrimSpace(kind)) == plane, nil
}

func planeHeader(c props.Container, plane Plane) props.Container {
	_ = c.Set("INHERIT", true, "merge the primary header")
	_ = c.Set("EXTTYPE", string(plane), "plane of a masked image")
	_ = c.Set("EXTNAME", string(plane), "")
	return c
}

func copyHeader(md props.Container) *props.List {
	out := props.NewList()
	if md == nil {
		return out
	}
	for _, name := range md.Names() {
		vals := md.GetAll(name)
		_ = out.SetAll(name, vals, md.Comment(name))
	}
	return out
}

func addMaskPlanes(c props.Container, m *imaging.Mask) {
	planes := m.MaskPlanes()
	for _, name := range m.PlaneNames() {
		_ = c.Set(maskPlanePrefix+name, planes[name], "mask plane bit")
	}
}

func takeXY0(md *props.List) imaging.Point {
	var p imaging.Point
	if x, err := props.GetInt64(md, "CRVAL1A"); err == nil {
		p.X = int(x)
	}
	if y, err := props.GetInt64(md, "CRVAL2A"); err == nil {
		p.Y = int(y)
	}
	for _, k := range xy0Keys {
		md.Remove(k)
	}
	return p
}

func takeMaskPlanes(md *props.List) (map[string]int, error) {
	planes := make(map[string]int)
	for _, name := range md.Names() {
		plane, ok := strings.CutPrefix(name, maskPlanePrefix)
		if !ok {
			continue
		}
		bit, err := props.GetInt64(md, name)
		if err != nil {
			return nil, fmt.Errorf("mask plane %s: %w", plane, err)
		}
		planes[plane] = int(bit)
		md.Remove(name)
	}
	return planes, nil
}

func takePlaneKeys(md *props.List) {
	md.Remove("EXTTYPE")
	md.Remove("EXTNAME")
}
