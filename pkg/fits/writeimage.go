package fits

import (
	"github.com/samcharles93/fitskit/pkg/props"
)

// ImageSource is a 2-D image as WriteImage consumes it: a contiguous row-major
// pixel array and the position of its first pixel in the parent frame.
type ImageSource[T Pixel] interface {
	Array() []T
	Width() int
	Height() int
	X0() int
	Y0() int
}

// WriteImage appends img as a new image HDU using opts. header, when not nil,
// is written before the pixels; mask, when not nil, excludes flagged pixels from
// the scaling statistics.
//
// Zero-area images are never compressed. Scaling keywords go in after the
// pixel data so nothing rescales the quantized values a second time.
func WriteImage[T Pixel](f *Fits, img ImageSource[T], opts ImageWriteOptions, header props.Container, mask StatsMask) error {
	const context = "writing image"
	if stop, err := f.enter(context); stop {
		return err
	}
	width, height := img.Width(), img.Height()
	pixels := img.Array()

	comp := opts.Compression
	if width*height == 0 {
		comp = ImageCompressionOptions{Algorithm: CompressNone}
	}
	guard, err := newCompressionGuard(f, comp)
	if err != nil {
		return f.check(err, context)
	}
	defer guard.Close()

	scale, err := Determine(opts.Scaling, pixels, width, height, mask, f.log)
	if err != nil {
		return f.check(err, context)
	}
	if err := f.CreateImageBitpix(scale.Bitpix, height, width); err != nil {
		return err
	}
	if f.status != 0 {
		return nil
	}
	if err := f.writeXY0(img.X0(), img.Y0()); err != nil {
		return err
	}
	if header != nil {
		if err := f.WriteMetadata(header); err != nil {
			return err
		}
	}
	if f.status != 0 {
		return nil
	}

	u, info, err := f.imageHDU()
	if err != nil {
		return f.check(err, context)
	}
	kind := KindFor[T]()
	quantize := kind.IsFloat() && scale.Bitpix > 0
	fuzz := quantize && opts.Scaling.Fuzz
	tiles := [2]int{0, 1}
	if info.compressed {
		tiles = info.ditherTiles()
	}
	seed := opts.Scaling.Seed
	raw, seed, err := ToDisk(scale, pixels, width, height, false, fuzz, tiles, seed)
	if err != nil {
		return f.check(err, context)
	}
	if len(raw) > 0 {
		if err := f.writeRawImage(u, info, raw); err != nil {
			return f.check(err, context)
		}
	}

	return f.editHeader(context, func(h *Header) error {
		if kind.IsFloat() {
			if err := h.Update("BSCALE", scale.BScale, "data = BZERO + BSCALE * disk"); err != nil {
				return err
			}
			if err := h.Update("BZERO", scale.BZero, "data = BZERO + BSCALE * disk"); err != nil {
				return err
			}
		} else if scale.BScale != 1 || scale.BZero != 0 {
			var bzero any = scale.BZero
			if scale.BScale == 1 && scale.BZero == kind.Offset() {
				bzero = offsetValue(kind)
			}
			if err := h.Update("BSCALE", scale.BScale, "data = BZERO + BSCALE * disk"); err != nil {
				return err
			}
			if err := h.Update("BZERO", bzero, "data = BZERO + BSCALE * disk"); err != nil {
				return err
			}
		}
		if !quantize {
			return nil
		}
		if err := h.Update("BLANK", scale.Blank, "value used for NaN pixels"); err != nil {
			return err
		}
		if fuzz {
			if err := h.Update("ZDITHER0", seed, "dithering offset when quantizing floats"); err != nil {
				return err
			}
			return h.Update("ZQUANTIZ", "SUBTRACTIVE_DITHER_1", "pixel quantization algorithm")
		}
		return h.Update("ZQUANTIZ", "NO_DITHER", "pixel quantization algorithm")
	})
}

// writeXY0 records the image origin as a trivial pixel WCS named A.
func (f *Fits) writeXY0(x0, y0 int) error {
	return f.editHeader("writing image origin", func(h *Header) error {
		keys := []struct {
			key     string
			value   any
			comment string
		}{
			{"CRVAL1A", x0, "column pixel of reference pixel"},
			{"CRVAL2A", y0, "row pixel of reference pixel"},
			{"CRPIX1A", 1, "column pixel of reference pixel"},
			{"CRPIX2A", 1, "row pixel of reference pixel"},
			{"CTYPE1A", "LINEAR", "type of projection"},
			{"CTYPE2A", "LINEAR", "type of projection"},
			{"CUNIT1A", "PIXEL", "column unit"},
			{"CUNIT2A", "PIXEL", "row unit"},
		}
		for _, k := range keys {
			if err := h.Update(k.key, k.value, k.comment); err != nil {
				return err
			}
		}
		return nil
	})
}
