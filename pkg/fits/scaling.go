package fits

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/samcharles93/fitskit/internal/logger"
)

// ScalingAlgorithm selects how floating point pixels are mapped onto integers.
type ScalingAlgorithm int

const (
	ScaleNone ScalingAlgorithm = iota
	ScaleRange
	ScaleStdevPositive
	ScaleStdevNegative
	ScaleStdevBoth
	ScaleManual
)

var scalingNames = map[ScalingAlgorithm]string{
	ScaleNone:          "NONE",
	ScaleRange:         "RANGE",
	ScaleStdevPositive: "STDEV_POSITIVE",
	ScaleStdevNegative: "STDEV_NEGATIVE",
	ScaleStdevBoth:     "STDEV_BOTH",
	ScaleManual:        "MANUAL",
}

func (a ScalingAlgorithm) String() string {
	if s, ok := scalingNames[a]; ok {
		return s
	}
	return fmt.Sprintf("ScalingAlgorithm(%d)", int(a))
}

// ParseScalingAlgorithm maps a configuration name onto a ScalingAlgorithm.
func ParseScalingAlgorithm(name string) (ScalingAlgorithm, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for a, s := range scalingNames {
		if s == name {
			return a, nil
		}
	}
	return ScaleNone, configErrorf("unrecognized scaling algorithm %q", name)
}

// ImageScalingOptions controls quantization of an image before it is written.
type ImageScalingOptions struct {
	Algorithm ScalingAlgorithm
	// Bitpix is the disk BITPIX; 0 keeps the native pixel type.
	Bitpix int
	// MaskPlanes name mask planes whose pixels are left out of the statistics.
	MaskPlanes []string
	// Seed picks the dither sequence. Positive seeds fold into 1..10000; zero or
	// negative derives the seed from the pixel data.
	Seed          int
	QuantizeLevel float64
	QuantizePad   float64
	Fuzz          bool
	BScale        float64
	BZero         float64
}

// DefaultScalingOptions returns lossless options.
func DefaultScalingOptions() ImageScalingOptions {
	return ImageScalingOptions{
		Algorithm:     ScaleNone,
		MaskPlanes:    []string{"NO_DATA"},
		Seed:          1,
		QuantizeLevel: 5,
		QuantizePad:   10,
		Fuzz:          true,
		BScale:        1,
	}
}

// StatsMask is the mask view used to exclude pixels from scaling statistics.
// Array is row-major with the image's shape.
type StatsMask interface {
	Array() []uint32
	PlaneBitMask(names ...string) (uint32, error)
}

// ImageScale is the resolved on-disk representation: memory = BZero + BScale*disk.
type ImageScale struct {
	Bitpix int
	BScale float64
	BZero  float64
	Blank  int64
}

// Determine computes the scale for pixels, a width x height row-major image.
// Integer images are only rescaled by MANUAL.
func Determine[T Pixel](o ImageScalingOptions, pixels []T, width, height int, mask StatsMask, log logger.Logger) (ImageScale, error) {
	kind := KindFor[T]()
	native := ImageScale{Bitpix: kind.Bitpix(), BScale: 1, BZero: kind.Offset()}
	if o.Algorithm == ScaleNone {
		return native, nil
	}
	if !kind.IsFloat() && o.Algorithm != ScaleManual {
		return native, nil
	}
	if o.Bitpix <= 0 {
		return ImageScale{}, configErrorf("scaling algorithm %s requires a positive bitpix, got %d", o.Algorithm, o.Bitpix)
	}
	disk, err := diskKind(o.Bitpix)
	if err != nil {
		return ImageScale{}, configErrorf("invalid scaling bitpix %d", o.Bitpix)
	}
	lo, hi := intRange(disk)
	if disk == Int64 {
		// float64 cannot address every 64-bit level
		lo, hi = -(1 << 53), 1<<53
	}
	scale := ImageScale{Bitpix: o.Bitpix, BScale: 1, Blank: lo}
	if o.Algorithm == ScaleManual {
		scale.BScale, scale.BZero = o.BScale, o.BZero
		return scale, nil
	}

	values := validPixels(pixels, width, height, mask, o.MaskPlanes, log)
	if len(values) == 0 {
		return scale, nil
	}
	slices.Sort(values)
	first := float64(lo + 1)
	last := float64(hi)

	switch o.Algorithm {
	case ScaleRange:
		vmin, vmax := values[0], values[len(values)-1]
		if vmax > vmin {
			scale.BScale = (vmax - vmin) / (last - first)
		}
		scale.BZero = vmin - scale.BScale*first
	case ScaleStdevPositive, ScaleStdevNegative, ScaleStdevBoth:
		median := quantile(values, 0.5)
		stdev := 0.741 * (quantile(values, 0.75) - quantile(values, 0.25))
		if o.QuantizeLevel > 0 && stdev > 0 {
			scale.BScale = stdev / o.QuantizeLevel
		}
		switch o.Algorithm {
		case ScaleStdevPositive:
			scale.BZero = median - o.QuantizePad*stdev - scale.BScale*first
		case ScaleStdevNegative:
			scale.BZero = median + o.QuantizePad*stdev - scale.BScale*last
		default:
			scale.BZero = median - scale.BScale*math.Round((first+last)/2)
		}
	default:
		return ImageScale{}, configErrorf("unsupported scaling algorithm %s", o.Algorithm)
	}
	return scale, nil
}

// validPixels returns the finite pixels not flagged by the named mask planes.
func validPixels[T Pixel](pixels []T, width, height int, mask StatsMask, planes []string, log logger.Logger) []float64 {
	var bits uint32
	var maskArr []uint32
	if mask != nil && len(planes) > 0 {
		for _, p := range planes {
			b, err := mask.PlaneBitMask(p)
			if err != nil {
				if log != nil {
					log.Debug("mask plane missing; not excluded from scaling statistics", "plane", p)
				}
				continue
			}
			bits |= b
		}
		maskArr = mask.Array()
	}
	n := min(len(pixels), width*height)
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := float64(pixels[i])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if bits != 0 && i < len(maskArr) && maskArr[i]&bits != 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// quantile interpolates linearly in sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

// ToDisk converts pixels into big-endian data of s.Bitpix. Tiles give the
// dither tile size (0 spans the axis). Non-finite values become Blank in
// integer output; with forceNonfinite set, infinities become NaN in float
// output. It returns the data and the resolved dither seed.
func ToDisk[T Pixel](s ImageScale, pixels []T, width, height int, forceNonfinite, fuzz bool, tiles [2]int, seed int) ([]byte, int, error) {
	disk, err := diskKind(s.Bitpix)
	if err != nil {
		return nil, 0, err
	}
	n := width * height
	if len(pixels) < n {
		return nil, 0, logicErrorf("image has %d pixels, want %d", len(pixels), n)
	}
	pixels = pixels[:n]
	raw := make([]byte, n*disk.Size())
	kind := KindFor[T]()

	if disk.IsFloat() {
		sc := scaling{bscale: s.BScale, bzero: s.BZero}
		if forceNonfinite && kind.IsFloat() {
			cleaned := make([]float64, n)
			for i, v := range pixels {
				f := float64(v)
				if math.IsInf(f, 0) {
					f = math.NaN()
				}
				cleaned[i] = f
			}
			return raw, 0, encodePixels(cleaned, disk, sc, raw)
		}
		return raw, 0, encodePixels(pixels, disk, sc, raw)
	}
	if !kind.IsFloat() {
		return raw, 0, encodePixels(pixels, disk, scaling{bscale: s.BScale, bzero: s.BZero}, raw)
	}

	if seed <= 0 {
		sample := make([]byte, n*kind.Size())
		_ = encodePixels(pixels, kind, scaling{bscale: 1}, sample)
		seed = contentSeed(sample)
	} else {
		seed = foldSeed(seed)
	}
	lo, hi := intRange(disk)
	grid := newTileGrid(width, height, tiles[0], tiles[1])
	err = grid.each(func(tile, x0, y0, w, h int) error {
		d := newDitherer(tile, seed)
		for y := y0; y < y0+h; y++ {
			for x := x0; x < x0+w; x++ {
				i := y*width + x
				v := float64(pixels[i])
				if math.IsNaN(v) || math.IsInf(v, 0) {
					putInt(disk, raw, i, s.Blank)
					if fuzz {
						d.value()
					}
					continue
				}
				q := (v - s.BZero) / s.BScale
				if fuzz {
					q += d.value() - 0.5
				}
				iv := clampRound(q, disk)
				// the lowest level is reserved for blank pixels
				if iv <= s.Blank && s.Blank == lo {
					iv = lo + 1
				}
				if iv > hi {
					iv = hi
				}
				putInt(disk, raw, i, iv)
			}
		}
		return nil
	})
	return raw, seed, err
}

// FromDisk inverts ToDisk for big-endian integer data, undoing the dither when
// fuzz is set. Blank pixels become NaN.
func FromDisk[T Pixel](s ImageScale, raw []byte, width, height int, fuzz bool, tiles [2]int, seed int, hasBlank bool) ([]T, error) {
	disk, err := diskKind(s.Bitpix)
	if err != nil {
		return nil, err
	}
	n := width * height
	if len(raw) < n*disk.Size() {
		return nil, logicErrorf("disk data holds %d bytes, want %d", len(raw), n*disk.Size())
	}
	out := make([]T, n)
	kind := KindFor[T]()
	if disk.IsFloat() || !fuzz || !kind.IsFloat() {
		decodePixels(raw, disk, scaling{bscale: s.BScale, bzero: s.BZero, blank: s.Blank, hasBlank: hasBlank}, out)
		return out, nil
	}
	seed = foldSeed(max(seed, 1))
	grid := newTileGrid(width, height, tiles[0], tiles[1])
	err = grid.each(func(tile, x0, y0, w, h int) error {
		d := newDitherer(tile, seed)
		for y := y0; y < y0+h; y++ {
			for x := x0; x < x0+w; x++ {
				i := y*width + x
				iv := getInt(disk, raw, i)
				r := d.value()
				if hasBlank && iv == s.Blank {
					out[i] = T(math.NaN())
					continue
				}
				out[i] = T((float64(iv)-r+0.5)*s.BScale + s.BZero)
			}
		}
		return nil
	})
	return out, err
}
