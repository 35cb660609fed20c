package fits

import (
	"encoding/binary"
	"math"
	"reflect"
)

// Kind is the closed set of numeric element types the file layer moves between
// memory and disk.
type Kind uint8

const (
	KindInvalid Kind = iota
	Uint8
	Int8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

// Pixel constrains the in-memory element types of images.
type Pixel interface {
	~uint8 | ~int8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

var kindNames = [...]string{
	KindInvalid: "invalid",
	Uint8:       "uint8",
	Int8:        "int8",
	Int16:       "int16",
	Uint16:      "uint16",
	Int32:       "int32",
	Uint32:      "uint32",
	Int64:       "int64",
	Uint64:      "uint64",
	Float32:     "float32",
	Float64:     "float64",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Size is the element width in bytes.
func (k Kind) Size() int {
	switch k {
	case Uint8, Int8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

func (k Kind) IsFloat() bool { return k == Float32 || k == Float64 }

func (k Kind) IsSigned() bool {
	switch k {
	case Int8, Int16, Int32, Int64, Float32, Float64:
		return true
	}
	return false
}

// Bitpix is the BITPIX used to store k; unsigned and int8 kinds use an offset.
func (k Kind) Bitpix() int {
	switch k {
	case Uint8, Int8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32:
		return 32
	case Int64, Uint64:
		return 64
	case Float32:
		return -32
	case Float64:
		return -64
	}
	return 0
}

// Offset is the BZERO that maps the disk kind of Bitpix onto k.
func (k Kind) Offset() float64 {
	switch k {
	case Int8:
		return -128
	case Uint16:
		return 32768
	case Uint32:
		return 2147483648
	case Uint64:
		return 9223372036854775808
	}
	return 0
}

// diskKind returns the storage kind for a BITPIX value.
func diskKind(bitpix int) (Kind, error) {
	switch bitpix {
	case 8:
		return Uint8, nil
	case 16:
		return Int16, nil
	case 32:
		return Int32, nil
	case 64:
		return Int64, nil
	case -32:
		return Float32, nil
	case -64:
		return Float64, nil
	}
	return KindInvalid, formatErrorf("BITPIX", "invalid value %d", bitpix)
}

// KindFor returns the Kind of T.
func KindFor[T Pixel]() Kind {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Uint8:
		return Uint8
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Uint16:
		return Uint16
	case reflect.Int32:
		return Int32
	case reflect.Uint32:
		return Uint32
	case reflect.Int64:
		return Int64
	case reflect.Uint64:
		return Uint64
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	}
	return KindInvalid
}

// ParseKind maps a dtype name such as "float32" to a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name && Kind(k) != KindInvalid {
			return Kind(k), nil
		}
	}
	return KindInvalid, configErrorf("unknown pixel type %q", name)
}

// getInt reads the i'th big-endian integer of disk kind k.
func getInt(k Kind, raw []byte, i int) int64 {
	switch k {
	case Uint8:
		return int64(raw[i])
	case Int16:
		return int64(int16(binary.BigEndian.Uint16(raw[2*i:])))
	case Int32:
		return int64(int32(binary.BigEndian.Uint32(raw[4*i:])))
	case Int64:
		return int64(binary.BigEndian.Uint64(raw[8*i:]))
	}
	return 0
}

func putInt(k Kind, raw []byte, i int, v int64) {
	switch k {
	case Uint8:
		raw[i] = byte(v)
	case Int16:
		binary.BigEndian.PutUint16(raw[2*i:], uint16(int16(v)))
	case Int32:
		binary.BigEndian.PutUint32(raw[4*i:], uint32(int32(v)))
	case Int64:
		binary.BigEndian.PutUint64(raw[8*i:], uint64(v))
	}
}

func getFloat(k Kind, raw []byte, i int) float64 {
	if k == Float32 {
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw[4*i:])))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(raw[8*i:]))
}

func putFloat(k Kind, raw []byte, i int, v float64) {
	if k == Float32 {
		binary.BigEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
		return
	}
	binary.BigEndian.PutUint64(raw[8*i:], math.Float64bits(v))
}

// intRange is the representable range of an integer disk kind.
func intRange(k Kind) (int64, int64) {
	switch k {
	case Uint8:
		return 0, math.MaxUint8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	}
	return math.MinInt64, math.MaxInt64
}

func clampRound(f float64, k Kind) int64 {
	lo, hi := intRange(k)
	r := math.Round(f)
	switch {
	case r <= float64(lo):
		return lo
	case r >= float64(hi):
		return hi
	}
	return int64(r)
}

// scaling describes how disk values map to physical ones.
type scaling struct {
	bscale   float64
	bzero    float64
	blank    int64
	hasBlank bool
}

func (s scaling) identity() bool { return s.bscale == 1 && s.bzero == 0 }

// integral reports whether the transform is a pure integer offset, which keeps
// 64-bit values exact.
func (s scaling) integral() bool {
	return s.bscale == 1 && s.bzero == math.Trunc(s.bzero) && math.Abs(s.bzero) <= 9223372036854775808
}

// decodePixels converts disk data of kind disk to T applying the scaling.
// Blank integers become NaN for float T and 0 otherwise.
func decodePixels[T Pixel](raw []byte, disk Kind, sc scaling, dst []T) {
	out := KindFor[T]()
	switch {
	case disk.IsFloat():
		for i := range dst {
			f := getFloat(disk, raw, i)
			if !sc.identity() {
				f = sc.bzero + sc.bscale*f
			}
			dst[i] = fromFloat[T](f, out)
		}
	case out.IsFloat() || !sc.integral():
		for i := range dst {
			v := getInt(disk, raw, i)
			if sc.hasBlank && v == sc.blank {
				dst[i] = fromFloat[T](math.NaN(), out)
				continue
			}
			dst[i] = fromFloat[T](sc.bzero+sc.bscale*float64(v), out)
		}
	default:
		for i := range dst {
			v := getInt(disk, raw, i)
			if sc.hasBlank && v == sc.blank {
				dst[i] = 0
				continue
			}
			dst[i] = fromOffset[T](v, sc.bzero, out)
		}
	}
}

// fromOffset applies an integral BZERO exactly, including the 2^63 offset
// used for uint64.
func fromOffset[T Pixel](v int64, bzero float64, out Kind) T {
	if bzero == 9223372036854775808 {
		return T(uint64(v) ^ (1 << 63))
	}
	return T(v + int64(bzero))
}

func fromFloat[T Pixel](f float64, out Kind) T {
	if out.IsFloat() {
		return T(f)
	}
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	switch out {
	case Uint64:
		if f <= 0 {
			return 0
		}
		if f >= 18446744073709551615 {
			mx := uint64(math.MaxUint64)
			return T(mx)
		}
		return T(uint64(f))
	case Int64:
		if f <= -9223372036854775808 {
			mn := int64(math.MinInt64)
			return T(mn)
		}
		if f >= 9223372036854775807 {
			mx := int64(math.MaxInt64)
			return T(mx)
		}
		return T(int64(f))
	}
	lo, hi := kindRange(out)
	return T(int64(math.Max(lo, math.Min(hi, f))))
}

func kindRange(k Kind) (float64, float64) {
	switch k {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint16:
		return 0, math.MaxUint16
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Uint32:
		return 0, math.MaxUint32
	}
	return math.Inf(-1), math.Inf(1)
}

// encodePixels converts T values to disk kind disk, inverting the scaling.
// NaN in an integer image becomes BLANK; without BLANK it is a TypeError.
func encodePixels[T Pixel](src []T, disk Kind, sc scaling, raw []byte) error {
	in := KindFor[T]()
	switch {
	case disk.IsFloat():
		for i, v := range src {
			f := float64(v)
			if !sc.identity() {
				f = (f - sc.bzero) / sc.bscale
			}
			putFloat(disk, raw, i, f)
		}
	case in.IsFloat() || !sc.integral():
		for i, v := range src {
			f := float64(v)
			if math.IsNaN(f) {
				if !sc.hasBlank {
					return typeErrorf("NaN pixel %d cannot be stored in a BITPIX=%d image without BLANK", i, disk.Bitpix())
				}
				putInt(disk, raw, i, sc.blank)
				continue
			}
			d := math.Round((f - sc.bzero) / sc.bscale)
			if err := checkDiskRange(d, disk, i, v); err != nil {
				return err
			}
			putInt(disk, raw, i, clampRound(d, disk))
		}
	default:
		checked := !kindAccepts(equivalentKind(disk.Bitpix(), sc), in)
		for i, v := range src {
			if checked {
				if err := checkDiskRange(float64(v)-sc.bzero, disk, i, v); err != nil {
					return err
				}
			}
			putInt(disk, raw, i, toOffset(v, sc.bzero, in))
		}
	}
	return nil
}

// checkDiskRange fails when the disk value d of pixel i does not fit disk.
func checkDiskRange[T Pixel](d float64, disk Kind, i int, v T) error {
	lo, hi := intRange(disk)
	if d < float64(lo) || d > float64(hi) {
		return typeErrorf("pixel %d (%v) overflows a BITPIX=%d image", i, v, disk.Bitpix())
	}
	return nil
}

func toOffset[T Pixel](v T, bzero float64, in Kind) int64 {
	if bzero == 9223372036854775808 {
		return int64(uint64(v) ^ (1 << 63))
	}
	if in == Uint64 {
		return int64(uint64(v) - uint64(bzero))
	}
	return int64(v) - int64(bzero)
}
