package fits

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync/atomic"

	"github.com/samcharles93/fitskit/pkg/props"
)

// CompressionAlgorithm is a tile compression scheme of the FITS tiled image
// convention.
type CompressionAlgorithm int

const (
	CompressNone CompressionAlgorithm = iota
	CompressGzip1
	CompressGzip2
	CompressRice1
	CompressPlio1
	CompressHcompress1
)

var compressionNames = [...]string{
	CompressNone:       "NONE",
	CompressGzip1:      "GZIP_1",
	CompressGzip2:      "GZIP_2",
	CompressRice1:      "RICE_1",
	CompressPlio1:      "PLIO_1",
	CompressHcompress1: "HCOMPRESS_1",
}

var compressionAliases = map[string]CompressionAlgorithm{
	"GZIP":         CompressGzip1,
	"GZIP_SHUFFLE": CompressGzip2,
	"RICE":         CompressRice1,
	"PLIO":         CompressPlio1,
	"HCOMPRESS":    CompressHcompress1,
}

func (a CompressionAlgorithm) String() string {
	if a >= 0 && int(a) < len(compressionNames) {
		return compressionNames[a]
	}
	return fmt.Sprintf("CompressionAlgorithm(%d)", int(a))
}

// ParseCompressionAlgorithm accepts ZCMPTYPE names and the short aliases GZIP,
// GZIP_SHUFFLE, RICE, PLIO and HCOMPRESS.
func ParseCompressionAlgorithm(name string) (CompressionAlgorithm, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for a, s := range compressionNames {
		if s == name {
			return CompressionAlgorithm(a), nil
		}
	}
	if a, ok := compressionAliases[name]; ok {
		return a, nil
	}
	return CompressNone, configErrorf("unrecognized compression algorithm %q", name)
}

// ImageCompressionOptions describes how new images are tile compressed.
type ImageCompressionOptions struct {
	Algorithm CompressionAlgorithm
	// Tiles is the tile size as (columns, rows); 0 spans the whole axis.
	Tiles [2]int
	// QuantizeLevel lets the compressor quantize float tiles with a step of
	// noise/level. Negative values give the step directly; 0 disables it.
	QuantizeLevel float64
}

// DefaultCompressionOptions returns lossless row-tiled GZIP_2 for integer kinds
// and no compression for floats.
func DefaultCompressionOptions(kind Kind) ImageCompressionOptions {
	if kind.IsFloat() {
		return ImageCompressionOptions{Algorithm: CompressNone}
	}
	return ImageCompressionOptions{Algorithm: CompressGzip2, Tiles: [2]int{0, 1}}
}

// normalize applies the rules every stored configuration obeys.
func (o ImageCompressionOptions) normalize() ImageCompressionOptions {
	if o.Algorithm == CompressNone {
		return ImageCompressionOptions{Algorithm: CompressNone}
	}
	if o.Algorithm == CompressPlio1 || math.IsNaN(o.QuantizeLevel) || math.IsInf(o.QuantizeLevel, 0) {
		o.QuantizeLevel = 0
	}
	for i := range o.Tiles {
		o.Tiles[i] = max(o.Tiles[i], 0)
	}
	return o
}

// tileShape resolves the tile size for an image of width x height.
func (o ImageCompressionOptions) tileShape(width, height int) (int, int) {
	g := newTileGrid(width, height, o.Tiles[0], o.Tiles[1])
	return g.tw, g.th
}

var allowCompression atomic.Bool

func init() { allowCompression.Store(true) }

// SetAllowImageCompression turns tile compression of new images on or off for
// the whole process. It is on by default.
func SetAllowImageCompression(allow bool) { allowCompression.Store(allow) }

// AllowImageCompression reports the process-wide setting.
func AllowImageCompression() bool { return allowCompression.Load() }

// ImageCompression returns the options applied to images created from now on.
func (f *Fits) ImageCompression() ImageCompressionOptions { return f.compression }

// SetImageCompression sets the options for images created from now on.
// CompressNone cancels compression; PLIO_1 is always lossless.
func (f *Fits) SetImageCompression(o ImageCompressionOptions) error {
	if o.Algorithm < CompressNone || o.Algorithm > CompressHcompress1 {
		return configErrorf("invalid compression algorithm %d", int(o.Algorithm))
	}
	f.compression = o.normalize()
	return nil
}

// ImageWriteOptions bundles the compression and scaling used by WriteImage.
type ImageWriteOptions struct {
	Compression ImageCompressionOptions
	Scaling     ImageScalingOptions
}

// DefaultWriteOptions returns the defaults for images of kind.
func DefaultWriteOptions(kind Kind) ImageWriteOptions {
	return ImageWriteOptions{
		Compression: DefaultCompressionOptions(kind),
		Scaling:     DefaultScalingOptions(),
	}
}

type optionDefault struct {
	name  string
	value any
}

var writeOptionDefaults = []optionDefault{
	{"compression.algorithm", "NONE"},
	{"compression.columns", int64(0)},
	{"compression.rows", int64(1)},
	{"compression.quantizeLevel", 0.0},
	{"scaling.algorithm", "NONE"},
	{"scaling.bitpix", int64(0)},
	{"scaling.maskPlanes", "NO_DATA"},
	{"scaling.seed", int64(1)},
	{"scaling.quantizeLevel", 5.0},
	{"scaling.quantizePad", 10.0},
	{"scaling.fuzz", true},
	{"scaling.bscale", 1.0},
	{"scaling.bzero", 0.0},
}

// ValidateWriteOptions fills every missing write option with its default and
// rejects names it does not recognize.
func ValidateWriteOptions(s *props.Set) error {
	known := make(map[string]bool, len(writeOptionDefaults))
	for _, d := range writeOptionDefaults {
		known[d.name] = true
	}
	var unknown []string
	for _, name := range s.Names() {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return configErrorf("unrecognized write options: %s", strings.Join(unknown, ", "))
	}
	for _, d := range writeOptionDefaults {
		if !s.Exists(d.name) {
			if err := s.Set(d.name, d.value, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewWriteOptions validates s and builds the options it describes.
func NewWriteOptions(s *props.Set) (ImageWriteOptions, error) {
	if err := ValidateWriteOptions(s); err != nil {
		return ImageWriteOptions{}, err
	}
	var o ImageWriteOptions
	r := optionReader{s: s}

	if name := r.str("compression.algorithm"); r.err == nil {
		a, err := ParseCompressionAlgorithm(name)
		if err != nil {
			return o, err
		}
		o.Compression.Algorithm = a
	}
	o.Compression.Tiles = [2]int{int(r.int("compression.columns")), int(r.int("compression.rows"))}
	o.Compression.QuantizeLevel = r.float("compression.quantizeLevel")
	o.Compression = o.Compression.normalize()

	if name := r.str("scaling.algorithm"); r.err == nil {
		a, err := ParseScalingAlgorithm(name)
		if err != nil {
			return o, err
		}
		o.Scaling.Algorithm = a
	}
	o.Scaling.Bitpix = int(r.int("scaling.bitpix"))
	o.Scaling.MaskPlanes = r.strs("scaling.maskPlanes")
	o.Scaling.Seed = int(r.int("scaling.seed"))
	o.Scaling.QuantizeLevel = r.float("scaling.quantizeLevel")
	o.Scaling.QuantizePad = r.float("scaling.quantizePad")
	o.Scaling.Fuzz = r.bool("scaling.fuzz")
	o.Scaling.BScale = r.float("scaling.bscale")
	o.Scaling.BZero = r.float("scaling.bzero")
	if r.err != nil {
		return ImageWriteOptions{}, r.err
	}
	return o, nil
}

// LoadWriteOptionsYAML reads nested YAML such as
//
//	compression:
//	  algorithm: RICE_1
//	scaling:
//	  algorithm: STDEV_POSITIVE
//	  bitpix: 32
func LoadWriteOptionsYAML(r io.Reader) (ImageWriteOptions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ImageWriteOptions{}, fmt.Errorf("read write options: %w", err)
	}
	s, err := props.FlattenYAML(data)
	if err != nil {
		return ImageWriteOptions{}, &ConfigError{Msg: err.Error(), Err: err}
	}
	return NewWriteOptions(s)
}

// WriteOptionsSet renders o back into the flat option names.
func WriteOptionsSet(o ImageWriteOptions) *props.Set {
	s := props.NewSet()
	_ = s.Set("compression.algorithm", o.Compression.Algorithm.String(), "")
	_ = s.Set("compression.columns", o.Compression.Tiles[0], "")
	_ = s.Set("compression.rows", o.Compression.Tiles[1], "")
	_ = s.Set("compression.quantizeLevel", o.Compression.QuantizeLevel, "")
	_ = s.Set("scaling.algorithm", o.Scaling.Algorithm.String(), "")
	_ = s.Set("scaling.bitpix", o.Scaling.Bitpix, "")
	for _, p := range o.Scaling.MaskPlanes {
		_ = s.Add("scaling.maskPlanes", p, "")
	}
	_ = s.Set("scaling.seed", o.Scaling.Seed, "")
	_ = s.Set("scaling.quantizeLevel", o.Scaling.QuantizeLevel, "")
	_ = s.Set("scaling.quantizePad", o.Scaling.QuantizePad, "")
	_ = s.Set("scaling.fuzz", o.Scaling.Fuzz, "")
	_ = s.Set("scaling.bscale", o.Scaling.BScale, "")
	_ = s.Set("scaling.bzero", o.Scaling.BZero, "")
	return s
}

// optionReader keeps the first conversion failure.
type optionReader struct {
	s   *props.Set
	err error
}

func (r *optionReader) fail(name string, err error) {
	if r.err == nil {
		r.err = &ConfigError{Msg: fmt.Sprintf("write option %s: %v", name, err), Err: err}
	}
}

func (r *optionReader) str(name string) string {
	v, err := props.GetString(r.s, name)
	if err != nil {
		r.fail(name, err)
	}
	return v
}

func (r *optionReader) strs(name string) []string {
	v, err := props.GetStrings(r.s, name)
	if err != nil && !errors.Is(err, props.ErrNotFound) {
		r.fail(name, err)
	}
	return v
}

func (r *optionReader) int(name string) int64 {
	v, err := props.GetInt64(r.s, name)
	if err != nil {
		r.fail(name, err)
	}
	return v
}

func (r *optionReader) float(name string) float64 {
	v, err := props.GetFloat64(r.s, name)
	if err != nil {
		r.fail(name, err)
	}
	return v
}

func (r *optionReader) bool(name string) bool {
	v, err := props.GetBool(r.s, name)
	if err != nil {
		r.fail(name, err)
	}
	return v
}
