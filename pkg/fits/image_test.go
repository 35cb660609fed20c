package fits

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/samcharles93/fitskit/pkg/props"
)

// writeCompressed writes pixels as a (5, 7) image compressed with o and reopens
// the file read-only on the compressed HDU.
func writeCompressed[T Pixel](t *testing.T, kind Kind, o ImageCompressionOptions, pixels []T) *Fits {
	t.Helper()
	m := NewMemFile()
	f := openTestMem(t, m, "w")
	if err := f.SetImageCompression(o); err != nil {
		t.Fatalf("set compression: %v", err)
	}
	if err := f.CreateImage(kind, 5, 7); err != nil {
		t.Fatalf("create %s image: %v", o.Algorithm, err)
	}
	if err := WriteImagePixels(f, pixels); err != nil {
		t.Fatalf("write %s pixels: %v", o.Algorithm, err)
	}
	closeTest(t, f)

	f = openTestMem(t, m, "r")
	t.Cleanup(func() { _ = f.Close() })
	if f.CountHDUs() != 2 {
		t.Fatalf("%s: HDU count mismatch: got %d want 2", o.Algorithm, f.CountHDUs())
	}
	ok, err := f.CheckCompressedImagePHU()
	if err != nil || !ok {
		t.Fatalf("%s: compressed image not found after empty primary: ok=%t err=%v", o.Algorithm, ok, err)
	}
	return f
}

func TestLosslessCompressionRoundTrip(t *testing.T) {
	t.Parallel()

	small := make([]int16, 35)
	wide := make([]int32, 35)
	for i := range small {
		small[i] = int16(i*37%1000 + 3)
		wide[i] = int32(i*104729%(1<<20) + 1)
	}
	for _, a := range []CompressionAlgorithm{CompressGzip1, CompressGzip2, CompressRice1, CompressPlio1} {
		o := ImageCompressionOptions{Algorithm: a, Tiles: [2]int{3, 2}}

		f := writeCompressed(t, Int16, o, small)
		typ, err := f.HDUType()
		if err != nil || typ != CompressedImageHDU {
			t.Fatalf("%s: HDU type mismatch: got %v (%v)", a, typ, err)
		}
		shape, err := f.ImageShape()
		if err != nil || !slices.Equal(shape, []int{5, 7}) {
			t.Fatalf("%s: shape mismatch: got %v (%v)", a, shape, err)
		}
		got16, err := ReadImage[int16](f)
		if err != nil {
			t.Fatalf("%s: read int16: %v", a, err)
		}
		if !slices.Equal(got16, small) {
			t.Fatalf("%s: int16 mismatch:\ngot  %v\nwant %v", a, got16, small)
		}
		area := make([]int16, 4)
		if err := ReadImageArea(f, area, []int{2, 2}, []int{1, 3}); err != nil {
			t.Fatalf("%s: read area: %v", a, err)
		}
		if want := []int16{small[10], small[11], small[17], small[18]}; !slices.Equal(area, want) {
			t.Fatalf("%s: area mismatch: got %v want %v", a, area, want)
		}

		f = writeCompressed(t, Int32, o, wide)
		got32, err := ReadImage[int32](f)
		if err != nil {
			t.Fatalf("%s: read int32: %v", a, err)
		}
		if !slices.Equal(got32, wide) {
			t.Fatalf("%s: int32 mismatch:\ngot  %v\nwant %v", a, got32, wide)
		}
	}
}

func TestQuantizedFloatCompression(t *testing.T) {
	t.Parallel()

	pixels := noisyPixels(35)
	pixels[8] = float32(math.NaN())
	// the last tile row holds constant tiles, which are stored losslessly
	for i := 28; i < 35; i++ {
		pixels[i] = 42.5
	}
	o := ImageCompressionOptions{Algorithm: CompressRice1, Tiles: [2]int{3, 2}, QuantizeLevel: 16}
	f := writeCompressed(t, Float32, o, pixels)

	h, err := f.Header()
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if q, err := h.String("ZQUANTIZ"); err != nil || q != "SUBTRACTIVE_DITHER_1" {
		t.Fatalf("ZQUANTIZ mismatch: got %q (%v)", q, err)
	}
	scaleCol, err := f.ColumnIndex("ZSCALE")
	if err != nil {
		t.Fatalf("ZSCALE column: %v", err)
	}
	rows, err := f.CountRows()
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 9 {
		t.Fatalf("tile count mismatch: got %d want 9", rows)
	}
	maxScale := 0.0
	for row := range rows {
		z, err := ReadTableScalar[float64](f, row, scaleCol)
		if err != nil {
			t.Fatalf("ZSCALE of tile %d: %v", row, err)
		}
		maxScale = max(maxScale, z)
	}
	if maxScale <= 0 {
		t.Fatalf("no tile was quantized")
	}

	got, err := ReadImage[float32](f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, v := range pixels {
		switch {
		case math.IsNaN(float64(v)):
			if !math.IsNaN(float64(got[i])) {
				t.Fatalf("pixel %d should stay NaN, got %v", i, got[i])
			}
		case i >= 28:
			if got[i] != v {
				t.Fatalf("constant pixel %d mismatch: got %v want %v", i, got[i], v)
			}
		default:
			if diff := math.Abs(float64(got[i] - v)); diff > 0.5*maxScale+1e-4 {
				t.Fatalf("pixel %d error %v exceeds half a step %v", i, diff, 0.5*maxScale)
			}
		}
	}
}

func TestUnsupportedCompression(t *testing.T) {
	t.Parallel()

	m := NewMemFile()
	f := openTestMem(t, m, "w")
	defer closeTest(t, f)

	if err := f.SetImageCompression(ImageCompressionOptions{Algorithm: CompressHcompress1}); err != nil {
		t.Fatalf("set compression: %v", err)
	}
	err := f.CreateImage(Int16, 4, 4)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError for HCOMPRESS_1, got: %v", err)
	}

	if err := f.SetImageCompression(ImageCompressionOptions{Algorithm: CompressRice1}); err != nil {
		t.Fatalf("set compression: %v", err)
	}
	if err := f.CreateImage(Float32, 4, 4); !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError for unquantized float RICE_1, got: %v", err)
	}
	if err := f.SetImageCompression(ImageCompressionOptions{Algorithm: CompressionAlgorithm(42)}); !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError for an unknown algorithm, got: %v", err)
	}
}

func TestCompressionDisabledProcessWide(t *testing.T) {
	// not parallel: flips a process-wide setting
	SetAllowImageCompression(false)
	defer SetAllowImageCompression(true)

	m := NewMemFile()
	f := openTestMem(t, m, "w")
	defer closeTest(t, f)
	if err := f.SetImageCompression(ImageCompressionOptions{Algorithm: CompressGzip2}); err != nil {
		t.Fatalf("set compression: %v", err)
	}
	if err := f.CreateImage(Int16, 2, 2); err != nil {
		t.Fatalf("create image: %v", err)
	}
	if typ, _ := f.HDUType(); typ != ImageHDU {
		t.Fatalf("HDU type mismatch: got %v want %v", typ, ImageHDU)
	}
}

func TestWriteImageQuantizesWithFuzz(t *testing.T) {
	t.Parallel()

	const width, height = 12, 9
	img := &testImage[float32]{pix: noisyPixels(width * height), w: width, h: height, x0: 100, y0: 200}
	img.pix[5] = float32(math.NaN())

	opts := DefaultWriteOptions(Float32)
	opts.Scaling.Algorithm = ScaleRange
	opts.Scaling.Bitpix = 16
	opts.Scaling.Seed = 7
	header := props.NewList()
	_ = header.Set("OBJECT", "M31", "target")

	m := NewMemFile()
	f := openTestMem(t, m, "w")
	if err := WriteImage(f, img, opts, header, nil); err != nil {
		t.Fatalf("write image: %v", err)
	}
	closeTest(t, f)

	f = openTestMem(t, m, "r")
	defer closeTest(t, f)
	bitpix, err := f.ImageBitpix()
	if err != nil || bitpix != 16 {
		t.Fatalf("BITPIX mismatch: got %d (%v)", bitpix, err)
	}
	h, err := f.Header()
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if s, _ := h.String("OBJECT"); s != "M31" {
		t.Fatalf("OBJECT mismatch: got %q", s)
	}
	if x0, _ := h.Int("CRVAL1A"); x0 != 100 {
		t.Fatalf("CRVAL1A mismatch: got %d want 100", x0)
	}
	if y0, _ := h.Int("CRVAL2A"); y0 != 200 {
		t.Fatalf("CRVAL2A mismatch: got %d want 200", y0)
	}
	if seed, _ := h.Int("ZDITHER0"); seed != 7 {
		t.Fatalf("ZDITHER0 mismatch: got %d want 7", seed)
	}
	bscale, err := h.Float("BSCALE")
	if err != nil {
		t.Fatalf("BSCALE: %v", err)
	}

	got, err := ReadImage[float32](f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, v := range img.pix {
		if math.IsNaN(float64(v)) {
			if !math.IsNaN(float64(got[i])) {
				t.Fatalf("pixel %d should read back as NaN, got %v", i, got[i])
			}
			continue
		}
		if diff := math.Abs(float64(got[i] - v)); diff > 0.5*bscale+1e-4 {
			t.Fatalf("pixel %d error %v exceeds half a step %v", i, diff, 0.5*bscale)
		}
	}
}

func TestWriteImageIntegerDefaults(t *testing.T) {
	t.Parallel()

	const width, height = 6, 4
	signed := &testImage[int32]{pix: make([]int32, width*height), w: width, h: height}
	unsigned := &testImage[uint16]{pix: make([]uint16, width*height), w: width, h: height}
	for i := range signed.pix {
		signed.pix[i] = int32(i*i - 200)
		unsigned.pix[i] = uint16(i * 2500)
	}

	m := NewMemFile()
	f := openTestMem(t, m, "w")
	if err := WriteImage(f, signed, DefaultWriteOptions(Int32), nil, nil); err != nil {
		t.Fatalf("write int32: %v", err)
	}
	if err := WriteImage(f, unsigned, DefaultWriteOptions(Uint16), nil, nil); err != nil {
		t.Fatalf("write uint16: %v", err)
	}
	if got := f.ImageCompression().Algorithm; got != CompressNone {
		t.Fatalf("cursor compression changed: got %s", got)
	}
	closeTest(t, f)

	f = openTestMem(t, m, "r")
	defer closeTest(t, f)
	ok, err := f.CheckCompressedImagePHU()
	if err != nil || !ok {
		t.Fatalf("compressed image not found: ok=%t err=%v", ok, err)
	}
	gotSigned, err := ReadImage[int32](f)
	if err != nil {
		t.Fatalf("read int32: %v", err)
	}
	if !slices.Equal(gotSigned, signed.pix) {
		t.Fatalf("int32 mismatch: got %v want %v", gotSigned, signed.pix)
	}

	if err := f.SetHDU(2, false); err != nil {
		t.Fatalf("set hdu: %v", err)
	}
	kind, err := f.ImageEquivalentKind()
	if err != nil || kind != Uint16 {
		t.Fatalf("equivalent kind mismatch: got %s (%v)", kind, err)
	}
	if ok, err := CheckImageType[uint16](f); err != nil || !ok {
		t.Fatalf("uint16 image should read as uint16: ok=%t err=%v", ok, err)
	}
	if ok, _ := CheckImageType[int16](f); ok {
		t.Fatalf("uint16 image should not read as int16")
	}
	gotUnsigned, err := ReadImage[uint16](f)
	if err != nil {
		t.Fatalf("read uint16: %v", err)
	}
	if !slices.Equal(gotUnsigned, unsigned.pix) {
		t.Fatalf("uint16 mismatch: got %v want %v", gotUnsigned, unsigned.pix)
	}
}

func TestWriteImageEmptyIsNeverCompressed(t *testing.T) {
	t.Parallel()

	m := NewMemFile()
	f := openTestMem(t, m, "w")
	defer closeTest(t, f)
	cursor := ImageCompressionOptions{Algorithm: CompressGzip2, Tiles: [2]int{0, 1}}
	if err := f.SetImageCompression(cursor); err != nil {
		t.Fatalf("set compression: %v", err)
	}

	opts := DefaultWriteOptions(Float32)
	opts.Compression = ImageCompressionOptions{Algorithm: CompressRice1, QuantizeLevel: 4}
	empty := &testImage[float32]{}
	if err := WriteImage(f, empty, opts, nil, nil); err != nil {
		t.Fatalf("write empty image: %v", err)
	}
	typ, err := f.HDUType()
	if err != nil || typ != ImageHDU {
		t.Fatalf("HDU type mismatch: got %v (%v)", typ, err)
	}
	h, err := f.Header()
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Has("ZCMPTYPE") {
		t.Fatalf("empty image carries ZCMPTYPE")
	}
	if got := f.ImageCompression(); got != cursor {
		t.Fatalf("compression not restored: got %+v want %+v", got, cursor)
	}
}

func TestReadImageRejectsNarrowerKind(t *testing.T) {
	t.Parallel()

	m := NewMemFile()
	f := openTestMem(t, m, "w")
	if err := f.CreateImage(Int16, 1, 3); err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := WriteImagePixels(f, []int16{-5, 0, 7}); err != nil {
		t.Fatalf("write pixels: %v", err)
	}
	closeTest(t, f)

	f = openTestMem(t, m, "r")
	defer closeTest(t, f)
	var te *TypeError
	if got, err := ReadImage[uint16](f); !errors.As(err, &te) {
		t.Fatalf("uint16 read of int16 image mismatch: got %v (%v) want type error", got, err)
	}
	dst := make([]uint8, 3)
	if err := ReadImageArea(f, dst, []int{1, 3}, []int{0, 0}); !errors.As(err, &te) {
		t.Fatalf("uint8 area read of int16 image mismatch: got %v (%v) want type error", dst, err)
	}
	got, err := ReadImage[int32](f)
	if err != nil {
		t.Fatalf("read int32: %v", err)
	}
	if !slices.Equal(got, []int32{-5, 0, 7}) {
		t.Fatalf("int32 mismatch: got %v want %v", got, []int32{-5, 0, 7})
	}
}

func TestWriteImagePixelsRejectsOverflow(t *testing.T) {
	t.Parallel()

	var te *TypeError
	f := openTestMem(t, NewMemFile(), "w")
	defer func() { _ = f.Close() }()
	if err := f.CreateImage(Int16, 1, 2); err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := WriteImagePixels(f, []uint16{65535, 40000}); !errors.As(err, &te) {
		t.Fatalf("uint16 overflow mismatch: got %v want type error", err)
	}
	if err := WriteImagePixels(f, []float64{1e10, 0}); !errors.As(err, &te) {
		t.Fatalf("float overflow mismatch: got %v want type error", err)
	}

	m := NewMemFile()
	f = openTestMem(t, m, "w")
	if err := f.CreateImage(Int16, 1, 3); err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := WriteImagePixels(f, []uint16{1, 300, 32767}); err != nil {
		t.Fatalf("in-range uint16 write: %v", err)
	}
	closeTest(t, f)
	f = openTestMem(t, m, "r")
	defer closeTest(t, f)
	got, err := ReadImage[int16](f)
	if err != nil {
		t.Fatalf("read int16: %v", err)
	}
	if !slices.Equal(got, []int16{1, 300, 32767}) {
		t.Fatalf("int16 mismatch: got %v want %v", got, []int16{1, 300, 32767})
	}
}

func TestWriteImagePixelsUnsignedRange(t *testing.T) {
	t.Parallel()

	m := NewMemFile()
	f := openTestMem(t, m, "w")
	if err := f.CreateImage(Uint16, 1, 2); err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := WriteImagePixels(f, []uint16{0, 65535}); err != nil {
		t.Fatalf("write uint16: %v", err)
	}
	closeTest(t, f)

	f = openTestMem(t, m, "r")
	defer closeTest(t, f)
	got, err := ReadImage[uint16](f)
	if err != nil {
		t.Fatalf("read uint16: %v", err)
	}
	if !slices.Equal(got, []uint16{0, 65535}) {
		t.Fatalf("uint16 mismatch: got %v want %v", got, []uint16{0, 65535})
	}
}
