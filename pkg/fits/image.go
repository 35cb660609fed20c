package fits

import (
	"fmt"
	"math"
	"strings"
)

// imageInfo is the resolved description of an image HDU, compressed or not.
type imageInfo struct {
	bitpix     int
	axes       []int64 // FITS order, NAXIS1 first
	sc         scaling
	compressed bool
	tiles      []int64
	quantiz    string
	dither0    int64
	hasDither  bool
}

func (i *imageInfo) npix() int64 {
	if len(i.axes) == 0 {
		return 0
	}
	n := int64(1)
	for _, a := range i.axes {
		n *= a
	}
	return n
}

// width and height of the planes the image is tiled in; further axes count planes.
func (i *imageInfo) plane() (width, height, planes int) {
	width, height, planes = 1, 1, 1
	if len(i.axes) > 0 {
		width = int(i.axes[0])
	}
	if len(i.axes) > 1 {
		height = int(i.axes[1])
	}
	for _, a := range i.axes[min(2, len(i.axes)):] {
		planes *= int(a)
	}
	return width, height, planes
}

// dithered reports whether integer data was quantized with subtractive dither by
// the writer, so float reads must undo it.
func (i *imageInfo) dithered() bool {
	return i.bitpix > 0 && i.hasDither && i.quantiz == "SUBTRACTIVE_DITHER_1"
}

// ditherTiles is the tile shape the dither sequence restarts on: compression
// tiles when compressed, rows otherwise.
func (i *imageInfo) ditherTiles() [2]int {
	if i.compressed && len(i.tiles) > 1 {
		return [2]int{int(i.tiles[0]), int(i.tiles[1])}
	}
	if i.compressed && len(i.tiles) == 1 {
		return [2]int{int(i.tiles[0]), 1}
	}
	return [2]int{0, 1}
}

func readImageInfo(u *hdu) (*imageInfo, error) {
	h := u.header
	info := &imageInfo{}
	prefix := ""
	switch u.kind() {
	case ImageHDU:
	case CompressedImageHDU:
		info.compressed = true
		prefix = "Z"
	default:
		return nil, wrapStatus(StatusNotImage, ErrNotImage, "HDU is %s", u.kind())
	}
	bitpix, err := h.Int(prefix + "BITPIX")
	if err != nil {
		return nil, err
	}
	if _, err := diskKind(int(bitpix)); err != nil {
		return nil, err
	}
	info.bitpix = int(bitpix)
	naxis, err := h.Int(prefix + "NAXIS")
	if err != nil {
		return nil, err
	}
	if naxis < 0 || naxis > 999 {
		return nil, newStatus(StatusBadNAxis, "%sNAXIS = %d", prefix, naxis)
	}
	for n := 1; n <= int(naxis); n++ {
		a, err := h.Int(fmt.Sprintf("%sNAXIS%d", prefix, n))
		if err != nil {
			return nil, err
		}
		info.axes = append(info.axes, a)
		if info.compressed {
			def := int64(1)
			if n == 1 {
				def = a
			}
			t, err := h.IntDefault(fmt.Sprintf("ZTILE%d", n), def)
			if err != nil {
				return nil, err
			}
			info.tiles = append(info.tiles, t)
		}
	}
	if info.sc.bscale, err = h.FloatDefault("BSCALE", 1); err != nil {
		return nil, err
	}
	if info.sc.bzero, err = h.FloatDefault("BZERO", 0); err != nil {
		return nil, err
	}
	if h.Has("BLANK") {
		info.sc.hasBlank = true
		if info.sc.blank, err = h.Int("BLANK"); err != nil {
			return nil, err
		}
	}
	if h.Has("ZQUANTIZ") {
		q, err := h.String("ZQUANTIZ")
		if err != nil {
			return nil, err
		}
		info.quantiz = strings.TrimSpace(q)
	}
	if h.Has("ZDITHER0") {
		info.hasDither = true
		if info.dither0, err = h.Int("ZDITHER0"); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (f *Fits) imageHDU() (*hdu, *imageInfo, error) {
	u, err := f.currentHDU()
	if err != nil {
		return nil, nil, err
	}
	info, err := readImageInfo(u)
	if err != nil {
		return nil, nil, err
	}
	return u, info, nil
}

// reverseShape converts between row-major shapes and FITS axis order.
func reverseShape(shape []int) []int64 {
	axes := make([]int64, len(shape))
	for i, n := range shape {
		axes[len(shape)-1-i] = int64(n)
	}
	return axes
}

// CreateImage appends an image HDU for pixels of kind. shape is row-major, so
// (height, width) for a 2-D image. The HDU becomes the primary when the file is
// empty; an image that will be tile compressed always follows an empty primary.
func (f *Fits) CreateImage(kind Kind, shape ...int) error {
	context := fmt.Sprintf("creating image of %s %v", kind, shape)
	if stop, err := f.enter(context); stop {
		return err
	}
	if kind.Bitpix() == 0 {
		return f.check(configErrorf("invalid pixel kind %s", kind), context)
	}
	if err := f.createImage(kind.Bitpix(), shape); err != nil {
		return f.check(err, context)
	}
	if off := kind.Offset(); off != 0 {
		if err := f.editImageScale(1, offsetValue(kind)); err != nil {
			return f.check(err, context)
		}
	}
	return nil
}

// offsetValue is the BZERO of kind written as an exact integer.
func offsetValue(k Kind) any {
	if k == Uint64 {
		return uint64(1 << 63)
	}
	return int64(k.Offset())
}

// CreateImageBitpix appends an image HDU with the given BITPIX.
func (f *Fits) CreateImageBitpix(bitpix int, shape ...int) error {
	context := fmt.Sprintf("creating image with BITPIX=%d %v", bitpix, shape)
	if stop, err := f.enter(context); stop {
		return err
	}
	return f.check(f.createImage(bitpix, shape), context)
}

func (f *Fits) createImage(bitpix int, shape []int) error {
	if _, err := diskKind(bitpix); err != nil {
		return newStatus(StatusBadBitpix, "BITPIX = %d", bitpix)
	}
	for _, n := range shape {
		if n < 0 {
			return newStatus(StatusBadNAxis, "negative axis length in %v", shape)
		}
	}
	axes := reverseShape(shape)
	area := int64(1)
	for _, a := range axes {
		area *= a
	}
	if len(axes) == 0 {
		area = 0
	}
	if err := f.writable(); err != nil {
		return err
	}

	opts := f.compression
	if AllowImageCompression() && opts.Algorithm != CompressNone && area > 0 {
		h, err := compressedHeader(bitpix, axes, opts)
		if err != nil {
			return err
		}
		size, err := dataSize(h)
		if err != nil {
			return err
		}
		if err := f.ensurePrimary(); err != nil {
			return err
		}
		if err := f.appendHDU(h, size); err != nil {
			return err
		}
		f.hdus[f.current].zquantize = opts.QuantizeLevel
		return nil
	}

	size := int64(abs(bitpix)/8) * area
	if len(f.hdus) == 0 {
		return f.appendHDU(primaryHeader(bitpix, axes), size)
	}
	return f.appendHDU(extensionHeader(bitpix, axes), size)
}

// editImageScale writes BSCALE and BZERO into the current header.
func (f *Fits) editImageScale(bscale, bzero any) error {
	h := f.hdus[f.current].header
	if err := h.Update("BSCALE", bscale, "data = BZERO + BSCALE * disk"); err != nil {
		return err
	}
	if err := h.Update("BZERO", bzero, "data = BZERO + BSCALE * disk"); err != nil {
		return err
	}
	return f.flushHeader(f.current)
}

// WriteImagePixels writes the whole pixel array of the current image, applying
// its BSCALE and BZERO.
func WriteImagePixels[T Pixel](f *Fits, pixels []T) error {
	context := fmt.Sprintf("writing %d pixels", len(pixels))
	if stop, err := f.enter(context); stop {
		return err
	}
	u, info, err := f.imageHDU()
	if err != nil {
		return f.check(err, context)
	}
	if int64(len(pixels)) != info.npix() {
		return f.check(newStatus(StatusBadPixNum, "image has %d pixels, got %d", info.npix(), len(pixels)), context)
	}
	disk, _ := diskKind(info.bitpix)
	raw := make([]byte, len(pixels)*disk.Size())
	if err := encodePixels(pixels, disk, info.sc, raw); err != nil {
		return f.check(err, context)
	}
	return f.check(f.writeRawImage(u, info, raw), context)
}

// writeRawImage stores big-endian data already in the image's BITPIX.
func (f *Fits) writeRawImage(u *hdu, info *imageInfo, raw []byte) error {
	if err := f.writable(); err != nil {
		return err
	}
	if info.compressed {
		return f.compressImage(u, info, raw)
	}
	return f.writeData(u, 0, raw)
}

// readRawImage returns the whole image as big-endian data in its BITPIX.
func (f *Fits) readRawImage(u *hdu, info *imageInfo) ([]byte, error) {
	if info.compressed {
		return f.decompressImage(u, info)
	}
	disk, _ := diskKind(info.bitpix)
	return f.readData(u, 0, info.npix()*int64(disk.Size()))
}

// ReadImage returns all pixels of the current image in row-major order. BLANK
// pixels become NaN for float T and 0 otherwise; dithered data is undithered.
func ReadImage[T Pixel](f *Fits) ([]T, error) {
	if stop, err := f.enter("reading image"); stop {
		return nil, err
	}
	u, info, err := f.imageHDU()
	if err != nil {
		return nil, f.check(err, "reading image")
	}
	out, err := readImage[T](f, u, info)
	return out, f.check(err, "reading image")
}

// readableAs fails when the physical values of info can fall outside T.
func readableAs[T Pixel](info *imageInfo) error {
	if k := equivalentKind(info.bitpix, info.sc); !kindAccepts(KindFor[T](), k) {
		return typeErrorf("cannot read a %s image as %s", k, KindFor[T]())
	}
	return nil
}

func readImage[T Pixel](f *Fits, u *hdu, info *imageInfo) ([]T, error) {
	if err := readableAs[T](info); err != nil {
		return nil, err
	}
	raw, err := f.readRawImage(u, info)
	if err != nil {
		return nil, err
	}
	n := info.npix()
	if KindFor[T]().IsFloat() && info.dithered() {
		s := ImageScale{Bitpix: info.bitpix, BScale: info.sc.bscale, BZero: info.sc.bzero, Blank: info.sc.blank}
		width, height, planes := info.plane()
		out := make([]T, 0, n)
		disk, _ := diskKind(info.bitpix)
		planeBytes := width * height * disk.Size()
		for p := range planes {
			vals, err := FromDisk[T](s, raw[p*planeBytes:(p+1)*planeBytes], width, height, true, info.ditherTiles(), int(info.dither0), info.sc.hasBlank)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	}
	disk, _ := diskKind(info.bitpix)
	out := make([]T, n)
	decodePixels(raw, disk, info.sc, out)
	return out, nil
}

// ReadImageArea fills dst with the row-major sub-array of the current image of
// the given shape starting at offset (both row-major, 0-based).
func ReadImageArea[T Pixel](f *Fits, dst []T, shape, offset []int) error {
	context := fmt.Sprintf("reading image area %v at %v", shape, offset)
	if stop, err := f.enter(context); stop {
		return err
	}
	u, info, err := f.imageHDU()
	if err != nil {
		return f.check(err, context)
	}
	return f.check(readImageArea(f, u, info, dst, shape, offset), context)
}

func readImageArea[T Pixel](f *Fits, u *hdu, info *imageInfo, dst []T, shape, offset []int) error {
	if err := readableAs[T](info); err != nil {
		return err
	}
	if len(shape) != len(info.axes) || len(offset) != len(info.axes) {
		return newStatus(StatusBadDimen, "area of %d dimensions for image of %d", len(shape), len(info.axes))
	}
	axes := reverseShape(shape)
	start := reverseShape(offset)
	count := int64(1)
	for i := range axes {
		if start[i] < 0 || axes[i] < 0 || start[i]+axes[i] > info.axes[i] {
			return newStatus(StatusBadPixNum, "area %v at %v exceeds image %v", shape, offset, info.axes)
		}
		count *= axes[i]
	}
	if int64(len(dst)) < count {
		return logicErrorf("destination holds %d pixels, area has %d", len(dst), count)
	}
	if count == 0 {
		return nil
	}

	disk, _ := diskKind(info.bitpix)
	size := int64(disk.Size())
	if info.compressed || (info.dithered() && KindFor[T]().IsFloat()) {
		full, err := readImage[T](f, u, info)
		if err != nil {
			return err
		}
		copyArea(full, info.axes, dst, axes, start)
		return nil
	}

	// one contiguous run along NAXIS1 per outer index
	run := axes[0]
	idx := make([]int64, len(axes))
	buf := make([]byte, run*size)
	for pos := int64(0); pos < count; pos += run {
		flat := int64(0)
		stride := int64(1)
		for d := range axes {
			flat += (start[d] + idx[d]) * stride
			stride *= info.axes[d]
		}
		if err := readFull(f.st, buf, u.dataOff()+flat*size); err != nil {
			return err
		}
		decodePixels(buf, disk, info.sc, dst[pos:pos+run])
		for d := 1; d < len(axes); d++ {
			idx[d]++
			if idx[d] < axes[d] {
				break
			}
			idx[d] = 0
		}
	}
	return nil
}

// copyArea extracts the box (axes at start, FITS order) from a full image.
func copyArea[T Pixel](full []T, fullAxes []int64, dst []T, axes, start []int64) {
	run := axes[0]
	idx := make([]int64, len(axes))
	for pos := int64(0); pos < int64(len(dst)) && pos < product(axes); pos += run {
		flat := int64(0)
		stride := int64(1)
		for d := range axes {
			flat += (start[d] + idx[d]) * stride
			stride *= fullAxes[d]
		}
		copy(dst[pos:pos+run], full[flat:flat+run])
		for d := 1; d < len(axes); d++ {
			idx[d]++
			if idx[d] < axes[d] {
				break
			}
			idx[d] = 0
		}
	}
}

func product(v []int64) int64 {
	n := int64(1)
	for _, x := range v {
		n *= x
	}
	return n
}

// ImageShape returns the row-major shape of the current image.
func (f *Fits) ImageShape() ([]int, error) {
	if stop, err := f.enter("reading image shape"); stop {
		return nil, err
	}
	_, info, err := f.imageHDU()
	if err != nil {
		return nil, f.check(err, "reading image shape")
	}
	shape := make([]int, len(info.axes))
	for i, a := range info.axes {
		shape[len(shape)-1-i] = int(a)
	}
	return shape, nil
}

// ImageBitpix returns the BITPIX of the current image (ZBITPIX when compressed).
func (f *Fits) ImageBitpix() (int, error) {
	if stop, err := f.enter("reading image BITPIX"); stop {
		return 0, err
	}
	_, info, err := f.imageHDU()
	if err != nil {
		return 0, f.check(err, "reading image BITPIX")
	}
	return info.bitpix, nil
}

// ImageEquivalentKind returns the kind that represents the current image after
// BSCALE and BZERO, such as uint16 for BITPIX=16 with BZERO=32768.
func (f *Fits) ImageEquivalentKind() (Kind, error) {
	if stop, err := f.enter("reading image type"); stop {
		return KindInvalid, err
	}
	_, info, err := f.imageHDU()
	if err != nil {
		return KindInvalid, f.check(err, "reading image type")
	}
	return equivalentKind(info.bitpix, info.sc), nil
}

func equivalentKind(bitpix int, sc scaling) Kind {
	disk, _ := diskKind(bitpix)
	if disk.IsFloat() {
		return disk
	}
	if sc.bscale != 1 || sc.bzero != math.Trunc(sc.bzero) {
		if bitpix <= 16 {
			return Float32
		}
		return Float64
	}
	switch {
	case sc.bzero == 0:
		return disk
	case disk == Uint8 && sc.bzero == -128:
		return Int8
	case disk == Int16 && sc.bzero == 32768:
		return Uint16
	case disk == Int32 && sc.bzero == 2147483648:
		return Uint32
	case disk == Int64 && sc.bzero == 9223372036854775808:
		return Uint64
	}
	// an integral offset that needs a wider signed type
	lo, hi := intRange(disk)
	lo64, hi64 := float64(lo)+sc.bzero, float64(hi)+sc.bzero
	for _, k := range []Kind{Int16, Int32, Int64} {
		klo, khi := kindRange(k)
		if k == Int64 {
			klo, khi = math.MinInt64, math.MaxInt64
		}
		if k.Size() >= disk.Size() && lo64 >= klo && hi64 <= khi {
			return k
		}
	}
	return Float64
}

// ImageDType returns the name of ImageEquivalentKind.
func (f *Fits) ImageDType() (string, error) {
	k, err := f.ImageEquivalentKind()
	if err != nil {
		return "", err
	}
	return k.String(), nil
}

// CheckImageType reports whether the current image can be read as T without
// losing range: floats accept anything, integers accept integer images whose
// equivalent range they cover.
func CheckImageType[T Pixel](f *Fits) (bool, error) {
	k, err := f.ImageEquivalentKind()
	if err != nil || k == KindInvalid {
		return false, err
	}
	return kindAccepts(KindFor[T](), k), nil
}

func kindAccepts(dst, src Kind) bool {
	if dst.IsFloat() {
		return true
	}
	if src.IsFloat() {
		return false
	}
	if dst == src {
		return true
	}
	slo, shi := kindBounds(src)
	dlo, dhi := kindBounds(dst)
	return slo >= dlo && shi <= dhi
}

// kindBounds returns the integer range of k as floats; exact enough to compare.
func kindBounds(k Kind) (float64, float64) {
	switch k {
	case Int64:
		return math.MinInt64, math.MaxInt64
	case Uint64:
		return 0, math.MaxUint64
	}
	return kindRange(k)
}

// CheckCompressedImagePHU leaves the cursor on HDU 1 and reports true when the
// current HDU is an empty primary followed by a compressed image. Otherwise the
// position is unchanged.
func (f *Fits) CheckCompressedImagePHU() (bool, error) {
	if stop, err := f.enter("checking for compressed image"); stop {
		return false, err
	}
	if f.current != 0 || len(f.hdus) < 2 || !f.primaryEmpty() {
		return false, nil
	}
	guard, err := NewHduMoveGuard(f, 1, false)
	if err != nil {
		return false, err
	}
	defer guard.Close()
	if f.hdus[f.current].kind() != CompressedImageHDU {
		return false, nil
	}
	guard.Disable()
	return true, nil
}
