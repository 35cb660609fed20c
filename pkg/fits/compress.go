package fits

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Tile-compressed images are binary tables with one row per tile.
const (
	colCompressed = "COMPRESSED_DATA"
	colGzip       = "GZIP_COMPRESSED_DATA"
	colZScale     = "ZSCALE"
	colZZero      = "ZZERO"

	quantizeBlank        = -2147483647
	defaultQuantizeLevel = 4.0
)

// compressedHeader builds the table header for a new tile-compressed image.
func compressedHeader(bitpix int, axes []int64, o ImageCompressionOptions) (*Header, error) {
	disk, err := diskKind(bitpix)
	if err != nil {
		return nil, err
	}
	quantized := disk.IsFloat() && o.QuantizeLevel != 0
	switch {
	case o.Algorithm == CompressHcompress1:
		return nil, configErrorf("HCOMPRESS_1 is not supported")
	case o.Algorithm == CompressPlio1 && disk.IsFloat():
		return nil, configErrorf("PLIO_1 cannot compress floating point images")
	case o.Algorithm == CompressRice1 && disk.IsFloat() && !quantized:
		return nil, configErrorf("RICE_1 needs a quantize level for floating point images")
	case (o.Algorithm == CompressRice1 || o.Algorithm == CompressPlio1) && disk.Size() == 8:
		return nil, configErrorf("%s cannot compress 64-bit integers", o.Algorithm)
	}

	info := imageInfo{bitpix: bitpix, axes: axes}
	width, height, planes := info.plane()
	tw, th := o.tileShape(width, height)
	ntiles := newTileGrid(width, height, tw, th).count() * planes

	dataCode := byte('B')
	if o.Algorithm == CompressPlio1 {
		dataCode = 'I'
	}
	cols := []column{{name: colCompressed, code: dataCode, varlen: 'Q', repeat: 1}}
	if quantized {
		cols = append(cols,
			column{name: colGzip, code: 'B', varlen: 'Q', repeat: 1},
			column{name: colZScale, code: 'D', repeat: 1},
			column{name: colZZero, code: 'D', repeat: 1},
		)
	}
	rowLen := int64(0)
	for _, c := range cols {
		p, _, _ := parseTForm(formatTForm(c))
		rowLen += p.width
	}

	h := NewHeader()
	_ = h.Append("XTENSION", "BINTABLE", "binary table extension")
	_ = h.Append("BITPIX", 8, "8-bit bytes")
	_ = h.Append("NAXIS", 2, "2-dimensional binary table")
	_ = h.Append("NAXIS1", rowLen, "width of table in bytes")
	_ = h.Append("NAXIS2", ntiles, "number of rows in table")
	_ = h.Append("PCOUNT", 0, "size of special data area")
	_ = h.Append("GCOUNT", 1, "one data group (required keyword)")
	_ = h.Append("TFIELDS", len(cols), "number of fields in each row")
	for i, c := range cols {
		_ = h.Append(fmt.Sprintf("TTYPE%d", i+1), c.name, "label for field")
		_ = h.Append(fmt.Sprintf("TFORM%d", i+1), formatTForm(c), tformComment(c))
	}
	_ = h.Append("ZIMAGE", true, "extension contains compressed image")
	_ = h.Append("ZBITPIX", bitpix, "data type of original image")
	_ = h.Append("ZNAXIS", len(axes), "dimension of original image")
	for i, a := range axes {
		_ = h.Append(fmt.Sprintf("ZNAXIS%d", i+1), a, "length of original image axis")
	}
	for i := range axes {
		t := int64(1)
		switch i {
		case 0:
			t = int64(tw)
		case 1:
			t = int64(th)
		}
		_ = h.Append(fmt.Sprintf("ZTILE%d", i+1), t, "size of tiles to be compressed")
	}
	_ = h.Append("ZCMPTYPE", o.Algorithm.String(), "compression algorithm")
	if o.Algorithm == CompressRice1 {
		bytepix := disk.Size()
		if quantized {
			bytepix = 4
		}
		_ = h.Append("ZNAME1", "BLOCKSIZE", "compression block size")
		_ = h.Append("ZVAL1", riceBlockSize, "pixels per block")
		_ = h.Append("ZNAME2", "BYTEPIX", "bytes per pixel (1, 2, 4, or 8)")
		_ = h.Append("ZVAL2", bytepix, "bytes per pixel (1, 2, 4, or 8)")
	}
	if quantized {
		_ = h.Append("ZBLANK", quantizeBlank, "null value in the compressed integer array")
	}
	return h, nil
}

// compressedLayout locates the tile columns of a compressed image table.
type compressedLayout struct {
	t                       *tableLayout
	data, gzip, scale, zero int
	algorithm               CompressionAlgorithm
	bytepix                 int
}

func parseCompressed(u *hdu, info *imageInfo) (*compressedLayout, error) {
	t, err := parseTable(u.header)
	if err != nil {
		return nil, err
	}
	l := &compressedLayout{t: t, data: -1, gzip: -1, scale: -1, zero: -1}
	for i, c := range t.cols {
		switch strings.ToUpper(c.name) {
		case colCompressed:
			l.data = i
		case colGzip:
			l.gzip = i
		case colZScale:
			l.scale = i
		case colZZero:
			l.zero = i
		}
	}
	if l.data < 0 {
		return nil, formatErrorf("TTYPE", "compressed image has no %s column", colCompressed)
	}
	name, err := u.header.String("ZCMPTYPE")
	if err != nil {
		return nil, err
	}
	if l.algorithm, err = ParseCompressionAlgorithm(name); err != nil {
		return nil, err
	}
	if l.algorithm == CompressHcompress1 {
		return nil, configErrorf("HCOMPRESS_1 is not supported")
	}
	disk, _ := diskKind(info.bitpix)
	l.bytepix = disk.Size()
	if l.quantized() {
		l.bytepix = 4
	}
	for n := 1; ; n++ {
		key := fmt.Sprintf("ZNAME%d", n)
		if !u.header.Has(key) {
			break
		}
		zname, _ := u.header.String(key)
		if strings.TrimSpace(zname) == "BYTEPIX" {
			v, err := u.header.Int(fmt.Sprintf("ZVAL%d", n))
			if err != nil {
				return nil, err
			}
			l.bytepix = int(v)
		}
	}
	return l, nil
}

func (l *compressedLayout) quantized() bool { return l.scale >= 0 && l.zero >= 0 }

// eachTile visits every tile of the image in row order, planes last.
func eachTile(info *imageInfo, fn func(row, plane, x0, y0, w, h int) error) error {
	width, height, planes := info.plane()
	tiles := info.ditherTiles()
	g := newTileGrid(width, height, tiles[0], tiles[1])
	perPlane := g.count()
	for p := range planes {
		err := g.each(func(tile, x0, y0, w, h int) error {
			return fn(p*perPlane+tile, p, x0, y0, w, h)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// tileRect copies the tile rectangle out of (get) or into (put) a plane.
func tileRect(raw, tile []byte, size, width, height, plane, x0, y0, w, h int, put bool) {
	base := plane * width * height * size
	for y := range h {
		img := raw[base+((y0+y)*width+x0)*size : base+((y0+y)*width+x0+w)*size]
		t := tile[y*w*size : (y+1)*w*size]
		if put {
			copy(img, t)
		} else {
			copy(t, img)
		}
	}
}

// compressImage replaces the tile table of u with the compressed form of raw.
func (f *Fits) compressImage(u *hdu, info *imageInfo, raw []byte) error {
	l, err := parseCompressed(u, info)
	if err != nil {
		return err
	}
	disk, _ := diskKind(info.bitpix)
	size := disk.Size()
	width, height, _ := info.plane()
	q := u.zquantize
	if q == 0 {
		q = defaultQuantizeLevel
	}
	seed := contentSeed(raw)

	t := l.t
	rows := make([]byte, t.rowsSize())
	var heap []byte
	maxData, maxGzip := int64(0), int64(0)
	putDesc := func(row, col int, count int64, payload []byte) {
		c := &t.cols[col]
		off := t.cellOff(row, c)
		binary.BigEndian.PutUint64(rows[off:], uint64(count))
		binary.BigEndian.PutUint64(rows[off+8:], uint64(len(heap)))
		heap = append(heap, payload...)
	}

	err = eachTile(info, func(row, plane, x0, y0, w, h int) error {
		tile := make([]byte, w*h*size)
		tileRect(raw, tile, size, width, height, plane, x0, y0, w, h, false)
		data := tile
		if l.quantized() {
			ints, zscale, zzero, ok := quantizeTile(tile, disk, q, row, seed)
			if !ok {
				gz, err := gzipBytes(tile)
				if err != nil {
					return err
				}
				putDesc(row, l.data, 0, nil)
				putDesc(row, l.gzip, int64(len(gz)), gz)
				maxGzip = max(maxGzip, int64(len(gz)))
				return nil
			}
			data = ints
			putFloat(Float64, rows[t.cellOff(row, &t.cols[l.scale]):], 0, zscale)
			putFloat(Float64, rows[t.cellOff(row, &t.cols[l.zero]):], 0, zzero)
		}
		payload, count, err := encodeTile(l.algorithm, data, l.bytepix)
		if err != nil {
			return err
		}
		putDesc(row, l.data, count, payload)
		maxData = max(maxData, count)
		if l.gzip >= 0 {
			putDesc(row, l.gzip, 0, nil)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := f.rewriteData(u, append(rows, heap...)); err != nil {
		return err
	}
	h := u.header
	if err := h.Update("PCOUNT", int64(len(heap)), ""); err != nil {
		return err
	}
	if h.Has("THEAP") {
		h.Delete("THEAP")
	}
	c := t.cols[l.data]
	c.max = maxData
	if err := h.Update(fmt.Sprintf("TFORM%d", l.data+1), formatTForm(c), ""); err != nil {
		return err
	}
	if l.gzip >= 0 {
		c := t.cols[l.gzip]
		c.max = maxGzip
		if err := h.Update(fmt.Sprintf("TFORM%d", l.gzip+1), formatTForm(c), ""); err != nil {
			return err
		}
	}
	if l.quantized() {
		if err := h.Update("ZQUANTIZ", "SUBTRACTIVE_DITHER_1", "pixel quantization algorithm"); err != nil {
			return err
		}
		if err := h.Update("ZDITHER0", seed, "dithering offset when quantizing floats"); err != nil {
			return err
		}
	}
	return f.flushHeader(f.current)
}

// encodeTile compresses big-endian integers (or float bytes for the gzip
// codecs) and returns the payload with its element count.
func encodeTile(a CompressionAlgorithm, data []byte, bytepix int) ([]byte, int64, error) {
	var out []byte
	var err error
	switch a {
	case CompressGzip1:
		out, err = gzipBytes(data)
	case CompressGzip2:
		out, err = gzipBytes(shuffle(data, bytepix))
	case CompressRice1:
		out, err = riceCompress(data, bytepix)
	case CompressPlio1:
		n := len(data) / bytepix
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = signedAt(data, i, bytepix)
		}
		out, err = plioCompress(vals)
		return out, int64(len(out) / 2), err
	default:
		return nil, 0, configErrorf("cannot compress with %s", a)
	}
	return out, int64(len(out)), err
}

// decodeTile inverts encodeTile for a tile of n elements.
func decodeTile(a CompressionAlgorithm, payload []byte, n, bytepix int) ([]byte, error) {
	switch a {
	case CompressGzip1:
		return gunzipBytes(payload, n*bytepix)
	case CompressGzip2:
		data, err := gunzipBytes(payload, n*bytepix)
		if err != nil {
			return nil, err
		}
		return unshuffle(data, bytepix), nil
	case CompressRice1:
		return riceDecompress(payload, n, bytepix)
	case CompressPlio1:
		vals, err := plioDecompress(payload, n)
		if err != nil {
			return nil, err
		}
		out := make([]byte, n*bytepix)
		for i, v := range vals {
			putUnsigned(out, i, bytepix, uint64(v))
		}
		return out, nil
	}
	return nil, configErrorf("cannot decompress %s", a)
}

func signedAt(data []byte, i, bytepix int) int64 {
	switch bytepix {
	case 1:
		return int64(data[i])
	case 2:
		return int64(int16(binary.BigEndian.Uint16(data[2*i:])))
	case 4:
		return int64(int32(binary.BigEndian.Uint32(data[4*i:])))
	}
	return int64(binary.BigEndian.Uint64(data[8*i:]))
}

// decompressImage expands every tile into big-endian data of the image BITPIX.
func (f *Fits) decompressImage(u *hdu, info *imageInfo) ([]byte, error) {
	l, err := parseCompressed(u, info)
	if err != nil {
		return nil, err
	}
	disk, _ := diskKind(info.bitpix)
	size := disk.Size()
	width, height, _ := info.plane()
	raw := make([]byte, info.npix()*int64(size))
	t := l.t
	blank := int64(quantizeBlank)
	if u.header.Has("ZBLANK") {
		if blank, err = u.header.Int("ZBLANK"); err != nil {
			return nil, err
		}
	}

	err = eachTile(info, func(row, plane, x0, y0, w, h int) error {
		if int64(row) >= t.nrows {
			return newStatus(StatusNoCompressedTile, "tile %d missing from table of %d rows", row, t.nrows)
		}
		n := w * h
		payload, count, err := f.cellBytes(u, t, row, &t.cols[l.data])
		if err != nil {
			return err
		}
		var tile []byte
		switch {
		case count == 0 && l.gzip >= 0:
			gz, _, err := f.cellBytes(u, t, row, &t.cols[l.gzip])
			if err != nil {
				return err
			}
			if len(gz) == 0 {
				return newStatus(StatusNoCompressedTile, "tile %d has no data", row)
			}
			if tile, err = gunzipBytes(gz, n*size); err != nil {
				return err
			}
		case count == 0:
			return newStatus(StatusNoCompressedTile, "tile %d has no data", row)
		case l.quantized():
			ints, err := decodeTile(l.algorithm, payload, n, l.bytepix)
			if err != nil {
				return err
			}
			zscale, err := f.cellFloat(u, t, row, l.scale)
			if err != nil {
				return err
			}
			zzero, err := f.cellFloat(u, t, row, l.zero)
			if err != nil {
				return err
			}
			tile = unquantizeTile(ints, disk, zscale, zzero, blank, info, row)
		default:
			if tile, err = decodeTile(l.algorithm, payload, n, l.bytepix); err != nil {
				return err
			}
			if l.bytepix != size {
				tile = widenTile(tile, n, l.bytepix, disk)
			}
		}
		tileRect(raw, tile, size, width, height, plane, x0, y0, w, h, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (f *Fits) cellFloat(u *hdu, t *tableLayout, row, col int) (float64, error) {
	buf, _, err := f.cellBytes(u, t, row, &t.cols[col])
	if err != nil {
		return 0, err
	}
	var v [1]float64
	decodePixels(buf, t.cols[col].elemKind(), t.cols[col].scaling(), v[:])
	return v[0], nil
}

// widenTile re-encodes integers coded with a narrower BYTEPIX in the disk width.
func widenTile(tile []byte, n, bytepix int, disk Kind) []byte {
	out := make([]byte, n*disk.Size())
	for i := range n {
		putInt(disk, out, i, signedAt(tile, i, bytepix))
	}
	return out
}

// tileNoise estimates the pixel noise of a tile from the median absolute
// difference of neighbouring finite values.
func tileNoise(vals []float64) float64 {
	diffs := make([]float64, 0, len(vals))
	prev := math.NaN()
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !math.IsNaN(prev) {
			diffs = append(diffs, math.Abs(v-prev))
		}
		prev = v
	}
	if len(diffs) == 0 {
		return 0
	}
	slices.Sort(diffs)
	return 1.0483 * quantile(diffs, 0.5)
}

// quantizeTile maps a float tile onto int32 with subtractive dither. It reports
// false when the tile cannot be quantized (constant, all blank or too wide) and
// must be stored losslessly instead.
func quantizeTile(tile []byte, disk Kind, q float64, tileIndex, seed int) ([]byte, float64, float64, bool) {
	n := len(tile) / disk.Size()
	vals := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range vals {
		vals[i] = getFloat(disk, tile, i)
		if v := vals[i]; !math.IsNaN(v) && !math.IsInf(v, 0) {
			lo, hi = min(lo, v), max(hi, v)
		}
	}
	if lo > hi {
		return nil, 0, 0, false
	}
	delta := -q
	if q > 0 {
		delta = tileNoise(vals) / q
	}
	if delta <= 0 || (hi-lo)/delta > math.MaxInt32-2 {
		return nil, 0, 0, false
	}
	out := make([]byte, 4*n)
	d := newDitherer(tileIndex, foldSeed(seed))
	for i, v := range vals {
		r := d.value()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			putInt(Int32, out, i, quantizeBlank)
			continue
		}
		putInt(Int32, out, i, int64(math.Round((v-lo)/delta+r-0.5)))
	}
	return out, delta, lo, true
}

func unquantizeTile(ints []byte, disk Kind, zscale, zzero float64, blank int64, info *imageInfo, tileIndex int) []byte {
	n := len(ints) / 4
	out := make([]byte, n*disk.Size())
	dither := info.quantiz == "SUBTRACTIVE_DITHER_1"
	var d *ditherer
	if dither {
		d = newDitherer(tileIndex, foldSeed(int(max(info.dither0, 1))))
	}
	for i := range n {
		iv := getInt(Int32, ints, i)
		r := 0.5
		if dither {
			r = d.value()
		}
		if iv == blank {
			putFloat(disk, out, i, math.NaN())
			continue
		}
		putFloat(disk, out, i, (float64(iv)-r+0.5)*zscale+zzero)
	}
	return out
}
