package fits

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// Tile codecs of the FITS tiled image convention. Integer tiles travel as
// big-endian bytes of width bytepix.

var gzipWriters = sync.Pool{
	New: func() any { return gzip.NewWriter(io.Discard) },
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(zw)
	zw.Reset(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, wrapStatus(StatusDataCompression, err, "gzip tile")
	}
	if err := zw.Close(); err != nil {
		return nil, wrapStatus(StatusDataCompression, err, "gzip tile")
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte, size int) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, wrapStatus(StatusDataDecompress, err, "gunzip tile")
	}
	defer func() { _ = zr.Close() }()
	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, wrapStatus(StatusDataDecompress, err, "gunzip tile: want %d bytes", size)
	}
	return out, nil
}

// shuffle groups bytes by their position within each bytepix-wide element, most
// significant bytes first.
func shuffle(data []byte, bytepix int) []byte {
	if bytepix <= 1 {
		return data
	}
	n := len(data) / bytepix
	out := make([]byte, len(data))
	for i := range n {
		for b := range bytepix {
			out[b*n+i] = data[i*bytepix+b]
		}
	}
	return out
}

func unshuffle(data []byte, bytepix int) []byte {
	if bytepix <= 1 {
		return data
	}
	n := len(data) / bytepix
	out := make([]byte, len(data))
	for i := range n {
		for b := range bytepix {
			out[i*bytepix+b] = data[b*n+i]
		}
	}
	return out
}

// Rice coding parameters per element width.
type riceParams struct {
	fsbits, fsmax, bbits int
}

const riceBlockSize = 32

func riceParamsFor(bytepix int) (riceParams, error) {
	switch bytepix {
	case 1:
		return riceParams{3, 6, 8}, nil
	case 2:
		return riceParams{4, 14, 16}, nil
	case 4:
		return riceParams{5, 25, 32}, nil
	}
	return riceParams{}, configErrorf("RICE_1 cannot code %d-byte pixels", bytepix)
}

type bitWriter struct {
	out  []byte
	acc  uint64
	nacc int
}

func (w *bitWriter) write(v uint64, n int) {
	for n > 0 {
		take := min(n, 32)
		n -= take
		w.acc = w.acc<<take | (v>>n)&(1<<take-1)
		w.nacc += take
		for w.nacc >= 8 {
			w.nacc -= 8
			w.out = append(w.out, byte(w.acc>>w.nacc))
		}
		w.acc &= 1<<w.nacc - 1
	}
}

func (w *bitWriter) flush() []byte {
	if w.nacc > 0 {
		w.out = append(w.out, byte(w.acc<<(8-w.nacc)))
		w.acc, w.nacc = 0, 0
	}
	return w.out
}

type bitReader struct {
	in  []byte
	pos int // bit position
}

func (r *bitReader) bit() (uint64, error) {
	if r.pos >= len(r.in)*8 {
		return 0, newStatus(StatusDataDecompress, "rice stream truncated")
	}
	b := r.in[r.pos>>3] >> (7 - r.pos&7) & 1
	r.pos++
	return uint64(b), nil
}

func (r *bitReader) read(n int) (uint64, error) {
	var v uint64
	for range n {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

// riceCompress codes n big-endian integers of width bytepix.
func riceCompress(raw []byte, bytepix int) ([]byte, error) {
	p, err := riceParamsFor(bytepix)
	if err != nil {
		return nil, err
	}
	n := len(raw) / bytepix
	if n == 0 {
		return nil, nil
	}
	mask := uint64(1)<<p.bbits - 1
	get := func(i int) uint64 { return uint64(getUnsigned(raw, i, bytepix)) }

	w := &bitWriter{}
	last := get(0)
	w.write(last, p.bbits)
	diffs := make([]uint64, riceBlockSize)
	for start := 0; start < n; start += riceBlockSize {
		count := min(riceBlockSize, n-start)
		var sum uint64
		for j := range count {
			v := get(start + j)
			d := (v - last) & mask
			last = v
			// zigzag within the pixel width
			if d>>(p.bbits-1) != 0 {
				d = (^(d << 1)) & mask
			} else {
				d = (d << 1) & mask
			}
			diffs[j] = d
			sum += d
		}
		dpsum := (float64(sum) - float64(count/2) - 1) / float64(count)
		if dpsum < 0 {
			dpsum = 0
		}
		psum := uint64(dpsum) >> 1
		fs := 0
		for ; psum > 0; fs++ {
			psum >>= 1
		}
		switch {
		case fs >= p.fsmax:
			w.write(uint64(p.fsmax+1), p.fsbits)
			for j := range count {
				w.write(diffs[j], p.bbits)
			}
		case fs == 0 && sum == 0:
			w.write(0, p.fsbits)
		default:
			w.write(uint64(fs+1), p.fsbits)
			fsmask := uint64(1)<<fs - 1
			for j := range count {
				top := diffs[j] >> fs
				for ; top > 32; top -= 32 {
					w.write(0, 32)
				}
				w.write(1, int(top)+1)
				if fs > 0 {
					w.write(diffs[j]&fsmask, fs)
				}
			}
		}
	}
	return w.flush(), nil
}

// riceDecompress decodes n integers of width bytepix into big-endian bytes.
func riceDecompress(data []byte, n, bytepix int) ([]byte, error) {
	p, err := riceParamsFor(bytepix)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n*bytepix)
	if n == 0 {
		return out, nil
	}
	mask := uint64(1)<<p.bbits - 1
	r := &bitReader{in: data}
	last, err := r.read(p.bbits)
	if err != nil {
		return nil, err
	}
	for start := 0; start < n; start += riceBlockSize {
		count := min(riceBlockSize, n-start)
		code, err := r.read(p.fsbits)
		if err != nil {
			return nil, err
		}
		fs := int(code) - 1
		for j := range count {
			var d uint64
			switch {
			case fs < 0:
			case fs == p.fsmax:
				if d, err = r.read(p.bbits); err != nil {
					return nil, err
				}
			default:
				top := uint64(0)
				for {
					b, err := r.bit()
					if err != nil {
						return nil, err
					}
					if b == 1 {
						break
					}
					top++
				}
				low, err := r.read(fs)
				if err != nil {
					return nil, err
				}
				d = top<<fs | low
			}
			if d&1 == 0 {
				d >>= 1
			} else {
				d = ^(d >> 1)
			}
			last = (last + d) & mask
			putUnsigned(out, start+j, bytepix, last)
		}
	}
	return out, nil
}

func getUnsigned(raw []byte, i, bytepix int) uint64 {
	switch bytepix {
	case 1:
		return uint64(raw[i])
	case 2:
		return uint64(binary.BigEndian.Uint16(raw[2*i:]))
	case 4:
		return uint64(binary.BigEndian.Uint32(raw[4*i:]))
	}
	return binary.BigEndian.Uint64(raw[8*i:])
}

func putUnsigned(raw []byte, i, bytepix int, v uint64) {
	switch bytepix {
	case 1:
		raw[i] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(raw[2*i:], uint16(v))
	case 4:
		binary.BigEndian.PutUint32(raw[4*i:], uint32(v))
	default:
		binary.BigEndian.PutUint64(raw[8*i:], v)
	}
}

// PLIO line-list opcodes. Each word holds op<<12 | data.
const (
	plioZN = iota // data zeros
	plioHN        // data pixels of the high value
	plioPN        // data-1 zeros, then one high value pixel
	plioSH        // set high value: data | next word << 12
	plioIH        // high value += data
	plioDH        // high value -= data
	plioIS        // high value += data, one pixel
	plioDS        // high value -= data, one pixel
)

const (
	plioHeaderLen = 7
	plioMaxData   = 4095
	plioMaxValue  = 1<<24 - 1
)

// plioCompress codes non-negative integers below 2^24 as a line list of 16-bit
// words, returned big-endian.
func plioCompress(values []int64) ([]byte, error) {
	words := make([]int16, plioHeaderLen, plioHeaderLen+len(values)/2+8)
	emit := func(op, data int) { words = append(words, int16(op<<12|data)) }
	zeros := func(n int) {
		for ; n > 0; n -= plioMaxData {
			emit(plioZN, min(n, plioMaxData))
		}
	}
	pv := int64(1)
	for i := 0; i < len(values); {
		v := values[i]
		if v < 0 || v > plioMaxValue {
			return nil, newStatus(StatusDataCompression, "PLIO_1 value %d at pixel %d outside 0..%d", v, i, plioMaxValue)
		}
		run := 1
		for i+run < len(values) && values[i+run] == v {
			run++
		}
		i += run
		if v == 0 {
			zeros(run)
			continue
		}
		d := v - pv
		switch {
		case d == 0:
		case d > 0 && d <= plioMaxData && run == 1:
			emit(plioIS, int(d))
			pv = v
			continue
		case d < 0 && -d <= plioMaxData && run == 1:
			emit(plioDS, int(-d))
			pv = v
			continue
		case d > 0 && d <= plioMaxData:
			emit(plioIH, int(d))
		case d < 0 && -d <= plioMaxData:
			emit(plioDH, int(-d))
		default:
			emit(plioSH, int(v&plioMaxData))
			words = append(words, int16(v>>12))
		}
		pv = v
		for ; run > 0; run -= plioMaxData {
			emit(plioHN, min(run, plioMaxData))
		}
	}
	total := len(words)
	words[1] = plioHeaderLen
	words[2] = -100
	words[3] = int16(total % 32768)
	words[4] = int16(total / 32768)

	out := make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(out[2*i:], uint16(w))
	}
	return out, nil
}

// plioDecompress expands a line list into n values.
func plioDecompress(data []byte, n int) ([]int64, error) {
	words := make([]int16, len(data)/2)
	for i := range words {
		words[i] = int16(binary.BigEndian.Uint16(data[2*i:]))
	}
	if len(words) < 3 {
		return nil, newStatus(StatusDataDecompress, "PLIO_1 list of %d words", len(words))
	}
	var length, first int
	if words[2] > 0 {
		// old format header
		length, first = int(words[0]), 3
	} else {
		if len(words) < plioHeaderLen {
			return nil, newStatus(StatusDataDecompress, "PLIO_1 header truncated")
		}
		length = int(words[4])<<15 + int(words[3])
		first = int(words[1])
	}
	length = min(length, len(words))
	out := make([]int64, n)
	pos := 0
	put := func(v int64, count int) {
		for ; count > 0 && pos < n; count-- {
			out[pos] = v
			pos++
		}
	}
	pv := int64(1)
	for ip := first; ip < length && pos < n; ip++ {
		op := int(uint16(words[ip]) >> 12)
		d := int(words[ip] & plioMaxData)
		switch op {
		case plioZN:
			put(0, d)
		case plioHN:
			put(pv, d)
		case plioPN:
			put(0, d-1)
			put(pv, 1)
		case plioSH:
			if ip+1 >= length {
				return nil, newStatus(StatusDataDecompress, "PLIO_1 set-high at end of list")
			}
			ip++
			pv = int64(words[ip])<<12 | int64(d)
		case plioIH:
			pv += int64(d)
		case plioDH:
			pv -= int64(d)
		case plioIS:
			pv += int64(d)
			put(pv, 1)
		case plioDS:
			pv -= int64(d)
			put(pv, 1)
		}
	}
	return out, nil
}
