package fits

import (
	"fmt"
	"strings"
)

// HDUType classifies a header-data unit.
type HDUType int

const (
	ImageHDU HDUType = iota
	BinaryTableHDU
	ASCIITableHDU
	CompressedImageHDU
)

func (t HDUType) String() string {
	switch t {
	case ImageHDU:
		return "IMAGE"
	case BinaryTableHDU:
		return "BINTABLE"
	case ASCIITableHDU:
		return "TABLE"
	case CompressedImageHDU:
		return "COMPRESSED_IMAGE"
	}
	return fmt.Sprintf("HDUType(%d)", int(t))
}

// hdu records where one header-data unit lives in the file. Header and data each
// occupy a whole number of blocks.
type hdu struct {
	header  *Header
	off     int64
	hblocks int64
	dblocks int64
	// compressor quantize level of a tile-compressed image created by this cursor
	zquantize float64
}

func (h *hdu) dataOff() int64 { return h.off + h.hblocks*BlockSize }
func (h *hdu) end() int64     { return h.dataOff() + h.dblocks*BlockSize }

func (h *hdu) kind() HDUType {
	x, err := h.header.String("XTENSION")
	if err != nil {
		return ImageHDU
	}
	switch strings.TrimSpace(x) {
	case "BINTABLE":
		if z, err := h.header.Bool("ZIMAGE"); err == nil && z {
			return CompressedImageHDU
		}
		return BinaryTableHDU
	case "TABLE":
		return ASCIITableHDU
	}
	return ImageHDU
}

func blocksFor(n int64) int64 { return (n + BlockSize - 1) / BlockSize }

// dataSize is the byte length of the data unit described by h, heap included.
func dataSize(h *Header) (int64, error) {
	bitpix, err := h.Int("BITPIX")
	if err != nil {
		return 0, err
	}
	naxis, err := h.Int("NAXIS")
	if err != nil {
		return 0, err
	}
	if naxis < 0 || naxis > 999 {
		return 0, newStatus(StatusBadNAxis, "NAXIS = %d", naxis)
	}
	if naxis == 0 {
		return 0, nil
	}
	n := int64(1)
	for i := 1; i <= int(naxis); i++ {
		ni, err := h.Int(fmt.Sprintf("NAXIS%d", i))
		if err != nil {
			return 0, err
		}
		if ni < 0 {
			return 0, newStatus(StatusBadNAxis, "NAXIS%d = %d", i, ni)
		}
		// random groups put 0 in NAXIS1
		if i == 1 && ni == 0 && naxis > 1 && h.Has("GROUPS") {
			continue
		}
		n *= ni
	}
	pcount, err := h.IntDefault("PCOUNT", 0)
	if err != nil {
		return 0, err
	}
	gcount, err := h.IntDefault("GCOUNT", 1)
	if err != nil {
		return 0, err
	}
	size := int64(abs(int(bitpix))) / 8
	return size * gcount * (pcount + n), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// readHeaderAt reads header blocks starting at off until the END card.
func readHeaderAt(s storage, off int64) (*Header, int64, error) {
	var buf []byte
	block := make([]byte, BlockSize)
	for {
		if err := readFull(s, block, off+int64(len(buf))); err != nil {
			return nil, 0, wrapStatus(StatusEndOfFile, err, "header at offset %d has no END card", off)
		}
		buf = append(buf, block...)
		if hasEnd(block) {
			break
		}
	}
	h, n, err := ParseHeader(buf)
	if err != nil {
		return nil, 0, wrapStatus(StatusReadError, err, "parsing header at offset %d", off)
	}
	return h, int64(n), nil
}

func hasEnd(block []byte) bool {
	for i := 0; i < CardsPerBlock; i++ {
		c := block[i*CardSize : (i+1)*CardSize]
		if string(c[:3]) == "END" && strings.TrimSpace(string(c[3:])) == "" {
			return true
		}
	}
	return false
}

// scanHDUs walks the file and records every HDU.
func scanHDUs(s storage) ([]*hdu, error) {
	var hdus []*hdu
	size := s.Size()
	for off := int64(0); off+BlockSize <= size; {
		h, n, err := readHeaderAt(s, off)
		if err != nil {
			if len(hdus) > 0 {
				// trailing junk after the last complete HDU is ignored
				break
			}
			return nil, err
		}
		if h.Len() == 0 {
			return nil, newStatus(StatusNoSimple, "empty header at offset %d", off)
		}
		if len(hdus) == 0 {
			if simple, err := h.Bool("SIMPLE"); err != nil || !simple || cardKey(h.Raw(0)) != "SIMPLE" {
				return nil, newStatus(StatusNoSimple, "first card is not SIMPLE = T")
			}
		} else if cardKey(h.Raw(0)) != "XTENSION" {
			return nil, newStatus(StatusNoXtension, "HDU %d does not start with XTENSION", len(hdus))
		}
		ds, err := dataSize(h)
		if err != nil {
			return nil, err
		}
		u := &hdu{header: h, off: off, hblocks: n / BlockSize, dblocks: blocksFor(ds)}
		hdus = append(hdus, u)
		off = u.end()
	}
	return hdus, nil
}

// primaryHeader builds the structural cards of a primary image HDU.
func primaryHeader(bitpix int, axes []int64) *Header {
	h := NewHeader()
	_ = h.Append("SIMPLE", true, "file does conform to FITS standard")
	_ = h.Append("BITPIX", bitpix, "number of bits per data pixel")
	_ = h.Append("NAXIS", len(axes), "number of data axes")
	for i, n := range axes {
		_ = h.Append(fmt.Sprintf("NAXIS%d", i+1), n, fmt.Sprintf("length of data axis %d", i+1))
	}
	_ = h.Append("EXTEND", true, "FITS dataset may contain extensions")
	_ = h.Append("COMMENT", boilerplate[0], "")
	_ = h.Append("COMMENT", boilerplate[1], "")
	return h
}

// boilerplate is the standard pointer to the FITS definition written into new
// primary headers.
var boilerplate = [2]string{
	"  FITS (Flexible Image Transport System) format is defined in 'Astronomy",
	"  and Astrophysics', volume 376, page 359; bibcode: 2001A&A...376..359H",
}

// extensionHeader builds the structural cards of an IMAGE extension.
func extensionHeader(bitpix int, axes []int64) *Header {
	h := NewHeader()
	_ = h.Append("XTENSION", "IMAGE", "IMAGE extension")
	_ = h.Append("BITPIX", bitpix, "number of bits per data pixel")
	_ = h.Append("NAXIS", len(axes), "number of data axes")
	for i, n := range axes {
		_ = h.Append(fmt.Sprintf("NAXIS%d", i+1), n, fmt.Sprintf("length of data axis %d", i+1))
	}
	_ = h.Append("PCOUNT", 0, "required keyword; must = 0")
	_ = h.Append("GCOUNT", 1, "required keyword; must = 1")
	return h
}

// tableHeader builds the structural cards of an empty binary table.
func tableHeader() *Header {
	h := NewHeader()
	_ = h.Append("XTENSION", "BINTABLE", "binary table extension")
	_ = h.Append("BITPIX", 8, "8-bit bytes")
	_ = h.Append("NAXIS", 2, "2-dimensional binary table")
	_ = h.Append("NAXIS1", 0, "width of table in bytes")
	_ = h.Append("NAXIS2", 0, "number of rows in table")
	_ = h.Append("PCOUNT", 0, "size of special data area")
	_ = h.Append("GCOUNT", 1, "one data group (required keyword)")
	_ = h.Append("TFIELDS", 0, "number of fields in each row")
	return h
}
