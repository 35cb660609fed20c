package fits

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tformRegex = regexp.MustCompile(`^(\d*)([PQ]?)([LXBIJKAEDCMUVS])(?:\((\d+)\))?$`)

// column is one parsed binary table field.
type column struct {
	name   string
	code   byte  // element code with U, V and S folded onto I, J and B
	repeat int64 // elements per row for fixed columns
	varlen byte  // 0, 'P' or 'Q'
	max    int64 // declared maximum length of a variable-length column
	offset int64 // byte offset within the row
	width  int64 // bytes within the row
	tzero  float64
	tscale float64
}

// elemKind is the disk kind of numeric elements; complex columns hold float pairs.
func (c *column) elemKind() Kind {
	switch c.code {
	case 'B':
		return Uint8
	case 'I':
		return Int16
	case 'J':
		return Int32
	case 'K':
		return Int64
	case 'E', 'C':
		return Float32
	case 'D', 'M':
		return Float64
	}
	return KindInvalid
}

// elemsPer is the number of stored numbers per logical element.
func (c *column) elemsPer() int64 {
	if c.code == 'C' || c.code == 'M' {
		return 2
	}
	return 1
}

func (c *column) scaling() scaling {
	return scaling{bscale: c.tscale, bzero: c.tzero}
}

func codeSize(code byte) int64 {
	switch code {
	case 'L', 'B', 'A':
		return 1
	case 'I':
		return 2
	case 'J', 'E':
		return 4
	case 'K', 'D', 'C':
		return 8
	case 'M':
		return 16
	}
	return 0
}

// parseTForm decodes a TFORM value. Non-standard U, V and S codes carry their
// implied offset in tzero.
func parseTForm(tform string) (col column, implied float64, err error) {
	m := tformRegex.FindStringSubmatch(strings.TrimSpace(tform))
	if m == nil {
		return col, 0, formatErrorf("TFORM", "unrecognized format %q", tform)
	}
	col.repeat = 1
	if m[1] != "" {
		if col.repeat, err = strconv.ParseInt(m[1], 10, 64); err != nil {
			return col, 0, formatErrorf("TFORM", "bad repeat in %q", tform)
		}
	}
	if m[2] != "" {
		col.varlen = m[2][0]
	}
	col.code = m[3][0]
	switch col.code {
	case 'U':
		col.code, implied = 'I', 32768
	case 'V':
		col.code, implied = 'J', 2147483648
	case 'S':
		col.code, implied = 'B', -128
	}
	if m[4] != "" {
		col.max, _ = strconv.ParseInt(m[4], 10, 64)
	}
	switch {
	case col.varlen == 'P':
		col.width = 8 * min(col.repeat, 1)
	case col.varlen == 'Q':
		col.width = 16 * min(col.repeat, 1)
	case col.code == 'X':
		col.width = (col.repeat + 7) / 8
	default:
		col.width = col.repeat * codeSize(col.code)
	}
	return col, implied, nil
}

func formatTForm(c column) string {
	if c.varlen != 0 {
		if c.max > 0 {
			return fmt.Sprintf("1%c%c(%d)", c.varlen, c.code, c.max)
		}
		return fmt.Sprintf("1%c%c", c.varlen, c.code)
	}
	return fmt.Sprintf("%d%c", c.repeat, c.code)
}

// tableLayout is the parsed structure of a binary table data unit.
type tableLayout struct {
	cols      []column
	rowLen    int64
	nrows     int64
	pcount    int64
	heapStart int64
}

func (t *tableLayout) rowsSize() int64 { return t.rowLen * t.nrows }

// heapUsed is the number of heap bytes from heapStart to the end of the data.
func (t *tableLayout) heapUsed() int64 { return t.rowsSize() + t.pcount - t.heapStart }

func parseTable(h *Header) (*tableLayout, error) {
	t := &tableLayout{}
	var err error
	if t.rowLen, err = h.Int("NAXIS1"); err != nil {
		return nil, err
	}
	if t.nrows, err = h.Int("NAXIS2"); err != nil {
		return nil, err
	}
	if t.pcount, err = h.IntDefault("PCOUNT", 0); err != nil {
		return nil, err
	}
	if t.heapStart, err = h.IntDefault("THEAP", t.rowsSize()); err != nil {
		return nil, err
	}
	nfields, err := h.Int("TFIELDS")
	if err != nil {
		return nil, err
	}
	off := int64(0)
	for i := 1; i <= int(nfields); i++ {
		tform, err := h.String(fmt.Sprintf("TFORM%d", i))
		if err != nil {
			return nil, err
		}
		c, implied, err := parseTForm(tform)
		if err != nil {
			return nil, err
		}
		c.name, _ = h.String(fmt.Sprintf("TTYPE%d", i))
		c.name = strings.TrimSpace(c.name)
		if c.tzero, err = h.FloatDefault(fmt.Sprintf("TZERO%d", i), implied); err != nil {
			return nil, err
		}
		if c.tscale, err = h.FloatDefault(fmt.Sprintf("TSCAL%d", i), 1); err != nil {
			return nil, err
		}
		c.offset = off
		off += c.width
		t.cols = append(t.cols, c)
	}
	if off != t.rowLen {
		return nil, formatErrorf("NAXIS1", "row width %d does not match columns (%d bytes)", t.rowLen, off)
	}
	return t, nil
}

// tableHDU returns the current HDU and its layout when it is a binary table.
func (f *Fits) tableHDU() (*hdu, *tableLayout, error) {
	u, err := f.currentHDU()
	if err != nil {
		return nil, nil, err
	}
	if k := u.kind(); k != BinaryTableHDU && k != CompressedImageHDU {
		return nil, nil, wrapStatus(StatusNotBTable, ErrNotTable, "HDU %d is %s", f.current, k)
	}
	t, err := parseTable(u.header)
	if err != nil {
		return nil, nil, err
	}
	return u, t, nil
}

func (t *tableLayout) cell(row, col int) (*column, error) {
	if col < 0 || col >= len(t.cols) {
		return nil, newStatus(StatusBadColNum, "column %d requested, table has %d", col, len(t.cols))
	}
	if row < 0 || int64(row) >= t.nrows {
		return nil, newStatus(StatusBadRowNum, "row %d requested, table has %d", row, t.nrows)
	}
	return &t.cols[col], nil
}

func (t *tableLayout) cellOff(row int, c *column) int64 {
	return int64(row)*t.rowLen + c.offset
}

// CreateTable appends an empty binary table HDU and makes it current. An empty
// primary HDU is written first when the file has none.
func (f *Fits) CreateTable() error {
	if stop, err := f.enter("creating table"); stop {
		return err
	}
	if err := f.ensurePrimary(); err != nil {
		return f.check(err, "creating table")
	}
	return f.check(f.appendHDU(tableHeader(), 0), "creating table")
}

// tableCode maps a pixel kind onto its TFORM code and TZERO.
func tableCode(k Kind) (byte, any) {
	switch k {
	case Uint8:
		return 'B', nil
	case Int8:
		return 'B', int64(-128)
	case Int16:
		return 'I', nil
	case Uint16:
		return 'I', int64(32768)
	case Int32:
		return 'J', nil
	case Uint32:
		return 'J', int64(2147483648)
	case Int64:
		return 'K', nil
	case Uint64:
		return 'K', uint64(1 << 63)
	case Float32:
		return 'E', nil
	}
	return 'D', nil
}

// sizedColumn builds a column definition: size > 0 is fixed, 0 is variable
// length and unbounded, and < 0 is variable length with maximum -size.
func sizedColumn(code byte, size int) column {
	c := column{code: code}
	switch {
	case size > 0:
		c.repeat = int64(size)
	case size == 0:
		c.varlen, c.repeat = 'Q', 1
	default:
		c.varlen, c.repeat, c.max = 'Q', 1, int64(-size)
	}
	return c
}

// AddColumn appends a numeric column of T and returns its 0-based index.
func AddColumn[T Pixel](f *Fits, name string, size int, comment string) (int, error) {
	code, tzero := tableCode(KindFor[T]())
	return f.addColumn(name, sizedColumn(code, size), tzero, comment)
}

// AddStringColumn appends a character column. A fixed size is the string width.
func (f *Fits) AddStringColumn(name string, size int, comment string) (int, error) {
	return f.addColumn(name, sizedColumn('A', size), nil, comment)
}

// AddBoolColumn appends a bit column of size flags per row.
func (f *Fits) AddBoolColumn(name string, size int, comment string) (int, error) {
	if size <= 0 {
		return 0, configErrorf("bit column %q needs a fixed size, got %d", name, size)
	}
	return f.addColumn(name, column{code: 'X', repeat: int64(size)}, nil, comment)
}

func (f *Fits) addColumn(name string, c column, tzero any, comment string) (int, error) {
	context := fmt.Sprintf("adding column %q", name)
	if stop, err := f.enter(context); stop {
		return 0, err
	}
	n, err := f.addColumnLocked(name, c, tzero, comment)
	return n, f.check(err, context)
}

func (f *Fits) addColumnLocked(name string, c column, tzero any, comment string) (int, error) {
	u, t, err := f.tableHDU()
	if err != nil {
		return 0, err
	}
	if err := f.writable(); err != nil {
		return 0, err
	}
	parsed, _, err := parseTForm(formatTForm(c))
	if err != nil {
		return 0, err
	}
	width := parsed.width

	if t.nrows > 0 && width > 0 {
		data, err := f.readData(u, 0, t.rowsSize()+t.pcount)
		if err != nil {
			return 0, err
		}
		rowLen := t.rowLen + width
		out := make([]byte, rowLen*t.nrows, rowLen*t.nrows+int64(len(data))-t.rowsSize())
		for r := range t.nrows {
			copy(out[r*rowLen:], data[r*t.rowLen:(r+1)*t.rowLen])
		}
		out = append(out, data[t.rowsSize():]...)
		if u.header.Has("THEAP") {
			if err := u.header.Update("THEAP", t.heapStart+width*t.nrows, ""); err != nil {
				return 0, err
			}
		}
		if err := f.rewriteData(u, out); err != nil {
			return 0, err
		}
	}

	idx := len(t.cols) + 1
	h := u.header
	if err := h.Update("NAXIS1", t.rowLen+width, ""); err != nil {
		return 0, err
	}
	if err := h.Update("TFIELDS", idx, ""); err != nil {
		return 0, err
	}
	if err := h.Append(fmt.Sprintf("TTYPE%d", idx), name, comment); err != nil {
		return 0, err
	}
	if err := h.Append(fmt.Sprintf("TFORM%d", idx), formatTForm(c), tformComment(c)); err != nil {
		return 0, err
	}
	if tzero != nil {
		if err := h.Append(fmt.Sprintf("TZERO%d", idx), tzero, "offset for unsigned integers"); err != nil {
			return 0, err
		}
	}
	if err := f.flushHeader(f.current); err != nil {
		return 0, err
	}
	return idx - 1, nil
}

func tformComment(c column) string {
	names := map[byte]string{
		'L': "logical", 'X': "bits", 'B': "8-bit integer", 'I': "16-bit integer",
		'J': "32-bit integer", 'K': "64-bit integer", 'A': "characters",
		'E': "32-bit float", 'D': "64-bit float", 'C': "complex", 'M': "double complex",
	}
	s := "format of field: " + names[c.code]
	if c.varlen != 0 {
		s += " array"
	}
	return s
}

// rewriteData replaces the whole data unit of u with data; NAXIS and PCOUNT are
// the caller's business.
func (f *Fits) rewriteData(u *hdu, data []byte) error {
	if err := f.resizeData(f.current, int64(len(data))); err != nil {
		return err
	}
	if err := f.writeData(u, 0, data); err != nil {
		return err
	}
	pad := u.dblocks*BlockSize - int64(len(data))
	return writeZeros(f.st, u.dataOff()+int64(len(data)), pad)
}

// AddRows appends n zeroed rows and returns the index of the first.
func (f *Fits) AddRows(n int) (int, error) {
	context := fmt.Sprintf("adding %d rows", n)
	if stop, err := f.enter(context); stop {
		return 0, err
	}
	first, err := f.addRows(n)
	return first, f.check(err, context)
}

func (f *Fits) addRows(n int) (int, error) {
	u, t, err := f.tableHDU()
	if err != nil {
		return 0, err
	}
	if err := f.writable(); err != nil {
		return 0, err
	}
	first := int(t.nrows)
	if n <= 0 {
		return first, nil
	}
	grow := int64(n) * t.rowLen
	if t.pcount > 0 {
		data, err := f.readData(u, 0, t.rowsSize()+t.pcount)
		if err != nil {
			return 0, err
		}
		out := make([]byte, 0, int64(len(data))+grow)
		out = append(out, data[:t.rowsSize()]...)
		out = append(out, make([]byte, grow)...)
		out = append(out, data[t.rowsSize():]...)
		if u.header.Has("THEAP") {
			if err := u.header.Update("THEAP", t.heapStart+grow, ""); err != nil {
				return 0, err
			}
		}
		if err := f.rewriteData(u, out); err != nil {
			return 0, err
		}
	} else {
		size := t.rowsSize() + grow
		if err := f.resizeData(f.current, size); err != nil {
			return 0, err
		}
		if err := writeZeros(f.st, u.dataOff()+t.rowsSize(), u.dblocks*BlockSize-t.rowsSize()); err != nil {
			return 0, err
		}
	}
	if err := u.header.Update("NAXIS2", t.nrows+int64(n), ""); err != nil {
		return 0, err
	}
	return first, f.flushHeader(f.current)
}

// CountRows returns the number of rows of the current table.
func (f *Fits) CountRows() (int, error) {
	if stop, err := f.enter("counting rows"); stop {
		return 0, err
	}
	_, t, err := f.tableHDU()
	if err != nil {
		return 0, f.check(err, "counting rows")
	}
	return int(t.nrows), nil
}

// CountColumns returns the number of columns of the current table.
func (f *Fits) CountColumns() (int, error) {
	if stop, err := f.enter("counting columns"); stop {
		return 0, err
	}
	_, t, err := f.tableHDU()
	if err != nil {
		return 0, f.check(err, "counting columns")
	}
	return len(t.cols), nil
}

// ColumnIndex returns the 0-based index of the column named name, compared
// without regard to case.
func (f *Fits) ColumnIndex(name string) (int, error) {
	context := fmt.Sprintf("finding column %q", name)
	if stop, err := f.enter(context); stop {
		return 0, err
	}
	_, t, err := f.tableHDU()
	if err != nil {
		return 0, f.check(err, context)
	}
	for i, c := range t.cols {
		if strings.EqualFold(c.name, name) {
			return i, nil
		}
	}
	return 0, f.check(newStatus(StatusColNotFound, "no column %q", name), context)
}

// ColumnName returns the TTYPE of column col.
func (f *Fits) ColumnName(col int) (string, error) {
	if stop, err := f.enter("reading column name"); stop {
		return "", err
	}
	_, t, err := f.tableHDU()
	if err == nil && (col < 0 || col >= len(t.cols)) {
		err = newStatus(StatusBadColNum, "column %d requested, table has %d", col, len(t.cols))
	}
	if err != nil {
		return "", f.check(err, "reading column name")
	}
	return t.cols[col].name, nil
}

// descriptor reads the (count, heap offset) pair of a variable-length cell.
func (f *Fits) descriptor(u *hdu, t *tableLayout, row int, c *column) (int64, int64, error) {
	buf, err := f.readData(u, t.cellOff(row, c), c.width)
	if err != nil {
		return 0, 0, err
	}
	if c.varlen == 'P' {
		return int64(int32(binary.BigEndian.Uint32(buf))), int64(int32(binary.BigEndian.Uint32(buf[4:]))), nil
	}
	return int64(binary.BigEndian.Uint64(buf)), int64(binary.BigEndian.Uint64(buf[8:])), nil
}

// cellBytes returns the stored bytes of a cell and the number of logical
// elements in it.
func (f *Fits) cellBytes(u *hdu, t *tableLayout, row int, c *column) ([]byte, int64, error) {
	if c.varlen == 0 {
		buf, err := f.readData(u, t.cellOff(row, c), c.width)
		return buf, c.repeat, err
	}
	count, off, err := f.descriptor(u, t, row, c)
	if err != nil {
		return nil, 0, err
	}
	var n int64
	switch c.code {
	case 'X':
		n = (count + 7) / 8
	default:
		n = count * codeSize(c.code)
	}
	if count < 0 || off < 0 || t.heapStart+off+n > t.rowsSize()+t.pcount {
		return nil, 0, newStatus(StatusBadElemNum, "descriptor (%d, %d) outside heap of %d bytes", count, off, t.heapUsed())
	}
	buf, err := f.readData(u, t.heapStart+off, n)
	return buf, count, err
}

// putCell stores payload, which holds count logical elements, into a cell. Fixed
// cells are overwritten in place; variable-length payloads are appended to the
// heap and the column maximum raised when needed.
func (f *Fits) putCell(u *hdu, t *tableLayout, row, col int, c *column, payload []byte, count int64) error {
	if err := f.writable(); err != nil {
		return err
	}
	if c.varlen == 0 {
		if int64(len(payload)) > c.width {
			return newStatus(StatusBadElemNum, "%d elements do not fit column %d of width %d", count, col, c.repeat)
		}
		cell := make([]byte, c.width)
		copy(cell, payload)
		return f.writeData(u, t.cellOff(row, c), cell)
	}

	off := t.heapUsed()
	end := t.rowsSize() + t.pcount
	if len(payload) > 0 {
		if err := f.resizeData(f.current, end+int64(len(payload))); err != nil {
			return err
		}
		if err := f.writeData(u, end, payload); err != nil {
			return err
		}
		t.pcount += int64(len(payload))
	}
	desc := make([]byte, c.width)
	if c.varlen == 'P' {
		binary.BigEndian.PutUint32(desc, uint32(count))
		binary.BigEndian.PutUint32(desc[4:], uint32(off))
	} else {
		binary.BigEndian.PutUint64(desc, uint64(count))
		binary.BigEndian.PutUint64(desc[8:], uint64(off))
	}
	if err := f.writeData(u, t.cellOff(row, c), desc); err != nil {
		return err
	}

	h := u.header
	dirty := false
	if len(payload) > 0 {
		if err := h.Update("PCOUNT", t.pcount, ""); err != nil {
			return err
		}
		dirty = true
	}
	if count > c.max {
		c.max = count
		if err := h.Update(fmt.Sprintf("TFORM%d", col+1), formatTForm(*c), ""); err != nil {
			return err
		}
		dirty = true
	}
	if !dirty {
		return nil
	}
	return f.flushHeader(f.current)
}

// tableCell resolves the current table and a cell for a read or write.
func (f *Fits) tableCell(row, col int) (*hdu, *tableLayout, *column, error) {
	u, t, err := f.tableHDU()
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := t.cell(row, col)
	if err != nil {
		return nil, nil, nil, err
	}
	return u, t, c, nil
}

func numericColumn(c *column, col int) error {
	if c.elemKind() == KindInvalid {
		return typeErrorf("column %d (%s, code %c) is not numeric", col, c.name, c.code)
	}
	return nil
}

// WriteTableArray stores values into a cell. Complex columns take interleaved
// real and imaginary parts.
func WriteTableArray[T Pixel](f *Fits, row, col int, values []T) error {
	context := fmt.Sprintf("writing array to row %d, column %d", row, col)
	if stop, err := f.enter(context); stop {
		return err
	}
	u, t, c, err := f.tableCell(row, col)
	if err == nil {
		err = numericColumn(c, col)
	}
	if err != nil {
		return f.check(err, context)
	}
	disk := c.elemKind()
	raw := make([]byte, len(values)*disk.Size())
	if err := encodePixels(values, disk, c.scaling(), raw); err != nil {
		return f.check(err, context)
	}
	return f.check(f.putCell(u, t, row, col, c, raw, int64(len(values))/c.elemsPer()), context)
}

// WriteTableScalar stores v as the first element of a cell.
func WriteTableScalar[T Pixel](f *Fits, row, col int, v T) error {
	return WriteTableArray(f, row, col, []T{v})
}

// ReadTableArray returns the elements of a cell converted to T.
func ReadTableArray[T Pixel](f *Fits, row, col int) ([]T, error) {
	context := fmt.Sprintf("reading array from row %d, column %d", row, col)
	if stop, err := f.enter(context); stop {
		return nil, err
	}
	u, t, c, err := f.tableCell(row, col)
	if err == nil {
		err = numericColumn(c, col)
	}
	if err != nil {
		return nil, f.check(err, context)
	}
	buf, count, err := f.cellBytes(u, t, row, c)
	if err != nil {
		return nil, f.check(err, context)
	}
	out := make([]T, count*c.elemsPer())
	decodePixels(buf, c.elemKind(), c.scaling(), out)
	return out, nil
}

// ReadTableScalar returns the first element of a cell.
func ReadTableScalar[T Pixel](f *Fits, row, col int) (T, error) {
	var zero T
	vals, err := ReadTableArray[T](f, row, col)
	if err != nil || vals == nil {
		return zero, err
	}
	if len(vals) == 0 {
		return zero, f.check(newStatus(StatusBadElemNum, "row %d, column %d is empty", row, col),
			fmt.Sprintf("reading scalar from row %d, column %d", row, col))
	}
	return vals[0], nil
}

// WriteTableString stores s into a character cell. s is cut at its first NUL;
// fixed-width cells truncate longer strings and pad with NUL.
func (f *Fits) WriteTableString(row, col int, s string) error {
	context := fmt.Sprintf("writing string to row %d, column %d", row, col)
	if stop, err := f.enter(context); stop {
		return err
	}
	u, t, c, err := f.tableCell(row, col)
	if err == nil && c.code != 'A' {
		err = typeErrorf("column %d (%s) is not a string column", col, c.name)
	}
	if err != nil {
		return f.check(err, context)
	}
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if c.varlen == 0 && int64(len(s)) > c.repeat {
		s = s[:c.repeat]
	}
	return f.check(f.putCell(u, t, row, col, c, []byte(s), int64(len(s))), context)
}

// ReadTableString returns a character cell up to its first NUL, without
// trailing blanks.
func (f *Fits) ReadTableString(row, col int) (string, error) {
	context := fmt.Sprintf("reading string from row %d, column %d", row, col)
	if stop, err := f.enter(context); stop {
		return "", err
	}
	u, t, c, err := f.tableCell(row, col)
	if err == nil && c.code != 'A' {
		err = typeErrorf("column %d (%s) is not a string column", col, c.name)
	}
	if err != nil {
		return "", f.check(err, context)
	}
	buf, _, err := f.cellBytes(u, t, row, c)
	if err != nil {
		return "", f.check(err, context)
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return strings.TrimRight(string(buf), " "), nil
}

// WriteTableBools stores flags into a bit or logical cell.
func (f *Fits) WriteTableBools(row, col int, values []bool) error {
	context := fmt.Sprintf("writing flags to row %d, column %d", row, col)
	if stop, err := f.enter(context); stop {
		return err
	}
	u, t, c, err := f.tableCell(row, col)
	if err != nil {
		return f.check(err, context)
	}
	var payload []byte
	switch c.code {
	case 'X':
		payload = make([]byte, (len(values)+7)/8)
		for i, v := range values {
			if v {
				payload[i/8] |= 0x80 >> (i % 8)
			}
		}
	case 'L':
		payload = make([]byte, len(values))
		for i, v := range values {
			payload[i] = 'F'
			if v {
				payload[i] = 'T'
			}
		}
	default:
		return f.check(typeErrorf("column %d (%s) is not a logical column", col, c.name), context)
	}
	if c.varlen == 0 && int64(len(values)) > c.repeat {
		return f.check(newStatus(StatusBadElemNum, "%d flags do not fit column %d of %d", len(values), col, c.repeat), context)
	}
	return f.check(f.putCell(u, t, row, col, c, payload, int64(len(values))), context)
}

// ReadTableBools returns the flags of a bit or logical cell.
func (f *Fits) ReadTableBools(row, col int) ([]bool, error) {
	context := fmt.Sprintf("reading flags from row %d, column %d", row, col)
	if stop, err := f.enter(context); stop {
		return nil, err
	}
	u, t, c, err := f.tableCell(row, col)
	if err == nil && c.code != 'X' && c.code != 'L' {
		err = typeErrorf("column %d (%s) is not a logical column", col, c.name)
	}
	if err != nil {
		return nil, f.check(err, context)
	}
	buf, count, err := f.cellBytes(u, t, row, c)
	if err != nil {
		return nil, f.check(err, context)
	}
	out := make([]bool, count)
	for i := range out {
		if c.code == 'X' {
			out[i] = buf[i/8]&(0x80>>(i%8)) != 0
		} else {
			out[i] = buf[i] == 'T'
		}
	}
	return out, nil
}

// GetTableArraySize returns the fixed element count of a column, or the declared
// maximum of a variable-length one.
func (f *Fits) GetTableArraySize(col int) (int, error) {
	context := fmt.Sprintf("reading array size of column %d", col)
	if stop, err := f.enter(context); stop {
		return 0, err
	}
	_, t, err := f.tableHDU()
	if err == nil && (col < 0 || col >= len(t.cols)) {
		err = newStatus(StatusBadColNum, "column %d requested, table has %d", col, len(t.cols))
	}
	if err != nil {
		return 0, f.check(err, context)
	}
	c := t.cols[col]
	if c.varlen != 0 {
		return int(c.max), nil
	}
	return int(c.repeat), nil
}

// GetTableArraySizeAt returns the element count of one cell.
func (f *Fits) GetTableArraySizeAt(row, col int) (int, error) {
	context := fmt.Sprintf("reading array size of row %d, column %d", row, col)
	if stop, err := f.enter(context); stop {
		return 0, err
	}
	u, t, c, err := f.tableCell(row, col)
	if err != nil {
		return 0, f.check(err, context)
	}
	if c.varlen == 0 {
		return int(c.repeat), nil
	}
	count, _, err := f.descriptor(u, t, row, c)
	if err != nil {
		return 0, f.check(err, context)
	}
	return int(count), nil
}
