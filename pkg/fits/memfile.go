package fits

import (
	"bytes"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// MemFile is an in-memory FITS file.
//
// A managed MemFile owns its buffer and grows it as the cursor writes. An unmanaged
// MemFile borrows a caller buffer: writes may use its spare capacity but never
// reallocate, so the caller keeps ownership and must keep it alive while in use.
type MemFile struct {
	buf     []byte
	managed bool
	name    string
	open    bool
}

// NewMemFile returns an empty managed memory file.
func NewMemFile() *MemFile {
	return &MemFile{managed: true, name: "mem://" + uuid.NewString()}
}

// NewMemFileFrom wraps buf. When managed is true the MemFile takes ownership and may
// reallocate; otherwise growth is limited to cap(buf).
func NewMemFileFrom(buf []byte, managed bool) *MemFile {
	return &MemFile{buf: buf, managed: managed, name: "mem://" + uuid.NewString()}
}

// Bytes returns the current file contents. The slice aliases the buffer.
func (m *MemFile) Bytes() []byte { return m.buf }

// Len returns the size of the file contents.
func (m *MemFile) Len() int { return len(m.buf) }

// Name returns the diagnostic name used in error messages.
func (m *MemFile) Name() string { return m.name }

// Managed reports whether the MemFile owns its buffer.
func (m *MemFile) Managed() bool { return m.managed }

// Reset drops the contents. It refuses while a cursor has the file open.
func (m *MemFile) Reset() error {
	if m.open {
		return ErrMemFileInUse
	}
	if m.managed {
		m.buf = nil
	} else {
		m.buf = m.buf[:0]
	}
	return nil
}

// WriteTo copies the contents to w.
func (m *MemFile) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m.buf)
	return int64(n), err
}

func (m *MemFile) grow(size int64) error {
	if size <= int64(len(m.buf)) {
		return nil
	}
	if size <= int64(cap(m.buf)) {
		old := len(m.buf)
		m.buf = m.buf[:size]
		clear(m.buf[old:])
		return nil
	}
	if !m.managed {
		return newStatus(StatusMemoryAllocation, "unmanaged memory file cannot grow to %d bytes (capacity %d)", size, cap(m.buf))
	}
	newCap := max(int64(cap(m.buf))*2, size, BlockSize)
	nb := make([]byte, size, newCap)
	copy(nb, m.buf)
	m.buf = nb
	return nil
}

// readGzipFile inflates a gzip-compressed FITS file into a managed MemFile.
func readGzipFile(r io.Reader, name string) (*MemFile, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, wrapStatus(StatusFileNotOpened, err, "reading gzip stream %s", name)
	}
	defer func() { _ = zr.Close() }()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, wrapStatus(StatusReadError, err, "inflating %s", name)
	}
	m := NewMemFileFrom(buf.Bytes(), true)
	m.name = name
	return m, nil
}
