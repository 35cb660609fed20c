// Package fits reads and writes FITS files: header cards, images (optionally tile
// compressed and quantized) and binary tables, through a cursor that tracks the
// current HDU.
//
// A Fits value owns its handle exclusively and is not safe for concurrent use.
// Independent cursors may be used from different goroutines.
package fits

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/samcharles93/fitskit/internal/logger"
)

// Behavior selects optional cursor semantics.
type Behavior uint8

const (
	// AutoClose closes the handle when the cursor becomes unreachable.
	AutoClose Behavior = 1 << iota
	// AutoCheck returns every failing status as an *IOError. Without it the
	// status stays on the cursor until ClearStatus.
	AutoCheck
)

// DefaultHDU moves to the first extension when the primary HDU is empty.
const DefaultHDU = -1

// Option configures a cursor at open time.
type Option func(*Fits)

// WithLogger routes non-fatal diagnostics to l.
func WithLogger(l logger.Logger) Option {
	return func(f *Fits) {
		if l != nil {
			f.log = l
		}
	}
}

// Fits is a cursor over an open FITS file or memory buffer. The zero value is a
// closed cursor.
type Fits struct {
	st       storage
	mem      *MemFile
	name     string
	hdus     []*hdu
	current  int
	behavior Behavior
	log      logger.Logger

	status int
	err    error

	compression ImageCompressionOptions
	cleanup     runtime.Cleanup
	autoClosed  bool
}

// Open opens path with mode "r", "rb", "w", "wb", "a" or "ab".
//
// "w" deletes any existing file first. "a" opens read-write and moves to the
// last HDU. Gzip-compressed files are inflated into memory and are read-only.
func Open(path, mode string, behavior Behavior, opts ...Option) (*Fits, error) {
	m, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	f := newFits(path, behavior, opts)

	var st storage
	switch {
	case m == modeRead && isGzipFile(path):
		r, err := os.Open(path)
		if err != nil {
			return nil, f.openError(wrapStatus(StatusFileNotOpened, err, "opening %s", path), mode)
		}
		mem, err := readGzipFile(r, path)
		_ = r.Close()
		if err != nil {
			return nil, f.openError(err, mode)
		}
		mem.open = true
		f.mem = mem
		st = &memStorage{m: mem}
	case m == modeWrite:
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, f.openError(wrapStatus(StatusFileNotCreated, err, "removing existing %s", path), mode)
		}
		fs, err := openFileStorage(path, true, true)
		if err != nil {
			return nil, f.openError(err, mode)
		}
		st = fs
	default:
		if m == modeAppend && isGzipFile(path) {
			return nil, configErrorf("cannot append to compressed file %s", path)
		}
		fs, err := openFileStorage(path, m == modeAppend, false)
		if err != nil {
			return nil, f.openError(err, mode)
		}
		st = fs
	}
	return f.attach(st, m, mode)
}

// OpenMem opens a memory file. "w" discards its contents; "a" moves to the last
// HDU. Writing into an unmanaged buffer fails once its capacity is exhausted.
func OpenMem(m *MemFile, mode string, behavior Behavior, opts ...Option) (*Fits, error) {
	md, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, configErrorf("nil memory file")
	}
	f := newFits(m.name, behavior, opts)
	if m.open {
		return nil, f.openError(wrapStatus(StatusFileNotOpened, ErrMemFileInUse, "%s", m.name), mode)
	}
	if md == modeWrite {
		m.buf = m.buf[:0]
	}
	m.open = true
	f.mem = m
	return f.attach(&memStorage{m: m, writable: md != modeRead}, md, mode)
}

func newFits(name string, behavior Behavior, opts []Option) *Fits {
	f := &Fits{name: name, behavior: behavior, log: logger.Default()}
	for _, opt := range opts {
		opt(f)
	}
	f.compression = ImageCompressionOptions{Algorithm: CompressNone}
	return f
}

func (f *Fits) attach(st storage, m openMode, mode string) (*Fits, error) {
	hdus, err := scanHDUs(st)
	if err != nil {
		_ = st.Close()
		return nil, f.openError(err, mode)
	}
	f.st = st
	f.hdus = hdus
	if m == modeAppend && len(hdus) > 0 {
		f.current = len(hdus) - 1
	}
	if f.behavior&AutoClose != 0 {
		f.autoClosed = true
		f.cleanup = runtime.AddCleanup(f, func(s storage) { _ = s.Close() }, st)
	}
	return f, nil
}

func (f *Fits) openError(err error, mode string) error {
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	return &IOError{
		File:    f.name,
		Status:  se.status,
		Stack:   []string{sanitize(se.Error())},
		Context: fmt.Sprintf("opening file %q with mode %q", f.name, mode),
		Err:     err,
	}
}

type openMode int

const (
	modeRead openMode = iota
	modeWrite
	modeAppend
)

func parseMode(mode string) (openMode, error) {
	switch mode {
	case "r", "rb":
		return modeRead, nil
	case "w", "wb":
		return modeWrite, nil
	case "a", "ab":
		return modeAppend, nil
	}
	return 0, configErrorf("invalid mode %q for opening FITS file", mode)
}

// isGzipFile reports whether path starts with the gzip magic bytes. The name
// is not consulted, so a plain file called x.fits.gz opens as plain FITS.
func isGzipFile(path string) bool {
	r, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = r.Close() }()
	magic := make([]byte, 2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, []byte{0x1f, 0x8b})
}

// Name returns the file name, or the memory file's diagnostic name.
func (f *Fits) Name() string { return f.name }

// IsOpen reports whether the cursor holds a handle.
func (f *Fits) IsOpen() bool { return f != nil && f.st != nil }

// Behavior returns the behaviour flags.
func (f *Fits) Behavior() Behavior { return f.behavior }

// Writable reports whether the handle accepts writes.
func (f *Fits) Writable() bool { return f.IsOpen() && f.st.Writable() }

// Close releases the handle. Closing a closed cursor is a no-op.
func (f *Fits) Close() error {
	if f == nil || f.st == nil {
		return nil
	}
	if f.autoClosed {
		f.cleanup.Stop()
		f.autoClosed = false
	}
	err := f.st.Close()
	f.st = nil
	f.hdus = nil
	f.current = 0
	f.mem = nil
	if err != nil {
		return &IOError{File: f.name, Status: StatusFileNotClosed, Context: "closing file", Err: err}
	}
	return nil
}

// Status returns the sticky status code. It is always 0 under AutoCheck.
func (f *Fits) Status() int { return f.status }

// Err returns the error behind a nonzero status.
func (f *Fits) Err() error { return f.err }

// ClearStatus resets the sticky status so calls proceed again.
func (f *Fits) ClearStatus() {
	f.status = 0
	f.err = nil
}

// enter guards the start of every operation. It reports stop when the call must
// not proceed, together with the error to return.
func (f *Fits) enter(context string) (stop bool, err error) {
	if f.status != 0 {
		return true, nil
	}
	if f.st == nil {
		return true, f.check(wrapStatus(StatusBadFileptr, ErrNotOpen, "no open handle"), context)
	}
	return false, nil
}

// check is the single point where low-level failures become IOErrors. Typed
// format, type, configuration and logic errors pass through unchanged.
func (f *Fits) check(err error, context string) error {
	if err == nil {
		return nil
	}
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	ioErr := &IOError{
		File:    f.name,
		Status:  se.status,
		Stack:   []string{sanitize(se.Error())},
		Context: context,
		Err:     err,
	}
	if f.behavior&AutoCheck != 0 {
		return ioErr
	}
	f.status = se.status
	f.err = ioErr
	return nil
}

// CurrentHDU returns the 0-based index of the current HDU.
func (f *Fits) CurrentHDU() int { return f.current }

// CountHDUs returns the number of HDUs in the file.
func (f *Fits) CountHDUs() int { return len(f.hdus) }

// SetHDU moves the cursor. With relative set, hdu is an offset from the current
// position. DefaultHDU moves to HDU 1 when the primary is current and has no
// axes; a failed fallback is silently ignored.
func (f *Fits) SetHDU(hdu int, relative bool) error {
	if stop, err := f.enter("moving HDU"); stop {
		return err
	}
	if hdu == DefaultHDU && !relative {
		if f.current == 0 && f.primaryEmpty() && len(f.hdus) > 1 {
			f.current = 1
		}
		return nil
	}
	target := hdu
	if relative {
		target = f.current + hdu
	}
	if target < 0 || target >= len(f.hdus) {
		return f.check(newStatus(StatusBadHDUNum, "HDU %d requested, file has %d", target, len(f.hdus)),
			fmt.Sprintf("moving to HDU %d (relative=%t)", hdu, relative))
	}
	f.current = target
	return nil
}

func (f *Fits) primaryEmpty() bool {
	if len(f.hdus) == 0 {
		return true
	}
	n, err := f.hdus[0].header.IntDefault("NAXIS", 0)
	return err == nil && n == 0
}

// HDUType returns the type of the current HDU.
func (f *Fits) HDUType() (HDUType, error) {
	u, err := f.currentHDU()
	if err != nil {
		return 0, f.check(err, "reading HDU type")
	}
	return u.kind(), nil
}

// ReadRawData returns the data section of the current HDU as stored, without
// block padding or decompression.
func (f *Fits) ReadRawData() ([]byte, error) {
	const context = "reading raw data"
	if stop, err := f.enter(context); stop {
		return nil, err
	}
	u, err := f.currentHDU()
	if err != nil {
		return nil, f.check(err, context)
	}
	n, err := dataSize(u.header)
	if err != nil {
		return nil, f.check(err, context)
	}
	data, err := f.readData(u, 0, n)
	return data, f.check(err, context)
}

func (f *Fits) currentHDU() (*hdu, error) {
	if f.st == nil {
		return nil, wrapStatus(StatusBadFileptr, ErrNotOpen, "no open handle")
	}
	if f.current >= len(f.hdus) {
		return nil, newStatus(StatusBadHDUNum, "file has no HDU %d", f.current)
	}
	return f.hdus[f.current], nil
}

func (f *Fits) writable() error {
	if !f.st.Writable() {
		return wrapStatus(StatusReadOnlyFile, ErrReadOnly, "%s", f.name)
	}
	return nil
}

// flushHeader rewrites the header of HDU i, moving everything after it when the
// number of header blocks changes.
func (f *Fits) flushHeader(i int) error {
	if err := f.writable(); err != nil {
		return err
	}
	u := f.hdus[i]
	blocks := int64(u.header.Blocks())
	if delta := blocks - u.hblocks; delta != 0 {
		if err := shift(f.st, u.dataOff(), delta*BlockSize); err != nil {
			return err
		}
		u.hblocks = blocks
		f.moveAfter(i, delta*BlockSize)
	}
	return writeFull(f.st, u.header.Bytes(), u.off)
}

// resizeData sets the data unit of HDU i to hold size bytes.
func (f *Fits) resizeData(i int, size int64) error {
	if err := f.writable(); err != nil {
		return err
	}
	u := f.hdus[i]
	blocks := blocksFor(size)
	if delta := blocks - u.dblocks; delta != 0 {
		if err := shift(f.st, u.end(), delta*BlockSize); err != nil {
			return err
		}
		u.dblocks = blocks
		f.moveAfter(i, delta*BlockSize)
	}
	return nil
}

func (f *Fits) moveAfter(i int, delta int64) {
	for _, u := range f.hdus[i+1:] {
		u.off += delta
	}
}

// appendHDU writes h as a new HDU with zeroed data of size bytes at the end of
// the file and makes it current.
func (f *Fits) appendHDU(h *Header, size int64) error {
	if err := f.writable(); err != nil {
		return err
	}
	off := int64(0)
	if n := len(f.hdus); n > 0 {
		off = f.hdus[n-1].end()
	}
	u := &hdu{header: h, off: off, hblocks: int64(h.Blocks()), dblocks: blocksFor(size)}
	if err := writeFull(f.st, h.Bytes(), off); err != nil {
		return err
	}
	if err := writeZeros(f.st, u.dataOff(), u.dblocks*BlockSize); err != nil {
		return err
	}
	f.hdus = append(f.hdus, u)
	f.current = len(f.hdus) - 1
	return nil
}

// ensurePrimary writes an empty primary HDU when the file has none, so an
// extension can follow.
func (f *Fits) ensurePrimary() error {
	if len(f.hdus) > 0 {
		return nil
	}
	return f.appendHDU(primaryHeader(8, nil), 0)
}

// readData reads n bytes at off within the data unit of u.
func (f *Fits) readData(u *hdu, off, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if err := readFull(f.st, buf, u.dataOff()+off); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *Fits) writeData(u *hdu, off int64, p []byte) error {
	if err := f.writable(); err != nil {
		return err
	}
	return writeFull(f.st, p, u.dataOff()+off)
}
