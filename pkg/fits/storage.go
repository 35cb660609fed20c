package fits

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// storage is the random-access byte store behind a cursor.
type storage interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	Truncate(size int64) error
	Writable() bool
	Close() error
}

type fileStorage struct {
	f        *os.File
	data     []byte
	mmapped  bool
	size     int64
	writable bool
}

// openFileStorage opens path. Read-only files are mapped when possible so header
// scans and pixel reads slice straight out of the mapping.
func openFileStorage(path string, writable, create bool) (*fileStorage, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
		if create {
			flag |= os.O_CREATE | os.O_EXCL
		}
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		status := StatusFileNotOpened
		if create {
			status = StatusFileNotCreated
		}
		return nil, wrapStatus(status, err, "opening %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, wrapStatus(StatusFileNotOpened, err, "stat %s", path)
	}
	s := &fileStorage{f: f, size: st.Size(), writable: writable}
	if writable || s.size == 0 || s.size > int64(int(^uint(0)>>1)) {
		return s, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(s.size), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		s.data = data
		s.mmapped = true
	}
	// without mmap every read goes through ReadAt on the descriptor
	return s, nil
}

func (s *fileStorage) ReadAt(p []byte, off int64) (int, error) {
	if s.mmapped {
		if off < 0 || off >= int64(len(s.data)) {
			return 0, io.EOF
		}
		n := copy(p, s.data[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}
	return s.f.ReadAt(p, off)
}

func (s *fileStorage) WriteAt(p []byte, off int64) (int, error) {
	if !s.writable {
		return 0, ErrReadOnly
	}
	n, err := s.f.WriteAt(p, off)
	if end := off + int64(n); end > s.size {
		s.size = end
	}
	return n, err
}

func (s *fileStorage) Size() int64 { return s.size }

func (s *fileStorage) Truncate(size int64) error {
	if !s.writable {
		return ErrReadOnly
	}
	if err := s.f.Truncate(size); err != nil {
		return err
	}
	s.size = size
	return nil
}

func (s *fileStorage) Writable() bool { return s.writable }

func (s *fileStorage) Close() error {
	var errs []error
	if s.mmapped {
		errs = append(errs, unix.Munmap(s.data))
		s.data = nil
		s.mmapped = false
	}
	if s.f != nil {
		errs = append(errs, s.f.Close())
		s.f = nil
	}
	return errors.Join(errs...)
}

type memStorage struct {
	m        *MemFile
	writable bool
}

func (s *memStorage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(s.m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *memStorage) WriteAt(p []byte, off int64) (int, error) {
	if !s.writable {
		return 0, ErrReadOnly
	}
	end := off + int64(len(p))
	if err := s.m.grow(end); err != nil {
		return 0, err
	}
	return copy(s.m.buf[off:end], p), nil
}

func (s *memStorage) Size() int64 { return int64(len(s.m.buf)) }

func (s *memStorage) Truncate(size int64) error {
	if !s.writable {
		return ErrReadOnly
	}
	if size <= int64(len(s.m.buf)) {
		s.m.buf = s.m.buf[:size]
		return nil
	}
	return s.m.grow(size)
}

func (s *memStorage) Writable() bool { return s.writable }

func (s *memStorage) Close() error {
	s.m.open = false
	return nil
}

// readFull reads exactly len(p) bytes at off.
func readFull(s storage, p []byte, off int64) error {
	n, err := s.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return wrapStatus(StatusReadError, err, "reading %d bytes at offset %d", len(p), off)
}

// writeFull writes all of p at off.
func writeFull(s storage, p []byte, off int64) error {
	for len(p) > 0 {
		n, err := s.WriteAt(p, off)
		if err != nil {
			if errors.Is(err, ErrReadOnly) {
				return wrapStatus(StatusReadOnlyFile, err, "writing at offset %d", off)
			}
			var se *statusError
			if errors.As(err, &se) {
				return err
			}
			return wrapStatus(StatusWriteError, err, "writing at offset %d", off)
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

const copyBufSize = 1 << 20

// shift moves the bytes in [from, Size) by delta (positive grows the file). The
// vacated range is zero-filled.
func shift(s storage, from, delta int64) error {
	if delta == 0 {
		return nil
	}
	size := s.Size()
	if from > size {
		from = size
	}
	buf := make([]byte, min(copyBufSize, max(size-from, 1)))
	if delta > 0 {
		// copy backwards so the source is never overwritten before it is read
		for end := size; end > from; {
			n := min(int64(len(buf)), end-from)
			start := end - n
			if err := readFull(s, buf[:n], start); err != nil {
				return err
			}
			if err := writeFull(s, buf[:n], start+delta); err != nil {
				return err
			}
			end = start
		}
		return writeZeros(s, from, delta)
	}
	for pos := from; pos < size; {
		n := min(int64(len(buf)), size-pos)
		if err := readFull(s, buf[:n], pos); err != nil {
			return err
		}
		if err := writeFull(s, buf[:n], pos+delta); err != nil {
			return err
		}
		pos += n
	}
	if err := s.Truncate(size + delta); err != nil {
		return wrapStatus(StatusWriteError, err, "truncating to %d bytes", size+delta)
	}
	return nil
}

func writeZeros(s storage, off, n int64) error {
	if n <= 0 {
		return nil
	}
	zeros := make([]byte, min(n, copyBufSize))
	for n > 0 {
		k := min(n, int64(len(zeros)))
		if err := writeFull(s, zeros[:k], off); err != nil {
			return err
		}
		off += k
		n -= k
	}
	return nil
}
