package fits

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotOpen       = errors.New("fits: file not open")
	ErrCardTooLong   = errors.New("fits: formatted card exceeds 80 characters")
	ErrKeyNotFound   = errors.New("fits: keyword not found")
	ErrNotImage      = errors.New("fits: current HDU is not an image")
	ErrNotTable      = errors.New("fits: current HDU is not a binary table")
	ErrMemFileInUse  = errors.New("fits: memory file is open in a cursor")
	ErrReadOnly      = errors.New("fits: file opened read-only")
	ErrCorruptHeader = errors.New("fits: corrupt header")
)

// Status codes follow the cfitsio numbering so diagnostics stay recognisable.
const (
	StatusOK               = 0
	StatusFileNotOpened    = 104
	StatusFileNotCreated   = 105
	StatusWriteError       = 106
	StatusEndOfFile        = 107
	StatusReadError        = 108
	StatusFileNotClosed    = 110
	StatusReadOnlyFile     = 112
	StatusMemoryAllocation = 113
	StatusBadFileptr       = 114
	StatusNoSimple         = 201
	StatusKeyNotFound      = 202
	StatusNoXtension       = 225
	StatusNotImage         = 233
	StatusNotBTable        = 227
	StatusColNotFound      = 219
	StatusBadColNum        = 302
	StatusBadRowNum        = 307
	StatusBadElemNum       = 308
	StatusNotVarLen        = 317
	StatusBadHDUNum        = 301
	StatusBadDimen         = 320
	StatusBadNAxis         = 212
	StatusBadBitpix        = 211
	StatusBadPixNum        = 321
	StatusDataCompression  = 413
	StatusDataDecompress   = 414
	StatusNoCompressedTile = 415
)

var statusText = map[int]string{
	StatusFileNotOpened:    "could not open the named file",
	StatusFileNotCreated:   "could not create the named file",
	StatusWriteError:       "error writing to FITS file",
	StatusEndOfFile:        "tried to move past end of file",
	StatusReadError:        "error reading from FITS file",
	StatusFileNotClosed:    "could not close the file",
	StatusReadOnlyFile:     "cannot write to readonly file",
	StatusMemoryAllocation: "could not allocate memory",
	StatusBadFileptr:       "invalid fitsfile pointer",
	StatusNoSimple:         "illegal value for SIMPLE keyword",
	StatusKeyNotFound:      "keyword not found in header",
	StatusNoXtension:       "illegal XTENSION keyword",
	StatusNotImage:         "HDU is not an image",
	StatusNotBTable:        "HDU is not a binary table",
	StatusColNotFound:      "named column not found",
	StatusBadColNum:        "column number out of range",
	StatusBadRowNum:        "row number out of range",
	StatusBadElemNum:       "element number out of range",
	StatusNotVarLen:        "column is not variable length",
	StatusBadHDUNum:        "HDU number out of range",
	StatusBadDimen:         "illegal number of dimensions",
	StatusBadNAxis:         "illegal NAXIS keyword value",
	StatusBadBitpix:        "illegal BITPIX keyword value",
	StatusBadPixNum:        "first pixel number greater than last pixel",
	StatusDataCompression:  "error compressing image",
	StatusDataDecompress:   "error uncompressing image",
	StatusNoCompressedTile: "compressed tile doesn't exist",
}

// StatusText returns the short description for a status code.
func StatusText(status int) string {
	if s, ok := statusText[status]; ok {
		return s
	}
	return fmt.Sprintf("unknown status %d", status)
}

// statusError is the internal failure of a low-level operation. The cursor turns it
// into an IOError at its single check point.
type statusError struct {
	status int
	msg    string
	err    error
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return StatusText(e.status)
	}
	return e.msg
}

func (e *statusError) Unwrap() error { return e.err }

func newStatus(status int, format string, args ...any) error {
	return &statusError{status: status, msg: fmt.Sprintf(format, args...)}
}

func wrapStatus(status int, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &statusError{status: status, msg: msg, err: err}
}

// IOError is a failure reported by the file layer: open, seek, read, write or a
// malformed file structure.
type IOError struct {
	File    string
	Status  int
	Stack   []string
	Context string
	Err     error
}

func (e *IOError) Error() string {
	var b strings.Builder
	name := e.File
	if name == "" {
		name = "<unknown>"
	}
	fmt.Fprintf(&b, "fits error (%s): %s (%d)", name, StatusText(e.Status), e.Status)
	if e.Context != "" {
		b.WriteString(" : ")
		b.WriteString(e.Context)
	}
	if len(e.Stack) > 0 {
		b.WriteString("\nfits error stack:")
		for _, line := range e.Stack {
			b.WriteString("\n  ")
			b.WriteString(line)
		}
	}
	return b.String()
}

func (e *IOError) Unwrap() error { return e.Err }

// FormatError reports a header card or structural value that cannot be interpreted.
type FormatError struct {
	Key string
	Msg string
}

func (e *FormatError) Error() string {
	if e.Key == "" {
		return "fits: format error: " + e.Msg
	}
	return fmt.Sprintf("fits: format error for %q: %s", e.Key, e.Msg)
}

// TypeError reports a requested type that is incompatible with the stored representation.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string { return "fits: type error: " + e.Msg }

// ConfigError reports invalid options, modes or algorithms supplied by the caller.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string { return "fits: configuration error: " + e.Msg }

func (e *ConfigError) Unwrap() error { return e.Err }

// LogicError reports a broken internal invariant.
type LogicError struct {
	Msg string
}

func (e *LogicError) Error() string { return "fits: logic error: " + e.Msg }

func formatErrorf(key, format string, args ...any) error {
	return &FormatError{Key: key, Msg: fmt.Sprintf(format, args...)}
}

func typeErrorf(format string, args ...any) error {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

func logicErrorf(format string, args ...any) error {
	return &LogicError{Msg: fmt.Sprintf(format, args...)}
}

// sanitize replaces non-printable bytes so error stacks are safe to print.
func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '.'
		}
	}
	return string(b)
}
