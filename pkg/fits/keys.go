package fits

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// KeyValue is the set of Go types a header keyword can be read as.
type KeyValue interface {
	bool | int | int32 | int64 | uint64 | float32 | float64 | string
}

// editHeader applies fn to the current header and writes it back once.
func (f *Fits) editHeader(context string, fn func(h *Header) error) error {
	if stop, err := f.enter(context); stop {
		return err
	}
	u, err := f.currentHDU()
	if err != nil {
		return f.check(err, context)
	}
	if err := f.writable(); err != nil {
		return f.check(err, context)
	}
	if err := fn(u.header); err != nil {
		return f.check(err, context)
	}
	return f.check(f.flushHeader(f.current), context)
}

func (f *Fits) normalizeKey(key string) string {
	upper := strings.ToUpper(strings.TrimSpace(key))
	if upper != key {
		f.log.Debug("keyword standardized to upper case", "key", key, "upper", upper)
	}
	return upper
}

// UpdateKey replaces the first card for key, or appends one. An empty comment
// keeps the existing comment.
func (f *Fits) UpdateKey(key string, value any, comment string) error {
	key = f.normalizeKey(key)
	return f.editHeader(fmt.Sprintf("updating key '%s': '%v'", key, value), func(h *Header) error {
		return h.Update(key, value, comment)
	})
}

// WriteKey appends a card for key even when one already exists. COMMENT and
// HISTORY values are written as commentary cards.
func (f *Fits) WriteKey(key string, value any, comment string) error {
	key = f.normalizeKey(key)
	return f.editHeader(fmt.Sprintf("writing key '%s': '%v'", key, value), func(h *Header) error {
		return h.Append(key, value, comment)
	})
}

// WriteComment appends COMMENT cards holding text.
func (f *Fits) WriteComment(text string) error {
	return f.editHeader("writing comment", func(h *Header) error {
		return h.Append("COMMENT", text, "")
	})
}

// WriteHistory appends HISTORY cards holding text.
func (f *Fits) WriteHistory(text string) error {
	return f.editHeader("writing history", func(h *Header) error {
		return h.Append("HISTORY", text, "")
	})
}

// DeleteKey removes the first card for key. A missing key is a status error.
func (f *Fits) DeleteKey(key string) error {
	key = f.normalizeKey(key)
	return f.editHeader(fmt.Sprintf("deleting key '%s'", key), func(h *Header) error {
		if !h.Delete(key) {
			return wrapStatus(StatusKeyNotFound, ErrKeyNotFound, "%s", key)
		}
		return nil
	})
}

// HasKey reports whether the current header holds key.
func (f *Fits) HasKey(key string) bool {
	u, err := f.currentHDU()
	if err != nil {
		return false
	}
	return u.header.Has(key)
}

// Header returns a copy of the current header.
func (f *Fits) Header() (*Header, error) {
	if stop, err := f.enter("reading header"); stop {
		return nil, err
	}
	u, err := f.currentHDU()
	if err != nil {
		return nil, f.check(err, "reading header")
	}
	return u.header.Clone(), nil
}

// ReadKey reads key from the current header as T. Quoted NAN and INFINITY
// tokens decode for float types; any other quoted value requested as a float is
// a FormatError.
func ReadKey[T KeyValue](f *Fits, key string) (T, error) {
	var zero T
	context := fmt.Sprintf("reading key '%s'", key)
	if stop, err := f.enter(context); stop {
		return zero, err
	}
	u, err := f.currentHDU()
	if err != nil {
		return zero, f.check(err, context)
	}
	v, err := readKeyAs[T](u.header, key)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == StatusKeyNotFound {
			err = wrapStatus(StatusKeyNotFound, ErrKeyNotFound, "%s", key)
		}
		return zero, f.check(err, context)
	}
	return v, nil
}

func readKeyAs[T KeyValue](h *Header, key string) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *bool:
		v, err := h.Bool(key)
		*p = v
		return out, err
	case *int:
		v, err := h.Int(key)
		*p = int(v)
		return out, err
	case *int32:
		v, err := h.Int(key)
		if err == nil && (v < math.MinInt32 || v > math.MaxInt32) {
			return out, typeErrorf("keyword %s value %d overflows int32", key, v)
		}
		*p = int32(v)
		return out, err
	case *int64:
		v, err := h.Int(key)
		*p = v
		return out, err
	case *uint64:
		c, ok, err := h.Get(key)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, newStatus(StatusKeyNotFound, "keyword %s not found", key)
		}
		var u uint64
		if _, err := fmt.Sscan(strings.TrimPrefix(c.Value, "+"), &u); err != nil {
			return out, typeErrorf("keyword %s value %q is not an unsigned integer", key, c.Value)
		}
		*p = u
		return out, nil
	case *float32:
		v, err := h.Float(key)
		*p = float32(v)
		return out, err
	case *float64:
		v, err := h.Float(key)
		*p = v
		return out, err
	case *string:
		v, err := h.String(key)
		*p = strings.TrimSpace(v)
		return out, err
	}
	return out, typeErrorf("unsupported key type %T", out)
}

// ForEachKey calls fn for every logical card of the current header, long
// strings reassembled. Keys are reported upper case.
func (f *Fits) ForEachKey(fn func(c Card) error) error {
	if stop, err := f.enter("iterating header keys"); stop {
		return err
	}
	u, err := f.currentHDU()
	if err != nil {
		return f.check(err, "iterating header keys")
	}
	return u.header.ForEach(func(raw string, c Card) error {
		if keyCaseChanged(raw) {
			f.log.Warn("header keyword was not upper case", "key", strings.TrimSpace(raw[:min(len(raw), maxKeyLen)]), "file", f.name)
		}
		return fn(c)
	})
}
