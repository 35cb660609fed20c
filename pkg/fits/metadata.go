package fits

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/samcharles93/fitskit/internal/logger"
	"github.com/samcharles93/fitskit/pkg/props"
)

// Structural keywords the codec owns. Writing them from metadata could corrupt
// the file, and callers have no business reading them.
var ignoreKeys = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "EXTEND": true, "GCOUNT": true,
	"PCOUNT": true, "XTENSION": true, "TFIELDS": true, "BSCALE": true, "BZERO": true,
	"ZBITPIX": true, "ZIMAGE": true, "ZCMPTYPE": true, "ZSIMPLE": true, "ZEXTEND": true,
	"ZBLANK": true, "ZDATASUM": true, "ZHECKSUM": true, "ZQUANTIZ": true,
	"DATASUM": true, "CHECKSUM": true,
}

var ignoreKeyPrefixes = []string{"NAXIS", "TZERO", "TSCAL", "ZNAXIS", "ZTILE", "ZNAME", "ZVAL"}

// Column definitions are refused on bulk write but kept on read, since table
// readers need them.
var ignoreKeyPrefixesWrite = []string{"TFORM", "TTYPE"}

// Compressed images are stored as tables; their table keywords are never part
// of the image metadata.
var compressedTableKeys = map[string]bool{"ZTENSION": true, "ZPCOUNT": true, "ZGCOUNT": true, "THEAP": true}

func isKeyIgnored(key string, write bool) bool {
	if ignoreKeys[key] {
		return true
	}
	for _, p := range ignoreKeyPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	if write {
		for _, p := range ignoreKeyPrefixesWrite {
			if strings.HasPrefix(key, p) {
				return true
			}
		}
	}
	return false
}

var (
	boolRegex   = regexp.MustCompile(`^[tTfF]$`)
	intRegex    = regexp.MustCompile(`^[+-]?[0-9]+$`)
	doubleRegex = regexp.MustCompile(`^[+-]?([0-9]*\.?[0-9]+|[0-9]+\.?[0-9]*)([eEdD][+-]?[0-9]+)?$`)
	stringRegex = regexp.MustCompile(`^'(.*?) *'$`)
	// the two comment lines every new primary header carries
	definitionCommentRegex = regexp.MustCompile(`^ *(FITS \(Flexible Image Transport System\)|and Astrophysics', volume 376, page 359).*`)
)

// WriteMetadata appends every entry of c to the current header, skipping
// reserved keywords. Arrays emit one card per element.
func (f *Fits) WriteMetadata(c props.Container) error {
	return f.editHeader("writing metadata", func(h *Header) error {
		for _, name := range c.Names() {
			if isKeyIgnored(strings.ToUpper(name), true) {
				continue
			}
			if err := writeProperty(h, c, name, f.log); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeProperty(h *Header, c props.Container, name string, log logger.Logger) error {
	key := strings.ToUpper(name)
	if key != name {
		log.Warn("metadata key may be standardized to upper case on write", "key", name, "upper", key)
	}
	comment := c.Comment(name)
	for _, v := range c.GetAll(name) {
		switch v.(type) {
		case nil, bool, int64, uint64, float64, string:
		default:
			log.Warn("skipping metadata value of unsupported type", "key", name, "type", fmt.Sprintf("%T", v))
			return nil
		}
		if err := h.Append(key, v, comment); err != nil {
			return err
		}
	}
	return nil
}

// ReadMetadataInto appends the current header to c. With strip set, reserved
// keywords and the standard FITS definition comments are dropped.
func (f *Fits) ReadMetadataInto(c props.Container, strip bool) error {
	if stop, err := f.enter("reading metadata"); stop {
		return err
	}
	u, err := f.currentHDU()
	if err != nil {
		return f.check(err, "reading metadata")
	}
	compressed := u.kind() == CompressedImageHDU
	r := metadataReader{c: c, strip: strip, log: f.log}
	err = u.header.ForEach(func(raw string, card Card) error {
		if keyCaseChanged(raw) {
			f.log.Warn("header keyword was not upper case", "key", card.Key, "file", f.name)
		}
		if strip && compressed && (compressedTableKeys[card.Key] ||
			strings.HasPrefix(card.Key, "TFORM") || strings.HasPrefix(card.Key, "TTYPE")) {
			return nil
		}
		return r.add(card)
	})
	return f.check(err, "reading metadata")
}

// ReadMetadata returns the current header as an ordered list.
func (f *Fits) ReadMetadata(strip bool) (*props.List, error) {
	l := props.NewList()
	if err := f.ReadMetadataInto(l, strip); err != nil {
		return nil, err
	}
	return l, nil
}

type metadataReader struct {
	c     props.Container
	strip bool
	log   logger.Logger
}

func (r *metadataReader) add(card Card) error {
	key, value, comment := card.Key, card.Value, card.Comment
	if r.strip && isKeyIgnored(key, false) {
		return nil
	}
	switch {
	case boolRegex.MatchString(value):
		return r.addValue(key, value == "T" || value == "t", comment)
	case intRegex.MatchString(value):
		i, err := strconv.ParseInt(strings.TrimPrefix(value, "+"), 10, 64)
		if err == nil {
			return r.addValue(key, i, comment)
		}
		u, err := strconv.ParseUint(strings.TrimPrefix(value, "+"), 10, 64)
		if err != nil {
			return formatErrorf(key, "integer %s out of range", value)
		}
		return r.addValue(key, u, comment)
	case doubleRegex.MatchString(value):
		v, err := ParseFloat(value)
		if err != nil {
			return err
		}
		return r.addValue(key, v, comment)
	}
	if m := stringRegex.FindStringSubmatch(value); m != nil {
		s, _ := unquote(value)
		if v, err := ParseNonFinite(s); err == nil {
			return r.addValue(key, v, comment)
		}
		return r.addValue(key, s, comment)
	}
	switch {
	case key == "HISTORY":
		return r.addValue(key, comment, "")
	case key == "COMMENT":
		if r.strip && definitionCommentRegex.MatchString(comment) {
			return nil
		}
		return r.addValue(key, comment, "")
	case key == "" && value == "":
		// blank keywords do not keep their position on read, so they join the comments
		return r.addValue("COMMENT", comment, "")
	case value == "":
		return r.addNull(key, comment)
	}
	return formatErrorf(key, "could not parse header value %q", value)
}

func (r *metadataReader) addValue(key string, v any, comment string) error {
	if r.c.Exists(key) && r.c.TypeOf(key) == props.KindNull {
		r.log.Warn("replacing undefined value", "key", key)
		return r.c.Set(key, v, comment)
	}
	err := r.c.Add(key, v, comment)
	if errors.Is(err, props.ErrTypeMismatch) {
		r.log.Warn("header key changes type; keeping the later value", "key", key, "err", err)
		return r.c.Set(key, v, comment)
	}
	return err
}

func (r *metadataReader) addNull(key, comment string) error {
	if r.c.Exists(key) {
		if r.c.TypeOf(key) != props.KindNull {
			r.log.Warn("dropping undefined value", "key", key)
		}
		return nil
	}
	return r.c.Add(key, nil, comment)
}

func isCommentKey(name string) bool { return name == "COMMENT" || name == "HISTORY" }

// CombineMetadata returns first overridden by second. Scalar entries of second
// replace those of first, even with a different type; COMMENT and HISTORY
// entries are concatenated. Array entries collapse to their last value.
func CombineMetadata(first, second *props.List) *props.List {
	out := props.NewList()
	for _, l := range []*props.List{first, second} {
		if l == nil {
			continue
		}
		for _, name := range l.Names() {
			if isCommentKey(name) {
				if l.TypeOf(name) != props.KindString {
					continue
				}
				for _, v := range l.GetAll(name) {
					if s, ok := v.(string); ok {
						_ = out.Add(name, s, "")
					}
				}
				continue
			}
			v, _ := l.Get(name)
			_ = out.Set(name, v, l.Comment(name))
		}
	}
	return out
}

// ReadInheritedMetadata reads the current header, merged with the primary
// header when it declares INHERIT = T. The cursor position is restored.
func (f *Fits) ReadInheritedMetadata(strip bool) (*props.List, error) {
	md, err := f.ReadMetadata(strip)
	if err != nil || md == nil {
		return md, err
	}
	hdu := f.CurrentHDU()
	if hdu == 0 {
		return md, nil
	}
	inherit := false
	if v, ok := md.Get("INHERIT"); ok {
		switch x := v.(type) {
		case bool:
			inherit = x
		case string:
			inherit = x == "T"
		}
	}
	if strip {
		md.Remove("INHERIT")
	}
	if !inherit {
		return CombineMetadata(md, props.NewList()), nil
	}
	guard, err := NewHduMoveGuard(f, 0, false)
	if err != nil {
		return nil, err
	}
	defer guard.Close()
	primary, err := f.ReadMetadata(strip)
	if err != nil {
		return nil, err
	}
	return CombineMetadata(primary, md), nil
}

// ReadMetadataFile opens path read-only and resolves the metadata of HDU hdu.
func ReadMetadataFile(path string, hdu int, strip bool) (*props.List, error) {
	f, err := Open(path, "r", AutoClose|AutoCheck)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readMetadataAt(f, hdu, strip)
}

// ReadMetadataMem is ReadMetadataFile for a memory file.
func ReadMetadataMem(m *MemFile, hdu int, strip bool) (*props.List, error) {
	f, err := OpenMem(m, "r", AutoClose|AutoCheck)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readMetadataAt(f, hdu, strip)
}

func readMetadataAt(f *Fits, hdu int, strip bool) (*props.List, error) {
	if err := f.SetHDU(hdu, false); err != nil {
		return nil, err
	}
	return f.ReadInheritedMetadata(strip)
}

// MakeLimitedHeader formats c as bare 80-character cards with no END card.
// Names in exclude are skipped. Only short keys and simple scalar types are
// kept; arrays contribute their last element and a string that overflows its
// card is dropped. Non-finite reals become undefined values.
func MakeLimitedHeader(c props.Container, log logger.Logger, exclude ...string) (string, error) {
	if log == nil {
		log = logger.Discard()
	}
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	var b strings.Builder
	for _, full := range c.Names() {
		if skip[full] {
			continue
		}
		name := full
		if i := strings.LastIndexByte(full, '.'); i >= 0 {
			name = full[i+1:]
		}
		if len(name) > maxKeyLen {
			continue
		}
		v, _ := c.Get(full)
		out := fmt.Sprintf("%-8s= ", name)
		switch x := v.(type) {
		case bool:
			if x {
				out += "T"
			} else {
				out += "F"
			}
		case int64:
			if x < math.MinInt32 || x > math.MaxInt32 {
				continue
			}
			out += fmt.Sprintf("%20d", x)
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				log.Warn("non-finite metadata value written as undefined", "key", name)
				out += " "
			} else {
				out += fmt.Sprintf("%#20.17G", x)
			}
		case nil:
			out += " "
		case string:
			out += "'" + strings.ReplaceAll(x, "'", "''") + "'"
			if len(out) > CardSize {
				continue
			}
		default:
			continue
		}
		if len(out) > CardSize {
			return "", logicErrorf("formatted data too long: %d > 80: %q", len(out), out)
		}
		b.WriteString(padCard(out))
	}
	return b.String(), nil
}
