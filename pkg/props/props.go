// Package props holds typed key/value metadata containers.
//
// A name maps to one value or to an array of values of a single kind. List keeps
// insertion order (header order); Set does not and enumerates names sorted.
package props

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

var (
	ErrNotFound     = errors.New("props: name not found")
	ErrTypeMismatch = errors.New("props: value type does not match existing entry")
)

// Kind classifies a stored value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int64"
	case KindUint:
		return "uint64"
	case KindFloat:
		return "float64"
	case KindString:
		return "string"
	default:
		return "other"
	}
}

// Container is the metadata surface the FITS layer reads from and writes into.
type Container interface {
	Names() []string
	Exists(name string) bool
	Get(name string) (any, bool)
	GetAll(name string) []any
	Comment(name string) string
	IsArray(name string) bool
	TypeOf(name string) Kind
	Add(name string, value any, comment string) error
	Set(name string, value any, comment string) error
	Remove(name string)
	Ordered() bool
}

// Normalize folds Go numeric types onto the stored kinds (int64, uint64, float64).
// Values of any other type are kept verbatim and report KindOther.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, uint64, float64, string:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return uint64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// KindOf reports the kind of an already normalized value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64:
		return KindInt
	case uint64:
		return KindUint
	case float64:
		return KindFloat
	case string:
		return KindString
	default:
		return KindOther
	}
}

type entry struct {
	name    string
	values  []any
	comment string
}

func (e *entry) kind() Kind {
	for _, v := range e.values {
		if k := KindOf(v); k != KindNull {
			return k
		}
	}
	return KindNull
}

func (e *entry) add(v any) error {
	k := KindOf(v)
	if cur := e.kind(); k != KindNull && cur != KindNull && cur != k {
		return fmt.Errorf("%w: %s holds %s, got %s", ErrTypeMismatch, e.name, cur, k)
	}
	e.values = append(e.values, v)
	return nil
}

func (e *entry) clone() *entry {
	return &entry{name: e.name, values: slices.Clone(e.values), comment: e.comment}
}

// List is an ordered container; names enumerate in first-insertion order.
type List struct {
	entries []*entry
	index   map[string]int
}

// NewList returns an empty ordered container.
func NewList() *List {
	return &List{index: make(map[string]int)}
}

func (l *List) lookup(name string) *entry {
	if l == nil || l.index == nil {
		return nil
	}
	if i, ok := l.index[name]; ok {
		return l.entries[i]
	}
	return nil
}

func (l *List) Names() []string {
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.name)
	}
	return out
}

func (l *List) Len() int { return len(l.entries) }

func (l *List) Exists(name string) bool { return l.lookup(name) != nil }

// Get returns the last value stored under name.
func (l *List) Get(name string) (any, bool) {
	e := l.lookup(name)
	if e == nil || len(e.values) == 0 {
		return nil, false
	}
	return e.values[len(e.values)-1], true
}

func (l *List) GetAll(name string) []any {
	e := l.lookup(name)
	if e == nil {
		return nil
	}
	return slices.Clone(e.values)
}

func (l *List) Comment(name string) string {
	if e := l.lookup(name); e != nil {
		return e.comment
	}
	return ""
}

func (l *List) IsArray(name string) bool {
	e := l.lookup(name)
	return e != nil && len(e.values) > 1
}

func (l *List) TypeOf(name string) Kind {
	if e := l.lookup(name); e != nil {
		return e.kind()
	}
	return KindNull
}

// Add appends value to name, creating the entry at the end of the list if needed.
func (l *List) Add(name string, value any, comment string) error {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	value = Normalize(value)
	if e := l.lookup(name); e != nil {
		if err := e.add(value); err != nil {
			return err
		}
		if comment != "" && e.comment == "" {
			e.comment = comment
		}
		return nil
	}
	l.index[name] = len(l.entries)
	l.entries = append(l.entries, &entry{name: name, values: []any{value}, comment: comment})
	return nil
}

// Set replaces any values stored under name, keeping its position.
func (l *List) Set(name string, value any, comment string) error {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	value = Normalize(value)
	if e := l.lookup(name); e != nil {
		e.values = []any{value}
		e.comment = comment
		return nil
	}
	l.index[name] = len(l.entries)
	l.entries = append(l.entries, &entry{name: name, values: []any{value}, comment: comment})
	return nil
}

// SetAll replaces name with an array of values.
func (l *List) SetAll(name string, values []any, comment string) error {
	l.Remove(name)
	for i, v := range values {
		c := ""
		if i == 0 {
			c = comment
		}
		if err := l.Add(name, v, c); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) Remove(name string) {
	i, ok := l.index[name]
	if !ok {
		return
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	delete(l.index, name)
	for j := i; j < len(l.entries); j++ {
		l.index[l.entries[j].name] = j
	}
}

func (l *List) Ordered() bool { return true }

// Copy returns a deep copy of the list.
func (l *List) Copy() *List {
	out := NewList()
	for _, e := range l.entries {
		out.index[e.name] = len(out.entries)
		out.entries = append(out.entries, e.clone())
	}
	return out
}

// Set is an unordered container; Names enumerates sorted for stable output.
type Set struct {
	entries map[string]*entry
}

// NewSet returns an empty unordered container.
func NewSet() *Set {
	return &Set{entries: make(map[string]*entry)}
}

func (s *Set) Names() []string {
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Set) Exists(name string) bool {
	_, ok := s.entries[name]
	return ok
}

func (s *Set) Get(name string) (any, bool) {
	e, ok := s.entries[name]
	if !ok || len(e.values) == 0 {
		return nil, false
	}
	return e.values[len(e.values)-1], true
}

func (s *Set) GetAll(name string) []any {
	if e, ok := s.entries[name]; ok {
		return slices.Clone(e.values)
	}
	return nil
}

func (s *Set) Comment(name string) string {
	if e, ok := s.entries[name]; ok {
		return e.comment
	}
	return ""
}

func (s *Set) IsArray(name string) bool {
	e, ok := s.entries[name]
	return ok && len(e.values) > 1
}

func (s *Set) TypeOf(name string) Kind {
	if e, ok := s.entries[name]; ok {
		return e.kind()
	}
	return KindNull
}

func (s *Set) Add(name string, value any, comment string) error {
	if s.entries == nil {
		s.entries = make(map[string]*entry)
	}
	value = Normalize(value)
	if e, ok := s.entries[name]; ok {
		return e.add(value)
	}
	s.entries[name] = &entry{name: name, values: []any{value}, comment: comment}
	return nil
}

func (s *Set) Set(name string, value any, comment string) error {
	if s.entries == nil {
		s.entries = make(map[string]*entry)
	}
	s.entries[name] = &entry{name: name, values: []any{Normalize(value)}, comment: comment}
	return nil
}

func (s *Set) Remove(name string) { delete(s.entries, name) }

func (s *Set) Ordered() bool { return false }

// GetInt64 returns name as int64, accepting integral floats and in-range uint64.
func GetInt64(c Container, name string) (int64, error) {
	v, ok := c.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), nil
		}
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
			return int64(x), nil
		}
	}
	return 0, fmt.Errorf("%w: %s is %s, want int64", ErrTypeMismatch, name, KindOf(v))
}

// GetFloat64 returns name as float64, converting integers.
func GetFloat64(c Container, name string) (float64, error) {
	v, ok := c.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%w: %s is %s, want float64", ErrTypeMismatch, name, KindOf(v))
}

// GetString returns name as a string.
func GetString(c Container, name string) (string, error) {
	v, ok := c.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %s, want string", ErrTypeMismatch, name, KindOf(v))
	}
	return s, nil
}

// GetBool returns name as a bool.
func GetBool(c Container, name string) (bool, error) {
	v, ok := c.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %s, want bool", ErrTypeMismatch, name, KindOf(v))
	}
	return b, nil
}

// GetStrings returns every value stored under name as strings.
func GetStrings(c Container, name string) ([]string, error) {
	vals := c.GetAll(name)
	if vals == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %s, want string", ErrTypeMismatch, name, KindOf(v))
		}
		out = append(out, s)
	}
	return out, nil
}
