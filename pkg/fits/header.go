package fits

import (
	"bytes"
	"slices"
	"strings"
)

var endCard = padCard("END")

// Header is the ordered list of physical cards of one HDU, END excluded.
type Header struct {
	cards []string
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{}
}

// ParseHeader reads cards from consecutive 2880-byte blocks up to and including the
// block holding END. It returns the header and the number of bytes consumed.
func ParseHeader(data []byte) (*Header, int, error) {
	h := &Header{}
	off := 0
	for {
		if off+BlockSize > len(data) {
			return nil, 0, ErrCorruptHeader
		}
		block := data[off : off+BlockSize]
		off += BlockSize
		for i := 0; i < CardsPerBlock; i++ {
			raw := string(block[i*CardSize : (i+1)*CardSize])
			if strings.HasPrefix(raw, "END") && strings.TrimSpace(raw[3:]) == "" {
				return h, off, nil
			}
			h.cards = append(h.cards, raw)
		}
	}
}

// Len returns the number of physical cards.
func (h *Header) Len() int { return len(h.cards) }

// Raw returns the physical card at index i.
func (h *Header) Raw(i int) string { return h.cards[i] }

// Blocks returns how many 2880-byte blocks the header occupies including END.
func (h *Header) Blocks() int {
	return (len(h.cards) + 1 + CardsPerBlock - 1) / CardsPerBlock
}

// Bytes encodes the header with END and blank padding to whole blocks.
func (h *Header) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(h.Blocks() * BlockSize)
	for _, c := range h.cards {
		buf.WriteString(c)
	}
	buf.WriteString(endCard)
	for buf.Len()%BlockSize != 0 {
		buf.WriteByte(' ')
	}
	return buf.Bytes()
}

// Clone returns an independent copy.
func (h *Header) Clone() *Header {
	return &Header{cards: slices.Clone(h.cards)}
}

func cardKey(raw string) string {
	if strings.HasPrefix(raw, "HIERARCH ") {
		rest := raw[len("HIERARCH "):]
		if eq := strings.IndexByte(rest, '='); eq >= 0 {
			return strings.ToUpper(strings.TrimSpace(rest[:eq]))
		}
		return "HIERARCH"
	}
	k := raw
	if len(k) > maxKeyLen {
		k = k[:maxKeyLen]
	}
	return strings.ToUpper(strings.TrimSpace(k))
}

// keyCaseChanged reports whether the stored keyword was not already upper case.
func keyCaseChanged(raw string) bool {
	k := raw
	if len(k) > maxKeyLen {
		k = k[:maxKeyLen]
	}
	return k != strings.ToUpper(k)
}

// Index returns the position of the first card with key, or -1.
func (h *Header) Index(key string) int {
	key = strings.ToUpper(key)
	for i, c := range h.cards {
		if cardKey(c) == key {
			return i
		}
	}
	return -1
}

// Has reports whether a card with key exists.
func (h *Header) Has(key string) bool { return h.Index(key) >= 0 }

// span returns the index one past the logical card starting at i, covering any
// CONTINUE cards that extend a long string.
func (h *Header) span(i int) int {
	j := i + 1
	c, err := ParseCard(h.cards[i])
	if err != nil {
		return j
	}
	for continues(c.Value) && j < len(h.cards) && cardKey(h.cards[j]) == "CONTINUE" {
		c, err = ParseCard(h.cards[j])
		if err != nil {
			break
		}
		j++
	}
	return j
}

func continues(raw string) bool {
	s, ok := unquote(raw)
	return ok && strings.HasSuffix(s, "&")
}

// Get returns the logical card for key with any long string reassembled.
func (h *Header) Get(key string) (Card, bool, error) {
	i := h.Index(key)
	if i < 0 {
		return Card{}, false, nil
	}
	c, _, err := h.logical(i)
	if err != nil {
		return Card{}, true, err
	}
	return c, true, nil
}

// logical parses the card at i and folds any CONTINUE cards that follow it.
// It returns the card and the index after the last physical card consumed.
func (h *Header) logical(i int) (Card, int, error) {
	c, err := ParseCard(h.cards[i])
	if err != nil {
		return Card{}, i + 1, err
	}
	j := i + 1
	if c.IsCommentary() {
		return c, j, nil
	}
	s, quoted := unquote(c.Value)
	if !quoted || !strings.HasSuffix(s, "&") {
		return c, j, nil
	}
	text := s
	comment := c.Comment
	for strings.HasSuffix(text, "&") && j < len(h.cards) && cardKey(h.cards[j]) == "CONTINUE" {
		cont, err := ParseCard(h.cards[j])
		if err != nil {
			return Card{}, j + 1, err
		}
		part, ok := unquote(cont.Value)
		if !ok {
			return Card{}, j + 1, formatErrorf(c.Key, "CONTINUE card %d has no quoted value", j+1)
		}
		text = strings.TrimSuffix(text, "&") + part
		if cont.Comment != "" {
			if comment != "" {
				comment += " "
			}
			comment += cont.Comment
		}
		j++
	}
	c.Value = "'" + strings.ReplaceAll(text, "'", "''") + "'"
	c.Comment = comment
	return c, j, nil
}

// ForEach calls fn for every logical card in order. Long strings arrive
// reassembled; a stray CONTINUE card is reported as a FormatError.
func (h *Header) ForEach(fn func(raw string, c Card) error) error {
	for i := 0; i < len(h.cards); {
		if cardKey(h.cards[i]) == "CONTINUE" {
			return formatErrorf("CONTINUE", "continuation card %d does not follow a long string", i+1)
		}
		c, next, err := h.logical(i)
		if err != nil {
			return err
		}
		if err := fn(h.cards[i], c); err != nil {
			return err
		}
		i = next
	}
	return nil
}

// Append adds a value card (or several, for long strings) at the end.
func (h *Header) Append(key string, value any, comment string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	if isCommentaryKey(key) {
		h.cards = append(h.cards, formatCommentary(key, commentaryText(value, comment))...)
		return nil
	}
	cards, err := FormatCards(key, value, comment)
	if err != nil {
		return err
	}
	h.cards = append(h.cards, cards...)
	return nil
}

// Update replaces the first card with key in place, or appends a new one.
func (h *Header) Update(key string, value any, comment string) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	i := h.Index(key)
	if i < 0 || isCommentaryKey(key) {
		return h.Append(key, value, comment)
	}
	if comment == "" {
		if c, err := ParseCard(h.cards[i]); err == nil {
			comment = c.Comment
		}
	}
	cards, err := FormatCards(key, value, comment)
	if err != nil {
		return err
	}
	h.cards = slices.Replace(h.cards, i, h.span(i), cards...)
	return nil
}

// Insert places a value card before position i.
func (h *Header) Insert(i int, key string, value any, comment string) error {
	cards, err := FormatCards(key, value, comment)
	if err != nil {
		return err
	}
	h.cards = slices.Insert(h.cards, i, cards...)
	return nil
}

// Delete removes the first card with key. It reports whether a card was removed.
func (h *Header) Delete(key string) bool {
	i := h.Index(key)
	if i < 0 {
		return false
	}
	h.cards = slices.Delete(h.cards, i, h.span(i))
	return true
}

// AppendRaw adds an already formatted card.
func (h *Header) AppendRaw(card string) {
	h.cards = append(h.cards, padCard(truncate(card, CardSize)))
}

// Int returns the integer value of key.
func (h *Header) Int(key string) (int64, error) {
	c, ok, err := h.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newStatus(StatusKeyNotFound, "keyword %s not found", key)
	}
	if i, err := ParseInt(c.Value); err == nil {
		return i, nil
	}
	// some writers emit integral values as reals, e.g. BZERO = 32768.0
	if f, err := ParseFloat(c.Value); err == nil && f == float64(int64(f)) {
		return int64(f), nil
	}
	return 0, formatErrorf(key, "value %q is not an integer", c.Value)
}

// IntDefault returns the integer value of key, or def when the key is absent.
func (h *Header) IntDefault(key string, def int64) (int64, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Int(key)
}

// Float returns the real value of key; integers are accepted.
func (h *Header) Float(key string) (float64, error) {
	c, ok, err := h.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, newStatus(StatusKeyNotFound, "keyword %s not found", key)
	}
	f, err := ParseFloat(c.Value)
	if err != nil {
		return 0, formatErrorf(key, "value %q is not a real number", c.Value)
	}
	return f, nil
}

// FloatDefault returns the real value of key, or def when absent.
func (h *Header) FloatDefault(key string, def float64) (float64, error) {
	if !h.Has(key) {
		return def, nil
	}
	return h.Float(key)
}

// Bool returns the logical value of key.
func (h *Header) Bool(key string) (bool, error) {
	c, ok, err := h.Get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, newStatus(StatusKeyNotFound, "keyword %s not found", key)
	}
	return ParseBool(c.Value)
}

// String returns the string value of key.
func (h *Header) String(key string) (string, error) {
	c, ok, err := h.Get(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newStatus(StatusKeyNotFound, "keyword %s not found", key)
	}
	s, quoted := unquote(c.Value)
	if !quoted {
		return c.Value, nil
	}
	return s, nil
}
