package fits

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	CardSize      = 80
	BlockSize     = 2880
	CardsPerBlock = BlockSize / CardSize
	maxKeyLen     = 8
)

// Card is one logical header record. Value holds the raw FITS text of the value
// field: quotes are kept for strings and an undefined value is empty.
type Card struct {
	Key     string
	Value   string
	Comment string
}

// IsCommentary reports whether the card carries free text instead of a value.
func (c Card) IsCommentary() bool {
	switch c.Key {
	case "COMMENT", "HISTORY", "", "CONTINUE":
		return true
	}
	return false
}

func isCommentaryKey(key string) bool {
	return key == "COMMENT" || key == "HISTORY" || key == ""
}

// validKey reports whether key fits in the fixed 8-character keyword field.
func validKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLen {
		return false
	}
	for _, c := range key {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// FormatValue renders a typed value for the value field of a card.
// Non-finite floats become the quoted strings NAN, +INFINITY and -INFINITY.
func FormatValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case bool:
		if x {
			return fmt.Sprintf("%20s", "T"), nil
		}
		return fmt.Sprintf("%20s", "F"), nil
	case int:
		return fmt.Sprintf("%20d", x), nil
	case int8:
		return fmt.Sprintf("%20d", x), nil
	case int16:
		return fmt.Sprintf("%20d", x), nil
	case int32:
		return fmt.Sprintf("%20d", x), nil
	case int64:
		return fmt.Sprintf("%20d", x), nil
	case uint8:
		return fmt.Sprintf("%20d", x), nil
	case uint16:
		return fmt.Sprintf("%20d", x), nil
	case uint32:
		return fmt.Sprintf("%20d", x), nil
	case uint64:
		return fmt.Sprintf("%20d", x), nil
	case uint:
		return fmt.Sprintf("%20d", x), nil
	case float32:
		if s, ok := nonFiniteToken(float64(x)); ok {
			return quoteString(s), nil
		}
		return fmt.Sprintf("%#20.15G", x), nil
	case float64:
		if s, ok := nonFiniteToken(x); ok {
			return quoteString(s), nil
		}
		return fmt.Sprintf("%#20.17G", x), nil
	case string:
		return quoteString(x), nil
	default:
		return "", typeErrorf("unsupported header value type %T", v)
	}
}

func nonFiniteToken(f float64) (string, bool) {
	switch {
	case math.IsNaN(f):
		return "NAN", true
	case math.IsInf(f, 1):
		return "+INFINITY", true
	case math.IsInf(f, -1):
		return "-INFINITY", true
	}
	return "", false
}

// ParseNonFinite decodes the string encodings of NaN and the infinities.
func ParseNonFinite(s string) (float64, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NAN":
		return math.NaN(), nil
	case "+INFINITY", "INFINITY":
		return math.Inf(1), nil
	case "-INFINITY":
		return math.Inf(-1), nil
	}
	return 0, formatErrorf("", "%q is not a non-finite floating point token", s)
}

func quoteString(s string) string {
	esc := strings.ReplaceAll(s, "'", "''")
	if len(esc) < 8 {
		esc += strings.Repeat(" ", 8-len(esc))
	}
	return "'" + esc + "'"
}

func padCard(s string) string {
	if len(s) >= CardSize {
		return s
	}
	return s + strings.Repeat(" ", CardSize-len(s))
}

// FormatCard renders one 80-character card. A non-string card that does not fit is a
// LogicError; a string card or COMMENT/HISTORY text that does not fit returns
// ErrCardTooLong.
func FormatCard(key string, value any, comment string) (string, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if isCommentaryKey(key) {
		text := commentaryText(value, comment)
		if len(text) > CardSize-maxKeyLen {
			return "", ErrCardTooLong
		}
		return formatCommentary(key, text)[0], nil
	}
	val, err := FormatValue(value)
	if err != nil {
		return "", err
	}
	var card string
	if validKey(key) {
		card = fmt.Sprintf("%-8s= %s", key, val)
	} else {
		card = fmt.Sprintf("HIERARCH %s = %s", key, strings.TrimLeft(val, " "))
	}
	if comment != "" {
		withComment := card + " / " + comment
		if len(withComment) <= CardSize {
			card = withComment
		} else if len(card)+3 < CardSize {
			card = withComment[:CardSize]
		}
	}
	if len(card) > CardSize {
		if _, ok := value.(string); ok {
			return "", ErrCardTooLong
		}
		return "", logicErrorf("card for %s is %d characters", key, len(card))
	}
	return padCard(card), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// FormatCards renders a value as one or more physical cards. Strings that do not
// fit in one card are split across CONTINUE cards, each chunk ending in '&'.
func FormatCards(key string, value any, comment string) ([]string, error) {
	card, err := FormatCard(key, value, comment)
	if err == nil {
		return []string{card}, nil
	}
	if err != ErrCardTooLong {
		return nil, err
	}
	key = strings.ToUpper(strings.TrimSpace(key))
	if isCommentaryKey(key) {
		return formatCommentary(key, commentaryText(value, comment)), nil
	}
	s := value.(string)

	prefix := fmt.Sprintf("%-8s= '", key)
	if !validKey(key) {
		prefix = fmt.Sprintf("HIERARCH %s = '", key)
	}
	const contPrefix = "CONTINUE  '"
	first := CardSize - len(prefix) - 2
	if first < 1 {
		return nil, logicErrorf("keyword %s leaves no room for a value", key)
	}

	chunks := splitLongString(s, first, CardSize-len(contPrefix)-2)
	cards := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		last := i == len(chunks)-1
		text := chunk
		if !last {
			text += "&"
		}
		c := contPrefix + text + "'"
		if i == 0 {
			c = prefix + text + "'"
		}
		if last && comment != "" {
			c = truncate(c+" / "+comment, CardSize)
		}
		if len(c) > CardSize {
			return nil, logicErrorf("long string chunk for %s is %d characters", key, len(c))
		}
		cards = append(cards, padCard(c))
	}
	return cards, nil
}

// splitLongString escapes quotes and cuts the result into chunks that never split
// an escaped quote pair. The first chunk holds at most first bytes, later ones rest.
func splitLongString(s string, first, rest int) []string {
	esc := strings.ReplaceAll(s, "'", "''")
	var out []string
	limit := first
	for len(esc) > limit {
		n := limit
		// an odd run of quotes at the cut would split an escaped pair
		q := 0
		for i := n - 1; i >= 0 && esc[i] == '\''; i-- {
			q++
		}
		if q%2 == 1 {
			n--
		}
		out = append(out, esc[:n])
		esc = esc[n:]
		limit = rest
	}
	return append(out, esc)
}

// formatCommentary renders COMMENT/HISTORY text, wrapping it over as many cards
// as needed.
func commentaryText(value any, comment string) string {
	if text, _ := value.(string); text != "" {
		return text
	}
	return comment
}

func formatCommentary(key, text string) []string {
	const width = CardSize - maxKeyLen
	if text == "" {
		return []string{padCard(key)}
	}
	var cards []string
	for len(text) > 0 {
		n := min(width, len(text))
		cards = append(cards, padCard(fmt.Sprintf("%-8s%s", key, text[:n])))
		text = text[n:]
	}
	return cards
}

// ParseCard splits a raw card into key, raw value text and comment. Keys are
// upper-cased. Commentary keys carry their text in Comment.
func ParseCard(raw string) (Card, error) {
	if len(raw) > CardSize {
		raw = raw[:CardSize]
	}
	raw = strings.TrimRight(raw, " \x00")
	if strings.HasPrefix(raw, "HIERARCH ") {
		rest := raw[len("HIERARCH "):]
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return Card{Key: "HIERARCH", Comment: strings.TrimSpace(rest)}, nil
		}
		key := strings.ToUpper(strings.TrimSpace(rest[:eq]))
		val, comment, err := splitValueComment(rest[eq+1:])
		if err != nil {
			return Card{}, formatErrorf(key, "%v", err)
		}
		return Card{Key: key, Value: val, Comment: comment}, nil
	}

	keyField := raw
	if len(keyField) > maxKeyLen {
		keyField = keyField[:maxKeyLen]
	}
	key := strings.ToUpper(strings.TrimSpace(keyField))
	rest := ""
	if len(raw) > maxKeyLen {
		rest = raw[maxKeyLen:]
	}

	// an undefined value leaves only "=" once trailing blanks are trimmed
	hasValue := strings.HasPrefix(rest, "= ") || rest == "="
	switch {
	case key == "CONTINUE":
		val, comment, err := splitValueComment(rest)
		if err != nil {
			return Card{}, formatErrorf(key, "%v", err)
		}
		return Card{Key: key, Value: val, Comment: comment}, nil
	case isCommentaryKey(key) || !hasValue:
		if key == "END" {
			return Card{Key: key}, nil
		}
		text := strings.TrimRight(rest, " ")
		if key == "COMMENT" || key == "HISTORY" || key == "" {
			return Card{Key: key, Comment: text}, nil
		}
		// keyword without value indicator: commentary by definition
		return Card{Key: key, Comment: strings.TrimSpace(text)}, nil
	}

	val, comment, err := splitValueComment(rest[1:])
	if err != nil {
		return Card{}, formatErrorf(key, "%v", err)
	}
	return Card{Key: key, Value: val, Comment: comment}, nil
}

// splitValueComment separates the value field from the comment. A quoted string
// runs to its closing quote; doubled quotes inside it are part of the value.
func splitValueComment(s string) (string, string, error) {
	t := strings.TrimLeft(s, " ")
	if strings.HasPrefix(t, "'") {
		i := 1
		for {
			j := strings.IndexByte(t[i:], '\'')
			if j < 0 {
				return "", "", fmt.Errorf("unterminated string %q", t)
			}
			i += j + 1
			if i < len(t) && t[i] == '\'' {
				i++
				continue
			}
			break
		}
		val := t[:i]
		rest := t[i:]
		comment := ""
		if k := strings.IndexByte(rest, '/'); k >= 0 {
			comment = strings.TrimSpace(rest[k+1:])
		}
		return val, comment, nil
	}
	comment := ""
	if k := strings.IndexByte(t, '/'); k >= 0 {
		comment = strings.TrimSpace(t[k+1:])
		t = t[:k]
	}
	return strings.TrimSpace(t), comment, nil
}

// unquote returns the text inside a quoted value with escapes removed and trailing
// blanks stripped. ok is false when raw is not a quoted string.
func unquote(raw string) (string, bool) {
	if len(raw) < 2 || raw[0] != '\'' || raw[len(raw)-1] != '\'' {
		return "", false
	}
	s := strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
	return strings.TrimRight(s, " "), true
}

// ParseBool decodes a FITS logical.
func ParseBool(raw string) (bool, error) {
	switch strings.TrimSpace(raw) {
	case "T", "t":
		return true, nil
	case "F", "f":
		return false, nil
	}
	return false, formatErrorf("", "%q is not a logical value", raw)
}

// ParseFloat decodes a FITS real, including the Fortran D exponent and the
// non-finite string tokens.
func ParseFloat(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if s, ok := unquote(raw); ok {
		return ParseNonFinite(s)
	}
	f, err := strconv.ParseFloat(strings.Map(func(r rune) rune {
		if r == 'D' || r == 'd' {
			return 'E'
		}
		return r
	}, raw), 64)
	if err != nil {
		return 0, formatErrorf("", "%q is not a real value", raw)
	}
	return f, nil
}

// ParseInt decodes a FITS integer.
func ParseInt(raw string) (int64, error) {
	i, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "+"), 10, 64)
	if err != nil {
		return 0, formatErrorf("", "%q is not an integer value", raw)
	}
	return i, nil
}
