package fits

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestFormatParseCardRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key   string
		value any
		check func(raw string) bool
	}{
		{"FLAG", true, func(raw string) bool { b, err := ParseBool(raw); return err == nil && b }},
		{"OFF", false, func(raw string) bool { b, err := ParseBool(raw); return err == nil && !b }},
		{"COUNT", int64(-42), func(raw string) bool { i, err := ParseInt(raw); return err == nil && i == -42 }},
		{"BIG", int64(math.MaxInt64), func(raw string) bool { i, err := ParseInt(raw); return err == nil && i == math.MaxInt64 }},
		{"RATIO", 0.1, func(raw string) bool { f, err := ParseFloat(raw); return err == nil && f == 0.1 }},
		{"EXPTIME", 30.0, func(raw string) bool { f, err := ParseFloat(raw); return err == nil && f == 30 }},
		{"NANVAL", math.NaN(), func(raw string) bool { f, err := ParseFloat(raw); return err == nil && math.IsNaN(f) }},
		{"POSINF", math.Inf(1), func(raw string) bool { f, err := ParseFloat(raw); return err == nil && math.IsInf(f, 1) }},
		{"NEGINF", math.Inf(-1), func(raw string) bool { f, err := ParseFloat(raw); return err == nil && math.IsInf(f, -1) }},
		{"OBJECT", "it's M31", func(raw string) bool { s, ok := unquote(raw); return ok && s == "it's M31" }},
	}
	for _, tc := range cases {
		raw, err := FormatCard(tc.key, tc.value, "a comment")
		if err != nil {
			t.Fatalf("format %s: %v", tc.key, err)
		}
		if len(raw) != CardSize {
			t.Fatalf("card width mismatch for %s: got %d want %d", tc.key, len(raw), CardSize)
		}
		if strings.ContainsAny(raw, "\n\r") {
			t.Fatalf("card for %s contains a line break: %q", tc.key, raw)
		}
		c, err := ParseCard(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.key, err)
		}
		if c.Key != tc.key {
			t.Fatalf("key mismatch: got %q want %q", c.Key, tc.key)
		}
		if c.Comment != "a comment" {
			t.Fatalf("comment mismatch for %s: got %q", tc.key, c.Comment)
		}
		if !tc.check(c.Value) {
			t.Fatalf("value mismatch for %s: raw %q", tc.key, c.Value)
		}
	}
}

func TestFormatCardNormalizesKeyCase(t *testing.T) {
	t.Parallel()

	raw, err := FormatCard("exptime", 1, "")
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.HasPrefix(raw, "EXPTIME =") {
		t.Fatalf("expected upper-case key, got: %q", raw)
	}
	c, err := ParseCard("exptime =                    1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Key != "EXPTIME" {
		t.Fatalf("key mismatch: got %q want %q", c.Key, "EXPTIME")
	}
}

func TestHierarchCard(t *testing.T) {
	t.Parallel()

	raw, err := FormatCard("ESO DET CHIP", 3, "")
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if !strings.HasPrefix(raw, "HIERARCH ESO DET CHIP = 3") {
		t.Fatalf("unexpected HIERARCH card: %q", raw)
	}
	c, err := ParseCard(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Key != "ESO DET CHIP" || c.Value != "3" {
		t.Fatalf("HIERARCH mismatch: got key %q value %q", c.Key, c.Value)
	}
}

func TestCommentaryCards(t *testing.T) {
	t.Parallel()

	c, err := ParseCard("HISTORY   reduced with fitskit")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Key != "HISTORY" || c.Comment != "  reduced with fitskit" {
		t.Fatalf("history mismatch: got %+v", c)
	}
	if !c.IsCommentary() {
		t.Fatalf("HISTORY should be commentary")
	}

	long := strings.Repeat("x", 100)
	cards := formatCommentary("COMMENT", long)
	if len(cards) != 2 {
		t.Fatalf("commentary card count mismatch: got %d want 2", len(cards))
	}
	for _, card := range cards {
		if len(card) != CardSize {
			t.Fatalf("commentary width mismatch: got %d", len(card))
		}
	}
}

func TestFormatCardTooLong(t *testing.T) {
	t.Parallel()

	_, err := FormatCard("OBJECT", strings.Repeat("a", 90), "")
	if !errors.Is(err, ErrCardTooLong) {
		t.Fatalf("expected ErrCardTooLong, got: %v", err)
	}
	if _, err := FormatValue(struct{}{}); err == nil {
		t.Fatalf("expected type error for unsupported value")
	} else {
		var te *TypeError
		if !errors.As(err, &te) {
			t.Fatalf("expected *TypeError, got: %T", err)
		}
	}
}

func TestLongStringRoundTrip(t *testing.T) {
	t.Parallel()

	value := strings.Repeat("The quick brown fox's tail ", 9) + "ends here"
	h := NewHeader()
	if err := h.Append("LONGSTR", value, "a long one"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if h.Len() < 3 {
		t.Fatalf("expected CONTINUE cards, got %d cards", h.Len())
	}
	for i := 0; i < h.Len(); i++ {
		if len(h.Raw(i)) != CardSize {
			t.Fatalf("card %d width mismatch: got %d", i, len(h.Raw(i)))
		}
		if i > 0 && !strings.HasPrefix(h.Raw(i), "CONTINUE") {
			t.Fatalf("card %d is not a CONTINUE card: %q", i, h.Raw(i))
		}
	}
	got, err := h.String("LONGSTR")
	if err != nil {
		t.Fatalf("read long string: %v", err)
	}
	if got != value {
		t.Fatalf("long string mismatch:\ngot  %q\nwant %q", got, value)
	}

	// quotes straddling every possible cut point
	quoted := strings.Repeat("'", 150)
	if err := h.Update("QUOTES", quoted, ""); err != nil {
		t.Fatalf("append quotes: %v", err)
	}
	got, err = h.String("QUOTES")
	if err != nil {
		t.Fatalf("read quotes: %v", err)
	}
	if got != quoted {
		t.Fatalf("quoted long string mismatch: got %d chars want %d", len(got), len(quoted))
	}
}

func TestParseFloatFortranExponent(t *testing.T) {
	t.Parallel()

	f, err := ParseFloat("1.5D+02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f != 150 {
		t.Fatalf("value mismatch: got %v want 150", f)
	}
	if _, err := ParseFloat("'hello'"); err == nil {
		t.Fatalf("expected error for quoted non-numeric value")
	}
}

func TestLongCommentaryNeverTruncated(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("0123456789", 15)
	if _, err := FormatCard("HISTORY", text, ""); !errors.Is(err, ErrCardTooLong) {
		t.Fatalf("long history mismatch: got %v want %v", err, ErrCardTooLong)
	}
	card, err := FormatCard("COMMENT", text[:72], "")
	if err != nil {
		t.Fatalf("format 72-character comment: %v", err)
	}
	if len(card) != CardSize || card[8:] != text[:72] {
		t.Fatalf("comment card mismatch: got %q", card)
	}

	cards, err := FormatCards("COMMENT", nil, text)
	if err != nil {
		t.Fatalf("format cards: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("card count mismatch: got %d want 3", len(cards))
	}
	var joined strings.Builder
	for _, c := range cards {
		if len(c) != CardSize || c[:8] != "COMMENT " {
			t.Fatalf("commentary card mismatch: got %q", c)
		}
		joined.WriteString(c[8:])
	}
	if got := strings.TrimRight(joined.String(), " "); got != text {
		t.Fatalf("rejoined text mismatch: got %q want %q", got, text)
	}

	h := NewHeader()
	if err := h.Insert(0, "HISTORY", text, ""); err != nil {
		t.Fatalf("insert history: %v", err)
	}
	if h.Len() != 3 {
		t.Fatalf("header length mismatch: got %d want 3", h.Len())
	}
}
