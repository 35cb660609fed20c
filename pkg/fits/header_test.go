package fits

import (
	"errors"
	"strings"
	"testing"
)

func TestHeaderBytesRoundTrip(t *testing.T) {
	t.Parallel()

	h := NewHeader()
	for i := 0; i < 40; i++ {
		if err := h.Append("KEY"+strings.Repeat("A", i%5), i, "card"); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if h.Blocks() != 2 {
		t.Fatalf("block count mismatch: got %d want 2", h.Blocks())
	}
	raw := h.Bytes()
	if len(raw) != 2*BlockSize {
		t.Fatalf("encoded size mismatch: got %d want %d", len(raw), 2*BlockSize)
	}

	parsed, n, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed bytes mismatch: got %d want %d", n, len(raw))
	}
	if parsed.Len() != h.Len() {
		t.Fatalf("card count mismatch: got %d want %d", parsed.Len(), h.Len())
	}
	for i := 0; i < h.Len(); i++ {
		if parsed.Raw(i) != h.Raw(i) {
			t.Fatalf("card %d mismatch: got %q want %q", i, parsed.Raw(i), h.Raw(i))
		}
	}
}

func TestParseHeaderWithoutEnd(t *testing.T) {
	t.Parallel()

	block := []byte(strings.Repeat(" ", BlockSize))
	if _, _, err := ParseHeader(block); !errors.Is(err, ErrCorruptHeader) {
		t.Fatalf("expected ErrCorruptHeader, got: %v", err)
	}
}

func TestHeaderUpdateKeepsPositionAndComment(t *testing.T) {
	t.Parallel()

	h := NewHeader()
	_ = h.Append("FIRST", 1, "first card")
	_ = h.Append("SECOND", 2, "second card")
	_ = h.Append("THIRD", 3, "")

	if err := h.Update("SECOND", 20, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if h.Index("SECOND") != 1 {
		t.Fatalf("position mismatch: got %d want 1", h.Index("SECOND"))
	}
	c, ok, err := h.Get("SECOND")
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if c.Comment != "second card" {
		t.Fatalf("comment mismatch: got %q want %q", c.Comment, "second card")
	}
	v, err := h.Int("SECOND")
	if err != nil || v != 20 {
		t.Fatalf("value mismatch: got %d (%v) want 20", v, err)
	}
}

func TestHeaderLongStringUpdateAndDelete(t *testing.T) {
	t.Parallel()

	h := NewHeader()
	_ = h.Append("BEFORE", 1, "")
	if err := h.Append("NOTE", strings.Repeat("n", 200), ""); err != nil {
		t.Fatalf("append long: %v", err)
	}
	_ = h.Append("AFTER", 2, "")
	cards := h.Len()

	// replacing a long string with a short one drops its CONTINUE cards
	if err := h.Update("NOTE", "short", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if h.Len() != 3 {
		t.Fatalf("card count after update mismatch: got %d want 3 (was %d)", h.Len(), cards)
	}
	if err := h.Update("NOTE", strings.Repeat("m", 200), ""); err != nil {
		t.Fatalf("update long: %v", err)
	}
	if !h.Delete("NOTE") {
		t.Fatalf("delete reported no card")
	}
	if h.Len() != 2 {
		t.Fatalf("card count after delete mismatch: got %d want 2", h.Len())
	}
	if v, err := h.Int("AFTER"); err != nil || v != 2 {
		t.Fatalf("AFTER mismatch: got %d (%v)", v, err)
	}
}

func TestHeaderForEachReassemblesAndRejectsStrayContinue(t *testing.T) {
	t.Parallel()

	h := NewHeader()
	long := strings.Repeat("abc", 50)
	_ = h.Append("LONG", long, "")
	_ = h.Append("SHORT", "x", "")

	var keys []string
	err := h.ForEach(func(_ string, c Card) error {
		keys = append(keys, c.Key)
		if c.Key == "LONG" {
			s, _ := unquote(c.Value)
			if s != long {
				t.Fatalf("reassembled value mismatch: got %d chars want %d", len(s), len(long))
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("for each: %v", err)
	}
	if strings.Join(keys, ",") != "LONG,SHORT" {
		t.Fatalf("keys mismatch: got %v", keys)
	}

	stray := NewHeader()
	stray.AppendRaw("CONTINUE  'orphan'")
	err = stray.ForEach(func(string, Card) error { return nil })
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError for stray CONTINUE, got: %v", err)
	}
}

func TestHeaderIntAcceptsIntegralReal(t *testing.T) {
	t.Parallel()

	h := NewHeader()
	h.AppendRaw("BZERO   =              32768.0")
	v, err := h.Int("BZERO")
	if err != nil {
		t.Fatalf("int: %v", err)
	}
	if v != 32768 {
		t.Fatalf("value mismatch: got %d want 32768", v)
	}
	if _, err := h.Int("MISSING"); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if d, err := h.IntDefault("MISSING", 7); err != nil || d != 7 {
		t.Fatalf("default mismatch: got %d (%v) want 7", d, err)
	}
}
