package fits

import (
	"bytes"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestShuffleRoundTrip(t *testing.T) {
	t.Parallel()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	s := shuffle(data, 4)
	want := []byte{1, 5, 2, 6, 3, 7, 4, 8}
	if !bytes.Equal(s, want) {
		t.Fatalf("shuffle mismatch: got %v want %v", s, want)
	}
	if back := unshuffle(s, 4); !bytes.Equal(back, data) {
		t.Fatalf("unshuffle mismatch: got %v want %v", back, data)
	}
	if one := shuffle(data, 1); !bytes.Equal(one, data) {
		t.Fatalf("single-byte shuffle should be the identity")
	}
}

func TestGzipRoundTrip(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("fits tile "), 300)
	z, err := gzipBytes(data)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if len(z) >= len(data) {
		t.Fatalf("repetitive data did not shrink: %d >= %d", len(z), len(data))
	}
	back, err := gunzipBytes(z, len(data))
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	if !bytes.Equal(back, data) {
		t.Fatalf("gzip round trip mismatch")
	}
	if _, err := gunzipBytes(z, len(data)+1); err == nil {
		t.Fatalf("expected error when the stream is shorter than requested")
	}
	if _, err := gunzipBytes([]byte("not gzip"), 4); err == nil {
		t.Fatalf("expected error for a corrupt stream")
	}
}

func riceInput(bytepix, n int, gen func(i int) uint64) []byte {
	raw := make([]byte, n*bytepix)
	for i := range n {
		putUnsigned(raw, i, bytepix, gen(i))
	}
	return raw
}

func TestRiceRoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	field := noisyPixels(333)
	for _, bytepix := range []int{1, 2, 4} {
		width := uint(8 * bytepix)
		inputs := map[string][]byte{
			"random":   riceInput(bytepix, 1000, func(int) uint64 { return rng.Uint64() >> (64 - width) }),
			"constant": riceInput(bytepix, 70, func(int) uint64 { return 17 }),
			"smooth": riceInput(bytepix, 333, func(i int) uint64 {
				return uint64(int64(field[i]*2)) & (1<<width - 1)
			}),
			"single": riceInput(bytepix, 1, func(int) uint64 { return 5 }),
		}
		for name, raw := range inputs {
			n := len(raw) / bytepix
			z, err := riceCompress(raw, bytepix)
			if err != nil {
				t.Fatalf("bytepix %d %s: compress: %v", bytepix, name, err)
			}
			back, err := riceDecompress(z, n, bytepix)
			if err != nil {
				t.Fatalf("bytepix %d %s: decompress: %v", bytepix, name, err)
			}
			if !bytes.Equal(back, raw) {
				t.Fatalf("bytepix %d %s: rice round trip mismatch", bytepix, name)
			}
		}
	}
}

func TestRiceCompressesConstantData(t *testing.T) {
	t.Parallel()

	raw := riceInput(4, 4096, func(int) uint64 { return 123456 })
	z, err := riceCompress(raw, 4)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(z)*20 > len(raw) {
		t.Fatalf("constant data compressed poorly: %d of %d bytes", len(z), len(raw))
	}
	if _, err := riceCompress(raw, 8); err == nil {
		t.Fatalf("expected error for 8-byte pixels")
	}
	if _, err := riceDecompress(z[:4], 4096, 4); err == nil {
		t.Fatalf("expected error for a truncated stream")
	}
}

func TestPlioRoundTrip(t *testing.T) {
	t.Parallel()

	var values []int64
	values = append(values, make([]int64, 5000)...) // zero run longer than one word
	values = append(values, 1, 1, 1, 2, 3, 3, 0, 0, 1)
	values = append(values, 9000, 9000, 8999, 4)                // jumps beyond one word of data
	values = append(values, slices.Repeat([]int64{7}, 4200)...) // long high run
	values = append(values, plioMaxValue, 0, 12, 6)

	z, err := plioCompress(values)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	back, err := plioDecompress(z, len(values))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !slices.Equal(back, values) {
		for i := range values {
			if back[i] != values[i] {
				t.Fatalf("plio mismatch at %d: got %d want %d", i, back[i], values[i])
			}
		}
	}
}

func TestPlioRejectsOutOfRangeValues(t *testing.T) {
	t.Parallel()

	if _, err := plioCompress([]int64{1, -1}); err == nil {
		t.Fatalf("expected error for a negative value")
	}
	if _, err := plioCompress([]int64{plioMaxValue + 1}); err == nil {
		t.Fatalf("expected error for a value above 2^24-1")
	}
	if _, err := plioDecompress([]byte{0, 1}, 4); err == nil {
		t.Fatalf("expected error for a truncated list")
	}
}
