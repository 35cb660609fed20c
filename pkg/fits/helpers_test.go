package fits

import (
	"math"
	"testing"

	"github.com/samcharles93/fitskit/internal/logger"
)

// testImage is a minimal ImageSource.
type testImage[T Pixel] struct {
	pix    []T
	w, h   int
	x0, y0 int
}

func (i *testImage[T]) Array() []T  { return i.pix }
func (i *testImage[T]) Width() int  { return i.w }
func (i *testImage[T]) Height() int { return i.h }
func (i *testImage[T]) X0() int     { return i.x0 }
func (i *testImage[T]) Y0() int     { return i.y0 }

// testMask is a StatsMask over a fixed plane dictionary.
type testMask struct {
	arr    []uint32
	planes map[string]uint32
}

func (m *testMask) Array() []uint32 { return m.arr }

func (m *testMask) PlaneBitMask(names ...string) (uint32, error) {
	var bits uint32
	for _, n := range names {
		b, ok := m.planes[n]
		if !ok {
			return 0, configErrorf("no mask plane %q", n)
		}
		bits |= b
	}
	return bits, nil
}

func openTestMem(t *testing.T, m *MemFile, mode string) *Fits {
	t.Helper()
	f, err := OpenMem(m, mode, AutoCheck, WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("open memory file (%s): %v", mode, err)
	}
	return f
}

func closeTest(t *testing.T, f *Fits) {
	t.Helper()
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// noisyPixels returns a smooth deterministic field with small-scale structure.
func noisyPixels(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(100 + 3*math.Sin(float64(i)*0.7) + 0.5*math.Cos(float64(i)*2.3))
	}
	return out
}
