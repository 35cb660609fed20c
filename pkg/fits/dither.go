package fits

import (
	"encoding/binary"
	"sync"

	"github.com/zeebo/blake3"
)

// nRandom is the length of the subtractive dither random sequence.
const nRandom = 10000

// randomTable is the Park-Miller sequence shared by every SUBTRACTIVE_DITHER_1
// writer, so dithered files decode the same everywhere.
var randomTable = sync.OnceValue(func() []float32 {
	const a, m = 16807.0, 2147483647.0
	out := make([]float32, nRandom)
	seed := 1.0
	for i := range out {
		temp := a * seed
		seed = temp - m*float64(int64(temp/m))
		out[i] = float32(seed / m)
	}
	return out
})

// ditherer yields the dither offsets of one tile.
type ditherer struct {
	iseed int
	next  int
}

// newDitherer starts the sequence for the 0-based tile index with a seed in
// 1..10000.
func newDitherer(tile, seed int) *ditherer {
	iseed := (tile + seed - 1) % nRandom
	return &ditherer{iseed: iseed, next: int(randomTable()[iseed] * 500)}
}

func (d *ditherer) value() float64 {
	r := float64(randomTable()[d.next])
	d.next++
	if d.next == nRandom {
		d.iseed++
		if d.iseed == nRandom {
			d.iseed = 0
		}
		d.next = int(randomTable()[d.iseed] * 500)
	}
	return r
}

// foldSeed maps any positive seed into 1..10000.
func foldSeed(seed int) int {
	return (seed-1)%nRandom + 1
}

// contentSeed derives a dither seed from pixel data so identical images always
// dither identically.
func contentSeed(raw []byte) int {
	sum := blake3.Sum256(raw)
	return int(binary.BigEndian.Uint64(sum[:8])%nRandom) + 1
}

// tileGrid iterates the tiles of a width x height image in row-major tile
// order. tw and th are the tile sizes.
type tileGrid struct {
	width, height int
	tw, th        int
}

func newTileGrid(width, height, tw, th int) tileGrid {
	if tw <= 0 || tw > width {
		tw = width
	}
	if th <= 0 || th > height {
		th = height
	}
	return tileGrid{width: width, height: height, tw: max(tw, 1), th: max(th, 1)}
}

func (g tileGrid) count() int {
	if g.width == 0 || g.height == 0 {
		return 0
	}
	return ((g.width + g.tw - 1) / g.tw) * ((g.height + g.th - 1) / g.th)
}

// each calls fn for every tile with its index and pixel rectangle.
func (g tileGrid) each(fn func(tile, x0, y0, w, h int) error) error {
	tile := 0
	for y0 := 0; y0 < g.height; y0 += g.th {
		h := min(g.th, g.height-y0)
		for x0 := 0; x0 < g.width; x0 += g.tw {
			w := min(g.tw, g.width-x0)
			if err := fn(tile, x0, y0, w, h); err != nil {
				return err
			}
			tile++
		}
	}
	return nil
}
