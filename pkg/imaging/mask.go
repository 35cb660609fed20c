package imaging

import (
	"fmt"
	"maps"
	"slices"
)

// MaskPixel is the storage type of mask planes.
type MaskPixel = uint32

// MaxPlanes is the number of bit planes a MaskPixel holds.
const MaxPlanes = 32

// DefaultPlanes are defined on every new mask, in bit order.
var DefaultPlanes = []string{"BAD", "SAT", "INTRP", "CR", "EDGE", "DETECTED", "DETECTED_NEGATIVE", "SUSPECT", "NO_DATA"}

// planeDict maps plane names to bit numbers. Masks cut from one another share
// a dictionary, so a plane added to one is visible in all.
type planeDict struct {
	bits map[string]int
}

func defaultDict() *planeDict {
	d := &planeDict{bits: make(map[string]int, len(DefaultPlanes))}
	for i, name := range DefaultPlanes {
		d.bits[name] = i
	}
	return d
}

func (d *planeDict) free() (int, bool) {
	used := make([]bool, MaxPlanes)
	for _, b := range d.bits {
		used[b] = true
	}
	i := slices.Index(used, false)
	return i, i >= 0
}

// Mask is an image of bit planes with a named plane dictionary.
type Mask struct {
	Image[MaskPixel]
	dict *planeDict
}

// NewMask allocates a zeroed mask with the default planes.
func NewMask(width, height int) *Mask {
	return &Mask{Image: *NewImage[MaskPixel](width, height), dict: defaultDict()}
}

// NewMaskBox allocates a zeroed mask covering b.
func NewMaskBox(b Box) *Mask {
	m := NewMask(b.W, b.H)
	m.xy0 = b.Min
	return m
}

// MaskPlanes returns a copy of the plane dictionary.
func (m *Mask) MaskPlanes() map[string]int { return maps.Clone(m.dict.bits) }

// SetMaskPlanes replaces the dictionary for m and every mask sharing it.
func (m *Mask) SetMaskPlanes(planes map[string]int) error {
	for name, b := range planes {
		if b < 0 || b >= MaxPlanes {
			return fmt.Errorf("imaging: plane %s has bit %d", name, b)
		}
	}
	m.dict.bits = maps.Clone(planes)
	return nil
}

// AddMaskPlane returns the bit of name, defining it on the lowest free bit
// when it is new.
func (m *Mask) AddMaskPlane(name string) (int, error) {
	if b, ok := m.dict.bits[name]; ok {
		return b, nil
	}
	b, ok := m.dict.free()
	if !ok {
		return 0, fmt.Errorf("%w: adding %s", ErrTooMany, name)
	}
	m.dict.bits[name] = b
	return b, nil
}

// RemoveMaskPlane drops name from the dictionary. Pixels of m keep their
// bits; call ClearMaskPlane first to erase them.
func (m *Mask) RemoveMaskPlane(name string) error {
	if _, ok := m.dict.bits[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNoPlane, name)
	}
	delete(m.dict.bits, name)
	return nil
}

// MaskPlane returns the bit number of name.
func (m *Mask) MaskPlane(name string) (int, error) {
	b, ok := m.dict.bits[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoPlane, name)
	}
	return b, nil
}

// PlaneBitMask ORs together the bit values of names.
func (m *Mask) PlaneBitMask(names ...string) (MaskPixel, error) {
	var bits MaskPixel
	for _, name := range names {
		b, err := m.MaskPlane(name)
		if err != nil {
			return 0, err
		}
		bits |= 1 << b
	}
	return bits, nil
}

// ClearMaskPlane zeroes the bit of name in every pixel.
func (m *Mask) ClearMaskPlane(name string) error {
	bits, err := m.PlaneBitMask(name)
	if err != nil {
		return err
	}
	for i := range m.pix {
		m.pix[i] &^= bits
	}
	return nil
}

// SetMaskPlaneBox sets the bits of name over the parent-frame box b,
// clipped to the mask.
func (m *Mask) SetMaskPlaneBox(name string, b Box) error {
	bits, err := m.PlaneBitMask(name)
	if err != nil {
		return err
	}
	area := m.BBox().Intersect(b)
	for y := range area.H {
		row := m.Row(area.Min.Y - m.xy0.Y + y)
		x := area.Min.X - m.xy0.X
		for i := x; i < x+area.W; i++ {
			row[i] |= bits
		}
	}
	return nil
}

// CountPlane returns how many pixels have the bit of name set.
func (m *Mask) CountPlane(name string) (int, error) {
	bits, err := m.PlaneBitMask(name)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range m.pix {
		if v&bits != 0 {
			n++
		}
	}
	return n, nil
}

// Clone deep copies the pixels and shares the plane dictionary.
func (m *Mask) Clone() *Mask {
	return &Mask{Image: *m.Image.Clone(), dict: m.dict}
}

// Subimage copies b out of m, sharing the plane dictionary.
func (m *Mask) Subimage(b Box) (*Mask, error) {
	img, err := m.Image.Subimage(b)
	if err != nil {
		return nil, err
	}
	return &Mask{Image: *img, dict: m.dict}, nil
}

// PlaneNames lists the defined planes in bit order.
func (m *Mask) PlaneNames() []string {
	names := slices.Collect(maps.Keys(m.dict.bits))
	slices.SortFunc(names, func(a, b string) int { return m.dict.bits[a] - m.dict.bits[b] })
	return names
}
