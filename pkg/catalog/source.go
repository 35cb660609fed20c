package catalog

import (
	"cmp"
	"slices"
)

// Source is a detected object.
type Source struct {
	ID   RecordID
	X, Y float64
	Flux float64
}

// SourcePosition is the Position of a Source.
func SourcePosition(s *Source) (float64, float64) { return s.X, s.Y }

// SourceID returns the ID of s, or zero for nil.
func SourceID(s *Source) RecordID {
	if s == nil {
		return 0
	}
	return s.ID
}

// Catalog is an ordered set of sources whose IDs come from one factory.
type Catalog struct {
	ids     IdFactory
	records []*Source
}

// New returns an empty catalog. A nil factory means NewSimpleIdFactory.
func New(ids IdFactory) *Catalog {
	if ids == nil {
		ids = NewSimpleIdFactory()
	}
	return &Catalog{ids: ids}
}

// AddNew appends a source with a fresh ID.
func (c *Catalog) AddNew(x, y, flux float64) *Source {
	s := &Source{ID: c.ids.Next(), X: x, Y: y, Flux: flux}
	c.records = append(c.records, s)
	return s
}

// Append adds s. A zero ID is replaced by a fresh one; any other ID is
// reported to the factory and must be above every ID it has seen.
func (c *Catalog) Append(s *Source) error {
	if s.ID == 0 {
		s.ID = c.ids.Next()
	} else if err := c.ids.Notify(s.ID); err != nil {
		return err
	}
	c.records = append(c.records, s)
	return nil
}

func (c *Catalog) Len() int            { return len(c.records) }
func (c *Catalog) Records() []*Source  { return c.records }
func (c *Catalog) IdFactory() IdFactory { return c.ids }

// Sort orders the records by ascending ID.
func (c *Catalog) Sort() {
	slices.SortStableFunc(c.records, func(a, b *Source) int { return cmp.Compare(a.ID, b.ID) })
}

// IsSorted reports whether the records are in ascending ID order.
func (c *Catalog) IsSorted() bool {
	return slices.IsSortedFunc(c.records, func(a, b *Source) int { return cmp.Compare(a.ID, b.ID) })
}

// Find looks id up by binary search. The catalog must be sorted.
func (c *Catalog) Find(id RecordID) (*Source, bool) {
	return findByID(c.records, SourceID, id)
}

func findByID[R any](v []*R, idOf func(*R) RecordID, id RecordID) (*R, bool) {
	i, ok := slices.BinarySearchFunc(v, id, func(r *R, id RecordID) int { return cmp.Compare(idOf(r), id) })
	if !ok {
		return nil, false
	}
	return v[i], true
}
