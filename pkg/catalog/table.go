package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/fitskit/pkg/fits"
)

var ErrUnsorted = errors.New("catalog: records not sorted by ID")

// Table column names.
const (
	colID       = "id"
	colX        = "x"
	colY        = "y"
	colFlux     = "flux"
	colFirst    = "first"
	colSecond   = "second"
	colDistance = "distance"
)

// WriteCatalog appends c as a binary table HDU named SOURCES. The cursor
// should report errors through fits.AutoCheck.
func WriteCatalog(f *fits.Fits, c *Catalog) error {
	if err := f.CreateTable(); err != nil {
		return err
	}
	if err := f.UpdateKey("EXTNAME", "SOURCES", "source catalog"); err != nil {
		return err
	}
	id, err := fits.AddColumn[int64](f, colID, 1, "unique record ID")
	if err != nil {
		return err
	}
	cols := [3]int{}
	for i, name := range []string{colX, colY, colFlux} {
		if cols[i], err = fits.AddColumn[float64](f, name, 1, ""); err != nil {
			return err
		}
	}
	if _, err := f.AddRows(c.Len()); err != nil {
		return err
	}
	for row, s := range c.records {
		if err := fits.WriteTableScalar(f, row, id, s.ID); err != nil {
			return err
		}
		for i, v := range [3]float64{s.X, s.Y, s.Flux} {
			if err := fits.WriteTableScalar(f, row, cols[i], v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadCatalog reads the source table at the cursor. Every ID is reported to
// ids, so rows must be in ascending ID order; a nil ids means a new simple
// factory.
func ReadCatalog(f *fits.Fits, ids IdFactory) (*Catalog, error) {
	c := New(ids)
	idx, err := columns(f, colID, colX, colY, colFlux)
	if err != nil {
		return nil, err
	}
	rows, err := f.CountRows()
	if err != nil {
		return nil, err
	}
	for row := range rows {
		s := &Source{}
		if s.ID, err = fits.ReadTableScalar[int64](f, row, idx[0]); err != nil {
			return nil, err
		}
		for i, dst := range []*float64{&s.X, &s.Y, &s.Flux} {
			if *dst, err = fits.ReadTableScalar[float64](f, row, idx[i+1]); err != nil {
				return nil, err
			}
		}
		if err := c.Append(s); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
	}
	return c, nil
}

// WriteMatches appends matches as a table of (first, second, distance) with
// records replaced by their IDs. A nil side is written as ID 0.
func WriteMatches[R1, R2 any](f *fits.Fits, matches []Match[R1, R2], id1 func(*R1) RecordID, id2 func(*R2) RecordID) error {
	if err := f.CreateTable(); err != nil {
		return err
	}
	if err := f.UpdateKey("EXTNAME", "MATCHES", "record matches"); err != nil {
		return err
	}
	first, err := fits.AddColumn[int64](f, colFirst, 1, "ID of the first record")
	if err != nil {
		return err
	}
	second, err := fits.AddColumn[int64](f, colSecond, 1, "ID of the second record")
	if err != nil {
		return err
	}
	dist, err := fits.AddColumn[float64](f, colDistance, 1, "separation in pixels")
	if err != nil {
		return err
	}
	if _, err := f.AddRows(len(matches)); err != nil {
		return err
	}
	for row, m := range matches {
		var a, b RecordID
		if m.First != nil {
			a = id1(m.First)
		}
		if m.Second != nil {
			b = id2(m.Second)
		}
		if err := fits.WriteTableScalar(f, row, first, a); err != nil {
			return err
		}
		if err := fits.WriteTableScalar(f, row, second, b); err != nil {
			return err
		}
		if err := fits.WriteTableScalar(f, row, dist, m.Distance); err != nil {
			return err
		}
	}
	return nil
}

// ReadMatches reads the match table at the cursor and resolves IDs against
// first and second, which must be sorted by ascending ID. IDs that cannot be
// found leave that side nil.
func ReadMatches[R1, R2 any](f *fits.Fits, first []*R1, id1 func(*R1) RecordID, second []*R2, id2 func(*R2) RecordID) ([]Match[R1, R2], error) {
	byID1 := func(a, b *R1) int { return cmp.Compare(id1(a), id1(b)) }
	byID2 := func(a, b *R2) int { return cmp.Compare(id2(a), id2(b)) }
	if !slices.IsSortedFunc(first, byID1) || !slices.IsSortedFunc(second, byID2) {
		return nil, ErrUnsorted
	}
	idx, err := columns(f, colFirst, colSecond, colDistance)
	if err != nil {
		return nil, err
	}
	rows, err := f.CountRows()
	if err != nil {
		return nil, err
	}
	out := make([]Match[R1, R2], rows)
	for row := range rows {
		a, err := fits.ReadTableScalar[int64](f, row, idx[0])
		if err != nil {
			return nil, err
		}
		b, err := fits.ReadTableScalar[int64](f, row, idx[1])
		if err != nil {
			return nil, err
		}
		d, err := fits.ReadTableScalar[float64](f, row, idx[2])
		if err != nil {
			return nil, err
		}
		out[row].First, _ = findByID(first, id1, a)
		out[row].Second, _ = findByID(second, id2, b)
		out[row].Distance = d
	}
	return out, nil
}

func columns(f *fits.Fits, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		c, err := f.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		idx[i] = c
	}
	return idx, nil
}
