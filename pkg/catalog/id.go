// Package catalog holds source records, record ID generation and positional
// matching between record sets, persisted as FITS binary tables.
package catalog

import (
	"errors"
	"fmt"
	"sync"
)

// RecordID identifies a record. Zero means no record.
type RecordID = int64

var ErrIDOrder = errors.New("catalog: record ID not above the last issued ID")

// IdFactory issues unique, increasing, nonzero record IDs.
type IdFactory interface {
	// Next returns a new ID.
	Next() RecordID
	// Notify records that id was assigned elsewhere. It fails when id is not
	// above every ID seen so far.
	Notify(id RecordID) error
	// Clone returns an independent copy of the factory state.
	Clone() IdFactory
}

// simpleIdFactory counts up from 1.
type simpleIdFactory struct {
	mu      sync.Mutex
	current RecordID
}

// NewSimpleIdFactory returns a factory whose first ID is 1.
func NewSimpleIdFactory() IdFactory {
	return &simpleIdFactory{}
}

func (f *simpleIdFactory) Next() RecordID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current++
	return f.current
}

func (f *simpleIdFactory) Notify(id RecordID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id <= f.current {
		return fmt.Errorf("%w: %d <= %d", ErrIDOrder, id, f.current)
	}
	f.current = id
	return nil
}

func (f *simpleIdFactory) Clone() IdFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &simpleIdFactory{current: f.current}
}
