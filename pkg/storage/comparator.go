package storage

import (
	"bytes"
)

// Comparator defines a total ordering over the []byte key space.
// It is used in the memtable as well as in the table files.
type Comparator interface {
	// Compare returns a negative number, 0 or a positive number if a is less
	// than, equal to or greater than b respectively.
	Compare(a, b []byte) int

	// Name returns the name of the comparator.
	//
	// The data is stored in the sorted order determined by a comparator.
	// Hence opening a database with a different comparator than the one it was
	// created with will cause an error.
	Name() string
}

// DefaultComparator is the default comparator which uses byte wise ordering.
var DefaultComparator Comparator = defaultComparator{}

type defaultComparator struct{}

func (d defaultComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (d defaultComparator) Name() string {
	return "BytewiseComparator"
}

// userComparator is the ordering the engine internals route every user key
// comparison through. A timestampComparator implements it directly; a plain
// Comparator is wrapped by plainComparator with a zero timestamp size.
type userComparator interface {
	Comparator

	// timestampSize returns the declared timestamp suffix size in bytes.
	// 0 means keys carry no timestamp.
	timestampSize() int

	// compareTimestamp compares two raw timestamp byte sequences.
	compareTimestamp(a, b []byte) int

	// compareWithoutTimestamp compares two keys ignoring their timestamp
	// suffixes. The has flags tell whether each key carries a suffix.
	compareWithoutTimestamp(a []byte, aHasTs bool, b []byte, bHasTs bool) int
}

// plainComparator adapts a timestamp-unaware Comparator to the userComparator
// surface used by the engine internals.
type plainComparator struct {
	Comparator
}

func (p plainComparator) timestampSize() int {
	return 0
}

func (p plainComparator) compareTimestamp(a, b []byte) int {
	return 0
}

func (p plainComparator) compareWithoutTimestamp(a []byte, aHasTs bool, b []byte, bHasTs bool) int {
	return p.Compare(a, b)
}
