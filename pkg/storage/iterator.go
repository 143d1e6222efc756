package storage

// Iterator is the interface over a sorted sequence of key-value pairs.
type Iterator interface {
	// Checks if the current position of the iterator is valid.
	Valid() bool

	// Move to the first entry of the source.
	// Call Valid() to ensure that the iterator is valid after the seek.
	SeekToFirst()

	// Seek the iterator to the first element whose key is >= target.
	// Call Valid() to ensure that the iterator is valid after the seek.
	Seek(target []byte)

	// Moves to the next key-value pair in the source.
	// REQUIRES: Current position of iterator is valid. Panics otherwise.
	Next()

	// Get the key of the current iterator position.
	// REQUIRES: Current position of iterator is valid. Panics otherwise.
	Key() []byte

	// Get the value of the current iterator position.
	// REQUIRES: Current position of iterator is valid. Panics otherwise.
	Value() []byte

	// Error returns the first error the iterator encountered, if any.
	// An error invalidates the iterator; callers finding the iterator
	// invalid earlier than expected should consult Error.
	Error() error
}

// mergingIterator merges a number of sorted iterators into one sorted view.
//
// When two children hold an equal key the one earlier in the list wins, so
// the caller must order the children newest source first.
type mergingIterator struct {
	cmp     Comparator
	iters   []Iterator
	current Iterator
}

var _ Iterator = (*mergingIterator)(nil)

func newMergingIterator(cmp Comparator, iters ...Iterator) *mergingIterator {
	return &mergingIterator{
		cmp:   cmp,
		iters: iters,
	}
}

// findSmallest points current at the child with the smallest key.
func (mi *mergingIterator) findSmallest() {
	mi.current = nil

	for _, itr := range mi.iters {
		if !itr.Valid() {
			continue
		}
		if mi.current == nil || mi.cmp.Compare(itr.Key(), mi.current.Key()) < 0 {
			mi.current = itr
		}
	}
}

// Valid checks if the current position of the iterator is valid.
func (mi *mergingIterator) Valid() bool {
	return mi.current != nil
}

// SeekToFirst moves to the first entry across all children.
func (mi *mergingIterator) SeekToFirst() {
	for _, itr := range mi.iters {
		itr.SeekToFirst()
	}
	mi.findSmallest()
}

// Seek moves the iterator to the first entry whose key is >= target.
func (mi *mergingIterator) Seek(target []byte) {
	for _, itr := range mi.iters {
		itr.Seek(target)
	}
	mi.findSmallest()
}

// Next moves to the next entry.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (mi *mergingIterator) Next() {
	if !mi.Valid() {
		panic("Next on an invalid iterator position in merging iterator.")
	}
	mi.current.Next()
	mi.findSmallest()
}

// Key gets the key of the current iterator position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (mi *mergingIterator) Key() []byte {
	if !mi.Valid() {
		panic("Key on an invalid iterator position in merging iterator.")
	}
	return mi.current.Key()
}

// Value gets the value of the current iterator position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (mi *mergingIterator) Value() []byte {
	if !mi.Valid() {
		panic("Value on an invalid iterator position in merging iterator.")
	}
	return mi.current.Value()
}

// Error returns the first error encountered by any of the children.
func (mi *mergingIterator) Error() error {
	for _, itr := range mi.iters {
		if err := itr.Error(); err != nil {
			return err
		}
	}
	return nil
}

// TimestampIterator iterates the versions of a column family visible at a
// read timestamp: for every logical key it yields the newest version whose
// timestamp is <= the read timestamp, hiding deletion tombstones.
//
// For column families without a timestamp comparator it yields the newest
// live value of every key.
type TimestampIterator struct {
	itr  Iterator
	ucmp userComparator

	// readTs is owned by the iterator; nil means every version is visible.
	readTs []byte

	// decidedKey is the logical key whose visibility was last decided;
	// remaining older versions of it are skipped. decided tracks whether a
	// decision exists, since the empty user key is a valid logical key.
	decidedKey []byte
	decided    bool

	valid      bool
	currentKey []byte
	currentTs  []byte
}

func newTimestampIterator(itr Iterator, ucmp userComparator, readTs []byte) *TimestampIterator {
	var owned []byte
	if readTs != nil {
		owned = append([]byte(nil), readTs...)
	}
	return &TimestampIterator{
		itr:    itr,
		ucmp:   ucmp,
		readTs: owned,
	}
}

// advance positions the iterator on the next visible version at or after the
// current position of the underlying internal iterator.
func (ti *TimestampIterator) advance() {
	tsSize := ti.ucmp.timestampSize()

	for ti.itr.Valid() {
		ik := internalKey(ti.itr.Key())
		if !ik.valid() {
			ti.itr.Next()
			continue
		}

		uk := ik.userKey()
		stripped, ts := uk, []byte(nil)
		if tsSize > 0 {
			if len(uk) < tsSize {
				ti.itr.Next()
				continue
			}
			stripped = uk[:len(uk)-tsSize]
			ts = uk[len(uk)-tsSize:]
		}

		// older versions of an already decided key
		if ti.decided && ti.ucmp.compareWithoutTimestamp(stripped, false, ti.decidedKey, false) == 0 {
			ti.itr.Next()
			continue
		}

		// versions newer than the read timestamp are invisible
		if ti.readTs != nil && tsSize > 0 && ti.ucmp.compareTimestamp(ts, ti.readTs) > 0 {
			ti.itr.Next()
			continue
		}

		// this entry decides the visibility of its logical key
		ti.decidedKey = append(ti.decidedKey[:0], stripped...)
		ti.decided = true

		if ik.kind() == internalKeyKindDelete {
			ti.itr.Next()
			continue
		}

		ti.currentKey = append(ti.currentKey[:0], stripped...)
		ti.currentTs = append(ti.currentTs[:0], ts...)
		ti.valid = true
		return
	}

	ti.valid = false
}

// lookupKey builds the internal key a seek for the given user key starts at.
func (ti *TimestampIterator) lookupKey(userKey []byte) internalKey {
	full := userKey
	if ti.ucmp.timestampSize() > 0 {
		full = AppendTimestampToKey(userKey, ti.readTs)
	}
	return newInternalKey(full, internalKeyKindSet, maxSequenceNumber)
}

// Valid checks if the current position of the iterator is valid.
func (ti *TimestampIterator) Valid() bool {
	return ti.valid
}

// SeekToFirst moves to the first visible entry.
func (ti *TimestampIterator) SeekToFirst() {
	ti.itr.SeekToFirst()
	ti.decided = false
	ti.advance()
}

// Seek moves to the first visible entry whose user key is >= target.
// The target is a user key without a timestamp suffix.
func (ti *TimestampIterator) Seek(target []byte) {
	ti.itr.Seek(ti.lookupKey(target))
	ti.decided = false
	ti.advance()
}

// Next moves to the next visible entry.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (ti *TimestampIterator) Next() {
	if !ti.valid {
		panic("Next on an invalid iterator position in timestamp iterator.")
	}
	ti.itr.Next()
	ti.advance()
}

// Key gets the user key (timestamp stripped) of the current position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (ti *TimestampIterator) Key() []byte {
	if !ti.valid {
		panic("Key on an invalid iterator position in timestamp iterator.")
	}
	return ti.currentKey
}

// Timestamp gets the timestamp of the version at the current position.
// Empty for column families without a timestamp comparator.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (ti *TimestampIterator) Timestamp() []byte {
	if !ti.valid {
		panic("Timestamp on an invalid iterator position in timestamp iterator.")
	}
	return ti.currentTs
}

// Value gets the value of the current position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (ti *TimestampIterator) Value() []byte {
	if !ti.valid {
		panic("Value on an invalid iterator position in timestamp iterator.")
	}
	return ti.itr.Value()
}

// Error returns the first error encountered by the underlying sources.
// A table read failure invalidates the iterator rather than panicking, so a
// scan that ends earlier than expected should consult Error before trusting
// the result.
func (ti *TimestampIterator) Error() error {
	return ti.itr.Error()
}
