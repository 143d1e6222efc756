package storage

import (
	"sync/atomic"

	icommon "github.com/chronokv/chronokv/internal/common"
	"github.com/chronokv/chronokv/pkg/common"
)

// memtable is the in-memory store of the most recent writes.
// It is thread safe and can be accessed concurrently.
type memtable struct {
	skiplist *skipList
	icmp     *internalKeyComparator

	// approximate memory usage in bytes
	size uint64
}

// set inserts the value for the given internal key.
func (m *memtable) set(ikey internalKey, value []byte) error {
	if !ikey.valid() {
		return icommon.NewInvalidInternalKeyError("storage: invalid internal key")
	}

	m.skiplist.set(ikey, value)
	atomic.AddUint64(&m.size, uint64(len(ikey)+len(value)))
	return nil
}

// get finds the newest entry for the user key of lkey with a sequence number
// not greater than that of lkey.
//
// returns the value and the kind of the entry found. The kind tells a live
// value apart from a deletion tombstone.
func (m *memtable) get(lkey internalKey) (value []byte, kind internalKeyKind, err error) {
	itr := m.skiplist.newSkipListIterator()
	itr.Seek(lkey)

	if !itr.Valid() {
		return nil, 0, common.NewNotFoundError("storage: key not found in memtable")
	}

	found := internalKey(itr.Key())
	if m.icmp.ukComparator.Compare(found.userKey(), lkey.userKey()) != 0 {
		return nil, 0, common.NewNotFoundError("storage: key not found in memtable")
	}

	return itr.Value(), found.kind(), nil
}

// newIterator returns an iterator over the internal keys of the memtable.
func (m *memtable) newIterator() Iterator {
	return m.skiplist.newSkipListIterator()
}

// approximateSize returns the approximate memory usage of the memtable in bytes.
func (m *memtable) approximateSize() uint64 {
	return atomic.LoadUint64(&m.size)
}

// empty returns true if the memtable holds no entries.
func (m *memtable) empty() bool {
	return m.skiplist.front() == nil
}

// newMemtable returns a new instance of the memtable.
func newMemtable(icmp *internalKeyComparator) *memtable {
	return &memtable{
		skiplist: newSkipList(defaultMaxLevel, icmp),
		icmp:     icmp,
	}
}
