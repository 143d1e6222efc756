package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemtableGetSetWithSeq(t *testing.T) {
	internalKeyComparator := newInternalKeyComparator(plainComparator{DefaultComparator})
	m := newMemtable(internalKeyComparator)

	seqNumber := uint64(1)

	// set for key with seq number 1
	ikey1 := newInternalKey(testKeys[0], internalKeyKindSet, seqNumber)
	err := m.set(ikey1, testValues[0])
	assert.Nil(t, err, "Unexpected error in setting in memtable for ikey1")

	// set new value for same key with seq number 2
	ikey2 := newInternalKey(testKeys[0], internalKeyKindSet, seqNumber+1)
	err = m.set(ikey2, testValues[1])
	assert.Nil(t, err, "Unexpected error in setting in memtable for ikey2")

	// seq number 2 or above should give latest value which is testValues[1]
	ikey3 := newInternalKey(testKeys[0], internalKeyKindSet, seqNumber+100)
	val, kind, err := m.get(ikey3)
	assert.Nil(t, err, fmt.Sprintf("Unexpected error in getting value for key%d", 3))
	assert.Equal(t, internalKeyKindSet, kind, "Unexpected kind for the entry found")
	assert.Equal(t, testValues[1], val, fmt.Sprintf("Unexpected value for key%d. Expected %v, found %v", 3, testValues[1], val))

	val, _, err = m.get(ikey2)
	assert.Nil(t, err, fmt.Sprintf("Unexpected error in getting value for key%d", 2))
	assert.Equal(t, testValues[1], val, fmt.Sprintf("Unexpected value for key%d. Expected %v, found %v", 1, testValues[1], val))

	// seq number 1 should give testValues[0]
	val, _, err = m.get(ikey1)
	assert.Nil(t, err, fmt.Sprintf("Unexpected error in getting value for key%d", 1))
	assert.Equal(t, testValues[0], val, fmt.Sprintf("Unexpected value for key%d. Expected %v, found %v", 0, testValues[0], val))
}

func TestMemtableDeleteTombstone(t *testing.T) {
	internalKeyComparator := newInternalKeyComparator(plainComparator{DefaultComparator})
	m := newMemtable(internalKeyComparator)

	err := m.set(newInternalKey(testKeys[0], internalKeyKindSet, 1), testValues[0])
	assert.Nil(t, err, "Unexpected error in setting in memtable")

	err = m.set(newInternalKey(testKeys[0], internalKeyKindDelete, 2), nil)
	assert.Nil(t, err, "Unexpected error in writing tombstone in memtable")

	// the newest entry for the key is the tombstone
	_, kind, err := m.get(newInternalKey(testKeys[0], internalKeyKindSet, maxSequenceNumber))
	assert.Nil(t, err, "Unexpected error in getting tombstoned key")
	assert.Equal(t, internalKeyKindDelete, kind, "Expected a deletion tombstone as the newest entry")

	// a lookup below the tombstone's seq number still sees the live value
	val, kind, err := m.get(newInternalKey(testKeys[0], internalKeyKindSet, 1))
	assert.Nil(t, err, "Unexpected error in getting key below the tombstone")
	assert.Equal(t, internalKeyKindSet, kind, "Expected a live entry below the tombstone")
	assert.Equal(t, testValues[0], val, "Unexpected value below the tombstone")
}

func TestMemtableTimestampedKeyOrder(t *testing.T) {
	options := NewOptions()
	err := RegisterU64TimestampComparator(options)
	assert.Nil(t, err, "Unexpected error in registering the u64 timestamp comparator")

	ucmp := options.userComparator(DefaultComparator)
	m := newMemtable(newInternalKeyComparator(ucmp))

	// three versions of the same key, inserted out of order
	for i, ts := range []uint64{2, 1, 3} {
		vk := AppendTimestampToKey(testKeys[0], EncodeU64Timestamp(ts))
		err := m.set(newInternalKey(vk, internalKeyKindSet, uint64(i+1)), testValues[i])
		assert.Nil(t, err, "Unexpected error in setting versioned key in memtable")
	}

	// iteration must yield the newest timestamp first
	itr := m.newIterator()
	var seen []uint64
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		uk := internalKey(itr.Key()).userKey()
		ts, err := DecodeU64Timestamp(ExtractTimestampFromKey(uk, U64TimestampSize))
		assert.Nil(t, err, "Unexpected error decoding timestamp from stored key")
		seen = append(seen, ts)
	}
	assert.Equal(t, []uint64{3, 2, 1}, seen, "Versions of a key are not ordered newest timestamp first")
}

func TestMemtableApproximateSize(t *testing.T) {
	internalKeyComparator := newInternalKeyComparator(plainComparator{DefaultComparator})
	m := newMemtable(internalKeyComparator)

	assert.True(t, m.empty(), "Freshly created memtable should be empty")
	assert.Equal(t, uint64(0), m.approximateSize(), "Freshly created memtable should have zero size")

	ikey := newInternalKey(testKeys[0], internalKeyKindSet, 1)
	err := m.set(ikey, testValues[0])
	assert.Nil(t, err, "Unexpected error in setting in memtable")

	assert.False(t, m.empty(), "Memtable with an entry should not be empty")
	assert.Equal(t, uint64(len(ikey)+len(testValues[0])), m.approximateSize(), "Unexpected approximate size after one set")
}
