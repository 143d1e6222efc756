package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergingIterator(t *testing.T) {
	icmp := newInternalKeyComparator(plainComparator{DefaultComparator})

	newer := newMemtable(icmp)
	older := newMemtable(icmp)

	// interleaved keys across the two sources
	for i, m := range []*memtable{newer, older} {
		for j := i; j < len(testKeys); j += 2 {
			err := m.set(newInternalKey(testKeys[j], internalKeyKindSet, uint64(j+1)), testValues[j])
			assert.Nil(t, err, "Unexpected error in setting in a source memtable")
		}
	}

	mi := newMergingIterator(icmp, newer.newIterator(), older.newIterator())

	i := 0
	for mi.SeekToFirst(); mi.Valid(); mi.Next() {
		assert.Equal(t, testKeys[i], internalKey(mi.Key()).userKey(), fmt.Sprintf("Unexpected key at merge position %d", i))
		assert.Equal(t, testValues[i], mi.Value(), fmt.Sprintf("Unexpected value at merge position %d", i))
		i++
	}
	assert.Equal(t, len(testKeys), i, "The merged view didn't yield every key of both sources")

	mi.Seek(newInternalKey(testKeys[2], internalKeyKindSet, maxSequenceNumber))
	assert.True(t, mi.Valid(), "Iterator invalid after seeking an existing key")
	assert.Equal(t, testKeys[2], internalKey(mi.Key()).userKey(), "Seek didn't land on the target key")
}

func TestMergingIteratorFirstSourceWinsTies(t *testing.T) {
	icmp := newInternalKeyComparator(plainComparator{DefaultComparator})

	newer := newMemtable(icmp)
	older := newMemtable(icmp)

	// the same internal key in both sources with different values
	ikey := newInternalKey(testKeys[0], internalKeyKindSet, 1)
	assert.Nil(t, newer.set(ikey, []byte("from-newer")), "Unexpected error in setting in the newer source")
	assert.Nil(t, older.set(ikey, []byte("from-older")), "Unexpected error in setting in the older source")

	mi := newMergingIterator(icmp, newer.newIterator(), older.newIterator())
	mi.SeekToFirst()
	assert.True(t, mi.Valid(), "Iterator invalid after seeking the duplicated key")
	assert.Equal(t, []byte("from-newer"), mi.Value(), "On an equal key the earlier source must win")
}

func TestTimestampIteratorVisibility(t *testing.T) {
	options := NewOptions()
	err := RegisterU64TimestampComparator(options)
	assert.Nil(t, err, "Unexpected error in registering the u64 timestamp comparator")

	ucmp := options.userComparator(DefaultComparator)
	icmp := newInternalKeyComparator(ucmp)
	m := newMemtable(icmp)

	seq := uint64(1)
	write := func(key string, ts uint64, kind internalKeyKind, value []byte) {
		vk := AppendTimestampToKey([]byte(key), EncodeU64Timestamp(ts))
		err := m.set(newInternalKey(vk, kind, seq), value)
		assert.Nil(t, err, "Unexpected error in writing a versioned entry")
		seq++
	}

	write("a", 1, internalKeyKindSet, []byte("a1"))
	write("a", 3, internalKeyKindSet, []byte("a3"))
	write("b", 2, internalKeyKindSet, []byte("b2"))
	write("b", 3, internalKeyKindDelete, nil)
	write("c", 5, internalKeyKindSet, []byte("c5"))

	collect := func(readTs uint64) map[string]string {
		ti := newTimestampIterator(m.newIterator(), ucmp, EncodeU64Timestamp(readTs))
		out := map[string]string{}
		for ti.SeekToFirst(); ti.Valid(); ti.Next() {
			out[string(ti.Key())] = string(ti.Value())
		}
		return out
	}

	assert.Equal(t, map[string]string{"a": "a1"}, collect(1), "Unexpected visible versions at ts1")
	assert.Equal(t, map[string]string{"a": "a1", "b": "b2"}, collect(2), "Unexpected visible versions at ts2")
	assert.Equal(t, map[string]string{"a": "a3"}, collect(3), "The tombstone at ts3 must hide the older version of b")
	assert.Equal(t, map[string]string{"a": "a3", "c": "c5"}, collect(9), "Unexpected visible versions at ts9")

	// the timestamp accessor reports the version that decided visibility
	ti := newTimestampIterator(m.newIterator(), ucmp, EncodeU64Timestamp(2))
	ti.Seek([]byte("a"))
	assert.True(t, ti.Valid(), "Iterator invalid after seeking a visible key")
	assert.Equal(t, []byte("a"), ti.Key(), "Unexpected key after the seek")
	assert.Equal(t, EncodeU64Timestamp(1), ti.Timestamp(), "Unexpected timestamp of the visible version")
}

// TestTimestampIteratorEmptyUserKey covers visibility decisions on the empty
// user key, which is a valid logical key and always sorts first.
func TestTimestampIteratorEmptyUserKey(t *testing.T) {
	options := NewOptions()
	err := RegisterU64TimestampComparator(options)
	assert.Nil(t, err, "Unexpected error in registering the u64 timestamp comparator")

	ucmp := options.userComparator(DefaultComparator)
	m := newMemtable(newInternalKeyComparator(ucmp))

	seq := uint64(1)
	write := func(key string, ts uint64, kind internalKeyKind, value []byte) {
		vk := AppendTimestampToKey([]byte(key), EncodeU64Timestamp(ts))
		err := m.set(newInternalKey(vk, kind, seq), value)
		assert.Nil(t, err, "Unexpected error in writing a versioned entry")
		seq++
	}

	write("", 1, internalKeyKindSet, []byte("empty1"))
	write("", 2, internalKeyKindDelete, nil)
	write("x", 1, internalKeyKindSet, []byte("x1"))

	collect := func(readTs uint64) map[string]string {
		ti := newTimestampIterator(m.newIterator(), ucmp, EncodeU64Timestamp(readTs))
		out := map[string]string{}
		for ti.SeekToFirst(); ti.Valid(); ti.Next() {
			out[string(ti.Key())] = string(ti.Value())
		}
		return out
	}

	assert.Equal(t, map[string]string{"": "empty1", "x": "x1"}, collect(1), "Unexpected visible versions at ts1")

	// the tombstone decides the empty key at ts2 and hides its older version
	assert.Equal(t, map[string]string{"x": "x1"}, collect(2), "The tombstone on the empty key must hide its older version")
}
