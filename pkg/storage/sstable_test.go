package storage

import (
	"fmt"
	"path"
	"testing"

	"github.com/chronokv/chronokv/test"
	"github.com/stretchr/testify/assert"
)

func writeTestTable(t *testing.T, name string, ucmp userComparator, entries int) {
	f, err := DefaultFileSystem.Create(name)
	assert.Nil(t, err, "Unexpected error in creating the table file")

	// a small block size so the table spans multiple blocks
	tw := newTableWriter(f, DefaultColumnFamilyName, ucmp, 256, 0.01)

	for i := 0; i < entries; i++ {
		ikey := newInternalKey([]byte(fmt.Sprintf("table-key-%04d", i)), internalKeyKindSet, uint64(i+1))
		err = tw.add(ikey, []byte(fmt.Sprintf("table-value-%04d", i)))
		assert.Nil(t, err, "Unexpected error in adding an entry to the table")
	}

	assert.Nil(t, tw.finish(), "Unexpected error in finishing the table")
}

func TestTableWriteAndIterate(t *testing.T) {
	test.CreateTestDirectory(testDirectory)
	defer test.CleanupTestDirectory(testDirectory)

	ucmp := plainComparator{DefaultComparator}
	icmp := newInternalKeyComparator(ucmp)
	name := path.Join(testDirectory, "000001.sst")
	entries := 200

	writeTestTable(t, name, ucmp, entries)

	f, err := DefaultFileSystem.Open(name)
	assert.Nil(t, err, "Unexpected error in opening the table file")

	tr, err := openTableReader(f, 1)
	assert.Nil(t, err, "Unexpected error in opening the table reader")
	defer tr.close()

	assert.Equal(t, DefaultColumnFamilyName, tr.cfName, "Unexpected column family name in the table meta block")
	assert.Equal(t, 0, tr.tsSize, "Unexpected timestamp size in the table meta block")
	assert.Equal(t, uint64(entries), tr.entryCount, "Unexpected entry count in the table meta block")
	assert.Greater(t, len(tr.index), 1, "Expected the table to span multiple data blocks")

	itr := tr.newIterator(icmp)
	i := 0
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		ik := internalKey(itr.Key())
		assert.Equal(t, []byte(fmt.Sprintf("table-key-%04d", i)), ik.userKey(), fmt.Sprintf("Unexpected key at table position %d", i))
		assert.Equal(t, []byte(fmt.Sprintf("table-value-%04d", i)), itr.Value(), fmt.Sprintf("Unexpected value at table position %d", i))
		i++
	}
	assert.Equal(t, entries, i, "Iterator didn't yield every entry of the table")
}

func TestTableSeek(t *testing.T) {
	test.CreateTestDirectory(testDirectory)
	defer test.CleanupTestDirectory(testDirectory)

	ucmp := plainComparator{DefaultComparator}
	icmp := newInternalKeyComparator(ucmp)
	name := path.Join(testDirectory, "000002.sst")

	writeTestTable(t, name, ucmp, 200)

	f, err := DefaultFileSystem.Open(name)
	assert.Nil(t, err, "Unexpected error in opening the table file")

	tr, err := openTableReader(f, 2)
	assert.Nil(t, err, "Unexpected error in opening the table reader")
	defer tr.close()

	itr := tr.newIterator(icmp)

	// seek with the max sequence number lands on the exact entry
	target := newInternalKey([]byte("table-key-0123"), internalKeyKindSet, maxSequenceNumber)
	itr.Seek(target)
	assert.True(t, itr.Valid(), "Iterator invalid after seeking an existing key")
	assert.Equal(t, []byte("table-key-0123"), internalKey(itr.Key()).userKey(), "Seek didn't land on the target key")
	assert.Equal(t, []byte("table-value-0123"), itr.Value(), "Unexpected value at the seek target")

	// seeking between keys lands on the next greater one
	target = newInternalKey([]byte("table-key-0123a"), internalKeyKindSet, maxSequenceNumber)
	itr.Seek(target)
	assert.True(t, itr.Valid(), "Iterator invalid after seeking between keys")
	assert.Equal(t, []byte("table-key-0124"), internalKey(itr.Key()).userKey(), "Seek didn't land on the next greater key")

	// seeking past the end invalidates the iterator
	target = newInternalKey([]byte("table-key-9999"), internalKeyKindSet, maxSequenceNumber)
	itr.Seek(target)
	assert.False(t, itr.Valid(), "Iterator valid after seeking past the last key")
}

func TestTableBloomFilter(t *testing.T) {
	test.CreateTestDirectory(testDirectory)
	defer test.CleanupTestDirectory(testDirectory)

	options := NewOptions()
	err := RegisterU64TimestampComparator(options)
	assert.Nil(t, err, "Unexpected error in registering the u64 timestamp comparator")
	ucmp := options.userComparator(DefaultComparator)

	name := path.Join(testDirectory, "000003.sst")
	f, err := DefaultFileSystem.Create(name)
	assert.Nil(t, err, "Unexpected error in creating the table file")

	tw := newTableWriter(f, "versions", ucmp, 4096, 0.01)

	// two versions of the same key; the filter must hold the stripped key once
	for i, ts := range []uint64{9, 3} {
		vk := AppendTimestampToKey([]byte("versioned-key"), EncodeU64Timestamp(ts))
		err = tw.add(newInternalKey(vk, internalKeyKindSet, uint64(10-i)), testValues[i])
		assert.Nil(t, err, "Unexpected error in adding a versioned entry")
	}
	assert.Nil(t, tw.finish(), "Unexpected error in finishing the table")

	rf, err := DefaultFileSystem.Open(name)
	assert.Nil(t, err, "Unexpected error in opening the table file")

	tr, err := openTableReader(rf, 3)
	assert.Nil(t, err, "Unexpected error in opening the table reader")
	defer tr.close()

	assert.Equal(t, "versions", tr.cfName, "Unexpected column family name in the table meta block")
	assert.Equal(t, U64TimestampSize, tr.tsSize, "Unexpected timestamp size in the table meta block")

	assert.True(t, tr.mayContain([]byte("versioned-key")), "The filter must report a stored key without its timestamp suffix")
	assert.False(t, tr.mayContain([]byte("never-stored-key")), "The filter unexpectedly reported an absent key")
}

func TestTableIteratorSurfacesReadErrors(t *testing.T) {
	test.CreateTestDirectory(testDirectory)
	defer test.CleanupTestDirectory(testDirectory)

	ucmp := plainComparator{DefaultComparator}
	icmp := newInternalKeyComparator(ucmp)
	name := path.Join(testDirectory, "000004.sst")

	writeTestTable(t, name, ucmp, 50)

	f, err := DefaultFileSystem.Open(name)
	assert.Nil(t, err, "Unexpected error in opening the table file")

	tr, err := openTableReader(f, 4)
	assert.Nil(t, err, "Unexpected error in opening the table reader")

	// close the underlying file so every data block read fails
	assert.Nil(t, tr.close(), "Unexpected error in closing the table reader")

	itr := tr.newIterator(icmp)
	itr.SeekToFirst()
	assert.False(t, itr.Valid(), "A failed block read must invalidate the iterator")
	assert.NotNil(t, itr.Error(), "A failed block read must be reported through Error")

	// the error propagates through the merged and visibility layers, so the
	// read path can tell a failed read apart from an absent key
	ti := newTimestampIterator(newMergingIterator(icmp, tr.newIterator(icmp)), ucmp, nil)
	ti.SeekToFirst()
	assert.False(t, ti.Valid(), "A failed block read must invalidate the visibility iterator")
	assert.NotNil(t, ti.Error(), "A failed block read must propagate through the visibility iterator")
}

func TestTableCacheEviction(t *testing.T) {
	test.CreateTestDirectory(testDirectory)
	defer test.CleanupTestDirectory(testDirectory)

	ucmp := plainComparator{DefaultComparator}

	for i := 1; i <= 3; i++ {
		writeTestTable(t, getDbFileName(testDirectory, tableFileType, uint64(i)), ucmp, 10)
	}

	tc := newTableCache(testDirectory, DefaultFileSystem, 2)
	defer tc.close()

	for i := 1; i <= 3; i++ {
		reader, err := tc.getReader(uint64(i))
		assert.Nil(t, err, "Unexpected error in getting a table reader")
		assert.Equal(t, uint64(i), reader.fileNum, "Unexpected file number on the cached reader")
	}

	// the cache holds two readers; the oldest one was evicted
	assert.Equal(t, 2, len(tc.cache), "Unexpected number of cached readers after eviction")
	_, cached := tc.cache[1]
	assert.False(t, cached, "The least recently used reader should have been evicted")

	// a hit on an evicted file reopens it
	reader, err := tc.getReader(1)
	assert.Nil(t, err, "Unexpected error in reopening an evicted table")
	assert.Equal(t, uint64(1), reader.fileNum, "Unexpected file number on the reopened reader")
}
