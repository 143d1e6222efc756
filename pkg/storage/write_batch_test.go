package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteBatchRecords(t *testing.T) {
	options := NewOptions()
	err := RegisterU64TimestampComparator(options)
	assert.Nil(t, err, "Unexpected error in registering the u64 timestamp comparator")

	cf := newColumnFamily("versions", 3, options, DefaultComparator)

	ts1 := EncodeU64Timestamp(1)
	ts2 := EncodeU64Timestamp(2)

	wb := NewWriteBatch()
	assert.True(t, wb.Empty(), "A fresh write batch should be empty")

	wb.SetWithTimestamp(cf, testKeys[0], ts1, testValues[0])
	wb.SetWithTimestamp(cf, testKeys[1], ts2, testValues[1])
	wb.DeleteWithTimestamp(cf, testKeys[0], ts2)

	assert.Equal(t, uint32(3), wb.Count(), "Unexpected record count in the write batch")

	wb.setSeqNum(99)
	assert.Equal(t, uint64(99), wb.getSeqNum(), "Sequence number round trip failed")

	itr := wb.getIterator()

	rec, err := itr.next()
	assert.Nil(t, err, "Unexpected error decoding the first record")
	assert.Equal(t, internalKeyKindSet, rec.kind, "Unexpected kind of the first record")
	assert.Equal(t, uint32(3), rec.cfID, "Unexpected column family id of the first record")
	assert.Equal(t, testKeys[0], rec.ukey, "Unexpected key of the first record")
	assert.Equal(t, ts1, rec.ts, "Unexpected timestamp of the first record")
	assert.Equal(t, testValues[0], rec.value, "Unexpected value of the first record")

	rec, err = itr.next()
	assert.Nil(t, err, "Unexpected error decoding the second record")
	assert.Equal(t, testKeys[1], rec.ukey, "Unexpected key of the second record")
	assert.Equal(t, testValues[1], rec.value, "Unexpected value of the second record")

	rec, err = itr.next()
	assert.Nil(t, err, "Unexpected error decoding the third record")
	assert.Equal(t, internalKeyKindDelete, rec.kind, "Unexpected kind of the delete record")
	assert.Equal(t, testKeys[0], rec.ukey, "Unexpected key of the delete record")
	assert.Equal(t, ts2, rec.ts, "Unexpected timestamp of the delete record")
	assert.Nil(t, rec.value, "Delete records must not carry a value")

	assert.True(t, itr.empty(), "Iterator should be exhausted after the third record")
}

func TestWriteBatchDefaultColumnFamily(t *testing.T) {
	wb := NewWriteBatch()
	wb.Set(nil, testKeys[0], testValues[0])
	wb.Delete(nil, testKeys[1])

	itr := wb.getIterator()

	rec, err := itr.next()
	assert.Nil(t, err, "Unexpected error decoding the set record")
	assert.Equal(t, uint32(0), rec.cfID, "A nil column family must target the default family")
	assert.Empty(t, rec.ts, "Records of a plain family must carry an empty timestamp")

	rec, err = itr.next()
	assert.Nil(t, err, "Unexpected error decoding the delete record")
	assert.Equal(t, internalKeyKindDelete, rec.kind, "Unexpected kind of the delete record")
}

func TestWriteBatchCopiesSpans(t *testing.T) {
	key := []byte("mutable-key")
	ts := EncodeU64Timestamp(1)
	value := []byte("mutable-value")

	wb := NewWriteBatch()
	wb.SetWithTimestamp(nil, key, ts, value)

	// mutate the caller's slices after handing them to the batch
	key[0] = 'X'
	ts[0] = 0xff
	value[0] = 'X'

	itr := wb.getIterator()
	rec, err := itr.next()
	assert.Nil(t, err, "Unexpected error decoding the record")
	assert.Equal(t, []byte("mutable-key"), rec.ukey, "The batch must own a copy of the key span")
	assert.Equal(t, EncodeU64Timestamp(1), rec.ts, "The batch must own a copy of the timestamp span")
	assert.Equal(t, []byte("mutable-value"), rec.value, "The batch must own a copy of the value span")
}

func TestWriteBatchCorruptData(t *testing.T) {
	// a record with a kind byte outside the valid range
	wb := &WriteBatch{data: make([]byte, batchHeaderSize)}
	wb.data = append(wb.data, 0x7f)

	itr := wb.getIterator()
	_, err := itr.next()
	assert.NotNil(t, err, "Expected an error decoding a record with an invalid kind")
}
