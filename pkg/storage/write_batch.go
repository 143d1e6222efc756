package storage

import (
	"encoding/binary"

	icommon "github.com/chronokv/chronokv/internal/common"
)

// header has 8 bytes of sequence number and 4 bytes for the count of records.
const batchHeaderSize = 12

// WriteBatch contains a number of set/delete records applied atomically.
//
// Each record carries the id of the target column family, the key, the
// timestamp and (for sets) the value. All spans handed to the batch are
// copied into its internal buffer synchronously; the batch retains no
// references to the caller's slices.
//
// Record format, after the header:
//    kind (1 byte) | cf id (uvarint) | key | timestamp | value (sets only)
// where key, timestamp and value are length prefixed with a uvarint.
// Refer to https://github.com/google/leveldb/blob/master/db/write_batch.cc for
// the lineage of the format.
type WriteBatch struct {
	data []byte
}

// NewWriteBatch returns an empty write batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// init initializes the write batch with size headerSize and capacity cap rounded
// to the nearest power of 2.
func (wb *WriteBatch) init(cap int) {
	icap := 256
	for icap < cap {
		icap *= 2
	}
	wb.data = make([]byte, batchHeaderSize, icap)
}

// Set adds a value for the given key in the write batch.
// Valid only for column families without a timestamp comparator.
func (wb *WriteBatch) Set(cf *ColumnFamily, key, value []byte) {
	wb.SetWithTimestamp(cf, key, nil, value)
}

// SetWithTimestamp adds a value for the given key at the given timestamp in
// the write batch. The timestamp length must match the size declared by the
// column family's comparator; a mismatch is reported when the batch is
// written.
func (wb *WriteBatch) SetWithTimestamp(cf *ColumnFamily, key, ts, value []byte) {
	if len(wb.data) == 0 {
		wb.init(len(key) + len(ts) + len(value) + 3*binary.MaxVarintLen64 + batchHeaderSize)
	}

	if wb.incrementCount() {
		wb.data = append(wb.data, byte(internalKeyKindSet))
		wb.appendCfID(cf)
		wb.appendStr(key)
		wb.appendStr(ts)
		wb.appendStr(value)
	}
}

// Delete adds a delete record for the given key in the write batch.
// Valid only for column families without a timestamp comparator.
func (wb *WriteBatch) Delete(cf *ColumnFamily, key []byte) {
	wb.DeleteWithTimestamp(cf, key, nil)
}

// DeleteWithTimestamp adds a delete record for the given key at the given
// timestamp in the write batch.
func (wb *WriteBatch) DeleteWithTimestamp(cf *ColumnFamily, key, ts []byte) {
	if len(wb.data) == 0 {
		wb.init(len(key) + len(ts) + 2*binary.MaxVarintLen64 + batchHeaderSize)
	}

	if wb.incrementCount() {
		wb.data = append(wb.data, byte(internalKeyKindDelete))
		wb.appendCfID(cf)
		wb.appendStr(key)
		wb.appendStr(ts)
	}
}

// Count returns the number of records in the batch.
func (wb *WriteBatch) Count() uint32 {
	if len(wb.data) == 0 {
		return 0
	}
	return wb.getCount()
}

// Empty returns true if the batch holds no records.
func (wb *WriteBatch) Empty() bool {
	return wb.Count() == 0
}

func (wb *WriteBatch) getSeqNumData() []byte {
	return wb.data[:8]
}

func (wb *WriteBatch) getCountData() []byte {
	return wb.data[8:12]
}

func (wb *WriteBatch) incrementCount() bool {
	d := wb.getCountData()
	for i := range d {
		d[i]++
		if d[i] != 0x00 {
			return true
		}
	}

	// invalid
	d[0] = 0xff
	d[1] = 0xff
	d[2] = 0xff
	d[3] = 0xff

	return false
}

func (wb *WriteBatch) appendCfID(cf *ColumnFamily) {
	var id uint32
	if cf != nil {
		id = cf.ordinal
	}
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(id))
	wb.data = append(wb.data, buf[:n]...)
}

func (wb *WriteBatch) appendStr(s []byte) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	wb.data = append(wb.data, buf[:n]...)
	wb.data = append(wb.data, s...)
}

func (wb *WriteBatch) setSeqNum(seqNum uint64) {
	binary.LittleEndian.PutUint64(wb.getSeqNumData(), seqNum)
}

func (wb *WriteBatch) getSeqNum() uint64 {
	return binary.LittleEndian.Uint64(wb.getSeqNumData())
}

func (wb *WriteBatch) getCount() uint32 {
	return binary.LittleEndian.Uint32(wb.getCountData())
}

func (wb *WriteBatch) getIterator() batchIterator {
	return wb.data[batchHeaderSize:]
}

type batchIterator []byte

// batchRecord is one decoded record of a write batch.
type batchRecord struct {
	kind  internalKeyKind
	cfID  uint32
	ukey  []byte
	ts    []byte
	value []byte
}

// next decodes the next record of the batch.
func (bi *batchIterator) next() (rec batchRecord, err error) {
	tmp := *bi
	if len(tmp) == 0 {
		return rec, icommon.NewCorruptRecordError("storage: next called on an exhausted batch iterator")
	}

	rec.kind, *bi = internalKeyKind(tmp[0]), tmp[1:]
	if rec.kind > internalKeyKindSet {
		return rec, icommon.NewCorruptRecordError("storage: invalid record kind in write batch")
	}

	cfID, ok := bi.nextUvarint()
	if !ok {
		return rec, icommon.NewCorruptRecordError("storage: corrupt column family id in write batch")
	}
	rec.cfID = uint32(cfID)

	if rec.ukey, ok = bi.nextString(); !ok {
		return rec, icommon.NewCorruptRecordError("storage: corrupt key in write batch")
	}

	if rec.ts, ok = bi.nextString(); !ok {
		return rec, icommon.NewCorruptRecordError("storage: corrupt timestamp in write batch")
	}

	if rec.kind != internalKeyKindDelete {
		if rec.value, ok = bi.nextString(); !ok {
			return rec, icommon.NewCorruptRecordError("storage: corrupt value in write batch")
		}
	}

	return rec, nil
}

func (bi *batchIterator) empty() bool {
	return len(*bi) == 0
}

func (bi *batchIterator) nextUvarint() (uint64, bool) {
	tmp := *bi

	u, numBytes := binary.Uvarint(tmp)
	if numBytes <= 0 {
		return 0, false
	}

	*bi = tmp[numBytes:]
	return u, true
}

// nextString gets the next length prefixed string from the batch.
func (bi *batchIterator) nextString() (s []byte, ok bool) {
	u, ok := bi.nextUvarint()
	if !ok {
		return nil, false
	}

	tmp := *bi
	if u > uint64(len(tmp)) {
		return nil, false
	}

	s, *bi = tmp[:u], tmp[u:]
	return s, true
}
