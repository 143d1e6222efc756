package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"

	icommon "github.com/chronokv/chronokv/internal/common"
	"github.com/klauspost/compress/s2"
	log "github.com/sirupsen/logrus"
)

// Table file layout:
//
//    [data block]*      s2 compressed, entries: klen | key | vlen | value (uvarints)
//    [filter block]     bloom filter over the user keys, timestamp stripped
//    [meta block]       column family name, timestamp size, entry count
//    [index block]      per data block: last key, offset, compressed size
//    [footer]           fixed size offsets of the above blocks + magic
//
// Entries are internal keys in the order of the column family's internal key
// comparator. The file is immutable once finished.

const tableFooterSize = 7 * 8

const tableMagicNumber uint64 = 0xc4e0a1b6f52d9e73

type indexEntry struct {
	lastKey []byte
	offset  uint64
	size    uint64
}

// tableWriter writes a sorted run of internal key entries to a table file.
type tableWriter struct {
	f File
	w *bufio.Writer

	cfName string
	ucmp   userComparator

	blockSize int
	bloomRate float64

	blockBuf   bytes.Buffer
	index      []indexEntry
	lastKey    []byte
	offset     uint64
	entryCount uint64

	// stripped user keys for the bloom filter, deduplicated on consecutive runs
	bloomKeys [][]byte
}

// newTableWriter creates a writer for the given file.
func newTableWriter(f File, cfName string, ucmp userComparator, blockSize int, bloomRate float64) *tableWriter {
	return &tableWriter{
		f:         f,
		w:         bufio.NewWriter(f),
		cfName:    cfName,
		ucmp:      ucmp,
		blockSize: blockSize,
		bloomRate: bloomRate,
	}
}

// add appends one entry. Entries must be added in the order of the internal
// key comparator.
func (tw *tableWriter) add(ikey internalKey, value []byte) error {
	var buf [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(buf[:], uint64(len(ikey)))
	tw.blockBuf.Write(buf[:n])
	tw.blockBuf.Write(ikey)
	n = binary.PutUvarint(buf[:], uint64(len(value)))
	tw.blockBuf.Write(buf[:n])
	tw.blockBuf.Write(value)

	tw.lastKey = append(tw.lastKey[:0], ikey...)
	tw.entryCount++

	stripped := ikey.userKey()
	if ts := tw.ucmp.timestampSize(); ts > 0 && len(stripped) >= ts {
		stripped = stripped[:len(stripped)-ts]
	}
	if len(tw.bloomKeys) == 0 || !bytes.Equal(tw.bloomKeys[len(tw.bloomKeys)-1], stripped) {
		tw.bloomKeys = append(tw.bloomKeys, append([]byte(nil), stripped...))
	}

	if tw.blockBuf.Len() >= tw.blockSize {
		return tw.flushBlock()
	}
	return nil
}

func (tw *tableWriter) flushBlock() error {
	if tw.blockBuf.Len() == 0 {
		return nil
	}

	compressed := s2.Encode(nil, tw.blockBuf.Bytes())
	if _, err := tw.w.Write(compressed); err != nil {
		return err
	}

	tw.index = append(tw.index, indexEntry{
		lastKey: append([]byte(nil), tw.lastKey...),
		offset:  tw.offset,
		size:    uint64(len(compressed)),
	})

	tw.offset += uint64(len(compressed))
	tw.blockBuf.Reset()
	return nil
}

// finish writes the filter, meta, index and footer blocks and syncs the file.
func (tw *tableWriter) finish() error {
	if err := tw.flushBlock(); err != nil {
		return err
	}

	// filter block
	filter := newBloomFilter(len(tw.bloomKeys), tw.bloomRate)
	for _, k := range tw.bloomKeys {
		filter.add(k)
	}
	filterBytes := filter.encode()
	filterOffset := tw.offset
	if _, err := tw.w.Write(filterBytes); err != nil {
		return err
	}
	tw.offset += uint64(len(filterBytes))

	// meta block
	metaBuf := new(bytes.Buffer)
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(tw.cfName)))
	metaBuf.Write(scratch[:4])
	metaBuf.WriteString(tw.cfName)
	binary.LittleEndian.PutUint32(scratch[:4], uint32(tw.ucmp.timestampSize()))
	metaBuf.Write(scratch[:4])
	binary.LittleEndian.PutUint64(scratch[:], tw.entryCount)
	metaBuf.Write(scratch[:])
	metaOffset := tw.offset
	if _, err := tw.w.Write(metaBuf.Bytes()); err != nil {
		return err
	}
	tw.offset += uint64(metaBuf.Len())

	// index block
	indexBuf := new(bytes.Buffer)
	for _, entry := range tw.index {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(entry.lastKey)))
		indexBuf.Write(scratch[:4])
		indexBuf.Write(entry.lastKey)
		binary.LittleEndian.PutUint64(scratch[:], entry.offset)
		indexBuf.Write(scratch[:])
		binary.LittleEndian.PutUint64(scratch[:], entry.size)
		indexBuf.Write(scratch[:])
	}
	indexOffset := tw.offset
	if _, err := tw.w.Write(indexBuf.Bytes()); err != nil {
		return err
	}
	tw.offset += uint64(indexBuf.Len())

	// footer
	footer := make([]byte, tableFooterSize)
	binary.LittleEndian.PutUint64(footer[0:], filterOffset)
	binary.LittleEndian.PutUint64(footer[8:], uint64(len(filterBytes)))
	binary.LittleEndian.PutUint64(footer[16:], metaOffset)
	binary.LittleEndian.PutUint64(footer[24:], uint64(metaBuf.Len()))
	binary.LittleEndian.PutUint64(footer[32:], indexOffset)
	binary.LittleEndian.PutUint64(footer[40:], uint64(indexBuf.Len()))
	binary.LittleEndian.PutUint64(footer[48:], tableMagicNumber)
	if _, err := tw.w.Write(footer); err != nil {
		return err
	}

	if err := tw.w.Flush(); err != nil {
		return err
	}
	if err := tw.f.Sync(); err != nil {
		return err
	}
	return tw.f.Close()
}

// tableReader reads an immutable table file.
type tableReader struct {
	f       File
	fileNum uint64

	cfName     string
	tsSize     int
	entryCount uint64

	filter *bloomFilter
	index  []indexEntry
}

// openTableReader opens a table file and loads its filter, meta and index
// blocks into memory.
func openTableReader(f File, fileNum uint64) (*tableReader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < tableFooterSize {
		return nil, icommon.NewCorruptRecordError("storage: table file too small for footer")
	}

	footer := make([]byte, tableFooterSize)
	if _, err := f.ReadAt(footer, info.Size()-tableFooterSize); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint64(footer[48:]) != tableMagicNumber {
		return nil, icommon.NewCorruptRecordError("storage: bad magic number in table footer")
	}

	filterOffset := binary.LittleEndian.Uint64(footer[0:])
	filterLen := binary.LittleEndian.Uint64(footer[8:])
	metaOffset := binary.LittleEndian.Uint64(footer[16:])
	metaLen := binary.LittleEndian.Uint64(footer[24:])
	indexOffset := binary.LittleEndian.Uint64(footer[32:])
	indexLen := binary.LittleEndian.Uint64(footer[40:])

	tr := &tableReader{
		f:       f,
		fileNum: fileNum,
	}

	// filter block
	filterBytes := make([]byte, filterLen)
	if _, err := f.ReadAt(filterBytes, int64(filterOffset)); err != nil {
		return nil, err
	}
	if tr.filter, err = decodeBloomFilter(filterBytes); err != nil {
		return nil, err
	}

	// meta block
	metaBytes := make([]byte, metaLen)
	if _, err := f.ReadAt(metaBytes, int64(metaOffset)); err != nil {
		return nil, err
	}
	if len(metaBytes) < 4 {
		return nil, icommon.NewCorruptRecordError("storage: table meta block too short")
	}
	nameLen := binary.LittleEndian.Uint32(metaBytes[0:4])
	if uint64(len(metaBytes)) < 4+uint64(nameLen)+12 {
		return nil, icommon.NewCorruptRecordError("storage: table meta block is corrupt")
	}
	tr.cfName = string(metaBytes[4 : 4+nameLen])
	tr.tsSize = int(binary.LittleEndian.Uint32(metaBytes[4+nameLen : 8+nameLen]))
	tr.entryCount = binary.LittleEndian.Uint64(metaBytes[8+nameLen : 16+nameLen])

	// index block
	indexBytes := make([]byte, indexLen)
	if _, err := f.ReadAt(indexBytes, int64(indexOffset)); err != nil {
		return nil, err
	}
	for len(indexBytes) > 0 {
		if len(indexBytes) < 4 {
			return nil, icommon.NewCorruptRecordError("storage: table index block is corrupt")
		}
		keyLen := binary.LittleEndian.Uint32(indexBytes[0:4])
		if uint64(len(indexBytes)) < 4+uint64(keyLen)+16 {
			return nil, icommon.NewCorruptRecordError("storage: table index block is corrupt")
		}
		entry := indexEntry{
			lastKey: indexBytes[4 : 4+keyLen],
			offset:  binary.LittleEndian.Uint64(indexBytes[4+keyLen : 12+keyLen]),
			size:    binary.LittleEndian.Uint64(indexBytes[12+keyLen : 20+keyLen]),
		}
		tr.index = append(tr.index, entry)
		indexBytes = indexBytes[20+keyLen:]
	}

	return tr, nil
}

// mayContain reports whether the table may hold any version of the given user
// key (timestamp stripped).
func (tr *tableReader) mayContain(strippedKey []byte) bool {
	return tr.filter.mayContain(strippedKey)
}

func (tr *tableReader) close() error {
	return tr.f.Close()
}

// readBlock reads and decompresses the data block at index position i.
func (tr *tableReader) readBlock(i int) ([]byte, error) {
	entry := tr.index[i]
	compressed := make([]byte, entry.size)
	if _, err := tr.f.ReadAt(compressed, int64(entry.offset)); err != nil {
		return nil, err
	}

	block, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, icommon.NewCorruptRecordError("storage: failed to decompress table data block")
	}
	return block, nil
}

// newIterator returns an iterator over the internal key entries of the table.
func (tr *tableReader) newIterator(icmp *internalKeyComparator) *tableIterator {
	return &tableIterator{
		tr:       tr,
		icmp:     icmp,
		blockIdx: -1,
	}
}

type kvEntry struct {
	key   []byte
	value []byte
}

// tableIterator iterates the entries of a single table file.
//
// A block read failure invalidates the iterator; the error is logged and the
// iterator behaves as exhausted.
type tableIterator struct {
	tr   *tableReader
	icmp *internalKeyComparator

	blockIdx int
	entries  []kvEntry
	entryIdx int
	err      error
}

var _ Iterator = (*tableIterator)(nil)

func (ti *tableIterator) loadBlock(i int) {
	ti.blockIdx = i
	ti.entries = ti.entries[:0]
	ti.entryIdx = 0

	if i >= len(ti.tr.index) {
		return
	}

	block, err := ti.tr.readBlock(i)
	if err != nil {
		log.WithFields(log.Fields{"fileNum": ti.tr.fileNum, "block": i, "error": err.Error()}).Error("storage::sstable: loadBlock; error reading table data block")
		ti.err = err
		ti.blockIdx = len(ti.tr.index)
		return
	}

	for len(block) > 0 {
		klen, n := binary.Uvarint(block)
		if n <= 0 || uint64(len(block)) < uint64(n)+klen {
			ti.err = icommon.NewCorruptRecordError("storage: corrupt entry in table data block")
			ti.blockIdx = len(ti.tr.index)
			ti.entries = ti.entries[:0]
			return
		}
		key := block[n : uint64(n)+klen]
		block = block[uint64(n)+klen:]

		vlen, n := binary.Uvarint(block)
		if n <= 0 || uint64(len(block)) < uint64(n)+vlen {
			ti.err = icommon.NewCorruptRecordError("storage: corrupt entry in table data block")
			ti.blockIdx = len(ti.tr.index)
			ti.entries = ti.entries[:0]
			return
		}
		value := block[n : uint64(n)+vlen]
		block = block[uint64(n)+vlen:]

		ti.entries = append(ti.entries, kvEntry{key: key, value: value})
	}
}

// Valid checks if the current position of the iterator is valid.
func (ti *tableIterator) Valid() bool {
	return ti.blockIdx >= 0 && ti.blockIdx < len(ti.tr.index) && ti.entryIdx < len(ti.entries)
}

// SeekToFirst moves to the first entry of the table.
func (ti *tableIterator) SeekToFirst() {
	ti.loadBlock(0)
}

// Seek moves the iterator to the first entry whose key is >= target.
func (ti *tableIterator) Seek(target []byte) {
	// find the first block whose last key is >= target
	lo, hi := 0, len(ti.tr.index)
	for lo < hi {
		mid := (lo + hi) / 2
		if ti.icmp.Compare(ti.tr.index[mid].lastKey, target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	ti.loadBlock(lo)
	for ti.entryIdx < len(ti.entries) && ti.icmp.Compare(ti.entries[ti.entryIdx].key, target) < 0 {
		ti.entryIdx++
	}
}

// Next moves to the next entry of the table.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (ti *tableIterator) Next() {
	if !ti.Valid() {
		panic("Next on an invalid iterator position in table.")
	}

	ti.entryIdx++
	if ti.entryIdx >= len(ti.entries) {
		ti.loadBlock(ti.blockIdx + 1)
	}
}

// Key gets the key of the current iterator position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (ti *tableIterator) Key() []byte {
	if !ti.Valid() {
		panic("Key on an invalid iterator position in table.")
	}
	return ti.entries[ti.entryIdx].key
}

// Value gets the value of the current iterator position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (ti *tableIterator) Value() []byte {
	if !ti.Valid() {
		panic("Value on an invalid iterator position in table.")
	}
	return ti.entries[ti.entryIdx].value
}

// Error returns the block read or decode error that invalidated the iterator,
// nil if none occurred.
func (ti *tableIterator) Error() error {
	return ti.err
}
