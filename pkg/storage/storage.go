package storage

import (
	"io"
	"sort"
	"sync"

	icommon "github.com/chronokv/chronokv/internal/common"
	"github.com/chronokv/chronokv/pkg/common"
	log "github.com/sirupsen/logrus"
)

// Storage is a persistent key-value store with multi-version reads.
//
// Keys in a column family opened with a timestamp comparator carry an
// application defined timestamp; writes tag every record with one and reads
// select the newest version visible at the read timestamp carried by the
// ReadOptions.
type Storage struct {
	dirname string
	dbName  string
	options *Options

	// ukComparator is the user key comparator of the default column family
	// when no timestamp comparator is registered on the options.
	ukComparator Comparator

	// mu serializes the write path, flushes and lifecycle changes.
	mu sync.Mutex

	cfs          map[string]*ColumnFamily
	cfsByOrdinal []*ColumnFamily

	tableCache *tableCache

	wal     *walWriter
	walNum  uint64
	oldWals []uint64

	// nextFileNum is the number assigned to the next table or log file.
	nextFileNum uint64

	// seqNum is the sequence number of the last applied record.
	seqNum uint64

	opened bool
	closed bool
}

// NewStorage creates a new persistent storage in the given directory.
//
// returns a Storage which must be opened via Open before use. Column families
// beyond the default one must be created before opening.
func NewStorage(dirname, dbName string, options *Options) (*Storage, error) {
	return NewStorageWithCustomComparator(dirname, dbName, DefaultComparator, options)
}

// NewStorageWithCustomComparator creates a new persistent storage in the given
// directory with a custom user key comparator for the default column family.
//
// When the options carry a registered timestamp comparator it takes precedence
// over ukComparator.
func NewStorageWithCustomComparator(dirname, dbName string, ukComparator Comparator, options *Options) (*Storage, error) {
	if options == nil {
		options = NewOptions()
	}
	if ukComparator == nil {
		ukComparator = DefaultComparator
	}

	s := &Storage{
		dirname:      dirname,
		dbName:       dbName,
		options:      options,
		ukComparator: ukComparator,
		cfs:          make(map[string]*ColumnFamily),
		nextFileNum:  1,
	}

	cf := newColumnFamily(DefaultColumnFamilyName, 0, options, ukComparator)
	s.cfs[cf.name] = cf
	s.cfsByOrdinal = append(s.cfsByOrdinal, cf)

	log.WithFields(log.Fields{"dirname": dirname, "dbName": dbName}).Info("storage::storage: NewStorage; created storage instance")
	return s, nil
}

// CreateColumnFamily registers a new column family with its own options.
//
// Must be called before Open, and families must be created in the same order
// on every open so that write ahead log records resolve to the same family.
func (s *Storage) CreateColumnFamily(name string, options *Options) (*ColumnFamily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil, common.NewColumnFamilyError("storage: column families must be created before the storage is opened")
	}
	if name == "" {
		return nil, common.NewColumnFamilyError("storage: column family name cannot be empty")
	}
	if _, ok := s.cfs[name]; ok {
		return nil, common.NewColumnFamilyError("storage: column family already exists: " + name)
	}
	if options == nil {
		options = NewOptions()
	}

	cf := newColumnFamily(name, uint32(len(s.cfsByOrdinal)), options, DefaultComparator)
	s.cfs[name] = cf
	s.cfsByOrdinal = append(s.cfsByOrdinal, cf)

	log.WithFields(log.Fields{"name": name, "id": cf.id.String(), "comparator": cf.ucmp.Name()}).Info("storage::storage: CreateColumnFamily; created column family")
	return cf, nil
}

// DefaultColumnFamily returns the default column family.
func (s *Storage) DefaultColumnFamily() *ColumnFamily {
	return s.cfsByOrdinal[0]
}

// GetColumnFamily returns the column family with the given name.
func (s *Storage) GetColumnFamily(name string) (*ColumnFamily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, ok := s.cfs[name]
	if !ok {
		return nil, common.NewColumnFamilyError("storage: unknown column family: " + name)
	}
	return cf, nil
}

// Open opens the storage: locks the directory, loads the existing table
// files and replays the write ahead log into the memtables.
func (s *Storage) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return common.NewUnknownError("storage: already opened")
	}
	if s.closed {
		return common.NewStorageClosedError("storage: cannot reopen a closed storage")
	}

	s.options.applyDefaults()
	for _, cf := range s.cfsByOrdinal {
		if cf.options != s.options {
			cf.options.applyDefaults()
			cf.options.Fs = s.options.Fs
		}
	}
	fs := s.options.Fs

	if s.options.CreateIfNotExist {
		if err := fs.MkdirAll(s.dirname, 0755); err != nil {
			return err
		}
	}
	if err := fs.Lock(getDbFileName(s.dirname, lockFileType, 0)); err != nil {
		return err
	}

	s.tableCache = newTableCache(s.dirname, fs, s.options.CacheSize)

	if err := s.loadTables(); err != nil {
		return err
	}
	if err := s.replayWals(); err != nil {
		return err
	}

	// start a fresh log for new writes
	if err := s.rotateWalLocked(); err != nil {
		return err
	}

	s.opened = true
	log.WithFields(log.Fields{"dirname": s.dirname, "dbName": s.dbName, "seqNum": s.seqNum}).Info("storage::storage: Open; opened storage")
	return nil
}

// loadTables discovers the table files in the data directory and assigns them
// to their column families.
func (s *Storage) loadTables() error {
	names, err := s.options.Fs.List(s.dirname)
	if err != nil {
		return err
	}

	var fileNums []uint64
	for _, name := range names {
		if num, ok := parseTableFileName(name); ok {
			fileNums = append(fileNums, num)
		}
	}
	// newest first
	sort.Slice(fileNums, func(i, j int) bool { return fileNums[i] > fileNums[j] })

	for _, num := range fileNums {
		reader, err := s.tableCache.getReader(num)
		if err != nil {
			return err
		}

		cf, ok := s.cfs[reader.cfName]
		if !ok {
			return common.NewColumnFamilyError("storage: table file references unknown column family: " + reader.cfName)
		}
		if reader.tsSize != cf.ucmp.timestampSize() {
			return common.NewComparatorRegistrationError("storage: table file was written with a different timestamp size than the registered comparator")
		}

		cf.tables = append(cf.tables, num)
		if num >= s.nextFileNum {
			s.nextFileNum = num + 1
		}
	}

	return nil
}

// replayWals applies the records of the existing write ahead logs to the
// memtables.
func (s *Storage) replayWals() error {
	names, err := s.options.Fs.List(s.dirname)
	if err != nil {
		return err
	}

	var walNums []uint64
	for _, name := range names {
		if num, ok := parseWalFileName(name); ok {
			walNums = append(walNums, num)
		}
	}
	sort.Slice(walNums, func(i, j int) bool { return walNums[i] < walNums[j] })

	for _, num := range walNums {
		if err := s.replayWal(num); err != nil {
			return err
		}
		s.oldWals = append(s.oldWals, num)
		if num >= s.nextFileNum {
			s.nextFileNum = num + 1
		}
	}

	return nil
}

func (s *Storage) replayWal(num uint64) error {
	f, err := s.options.Fs.Open(getDbFileName(s.dirname, walFileType, num))
	if err != nil {
		return err
	}
	defer f.Close()

	reader := newWalReader(f)
	records := 0
	for {
		payload, err := reader.next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if len(payload) < batchHeaderSize {
			return icommon.NewCorruptRecordError("storage: write ahead log record shorter than a batch header")
		}

		wb := &WriteBatch{data: payload}
		if err := s.applyBatchLocked(wb, wb.getSeqNum()); err != nil {
			return err
		}
		if last := wb.getSeqNum() + uint64(wb.getCount()) - 1; last > s.seqNum {
			s.seqNum = last
		}
		records++
	}

	log.WithFields(log.Fields{"fileNum": num, "records": records}).Info("storage::storage: replayWal; replayed write ahead log")
	return nil
}

// rotateWalLocked starts a new write ahead log file.
// REQUIRES: s.mu held.
func (s *Storage) rotateWalLocked() error {
	if s.wal != nil {
		if err := s.wal.close(); err != nil {
			return err
		}
		s.oldWals = append(s.oldWals, s.walNum)
	}

	num := s.nextFileNum
	s.nextFileNum++

	f, err := s.options.Fs.Create(getDbFileName(s.dirname, walFileType, num))
	if err != nil {
		return err
	}

	s.wal = newWalWriter(f)
	s.walNum = num
	return nil
}

// pruneOldWalsLocked removes the log files whose contents have been flushed
// to table files.
// REQUIRES: s.mu held, all memtables flushed.
func (s *Storage) pruneOldWalsLocked() {
	for _, num := range s.oldWals {
		if err := s.options.Fs.Remove(getDbFileName(s.dirname, walFileType, num)); err != nil {
			log.WithFields(log.Fields{"fileNum": num, "error": err.Error()}).Error("storage::storage: pruneOldWalsLocked; error removing old write ahead log")
		}
	}
	s.oldWals = nil
}

// Write applies the records of the batch atomically.
func (s *Storage) Write(wb *WriteBatch, wopts *WriteOptions) error {
	if wb == nil || wb.Empty() {
		return nil
	}
	if wopts == nil {
		wopts = &WriteOptions{Sync: s.options.SyncWrites}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if err := s.validateBatchLocked(wb); err != nil {
		return err
	}

	seq := s.seqNum + 1
	wb.setSeqNum(seq)

	if err := s.wal.append(wb.data, wopts.Sync); err != nil {
		return err
	}
	if err := s.applyBatchLocked(wb, seq); err != nil {
		return err
	}
	s.seqNum += uint64(wb.getCount())

	return s.maybeFlushLocked()
}

// validateBatchLocked checks every record of the batch before any of them is
// applied: the column family must exist and the timestamp length must match
// the size declared by its comparator.
func (s *Storage) validateBatchLocked(wb *WriteBatch) error {
	itr := wb.getIterator()
	for !itr.empty() {
		rec, err := itr.next()
		if err != nil {
			return err
		}
		if rec.cfID >= uint32(len(s.cfsByOrdinal)) {
			return common.NewColumnFamilyError("storage: write batch references unknown column family")
		}

		cf := s.cfsByOrdinal[rec.cfID]
		if len(rec.ts) != cf.ucmp.timestampSize() {
			return common.NewInvalidTimestampError("storage: timestamp length doesn't match the size declared by the comparator of column family " + cf.name)
		}
	}
	return nil
}

// applyBatchLocked applies the records of the batch to the memtables starting
// at the given sequence number.
// REQUIRES: s.mu held.
func (s *Storage) applyBatchLocked(wb *WriteBatch, seq uint64) error {
	itr := wb.getIterator()
	offset := uint64(0)

	for !itr.empty() {
		rec, err := itr.next()
		if err != nil {
			return err
		}
		if rec.cfID >= uint32(len(s.cfsByOrdinal)) {
			return common.NewColumnFamilyError("storage: write batch references unknown column family")
		}
		cf := s.cfsByOrdinal[rec.cfID]

		// the append copies the key and timestamp spans out of the batch buffer
		ikey := newInternalKey(AppendTimestampToKey(rec.ukey, rec.ts), rec.kind, seq+offset)
		value := append([]byte(nil), rec.value...)

		cf.mu.RLock()
		mem := cf.mem
		cf.mu.RUnlock()

		if err := mem.set(ikey, value); err != nil {
			return err
		}
		offset++
	}

	return nil
}

// maybeFlushLocked flushes every memtable that has outgrown its configured size.
// REQUIRES: s.mu held.
func (s *Storage) maybeFlushLocked() error {
	for _, cf := range s.cfsByOrdinal {
		if cf.mem.approximateSize() >= cf.options.MemtableSize {
			if err := s.flushColumnFamilyLocked(cf); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushColumnFamilyLocked writes the memtable of the column family to a new
// table file and installs a fresh memtable.
// REQUIRES: s.mu held.
func (s *Storage) flushColumnFamilyLocked(cf *ColumnFamily) error {
	if cf.mem.empty() {
		return nil
	}

	fileNum := s.nextFileNum
	s.nextFileNum++

	f, err := s.options.Fs.Create(getDbFileName(s.dirname, tableFileType, fileNum))
	if err != nil {
		return err
	}

	tw := newTableWriter(f, cf.name, cf.ucmp, cf.options.BlockSize, cf.options.BloomFalsePositiveRate)

	itr := cf.mem.newIterator()
	for itr.SeekToFirst(); itr.Valid(); itr.Next() {
		if err := tw.add(internalKey(itr.Key()), itr.Value()); err != nil {
			return err
		}
	}
	if err := tw.finish(); err != nil {
		return err
	}

	cf.mu.Lock()
	cf.tables = append([]uint64{fileNum}, cf.tables...)
	cf.mem = newMemtable(cf.icmp)
	cf.mu.Unlock()

	log.WithFields(log.Fields{"cf": cf.name, "fileNum": fileNum}).Info("storage::storage: flushColumnFamilyLocked; flushed memtable to table file")
	return nil
}

// Flush writes every memtable to a table file and prunes the write ahead logs
// made redundant by it.
func (s *Storage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}

	for _, cf := range s.cfsByOrdinal {
		if err := s.flushColumnFamilyLocked(cf); err != nil {
			return err
		}
	}

	if err := s.rotateWalLocked(); err != nil {
		return err
	}
	s.pruneOldWalsLocked()
	return nil
}

// Set sets the value for the given key in the default column family.
// Valid only when no timestamp comparator is registered.
func (s *Storage) Set(key, value []byte, wopts *WriteOptions) error {
	wb := NewWriteBatch()
	wb.Set(nil, key, value)
	return s.Write(wb, wopts)
}

// SetWithTimestamp sets the value for the given key at the given timestamp.
// A nil cf targets the default column family.
func (s *Storage) SetWithTimestamp(cf *ColumnFamily, key, ts, value []byte, wopts *WriteOptions) error {
	wb := NewWriteBatch()
	wb.SetWithTimestamp(cf, key, ts, value)
	return s.Write(wb, wopts)
}

// Delete deletes the given key in the default column family.
// Valid only when no timestamp comparator is registered.
func (s *Storage) Delete(key []byte, wopts *WriteOptions) error {
	wb := NewWriteBatch()
	wb.Delete(nil, key)
	return s.Write(wb, wopts)
}

// DeleteWithTimestamp writes a deletion tombstone for the given key at the
// given timestamp. Reads at or after the timestamp observe the key absent;
// reads before it still observe the pre-delete value.
func (s *Storage) DeleteWithTimestamp(cf *ColumnFamily, key, ts []byte, wopts *WriteOptions) error {
	wb := NewWriteBatch()
	wb.DeleteWithTimestamp(cf, key, ts)
	return s.Write(wb, wopts)
}

// Get returns the value of the key visible at the read timestamp carried by
// ropts. A nil cf targets the default column family.
//
// returns a NotFoundError if no version is visible.
func (s *Storage) Get(cf *ColumnFamily, ropts *ReadOptions, key []byte) ([]byte, error) {
	cf, readTs, err := s.readContext(cf, ropts)
	if err != nil {
		return nil, err
	}

	itr, err := s.newVisibilityIterator(cf, readTs, key)
	if err != nil {
		return nil, err
	}

	itr.Seek(key)
	if err := itr.Error(); err != nil {
		return nil, err
	}
	if !itr.Valid() || cf.ucmp.compareWithoutTimestamp(itr.Key(), false, key, false) != 0 {
		return nil, common.NewNotFoundError("storage: key not found")
	}

	return append([]byte(nil), itr.Value()...), nil
}

// Scan returns an iterator over the versions visible at the read timestamp
// carried by ropts. The iterator must be positioned with SeekToFirst or Seek
// before use. A nil cf targets the default column family.
func (s *Storage) Scan(cf *ColumnFamily, ropts *ReadOptions) (*TimestampIterator, error) {
	cf, readTs, err := s.readContext(cf, ropts)
	if err != nil {
		return nil, err
	}
	return s.newVisibilityIterator(cf, readTs, nil)
}

// readContext resolves the column family and read timestamp of a read.
func (s *Storage) readContext(cf *ColumnFamily, ropts *ReadOptions) (*ColumnFamily, []byte, error) {
	s.mu.Lock()
	err := s.usableLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	if cf == nil {
		cf = s.DefaultColumnFamily()
	}

	var readTs []byte
	if ropts != nil {
		readTs = ropts.Timestamp()
	}

	if tsSize := cf.ucmp.timestampSize(); tsSize > 0 {
		if len(readTs) != tsSize {
			return nil, nil, common.NewInvalidTimestampError("storage: reads on column family " + cf.name + " require a timestamp of the size declared by its comparator")
		}
	} else if readTs != nil {
		return nil, nil, common.NewInvalidTimestampError("storage: column family " + cf.name + " has no timestamp comparator registered")
	}

	return cf, readTs, nil
}

// newVisibilityIterator builds the timestamp visibility iterator over the
// memtable and table files of the column family.
//
// A non-nil pointKey restricts the iterator to a point lookup, letting table
// files be skipped through their bloom filters.
func (s *Storage) newVisibilityIterator(cf *ColumnFamily, readTs []byte, pointKey []byte) (*TimestampIterator, error) {
	mem, tables := cf.snapshot()

	iters := []Iterator{mem.newIterator()}
	for _, fileNum := range tables {
		reader, err := s.tableCache.getReader(fileNum)
		if err != nil {
			return nil, err
		}
		if pointKey != nil && !reader.mayContain(pointKey) {
			continue
		}
		iters = append(iters, reader.newIterator(cf.icmp))
	}

	merged := newMergingIterator(cf.icmp, iters...)
	return newTimestampIterator(merged, cf.ucmp, readTs), nil
}

func (s *Storage) usableLocked() error {
	if s.closed {
		return common.NewStorageClosedError("storage: the storage is closed")
	}
	if !s.opened {
		return common.NewUnknownError("storage: the storage is not opened")
	}
	return nil
}

// Close flushes the memtables, releases the registered comparator policies
// and closes every file. The storage cannot be used afterwards.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var firstErr error
	if s.opened {
		for _, cf := range s.cfsByOrdinal {
			if err := s.flushColumnFamilyLocked(cf); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		if s.wal != nil {
			if err := s.wal.close(); err != nil && firstErr == nil {
				firstErr = err
			}
			s.oldWals = append(s.oldWals, s.walNum)
			s.wal = nil
		}
		if firstErr == nil {
			s.pruneOldWalsLocked()
		}

		if err := s.tableCache.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// the storage owns the registered policies; release them exactly once.
	for _, cf := range s.cfsByOrdinal {
		if cf.options.cmp != nil {
			cf.options.cmp.release()
		}
	}

	s.closed = true
	log.WithFields(log.Fields{"dirname": s.dirname, "dbName": s.dbName}).Info("storage::storage: Close; closed storage")
	return firstErr
}
