package storage

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// table is a node of the table cache.
type table struct {
	fileNum uint64
	reader  *tableReader

	// the next and prev pointers of the cache linked list.
	next, prev *table
}

// tableCache keeps a bounded number of table readers open.
//
// A reader not present in the cache is opened from the file system on demand;
// the least recently used reader is closed when the cache is full.
type tableCache struct {
	dirname string
	fs      FileSystem

	// the allocated capacity for the cache.
	cacheSize uint32

	mu sync.Mutex

	// map from file number to the table node.
	// len(cache) also denotes the length of the cache linked list.
	cache map[uint64]*table

	// the head of the circular linked list containing the cached tables,
	// most recently used first.
	dummy table
}

// newTableCache creates a new table cache instance.
func newTableCache(dirname string, fs FileSystem, cacheSize uint32) *tableCache {
	tc := &tableCache{
		dirname:   dirname,
		fs:        fs,
		cacheSize: cacheSize,
		cache:     make(map[uint64]*table),
	}
	tc.dummy.next = &tc.dummy
	tc.dummy.prev = &tc.dummy
	return tc
}

// getReader returns the reader for the given table file, opening it if it is
// not cached.
func (tc *tableCache) getReader(fileNum uint64) (*tableReader, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if node, ok := tc.cache[fileNum]; ok {
		tc.unlink(node)
		tc.pushFront(node)
		return node.reader, nil
	}

	f, err := tc.fs.Open(getDbFileName(tc.dirname, tableFileType, fileNum))
	if err != nil {
		return nil, err
	}

	reader, err := openTableReader(f, fileNum)
	if err != nil {
		f.Close()
		return nil, err
	}

	node := &table{fileNum: fileNum, reader: reader}
	tc.cache[fileNum] = node
	tc.pushFront(node)

	for uint32(len(tc.cache)) > tc.cacheSize {
		oldest := tc.dummy.prev
		tc.unlink(oldest)
		delete(tc.cache, oldest.fileNum)
		if err := oldest.reader.close(); err != nil {
			log.WithFields(log.Fields{"fileNum": oldest.fileNum, "error": err.Error()}).Error("storage::table_cache: getReader; error closing evicted table reader")
		}
	}

	return reader, nil
}

// close closes every cached reader.
func (tc *tableCache) close() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	var firstErr error
	for _, node := range tc.cache {
		if err := node.reader.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	tc.cache = make(map[uint64]*table)
	tc.dummy.next = &tc.dummy
	tc.dummy.prev = &tc.dummy
	return firstErr
}

func (tc *tableCache) unlink(node *table) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

func (tc *tableCache) pushFront(node *table) {
	node.next = tc.dummy.next
	node.prev = &tc.dummy
	node.next.prev = node
	tc.dummy.next = node
}
