package storage

import (
	"github.com/chronokv/chronokv/pkg/common"
)

const (
	defaultTableCacheSize uint32 = 64
	defaultMemtableSize   uint64 = 4 * 1024 * 1024
	defaultBlockSize      int    = 4 * 1024
	defaultBloomRate             = 0.01
)

// Options defines all of the configuration options available with the storage layer.
//
// A timestamp comparator registered via SetTimestampComparator is part of the
// options; every column family opened with these options orders its keys
// through the registered policy.
type Options struct {
	// Fs is the file system used to store data.
	// Most of the time it is the DefaultFileSystem which uses the OS file system.
	Fs FileSystem

	// CreateIfNotExist creates the data directory if it doesn't exist.
	CreateIfNotExist bool

	// MemtableSize is the size in bytes after which the memtable is flushed to a table file.
	// set to zero for the default.
	MemtableSize uint64

	// CacheSize is the number of table readers kept open in the table cache.
	// set to zero for the default.
	CacheSize uint32

	// BlockSize is the target uncompressed size in bytes of a table data block.
	// set to zero for the default.
	BlockSize int

	// BloomFalsePositiveRate is the target false positive rate of the table bloom filters.
	// set to zero for the default.
	BloomFalsePositiveRate float64

	// SyncWrites syncs the write ahead log on writes issued without explicit
	// WriteOptions.
	SyncWrites bool

	// cmp is the registered timestamp comparison policy, nil for plain bytewise families.
	cmp *timestampComparator
}

// NewOptions returns options with the zero values; defaults are applied when
// the storage is opened.
func NewOptions() *Options {
	return &Options{}
}

// NewOptionsFromConfig builds options from a loaded configuration.
func NewOptionsFromConfig(conf *common.Config) *Options {
	return &Options{
		CreateIfNotExist:       true,
		MemtableSize:           conf.MemtableSize,
		CacheSize:              conf.TableCacheSize,
		BlockSize:              conf.BlockSize,
		BloomFalsePositiveRate: conf.BloomFalsePositiveRate,
		SyncWrites:             conf.SyncWrites,
	}
}

// TimestampSize returns the timestamp suffix size declared by the registered
// comparator, 0 when no timestamp comparator is registered.
func (o *Options) TimestampSize() int {
	if o.cmp == nil {
		return 0
	}
	return o.cmp.tsSize
}

func (o *Options) applyDefaults() {
	if o.Fs == nil {
		o.Fs = DefaultFileSystem
	}
	if o.MemtableSize == 0 {
		o.MemtableSize = defaultMemtableSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = defaultTableCacheSize
	}
	if o.BlockSize == 0 {
		o.BlockSize = defaultBlockSize
	}
	if o.BloomFalsePositiveRate == 0 {
		o.BloomFalsePositiveRate = defaultBloomRate
	}
}

// userComparator returns the ordering the engine routes user key comparisons
// through: the registered timestamp policy, or fallback wrapped as a plain
// timestamp-unaware ordering.
func (o *Options) userComparator(fallback Comparator) userComparator {
	if o.cmp != nil {
		return o.cmp
	}
	if fallback == nil {
		fallback = DefaultComparator
	}
	return plainComparator{fallback}
}

// WriteOptions defines the per write configuration.
type WriteOptions struct {
	// Sync syncs the write ahead log before the write is acknowledged.
	Sync bool
}

// ReadOptions defines the per read configuration.
//
// The timestamp selects which version of each key the read observes: the
// newest version with a timestamp less than or equal to it.
type ReadOptions struct {
	// timestamp is owned by the ReadOptions. See SetTimestamp.
	timestamp []byte
}

// SetTimestamp sets the read timestamp.
//
// The bytes are copied into a buffer owned by the ReadOptions, so the caller
// may reuse ts afterwards. The copy stays valid for every read issued with
// these options; calling SetTimestamp again replaces it (last write wins) and
// must not race with an in-flight read using the same options.
func (ro *ReadOptions) SetTimestamp(ts []byte) {
	owned := make([]byte, len(ts))
	copy(owned, ts)
	ro.timestamp = owned
}

// Timestamp returns the owned read timestamp, nil if none was set.
func (ro *ReadOptions) Timestamp() []byte {
	return ro.timestamp
}
