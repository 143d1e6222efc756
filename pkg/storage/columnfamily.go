package storage

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultColumnFamilyName is the name of the column family every storage has.
const DefaultColumnFamilyName = "default"

// ColumnFamily is an independently configured logical keyspace within one
// storage instance. Each family carries its own options and therefore its own
// comparison policy, memtable and table files.
type ColumnFamily struct {
	// id is the unique identity of this family instance, used in logs and
	// for handle equality.
	id uuid.UUID

	// name identifies the family across restarts; table files record it.
	name string

	// ordinal is the registration index of the family, used to reference it
	// from write batch records. Families must be created in the same order on
	// every open for the write ahead log to replay correctly.
	ordinal uint32

	options *Options
	ucmp    userComparator
	icmp    *internalKeyComparator

	// mu guards mem and tables.
	mu sync.RWMutex

	mem *memtable

	// tables holds the file numbers of the family's table files, newest first.
	tables []uint64
}

// newColumnFamily creates a column family with the given options.
// fallback is the user key comparator used when the options carry no
// timestamp comparator.
func newColumnFamily(name string, ordinal uint32, options *Options, fallback Comparator) *ColumnFamily {
	ucmp := options.userComparator(fallback)
	icmp := newInternalKeyComparator(ucmp)

	return &ColumnFamily{
		id:      uuid.New(),
		name:    name,
		ordinal: ordinal,
		options: options,
		ucmp:    ucmp,
		icmp:    icmp,
		mem:     newMemtable(icmp),
	}
}

// Name returns the name of the column family.
func (cf *ColumnFamily) Name() string {
	return cf.name
}

// ID returns the unique identity of this column family handle.
func (cf *ColumnFamily) ID() uuid.UUID {
	return cf.id
}

// TimestampSize returns the timestamp suffix size declared by the family's
// comparator, 0 for plain bytewise families.
func (cf *ColumnFamily) TimestampSize() int {
	return cf.ucmp.timestampSize()
}

// ComparatorName returns the name of the comparator ordering the family.
func (cf *ColumnFamily) ComparatorName() string {
	return cf.ucmp.Name()
}

// snapshot returns the current memtable and table list under the read lock.
func (cf *ColumnFamily) snapshot() (*memtable, []uint64) {
	cf.mu.RLock()
	defer cf.mu.RUnlock()

	tables := make([]uint64, len(cf.tables))
	copy(tables, cf.tables)
	return cf.mem, tables
}
