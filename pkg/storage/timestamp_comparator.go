package storage

import (
	"sync"
	"sync/atomic"

	"github.com/chronokv/chronokv/pkg/common"
	log "github.com/sirupsen/logrus"
)

// CompareFunc compares two full keys, each carrying a timestamp suffix.
// It returns a negative number, 0 or a positive number if a is less than,
// equal to or greater than b respectively.
type CompareFunc func(a, b []byte) int

// CompareTimestampFunc compares two raw timestamp byte sequences.
type CompareTimestampFunc func(aTs, bTs []byte) int

// CompareWithoutTimestampFunc compares two keys ignoring their timestamp
// suffixes. The has flags tell whether each key carries a suffix that must be
// stripped before comparing.
type CompareWithoutTimestampFunc func(a []byte, aHasTs bool, b []byte, bHasTs bool) int

// fallbackOrdering is returned by the comparison entry points when an
// application closure panics. The engine must never let such a panic unwind
// through its sorted structures mid mutation.
const fallbackOrdering = 0

// timestampComparator is the comparison policy registered by the application.
//
// It carries an identifying name, the declared timestamp suffix size and the
// three comparison closures. The three closures must be derivable from one
// consistent total order: Compare(a, b) must agree with
// compareWithoutTimestamp on the stripped keys, refined on equality by
// compareTimestamp on the suffixes with the larger (newer) timestamp sorting
// first.
//
// Once registered into an Options the policy is owned by the storage opened
// with it. The engine invokes the entry points from multiple goroutines
// (reads, writes, flushes) without synchronization, so the closures must be
// safe for concurrent use and must not mutate shared state.
type timestampComparator struct {
	name   string
	tsSize int

	compareFn          CompareFunc
	compareTsFn        CompareTimestampFunc
	compareWithoutTsFn CompareWithoutTimestampFunc

	released    uint32
	releaseOnce sync.Once
}

var _ userComparator = (*timestampComparator)(nil)

// Name returns the identifying name of the policy. The returned string is
// stable for the policy's entire lifetime.
func (c *timestampComparator) Name() string {
	return c.name
}

// Compare compares two full keys via the registered full-compare closure.
// Invoked only by the engine internals.
func (c *timestampComparator) Compare(a, b []byte) (res int) {
	defer c.guard("Compare", &res)
	return c.compareFn(a, b)
}

// compareTimestamp compares two raw timestamps via the registered closure.
// Invoked only by the engine internals.
func (c *timestampComparator) compareTimestamp(aTs, bTs []byte) (res int) {
	defer c.guard("compareTimestamp", &res)
	return c.compareTsFn(aTs, bTs)
}

// compareWithoutTimestamp compares two keys ignoring timestamp suffixes via
// the registered closure. Invoked only by the engine internals.
func (c *timestampComparator) compareWithoutTimestamp(a []byte, aHasTs bool, b []byte, bHasTs bool) (res int) {
	defer c.guard("compareWithoutTimestamp", &res)
	return c.compareWithoutTsFn(a, aHasTs, b, bHasTs)
}

func (c *timestampComparator) timestampSize() int {
	return c.tsSize
}

// guard converts a panic in an application closure into the fallback ordering.
// Must be invoked via defer with the named result of the entry point.
func (c *timestampComparator) guard(entry string, res *int) {
	if r := recover(); r != nil {
		log.WithFields(log.Fields{
			"comparator": c.name,
			"entry":      entry,
			"panic":      r,
		}).Error("storage::timestamp_comparator: guard; panic in comparison closure, using fallback ordering")
		*res = fallbackOrdering
	}
}

// release drops the closures. It is invoked exactly once by the storage that
// owns the policy, at close. Safe to call multiple times; only the first call
// has any effect.
func (c *timestampComparator) release() {
	c.releaseOnce.Do(func() {
		atomic.StoreUint32(&c.released, 1)
		c.compareFn = nil
		c.compareTsFn = nil
		c.compareWithoutTsFn = nil

		log.WithFields(log.Fields{"comparator": c.name}).Debug("storage::timestamp_comparator: release; released comparison closures")
	})
}

func (c *timestampComparator) isReleased() bool {
	return atomic.LoadUint32(&c.released) == 1
}

// SetTimestampComparator registers a timestamp aware comparison policy on the
// options. tsSize is the fixed byte length of the timestamp suffix every key
// in the column family carries.
//
// The registration is atomic with respect to the caller: either the options
// end up referencing the new policy or an error is returned and the options
// are unchanged. Registering a second policy on the same options is rejected;
// build a fresh Options to use a different ordering.
func (o *Options) SetTimestampComparator(name string, tsSize int, compareFn CompareFunc,
	compareTsFn CompareTimestampFunc, compareWithoutTsFn CompareWithoutTimestampFunc) error {
	if name == "" {
		return common.NewComparatorRegistrationError("storage: comparator name cannot be empty")
	}
	if tsSize <= 0 {
		return common.NewComparatorRegistrationError("storage: timestamp size must be positive")
	}
	if compareFn == nil || compareTsFn == nil || compareWithoutTsFn == nil {
		return common.NewComparatorRegistrationError("storage: all three comparison functions are required")
	}
	if o.cmp != nil {
		return common.NewComparatorRegistrationError("storage: a timestamp comparator is already registered on these options")
	}

	o.cmp = &timestampComparator{
		name:               name,
		tsSize:             tsSize,
		compareFn:          compareFn,
		compareTsFn:        compareTsFn,
		compareWithoutTsFn: compareWithoutTsFn,
	}

	log.WithFields(log.Fields{"comparator": name, "tsSize": tsSize}).Info("storage::timestamp_comparator: SetTimestampComparator; registered timestamp comparator")
	return nil
}
