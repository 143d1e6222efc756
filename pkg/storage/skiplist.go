package storage

import (
	"math/rand"
	"sync"
)

const (
	// defaultMaxLevel is the default max level of the skip list
	defaultMaxLevel int32 = 12

	defaultProbability float64 = 0.5
)

// skipList is the probabilistic data structure used in the memtable.
// It supports byte keys and values along with custom comparators.
//
// It can be accessed concurrently.
type skipList struct {
	mutex       sync.RWMutex
	head        *skipListNode
	maxLevel    int32
	comparator  Comparator
	probability float64
}

// get finds an element by key.
//
// returns a pointer to the skip list node if the key is found.
// returns nil in case the node with key is not found.
func (s *skipList) get(key []byte) *skipListNode {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var next *skipListNode
	prev := s.head

	for i := s.maxLevel - 1; i >= 0; i-- {
		next = prev.next[i]

		// while the key is bigger than next.getKey()
		for next != nil && s.comparator.Compare(key, next.getKey()) > 0 {
			prev = next
			next = next.next[i]
		}
	}

	if next != nil && s.comparator.Compare(next.getKey(), key) == 0 {
		return next
	}

	return nil
}

// set inserts a value in the list associated with the specified key.
//
// Overwrites the data if the key already exists.
// returns a pointer to the inserted/modified skip list node.
func (s *skipList) set(key, value []byte) *skipListNode {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var element *skipListNode
	prevs := s.getPreviousNodesForAllLevels(key)

	if element = prevs[0].next[0]; element != nil && s.comparator.Compare(element.getKey(), key) == 0 {
		element.value = value
		return element
	}

	element = &skipListNode{
		key:   key,
		value: value,
		next:  make([]*skipListNode, s.randomLevel()),
	}

	for i := range element.next {
		element.next[i] = prevs[i].next[i]
		prevs[i].next[i] = element
	}

	return element
}

// delete deletes a value in the list associated with the specified key.
//
// returns a pointer to the removed skip list node.
// returns nil if the node isn't found.
func (s *skipList) delete(key []byte) *skipListNode {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	prevs := s.getPreviousNodesForAllLevels(key)

	if element := prevs[0].next[0]; element != nil && s.comparator.Compare(element.getKey(), key) == 0 {
		for k, v := range element.next {
			prevs[k].next[k] = v
		}

		return element
	}

	return nil
}

// front returns the first node of the skip list.
func (s *skipList) front() *skipListNode {
	return s.head.next[0]
}

// getPreviousNodesForAllLevels returns the previous nodes at each level for passed in key.
func (s *skipList) getPreviousNodesForAllLevels(key []byte) []*skipListNode {
	prevs := s.cloneHeadNext() // careful not to modify the original head pointer contents.
	var next *skipListNode
	prev := s.head

	for i := s.maxLevel - 1; i >= 0; i-- {
		next = prev.next[i]

		for next != nil && s.comparator.Compare(key, next.getKey()) > 0 {
			prev = next
			next = next.next[i]
		}

		prevs[i] = prev
	}

	return prevs
}

// cloneHeadNext returns a copy of the next pointers of the head node.
func (s *skipList) cloneHeadNext() []*skipListNode {
	clone := make([]*skipListNode, s.maxLevel)

	for i := s.maxLevel - 1; i >= 0; i-- {
		clone[i] = s.head.next[i]
	}

	return clone
}

func (s *skipList) randomLevel() int32 {
	var level int32 = 1

	for level < s.maxLevel && rand.Float64() > s.probability {
		level++
	}

	return level
}

// getEqualOrGreater returns the skiplist node with key >= the passed key.
// nil key denotes -inf i.e. the smallest.
// obtains a read lock on the skip list internally.
// returns nil if no such node exists.
func (s *skipList) getEqualOrGreater(key []byte) *skipListNode {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	// nil is -inf; the first node qualifies without consulting the
	// comparator, which may not accept a nil key.
	if key == nil {
		return s.head.next[0]
	}

	var next *skipListNode
	prev := s.head

	for i := s.maxLevel - 1; i >= 0; i-- {
		next = prev.next[i]

		for next != nil && s.comparator.Compare(key, next.getKey()) > 0 {
			prev = next
			next = next.next[i]
		}
	}

	return next
}

// newSkipListIterator returns a new iterator over the skip list.
func (s *skipList) newSkipListIterator() *skipListIterator {
	return &skipListIterator{
		skipList: s,
		node:     nil,
	}
}

type skipListNode struct {
	key   []byte
	value []byte
	next  []*skipListNode
}

func (sn *skipListNode) getKey() []byte {
	return sn.key
}

func (sn *skipListNode) getValue() []byte {
	return sn.value
}

// skipListIterator is the iterator over the key-value pairs of the skip list.
// It relies on the internal synchronization of the skiplist.
// Multiple threads can access different iterators
// but two threads accessing the same iterator requires external synchronization.
type skipListIterator struct {
	skipList *skipList
	node     *skipListNode
}

var _ Iterator = (*skipListIterator)(nil)

// Valid checks if the current position of the iterator is valid.
func (sli *skipListIterator) Valid() bool {
	return sli.node != nil
}

// SeekToFirst moves to the first entry of the skiplist.
// Call Valid() to ensure that the iterator is valid after the seek.
func (sli *skipListIterator) SeekToFirst() {
	sli.node = sli.skipList.getEqualOrGreater(nil)
}

// Seek the iterator to the first element whose key is >= target.
// Call Valid() to ensure that the iterator is valid after the seek.
func (sli *skipListIterator) Seek(target []byte) {
	sli.node = sli.skipList.getEqualOrGreater(target)
}

// Next moves to the next key-value pair in the skiplist.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (sli *skipListIterator) Next() {
	if !sli.Valid() {
		panic("Next on an invalid iterator position in skiplist.")
	}
	sli.node = sli.node.next[0]
}

// Key gets the key of the current iterator position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (sli *skipListIterator) Key() []byte {
	if !sli.Valid() {
		panic("Key on an invalid iterator position in skiplist.")
	}
	return sli.node.getKey()
}

// Value gets the value of the current iterator position.
// REQUIRES: Current position of iterator is valid. Panics otherwise.
func (sli *skipListIterator) Value() []byte {
	if !sli.Valid() {
		panic("Value on an invalid iterator position in skiplist.")
	}
	return sli.node.getValue()
}

// Error always returns nil; the skiplist is in memory and cannot fail a read.
func (sli *skipListIterator) Error() error {
	return nil
}

// newSkipList creates a new skipList.
//
// Passing 0 for maxLevel leads to a default max level.
func newSkipList(maxLevel int32, comparator Comparator) *skipList {
	if maxLevel < 0 || maxLevel > 18 {
		panic("maxLevel for the SkipList must be a positive integer <= 18")
	}

	if maxLevel == 0 {
		maxLevel = defaultMaxLevel
	}

	return &skipList{
		head:        &skipListNode{next: make([]*skipListNode, maxLevel)},
		maxLevel:    maxLevel,
		comparator:  comparator,
		probability: defaultProbability,
	}
}
