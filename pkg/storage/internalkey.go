package storage

import (
	"encoding/binary"
)

// internalKey is the key used in the memtable and the table files.
//
// It consists of the user key (timestamp suffix included, for timestamped
// column families) followed by an 8 byte trailer:
//    - 7 bytes of sequence number
//    - 1 byte defining the kind of operation: delete or set
// The trailer is encoded as a little endian uint64 of (seq << 8 | kind).
type internalKey []byte

type internalKeyKind uint8

const (
	// This is part of the file format and stored on the disk. Don't change.
	internalKeyKindDelete internalKeyKind = 0
	internalKeyKindSet    internalKeyKind = 1
)

const internalKeyTrailerSize = 8

// maxSequenceNumber is the largest sequence number that fits in 7 bytes.
const maxSequenceNumber uint64 = (1 << 56) - 1

// newInternalKey generates an internalKey from a userKey, kind and a sequence number.
func newInternalKey(userKey []byte, kind internalKeyKind, sequenceNumber uint64) internalKey {
	ik := make(internalKey, len(userKey)+internalKeyTrailerSize)
	copy(ik, userKey)
	binary.LittleEndian.PutUint64(ik[len(userKey):], (sequenceNumber<<8)|uint64(kind))
	return ik
}

// userKey returns the user key portion of the internal key.
// The returned slice aliases the internal key.
func (ik internalKey) userKey() []byte {
	return ik[:len(ik)-internalKeyTrailerSize]
}

// trailer returns the combined (seq << 8 | kind) trailer.
func (ik internalKey) trailer() uint64 {
	return binary.LittleEndian.Uint64(ik[len(ik)-internalKeyTrailerSize:])
}

// kind extracts the key kind from an internal key.
func (ik internalKey) kind() internalKeyKind {
	return internalKeyKind(ik.trailer() & 0xff)
}

// sequenceNumber returns the sequence number of the internal key.
func (ik internalKey) sequenceNumber() uint64 {
	return ik.trailer() >> 8
}

// valid returns if the internal key is valid structurally.
func (ik internalKey) valid() bool {
	return len(ik) >= internalKeyTrailerSize && ik.kind() <= internalKeyKindSet
}

// internalKeyComparator orders internal keys using a user key comparator.
//
// Keys are first compared on their user key portion according to the user key
// comparator; for timestamped families that ordering already places newer
// timestamps of the same key first. Ties are broken by the trailer in
// decreasing order, so of two writes to the same versioned key the one with
// the higher sequence number comes first.
type internalKeyComparator struct {
	ukComparator userComparator
}

var _ Comparator = (*internalKeyComparator)(nil)

func (c *internalKeyComparator) Compare(a, b []byte) int {
	ia, ib := internalKey(a), internalKey(b)

	if r := c.ukComparator.Compare(ia.userKey(), ib.userKey()); r != 0 {
		return r
	}

	at, bt := ia.trailer(), ib.trailer()
	switch {
	case at > bt:
		return -1
	case at < bt:
		return 1
	default:
		return 0
	}
}

func (c *internalKeyComparator) Name() string {
	return "InternalKeyComparator"
}

// newInternalKeyComparator creates a new instance of an internalKeyComparator.
func newInternalKeyComparator(ukComparator userComparator) *internalKeyComparator {
	return &internalKeyComparator{
		ukComparator: ukComparator,
	}
}
