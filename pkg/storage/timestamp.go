package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/chronokv/chronokv/pkg/common"
)

// The engine doesn't enshrine a timestamp format; the encoding is chosen by
// the application through the registered comparison policy. The u64 scheme
// below is the reference one: an 8 byte little endian unsigned integer where
// a larger value means newer.

// U64TimestampSize is the byte size of a u64 timestamp.
const U64TimestampSize = 8

// U64TimestampComparatorName is the name of the reference u64 timestamp
// comparator. It matches the name of the equivalent builtin comparator in
// LevelDB/RocksDB so that data files stay recognizable by their tooling.
const U64TimestampComparatorName = "leveldb.BytewiseComparator.u64ts"

// EncodeU64Timestamp encodes ts as an 8 byte little endian timestamp.
func EncodeU64Timestamp(ts uint64) []byte {
	buf := make([]byte, U64TimestampSize)
	binary.LittleEndian.PutUint64(buf, ts)
	return buf
}

// DecodeU64Timestamp decodes an 8 byte little endian timestamp.
func DecodeU64Timestamp(b []byte) (uint64, error) {
	if len(b) != U64TimestampSize {
		return 0, common.NewInvalidTimestampError("storage: timestamp is not 8 bytes")
	}
	return binary.LittleEndian.Uint64(b), nil
}

// AppendTimestampToKey returns a new slice holding key followed by ts.
func AppendTimestampToKey(key, ts []byte) []byte {
	result := make([]byte, 0, len(key)+len(ts))
	result = append(result, key...)
	return append(result, ts...)
}

// StripTimestampFromKey returns the user key portion of a key carrying a
// timestamp suffix of tsSize bytes.
func StripTimestampFromKey(key []byte, tsSize int) []byte {
	return key[:len(key)-tsSize]
}

// ExtractTimestampFromKey returns the timestamp suffix of a key.
func ExtractTimestampFromKey(key []byte, tsSize int) []byte {
	return key[len(key)-tsSize:]
}

// RegisterU64TimestampComparator registers the reference u64 timestamp
// comparator on the options.
//
// Keys are ordered bytewise on the portion before the timestamp; for equal
// user keys the larger (newer) timestamp sorts first. This makes a seek at a
// read timestamp land on the newest version visible at that timestamp, which
// is what multi-version reads rely on.
func RegisterU64TimestampComparator(o *Options) error {
	compareTs := func(aTs, bTs []byte) int {
		if len(aTs) != U64TimestampSize || len(bTs) != U64TimestampSize {
			// malformed suffix, fall back to raw byte order
			return bytes.Compare(aTs, bTs)
		}
		a := binary.LittleEndian.Uint64(aTs)
		b := binary.LittleEndian.Uint64(bTs)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}

	compareWithoutTs := func(a []byte, aHasTs bool, b []byte, bHasTs bool) int {
		if aHasTs {
			a = StripTimestampFromKey(a, U64TimestampSize)
		}
		if bHasTs {
			b = StripTimestampFromKey(b, U64TimestampSize)
		}
		return bytes.Compare(a, b)
	}

	compare := func(a, b []byte) int {
		// compare the user keys first; only equal keys consider timestamps.
		if r := compareWithoutTs(a, true, b, true); r != 0 {
			return r
		}

		// newer timestamps sort first
		return -compareTs(
			ExtractTimestampFromKey(a, U64TimestampSize),
			ExtractTimestampFromKey(b, U64TimestampSize),
		)
	}

	return o.SetTimestampComparator(U64TimestampComparatorName, U64TimestampSize, compare, compareTs, compareWithoutTs)
}
