package storage

import (
	"encoding/binary"
	"math"

	icommon "github.com/chronokv/chronokv/internal/common"
	"github.com/spaolacci/murmur3"
)

// bloomFilter is the probabilistic membership filter stored in every table
// file. It is built over the user keys with the timestamp suffix stripped, so
// a point lookup at any timestamp can skip tables that never saw the key.
type bloomFilter struct {
	bits  []byte
	mBits uint32
	k     uint32
}

// newBloomFilter sizes a filter for n keys at false positive rate p.
func newBloomFilter(n int, p float64) *bloomFilter {
	if n <= 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = defaultBloomRate
	}

	m := uint32(math.Ceil(-float64(n) * math.Log(p) / math.Pow(math.Log(2), 2)))
	k := uint32(math.Round((float64(m) / float64(n)) * math.Log(2)))
	if m == 0 {
		m = 1
	}
	if k == 0 {
		k = 1
	}

	return &bloomFilter{
		bits:  make([]byte, (m+7)/8),
		mBits: m,
		k:     k,
	}
}

// add adds a key to the filter.
func (f *bloomFilter) add(key []byte) {
	for i := uint32(0); i < f.k; i++ {
		idx := murmur3.Sum32WithSeed(key, i) % f.mBits
		f.bits[idx/8] |= 1 << (idx % 8)
	}
}

// mayContain reports whether the key may have been added to the filter.
// False positives are possible, false negatives are not.
func (f *bloomFilter) mayContain(key []byte) bool {
	for i := uint32(0); i < f.k; i++ {
		idx := murmur3.Sum32WithSeed(key, i) % f.mBits
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// encode serializes the filter for storage in a table file.
func (f *bloomFilter) encode() []byte {
	buf := make([]byte, 8+len(f.bits))
	binary.LittleEndian.PutUint32(buf[0:4], f.k)
	binary.LittleEndian.PutUint32(buf[4:8], f.mBits)
	copy(buf[8:], f.bits)
	return buf
}

// decodeBloomFilter deserializes a filter from a table file.
func decodeBloomFilter(b []byte) (*bloomFilter, error) {
	if len(b) < 8 {
		return nil, icommon.NewCorruptRecordError("storage: bloom filter block too short")
	}

	f := &bloomFilter{
		k:     binary.LittleEndian.Uint32(b[0:4]),
		mBits: binary.LittleEndian.Uint32(b[4:8]),
		bits:  b[8:],
	}

	if f.k == 0 || f.mBits == 0 || uint32(len(f.bits)) != (f.mBits+7)/8 {
		return nil, icommon.NewCorruptRecordError("storage: bloom filter block is corrupt")
	}
	return f, nil
}
