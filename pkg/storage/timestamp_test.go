package storage

import (
	"testing"

	"github.com/chronokv/chronokv/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestU64TimestampEncodeDecode(t *testing.T) {
	for _, ts := range []uint64{0, 1, 42, 1<<32 - 1, 1<<64 - 1} {
		encoded := EncodeU64Timestamp(ts)
		assert.Equal(t, U64TimestampSize, len(encoded), "Encoded timestamp has the wrong length")

		decoded, err := DecodeU64Timestamp(encoded)
		assert.Nil(t, err, "Unexpected error in decoding an encoded timestamp")
		assert.Equal(t, ts, decoded, "Decoded timestamp differs from the encoded one")
	}

	_, err := DecodeU64Timestamp([]byte{1, 2, 3})
	assert.IsType(t, common.InvalidTimestampError{}, err, "Expected an error decoding a short timestamp")
}

func TestTimestampKeyManipulation(t *testing.T) {
	key := []byte("user-key")
	ts := EncodeU64Timestamp(7)

	versioned := AppendTimestampToKey(key, ts)
	assert.Equal(t, len(key)+U64TimestampSize, len(versioned), "Versioned key has the wrong length")

	assert.Equal(t, key, StripTimestampFromKey(versioned, U64TimestampSize), "Stripping didn't recover the user key")
	assert.Equal(t, ts, ExtractTimestampFromKey(versioned, U64TimestampSize), "Extraction didn't recover the timestamp")

	// the append must not alias the inputs
	versioned[0] = 'X'
	assert.Equal(t, byte('u'), key[0], "AppendTimestampToKey must copy the key bytes")
}
