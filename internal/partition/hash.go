package partition

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/arkilian/tablets/internal/keyenc"
	"github.com/arkilian/tablets/pkg/types"
)

// Hash function versions. A version is frozen once any table uses it:
// changing its output would move existing rows to different buckets.
const (
	// HashVersion1 is MurmurHash3 (x86, 32-bit) of the composite key
	// encoding of the component columns, seeded with the component seed,
	// taken modulo the bucket count.
	HashVersion1 = 1

	// CurrentHashVersion is the version recorded for newly created tables.
	CurrentHashVersion = HashVersion1
)

// bucketPrefixSize is the width of one encoded bucket index in a partition key.
const bucketPrefixSize = 4

// maxHashCombinations bounds the product of all bucket counts.
const maxHashCombinations = 1 << 20

// HashBucket returns the bucket of row for the hash component. The
// component columns are encoded as a standalone composite key, so the last
// column is not escaped.
func HashBucket(hc HashDescriptor, row *types.Row) (int32, error) {
	key, err := keyenc.EncodeRowKey(row, hc.ColumnIDs)
	if err != nil {
		return 0, err
	}
	return bucketOf(key, hc.NumBuckets, hc.Seed), nil
}

func bucketOf(encoded []byte, numBuckets int32, seed uint32) int32 {
	return int32(murmur3.Sum32WithSeed(encoded, seed) % uint32(numBuckets))
}

func checkHashVersion(version int) error {
	if version != HashVersion1 {
		return fmt.Errorf("hash version %d is not supported", version)
	}
	return nil
}

// appendBucket appends the fixed-width big-endian bucket index to dst.
func appendBucket(dst []byte, bucket int32) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(bucket))
}
