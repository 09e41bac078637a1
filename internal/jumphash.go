package internal

import "github.com/zeebo/xxh3"

// Bucket maps a routing key to one of numBuckets buckets with Jump consistent hashing
// (https://arxiv.org/abs/1406.2294) over the key's xxh3 digest. Growing numBuckets by
// one only moves keys into the new bucket.
func Bucket(key string, numBuckets int) int {
	return JumpHash(xxh3.HashString(key), numBuckets)
}

// JumpHash returns the bucket of a 64-bit key, in [0, numBuckets).
func JumpHash(key uint64, numBuckets int) int {
	if numBuckets <= 1 {
		return 0
	}

	const multiplier = 2862933555777941757
	bucket, next := int64(-1), int64(0)
	for next < int64(numBuckets) {
		bucket = next
		key = key*multiplier + 1
		next = int64(float64(bucket+1) * (float64(1<<31) / float64((key>>33)+1)))
	}
	return int(bucket)
}
