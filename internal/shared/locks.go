package shared

import "hash/fnv"

// DocNumberLockKey hashes a document-number scope (table plus month stem)
// to a signed 64-bit advisory lock key. Concurrent creates in the same
// scope serialise on pg_advisory_xact_lock with this key.
func DocNumberLockKey(table, stem string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(table))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(stem))
	return int64(h.Sum64())
}
