package utils

import "hash/fnv"

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// StableIndex maps key onto [0, n). The same key always yields the same
// index, across processes and restarts. It returns 0 when n < 1.
func StableIndex(key string, n int) int {
	if n < 1 {
		return 0
	}
	return int(HashStringToUint64(key) % uint64(n))
}
