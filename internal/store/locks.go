package store

import (
	"hash/fnv"
	"sync"
)

// lockShards is the size of the sharded lock table. Writes to different files
// proceed in parallel unless their paths hash to the same shard.
const lockShards = 64

// pathLocks serializes writes per file path via an FNV-sharded mutex table,
// avoiding a single global index lock.
type pathLocks struct {
	shards [lockShards]sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{}
}

// lock acquires the shard mutex for path and returns its unlock func.
func (l *pathLocks) lock(path string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	m := &l.shards[h.Sum32()%lockShards]
	m.Lock()
	return m.Unlock
}
