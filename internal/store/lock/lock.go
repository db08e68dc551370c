// Package lock provides the partitioned lock that serializes commits per
// (entity, attribute type) pair. Cross-entity commits proceed in parallel;
// a shard is held only for the duration of a single version commit.
package lock

import (
	"hash/fnv"
	"sync"
)

// defaultShards balances contention against memory for batch-sized commits.
const defaultShards = 128

// Partitioned is a fixed set of mutex shards keyed by string.
type Partitioned struct {
	shards []sync.Mutex
}

// NewPartitioned creates a partitioned lock with the given shard count.
// A non-positive count selects the default.
func NewPartitioned(shards int) *Partitioned {
	if shards <= 0 {
		shards = defaultShards
	}
	return &Partitioned{shards: make([]sync.Mutex, shards)}
}

// Lock acquires the shard for the given key.
func (p *Partitioned) Lock(key string) {
	p.shards[p.index(key)].Lock()
}

// Unlock releases the shard for the given key.
func (p *Partitioned) Unlock(key string) {
	p.shards[p.index(key)].Unlock()
}

func (p *Partitioned) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.shards)))
}
