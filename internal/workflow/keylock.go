package workflow

import (
	"hash/fnv"
	"sync"
)

// keyedMutex дает взаимное исключение в разрезе одного exportID.
// Шардированный набор мьютексов: разные партии почти никогда не конкурируют,
// две операции над одной партией сериализуются всегда.
type keyedMutex struct {
	shards [64]sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{}
}

func (k *keyedMutex) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &k.shards[h.Sum32()%uint32(len(k.shards))]
	mu.Lock()
	return mu.Unlock
}
