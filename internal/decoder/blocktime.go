package decoder

import (
	"container/list"
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"solana-trade-engine/internal/solana"
)

// DefaultBlockTimeCacheSize bounds the number of cached slots.
const DefaultBlockTimeCacheSize = 1024

// BlockTimeCache is a bounded LRU of slot -> block time. Concurrent lookups of
// the same uncached slot share one RPC call.
type BlockTimeCache struct {
	rpc   solana.RPCClient
	size  int
	group singleflight.Group

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[int64]*list.Element
}

type blockTimeEntry struct {
	slot int64
	time int64
}

// NewBlockTimeCache creates a cache holding at most size slots.
func NewBlockTimeCache(rpc solana.RPCClient, size int) *BlockTimeCache {
	if size <= 0 {
		size = DefaultBlockTimeCacheSize
	}
	return &BlockTimeCache{
		rpc:   rpc,
		size:  size,
		order: list.New(),
		items: make(map[int64]*list.Element),
	}
}

// Get returns the block time of slot. ok is false when the node has none.
func (c *BlockTimeCache) Get(ctx context.Context, slot int64) (int64, bool, error) {
	if t, ok := c.lookup(slot); ok {
		return t, true, nil
	}

	v, err, _ := c.group.Do(strconv.FormatInt(slot, 10), func() (interface{}, error) {
		bt, err := c.rpc.GetBlockTime(ctx, slot)
		if err != nil || bt == nil {
			return nil, err
		}
		c.store(slot, *bt)
		return *bt, nil
	})
	if err != nil {
		return 0, false, err
	}
	if v == nil {
		return 0, false, nil
	}
	return v.(int64), true, nil
}

// Len returns the number of cached slots.
func (c *BlockTimeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *BlockTimeCache) lookup(slot int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[slot]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*blockTimeEntry).time, true
}

func (c *BlockTimeCache) store(slot, t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[slot]; ok {
		el.Value.(*blockTimeEntry).time = t
		c.order.MoveToFront(el)
		return
	}
	c.items[slot] = c.order.PushFront(&blockTimeEntry{slot: slot, time: t})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*blockTimeEntry).slot)
	}
}
