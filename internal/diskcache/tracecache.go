package diskcache

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yearn/yprice-go/internal/store"
	"github.com/yearn/yprice-go/internal/store/entities"
)

// TraceKeyShape describes one TraceFilter's from/to address-set
// configuration.
type TraceKeyShape struct {
	FromAddresses []common.Address
	ToAddresses   []common.Address
}

// TraceDiskCache is the DiskCache for one TraceFilter's address-set shape.
// It applies the same scheme as LogDiskCache, keyed by (sorted from-set,
// sorted to-set), with an asymmetric fallback: a cache-info row for "any
// from, this to" (or vice versa) satisfies a more specific query when
// present (spec §4.4).
type TraceDiskCache struct {
	store *store.Store
	chain uint64
	shape TraceKeyShape
}

func NewTraceDiskCache(st *store.Store, chain uint64, shape TraceKeyShape) *TraceDiskCache {
	return &TraceDiskCache{store: st, chain: chain, shape: shape}
}

func addrSetJSON(addrs []common.Address) (string, error) {
	if len(addrs) == 0 {
		b, err := json.Marshal(noneAddress)
		return string(b), err
	}
	b, err := json.Marshal(sortedHexes(addrs))
	return string(b), err
}

// candidateKeys returns the exact key plus the two asymmetric-fallback
// keys ("any from, this to" and "this from, any to").
func (c *TraceDiskCache) candidateKeys() ([]entities.TraceCacheKey, error) {
	exactFrom, err := addrSetJSON(c.shape.FromAddresses)
	if err != nil {
		return nil, err
	}
	exactTo, err := addrSetJSON(c.shape.ToAddresses)
	if err != nil {
		return nil, err
	}
	anyFrom, err := addrSetJSON(nil)
	if err != nil {
		return nil, err
	}
	keys := []entities.TraceCacheKey{{Chain: c.chain, FromAddresses: exactFrom, ToAddresses: exactTo}}
	if exactFrom != anyFrom {
		keys = append(keys, entities.TraceCacheKey{Chain: c.chain, FromAddresses: anyFrom, ToAddresses: exactTo})
	}
	if exactTo != anyFrom {
		keys = append(keys, entities.TraceCacheKey{Chain: c.chain, FromAddresses: exactFrom, ToAddresses: anyFrom})
	}
	return keys, nil
}

func (c *TraceDiskCache) IsCachedThru(ctx context.Context, fromBlock uint64) (uint64, error) {
	keys, err := c.candidateKeys()
	if err != nil {
		return 0, err
	}
	var (
		best  uint64
		found bool
	)
	for _, key := range keys {
		from, thru, ok, err := c.store.GetTraceCacheInfo(ctx, key)
		if err != nil {
			return 0, err
		}
		if !ok || from > fromBlock {
			continue
		}
		if !found || thru > best {
			best, found = thru, true
		}
	}
	if !found {
		return 0, nil
	}
	return best, nil
}

func (c *TraceDiskCache) CheckAndSelect(ctx context.Context, from, to uint64) ([]store.TraceRow, error) {
	thru, err := c.IsCachedThru(ctx, from)
	if err != nil {
		return nil, err
	}
	if thru < to {
		return nil, ErrNotPopulated
	}
	return c.store.SelectTraces(ctx, c.chain, from, to, sortedHexes(c.shape.FromAddresses), sortedHexes(c.shape.ToAddresses))
}

func (c *TraceDiskCache) SetMetadata(ctx context.Context, from, thru uint64) error {
	exactFrom, err := addrSetJSON(c.shape.FromAddresses)
	if err != nil {
		return err
	}
	exactTo, err := addrSetJSON(c.shape.ToAddresses)
	if err != nil {
		return err
	}
	key := entities.TraceCacheKey{Chain: c.chain, FromAddresses: exactFrom, ToAddresses: exactTo}
	return c.store.SetTraceCacheInfo(ctx, key, from, thru)
}
