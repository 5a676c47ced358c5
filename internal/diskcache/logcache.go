package diskcache

import (
	"context"
	"errors"

	"github.com/yearn/yprice-go/internal/store"
	"github.com/yearn/yprice-go/internal/store/entities"
)

// ErrNotPopulated is the "cache-not-populated" control-flow result: the
// caller should widen its Filter rather than treat this as a failure (spec
// §9 design note: realize CacheNotPopulatedError as an explicit result).
var ErrNotPopulated = errors.New("diskcache: range not populated")

// LogDiskCache is the DiskCache for one LogFilter's address/topic shape.
type LogDiskCache struct {
	store *store.Store
	chain uint64
	shape LogKeyShape
}

// NewLogDiskCache builds the DiskCache for a given filter key shape.
func NewLogDiskCache(st *store.Store, chain uint64, shape LogKeyShape) *LogDiskCache {
	return &LogDiskCache{store: st, chain: chain, shape: shape}
}

// addressKeys returns the "None" sentinel when the filter has no address
// constraint, or one key string per configured address otherwise.
func (c *LogDiskCache) addressKeys() []string {
	if len(c.shape.Addresses) == 0 {
		return []string{noneAddress}
	}
	return sortedHexes(c.shape.Addresses)
}

// candidateTopicsJSON returns the topics-column values to consult for reads:
// the exact key, the catch-all (null) row, and — when only topic0 is
// pinned — the narrower [topic0] key, per spec §4.4.
func (c *LogDiskCache) candidateTopicsJSON() ([]string, error) {
	exact, err := topicsJSON(c.shape.Topic0, c.shape.FullTopics)
	if err != nil {
		return nil, err
	}
	catchAll, err := topicsJSON(nil, nil)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{exact: true, catchAll: true}
	out := []string{exact, catchAll}
	if narrow, ok, err := topic0OnlyJSON(c.shape.Topic0); err != nil {
		return nil, err
	} else if ok && !seen[narrow] {
		out = append(out, narrow)
	}
	return out, nil
}

// IsCachedThru returns the max block such that every configured
// address+topics key has cachedFrom <= fromBlock and a cachedThru; else 0
// (spec §4.4).
func (c *LogDiskCache) IsCachedThru(ctx context.Context, fromBlock uint64) (uint64, error) {
	topicsCandidates, err := c.candidateTopicsJSON()
	if err != nil {
		return 0, err
	}
	var result uint64 = ^uint64(0) // max uint64, reduced by min() below
	foundAny := false
	for _, addr := range c.addressKeys() {
		best, ok, err := c.bestRangeFor(ctx, addr, topicsCandidates, fromBlock)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil // this address+topics key has no coverage at all
		}
		foundAny = true
		if best < result {
			result = best
		}
	}
	if !foundAny {
		return 0, nil
	}
	return result, nil
}

// bestRangeFor finds the widest cachedThru among the topics candidates for
// one address whose cachedFrom <= fromBlock.
func (c *LogDiskCache) bestRangeFor(ctx context.Context, addr string, topicsCandidates []string, fromBlock uint64) (uint64, bool, error) {
	var (
		best  uint64
		found bool
	)
	for _, topics := range topicsCandidates {
		key := entities.LogCacheKey{Chain: c.chain, Address: addr, Topics: topics}
		from, thru, ok, err := c.store.GetLogCacheInfo(ctx, key)
		if err != nil {
			return 0, false, err
		}
		if !ok || from > fromBlock {
			continue
		}
		if !found || thru > best {
			best, found = thru, true
		}
	}
	return best, found, nil
}

// CheckAndSelect returns every matching log in [from, to] if the range is
// fully cached, or ErrNotPopulated otherwise (spec §4.4).
func (c *LogDiskCache) CheckAndSelect(ctx context.Context, from, to uint64) ([]store.LogRow, error) {
	thru, err := c.IsCachedThru(ctx, from)
	if err != nil {
		return nil, err
	}
	if thru < to {
		return nil, ErrNotPopulated
	}
	addresses := sortedHexes(c.shape.Addresses)
	var topic0 string
	if c.shape.Topic0 != nil {
		topic0 = c.shape.Topic0.Hex()
	}
	return c.store.SelectLogs(ctx, c.chain, from, to, addresses, []string{topic0})
}

// SetMetadata advances the cached range for every configured address+topics
// key, union-merge semantics delegated to the Store (spec §4.4).
func (c *LogDiskCache) SetMetadata(ctx context.Context, from, thru uint64) error {
	exact, err := topicsJSON(c.shape.Topic0, c.shape.FullTopics)
	if err != nil {
		return err
	}
	for _, addr := range c.addressKeys() {
		key := entities.LogCacheKey{Chain: c.chain, Address: addr, Topics: exact}
		if err := c.store.SetLogCacheInfo(ctx, key, from, thru); err != nil {
			return err
		}
	}
	return nil
}
