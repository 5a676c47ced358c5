package memo

import "github.com/ethereum/go-ethereum/common"

// Cardinalities from spec §4.2: checksum resolution is cheap and
// high-cardinality, price quotes are comparatively rare and bounded by the
// number of actively-priced tokens.
const (
	ChecksumCacheSize = 100_000
	PriceCacheSize    = 1_000
)

// ChecksumKey identifies one address-checksum memoization.
type ChecksumKey struct {
	Chain uint64
	Addr  common.Address
}

// PriceKey identifies one (chain, block, token) price memoization.
type PriceKey struct {
	Chain uint64
	Block uint64
	Token common.Address
}

// NewChecksumCache builds the shared checksum-resolution cache.
func NewChecksumCache() *Cache[ChecksumKey, common.Address] {
	return New[ChecksumKey, common.Address](ChecksumCacheSize, DefaultTTL)
}

// NewPriceCache builds the shared price-quote cache.
func NewPriceCache() *Cache[PriceKey, float64] {
	return New[PriceKey, float64](PriceCacheSize, DefaultTTL)
}
