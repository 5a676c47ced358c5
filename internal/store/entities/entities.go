// Package entities defines the persisted data model shared by every Store
// backend: blocks, addresses, tokens, prices, interned logs and traces, and
// the cache-range metadata rows that the filter engine consults.
package entities

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MaxDecimals is the invariant ceiling from spec §3: token decimals above
// this are treated as bogus and rejected rather than stored.
const MaxDecimals = 2_147_483_647

// EEEAddress is the pseudo-address used across EVM tooling to denote the
// chain's native asset inside ERC-20-only APIs. It is never materialized as
// a Token row.
var EEEAddress = common.HexToAddress("0xEeeeEEEEeeeEeeeEEeEeeEEEEeEeEeEeEEeEeEEe")

// Block is keyed by (chain, number). Hash and Timestamp are optional until
// observed; once Timestamp is set it never regresses for a higher Number.
type Block struct {
	Chain     uint64
	Number    uint64
	Hash      *common.Hash
	Timestamp *time.Time
}

// Address is a checksummed 20-byte account key, optionally annotated.
type Address struct {
	Chain   uint64
	Addr    common.Address
	Notes   string
}

// Contract extends Address with deployment provenance. DeployBlock, once
// set, never decreases.
type Contract struct {
	Address
	Deployer    *common.Address
	DeployBlock *uint64
}

// Token extends Contract with ERC-20 metadata and the persisted bucket tag
// used to skip re-probing across restarts.
type Token struct {
	Contract
	Symbol   *string
	Name     *string
	Decimals *uint8
	Bucket   *string
}

// Price is a write-once-per-(block,token) USD quote, decimal(38,18).
type Price struct {
	Chain uint64
	Block uint64
	Token common.Address
	Price decimal.Decimal
}

// LogTopic interns 32-byte topics; stored lowercase, no "0x" prefix.
type LogTopic struct {
	DBID  int64
	Topic string
}

// Hash interns tx-hashes and addresses referenced by Log rows; stored
// lowercase, no "0x" prefix.
type Hash struct {
	DBID int64
	Hash string
}

// Log is keyed by (block, txHash, logIndex); Topic0 is required, Topic1..3
// optional. Raw holds the array-encoded full log for lossless replay.
type Log struct {
	Chain    uint64
	Block    uint64
	TxHash   string
	LogIndex uint16
	Address  string
	Topic0   string
	Topic1   *string
	Topic2   *string
	Topic3   *string
	Raw      []byte
}

// LogCacheKey identifies a LogCacheInfo row: address "None" means "all
// addresses"; Topics is the canonical JSON of either [topic0], the full
// topic array, or null.
type LogCacheKey struct {
	Chain  uint64
	Address string // checksummed address, or the literal "None"
	Topics  string // JSON-encoded
}

// LogCacheInfo records the authoritative [CachedFrom, CachedThru] range for
// a LogCacheKey. Union-merge semantics: CachedFrom only shrinks, CachedThru
// only grows.
type LogCacheInfo struct {
	LogCacheKey
	CachedFrom uint64
	CachedThru uint64
}

// Trace is a single decoded call-trace row; per-block insertion order is
// preserved.
type Trace struct {
	ID          int64
	Chain       uint64
	Block       uint64
	Hash        string
	FromAddress string
	ToAddress   string
	Raw         []byte
}

// TraceCacheKey mirrors LogCacheKey for the trace_filter address-set shape.
type TraceCacheKey struct {
	Chain         uint64
	ToAddresses   string // JSON array of sorted checksummed addresses, or "None"
	FromAddresses string // JSON array of sorted checksummed addresses, or "None"
}

// TraceCacheInfo is TraceCacheKey's cached range, same merge semantics as
// LogCacheInfo.
type TraceCacheInfo struct {
	TraceCacheKey
	CachedFrom uint64
	CachedThru uint64
}

// BlockAtTimestamp memoizes timestamp -> closest block.
type BlockAtTimestamp struct {
	Chain     uint64
	Timestamp int64
	Block     uint64
}

// BlockNumber is a convenience wrapper so call sites don't sprinkle *big.Int
// conversions across the codebase.
func BlockNumber(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}
