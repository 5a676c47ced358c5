package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

var bandOracleABI = mustABI(`[
	{"inputs":[{"name":"_base","type":"string"},{"name":"_quote","type":"string"}],"name":"getReferenceData","outputs":[
		{"name":"rate","type":"uint256"},
		{"name":"lastUpdatedBase","type":"uint256"},
		{"name":"lastUpdatedQuote","type":"uint256"}
	],"stateMutability":"view","type":"function"}
]`)

// Band prices tokens through a single standard reference oracle contract,
// keyed by a hardcoded symbol map (spec §4.7: "one oracle contract;
// call getReferenceData(symbol, 'USDC') and divide by 10^18").
type Band struct {
	client  rpc.Client
	oracle  common.Address
	symbols map[common.Address]string
}

// NewBand builds the Band strategy against one reference contract.
func NewBand(client rpc.Client, oracle common.Address, symbols map[common.Address]string) *Band {
	if symbols == nil {
		symbols = map[common.Address]string{}
	}
	return &Band{client: client, oracle: oracle, symbols: symbols}
}

func (b *Band) Name() string        { return "band" }
func (b *Band) Bucket() price.Bucket { return price.BucketGeneric }

func (b *Band) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	_, ok := b.symbols[token]
	return ok, nil
}

func (b *Band) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	symbol, ok := b.symbols[token]
	if !ok {
		return notAKind(b.Name(), token)
	}
	vals, err := callValues(ctx, b.client, bandOracleABI, b.oracle, "getReferenceData", new(big.Int).SetUint64(block), symbol, "USDC")
	if err != nil {
		return noneIfRevert(err)
	}
	rate := vals[0].(*big.Int)
	if rate.Sign() <= 0 {
		return notAKind(b.Name(), token)
	}
	return scaleDown(rate, 18), true, nil
}
