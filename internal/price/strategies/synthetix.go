package strategies

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/price"
	"github.com/yearn/yprice-go/internal/rpc"
)

var synthetixResolverABI = mustABI(`[
	{"inputs":[{"name":"name","type":"bytes32"}],"name":"getAddress","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`)

var synthetixProxyABI = mustABI(`[
	{"inputs":[],"name":"currencyKey","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"target","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`)

var synthetixRatesABI = mustABI(`[
	{"inputs":[{"name":"currencyKey","type":"bytes32"}],"name":"rateForCurrency","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"currencyKey","type":"bytes32"}],"name":"rateIsStale","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`)

var exchangeRatesName = [32]byte{'E', 'x', 'c', 'h', 'a', 'n', 'g', 'e', 'R', 'a', 't', 'e', 's'}

// Synthetix prices synths (ProxyERC20 wrappers) by resolving their
// currency key through the AddressResolver and checking the ExchangeRates
// contract's own staleness flag (spec §4.7).
type Synthetix struct {
	client   rpc.Client
	resolver common.Address
	synths   map[common.Address]bool // known Proxy addresses, enumerated once at startup
}

// NewSynthetix builds the Synthetix strategy against one AddressResolver;
// synths is the enumerate-once set of known ProxyERC20 addresses.
func NewSynthetix(client rpc.Client, resolver common.Address, synths map[common.Address]bool) *Synthetix {
	if synths == nil {
		synths = map[common.Address]bool{}
	}
	return &Synthetix{client: client, resolver: resolver, synths: synths}
}

func (s *Synthetix) Name() string        { return "synthetix" }
func (s *Synthetix) Bucket() price.Bucket { return price.BucketGeneric }

func (s *Synthetix) Matches(ctx context.Context, token common.Address, block uint64) (bool, error) {
	return s.synths[token], nil
}

func (s *Synthetix) Price(ctx context.Context, token common.Address, block uint64, opts price.Options) (decimal.Decimal, bool, error) {
	if !s.synths[token] {
		return notAKind(s.Name(), token)
	}
	bn := new(big.Int).SetUint64(block)
	var currencyKey [32]byte
	if err := call(ctx, s.client, synthetixProxyABI, token, "currencyKey", bn, &currencyKey); err != nil {
		return noneIfRevert(err)
	}
	var ratesAddr common.Address
	if err := call(ctx, s.client, synthetixResolverABI, s.resolver, "getAddress", bn, &ratesAddr, exchangeRatesName); err != nil {
		return noneIfRevert(err)
	}
	var stale bool
	if err := call(ctx, s.client, synthetixRatesABI, ratesAddr, "rateIsStale", bn, &stale, currencyKey); err == nil && stale {
		return notAKind(s.Name(), token)
	}
	var rate *big.Int
	if err := call(ctx, s.client, synthetixRatesABI, ratesAddr, "rateForCurrency", bn, &rate, currencyKey); err != nil {
		return noneIfRevert(err)
	}
	if rate == nil || rate.Sign() <= 0 {
		return notAKind(s.Name(), token)
	}
	return scaleDown(rate, 18), true, nil
}
