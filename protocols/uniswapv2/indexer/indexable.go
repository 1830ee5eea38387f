// Package indexer builds fast lookup structures over pool snapshots for
// consumers that track the engine's state from the outside.
package indexer

import (
	"github.com/ethereum/go-ethereum/common"

	uniswapv2 "github.com/defistate/amm-engine-go/protocols/uniswapv2"
)

// Indexer turns raw pool snapshots into indexed systems.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool system from a raw snapshot.
func (i *Indexer) Index(views []uniswapv2.PoolView) IndexedPools {
	return NewIndexablePools(views)
}

type tokenKey [2]common.Address

// IndexablePools provides ID, address, and token-pair keyed access to one
// pool snapshot. It is immutable after construction.
type IndexablePools struct {
	byID      map[uint64]uniswapv2.PoolView
	byAddress map[common.Address]uniswapv2.PoolView
	byTokens  map[tokenKey]uniswapv2.PoolView
	all       []uniswapv2.PoolView
}

// NewIndexablePools indexes a snapshot by every lookup key.
func NewIndexablePools(views []uniswapv2.PoolView) *IndexablePools {
	byID := make(map[uint64]uniswapv2.PoolView, len(views))
	byAddress := make(map[common.Address]uniswapv2.PoolView, len(views))
	byTokens := make(map[tokenKey]uniswapv2.PoolView, len(views))
	for _, v := range views {
		byID[v.ID] = v
		byAddress[v.Pair] = v
		byTokens[tokenKey{v.Token0, v.Token1}] = v
	}
	return &IndexablePools{
		byID:      byID,
		byAddress: byAddress,
		byTokens:  byTokens,
		all:       views,
	}
}

// GetByID retrieves a pool by its registry index.
func (ip *IndexablePools) GetByID(id uint64) (uniswapv2.PoolView, bool) {
	v, ok := ip.byID[id]
	return v, ok
}

// GetByAddress retrieves a pool by its deterministic pair address.
func (ip *IndexablePools) GetByAddress(pair common.Address) (uniswapv2.PoolView, bool) {
	v, ok := ip.byAddress[pair]
	return v, ok
}

// GetByTokens retrieves a pool by its unordered token pair.
func (ip *IndexablePools) GetByTokens(tokenA, tokenB common.Address) (uniswapv2.PoolView, bool) {
	t0, t1 := uniswapv2.SortTokens(tokenA, tokenB)
	v, ok := ip.byTokens[tokenKey{t0, t1}]
	return v, ok
}

// All returns a defensive copy of the snapshot.
func (ip *IndexablePools) All() []uniswapv2.PoolView {
	allCopy := make([]uniswapv2.PoolView, len(ip.all))
	copy(allCopy, ip.all)
	return allCopy
}
