package indexer

import (
	"github.com/ethereum/go-ethereum/common"

	uniswapv2 "github.com/defistate/amm-engine-go/protocols/uniswapv2"
)

// IndexedPools defines the methods for accessing an indexed pool snapshot.
type IndexedPools interface {
	GetByID(id uint64) (uniswapv2.PoolView, bool)
	GetByAddress(pair common.Address) (uniswapv2.PoolView, bool)
	GetByTokens(tokenA, tokenB common.Address) (uniswapv2.PoolView, bool)
	All() []uniswapv2.PoolView
}
