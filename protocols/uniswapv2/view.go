package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/amm-engine-go/ledger"
)

// PoolView is the serializable snapshot of one pool, the unit external
// indexers and the differ/patcher operate on. ID is the pool's creation
// index in the factory, stable for its lifetime.
type PoolView struct {
	ID               uint64         `json:"id"`
	Pair             common.Address `json:"pair"`
	Token0           common.Address `json:"token0"`
	Token1           common.Address `json:"token1"`
	Reserve0         *big.Int       `json:"reserve0"`
	Reserve1         *big.Int       `json:"reserve1"`
	TotalSupply      *big.Int       `json:"totalSupply"`
	Price0Cumulative *uint256.Int   `json:"price0Cumulative"`
	Price1Cumulative *uint256.Int   `json:"price1Cumulative"`
	TimestampLast    uint32         `json:"timestampLast"`
}

// View captures the pool's committed state with the given registry index.
// It runs as an empty operation so the capture is totally ordered against
// mutations.
func (p *Pair) View(id uint64) PoolView {
	var v PoolView
	_ = p.l.Exec(func(tx *ledger.Tx) error {
		v = p.view(tx, id)
		return nil
	})
	return v
}

func (p *Pair) view(tx *ledger.Tx, id uint64) PoolView {
	return PoolView{
		ID:               id,
		Pair:             p.addr,
		Token0:           p.token0.Address(),
		Token1:           p.token1.Address(),
		Reserve0:         new(big.Int).Set(p.reserve0),
		Reserve1:         new(big.Int).Set(p.reserve1),
		TotalSupply:      tx.TotalSupply(p.shares),
		Price0Cumulative: new(uint256.Int).Set(&p.price0Cumulative),
		Price1Cumulative: new(uint256.Int).Set(&p.price1Cumulative),
		TimestampLast:    p.blockTimestampLast,
	}
}

// Snapshot captures every pool in one consistent, totally ordered read.
func (f *Factory) Snapshot() []PoolView {
	var views []PoolView
	_ = f.l.Exec(func(tx *ledger.Tx) error {
		views = make([]PoolView, len(f.allPairs))
		for i, pair := range f.allPairs {
			views[i] = pair.view(tx, uint64(i))
		}
		return nil
	})
	return views
}
