package uniswapv2

import (
	"math/big"

	"github.com/holiman/uint256"
)

// deepCopyView creates a PoolView with its own memory for the pointer
// fields so the patched state never shares *big.Int cells with its input.
func deepCopyView(v PoolView) PoolView {
	out := v
	if v.Reserve0 != nil {
		out.Reserve0 = new(big.Int).Set(v.Reserve0)
	}
	if v.Reserve1 != nil {
		out.Reserve1 = new(big.Int).Set(v.Reserve1)
	}
	if v.TotalSupply != nil {
		out.TotalSupply = new(big.Int).Set(v.TotalSupply)
	}
	if v.Price0Cumulative != nil {
		out.Price0Cumulative = new(uint256.Int).Set(v.Price0Cumulative)
	}
	if v.Price1Cumulative != nil {
		out.Price1Cumulative = new(uint256.Int).Set(v.Price1Cumulative)
	}
	return out
}

// Patcher constructs the next pool snapshot by applying a diff to a
// previous one. The previous state is deep-copied first, then deletions,
// updates, and additions are applied in that order; the result is fully
// independent of both inputs.
func Patcher(prevState []PoolView, diff PoolSetDiff) ([]PoolView, error) {
	next := make(map[uint64]PoolView, len(prevState))
	for _, view := range prevState {
		next[view.ID] = deepCopyView(view)
	}
	for _, id := range diff.Deletions {
		delete(next, id)
	}
	for _, view := range diff.Updates {
		next[view.ID] = deepCopyView(view)
	}
	for _, view := range diff.Additions {
		next[view.ID] = deepCopyView(view)
	}

	finalState := make([]PoolView, 0, len(next))
	for _, view := range next {
		finalState = append(finalState, view)
	}
	return finalState, nil
}
