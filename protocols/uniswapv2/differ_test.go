package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func makeView(id uint64, reserve0, reserve1, supply int64) PoolView {
	return PoolView{
		ID:               id,
		Pair:             common.BigToAddress(big.NewInt(int64(id) + 1)),
		Token0:           common.HexToAddress("0xa0"),
		Token1:           common.HexToAddress("0xa1"),
		Reserve0:         big.NewInt(reserve0),
		Reserve1:         big.NewInt(reserve1),
		TotalSupply:      big.NewInt(supply),
		Price0Cumulative: uint256.NewInt(0),
		Price1Cumulative: uint256.NewInt(0),
	}
}

func TestDiffer(t *testing.T) {
	t.Run("identical snapshots produce an empty diff", func(t *testing.T) {
		old := []PoolView{makeView(0, 100, 200, 50)}
		diff := Differ(old, []PoolView{makeView(0, 100, 200, 50)})
		assert.True(t, diff.IsEmpty())
	})

	t.Run("new pool is an addition", func(t *testing.T) {
		old := []PoolView{makeView(0, 100, 200, 50)}
		added := makeView(1, 10, 20, 5)
		diff := Differ(old, []PoolView{makeView(0, 100, 200, 50), added})

		assert.Len(t, diff.Additions, 1)
		assert.Equal(t, added, diff.Additions[0])
		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("changed reserves are an update", func(t *testing.T) {
		old := []PoolView{makeView(0, 100, 200, 50)}
		changed := makeView(0, 110, 190, 50)
		diff := Differ(old, []PoolView{changed})

		assert.Len(t, diff.Updates, 1)
		assert.Equal(t, changed, diff.Updates[0])
		assert.Empty(t, diff.Additions)
	})

	t.Run("changed share supply alone is an update", func(t *testing.T) {
		old := []PoolView{makeView(0, 100, 200, 50)}
		diff := Differ(old, []PoolView{makeView(0, 100, 200, 75)})
		assert.Len(t, diff.Updates, 1)
	})

	t.Run("missing pool is a deletion", func(t *testing.T) {
		old := []PoolView{makeView(0, 100, 200, 50), makeView(1, 10, 20, 5)}
		diff := Differ(old, []PoolView{makeView(0, 100, 200, 50)})

		assert.Equal(t, []uint64{1}, diff.Deletions)
		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
	})

	t.Run("mixed changes in one pass", func(t *testing.T) {
		old := []PoolView{
			makeView(0, 100, 200, 50),
			makeView(1, 10, 20, 5),
		}
		updated := makeView(0, 90, 220, 50)
		added := makeView(2, 1, 2, 1)
		diff := Differ(old, []PoolView{updated, added})

		assert.Len(t, diff.Additions, 1)
		assert.Len(t, diff.Updates, 1)
		assert.Equal(t, []uint64{1}, diff.Deletions)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.True(t, Differ(nil, nil).IsEmpty())

		diff := Differ(nil, []PoolView{makeView(0, 1, 2, 1)})
		assert.Len(t, diff.Additions, 1)

		diff = Differ([]PoolView{makeView(0, 1, 2, 1)}, nil)
		assert.Equal(t, []uint64{0}, diff.Deletions)
	})
}
