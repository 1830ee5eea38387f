package uniswapv2

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/amm-engine-go/ledger"
)

func TestPairFirstMint(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)

	liquidity := e.seed(t, pair, e18(1), e18(4))

	expected := new(big.Int).Sub(e18(2), big.NewInt(1000))
	assert.Equal(t, expected, liquidity, "first mint is sqrt(product) minus the lockup")

	shares := pair.LiquidityToken()
	assert.Equal(t, expected, shares.BalanceOf(trader))
	assert.Equal(t, big.NewInt(1000), shares.BalanceOf(DeadAddress), "lockup goes to the dead address")
	assert.Equal(t, e18(2), shares.TotalSupply())

	reserve0, reserve1, _ := pair.Reserves()
	want0, want1 := orient(aFirst, e18(1), e18(4))
	assert.Equal(t, want0, reserve0)
	assert.Equal(t, want1, reserve1)

	events := e.sink.Drain()
	assert.Len(t, eventsByName(events, "Transfer"), 2, "lockup mint and depositor mint")
	assert.Len(t, eventsByName(events, "Sync"), 1)
	assert.Len(t, eventsByName(events, "Mint"), 1)
}

func TestPairMintIntoActivePool(t *testing.T) {
	e := newTestEngine(t)
	pair, _ := e.createPair(t)
	e.seed(t, pair, e18(1), e18(4))

	require.NoError(t, e.tokenA.Transfer(trader, pair.Address(), e18(1)))
	require.NoError(t, e.tokenB.Transfer(trader, pair.Address(), e18(4)))
	liquidity, err := pair.Mint(trader, trader)
	require.NoError(t, err)

	assert.Equal(t, e18(2), liquidity, "doubling the reserves doubles the supply")
	assert.Equal(t, e18(4), pair.LiquidityToken().TotalSupply())
}

func TestPairMintRejectsEmptyDeposit(t *testing.T) {
	e := newTestEngine(t)
	pair, _ := e.createPair(t)
	e.seed(t, pair, e18(1), e18(4))

	_, err := pair.Mint(trader, trader)
	assert.ErrorIs(t, err, ErrInsufficientLiquidityMinted)
}

func TestPairBurnRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	liquidity := e.seed(t, pair, e18(1), e18(4))
	shares := pair.LiquidityToken()

	require.NoError(t, shares.Transfer(trader, pair.Address(), liquidity))
	amount0, amount1, err := pair.Burn(trader, trader)
	require.NoError(t, err)

	wantA := new(big.Int).Sub(e18(1), big.NewInt(500))
	wantB := new(big.Int).Sub(e18(4), big.NewInt(2000))
	want0, want1 := orient(aFirst, wantA, wantB)
	assert.Equal(t, want0, amount0)
	assert.Equal(t, want1, amount1)

	reserve0, reserve1, _ := pair.Reserves()
	wantR0, wantR1 := orient(aFirst, big.NewInt(500), big.NewInt(2000))
	assert.Equal(t, wantR0, reserve0, "lockup's share stays behind")
	assert.Equal(t, wantR1, reserve1)
	assert.Equal(t, big.NewInt(1000), shares.TotalSupply())
}

func TestPairBurnRejectsZeroShares(t *testing.T) {
	e := newTestEngine(t)
	pair, _ := e.createPair(t)
	e.seed(t, pair, e18(1), e18(4))

	_, _, err := pair.Burn(trader, trader)
	assert.ErrorIs(t, err, ErrInsufficientLiquidityBurned)
}

func TestPairSwap(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	e.seed(t, pair, e18(5), e18(10))

	amountIn := e18(1)
	expectedOut := bigFromString(t, "1662497915624478906")

	token0, token1 := pair.Token0(), pair.Token1()
	in0, in1 := orient(aFirst, amountIn, new(big.Int))
	out0, out1 := orient(aFirst, new(big.Int), expectedOut)
	inToken, outToken := token0, token1
	if in0.Sign() == 0 {
		inToken, outToken = token1, token0
	}

	require.NoError(t, inToken.Transfer(trader, pair.Address(), amountIn))
	before := outToken.BalanceOf(other)
	require.NoError(t, pair.Swap(trader, out0, out1, other, nil))
	assert.Equal(t, new(big.Int).Add(before, expectedOut), outToken.BalanceOf(other))

	events := eventsByName(e.sink.Drain(), "Swap")
	require.Len(t, events, 1)
	swap := events[0].(SwapEvent)
	assert.Equal(t, in0, swap.Amount0In)
	assert.Equal(t, in1, swap.Amount1In)
	assert.Equal(t, other, swap.To)
}

func TestPairSwapOneExtraWeiFails(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	e.seed(t, pair, e18(5), e18(10))

	amountIn := e18(1)
	tooMuch := bigFromString(t, "1662497915624478907")
	inToken := pair.Token0()
	if !aFirst {
		inToken = pair.Token1()
	}
	out0, out1 := orient(aFirst, new(big.Int), tooMuch)

	require.NoError(t, inToken.Transfer(trader, pair.Address(), amountIn))
	err := pair.Swap(trader, out0, out1, other, nil)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestPairSwapValidation(t *testing.T) {
	e := newTestEngine(t)
	pair, _ := e.createPair(t)
	e.seed(t, pair, e18(5), e18(10))

	t.Run("zero output", func(t *testing.T) {
		err := pair.Swap(trader, nil, nil, other, nil)
		assert.ErrorIs(t, err, ErrInsufficientOutputAmount)
	})

	t.Run("output exceeds reserves", func(t *testing.T) {
		err := pair.Swap(trader, e18(100), nil, other, nil)
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("pooled token as recipient", func(t *testing.T) {
		err := pair.Swap(trader, big.NewInt(1), nil, pair.Token0().Address(), nil)
		assert.ErrorIs(t, err, ErrInvalidTo)
	})

	t.Run("no input", func(t *testing.T) {
		err := pair.Swap(trader, big.NewInt(1), nil, other, nil)
		assert.ErrorIs(t, err, ErrInsufficientInputAmount)
	})
}

func TestPairSwapRollbackLeavesNoTrace(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	e.seed(t, pair, e18(5), e18(10))
	e.sink.Drain()

	outToken := pair.Token1()
	if !aFirst {
		outToken = pair.Token0()
	}
	balanceBefore := outToken.BalanceOf(other)
	reserve0Before, reserve1Before, _ := pair.Reserves()

	out0, out1 := orient(aFirst, new(big.Int), e18(1))
	err := pair.Swap(trader, out0, out1, other, nil)
	require.ErrorIs(t, err, ErrInsufficientInputAmount)

	// The optimistic transfer-out must be fully unwound.
	assert.Equal(t, balanceBefore, outToken.BalanceOf(other))
	reserve0, reserve1, _ := pair.Reserves()
	assert.Equal(t, reserve0Before, reserve0)
	assert.Equal(t, reserve1Before, reserve1)
	assert.Empty(t, e.sink.Drain(), "a reverted swap emits nothing")
}

func TestPairFlashSwap(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	e.seed(t, pair, e18(5), e18(10))

	borrowToken := pair.Token0()
	if !aFirst {
		borrowToken = pair.Token1()
	}
	borrow := e18(1)
	// 0.3% fee on the repayment, rounded up.
	fee := new(big.Int).Div(new(big.Int).Mul(borrow, big.NewInt(3)), big.NewInt(997))
	fee.Add(fee, big.NewInt(1))
	repay := new(big.Int).Add(borrow, fee)

	t.Run("repaying callback commits", func(t *testing.T) {
		out0, out1 := orient(aFirst, borrow, new(big.Int))
		err := pair.Swap(trader, out0, out1, trader, func(tx *ledger.Tx, amount0Out, amount1Out *big.Int) error {
			return tx.Transfer(borrowToken, trader, pair.Address(), repay)
		})
		require.NoError(t, err)

		reserve0, reserve1, _ := pair.Reserves()
		k := new(big.Int).Mul(reserve0, reserve1)
		assert.True(t, k.Cmp(new(big.Int).Mul(e18(5), e18(10))) >= 0, "flash fee grows k")
	})

	t.Run("defaulting callback unwinds the borrow", func(t *testing.T) {
		balanceBefore := borrowToken.BalanceOf(trader)
		out0, out1 := orient(aFirst, borrow, new(big.Int))

		err := pair.Swap(trader, out0, out1, trader, func(tx *ledger.Tx, amount0Out, amount1Out *big.Int) error {
			return nil // keep the borrow
		})
		require.ErrorIs(t, err, ErrInsufficientInputAmount)
		assert.Equal(t, balanceBefore, borrowToken.BalanceOf(trader))
	})

	t.Run("erroring callback aborts", func(t *testing.T) {
		boom := errors.New("boom")
		out0, out1 := orient(aFirst, borrow, new(big.Int))
		err := pair.Swap(trader, out0, out1, trader, func(tx *ledger.Tx, amount0Out, amount1Out *big.Int) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestPairCumulativePrices(t *testing.T) {
	e := newTestEngine(t)
	pair, _ := e.createPair(t)
	e.seed(t, pair, e18(1), e18(4))

	price0Start, price1Start := pair.PriceCumulatives()
	assert.True(t, price0Start.IsZero(), "no time has passed since the first update")
	assert.True(t, price1Start.IsZero())

	reserve0, reserve1, _ := pair.Reserves()
	e.clock.Advance(10)
	require.NoError(t, pair.Sync())

	expected0 := uqPrice(t, reserve1, reserve0, 10)
	expected1 := uqPrice(t, reserve0, reserve1, 10)
	price0, price1 := pair.PriceCumulatives()
	assert.Equal(t, expected0, price0)
	assert.Equal(t, expected1, price1)

	// A second window accumulates on top at the same price.
	e.clock.Advance(5)
	require.NoError(t, pair.Sync())
	price0Again, _ := pair.PriceCumulatives()
	assert.Equal(t, new(uint256.Int).Add(expected0, uqPrice(t, reserve1, reserve0, 5)), price0Again)
}

func uqPrice(t *testing.T, numer, denom *big.Int, elapsed uint64) *uint256.Int {
	t.Helper()
	n, overflow := uint256.FromBig(numer)
	require.False(t, overflow)
	d, overflow := uint256.FromBig(denom)
	require.False(t, overflow)
	price := new(uint256.Int).Lsh(n, 112)
	price.Div(price, d)
	return price.Mul(price, uint256.NewInt(elapsed))
}

func TestPairReserveOverflow(t *testing.T) {
	e := newTestEngine(t)
	pair, _ := e.createPair(t)

	over := new(big.Int).Lsh(big.NewInt(1), 113)
	require.NoError(t, e.tokenA.Mint(pair.Address(), over))
	require.NoError(t, e.tokenB.Mint(pair.Address(), over))

	_, err := pair.Mint(trader, trader)
	assert.ErrorIs(t, err, ErrBalanceOverflow)
	assert.Zero(t, pair.LiquidityToken().TotalSupply().Sign(), "failed mint leaves no shares")
}

func TestPairSkimAndSync(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	e.seed(t, pair, e18(1), e18(4))

	t.Run("skim pays out the excess", func(t *testing.T) {
		require.NoError(t, e.tokenA.Transfer(trader, pair.Address(), big.NewInt(777)))
		before := e.tokenA.BalanceOf(other)
		require.NoError(t, pair.Skim(other))
		assert.Equal(t, new(big.Int).Add(before, big.NewInt(777)), e.tokenA.BalanceOf(other))

		reserve0, reserve1, _ := pair.Reserves()
		want0, want1 := orient(aFirst, e18(1), e18(4))
		assert.Equal(t, want0, reserve0, "reserves are untouched")
		assert.Equal(t, want1, reserve1)
	})

	t.Run("sync absorbs the donation", func(t *testing.T) {
		require.NoError(t, e.tokenA.Transfer(trader, pair.Address(), big.NewInt(333)))
		require.NoError(t, pair.Sync())

		reserve0, reserve1, _ := pair.Reserves()
		wantA := new(big.Int).Add(e18(1), big.NewInt(333))
		want0, want1 := orient(aFirst, wantA, e18(4))
		assert.Equal(t, want0, reserve0)
		assert.Equal(t, want1, reserve1)
	})
}

func TestPairProtocolFee(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	require.NoError(t, e.factory.SetFeeRecipient(feeAdmin, feeTaker))

	liquidity := e.seed(t, pair, e18(1000), e18(1000))
	shares := pair.LiquidityToken()

	// Trade so k grows, then trigger the lazy skim with a burn.
	inToken := pair.Token0()
	if !aFirst {
		inToken = pair.Token1()
	}
	require.NoError(t, inToken.Transfer(trader, pair.Address(), e18(10)))
	r0, r1, _ := pair.Reserves()
	out, err := e.router.GetAmountOut(e18(10), r0, r1)
	if !aFirst {
		out, err = e.router.GetAmountOut(e18(10), r1, r0)
	}
	require.NoError(t, err)
	out0, out1 := orient(aFirst, new(big.Int), out)
	require.NoError(t, pair.Swap(trader, out0, out1, trader, nil))

	require.NoError(t, shares.Transfer(trader, pair.Address(), liquidity))
	_, _, err = pair.Burn(trader, trader)
	require.NoError(t, err)

	assert.Positive(t, shares.BalanceOf(feeTaker).Sign(), "fee recipient receives skim shares")
	assert.Positive(t, pair.KLast().Sign(), "kLast tracks the post-burn product while the fee is on")
}

func TestPairProtocolFeeOffKeepsNoKLast(t *testing.T) {
	e := newTestEngine(t)
	pair, _ := e.createPair(t)
	e.seed(t, pair, e18(10), e18(10))
	assert.Zero(t, pair.KLast().Sign())
}

func TestPairKMonotonicUnderRandomSwaps(t *testing.T) {
	e := newTestEngine(t)
	pair, aFirst := e.createPair(t)
	e.seed(t, pair, e18(50), e18(80))

	rng := rand.New(rand.NewSource(42))
	reserve0, reserve1, _ := pair.Reserves()
	k := new(big.Int).Mul(reserve0, reserve1)

	for i := 0; i < 50; i++ {
		zeroForOne := rng.Intn(2) == 0
		amountIn := new(big.Int).Mul(big.NewInt(int64(rng.Intn(1000)+1)), big.NewInt(1e15))

		inToken := e.tokenA
		if zeroForOne != aFirst {
			inToken = e.tokenB
		}
		reserveIn, reserveOut := reserve0, reserve1
		if !zeroForOne {
			reserveIn, reserveOut = reserve1, reserve0
		}
		out, err := e.router.GetAmountOut(amountIn, reserveIn, reserveOut)
		require.NoError(t, err)
		if out.Sign() == 0 {
			continue
		}

		require.NoError(t, inToken.Transfer(trader, pair.Address(), amountIn))
		out0, out1 := new(big.Int), out
		if !zeroForOne {
			out0, out1 = out, new(big.Int)
		}
		require.NoError(t, pair.Swap(trader, out0, out1, trader, nil))

		reserve0, reserve1, _ = pair.Reserves()
		nextK := new(big.Int).Mul(reserve0, reserve1)
		require.True(t, nextK.Cmp(k) >= 0, "constant product must never decrease (step %d)", i)
		k = nextK
	}
}
