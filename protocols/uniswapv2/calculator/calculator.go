// Package calculator holds the pure fixed-point reserve math of the
// constant-product engine: liquidity minting/burning ratios, fee-adjusted
// swap validation, and the lazy protocol-fee skim. No state, no locks;
// every function is reproducible bit-exactly from its inputs.
package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// Fee retained in the pool per swap: FeeNumerator/FeeDenominator = 0.3%.
var (
	FeeNumerator   = big.NewInt(3)
	FeeDenominator = big.NewInt(1000)

	// MinimumLiquidity is minted to a permanently-unspendable address on the
	// first deposit, foreclosing the empty-pool rounding attack where the
	// first depositor mints near-zero-cost shares.
	MinimumLiquidity = big.NewInt(1000)

	feeComplement = new(big.Int).Sub(FeeDenominator, FeeNumerator) // 997

	one  = big.NewInt(1)
	five = big.NewInt(5)
)

var (
	// ErrInsufficientAmount is returned when a quoted amount is zero.
	ErrInsufficientAmount = errors.New("insufficient amount")
	// ErrInsufficientLiquidity is returned when a reserve is empty or an output exhausts it.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInsufficientInputAmount is returned when a pricing input amount is zero.
	ErrInsufficientInputAmount = errors.New("insufficient input amount")
	// ErrInsufficientLiquidityMinted is returned when computed liquidity rounds to zero or below.
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
)

// scratch holds reusable big.Int objects for the hot validation and pricing
// paths. Instances are not safe for concurrent use by themselves; they are
// managed by scratchPool.
type scratch struct {
	a, b, c, d *big.Int
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{a: new(big.Int), b: new(big.Int), c: new(big.Int), d: new(big.Int)}
	},
}

// Quote returns the amount of asset B equivalent in value to amountA at the
// current reserve ratio: floor(amountA * reserveB / reserveA).
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA == nil || amountA.Sign() <= 0 {
		return nil, ErrInsufficientAmount
	}
	if reserveA.Sign() == 0 || reserveB.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	amountB := new(big.Int).Mul(amountA, reserveB)
	return amountB.Div(amountB, reserveA), nil
}

// LiquidityForFirstMint prices the very first deposit into an empty pool:
// floor(sqrt(amount0 * amount1)) minus the permanently locked
// MinimumLiquidity.
func LiquidityForFirstMint(amount0, amount1 *big.Int) (*big.Int, error) {
	liquidity := Sqrt(new(big.Int).Mul(amount0, amount1))
	liquidity.Sub(liquidity, MinimumLiquidity)
	if liquidity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: first deposit below minimum lockup", ErrInsufficientLiquidityMinted)
	}
	return liquidity, nil
}

// LiquidityForMint prices a deposit into an active pool as the minimum of
// the two supply-scaled ratios. A skewed deposit is credited only for the
// limiting asset; the excess of the other asset is a donation to existing
// holders and is never refunded at this layer.
func LiquidityForMint(amount0, amount1, reserve0, reserve1, totalSupply *big.Int) (*big.Int, error) {
	liq0 := new(big.Int).Mul(amount0, totalSupply)
	liq0.Div(liq0, reserve0)
	liq1 := new(big.Int).Mul(amount1, totalSupply)
	liq1.Div(liq1, reserve1)
	liquidity := liq0
	if liq1.Cmp(liq0) < 0 {
		liquidity = liq1
	}
	if liquidity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit rounds to zero shares", ErrInsufficientLiquidityMinted)
	}
	return liquidity, nil
}

// AmountsForBurn returns the proportional share of each reserve redeemed by
// burning liquidity shares, floor division on both sides.
func AmountsForBurn(liquidity, totalSupply, reserve0, reserve1 *big.Int) (amount0, amount1 *big.Int) {
	amount0 = new(big.Int).Mul(liquidity, reserve0)
	amount0.Div(amount0, totalSupply)
	amount1 = new(big.Int).Mul(liquidity, reserve1)
	amount1.Div(amount1, totalSupply)
	return amount0, amount1
}

// ValidateSwapInvariant is the central correctness property of the engine:
// after scaling to the fee denominator and charging the fee on whichever
// side received an inbound amount, the constant product must not decrease.
//
//	(balance0*1000 - amount0In*3) * (balance1*1000 - amount1In*3)
//	    >= reserve0 * reserve1 * 1000^2
func ValidateSwapInvariant(reserve0, reserve1, balance0, balance1, amount0In, amount1In *big.Int) bool {
	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	adjusted0 := s.a.Mul(balance0, FeeDenominator)
	adjusted0.Sub(adjusted0, s.b.Mul(amount0In, FeeNumerator))
	adjusted1 := s.c.Mul(balance1, FeeDenominator)
	adjusted1.Sub(adjusted1, s.d.Mul(amount1In, FeeNumerator))

	left := new(big.Int).Mul(adjusted0, adjusted1)
	right := new(big.Int).Mul(reserve0, reserve1)
	right.Mul(right, FeeDenominator)
	right.Mul(right, FeeDenominator)
	return left.Cmp(right) >= 0
}

// ProtocolFeeLiquidity computes the lazy one-sixth skim of pool growth
// since the last liquidity event:
//
//	totalSupply * (sqrt(k) - sqrt(kLast)) / (5*sqrt(k) + sqrt(kLast))
//
// Zero when the fee is disabled (kLast == 0) or the pool has not grown.
// Accrual stays lazy at the next mint/burn; downstream consumers depend on
// the growth-since-last-event formula.
func ProtocolFeeLiquidity(kLast, reserve0, reserve1, totalSupply *big.Int) *big.Int {
	if kLast == nil || kLast.Sign() == 0 {
		return new(big.Int)
	}
	rootK := Sqrt(new(big.Int).Mul(reserve0, reserve1))
	rootKLast := Sqrt(new(big.Int).Set(kLast))
	if rootK.Cmp(rootKLast) <= 0 {
		return new(big.Int)
	}
	numerator := new(big.Int).Sub(rootK, rootKLast)
	numerator.Mul(numerator, totalSupply)
	denominator := new(big.Int).Mul(rootK, five)
	denominator.Add(denominator, rootKLast)
	return numerator.Div(numerator, denominator)
}

// GetAmountOut returns the maximum output for an exact input, with the
// 0.3% fee charged on the input side.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	amountInWithFee := s.a.Mul(amountIn, feeComplement)
	numerator := s.b.Mul(amountInWithFee, reserveOut)
	denominator := s.c.Mul(reserveIn, FeeDenominator)
	denominator.Add(denominator, amountInWithFee)
	return new(big.Int).Div(numerator, denominator), nil
}

// GetAmountIn returns the minimum input for an exact output, rounded up by
// one to keep the invariant satisfied after fees.
func GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: requested output is zero", ErrInsufficientAmount)
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested %s against reserve %s", ErrInsufficientLiquidity, amountOut, reserveOut)
	}
	s := scratchPool.Get().(*scratch)
	defer scratchPool.Put(s)

	numerator := s.a.Mul(reserveIn, amountOut)
	numerator.Mul(numerator, FeeDenominator)
	denominator := s.b.Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeComplement)
	amountIn := new(big.Int).Div(numerator, denominator)
	return amountIn.Add(amountIn, one), nil
}

// Sqrt returns the floor integer square root of n.
func Sqrt(n *big.Int) *big.Int {
	return new(big.Int).Sqrt(n)
}
