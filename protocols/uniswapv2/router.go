package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/amm-engine-go/ledger"
	"github.com/defistate/amm-engine-go/protocols/uniswapv2/calculator"
)

// maxPermitValue is the unlimited-allowance sentinel consumed by
// RemoveLiquidityWithPermit when approveMax is set.
var maxPermitValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// RouterConfig carries the orchestrator's collaborators. WNative is only
// required when the native-currency paths are used.
type RouterConfig struct {
	Factory *Factory
	WNative *ledger.WNative
	Logger  Logger
}

func (c *RouterConfig) validate() error {
	if c.Factory == nil {
		return errors.New("factory is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Router is the user-facing orchestrator. It never holds funds across
// operations: within one atomic operation it pulls caller funds via
// allowance, routes them through the pair engine, and enforces the
// caller's slippage and deadline bounds. Every operation takes an explicit
// caller identity; authority to move the caller's funds comes from token
// allowances granted to the router's address.
type Router struct {
	l       *ledger.Ledger
	factory *Factory
	wnative *ledger.WNative
	addr    common.Address

	logger  Logger
	metrics *Metrics
}

// NewRouter validates the config and derives the router's own address from
// the factory it fronts.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid router config: %w", err)
	}
	addr := common.BytesToAddress(crypto.Keccak256([]byte("amm-engine/router"), cfg.Factory.addr.Bytes())[12:])
	r := &Router{
		l:       cfg.Factory.l,
		factory: cfg.Factory,
		wnative: cfg.WNative,
		addr:    addr,
		logger:  cfg.Logger,
		metrics: cfg.Factory.metrics,
	}
	r.logger.Info("router ready", "address", r.addr, "factory", cfg.Factory.addr)
	return r, nil
}

// Address returns the router's spender identity. Callers approve this
// address before any liquidity or swap operation.
func (r *Router) Address() common.Address { return r.addr }

func (r *Router) checkDeadline(tx *ledger.Tx, deadline uint64) error {
	if now := tx.Timestamp(); now > deadline {
		return fmt.Errorf("%w: now %d, deadline %d", ErrExpired, now, deadline)
	}
	return nil
}

// AddLiquidity deposits tokenA/tokenB into their pool, creating the pool
// on first use. Desired amounts set the upper bound; the actual deposit is
// scaled down to the pool's current ratio, and the mins bound how far that
// scaling may go before the whole operation aborts.
func (r *Router) AddLiquidity(
	caller common.Address,
	tokenA, tokenB *ledger.Token,
	amountADesired, amountBDesired, amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline uint64,
) (amountA, amountB, liquidity *big.Int, err error) {
	start := time.Now()
	err = r.l.Exec(func(tx *ledger.Tx) error {
		if err := r.checkDeadline(tx, deadline); err != nil {
			return err
		}
		pair, err := r.pairFor(tx, tokenA, tokenB, true)
		if err != nil {
			return err
		}
		amountA, amountB, err = r.optimalAmounts(pair, tokenA, amountADesired, amountBDesired, amountAMin, amountBMin)
		if err != nil {
			return err
		}
		if err := tx.TransferFrom(tokenA, r.addr, caller, pair.addr, amountA); err != nil {
			return err
		}
		if err := tx.TransferFrom(tokenB, r.addr, caller, pair.addr, amountB); err != nil {
			return err
		}
		liquidity, err = pair.mint(tx, caller, to)
		return err
	})
	r.metrics.observe("add_liquidity", start, err)
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, liquidity, nil
}

// AddLiquidityNative is AddLiquidity with the B side paid in native
// currency. nativeValue is debited from the caller up front, the unused
// remainder is refunded in the same operation, and the deposited portion
// is wrapped before entering the pool.
func (r *Router) AddLiquidityNative(
	caller common.Address,
	token *ledger.Token,
	amountTokenDesired, amountTokenMin, amountNativeMin, nativeValue *big.Int,
	to common.Address,
	deadline uint64,
) (amountToken, amountNative, liquidity *big.Int, err error) {
	if r.wnative == nil {
		return nil, nil, nil, errors.New("router has no wrapped-native token configured")
	}
	nativeValue = orZero(nativeValue)
	start := time.Now()
	err = r.l.Exec(func(tx *ledger.Tx) error {
		if err := r.checkDeadline(tx, deadline); err != nil {
			return err
		}
		if err := tx.MoveNative(caller, r.addr, nativeValue); err != nil {
			return err
		}
		wtoken := r.wnative.Token()
		pair, err := r.pairFor(tx, token, wtoken, true)
		if err != nil {
			return err
		}
		amountToken, amountNative, err = r.optimalAmounts(pair, token, amountTokenDesired, nativeValue, amountTokenMin, amountNativeMin)
		if err != nil {
			return err
		}
		if err := tx.TransferFrom(token, r.addr, caller, pair.addr, amountToken); err != nil {
			return err
		}
		if err := tx.DepositNative(r.wnative, r.addr, amountNative); err != nil {
			return err
		}
		if err := tx.Transfer(wtoken, r.addr, pair.addr, amountNative); err != nil {
			return err
		}
		liquidity, err = pair.mint(tx, caller, to)
		if err != nil {
			return err
		}
		refund := new(big.Int).Sub(nativeValue, amountNative)
		return tx.MoveNative(r.addr, caller, refund)
	})
	r.metrics.observe("add_liquidity_native", start, err)
	if err != nil {
		return nil, nil, nil, err
	}
	return amountToken, amountNative, liquidity, nil
}

// RemoveLiquidity redeems the caller's liquidity shares for both
// underlying assets, enforcing per-side minimums.
func (r *Router) RemoveLiquidity(
	caller common.Address,
	tokenA, tokenB *ledger.Token,
	liquidity, amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline uint64,
) (amountA, amountB *big.Int, err error) {
	start := time.Now()
	err = r.l.Exec(func(tx *ledger.Tx) error {
		amountA, amountB, err = r.removeLiquidity(tx, caller, tokenA, tokenB, liquidity, amountAMin, amountBMin, to, deadline)
		return err
	})
	r.metrics.observe("remove_liquidity", start, err)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// RemoveLiquidityNative redeems shares of the token/wrapped-native pool,
// unwrapping the native side to the recipient.
func (r *Router) RemoveLiquidityNative(
	caller common.Address,
	token *ledger.Token,
	liquidity, amountTokenMin, amountNativeMin *big.Int,
	to common.Address,
	deadline uint64,
) (amountToken, amountNative *big.Int, err error) {
	if r.wnative == nil {
		return nil, nil, errors.New("router has no wrapped-native token configured")
	}
	start := time.Now()
	err = r.l.Exec(func(tx *ledger.Tx) error {
		// Redeem to the router so the wrapped side can be unwrapped before
		// anything reaches the recipient.
		amountToken, amountNative, err = r.removeLiquidity(tx, caller, token, r.wnative.Token(), liquidity, amountTokenMin, amountNativeMin, r.addr, deadline)
		if err != nil {
			return err
		}
		if err := tx.Transfer(token, r.addr, to, amountToken); err != nil {
			return err
		}
		if err := tx.WithdrawNative(r.wnative, r.addr, amountNative); err != nil {
			return err
		}
		return tx.MoveNative(r.addr, to, amountNative)
	})
	r.metrics.observe("remove_liquidity_native", start, err)
	if err != nil {
		return nil, nil, err
	}
	return amountToken, amountNative, nil
}

// RemoveLiquidityWithPermit is RemoveLiquidity with the share allowance
// granted by an off-chain signature instead of a prior Approve. With
// approveMax set the signature must cover the unlimited sentinel value,
// otherwise it covers exactly `liquidity`. Permit consumption and removal
// share one transaction boundary: a failed removal does not burn the
// signature's nonce.
func (r *Router) RemoveLiquidityWithPermit(
	caller common.Address,
	tokenA, tokenB *ledger.Token,
	liquidity, amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline uint64,
	approveMax bool,
	sig []byte,
) (amountA, amountB *big.Int, err error) {
	start := time.Now()
	err = r.l.Exec(func(tx *ledger.Tx) error {
		pair, ok := r.lookupPair(tokenA, tokenB)
		if !ok {
			return fmt.Errorf("%w: no pool for %s/%s", ErrInsufficientLiquidity, tokenA.Address(), tokenB.Address())
		}
		value := liquidity
		if approveMax {
			value = maxPermitValue
		}
		if err := tx.Permit(pair.shares, caller, r.addr, value, deadline, sig); err != nil {
			return err
		}
		amountA, amountB, err = r.removeLiquidity(tx, caller, tokenA, tokenB, liquidity, amountAMin, amountBMin, to, deadline)
		return err
	})
	r.metrics.observe("remove_liquidity_permit", start, err)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

func (r *Router) removeLiquidity(
	tx *ledger.Tx,
	caller common.Address,
	tokenA, tokenB *ledger.Token,
	liquidity, amountAMin, amountBMin *big.Int,
	to common.Address,
	deadline uint64,
) (amountA, amountB *big.Int, err error) {
	if err := r.checkDeadline(tx, deadline); err != nil {
		return nil, nil, err
	}
	pair, ok := r.lookupPair(tokenA, tokenB)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no pool for %s/%s", ErrInsufficientLiquidity, tokenA.Address(), tokenB.Address())
	}
	if err := tx.TransferFrom(pair.shares, r.addr, caller, pair.addr, liquidity); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := pair.burn(tx, caller, to)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB = amount0, amount1
	if tokenA.Address() != pair.token0.Address() {
		amountA, amountB = amount1, amount0
	}
	if amountA.Cmp(amountAMin) < 0 {
		return nil, nil, fmt.Errorf("%w: got %s, want >= %s", ErrInsufficientAAmount, amountA, amountAMin)
	}
	if amountB.Cmp(amountBMin) < 0 {
		return nil, nil, fmt.Errorf("%w: got %s, want >= %s", ErrInsufficientBAmount, amountB, amountBMin)
	}
	return amountA, amountB, nil
}

// SwapExactTokensForTokens swaps a fixed input of tokenIn for at least
// amountOutMin of tokenOut through their direct pool.
func (r *Router) SwapExactTokensForTokens(
	caller common.Address,
	amountIn, amountOutMin *big.Int,
	tokenIn, tokenOut *ledger.Token,
	to common.Address,
	deadline uint64,
) (amountOut *big.Int, err error) {
	start := time.Now()
	err = r.l.Exec(func(tx *ledger.Tx) error {
		if err := r.checkDeadline(tx, deadline); err != nil {
			return err
		}
		pair, ok := r.lookupPair(tokenIn, tokenOut)
		if !ok {
			return fmt.Errorf("%w: no pool for %s/%s", ErrInsufficientLiquidity, tokenIn.Address(), tokenOut.Address())
		}
		reserveIn, reserveOut := pair.reservesFor(tokenIn)
		amountOut, err = calculator.GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		if amountOut.Cmp(amountOutMin) < 0 {
			return fmt.Errorf("%w: got %s, want >= %s", ErrInsufficientOutputAmount, amountOut, amountOutMin)
		}
		return r.executeSwap(tx, caller, pair, tokenIn, amountIn, amountOut, to)
	})
	r.metrics.observe("swap_exact_in", start, err)
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// SwapTokensForExactTokens swaps at most amountInMax of tokenIn for a
// fixed output of tokenOut through their direct pool.
func (r *Router) SwapTokensForExactTokens(
	caller common.Address,
	amountOut, amountInMax *big.Int,
	tokenIn, tokenOut *ledger.Token,
	to common.Address,
	deadline uint64,
) (amountIn *big.Int, err error) {
	start := time.Now()
	err = r.l.Exec(func(tx *ledger.Tx) error {
		if err := r.checkDeadline(tx, deadline); err != nil {
			return err
		}
		pair, ok := r.lookupPair(tokenIn, tokenOut)
		if !ok {
			return fmt.Errorf("%w: no pool for %s/%s", ErrInsufficientLiquidity, tokenIn.Address(), tokenOut.Address())
		}
		reserveIn, reserveOut := pair.reservesFor(tokenIn)
		amountIn, err = calculator.GetAmountIn(amountOut, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		if amountIn.Cmp(amountInMax) > 0 {
			return fmt.Errorf("%w: need %s, capped at %s", ErrExcessiveInputAmount, amountIn, amountInMax)
		}
		return r.executeSwap(tx, caller, pair, tokenIn, amountIn, amountOut, to)
	})
	r.metrics.observe("swap_exact_out", start, err)
	if err != nil {
		return nil, err
	}
	return amountIn, nil
}

func (r *Router) executeSwap(tx *ledger.Tx, caller common.Address, pair *Pair, tokenIn *ledger.Token, amountIn, amountOut *big.Int, to common.Address) error {
	if err := tx.TransferFrom(tokenIn, r.addr, caller, pair.addr, amountIn); err != nil {
		return err
	}
	amount0Out, amount1Out := new(big.Int), amountOut
	if tokenIn.Address() != pair.token0.Address() {
		amount0Out, amount1Out = amountOut, new(big.Int)
	}
	return pair.swap(tx, caller, amount0Out, amount1Out, to, nil)
}

// Quote re-exports the ratio quote for callers sizing deposits.
func (r *Router) Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	return calculator.Quote(amountA, reserveA, reserveB)
}

// GetAmountOut re-exports exact-input pricing.
func (r *Router) GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	return calculator.GetAmountOut(amountIn, reserveIn, reserveOut)
}

// GetAmountIn re-exports exact-output pricing.
func (r *Router) GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	return calculator.GetAmountIn(amountOut, reserveIn, reserveOut)
}

// pairFor resolves the pool for two tokens, optionally creating it.
// Runs inside an Exec callback; reads factory state under the held lock.
func (r *Router) pairFor(tx *ledger.Tx, tokenA, tokenB *ledger.Token, create bool) (*Pair, error) {
	if pair, ok := r.lookupPair(tokenA, tokenB); ok {
		return pair, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: no pool for %s/%s", ErrInsufficientLiquidity, tokenA.Address(), tokenB.Address())
	}
	return r.factory.createPair(tx, tokenA, tokenB)
}

func (r *Router) lookupPair(tokenA, tokenB *ledger.Token) (*Pair, bool) {
	t0, t1 := SortTokens(tokenA.Address(), tokenB.Address())
	pair, ok := r.factory.pairs[pairKey{t0, t1}]
	return pair, ok
}

// optimalAmounts scales the desired deposit down to the pool's current
// ratio. An empty pool accepts the desired amounts as-is and sets the
// initial price.
func (r *Router) optimalAmounts(pair *Pair, tokenA *ledger.Token, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int) (*big.Int, *big.Int, error) {
	reserveA, reserveB := pair.reservesFor(tokenA)
	if reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		return amountADesired, amountBDesired, nil
	}
	amountBOptimal, err := calculator.Quote(amountADesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if amountBOptimal.Cmp(amountBDesired) <= 0 {
		if amountBOptimal.Cmp(amountBMin) < 0 {
			return nil, nil, fmt.Errorf("%w: optimal %s below minimum %s", ErrInsufficientBAmount, amountBOptimal, amountBMin)
		}
		return amountADesired, amountBOptimal, nil
	}
	amountAOptimal, err := calculator.Quote(amountBDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	if amountAOptimal.Cmp(amountADesired) > 0 {
		return nil, nil, fmt.Errorf("%w: optimal %s above desired %s", ErrInsufficientAAmount, amountAOptimal, amountADesired)
	}
	if amountAOptimal.Cmp(amountAMin) < 0 {
		return nil, nil, fmt.Errorf("%w: optimal %s below minimum %s", ErrInsufficientAAmount, amountAOptimal, amountAMin)
	}
	return amountAOptimal, amountBDesired, nil
}

// reservesFor returns the pair's reserves oriented so the first value is
// the side holding `token`. Must run under the ledger lock.
func (p *Pair) reservesFor(token *ledger.Token) (*big.Int, *big.Int) {
	if token.Address() == p.token0.Address() {
		return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1)
	}
	return new(big.Int).Set(p.reserve1), new(big.Int).Set(p.reserve0)
}
