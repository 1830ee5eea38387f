package uniswapv2

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/amm-engine-go/ledger"
	"github.com/defistate/amm-engine-go/protocols/uniswapv2/calculator"
)

// DeadAddress receives the MinimumLiquidity lockup on a pool's first mint.
// Nothing can ever spend from it.
var DeadAddress = common.HexToAddress("0x0000000000000000000000000000000000000001")

// maxUint112 bounds tracked reserves to 112 bits so both fit one storage
// word alongside the timestamp in the reference layout.
var maxUint112 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 112), big.NewInt(1))

// SwapCallback runs between the optimistic transfer-out and the invariant
// check, inside the swap's transaction boundary. A flash borrower repays
// here; if the callback errors or the repayment leaves the invariant
// violated, the whole swap rolls back including the transfer-out.
type SwapCallback func(tx *ledger.Tx, amount0Out, amount1Out *big.Int) error

// Pair owns one pool's mutable state: the tracked reserves, the
// liquidity-share token, the time-weighted cumulative price counters, and
// the kLast snapshot driving the lazy protocol-fee skim. All mutation runs
// inside the ledger's serialized transaction boundary.
//
// Tracked reserves are always <= the pool's actual held balances; held
// balances may exceed reserves between a transfer-in and the next
// mint/burn/swap/sync, never the reverse.
type Pair struct {
	l       *ledger.Ledger
	factory *Factory

	addr   common.Address
	token0 *ledger.Token
	token1 *ledger.Token
	shares *ledger.Token

	reserve0           *big.Int
	reserve1           *big.Int
	blockTimestampLast uint32
	price0Cumulative   uint256.Int
	price1Cumulative   uint256.Int
	kLast              *big.Int

	logger  Logger
	metrics *Metrics
	sink    Sink
}

func newPair(tx *ledger.Tx, factory *Factory, addr common.Address, token0, token1 *ledger.Token) (*Pair, error) {
	shares, err := tx.NewTokenAt(addr, liquidityTokenName, liquidityTokenSymbol, 18)
	if err != nil {
		return nil, fmt.Errorf("create liquidity token: %w", err)
	}
	return &Pair{
		l:        factory.l,
		factory:  factory,
		addr:     addr,
		token0:   token0,
		token1:   token1,
		shares:   shares,
		reserve0: new(big.Int),
		reserve1: new(big.Int),
		kLast:    new(big.Int),
		logger:   factory.logger,
		metrics:  factory.metrics,
		sink:     factory.sink,
	}, nil
}

// Liquidity-share token metadata, identical for every pool; permit domain
// separation comes from the pair address, not the name.
const (
	liquidityTokenName   = "AMM Engine LP"
	liquidityTokenSymbol = "AMM-LP"
)

func (p *Pair) Address() common.Address { return p.addr }
func (p *Pair) Factory() common.Address { return p.factory.addr }
func (p *Pair) Token0() *ledger.Token   { return p.token0 }
func (p *Pair) Token1() *ledger.Token   { return p.token1 }

// LiquidityToken returns the fungible claim on this pool's reserves. It
// lives at the pair's own address and supports Permit.
func (p *Pair) LiquidityToken() *ledger.Token { return p.shares }

// Reserves returns the tracked reserves and the timestamp of their last
// update, from committed state.
func (p *Pair) Reserves() (reserve0, reserve1 *big.Int, blockTimestampLast uint32) {
	p.l.View(func() {
		reserve0 = new(big.Int).Set(p.reserve0)
		reserve1 = new(big.Int).Set(p.reserve1)
		blockTimestampLast = p.blockTimestampLast
	})
	return reserve0, reserve1, blockTimestampLast
}

// PriceCumulatives returns the UQ112.112 time-weighted price counters.
// They accumulate elapsedTime*price on every reserve update and wrap mod
// 2^256 by design; consumers difference two observations.
func (p *Pair) PriceCumulatives() (price0, price1 *uint256.Int) {
	p.l.View(func() {
		price0 = new(uint256.Int).Set(&p.price0Cumulative)
		price1 = new(uint256.Int).Set(&p.price1Cumulative)
	})
	return price0, price1
}

// KLast returns the reserve product snapshot from the most recent
// liquidity-changing operation, zero while the protocol fee is disabled.
func (p *Pair) KLast() *big.Int {
	var k *big.Int
	p.l.View(func() { k = new(big.Int).Set(p.kLast) })
	return k
}

// Mint credits `to` with liquidity shares priced from the amounts the
// caller has already transferred into the pool. Amounts are derived from
// balance deltas, never caller-supplied, so fee-on-transfer assets are
// priced by what actually arrived.
func (p *Pair) Mint(caller, to common.Address) (*big.Int, error) {
	var liquidity *big.Int
	start := time.Now()
	err := p.l.Exec(func(tx *ledger.Tx) error {
		var err error
		liquidity, err = p.mint(tx, caller, to)
		return err
	})
	p.metrics.observe("mint", start, err)
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Burn redeems the liquidity shares held by the pool itself (transferred
// in by the caller beforehand) for a proportional cut of both reserves,
// paid out to `to`.
func (p *Pair) Burn(caller, to common.Address) (amount0, amount1 *big.Int, err error) {
	start := time.Now()
	err = p.l.Exec(func(tx *ledger.Tx) error {
		var err error
		amount0, amount1, err = p.burn(tx, caller, to)
		return err
	})
	p.metrics.observe("burn", start, err)
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Swap sends the requested outputs to `to` and validates that the inbound
// amounts, inferred from balance deltas, keep the fee-adjusted constant
// product non-decreasing. The optional callback enables flash borrowing:
// outputs leave first, the callback repays, and failure unwinds
// everything. A nil amount is treated as zero.
func (p *Pair) Swap(caller common.Address, amount0Out, amount1Out *big.Int, to common.Address, callback SwapCallback) error {
	start := time.Now()
	err := p.l.Exec(func(tx *ledger.Tx) error {
		return p.swap(tx, caller, amount0Out, amount1Out, to, callback)
	})
	p.metrics.observe("swap", start, err)
	return err
}

// Sync forces tracked reserves to match actual held balances, recovering
// from donation-only transfers.
func (p *Pair) Sync() error {
	start := time.Now()
	err := p.l.Exec(func(tx *ledger.Tx) error {
		return p.update(tx, tx.BalanceOf(p.token0, p.addr), tx.BalanceOf(p.token1, p.addr))
	})
	p.metrics.observe("sync", start, err)
	return err
}

// Skim transfers any held balance in excess of tracked reserves out to
// `to`; the dual of Sync.
func (p *Pair) Skim(to common.Address) error {
	start := time.Now()
	err := p.l.Exec(func(tx *ledger.Tx) error {
		excess0 := new(big.Int).Sub(tx.BalanceOf(p.token0, p.addr), p.reserve0)
		excess1 := new(big.Int).Sub(tx.BalanceOf(p.token1, p.addr), p.reserve1)
		if err := tx.Transfer(p.token0, p.addr, to, excess0); err != nil {
			return err
		}
		return tx.Transfer(p.token1, p.addr, to, excess1)
	})
	p.metrics.observe("skim", start, err)
	return err
}

func (p *Pair) mint(tx *ledger.Tx, caller, to common.Address) (*big.Int, error) {
	balance0 := tx.BalanceOf(p.token0, p.addr)
	balance1 := tx.BalanceOf(p.token1, p.addr)
	amount0 := new(big.Int).Sub(balance0, p.reserve0)
	amount1 := new(big.Int).Sub(balance1, p.reserve1)

	feeOn := p.mintFee(tx)
	totalSupply := tx.TotalSupply(p.shares)

	var liquidity *big.Int
	var err error
	if totalSupply.Sign() == 0 {
		liquidity, err = calculator.LiquidityForFirstMint(amount0, amount1)
		if err != nil {
			return nil, err
		}
		if err := p.mintShares(tx, DeadAddress, new(big.Int).Set(calculator.MinimumLiquidity)); err != nil {
			return nil, err
		}
	} else {
		liquidity, err = calculator.LiquidityForMint(amount0, amount1, p.reserve0, p.reserve1, totalSupply)
		if err != nil {
			return nil, err
		}
	}
	if err := p.mintShares(tx, to, liquidity); err != nil {
		return nil, err
	}
	if err := p.update(tx, balance0, balance1); err != nil {
		return nil, err
	}
	p.settleKLast(tx, feeOn)

	p.logger.Debug("mint", "pair", p.addr, "to", to, "amount0", amount0, "amount1", amount1, "liquidity", liquidity)
	tx.OnCommit(func() {
		p.sink.Emit(MintEvent{Pair: p.addr, Caller: caller, Amount0: amount0, Amount1: amount1})
	})
	return liquidity, nil
}

func (p *Pair) burn(tx *ledger.Tx, caller, to common.Address) (*big.Int, *big.Int, error) {
	balance0 := tx.BalanceOf(p.token0, p.addr)
	balance1 := tx.BalanceOf(p.token1, p.addr)
	liquidity := tx.BalanceOf(p.shares, p.addr)

	feeOn := p.mintFee(tx)
	totalSupply := tx.TotalSupply(p.shares)
	amount0, amount1 := calculator.AmountsForBurn(liquidity, totalSupply, balance0, balance1)
	if amount0.Sign() == 0 || amount1.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: %s shares redeem (%s, %s)", ErrInsufficientLiquidityBurned, liquidity, amount0, amount1)
	}
	if err := p.burnShares(tx, p.addr, liquidity); err != nil {
		return nil, nil, err
	}
	if err := tx.Transfer(p.token0, p.addr, to, amount0); err != nil {
		return nil, nil, err
	}
	if err := tx.Transfer(p.token1, p.addr, to, amount1); err != nil {
		return nil, nil, err
	}
	if err := p.update(tx, tx.BalanceOf(p.token0, p.addr), tx.BalanceOf(p.token1, p.addr)); err != nil {
		return nil, nil, err
	}
	p.settleKLast(tx, feeOn)

	p.logger.Debug("burn", "pair", p.addr, "to", to, "amount0", amount0, "amount1", amount1, "liquidity", liquidity)
	tx.OnCommit(func() {
		p.sink.Emit(BurnEvent{Pair: p.addr, Caller: caller, Amount0: amount0, Amount1: amount1, To: to})
	})
	return amount0, amount1, nil
}

func (p *Pair) swap(tx *ledger.Tx, caller common.Address, amount0Out, amount1Out *big.Int, to common.Address, callback SwapCallback) error {
	amount0Out = orZero(amount0Out)
	amount1Out = orZero(amount1Out)
	if amount0Out.Sign() == 0 && amount1Out.Sign() == 0 {
		return ErrInsufficientOutputAmount
	}
	if amount0Out.Cmp(p.reserve0) >= 0 || amount1Out.Cmp(p.reserve1) >= 0 {
		return fmt.Errorf("%w: output exceeds reserves", ErrInsufficientLiquidity)
	}
	if to == p.token0.Address() || to == p.token1.Address() {
		return ErrInvalidTo
	}

	// Optimistic transfer-out inside the transaction boundary; the journal
	// unwinds it if the invariant check below fails.
	if amount0Out.Sign() > 0 {
		if err := tx.Transfer(p.token0, p.addr, to, amount0Out); err != nil {
			return err
		}
	}
	if amount1Out.Sign() > 0 {
		if err := tx.Transfer(p.token1, p.addr, to, amount1Out); err != nil {
			return err
		}
	}
	if callback != nil {
		if err := callback(tx, amount0Out, amount1Out); err != nil {
			return err
		}
	}

	balance0 := tx.BalanceOf(p.token0, p.addr)
	balance1 := tx.BalanceOf(p.token1, p.addr)
	amount0In := inferAmountIn(balance0, p.reserve0, amount0Out)
	amount1In := inferAmountIn(balance1, p.reserve1, amount1Out)
	if amount0In.Sign() == 0 && amount1In.Sign() == 0 {
		return ErrInsufficientInputAmount
	}
	if !calculator.ValidateSwapInvariant(p.reserve0, p.reserve1, balance0, balance1, amount0In, amount1In) {
		return fmt.Errorf("%w: in (%s, %s), out (%s, %s)", ErrInvalidK, amount0In, amount1In, amount0Out, amount1Out)
	}
	if err := p.update(tx, balance0, balance1); err != nil {
		return err
	}

	p.logger.Debug("swap", "pair", p.addr, "to", to,
		"amount0In", amount0In, "amount1In", amount1In, "amount0Out", amount0Out, "amount1Out", amount1Out)
	tx.OnCommit(func() {
		p.sink.Emit(SwapEvent{
			Pair: p.addr, Caller: caller,
			Amount0In: amount0In, Amount1In: amount1In,
			Amount0Out: amount0Out, Amount1Out: amount1Out, To: to,
		})
	})
	return nil
}

// update validates the 112-bit reserve bound, accrues the cumulative-price
// counters over the elapsed window, and commits the new reserves. It is
// the only writer of reserve state. The fields live outside the ledger's
// cells, so their previous values ride the journal via OnRevert: a caller
// failing after update (the router's slippage checks do) unwinds them with
// everything else.
func (p *Pair) update(tx *ledger.Tx, balance0, balance1 *big.Int) error {
	if balance0.Cmp(maxUint112) > 0 || balance1.Cmp(maxUint112) > 0 {
		return ErrBalanceOverflow
	}
	prevReserve0, prevReserve1 := p.reserve0, p.reserve1
	prevPrice0, prevPrice1 := p.price0Cumulative, p.price1Cumulative
	prevTimestamp := p.blockTimestampLast
	tx.OnRevert(func() {
		p.reserve0, p.reserve1 = prevReserve0, prevReserve1
		p.price0Cumulative, p.price1Cumulative = prevPrice0, prevPrice1
		p.blockTimestampLast = prevTimestamp
	})
	blockTimestamp := uint32(tx.Timestamp())
	elapsed := blockTimestamp - p.blockTimestampLast // wraps mod 2^32
	if elapsed > 0 && p.reserve0.Sign() != 0 && p.reserve1.Sign() != 0 {
		p.price0Cumulative.Add(&p.price0Cumulative, uqPriceElapsed(p.reserve1, p.reserve0, elapsed))
		p.price1Cumulative.Add(&p.price1Cumulative, uqPriceElapsed(p.reserve0, p.reserve1, elapsed))
	}
	p.reserve0 = new(big.Int).Set(balance0)
	p.reserve1 = new(big.Int).Set(balance1)
	p.blockTimestampLast = blockTimestamp

	reserve0, reserve1 := p.reserve0, p.reserve1
	tx.OnCommit(func() {
		p.sink.Emit(SyncEvent{Pair: p.addr, Reserve0: new(big.Int).Set(reserve0), Reserve1: new(big.Int).Set(reserve1)})
	})
	return nil
}

// mintFee applies the lazy protocol-fee skim when a fee recipient is
// configured: one sixth of pool growth since kLast, minted as shares.
// kLast itself is settled by settleKLast after the operation has passed
// all checks.
func (p *Pair) mintFee(tx *ledger.Tx) bool {
	feeTo := p.factory.feeRecipient
	feeOn := feeTo != (common.Address{})
	if !feeOn {
		return false
	}
	liquidity := calculator.ProtocolFeeLiquidity(p.kLast, p.reserve0, p.reserve1, tx.TotalSupply(p.shares))
	if liquidity.Sign() > 0 {
		// mint cannot fail for a positive amount; shares are unbounded
		_ = p.mintShares(tx, feeTo, liquidity)
	}
	return true
}

func (p *Pair) settleKLast(tx *ledger.Tx, feeOn bool) {
	next := p.kLast
	if feeOn {
		next = new(big.Int).Mul(p.reserve0, p.reserve1)
	} else if p.kLast.Sign() != 0 {
		next = new(big.Int)
	}
	if next == p.kLast {
		return
	}
	prev := p.kLast
	tx.OnRevert(func() { p.kLast = prev })
	p.kLast = next
}

func (p *Pair) mintShares(tx *ledger.Tx, to common.Address, amount *big.Int) error {
	if err := tx.Mint(p.shares, to, amount); err != nil {
		return err
	}
	token := p.shares.Address()
	tx.OnCommit(func() {
		p.sink.Emit(TransferEvent{Token: token, From: common.Address{}, To: to, Amount: new(big.Int).Set(amount)})
	})
	return nil
}

func (p *Pair) burnShares(tx *ledger.Tx, from common.Address, amount *big.Int) error {
	if err := tx.Burn(p.shares, from, amount); err != nil {
		return err
	}
	token := p.shares.Address()
	tx.OnCommit(func() {
		p.sink.Emit(TransferEvent{Token: token, From: from, To: common.Address{}, Amount: new(big.Int).Set(amount)})
	})
	return nil
}

// inferAmountIn derives the inbound amount for one side from the balance
// after outputs left: balance - (reserve - amountOut), floored at zero.
func inferAmountIn(balance, reserve, amountOut *big.Int) *big.Int {
	expected := new(big.Int).Sub(reserve, amountOut)
	in := new(big.Int).Sub(balance, expected)
	if in.Sign() < 0 {
		return new(big.Int)
	}
	return in
}

// uqPriceElapsed returns elapsed * UQ112.112(numer/denom); additions into
// the cumulative counters wrap mod 2^256 by design.
func uqPriceElapsed(numer, denom *big.Int, elapsed uint32) *uint256.Int {
	n, _ := uint256.FromBig(numer)
	d, _ := uint256.FromBig(denom)
	price := new(uint256.Int).Lsh(n, 112)
	price.Div(price, d)
	return price.Mul(price, uint256.NewInt(uint64(elapsed)))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
