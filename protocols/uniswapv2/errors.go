package uniswapv2

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/amm-engine-go/protocols/uniswapv2/calculator"
)

// Every failure below is synchronous, terminal for the call, and fully
// atomic: the ledger journal guarantees a failed operation leaves no trace.
var (
	// ErrIdenticalAssets is returned when a pool is requested for a token paired with itself.
	ErrIdenticalAssets = errors.New("identical assets")
	// ErrZeroAddress is returned when an asset identifier is the null sentinel.
	ErrZeroAddress = errors.New("zero address")
	// ErrPairExists is returned when a pool already exists for the unordered pair.
	// Not transient: retrying with the same arguments always fails identically.
	ErrPairExists = errors.New("pair exists")
	// ErrExpired is returned when the ledger clock has passed a caller deadline.
	ErrExpired = errors.New("deadline expired")
	// ErrInvalidTo is returned when a swap recipient is one of the pooled
	// tokens' own addresses, which would corrupt balance accounting.
	ErrInvalidTo = errors.New("invalid swap recipient")
	// ErrInvalidK is returned when a swap would decrease the fee-adjusted
	// constant product.
	ErrInvalidK = errors.New("constant product invariant violated")
	// ErrInsufficientOutputAmount is returned when a swap requests no output
	// or a router output bound is breached.
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	// ErrInsufficientInputAmount is returned when a swap received no inbound amount.
	ErrInsufficientInputAmount = errors.New("insufficient input amount")
	// ErrExcessiveInputAmount is returned when an exact-output swap would
	// cost more than the caller's input bound.
	ErrExcessiveInputAmount = errors.New("excessive input amount")
	// ErrInsufficientLiquidityBurned is returned when a burn's computed amounts round to zero.
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
	// ErrInsufficientAAmount is returned when the A-side deposit or withdrawal breaches its minimum.
	ErrInsufficientAAmount = errors.New("insufficient A amount")
	// ErrInsufficientBAmount is returned when the B-side deposit or withdrawal breaches its minimum.
	ErrInsufficientBAmount = errors.New("insufficient B amount")
	// ErrBalanceOverflow is returned when a pool balance exceeds the 112-bit reserve bound.
	ErrBalanceOverflow = errors.New("reserve balance overflow")
	// ErrForbidden is the errors.Is target for ForbiddenError.
	ErrForbidden = errors.New("forbidden")

	// Re-exported math failures so callers match one taxonomy.
	ErrInsufficientLiquidity       = calculator.ErrInsufficientLiquidity
	ErrInsufficientLiquidityMinted = calculator.ErrInsufficientLiquidityMinted
)

// ForbiddenError reports both the offending caller and the authority that
// was required, for diagnostics.
type ForbiddenError struct {
	Caller common.Address
	Admin  common.Address
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: caller %s, fee admin %s", e.Caller, e.Admin)
}

// Is makes errors.Is(err, ErrForbidden) hold for any ForbiddenError.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}
