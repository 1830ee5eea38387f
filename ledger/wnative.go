package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WNative wraps the chain's native currency into an ordinary fungible
// token: Deposit locks native balance and credits wrapped units one-to-one,
// Withdraw is the exact reverse. Only the orchestrator's native-currency
// liquidity paths use it.
type WNative struct {
	l     *Ledger
	token *Token
}

// NewWNative creates the wrapped-native token on this ledger.
func (l *Ledger) NewWNative(name, symbol string) (*WNative, error) {
	token, err := l.NewToken(name, symbol, 18)
	if err != nil {
		return nil, err
	}
	return &WNative{l: l, token: token}, nil
}

// Token returns the fungible representation backing the wrapper.
func (w *WNative) Token() *Token { return w.token }

// Address returns the wrapped token's address.
func (w *WNative) Address() common.Address { return w.token.addr }

// Deposit locks amount of holder's native currency and mints wrapped units.
func (w *WNative) Deposit(holder common.Address, amount *big.Int) error {
	return w.l.Exec(func(tx *Tx) error {
		return w.deposit(tx, holder, amount)
	})
}

// Withdraw burns wrapped units and releases native currency to holder.
func (w *WNative) Withdraw(holder common.Address, amount *big.Int) error {
	return w.l.Exec(func(tx *Tx) error {
		return w.withdraw(tx, holder, amount)
	})
}

// DepositNative is the in-operation form of Deposit.
func (tx *Tx) DepositNative(w *WNative, holder common.Address, amount *big.Int) error {
	return w.deposit(tx, holder, amount)
}

// WithdrawNative is the in-operation form of Withdraw.
func (tx *Tx) WithdrawNative(w *WNative, holder common.Address, amount *big.Int) error {
	return w.withdraw(tx, holder, amount)
}

func (w *WNative) deposit(tx *Tx, holder common.Address, amount *big.Int) error {
	if err := tx.subNative(holder, amount); err != nil {
		return err
	}
	return w.token.mint(tx, holder, amount)
}

func (w *WNative) withdraw(tx *Tx, holder common.Address, amount *big.Int) error {
	if err := w.token.burn(tx, holder, amount); err != nil {
		return err
	}
	return tx.addNative(holder, amount)
}
