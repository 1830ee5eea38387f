package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/amm-engine-go/permit"
)

// Token is a fungible token ledger: balances, allowances, and the per-owner
// permit nonces. The engine trusts balances read from here, never amounts
// declared by a caller, so fee-on-transfer or rebasing behavior layered on
// top stays correct as long as BalanceOf is accurate.
type Token struct {
	l *Ledger

	addr     common.Address
	name     string
	symbol   string
	decimals uint8

	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	nonces      map[common.Address]uint64

	domainSeparator common.Hash
}

func newToken(l *Ledger, addr common.Address, name, symbol string, decimals uint8) *Token {
	return &Token{
		l:               l,
		addr:            addr,
		name:            name,
		symbol:          symbol,
		decimals:        decimals,
		totalSupply:     new(big.Int),
		balances:        make(map[common.Address]*big.Int),
		allowances:      make(map[common.Address]map[common.Address]*big.Int),
		nonces:          make(map[common.Address]uint64),
		domainSeparator: permit.DomainSeparator(name, l.chainID, addr),
	}
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// DomainSeparator returns the typed-data domain this token's permits are
// bound to: one token, one chain.
func (t *Token) DomainSeparator() common.Hash { return t.domainSeparator }

// BalanceOf returns the committed balance of an account.
func (t *Token) BalanceOf(account common.Address) *big.Int {
	t.l.mu.RLock()
	defer t.l.mu.RUnlock()
	return t.balanceOf(account)
}

// TotalSupply returns the committed outstanding supply.
func (t *Token) TotalSupply() *big.Int {
	t.l.mu.RLock()
	defer t.l.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

// Allowance returns the committed owner→spender allowance.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.l.mu.RLock()
	defer t.l.mu.RUnlock()
	return t.allowanceOf(owner, spender)
}

// Nonce returns the owner's next unconsumed permit nonce.
func (t *Token) Nonce(owner common.Address) uint64 {
	t.l.mu.RLock()
	defer t.l.mu.RUnlock()
	return t.nonces[owner]
}

// Transfer moves amount from one holder to another as a single operation.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	return t.l.Exec(func(tx *Tx) error {
		return t.transfer(tx, from, to, amount)
	})
}

// TransferFrom moves amount on behalf of spender, consuming allowance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	return t.l.Exec(func(tx *Tx) error {
		return t.transferFrom(tx, spender, from, to, amount)
	})
}

// Approve sets the owner→spender allowance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	return t.l.Exec(func(tx *Tx) error {
		return t.approve(tx, owner, spender, amount)
	})
}

// Mint credits freshly created units to an account. Fixture/engine entry.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	return t.l.Exec(func(tx *Tx) error {
		return t.mint(tx, to, amount)
	})
}

// Permit consumes an off-chain-signed approval: it checks the deadline
// against the ledger clock, recovers the signer over the domain-separated
// digest, and on success atomically increments the owner's nonce and grants
// the spender an allowance of value. The same signature can never be
// consumed twice because the nonce inside the digest has moved on.
func (t *Token) Permit(owner, spender common.Address, value *big.Int, deadline uint64, sig []byte) error {
	return t.l.Exec(func(tx *Tx) error {
		return t.permit(tx, owner, spender, value, deadline, sig)
	})
}

func (t *Token) permit(tx *Tx, owner, spender common.Address, value *big.Int, deadline uint64, sig []byte) error {
	if tx.Timestamp() > deadline {
		return permit.ErrExpired
	}
	digest := permit.ApprovalDigest(t.domainSeparator, owner, spender, value, t.nonces[owner], deadline)
	signer, err := permit.Recover(digest, sig)
	if err != nil {
		return err
	}
	if signer != owner {
		return fmt.Errorf("%w: recovered %s, want %s", permit.ErrInvalidSignature, signer, owner)
	}
	tx.l.journal.append(nonceChange{token: t.addr, owner: owner, prev: t.nonces[owner]})
	t.nonces[owner]++
	return t.approve(tx, owner, spender, value)
}

func (t *Token) balanceOf(account common.Address) *big.Int {
	if b, ok := t.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) allowanceOf(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

func (t *Token) setBalance(account common.Address, b *big.Int) {
	if b == nil {
		delete(t.balances, account)
		return
	}
	t.balances[account] = b
}

func (t *Token) setAllowance(owner, spender common.Address, a *big.Int) {
	if a == nil {
		if m, ok := t.allowances[owner]; ok {
			delete(m, spender)
		}
		return
	}
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = a
}

func (t *Token) transfer(tx *Tx, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromBal := t.balances[from]
	if balanceOrZero(fromBal).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s",
			ErrInsufficientBalance, from, balanceOrZero(fromBal), t.symbol, amount)
	}
	tx.l.journal.append(balanceChange{token: t.addr, account: from, prev: fromBal})
	t.balances[from] = new(big.Int).Sub(balanceOrZero(fromBal), amount)
	toBal := t.balances[to]
	tx.l.journal.append(balanceChange{token: t.addr, account: to, prev: toBal})
	t.balances[to] = new(big.Int).Add(balanceOrZero(toBal), amount)
	return nil
}

func (t *Token) transferFrom(tx *Tx, spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	allowance := t.allowances[from][spender]
	if balanceOrZero(allowance).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s of %s, needs %s",
			ErrInsufficientAllowance, spender, balanceOrZero(allowance), t.symbol, amount)
	}
	tx.l.journal.append(allowanceChange{token: t.addr, owner: from, spender: spender, prev: allowance})
	t.setAllowance(from, spender, new(big.Int).Sub(allowance, amount))
	return t.transfer(tx, from, to, amount)
}

func (t *Token) approve(tx *Tx, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	tx.l.journal.append(allowanceChange{token: t.addr, owner: owner, spender: spender, prev: t.allowances[owner][spender]})
	t.setAllowance(owner, spender, new(big.Int).Set(amount))
	return nil
}

func (t *Token) mint(tx *Tx, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	tx.l.journal.append(supplyChange{token: t.addr, prev: t.totalSupply})
	tx.l.journal.append(balanceChange{token: t.addr, account: to, prev: t.balances[to]})
	t.totalSupply = new(big.Int).Add(t.totalSupply, amount)
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	return nil
}

func (t *Token) burn(tx *Tx, from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromBal := t.balances[from]
	if balanceOrZero(fromBal).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, burning %s",
			ErrInsufficientBalance, from, balanceOrZero(fromBal), t.symbol, amount)
	}
	tx.l.journal.append(supplyChange{token: t.addr, prev: t.totalSupply})
	tx.l.journal.append(balanceChange{token: t.addr, account: from, prev: fromBal})
	t.totalSupply = new(big.Int).Sub(t.totalSupply, amount)
	t.balances[from] = new(big.Int).Sub(balanceOrZero(fromBal), amount)
	return nil
}
