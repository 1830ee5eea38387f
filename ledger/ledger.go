// Package ledger implements the serialized store the AMM engine runs
// against: fungible token accounts, native-currency balances, a timestamp
// clock, and a journal that makes every operation all-or-nothing.
//
// Every state-mutating operation executes under a single exclusive lock via
// Exec, totally ordered with respect to every other mutation. Read-only
// queries are served concurrently from the latest committed state.
package ledger

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrUnknownToken is returned when an address does not resolve to a token.
	ErrUnknownToken = errors.New("unknown token")
	// ErrTokenExists is returned when a token address is already occupied.
	ErrTokenExists = errors.New("token already exists at address")
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the holder's balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")
	// ErrInsufficientAllowance is returned when a spender exceeds its approved allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrInsufficientNative is returned when a native-currency move exceeds the holder's balance.
	ErrInsufficientNative = errors.New("insufficient native balance")
	// ErrNegativeAmount is returned when a nil or negative amount is passed to a mutation.
	ErrNegativeAmount = errors.New("amount must be non-nil and non-negative")
)

// Clock supplies the ledger's notion of current time, in unix seconds.
// Deadlines and cumulative-price windows are measured against it.
type Clock interface {
	Now() uint64
}

// WallClock reads the host's wall clock.
type WallClock struct{}

func (WallClock) Now() uint64 { return uint64(time.Now().Unix()) }

// ManualClock is a settable clock for deterministic runs and tests.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set jumps the clock to an absolute timestamp.
func (c *ManualClock) Set(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Ledger is the explicit store handle passed into every engine operation.
// It is never ambient: components hold a reference and go through Exec for
// mutations and View for consistent reads.
type Ledger struct {
	mu sync.RWMutex

	chainID *big.Int
	clock   Clock

	tokens map[common.Address]*Token
	native map[common.Address]*big.Int

	journal    *journal
	tokenSalt  uint64
	execActive bool
}

// NewLedger creates an empty ledger for the given chain identifier. A nil
// clock defaults to the wall clock.
func NewLedger(chainID *big.Int, clock Clock) *Ledger {
	if clock == nil {
		clock = WallClock{}
	}
	return &Ledger{
		chainID: new(big.Int).Set(chainID),
		clock:   clock,
		tokens:  make(map[common.Address]*Token),
		native:  make(map[common.Address]*big.Int),
		journal: &journal{},
	}
}

// ChainID returns the chain identifier baked into permit domain separators.
func (l *Ledger) ChainID() *big.Int {
	return new(big.Int).Set(l.chainID)
}

// Timestamp returns the ledger's current time in unix seconds.
func (l *Ledger) Timestamp() uint64 {
	return l.clock.Now()
}

// Exec runs fn as one atomic, totally ordered operation. If fn returns an
// error every balance, allowance, nonce, and supply cell it touched is
// reverted, every Tx.OnRevert closure runs, and the error is returned
// unchanged. Post-commit hooks queued with Tx.OnCommit run after the lock
// is released, in order.
func (l *Ledger) Exec(fn func(tx *Tx) error) error {
	l.mu.Lock()
	if l.execActive {
		l.mu.Unlock()
		panic("ledger: nested Exec")
	}
	l.execActive = true
	snapshot := l.journal.snapshot()
	tx := &Tx{l: l}
	err := fn(tx)
	if err != nil {
		l.journal.revert(l, snapshot)
		l.execActive = false
		l.mu.Unlock()
		return err
	}
	l.journal.commit(snapshot)
	hooks := tx.hooks
	l.execActive = false
	l.mu.Unlock()
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// View runs fn under the shared read lock, giving it a consistent snapshot
// of committed state.
func (l *Ledger) View(fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn()
}

// TokenAt resolves a token by address.
func (l *Ledger) TokenAt(addr common.Address) (*Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tokens[addr]
	return t, ok
}

// NativeBalanceOf returns the native-currency balance of an account.
func (l *Ledger) NativeBalanceOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.native[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// CreditNative funds an account with native currency. Genesis/test fixture.
func (l *Ledger) CreditNative(account common.Address, amount *big.Int) error {
	return l.Exec(func(tx *Tx) error {
		return tx.addNative(account, amount)
	})
}

// NewToken creates a token at a salt-derived deterministic address.
func (l *Ledger) NewToken(name, symbol string, decimals uint8) (*Token, error) {
	var token *Token
	err := l.Exec(func(tx *Tx) error {
		salt := l.tokenSalt
		l.tokenSalt++
		raw := crypto.Keccak256([]byte(name), []byte(symbol), uint64Bytes(salt))
		var err error
		token, err = tx.NewTokenAt(common.BytesToAddress(raw[12:]), name, symbol, decimals)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// Tx is the in-operation view of the ledger handed to Exec callbacks. Its
// mutators record journal entries instead of taking locks; it must not
// escape the callback.
type Tx struct {
	l     *Ledger
	hooks []func()
}

// OnCommit queues fn to run after the operation commits. Hooks never run
// for a reverted operation; event emission goes through here.
func (tx *Tx) OnCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}

// OnRevert records an undo closure in the journal. Components that hold
// state outside the ledger's maps register one alongside each in-place
// write so a failed operation unwinds their state together with the
// ledger's cells, newest first. Closures never run on commit.
func (tx *Tx) OnRevert(undo func()) {
	tx.l.journal.append(revertChange{undo: undo})
}

// Timestamp returns the ledger clock reading for this operation.
func (tx *Tx) Timestamp() uint64 {
	return tx.l.clock.Now()
}

// NewTokenAt creates a token at a caller-chosen address, failing with
// ErrTokenExists when the address is occupied.
func (tx *Tx) NewTokenAt(addr common.Address, name, symbol string, decimals uint8) (*Token, error) {
	if _, ok := tx.l.tokens[addr]; ok {
		return nil, ErrTokenExists
	}
	token := newToken(tx.l, addr, name, symbol, decimals)
	tx.l.tokens[addr] = token
	tx.l.journal.append(tokenCreate{token: addr})
	return token, nil
}

// BalanceOf reads a token balance inside the operation.
func (tx *Tx) BalanceOf(token *Token, account common.Address) *big.Int {
	return token.balanceOf(account)
}

// TotalSupply reads a token's outstanding supply inside the operation.
func (tx *Tx) TotalSupply(token *Token) *big.Int {
	return new(big.Int).Set(token.totalSupply)
}

// Allowance reads an owner→spender allowance inside the operation.
func (tx *Tx) Allowance(token *Token, owner, spender common.Address) *big.Int {
	return token.allowanceOf(owner, spender)
}

// Nonce reads an owner's permit nonce inside the operation.
func (tx *Tx) Nonce(token *Token, owner common.Address) uint64 {
	return token.nonces[owner]
}

// NativeBalanceOf reads a native balance inside the operation.
func (tx *Tx) NativeBalanceOf(account common.Address) *big.Int {
	if b, ok := tx.l.native[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Transfer moves amount of token from one holder to another.
func (tx *Tx) Transfer(token *Token, from, to common.Address, amount *big.Int) error {
	return token.transfer(tx, from, to, amount)
}

// TransferFrom moves amount on behalf of spender, consuming allowance.
func (tx *Tx) TransferFrom(token *Token, spender, from, to common.Address, amount *big.Int) error {
	return token.transferFrom(tx, spender, from, to, amount)
}

// Approve sets an owner→spender allowance.
func (tx *Tx) Approve(token *Token, owner, spender common.Address, amount *big.Int) error {
	return token.approve(tx, owner, spender, amount)
}

// Mint credits freshly created token units to an account.
func (tx *Tx) Mint(token *Token, to common.Address, amount *big.Int) error {
	return token.mint(tx, to, amount)
}

// Burn destroys token units held by an account.
func (tx *Tx) Burn(token *Token, from common.Address, amount *big.Int) error {
	return token.burn(tx, from, amount)
}

// Permit consumes a signed approval inside the operation; see Token.Permit.
func (tx *Tx) Permit(token *Token, owner, spender common.Address, value *big.Int, deadline uint64, sig []byte) error {
	return token.permit(tx, owner, spender, value, deadline, sig)
}

// MoveNative transfers native currency between accounts.
func (tx *Tx) MoveNative(from, to common.Address, amount *big.Int) error {
	if err := tx.subNative(from, amount); err != nil {
		return err
	}
	return tx.addNative(to, amount)
}

func (tx *Tx) addNative(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	prev := tx.l.native[account]
	tx.l.journal.append(nativeChange{account: account, prev: prev})
	next := new(big.Int).Add(balanceOrZero(prev), amount)
	tx.l.native[account] = next
	return nil
}

func (tx *Tx) subNative(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	prev := tx.l.native[account]
	if balanceOrZero(prev).Cmp(amount) < 0 {
		return ErrInsufficientNative
	}
	tx.l.journal.append(nativeChange{account: account, prev: prev})
	tx.l.native[account] = new(big.Int).Sub(prev, amount)
	return nil
}

func balanceOrZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}
