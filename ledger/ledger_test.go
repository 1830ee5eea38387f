package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
	carol = common.HexToAddress("0xca0100000000000000000000000000000000003")
)

func newTestLedger(t *testing.T) (*Ledger, *ManualClock) {
	t.Helper()
	clock := NewManualClock(1_700_000_000)
	return NewLedger(big.NewInt(1), clock), clock
}

func newFundedToken(t *testing.T, l *Ledger, holder common.Address, amount int64) *Token {
	t.Helper()
	token, err := l.NewToken("Test Token", "TST", 18)
	require.NoError(t, err)
	require.NoError(t, token.Mint(holder, big.NewInt(amount)))
	return token
}

func TestTokenTransfer(t *testing.T) {
	l, _ := newTestLedger(t)
	token := newFundedToken(t, l, alice, 1000)

	t.Run("moves balance", func(t *testing.T) {
		require.NoError(t, token.Transfer(alice, bob, big.NewInt(300)))
		assert.Equal(t, big.NewInt(700), token.BalanceOf(alice))
		assert.Equal(t, big.NewInt(300), token.BalanceOf(bob))
	})

	t.Run("rejects overdraw", func(t *testing.T) {
		err := token.Transfer(alice, bob, big.NewInt(10_000))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, big.NewInt(700), token.BalanceOf(alice))
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		assert.ErrorIs(t, token.Transfer(alice, bob, big.NewInt(-1)), ErrNegativeAmount)
		assert.ErrorIs(t, token.Transfer(alice, bob, nil), ErrNegativeAmount)
	})

	t.Run("self transfer is a no-op", func(t *testing.T) {
		require.NoError(t, token.Transfer(alice, alice, big.NewInt(100)))
		assert.Equal(t, big.NewInt(700), token.BalanceOf(alice))
	})
}

func TestTokenTransferFrom(t *testing.T) {
	l, _ := newTestLedger(t)
	token := newFundedToken(t, l, alice, 1000)

	require.NoError(t, token.Approve(alice, bob, big.NewInt(400)))
	assert.Equal(t, big.NewInt(400), token.Allowance(alice, bob))

	require.NoError(t, token.TransferFrom(bob, alice, carol, big.NewInt(250)))
	assert.Equal(t, big.NewInt(150), token.Allowance(alice, bob))
	assert.Equal(t, big.NewInt(250), token.BalanceOf(carol))

	err := token.TransferFrom(bob, alice, carol, big.NewInt(200))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.Equal(t, big.NewInt(150), token.Allowance(alice, bob), "failed spend must not consume allowance")
}

func TestMintBurn(t *testing.T) {
	l, _ := newTestLedger(t)
	token := newFundedToken(t, l, alice, 1000)

	assert.Equal(t, big.NewInt(1000), token.TotalSupply())

	require.NoError(t, l.Exec(func(tx *Tx) error {
		return tx.Burn(token, alice, big.NewInt(400))
	}))
	assert.Equal(t, big.NewInt(600), token.TotalSupply())
	assert.Equal(t, big.NewInt(600), token.BalanceOf(alice))

	err := l.Exec(func(tx *Tx) error {
		return tx.Burn(token, alice, big.NewInt(1_000_000))
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestExecRollback(t *testing.T) {
	l, _ := newTestLedger(t)
	token := newFundedToken(t, l, alice, 1000)

	boom := errors.New("boom")
	err := l.Exec(func(tx *Tx) error {
		if err := tx.Transfer(token, alice, bob, big.NewInt(500)); err != nil {
			return err
		}
		if err := tx.Mint(token, carol, big.NewInt(123)); err != nil {
			return err
		}
		if err := tx.Approve(token, alice, bob, big.NewInt(77)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, big.NewInt(1000), token.BalanceOf(alice), "balances must be restored")
	assert.Zero(t, token.BalanceOf(bob).Sign())
	assert.Zero(t, token.BalanceOf(carol).Sign())
	assert.Zero(t, token.Allowance(alice, bob).Sign())
	assert.Equal(t, big.NewInt(1000), token.TotalSupply(), "supply must be restored")
}

func TestExecRollbackDeletesCreatedToken(t *testing.T) {
	l, _ := newTestLedger(t)
	addr := common.HexToAddress("0x00000000000000000000000000000000deadbeef")

	boom := errors.New("boom")
	err := l.Exec(func(tx *Tx) error {
		if _, err := tx.NewTokenAt(addr, "Doomed", "DOOM", 18); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := l.TokenAt(addr)
	assert.False(t, ok, "token created in a reverted operation must not exist")
}

func TestExecCommitHooks(t *testing.T) {
	l, _ := newTestLedger(t)
	token := newFundedToken(t, l, alice, 1000)

	t.Run("hooks run in order after commit", func(t *testing.T) {
		var order []int
		require.NoError(t, l.Exec(func(tx *Tx) error {
			tx.OnCommit(func() { order = append(order, 1) })
			tx.OnCommit(func() { order = append(order, 2) })
			return tx.Transfer(token, alice, bob, big.NewInt(1))
		}))
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("hooks never run on revert", func(t *testing.T) {
		ran := false
		err := l.Exec(func(tx *Tx) error {
			tx.OnCommit(func() { ran = true })
			return errors.New("no")
		})
		require.Error(t, err)
		assert.False(t, ran)
	})
}

func TestNestedExecPanics(t *testing.T) {
	l, _ := newTestLedger(t)
	assert.Panics(t, func() {
		_ = l.Exec(func(tx *Tx) error {
			return l.Exec(func(tx *Tx) error { return nil })
		})
	})
}

func TestNewTokenAtDuplicate(t *testing.T) {
	l, _ := newTestLedger(t)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	err := l.Exec(func(tx *Tx) error {
		_, err := tx.NewTokenAt(addr, "First", "ONE", 18)
		return err
	})
	require.NoError(t, err)

	err = l.Exec(func(tx *Tx) error {
		_, err := tx.NewTokenAt(addr, "Second", "TWO", 18)
		return err
	})
	assert.ErrorIs(t, err, ErrTokenExists)
}

func TestExecRevertClosures(t *testing.T) {
	l, _ := newTestLedger(t)
	token := newFundedToken(t, l, alice, 1000)

	t.Run("run newest first on failure, interleaved with cell reverts", func(t *testing.T) {
		var order []string
		external := 0
		err := l.Exec(func(tx *Tx) error {
			external = 1
			tx.OnRevert(func() {
				order = append(order, "first")
				external = 0
			})
			if err := tx.Transfer(token, alice, bob, big.NewInt(100)); err != nil {
				return err
			}
			tx.OnRevert(func() { order = append(order, "second") })
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.Equal(t, []string{"second", "first"}, order)
		assert.Equal(t, 0, external)
		assert.Equal(t, big.NewInt(1000), token.BalanceOf(alice))
	})

	t.Run("never run on commit", func(t *testing.T) {
		ran := false
		require.NoError(t, l.Exec(func(tx *Tx) error {
			tx.OnRevert(func() { ran = true })
			return nil
		}))
		assert.False(t, ran)
	})
}

func TestNative(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.CreditNative(alice, big.NewInt(500)))
	assert.Equal(t, big.NewInt(500), l.NativeBalanceOf(alice))

	require.NoError(t, l.Exec(func(tx *Tx) error {
		return tx.MoveNative(alice, bob, big.NewInt(200))
	}))
	assert.Equal(t, big.NewInt(300), l.NativeBalanceOf(alice))
	assert.Equal(t, big.NewInt(200), l.NativeBalanceOf(bob))

	err := l.Exec(func(tx *Tx) error {
		return tx.MoveNative(alice, bob, big.NewInt(10_000))
	})
	assert.ErrorIs(t, err, ErrInsufficientNative)
}

func TestManualClock(t *testing.T) {
	l, clock := newTestLedger(t)
	start := l.Timestamp()

	clock.Advance(42)
	assert.Equal(t, start+42, l.Timestamp())

	clock.Set(2_000_000_000)
	assert.Equal(t, uint64(2_000_000_000), l.Timestamp())
}

func TestNewTokenDeterministicDistinctAddresses(t *testing.T) {
	l, _ := newTestLedger(t)
	a, err := l.NewToken("Same", "SAME", 18)
	require.NoError(t, err)
	b, err := l.NewToken("Same", "SAME", 18)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), b.Address(), "salt must separate identical metadata")
}
