package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// journalEntry records the previous value of a single mutated cell so that a
// failed operation can be unwound exactly.
type journalEntry interface {
	revert(l *Ledger)
}

// journal is an ordered log of state changes made by the operation currently
// holding the ledger's write lock. Reverting replays the log backwards.
type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

// snapshot returns a marker for the current journal length.
func (j *journal) snapshot() int {
	return len(j.entries)
}

// revert undoes every entry recorded after the given snapshot, newest first.
func (j *journal) revert(l *Ledger, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(l)
		j.entries[i] = nil
	}
	j.entries = j.entries[:snapshot]
}

// commit discards entries recorded after the given snapshot. Once the
// outermost operation commits the log is emptied; nothing can roll it back.
func (j *journal) commit(snapshot int) {
	if snapshot == 0 {
		for i := range j.entries {
			j.entries[i] = nil
		}
		j.entries = j.entries[:0]
	}
}

type balanceChange struct {
	token   common.Address
	account common.Address
	prev    *big.Int
}

func (c balanceChange) revert(l *Ledger) {
	l.tokens[c.token].setBalance(c.account, c.prev)
}

type supplyChange struct {
	token common.Address
	prev  *big.Int
}

func (c supplyChange) revert(l *Ledger) {
	l.tokens[c.token].totalSupply = c.prev
}

type allowanceChange struct {
	token   common.Address
	owner   common.Address
	spender common.Address
	prev    *big.Int
}

func (c allowanceChange) revert(l *Ledger) {
	l.tokens[c.token].setAllowance(c.owner, c.spender, c.prev)
}

type nonceChange struct {
	token common.Address
	owner common.Address
	prev  uint64
}

func (c nonceChange) revert(l *Ledger) {
	l.tokens[c.token].nonces[c.owner] = c.prev
}

type nativeChange struct {
	account common.Address
	prev    *big.Int
}

func (c nativeChange) revert(l *Ledger) {
	if c.prev == nil {
		delete(l.native, c.account)
		return
	}
	l.native[c.account] = c.prev
}

type tokenCreate struct {
	token common.Address
}

func (c tokenCreate) revert(l *Ledger) {
	delete(l.tokens, c.token)
}

// revertChange unwinds state a component keeps outside the ledger's own
// maps. The undo closure is interleaved with the ledger's cell reverts in
// journal order.
type revertChange struct {
	undo func()
}

func (c revertChange) revert(*Ledger) {
	c.undo()
}
