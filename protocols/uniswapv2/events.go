package uniswapv2

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Event is an observable state delta emitted by the engine for external
// indexers. Events are delivered only after the operation that produced
// them has committed; a rolled-back operation emits nothing.
type Event interface {
	EventName() string
}

// Sink receives committed events. Implementations must not call back into
// the ledger's mutating surface.
type Sink interface {
	Emit(event Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// MemorySink collects events for inspection; safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Drain returns all collected events and resets the sink.
func (s *MemorySink) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	return events
}

// PairCreatedEvent announces a new pool: the ordered asset pair, its
// deterministic address, and its position in the registry's ordered list.
type PairCreatedEvent struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
	Pair   common.Address `json:"pair"`
	Index  int            `json:"index"`
}

func (PairCreatedEvent) EventName() string { return "PairCreated" }

// SyncEvent reports the pool's reserves after any reserve update.
type SyncEvent struct {
	Pair     common.Address `json:"pair"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
}

func (SyncEvent) EventName() string { return "Sync" }

// MintEvent reports a liquidity deposit.
type MintEvent struct {
	Pair    common.Address `json:"pair"`
	Caller  common.Address `json:"caller"`
	Amount0 *big.Int       `json:"amount0"`
	Amount1 *big.Int       `json:"amount1"`
}

func (MintEvent) EventName() string { return "Mint" }

// BurnEvent reports a liquidity withdrawal.
type BurnEvent struct {
	Pair    common.Address `json:"pair"`
	Caller  common.Address `json:"caller"`
	Amount0 *big.Int       `json:"amount0"`
	Amount1 *big.Int       `json:"amount1"`
	To      common.Address `json:"to"`
}

func (BurnEvent) EventName() string { return "Burn" }

// SwapEvent reports a completed swap with its inferred inbound amounts.
type SwapEvent struct {
	Pair       common.Address `json:"pair"`
	Caller     common.Address `json:"caller"`
	Amount0In  *big.Int       `json:"amount0In"`
	Amount1In  *big.Int       `json:"amount1In"`
	Amount0Out *big.Int       `json:"amount0Out"`
	Amount1Out *big.Int       `json:"amount1Out"`
	To         common.Address `json:"to"`
}

func (SwapEvent) EventName() string { return "Swap" }

// TransferEvent reports liquidity-share movement; mints come from the zero
// address, burns go to it.
type TransferEvent struct {
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (TransferEvent) EventName() string { return "Transfer" }
