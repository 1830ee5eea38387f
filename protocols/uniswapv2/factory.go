package uniswapv2

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/amm-engine-go/ledger"
)

// pairTemplateHash stands in for the init-code hash in the deterministic
// address derivation. It is a constant of the engine: pool addresses are
// computable by anyone from the factory address and the sorted token pair
// alone.
var pairTemplateHash = crypto.Keccak256Hash([]byte("github.com/defistate/amm-engine-go/protocols/uniswapv2/pair@v1"))

// PairTemplateHash returns the constant hash used in PairAddress.
func PairTemplateHash() common.Hash { return pairTemplateHash }

// FactoryConfig carries everything a Factory needs. Sink defaults to
// NopSink when nil; all other fields are required.
type FactoryConfig struct {
	Ledger *ledger.Ledger
	// Address identifies the factory in pool address derivation. Optional;
	// derived from the ledger chain ID when zero.
	Address common.Address
	// FeeAdmin may toggle the protocol fee recipient and hand off its own role.
	FeeAdmin common.Address
	Logger   Logger
	Registry prometheus.Registerer
	Sink     Sink
}

func (c *FactoryConfig) validate() error {
	if c.Ledger == nil {
		return errors.New("ledger is required")
	}
	if c.FeeAdmin == (common.Address{}) {
		return errors.New("fee admin is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Registry == nil {
		return errors.New("metrics registry is required")
	}
	if c.Sink == nil {
		c.Sink = NopSink{}
	}
	return nil
}

type pairKey [2]common.Address

// Factory is the pool registry: it creates pairs at deterministic
// addresses, tracks them in creation order, and holds the protocol fee
// switch. One unordered token pair maps to at most one pool, ever.
type Factory struct {
	l    *ledger.Ledger
	addr common.Address

	feeRecipient common.Address
	feeAdmin     common.Address

	pairs    map[pairKey]*Pair
	allPairs []*Pair

	logger  Logger
	metrics *Metrics
	sink    Sink
}

// NewFactory validates the config and returns an empty registry.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid factory config: %w", err)
	}
	addr := cfg.Address
	if addr == (common.Address{}) {
		addr = common.BytesToAddress(crypto.Keccak256([]byte("amm-engine/factory"), cfg.Ledger.ChainID().Bytes())[12:])
	}
	f := &Factory{
		l:        cfg.Ledger,
		addr:     addr,
		feeAdmin: cfg.FeeAdmin,
		pairs:    make(map[pairKey]*Pair),
		logger:   cfg.Logger,
		metrics:  NewMetrics(cfg.Registry),
		sink:     cfg.Sink,
	}
	f.logger.Info("factory ready", "address", f.addr, "feeAdmin", f.feeAdmin)
	return f, nil
}

func (f *Factory) Address() common.Address { return f.addr }

// FeeRecipient returns the protocol fee destination; the zero address
// means the fee is off.
func (f *Factory) FeeRecipient() (to common.Address) {
	f.l.View(func() { to = f.feeRecipient })
	return to
}

// FeeAdmin returns the current fee authority.
func (f *Factory) FeeAdmin() (admin common.Address) {
	f.l.View(func() { admin = f.feeAdmin })
	return admin
}

// CreatePair deploys the pool for an unordered token pair at its
// deterministic address. Argument order does not matter; the pool's
// token0/token1 follow canonical byte order.
func (f *Factory) CreatePair(tokenA, tokenB *ledger.Token) (*Pair, error) {
	var pair *Pair
	start := time.Now()
	err := f.l.Exec(func(tx *ledger.Tx) error {
		var err error
		pair, err = f.createPair(tx, tokenA, tokenB)
		return err
	})
	f.metrics.observe("create_pair", start, err)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (f *Factory) createPair(tx *ledger.Tx, tokenA, tokenB *ledger.Token) (*Pair, error) {
	if tokenA == nil || tokenB == nil {
		return nil, ErrZeroAddress
	}
	if tokenA.Address() == tokenB.Address() {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalAssets, tokenA.Address())
	}
	token0, token1 := tokenA, tokenB
	if bytes.Compare(token1.Address().Bytes(), token0.Address().Bytes()) < 0 {
		token0, token1 = token1, token0
	}
	if token0.Address() == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	key := pairKey{token0.Address(), token1.Address()}
	if _, ok := f.pairs[key]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairExists, token0.Address(), token1.Address())
	}

	addr := PairAddress(f.addr, token0.Address(), token1.Address())
	pair, err := newPair(tx, f, addr, token0, token1)
	if err != nil {
		return nil, err
	}

	// Registration rides the journal: a failure anywhere in the enclosing
	// operation (the router creates pairs mid-deposit) removes the entry
	// along with the pair's liquidity token.
	f.pairs[key] = pair
	f.allPairs = append(f.allPairs, pair)
	index := len(f.allPairs) - 1
	tx.OnRevert(func() {
		delete(f.pairs, key)
		f.allPairs = f.allPairs[:index]
	})

	f.logger.Info("pair created",
		"pair", addr, "token0", token0.Address(), "token1", token1.Address(), "index", index)
	tx.OnCommit(func() {
		f.metrics.pools.Set(float64(index + 1))
		f.sink.Emit(PairCreatedEvent{
			Token0: token0.Address(), Token1: token1.Address(), Pair: addr, Index: index,
		})
	})
	return pair, nil
}

// GetPair looks up the pool for an unordered token pair.
func (f *Factory) GetPair(tokenA, tokenB common.Address) (pair *Pair, ok bool) {
	t0, t1 := SortTokens(tokenA, tokenB)
	f.l.View(func() { pair, ok = f.pairs[pairKey{t0, t1}] })
	return pair, ok
}

// AllPairs returns every pool in creation order.
func (f *Factory) AllPairs() []*Pair {
	var out []*Pair
	f.l.View(func() {
		out = make([]*Pair, len(f.allPairs))
		copy(out, f.allPairs)
	})
	return out
}

// AllPairsLength returns the number of pools ever created.
func (f *Factory) AllPairsLength() (n int) {
	f.l.View(func() { n = len(f.allPairs) })
	return n
}

// PairAt returns the pool at the given creation index.
func (f *Factory) PairAt(index int) (pair *Pair, ok bool) {
	f.l.View(func() {
		if index >= 0 && index < len(f.allPairs) {
			pair, ok = f.allPairs[index], true
		}
	})
	return pair, ok
}

// SetFeeRecipient points the protocol fee at `to`, or disables it with the
// zero address. Fee-admin only.
func (f *Factory) SetFeeRecipient(caller, to common.Address) error {
	return f.l.Exec(func(*ledger.Tx) error {
		if caller != f.feeAdmin {
			return &ForbiddenError{Caller: caller, Admin: f.feeAdmin}
		}
		f.feeRecipient = to
		f.logger.Info("fee recipient set", "to", to)
		return nil
	})
}

// SetFeeAdmin hands the fee authority to `admin`. Handing it to the zero
// address permanently revokes it: no caller can ever match afterwards.
func (f *Factory) SetFeeAdmin(caller, admin common.Address) error {
	return f.l.Exec(func(*ledger.Tx) error {
		if caller != f.feeAdmin {
			return &ForbiddenError{Caller: caller, Admin: f.feeAdmin}
		}
		f.feeAdmin = admin
		f.logger.Info("fee admin set", "to", admin)
		return nil
	})
}

// SortTokens orders two token addresses canonically (ascending bytes).
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenB.Bytes(), tokenA.Bytes()) < 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// PairAddress computes the deterministic pool address for a factory and an
// unordered token pair, before or after the pool exists:
//
//	address(keccak256(0xff ++ factory ++ keccak256(token0 ++ token1) ++ templateHash)[12:])
func PairAddress(factory, tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	var salt [32]byte
	copy(salt[:], crypto.Keccak256(token0.Bytes(), token1.Bytes()))
	return crypto.CreateAddress2(factory, salt, pairTemplateHash.Bytes())
}
