package uniswapv2

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/defistate/amm-engine-go/ledger"
)

var (
	trader   = common.HexToAddress("0x7000000000000000000000000000000000000001")
	other    = common.HexToAddress("0x7000000000000000000000000000000000000002")
	feeAdmin = common.HexToAddress("0x7000000000000000000000000000000000000003")
	feeTaker = common.HexToAddress("0x7000000000000000000000000000000000000004")
)

// testEngine wires a full engine against a manual clock and a memory sink.
type testEngine struct {
	ledger  *ledger.Ledger
	clock   *ledger.ManualClock
	wnative *ledger.WNative
	factory *Factory
	router  *Router
	sink    *MemorySink

	tokenA *ledger.Token
	tokenB *ledger.Token
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	clock := ledger.NewManualClock(1_700_000_000)
	l := ledger.NewLedger(big.NewInt(1), clock)
	wnative, err := l.NewWNative("Wrapped Native", "WNAT")
	require.NoError(t, err)

	sink := &MemorySink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	factory, err := NewFactory(FactoryConfig{
		Ledger:   l,
		FeeAdmin: feeAdmin,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Sink:     sink,
	})
	require.NoError(t, err)

	router, err := NewRouter(RouterConfig{
		Factory: factory,
		WNative: wnative,
		Logger:  logger,
	})
	require.NoError(t, err)

	tokenA, err := l.NewToken("Token A", "TKA", 18)
	require.NoError(t, err)
	tokenB, err := l.NewToken("Token B", "TKB", 18)
	require.NoError(t, err)
	funding := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	for _, token := range []*ledger.Token{tokenA, tokenB} {
		require.NoError(t, token.Mint(trader, funding))
		require.NoError(t, token.Mint(other, funding))
	}

	return &testEngine{
		ledger:  l,
		clock:   clock,
		wnative: wnative,
		factory: factory,
		router:  router,
		sink:    sink,
		tokenA:  tokenA,
		tokenB:  tokenB,
	}
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "failed to parse big.Int %q", s)
	return n
}

// createPair makes the tokenA/tokenB pool and reports whether tokenA ended
// up as the pool's token0.
func (e *testEngine) createPair(t *testing.T) (*Pair, bool) {
	t.Helper()
	pair, err := e.factory.CreatePair(e.tokenA, e.tokenB)
	require.NoError(t, err)
	return pair, pair.Token0().Address() == e.tokenA.Address()
}

// seed transfers amounts into the pool and mints the first liquidity for
// trader. amountA/amountB are in tokenA/tokenB terms regardless of sort
// order.
func (e *testEngine) seed(t *testing.T, pair *Pair, amountA, amountB *big.Int) *big.Int {
	t.Helper()
	require.NoError(t, e.tokenA.Transfer(trader, pair.Address(), amountA))
	require.NoError(t, e.tokenB.Transfer(trader, pair.Address(), amountB))
	liquidity, err := pair.Mint(trader, trader)
	require.NoError(t, err)
	return liquidity
}

// orient maps tokenA/tokenB amounts onto the pool's token0/token1 order.
func orient(aFirst bool, amountA, amountB *big.Int) (*big.Int, *big.Int) {
	if aFirst {
		return amountA, amountB
	}
	return amountB, amountA
}

func eventsByName(events []Event, name string) []Event {
	var out []Event
	for _, ev := range events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}
