package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/defistate/amm-engine-go/ledger"
	"github.com/defistate/amm-engine-go/protocols/uniswapv2"
	"github.com/defistate/amm-engine-go/storage"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// Console bundles the in-process engine with the named demo accounts the
// operator acts through.
type Console struct {
	ledger   *ledger.Ledger
	wnative  *ledger.WNative
	factory  *uniswapv2.Factory
	router   *uniswapv2.Router
	accounts map[string]common.Address
	tokens   map[string]*ledger.Token
}

func main() {
	flags := pflag.NewFlagSet("console", pflag.ExitOnError)
	cfgFile := flags.String("config", "", "Path to the configuration file.")
	flags.Uint64("chain-id", 1, "Chain identifier baked into permit domains.")
	flags.String("fee-admin", "", "Fee admin address (hex); defaults to the operator account.")
	flags.String("event-journal", "./data/events.jsonl", "JSONL file receiving committed events.")
	flags.String("log-file", "console.log", "Structured log destination.")
	flags.String("log-level", "info", "Log level: debug, info, warn, error.")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := LoadConfig(*cfgFile, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, Red+"Failed to load configuration: "+err.Error()+Reset)
		os.Exit(1)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	level, err := logLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, Red+err.Error()+Reset)
		os.Exit(1)
	}
	rootLogger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check " + cfg.LogFile + " for details." + Reset)
		os.Exit(1)
	}

	console, err := newConsole(cfg, rootLogger)
	if err != nil {
		rootLogger.Error("Failed to initialize engine", "error", err)
		closeApp()
	}

	fmt.Println(Green + "Starting AMM Engine Console..." + Reset)
	fmt.Println("Logs are being written to '" + cfg.LogFile + "'")
	console.run()
}

func newConsole(cfg Config, logger *slog.Logger) (*Console, error) {
	l := ledger.NewLedger(new(big.Int).SetUint64(cfg.ChainID), nil)

	wnative, err := l.NewWNative("Wrapped Native", "WNAT")
	if err != nil {
		return nil, err
	}

	accounts := map[string]common.Address{
		"operator": deriveAccount("operator"),
		"alice":    deriveAccount("alice"),
		"bob":      deriveAccount("bob"),
	}
	feeAdmin := accounts["operator"]
	if cfg.FeeAdmin != "" {
		feeAdmin = common.HexToAddress(cfg.FeeAdmin)
	}

	funding := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	for _, addr := range accounts {
		if err := l.CreditNative(addr, funding); err != nil {
			return nil, err
		}
	}

	sink := storage.NewSink(storage.NewJsonlStorage(cfg.EventJournal), logger.With("component", "event-journal"))
	factory, err := uniswapv2.NewFactory(uniswapv2.FactoryConfig{
		Ledger:   l,
		FeeAdmin: feeAdmin,
		Logger:   logger.With("component", "factory"),
		Registry: prometheus.DefaultRegisterer,
		Sink:     sink,
	})
	if err != nil {
		return nil, err
	}
	router, err := uniswapv2.NewRouter(uniswapv2.RouterConfig{
		Factory: factory,
		WNative: wnative,
		Logger:  logger.With("component", "router"),
	})
	if err != nil {
		return nil, err
	}

	return &Console{
		ledger:   l,
		wnative:  wnative,
		factory:  factory,
		router:   router,
		accounts: accounts,
		tokens:   map[string]*ledger.Token{"WNAT": wnative.Token()},
	}, nil
}

// deriveAccount gives each demo account a stable address from its name.
func deriveAccount(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("amm-engine/account/" + name))[12:])
}

func (c *Console) run() {
	reader := bufio.NewReader(os.Stdin)
	for {
		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)

		if input == "q" {
			fmt.Println(Yellow + "Exiting..." + Reset)
			return
		}
		c.handleCommand(input, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "AMM ENGINE CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Deploy Token\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Create Pair\n", Cyan, Reset)
	fmt.Printf(" %s4.%s Add Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s5.%s Remove Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Swap %s(exact in)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s7.%s Pools\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Cumulative Prices\n", Cyan, Reset)
	fmt.Printf(" %s9.%s Dump Snapshot %s(JSON)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *Console) handleCommand(input string, reader *bufio.Reader) {
	switch input {
	case "1":
		c.printStatus()
	case "2":
		c.deployToken(reader)
	case "3":
		c.createPair(reader)
	case "4":
		c.addLiquidity(reader)
	case "5":
		c.removeLiquidity(reader)
	case "6":
		c.swap(reader)
	case "7":
		c.printPools()
	case "8":
		c.printPrices(reader)
	case "9":
		c.dumpSnapshot()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func (c *Console) printStatus() {
	header("STATUS")
	fmt.Printf(" %s%-12s%s %d\n", Gray, "Chain ID:", Reset, c.ledger.ChainID())
	fmt.Printf(" %s%-12s%s %d\n", Gray, "Timestamp:", Reset, c.ledger.Timestamp())
	fmt.Printf(" %s%-12s%s %s\n", Gray, "Factory:", Reset, c.factory.Address())
	fmt.Printf(" %s%-12s%s %s\n", Gray, "Router:", Reset, c.router.Address())
	fmt.Printf(" %s%-12s%s %s\n", Gray, "Fee admin:", Reset, c.factory.FeeAdmin())
	fmt.Printf(" %s%-12s%s %d\n", Gray, "Pools:", Reset, c.factory.AllPairsLength())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "\nACCOUNT\tADDRESS\tNATIVE\t")
	fmt.Fprintln(w, "-------\t-------\t------\t")
	for name, addr := range c.accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", name, addr, c.ledger.NativeBalanceOf(addr))
	}
	w.Flush()
}

func (c *Console) deployToken(reader *bufio.Reader) {
	name := prompt(reader, "Token name: ")
	symbol := strings.ToUpper(prompt(reader, "Symbol: "))
	if name == "" || symbol == "" {
		fmt.Println(Red + "Name and symbol are required." + Reset)
		return
	}
	token, err := c.ledger.NewToken(name, symbol, 18)
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	// Everyone gets a starting balance so liquidity and swaps work out of
	// the box.
	supply := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	for _, addr := range c.accounts {
		if err := token.Mint(addr, supply); err != nil {
			fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
			return
		}
	}
	c.tokens[symbol] = token
	fmt.Printf(Green+"Deployed %s at %s; funded all accounts.%s\n", symbol, token.Address(), Reset)
}

func (c *Console) createPair(reader *bufio.Reader) {
	tokenA := c.readToken(reader, "Token A symbol: ")
	tokenB := c.readToken(reader, "Token B symbol: ")
	if tokenA == nil || tokenB == nil {
		return
	}
	fmt.Printf(Gray+"Predicted address: %s%s\n",
		uniswapv2.PairAddress(c.factory.Address(), tokenA.Address(), tokenB.Address()), Reset)
	pair, err := c.factory.CreatePair(tokenA, tokenB)
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Pair created at %s%s\n", pair.Address(), Reset)
}

func (c *Console) addLiquidity(reader *bufio.Reader) {
	caller, ok := c.readAccount(reader)
	if !ok {
		return
	}
	tokenA := c.readToken(reader, "Token A symbol: ")
	tokenB := c.readToken(reader, "Token B symbol: ")
	if tokenA == nil || tokenB == nil {
		return
	}
	amountA := readAmount(reader, "Amount A: ", tokenA.Decimals())
	amountB := readAmount(reader, "Amount B: ", tokenB.Decimals())
	if amountA == nil || amountB == nil {
		return
	}
	if err := c.approveRouter(caller, tokenA, amountA); err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	if err := c.approveRouter(caller, tokenB, amountB); err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	gotA, gotB, liquidity, err := c.router.AddLiquidity(
		caller, tokenA, tokenB, amountA, amountB,
		new(big.Int), new(big.Int), caller, c.deadline())
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Deposited %s / %s, minted %s shares.%s\n", gotA, gotB, liquidity, Reset)
}

func (c *Console) removeLiquidity(reader *bufio.Reader) {
	caller, ok := c.readAccount(reader)
	if !ok {
		return
	}
	tokenA := c.readToken(reader, "Token A symbol: ")
	tokenB := c.readToken(reader, "Token B symbol: ")
	if tokenA == nil || tokenB == nil {
		return
	}
	pair, found := c.factory.GetPair(tokenA.Address(), tokenB.Address())
	if !found {
		fmt.Println(Red + "[NOT FOUND] No pool for that pair." + Reset)
		return
	}
	shares := pair.LiquidityToken()
	fmt.Printf(Gray+"Held shares: %s%s\n", shares.BalanceOf(caller), Reset)
	liquidity := readAmount(reader, "Shares to burn: ", 18)
	if liquidity == nil {
		return
	}
	if err := shares.Approve(caller, c.router.Address(), liquidity); err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	amountA, amountB, err := c.router.RemoveLiquidity(
		caller, tokenA, tokenB, liquidity,
		new(big.Int), new(big.Int), caller, c.deadline())
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Redeemed %s / %s.%s\n", amountA, amountB, Reset)
}

func (c *Console) swap(reader *bufio.Reader) {
	caller, ok := c.readAccount(reader)
	if !ok {
		return
	}
	tokenIn := c.readToken(reader, "Token in: ")
	tokenOut := c.readToken(reader, "Token out: ")
	if tokenIn == nil || tokenOut == nil {
		return
	}
	amountIn := readAmount(reader, "Amount in: ", tokenIn.Decimals())
	if amountIn == nil {
		return
	}
	if err := c.approveRouter(caller, tokenIn, amountIn); err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	amountOut, err := c.router.SwapExactTokensForTokens(
		caller, amountIn, new(big.Int), tokenIn, tokenOut, caller, c.deadline())
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Swapped %s %s for %s %s.%s\n",
		amountIn, tokenIn.Symbol(), amountOut, tokenOut.Symbol(), Reset)
}

func (c *Console) printPools() {
	header("POOLS")
	views := c.factory.Snapshot()
	if len(views) == 0 {
		fmt.Println(Yellow + "[INFO] No pools yet." + Reset)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ID\tPAIR\tRESERVE0\tRESERVE1\tSUPPLY\t")
	fmt.Fprintln(w, "--\t----\t--------\t--------\t------\t")
	for _, v := range views {
		fmt.Fprintf(w, "%d\t%s/%s\t%s\t%s\t%s\t\n",
			v.ID, c.symbolFor(v.Token0), c.symbolFor(v.Token1), v.Reserve0, v.Reserve1, v.TotalSupply)
	}
	w.Flush()
}

func (c *Console) printPrices(reader *bufio.Reader) {
	tokenA := c.readToken(reader, "Token A symbol: ")
	tokenB := c.readToken(reader, "Token B symbol: ")
	if tokenA == nil || tokenB == nil {
		return
	}
	pair, found := c.factory.GetPair(tokenA.Address(), tokenB.Address())
	if !found {
		fmt.Println(Red + "[NOT FOUND] No pool for that pair." + Reset)
		return
	}
	price0, price1 := pair.PriceCumulatives()
	_, _, tsLast := pair.Reserves()

	header("CUMULATIVE PRICES")
	fmt.Printf(" %s%-20s%s %s\n", Gray, "Price0Cumulative:", Reset, price0.Dec())
	fmt.Printf(" %s%-20s%s %s\n", Gray, "Price1Cumulative:", Reset, price1.Dec())
	fmt.Printf(" %s%-20s%s %d\n", Gray, "Last update:", Reset, tsLast)
}

func (c *Console) dumpSnapshot() {
	views := c.factory.Snapshot()
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
		return
	}
	header("SNAPSHOT")
	fmt.Println(string(data))
}

// --- HELPERS ---

func (c *Console) approveRouter(caller common.Address, token *ledger.Token, amount *big.Int) error {
	return token.Approve(caller, c.router.Address(), amount)
}

func (c *Console) deadline() uint64 {
	return c.ledger.Timestamp() + 300
}

func (c *Console) symbolFor(addr common.Address) string {
	token, ok := c.ledger.TokenAt(addr)
	if !ok {
		return addr.Hex()[:10]
	}
	return token.Symbol()
}

func (c *Console) readAccount(reader *bufio.Reader) (common.Address, bool) {
	name := strings.ToLower(prompt(reader, "Account (operator/alice/bob): "))
	addr, ok := c.accounts[name]
	if !ok {
		fmt.Println(Red + "Unknown account." + Reset)
		return common.Address{}, false
	}
	return addr, true
}

func (c *Console) readToken(reader *bufio.Reader, label string) *ledger.Token {
	symbol := strings.ToUpper(prompt(reader, label))
	token, ok := c.tokens[symbol]
	if !ok {
		fmt.Println(Red + "[NOT FOUND] Unknown token symbol." + Reset)
		return nil
	}
	return token
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(Bold + label + Reset)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// readAmount parses a decimal amount and scales it by the token's decimals.
func readAmount(reader *bufio.Reader, label string, decimals uint8) *big.Int {
	input := prompt(reader, label)
	amountFloat, ok := new(big.Float).SetString(input)
	if !ok || amountFloat.Sign() < 0 {
		fmt.Println(Red + "Invalid amount format." + Reset)
		return nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	raw := new(big.Float).Mul(amountFloat, new(big.Float).SetInt(scale))
	rawInt, _ := raw.Int(nil)
	return rawInt
}
