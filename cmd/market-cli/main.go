package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

var cliNow = time.Now

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	stdout      io.Writer
	stderr      io.Writer
	profile     Profile
	profilePath string
	client      *rpcClient
}

type command struct {
	summary string
	run     func(c *cli, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"register":          {"register a token contract (admin)", runContractCommand("market_registerToken")},
		"enable-token":      {"enable orders for a contract (admin)", runContractCommand("market_enableTokenOrders")},
		"disable-token":     {"disable orders for a contract (admin)", runContractCommand("market_disableTokenOrders")},
		"enable-orders":     {"enable order creation globally (admin)", runCallerCommand("market_enableOrders")},
		"disable-orders":    {"disable order creation globally (admin)", runCallerCommand("market_disableOrders")},
		"set-fee":           {"set the platform fee, e.g. --rate 25/1000 (admin)", runSetFee},
		"set-fee-collector": {"set the fee collector (admin)", runAddressCommand("market_setFeeCollector")},
		"set-admin":         {"hand admin rights to another account (admin)", runAddressCommand("market_setAdmin")},
		"create":            {"list a token at a fixed price or as an auction", runTermsCommand("market_create")},
		"update":            {"change the terms of an order without bids", runTermsCommand("market_update")},
		"cancel":            {"cancel an order without bids", runRefCommand("market_cancel")},
		"complete":          {"settle an auction after its end time", runRefCommand("market_complete")},
		"bid":               {"bid on an auction", runPaymentCommand("market_bid")},
		"buy":               {"buy a fixed-price order", runPaymentCommand("market_buy")},
		"create-many":       {"create orders from a JSON items file", runBatchCommand("market_createMany", false)},
		"update-many":       {"update orders from a JSON items file", runBatchCommand("market_updateMany", false)},
		"cancel-many":       {"cancel orders from a JSON items file", runBatchCommand("market_cancelMany", false)},
		"complete-many":     {"complete auctions from a JSON items file", runBatchCommand("market_completeMany", false)},
		"bid-many":          {"bid on several auctions, --value must equal the sum", runBatchCommand("market_bidMany", true)},
		"buy-many":          {"buy several orders, --value must equal the sum", runBatchCommand("market_buyMany", true)},
		"order":             {"show an order", runQueryRefCommand("market_getOrder")},
		"listed":            {"report whether a token is listed", runQueryRefCommand("market_tokenIsListed")},
		"flags":             {"show the registry flags of a contract", runFlags},
		"fee":               {"show the fee schedule", runNoParams("market_getFee")},
		"status":            {"show admin, fee and global order status", runNoParams("market_getStatus")},
		"balance":           {"show the currency balance of an account", runBalance},
		"orders":            {"list open orders", runOrders},
		"events":            {"list journaled events", runEvents},
		"mint":              {"mint a token in a dev collection", runMint},
		"approve":           {"approve or revoke an operator for all tokens (dev)", runApprove},
		"owner":             {"show the owner of a token (dev)", runQueryRefCommand("nft_ownerOf")},
		"faucet":            {"credit test currency (dev)", runFaucet},
		"profile":           {"show or update the CLI profile", runProfile},
		"token":             {"issue a bearer token for an account", runIssueToken},
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		endpoint    string
		token       string
		caller      string
		profilePath string
	)
	global := flag.NewFlagSet("market-cli", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.StringVar(&endpoint, "rpc", "", "JSON-RPC endpoint (overrides the profile)")
	global.StringVar(&token, "token", "", "bearer token (overrides the profile)")
	global.StringVar(&caller, "caller", "", "acting account when the daemon does not require tokens")
	global.StringVar(&profilePath, "profile", defaultProfilePath(), "profile file")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}

	profile, err := loadProfile(profilePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if endpoint = strings.TrimSpace(endpoint); endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("MARKET_RPC_URL"))
	}
	if endpoint != "" {
		profile.Endpoint = endpoint
	}
	if token != "" {
		profile.Token = token
	}
	if caller != "" {
		profile.Caller = caller
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		printUsage(stderr)
		return 2
	}
	c := &cli{
		stdout:      stdout,
		stderr:      stderr,
		profile:     profile,
		profilePath: profilePath,
		client:      newRPCClient(profile.Endpoint, profile.Token),
	}
	if err := cmd.run(c, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: market-cli [--rpc URL] [--token JWT] [--caller nft1...] [--profile FILE] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].summary)
	}
}

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected positional arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// invoke calls method and pretty prints its result.
func (c *cli) invoke(method string, params ...interface{}) error {
	result, err := c.client.call(method, params...)
	if err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		_, werr := fmt.Fprintln(c.stdout, string(result))
		return werr
	}
	encoder := json.NewEncoder(c.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(pretty)
}

// withCaller adds the profile caller to params. Authenticated daemons derive
// the caller from the token so it is only sent when set.
func (c *cli) withCaller(params map[string]interface{}) map[string]interface{} {
	if c.profile.Caller != "" {
		params["caller"] = c.profile.Caller
	}
	return params
}

func require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
