package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"nftmarket/crypto"
	"nftmarket/gateway/middleware"
)

func runContractCommand(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		fs := c.newFlagSet(method)
		contract := fs.String("contract", "", "token contract (nftc1...)")
		if err := parseFlags(fs, args); err != nil {
			return err
		}
		if err := require("contract", *contract); err != nil {
			return err
		}
		return c.invoke(method, c.withCaller(map[string]interface{}{"contract": *contract}))
	}
}

func runCallerCommand(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		if err := parseFlags(c.newFlagSet(method), args); err != nil {
			return err
		}
		return c.invoke(method, c.withCaller(map[string]interface{}{}))
	}
}

func runSetFee(c *cli, args []string) error {
	fs := c.newFlagSet("set-fee")
	rate := fs.String("rate", "", "fee as numerator/denominator or percentage")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := require("rate", *rate); err != nil {
		return err
	}
	return c.invoke("market_setFee", c.withCaller(map[string]interface{}{"rate": *rate}))
}

func runAddressCommand(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		fs := c.newFlagSet(method)
		address := fs.String("address", "", "account address (nft1...)")
		if err := parseFlags(fs, args); err != nil {
			return err
		}
		if err := require("address", *address); err != nil {
			return err
		}
		return c.invoke(method, c.withCaller(map[string]interface{}{"address": *address}))
	}
}

// parseEndTime accepts "+duration", an RFC3339 timestamp or unix seconds.
func parseEndTime(raw string, now time.Time) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "0" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "+") {
		d, err := time.ParseDuration(strings.TrimPrefix(trimmed, "+"))
		if err != nil {
			return "", fmt.Errorf("invalid --end duration: %w", err)
		}
		return strconv.FormatInt(now.Add(d).Unix(), 10), nil
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return strconv.FormatInt(ts.Unix(), 10), nil
	}
	if _, err := strconv.ParseUint(trimmed, 10, 64); err != nil {
		return "", fmt.Errorf("--end must be +duration, RFC3339 or unix seconds")
	}
	return trimmed, nil
}

func runTermsCommand(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		fs := c.newFlagSet(method)
		contract := fs.String("contract", "", "token contract (nftc1...)")
		tokenID := fs.String("token-id", "", "token id")
		buyPrice := fs.String("buy-price", "", "buy-now price")
		startPrice := fs.String("start-price", "", "auction start price")
		end := fs.String("end", "", "auction end as +duration, RFC3339 or unix seconds; empty for fixed price")
		if err := parseFlags(fs, args); err != nil {
			return err
		}
		for name, value := range map[string]string{"contract": *contract, "token-id": *tokenID, "buy-price": *buyPrice} {
			if err := require(name, value); err != nil {
				return err
			}
		}
		endTime, err := parseEndTime(*end, cliNow())
		if err != nil {
			return err
		}
		params := map[string]interface{}{"contract": *contract, "tokenId": *tokenID, "buyPrice": *buyPrice}
		if *startPrice != "" {
			params["startPrice"] = *startPrice
		}
		if endTime != "" {
			params["endTime"] = endTime
		}
		return c.invoke(method, c.withCaller(params))
	}
}

func runRefCommand(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		params, err := c.parseRef(method, args)
		if err != nil {
			return err
		}
		return c.invoke(method, c.withCaller(params))
	}
}

func runQueryRefCommand(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		params, err := c.parseRef(method, args)
		if err != nil {
			return err
		}
		return c.invoke(method, params)
	}
}

func (c *cli) parseRef(name string, args []string) (map[string]interface{}, error) {
	fs := c.newFlagSet(name)
	contract := fs.String("contract", "", "token contract (nftc1...)")
	tokenID := fs.String("token-id", "", "token id")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if err := require("contract", *contract); err != nil {
		return nil, err
	}
	if err := require("token-id", *tokenID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"contract": *contract, "tokenId": *tokenID}, nil
}

func runPaymentCommand(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		fs := c.newFlagSet(method)
		contract := fs.String("contract", "", "token contract (nftc1...)")
		tokenID := fs.String("token-id", "", "token id")
		value := fs.String("value", "", "attached payment")
		if err := parseFlags(fs, args); err != nil {
			return err
		}
		for name, v := range map[string]string{"contract": *contract, "token-id": *tokenID, "value": *value} {
			if err := require(name, v); err != nil {
				return err
			}
		}
		return c.invoke(method, c.withCaller(map[string]interface{}{
			"contract": *contract, "tokenId": *tokenID, "value": *value,
		}))
	}
}

// runBatchCommand reads the items array from a JSON file ("-" for stdin).
func runBatchCommand(method string, withValue bool) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		fs := c.newFlagSet(method)
		itemsPath := fs.String("items", "", "JSON file holding the items array")
		value := fs.String("value", "", "attached payment")
		if err := parseFlags(fs, args); err != nil {
			return err
		}
		if err := require("items", *itemsPath); err != nil {
			return err
		}
		var (
			data []byte
			err  error
		)
		if *itemsPath == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(*itemsPath)
		}
		if err != nil {
			return fmt.Errorf("read items: %w", err)
		}
		var items []map[string]interface{}
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("parse items: %w", err)
		}
		params := map[string]interface{}{"items": items}
		if withValue {
			if err := require("value", *value); err != nil {
				return err
			}
			params["value"] = *value
		}
		return c.invoke(method, c.withCaller(params))
	}
}

func runFlags(c *cli, args []string) error {
	fs := c.newFlagSet("flags")
	contract := fs.String("contract", "", "token contract (nftc1...)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := require("contract", *contract); err != nil {
		return err
	}
	return c.invoke("market_getTokenFlags", *contract)
}

func runNoParams(method string) func(*cli, []string) error {
	return func(c *cli, args []string) error {
		if err := parseFlags(c.newFlagSet(method), args); err != nil {
			return err
		}
		return c.invoke(method)
	}
}

func runBalance(c *cli, args []string) error {
	fs := c.newFlagSet("balance")
	address := fs.String("address", "", "account address; defaults to the profile caller")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	target := *address
	if target == "" {
		target = c.profile.Caller
	}
	if err := require("address", target); err != nil {
		return err
	}
	return c.invoke("market_getBalance", target)
}

func runOrders(c *cli, args []string) error {
	fs := c.newFlagSet("orders")
	contract := fs.String("contract", "", "only orders of this contract")
	owner := fs.String("owner", "", "only orders of this owner")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	params := map[string]interface{}{}
	if *contract != "" {
		params["contract"] = *contract
	}
	if *owner != "" {
		params["owner"] = *owner
	}
	return c.invoke("market_listOrders", params)
}

func runEvents(c *cli, args []string) error {
	fs := c.newFlagSet("events")
	eventType := fs.String("type", "", "event type, e.g. market.token_sold")
	contract := fs.String("contract", "", "only events of this contract")
	orderID := fs.String("order-id", "", "only events of this order id")
	after := fs.Uint64("after", 0, "only events after this sequence")
	limit := fs.Int("limit", 0, "maximum number of events")
	parquetPath := fs.String("parquet", "", "write the events to this parquet file instead of stdout")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	params := map[string]interface{}{}
	for key, value := range map[string]string{"type": *eventType, "contract": *contract, "orderId": *orderID} {
		if value != "" {
			params[key] = value
		}
	}
	if *after > 0 {
		params["after"] = *after
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	if *parquetPath == "" {
		return c.invoke("market_listEvents", params)
	}
	result, err := c.client.call("market_listEvents", params)
	if err != nil {
		return err
	}
	var events []exportedEvent
	if err := json.Unmarshal(result, &events); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}
	if err := writeEventsParquet(*parquetPath, events); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "wrote %d events to %s\n", len(events), *parquetPath)
	return nil
}

func runMint(c *cli, args []string) error {
	fs := c.newFlagSet("mint")
	contract := fs.String("contract", "", "token contract (nftc1...)")
	to := fs.String("to", "", "recipient; defaults to the profile caller")
	tokenID := fs.String("token-id", "", "token id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	recipient := *to
	if recipient == "" {
		recipient = c.profile.Caller
	}
	for name, v := range map[string]string{"contract": *contract, "to": recipient, "token-id": *tokenID} {
		if err := require(name, v); err != nil {
			return err
		}
	}
	return c.invoke("nft_mint", map[string]interface{}{"contract": *contract, "to": recipient, "tokenId": *tokenID})
}

func runApprove(c *cli, args []string) error {
	fs := c.newFlagSet("approve")
	contract := fs.String("contract", "", "token contract (nftc1...)")
	operator := fs.String("operator", "", "operator address; the marketplace escrow account for listings")
	revoke := fs.Bool("revoke", false, "revoke instead of grant")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := require("contract", *contract); err != nil {
		return err
	}
	if err := require("operator", *operator); err != nil {
		return err
	}
	return c.invoke("nft_setApprovalForAll", c.withCaller(map[string]interface{}{
		"contract": *contract, "operator": *operator, "approved": !*revoke,
	}))
}

func runFaucet(c *cli, args []string) error {
	fs := c.newFlagSet("faucet")
	address := fs.String("address", "", "account; defaults to the profile caller")
	amount := fs.String("amount", "", "amount to credit")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	target := *address
	if target == "" {
		target = c.profile.Caller
	}
	if err := require("address", target); err != nil {
		return err
	}
	if err := require("amount", *amount); err != nil {
		return err
	}
	return c.invoke("market_faucet", map[string]interface{}{"address": target, "amount": *amount})
}

func runProfile(c *cli, args []string) error {
	if len(args) == 0 || args[0] == "show" {
		encoder := json.NewEncoder(c.stdout)
		encoder.SetIndent("", "  ")
		shown := c.profile
		if shown.Token != "" {
			shown.Token = "****"
		}
		return encoder.Encode(map[string]interface{}{"path": c.profilePath, "profile": shown})
	}
	if args[0] != "set" {
		return fmt.Errorf("unknown profile subcommand %q (want show or set)", args[0])
	}
	fs := c.newFlagSet("profile set")
	endpoint := fs.String("endpoint", "", "JSON-RPC endpoint")
	token := fs.String("token", "", "bearer token")
	caller := fs.String("caller", "", "acting account (nft1...)")
	if err := parseFlags(fs, args[1:]); err != nil {
		return err
	}
	stored, err := loadProfile(c.profilePath)
	if err != nil {
		return err
	}
	if *endpoint != "" {
		stored.Endpoint = *endpoint
	}
	if *token != "" {
		stored.Token = *token
	}
	if *caller != "" {
		if _, err := crypto.ParseAddress(crypto.MarketPrefix, *caller); err != nil {
			return fmt.Errorf("invalid --caller: %w", err)
		}
		stored.Caller = *caller
	}
	if err := saveProfile(c.profilePath, stored); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "profile saved to %s\n", c.profilePath)
	return nil
}

func runIssueToken(c *cli, args []string) error {
	fs := c.newFlagSet("token")
	secret := fs.String("secret", os.Getenv("MARKET_AUTH_SECRET"), "HMAC secret shared with marketd")
	subject := fs.String("subject", "", "account the token acts for (nft1...)")
	issuer := fs.String("issuer", "", "issuer claim")
	audience := fs.String("audience", "", "audience claim")
	scopes := fs.String("scope", "", "space separated scopes")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := require("subject", *subject); err != nil {
		return err
	}
	if strings.TrimSpace(*secret) == "" {
		prompted, err := promptSecret(c.stderr, "HMAC secret: ")
		if err != nil {
			return err
		}
		*secret = prompted
	}
	raw, err := crypto.ParseAddress(crypto.MarketPrefix, *subject)
	if err != nil {
		return fmt.Errorf("invalid --subject: %w", err)
	}
	signed, err := middleware.IssueToken(*secret, *issuer, *audience,
		crypto.MustNewAddress(crypto.MarketPrefix, raw[:]), strings.Fields(*scopes), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, signed)
	return nil
}
