package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"lsdchain/cmd/internal/passphrase"
	"lsdchain/core/types"
	"lsdchain/crypto"
	"lsdchain/rpc"
)

const (
	rpcURLEnv       = "LSD_RPC_URL"
	keyPassEnv      = "LSD_KEY_PASS"
	defaultRPCURL   = "http://localhost:8545"
	defaultKeyFile  = "wallet.json"
	requestDeadline = 30 * time.Second
)

// cli carries the collaborators of one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	client *rpc.Client
	// passphrase resolves the keystore secret; confirm is set when a new key
	// is being written.
	passphrase func(confirm bool) (string, error)
	scrypt     crypto.ScryptParams
}

func main() {
	args, endpoint, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	c := &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		client: rpc.NewClient(endpoint, nil),
		passphrase: func(confirm bool) (string, error) {
			src := passphrase.NewSource(keyPassEnv)
			if confirm {
				src = src.WithConfirmation()
			}
			return src.Get()
		},
		scrypt: crypto.StandardScrypt,
	}
	os.Exit(c.run(args))
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return defaultRPCURL
}

func applyGlobalFlags(args []string) ([]string, string, error) {
	endpoint := defaultRPCEndpoint()
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, "", fmt.Errorf("missing value for --rpc")
			}
			endpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			endpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, endpoint, nil
}

func (c *cli) run(args []string) int {
	if len(args) < 1 {
		c.usage()
		return 2
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestDeadline)
	defer cancel()

	var err error
	switch args[0] {
	case "generate-key":
		err = c.generateKey(args[1:])
	case "address":
		err = c.address(args[1:])
	case "stake":
		err = c.submit(ctx, types.CallTypeStake, args[1:])
	case "unstake":
		err = c.submit(ctx, types.CallTypeUnstake, args[1:])
	case "transfer":
		err = c.submit(ctx, types.CallTypeTransfer, args[1:])
	case "balance":
		err = c.balance(ctx, args[1:])
	case "staked":
		err = c.staked(ctx, args[1:])
	case "totals":
		err = c.printJSON(c.client.Totals(ctx))
	case "token-info":
		err = c.printJSON(c.client.TokenInfo(ctx))
	case "history":
		err = c.history(ctx, args[1:])
	case "help", "-h", "--help":
		c.usage()
		return 0
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", args[0])
		c.usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) {
			return 3
		}
		return 1
	}
	return 0
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, `Usage: lsd-cli [--rpc URL] <command> [args]

Commands:
  generate-key [--key wallet.json]          Create an encrypted keystore
  address [--key wallet.json]               Print the address of a keystore
  stake <amount> [--key wallet.json]        Lock native value and mint receipts
  unstake <amount> [--key wallet.json]      Burn receipts and release native value
  transfer <to> <amount> [--key wallet.json]
  balance <address>                         Receipt and native balances
  staked <address>                          Staked amount and stake time
  totals                                    Total staked and receipt supply
  token-info                                Receipt token metadata
  history <address> [--limit N]             Indexed events of an account`)
}

func keyFlags(name string, args []string) (*flag.FlagSet, *string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	key := fs.String("key", defaultKeyFile, "Path to the keystore file")
	if err := fs.Parse(reorder(args)); err != nil {
		return nil, nil, err
	}
	return fs, key, nil
}

// reorder moves flags ahead of positional arguments so "stake 10 --key k"
// parses like "stake --key k 10".
func reorder(args []string) []string {
	flags := make([]string, 0, len(args))
	positional := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if !strings.Contains(arg, "=") && i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positional = append(positional, arg)
	}
	return append(flags, positional...)
}

func (c *cli) generateKey(args []string) error {
	_, keyFile, err := keyFlags("generate-key", args)
	if err != nil {
		return err
	}
	pass, err := c.passphrase(true)
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.WriteKeystore(*keyFile, key, pass, c.scrypt); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Generated new key and saved to %s\n", *keyFile)
	fmt.Fprintf(c.stdout, "Address: %s\n", key.PubKey().Address().String())
	return nil
}

func (c *cli) loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := c.passphrase(false)
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func (c *cli) address(args []string) error {
	_, keyFile, err := keyFlags("address", args)
	if err != nil {
		return err
	}
	key, err := c.loadKey(*keyFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, key.PubKey().Address().String())
	return nil
}

func (c *cli) submit(ctx context.Context, ct types.CallType, args []string) error {
	fs, keyFile, err := keyFlags(ct.String(), args)
	if err != nil {
		return err
	}
	rest := fs.Args()
	var to []byte
	if ct == types.CallTypeTransfer {
		if len(rest) != 2 {
			return fmt.Errorf("usage: transfer <to> <amount>")
		}
		recipient, err := crypto.ParseIdentity(rest[0])
		if err != nil {
			return fmt.Errorf("invalid recipient: %w", err)
		}
		to = recipient[:]
		rest = rest[1:]
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: %s <amount>", ct)
	}
	amount, err := strconv.ParseUint(rest[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", rest[0])
	}

	key, err := c.loadKey(*keyFile)
	if err != nil {
		return err
	}
	sender := key.PubKey().Address().String()
	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		return err
	}
	nonce, err := c.client.Nonce(ctx, sender)
	if err != nil {
		return err
	}
	call := &types.Call{ChainID: chainID, Type: ct, Nonce: nonce, To: to}
	if ct == types.CallTypeStake {
		call.Value = amount
	} else {
		call.Amount = amount
	}
	if err := call.Sign(key.PrivateKey); err != nil {
		return err
	}
	result, err := c.client.SendCall(ctx, call)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s of %d applied in call %s\n", ct, amount, result.Hash)
	for _, evt := range result.Events {
		fmt.Fprintf(c.stdout, "  %s\n", evt.Type)
	}
	return nil
}

func (c *cli) balance(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: balance <address>")
	}
	receipts, err := c.client.BalanceOf(ctx, args[0])
	if err != nil {
		return err
	}
	native, err := c.client.NativeBalance(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Address:  %s\n", args[0])
	fmt.Fprintf(c.stdout, "  Receipt: %d\n", receipts)
	fmt.Fprintf(c.stdout, "  Native:  %d\n", native)
	return nil
}

func (c *cli) staked(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: staked <address>")
	}
	pos, err := c.client.Position(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Address: %s\n", args[0])
	fmt.Fprintf(c.stdout, "  Staked: %d\n", pos.Amount)
	if pos.StakedAt != nil {
		fmt.Fprintf(c.stdout, "  Since:  %s\n", time.Unix(*pos.StakedAt, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

func (c *cli) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "Maximum number of records")
	if err := fs.Parse(reorder(args)); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: history <address> [--limit N]")
	}
	records, err := c.client.History(ctx, fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Fprintf(c.stdout, "%s  %-16s amount=%s", time.Unix(rec.Timestamp, 0).UTC().Format(time.RFC3339), rec.Type, rec.Amount)
		if rec.Counterparty != "" {
			fmt.Fprintf(c.stdout, " counterparty=%s", rec.Counterparty)
		}
		fmt.Fprintln(c.stdout)
	}
	return nil
}

func (c *cli) printJSON(v interface{}, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
