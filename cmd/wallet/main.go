// Command wallet is a minimal Ethereum wallet for agents on Base mainnet and
// Base Sepolia. The private key lives in a local file; everything on-chain
// goes through go-ethereum.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"hermit-skills/internal/config"
	"hermit-skills/internal/wallet"
)

const usageText = `Usage: wallet <command> [args]

Commands:
  generate                         Generate a new wallet
  address [--network N]            Show wallet address
  balance [--network N]            Check balance
  send <to> <amount_eth> [--network N]   Send ETH

Networks: base, base-sepolia (default)
`

const sendTimeout = 3 * time.Minute

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Print(usageText)
		return
	}
	command := args[0]

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.LoadWallet()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	networkName := cfg.Network
	if v := flagValue(args, "--network"); v != "" {
		networkName = v
	}
	positional := positionalArgs(args[1:])

	switch command {
	case "generate":
		runGenerate(cfg.KeyFile)
	case "address":
		runAddress(cfg.KeyFile, networkName)
	case "balance":
		runBalance(cfg.KeyFile, networkName, logger)
	case "send":
		runSend(cfg.KeyFile, networkName, positional, logger)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}
}

func runGenerate(keyFile string) {
	addr, err := wallet.GenerateKey(keyFile)
	if err != nil {
		if errors.Is(err, wallet.ErrKeyExists) {
			fmt.Fprintf(os.Stderr, "Error: key already exists at %s\n", keyFile)
			fmt.Fprintln(os.Stderr, "Delete it first if you want to generate a new one.")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Generated new wallet!")
	fmt.Printf("Address: %s\n", addr.Hex())
	fmt.Printf("Private key saved to: %s\n", keyFile)
	fmt.Println()
	fmt.Println("IMPORTANT: Back up your private key. If lost, funds are unrecoverable.")
	fmt.Println("Get testnet ETH: https://www.alchemy.com/faucets/base-sepolia")
}

func runAddress(keyFile, networkName string) {
	network := mustNetwork(networkName)
	key, err := wallet.LoadKey(keyFile)
	if err != nil {
		fatalKeyError(err, keyFile)
	}

	addr := wallet.AddressOf(key)
	fmt.Printf("Address: %s\n", addr.Hex())
	fmt.Printf("Explorer: %s\n", network.AddressURL(addr))
}

func runBalance(keyFile, networkName string, logger *slog.Logger) {
	network := mustNetwork(networkName)
	ctx := context.Background()

	w, err := wallet.Dial(ctx, network, keyFile, logger)
	if err != nil {
		fatalKeyError(err, keyFile)
	}
	defer w.Close()

	balance, err := w.Balance(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Network: %s\n", network.Name)
	fmt.Printf("Address: %s\n", w.Address().Hex())
	fmt.Printf("Balance: %s ETH\n", wallet.FormatEther(balance))
}

func runSend(keyFile, networkName string, args []string, logger *slog.Logger) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: wallet send <to_address> <amount_eth>")
		os.Exit(1)
	}
	to, amountEth := args[0], args[1]

	amount, err := wallet.ParseEther(amountEth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	network := mustNetwork(networkName)
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	w, err := wallet.Dial(ctx, network, keyFile, logger)
	if err != nil {
		fatalKeyError(err, keyFile)
	}
	defer w.Close()

	fmt.Printf("Sending %s ETH to %s on %s...\n", amountEth, to, network.Name)
	receipt, err := w.Send(ctx, to, amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Transaction confirmed!")
	fmt.Printf("Block: %d\n", receipt.BlockNumber)
	fmt.Printf("TX Hash: %s\n", receipt.TxHash.Hex())
	fmt.Printf("Explorer: %s\n", network.TxURL(receipt.TxHash))
}

func mustNetwork(name string) wallet.Network {
	network, err := wallet.NetworkByName(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return network
}

func fatalKeyError(err error, keyFile string) {
	if errors.Is(err, wallet.ErrNoKey) {
		fmt.Fprintf(os.Stderr, "Error: no private key found at %s\n", keyFile)
		fmt.Fprintln(os.Stderr, "Generate one with: wallet generate")
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func positionalArgs(args []string) []string {
	var out []string
	skipNext := false
	for _, a := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if a == "--network" {
			skipNext = true
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}
