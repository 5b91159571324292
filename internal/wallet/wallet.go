// Package wallet is a minimal Ethereum wallet for agents on Base. All chain
// interaction, key handling, signing, and broadcast is delegated to
// go-ethereum; this package only glues it to a key file and two networks.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// Plain ETH transfer gas.
const transferGas = 21000

var (
	// ErrNoKey indicates no private key file exists yet.
	ErrNoKey = errors.New("wallet: no private key file")
	// ErrKeyExists indicates generate would overwrite an existing key.
	ErrKeyExists = errors.New("wallet: key file already exists")
)

// Network is a supported chain.
type Network struct {
	Name     string
	RPC      string
	Explorer string
	ChainID  int64
}

var networks = map[string]Network{
	"base": {
		Name:     "base",
		RPC:      "https://mainnet.base.org",
		ChainID:  8453,
		Explorer: "https://basescan.org",
	},
	"base-sepolia": {
		Name:     "base-sepolia",
		RPC:      "https://sepolia.base.org",
		ChainID:  84532,
		Explorer: "https://sepolia.basescan.org",
	},
}

// NetworkByName looks up a supported network.
func NetworkByName(name string) (Network, error) {
	n, ok := networks[name]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (available: %s)", name, strings.Join(NetworkNames(), ", "))
	}
	return n, nil
}

// NetworkNames lists the supported network names.
func NetworkNames() []string {
	return []string{"base", "base-sepolia"}
}

// LoadKey reads a hex-encoded secp256k1 private key (0x prefix optional).
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoKey, path)
		}
		return nil, fmt.Errorf("read key file: %w", err)
	}

	keyHex := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// GenerateKey creates a new private key at path with restricted permissions.
// It refuses to overwrite an existing key: losing one loses the funds.
func GenerateKey(path string) (common.Address, error) {
	if _, err := os.Stat(path); err == nil {
		return common.Address{}, fmt.Errorf("%w: %s", ErrKeyExists, path)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return common.Address{}, fmt.Errorf("create secrets directory: %w", err)
	}
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))
	if err := os.WriteFile(path, []byte(keyHex), 0o600); err != nil {
		return common.Address{}, fmt.Errorf("write key file: %w", err)
	}

	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// AddressOf derives the account address for a private key.
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Wallet is a connected wallet on one network.
type Wallet struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	logger  *slog.Logger
	network Network
}

// Dial connects to the network's RPC endpoint and loads the key file.
func Dial(ctx context.Context, network Network, keyPath string, logger *slog.Logger) (*Wallet, error) {
	key, err := LoadKey(keyPath)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, network.RPC)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", network.RPC, err)
	}

	return &Wallet{client: client, key: key, logger: logger, network: network}, nil
}

// Close releases the RPC connection.
func (w *Wallet) Close() { w.client.Close() }

// Network reports the connected network.
func (w *Wallet) Network() Network { return w.network }

// Address is the wallet's account address.
func (w *Wallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

// Balance fetches the current balance in wei.
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	balance, err := w.client.BalanceAt(ctx, w.Address(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	return balance, nil
}

// Send transfers amount (in wei) to a hex address, waits for the transaction
// to mine, and returns the receipt. It fails up front if the balance does
// not cover value plus gas.
func (w *Wallet) Send(ctx context.Context, to string, amount *big.Int) (*types.Receipt, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("invalid address %q", to)
	}
	toAddr := common.HexToAddress(to)

	balance, err := w.Balance(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.Address())
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch gas price: %w", err)
	}

	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(transferGas))
	totalCost := new(big.Int).Add(amount, gasCost)
	if balance.Cmp(totalCost) < 0 {
		return nil, fmt.Errorf("insufficient balance: have %s ETH, need %s ETH including gas",
			FormatEther(balance), FormatEther(totalCost))
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    amount,
		Gas:      transferGas,
		GasPrice: gasPrice,
	})

	chainID := big.NewInt(w.network.ChainID)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}

	w.logger.Info("Transaction sent",
		"tx_hash", signed.Hash().Hex(),
		"to", toAddr.Hex(),
		"value_wei", amount.String(),
		"network", w.network.Name)

	receipt, err := bind.WaitMined(ctx, w.client, signed)
	if err != nil {
		return nil, fmt.Errorf("wait for confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted in block %d", signed.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

// TxURL builds an explorer link for a transaction hash.
func (n Network) TxURL(hash common.Hash) string {
	return fmt.Sprintf("%s/tx/%s", n.Explorer, hash.Hex())
}

// AddressURL builds an explorer link for an address.
func (n Network) AddressURL(addr common.Address) string {
	return fmt.Sprintf("%s/address/%s", n.Explorer, addr.Hex())
}

// ParseEther converts a decimal ETH amount to wei. Negative and malformed
// amounts are rejected.
func ParseEther(amount string) (*big.Int, error) {
	f, ok := new(big.Float).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if f.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", amount)
	}

	wei, _ := new(big.Float).Mul(f, big.NewFloat(params.Ether)).Int(nil)
	return wei, nil
}

// FormatEther renders wei as a decimal ETH string with trailing zeros trimmed.
func FormatEther(wei *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	s := f.Text('f', 18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "0"
	}
	return s
}
