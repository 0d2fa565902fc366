package ledger

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// registryABI is the minimal ABI of the PropertyRegistry contract.
const registryABI = `[
	{
		"name": "anchorFingerprint",
		"type": "function",
		"inputs": [
			{"name": "propertyId", "type": "bytes32"},
			{"name": "fingerprint", "type": "bytes32"},
			{"name": "riskScore", "type": "uint16"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"name": "getAnchor",
		"type": "function",
		"inputs": [{"name": "propertyId", "type": "bytes32"}],
		"outputs": [
			{"name": "fingerprint", "type": "bytes32"},
			{"name": "riskScore", "type": "uint16"},
			{"name": "blockHeight", "type": "uint64"},
			{"name": "anchoredAt", "type": "uint64"},
			{"name": "verifier", "type": "address"}
		],
		"stateMutability": "view"
	},
	{
		"name": "getHistory",
		"type": "function",
		"inputs": [{"name": "propertyId", "type": "bytes32"}],
		"outputs": [{"name": "fingerprints", "type": "bytes32[]"}],
		"stateMutability": "view"
	}
]`

// EthereumConfig holds remote ledger client configuration.
type EthereumConfig struct {
	RPCURL          string
	ChainID         *big.Int
	ContractAddress string
	PrivateKey      string
	Identity        string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultEthereumConfig returns default configuration (Sepolia).
func DefaultEthereumConfig() *EthereumConfig {
	return &EthereumConfig{
		ChainID:    big.NewInt(11155111),
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// Ethereum anchors fingerprints in a PropertyRegistry contract on an
// Ethereum-compatible chain. It satisfies the same semantics as the
// local backend; the registry contract keeps history on-chain.
type Ethereum struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	config   *EthereumConfig
	key      *ecdsa.PrivateKey
	sender   common.Address
	logger   *slog.Logger
}

// NewEthereum connects to the chain and binds the registry contract.
func NewEthereum(ctx context.Context, config *EthereumConfig, logger *slog.Logger) (*Ethereum, error) {
	if config == nil {
		config = DefaultEthereumConfig()
	}
	if config.RPCURL == "" {
		return nil, fmt.Errorf("ledger endpoint is required for the ethereum backend")
	}
	if config.ContractAddress == "" {
		return nil, fmt.Errorf("registry contract address is required")
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, config.RPCURL, err)
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: chain id: %v", ErrUnavailable, err)
	}
	if config.ChainID != nil && chainID.Cmp(config.ChainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: expected %s, got %s", config.ChainID, chainID)
	}
	config.ChainID = chainID

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse registry ABI: %w", err)
	}

	addr := common.HexToAddress(config.ContractAddress)
	e := &Ethereum{
		client:   client,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		abi:      parsed,
		config:   config,
		logger:   logger.With("service", "ethereum-ledger"),
	}

	if config.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		e.key = key
		e.sender = crypto.PubkeyToAddress(key.PublicKey)
	}

	e.logger.Info("ethereum ledger connected", "chain_id", chainID.String(), "contract", addr.Hex())
	return e, nil
}

// propertyKey maps a property id onto the contract's bytes32 key space.
func propertyKey(propertyID string) [32]byte {
	return crypto.Keccak256Hash([]byte(propertyID))
}

// Put signs and submits an anchorFingerprint transaction and waits for
// the receipt. Transient RPC failures are retried.
func (e *Ethereum) Put(ctx context.Context, propertyID string, fingerprint []byte, riskScore int) (*Receipt, error) {
	if propertyID == "" || len(fingerprint) != 32 {
		return nil, ErrRejected
	}
	if e.key == nil {
		return nil, fmt.Errorf("%w: no signing key configured", ErrRejected)
	}

	var fp [32]byte
	copy(fp[:], fingerprint)
	score := uint16(riskScore)

	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.config.ChainID)
	if err != nil {
		return nil, fmt.Errorf("%w: transactor: %v", ErrRejected, err)
	}
	opts.Context = ctx

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(e.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		tx, err := e.contract.Transact(opts, "anchorFingerprint", propertyKey(propertyID), fp, score)
		if err != nil {
			lastErr = err
			e.logger.Warn("anchor transaction failed", "attempt", attempt, "error", err)
			continue
		}

		receipt, err := bind.WaitMined(ctx, e.client, tx)
		if err != nil {
			lastErr = err
			continue
		}
		if receipt.Status != 1 {
			return nil, fmt.Errorf("%w: transaction %s reverted", ErrRejected, tx.Hash().Hex())
		}

		ts := time.Now().UTC()
		if header, err := e.client.HeaderByHash(ctx, receipt.BlockHash); err == nil {
			ts = time.Unix(int64(header.Time), 0).UTC()
		}

		e.logger.Info("fingerprint anchored",
			"property_id", propertyID,
			"tx", tx.Hash().Hex(),
			"block", receipt.BlockNumber.Int64(),
		)
		return &Receipt{
			Handle:      tx.Hash().Hex(),
			BlockHeight: receipt.BlockNumber.Int64(),
			Timestamp:   ts,
		}, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Get reads the latest anchor for a property.
func (e *Ethereum) Get(ctx context.Context, propertyID string) (*Entry, error) {
	var out []any
	err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAnchor", propertyKey(propertyID))
	if err != nil {
		return nil, fmt.Errorf("%w: getAnchor: %v", ErrUnavailable, err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("%w: getAnchor returned %d values", ErrUnavailable, len(out))
	}

	fp := out[0].([32]byte)
	if fp == ([32]byte{}) {
		return nil, ErrNotFound
	}

	return &Entry{
		PropertyID:       propertyID,
		Fingerprint:      append([]byte(nil), fp[:]...),
		RiskScore:        int(out[1].(uint16)),
		VerifierIdentity: out[4].(common.Address).Hex(),
		BlockHeight:      int64(out[2].(uint64)),
		Timestamp:        time.Unix(int64(out[3].(uint64)), 0).UTC(),
	}, nil
}

// History returns superseded fingerprints, oldest first.
func (e *Ethereum) History(ctx context.Context, propertyID string) ([][]byte, error) {
	var out []any
	err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getHistory", propertyKey(propertyID))
	if err != nil {
		return nil, fmt.Errorf("%w: getHistory: %v", ErrUnavailable, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getHistory returned %d values", ErrUnavailable, len(out))
	}

	raw := out[0].([][32]byte)
	hist := make([][]byte, 0, len(raw))
	for _, fp := range raw {
		hist = append(hist, append([]byte(nil), fp[:]...))
	}
	return hist, nil
}

// Verify compares fingerprint against the latest anchor.
func (e *Ethereum) Verify(ctx context.Context, propertyID string, fingerprint []byte) (bool, error) {
	entry, err := e.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return bytes.Equal(entry.Fingerprint, fingerprint), nil
}

// Status reports chain connectivity and head height.
func (e *Ethereum) Status(ctx context.Context) (*Status, error) {
	head, err := e.client.BlockNumber(ctx)
	if err != nil {
		return &Status{Backend: "ethereum", Available: false}, nil
	}
	return &Status{Backend: "ethereum", Available: true, BlockHeight: int64(head)}, nil
}

// Close shuts down the RPC client.
func (e *Ethereum) Close() error {
	e.client.Close()
	return nil
}
