package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

const (
	defaultTxCount = 10
	maxTxCount     = 50
)

type AddressDetailsTool struct {
	chain  output.BlockchainPort
	logger output.LoggerPort
}

func NewAddressDetailsTool(chain output.BlockchainPort, logger output.LoggerPort) *AddressDetailsTool {
	return &AddressDetailsTool{chain: chain, logger: logger}
}

func (t *AddressDetailsTool) Name() entity.ToolName { return entity.ToolGetAddressDetails }
func (t *AddressDetailsTool) Description() string {
	return "Get the current state of a Cardano address: ADA balance (in lovelace, 1 ADA = 1,000,000 lovelace), native tokens held, stake address and address type. Use this for balance or holdings questions about one address. Does not list transactions."
}
func (t *AddressDetailsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"address": map[string]interface{}{
				"type":        "string",
				"description": "Cardano address in bech32 form (addr1..., addr_test1..., stake1..., stake_test1...) or a legacy Byron address",
			},
		},
		"required": []string{"address"},
	}
}

func (t *AddressDetailsTool) Execute(ctx context.Context, arguments string) (string, error) {
	var input struct {
		Address string `json:"address"`
	}
	if err := decodeArgs(arguments, &input); err != nil {
		return "", err
	}
	address := strings.TrimSpace(input.Address)
	if err := ValidateAddress(address); err != nil {
		return "", err
	}

	raw, err := t.chain.AddressDetails(ctx, address)
	if err != nil {
		return "", describeChainError("address", address, err)
	}
	return string(raw), nil
}

type AddressTransactionsTool struct {
	chain  output.BlockchainPort
	logger output.LoggerPort
}

func NewAddressTransactionsTool(chain output.BlockchainPort, logger output.LoggerPort) *AddressTransactionsTool {
	return &AddressTransactionsTool{chain: chain, logger: logger}
}

func (t *AddressTransactionsTool) Name() entity.ToolName { return entity.ToolGetAddressTransactions }
func (t *AddressTransactionsTool) Description() string {
	return "List the transaction history of a Cardano address: transaction hashes with block height and time. Use this when the user asks about the transactions, activity or history of an address. For the content of a single transaction use get_single_transaction_details."
}
func (t *AddressTransactionsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"address": map[string]interface{}{
				"type":        "string",
				"description": "Cardano address in bech32 form (addr1..., addr_test1...)",
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"maximum":     maxTxCount,
				"description": fmt.Sprintf("Number of transactions to return (default %d)", defaultTxCount),
			},
			"order": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"desc", "asc"},
				"description": "desc returns the newest transactions first (default), asc the oldest",
			},
		},
		"required": []string{"address"},
	}
}

func (t *AddressTransactionsTool) Execute(ctx context.Context, arguments string) (string, error) {
	var input struct {
		Address string `json:"address"`
		Count   int    `json:"count"`
		Order   string `json:"order"`
	}
	if err := decodeArgs(arguments, &input); err != nil {
		return "", err
	}
	address := strings.TrimSpace(input.Address)
	if err := ValidateAddress(address); err != nil {
		return "", err
	}

	count := input.Count
	switch {
	case count == 0:
		count = defaultTxCount
	case count < 0 || count > maxTxCount:
		return "", fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidArgument, maxTxCount)
	}

	order := output.OrderDesc
	switch input.Order {
	case "", string(output.OrderDesc):
	case string(output.OrderAsc):
		order = output.OrderAsc
	default:
		return "", fmt.Errorf("%w: order must be \"asc\" or \"desc\"", ErrInvalidArgument)
	}

	raw, err := t.chain.AddressTransactions(ctx, address, count, order)
	if err != nil {
		return "", describeChainError("address", address, err)
	}
	return string(raw), nil
}

type TransactionDetailsTool struct {
	chain  output.BlockchainPort
	logger output.LoggerPort
}

func NewTransactionDetailsTool(chain output.BlockchainPort, logger output.LoggerPort) *TransactionDetailsTool {
	return &TransactionDetailsTool{chain: chain, logger: logger}
}

func (t *TransactionDetailsTool) Name() entity.ToolName { return entity.ToolGetTransactionDetails }
func (t *TransactionDetailsTool) Description() string {
	return "Get the full details of ONE Cardano transaction by its 64 character hash: block, fees, size, inputs and outputs with amounts. Use this to analyse or explain a specific transaction. Not for address balances or histories."
}
func (t *TransactionDetailsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tx_hash": map[string]interface{}{
				"type":        "string",
				"description": "Transaction hash, 64 hexadecimal characters",
			},
		},
		"required": []string{"tx_hash"},
	}
}

func (t *TransactionDetailsTool) Execute(ctx context.Context, arguments string) (string, error) {
	var input struct {
		TxHash string `json:"tx_hash"`
	}
	if err := decodeArgs(arguments, &input); err != nil {
		return "", err
	}
	hash := strings.ToLower(strings.TrimSpace(input.TxHash))
	if err := ValidateTxHash(hash); err != nil {
		return "", err
	}

	raw, err := t.chain.Transaction(ctx, hash)
	if err != nil {
		return "", describeChainError("transaction", hash, err)
	}
	return string(raw), nil
}

func describeChainError(kind, id string, err error) error {
	switch {
	case errors.Is(err, output.ErrChainNotFound):
		return fmt.Errorf("%s %s was not found on the configured Cardano network; it may belong to another network or have no on-chain activity yet", kind, id)
	case errors.Is(err, output.ErrChainRateLimited):
		return fmt.Errorf("the blockchain API is rate limiting requests, try again shortly: %w", err)
	case errors.Is(err, output.ErrChainBadRequest):
		return fmt.Errorf("%w: the blockchain API rejected %s %s: %v", ErrInvalidArgument, kind, id, err)
	}
	return fmt.Errorf("blockchain lookup failed: %w", err)
}
