package output

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrChainNotFound     = errors.New("chain indexer: not found")
	ErrChainUnauthorized = errors.New("chain indexer: credentials rejected")
	ErrChainRateLimited  = errors.New("chain indexer: rate limited")
	ErrChainUpstream     = errors.New("chain indexer: upstream failure")
	ErrChainBadRequest   = errors.New("chain indexer: bad request")
)

type TxOrder string

const (
	OrderAsc  TxOrder = "asc"
	OrderDesc TxOrder = "desc"
)

// BlockchainPort is a read-only view of a chain indexer. Payloads are passed
// through as JSON, the agent only needs them as model context.
type BlockchainPort interface {
	AddressDetails(ctx context.Context, address string) (json.RawMessage, error)
	AddressTransactions(ctx context.Context, address string, count int, order TxOrder) (json.RawMessage, error)
	Transaction(ctx context.Context, hash string) (json.RawMessage, error)
}
