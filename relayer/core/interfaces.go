package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LedgerConnector is the per-chain RPC facade. Implementations retry
// transient failures internally; errors surfaced here are post-backoff.
type LedgerConnector interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (common.Hash, error)
	FilterDepositEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*RawDepositEvent, error)
	GetNonce(ctx context.Context, addr common.Address) (uint64, error)
	EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error)
	SuggestedGasPrice(ctx context.Context) (*big.Int, error)
	SuggestedGasTipCap(ctx context.Context) (*big.Int, error)
	SubmitTx(ctx context.Context, signedTxBytes []byte) error
	GetReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Dispose()
}

// Signer holds the relayer account key for one destination chain.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (signedTxBytes []byte, txHash common.Hash, err error)
}

// Database is the durable idempotency ledger plus the scan cursor. All
// mutating operations are durable before they return.
type Database interface {
	Init(filePath string) error
	Close() error

	HasProcessed(key EventKey) (bool, error)
	GetProcessedEvent(key EventKey) (*ProcessedRecord, error)
	GetProcessedEvents(threshold int) ([]*ProcessedRecord, error)
	GetConfirmedEventsAbove(height uint64) ([]*ProcessedRecord, error)
	MarkPending(key EventKey, blockNumber uint64) error
	MarkFailed(key EventKey, reason string) error
	CommitProcessed(key EventKey, destinationTxHash string, simulated bool) error
	RollbackPending(aboveHeight uint64) error

	GetCursor() (uint64, error)
	UpdateCursor(value uint64) error

	AddScannedBlocks(blocks []ScannedBlock) error
	GetScannedBlock(height uint64) (*ScannedBlock, error)
	RollbackScannedBlocks(fromHeight uint64) error
	PruneScannedBlocks(belowHeight uint64) error
}

// EventValidator turns a raw deposit event into a relay payload or rejects it
// with a terminal *ValidationError.
type EventValidator interface {
	ValidateEvent(event *RawDepositEvent) (*RelayPayload, error)
}

// BroadcastEngine turns a relay payload into a signed, submitted, confirmed
// destination transaction. It exclusively owns the nonce sequence for its
// signer account.
type BroadcastEngine interface {
	Broadcast(ctx context.Context, payload *RelayPayload) (common.Hash, error)
}

type Relayer interface {
	Start(ctx context.Context) error
}

type RelayerManager interface {
	Start() error
	Stop() error
}
