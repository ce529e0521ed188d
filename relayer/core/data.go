package core

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	StatusPending = iota
	StatusConfirmed
	StatusFailed
)

// EventKey uniquely identifies a deposit event. A single source transaction
// may emit more than one qualifying event, so the log index is part of the key.
type EventKey string

func NewEventKey(sourceTxHash common.Hash, logIndex uint) EventKey {
	return EventKey(fmt.Sprintf("%s_%d", sourceTxHash.Hex(), logIndex))
}

func (k EventKey) Bytes() []byte {
	return []byte(k)
}

func ParseEventKey(raw string) (common.Hash, uint, error) {
	parts := strings.Split(raw, "_")
	if len(parts) != 2 {
		return common.Hash{}, 0, fmt.Errorf("malformed event key: %s", raw)
	}

	logIndex, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("malformed event key log index: %s", raw)
	}

	return common.HexToHash(parts[0]), uint(logIndex), nil
}

// RawDepositEvent is a TokensDeposited log as observed on the source chain.
// Immutable once created.
type RawDepositEvent struct {
	SourceTxHash       common.Hash
	LogIndex           uint
	BlockNumber        uint64
	BlockHash          common.Hash
	Sender             common.Address
	Recipient          common.Address
	Amount             *big.Int
	DestinationChainID *big.Int
}

func (e RawDepositEvent) Key() EventKey {
	return NewEventKey(e.SourceTxHash, e.LogIndex)
}

// RelayPayload is the validated, canonical data needed to build the
// destination mint call.
type RelayPayload struct {
	Recipient          common.Address
	Amount             *big.Int
	DestinationChainID *big.Int
	SourceTxHash       common.Hash
}

// ProcessedRecord is the durable outcome for one event key. A Confirmed record
// is the sole source of truth for "already relayed" and is never deleted.
type ProcessedRecord struct {
	Key               EventKey  `json:"key"`
	BlockNumber       uint64    `json:"blockNumber"`
	DestinationTxHash string    `json:"destinationTxHash"`
	Status            int       `json:"status"`
	Simulated         bool      `json:"simulated"`
	RejectReason      string    `json:"rejectReason,omitempty"`
	FirstSeenAt       time.Time `json:"firstSeenAt"`
	FinalizedAt       time.Time `json:"finalizedAt,omitempty"`
}

// ScannedBlock remembers the hash the relayer saw for an accepted height, so a
// later poll can detect that the chain replaced the block.
type ScannedBlock struct {
	Height uint64      `json:"height"`
	Hash   common.Hash `json:"hash"`
}

// PendingBroadcast is the in-flight submission state owned by the broadcast
// engine while a destination transaction awaits its receipt.
type PendingBroadcast struct {
	Nonce             uint64
	Payload           *RelayPayload
	SignedTxBytes     []byte
	DestinationTxHash common.Hash
	Attempt           int
	SubmittedAt       time.Time
}

func StatusToString(status int) string {
	switch status {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
