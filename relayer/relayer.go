package relayer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"github.com/Ethernal-Tech/evm-deposit-relayer/telemetry"
	"github.com/hashicorp/go-hclog"
)

// scanned block hashes are kept for this many confirmation depths behind the
// cursor before being pruned
const scannedBlocksRetentionFactor = 8

// RelayerImpl drives one chain pair pipeline: observe finalized deposit
// events on the source chain, validate them and hand them to the broadcast
// engine, recording every outcome durably before moving the scan cursor.
type RelayerImpl struct {
	config    *core.ChainPairConfig
	logger    hclog.Logger
	source    core.LedgerConnector
	db        core.Database
	validator core.EventValidator
	engine    core.BroadcastEngine
	pullTime  time.Duration
}

var _ core.Relayer = (*RelayerImpl)(nil)

func NewRelayer(
	config *core.ChainPairConfig,
	logger hclog.Logger,
	source core.LedgerConnector,
	db core.Database,
	validator core.EventValidator,
	engine core.BroadcastEngine,
	pullTime time.Duration,
) *RelayerImpl {
	return &RelayerImpl{
		config:    config,
		logger:    logger,
		source:    source,
		db:        db,
		validator: validator,
		engine:    engine,
		pullTime:  pullTime,
	}
}

// Start runs the scan loop until the context is canceled or a fatal error is
// hit. Transient source or destination failures never propagate out of a
// tick: the affected events stay Pending and are retried on the next one.
func (r *RelayerImpl) Start(ctx context.Context) error {
	r.logger.Debug("relayer started", "pair", r.config.PairID, "pullTime", r.pullTime)

	ticker := time.NewTicker(r.pullTime)
	defer ticker.Stop()

	for {
		if err := r.execute(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// execute performs one scan tick. A non-nil return is fatal and stops the
// pipeline.
func (r *RelayerImpl) execute(ctx context.Context) error {
	head, err := r.source.CurrentHeight(ctx)
	if err != nil {
		r.logger.Error("failed to retrieve source chain head", "err", err)

		return nil
	}

	cursor, err := r.db.GetCursor()
	if err != nil {
		return fmt.Errorf("failed to read scan cursor: %w", err)
	}

	cursor, proceed, err := r.checkForReorg(ctx, cursor)
	if err != nil {
		return err
	} else if !proceed {
		return nil
	}

	if head < r.config.ConfirmationDepth {
		return nil
	}

	// only blocks buried at least ConfirmationDepth below the head are scanned
	safeHead := head - r.config.ConfirmationDepth

	from := cursor + 1
	if r.config.StartBlock > from {
		from = r.config.StartBlock
	}

	for from <= safeHead {
		to := from + r.config.SyncBatchSize - 1
		if to > safeHead {
			to = safeHead
		}

		done, err := r.processRange(ctx, from, to)
		if err != nil {
			return err
		} else if !done {
			return nil
		}

		cursor = to
		from = to + 1

		telemetry.UpdateScanCursorGauge(r.config.PairID, cursor)
	}

	return r.pruneScannedBlocks(cursor)
}

// processRange scans one block range and relays its events in deterministic
// (blockNumber, logIndex) order. It returns false when a recoverable failure
// interrupted the range: nothing durable has moved past the failed event, so
// the whole range is revisited on the next tick.
func (r *RelayerImpl) processRange(ctx context.Context, from, to uint64) (bool, error) {
	events, err := r.source.FilterDepositEvents(ctx, from, to)
	if err != nil {
		r.logger.Error("failed to filter deposit events", "from", from, "to", to, "err", err)

		return false, nil
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}

		return events[i].LogIndex < events[j].LogIndex
	})

	if len(events) > 0 {
		r.logger.Info("deposit events observed", "from", from, "to", to, "count", len(events))
		telemetry.UpdateEventsObservedCounter(r.config.PairID, len(events))
	}

	for _, event := range events {
		// shutdown is observed only between events, an in-flight broadcast
		// always reaches a terminal recorded state first
		if ctx.Err() != nil {
			return false, nil
		}

		done, err := r.processEvent(ctx, event)
		if err != nil || !done {
			return done, err
		}
	}

	scannedBlocks, err := r.collectBlockHashes(ctx, from, to, events)
	if err != nil {
		r.logger.Error("failed to retrieve block hashes", "from", from, "to", to, "err", err)

		return false, nil
	}

	if err := r.db.AddScannedBlocks(scannedBlocks); err != nil {
		return false, fmt.Errorf("failed to persist scanned blocks: %w", err)
	}

	if err := r.db.UpdateCursor(to); err != nil {
		return false, fmt.Errorf("failed to update scan cursor: %w", err)
	}

	return true, nil
}

func (r *RelayerImpl) processEvent(ctx context.Context, event *core.RawDepositEvent) (bool, error) {
	key := event.Key()

	alreadyProcessed, err := r.db.HasProcessed(key)
	if err != nil {
		return false, fmt.Errorf("failed to query processed record %s: %w", key, err)
	} else if alreadyProcessed {
		r.logger.Debug("event already processed, skipping", "key", key)

		return true, nil
	}

	if err := r.db.MarkPending(key, event.BlockNumber); err != nil {
		if errors.Is(err, core.ErrAlreadyProcessed) {
			return true, nil
		}

		return false, fmt.Errorf("failed to mark event %s pending: %w", key, err)
	}

	payload, err := r.validator.ValidateEvent(event)
	if err != nil {
		var validationErr *core.ValidationError
		if !errors.As(err, &validationErr) {
			return false, fmt.Errorf("validator returned unexpected error for %s: %w", key, err)
		}

		r.logger.Warn("event rejected", "key", key, "reason", validationErr.Reason)
		telemetry.UpdateEventsRejectedCounter(r.config.PairID)

		if err := r.db.MarkFailed(key, validationErr.Reason); err != nil {
			return false, fmt.Errorf("failed to mark event %s failed: %w", key, err)
		}

		return true, nil
	}

	txHash, err := r.engine.Broadcast(ctx, payload)
	if err != nil {
		// a revert is terminal, everything else leaves the event Pending
		// and interrupts the range so ordering is preserved on retry
		if errors.Is(err, core.ErrExecutionReverted) {
			r.logger.Error("destination execution reverted", "key", key, "err", err)
			telemetry.UpdateEventsRejectedCounter(r.config.PairID)

			if err := r.db.MarkFailed(key, err.Error()); err != nil {
				return false, fmt.Errorf("failed to mark event %s failed: %w", key, err)
			}

			return true, nil
		}

		r.logger.Warn("broadcast did not complete, event stays pending", "key", key, "err", err)

		return false, nil
	}

	if err := r.db.CommitProcessed(key, txHash.Hex(), r.config.SimulateOnly); err != nil {
		return false, fmt.Errorf("failed to commit event %s: %w", key, err)
	}

	r.logger.Info("event relayed", "key", key, "destinationTxHash", txHash,
		"simulated", r.config.SimulateOnly)
	telemetry.UpdateEventsRelayedCounter(r.config.PairID)

	return true, nil
}

// checkForReorg compares the stored hash at the cursor with the chain's
// current hash for that height. On mismatch the cursor is rewound to the
// highest height whose stored hash still matches, Pending records above it
// are discarded and scanning resumes from there. A reorg that reaches under
// an already Confirmed record is fatal.
func (r *RelayerImpl) checkForReorg(
	ctx context.Context, cursor uint64,
) (uint64, bool, error) {
	if cursor == 0 {
		return cursor, true, nil
	}

	stored, err := r.db.GetScannedBlock(cursor)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read scanned block %d: %w", cursor, err)
	} else if stored == nil {
		return cursor, true, nil
	}

	chainHash, err := r.source.BlockHash(ctx, cursor)
	if err != nil {
		r.logger.Error("failed to retrieve block hash", "height", cursor, "err", err)

		return cursor, false, nil
	}

	if chainHash == stored.Hash {
		return cursor, true, nil
	}

	r.logger.Warn("reorg detected", "height", cursor,
		"storedHash", stored.Hash, "chainHash", chainHash)

	safeHeight, err := r.findSafeHeight(ctx, cursor)
	if err != nil {
		return 0, false, err
	}

	confirmed, err := r.db.GetConfirmedEventsAbove(safeHeight)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query confirmed records: %w", err)
	}

	if len(confirmed) > 0 {
		keys := make([]core.EventKey, len(confirmed))
		for i, record := range confirmed {
			keys[i] = record.Key
		}

		return 0, false, &core.FatalReorgError{Height: safeHeight, ConfirmedKeys: keys}
	}

	if err := r.db.RollbackPending(safeHeight); err != nil {
		return 0, false, fmt.Errorf("failed to roll back pending records: %w", err)
	}

	if err := r.db.RollbackScannedBlocks(safeHeight + 1); err != nil {
		return 0, false, fmt.Errorf("failed to roll back scanned blocks: %w", err)
	}

	if err := r.db.UpdateCursor(safeHeight); err != nil {
		return 0, false, fmt.Errorf("failed to rewind scan cursor: %w", err)
	}

	r.logger.Info("cursor rewound after reorg", "from", cursor, "to", safeHeight)
	telemetry.UpdateReorgRollbackCounter(r.config.PairID)

	return safeHeight, true, nil
}

// findSafeHeight walks back from the given height to the highest block whose
// stored hash matches the chain. Running out of stored hashes means the
// retained window was exhausted, the oldest unverifiable height is accepted.
func (r *RelayerImpl) findSafeHeight(ctx context.Context, from uint64) (uint64, error) {
	for height := from; height > 0; height-- {
		stored, err := r.db.GetScannedBlock(height)
		if err != nil {
			return 0, fmt.Errorf("failed to read scanned block %d: %w", height, err)
		} else if stored == nil {
			return height, nil
		}

		chainHash, err := r.source.BlockHash(ctx, height)
		if err != nil {
			return 0, fmt.Errorf("failed to retrieve block hash for %d: %w", height, err)
		}

		if chainHash == stored.Hash {
			return height, nil
		}
	}

	return 0, nil
}

func (r *RelayerImpl) collectBlockHashes(
	ctx context.Context, from, to uint64, events []*core.RawDepositEvent,
) ([]core.ScannedBlock, error) {
	hashes := map[uint64]core.ScannedBlock{}

	// event logs already carry their block hash, only the remaining heights
	// need a header lookup
	for _, event := range events {
		hashes[event.BlockNumber] = core.ScannedBlock{
			Height: event.BlockNumber,
			Hash:   event.BlockHash,
		}
	}

	result := make([]core.ScannedBlock, 0, to-from+1)

	for height := from; height <= to; height++ {
		if block, exists := hashes[height]; exists {
			result = append(result, block)

			continue
		}

		hash, err := r.source.BlockHash(ctx, height)
		if err != nil {
			return nil, err
		}

		result = append(result, core.ScannedBlock{Height: height, Hash: hash})
	}

	return result, nil
}

func (r *RelayerImpl) pruneScannedBlocks(cursor uint64) error {
	retention := r.config.ConfirmationDepth * scannedBlocksRetentionFactor
	if cursor <= retention {
		return nil
	}

	if err := r.db.PruneScannedBlocks(cursor - retention); err != nil {
		return fmt.Errorf("failed to prune scanned blocks: %w", err)
	}

	return nil
}
