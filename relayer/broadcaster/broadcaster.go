package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Ethernal-Tech/evm-deposit-relayer/common"
	"github.com/Ethernal-Tech/evm-deposit-relayer/eth"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"github.com/Ethernal-Tech/evm-deposit-relayer/telemetry"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"
)

const (
	submitRetryWaitTime = time.Second
	receiptPollInterval = 2 * time.Second
)

// BroadcastEngineImpl signs and submits destination mint transactions.
// It is the sole owner of the nonce sequence for its signer account:
// Broadcast is serialized with a mutex, so concurrent callers cannot
// interleave nonce assignment with submission.
type BroadcastEngineImpl struct {
	connector      core.LedgerConnector
	signer         core.Signer
	config         *core.ChainPairConfig
	gatewayAddress ethcommon.Address
	logger         hclog.Logger

	lock       sync.Mutex
	nonce      uint64
	nonceValid bool
}

var _ core.BroadcastEngine = (*BroadcastEngineImpl)(nil)

func NewBroadcastEngine(
	connector core.LedgerConnector,
	signer core.Signer,
	config *core.ChainPairConfig,
	logger hclog.Logger,
) *BroadcastEngineImpl {
	return &BroadcastEngineImpl{
		connector:      connector,
		signer:         signer,
		config:         config,
		gatewayAddress: ethcommon.HexToAddress(config.DestinationGatewayAddress),
		logger:         logger,
	}
}

// Broadcast builds, signs and submits the mint transaction for one payload and
// waits for its receipt. In simulate mode the transaction is built and signed
// but never submitted; the predicted hash is returned and the nonce sequence
// advances exactly as it would on a live submission.
func (be *BroadcastEngineImpl) Broadcast(
	ctx context.Context, payload *core.RelayPayload,
) (ethcommon.Hash, error) {
	be.lock.Lock()
	defer be.lock.Unlock()

	if err := be.ensureNonce(ctx); err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to fetch account nonce: %w", err)
	}

	tx, err := be.createTx(ctx, payload)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	signedTxBytes, txHash, err := be.signer.SignTx(tx)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	pending := &core.PendingBroadcast{
		Nonce:             be.nonce,
		Payload:           payload,
		SignedTxBytes:     signedTxBytes,
		DestinationTxHash: txHash,
	}

	if be.config.SimulateOnly {
		be.logger.Info("simulate mode, transaction not submitted",
			"txHash", pending.DestinationTxHash, "nonce", pending.Nonce,
			"recipient", payload.Recipient, "amount", payload.Amount)

		telemetry.UpdateEventsSimulatedCounter(be.config.PairID)
		be.nonce++

		return pending.DestinationTxHash, nil
	}

	if err := be.submitTx(ctx, pending); err != nil {
		// refetch the pending nonce before the next broadcast, the node's
		// view is authoritative after a failed submission
		be.nonceValid = false

		return ethcommon.Hash{}, err
	}

	be.nonce++

	return pending.DestinationTxHash, be.waitForReceipt(pending)
}

func (be *BroadcastEngineImpl) ensureNonce(ctx context.Context) error {
	if be.nonceValid {
		return nil
	}

	nonce, err := be.connector.GetNonce(ctx, be.signer.Address())
	if err != nil {
		return err
	}

	be.nonce = nonce
	be.nonceValid = true

	return nil
}

func (be *BroadcastEngineImpl) createTx(
	ctx context.Context, payload *core.RelayPayload,
) (*types.Transaction, error) {
	calldata, err := eth.PackMintCall(payload)
	if err != nil {
		return nil, err
	}

	gasLimit := be.config.GasLimit

	// in simulate mode the destination contract may not exist, the configured
	// limit is used as-is instead of estimating against the node
	if !be.config.SimulateOnly {
		estimated, err := be.connector.EstimateGas(
			ctx, be.signer.Address(), be.gatewayAddress, calldata)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}

		gasLimit = common.MulPercentage(
			new(big.Int).SetUint64(estimated), be.config.GasFeeMultiplier).Uint64()
	}

	if be.config.DynamicTx {
		gasTipCap, err := be.connector.SuggestedGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve gas tip cap: %w", err)
		}

		gasPrice, err := be.connector.SuggestedGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve gas price: %w", err)
		}

		gasFeeCap := common.MulPercentage(gasPrice, be.config.GasFeeMultiplier)

		return types.NewTx(&types.DynamicFeeTx{
			Nonce:     be.nonce,
			To:        &be.gatewayAddress,
			Gas:       gasLimit,
			GasTipCap: gasTipCap,
			GasFeeCap: gasFeeCap,
			Data:      calldata,
		}), nil
	}

	gasPrice, err := be.connector.SuggestedGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve gas price: %w", err)
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    be.nonce,
		To:       &be.gatewayAddress,
		Gas:      gasLimit,
		GasPrice: common.MulPercentage(gasPrice, be.config.GasFeeMultiplier),
		Data:     calldata,
	}), nil
}

func (be *BroadcastEngineImpl) submitTx(ctx context.Context, pending *core.PendingBroadcast) error {
	backoff := retry.WithMaxRetries(
		uint64(be.config.MaxBroadcastAttempts-1), retry.NewExponential(submitRetryWaitTime))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pending.Attempt++
		telemetry.UpdateBroadcastAttemptsCounter(be.config.PairID, 1)

		err := be.connector.SubmitTx(ctx, pending.SignedTxBytes)
		if err == nil {
			return nil
		}

		// the pool already holds this exact transaction, a previous attempt
		// reached the node after all
		if isAlreadyKnownError(err) {
			be.logger.Debug("transaction already known to the pool",
				"txHash", pending.DestinationTxHash)

			return nil
		}

		if isNonceConflictError(err) {
			return fmt.Errorf("%w: %s", core.ErrNonceConflict, err)
		}

		be.logger.Warn("transaction submission failed",
			"txHash", pending.DestinationTxHash, "attempt", pending.Attempt, "err", err)

		if eth.IsRetryableEthError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrNonceConflict) {
			return err
		}

		return fmt.Errorf("%w after %d attempt(s): %s", core.ErrBroadcastFailed, pending.Attempt, err)
	}

	pending.SubmittedAt = time.Now().UTC()

	be.logger.Info("transaction submitted",
		"txHash", pending.DestinationTxHash, "nonce", pending.Nonce)

	return nil
}

// waitForReceipt runs on its own context bounded only by the confirmation
// timeout. The transaction is on the network at this point: shutdown must not
// abandon the wait, the event has to reach a terminal recorded state first.
func (be *BroadcastEngineImpl) waitForReceipt(pending *core.PendingBroadcast) error {
	ctx, cancelCtx := context.WithTimeout(context.Background(), be.config.ConfirmationTimeout())
	defer cancelCtx()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := be.connector.GetReceipt(ctx, pending.DestinationTxHash)
		if err != nil {
			be.logger.Debug("receipt retrieval failed",
				"txHash", pending.DestinationTxHash, "err", err)
		} else if receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: tx %s", core.ErrExecutionReverted, pending.DestinationTxHash)
			}

			be.logger.Info("transaction confirmed",
				"txHash", pending.DestinationTxHash, "block", receipt.BlockNumber)

			return nil
		}

		select {
		case <-ctx.Done():
			// the submitted transaction may still land later, the local
			// counter cannot be trusted until the node is consulted again
			be.nonceValid = false

			return fmt.Errorf("%w: tx %s", core.ErrConfirmationTimeout, pending.DestinationTxHash)
		case <-ticker.C:
		}
	}
}

func isNonceConflictError(err error) bool {
	msgs := []string{
		"nonce too low",
		"nonce too high",
		"invalid nonce",
		"replacement transaction underpriced",
	}
	errStr := err.Error()

	for _, msg := range msgs {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}

func isAlreadyKnownError(err error) bool {
	msgs := []string{
		"already known",
		"known transaction",
		"transaction already imported",
	}
	errStr := err.Error()

	for _, msg := range msgs {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}
