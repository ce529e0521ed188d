package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"
)

const (
	defaultRPCRetryAttempts = uint64(5)
	defaultRPCRetryWaitTime = 300 * time.Millisecond
)

// LedgerConnectorImpl is the ethclient-backed RPC facade for one chain.
// Transient failures are retried with fibonacci backoff before an error is
// surfaced to the caller.
type LedgerConnectorImpl struct {
	client        *ethclient.Client
	bridgeAddress common.Address
	logger        hclog.Logger
}

var _ core.LedgerConnector = (*LedgerConnectorImpl)(nil)

func NewLedgerConnector(
	nodeURL string, bridgeAddress string, logger hclog.Logger,
) (*LedgerConnectorImpl, error) {
	client, err := ethclient.Dial(nodeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", nodeURL, err)
	}

	return &LedgerConnectorImpl{
		client:        client,
		bridgeAddress: common.HexToAddress(bridgeAddress),
		logger:        logger,
	}, nil
}

func (lc *LedgerConnectorImpl) CurrentHeight(ctx context.Context) (uint64, error) {
	return executeWithRetry(ctx, lc.logger, func(ctx context.Context) (uint64, error) {
		return lc.client.BlockNumber(ctx)
	})
}

func (lc *LedgerConnectorImpl) BlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	return executeWithRetry(ctx, lc.logger, func(ctx context.Context) (common.Hash, error) {
		header, err := lc.client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
		if err != nil {
			return common.Hash{}, err
		}

		return header.Hash(), nil
	})
}

func (lc *LedgerConnectorImpl) FilterDepositEvents(
	ctx context.Context, fromBlock, toBlock uint64,
) ([]*core.RawDepositEvent, error) {
	logs, err := executeWithRetry(ctx, lc.logger, func(ctx context.Context) ([]types.Log, error) {
		return lc.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{lc.bridgeAddress},
			Topics:    [][]common.Hash{{TokensDepositedTopic}},
		})
	})
	if err != nil {
		return nil, err
	}

	events := make([]*core.RawDepositEvent, 0, len(logs))

	for i := range logs {
		log := &logs[i]
		if log.Removed {
			continue
		}

		event, err := DecodeDepositEventLog(log)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}

func (lc *LedgerConnectorImpl) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return executeWithRetry(ctx, lc.logger, func(ctx context.Context) (uint64, error) {
		return lc.client.PendingNonceAt(ctx, addr)
	})
}

func (lc *LedgerConnectorImpl) EstimateGas(
	ctx context.Context, from, to common.Address, data []byte,
) (uint64, error) {
	return executeWithRetry(ctx, lc.logger, func(ctx context.Context) (uint64, error) {
		return lc.client.EstimateGas(ctx, ethereum.CallMsg{
			From: from,
			To:   &to,
			Data: data,
		})
	})
}

func (lc *LedgerConnectorImpl) SuggestedGasPrice(ctx context.Context) (*big.Int, error) {
	return executeWithRetry(ctx, lc.logger, func(ctx context.Context) (*big.Int, error) {
		return lc.client.SuggestGasPrice(ctx)
	})
}

func (lc *LedgerConnectorImpl) SuggestedGasTipCap(ctx context.Context) (*big.Int, error) {
	return executeWithRetry(ctx, lc.logger, func(ctx context.Context) (*big.Int, error) {
		return lc.client.SuggestGasTipCap(ctx)
	})
}

func (lc *LedgerConnectorImpl) SubmitTx(ctx context.Context, signedTxBytes []byte) error {
	tx := &types.Transaction{}
	if err := tx.UnmarshalBinary(signedTxBytes); err != nil {
		return fmt.Errorf("failed to unmarshal signed transaction: %w", err)
	}

	// no internal retry: the broadcast engine owns submission retry policy
	// because nonce bookkeeping depends on how submission failed
	return lc.client.SendTransaction(ctx, tx)
}

func (lc *LedgerConnectorImpl) GetReceipt(
	ctx context.Context, txHash common.Hash,
) (*types.Receipt, error) {
	receipt, err := lc.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}

		return nil, err
	}

	return receipt, nil
}

func (lc *LedgerConnectorImpl) Dispose() {
	lc.client.Close()
}

func executeWithRetry[T any](
	ctx context.Context, logger hclog.Logger, fn func(ctx context.Context) (T, error),
) (result T, err error) {
	backoff := retry.WithMaxRetries(defaultRPCRetryAttempts, retry.NewFibonacci(defaultRPCRetryWaitTime))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error

		result, callErr = fn(ctx)
		if callErr != nil && IsRetryableEthError(callErr) {
			logger.Debug("retrying rpc call", "err", callErr)

			return retry.RetryableError(callErr)
		}

		return callErr
	})

	return result, err
}
