package relayermanager

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ethernal-Tech/evm-deposit-relayer/eth"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/broadcaster"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	databaseaccess "github.com/Ethernal-Tech/evm-deposit-relayer/relayer/database_access"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/validator"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-hclog"
)

// RelayerManagerImpl owns the lifecycle of every configured chain pair
// pipeline. Each pipeline runs in its own goroutine with its own connectors,
// database and signer; a fatal pipeline error cancels the whole manager.
type RelayerManagerImpl struct {
	config    *core.RelayerManagerConfiguration
	logger    hclog.Logger
	cancelCtx context.CancelFunc
	ctx       context.Context

	relayers   map[string]core.Relayer
	databases  map[string]core.Database
	connectors []core.LedgerConnector

	wg sync.WaitGroup

	lock     sync.Mutex
	fatalErr error
}

var _ core.RelayerManager = (*RelayerManagerImpl)(nil)

func NewRelayerManager(
	ctx context.Context,
	config *core.RelayerManagerConfiguration,
	logger hclog.Logger,
) (*RelayerManagerImpl, error) {
	ctx, cancelCtx := context.WithCancel(ctx)

	rm := &RelayerManagerImpl{
		config:    config,
		logger:    logger,
		ctx:       ctx,
		cancelCtx: cancelCtx,
		relayers:  map[string]core.Relayer{},
		databases: map[string]core.Database{},
	}

	for pairID, pairConfig := range config.ChainPairs {
		if err := rm.createPipeline(pairID, pairConfig); err != nil {
			rm.dispose()
			cancelCtx()

			return nil, fmt.Errorf("failed to create pipeline %s: %w", pairID, err)
		}
	}

	return rm, nil
}

func (rm *RelayerManagerImpl) createPipeline(pairID string, pairConfig *core.ChainPairConfig) error {
	sourceConnector, err := eth.NewLedgerConnector(
		pairConfig.SourceNodeURL, pairConfig.SourceBridgeAddress,
		rm.logger.Named("source_"+pairID))
	if err != nil {
		return err
	}

	rm.connectors = append(rm.connectors, sourceConnector)

	destinationConnector, err := eth.NewLedgerConnector(
		pairConfig.DestinationNodeURL, pairConfig.DestinationGatewayAddress,
		rm.logger.Named("destination_"+pairID))
	if err != nil {
		return err
	}

	rm.connectors = append(rm.connectors, destinationConnector)

	signer, err := createSigner(pairConfig)
	if err != nil {
		return err
	}

	db := &databaseaccess.BBoltDatabase{}
	if err := db.Init(filepath.Join(pairConfig.DbsPath, pairID+".db")); err != nil {
		return err
	}

	rm.databases[pairID] = db

	rm.relayers[pairID] = relayer.NewRelayer(
		pairConfig,
		rm.logger.Named("relayer_"+pairID),
		sourceConnector,
		db,
		validator.NewDepositEventValidator(
			pairConfig.DestinationChainID, rm.logger.Named("validator_"+pairID)),
		broadcaster.NewBroadcastEngine(
			destinationConnector, signer, pairConfig, rm.logger.Named("broadcaster_"+pairID)),
		time.Millisecond*time.Duration(rm.config.PullTimeMilis),
	)

	return nil
}

func (rm *RelayerManagerImpl) Start() error {
	for pairID, pipeline := range rm.relayers {
		rm.wg.Add(1)

		go func(pairID string, pipeline core.Relayer) {
			defer rm.wg.Done()

			if err := pipeline.Start(rm.ctx); err != nil {
				rm.logger.Error("pipeline stopped with fatal error", "pair", pairID, "err", err)

				rm.lock.Lock()
				if rm.fatalErr == nil {
					rm.fatalErr = err
				}
				rm.lock.Unlock()

				// one dead pipeline takes the process down, a partially
				// running relayer is harder to operate than a stopped one
				rm.cancelCtx()
			}
		}(pairID, pipeline)
	}

	rm.logger.Debug("relayer manager started", "pipelines", len(rm.relayers))

	return nil
}

func (rm *RelayerManagerImpl) Stop() error {
	rm.logger.Debug("stopping relayer manager")

	rm.cancelCtx()
	rm.wg.Wait()

	return rm.dispose()
}

// ErrCh-style access is not needed, the manager context doubles as the
// failure signal. Done exposes it for the process main loop.
func (rm *RelayerManagerImpl) Done() <-chan struct{} {
	return rm.ctx.Done()
}

func (rm *RelayerManagerImpl) FatalError() error {
	rm.lock.Lock()
	defer rm.lock.Unlock()

	return rm.fatalErr
}

// Databases exposes the per-pair stores for read-only API access.
func (rm *RelayerManagerImpl) Databases() map[string]core.Database {
	return rm.databases
}

func (rm *RelayerManagerImpl) dispose() error {
	var disposeErrors []error

	for pairID, db := range rm.databases {
		if err := db.Close(); err != nil {
			disposeErrors = append(disposeErrors,
				fmt.Errorf("failed to close database for %s: %w", pairID, err))
		}
	}

	for _, connector := range rm.connectors {
		connector.Dispose()
	}

	return errors.Join(disposeErrors...)
}

// createSigner builds the destination signer. Simulate-only pipelines may
// omit the key, an ephemeral one is generated so transactions can still be
// built and signed locally.
func createSigner(pairConfig *core.ChainPairConfig) (core.Signer, error) {
	chainID := new(big.Int).SetUint64(pairConfig.DestinationChainID)

	if pairConfig.SignerKey == "" && pairConfig.SimulateOnly {
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}

		return eth.NewEthTxWalletFromKey(privateKey, chainID), nil
	}

	return eth.NewEthTxWallet(pairConfig.SignerKey, chainID)
}
