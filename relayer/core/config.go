package core

import (
	"fmt"
	"time"

	apiCore "github.com/Ethernal-Tech/evm-deposit-relayer/api/core"
	"github.com/Ethernal-Tech/evm-deposit-relayer/common"
	"github.com/Ethernal-Tech/evm-deposit-relayer/telemetry"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	defaultSyncBatchSize              = 10
	defaultMaxBroadcastAttempts       = 5
	defaultConfirmationTimeoutSeconds = 120
	defaultGasLimit                   = uint64(200_000)
	defaultGasFeeMultiplier           = uint64(170) // 170%
)

type ChainPairConfig struct {
	PairID string `json:"-"`

	SourceNodeURL       string `json:"sourceNodeUrl"`
	SourceBridgeAddress string `json:"sourceBridgeAddress"`
	StartBlock          uint64 `json:"startBlock"`
	ConfirmationDepth   uint64 `json:"confirmationDepth"`
	SyncBatchSize       uint64 `json:"syncBatchSize"`

	DestinationNodeURL        string `json:"destinationNodeUrl"`
	DestinationGatewayAddress string `json:"destinationGatewayAddress"`
	DestinationChainID        uint64 `json:"destinationChainId"`

	SignerKey                  string `json:"signerKey"`
	SimulateOnly               bool   `json:"simulateOnly"`
	DynamicTx                  bool   `json:"dynamicTx"`
	GasLimit                   uint64 `json:"gasLimit"`
	GasFeeMultiplier           uint64 `json:"gasFeeMultiplier"`
	MaxBroadcastAttempts       int    `json:"maxBroadcastAttempts"`
	ConfirmationTimeoutSeconds uint64 `json:"confirmationTimeoutSeconds"`

	DbsPath string `json:"dbsPath"`
}

func (config *ChainPairConfig) ConfirmationTimeout() time.Duration {
	return time.Duration(config.ConfirmationTimeoutSeconds) * time.Second
}

type RelayerManagerConfiguration struct {
	ChainPairs    map[string]*ChainPairConfig `json:"chainPairs"`
	PullTimeMilis uint64                      `json:"pullTime"`
	Logger        common.LoggerConfig         `json:"logger"`
	Telemetry     telemetry.TelemetryConfig   `json:"telemetry"`
	API           apiCore.APIConfig           `json:"api"`
}

func (config *RelayerManagerConfiguration) Validate() error {
	if len(config.ChainPairs) == 0 {
		return fmt.Errorf("no chain pairs configured")
	}

	signerKeys := map[string]string{}

	for pairID, pairConfig := range config.ChainPairs {
		pairConfig.PairID = pairID
		pairConfig.populateDefaults()

		if !common.IsValidHTTPURL(pairConfig.SourceNodeURL) {
			return fmt.Errorf("chain pair %s: invalid source node url", pairID)
		}

		if !common.IsValidHTTPURL(pairConfig.DestinationNodeURL) {
			return fmt.Errorf("chain pair %s: invalid destination node url", pairID)
		}

		if !ethcommon.IsHexAddress(pairConfig.SourceBridgeAddress) {
			return fmt.Errorf("chain pair %s: invalid source bridge address", pairID)
		}

		if !ethcommon.IsHexAddress(pairConfig.DestinationGatewayAddress) {
			return fmt.Errorf("chain pair %s: invalid destination gateway address", pairID)
		}

		if pairConfig.DestinationChainID == 0 {
			return fmt.Errorf("chain pair %s: destination chain id not set", pairID)
		}

		if pairConfig.ConfirmationDepth == 0 {
			return fmt.Errorf("chain pair %s: confirmation depth must be at least 1", pairID)
		}

		if pairConfig.SignerKey == "" && !pairConfig.SimulateOnly {
			return fmt.Errorf("chain pair %s: signer key not set", pairID)
		}

		// the nonce sequence of a signer account has exactly one owner,
		// sharing an account between pipelines is not supported
		if pairConfig.SignerKey != "" {
			if otherPair, exists := signerKeys[pairConfig.SignerKey]; exists {
				return fmt.Errorf("chain pairs %s and %s share a signer account", otherPair, pairID)
			}

			signerKeys[pairConfig.SignerKey] = pairID
		}
	}

	return nil
}

func (config *ChainPairConfig) populateDefaults() {
	if config.SyncBatchSize == 0 {
		config.SyncBatchSize = defaultSyncBatchSize
	}

	if config.MaxBroadcastAttempts == 0 {
		config.MaxBroadcastAttempts = defaultMaxBroadcastAttempts
	}

	if config.ConfirmationTimeoutSeconds == 0 {
		config.ConfirmationTimeoutSeconds = defaultConfirmationTimeoutSeconds
	}

	if config.GasLimit == 0 {
		config.GasLimit = defaultGasLimit
	}

	if config.GasFeeMultiplier == 0 {
		config.GasFeeMultiplier = defaultGasFeeMultiplier
	}
}
