package clirelayer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ethernal-Tech/evm-deposit-relayer/api"
	"github.com/Ethernal-Tech/evm-deposit-relayer/api/controllers"
	apiCore "github.com/Ethernal-Tech/evm-deposit-relayer/api/core"
	"github.com/Ethernal-Tech/evm-deposit-relayer/common"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	relayermanager "github.com/Ethernal-Tech/evm-deposit-relayer/relayer/relayer_manager"
	"github.com/Ethernal-Tech/evm-deposit-relayer/telemetry"
	"github.com/spf13/cobra"
)

var initParamsData = &initParams{}

func GetRunRelayerCommand() *cobra.Command {
	runRelayerCmd := &cobra.Command{
		Use:     "run-relayer",
		Short:   "runs the deposit relayer pipelines",
		PreRunE: runPreRun,
		RunE:    runCommand,
	}

	initParamsData.setFlags(runRelayerCmd)

	return runRelayerCmd
}

func runPreRun(_ *cobra.Command, _ []string) error {
	return initParamsData.validateFlags()
}

func runCommand(_ *cobra.Command, _ []string) error {
	config, err := common.LoadConfig[core.RelayerManagerConfiguration](initParamsData.config, "relayer")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := common.NewLogger(config.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	telemetryInstance := telemetry.NewTelemetry(config.Telemetry, logger.Named("telemetry"))
	if telemetryInstance.IsEnabled() {
		if err := telemetryInstance.Start(); err != nil {
			return fmt.Errorf("failed to start telemetry: %w", err)
		}

		defer telemetryInstance.Close(context.Background()) //nolint:errcheck
	}

	relayerManager, err := relayermanager.NewRelayerManager(ctx, config, logger)
	if err != nil {
		return fmt.Errorf("failed to create relayer manager: %w", err)
	}

	if config.API.Port != 0 {
		apiControllers := []apiCore.APIController{
			controllers.NewRelayerController(relayerManager.Databases(), logger.Named("api")),
		}

		apiInstance, err := api.NewAPI(ctx, config.API, apiControllers, logger.Named("api"))
		if err != nil {
			return fmt.Errorf("failed to create api: %w", err)
		}

		go apiInstance.Start()
		defer apiInstance.Dispose() //nolint:errcheck
	}

	if err := relayerManager.Start(); err != nil {
		return fmt.Errorf("failed to start relayer manager: %w", err)
	}

	defer relayerManager.Stop() //nolint:errcheck

	signalChannel := make(chan os.Signal, 1)
	// Notify the signalChannel when the interrupt signal is received (Ctrl+C)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)

	select {
	case <-signalChannel:
		logger.Info("shutdown signal received")
	case <-relayerManager.Done():
		if fatalErr := relayerManager.FatalError(); fatalErr != nil {
			return fatalErr
		}
	}

	return nil
}
