package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	apiCore "github.com/Ethernal-Tech/evm-deposit-relayer/api/core"
	"github.com/Ethernal-Tech/evm-deposit-relayer/api/model/response"
	"github.com/Ethernal-Tech/evm-deposit-relayer/api/utils"
	"github.com/Ethernal-Tech/evm-deposit-relayer/common"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
)

type RelayerController struct {
	databases map[string]core.Database
	logger    hclog.Logger
}

var _ apiCore.APIController = (*RelayerController)(nil)

func NewRelayerController(databases map[string]core.Database, logger hclog.Logger) *RelayerController {
	return &RelayerController{
		databases: databases,
		logger:    logger,
	}
}

func (c *RelayerController) GetPathPrefix() string {
	return "Relayer"
}

func (c *RelayerController) GetEndpoints() []*apiCore.APIEndpoint {
	return []*apiCore.APIEndpoint{
		{Path: "GetProcessedEvent", Method: http.MethodGet, Handler: c.getProcessedEvent, APIKeyAuth: true},
		{Path: "GetProcessedEvents", Method: http.MethodGet, Handler: c.getProcessedEvents, APIKeyAuth: true},
		{Path: "GetPipelineStatus", Method: http.MethodGet, Handler: c.getPipelineStatus, APIKeyAuth: true},
	}
}

func (c *RelayerController) getProcessedEvent(w http.ResponseWriter, r *http.Request) {
	queryValues := r.URL.Query()

	db, exists := c.databases[queryValues.Get("pairId")]
	if !exists {
		utils.WriteErrorResponse(w, r, http.StatusBadRequest,
			fmt.Errorf("unknown chain pair: %s", queryValues.Get("pairId")), c.logger)

		return
	}

	txHash := queryValues.Get("txHash")
	if !isValidTxHash(txHash) {
		utils.WriteErrorResponse(w, r, http.StatusBadRequest,
			errors.New("invalid txHash query param"), c.logger)

		return
	}

	logIndex, err := strconv.ParseUint(queryValues.Get("logIndex"), 10, 64)
	if err != nil {
		utils.WriteErrorResponse(w, r, http.StatusBadRequest,
			errors.New("invalid logIndex query param"), c.logger)

		return
	}

	record, err := db.GetProcessedEvent(core.NewEventKey(ethcommon.HexToHash(txHash), uint(logIndex)))
	if err != nil {
		utils.WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	if record == nil {
		utils.WriteErrorResponse(w, r, http.StatusNotFound, errors.New("event not found"), c.logger)

		return
	}

	item, err := toProcessedEventResponse(record)
	if err != nil {
		utils.WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	utils.WriteResponse(w, r, http.StatusOK, item, c.logger)
}

func (c *RelayerController) getProcessedEvents(w http.ResponseWriter, r *http.Request) {
	queryValues := r.URL.Query()

	db, exists := c.databases[queryValues.Get("pairId")]
	if !exists {
		utils.WriteErrorResponse(w, r, http.StatusBadRequest,
			fmt.Errorf("unknown chain pair: %s", queryValues.Get("pairId")), c.logger)

		return
	}

	count := 0

	if rawCount := queryValues.Get("count"); rawCount != "" {
		parsed, err := strconv.Atoi(rawCount)
		if err != nil || parsed < 0 {
			utils.WriteErrorResponse(w, r, http.StatusBadRequest,
				errors.New("invalid count query param"), c.logger)

			return
		}

		count = parsed
	}

	records, err := db.GetProcessedEvents(count)
	if err != nil {
		utils.WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

		return
	}

	items := make([]*response.ProcessedEventResponse, 0, len(records))

	for _, record := range records {
		item, err := toProcessedEventResponse(record)
		if err != nil {
			utils.WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

			return
		}

		items = append(items, item)
	}

	utils.WriteResponse(w, r, http.StatusOK, items, c.logger)
}

func (c *RelayerController) getPipelineStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make([]*response.PipelineStatusResponse, 0, len(c.databases))

	for pairID, db := range c.databases {
		cursor, err := db.GetCursor()
		if err != nil {
			utils.WriteErrorResponse(w, r, http.StatusInternalServerError, err, c.logger)

			return
		}

		statuses = append(statuses, &response.PipelineStatusResponse{
			PairID:           pairID,
			LastScannedBlock: cursor,
		})
	}

	utils.WriteResponse(w, r, http.StatusOK, statuses, c.logger)
}

func toProcessedEventResponse(record *core.ProcessedRecord) (*response.ProcessedEventResponse, error) {
	sourceTxHash, logIndex, err := core.ParseEventKey(string(record.Key))
	if err != nil {
		return nil, fmt.Errorf("stored record has malformed key: %w", err)
	}

	return &response.ProcessedEventResponse{
		Key:               string(record.Key),
		SourceTxHash:      sourceTxHash.Hex(),
		LogIndex:          logIndex,
		BlockNumber:       record.BlockNumber,
		DestinationTxHash: record.DestinationTxHash,
		Status:            core.StatusToString(record.Status),
		Simulated:         record.Simulated,
		RejectReason:      record.RejectReason,
	}, nil
}

func isValidTxHash(value string) bool {
	if len(value) != 2+2*ethcommon.HashLength {
		return false
	}

	if value[:2] != "0x" && value[:2] != "0X" {
		return false
	}

	decoded, err := common.DecodeHex(value)

	return err == nil && len(decoded) == ethcommon.HashLength
}
