package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Ethernal-Tech/evm-deposit-relayer/api/model/response"
	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	databaseaccess "github.com/Ethernal-Tech/evm-deposit-relayer/relayer/database_access"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*RelayerController, core.Database) {
	t.Helper()

	db := &databaseaccess.BBoltDatabase{}
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "test.db")))

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	controller := NewRelayerController(
		map[string]core.Database{"prime": db}, hclog.NewNullLogger())

	return controller, db
}

func TestRelayerController_GetProcessedEvent(t *testing.T) {
	txHash := ethcommon.HexToHash("0x0a")
	key := core.NewEventKey(txHash, 4)

	t.Run("known event", func(t *testing.T) {
		controller, db := newTestController(t)

		require.NoError(t, db.MarkPending(key, 93))
		require.NoError(t, db.CommitProcessed(key, "0xdest", false))

		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf(
			"/api/Relayer/GetProcessedEvent?pairId=prime&txHash=%s&logIndex=4", txHash.Hex()), nil)
		rec := httptest.NewRecorder()

		controller.getProcessedEvent(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp response.ProcessedEventResponse

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, string(key), resp.Key)
		require.Equal(t, txHash.Hex(), resp.SourceTxHash)
		require.Equal(t, uint(4), resp.LogIndex)
		require.Equal(t, "confirmed", resp.Status)
		require.Equal(t, "0xdest", resp.DestinationTxHash)
	})

	t.Run("unknown event", func(t *testing.T) {
		controller, _ := newTestController(t)

		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf(
			"/api/Relayer/GetProcessedEvent?pairId=prime&txHash=%s&logIndex=9", txHash.Hex()), nil)
		rec := httptest.NewRecorder()

		controller.getProcessedEvent(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown pair", func(t *testing.T) {
		controller, _ := newTestController(t)

		req := httptest.NewRequest(http.MethodGet,
			"/api/Relayer/GetProcessedEvent?pairId=nexus&txHash=0x0a&logIndex=0", nil)
		rec := httptest.NewRecorder()

		controller.getProcessedEvent(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed tx hash", func(t *testing.T) {
		controller, _ := newTestController(t)

		for _, malformed := range []string{
			"0x0a", // too short
			"0xzz5bc1e05436bd9fcdcc031b0b737a2c873b24e2bdeba24cfcfa6562884a1e28", // not hex
			"515bc1e05436bd9fcdcc031b0b737a2c873b24e2bdeba24cfcfa6562884a1e2850", // no prefix
		} {
			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf(
				"/api/Relayer/GetProcessedEvent?pairId=prime&txHash=%s&logIndex=0", malformed), nil)
			rec := httptest.NewRecorder()

			controller.getProcessedEvent(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code, malformed)
		}
	})
}

func TestRelayerController_GetProcessedEvents(t *testing.T) {
	firstKey := core.NewEventKey(ethcommon.HexToHash("0x0a"), 0)
	secondKey := core.NewEventKey(ethcommon.HexToHash("0x0b"), 2)

	t.Run("lists recorded outcomes", func(t *testing.T) {
		controller, db := newTestController(t)

		require.NoError(t, db.MarkPending(firstKey, 93))
		require.NoError(t, db.CommitProcessed(firstKey, "0xdest", false))
		require.NoError(t, db.MarkPending(secondKey, 94))
		require.NoError(t, db.MarkFailed(secondKey, "amount must be greater than zero"))

		req := httptest.NewRequest(http.MethodGet,
			"/api/Relayer/GetProcessedEvents?pairId=prime", nil)
		rec := httptest.NewRecorder()

		controller.getProcessedEvents(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []*response.ProcessedEventResponse

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 2)

		byKey := map[string]*response.ProcessedEventResponse{}
		for _, item := range resp {
			byKey[item.Key] = item
		}

		require.Equal(t, "confirmed", byKey[string(firstKey)].Status)
		require.Equal(t, uint(0), byKey[string(firstKey)].LogIndex)
		require.Equal(t, "failed", byKey[string(secondKey)].Status)
		require.Equal(t, uint(2), byKey[string(secondKey)].LogIndex)
	})

	t.Run("count limits the result", func(t *testing.T) {
		controller, db := newTestController(t)

		require.NoError(t, db.MarkPending(firstKey, 93))
		require.NoError(t, db.MarkPending(secondKey, 94))

		req := httptest.NewRequest(http.MethodGet,
			"/api/Relayer/GetProcessedEvents?pairId=prime&count=1", nil)
		rec := httptest.NewRecorder()

		controller.getProcessedEvents(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []*response.ProcessedEventResponse

		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
	})

	t.Run("invalid count", func(t *testing.T) {
		controller, _ := newTestController(t)

		req := httptest.NewRequest(http.MethodGet,
			"/api/Relayer/GetProcessedEvents?pairId=prime&count=-1", nil)
		rec := httptest.NewRecorder()

		controller.getProcessedEvents(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown pair", func(t *testing.T) {
		controller, _ := newTestController(t)

		req := httptest.NewRequest(http.MethodGet,
			"/api/Relayer/GetProcessedEvents?pairId=nexus", nil)
		rec := httptest.NewRecorder()

		controller.getProcessedEvents(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRelayerController_GetPipelineStatus(t *testing.T) {
	controller, db := newTestController(t)

	require.NoError(t, db.UpdateCursor(95))

	req := httptest.NewRequest(http.MethodGet, "/api/Relayer/GetPipelineStatus", nil)
	rec := httptest.NewRecorder()

	controller.getPipelineStatus(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []*response.PipelineStatusResponse

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, "prime", resp[0].PairID)
	require.Equal(t, uint64(95), resp[0].LastScannedBlock)
}
