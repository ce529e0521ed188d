package relayer

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	databaseaccess "github.com/Ethernal-Tech/evm-deposit-relayer/relayer/database_access"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestPipelineConfig() *core.ChainPairConfig {
	return &core.ChainPairConfig{
		PairID:            "prime",
		StartBlock:        90,
		ConfirmationDepth: 5,
		SyncBatchSize:     10,
	}
}

func newTestPipelineDatabase(t *testing.T) *databaseaccess.BBoltDatabase {
	t.Helper()

	db := &databaseaccess.BBoltDatabase{}
	require.NoError(t, db.Init(filepath.Join(t.TempDir(), "test.db")))

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func newTestRelayer(
	config *core.ChainPairConfig,
	db core.Database,
	connectorMock *core.LedgerConnectorMock,
	validatorMock *core.EventValidatorMock,
	engineMock *core.BroadcastEngineMock,
) *RelayerImpl {
	return NewRelayer(
		config, hclog.NewNullLogger(), connectorMock, db,
		validatorMock, engineMock, time.Second)
}

func blockHashForHeight(height uint64) ethcommon.Hash {
	return ethcommon.BigToHash(new(big.Int).SetUint64(height))
}

func newDepositEvent(blockNumber uint64, logIndex uint) *core.RawDepositEvent {
	return &core.RawDepositEvent{
		SourceTxHash:       ethcommon.HexToHash("0x0101"),
		LogIndex:           logIndex,
		BlockNumber:        blockNumber,
		BlockHash:          blockHashForHeight(blockNumber),
		Sender:             ethcommon.HexToAddress("0x11"),
		Recipient:          ethcommon.HexToAddress("0x22"),
		Amount:             big.NewInt(1000),
		DestinationChainID: big.NewInt(42),
	}
}

func payloadForEvent(event *core.RawDepositEvent) *core.RelayPayload {
	return &core.RelayPayload{
		Recipient:          event.Recipient,
		Amount:             event.Amount,
		DestinationChainID: event.DestinationChainID,
		SourceTxHash:       event.SourceTxHash,
	}
}

func TestRelayer_ConfirmationGating(t *testing.T) {
	config := newTestPipelineConfig()
	db := newTestPipelineDatabase(t)
	event := newDepositEvent(93, 0)

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(100), nil)
	// head 100 minus depth 5: only blocks up to 95 may be scanned
	connectorMock.On("FilterDepositEvents", mock.Anything, uint64(90), uint64(95)).
		Return([]*core.RawDepositEvent{event}, nil).Once()
	connectorMock.On("BlockHash", mock.Anything, mock.Anything).
		Return(blockHashForHeight(0), nil)

	validatorMock := &core.EventValidatorMock{}
	validatorMock.On("ValidateEvent", event).Return(payloadForEvent(event), nil)

	engineMock := &core.BroadcastEngineMock{}
	engineMock.On("Broadcast", mock.Anything, mock.Anything).
		Return(ethcommon.HexToHash("0xdest"), nil).Once()

	r := newTestRelayer(config, db, connectorMock, validatorMock, engineMock)

	require.NoError(t, r.execute(context.Background()))

	record, err := db.GetProcessedEvent(event.Key())
	require.NoError(t, err)
	require.Equal(t, core.StatusConfirmed, record.Status)
	require.Equal(t, ethcommon.HexToHash("0xdest").Hex(), record.DestinationTxHash)

	cursor, err := db.GetCursor()
	require.NoError(t, err)
	require.Equal(t, uint64(95), cursor)

	connectorMock.AssertExpectations(t)
	engineMock.AssertExpectations(t)
}

func TestRelayer_SkipsAlreadyProcessedEvents(t *testing.T) {
	config := newTestPipelineConfig()
	db := newTestPipelineDatabase(t)
	event := newDepositEvent(93, 0)

	// outcome recorded by a previous run
	require.NoError(t, db.MarkPending(event.Key(), event.BlockNumber))
	require.NoError(t, db.CommitProcessed(event.Key(), "0xoriginal", false))

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(100), nil)
	connectorMock.On("FilterDepositEvents", mock.Anything, uint64(90), uint64(95)).
		Return([]*core.RawDepositEvent{event}, nil)
	connectorMock.On("BlockHash", mock.Anything, mock.Anything).
		Return(blockHashForHeight(0), nil)

	validatorMock := &core.EventValidatorMock{}
	engineMock := &core.BroadcastEngineMock{}

	r := newTestRelayer(config, db, connectorMock, validatorMock, engineMock)

	require.NoError(t, r.execute(context.Background()))

	// the recorded outcome is untouched and no new broadcast happened
	record, err := db.GetProcessedEvent(event.Key())
	require.NoError(t, err)
	require.Equal(t, "0xoriginal", record.DestinationTxHash)

	engineMock.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	validatorMock.AssertNotCalled(t, "ValidateEvent", mock.Anything)
}

func TestRelayer_TerminalRejection(t *testing.T) {
	config := newTestPipelineConfig()
	db := newTestPipelineDatabase(t)
	event := newDepositEvent(93, 0)

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(100), nil)
	connectorMock.On("FilterDepositEvents", mock.Anything, uint64(90), uint64(95)).
		Return([]*core.RawDepositEvent{event}, nil)
	connectorMock.On("BlockHash", mock.Anything, mock.Anything).
		Return(blockHashForHeight(0), nil)

	validatorMock := &core.EventValidatorMock{}
	validatorMock.On("ValidateEvent", event).
		Return(nil, &core.ValidationError{Key: event.Key(), Reason: "amount must be greater than zero"})

	engineMock := &core.BroadcastEngineMock{}

	r := newTestRelayer(config, db, connectorMock, validatorMock, engineMock)

	require.NoError(t, r.execute(context.Background()))

	record, err := db.GetProcessedEvent(event.Key())
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, record.Status)
	require.Equal(t, "amount must be greater than zero", record.RejectReason)

	// the rejection is terminal, the cursor moves past the event
	cursor, err := db.GetCursor()
	require.NoError(t, err)
	require.Equal(t, uint64(95), cursor)

	engineMock.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
}

func TestRelayer_RecoverableBroadcastFailure(t *testing.T) {
	config := newTestPipelineConfig()
	db := newTestPipelineDatabase(t)
	event := newDepositEvent(93, 0)

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(100), nil)
	connectorMock.On("FilterDepositEvents", mock.Anything, uint64(90), uint64(95)).
		Return([]*core.RawDepositEvent{event}, nil)
	connectorMock.On("BlockHash", mock.Anything, mock.Anything).
		Return(blockHashForHeight(0), nil)

	validatorMock := &core.EventValidatorMock{}
	validatorMock.On("ValidateEvent", event).Return(payloadForEvent(event), nil)

	engineMock := &core.BroadcastEngineMock{}
	engineMock.On("Broadcast", mock.Anything, mock.Anything).
		Return(ethcommon.Hash{}, core.ErrConfirmationTimeout)

	r := newTestRelayer(config, db, connectorMock, validatorMock, engineMock)

	require.NoError(t, r.execute(context.Background()))

	// the event stays pending and the cursor does not move past it
	record, err := db.GetProcessedEvent(event.Key())
	require.NoError(t, err)
	require.Equal(t, core.StatusPending, record.Status)

	cursor, err := db.GetCursor()
	require.NoError(t, err)
	require.Equal(t, uint64(0), cursor)
}

func TestRelayer_ReorgRollback(t *testing.T) {
	config := newTestPipelineConfig()
	config.StartBlock = 1

	setupDB := func(t *testing.T) *databaseaccess.BBoltDatabase {
		t.Helper()

		db := newTestPipelineDatabase(t)

		blocks := make([]core.ScannedBlock, 0, 6)
		for height := uint64(45); height <= 50; height++ {
			blocks = append(blocks, core.ScannedBlock{
				Height: height,
				Hash:   blockHashForHeight(height),
			})
		}

		require.NoError(t, db.AddScannedBlocks(blocks))
		require.NoError(t, db.UpdateCursor(50))

		return db
	}

	newConnector := func() *core.LedgerConnectorMock {
		connectorMock := &core.LedgerConnectorMock{}
		connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(50), nil)
		// height 50 was replaced on chain, height 49 still matches
		connectorMock.On("BlockHash", mock.Anything, uint64(50)).
			Return(ethcommon.HexToHash("0xdeadbeef"), nil)
		connectorMock.On("BlockHash", mock.Anything, uint64(49)).
			Return(blockHashForHeight(49), nil)

		return connectorMock
	}

	t.Run("pending records above safe height are discarded", func(t *testing.T) {
		db := setupDB(t)

		pendingKey := core.NewEventKey(ethcommon.HexToHash("0x0aaa"), 0)
		require.NoError(t, db.MarkPending(pendingKey, 50))

		confirmedKey := core.NewEventKey(ethcommon.HexToHash("0x0bbb"), 0)
		require.NoError(t, db.MarkPending(confirmedKey, 48))
		require.NoError(t, db.CommitProcessed(confirmedKey, "0xdest", false))

		r := newTestRelayer(config, db, newConnector(),
			&core.EventValidatorMock{}, &core.BroadcastEngineMock{})

		require.NoError(t, r.execute(context.Background()))

		// cursor rewound to the safe height
		cursor, err := db.GetCursor()
		require.NoError(t, err)
		require.Equal(t, uint64(49), cursor)

		// the orphaned pending record is gone, the confirmed one is untouched
		record, err := db.GetProcessedEvent(pendingKey)
		require.NoError(t, err)
		require.Nil(t, record)

		record, err = db.GetProcessedEvent(confirmedKey)
		require.NoError(t, err)
		require.Equal(t, core.StatusConfirmed, record.Status)

		// the stale block hash was dropped as well
		block, err := db.GetScannedBlock(50)
		require.NoError(t, err)
		require.Nil(t, block)

		block, err = db.GetScannedBlock(49)
		require.NoError(t, err)
		require.NotNil(t, block)
	})

	t.Run("reorg under a confirmed record is fatal", func(t *testing.T) {
		db := setupDB(t)

		confirmedKey := core.NewEventKey(ethcommon.HexToHash("0x0ccc"), 0)
		require.NoError(t, db.MarkPending(confirmedKey, 50))
		require.NoError(t, db.CommitProcessed(confirmedKey, "0xdest", false))

		r := newTestRelayer(config, db, newConnector(),
			&core.EventValidatorMock{}, &core.BroadcastEngineMock{})

		err := r.execute(context.Background())
		require.Error(t, err)

		fatalErr, ok := err.(*core.FatalReorgError) //nolint:errorlint
		require.True(t, ok)
		require.Equal(t, uint64(49), fatalErr.Height)
		require.Equal(t, []core.EventKey{confirmedKey}, fatalErr.ConfirmedKeys)

		// nothing durable changed
		cursor, err := db.GetCursor()
		require.NoError(t, err)
		require.Equal(t, uint64(50), cursor)
	})
}

func TestRelayer_SimulateModeMarksRecords(t *testing.T) {
	config := newTestPipelineConfig()
	config.SimulateOnly = true

	db := newTestPipelineDatabase(t)
	event := newDepositEvent(93, 0)

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(100), nil)
	connectorMock.On("FilterDepositEvents", mock.Anything, uint64(90), uint64(95)).
		Return([]*core.RawDepositEvent{event}, nil)
	connectorMock.On("BlockHash", mock.Anything, mock.Anything).
		Return(blockHashForHeight(0), nil)

	validatorMock := &core.EventValidatorMock{}
	validatorMock.On("ValidateEvent", event).Return(payloadForEvent(event), nil)

	engineMock := &core.BroadcastEngineMock{}
	engineMock.On("Broadcast", mock.Anything, mock.Anything).
		Return(ethcommon.HexToHash("0x5151"), nil)

	r := newTestRelayer(config, db, connectorMock, validatorMock, engineMock)

	require.NoError(t, r.execute(context.Background()))

	record, err := db.GetProcessedEvent(event.Key())
	require.NoError(t, err)
	require.Equal(t, core.StatusConfirmed, record.Status)
	require.True(t, record.Simulated)
}

func TestRelayer_ShutdownObservedBetweenEvents(t *testing.T) {
	config := newTestPipelineConfig()
	db := newTestPipelineDatabase(t)
	event := newDepositEvent(93, 0)

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(100), nil)
	connectorMock.On("FilterDepositEvents", mock.Anything, uint64(90), uint64(95)).
		Return([]*core.RawDepositEvent{event}, nil)

	validatorMock := &core.EventValidatorMock{}
	engineMock := &core.BroadcastEngineMock{}

	r := newTestRelayer(config, db, connectorMock, validatorMock, engineMock)

	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()

	require.NoError(t, r.execute(ctx))

	// no event processing starts after shutdown and nothing durable moves
	engineMock.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)

	record, err := db.GetProcessedEvent(event.Key())
	require.NoError(t, err)
	require.Nil(t, record)

	cursor, err := db.GetCursor()
	require.NoError(t, err)
	require.Equal(t, uint64(0), cursor)
}

func TestRelayer_HeadBelowConfirmationDepth(t *testing.T) {
	config := newTestPipelineConfig()
	db := newTestPipelineDatabase(t)

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(3), nil)

	r := newTestRelayer(config, db, connectorMock,
		&core.EventValidatorMock{}, &core.BroadcastEngineMock{})

	require.NoError(t, r.execute(context.Background()))

	connectorMock.AssertNotCalled(t, "FilterDepositEvents",
		mock.Anything, mock.Anything, mock.Anything)
}

func TestRelayer_EventsProcessedInOrder(t *testing.T) {
	config := newTestPipelineConfig()
	db := newTestPipelineDatabase(t)

	first := newDepositEvent(91, 1)
	second := newDepositEvent(91, 4)
	third := newDepositEvent(94, 0)

	connectorMock := &core.LedgerConnectorMock{}
	connectorMock.On("CurrentHeight", mock.Anything).Return(uint64(100), nil)
	// logs returned out of order on purpose
	connectorMock.On("FilterDepositEvents", mock.Anything, uint64(90), uint64(95)).
		Return([]*core.RawDepositEvent{third, second, first}, nil)
	connectorMock.On("BlockHash", mock.Anything, mock.Anything).
		Return(blockHashForHeight(0), nil)

	var broadcastOrder []core.EventKey

	engineMock := &core.BroadcastEngineMock{}
	engineMock.On("Broadcast", mock.Anything, mock.Anything).
		Return(ethcommon.HexToHash("0xdest"), nil)

	validatorMock := &core.EventValidatorMock{}
	for _, event := range []*core.RawDepositEvent{first, second, third} {
		event := event
		validatorMock.On("ValidateEvent", event).Run(func(_ mock.Arguments) {
			broadcastOrder = append(broadcastOrder, event.Key())
		}).Return(payloadForEvent(event), nil)
	}

	r := newTestRelayer(config, db, connectorMock, validatorMock, engineMock)

	require.NoError(t, r.execute(context.Background()))

	require.Equal(t,
		[]core.EventKey{first.Key(), second.Key(), third.Key()},
		broadcastOrder)
}
