package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

type LedgerConnectorMock struct {
	mock.Mock
}

var _ LedgerConnector = (*LedgerConnectorMock)(nil)

func (m *LedgerConnectorMock) CurrentHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) BlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	args := m.Called(ctx, height)

	return args.Get(0).(common.Hash), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) FilterDepositEvents(
	ctx context.Context, fromBlock, toBlock uint64,
) ([]*RawDepositEvent, error) {
	args := m.Called(ctx, fromBlock, toBlock)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*RawDepositEvent), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	args := m.Called(ctx, addr)

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) EstimateGas(
	ctx context.Context, from, to common.Address, data []byte,
) (uint64, error) {
	args := m.Called(ctx, from, to, data)

	return args.Get(0).(uint64), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) SuggestedGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*big.Int), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) SuggestedGasTipCap(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*big.Int), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) SubmitTx(ctx context.Context, signedTxBytes []byte) error {
	args := m.Called(ctx, signedTxBytes)

	return args.Error(0)
}

func (m *LedgerConnectorMock) GetReceipt(
	ctx context.Context, txHash common.Hash,
) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*types.Receipt), args.Error(1) //nolint:forcetypeassert
}

func (m *LedgerConnectorMock) Dispose() {
	m.Called()
}

type SignerMock struct {
	mock.Mock
	Addr common.Address
}

var _ Signer = (*SignerMock)(nil)

func (m *SignerMock) Address() common.Address {
	return m.Addr
}

func (m *SignerMock) SignTx(tx *types.Transaction) ([]byte, common.Hash, error) {
	args := m.Called(tx)

	if args.Get(0) == nil {
		return nil, common.Hash{}, args.Error(2)
	}

	return args.Get(0).([]byte), args.Get(1).(common.Hash), args.Error(2) //nolint:forcetypeassert
}

type EventValidatorMock struct {
	mock.Mock
}

var _ EventValidator = (*EventValidatorMock)(nil)

func (m *EventValidatorMock) ValidateEvent(event *RawDepositEvent) (*RelayPayload, error) {
	args := m.Called(event)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*RelayPayload), args.Error(1) //nolint:forcetypeassert
}

type BroadcastEngineMock struct {
	mock.Mock
}

var _ BroadcastEngine = (*BroadcastEngineMock)(nil)

func (m *BroadcastEngineMock) Broadcast(
	ctx context.Context, payload *RelayPayload,
) (common.Hash, error) {
	args := m.Called(ctx, payload)

	return args.Get(0).(common.Hash), args.Error(1) //nolint:forcetypeassert
}
