package validator

import (
	"math/big"

	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
)

// DepositEventValidatorImpl applies the terminal acceptance rules to observed
// deposit events. A rejection here is permanent for the event key.
type DepositEventValidatorImpl struct {
	destinationChainID *big.Int
	logger             hclog.Logger
}

var _ core.EventValidator = (*DepositEventValidatorImpl)(nil)

func NewDepositEventValidator(
	destinationChainID uint64, logger hclog.Logger,
) *DepositEventValidatorImpl {
	return &DepositEventValidatorImpl{
		destinationChainID: new(big.Int).SetUint64(destinationChainID),
		logger:             logger,
	}
}

func (v *DepositEventValidatorImpl) ValidateEvent(
	event *core.RawDepositEvent,
) (*core.RelayPayload, error) {
	if event.DestinationChainID == nil ||
		event.DestinationChainID.Cmp(v.destinationChainID) != 0 {
		return nil, &core.ValidationError{
			Key:    event.Key(),
			Reason: "destination chain id does not match configured destination",
		}
	}

	if event.Amount == nil || event.Amount.Sign() <= 0 {
		return nil, &core.ValidationError{
			Key:    event.Key(),
			Reason: "amount must be greater than zero",
		}
	}

	if event.Recipient == (common.Address{}) {
		return nil, &core.ValidationError{
			Key:    event.Key(),
			Reason: "recipient is the zero address",
		}
	}

	v.logger.Debug("event accepted", "key", event.Key(),
		"recipient", event.Recipient, "amount", event.Amount)

	return &core.RelayPayload{
		Recipient:          event.Recipient,
		Amount:             event.Amount,
		DestinationChainID: event.DestinationChainID,
		SourceTxHash:       event.SourceTxHash,
	}, nil
}
