package eth

import (
	"fmt"

	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SourceBridgeMetaData describes the single event the relayer consumes from
// the source bridge contract.
var SourceBridgeMetaData = &bind.MetaData{
	ABI: `[{"anonymous":false,"inputs":[{"indexed":true,"name":"sender","type":"address"},{"indexed":true,"name":"recipient","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"destinationChainId","type":"uint256"},{"indexed":false,"name":"nonce","type":"uint256"}],"name":"TokensDeposited","type":"event"}]`,
}

const tokensDepositedEventName = "TokensDeposited"

// TokensDepositedTopic is the topic hash of the TokensDeposited event.
var TokensDepositedTopic = crypto.Keccak256Hash(
	[]byte("TokensDeposited(address,address,uint256,uint256,uint256)"))

// DecodeDepositEventLog turns a raw log into a RawDepositEvent. The log must
// carry the TokensDeposited topic and two indexed address arguments.
func DecodeDepositEventLog(log *types.Log) (*core.RawDepositEvent, error) {
	if len(log.Topics) != 3 || log.Topics[0] != TokensDepositedTopic {
		return nil, fmt.Errorf("log %s:%d is not a TokensDeposited event", log.TxHash, log.Index)
	}

	parsedABI, err := SourceBridgeMetaData.GetAbi()
	if err != nil {
		return nil, err
	}

	values, err := parsedABI.Unpack(tokensDepositedEventName, log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack TokensDeposited data for %s:%d: %w",
			log.TxHash, log.Index, err)
	}

	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected TokensDeposited data layout for %s:%d", log.TxHash, log.Index)
	}

	amount, err := toBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("invalid amount in %s:%d: %w", log.TxHash, log.Index, err)
	}

	destinationChainID, err := toBigInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("invalid destination chain id in %s:%d: %w", log.TxHash, log.Index, err)
	}

	return &core.RawDepositEvent{
		SourceTxHash:       log.TxHash,
		LogIndex:           log.Index,
		BlockNumber:        log.BlockNumber,
		BlockHash:          log.BlockHash,
		Sender:             common.BytesToAddress(log.Topics[1].Bytes()),
		Recipient:          common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:             amount,
		DestinationChainID: destinationChainID,
	}, nil
}
