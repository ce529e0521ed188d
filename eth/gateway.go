package eth

import (
	"fmt"

	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// DestinationGatewayMetaData describes the mint entry point the relayer
// invokes on the destination gateway contract.
var DestinationGatewayMetaData = &bind.MetaData{
	ABI: `[{"constant":false,"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"sourceTxHash","type":"bytes32"}],"name":"mintBridgedTokens","outputs":[],"payable":false,"stateMutability":"nonpayable","type":"function"}]`,
}

const mintBridgedTokensMethod = "mintBridgedTokens"

// PackMintCall builds the calldata for mintBridgedTokens from a validated
// relay payload.
func PackMintCall(payload *core.RelayPayload) ([]byte, error) {
	parsedABI, err := DestinationGatewayMetaData.GetAbi()
	if err != nil {
		return nil, err
	}

	var sourceTxHash [32]byte

	copy(sourceTxHash[:], payload.SourceTxHash.Bytes())

	data, err := parsedABI.Pack(mintBridgedTokensMethod, payload.Recipient, payload.Amount, sourceTxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", mintBridgedTokensMethod, err)
	}

	return data, nil
}
