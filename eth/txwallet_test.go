package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestEthTxWallet_SignTx(t *testing.T) {
	chainID := big.NewInt(42)

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	wallet := NewEthTxWalletFromKey(privateKey, chainID)
	require.Equal(t, crypto.PubkeyToAddress(privateKey.PublicKey), wallet.Address())

	to := common.HexToAddress("0xff")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    7,
		To:       &to,
		Gas:      21_000,
		GasPrice: big.NewInt(100),
		Data:     []byte{0x01},
	})

	signedTxBytes, txHash, err := wallet.SignTx(tx)
	require.NoError(t, err)

	decoded := &types.Transaction{}
	require.NoError(t, decoded.UnmarshalBinary(signedTxBytes))
	require.Equal(t, txHash, decoded.Hash())
	require.Equal(t, uint64(7), decoded.Nonce())

	sender, err := types.Sender(types.NewLondonSigner(chainID), decoded)
	require.NoError(t, err)
	require.Equal(t, wallet.Address(), sender)
}

func TestNewEthTxWallet(t *testing.T) {
	t.Run("invalid key", func(t *testing.T) {
		_, err := NewEthTxWallet("not-a-key", big.NewInt(1))
		require.Error(t, err)
	})

	t.Run("valid key", func(t *testing.T) {
		privateKey, err := crypto.GenerateKey()
		require.NoError(t, err)

		wallet, err := NewEthTxWallet(
			common.Bytes2Hex(crypto.FromECDSA(privateKey)), big.NewInt(1))
		require.NoError(t, err)
		require.Equal(t, crypto.PubkeyToAddress(privateKey.PublicKey), wallet.Address())
	})
}
