package eth

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/Ethernal-Tech/evm-deposit-relayer/relayer/core"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// EthTxWallet signs destination transactions with a single ECDSA key.
type EthTxWallet struct {
	addr       common.Address
	privateKey *ecdsa.PrivateKey
	chainID    *big.Int
}

var _ core.Signer = (*EthTxWallet)(nil)

func NewEthTxWallet(pk string, chainID *big.Int) (*EthTxWallet, error) {
	privateKey, err := crypto.HexToECDSA(pk)
	if err != nil {
		return nil, err
	}

	return &EthTxWallet{
		privateKey: privateKey,
		addr:       crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    chainID,
	}, nil
}

func NewEthTxWalletFromKey(privateKey *ecdsa.PrivateKey, chainID *big.Int) *EthTxWallet {
	return &EthTxWallet{
		privateKey: privateKey,
		addr:       crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    chainID,
	}
}

func (w *EthTxWallet) Address() common.Address {
	return w.addr
}

// SignTx returns the raw signed transaction bytes together with the hash the
// transaction will have once submitted.
func (w *EthTxWallet) SignTx(tx *types.Transaction) ([]byte, common.Hash, error) {
	signedTx, err := types.SignTx(tx, types.NewLondonSigner(w.chainID), w.privateKey)
	if err != nil {
		return nil, common.Hash{}, err
	}

	signedTxBytes, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, common.Hash{}, err
	}

	return signedTxBytes, signedTx.Hash(), nil
}
