package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// DefaultPath is the first account of the standard Ethereum BIP-44 tree (m/44'/60'/0'/0/0),
// the account ethers' Wallet.fromMnemonic selects.
var DefaultPath = accounts.DefaultBaseDerivationPath

// FromMnemonic derives the key at path from a BIP-39 mnemonic with an empty passphrase.
func FromMnemonic(mnemonic string, path accounts.DerivationPath) (*Signer, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	// Path components already carry the hardened offset.
	for _, index := range path {
		if key, err = key.NewChildKey(index); err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
	}

	// bip32 may strip leading zero bytes from the key.
	privateKey, err := crypto.ToECDSA(math.PaddedBigBytes(new(big.Int).SetBytes(key.Key), 32))
	if err != nil {
		return nil, fmt.Errorf("failed to parse derived key: %w", err)
	}
	return newSigner(privateKey)
}
