package ethereum

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer is a secp256k1 private key producing personal-sign signatures.
type Signer ecdsa.PrivateKey

// Address returns the Ethereum address of the signer.
func (s *Signer) Address() common.Address {
	return ethcrypto.PubkeyToAddress(s.PublicKey)
}

// Sign signs msg with the Ethereum message prefix.
func (s *Signer) Sign(msg []byte) (*ECDSASignature, error) {
	return Sign(msg, (*ecdsa.PrivateKey)(s))
}

// NewSigner generates a new random signer.
func NewSigner() (*Signer, error) {
	s, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromHex loads a hex-encoded private key.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	if has0xPrefix(hexKey) {
		hexKey = hexKey[2:]
	}
	s, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("could not load key: %w", err)
	}
	return (*Signer)(s), nil
}

// NewSignerFromSeed derives a signer from the keccak256 hash of seed.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	s, err := ethcrypto.ToECDSA(ethcrypto.Keccak256(seed))
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return (*Signer)(s), nil
}

// Sign signs msg, adding the Ethereum message prefix, with privKey.
func Sign(msg []byte, privKey *ecdsa.PrivateKey) (*ECDSASignature, error) {
	ethSignature, err := ethcrypto.Sign(HashMessage(msg), privKey)
	if err != nil {
		return nil, fmt.Errorf("could not sign message: %w", err)
	}
	return &ECDSASignature{
		R:        new(big.Int).SetBytes(ethSignature[:32]),
		S:        new(big.Int).SetBytes(ethSignature[32:64]),
		recovery: ethSignature[64],
	}, nil
}

// HashMessage hashes data with the Ethereum message prefix.
func HashMessage(data []byte) []byte {
	return ethcrypto.Keccak256(
		fmt.Appendf(nil, "%s%d", SigningPrefix, len(data)),
		data,
	)
}
