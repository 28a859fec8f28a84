// Package ethereum verifies and produces Ethereum personal-sign signatures.
// The API uses them to authenticate privileged requests: the signer of the
// request body is the acting principal.
package ethereum

import (
	"fmt"
	"math/big"

	gecdsa "github.com/consensys/gnark-crypto/ecc/secp256k1/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the size of a recoverable signature in bytes
	SignatureLength = ethcrypto.SignatureLength
	// SigningPrefix is the prefix added when hashing Ethereum messages
	SigningPrefix = "\u0019Ethereum Signed Message:\n"
)

// ECDSASignature is a recoverable secp256k1 signature. The recovery id is
// kept in its 0-3 form.
type ECDSASignature struct {
	R        *big.Int `json:"r"`
	S        *big.Int `json:"s"`
	recovery byte
}

// BytesToSignature parses a 65 byte r ‖ s ‖ v signature. v may be given as
// 0-3 or in the 27-30 form used by wallets.
func BytesToSignature(signature []byte) (*ECDSASignature, error) {
	if len(signature) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(signature))
	}
	var parsed gecdsa.Signature
	if _, err := parsed.SetBytes(signature[:64]); err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	v := signature[64]
	if v >= 27 {
		v -= 27
	}
	if v > 3 {
		return nil, fmt.Errorf("invalid recovery id %d", signature[64])
	}
	return &ECDSASignature{
		R:        new(big.Int).SetBytes(parsed.R[:]),
		S:        new(big.Int).SetBytes(parsed.S[:]),
		recovery: v,
	}, nil
}

// HexToSignature decodes a hex signature, with or without 0x prefix.
func HexToSignature(hexSignature string) (*ECDSASignature, error) {
	if !has0xPrefix(hexSignature) {
		hexSignature = "0x" + hexSignature
	}
	b, err := hexutil.Decode(hexSignature)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	return BytesToSignature(b)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Valid reports whether both R and S are set.
func (sig *ECDSASignature) Valid() bool {
	return sig != nil && sig.R != nil && sig.S != nil
}

// Bytes returns r ‖ s ‖ v with v in the 0-3 form expected by
// ethcrypto.SigToPub.
func (sig *ECDSASignature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	sig.R.FillBytes(out[:32])
	sig.S.FillBytes(out[32:64])
	out[64] = sig.recovery
	return out
}

// Hex returns the signature in the 27-30 v form wallets produce.
func (sig *ECDSASignature) Hex() string {
	b := sig.Bytes()
	b[64] += 27
	return hexutil.Encode(b)
}

func (sig *ECDSASignature) String() string {
	return fmt.Sprintf("R: %s, S: %s, Recovery: %d", sig.R.String(), sig.S.String(), sig.recovery)
}

// Verify reports whether sig is a signature of message by expectedAddress.
func (sig *ECDSASignature) Verify(message []byte, expectedAddress common.Address) bool {
	addr, err := AddrFromSignature(message, sig)
	return err == nil && addr == expectedAddress
}

// AddrFromSignature recovers the address that signed message.
func AddrFromSignature(message []byte, signature *ECDSASignature) (common.Address, error) {
	if !signature.Valid() {
		return common.Address{}, fmt.Errorf("signature is nil")
	}
	pubKey, err := ethcrypto.SigToPub(HashMessage(message), signature.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("sigToPub %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
