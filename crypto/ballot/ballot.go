// Package ballot derives the per-voter secret material of a vote: the
// secret itself, the nullifier that marks "this voter has voted in this
// election", and the commitment that binds the hidden candidate choice.
//
// Hashes use keccak256 over the packed encoding (address ‖ uint256 ‖ bytes32),
// the same bytes an EVM contract would hash, so values computed here can be
// checked on-chain.
package ballot

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// GenerateSecret returns 256 bits from the system CSPRNG.
func GenerateSecret() (common.Hash, error) {
	var secret common.Hash
	if _, err := rand.Read(secret[:]); err != nil {
		return common.Hash{}, fmt.Errorf("cannot read random secret: %w", err)
	}
	return secret, nil
}

// DeriveNullifier returns H(voter ‖ electionID ‖ secret). It is deterministic,
// so reusing a secret in the same election yields the same nullifier and is
// caught as a replay, while different elections yield unrelated values.
func DeriveNullifier(voter common.Address, electionID uint64, secret common.Hash) common.Hash {
	return packedHash(voter, electionID, secret)
}

// DeriveCommitment returns H(voter ‖ candidateID ‖ secret).
func DeriveCommitment(voter common.Address, candidateID uint64, secret common.Hash) common.Hash {
	return packedHash(voter, candidateID, secret)
}

func packedHash(addr common.Address, n uint64, secret common.Hash) common.Hash {
	word := uint256.NewInt(n).Bytes32()
	return ethcrypto.Keccak256Hash(addr.Bytes(), word[:], secret.Bytes())
}
