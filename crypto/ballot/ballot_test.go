package ballot

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
)

var (
	voter1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	voter2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestGenerateSecret(t *testing.T) {
	c := qt.New(t)
	seen := map[common.Hash]bool{}
	for i := 0; i < 64; i++ {
		s, err := GenerateSecret()
		c.Assert(err, qt.IsNil)
		c.Assert(s, qt.Not(qt.Equals), common.Hash{})
		c.Assert(seen[s], qt.IsFalse)
		seen[s] = true
	}
}

func TestDeriveNullifier(t *testing.T) {
	c := qt.New(t)
	secret := common.HexToHash("0xabcdef")

	n1 := DeriveNullifier(voter1, 1, secret)
	c.Assert(DeriveNullifier(voter1, 1, secret), qt.Equals, n1)

	// every input is mixed in
	c.Assert(DeriveNullifier(voter2, 1, secret), qt.Not(qt.Equals), n1)
	c.Assert(DeriveNullifier(voter1, 2, secret), qt.Not(qt.Equals), n1)
	c.Assert(DeriveNullifier(voter1, 1, common.HexToHash("0x01")), qt.Not(qt.Equals), n1)
}

func TestPackedEncoding(t *testing.T) {
	c := qt.New(t)
	secret := common.HexToHash("0x05")

	// address (20 bytes) ‖ uint256 (32 bytes, big endian) ‖ bytes32
	packed := make([]byte, 0, 84)
	packed = append(packed, voter1.Bytes()...)
	id := make([]byte, 32)
	id[31] = 3
	packed = append(packed, id...)
	packed = append(packed, secret.Bytes()...)

	c.Assert(DeriveNullifier(voter1, 3, secret), qt.Equals, ethcrypto.Keccak256Hash(packed))
	c.Assert(DeriveCommitment(voter1, 3, secret), qt.Equals, ethcrypto.Keccak256Hash(packed))
}

func TestCommitmentHidesChoice(t *testing.T) {
	c := qt.New(t)
	secret := common.HexToHash("0x77")

	ca := DeriveCommitment(voter1, 1, secret)
	cb := DeriveCommitment(voter1, 2, secret)
	c.Assert(ca, qt.Not(qt.Equals), cb)
	c.Assert(DeriveCommitment(voter2, 1, secret), qt.Not(qt.Equals), ca)
	c.Assert(DeriveCommitment(voter1, 1, common.HexToHash("0x78")), qt.Not(qt.Equals), ca)
}
