package proof

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"github.com/holiman/uint256"

	"github.com/vocdoni/ballot-ledger/crypto/ballot"
	"github.com/vocdoni/ballot-ledger/types"
)

var (
	testVoter  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testSecret = common.HexToHash("0x5ec2e7")
)

func TestAssembleAt(t *testing.T) {
	c := qt.New(t)
	at := time.Unix(1_700_000_000, 0)
	eligibility := &types.MerkleProof{
		Siblings: []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
		Path:     2,
	}
	vp, mp := AssembleAt(testVoter, 4, 2, testSecret, eligibility, at)

	c.Assert(vp.Nullifier, qt.Equals, ballot.DeriveNullifier(testVoter, 4, testSecret))
	c.Assert(vp.Commitment, qt.Equals, ballot.DeriveCommitment(testVoter, 2, testSecret))
	c.Assert(vp.CandidateID, qt.Equals, uint64(2))
	c.Assert(vp.Timestamp, qt.Equals, int64(1_700_000_000))
	c.Assert(WellFormed(vp.Proof), qt.IsTrue)
	c.Assert(mp, qt.DeepEquals, eligibility)

	// the returned proof is a copy
	mp.Siblings[0] = common.Hash{}
	c.Assert(eligibility.Siblings[0], qt.Equals, common.HexToHash("0x01"))
}

func TestAssembleNilEligibility(t *testing.T) {
	c := qt.New(t)
	before := time.Now().Unix()
	vp, mp := Assemble(testVoter, 1, 1, testSecret, nil)
	c.Assert(mp, qt.IsNotNil)
	c.Assert(mp.Siblings, qt.HasLen, 0)
	c.Assert(vp.Timestamp >= before, qt.IsTrue)
}

func TestPlaceholderWords(t *testing.T) {
	c := qt.New(t)
	n, cm := common.HexToHash("0xaa"), common.HexToHash("0xbb")
	words := Placeholder(n, cm)
	c.Assert(words, qt.HasLen, types.ProofWords)

	idx := uint256.NewInt(3).Bytes32()
	var want uint256.Int
	want.SetBytes(ethcrypto.Keccak256(n.Bytes(), cm.Bytes(), idx[:]))
	c.Assert(words[3].Eq(&want), qt.IsTrue)

	// deterministic, and bound to both inputs
	c.Assert(Placeholder(n, cm), qt.DeepEquals, words)
	c.Assert(Placeholder(cm, n)[0].Eq(&words[0]), qt.IsFalse)
}

func TestWellFormed(t *testing.T) {
	c := qt.New(t)
	words := Placeholder(common.HexToHash("0x01"), common.HexToHash("0x02"))
	c.Assert(WellFormed(words), qt.IsTrue)
	c.Assert(WellFormed(words[:7]), qt.IsFalse)
	c.Assert(WellFormed(append(words, *uint256.NewInt(1))), qt.IsFalse)
	c.Assert(WellFormed(nil), qt.IsFalse)

	zeroed := append([]uint256.Int(nil), words...)
	zeroed[5].Clear()
	c.Assert(WellFormed(zeroed), qt.IsFalse)
}
