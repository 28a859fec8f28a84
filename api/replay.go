package api

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxSeenRequests bounds the replay cache. Past it the oldest entries are
// evicted before their window ends.
const maxSeenRequests = 1 << 16

// seenRequests remembers every signed body accepted while its timestamp is
// still fresh. A body stamped up to SignedRequestTTL ahead of the server
// clock stays fresh for twice that long.
type seenRequests struct {
	mu    sync.Mutex
	cache *expirable.LRU[common.Hash, struct{}]
}

func newSeenRequests() *seenRequests {
	return &seenRequests{
		cache: expirable.NewLRU[common.Hash, struct{}](maxSeenRequests, nil, 2*SignedRequestTTL),
	}
}

// markSeen records body as signed by signer. It fails with
// ErrRequestReplayed if the pair was recorded before.
func (s *seenRequests) markSeen(signer common.Address, body []byte) error {
	key := crypto.Keccak256Hash(signer.Bytes(), body)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(key) {
		return ErrRequestReplayed.Withf("body %s already processed", key.Hex())
	}
	s.cache.Add(key, struct{}{})
	return nil
}
