// Package censusdb persists built eligibility trees so inclusion proofs can
// be served for any root that was ever published.
package censusdb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vocdoni/ballot-ledger/census"
	"github.com/vocdoni/ballot-ledger/db"
	"github.com/vocdoni/ballot-ledger/log"
	"github.com/vocdoni/ballot-ledger/types"
)

var (
	// ErrCensusNotFound is returned when a census is not found in the database.
	ErrCensusNotFound = errors.New("census not found in the local database")

	censusPrefix = []byte("c/") // censusID -> snapshot
	rootPrefix   = []byte("r/") // root -> censusID
)

const cacheSize = 128

// snapshot is the stored form of a census. The tree is rebuilt on load.
type snapshot struct {
	ID         uuid.UUID `cbor:"1,keyasint"`
	Root       []byte    `cbor:"2,keyasint"`
	Identities [][]byte  `cbor:"3,keyasint"`
	CreatedAt  int64     `cbor:"4,keyasint"`
}

// CensusRef is a loaded census snapshot.
type CensusRef struct {
	ID        uuid.UUID
	CreatedAt time.Time
	tree      *census.Tree
}

// Tree returns the eligibility tree of the census.
func (cr *CensusRef) Tree() *census.Tree { return cr.tree }

// Root returns the census root.
func (cr *CensusRef) Root() common.Hash { return cr.tree.Root() }

// Size returns the number of identities in the census.
func (cr *CensusRef) Size() int { return cr.tree.Size() }

// Proof is an inclusion proof for one identity of a stored census.
type Proof struct {
	Root     common.Hash        `json:"root"`
	Identity common.Address     `json:"identity"`
	Leaf     common.Hash        `json:"leaf"`
	Index    int                `json:"index"`
	Merkle   *types.MerkleProof `json:"merkleProof"`
}

// CensusDB stores census snapshots indexed by id and by root.
type CensusDB struct {
	mu    sync.Mutex
	db    db.Database
	cache *lru.Cache[uuid.UUID, *CensusRef]
}

// NewCensusDB creates a new CensusDB over database.
func NewCensusDB(database db.Database) *CensusDB {
	cache, err := lru.New[uuid.UUID, *CensusRef](cacheSize)
	if err != nil {
		log.Fatalf("failed to create census cache: %v", err)
	}
	return &CensusDB{db: database, cache: cache}
}

// New builds the tree of identities and stores it. Publishing an identity
// list whose root is already stored returns the existing census.
func (c *CensusDB) New(identities []common.Address) (*CensusRef, error) {
	tree, err := census.BuildTree(identities)
	if err != nil {
		return nil, err
	}
	root := tree.Root()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ref, err := c.loadByRoot(root); err == nil {
		return ref, nil
	} else if !errors.Is(err, ErrCensusNotFound) {
		return nil, err
	}

	ref := &CensusRef{
		ID:        uuid.New(),
		CreatedAt: time.Unix(time.Now().Unix(), 0),
		tree:      tree,
	}
	snap := snapshot{
		ID:         ref.ID,
		Root:       root.Bytes(),
		Identities: make([][]byte, len(identities)),
		CreatedAt:  ref.CreatedAt.Unix(),
	}
	for i, id := range identities {
		snap.Identities[i] = id.Bytes()
	}
	data, err := cbor.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode census: %w", err)
	}

	wtx := c.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Set(censusKey(ref.ID), data); err != nil {
		return nil, err
	}
	if err := wtx.Set(rootKey(root), ref.ID[:]); err != nil {
		return nil, err
	}
	if err := wtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit census: %w", err)
	}
	c.cache.Add(ref.ID, ref)
	log.Debugw("census stored", "id", ref.ID.String(), "root", root.Hex(), "size", tree.Size())
	return ref, nil
}

// Load returns the census with the given id.
func (c *CensusDB) Load(censusID uuid.UUID) (*CensusRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(censusID)
}

// LoadByRoot returns the census published with the given root.
func (c *CensusDB) LoadByRoot(root common.Hash) (*CensusRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadByRoot(root)
}

// ExistsByRoot reports whether a census with the given root is stored.
func (c *CensusDB) ExistsByRoot(root common.Hash) bool {
	_, err := c.db.Get(rootKey(root))
	return err == nil
}

// ProofByRoot returns the inclusion proof of identity in the census with the
// given root.
func (c *CensusDB) ProofByRoot(root common.Hash, identity common.Address) (*Proof, error) {
	ref, err := c.LoadByRoot(root)
	if err != nil {
		return nil, err
	}
	idx, err := ref.tree.IndexOf(identity)
	if err != nil {
		return nil, err
	}
	mp, err := ref.tree.ProofFor(idx)
	if err != nil {
		return nil, err
	}
	return &Proof{
		Root:     root,
		Identity: identity,
		Leaf:     census.HashLeaf(identity),
		Index:    idx,
		Merkle:   mp,
	}, nil
}

// Del removes a census and its root index entry.
func (c *CensusDB) Del(censusID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref, err := c.load(censusID)
	if err != nil {
		return err
	}
	wtx := c.db.WriteTx()
	defer wtx.Discard()
	if err := wtx.Delete(censusKey(censusID)); err != nil {
		return err
	}
	if err := wtx.Delete(rootKey(ref.Root())); err != nil {
		return err
	}
	if err := wtx.Commit(); err != nil {
		return fmt.Errorf("commit census deletion: %w", err)
	}
	c.cache.Remove(censusID)
	return nil
}

func (c *CensusDB) loadByRoot(root common.Hash) (*CensusRef, error) {
	idBytes, err := c.db.Get(rootKey(root))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: root %s", ErrCensusNotFound, root.Hex())
	}
	if err != nil {
		return nil, err
	}
	censusID, err := uuid.FromBytes(idBytes)
	if err != nil {
		return nil, fmt.Errorf("corrupt root index for %s: %w", root.Hex(), err)
	}
	return c.load(censusID)
}

func (c *CensusDB) load(censusID uuid.UUID) (*CensusRef, error) {
	if ref, ok := c.cache.Get(censusID); ok {
		return ref, nil
	}
	data, err := c.db.Get(censusKey(censusID))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCensusNotFound, censusID)
	}
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode census %s: %w", censusID, err)
	}
	identities := make([]common.Address, len(snap.Identities))
	for i, id := range snap.Identities {
		identities[i] = common.BytesToAddress(id)
	}
	tree, err := census.BuildTree(identities)
	if err != nil {
		return nil, fmt.Errorf("rebuild census %s: %w", censusID, err)
	}
	if tree.Root() != common.BytesToHash(snap.Root) {
		return nil, fmt.Errorf("census %s root mismatch: stored %x, rebuilt %s",
			censusID, snap.Root, tree.Root().Hex())
	}
	ref := &CensusRef{ID: snap.ID, CreatedAt: time.Unix(snap.CreatedAt, 0), tree: tree}
	c.cache.Add(censusID, ref)
	return ref, nil
}

func censusKey(censusID uuid.UUID) []byte {
	return append(append([]byte{}, censusPrefix...), censusID[:]...)
}

func rootKey(root common.Hash) []byte {
	return append(append([]byte{}, rootPrefix...), root.Bytes()...)
}
