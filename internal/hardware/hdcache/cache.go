// Package hdcache caches extended public keys fetched from a device and
// derives non-hardened child keys locally, so repeated address lookups
// below the same base path cost a single device round-trip.
package hdcache

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"

	"github/chapool/go-hardware-signer/internal/hardware"
)

// Node is an immutable extended public key: a compressed secp256k1 public
// key plus its BIP32 chain code. Construct via NewNode; derivation returns
// fresh nodes and never mutates the parent.
type Node struct {
	publicKey []byte
	chainCode []byte
}

// NewNode validates and normalizes device-supplied key material. The public
// key may be compressed (33 bytes) or uncompressed (65 bytes); it is stored
// compressed. The chain code must be 32 bytes.
func NewNode(publicKey, chainCode []byte) (Node, error) {
	if len(publicKey) != 33 && len(publicKey) != 65 {
		return Node{}, errors.Errorf("invalid public key length: %d", len(publicKey))
	}
	if len(chainCode) != 32 {
		return Node{}, errors.Errorf("invalid chain code length: %d", len(chainCode))
	}

	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return Node{}, errors.Wrap(err, "failed to parse public key")
	}

	cc := make([]byte, 32)
	copy(cc, chainCode)

	return Node{
		publicKey: pub.SerializeCompressed(),
		chainCode: cc,
	}, nil
}

// PublicKey returns a copy of the compressed public key
func (n Node) PublicKey() []byte {
	out := make([]byte, len(n.publicKey))
	copy(out, n.publicKey)
	return out
}

// ChainCode returns a copy of the chain code
func (n Node) ChainCode() []byte {
	out := make([]byte, len(n.chainCode))
	copy(out, n.chainCode)
	return out
}

// UncompressedPublicKey returns the 65-byte uncompressed form
func (n Node) UncompressedPublicKey() ([]byte, error) {
	pub, err := btcec.ParsePubKey(n.publicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}
	return pub.SerializeUncompressed(), nil
}

// DeriveChild derives the non-hardened child at index. It is a pure
// function of (node, index): public-parent to public-child BIP32
// derivation, no private material involved. Hardened indices cannot be
// derived from a public key and return an error.
func DeriveChild(node Node, index uint32) (Node, error) {
	if hardware.IsHardened(index) {
		return Node{}, errors.Errorf("cannot derive hardened index %d from a public key", index)
	}

	parent := &bip32.Key{
		Key:       node.publicKey,
		ChainCode: node.chainCode,
		IsPrivate: false,
	}

	child, err := parent.NewChildKey(index)
	if err != nil {
		return Node{}, errors.Wrapf(err, "failed to derive child %d", index)
	}

	return NewNode(child.Key, child.ChainCode)
}

// Cache maps base paths to device-fetched nodes. One cache belongs to one
// driver instance; callers serialize requests per device, so no locking.
type Cache struct {
	nodes map[string]Node
}

// New returns an empty cache
func New() *Cache {
	return &Cache{nodes: make(map[string]Node)}
}

// Get looks up the node cached at basePath
func (c *Cache) Get(basePath string) (Node, bool) {
	node, ok := c.nodes[basePath]
	return node, ok
}

// Populate stores a node at basePath. Re-populating an existing entry is
// allowed; the last write wins.
func (c *Cache) Populate(basePath string, node Node) {
	c.nodes[basePath] = node
}

// Invalidate drops all entries. Called on Init so a swapped device never
// serves another device's keys.
func (c *Cache) Invalidate() {
	c.nodes = make(map[string]Node)
}

// Len reports the number of cached base paths
func (c *Cache) Len() int {
	return len(c.nodes)
}
