package block

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

const HashSize = 32

// Domain separates the hash spaces of distinct message kinds so that
// e.g. a vote can never be replayed as a header signature.
type Domain byte

const (
	DomainHeader Domain = iota + 0x10
	DomainValidatorSet
	DomainMerkleLeaf
	DomainMerkleNode
	DomainBlsMessage
	DomainVrfInput
)

type Hash [HashSize]byte

var ZeroHash Hash

func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.Errorf("invalid hash length %d", len(b))
	}

	copy(h[:], b)
	return h, nil
}

// DomainHash returns sha2-256(domain || data).
func DomainHash(domain Domain, data []byte) Hash {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, byte(domain))
	buf = append(buf, data...)

	mh, err := multihash.Sum(buf, multihash.SHA2_256, -1)
	if err != nil {
		//sha2-256 is always registered
		panic(err)
	}

	var h Hash
	copy(h[:], mh[len(mh)-HashSize:])
	return h
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Cid wraps the digest as a raw sha2-256 CIDv1.
func (h Hash) Cid() cid.Cid {
	mh, err := multihash.Encode(h[:], multihash.SHA2_256)
	if err != nil {
		panic(err)
	}

	return cid.NewCidV1(cid.Raw, mh)
}

func (h Hash) String() string {
	return h.Cid().String()
}

func HashFromCid(c cid.Cid) (Hash, error) {
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return ZeroHash, errors.Wrap(err, "decoding multihash")
	}

	if dec.Code != multihash.SHA2_256 {
		return ZeroHash, errors.Errorf("unsupported multihash code %x", dec.Code)
	}

	return HashFromBytes(dec.Digest)
}
