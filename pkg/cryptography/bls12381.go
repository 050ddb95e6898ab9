package cryptography

import (
	"crypto"
	"io"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	sig "github.com/drand/kyber/sign/bls"
	"github.com/drand/kyber/util/random"
	"github.com/pkg/errors"
)

var (
	_ crypto.PrivateKey = (*Bls12381PrivateKey)(nil)
	_ crypto.PublicKey  = (*Bls12381PublicKey)(nil)

	_ Signer    = (*Bls12381PrivateKey)(nil)
	_ PublicKey = (*Bls12381PublicKey)(nil)

	pairing = bls.NewBLS12381Suite()
	scheme  = sig.NewSchemeOnG1(pairing)

	// keyTemplate is a point in whichever group the scheme uses for public keys
	keyTemplate kyber.Point
)

func init() {
	_, keyTemplate = scheme.NewKeyPair(random.New())
}

// Signer signs 32 byte domain separated hashes.
type Signer interface {
	SignHash(hash []byte) ([]byte, error)
	PublicKey() PublicKey
}

// PublicKey verifies signatures produced by a Signer.
type PublicKey interface {
	VerifyHash(hash []byte, signature []byte) bool
	Bytes() ([]byte, error)
}

func NewBls12381PrivateKey() *Bls12381PrivateKey {
	sk, _ := scheme.NewKeyPair(random.New())
	return &Bls12381PrivateKey{sk}
}

func NewBls12381PrivateKeyFromBytes(b []byte) (*Bls12381PrivateKey, error) {
	sk := pairing.G1().Scalar()
	if err := sk.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "unmarshalling bls private key")
	}

	return &Bls12381PrivateKey{sk}, nil
}

type Bls12381PrivateKey struct {
	sk kyber.Scalar
}

func (b *Bls12381PrivateKey) Sign(_ io.Reader, digest []byte, _ crypto.SignerOpts) (signature []byte, err error) {
	return scheme.Sign(b.sk, digest)
}

func (b *Bls12381PrivateKey) SignHash(hash []byte) ([]byte, error) {
	s, err := b.Sign(nil, hash, nil)
	if err != nil {
		return nil, errors.Wrap(err, "bls signing")
	}

	return s, nil
}

func (b *Bls12381PrivateKey) Public() crypto.PublicKey {
	return b.publicKey()
}

func (b *Bls12381PrivateKey) PublicKey() PublicKey {
	return b.publicKey()
}

func (b *Bls12381PrivateKey) publicKey() *Bls12381PublicKey {
	pk := keyTemplate.Clone().Mul(b.sk, nil)
	return &Bls12381PublicKey{pk}
}

func (b *Bls12381PrivateKey) Bytes() ([]byte, error) {
	return b.sk.MarshalBinary()
}

func (b *Bls12381PrivateKey) Equal(obls crypto.PrivateKey) bool {
	o, ok := obls.(*Bls12381PrivateKey)
	return ok && b.sk.Equal(o.sk)
}

func NewBls12381PublicKey(b []byte) (*Bls12381PublicKey, error) {
	pk := &Bls12381PublicKey{keyTemplate.Clone().Null()}
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "unmarshalling bls public key")
	}

	return pk, nil
}

type Bls12381PublicKey struct {
	kyber.Point
}

func (b *Bls12381PublicKey) Bytes() ([]byte, error) {
	return b.Point.MarshalBinary()
}

func (b *Bls12381PublicKey) Verify(signature, msg []byte) (bool, error) {
	if err := scheme.Verify(b.Point, msg, signature); err != nil {
		return false, err
	}

	return true, nil
}

func (b *Bls12381PublicKey) VerifyHash(hash []byte, signature []byte) bool {
	ok, _ := b.Verify(signature, hash)
	return ok
}
