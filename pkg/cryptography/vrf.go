package cryptography

import (
	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/proof/dleq"
)

var (
	vrfSuite = edwards25519.NewBlakeSHA256Ed25519()

	ErrInvalidVrfProof = errors.New("invalid vrf proof")
)

// VrfProof is a discrete log equality proof that Gamma = sk*H(input)
// for the key whose public half is sk*G.
type VrfProof struct {
	Gamma []byte `msgpack:"g"`
	C     []byte `msgpack:"c"`
	R     []byte `msgpack:"r"`
	VG    []byte `msgpack:"vg"`
	VH    []byte `msgpack:"vh"`
}

func NewVrfPrivateKey() *VrfPrivateKey {
	return &VrfPrivateKey{vrfSuite.Scalar().Pick(vrfSuite.RandomStream())}
}

func NewVrfPrivateKeyFromBytes(b []byte) (*VrfPrivateKey, error) {
	sk := vrfSuite.Scalar()
	if err := sk.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "unmarshalling vrf private key")
	}

	return &VrfPrivateKey{sk}, nil
}

type VrfPrivateKey struct {
	sk kyber.Scalar
}

func (k *VrfPrivateKey) Public() *VrfPublicKey {
	return &VrfPublicKey{vrfSuite.Point().Mul(k.sk, nil)}
}

func (k *VrfPrivateKey) Bytes() ([]byte, error) {
	return k.sk.MarshalBinary()
}

// Prove evaluates the VRF on input, returning the output and a proof
// any holder of the public key can check.
func (k *VrfPrivateKey) Prove(input []byte) ([]byte, *VrfProof, error) {
	h := hashToPoint(input)

	proof, _, gamma, err := dleq.NewDLEQProof(vrfSuite, vrfSuite.Point().Base(), h, k.sk)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating dleq proof")
	}

	out, err := vrfOutput(gamma)
	if err != nil {
		return nil, nil, err
	}

	p := &VrfProof{}
	for _, f := range []struct {
		dst *[]byte
		src interface{ MarshalBinary() ([]byte, error) }
	}{
		{&p.Gamma, gamma},
		{&p.C, proof.C},
		{&p.R, proof.R},
		{&p.VG, proof.VG},
		{&p.VH, proof.VH},
	} {
		b, err := f.src.MarshalBinary()
		if err != nil {
			return nil, nil, errors.Wrap(err, "marshalling vrf proof")
		}
		*f.dst = b
	}

	return out, p, nil
}

func NewVrfPublicKey(b []byte) (*VrfPublicKey, error) {
	p := vrfSuite.Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, errors.Wrap(err, "unmarshalling vrf public key")
	}

	return &VrfPublicKey{p}, nil
}

type VrfPublicKey struct {
	kyber.Point
}

func (p *VrfPublicKey) Bytes() ([]byte, error) {
	return p.Point.MarshalBinary()
}

// Verify checks proof against input and returns the VRF output it commits to.
func (p *VrfPublicKey) Verify(input []byte, proof *VrfProof) ([]byte, error) {
	if proof == nil {
		return nil, ErrInvalidVrfProof
	}

	gamma, vg, vh := vrfSuite.Point(), vrfSuite.Point(), vrfSuite.Point()
	c, r := vrfSuite.Scalar(), vrfSuite.Scalar()

	for _, f := range []struct {
		dst interface{ UnmarshalBinary([]byte) error }
		src []byte
	}{
		{gamma, proof.Gamma},
		{c, proof.C},
		{r, proof.R},
		{vg, proof.VG},
		{vh, proof.VH},
	} {
		if err := f.dst.UnmarshalBinary(f.src); err != nil {
			return nil, errors.Wrap(ErrInvalidVrfProof, err.Error())
		}
	}

	dp := &dleq.Proof{C: c, R: r, VG: vg, VH: vh}
	if err := dp.Verify(vrfSuite, vrfSuite.Point().Base(), hashToPoint(input), p.Point, gamma); err != nil {
		return nil, errors.Wrap(ErrInvalidVrfProof, err.Error())
	}

	return vrfOutput(gamma)
}

func hashToPoint(input []byte) kyber.Point {
	return vrfSuite.Point().Pick(vrfSuite.XOF(input))
}

func vrfOutput(gamma kyber.Point) ([]byte, error) {
	b, err := gamma.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "marshalling vrf gamma")
	}

	h := vrfSuite.Hash()
	h.Write(b)
	return h.Sum(nil), nil
}
