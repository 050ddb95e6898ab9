package cryptography

import (
	"github.com/pkg/errors"

	"github.com/multiformats/go-multibase"
)

func decodeMultibase(mb string) ([]byte, error) {
	_, d, err := multibase.Decode(mb)
	return d, err
}

// EncodeMultibase encodes any key this package produces in base58btc.
func EncodeMultibase(key interface{}) (string, error) {
	var (
		raw []byte
		err error
	)

	switch t := key.(type) {
	case *Bls12381PublicKey:
		raw, err = t.Bytes()
	case *Bls12381PrivateKey:
		raw, err = t.Bytes()
	case *VrfPublicKey:
		raw, err = t.Bytes()
	case *VrfPrivateKey:
		raw, err = t.Bytes()
	default:
		return "", errors.Errorf("unsupported key type: %T", t)
	}
	if err != nil {
		return "", errors.Wrap(err, "marshalling key")
	}

	return multibase.Encode(multibase.Base58BTC, raw)
}

func DecodeBls12381PublicKey(mb string) (*Bls12381PublicKey, error) {
	b, err := decodeMultibase(mb)
	if err != nil {
		return nil, errors.Wrap(err, "decoding multibase")
	}

	return NewBls12381PublicKey(b)
}

func DecodeBls12381PrivateKey(mb string) (*Bls12381PrivateKey, error) {
	b, err := decodeMultibase(mb)
	if err != nil {
		return nil, errors.Wrap(err, "decoding multibase")
	}

	return NewBls12381PrivateKeyFromBytes(b)
}

func DecodeVrfPublicKey(mb string) (*VrfPublicKey, error) {
	b, err := decodeMultibase(mb)
	if err != nil {
		return nil, errors.Wrap(err, "decoding multibase")
	}

	return NewVrfPublicKey(b)
}

func DecodeVrfPrivateKey(mb string) (*VrfPrivateKey, error) {
	b, err := decodeMultibase(mb)
	if err != nil {
		return nil, errors.Wrap(err, "decoding multibase")
	}

	return NewVrfPrivateKeyFromBytes(b)
}
