package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/cryptography"
	"github.com/tcfw/meshbft/pkg/validator"
	"gopkg.in/yaml.v3"
)

// ValidatorsFile is the yaml description of a validator set. Keys are
// multibase encoded. Secrets are optional and only used by local tooling.
type ValidatorsFile struct {
	Epoch      uint64           `yaml:"epoch"`
	Validators []ValidatorEntry `yaml:"validators"`
}

type ValidatorEntry struct {
	Index   uint64 `yaml:"index"`
	Name    string `yaml:"name,omitempty"`
	Address string `yaml:"address,omitempty"`
	Stake   uint64 `yaml:"stake"`
	Status  string `yaml:"status,omitempty"`

	BlsKey string `yaml:"blsKey"`
	VrfKey string `yaml:"vrfKey"`

	BlsSecret string `yaml:"blsSecret,omitempty"`
	VrfSecret string `yaml:"vrfSecret,omitempty"`
}

// Keys are the private keys of one validator.
type Keys struct {
	Bls *cryptography.Bls12381PrivateKey
	Vrf *cryptography.VrfPrivateKey
}

// NewValidatorEntry generates fresh keys for a validator.
func NewValidatorEntry(index, stake uint64, name string, withSecrets bool) (*ValidatorEntry, error) {
	bls := cryptography.NewBls12381PrivateKey()
	vrf := cryptography.NewVrfPrivateKey()

	e := &ValidatorEntry{Index: index, Name: name, Stake: stake}

	var err error
	if e.BlsKey, err = cryptography.EncodeMultibase(bls.PublicKey()); err != nil {
		return nil, err
	}
	if e.VrfKey, err = cryptography.EncodeMultibase(vrf.Public()); err != nil {
		return nil, err
	}

	if withSecrets {
		if e.BlsSecret, err = cryptography.EncodeMultibase(bls); err != nil {
			return nil, err
		}
		if e.VrfSecret, err = cryptography.EncodeMultibase(vrf); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func ReadValidatorsFile(path string) (*ValidatorsFile, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading validators file")
	}

	f := &ValidatorsFile{}
	if err := yaml.Unmarshal(d, f); err != nil {
		return nil, errors.Wrap(err, "parsing validators file")
	}

	return f, nil
}

func (f *ValidatorsFile) Write(path string) error {
	d, err := f.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(path, d, 0600)
}

func (f *ValidatorsFile) Marshal() ([]byte, error) {
	d, err := yaml.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling validators file")
	}

	return d, nil
}

// Set builds the validator set and returns any secrets present, keyed by
// validator index.
func (f *ValidatorsFile) Set() (*validator.Set, map[uint64]*Keys, error) {
	infos := make([]*validator.Info, 0, len(f.Validators))
	keys := make(map[uint64]*Keys)

	for _, e := range f.Validators {
		info, k, err := e.info()
		if err != nil {
			return nil, nil, errors.Wrapf(err, "validator %d", e.Index)
		}

		infos = append(infos, info)
		if k != nil {
			keys[e.Index] = k
		}
	}

	set, err := validator.New(f.Epoch, infos...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building validator set")
	}

	return set, keys, nil
}

func (e *ValidatorEntry) info() (*validator.Info, *Keys, error) {
	status, err := validator.ParseStatus(e.Status)
	if err != nil {
		return nil, nil, err
	}

	bk, err := cryptography.DecodeBls12381PublicKey(e.BlsKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "bls key")
	}

	vk, err := cryptography.DecodeVrfPublicKey(e.VrfKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "vrf key")
	}

	info := &validator.Info{
		Index:   e.Index,
		Name:    e.Name,
		Address: e.Address,
		Stake:   e.Stake,
		Status:  status,
		BlsKey:  bk,
		VrfKey:  vk,
	}

	if e.BlsSecret == "" || e.VrfSecret == "" {
		return info, nil, nil
	}

	bs, err := cryptography.DecodeBls12381PrivateKey(e.BlsSecret)
	if err != nil {
		return nil, nil, errors.Wrap(err, "bls secret")
	}

	vs, err := cryptography.DecodeVrfPrivateKey(e.VrfSecret)
	if err != nil {
		return nil, nil, errors.Wrap(err, "vrf secret")
	}

	if !bs.PublicKey().(*cryptography.Bls12381PublicKey).Equal(bk.Point) {
		return nil, nil, errors.New("bls secret does not match public key")
	}

	if !vs.Public().Equal(vk.Point) {
		return nil, nil, errors.New("vrf secret does not match public key")
	}

	return info, &Keys{Bls: bs, Vrf: vs}, nil
}
