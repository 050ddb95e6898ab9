package validator

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/cryptography"
)

type Status uint8

const (
	StatusActive Status = iota + 1
	StatusInactive
	StatusJailed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusJailed:
		return "jailed"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of Status.String. An empty string is active.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "", "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	case "jailed":
		return StatusJailed, nil
	default:
		return 0, errors.Errorf("unknown validator status %q", s)
	}
}

// Info describes a single validator at a given index in the set.
type Info struct {
	Index   uint64
	Name    string
	Address string
	Stake   uint64
	Status  Status

	BlsKey cryptography.PublicKey
	VrfKey *cryptography.VrfPublicKey
}

func (i *Info) IsActive() bool {
	return i.Status == StatusActive
}

// leaf is the byte encoding used when hashing the set:
// index(LE) || bls key || vrf key || stake(LE) || status
func (i *Info) leaf() ([]byte, error) {
	bk, err := i.BlsKey.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "marshalling bls key")
	}

	vk, err := i.VrfKey.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "marshalling vrf key")
	}

	b := make([]byte, 0, 8+len(bk)+len(vk)+9)
	b = binary.LittleEndian.AppendUint64(b, i.Index)
	b = append(b, bk...)
	b = append(b, vk...)
	b = binary.LittleEndian.AppendUint64(b, i.Stake)
	b = append(b, byte(i.Status))

	return b, nil
}
