package block

import (
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	Version1 uint8 = 1
)

var (
	ErrUnsupportedVersion = errors.New("unsupported header version")
	ErrInvalidParent      = errors.New("invalid parent hash")
)

// RoundInfo identifies a single consensus attempt.
type RoundInfo struct {
	Height    uint64    `msgpack:"h"`
	Round     uint64    `msgpack:"r"`
	Epoch     uint64    `msgpack:"e"`
	Timestamp time.Time `msgpack:"t"`
}

type Header struct {
	Version          uint8  `msgpack:"v"`
	Height           uint64 `msgpack:"h"`
	Round            uint64 `msgpack:"r"`
	Parent           Hash   `msgpack:"p"`
	StateRoot        Hash   `msgpack:"s"`
	TxRoot           Hash   `msgpack:"x"`
	ValidatorSetHash Hash   `msgpack:"vs"`
	CreatedAt        int64  `msgpack:"t"`
}

func Genesis(validatorSetHash Hash, createdAt time.Time) *Header {
	return &Header{
		Version:          Version1,
		ValidatorSetHash: validatorSetHash,
		CreatedAt:        createdAt.UnixMilli(),
	}
}

func (h *Header) IsGenesis() bool {
	return h.Height == 0
}

func (h *Header) Time() time.Time {
	return time.UnixMilli(h.CreatedAt)
}

func (h *Header) Marshal() ([]byte, error) {
	b, err := msgpack.Marshal(h)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling header")
	}

	return b, nil
}

// Hash is the domain separated hash of the canonical header encoding.
func (h *Header) Hash() (Hash, error) {
	b, err := h.Marshal()
	if err != nil {
		return ZeroHash, err
	}

	return DomainHash(DomainHeader, b), nil
}

func (h *Header) Validate() error {
	if h.Version != Version1 {
		return errors.Wrapf(ErrUnsupportedVersion, "version %d", h.Version)
	}

	if h.IsGenesis() != h.Parent.IsZero() {
		return errors.Wrapf(ErrInvalidParent, "height %d", h.Height)
	}

	return nil
}
