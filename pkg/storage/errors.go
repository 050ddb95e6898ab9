package storage

import "github.com/pkg/errors"

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("archive closed")

	ErrTxNotInBlock = errors.New("tx not in block")
)
