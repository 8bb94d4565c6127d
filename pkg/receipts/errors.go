package receipts

import "errors"

var (
	ErrEmptyTree       = errors.New("receipts: cannot build tree from empty leaves")
	ErrLeafNotFound    = errors.New("receipts: leaf not found in tree")
	ErrInvalidLeafHash = errors.New("receipts: leaf hash must be 32 bytes")
)
