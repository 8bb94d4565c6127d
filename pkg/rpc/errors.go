package rpc

import "errors"

// Sentinel errors for the JSON-RPC surface (§6). Handlers report them
// as *Error values whose messages carry these errors' text.
var (
	ErrMethodNotFound      = errors.New("rpc: unknown method")
	ErrTransactionNotFound = errors.New("rpc: transaction not found")
	ErrSubstateNotFound    = errors.New("rpc: substate not found")
	ErrInvalidParams       = errors.New("rpc: invalid params")
)
