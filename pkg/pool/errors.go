package pool

import "errors"

// ErrInvalidTransactionTransition is raised for any (stage, stage')
// pair not listed in the §4.6 transition table.
var ErrInvalidTransactionTransition = errors.New("pool: invalid transaction transition")
