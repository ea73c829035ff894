package executor

import "github.com/forkvm/evmcore/backend"

// Log and Receipt are shared with the backend package, since the
// executor's deconstruct output feeds directly into backend.Apply.
type Log = backend.Log
type Receipt = backend.Receipt
