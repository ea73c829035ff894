// Package executor implements the gas-metered, journaling call/create
// executor: StackExecutor layers a copy-on-substate journal over a
// backend.ForkBackend, merging each nested frame back into its parent on
// success, revert or failure (spec.md §4.4).
package executor

import "github.com/forkvm/evmcore/word"

// Basic is the nonce/balance pair every account carries.
type Basic struct {
	Balance word.Word
	Nonce   uint64
}

// StackAccount is one address's journal entry: current and original basic
// info, current and original code, current and original storage, and the
// two reset flags spec.md §3 describes for deconstruction.
type StackAccount struct {
	Basic Basic
	// Code is nil when unknown (not yet fetched/observed this transaction).
	Code         []byte
	CodeKnown    bool
	Storage      map[word.Hash]word.Hash
	StorageOriginal map[word.Hash]word.Hash
	OriginalCode []byte
	OriginalCodeKnown bool
	OriginalBasic Basic
	// ResetStorage marks the address's storage as cleared-then-rebuilt,
	// used by CREATE when it reoccupies a previously-used address.
	ResetStorage bool
	// ResetStorageBackend, when true, makes deconstruction rebuild storage
	// from StorageOriginal instead of Storage (spec.md §4.4 "Deconstruction").
	ResetStorageBackend bool
}

func newStackAccount(basic Basic, code []byte, codeKnown bool) *StackAccount {
	return &StackAccount{
		Basic:             basic,
		Code:              code,
		CodeKnown:         codeKnown,
		Storage:           make(map[word.Hash]word.Hash),
		StorageOriginal:   make(map[word.Hash]word.Hash),
		OriginalCode:      code,
		OriginalCodeKnown: codeKnown,
		OriginalBasic:     basic,
		ResetStorageBackend: false,
	}
}

func (a *StackAccount) clone() *StackAccount {
	cp := *a
	cp.Storage = make(map[word.Hash]word.Hash, len(a.Storage))
	for k, v := range a.Storage {
		cp.Storage[k] = v
	}
	cp.StorageOriginal = make(map[word.Hash]word.Hash, len(a.StorageOriginal))
	for k, v := range a.StorageOriginal {
		cp.StorageOriginal[k] = v
	}
	return &cp
}
