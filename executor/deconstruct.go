package executor

import (
	"github.com/forkvm/evmcore/backend"
	"github.com/forkvm/evmcore/word"
)

// Deconstruct walks the journal and produces the apply stream, log stream
// and created-address set the backend commits (spec.md §4.4
// "Deconstruction", commit path).
func (e *StackExecutor) Deconstruct() ([]backend.Apply, []Log, map[word.Address]bool) {
	var applies []backend.Apply
	for addr, acct := range e.state {
		if e.deleted[addr] {
			continue
		}
		storage := acct.Storage
		if acct.ResetStorageBackend {
			storage = acct.StorageOriginal
		}
		applies = append(applies, backend.Apply{
			Address:      addr,
			Balance:      acct.Basic.Balance,
			Nonce:        acct.Basic.Nonce,
			Code:         acct.Code,
			HasCode:      acct.CodeKnown,
			Storage:      storage,
			ResetStorage: acct.ResetStorage,
		})
	}
	// An address in the deleted set never emits a Modify regardless of its
	// journal flags — Delete wins (SPEC_FULL.md §9 decision 3).
	for addr := range e.deleted {
		applies = append(applies, backend.Apply{Delete: true, Address: addr})
	}
	return applies, e.logs, e.createdContracts
}

// DeconstructForkOnly is the non-committing counterpart used for
// simulation: for addresses this executor did not itself create, it emits
// only the originals, preserving the backend's fork cache while dropping
// speculative changes.
func (e *StackExecutor) DeconstructForkOnly() ([]backend.Apply, []Log, map[word.Address]bool) {
	var applies []backend.Apply
	for addr, acct := range e.state {
		if e.deleted[addr] {
			continue
		}
		if e.createdContracts[addr] {
			applies = append(applies, backend.Apply{
				Address:      addr,
				Balance:      acct.Basic.Balance,
				Nonce:        acct.Basic.Nonce,
				Code:         acct.Code,
				HasCode:      acct.CodeKnown,
				Storage:      acct.Storage,
				ResetStorage: acct.ResetStorage,
			})
			continue
		}
		applies = append(applies, backend.Apply{
			Address: addr,
			Balance: acct.OriginalBasic.Balance,
			Nonce:   acct.OriginalBasic.Nonce,
			Code:    acct.OriginalCode,
			HasCode: acct.OriginalCodeKnown,
			Storage: acct.StorageOriginal,
		})
	}
	return applies, e.logs, e.createdContracts
}
