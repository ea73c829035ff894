package backend

import "github.com/forkvm/evmcore/word"

// Apply is one journal-entry instruction emitted by executor.Deconstruct:
// either Modify an address's basic/code/storage, or Delete it outright
// (spec.md §4.4 "Deconstruction").
type Apply struct {
	Delete bool

	Address      word.Address
	Balance      word.Word
	Nonce        uint64
	Code         []byte
	HasCode      bool
	Storage      map[word.Hash]word.Hash
	ResetStorage bool
}

// Apply merges values into the backend's state, per spec.md §4.5. tip
// writes land on the live State map; a historic block instead merges into
// that block's archive snapshot (Open Question #1 — tip is the default and
// only path exercised by executor code, but both are implemented).
func (b *ForkBackend) Apply(block uint64, values []Apply, logs []Log, receipts []*Receipt, deleteEmpty bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.State
	if block != b.LocalBlockNum {
		snap, ok := b.archive[block]
		if !ok {
			snap = make(map[word.Address]*Account)
			b.archive[block] = snap
		}
		target = snap
	}

	for _, v := range values {
		if v.Delete {
			delete(target, v.Address)
			continue
		}

		acct, ok := target[v.Address]
		if !ok {
			acct = &Account{Storage: make(map[word.Hash]word.Hash)}
			target[v.Address] = acct
		}
		acct.Balance = v.Balance.ToBig()
		acct.Nonce = v.Nonce
		if v.HasCode {
			acct.Code = v.Code
		}
		if v.ResetStorage {
			acct.Storage = make(map[word.Hash]word.Hash)
		}
		for slot, value := range v.Storage {
			if value == (word.Hash{}) {
				delete(acct.Storage, slot)
				continue
			}
			acct.Storage[slot] = value
		}

		isEmpty := acct.Balance.Sign() == 0 && acct.Nonce == 0 && len(acct.Code) == 0
		if isEmpty && deleteEmpty {
			delete(target, v.Address)
		}
	}

	b.logs[block] = append(b.logs[block], logs...)
	for _, r := range receipts {
		if r != nil {
			b.txs[r.TxHash] = r
		}
	}
}
