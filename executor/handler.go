package executor

import (
	"github.com/forkvm/evmcore/backend"
	"github.com/forkvm/evmcore/gas"
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/word"
)

// StackExecutor implements runtime.Handler: every external opcode a frame
// traps on is answered here, charging its static gas cost against this
// frame's Gasometer before touching the journal or backend.

// chargeOpcode prices one internal opcode's GasRequest (see
// machine.GasRequest's doc comment for why machine can't do this itself) and records it against
// the frame's memory high-water mark. It is wired into the substate's
// machine.Env.Charge by Call/Create so every arithmetic, stack and memory
// opcode pays before it runs, not just the ones that trap out to Handler.
func (e *StackExecutor) chargeOpcode(req machine.GasRequest) error {
	var cost uint64
	switch req.Op {
	case machine.EXP:
		cost = gas.ExpCost(e.Config, int(req.ByteLen))
	case machine.SHA3:
		c, err := gas.Sha3Cost(req.ByteLen)
		if err != nil {
			return err
		}
		cost = c
	case machine.CALLDATACOPY, machine.CODECOPY, machine.RETURNDATACOPY:
		c, err := gas.CopyCost(req.ByteLen)
		if err != nil {
			return err
		}
		cost = c
	default:
		cost = gas.StaticCost(req.Op)
	}
	return e.Gasometer.RecordOpcode(cost, req.MemoryLen)
}

func (e *StackExecutor) Balance(addr word.Address) (word.Word, error) {
	if err := e.Gasometer.RecordCost(e.Config.GasBalance); err != nil {
		return word.Zero(), err
	}
	return e.account(addr).Basic.Balance, nil
}

func (e *StackExecutor) codeOf(addr word.Address) []byte {
	if acct, ok := e.state[addr]; ok && acct.CodeKnown {
		return acct.Code
	}
	return e.Backend.Code(addr)
}

func (e *StackExecutor) ExtCodeSize(addr word.Address) (int, error) {
	if err := e.Gasometer.RecordCost(e.Config.GasExtCode); err != nil {
		return 0, err
	}
	if addr == backend.CheatAddress {
		return 100, nil
	}
	return len(e.codeOf(addr)), nil
}

func (e *StackExecutor) ExtCodeHash(addr word.Address) (word.Hash, error) {
	if err := e.Gasometer.RecordCost(e.Config.GasExtCodeHash); err != nil {
		return word.Hash{}, err
	}
	if !e.Exists(addr) {
		return word.Hash{}, nil
	}
	return hashOf(e.codeOf(addr)), nil
}

func (e *StackExecutor) ExtCodeCopy(addr word.Address) ([]byte, error) {
	if err := e.Gasometer.RecordCost(e.Config.GasExtCode); err != nil {
		return nil, err
	}
	return e.codeOf(addr), nil
}

// Exists reports whether addr is known either in this frame's journal or
// the backend.
func (e *StackExecutor) Exists(addr word.Address) bool {
	if _, ok := e.state[addr]; ok {
		return true
	}
	return e.Backend.Exists(addr)
}

func (e *StackExecutor) SLoad(addr word.Address, key word.Hash) (word.Hash, error) {
	if err := e.Gasometer.RecordCost(e.Config.GasSLoad); err != nil {
		return word.Hash{}, err
	}
	acct := e.account(addr)
	if v, ok := acct.Storage[key]; ok {
		return v, nil
	}
	v := e.Backend.Storage(addr, key)
	acct.Storage[key] = v
	acct.StorageOriginal[key] = v
	return v, nil
}

func (e *StackExecutor) sloadOriginal(addr word.Address, key word.Hash) word.Hash {
	acct := e.account(addr)
	if v, ok := acct.StorageOriginal[key]; ok {
		return v
	}
	v := e.Backend.Storage(addr, key)
	acct.StorageOriginal[key] = v
	return v
}

func (e *StackExecutor) SStore(addr word.Address, key, value word.Hash) error {
	if e.IsStatic {
		return machine.OtherError("state modification inside a static call")
	}
	acct := e.account(addr)
	current, ok := acct.Storage[key]
	if !ok {
		current = e.Backend.Storage(addr, key)
	}
	original := e.sloadOriginal(addr, key)

	if e.Config.SstoreRevertUnderStipend {
		if e.Gasometer.Gas() <= e.Config.CallStipend {
			return machine.Err(machine.OutOfGas)
		}
	}

	cost := sstoreCostBytes(e.Config, original, current, value)
	if err := e.Gasometer.RecordCost(cost); err != nil {
		return err
	}
	refund := sstoreRefundBytes(e.Config, original, current, value)
	if refund != 0 {
		e.Gasometer.RecordRefund(refund)
	}
	acct.Storage[key] = value
	return nil
}

func (e *StackExecutor) BlockHash(number uint64) (word.Hash, error) {
	return e.Backend.BlockHash(number), nil
}

func (e *StackExecutor) Coinbase() word.Address { return e.Backend.Vicinity.BlockCoinbase }

func (e *StackExecutor) Timestamp() uint64 {
	if e.tmpTimestamp != nil {
		return *e.tmpTimestamp
	}
	return e.Backend.Vicinity.BlockTimestamp
}

func (e *StackExecutor) Number() uint64 {
	if e.tmpBlockNumber != nil {
		return *e.tmpBlockNumber
	}
	return e.Backend.Vicinity.BlockNumber
}

func (e *StackExecutor) Difficulty() word.Word { return e.Backend.Vicinity.BlockDifficulty }

func (e *StackExecutor) GasLimit() uint64 { return e.Backend.Vicinity.BlockGasLimit }

func (e *StackExecutor) ChainID() word.Word { return e.Backend.Vicinity.ChainID }

func (e *StackExecutor) SelfBalance(addr word.Address) (word.Word, error) {
	return e.account(addr).Basic.Balance, nil
}

func (e *StackExecutor) Log(addr word.Address, topics []word.Hash, data []byte) error {
	if e.IsStatic {
		return machine.OtherError("state modification inside a static call")
	}
	cost := gas.GasLog + gas.GasLogTopic*uint64(len(topics)) + gas.GasLogData*uint64(len(data))
	if err := e.Gasometer.RecordCost(cost); err != nil {
		return err
	}
	e.logs = append(e.logs, Log{
		Address: addr,
		Topics:  toTypesTopics(topics),
		Data:    data,
	})
	return nil
}

func (e *StackExecutor) SelfDestruct(addr, target word.Address) error {
	if e.IsStatic {
		return machine.OtherError("state modification inside a static call")
	}
	acctBal := e.account(addr).Basic.Balance
	cost := e.Config.GasSuicide
	if !e.Exists(target) && !acctBal.IsZero() {
		cost += e.Config.GasSuicideNewAccount
	}
	if err := e.Gasometer.RecordCost(cost); err != nil {
		return err
	}
	targetAcct := e.account(target)
	targetAcct.Basic.Balance.Add(&targetAcct.Basic.Balance, &acctBal)
	e.account(addr).Basic.Balance = word.Zero()
	e.deleted[addr] = true
	return nil
}

