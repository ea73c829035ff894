package runtime

import (
	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/word"
)

func (r *Runtime) opExtCodeCopy(s *machine.Stack) *machine.ExitReason {
	addrW, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	destOff, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	codeOff, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	length, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	code, herr := r.handler.ExtCodeCopy(word.ToAddress(addrW))
	if herr != nil {
		return asExit(herr)
	}
	if !destOff.IsUint64() || !codeOff.IsUint64() || !length.IsUint64() {
		e := machine.Err(machine.OutOfOffset)
		return &e
	}
	n := length.Uint64()
	buf := make([]byte, n)
	co := codeOff.Uint64()
	if co < uint64(len(code)) {
		end := co + n
		if end > uint64(len(code)) {
			end = uint64(len(code))
		}
		copy(buf, code[co:end])
	}
	if merr := r.machine.Memory().Set(destOff.Uint64(), buf); merr != nil {
		return asExit(merr)
	}
	return nil
}

func (r *Runtime) opSLoad(s *machine.Stack) *machine.ExitReason {
	key, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	v, herr := r.handler.SLoad(r.context.Address, word.ToHash(key))
	if herr != nil {
		return asExit(herr)
	}
	return r.pushOnly(s, word.FromHash(v))
}

func (r *Runtime) opSStore(s *machine.Stack) *machine.ExitReason {
	key, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	value, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	if herr := r.handler.SStore(r.context.Address, word.ToHash(key), word.ToHash(value)); herr != nil {
		return asExit(herr)
	}
	return nil
}

func (r *Runtime) opLog(s *machine.Stack, n int) *machine.ExitReason {
	off, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	length, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	topics := make([]word.Hash, n)
	for i := 0; i < n; i++ {
		t, err := s.Pop()
		if err != nil {
			return asExit(err)
		}
		topics[i] = word.ToHash(t)
	}
	if !off.IsUint64() || !length.IsUint64() {
		e := machine.Err(machine.OutOfOffset)
		return &e
	}
	data := r.machine.Memory().Get(off.Uint64(), length.Uint64())
	if herr := r.handler.Log(r.context.Address, topics, data); herr != nil {
		return asExit(herr)
	}
	return nil
}

func (r *Runtime) opSelfDestruct(s *machine.Stack) *machine.ExitReason {
	targetW, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	if herr := r.handler.SelfDestruct(r.context.Address, word.ToAddress(targetW)); herr != nil {
		return asExit(herr)
	}
	e := machine.Succeed(machine.Suicided)
	return &e
}

func (r *Runtime) opCreate(s *machine.Stack, op machine.OpCode) *machine.ExitReason {
	value, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	off, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	length, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	var salt word.Word
	scheme := CreateSchemeLegacy
	if op == machine.CREATE2 {
		s2, err := s.Pop()
		if err != nil {
			return asExit(err)
		}
		salt = s2
		scheme = CreateSchemeCreate2
	}
	if !off.IsUint64() || !length.IsUint64() {
		e := machine.Err(machine.OutOfOffset)
		return &e
	}
	initCode := r.machine.Memory().Get(off.Uint64(), length.Uint64())

	gasLeft := uint64(0)
	if r.machine.EnvGasLeft() != nil {
		gasLeft = r.machine.EnvGasLeft()()
	}
	exit, addr, retData, gasUsed := r.handler.Create(scheme, r.context.Address, value, initCode, salt, gasLeft)
	_ = gasUsed
	r.machine.SetReturnData(retData)
	switch {
	case exit.IsSucceed():
		return r.pushOnly(s, word.FromAddress(addr))
	default:
		return r.pushOnly(s, word.Zero())
	}
}

func (r *Runtime) opCall(s *machine.Stack, op machine.OpCode) *machine.ExitReason {
	gasW, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	addrW, err := s.Pop()
	if err != nil {
		return asExit(err)
	}

	var value word.Word
	kind := CallKindCall
	switch op {
	case machine.CALL:
		kind = CallKindCall
		v, err := s.Pop()
		if err != nil {
			return asExit(err)
		}
		value = v
	case machine.CALLCODE:
		kind = CallKindCallCode
		v, err := s.Pop()
		if err != nil {
			return asExit(err)
		}
		value = v
	case machine.DELEGATECALL:
		kind = CallKindDelegateCall
	case machine.STATICCALL:
		kind = CallKindStaticCall
	}

	inOff, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	inLen, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	outOff, err := s.Pop()
	if err != nil {
		return asExit(err)
	}
	outLen, err := s.Pop()
	if err != nil {
		return asExit(err)
	}

	if !inOff.IsUint64() || !inLen.IsUint64() || !outOff.IsUint64() || !outLen.IsUint64() {
		e := machine.Err(machine.OutOfOffset)
		return &e
	}
	input := r.machine.Memory().Get(inOff.Uint64(), inLen.Uint64())

	codeAddress := word.ToAddress(addrW)
	callContext := codeAddress
	var transferFrom, transferTo *word.Address
	switch kind {
	case CallKindCall:
		from, to := r.context.Address, codeAddress
		transferFrom, transferTo = &from, &to
	case CallKindCallCode:
		callContext = r.context.Address
		from, to := r.context.Address, r.context.Address
		transferFrom, transferTo = &from, &to
	case CallKindDelegateCall:
		callContext = r.context.Address
	}

	gasRequested := uint64(0)
	if gasW.IsUint64() {
		gasRequested = gasW.Uint64()
	} else {
		gasRequested = ^uint64(0)
	}

	exit, retData, _ := r.handler.Call(kind, gasRequested, codeAddress, callContext, transferFrom, transferTo, value, input, kind == CallKindStaticCall)
	r.machine.SetReturnData(retData)

	n := outLen.Uint64()
	if n > 0 {
		copyLen := n
		if uint64(len(retData)) < copyLen {
			copyLen = uint64(len(retData))
		}
		buf := make([]byte, n)
		copy(buf, retData[:copyLen])
		if merr := r.machine.Memory().Set(outOff.Uint64(), buf); merr != nil {
			return asExit(merr)
		}
	}

	if exit.IsSucceed() {
		return r.pushOnly(s, uintWord(1))
	}
	return r.pushOnly(s, word.Zero())
}
