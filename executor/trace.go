package executor

import "github.com/forkvm/evmcore/word"

// TraceNode is one call/create frame's trace record: spec.md §4.4 "Trace
// assembly" — success flag, target address, whether it was a creation, the
// function selector and hex input, the gas cost, hex output, the logs it
// emitted, and the trace nodes of every nested frame it opened. JSON tags
// let an external tester diff this tree without the core depending on any
// tester/compiler code (see SPEC_FULL.md §6.1).
type TraceNode struct {
	Success   bool          `json:"success"`
	Address   word.Address  `json:"address"`
	Created   bool          `json:"created"`
	Selector  string        `json:"selector"`
	InputHex  string        `json:"inputHex"`
	Cost      uint64        `json:"cost"`
	OutputHex string        `json:"outputHex"`
	Logs      []Log         `json:"logs"`
	Inner     []*TraceNode  `json:"inner"`
}
