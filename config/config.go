// Package config holds the hard-fork parameters the gas, runtime and
// executor packages are tuned against, following vm/runtime/runtime.go's
// SetDefaults(cfg *Config) pattern in the teacher rather than a generic
// config-file loader — this core has no persisted configuration.
package config

// Config is a fixed record of gas costs, refund amounts, feature flags and
// resource limits for one hard fork. Every field is required; there is no
// partial/zero-value config.
type Config struct {
	// Gas costs.
	GasExtCode              uint64
	GasExtCodeHash          uint64
	GasBalance              uint64
	GasSLoad                uint64
	GasSStoreSet            uint64
	GasSStoreReset          uint64
	RefundSStoreClears      int64
	GasSuicide              uint64
	GasSuicideNewAccount    uint64
	GasCall                 uint64
	GasExpByte              uint64
	GasTransactionCreate     uint64
	GasTransactionCall       uint64
	GasTransactionZeroData   uint64
	GasTransactionNonZeroData uint64

	// Feature flags.
	SstoreGasMetering        bool
	SstoreRevertUnderStipend bool
	ErrOnCallWithMoreGas     bool
	CallL64AfterGas          bool
	EmptyConsideredExists    bool
	CreateIncreaseNonce      bool
	HasDelegateCall          bool
	HasCreate2               bool
	HasRevert                bool
	HasReturnData            bool
	HasBitwiseShifting       bool
	HasChainID               bool
	HasSelfBalance           bool
	HasExtCodeHash           bool

	// Limits.
	StackLimit          int
	MemoryLimit          int
	CallStackLimit       int
	CreateContractLimit *int

	// CallStipend is the gas credited to a call carrying nonzero value,
	// per spec.md's stipend accounting.
	CallStipend uint64
}

// Istanbul returns the fixed Istanbul hard-fork configuration, ground-truthed
// against original_source/runtime/src/lib.rs's Config::istanbul().
func Istanbul() *Config {
	return &Config{
		GasExtCode:                700,
		GasExtCodeHash:            700,
		GasBalance:                700,
		GasSLoad:                  800,
		GasSStoreSet:              20000,
		GasSStoreReset:            5000,
		RefundSStoreClears:        15000,
		GasSuicide:                5000,
		GasSuicideNewAccount:      25000,
		GasCall:                   700,
		GasExpByte:                50,
		GasTransactionCreate:      53000,
		GasTransactionCall:        21000,
		GasTransactionZeroData:    4,
		GasTransactionNonZeroData: 16,

		SstoreGasMetering:        true,
		SstoreRevertUnderStipend: true,
		ErrOnCallWithMoreGas:     false,
		CallL64AfterGas:          true,
		EmptyConsideredExists:    false,
		CreateIncreaseNonce:      true,
		HasDelegateCall:          true,
		HasCreate2:               true,
		HasRevert:                true,
		HasReturnData:            true,
		HasBitwiseShifting:       true,
		HasChainID:               true,
		HasSelfBalance:           true,
		HasExtCodeHash:           true,

		StackLimit:    1024,
		MemoryLimit:   1 << 24,
		CallStackLimit: 1024,

		CallStipend: 2300,
	}
}
