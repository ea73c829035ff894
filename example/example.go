package main

import (
	"log"
	"math/big"

	"github.com/forkvm/evmcore/machine"
	"github.com/forkvm/evmcore/rpc"
	"github.com/forkvm/evmcore/simulator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func main() {
	exampleSimulateBundle()
}

func simpleSim() {
	code := []byte{
		byte(machine.PUSH1), 0x00, byte(machine.CALLDATALOAD),
		byte(machine.PUSH1), 0x00, byte(machine.SSTORE),
		byte(machine.PUSH1), 0x00, byte(machine.SLOAD),
		byte(machine.PUSH1), 0x00, byte(machine.MSTORE),
		byte(machine.PUSH1), 0x20, byte(machine.PUSH1), 0x00, byte(machine.RETURN),
	}

	rpcEndpoint := "https://eth.llamarpc.com"
	blkNumber := big.NewInt(1)

	rpcClt := rpc.NewClient(rpcEndpoint)
	sim, err := simulator.NewSimulator(rpcClt)
	if err != nil {
		log.Fatal(err)
	}

	gasPrice := big.NewInt(0)
	contractAddr := common.HexToAddress("0x0000000000000000000000000000000000000011")

	simulation := simulator.Simulation{
		From:        common.HexToAddress("0x0000000000000000000000000000000000000000"),
		To:          contractAddr,
		Code:        code,
		BlockNumber: blkNumber,
		GasLimit:    300000,
		GasPrice:    gasPrice,
		Value:       big.NewInt(0),
		Input:       hexutil.MustDecode(`0x0000000000000000000000000000000000000000000000000000000000000020`),
	}

	result, err := sim.Simulate(simulation, nil)
	if err != nil {
		log.Fatal(err)
	}

	log.Println("-----------------------------------------------------------")
	// just log the returned value for now
	log.Println(hexutil.Encode(result.ReturnedData))
	log.Println(result.GasUsed)
}

func exampleSimulateBundle() {
	rpcEndpoint := "https://eth.llamarpc.com"
	blkNumber := big.NewInt(20219603)

	rpcClt := rpc.NewClient(rpcEndpoint)
	sim, err := simulator.NewSimulator(rpcClt)
	if err != nil {
		log.Fatal(err)
	}

	gasPrice := big.NewInt(0)
	contractAddr := common.HexToAddress("0x0000000000000000000000000000000000000011")
	from := common.HexToAddress("0x0000000000000000000000000000000000000000")

	simulations := []simulator.Simulation{
		{
			From:        from,
			To:          contractAddr,
			BlockNumber: blkNumber,
			GasLimit:    300000,
			GasPrice:    gasPrice,
			Value:       big.NewInt(196834),
			Input:       hexutil.MustDecode(`0x00000000000000000000000000000000000000000000000000000000000000c8`),
		},
		{
			From:        from,
			To:          contractAddr,
			BlockNumber: blkNumber,
			GasLimit:    300000,
			GasPrice:    gasPrice,
			Value:       big.NewInt(0),
			Input:       hexutil.MustDecode(`0x0000000000000000000000000000000000000000000000000000000000000001`),
		},
		{
			From:        from,
			To:          contractAddr,
			BlockNumber: blkNumber,
			GasLimit:    300000,
			GasPrice:    gasPrice,
			Value:       big.NewInt(197057),
			Input:       hexutil.MustDecode(`0x0000000000000000000000000000000000000000000000000000000000000002`),
		},
	}

	results, err := sim.SimulateBundle(simulations, nil)
	if err != nil {
		log.Fatal(err)
	}

	for _, r := range results {
		log.Println("-----------------------------------------------------------")
		// just log the returned value for now
		log.Println(hexutil.Encode(r.ReturnedData))
		log.Println(r.GasUsed)

		for _, node := range r.Trace {
			log.Println("ADDRESS: ", node.Address.Hex(), "success:", node.Success)
		}
	}
}
