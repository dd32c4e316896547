package events

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseABIs parses the factory and pool event ABIs.
func ParseABIs() (*abi.ABI, *abi.ABI, error) {
	factoryABI, err := abi.JSON(strings.NewReader(FactoryABI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	return &factoryABI, &poolABI, nil
}

// Minimal ABIs with only the events the engine consumes.

const FactoryABI = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "token0",      "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "token1",      "type": "address"},
      {"indexed": true,  "internalType": "uint24",  "name": "fee",         "type": "uint24"},
      {"indexed": false, "internalType": "int24",   "name": "tickSpacing", "type": "int24"},
      {"indexed": false, "internalType": "address", "name": "pool",        "type": "address"}
    ],
    "name": "PoolCreated",
    "type": "event"
  }
]`

const PoolABI = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"indexed": false, "internalType": "int24",   "name": "tick",         "type": "int24"}
    ],
    "name": "Initialize",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "sender",             "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "recipient",          "type": "address"},
      {"indexed": false, "internalType": "int256",  "name": "amount0",            "type": "int256"},
      {"indexed": false, "internalType": "int256",  "name": "amount1",            "type": "int256"},
      {"indexed": false, "internalType": "uint160", "name": "sqrtPriceX96",       "type": "uint160"},
      {"indexed": false, "internalType": "uint128", "name": "liquidity",          "type": "uint128"},
      {"indexed": false, "internalType": "int24",   "name": "tick",               "type": "int24"},
      {"indexed": false, "internalType": "uint128", "name": "protocolFeesToken0", "type": "uint128"},
      {"indexed": false, "internalType": "uint128", "name": "protocolFeesToken1", "type": "uint128"}
    ],
    "name": "Swap",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "address", "name": "sender",    "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "owner",     "type": "address"},
      {"indexed": true,  "internalType": "int24",   "name": "tickLower", "type": "int24"},
      {"indexed": true,  "internalType": "int24",   "name": "tickUpper", "type": "int24"},
      {"indexed": false, "internalType": "uint128", "name": "amount",    "type": "uint128"},
      {"indexed": false, "internalType": "uint256", "name": "amount0",   "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1",   "type": "uint256"}
    ],
    "name": "Mint",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "owner",     "type": "address"},
      {"indexed": true,  "internalType": "int24",   "name": "tickLower", "type": "int24"},
      {"indexed": true,  "internalType": "int24",   "name": "tickUpper", "type": "int24"},
      {"indexed": false, "internalType": "uint128", "name": "amount",    "type": "uint128"},
      {"indexed": false, "internalType": "uint256", "name": "amount0",   "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1",   "type": "uint256"}
    ],
    "name": "Burn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "owner",     "type": "address"},
      {"indexed": false, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": true,  "internalType": "int24",   "name": "tickLower", "type": "int24"},
      {"indexed": true,  "internalType": "int24",   "name": "tickUpper", "type": "int24"},
      {"indexed": false, "internalType": "uint128", "name": "amount0",   "type": "uint128"},
      {"indexed": false, "internalType": "uint128", "name": "amount1",   "type": "uint128"}
    ],
    "name": "Collect",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "sender",    "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "uint128", "name": "amount0",   "type": "uint128"},
      {"indexed": false, "internalType": "uint128", "name": "amount1",   "type": "uint128"}
    ],
    "name": "CollectProtocol",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true,  "internalType": "address", "name": "sender",    "type": "address"},
      {"indexed": true,  "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount0",   "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1",   "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "paid0",     "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "paid1",     "type": "uint256"}
    ],
    "name": "Flash",
    "type": "event"
  }
]`
