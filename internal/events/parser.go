package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ParsedEvent is a decoded event log.
type ParsedEvent struct {
	Log *types.Log

	EventName string
	Address   common.Address

	Args map[string]interface{}

	TransactionHash  common.Hash
	TransactionIndex uint
	BlockNumber      uint64
	BlockHash        common.Hash
	LogIndex         uint

	Timestamp int64
}

// Parser decodes event logs using ABI definitions indexed by topic0.
type Parser struct {
	events map[common.Hash]*abi.Event
}

func NewParser() *Parser {
	return &Parser{
		events: make(map[common.Hash]*abi.Event),
	}
}

// AddABI indexes every event of the contract ABI by its topic hash.
func (p *Parser) AddABI(contractABI *abi.ABI) {
	for name := range contractABI.Events {
		event := contractABI.Events[name]
		p.events[event.ID] = &event
	}
}

// ParseEvent parses a log into a ParsedEvent.
func (p *Parser) ParseEvent(log *types.Log) (*ParsedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, ErrInvalidEvent{Reason: "no topics in log"}
	}

	eventABI, exists := p.events[log.Topics[0]]
	if !exists {
		return nil, ErrUnknownEvent{Topic: log.Topics[0].Hex()}
	}

	args := make(map[string]interface{})

	// Indexed parameters live in topics[1:]
	topicIndex := 1
	for _, input := range eventABI.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIndex >= len(log.Topics) {
			return nil, ErrInvalidEvent{Reason: "insufficient topics for " + eventABI.Name}
		}
		args[input.Name] = parseIndexedArg(log.Topics[topicIndex], input.Type)
		topicIndex++
	}

	// Non-indexed parameters are ABI-packed in the data field
	nonIndexedInputs := make(abi.Arguments, 0)
	for _, input := range eventABI.Inputs {
		if !input.Indexed {
			nonIndexedInputs = append(nonIndexedInputs, input)
		}
	}
	if len(nonIndexedInputs) > 0 {
		values, err := nonIndexedInputs.Unpack(log.Data)
		if err != nil {
			return nil, ErrEventParsing{Event: eventABI.Name, Err: err}
		}
		for i, input := range nonIndexedInputs {
			if i < len(values) {
				args[input.Name] = values[i]
			}
		}
	}

	return &ParsedEvent{
		Log:              log,
		EventName:        eventABI.Name,
		Address:          log.Address,
		Args:             args,
		TransactionHash:  log.TxHash,
		TransactionIndex: log.TxIndex,
		BlockNumber:      log.BlockNumber,
		BlockHash:        log.BlockHash,
		LogIndex:         log.Index,
	}, nil
}

// parseIndexedArg converts a topic word to the matching Go type. Signed
// integers are two's-complement encoded in the 32-byte word, so int24
// tick boundaries need the sign restored before use.
func parseIndexedArg(topic common.Hash, argType abi.Type) interface{} {
	switch argType.T {
	case abi.AddressTy:
		return common.HexToAddress(topic.Hex())
	case abi.IntTy:
		return SignedWord(topic.Bytes())
	case abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.BoolTy:
		return topic.Big().Cmp(common.Big0) != 0
	case abi.BytesTy, abi.FixedBytesTy:
		return topic.Bytes()
	default:
		return topic.Hex()
	}
}

var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

// SignedWord decodes a 32-byte two's-complement word into a signed big.Int.
func SignedWord(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word)
	if len(word) == 32 && word[0]&0x80 != 0 {
		v.Sub(v, twoPow256)
	}
	return v
}

type ErrInvalidEvent struct {
	Reason string
}

func (e ErrInvalidEvent) Error() string {
	return "invalid event: " + e.Reason
}

type ErrUnknownEvent struct {
	Topic string
}

func (e ErrUnknownEvent) Error() string {
	return "unknown event topic: " + e.Topic
}

type ErrEventParsing struct {
	Event string
	Err   error
}

func (e ErrEventParsing) Error() string {
	return "failed to parse event " + e.Event + ": " + e.Err.Error()
}
