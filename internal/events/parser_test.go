package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) *Parser {
	factoryABI, poolABI, err := ParseABIs()
	require.NoError(t, err)

	p := NewParser()
	p.AddABI(factoryABI)
	p.AddABI(poolABI)
	return p
}

// signedTopic encodes a signed integer as a two's-complement topic word.
func signedTopic(v int64) common.Hash {
	u := new(big.Int).Mod(big.NewInt(v), new(big.Int).Lsh(big.NewInt(1), 256))
	return common.BigToHash(u)
}

func TestParseSwapEvent(t *testing.T) {
	parser := newTestParser(t)

	_, poolABI, err := ParseABIs()
	require.NoError(t, err)
	swapEvent := poolABI.Events["Swap"]

	amount0 := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	amount1 := new(big.Int).Neg(new(big.Int).Mul(big.NewInt(995), big.NewInt(1e18)))
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	liquidity := big.NewInt(123456)
	tick := big.NewInt(-60)

	data, err := swapEvent.Inputs.NonIndexed().Pack(
		amount0, amount1, sqrtPrice, liquidity, tick, big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)

	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log := &types.Log{
		Address: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Topics: []common.Hash{
			swapEvent.ID,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recipient.Bytes()),
		},
		Data:        data,
		BlockNumber: 42,
		Index:       7,
	}

	pe, err := parser.ParseEvent(log)
	require.NoError(t, err)
	assert.Equal(t, "Swap", pe.EventName)
	assert.Equal(t, uint(7), pe.LogIndex)

	ev, err := DecodeSwap(pe)
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", ev.Sender)
	assert.Equal(t, 0, ev.Amount0.Cmp(amount0))
	assert.Equal(t, 0, ev.Amount1.Cmp(amount1))
	assert.Equal(t, int32(-60), ev.Tick)
}

func TestParseMintNegativeIndexedTicks(t *testing.T) {
	parser := newTestParser(t)

	_, poolABI, err := ParseABIs()
	require.NoError(t, err)
	mintEvent := poolABI.Events["Mint"]

	sender := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := mintEvent.Inputs.NonIndexed().Pack(
		sender, big.NewInt(500), big.NewInt(100), big.NewInt(200))
	require.NoError(t, err)

	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log := &types.Log{
		Address: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Topics: []common.Hash{
			mintEvent.ID,
			common.BytesToHash(owner.Bytes()),
			signedTopic(-100),
			signedTopic(100),
		},
		Data: data,
	}

	pe, err := parser.ParseEvent(log)
	require.NoError(t, err)

	ev, err := DecodeMint(pe)
	require.NoError(t, err)
	assert.Equal(t, int32(-100), ev.TickLower)
	assert.Equal(t, int32(100), ev.TickUpper)
	assert.Equal(t, 0, ev.Amount.Cmp(big.NewInt(500)))
}

func TestParseUnknownTopic(t *testing.T) {
	parser := newTestParser(t)

	log := &types.Log{
		Topics: []common.Hash{common.HexToHash("0xdeadbeef")},
	}
	_, err := parser.ParseEvent(log)
	assert.ErrorAs(t, err, &ErrUnknownEvent{})
}

func TestParseInsufficientTopics(t *testing.T) {
	parser := newTestParser(t)

	_, poolABI, err := ParseABIs()
	require.NoError(t, err)

	log := &types.Log{
		Topics: []common.Hash{poolABI.Events["Swap"].ID},
	}
	_, err = parser.ParseEvent(log)
	assert.ErrorAs(t, err, &ErrInvalidEvent{})
}

func TestSignedWord(t *testing.T) {
	tests := []struct {
		name  string
		value int64
	}{
		{"zero", 0},
		{"positive", 887220},
		{"negative", -887220},
		{"minus one", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word := signedTopic(tt.value)
			got := SignedWord(word.Bytes())
			assert.Equal(t, tt.value, got.Int64())
		})
	}
}
