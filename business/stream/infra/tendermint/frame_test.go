package tendermint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/chainsync/business/stream/domain"
	"github.com/fd1az/chainsync/internal/apperror"
)

const txFrame = `{
  "jsonrpc": "2.0",
  "id": "5f0c#event",
  "result": {
    "query": "tm.event='Tx' AND transfer.recipient='sei1bob'",
    "data": {"type": "tendermint/event/Tx", "value": {"TxResult": {"height": "1042"}}},
    "events": {
      "tm.event": ["Tx"],
      "tx.hash": ["A1B2C3"],
      "tx.height": ["1042"],
      "transfer.recipient": ["sei1bob", "sei1carol"],
      "transfer.sender": ["sei1alice", "sei1alice"],
      "transfer.amount": ["1500usei", "20usei"],
      "wasm._contract_address": ["sei1pool", "sei1pool"],
      "wasm.action": ["deposit"]
    }
  }
}`

const blockFrame = `{
  "jsonrpc": "2.0",
  "id": "9",
  "result": {
    "query": "tm.event='NewBlock'",
    "data": {"type": "tendermint/event/NewBlock", "value": {"block": {"header": {"height": "77"}}}},
    "events": {"tm.event": ["NewBlock"]}
  }
}`

func TestDecode_Kinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind FrameKind
		id   string
	}{
		{"heartbeat", `{"jsonrpc":"2.0","id":"heartbeat","result":{}}`, FrameHeartbeat, "heartbeat"},
		{"ack", `{"jsonrpc":"2.0","id":"abc","result":{}}`, FrameAck, "abc"},
		{"numeric id", `{"jsonrpc":"2.0","id":7,"result":{}}`, FrameAck, "7"},
		{"rpc error", `{"jsonrpc":"2.0","id":"abc","error":{"code":-32603,"message":"Internal error","data":"already subscribed"}}`, FrameRPCError, "abc"},
		{"event", txFrame, FrameEvent, "5f0c#event"},
		{"empty result", `{"jsonrpc":"2.0","id":"abc"}`, FrameUnknown, "abc"},
		{"scalar result", `{"jsonrpc":"2.0","id":"abc","result":"ok"}`, FrameUnknown, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.id, f.ID)
		})
	}
}

func TestDecode_RPCError(t *testing.T) {
	f, err := Decode([]byte(`{"jsonrpc":"2.0","id":"abc","error":{"code":-32603,"message":"Internal error","data":"already subscribed"}}`))
	require.NoError(t, err)
	require.NotNil(t, f.Err)
	assert.Equal(t, -32603, f.Err.Code)
	assert.Contains(t, f.Err.Error(), "already subscribed")
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Equal(t, apperror.CodeInvalidFrame, apperror.GetCode(err))
}

func TestFrame_SubscriptionID(t *testing.T) {
	assert.Equal(t, "5f0c", Frame{ID: "5f0c#event"}.SubscriptionID())
	assert.Equal(t, "5f0c", Frame{ID: "5f0c"}.SubscriptionID())
}

func TestEvents_Transaction(t *testing.T) {
	f, err := Decode([]byte(txFrame))
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)

	events := Events(f, now)
	require.Len(t, events, 4)

	bob := events[0]
	assert.Equal(t, domain.EventBalanceChange, bob.Type)
	assert.Equal(t, "sei1bob", bob.Address)
	assert.Equal(t, "1500usei", bob.Amount)
	assert.Equal(t, "sei1alice", bob.Sender)
	assert.Equal(t, "A1B2C3", bob.TxHash)
	assert.Equal(t, int64(1042), bob.BlockHeight)
	assert.Equal(t, now, bob.Timestamp)

	carol := events[1]
	assert.Equal(t, "sei1carol", carol.Address)
	assert.Equal(t, "20usei", carol.Amount)

	contract := events[2]
	assert.Equal(t, domain.EventContract, contract.Type)
	assert.Equal(t, "sei1pool", contract.ContractAddress)
	assert.Equal(t, []string{"deposit"}, contract.Attributes["action"])

	assert.Equal(t, domain.EventTransactionConfirmed, events[3].Type)
	assert.Equal(t, "A1B2C3", events[3].TxHash)
}

func TestEvents_Block(t *testing.T) {
	f, err := Decode([]byte(blockFrame))
	require.NoError(t, err)

	events := Events(f, time.Now())
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBlockUpdate, events[0].Type)
	assert.Equal(t, int64(77), events[0].BlockHeight)
}

func TestEvents_NonEventFrame(t *testing.T) {
	assert.Empty(t, Events(Frame{Kind: FrameAck}, time.Now()))
}

func TestRequests(t *testing.T) {
	data, err := json.Marshal(Subscribe("id-1", "tm.event='NewBlock'"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"id-1","method":"subscribe","params":{"query":"tm.event='NewBlock'"}}`, string(data))

	data, err = json.Marshal(Unsubscribe("id-1", "tm.event='NewBlock'"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"id-1","method":"unsubscribe","params":{"id":"id-1","query":"tm.event='NewBlock'"}}`, string(data))

	data, err = json.Marshal(Heartbeat())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"heartbeat","method":"ping"}`, string(data))
}
