package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_Query(t *testing.T) {
	assert.Equal(t, "tm.event='Tx' AND transfer.recipient='sei1x'", Subscription{Kind: KindBalance, Target: "sei1x"}.Query())
	assert.Equal(t, "tm.event='Tx' AND wasm._contract_address='sei1c'", Subscription{Kind: KindContract, Target: "sei1c"}.Query())
	assert.Equal(t, "tm.event='Tx' AND tx.hash='AB12'", Subscription{Kind: KindTransaction, Target: "AB12"}.Query())
	assert.Equal(t, "tm.event='NewBlock'", Subscription{Kind: KindBlock}.Query())
}

func TestSubscription_Matches(t *testing.T) {
	balanceX := Subscription{Kind: KindBalance, Target: "X"}
	contractC := Subscription{Kind: KindContract, Target: "C"}
	tx := Subscription{Kind: KindTransaction, Target: "abcd"}
	blocks := Subscription{Kind: KindBlock}

	assert.True(t, balanceX.Matches(Event{Type: EventBalanceChange, Address: "X"}))
	assert.False(t, balanceX.Matches(Event{Type: EventBalanceChange, Address: "Y"}))
	assert.False(t, balanceX.Matches(Event{Type: EventContract, ContractAddress: "X"}))

	assert.True(t, contractC.Matches(Event{Type: EventContract, ContractAddress: "C"}))
	assert.False(t, contractC.Matches(Event{Type: EventContract, ContractAddress: "D"}))

	assert.True(t, tx.Matches(Event{Type: EventTransactionConfirmed, TxHash: "ABCD"}))
	assert.False(t, tx.Matches(Event{Type: EventBalanceChange, TxHash: "ABCD"}))

	assert.True(t, blocks.Matches(Event{Type: EventBlockUpdate, BlockHeight: 10}))
	assert.False(t, blocks.Matches(Event{Type: EventBalanceChange}))
}
