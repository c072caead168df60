package tendermint

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fd1az/chainsync/business/stream/domain"
)

const (
	keyEvent           = "tm.event"
	keyTxHash          = "tx.hash"
	keyTxHeight        = "tx.height"
	keyRecipient       = "transfer.recipient"
	keySender          = "transfer.sender"
	keyAmount          = "transfer.amount"
	keyContractAddress = "wasm._contract_address"
	wasmPrefix         = "wasm."
)

type eventData struct {
	Value struct {
		TxResult struct {
			Hash   string `json:"hash"`
			Height height `json:"height"`
		} `json:"TxResult"`
		Block struct {
			Header struct {
				Height height `json:"height"`
			} `json:"header"`
		} `json:"block"`
	} `json:"value"`
}

// Events turns an event frame into chain events stamped with now. Frames of
// any other kind yield nothing.
func Events(f Frame, now time.Time) []domain.Event {
	if f.Kind != FrameEvent {
		return nil
	}

	var data eventData
	if len(f.Data) > 0 {
		// Attributes alone are enough to decode most events.
		_ = json.Unmarshal(f.Data, &data)
	}

	txHash := data.Value.TxResult.Hash
	if txHash == "" {
		txHash = first(f.Events[keyTxHash])
	}
	txHeight := int64(data.Value.TxResult.Height)
	if txHeight == 0 {
		txHeight, _ = strconv.ParseInt(first(f.Events[keyTxHeight]), 10, 64)
	}

	base := domain.Event{TxHash: txHash, BlockHeight: txHeight, Data: f.Data, Timestamp: now}
	var out []domain.Event

	recipients := f.Events[keyRecipient]
	for i, r := range recipients {
		ev := base
		ev.Type = domain.EventBalanceChange
		ev.Address = r
		ev.Amount = at(f.Events[keyAmount], i)
		ev.Sender = at(f.Events[keySender], i)
		out = append(out, ev)
	}

	if contracts := distinct(f.Events[keyContractAddress]); len(contracts) > 0 {
		attrs := wasmAttributes(f.Events)
		for _, c := range contracts {
			ev := base
			ev.Type = domain.EventContract
			ev.ContractAddress = c
			ev.Attributes = attrs
			out = append(out, ev)
		}
	}

	switch first(f.Events[keyEvent]) {
	case "Tx":
		if txHash != "" {
			ev := base
			ev.Type = domain.EventTransactionConfirmed
			out = append(out, ev)
		}
	case "NewBlock":
		ev := base
		ev.Type = domain.EventBlockUpdate
		ev.TxHash = ""
		ev.BlockHeight = int64(data.Value.Block.Header.Height)
		out = append(out, ev)
	}

	return out
}

func wasmAttributes(events map[string][]string) map[string][]string {
	attrs := make(map[string][]string)
	for k, v := range events {
		if name, ok := strings.CutPrefix(k, wasmPrefix); ok {
			attrs[name] = v
		}
	}
	return attrs
}

func first(values []string) string {
	return at(values, 0)
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
