// Package tendermint encodes and decodes Tendermint JSON-RPC websocket
// frames.
package tendermint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fd1az/chainsync/internal/apperror"
)

// HeartbeatID is the request id of keep-alive pings and their replies.
const HeartbeatID = "heartbeat"

// FrameKind tags a decoded inbound frame.
type FrameKind string

const (
	FrameHeartbeat FrameKind = "heartbeat"
	FrameAck       FrameKind = "ack"
	FrameEvent     FrameKind = "event"
	FrameRPCError  FrameKind = "rpc_error"
	FrameUnknown   FrameKind = "unknown"
)

// Request is an outbound JSON-RPC call.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Subscribe builds a subscribe call for query.
func Subscribe(id, query string) Request {
	return Request{JSONRPC: "2.0", ID: id, Method: "subscribe", Params: map[string]string{"query": query}}
}

// Unsubscribe builds an unsubscribe call. Tendermint identifies the
// subscription by query; the id is echoed for the request log.
func Unsubscribe(id, query string) Request {
	return Request{JSONRPC: "2.0", ID: id, Method: "unsubscribe", Params: map[string]string{"id": id, "query": query}}
}

// Heartbeat builds the keep-alive ping.
func Heartbeat() Request {
	return Request{JSONRPC: "2.0", ID: HeartbeatID, Method: "ping"}
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Frame is an inbound frame decoded once at the connection boundary. Only
// the members relevant to Kind are set.
type Frame struct {
	Kind FrameKind
	ID   string

	// Event frames.
	Query  string
	Events map[string][]string
	Data   json.RawMessage

	// RPC error frames.
	Err *RPCError
}

type envelope struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type eventResult struct {
	Query  string              `json:"query"`
	Data   json.RawMessage     `json:"data"`
	Events map[string][]string `json:"events"`
}

// Decode parses a raw websocket message.
func Decode(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, apperror.New(apperror.CodeInvalidFrame, apperror.WithCause(err))
	}

	f := Frame{Kind: FrameUnknown, ID: decodeID(env.ID)}

	switch {
	case f.ID == HeartbeatID:
		f.Kind = FrameHeartbeat
	case env.Error != nil:
		f.Kind = FrameRPCError
		f.Err = env.Error
	case isNull(env.Result):
	default:
		var res eventResult
		if err := json.Unmarshal(env.Result, &res); err != nil {
			// Results that are not objects are replies to other calls.
			return f, nil
		}
		if len(res.Events) > 0 {
			f.Kind = FrameEvent
			f.Query = res.Query
			f.Events = res.Events
			f.Data = res.Data
		} else {
			f.Kind = FrameAck
		}
	}
	return f, nil
}

// SubscriptionID strips the "#event" suffix newer nodes append to the id of
// event frames.
func (f Frame) SubscriptionID() string {
	return strings.TrimSuffix(f.ID, "#event")
}

func decodeID(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// height accepts both the string and the numeric encoding of heights.
type height int64

func (h *height) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*h = height(n)
	return nil
}
