package domain

import (
	"sync"
	"time"
)

// ErrorType tells which part of the sync a SyncError came from.
type ErrorType string

const (
	ErrorBalance   ErrorType = "balance"
	ErrorContract  ErrorType = "contract"
	ErrorWebSocket ErrorType = "websocket"
	ErrorAPI       ErrorType = "api"
)

// ErrorHistorySize is the capacity of the error ring.
const ErrorHistorySize = 50

// SyncError is a failure recorded after every recovery strategy gave up.
type SyncError struct {
	Type       ErrorType `json:"type"`
	Target     string    `json:"target,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retryCount"`
	Resolved   bool      `json:"resolved"`
}

// ErrorRing keeps the most recent sync errors, oldest first.
type ErrorRing struct {
	mu   sync.Mutex
	buf  []SyncError
	size int
}

// NewErrorRing creates a ring holding at most size errors.
func NewErrorRing(size int) *ErrorRing {
	if size <= 0 {
		size = ErrorHistorySize
	}
	return &ErrorRing{size: size}
}

// Add appends e, dropping the oldest entry when full.
func (r *ErrorRing) Add(e SyncError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, e)
	if over := len(r.buf) - r.size; over > 0 {
		r.buf = append(r.buf[:0], r.buf[over:]...)
	}
}

// Resolve marks every unresolved error for typ and target as resolved and
// returns how many flipped.
func (r *ErrorRing) Resolve(typ ErrorType, target string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.buf {
		if !r.buf[i].Resolved && r.buf[i].Type == typ && r.buf[i].Target == target {
			r.buf[i].Resolved = true
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the ring, oldest first.
func (r *ErrorRing) Snapshot() []SyncError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SyncError, len(r.buf))
	copy(out, r.buf)
	return out
}

func (r *ErrorRing) Clear() {
	r.mu.Lock()
	r.buf = nil
	r.mu.Unlock()
}

func (r *ErrorRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
