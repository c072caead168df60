package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/internal/apperror"
	"github.com/fd1az/chainsync/internal/httpclient"
)

func statusErr(code int, retryAfter string) error {
	h := http.Header{}
	if retryAfter != "" {
		h.Set("Retry-After", retryAfter)
	}
	return httpclient.NewStatusError(&http.Response{StatusCode: code, Header: h}, nil)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      domain.ErrorType
		retryable bool
	}{
		{"deadline", fmt.Errorf("lcd: %w", context.DeadlineExceeded), domain.ErrorTimeout, true},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, domain.ErrorNetwork, true},
		{"eof", fmt.Errorf("read: %w", io.EOF), domain.ErrorNetwork, true},
		{"circuit open", apperror.New(apperror.CodeCircuitOpen), domain.ErrorNetwork, true},
		{"refused keyword", errors.New("connect: connection refused"), domain.ErrorNetwork, true},
		{"timeout keyword", errors.New("request timeout"), domain.ErrorTimeout, true},
		{"rpc keyword", errors.New("rpc error: code = 5"), domain.ErrorRPC, true},
		{"contract keyword", errors.New("contract execution failed"), domain.ErrorContract, false},
		{"tx keyword", errors.New("tx not found"), domain.ErrorTransaction, false},
		{"invalid keyword", errors.New("invalid address"), domain.ErrorValidation, false},
		{"rate limited", statusErr(http.StatusTooManyRequests, ""), domain.ErrorRateLimit, true},
		{"server", statusErr(http.StatusServiceUnavailable, ""), domain.ErrorServer, true},
		{"client", statusErr(http.StatusNotFound, ""), domain.ErrorClient, false},
		{"wrapped status", apperror.Wrap(statusErr(http.StatusBadGateway, ""), apperror.CodeBalanceQueryFailed, "lcd"), domain.ErrorServer, true},
		{"partial word", errors.New("transactional outbox stalled"), domain.ErrorUnknown, false},
		{"unknown", errors.New("something odd"), domain.ErrorUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			assert.Equal(t, tt.want, c.Type)
			assert.Equal(t, tt.retryable, c.Retryable)
			assert.Equal(t, tt.err.Error(), c.Message)
		})
	}
}

func TestClassify_CodesAndSeverity(t *testing.T) {
	c := Classify(errors.New("dial failed"))
	assert.Equal(t, domain.CodeNetwork, c.Code)
	assert.Equal(t, domain.SeverityHigh, c.Severity)

	c = Classify(statusErr(http.StatusTooManyRequests, ""))
	assert.Equal(t, domain.CodeRateLimit, c.Code)
	assert.Equal(t, domain.SeverityMedium, c.Severity)

	c = Classify(nil)
	assert.Equal(t, domain.ErrorUnknown, c.Type)
}

func TestRetryAfter(t *testing.T) {
	d, ok := RetryAfter(fmt.Errorf("query: %w", statusErr(http.StatusTooManyRequests, "2")))
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	_, ok = RetryAfter(statusErr(http.StatusTooManyRequests, ""))
	assert.False(t, ok)

	_, ok = RetryAfter(errors.New("plain"))
	assert.False(t, ok)
}
