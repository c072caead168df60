package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/fd1az/chainsync/business/resilience/domain"
	"github.com/fd1az/chainsync/internal/apperror"
)

// keywordRules are checked in order against the words of the root cause.
var keywordRules = []struct {
	errType domain.ErrorType
	words   []string
}{
	{domain.ErrorNetwork, []string{"fetch", "network", "connection", "dial", "refused", "reset"}},
	{domain.ErrorTimeout, []string{"timeout", "deadline"}},
	{domain.ErrorRPC, []string{"rpc", "jsonrpc"}},
	{domain.ErrorContract, []string{"contract", "execution"}},
	{domain.ErrorTransaction, []string{"transaction", "tx"}},
	{domain.ErrorValidation, []string{"validation", "invalid"}},
}

// networkCodes are app error codes raised when a transport or breaker
// rejects a call before it reaches the remote side.
var networkCodes = []apperror.Code{
	apperror.CodeCircuitOpen,
	apperror.CodeCircuitHalfOpen,
	apperror.CodeServiceUnavailable,
	apperror.CodeWebSocketConnectionError,
	apperror.CodeWebSocketClosed,
	apperror.CodeWebSocketSendError,
}

type httpStatuser interface {
	HTTPStatus() int
}

type retryAfterer interface {
	RetryAfter() (time.Duration, bool)
}

// Classify maps err onto the error taxonomy. Typed transport failures win,
// then whole-word keywords of the root cause, then any HTTP status in the
// chain. Everything else is unknown and not retryable.
func Classify(err error) domain.Classification {
	if err == nil {
		return domain.NewClassification(domain.ErrorUnknown, "")
	}
	msg := err.Error()

	if t, ok := classifyTyped(err); ok {
		return domain.NewClassification(t, msg)
	}
	if t, ok := classifyKeywords(rootCause(err).Error()); ok {
		return domain.NewClassification(t, msg)
	}
	if t, ok := classifyStatus(err); ok {
		return domain.NewClassification(t, msg)
	}
	return domain.NewClassification(domain.ErrorUnknown, msg)
}

func classifyTyped(err error) (domain.ErrorType, bool) {
	var netErr net.Error
	isNet := errors.As(err, &netErr)

	switch {
	case errors.Is(err, context.DeadlineExceeded), isNet && netErr.Timeout():
		return domain.ErrorTimeout, true
	case isNet, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.ErrorNetwork, true
	case apperror.HasCode(err, networkCodes...):
		return domain.ErrorNetwork, true
	}
	return "", false
}

func classifyKeywords(msg string) (domain.ErrorType, bool) {
	words := strings.FieldsFunc(strings.ToLower(msg), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}

	for _, rule := range keywordRules {
		for _, w := range rule.words {
			if _, ok := set[w]; ok {
				return rule.errType, true
			}
		}
	}
	return "", false
}

func classifyStatus(err error) (domain.ErrorType, bool) {
	status, ok := HTTPStatus(err)
	if !ok {
		return "", false
	}
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrorRateLimit, true
	case status >= 500:
		return domain.ErrorServer, true
	case status >= 400:
		return domain.ErrorClient, true
	}
	return "", false
}

// HTTPStatus returns the status of the first error in the chain that
// carries one.
func HTTPStatus(err error) (int, bool) {
	var hs httpStatuser
	if errors.As(err, &hs) {
		return hs.HTTPStatus(), true
	}
	return 0, false
}

// RetryAfter returns the server's Retry-After hint if the chain carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0, false
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
