// Package domain contains the error taxonomy and retry policy.
package domain

// ErrorType is the taxonomy bucket of a failure.
type ErrorType string

const (
	ErrorNetwork     ErrorType = "network"
	ErrorTimeout     ErrorType = "timeout"
	ErrorRPC         ErrorType = "rpc"
	ErrorContract    ErrorType = "contract"
	ErrorTransaction ErrorType = "transaction"
	ErrorValidation  ErrorType = "validation"
	ErrorRateLimit   ErrorType = "rate_limit"
	ErrorServer      ErrorType = "server"
	ErrorClient      ErrorType = "client"
	ErrorUnknown     ErrorType = "unknown"
)

// Severity ranks how serious a failure is for operators.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Code is the stable identifier reported for a classified failure.
type Code string

const (
	CodeNetwork     Code = "NETWORK_ERROR"
	CodeTimeout     Code = "TIMEOUT_ERROR"
	CodeRPC         Code = "RPC_ERROR"
	CodeContract    Code = "CONTRACT_ERROR"
	CodeTransaction Code = "TRANSACTION_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeRateLimit   Code = "RATE_LIMIT_ERROR"
	CodeServer      Code = "SERVER_ERROR"
	CodeClient      Code = "CLIENT_ERROR"
	CodeUnknown     Code = "UNKNOWN_ERROR"
)

var taxonomy = map[ErrorType]struct {
	code      Code
	retryable bool
	severity  Severity
}{
	ErrorNetwork:     {CodeNetwork, true, SeverityHigh},
	ErrorTimeout:     {CodeTimeout, true, SeverityMedium},
	ErrorRPC:         {CodeRPC, true, SeverityHigh},
	ErrorContract:    {CodeContract, false, SeverityHigh},
	ErrorTransaction: {CodeTransaction, false, SeverityMedium},
	ErrorValidation:  {CodeValidation, false, SeverityLow},
	ErrorRateLimit:   {CodeRateLimit, true, SeverityMedium},
	ErrorServer:      {CodeServer, true, SeverityHigh},
	ErrorClient:      {CodeClient, false, SeverityLow},
	ErrorUnknown:     {CodeUnknown, false, SeverityMedium},
}

// Classification is the verdict for a single failure.
type Classification struct {
	Type      ErrorType
	Code      Code
	Retryable bool
	Severity  Severity
	Message   string
}

// NewClassification builds the verdict for t with message msg.
func NewClassification(t ErrorType, msg string) Classification {
	entry, ok := taxonomy[t]
	if !ok {
		t = ErrorUnknown
		entry = taxonomy[ErrorUnknown]
	}
	return Classification{
		Type:      t,
		Code:      entry.code,
		Retryable: entry.retryable,
		Severity:  entry.severity,
		Message:   msg,
	}
}

// IsRetryable reports whether failures of type t may be retried.
func IsRetryable(t ErrorType) bool {
	return taxonomy[t].retryable
}
