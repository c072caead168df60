package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	// General validation
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Sync layer error codes
const (
	// Endpoint selection
	CodeNoEndpointsConfigured Code = "NO_ENDPOINTS_CONFIGURED"
	CodeNoHealthyEndpoints    Code = "NO_HEALTHY_ENDPOINTS"
	CodeAllEndpointsFailed    Code = "ALL_ENDPOINTS_FAILED"

	// Retry and fallback
	CodeRetryExhausted    Code = "RETRY_EXHAUSTED"
	CodeFallbackExhausted Code = "FALLBACK_EXHAUSTED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketReconnecting    Code = "WEBSOCKET_RECONNECTING"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"
	CodeReconnectBudgetExhausted Code = "RECONNECT_BUDGET_EXHAUSTED"

	// Subscriptions
	CodeSubscriptionFailed   Code = "SUBSCRIPTION_FAILED"
	CodeSubscriptionNotFound Code = "SUBSCRIPTION_NOT_FOUND"
	CodeUnsubscribeFailed    Code = "UNSUBSCRIBE_FAILED"

	// Wire frames
	CodeInvalidFrame     Code = "INVALID_FRAME"
	CodeRPCErrorResponse Code = "RPC_ERROR_RESPONSE"

	// Chain queries
	CodeBalanceQueryFailed  Code = "BALANCE_QUERY_FAILED"
	CodeContractQueryFailed Code = "CONTRACT_QUERY_FAILED"
	CodeContractNotFound    Code = "CONTRACT_NOT_FOUND"
	CodeInvalidAddress      Code = "INVALID_ADDRESS"

	// Sync orchestration
	CodeSyncNotRunning     Code = "SYNC_NOT_RUNNING"
	CodeInvalidRefreshType Code = "INVALID_REFRESH_TYPE"
	CodeRefreshFailed      Code = "REFRESH_FAILED"

	// Cache errors
	CodeCacheMiss Code = "CACHE_MISS"

	// Circuit breaker errors
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
