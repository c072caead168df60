package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Endpoint selection
	CodeNoEndpointsConfigured: "No endpoints configured",
	CodeNoHealthyEndpoints:    "No healthy endpoints available",
	CodeAllEndpointsFailed:    "All endpoints failed",

	// Retry and fallback
	CodeRetryExhausted:    "Retry attempts exhausted",
	CodeFallbackExhausted: "All fallback strategies failed",

	// WebSocket errors
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketReconnecting:    "WebSocket reconnecting",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",
	CodeReconnectBudgetExhausted: "Reconnect attempts exhausted",

	// Subscriptions
	CodeSubscriptionFailed:   "Failed to subscribe to events",
	CodeSubscriptionNotFound: "Subscription not found",
	CodeUnsubscribeFailed:    "Failed to unsubscribe from events",

	// Wire frames
	CodeInvalidFrame:     "Invalid frame received",
	CodeRPCErrorResponse: "Node returned an RPC error",

	// Chain queries
	CodeBalanceQueryFailed:  "Balance query failed",
	CodeContractQueryFailed: "Contract query failed",
	CodeContractNotFound:    "Contract not found",
	CodeInvalidAddress:      "Invalid address",

	// Sync orchestration
	CodeSyncNotRunning:     "Sync is not running",
	CodeInvalidRefreshType: "Unknown refresh type",
	CodeRefreshFailed:      "Refresh failed",

	// Cache errors
	CodeCacheMiss: "Cache miss",

	// Circuit breaker errors
	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
