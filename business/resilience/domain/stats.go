package domain

// ErrorStats summarizes the failures seen by the engine.
type ErrorStats struct {
	TotalErrors  int
	ErrorsByType map[ErrorType]int
	// RetrySuccessRate is the percentage of retry-loop attempts that ended a
	// loop successfully after the first try.
	RetrySuccessRate float64
	// AverageRetryAttempts is retry-loop attempts per recorded error.
	AverageRetryAttempts float64
}
