package domain

import "time"

// Performance aggregates refresh outcomes.
type Performance struct {
	// AvgResponseTime averages successful refreshes only.
	AvgResponseTime time.Duration `json:"avgResponseTime"`
	SuccessRate     float64       `json:"successRate"`
	TotalRequests   int64         `json:"totalRequests"`
	FailedRequests  int64         `json:"failedRequests"`
}

// NewPerformance returns an empty aggregate with a 100% success rate.
func NewPerformance() Performance {
	return Performance{SuccessRate: 100}
}

// Record folds one refresh outcome into p.
func (p *Performance) Record(elapsed time.Duration, success bool) {
	p.TotalRequests++
	if success {
		succeeded := p.TotalRequests - p.FailedRequests
		total := p.AvgResponseTime * time.Duration(succeeded-1)
		p.AvgResponseTime = (total + elapsed) / time.Duration(succeeded)
	} else {
		p.FailedRequests++
	}
	p.SuccessRate = float64(p.TotalRequests-p.FailedRequests) / float64(p.TotalRequests) * 100
}

// Status is an advisory snapshot of the orchestrator.
type Status struct {
	IsActive        bool        `json:"isActive"`
	Paused          bool        `json:"paused"`
	LastSync        time.Time   `json:"lastSync"`
	NextSync        time.Time   `json:"nextSync"`
	ConnectionState string      `json:"connectionState"`
	Subscriptions   []uint64    `json:"subscriptions"`
	Errors          []SyncError `json:"errors"`
	Performance     Performance `json:"performance"`
}
