package models

import "time"

// StatusStat aggregates transaction counts and volume per terminal status.
type StatusStat struct {
	Status      TransactionStatus `json:"status"`
	Count       int64             `json:"count"`
	TotalAmount float64           `json:"totalAmount"`
}

// SourceStat aggregates activity per requesting IP address.
type SourceStat struct {
	IPAddress    string `json:"ipAddress"`
	Count        int64  `json:"count"`
	SuccessCount int64  `json:"successCount"`
	FailureCount int64  `json:"failureCount"`
}

// CountryStat aggregates activity per resolved country.
type CountryStat struct {
	Country      string  `json:"country"`
	Count        int64   `json:"count"`
	SuccessCount int64   `json:"successCount"`
	FailureCount int64   `json:"failureCount"`
	Percentage   float64 `json:"percentage,omitempty"`
}

// TopCountries wraps a ranked country list with the window it covers.
type TopCountries struct {
	Countries         []CountryStat `json:"countries"`
	TotalTransactions int64         `json:"totalTransactions"`
	StartDate         time.Time     `json:"startDate"`
	EndDate           time.Time     `json:"endDate"`
}

// HourlyStat counts transactions per hour of day (0-23, UTC).
type HourlyStat struct {
	Hour         int   `json:"hour"`
	Count        int64 `json:"count"`
	SuccessCount int64 `json:"successCount"`
	FailureCount int64 `json:"failureCount"`
}

// PerformanceStats summarizes response-time distribution over a window.
// Durations are milliseconds.
type PerformanceStats struct {
	TotalRequests   int64   `json:"totalRequests"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	MinResponseTime int64   `json:"minResponseTime"`
	MaxResponseTime int64   `json:"maxResponseTime"`
	P50ResponseTime float64 `json:"p50ResponseTime"`
	P90ResponseTime float64 `json:"p90ResponseTime"`
	P99ResponseTime float64 `json:"p99ResponseTime"`
}
