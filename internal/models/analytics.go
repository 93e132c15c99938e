package models

import "time"

// SystemMetrics is a point-in-time snapshot of runtime counters, served on
// the admin analytics endpoint alongside the Prometheus scrape.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// FinanceSummary totals income against expenses over a date window.
type FinanceSummary struct {
	TotalIncome  float64 `json:"total_income"`
	TotalExpense float64 `json:"total_expense"`
	NetProfit    float64 `json:"net_profit"`
}

// MonthlyFinance is one month of the income-versus-expense trend.
// Month is formatted YYYY-MM.
type MonthlyFinance struct {
	Month     string  `db:"month" json:"month"`
	Income    float64 `db:"income" json:"income"`
	Expense   float64 `db:"expense" json:"expense"`
	NetProfit float64 `json:"net_profit"`
}

// CourseIncome summarises collections for a single course.
type CourseIncome struct {
	CourseID       string  `json:"course_id"`
	CourseTitle    string  `json:"course_title"`
	TotalIncome    float64 `json:"total_income"`
	ActiveStudents int     `json:"active_students"`
}
