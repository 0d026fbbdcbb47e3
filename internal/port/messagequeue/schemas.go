package messagequeue

import "time"

// DealsFoundPayload is the schema for deals.found messages.
type DealsFoundPayload struct {
	RunID  string        `json:"run_id"`
	JobID  int64         `json:"job_id"`
	Deals  []DealSummary `json:"deals"`
	SentAt time.Time     `json:"sent_at"`
}

// DealSummary is the compact deal shape carried on the bus.
type DealSummary struct {
	RuleID             int64  `json:"rule_id"`
	UserID             int64  `json:"user_id"`
	Title              string `json:"title"`
	DiscountPercentage int    `json:"discount_percentage"`
	CurrentPrice       string `json:"current_price"`
	Currency           string `json:"currency"`
	OfferURL           string `json:"offer_url"`
}

// JobCompletedPayload is the schema for jobs.completed messages.
type JobCompletedPayload struct {
	RunID             string `json:"run_id"`
	JobID             int64  `json:"job_id"`
	Status            string `json:"status"`
	RulesProcessed    int    `json:"rules_processed"`
	DealsFound        int    `json:"deals_found"`
	NotificationsSent int    `json:"notifications_sent"`
	AlertsTriggered   int    `json:"alerts_triggered"`
	ExecutionTimeMS   int64  `json:"execution_time_ms"`
	Error             string `json:"error,omitempty"`
}

// JobTriggerPayload is the schema for jobs.trigger messages.
type JobTriggerPayload struct {
	RequestedBy string `json:"requested_by"`
}

// AlertTriggeredPayload is the schema for alerts.triggered messages.
type AlertTriggeredPayload struct {
	AlertID int64       `json:"alert_id"`
	UserID  int64       `json:"user_id"`
	Deal    DealSummary `json:"deal"`
	Title   string      `json:"title"`
	Body    string      `json:"body"`
}
