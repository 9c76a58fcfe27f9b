package model

import (
	"database/sql/driver"
	"time"
)

// WebhookLog is one append-only row per webhook delivery attempt.
type WebhookLog struct {
	ID           string         `db:"id"            json:"id"`
	ConfigID     string         `db:"config_id"     json:"config_id"`
	WebhookURL   string         `db:"webhook_url"   json:"webhook_url"`
	Payload      WebhookPayload `db:"payload"       json:"payload"`
	StatusCode   *int           `db:"status_code"   json:"status_code"`
	ResponseBody *string        `db:"response_body" json:"response_body"`
	Success      bool           `db:"success"       json:"success"`
	ErrorMessage *string        `db:"error_message" json:"error_message"`
	CreatedAt    time.Time      `db:"created_at"    json:"created_at"`
}

func (p WebhookPayload) Value() (driver.Value, error) { return jsonValue(p) }

func (p *WebhookPayload) Scan(src any) error { return jsonScan(src, p) }

// TickSummary is returned by every dispatcher invocation, scheduled or manual.
type TickSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped,omitempty"`
}
