package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MaxDeliveryAttempts is the retry budget of a notification; a row whose
// attempts reach it is permanently failed.
const MaxDeliveryAttempts = 3

type NotificationState string

const (
	StatePending NotificationState = "pending"
	StateSent    NotificationState = "sent"
	StateFailed  NotificationState = "failed"
)

func (s NotificationState) String() string { return string(s) }

// AttachmentRef points at a file fetched over HTTP at send time.
type AttachmentRef struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Attachments is stored as a JSON array column.
type Attachments []AttachmentRef

func (a Attachments) Value() (driver.Value, error) { return jsonValue(a) }

func (a *Attachments) Scan(src any) error { return jsonScan(src, a) }

// Recipients is stored as a JSON array column.
type Recipients []string

func (r Recipients) Value() (driver.Value, error) { return jsonValue(r) }

func (r *Recipients) Scan(src any) error { return jsonScan(src, r) }

// Notification is a row of the notifications outbox.
type Notification struct {
	ID           string      `db:"id"          json:"id"`
	SourceKey    *string     `db:"source_key"  json:"source_key,omitempty"`
	Recipients   Recipients  `db:"recipients"  json:"recipients"`
	Subject      string      `db:"subject"     json:"subject"`
	Body         string      `db:"body"        json:"body"`
	Attachments  Attachments `db:"attachments" json:"attachments"`
	Delivered    bool        `db:"delivered"   json:"delivered"`
	Attempts     int         `db:"attempts"    json:"attempts"`
	LastError    *string     `db:"last_error"  json:"last_error,omitempty"`
	ClaimedUntil *time.Time  `db:"claimed_until" json:"-"`
	CreatedAt    time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"  json:"updated_at"`
}

// State derives the lifecycle state from delivered/attempts.
func (n Notification) State(maxAttempts int) NotificationState {
	if maxAttempts <= 0 {
		maxAttempts = MaxDeliveryAttempts
	}
	switch {
	case n.Delivered:
		return StateSent
	case n.Attempts >= maxAttempts:
		return StateFailed
	default:
		return StatePending
	}
}

// NotificationView is a notification as reported to operators.
type NotificationView struct {
	Notification
	State NotificationState `json:"state"`
}

// QueueStatus aggregates the outbox; Sent+Pending+Failed == Total.
type QueueStatus struct {
	Total   int64 `db:"total"   json:"total"`
	Sent    int64 `db:"sent"    json:"sent"`
	Pending int64 `db:"pending" json:"pending"`
	Failed  int64 `db:"failed"  json:"failed"`
}

// Email is what the dispatcher hands to a provider.
type Email struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Attachments []ResolvedAttachment
}

type ResolvedAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
