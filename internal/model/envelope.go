package model

import "encoding/json"

// Envelope is the payload consumed from Kafka by the intake worker.
type Envelope struct {
	ID           string              `json:"id"` // producer-side id, dedupes redeliveries
	Notification NotificationRequest `json:"notification"`
}

// NotificationRequest is what producers submit to the outbox.
type NotificationRequest struct {
	// SourceKey makes the enqueue idempotent: a second request with the same
	// key returns the first notification's id. Set from the Kafka envelope id
	// or the Idempotency-Key header.
	SourceKey   string          `json:"-"           validate:"max=128"`
	Recipients  RecipientList   `json:"recipients"  validate:"required,min=1,dive,required"`
	Subject     string          `json:"subject"     validate:"required,max=998"`
	Body        string          `json:"body"        validate:"required"`
	Attachments []AttachmentRef `json:"attachments" validate:"omitempty,dive"`
}

// RecipientList decodes either a JSON array of addresses or a single string.
// A string is kept whole; address list parsing happens on normalization so
// quoted display names survive.
type RecipientList []string

func (l *RecipientList) UnmarshalJSON(b []byte) error {
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = RecipientList{s}
	return nil
}
