package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Periodicity is the schedule kind of a channel config.
type Periodicity string

const (
	PeriodicityDaily    Periodicity = "diario"
	PeriodicityWeekly   Periodicity = "semanal"
	PeriodicityBiweekly Periodicity = "quinzenal" // 1st and 15th
	PeriodicityMonthly  Periodicity = "mensal"    // 1st
)

func (p Periodicity) String() string { return string(p) }

// ParsePeriodicity accepts the stored Portuguese names and English aliases.
func ParsePeriodicity(s string) (Periodicity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diario", "diária", "diaria", "daily":
		return PeriodicityDaily, true
	case "semanal", "weekly":
		return PeriodicityWeekly, true
	case "quinzenal", "biweekly":
		return PeriodicityBiweekly, true
	case "mensal", "monthly":
		return PeriodicityMonthly, true
	default:
		return "", false
	}
}

var weekdays = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terca":   time.Tuesday,
	"terça":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sabado":  time.Saturday,
	"sábado":  time.Saturday,

	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a weekday name (Sunday=0 … Saturday=6). "segunda-feira"
// and "segunda" are equivalent.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "-feira")
	s = strings.TrimSuffix(s, " feira")
	d, ok := weekdays[s]
	return d, ok
}

// ParseSendHour returns the hour component of an "HH:MM" (or "HH:MM:SS") value.
func ParseSendHour(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, _, _ := strings.Cut(s, ":")
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid send hour %q: %w", s, err)
	}
	if h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid send hour %q: out of range", s)
	}
	return h, nil
}

// ChannelConfig drives the scheduled webhook dispatcher.
type ChannelConfig struct {
	ID            string      `db:"id"             json:"id"`
	Subject       string      `db:"subject"        json:"assunto"`
	Recipients    Recipients  `db:"recipients"     json:"destinatarios"`
	Message       string      `db:"message"        json:"mensagem"`
	Periodicity   Periodicity `db:"periodicity"    json:"periodicidade"`
	Weekday       *string     `db:"weekday"        json:"dia_semana"`
	SendHour      string      `db:"send_hour"      json:"hora_envio"`
	Active        bool        `db:"active"         json:"ativo"`
	WebhookURL    *string     `db:"webhook_url"    json:"webhook_url"`
	ReportType    *string     `db:"report_type"    json:"tipo_relatorio"`
	PeriodDays    *int        `db:"period_days"    json:"periodo_dias"`
	AttachmentURL *string     `db:"attachment_url" json:"anexo_url"`
	CCAID         *int64      `db:"cca_id"         json:"cca_id"`
	CreatedAt     time.Time   `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"     json:"updated_at"`
}

// HasWebhook reports whether the config is eligible for webhook dispatch at all.
func (c ChannelConfig) HasWebhook() bool {
	return c.Active && c.WebhookURL != nil && strings.TrimSpace(*c.WebhookURL) != ""
}

// WebhookPayload is the outbound wire contract; field names are fixed by the receiver.
type WebhookPayload struct {
	ConfigID      string   `json:"configuracao_id"`
	Subject       string   `json:"assunto"`
	Recipients    []string `json:"destinatarios"`
	Message       string   `json:"mensagem"`
	Periodicity   string   `json:"periodicidade"`
	Weekday       *string  `json:"dia_semana"`
	SendHour      string   `json:"hora_envio"`
	ReportType    *string  `json:"tipo_relatorio"`
	PeriodDays    *int     `json:"periodo_dias"`
	AttachmentURL *string  `json:"anexo_url"`
	CCAID         *int64   `json:"cca_id"`
	Timestamp     string   `json:"timestamp"`
}

// NewWebhookPayload echoes the config template plus the send timestamp.
func NewWebhookPayload(c ChannelConfig, sentAt time.Time) WebhookPayload {
	recipients := []string(c.Recipients)
	if recipients == nil {
		recipients = []string{}
	}
	return WebhookPayload{
		ConfigID:      c.ID,
		Subject:       c.Subject,
		Recipients:    recipients,
		Message:       c.Message,
		Periodicity:   c.Periodicity.String(),
		Weekday:       c.Weekday,
		SendHour:      c.SendHour,
		ReportType:    c.ReportType,
		PeriodDays:    c.PeriodDays,
		AttachmentURL: c.AttachmentURL,
		CCAID:         c.CCAID,
		Timestamp:     sentAt.UTC().Format(time.RFC3339),
	}
}
