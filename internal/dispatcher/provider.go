package dispatcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/model"
)

// Provider submits one email to a transactional email API.
type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, email model.Email) error
}

// ProviderError is a non-2xx answer from a provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider=%s status=%d body=%q", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the failure looks like provider health rather
// than a problem with this particular message.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPProvider speaks the Resend-style API: POST {base}/emails with a bearer key.
type HTTPProvider struct {
	name    string
	baseURL string
	path    string
	apiKey  string
	client  *http.Client
	br      *Breaker
}

func NewHTTPProvider(pc config.ProviderConfig) *HTTPProvider {
	timeoutMs := pc.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	openForMs := pc.Breaker.OpenForMs
	if openForMs <= 0 {
		openForMs = 60000
	}

	path := pc.Path
	if path == "" {
		path = "/emails"
	}

	return &HTTPProvider{
		name:    pc.Name,
		baseURL: strings.TrimRight(pc.BaseURL, "/"),
		path:    path,
		apiKey:  strings.TrimSpace(pc.APIKey),
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewBreaker(pc.Breaker.FailThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// Ready is false without an API key so a misconfigured provider is never selected.
func (p *HTTPProvider) Ready() bool   { return p.apiKey != "" && p.br.Ready() }
func (p *HTTPProvider) Acquire() bool { return p.apiKey != "" && p.br.TryAcquire() }

type sendEmailRequest struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Attachments []emailAttachment `json:"attachments,omitempty"`
}

type emailAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"` // base64
	ContentType string `json:"content_type,omitempty"`
}

func (p *HTTPProvider) Send(ctx context.Context, email model.Email) error {
	if p.apiKey == "" {
		return fmt.Errorf("%w: provider %s has no api key", ErrChannelUnavailable, p.name)
	}

	req := sendEmailRequest{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		HTML:    email.HTML,
	}
	for _, a := range email.Attachments {
		req.Attachments = append(req.Attachments, emailAttachment{
			Filename:    a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}

	err := p.post(ctx, req)

	var perr *ProviderError
	switch {
	case err == nil:
		p.br.OnSuccess()
	case errors.As(err, &perr) && !perr.Retryable():
		// the provider answered; the message is at fault, not the provider
		p.br.OnSuccess()
	default:
		p.br.OnFailure()
	}

	return err
}

func (p *HTTPProvider) post(ctx context.Context, body sendEmailRequest) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider=%s: %w", p.name, err)
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &ProviderError{Provider: p.name, StatusCode: res.StatusCode, Body: string(snippet)}
	}

	_, _ = io.Copy(io.Discard, res.Body)

	return nil
}
