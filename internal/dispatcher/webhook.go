package dispatcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/util"
)

// WebhookResult is what the receiver answered.
type WebhookResult struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx answer.
func (r WebhookResult) OK() bool { return r.StatusCode/100 == 2 }

// WebhookClient POSTs JSON payloads to operator-configured URLs.
type WebhookClient struct {
	client  *http.Client
	maxBody int
}

func NewWebhookClient(timeout time.Duration, maxResponseBytes int) *WebhookClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = 4096
	}
	return &WebhookClient{
		client:  &http.Client{Timeout: timeout},
		maxBody: maxResponseBytes,
	}
}

// Post sends body. A non-nil error means the call never completed (no status);
// any HTTP answer, including non-2xx, is returned as a result.
func (c *WebhookClient) Post(ctx context.Context, url string, body []byte) (*WebhookResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(res.Body, int64(c.maxBody)))
	_, _ = io.Copy(io.Discard, res.Body)

	// the limit may split a rune; response_body is utf8mb4
	return &WebhookResult{StatusCode: res.StatusCode, Body: util.TruncateUTF8(string(b), c.maxBody)}, nil
}
