package dispatcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/jmehdipour/notify-gateway/internal/model"
)

// AttachmentFetcher downloads attachment bodies referenced by URL.
type AttachmentFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewAttachmentFetcher(timeout time.Duration, maxBytes int64) *AttachmentFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 20 << 20 // 20MB
	}
	return &AttachmentFetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

func (f *AttachmentFetcher) Fetch(ctx context.Context, ref model.AttachmentRef) (model.ResolvedAttachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return model.ResolvedAttachment{}, err
	}

	res, err := f.client.Do(req)
	if err != nil {
		return model.ResolvedAttachment{}, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return model.ResolvedAttachment{}, fmt.Errorf("fetch %s: status=%d", ref.URL, res.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(res.Body, f.maxBytes+1))
	if err != nil {
		return model.ResolvedAttachment{}, fmt.Errorf("fetch %s: %w", ref.URL, err)
	}
	if int64(len(content)) > f.maxBytes {
		return model.ResolvedAttachment{}, fmt.Errorf("fetch %s: larger than %d bytes", ref.URL, f.maxBytes)
	}

	name := ref.Filename
	if name == "" {
		name = path.Base(req.URL.Path)
	}

	ct := res.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(path.Ext(name))
	}

	return model.ResolvedAttachment{Filename: name, ContentType: ct, Content: content}, nil
}
