package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/util"
)

// ErrInvalidRequest wraps every validation failure of a producer request.
var ErrInvalidRequest = errors.New("invalid notification request")

// Service is the producer-facing side of the outbox.
type Service struct {
	notifications repository.NotificationsRepository
	validate      *validator.Validate
	maxAttempts   int
}

// New constructs the queue service.
func New(notificationsRepo repository.NotificationsRepository, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = model.MaxDeliveryAttempts
	}
	return &Service{
		notifications: notificationsRepo,
		validate:      validator.New(),
		maxAttempts:   maxAttempts,
	}
}

// Enqueue validates and normalizes the request, assigns a ULID and stores a
// pending notification. Returns the notification id. A request whose
// SourceKey was already enqueued returns the existing id and stores nothing.
func (s *Service) Enqueue(ctx context.Context, req model.NotificationRequest) (string, error) {
	n, err := s.build(req)
	if err != nil {
		return "", err
	}

	err = s.notifications.Insert(ctx, nil, n)
	if errors.Is(err, repository.ErrDuplicateSourceKey) {
		existing, gerr := s.notifications.GetBySourceKey(ctx, *n.SourceKey)
		if gerr != nil {
			return "", fmt.Errorf("lookup notification by source key: %w", gerr)
		}
		if existing == nil {
			return "", fmt.Errorf("insert notification: %w", err)
		}
		return existing.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	return n.ID, nil
}

func (s *Service) build(req model.NotificationRequest) (model.Notification, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.Body = strings.TrimSpace(req.Body)

	if err := s.validate.Struct(req); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	recipients, err := util.NormalizeRecipients(req.Recipients)
	if err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(recipients) == 0 {
		return model.Notification{}, fmt.Errorf("%w: no recipients", ErrInvalidRequest)
	}

	var attachments model.Attachments
	for _, a := range req.Attachments {
		ref, err := normalizeAttachment(a)
		if err != nil {
			return model.Notification{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		attachments = append(attachments, ref)
	}

	var sourceKey *string
	if k := strings.TrimSpace(req.SourceKey); k != "" {
		sourceKey = &k
	}

	return model.Notification{
		ID:          util.NewID(),
		SourceKey:   sourceKey,
		Recipients:  recipients,
		Subject:     req.Subject,
		Body:        req.Body,
		Attachments: attachments,
	}, nil
}

func normalizeAttachment(a model.AttachmentRef) (model.AttachmentRef, error) {
	u, err := url.Parse(strings.TrimSpace(a.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.AttachmentRef{}, fmt.Errorf("attachment url %q must be absolute http(s)", a.URL)
	}
	name := strings.TrimSpace(a.Filename)
	if name == "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." {
		name = "attachment"
	}
	return model.AttachmentRef{URL: u.String(), Filename: name}, nil
}

// Status aggregates the outbox into sent/pending/failed counts.
func (s *Service) Status(ctx context.Context) (model.QueueStatus, error) {
	st, err := s.notifications.Status(ctx, s.maxAttempts)
	if err != nil {
		return model.QueueStatus{}, fmt.Errorf("notification status: %w", err)
	}
	return st, nil
}

// Get returns one notification with its derived state, or nil if unknown.
func (s *Service) Get(ctx context.Context, id string) (*model.NotificationView, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n == nil {
		return nil, nil
	}
	return &model.NotificationView{Notification: *n, State: n.State(s.maxAttempts)}, nil
}
