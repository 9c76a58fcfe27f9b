package channels

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmehdipour/notify-gateway/internal/model"
	"github.com/jmehdipour/notify-gateway/internal/repository"
	"github.com/jmehdipour/notify-gateway/internal/util"
)

var ErrInvalidConfig = errors.New("invalid channel config")

// Request is the admin payload for a new channel config. Field names follow
// the stored config and the webhook wire contract.
type Request struct {
	Subject       string   `json:"assunto"        validate:"required,max=255"`
	Recipients    []string `json:"destinatarios"  validate:"required,min=1,dive,required"`
	Message       string   `json:"mensagem"       validate:"required"`
	Periodicity   string   `json:"periodicidade"  validate:"required"`
	Weekday       *string  `json:"dia_semana"`
	SendHour      string   `json:"hora_envio"     validate:"required"`
	Active        *bool    `json:"ativo"`
	WebhookURL    *string  `json:"webhook_url"    validate:"omitempty,url"`
	ReportType    *string  `json:"tipo_relatorio"`
	PeriodDays    *int     `json:"periodo_dias"   validate:"omitempty,min=1"`
	AttachmentURL *string  `json:"anexo_url"      validate:"omitempty,url"`
	CCAID         *int64   `json:"cca_id"`
}

type Service struct {
	configs  repository.ChannelConfigsRepository
	validate *validator.Validate
}

func New(configs repository.ChannelConfigsRepository) *Service {
	return &Service{configs: configs, validate: validator.New()}
}

// Create validates the schedule and stores the config under a fresh uuid.
func (s *Service) Create(ctx context.Context, req Request) (model.ChannelConfig, error) {
	cfg, err := s.build(req)
	if err != nil {
		return model.ChannelConfig{}, err
	}
	if err := s.configs.Insert(ctx, nil, cfg); err != nil {
		return model.ChannelConfig{}, fmt.Errorf("insert channel config: %w", err)
	}
	return cfg, nil
}

func (s *Service) build(req Request) (model.ChannelConfig, error) {
	if err := s.validate.Struct(req); err != nil {
		return model.ChannelConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	p, ok := model.ParsePeriodicity(req.Periodicity)
	if !ok {
		return model.ChannelConfig{}, fmt.Errorf("%w: unknown periodicity %q", ErrInvalidConfig, req.Periodicity)
	}
	if _, err := model.ParseSendHour(req.SendHour); err != nil {
		return model.ChannelConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if p == model.PeriodicityWeekly {
		if req.Weekday == nil {
			return model.ChannelConfig{}, fmt.Errorf("%w: weekly schedule needs dia_semana", ErrInvalidConfig)
		}
		if _, ok := model.ParseWeekday(*req.Weekday); !ok {
			return model.ChannelConfig{}, fmt.Errorf("%w: unknown weekday %q", ErrInvalidConfig, *req.Weekday)
		}
	}
	if req.WebhookURL != nil {
		u, err := url.Parse(*req.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return model.ChannelConfig{}, fmt.Errorf("%w: webhook_url must be http(s)", ErrInvalidConfig)
		}
	}

	recipients, err := util.NormalizeRecipients(req.Recipients)
	if err != nil {
		return model.ChannelConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	now := time.Now().UTC()
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	return model.ChannelConfig{
		ID:            uuid.NewString(),
		Subject:       strings.TrimSpace(req.Subject),
		Recipients:    recipients,
		Message:       req.Message,
		Periodicity:   p,
		Weekday:       req.Weekday,
		SendHour:      strings.TrimSpace(req.SendHour),
		Active:        active,
		WebhookURL:    req.WebhookURL,
		ReportType:    req.ReportType,
		PeriodDays:    req.PeriodDays,
		AttachmentURL: req.AttachmentURL,
		CCAID:         req.CCAID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]model.ChannelConfig, error) {
	return s.configs.List(ctx, limit, offset)
}
