package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lumora/supportdesk/internal/config"
	"github.com/lumora/supportdesk/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventThreadCreated, n.handleThreadCreated)
	n.dispatcher.Subscribe(events.EventThreadStatusChanged, n.handleThreadStatusChanged)
	n.dispatcher.Subscribe(events.EventThreadRated, n.handleThreadRated)
	n.dispatcher.Subscribe(events.EventMessageAdded, n.handleMessageAdded)
}

func (n *NotificationService) handleThreadCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("ThreadCreated", zap.Int64("thread_id", event.ThreadID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleThreadStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("ThreadStatusChanged", zap.Int64("thread_id", event.ThreadID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleThreadRated(ctx context.Context, event events.Event) error {
	n.logger.Info("ThreadRated", zap.Int64("thread_id", event.ThreadID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleMessageAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("MessageAdded", zap.Int64("thread_id", event.ThreadID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.Int64("thread_id", event.ThreadID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.Int64("thread_id", event.ThreadID),
		zap.String("event_type", string(event.Type)))
}
