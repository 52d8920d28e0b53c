package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/apperrors"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/observer"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/utils"
)

// TransitionRecord is one applied hop inside a status-change event.
type TransitionRecord struct {
	From model.LeadStatus `json:"from"`
	To   model.LeadStatus `json:"to"`
}

// StatusChangedEvent is the payload published after a committed advance. The
// audit rows written in the same transaction as the lead update remain the
// source of truth; this event is a best-effort notification for downstream
// sync consumers.
type StatusChangedEvent struct {
	LeadID         string             `json:"lead_id"`
	OrganizationID string             `json:"organization_id"`
	FinalStatus    model.LeadStatus   `json:"final_status"`
	Transitions    []TransitionRecord `json:"transitions"`
	Actor          string             `json:"actor"`
	Source         string             `json:"source"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// Publisher emits lead lifecycle events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
	Close()
}

// JetStreamPublisher publishes events to a NATS JetStream stream.
type JetStreamPublisher struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
}

var _ Publisher = (*JetStreamPublisher)(nil)

// NewJetStreamPublisher connects to NATS and ensures the events stream exists.
func NewJetStreamPublisher(url, streamName, subjectPrefix string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, apperrors.NewRetryable(apperrors.ErrNATS, "failed to connect to NATS at %s", url)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, subjectPrefix: subjectPrefix}
	if err := p.setupStream(streamName); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

// setupStream ensures the events stream exists, creating it when missing.
func (p *JetStreamPublisher) setupStream(streamName string) error {
	_, err := p.js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamName, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{p.subjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to add stream '%s': %w", streamName, err)
	}
	logger.Log.Info("Created events stream", zap.String("name", streamName))
	return nil
}

// PublishStatusChanged publishes one status-change event, subject scoped by
// tenant.
func (p *JetStreamPublisher) PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error {
	subject := fmt.Sprintf("%s.status_changed.%s", p.subjectPrefix, event.OrganizationID)
	payload := utils.MustMarshalJSON(event)

	_, err := p.js.Publish(subject, payload, nats.Context(ctx))
	observer.IncEventPublished(subject, event.OrganizationID, err)
	if err != nil {
		return apperrors.NewRetryable(err, "failed to publish status change for lead %s", event.LeadID)
	}

	logger.FromContext(ctx).Debug("Published status change event",
		zap.String("subject", subject),
		zap.String("lead_id", event.LeadID),
		zap.String("final_status", event.FinalStatus.String()),
	)
	return nil
}

// Close drains the underlying NATS connection.
func (p *JetStreamPublisher) Close() {
	if p.nc != nil && !p.nc.IsClosed() {
		p.nc.Close()
	}
}

// NoopPublisher discards events. Used when NATS is disabled.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

// PublishStatusChanged drops the event.
func (NoopPublisher) PublishStatusChanged(context.Context, StatusChangedEvent) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() {}
