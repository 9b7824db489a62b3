package evolution

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/store"
)

// Handler processes one webhook event for one instance. A returned error is
// logged by the dispatcher and never surfaced to the provider: the webhook
// endpoint acknowledges every delivery to stop the provider from retrying.
type Handler func(ctx context.Context, instance string, data json.RawMessage) error

type Router struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewRouter(repo store.Repository, logger *zap.Logger) *Router {
	r := &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
	}

	messageUpsert := messageUpsertHandler(repo, logger)
	messageUpdate := messageUpdateHandler(repo)
	logOnly := func(message string) Handler {
		return func(_ context.Context, instance string, _ json.RawMessage) error {
			logger.Info(message, zap.String("instance", instance))
			return nil
		}
	}

	r.Register("messages.upsert", messageUpsert)
	r.Register("send.message", messageUpsert)
	r.Register("messages.update", messageUpdate)
	r.Register("send.message.update", messageUpdate)
	r.Register("connection.update", connectionUpdateHandler(repo))
	r.Register("qrcode.updated", logOnly("qr code updated"))
	r.Register("instance.create", logOnly("instance created"))
	r.Register("instance.delete", logOnly("instance deleted"))

	return r
}

func (r *Router) Register(event string, handler Handler) {
	r.handlers[event] = handler
}

// Dispatch routes the envelope to its handler. Unknown events are a warning,
// not an error: the provider emits event types this service does not track.
func (r *Router) Dispatch(ctx context.Context, envelope domain.WebhookEnvelope) error {
	handler, ok := r.handlers[envelope.Event]
	if !ok {
		r.logger.Warn("unhandled webhook event",
			zap.String("event", envelope.Event),
			zap.String("instance", envelope.Instance))
		return nil
	}
	return handler(ctx, envelope.Instance, envelope.Data)
}

// messageEventData covers the fields this service reads from the provider's
// message lifecycle payloads.
type messageEventData struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
	} `json:"key"`
	Message struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
	} `json:"message"`
	Status           string `json:"status"`
	MessageTimestamp int64  `json:"messageTimestamp"`
	State            string `json:"state"`
}

func messageUpsertHandler(repo store.Repository, logger *zap.Logger) Handler {
	return func(ctx context.Context, instance string, data json.RawMessage) error {
		var event messageEventData
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		if event.Key.ID == "" {
			return nil
		}

		body := event.Message.Conversation
		if body == "" {
			body = event.Message.ExtendedTextMessage.Text
		}
		status := event.Status
		if status == "" {
			status = "sent"
		}
		var ts time.Time
		if event.MessageTimestamp > 0 {
			ts = time.Unix(event.MessageTimestamp, 0).UTC()
		}

		err := repo.SaveMessage(ctx, domain.WhatsAppMessage{
			MessageID:    event.Key.ID,
			InstanceName: instance,
			FromNumber:   event.Key.RemoteJid,
			Body:         body,
			Type:         "message",
			Status:       status,
			Timestamp:    ts,
			Raw:          data,
		})
		if err != nil {
			// Diagnostic records never fail the webhook.
			logger.Warn("failed to save message record",
				zap.String("message_id", event.Key.ID),
				zap.Error(err))
		}
		return nil
	}
}

func messageUpdateHandler(repo store.Repository) Handler {
	return func(ctx context.Context, _ string, data json.RawMessage) error {
		var event messageEventData
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		if event.Key.ID == "" || event.Status == "" {
			return nil
		}
		return repo.UpdateMessageStatus(ctx, event.Key.ID, event.Status)
	}
}

func connectionUpdateHandler(repo store.Repository) Handler {
	return func(ctx context.Context, instance string, data json.RawMessage) error {
		var event messageEventData
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		return repo.UpsertMessagingInstance(ctx, domain.MessagingInstance{
			InstanceName:     instance,
			ConnectionStatus: event.State,
			LastUpdate:       time.Now().UTC(),
		})
	}
}
