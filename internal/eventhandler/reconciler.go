package eventhandler

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/ignite/collection-dispatcher/internal/store"
)

// Store is the subset of the Store Gateway the reconciler needs.
type Store interface {
	FindClientByMessageID(ctx context.Context, messageID string) (clientID, executionID string, found bool, err error)
	CreateDeliveryEvent(ctx context.Context, clientID, executionID, eventType string, metadata map[string]interface{}) error
	UpdateClientStatus(ctx context.Context, id, status string, customData map[string]interface{}) error
}

// Reconciler turns one SES delivery notification into a recipient status
// transition plus a delivery-event row. It is shared, unmodified, by both
// the SNS-HTTPS and SQS-relayed ingestion modes.
type Reconciler struct {
	store Store
	log   *logrus.Entry
}

// New constructs a Reconciler.
func New(s Store, log *logrus.Entry) *Reconciler {
	return &Reconciler{store: s, log: log}
}

// ProcessMessage parses one raw SNS "Message" string as a SESEvent and
// reconciles it. Parse failures are lenient: they count as an error but
// never abort the batch.
func (r *Reconciler) ProcessMessage(ctx context.Context, rawMessage string) (ok bool) {
	var event SESEvent
	if err := json.Unmarshal([]byte(rawMessage), &event); err != nil {
		r.log.WithError(err).Error("failed to parse SES event")
		return false
	}
	return r.ProcessEvent(ctx, event)
}

// ProcessEvent reconciles one already-parsed SESEvent against the store.
func (r *Reconciler) ProcessEvent(ctx context.Context, event SESEvent) bool {
	messageID := event.Mail.MessageID
	eventType := event.NotificationType

	log := r.log.WithField("message_id", messageID).WithField("event_type", eventType)
	log.Info("processing delivery event")

	clientID, executionID, found, err := r.store.FindClientByMessageID(ctx, messageID)
	if err != nil {
		log.WithError(err).Error("error looking up client by message id")
		return false
	}
	if !found {
		log.Warn("no client found for message id")
		return true
	}

	metadata := eventToMetadata(event)
	if err := r.store.CreateDeliveryEvent(ctx, clientID, executionID, eventType, metadata); err != nil {
		log.WithError(err).Error("failed to create delivery event log")
	}

	r.applyStatusTransition(ctx, clientID, event)
	return true
}

// applyStatusTransition maps a notification type to a recipient status:
// Bounce→bounced, Delivery→delivered, Open→opened, Reject→failed,
// Complaint→complained; Send leaves the recipient as sent.
func (r *Reconciler) applyStatusTransition(ctx context.Context, clientID string, event SESEvent) {
	log := r.log.WithField("client_id", clientID)

	switch event.NotificationType {
	case "Bounce":
		details := map[string]interface{}{}
		if event.Bounce != nil {
			details["bounce_type"] = event.Bounce.BounceType
			details["bounce_sub_type"] = event.Bounce.BounceSubType
		}
		if err := r.store.UpdateClientStatus(ctx, clientID, store.RecipientBounced, details); err != nil {
			log.WithError(err).Error("failed to update client to bounced")
		}
	case "Delivery":
		if err := r.store.UpdateClientStatus(ctx, clientID, store.RecipientDelivered, nil); err != nil {
			log.WithError(err).Error("failed to update client to delivered")
		}
	case "Open":
		if err := r.store.UpdateClientStatus(ctx, clientID, store.RecipientOpened, nil); err != nil {
			log.WithError(err).Error("failed to update client to opened")
		}
	case "Send":
		// no status change; the dispatch path already marked this sent.
	case "Reject":
		if err := r.store.UpdateClientStatus(ctx, clientID, store.RecipientFailed, nil); err != nil {
			log.WithError(err).Error("failed to update client to failed")
		}
	case "Complaint":
		if err := r.store.UpdateClientStatus(ctx, clientID, store.RecipientComplained, nil); err != nil {
			log.WithError(err).Error("failed to update client to complained")
		}
	default:
		log.Warnf("unhandled event type: %s", event.NotificationType)
	}
}

func eventToMetadata(event SESEvent) map[string]interface{} {
	data, err := json.Marshal(event)
	if err != nil {
		return map[string]interface{}{"event_type": event.NotificationType, "message_id": event.Mail.MessageID}
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return map[string]interface{}{"event_type": event.NotificationType, "message_id": event.Mail.MessageID}
	}
	return metadata
}
