package eventhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/ignite/collection-dispatcher/internal/store"
)

type fakeStore struct {
	clientID    string
	executionID string
	found       bool
	lookupErr   error

	events          []string
	eventErr        error
	updatedStatuses map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{updatedStatuses: map[string]string{}}
}

func (f *fakeStore) FindClientByMessageID(ctx context.Context, messageID string) (string, string, bool, error) {
	return f.clientID, f.executionID, f.found, f.lookupErr
}
func (f *fakeStore) CreateDeliveryEvent(ctx context.Context, clientID, executionID, eventType string, metadata map[string]interface{}) error {
	f.events = append(f.events, eventType)
	return f.eventErr
}
func (f *fakeStore) UpdateClientStatus(ctx context.Context, id, status string, customData map[string]interface{}) error {
	f.updatedStatuses[id] = status
	return nil
}

func reconcilerTestLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestProcessEventStatusMapping(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{"Bounce", store.RecipientBounced},
		{"Delivery", store.RecipientDelivered},
		{"Open", store.RecipientOpened},
		{"Reject", store.RecipientFailed},
		{"Complaint", store.RecipientComplained},
	}
	for _, c := range cases {
		t.Run(c.eventType, func(t *testing.T) {
			s := newFakeStore()
			s.clientID, s.executionID, s.found = "client-1", "exec-1", true
			r := New(s, reconcilerTestLogger())

			ok := r.ProcessEvent(context.Background(), SESEvent{
				NotificationType: c.eventType,
				Mail:             SESMail{MessageID: "msg-1"},
			})
			assert.True(t, ok)
			assert.Equal(t, c.want, s.updatedStatuses["client-1"])
			assert.Equal(t, []string{c.eventType}, s.events)
		})
	}
}

func TestProcessEventSendLeavesStatusAlone(t *testing.T) {
	s := newFakeStore()
	s.clientID, s.found = "client-1", true
	r := New(s, reconcilerTestLogger())

	ok := r.ProcessEvent(context.Background(), SESEvent{NotificationType: "Send", Mail: SESMail{MessageID: "msg-1"}})
	assert.True(t, ok)
	assert.Empty(t, s.updatedStatuses)
	assert.Equal(t, []string{"Send"}, s.events)
}

func TestProcessEventNoMatchIsNotAnError(t *testing.T) {
	s := newFakeStore()
	r := New(s, reconcilerTestLogger())

	ok := r.ProcessEvent(context.Background(), SESEvent{NotificationType: "Bounce", Mail: SESMail{MessageID: "unknown"}})
	assert.True(t, ok, "an event for a message this system never sent is not a failure")
	assert.Empty(t, s.events)
}

func TestProcessEventLookupErrorFails(t *testing.T) {
	s := newFakeStore()
	s.lookupErr = errors.New("store unavailable")
	r := New(s, reconcilerTestLogger())

	ok := r.ProcessEvent(context.Background(), SESEvent{NotificationType: "Delivery", Mail: SESMail{MessageID: "msg-1"}})
	assert.False(t, ok)
}

func TestProcessMessageParsesRawSNSMessage(t *testing.T) {
	s := newFakeStore()
	s.clientID, s.found = "client-1", true
	r := New(s, reconcilerTestLogger())

	raw := `{"eventType":"Bounce","mail":{"messageId":"msg-1"},"bounce":{"bounceType":"Permanent","bounceSubType":"General"}}`
	ok := r.ProcessMessage(context.Background(), raw)
	assert.True(t, ok)
	assert.Equal(t, store.RecipientBounced, s.updatedStatuses["client-1"])
}

func TestProcessMessageBadJSONFails(t *testing.T) {
	s := newFakeStore()
	r := New(s, reconcilerTestLogger())

	ok := r.ProcessMessage(context.Background(), "not json")
	assert.False(t, ok)
	assert.Empty(t, s.events)
}
