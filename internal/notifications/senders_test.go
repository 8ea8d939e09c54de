package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/onboarding-enforcer/pkg/enums"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []*pubsub.Message
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, msg)
	return "server-1", nil
}

func TestPubSubSenderPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sender := newPubSubSender(pub, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))

	msg := Message{
		ID:       "n-1",
		Kind:     enums.NotificationKindNoMatches,
		Audience: AudienceCustomer,
		TenantID: "tenant-1",
		Subject:  "s",
		Body:     "b",
		Contact:  &Contact{Phone: "+15550100"},
	}
	require.NoError(t, sender.Send(context.Background(), msg))
	require.Len(t, pub.published, 1)

	got := pub.published[0]
	assert.Equal(t, "no_matches", got.Attributes["kind"])
	assert.Equal(t, "customer", got.Attributes["audience"])
	assert.Equal(t, "tenant-1", got.Attributes["tenant_id"])

	var decoded Message
	require.NoError(t, json.Unmarshal(got.Data, &decoded))
	assert.Equal(t, "n-1", decoded.ID)
	assert.Equal(t, "+15550100", decoded.Contact.Phone)
}

func TestPubSubSenderWrapsPublishError(t *testing.T) {
	sender := newPubSubSender(&fakePublisher{err: errors.New("unavailable")}, nil)
	err := sender.Send(context.Background(), Message{Kind: enums.NotificationKindAdminAlert})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestNewPubSubSenderRequiresPublisher(t *testing.T) {
	_, err := NewPubSubSender(nil, nil)
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	buf := &lockedBuffer{}
	sender := NewLogSender(logger.New(logger.Options{ServiceName: "test", Output: buf}))
	require.NoError(t, sender.Send(context.Background(), Message{ID: "n-2", Kind: enums.NotificationKindAdminAlert, Subject: "hello"}))
	assert.Contains(t, buf.String(), `"notification_id":"n-2"`)
	assert.Contains(t, buf.String(), `"subject":"hello"`)

	assert.Error(t, NewLogSender(nil).Send(context.Background(), Message{}))
}
