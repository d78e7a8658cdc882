package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagewise/cost-insights/internal/nats"
	"github.com/messagewise/cost-insights/pkg/logger"
)

type fakePublisher struct {
	envelopes []*nats.EventEnvelope
	err       error
}

func (p *fakePublisher) PublishEvent(_ context.Context, env *nats.EventEnvelope) (uint64, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.envelopes = append(p.envelopes, env)
	return uint64(len(p.envelopes)), nil
}

func newWebhookHandler(pub *fakePublisher) *WebhookHandler {
	log, _ := logger.New("error")
	return NewWebhookHandler(pub, "supersecret", log)
}

func TestVerifyEchoesChallenge(t *testing.T) {
	h := newWebhookHandler(&fakePublisher{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=supersecret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())
}

func TestVerifyRejectsBadToken(t *testing.T) {
	h := newWebhookHandler(&fakePublisher{})

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

const batchBody = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "acct-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "15550001", "phone_number_id": "ch-1"},
				"messages": [
					{"id": "wamid.1", "from": "15551234", "timestamp": "1756200000", "type": "text", "text": {"body": "hello"}}
				],
				"statuses": [
					{"id": "wamid.0", "status": "delivered", "timestamp": "1756200300", "recipient_id": "15551234"}
				]
			}
		}]
	}]
}`

func TestReceivePublishesAllEvents(t *testing.T) {
	pub := &fakePublisher{}
	h := newWebhookHandler(pub)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(batchBody))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pub.envelopes, 2)

	assert.Equal(t, nats.EventKindContent, pub.envelopes[0].Kind)
	assert.Equal(t, "wamid.1", pub.envelopes[0].ExternalID())
	assert.Equal(t, "acct-1", pub.envelopes[0].AccountID)

	assert.Equal(t, nats.EventKindStatus, pub.envelopes[1].Kind)
	assert.Equal(t, "wamid.0", pub.envelopes[1].ExternalID())

	assert.Contains(t, rec.Body.String(), `"published":2`)
}

func TestReceiveRejectsMalformedBody(t *testing.T) {
	pub := &fakePublisher{}
	h := newWebhookHandler(pub)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, pub.envelopes)
}

func TestReceiveAcksDespitePublishFailure(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	h := newWebhookHandler(pub)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(batchBody))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	// The channel must not retry the whole batch; failures are logged and
	// the delivery is still acknowledged.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed":2`)
}

func TestReceiveSkipsEventWithoutID(t *testing.T) {
	pub := &fakePublisher{}
	h := newWebhookHandler(pub)

	body := `{"object":"whatsapp_business_account","entry":[{"id":"acct-1","changes":[{"field":"messages","value":{
		"messages":[{"id":"","from":"15551234","timestamp":"1756200000","type":"text"}],
		"statuses":[{"id":"wamid.ok","status":"sent","timestamp":"1756200300","recipient_id":"15551234"}]
	}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pub.envelopes, 1)
	assert.Equal(t, "wamid.ok", pub.envelopes[0].ExternalID())
	assert.Contains(t, rec.Body.String(), `"failed":1`)
}
